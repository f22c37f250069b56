package dbmanager

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/sitestore/internal/sitestore/config"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMongoSort(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, mongoSort(nil))
	assert.Equal(t, bson.D{{Key: "title", Value: -1}, {Key: "_id", Value: 1}},
		mongoSort([]SortField{{Field: "title", Descending: true}, {Field: "_id"}}))
}

func TestMongoIndexModels(t *testing.T) {
	models := mongoIndexModels("users", []IndexSpec{
		{Fields: []string{"email"}, Unique: true},
		{Name: "by_role", Fields: []string{"roleId", "status"}},
	})
	require.Len(t, models, 2)
	assert.Equal(t, bson.D{{Key: "email", Value: 1}}, models[0].Keys)
	assert.Equal(t, "users_email_uniq_idx", *models[0].Options.Name)
	assert.True(t, *models[0].Options.Unique)
	assert.Equal(t, bson.D{{Key: "roleId", Value: 1}, {Key: "status", Value: 1}}, models[1].Keys)
	assert.Equal(t, "by_role", *models[1].Options.Name)
	assert.False(t, *models[1].Options.Unique)
}

func TestMongoFilterNormalizes(t *testing.T) {
	f, err := mongoFilter(Filter{"order": 2, "status": "draft"})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"order": float64(2), "status": "draft"}, f)
}

func TestFromBSON(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	doc, err := fromBSON(bson.M{
		"_id":       "abc",
		"count":     int32(4),
		"createdAt": primitive.NewDateTimeFromTime(ts),
		"tags":      bson.A{"x", "y"},
		"seo":       bson.M{"title": "t"},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", doc.Id())
	assert.Equal(t, float64(4), doc["count"])
	assert.Equal(t, []any{"x", "y"}, doc["tags"])
	assert.Equal(t, map[string]any{"title": "t"}, doc["seo"])
	assert.Contains(t, doc["createdAt"], "$date")
}

// TestMongodbLive runs against a real server when SITESTORE_TEST_MONGO_URI is set.
func TestMongodbLive(t *testing.T) {
	uri := os.Getenv("SITESTORE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("SITESTORE_TEST_MONGO_URI not set")
	}
	cfg := testDatabaseConfig(config.DriverMongodb)
	cfg.Mongodb.URI = uri

	ctx := context.Background()
	r := NewRegistry(NewMongodbConnector(cfg.Mongodb, cfg.ConnectTimeoutDuration(), cfg.OperationTimeoutDuration()))
	defer r.ReleaseAll(ctx)

	conn, err := r.Acquire(ctx, "sitestore_test_site1")
	require.NoError(t, err)
	coll := conn.Collection("live_users")
	_, err = coll.DeleteMany(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, coll.EnsureIndexes(ctx, []IndexSpec{{Fields: []string{"email"}, Unique: true}}))

	require.NoError(t, coll.InsertOne(ctx, Document{"_id": "1", "email": "a@example.com", "roles": []any{"admin"}}))
	err = coll.InsertOne(ctx, Document{"_id": "2", "email": "a@example.com"})
	assert.ErrorIs(t, err, dberror.ErrAlreadyExists)

	doc, err := coll.FindOne(ctx, Filter{"roles": "admin"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", doc["email"])

	n, err := coll.UpdateOne(ctx, Filter{"_id": "1"}, Document{"displayName": "A"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	names, err := conn.ListCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "live_users")
}
