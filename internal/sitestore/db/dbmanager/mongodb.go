package dbmanager

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/sitestore/internal/sitestore/config"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// mongoNamespaceExists is returned by createCollection when the collection is already there.
const mongoNamespaceExists = 48

// mongodbConnector opens one client per database name.
type mongodbConnector struct {
	cfg              config.MongodbConfig
	connectTimeout   time.Duration
	operationTimeout time.Duration
}

func NewMongodbConnector(cfg config.MongodbConfig, connectTimeout, operationTimeout time.Duration) Connector {
	return &mongodbConnector{
		cfg:              cfg,
		connectTimeout:   connectTimeout,
		operationTimeout: operationTimeout,
	}
}

func (m *mongodbConnector) clientOptions() *options.ClientOptions {
	opts := options.Client().ApplyURI(m.cfg.URI).
		SetConnectTimeout(m.connectTimeout).
		SetServerSelectionTimeout(m.connectTimeout).
		SetTimeout(m.operationTimeout)
	if m.cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(m.cfg.MaxPoolSize)
	}
	if m.cfg.MinPoolSize > 0 {
		opts.SetMinPoolSize(m.cfg.MinPoolSize)
	}
	appName := m.cfg.AppName
	if appName == "" {
		appName = "sitestore"
	}
	opts.SetAppName(appName)
	return opts
}

func (m *mongodbConnector) Connect(ctx context.Context, dbName string) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, m.clientOptions())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("db", dbName).Msg("failed to connect to mongodb")
		return nil, dberror.ErrConnectivity.Suffix(dbName).Err(err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("db", dbName).Msg("failed to ping mongodb")
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, dberror.ErrConnectivity.Suffix(dbName).Err(err)
	}
	return &mongodbConn{client: client, db: client.Database(dbName), name: dbName}, nil
}

type mongodbConn struct {
	client *mongo.Client
	db     *mongo.Database
	name   string
	closed atomic.Bool
}

func (c *mongodbConn) Name() string {
	return c.name
}

func (c *mongodbConn) Collection(name string) Collection {
	return &mongodbCollection{conn: c, coll: c.db.Collection(name)}
}

func (c *mongodbConn) EnsureCollection(ctx context.Context, name string) error {
	if c.closed.Load() {
		return dberror.ErrConnClosed
	}
	err := c.db.CreateCollection(ctx, name)
	var cmdErr mongo.CommandError
	if err == nil || (errors.As(err, &cmdErr) && cmdErr.Code == mongoNamespaceExists) {
		return nil
	}
	log.Ctx(ctx).Error().Err(err).Str("db", c.name).Str("collection", name).Msg("failed to create collection")
	return dberror.ErrDatabase.Err(err)
}

func (c *mongodbConn) ListCollections(ctx context.Context) ([]string, error) {
	if c.closed.Load() {
		return nil, dberror.ErrConnClosed
	}
	names, err := c.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	sort.Strings(names)
	return names, nil
}

func (c *mongodbConn) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return dberror.ErrConnClosed
	}
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return dberror.ErrConnectivity.Suffix(c.name).Err(err)
	}
	return nil
}

func (c *mongodbConn) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.client.Disconnect(ctx)
}

type mongodbCollection struct {
	conn *mongodbConn
	coll *mongo.Collection
}

func (mc *mongodbCollection) Name() string {
	return mc.coll.Name()
}

func (mc *mongodbCollection) InsertOne(ctx context.Context, doc Document) error {
	return mc.InsertMany(ctx, []Document{doc})
}

func (mc *mongodbCollection) InsertMany(ctx context.Context, docs []Document) error {
	if mc.conn.closed.Load() {
		return dberror.ErrConnClosed
	}
	batch := make([]any, len(docs))
	for i, doc := range docs {
		if doc.Id() == "" {
			return dberror.ErrInvalidInput.Msg("document has no _id")
		}
		batch[i] = map[string]any(doc)
	}
	_, err := mc.coll.InsertMany(ctx, batch, options.InsertMany().SetOrdered(true))
	return mc.wrapWriteError(ctx, err)
}

func (mc *mongodbCollection) wrapWriteError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return dberror.ErrAlreadyExists.MsgErr(mc.Name()+": duplicate key", err)
	}
	log.Ctx(ctx).Error().Err(err).Str("db", mc.conn.name).Str("collection", mc.Name()).Msg("write failed")
	return dberror.ErrDatabase.Err(err)
}

func (mc *mongodbCollection) FindOne(ctx context.Context, filter Filter) (Document, error) {
	docs, err := mc.Find(ctx, filter, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, dberror.ErrNotFound.Msg(mc.Name() + ": no matching document")
	}
	return docs[0], nil
}

func (mc *mongodbCollection) Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error) {
	if mc.conn.closed.Load() {
		return nil, dberror.ErrConnClosed
	}
	f, err := mongoFilter(filter)
	if err != nil {
		return nil, err
	}
	findOpts := options.Find().SetSort(mongoSort(opts.Sort))
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	cur, err := mc.coll.Find(ctx, f, findOpts)
	if err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	docs := make([]Document, 0, len(raw))
	for _, m := range raw {
		doc, err := fromBSON(m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (mc *mongodbCollection) Count(ctx context.Context, filter Filter) (int64, error) {
	if mc.conn.closed.Load() {
		return 0, dberror.ErrConnClosed
	}
	f, err := mongoFilter(filter)
	if err != nil {
		return 0, err
	}
	n, err := mc.coll.CountDocuments(ctx, f)
	if err != nil {
		return 0, dberror.ErrDatabase.Err(err)
	}
	return n, nil
}

func (mc *mongodbCollection) UpdateOne(ctx context.Context, filter Filter, set Document) (int64, error) {
	if mc.conn.closed.Load() {
		return 0, dberror.ErrConnClosed
	}
	if _, ok := set[IdField]; ok {
		return 0, dberror.ErrInvalidInput.Msg("_id cannot be updated")
	}
	f, err := mongoFilter(filter)
	if err != nil {
		return 0, err
	}
	res, err := mc.coll.UpdateOne(ctx, f, bson.M{"$set": map[string]any(set)})
	if err != nil {
		return 0, mc.wrapWriteError(ctx, err)
	}
	return res.MatchedCount, nil
}

func (mc *mongodbCollection) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	if mc.conn.closed.Load() {
		return 0, dberror.ErrConnClosed
	}
	f, err := mongoFilter(filter)
	if err != nil {
		return 0, err
	}
	res, err := mc.coll.DeleteMany(ctx, f)
	if err != nil {
		return 0, dberror.ErrDatabase.Err(err)
	}
	return res.DeletedCount, nil
}

func (mc *mongodbCollection) EnsureIndexes(ctx context.Context, indexes []IndexSpec) error {
	if mc.conn.closed.Load() {
		return dberror.ErrConnClosed
	}
	if len(indexes) == 0 {
		// an index-less collection still has to exist
		return mc.conn.EnsureCollection(ctx, mc.Name())
	}
	_, err := mc.coll.Indexes().CreateMany(ctx, mongoIndexModels(mc.Name(), indexes))
	if err != nil {
		return mc.wrapWriteError(ctx, err)
	}
	return nil
}

func mongoFilter(filter Filter) (bson.M, error) {
	f, err := NormalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	return bson.M(f), nil
}

func mongoSort(fields []SortField) bson.D {
	if len(fields) == 0 {
		return bson.D{{Key: IdField, Value: 1}}
	}
	d := make(bson.D, 0, len(fields))
	for _, f := range fields {
		dir := 1
		if f.Descending {
			dir = -1
		}
		d = append(d, bson.E{Key: f.Field, Value: dir})
	}
	return d
}

func mongoIndexModels(coll string, indexes []IndexSpec) []mongo.IndexModel {
	models := make([]mongo.IndexModel, 0, len(indexes))
	for _, idx := range indexes {
		keys := make(bson.D, 0, len(idx.Fields))
		for _, f := range idx.Fields {
			keys = append(keys, bson.E{Key: f, Value: 1})
		}
		models = append(models, mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetName(indexName(coll, idx)).SetUnique(idx.Unique),
		})
	}
	return models
}

// fromBSON converts a decoded document into JSON shaped form via relaxed extended JSON.
func fromBSON(m bson.M) (Document, error) {
	b, err := bson.MarshalExtJSON(m, false, false)
	if err != nil {
		return nil, dberror.ErrDatabase.MsgErr("unable to convert document", err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, dberror.ErrDatabase.MsgErr("unable to convert document", err)
	}
	return doc, nil
}
