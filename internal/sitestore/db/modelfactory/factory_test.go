package modelfactory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/sitestore/internal/sitestore/common"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"github.com/tansive/sitestore/internal/sitestore/db/dbmanager"
	"github.com/tansive/sitestore/internal/sitestore/db/models"
	"github.com/tansive/sitestore/internal/sitestore/db/schema"
)

func newTestFactory(t *testing.T) (*Factory, *dbmanager.MemoryServer) {
	t.Helper()
	server := dbmanager.NewMemoryServer()
	f := New(dbmanager.NewRegistry(server), "cms_")
	t.Cleanup(func() { f.Close(context.Background()) })
	return f, server
}

// countingConn counts collection and index creation on top of the memory backend.
type countingConn struct {
	dbmanager.Conn
	ensured *atomic.Int32
}

func (c countingConn) EnsureCollection(ctx context.Context, name string) error {
	c.ensured.Add(1)
	return c.Conn.EnsureCollection(ctx, name)
}

func TestModelIsRegisteredOnce(t *testing.T) {
	ctx := context.Background()
	server := dbmanager.NewMemoryServer()
	var ensured atomic.Int32
	registry := dbmanager.NewRegistry(dbmanager.ConnectorFunc(func(ctx context.Context, dbName string) (dbmanager.Conn, error) {
		c, err := server.Connect(ctx, dbName)
		return countingConn{Conn: c, ensured: &ensured}, err
	}))
	f := New(registry, "cms_")
	defer f.Close(ctx)

	m1, err := f.Site(ctx, 1, schema.EntityPost)
	require.NoError(t, err)
	m2, err := f.Site(ctx, 1, schema.EntityPost)
	require.NoError(t, err)
	assert.Equal(t, int32(1), ensured.Load())
	assert.Same(t, m1.Collection(), m2.Collection())
	assert.Equal(t, "cms_site1", m1.Database())
	assert.Equal(t, []string{"Post"}, f.BoundEntities("cms_site1"))

	created, err := m1.Create(ctx, models.Post{Title: "Hello", Slug: "hello"})
	require.NoError(t, err)
	got, err := m2.FindByID(ctx, created.Id())
	require.NoError(t, err)
	assert.Equal(t, "Hello", got["title"])
}

func TestConcurrentRegistrationCoalesces(t *testing.T) {
	ctx := context.Background()
	server := dbmanager.NewMemoryServer()
	var ensured atomic.Int32
	registry := dbmanager.NewRegistry(dbmanager.ConnectorFunc(func(ctx context.Context, dbName string) (dbmanager.Conn, error) {
		c, err := server.Connect(ctx, dbName)
		return countingConn{Conn: c, ensured: &ensured}, err
	}))
	f := New(registry, "cms_")
	defer f.Close(ctx)

	var wg sync.WaitGroup
	colls := make([]dbmanager.Collection, 8)
	for i := range colls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := f.Site(ctx, 3, schema.EntityPage)
			if assert.NoError(t, err) {
				colls[i] = m.Collection()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), ensured.Load())
	for _, c := range colls {
		assert.Same(t, colls[0], c)
	}
}

func TestModelErrors(t *testing.T) {
	ctx := context.Background()
	f, server := newTestFactory(t)

	_, err := f.Site(ctx, 1, "Nope")
	assert.ErrorIs(t, err, dberror.ErrUnknownEntity)
	assert.ErrorIs(t, err, dberror.ErrConfiguration)

	_, err = f.Site(ctx, 1, schema.EntityUser)
	assert.ErrorIs(t, err, dberror.ErrUnknownEntity)
	_, err = f.Global(ctx, schema.EntityPost)
	assert.ErrorIs(t, err, dberror.ErrUnknownEntity)

	_, err = f.Site(ctx, 0, schema.EntityPost)
	assert.ErrorIs(t, err, dberror.ErrInvalidSiteID)
	_, err = f.Site(ctx, -4, schema.EntityPost)
	assert.ErrorIs(t, err, dberror.ErrInvalidSiteID)

	_, err = f.Model(ctx, Scope{}, schema.EntityPost)
	assert.ErrorIs(t, err, dberror.ErrConfiguration)

	// nothing was opened or created for the failed requests
	assert.Empty(t, f.Registry().Names())
	assert.Empty(t, server.DatabaseNames())
}

func TestConnectivityErrorPropagates(t *testing.T) {
	cause := errors.New("no route to host")
	f := New(dbmanager.NewRegistry(dbmanager.ConnectorFunc(func(ctx context.Context, dbName string) (dbmanager.Conn, error) {
		return nil, cause
	})), "cms_")

	_, err := f.Global(context.Background(), schema.EntityUser)
	assert.ErrorIs(t, err, dberror.ErrConnectivity)
	assert.ErrorIs(t, err, cause)
}

func TestGlobalAndSiteScopes(t *testing.T) {
	ctx := context.Background()
	f, server := newTestFactory(t)

	users, err := f.Global(ctx, schema.EntityUser)
	require.NoError(t, err)
	assert.Equal(t, "cms_global", users.Database())

	posts, err := f.Site(ctx, 42, schema.EntityPost)
	require.NoError(t, err)
	assert.Equal(t, "cms_site42", posts.Database())
	assert.Equal(t, "Post", posts.Name())
	assert.Equal(t, "posts", posts.Definition().Collection)

	assert.Equal(t, []string{"cms_global", "cms_site42"}, server.DatabaseNames())
	assert.Equal(t, "cms_site42", f.DatabaseName(SiteScope(42)))
	assert.Equal(t, "cms_global", f.DatabaseName(GlobalScope()))
}

func TestFromContext(t *testing.T) {
	f, _ := newTestFactory(t)

	_, err := f.FromContext(context.Background(), schema.EntityPost)
	assert.ErrorIs(t, err, dberror.ErrInvalidSiteID)

	ctx := common.SetSiteIdInContext(context.Background(), 5)
	m, err := f.FromContext(ctx, schema.EntityPost)
	require.NoError(t, err)
	assert.Equal(t, "cms_site5", m.Database())

	m, err = f.FromContext(ctx, schema.EntityRole)
	require.NoError(t, err)
	assert.Equal(t, "cms_global", m.Database())

	_, err = f.FromContext(ctx, "Nope")
	assert.ErrorIs(t, err, dberror.ErrUnknownEntity)
}

func TestRegistrationCreatesIndexes(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFactory(t)

	users, err := f.Global(ctx, schema.EntityUser)
	require.NoError(t, err)
	_, err = users.Create(ctx, models.User{Email: "a@example.com", Username: "a"})
	require.NoError(t, err)
	_, err = users.Create(ctx, models.User{Email: "a@example.com", Username: "b"})
	assert.ErrorIs(t, err, dberror.ErrAlreadyExists)
}

func TestCloseForgetsBindings(t *testing.T) {
	ctx := context.Background()
	f, server := newTestFactory(t)

	m, err := f.Site(ctx, 1, schema.EntityTerm)
	require.NoError(t, err)
	_, err = m.Create(ctx, models.Term{Taxonomy: "category", Name: "News", Slug: "news"})
	require.NoError(t, err)

	require.NoError(t, f.Close(ctx))
	assert.Empty(t, f.Registry().Names())
	assert.Nil(t, f.BoundEntities("cms_site1"))
	_, err = m.Count(ctx, nil)
	assert.ErrorIs(t, err, dberror.ErrConnClosed)

	// data lives on in the backend and is reachable through a fresh binding
	m2, err := f.Site(ctx, 1, schema.EntityTerm)
	require.NoError(t, err)
	n, err := m2.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []string{"cms_site1"}, server.DatabaseNames())
}

func TestRegistryReleasePrunesBindings(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFactory(t)

	_, err := f.Site(ctx, 1, schema.EntityTerm)
	require.NoError(t, err)
	_, err = f.Site(ctx, 1, schema.EntityPost)
	require.NoError(t, err)
	_, err = f.Site(ctx, 2, schema.EntityTerm)
	require.NoError(t, err)
	require.Len(t, f.bindings, 3)

	require.NoError(t, f.Registry().ReleaseAll(ctx))
	assert.Nil(t, f.BoundEntities("cms_site1"))

	m, err := f.Site(ctx, 1, schema.EntityTerm)
	require.NoError(t, err)
	_, err = m.Create(ctx, models.Term{Taxonomy: "category", Name: "News", Slug: "news"})
	require.NoError(t, err)

	assert.Len(t, f.bindings, 1)
	assert.Equal(t, []string{schema.EntityTerm}, f.BoundEntities("cms_site1"))
	assert.Nil(t, f.BoundEntities("cms_site2"))
}

func TestCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	server := dbmanager.NewMemoryServer()
	f := New(dbmanager.NewRegistry(dbmanager.ConnectorFunc(func(ctx context.Context, dbName string) (dbmanager.Conn, error) {
		<-release
		return server.Connect(ctx, dbName)
	})), "cms_")
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Site(ctx, 1, schema.EntityPost)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
