package dbmanager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/sitestore/internal/common/apperrors"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
)

// gatedConnector counts Connect calls and blocks each one until release is closed.
type gatedConnector struct {
	server  *MemoryServer
	calls   atomic.Int32
	release chan struct{}
	fail    atomic.Bool
}

func newGatedConnector() *gatedConnector {
	return &gatedConnector{server: NewMemoryServer(), release: make(chan struct{})}
}

func (g *gatedConnector) Connect(ctx context.Context, dbName string) (Conn, error) {
	g.calls.Add(1)
	<-g.release
	if g.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return g.server.Connect(ctx, dbName)
}

func TestRegistryReturnsSameHandle(t *testing.T) {
	r := NewRegistry(NewMemoryServer())
	ctx := context.Background()

	c1, err := r.Acquire(ctx, "cms_global")
	require.NoError(t, err)
	c2, err := r.Acquire(ctx, "cms_global")
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	c3, err := r.Acquire(ctx, "cms_site1")
	require.NoError(t, err)
	assert.NotSame(t, c1, c3)
	assert.Equal(t, "cms_site1", c3.Name())

	assert.Equal(t, []string{"cms_global", "cms_site1"}, r.Names())
	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.ConnectAttempts)
	assert.Equal(t, uint64(1), stats.CacheHits)
	assert.Equal(t, 2, stats.Open)
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	r := NewRegistry(NewMemoryServer())
	_, err := r.Acquire(context.Background(), "")
	assert.ErrorIs(t, err, dberror.ErrInvalidInput)
}

func TestRegistryCoalescesConcurrentAcquire(t *testing.T) {
	g := newGatedConnector()
	r := NewRegistry(g)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	conns := make([]Conn, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conns[i], errs[i] = r.Acquire(ctx, "cms_site9")
		}(i)
	}

	// wait for the single establishment to start, give the rest time to queue behind it
	require.Eventually(t, func() bool { return g.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(g.release)
	wg.Wait()

	assert.Equal(t, int32(1), g.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, conns[0], conns[i])
	}
}

func TestRegistryDoesNotCacheFailure(t *testing.T) {
	g := newGatedConnector()
	close(g.release)
	g.fail.Store(true)
	r := NewRegistry(g)
	ctx := context.Background()

	_, err := r.Acquire(ctx, "cms_site2")
	require.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrConnectivity)
	var appErr apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.ErrorAll(), "connection refused")
	_, ok := r.Cached("cms_site2")
	assert.False(t, ok)

	g.fail.Store(false)
	c, err := r.Acquire(ctx, "cms_site2")
	require.NoError(t, err)
	assert.Equal(t, "cms_site2", c.Name())
	assert.Equal(t, int32(2), g.calls.Load())

	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.ConnectAttempts)
	assert.Equal(t, uint64(1), stats.ConnectFailures)
}

func TestRegistryKeepsBackendError(t *testing.T) {
	r := NewRegistry(ConnectorFunc(func(ctx context.Context, dbName string) (Conn, error) {
		return nil, dberror.ErrConfiguration.Msg("bad driver")
	}))
	_, err := r.Acquire(context.Background(), "cms_global")
	assert.ErrorIs(t, err, dberror.ErrConfiguration)
	assert.NotErrorIs(t, err, dberror.ErrConnectivity)
}

func TestRegistryCallerCancellation(t *testing.T) {
	g := newGatedConnector()
	r := NewRegistry(g)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Acquire(ctx, "cms_site4")
		done <- err
	}()
	require.Eventually(t, func() bool { return g.calls.Load() == 1 }, time.Second, time.Millisecond)

	// a second caller keeps waiting on the same attempt
	other := make(chan Conn, 1)
	go func() {
		c, err := r.Acquire(context.Background(), "cms_site4")
		if err == nil {
			other <- c
		}
		close(other)
	}()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(g.release)
	c, ok := <-other
	require.True(t, ok)
	assert.Equal(t, "cms_site4", c.Name())
	assert.Equal(t, int32(1), g.calls.Load())

	cached, ok := r.Cached("cms_site4")
	require.True(t, ok)
	assert.Same(t, c, cached)
}

func TestRegistryReleaseAll(t *testing.T) {
	r := NewRegistry(NewMemoryServer())
	ctx := context.Background()

	c, err := r.Acquire(ctx, "cms_global")
	require.NoError(t, err)
	_, err = r.Acquire(ctx, "cms_site1")
	require.NoError(t, err)

	require.NoError(t, r.ReleaseAll(ctx))
	assert.Empty(t, r.Names())
	assert.ErrorIs(t, c.Ping(ctx), dberror.ErrConnClosed)

	c2, err := r.Acquire(ctx, "cms_global")
	require.NoError(t, err)
	assert.NotSame(t, c, c2)
	assert.NoError(t, c2.Ping(ctx))
}

type closeFailConn struct {
	Conn
}

func (c closeFailConn) Close(ctx context.Context) error {
	return errors.New("close failed: " + c.Name())
}

func TestRegistryReleaseAllJoinsErrors(t *testing.T) {
	server := NewMemoryServer()
	r := NewRegistry(ConnectorFunc(func(ctx context.Context, dbName string) (Conn, error) {
		c, _ := server.Connect(ctx, dbName)
		return closeFailConn{c}, nil
	}))
	ctx := context.Background()
	_, err := r.Acquire(ctx, "cms_site1")
	require.NoError(t, err)
	_, err = r.Acquire(ctx, "cms_site2")
	require.NoError(t, err)

	err = r.ReleaseAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cms_site1")
	assert.Contains(t, err.Error(), "cms_site2")
	assert.Empty(t, r.Names())
}
