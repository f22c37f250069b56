package dbmanager

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"golang.org/x/sync/singleflight"
)

// Registry caches one Conn per database name. Concurrent first requests for the same name
// share a single Connect call; a failed attempt leaves nothing behind, so the next Acquire
// starts over.
type Registry struct {
	connector Connector

	mu    sync.Mutex
	conns map[string]Conn

	// in-flight establishment, keyed by database name
	flight singleflight.Group

	connectAttempts atomic.Uint64
	connectFailures atomic.Uint64
	cacheHits       atomic.Uint64
}

// RegistryStats is a snapshot of the registry counters.
type RegistryStats struct {
	ConnectAttempts uint64
	ConnectFailures uint64
	CacheHits       uint64
	Open            int
}

func NewRegistry(connector Connector) *Registry {
	return &Registry{
		connector: connector,
		conns:     make(map[string]Conn),
	}
}

// Acquire returns the cached connection for dbName, establishing it on first use.
// The establishment is detached from the cancellation of any single caller; a caller whose
// ctx ends stops waiting and gets ctx.Err() while the others keep waiting.
func (r *Registry) Acquire(ctx context.Context, dbName string) (Conn, error) {
	if dbName == "" {
		return nil, dberror.ErrInvalidInput.Msg("empty database name")
	}
	if c, ok := r.Cached(dbName); ok {
		r.cacheHits.Add(1)
		return c, nil
	}

	ch := r.flight.DoChan(dbName, func() (any, error) {
		// an earlier flight may have completed between the cache check and now
		if c, ok := r.Cached(dbName); ok {
			return c, nil
		}
		return r.connect(context.WithoutCancel(ctx), dbName)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) connect(ctx context.Context, dbName string) (Conn, error) {
	r.connectAttempts.Add(1)
	c, err := r.connector.Connect(ctx, dbName)
	if err != nil {
		r.connectFailures.Add(1)
		log.Ctx(ctx).Error().Err(err).Str("db", dbName).Msg("failed to connect to database")
		if !errors.Is(err, dberror.ErrDatabase) {
			err = dberror.ErrConnectivity.Suffix(dbName).Err(err).SetExpandError(true)
		}
		return nil, err
	}

	r.mu.Lock()
	r.conns[dbName] = c
	r.mu.Unlock()
	log.Ctx(ctx).Debug().Str("db", dbName).Msg("database connection established")
	return c, nil
}

// Cached returns the connection for dbName without establishing one.
func (r *Registry) Cached(dbName string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[dbName]
	return c, ok
}

// Names returns the names of all cached connections, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.conns))
	for name := range r.conns {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)
	return names
}

// ReleaseAll closes every cached connection and empties the cache. It is meant for process
// shutdown and test teardown, never for request handling. Close errors are joined.
func (r *Registry) ReleaseAll(ctx context.Context) error {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Conn)
	r.mu.Unlock()

	var errs []error
	for name, c := range conns {
		if err := c.Close(ctx); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("db", name).Msg("failed to close database connection")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns the current counters.
func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	open := len(r.conns)
	r.mu.Unlock()
	return RegistryStats{
		ConnectAttempts: r.connectAttempts.Load(),
		ConnectFailures: r.connectFailures.Load(),
		CacheHits:       r.cacheHits.Load(),
		Open:            open,
	}
}
