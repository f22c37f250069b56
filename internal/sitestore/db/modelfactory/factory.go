// Package modelfactory hands out schema bound accessors for (scope, entity) pairs. Each
// entity is registered at most once per connection; later requests get the same binding.
package modelfactory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/sitestore/internal/sitestore/common"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"github.com/tansive/sitestore/internal/sitestore/db/dbmanager"
	"github.com/tansive/sitestore/internal/sitestore/db/schema"
	"github.com/tansive/sitestore/pkg/types"
	"golang.org/x/sync/singleflight"
)

// Scope selects the database an accessor is bound to.
type Scope struct {
	kind   schema.Scope
	siteId types.SiteId
}

// GlobalScope addresses the shared global database.
func GlobalScope() Scope {
	return Scope{kind: schema.ScopeGlobal}
}

// SiteScope addresses the database of one site.
func SiteScope(id types.SiteId) Scope {
	return Scope{kind: schema.ScopeSite, siteId: id}
}

func (s Scope) SiteId() types.SiteId {
	return s.siteId
}

func (s Scope) String() string {
	if s.kind == schema.ScopeSite {
		return "site " + s.siteId.String()
	}
	return s.kind.String()
}

type bindingKey struct {
	conn   dbmanager.Conn
	entity string
}

type Factory struct {
	registry *dbmanager.Registry
	prefix   string
	now      func() time.Time

	mu       sync.Mutex
	bindings map[bindingKey]*binding
	flight   singleflight.Group
}

// binding is the registered form of one entity on one connection.
type binding struct {
	def        *schema.Definition
	validator  *schema.Validator
	conn       dbmanager.Conn
	collection dbmanager.Collection
}

// New returns a factory resolving database names with prefix through registry.
func New(registry *dbmanager.Registry, prefix string) *Factory {
	return &Factory{
		registry: registry,
		prefix:   prefix,
		now:      func() time.Time { return time.Now().UTC() },
		bindings: make(map[bindingKey]*binding),
	}
}

// Registry returns the connection registry backing the factory.
func (f *Factory) Registry() *dbmanager.Registry {
	return f.registry
}

// Prefix returns the database name prefix.
func (f *Factory) Prefix() string {
	return f.prefix
}

// DatabaseName returns the database a scope resolves to.
func (f *Factory) DatabaseName(scope Scope) string {
	if scope.kind == schema.ScopeGlobal {
		return dbmanager.GlobalDatabaseName(f.prefix)
	}
	return dbmanager.SiteDatabaseName(f.prefix, scope.siteId)
}

// Model returns the accessor for entity in scope, registering the entity on the scope's
// connection on first use.
func (f *Factory) Model(ctx context.Context, scope Scope, entity string) (*Model, error) {
	def, err := schema.Lookup(entity)
	if err != nil {
		log.Ctx(ctx).Error().Str("entity", entity).Msg("unknown entity requested")
		return nil, err
	}
	switch scope.kind {
	case schema.ScopeGlobal, schema.ScopeSite:
	default:
		return nil, dberror.ErrConfiguration.Msg("scope not set")
	}
	if def.Scope != scope.kind {
		log.Ctx(ctx).Error().Str("entity", entity).Str("scope", scope.String()).Msg("entity requested in wrong scope")
		return nil, dberror.ErrUnknownEntity.Msg(entity + " is not a " + scope.kind.String() + " entity")
	}
	if scope.kind == schema.ScopeSite && scope.siteId <= 0 {
		return nil, dberror.ErrInvalidSiteID.Msg("invalid site id " + scope.siteId.String())
	}

	conn, err := f.registry.Acquire(ctx, f.DatabaseName(scope))
	if err != nil {
		return nil, err
	}
	b, err := f.bind(ctx, conn, def)
	if err != nil {
		return nil, err
	}
	return &Model{binding: b, now: f.now}, nil
}

// Global returns the accessor for a global entity.
func (f *Factory) Global(ctx context.Context, entity string) (*Model, error) {
	return f.Model(ctx, GlobalScope(), entity)
}

// Site returns the accessor for a site entity of site id.
func (f *Factory) Site(ctx context.Context, id types.SiteId, entity string) (*Model, error) {
	return f.Model(ctx, SiteScope(id), entity)
}

// FromContext picks the scope from the entity definition. Site entities use the site id
// carried by ctx.
func (f *Factory) FromContext(ctx context.Context, entity string) (*Model, error) {
	def, err := schema.Lookup(entity)
	if err != nil {
		return nil, err
	}
	if def.Scope == schema.ScopeGlobal {
		return f.Global(ctx, entity)
	}
	id, ok := common.SiteIdFromContext(ctx)
	if !ok {
		return nil, dberror.ErrInvalidSiteID.Msg("no site id in context")
	}
	return f.Site(ctx, id, entity)
}

func (f *Factory) lookup(key bindingKey) (*binding, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bindings[key]
	return b, ok
}

// bind returns the binding of def on conn. Concurrent first requests share one registration,
// and a failed registration is not remembered.
func (f *Factory) bind(ctx context.Context, conn dbmanager.Conn, def *schema.Definition) (*binding, error) {
	key := bindingKey{conn: conn, entity: def.Name}
	if b, ok := f.lookup(key); ok {
		return b, nil
	}

	ch := f.flight.DoChan(conn.Name()+"/"+def.Name, func() (any, error) {
		if b, ok := f.lookup(key); ok {
			return b, nil
		}
		return f.register(context.WithoutCancel(ctx), key, def)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*binding), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Factory) register(ctx context.Context, key bindingKey, def *schema.Definition) (*binding, error) {
	validator, err := def.Validator()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("entity", def.Name).Msg("invalid entity definition")
		return nil, err
	}
	coll := key.conn.Collection(def.Collection)
	if err := key.conn.EnsureCollection(ctx, def.Collection); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("db", key.conn.Name()).Str("entity", def.Name).Msg("failed to create collection")
		return nil, err
	}
	if err := coll.EnsureIndexes(ctx, def.Indexes); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("db", key.conn.Name()).Str("entity", def.Name).Msg("failed to create indexes")
		return nil, err
	}

	b := &binding{def: def, validator: validator, conn: key.conn, collection: coll}
	f.mu.Lock()
	f.pruneLocked()
	f.bindings[key] = b
	f.mu.Unlock()
	log.Ctx(ctx).Debug().Str("db", key.conn.Name()).Str("entity", def.Name).Msg("entity registered")
	return b, nil
}

// pruneLocked drops bindings whose connection the registry no longer caches, which happens
// when the registry is released without going through Close. f.mu must be held.
func (f *Factory) pruneLocked() {
	for key := range f.bindings {
		if c, ok := f.registry.Cached(key.conn.Name()); !ok || c != key.conn {
			delete(f.bindings, key)
		}
	}
}

// BoundEntities lists the entities registered on the cached connection named dbName.
func (f *Factory) BoundEntities(dbName string) []string {
	conn, ok := f.registry.Cached(dbName)
	if !ok {
		return nil
	}
	f.mu.Lock()
	var names []string
	for key := range f.bindings {
		if key.conn == conn {
			names = append(names, key.entity)
		}
	}
	f.mu.Unlock()
	sort.Strings(names)
	return names
}

// Close forgets every binding and releases all connections.
func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	f.bindings = make(map[bindingKey]*binding)
	f.mu.Unlock()
	return f.registry.ReleaseAll(ctx)
}
