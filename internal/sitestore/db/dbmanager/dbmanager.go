// Package dbmanager owns database connections: the Connector backends and the process wide
// Registry that caches one Conn per database name.
package dbmanager

import (
	"context"
	"strings"

	"github.com/tansive/sitestore/internal/sitestore/config"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
)

// Document is a JSON shaped record: values are string, float64, bool, nil,
// []any or map[string]any. Every backend reads and writes documents in this form.
type Document map[string]any

// Filter matches documents whose fields equal the given values. Keys may be dotted paths.
// For array fields a scalar value matches when any element equals it.
type Filter map[string]any

// IdField is the primary key of every document.
const IdField = "_id"

type SortField struct {
	Field      string
	Descending bool
}

type FindOptions struct {
	Sort  []SortField // defaults to _id ascending, i.e. creation order
	Limit int64
	Skip  int64
}

// IndexSpec describes a secondary index on one collection.
type IndexSpec struct {
	Name   string
	Fields []string
	Unique bool
}

// indexName returns idx.Name, or a name derived from the collection and fields.
func indexName(coll string, idx IndexSpec) string {
	if idx.Name != "" {
		return idx.Name
	}
	name := strings.ReplaceAll(strings.Join(idx.Fields, "_"), ".", "_")
	if coll != "" {
		name = coll + "_" + name
	}
	if idx.Unique {
		name += "_uniq"
	}
	return name + "_idx"
}

type Collection interface {
	// Name returns the collection name.
	Name() string
	// InsertOne stores doc. The document must carry a string _id.
	InsertOne(ctx context.Context, doc Document) error
	// InsertMany stores docs in order and stops at the first failure.
	InsertMany(ctx context.Context, docs []Document) error
	// FindOne returns the first match in _id order, or dberror.ErrNotFound.
	FindOne(ctx context.Context, filter Filter) (Document, error)
	// Find returns all matches honoring opts.
	Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error)
	// Count returns the number of matches.
	Count(ctx context.Context, filter Filter) (int64, error)
	// UpdateOne sets the given fields on the first match and returns the matched count.
	UpdateOne(ctx context.Context, filter Filter, set Document) (int64, error)
	// DeleteMany removes every match and returns the removed count.
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
	// EnsureIndexes creates any missing index. Existing indexes are left as they are.
	EnsureIndexes(ctx context.Context, indexes []IndexSpec) error
}

// Conn is a live handle to one named database.
type Conn interface {
	// Name returns the database name this connection is bound to.
	Name() string
	// Collection returns a handle to the named collection. It performs no I/O.
	Collection(name string) Collection
	// EnsureCollection creates the collection if it does not exist yet.
	EnsureCollection(ctx context.Context, name string) error
	// ListCollections returns the collection names present in the database, sorted.
	ListCollections(ctx context.Context) ([]string, error)
	// Ping verifies the connection is usable.
	Ping(ctx context.Context) error
	// Close releases the connection. Further use fails with dberror.ErrConnClosed.
	Close(ctx context.Context) error
}

// Connector establishes connections. Implementations apply their own connect timeout and
// never retry.
type Connector interface {
	Connect(ctx context.Context, dbName string) (Conn, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, dbName string) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context, dbName string) (Conn, error) {
	return f(ctx, dbName)
}

// NewConnector returns the backend selected by cfg.Driver.
func NewConnector(cfg config.DatabaseConfig) (Connector, error) {
	switch cfg.Driver {
	case config.DriverPostgresql:
		return NewPostgresqlConnector(cfg.Postgresql, cfg.ConnectTimeoutDuration(), cfg.OperationTimeoutDuration()), nil
	case config.DriverMongodb:
		return NewMongodbConnector(cfg.Mongodb, cfg.ConnectTimeoutDuration(), cfg.OperationTimeoutDuration()), nil
	case config.DriverMemory:
		return NewMemoryServer(), nil
	}
	return nil, dberror.ErrConfiguration.Msg("unsupported database driver: " + cfg.Driver)
}
