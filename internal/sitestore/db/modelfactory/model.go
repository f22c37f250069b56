package modelfactory

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/sitestore/internal/common/uuidv7utils"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"github.com/tansive/sitestore/internal/sitestore/db/dbmanager"
	"github.com/tansive/sitestore/internal/sitestore/db/schema"
)

// Model is the accessor for one entity on one connection. Models for the same pair share the
// underlying collection.
type Model struct {
	binding *binding
	now     func() time.Time
}

// Name returns the entity name.
func (m *Model) Name() string {
	return m.binding.def.Name
}

func (m *Model) Definition() *schema.Definition {
	return m.binding.def
}

// Database returns the name of the database the model is bound to.
func (m *Model) Database() string {
	return m.binding.conn.Name()
}

func (m *Model) Collection() dbmanager.Collection {
	return m.binding.collection
}

// prepare turns v into a complete, validated document ready for insert.
func (m *Model) prepare(v any, now string) (dbmanager.Document, error) {
	doc, err := dbmanager.ToDocument(v)
	if err != nil {
		return nil, err
	}
	if doc.Id() == "" {
		doc[dbmanager.IdField] = uuidv7utils.NewDocumentId()
	}
	if m.binding.def.Timestamps {
		doc[schema.FieldCreatedAt] = now
		doc[schema.FieldUpdatedAt] = now
	}
	if err := m.binding.def.ApplyDefaults(doc); err != nil {
		return nil, err
	}
	if err := m.binding.validator.Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *Model) timestamp() string {
	return m.now().Format(time.RFC3339Nano)
}

// Create validates and stores v, which may be a model struct, a map or a Document, and
// returns the stored document.
func (m *Model) Create(ctx context.Context, v any) (dbmanager.Document, error) {
	doc, err := m.prepare(v, m.timestamp())
	if err != nil {
		return nil, err
	}
	if err := m.binding.collection.InsertOne(ctx, doc); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("db", m.Database()).Str("entity", m.Name()).Msg("failed to create document")
		return nil, err
	}
	return doc, nil
}

// CreateMany validates every value before storing any of them.
func (m *Model) CreateMany(ctx context.Context, vs ...any) ([]dbmanager.Document, error) {
	now := m.timestamp()
	docs := make([]dbmanager.Document, 0, len(vs))
	for _, v := range vs {
		doc, err := m.prepare(v, now)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return docs, nil
	}
	if err := m.binding.collection.InsertMany(ctx, docs); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("db", m.Database()).Str("entity", m.Name()).Int("count", len(docs)).Msg("failed to create documents")
		return nil, err
	}
	return docs, nil
}

func (m *Model) FindByID(ctx context.Context, id string) (dbmanager.Document, error) {
	if id == "" {
		return nil, dberror.ErrInvalidInput.Msg("empty id")
	}
	return m.binding.collection.FindOne(ctx, dbmanager.Filter{dbmanager.IdField: id})
}

func (m *Model) FindOne(ctx context.Context, filter dbmanager.Filter) (dbmanager.Document, error) {
	return m.binding.collection.FindOne(ctx, filter)
}

func (m *Model) Find(ctx context.Context, filter dbmanager.Filter, opts dbmanager.FindOptions) ([]dbmanager.Document, error) {
	return m.binding.collection.Find(ctx, filter, opts)
}

func (m *Model) Count(ctx context.Context, filter dbmanager.Filter) (int64, error) {
	return m.binding.collection.Count(ctx, filter)
}

// UpdateByID sets the given top level fields on one document. Fields not named are kept.
func (m *Model) UpdateByID(ctx context.Context, id string, set any) error {
	if id == "" {
		return dberror.ErrInvalidInput.Msg("empty id")
	}
	doc, err := dbmanager.ToDocument(set)
	if err != nil {
		return err
	}
	for k := range doc {
		if strings.Contains(k, ".") {
			return dberror.ErrInvalidInput.Msg("nested field updates are not supported: " + k)
		}
	}
	if _, ok := doc[dbmanager.IdField]; ok {
		return dberror.ErrInvalidInput.Msg("_id cannot be updated")
	}
	delete(doc, schema.FieldCreatedAt)
	if m.binding.def.Timestamps {
		doc[schema.FieldUpdatedAt] = m.timestamp()
	}
	if len(doc) == 0 {
		return dberror.ErrInvalidInput.Msg("empty update")
	}
	if err := m.binding.validator.ValidatePartial(doc); err != nil {
		return err
	}

	n, err := m.binding.collection.UpdateOne(ctx, dbmanager.Filter{dbmanager.IdField: id}, doc)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("db", m.Database()).Str("entity", m.Name()).Msg("failed to update document")
		return err
	}
	if n == 0 {
		return dberror.ErrNotFound.Msg(m.Name() + " " + id + " not found")
	}
	return nil
}

func (m *Model) DeleteByID(ctx context.Context, id string) error {
	if id == "" {
		return dberror.ErrInvalidInput.Msg("empty id")
	}
	n, err := m.binding.collection.DeleteMany(ctx, dbmanager.Filter{dbmanager.IdField: id})
	if err != nil {
		return err
	}
	if n == 0 {
		return dberror.ErrNotFound.Msg(m.Name() + " " + id + " not found")
	}
	return nil
}

func (m *Model) DeleteMany(ctx context.Context, filter dbmanager.Filter) (int64, error) {
	return m.binding.collection.DeleteMany(ctx, filter)
}

// EnsureIndexes creates the definition's indexes if they are missing.
func (m *Model) EnsureIndexes(ctx context.Context) error {
	return m.binding.collection.EnsureIndexes(ctx, m.binding.def.Indexes)
}
