package dbmanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/tansive/sitestore/internal/sitestore/config"
	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
)

const (
	pgUniqueViolation   = "23505"
	pgUndefinedTable    = "42P01"
	pgDuplicateDatabase = "42P04"
)

// postgresqlConnector maps every database name to its own PostgreSQL database, creating it
// on first connect. Collections are tables of (id text, doc jsonb).
type postgresqlConnector struct {
	cfg              config.PostgresqlConfig
	connectTimeout   time.Duration
	operationTimeout time.Duration
	open             func(driverName, dsn string) (*sql.DB, error)
}

func NewPostgresqlConnector(cfg config.PostgresqlConfig, connectTimeout, operationTimeout time.Duration) Connector {
	return &postgresqlConnector{
		cfg:              cfg,
		connectTimeout:   connectTimeout,
		operationTimeout: operationTimeout,
		open:             sql.Open,
	}
}

func (p *postgresqlConnector) Connect(ctx context.Context, dbName string) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	if err := p.ensureDatabase(ctx, dbName); err != nil {
		return nil, err
	}

	// Open a new database connection using the "pgx" driver.
	db, err := p.open("pgx", p.dsn(dbName))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("db", dbName).Msg("failed to open db")
		return nil, dberror.ErrConnectivity.Suffix(dbName).Err(err)
	}
	if p.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.cfg.MaxOpenConns)
	}

	// Ping the database to see if the connection is valid.
	if err := db.PingContext(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("db", dbName).Msg("failed to ping db")
		db.Close()
		return nil, dberror.ErrConnectivity.Suffix(dbName).Err(err)
	}
	return newPostgresqlConn(db, dbName), nil
}

// dsn carries the server side timeouts as runtime parameters.
func (p *postgresqlConnector) dsn(dbName string) string {
	ms := p.operationTimeout.Milliseconds()
	return fmt.Sprintf("%s statement_timeout=%d lock_timeout=%d", p.cfg.DSN(dbName), ms, ms)
}

func (p *postgresqlConnector) ensureDatabase(ctx context.Context, dbName string) error {
	admin, err := p.open("pgx", p.cfg.DSN(p.cfg.AdminDb))
	if err != nil {
		return dberror.ErrConnectivity.Suffix(p.cfg.AdminDb).Err(err)
	}
	defer admin.Close()

	var one int
	err = admin.QueryRowContext(ctx, `SELECT 1 FROM pg_database WHERE datname = $1`, dbName).Scan(&one)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Ctx(ctx).Error().Err(err).Str("db", dbName).Msg("failed to look up database")
		return dberror.ErrConnectivity.Suffix(p.cfg.AdminDb).Err(err)
	}
	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName)); err != nil {
		// another process won the race
		if isPgError(err, pgDuplicateDatabase) {
			return nil
		}
		log.Ctx(ctx).Error().Err(err).Str("db", dbName).Msg("failed to create database")
		return dberror.ErrDatabase.MsgErr("unable to create database "+dbName, err)
	}
	log.Ctx(ctx).Info().Str("db", dbName).Msg("created database")
	return nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

type postgresqlConn struct {
	db     *sql.DB
	name   string
	closed atomic.Bool
}

func newPostgresqlConn(db *sql.DB, name string) *postgresqlConn {
	return &postgresqlConn{db: db, name: name}
}

func (c *postgresqlConn) Name() string {
	return c.name
}

func (c *postgresqlConn) Collection(name string) Collection {
	return &postgresqlCollection{conn: c, name: name, table: pq.QuoteIdentifier(name)}
}

func (c *postgresqlConn) EnsureCollection(ctx context.Context, name string) error {
	if c.closed.Load() {
		return dberror.ErrConnClosed
	}
	query := `CREATE TABLE IF NOT EXISTS ` + pq.QuoteIdentifier(name) + ` (id text PRIMARY KEY, doc jsonb NOT NULL)`
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("db", c.name).Str("collection", name).Msg("failed to create table")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

func (c *postgresqlConn) ListCollections(ctx context.Context) ([]string, error) {
	if c.closed.Load() {
		return nil, dberror.ErrConnClosed
	}
	rows, err := c.db.QueryContext(ctx, `SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname = 'public' ORDER BY tablename`)
	if err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	return names, nil
}

func (c *postgresqlConn) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return dberror.ErrConnClosed
	}
	if err := c.db.PingContext(ctx); err != nil {
		return dberror.ErrConnectivity.Suffix(c.name).Err(err)
	}
	return nil
}

func (c *postgresqlConn) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.db.Close()
}

type postgresqlCollection struct {
	conn  *postgresqlConn
	name  string
	table string // quoted
}

func (pc *postgresqlCollection) Name() string {
	return pc.name
}

func (pc *postgresqlCollection) InsertOne(ctx context.Context, doc Document) error {
	return pc.InsertMany(ctx, []Document{doc})
}

// InsertMany writes docs in one transaction. A missing table is created and the batch
// retried once.
func (pc *postgresqlCollection) InsertMany(ctx context.Context, docs []Document) error {
	if pc.conn.closed.Load() {
		return dberror.ErrConnClosed
	}
	err := pc.insertTx(ctx, docs)
	if isPgError(err, pgUndefinedTable) {
		if err := pc.conn.EnsureCollection(ctx, pc.name); err != nil {
			return err
		}
		err = pc.insertTx(ctx, docs)
	}
	if err == nil {
		return nil
	}
	if isPgError(err, pgUniqueViolation) {
		return dberror.ErrAlreadyExists.MsgErr(pc.name+": duplicate key", err)
	}
	if errors.Is(err, dberror.ErrDatabase) {
		return err
	}
	log.Ctx(ctx).Error().Err(err).Str("db", pc.conn.name).Str("collection", pc.name).Msg("failed to insert documents")
	return dberror.ErrDatabase.Err(err)
}

func (pc *postgresqlCollection) insertTx(ctx context.Context, docs []Document) (err error) {
	tx, err := pc.conn.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				log.Ctx(ctx).Error().Err(rollbackErr).Msg("failed to rollback transaction")
			}
		}
	}()

	query := `INSERT INTO ` + pc.table + ` (id, doc) VALUES ($1, $2::jsonb)`
	for _, doc := range docs {
		id := doc.Id()
		if id == "" {
			return dberror.ErrInvalidInput.Msg("document has no _id")
		}
		b, errJson := json.Marshal(doc)
		if errJson != nil {
			return dberror.ErrInvalidInput.MsgErr("document is not serializable", errJson)
		}
		if _, err = tx.ExecContext(ctx, query, id, string(b)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (pc *postgresqlCollection) FindOne(ctx context.Context, filter Filter) (Document, error) {
	docs, err := pc.Find(ctx, filter, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, dberror.ErrNotFound.Msg(pc.name + ": no matching document")
	}
	return docs[0], nil
}

func (pc *postgresqlCollection) Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error) {
	if pc.conn.closed.Load() {
		return nil, dberror.ErrConnClosed
	}
	where, args, err := pgWhere(filter, 1)
	if err != nil {
		return nil, err
	}
	query := `SELECT doc FROM ` + pc.table + ` WHERE ` + where + ` ORDER BY ` + pgOrderBy(opts.Sort)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Skip > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Skip)
	}

	rows, err := pc.conn.db.QueryContext(ctx, query, args...)
	if err != nil {
		// reading a collection that was never written behaves as an empty one
		if isPgError(err, pgUndefinedTable) {
			return []Document{}, nil
		}
		log.Ctx(ctx).Error().Err(err).Str("db", pc.conn.name).Str("collection", pc.name).Msg("failed to query documents")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var raw pgtype.JSONB
		if err := rows.Scan(&raw); err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		var doc Document
		if err := json.Unmarshal(raw.Bytes, &doc); err != nil {
			return nil, dberror.ErrDatabase.MsgErr("corrupt document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	return docs, nil
}

func (pc *postgresqlCollection) Count(ctx context.Context, filter Filter) (int64, error) {
	if pc.conn.closed.Load() {
		return 0, dberror.ErrConnClosed
	}
	where, args, err := pgWhere(filter, 1)
	if err != nil {
		return 0, err
	}
	var n int64
	err = pc.conn.db.QueryRowContext(ctx, `SELECT count(*) FROM `+pc.table+` WHERE `+where, args...).Scan(&n)
	if err != nil {
		if isPgError(err, pgUndefinedTable) {
			return 0, nil
		}
		return 0, dberror.ErrDatabase.Err(err)
	}
	return n, nil
}

func (pc *postgresqlCollection) UpdateOne(ctx context.Context, filter Filter, set Document) (int64, error) {
	if pc.conn.closed.Load() {
		return 0, dberror.ErrConnClosed
	}
	if _, ok := set[IdField]; ok {
		return 0, dberror.ErrInvalidInput.Msg("_id cannot be updated")
	}
	if len(set) == 0 {
		return 0, dberror.ErrInvalidInput.Msg("empty update")
	}
	where, args, err := pgWhere(filter, 1)
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	expr := "doc"
	for _, k := range keys {
		b, err := json.Marshal(set[k])
		if err != nil {
			return 0, dberror.ErrInvalidInput.MsgErr("value is not serializable", err)
		}
		args = append(args, string(b))
		expr = fmt.Sprintf("jsonb_set(%s, %s, $%d::jsonb, true)", expr, pgPath(k), len(args))
	}

	query := `UPDATE ` + pc.table + ` SET doc = ` + expr +
		` WHERE id = (SELECT id FROM ` + pc.table + ` WHERE ` + where + ` ORDER BY id LIMIT 1)`
	res, err := pc.conn.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isPgError(err, pgUndefinedTable) {
			return 0, nil
		}
		if isPgError(err, pgUniqueViolation) {
			return 0, dberror.ErrAlreadyExists.MsgErr(pc.name+": duplicate key", err)
		}
		return 0, dberror.ErrDatabase.Err(err)
	}
	return res.RowsAffected()
}

func (pc *postgresqlCollection) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	if pc.conn.closed.Load() {
		return 0, dberror.ErrConnClosed
	}
	where, args, err := pgWhere(filter, 1)
	if err != nil {
		return 0, err
	}
	res, err := pc.conn.db.ExecContext(ctx, `DELETE FROM `+pc.table+` WHERE `+where, args...)
	if err != nil {
		if isPgError(err, pgUndefinedTable) {
			return 0, nil
		}
		return 0, dberror.ErrDatabase.Err(err)
	}
	return res.RowsAffected()
}

func (pc *postgresqlCollection) EnsureIndexes(ctx context.Context, indexes []IndexSpec) error {
	if pc.conn.closed.Load() {
		return dberror.ErrConnClosed
	}
	for _, idx := range indexes {
		cols := make([]string, len(idx.Fields))
		for i, f := range idx.Fields {
			if f == IdField {
				cols[i] = "id"
				continue
			}
			cols[i] = "(doc #>> " + pgPath(f) + ")"
		}
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		query := `CREATE ` + unique + `INDEX IF NOT EXISTS ` + pq.QuoteIdentifier(indexName(pc.name, idx)) +
			` ON ` + pc.table + ` (` + strings.Join(cols, ", ") + `)`
		if _, err := pc.conn.db.ExecContext(ctx, query); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("db", pc.conn.name).Str("collection", pc.name).Msg("failed to create index")
			if isPgError(err, pgUniqueViolation) {
				return dberror.ErrAlreadyExists.MsgErr(pc.name+": existing documents violate unique index", err)
			}
			return dberror.ErrDatabase.Err(err)
		}
	}
	return nil
}

// pgWhere renders filter as a WHERE clause whose placeholders start at $firstArg.
// _id is matched against the primary key. A scalar is matched at its path, where jsonb
// containment lets it equal the value or any element of an array. Objects, arrays and
// null are matched by containment on the whole document.
func pgWhere(filter Filter, firstArg int) (string, []any, error) {
	filter, err := NormalizeFilter(filter)
	if err != nil {
		return "", nil, err
	}
	var clauses []string
	var args []any
	if v, ok := filter[IdField]; ok {
		id, ok := v.(string)
		if !ok {
			return "", nil, dberror.ErrInvalidInput.Msg("_id filter must be a string")
		}
		args = append(args, id)
		clauses = append(clauses, fmt.Sprintf("id = $%d", firstArg+len(args)-1))
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		if k != IdField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	rest := make(map[string]any)
	for _, k := range keys {
		v := filter[k]
		switch v.(type) {
		case string, float64, bool:
		default:
			rest[k] = v
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", nil, dberror.ErrInvalidInput.MsgErr("filter is not serializable", err)
		}
		args = append(args, string(b))
		clauses = append(clauses, fmt.Sprintf("doc #> %s @> $%d::jsonb", pgPath(k), firstArg+len(args)-1))
	}
	if len(rest) > 0 {
		b, err := json.Marshal(nestDotted(rest))
		if err != nil {
			return "", nil, dberror.ErrInvalidInput.MsgErr("filter is not serializable", err)
		}
		args = append(args, string(b))
		clauses = append(clauses, fmt.Sprintf("doc @> $%d::jsonb", firstArg+len(args)-1))
	}
	if len(clauses) == 0 {
		return "TRUE", nil, nil
	}
	return strings.Join(clauses, " AND "), args, nil
}

func pgOrderBy(fields []SortField) string {
	var parts []string
	hasId := false
	for _, f := range fields {
		col := "doc #> " + pgPath(f.Field)
		if f.Field == IdField {
			col = "id"
			hasId = true
		}
		if f.Descending {
			col += " DESC"
		}
		parts = append(parts, col)
	}
	if !hasId {
		parts = append(parts, "id")
	}
	return strings.Join(parts, ", ")
}

// pgPath renders a dotted field as a quoted text[] literal, e.g. 'a.b' -> '{a,b}'.
func pgPath(field string) string {
	return pq.QuoteLiteral("{" + strings.Join(strings.Split(field, "."), ",") + "}")
}
