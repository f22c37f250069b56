package dbmanager

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tansive/sitestore/internal/sitestore/db/dberror"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MemoryServer is an in-process document store. It plays the part of a database server:
// every connection to the same name sees the same data, and databases and collections come
// into existence on first write.
type MemoryServer struct {
	mu  sync.RWMutex
	dbs map[string]map[string]*memCollection
}

type memCollection struct {
	mu      sync.RWMutex
	docs    [][]byte
	indexes []IndexSpec
}

func NewMemoryServer() *MemoryServer {
	return &MemoryServer{
		dbs: make(map[string]map[string]*memCollection),
	}
}

// Connect never fails; it hands out a new handle on the shared data.
func (s *MemoryServer) Connect(ctx context.Context, dbName string) (Conn, error) {
	return &memConn{server: s, name: dbName}, nil
}

// DatabaseNames lists the databases that hold at least one collection, sorted.
func (s *MemoryServer) DatabaseNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.dbs))
	for name, colls := range s.dbs {
		if len(colls) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// DropDatabase removes a database and everything in it.
func (s *MemoryServer) DropDatabase(dbName string) {
	s.mu.Lock()
	delete(s.dbs, dbName)
	s.mu.Unlock()
}

func (s *MemoryServer) collection(dbName, coll string, create bool) *memCollection {
	if !create {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.dbs[dbName][coll]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	colls, ok := s.dbs[dbName]
	if !ok {
		colls = make(map[string]*memCollection)
		s.dbs[dbName] = colls
	}
	c, ok := colls[coll]
	if !ok {
		c = &memCollection{}
		colls[coll] = c
	}
	return c
}

func (s *MemoryServer) collectionNames(dbName string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.dbs[dbName]))
	for name := range s.dbs[dbName] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type memConn struct {
	server *MemoryServer
	name   string
	closed atomic.Bool
}

func (c *memConn) Name() string {
	return c.name
}

func (c *memConn) Collection(name string) Collection {
	return &memCollectionHandle{conn: c, name: name}
}

func (c *memConn) EnsureCollection(ctx context.Context, name string) error {
	if c.closed.Load() {
		return dberror.ErrConnClosed
	}
	c.server.collection(c.name, name, true)
	return nil
}

func (c *memConn) ListCollections(ctx context.Context) ([]string, error) {
	if c.closed.Load() {
		return nil, dberror.ErrConnClosed
	}
	return c.server.collectionNames(c.name), nil
}

func (c *memConn) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return dberror.ErrConnClosed
	}
	return nil
}

func (c *memConn) Close(ctx context.Context) error {
	c.closed.Store(true)
	return nil
}

type memCollectionHandle struct {
	conn *memConn
	name string
}

func (h *memCollectionHandle) Name() string {
	return h.name
}

// resolve returns the backing collection; with create false it may return nil.
func (h *memCollectionHandle) resolve(create bool) (*memCollection, error) {
	if h.conn.closed.Load() {
		return nil, dberror.ErrConnClosed
	}
	return h.conn.server.collection(h.conn.name, h.name, create), nil
}

func (h *memCollectionHandle) InsertOne(ctx context.Context, doc Document) error {
	return h.InsertMany(ctx, []Document{doc})
}

func (h *memCollectionHandle) InsertMany(ctx context.Context, docs []Document) error {
	c, err := h.resolve(true)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, doc := range docs {
		if doc.Id() == "" {
			return dberror.ErrInvalidInput.Msg("document has no _id")
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return dberror.ErrInvalidInput.MsgErr("document is not serializable", err)
		}
		if err := c.checkUnique(raw, -1); err != nil {
			return err
		}
		c.docs = append(c.docs, raw)
	}
	return nil
}

func (h *memCollectionHandle) FindOne(ctx context.Context, filter Filter) (Document, error) {
	docs, err := h.Find(ctx, filter, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, dberror.ErrNotFound.Msg(h.name + ": no matching document")
	}
	return docs[0], nil
}

func (h *memCollectionHandle) Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error) {
	c, err := h.resolve(false)
	if err != nil || c == nil {
		return []Document{}, err
	}
	filter, err = NormalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	var matched [][]byte
	for _, raw := range c.docs {
		if matches(raw, filter) {
			matched = append(matched, raw)
		}
	}
	c.mu.RUnlock()

	sortRaw(matched, opts.Sort)
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(matched)) {
			matched = nil
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit > 0 && opts.Limit < int64(len(matched)) {
		matched = matched[:opts.Limit]
	}

	out := make([]Document, 0, len(matched))
	for _, raw := range matched {
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, dberror.ErrDatabase.MsgErr("corrupt document", err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func (h *memCollectionHandle) Count(ctx context.Context, filter Filter) (int64, error) {
	c, err := h.resolve(false)
	if err != nil || c == nil {
		return 0, err
	}
	filter, err = NormalizeFilter(filter)
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	for _, raw := range c.docs {
		if matches(raw, filter) {
			n++
		}
	}
	return n, nil
}

func (h *memCollectionHandle) UpdateOne(ctx context.Context, filter Filter, set Document) (int64, error) {
	if _, ok := set[IdField]; ok {
		return 0, dberror.ErrInvalidInput.Msg("_id cannot be updated")
	}
	c, err := h.resolve(false)
	if err != nil || c == nil {
		return 0, err
	}
	filter, err = NormalizeFilter(filter)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	pos := -1
	for i, raw := range c.docs {
		if matches(raw, filter) && (pos < 0 || gjson.GetBytes(raw, IdField).String() < gjson.GetBytes(c.docs[pos], IdField).String()) {
			pos = i
		}
	}
	if pos < 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	raw := append([]byte(nil), c.docs[pos]...)
	for _, k := range keys {
		v, err := NormalizeValue(set[k])
		if err != nil {
			return 0, err
		}
		raw, err = sjson.SetBytes(raw, k, v)
		if err != nil {
			return 0, dberror.ErrInvalidInput.MsgErr("unable to set "+k, err)
		}
	}
	if err := c.checkUnique(raw, pos); err != nil {
		return 0, err
	}
	c.docs[pos] = raw
	return 1, nil
}

func (h *memCollectionHandle) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	c, err := h.resolve(false)
	if err != nil || c == nil {
		return 0, err
	}
	filter, err = NormalizeFilter(filter)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.docs[:0]
	var n int64
	for _, raw := range c.docs {
		if matches(raw, filter) {
			n++
			continue
		}
		kept = append(kept, raw)
	}
	c.docs = kept
	return n, nil
}

func (h *memCollectionHandle) EnsureIndexes(ctx context.Context, indexes []IndexSpec) error {
	c, err := h.resolve(true)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, idx := range indexes {
		if c.hasIndex(idx) {
			continue
		}
		if idx.Unique {
			seen := make(map[string]bool, len(c.docs))
			for _, raw := range c.docs {
				key := indexKey(raw, idx.Fields)
				if seen[key] {
					return dberror.ErrAlreadyExists.Msg(h.name + ": existing documents violate unique index " + indexName(h.name, idx))
				}
				seen[key] = true
			}
		}
		c.indexes = append(c.indexes, idx)
	}
	return nil
}

func (c *memCollection) hasIndex(idx IndexSpec) bool {
	for _, existing := range c.indexes {
		if indexName("", existing) == indexName("", idx) {
			return true
		}
	}
	return false
}

// checkUnique rejects raw if it collides with another document on _id or a unique index.
// skip is the position of the document being replaced, or -1.
func (c *memCollection) checkUnique(raw []byte, skip int) error {
	id := gjson.GetBytes(raw, IdField).String()
	for i, other := range c.docs {
		if i == skip {
			continue
		}
		if gjson.GetBytes(other, IdField).String() == id {
			return dberror.ErrAlreadyExists.Msg("duplicate _id " + id)
		}
		for _, idx := range c.indexes {
			if idx.Unique && indexKey(raw, idx.Fields) == indexKey(other, idx.Fields) {
				return dberror.ErrAlreadyExists.Msg("duplicate key for unique index on " + strings.Join(idx.Fields, ","))
			}
		}
	}
	return nil
}

func indexKey(raw []byte, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		res := gjson.GetBytes(raw, f)
		if !res.Exists() {
			parts[i] = "null"
			continue
		}
		parts[i] = res.Raw
	}
	return strings.Join(parts, "\x00")
}

// matches reports whether every filter entry matches raw.
func matches(raw []byte, filter Filter) bool {
	for path, want := range filter {
		if !valueMatches(gjson.GetBytes(raw, path), want) {
			return false
		}
	}
	return true
}

func valueMatches(res gjson.Result, want any) bool {
	if !res.Exists() || res.Type == gjson.Null {
		return want == nil
	}
	if reflect.DeepEqual(res.Value(), want) {
		return true
	}
	if _, wantArray := want.([]any); res.IsArray() && !wantArray {
		for _, el := range res.Array() {
			if reflect.DeepEqual(el.Value(), want) {
				return true
			}
		}
	}
	return false
}

func sortRaw(docs [][]byte, fields []SortField) {
	if len(fields) == 0 {
		fields = []SortField{{Field: IdField}}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			c := compareResults(gjson.GetBytes(docs[i], f.Field), gjson.GetBytes(docs[j], f.Field))
			if c == 0 {
				continue
			}
			if f.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// typeRank orders values of different types: missing/null, numbers, strings, objects and
// arrays, booleans.
func typeRank(r gjson.Result) int {
	switch r.Type {
	case gjson.Null:
		return 0
	case gjson.Number:
		return 1
	case gjson.String:
		return 2
	case gjson.JSON:
		return 3
	default:
		return 4
	}
}

func compareResults(a, b gjson.Result) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch a.Type {
	case gjson.Number:
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		}
		return 0
	case gjson.String:
		return strings.Compare(a.Str, b.Str)
	case gjson.True, gjson.False:
		if a.Type == b.Type {
			return 0
		}
		if a.Type == gjson.False {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Raw, b.Raw)
}
