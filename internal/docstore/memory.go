package docstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Memory is an embedded document database. Documents are held as BSON so
// stored values never alias caller memory, and reads see the same types a
// MongoDB server returns.
//
// A session makes its writes atomic: Abort undoes them in reverse order.
// Sessions are not isolated from each other.
type Memory struct {
	mu          sync.Mutex
	collections map[string]*memCollection
}

var _ Database = (*Memory)(nil)

// NewMemory returns an empty database.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Collection(name string) Collection {
	return m.collection(name)
}

func (m *Memory) collection(name string) *memCollection {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{name: name, docs: make(map[string][]byte)}
		m.collections[name] = c
	}
	return c
}

func (m *Memory) StartSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memSession{}, nil
}

func (m *Memory) EnsureIndexes(ctx context.Context, collection string, indexes []Index) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := m.collection(collection)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, idx := range indexes {
		if slices.ContainsFunc(c.indexes, func(have Index) bool { return have.Name == idx.Name }) {
			continue
		}
		if idx.Unique {
			if err := c.checkExistingUnique(idx); err != nil {
				return err
			}
		}
		c.indexes = append(c.indexes, idx)
	}
	return nil
}

func (m *Memory) Close(context.Context) error { return nil }

type memCollection struct {
	name string

	mu      sync.RWMutex
	ids     []string // insertion order
	docs    map[string][]byte
	indexes []Index
}

func (c *memCollection) Find(ctx context.Context, filter bson.D, opts FindOptions) ([]bson.D, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := c.match(filter)
	if err != nil {
		return nil, err
	}

	if len(opts.Sort) > 0 {
		slices.SortStableFunc(docs, func(a, b bson.D) int {
			for _, k := range opts.Sort {
				av, aok := lookup(a, k.Key)
				bv, bok := lookup(b, k.Key)
				cmp := sortCompare(av, aok, bv, bok)
				if dir, _ := toFloat(k.Value); dir < 0 {
					cmp = -cmp
				}
				if cmp != 0 {
					return cmp
				}
			}
			return 0
		})
	}

	skip := min(int(opts.Skip), len(docs))
	docs = docs[skip:]
	if opts.Limit > 0 && int(opts.Limit) < len(docs) {
		docs = docs[:opts.Limit]
	}
	if opts.IDsOnly {
		for i, d := range docs {
			id, _ := lookup(d, "_id")
			docs[i] = bson.D{{Key: "_id", Value: id}}
		}
	}
	return docs, nil
}

func (c *memCollection) Count(ctx context.Context, filter bson.D) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	docs, err := c.match(filter)
	return int64(len(docs)), err
}

func (c *memCollection) match(filter bson.D) ([]bson.D, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []bson.D
	for _, id := range c.ids {
		doc, err := decode(c.docs[id])
		if err != nil {
			return nil, err
		}
		ok, err := Match(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (c *memCollection) InsertOne(ctx context.Context, doc bson.D) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, _ := lookup(doc, "_id")
	id, ok := v.(string)
	if !ok || id == "" {
		return fmt.Errorf("insert into %s: document requires a string _id", c.name)
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	stored, err := decode(raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; exists {
		return c.duplicate("_id_")
	}
	if err := c.checkUnique(stored, id); err != nil {
		return err
	}
	c.ids = append(c.ids, id)
	c.docs[id] = raw

	record(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.remove(id)
	})
	return nil
}

func (c *memCollection) UpdateByID(ctx context.Context, id string, set, unset bson.D) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.docs[id]
	if !ok {
		return false, nil
	}
	doc, err := decode(old)
	if err != nil {
		return false, err
	}
	for _, e := range set {
		if e.Key == "_id" {
			return false, fmt.Errorf("update %s: _id is immutable", c.name)
		}
		doc = setPath(doc, strings.Split(e.Key, "."), e.Value)
	}
	for _, e := range unset {
		doc = unsetPath(doc, strings.Split(e.Key, "."))
	}

	raw, err := bson.Marshal(doc)
	if err != nil {
		return false, err
	}
	stored, err := decode(raw)
	if err != nil {
		return false, err
	}
	if err := c.checkUnique(stored, id); err != nil {
		return false, err
	}
	c.docs[id] = raw

	record(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.docs[id]; ok {
			c.docs[id] = old
		}
	})
	return true, nil
}

func (c *memCollection) DeleteMany(ctx context.Context, filter bson.D) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := make(map[string][]byte)
	var order []string
	for _, id := range c.ids {
		doc, err := decode(c.docs[id])
		if err != nil {
			return 0, err
		}
		ok, err := Match(doc, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			removed[id] = c.docs[id]
			order = append(order, id)
		}
	}
	for _, id := range order {
		c.remove(id)
	}

	if len(order) > 0 {
		record(ctx, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for _, id := range order {
				if _, ok := c.docs[id]; !ok {
					c.ids = append(c.ids, id)
					c.docs[id] = removed[id]
				}
			}
		})
	}
	return int64(len(order)), nil
}

// remove deletes one document. The caller holds c.mu.
func (c *memCollection) remove(id string) {
	if _, ok := c.docs[id]; !ok {
		return
	}
	delete(c.docs, id)
	c.ids = slices.DeleteFunc(c.ids, func(have string) bool { return have == id })
}

// checkUnique enforces the unique indexes against every other document.
// The caller holds c.mu.
func (c *memCollection) checkUnique(doc bson.D, self string) error {
	for _, idx := range c.indexes {
		if !idx.Unique {
			continue
		}
		v, ok := lookup(doc, idx.Key)
		if !ok || v == nil {
			continue
		}
		for _, id := range c.ids {
			if id == self {
				continue
			}
			other, err := decode(c.docs[id])
			if err != nil {
				return err
			}
			if ov, ok := lookup(other, idx.Key); ok && ov != nil && equal(ov, v) {
				return c.duplicate(idx.Name)
			}
		}
	}
	return nil
}

func (c *memCollection) checkExistingUnique(idx Index) error {
	for _, id := range c.ids {
		doc, err := decode(c.docs[id])
		if err != nil {
			return err
		}
		held := c.indexes
		c.indexes = []Index{idx}
		err = c.checkUnique(doc, id)
		c.indexes = held
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *memCollection) duplicate(index string) error {
	return mongo.WriteException{WriteErrors: mongo.WriteErrors{{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: %s index: %s dup key", c.name, index),
	}}}
}

func decode(raw []byte) (bson.D, error) {
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func setPath(doc bson.D, path []string, v any) bson.D {
	for i, e := range doc {
		if e.Key != path[0] {
			continue
		}
		if len(path) == 1 {
			doc[i].Value = v
			return doc
		}
		sub, _ := e.Value.(bson.D)
		doc[i].Value = setPath(sub, path[1:], v)
		return doc
	}
	if len(path) == 1 {
		return append(doc, bson.E{Key: path[0], Value: v})
	}
	return append(doc, bson.E{Key: path[0], Value: setPath(nil, path[1:], v)})
}

func unsetPath(doc bson.D, path []string) bson.D {
	for i, e := range doc {
		if e.Key != path[0] {
			continue
		}
		if len(path) == 1 {
			return slices.Delete(doc, i, i+1)
		}
		if sub, ok := e.Value.(bson.D); ok {
			doc[i].Value = unsetPath(sub, path[1:])
		}
		return doc
	}
	return doc
}

type sessionKey struct{}

type memSession struct {
	mu   sync.Mutex
	undo []func()
}

func (s *memSession) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func (s *memSession) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo = nil
	return nil
}

func (s *memSession) Abort(context.Context) error {
	s.mu.Lock()
	undo := s.undo
	s.undo = nil
	s.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	return nil
}

// record registers an undo step with the session bound to ctx, if any.
// It runs while the collection lock is held and must not take it.
func record(ctx context.Context, undo func()) {
	s, ok := ctx.Value(sessionKey{}).(*memSession)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo = append(s.undo, undo)
}
