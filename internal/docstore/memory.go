package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"playroom/internal/feed"
)

// Op names an access kind checked by a memory Rule.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// Rule decides whether an operation on a collection is allowed. Returning
// a non-nil error rejects the call with that error.
type Rule func(op Op, collection string) error

// DenyAll returns a Rule rejecting op on the listed collections with
// ErrPermissionDenied.
func DenyAll(op Op, collections ...string) Rule {
	return func(o Op, collection string) error {
		if o != op {
			return nil
		}
		for _, c := range collections {
			if c == collection {
				return fmt.Errorf("%w: %s on %s", ErrPermissionDenied, op, collection)
			}
		}
		return nil
	}
}

type memDoc struct {
	fields Fields
	seq    uint64
}

// MemoryStore keeps documents in process memory. It backs tests and
// single-instance development runs.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]memDoc
	seq         uint64
	rule        Rule
	broker      feed.Broker
}

func NewMemory(broker feed.Broker) *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]memDoc),
		broker:      broker,
	}
}

// SetRule installs an access rule; nil allows everything.
func (m *MemoryStore) SetRule(r Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rule = r
}

func (m *MemoryStore) check(op Op, collection string) error {
	if m.rule == nil {
		return nil
	}
	return m.rule(op, collection)
}

func (m *MemoryStore) notify(ctx context.Context, collection, id string) {
	_ = m.broker.Publish(ctx, Topic(collection), id)
}

func (m *MemoryStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	id := uuid.NewString()
	if err := m.put(collection, id, fields, putReplace); err != nil {
		return "", err
	}
	m.notify(ctx, collection, id)
	return id, nil
}

func (m *MemoryStore) Insert(ctx context.Context, collection, id string, fields Fields) error {
	if err := m.put(collection, id, fields, putInsert); err != nil {
		return err
	}
	m.notify(ctx, collection, id)
	return nil
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, fields Fields) error {
	if err := m.put(collection, id, fields, putReplace); err != nil {
		return err
	}
	m.notify(ctx, collection, id)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	if err := m.put(collection, id, fields, putMerge); err != nil {
		return err
	}
	m.notify(ctx, collection, id)
	return nil
}

type putMode int

const (
	putReplace putMode = iota
	putMerge
	putInsert
)

func (m *MemoryStore) put(collection, id string, fields Fields, mode putMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpWrite, collection); err != nil {
		return err
	}
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]memDoc)
		m.collections[collection] = docs
	}
	existing, exists := docs[id]
	if mode == putInsert && exists {
		return fmt.Errorf("%w: %s/%s", ErrAlreadyExists, collection, id)
	}
	if mode == putMerge {
		if !exists {
			return ErrNotFound
		}
		merged := cloneFields(existing.fields)
		for k, v := range cloneFields(fields) {
			merged[k] = v
		}
		existing.fields = merged
		docs[id] = existing
		return nil
	}
	seq := existing.seq
	if !exists {
		m.seq++
		seq = m.seq
	}
	docs[id] = memDoc{fields: cloneFields(fields), seq: seq}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	if err := m.check(OpWrite, collection); err != nil {
		m.mu.Unlock()
		return err
	}
	docs := m.collections[collection]
	if _, ok := docs[id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(docs, id)
	m.mu.Unlock()

	m.notify(ctx, collection, id)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(OpRead, collection); err != nil {
		return Document{}, err
	}
	d, ok := m.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: cloneFields(d.fields)}, nil
}

func (m *MemoryStore) Query(_ context.Context, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	if err := m.check(OpRead, q.Collection); err != nil {
		m.mu.RUnlock()
		return nil, err
	}
	type row struct {
		doc Document
		seq uint64
	}
	rows := make([]row, 0, len(m.collections[q.Collection]))
	for id, d := range m.collections[q.Collection] {
		if q.Filter != nil && !equalValues(d.fields[q.Filter.Field], q.Filter.Value) {
			continue
		}
		rows = append(rows, row{doc: Document{ID: id, Fields: cloneFields(d.fields)}, seq: d.seq})
	}
	m.mu.RUnlock()

	// Unordered queries come back in insertion order.
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	if q.Order != nil {
		field, desc := q.Order.Field, q.Order.Desc
		sort.SliceStable(rows, func(i, j int) bool {
			a, aok := rows[i].doc.Fields[field]
			b, bok := rows[j].doc.Fields[field]
			if !aok || !bok {
				return aok && !bok
			}
			c := compareValues(a, b)
			if c == 0 {
				return rows[i].doc.ID < rows[j].doc.ID
			}
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	out := make([]Document, len(rows))
	for i, r := range rows {
		out[i] = r.doc
	}
	return out, nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, q Query, onSnapshot SnapshotFunc, onError ErrorFunc) (CancelFunc, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	return watch(ctx, m.broker, q, m.Query, onSnapshot, onError), nil
}

func (m *MemoryStore) Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error) {
	m.mu.Lock()
	if err := m.check(OpWrite, collection); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]memDoc)
		m.collections[collection] = docs
	}
	d, exists := docs[id]
	if !exists {
		m.seq++
		d = memDoc{fields: Fields{}, seq: m.seq}
	} else {
		d.fields = cloneFields(d.fields)
	}
	value := Document{Fields: d.fields}.Int64(field) + delta
	d.fields[field] = value
	docs[id] = d
	m.mu.Unlock()

	m.notify(ctx, collection, id)
	return value, nil
}

func cloneFields(f Fields) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		switch t := v.(type) {
		case []string:
			out[k] = append([]string(nil), t...)
		case []any:
			out[k] = append([]any(nil), t...)
		default:
			out[k] = v
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b any) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
