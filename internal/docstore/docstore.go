// Package docstore is a small document database facade: per-collection
// CRUD, single-predicate queries and live snapshot subscriptions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrAlreadyExists    = errors.New("document already exists")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidQuery     = errors.New("invalid query")
)

// Fields is the content of a document.
type Fields map[string]any

// Document is a stored document with its id.
type Document struct {
	ID     string
	Fields Fields
}

// String returns the string field key, or "" when absent or not a string.
func (d Document) String(key string) string {
	s, _ := d.Fields[key].(string)
	return s
}

// Int64 returns the integer field key, or 0 when absent or not numeric.
func (d Document) Int64(key string) int64 {
	switch v := d.Fields[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, _ := v.Float64()
			return int64(f)
		}
		return n
	}
	return 0
}

// Strings returns a string list field.
func (d Document) Strings(key string) []string {
	switch v := d.Fields[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Filter is a single equality predicate.
type Filter struct {
	Field string
	Value any
}

// Order sorts by one field.
type Order struct {
	Field string
	Desc  bool
}

// Query selects documents of one collection.
type Query struct {
	Collection string
	Filter     *Filter
	Order      *Order
}

func (q Query) validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidQuery)
	}
	if q.Filter != nil && q.Filter.Field == "" {
		return fmt.Errorf("%w: filter field is required", ErrInvalidQuery)
	}
	if q.Order != nil && q.Order.Field == "" {
		return fmt.Errorf("%w: order field is required", ErrInvalidQuery)
	}
	return nil
}

// CancelFunc ends a subscription. After it returns no callback runs again.
// It must not be called from inside the subscription's own callbacks.
type CancelFunc func()

// SnapshotFunc receives the complete current result set.
type SnapshotFunc func(docs []Document)

// ErrorFunc receives subscription errors. ErrPermissionDenied ends the
// subscription; any other error leaves it open.
type ErrorFunc func(err error)

// Store is the document store capability.
type Store interface {
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	// Insert creates a document under a caller chosen id and fails with
	// ErrAlreadyExists when the id is taken.
	Insert(ctx context.Context, collection, id string, fields Fields) error
	Set(ctx context.Context, collection, id string, fields Fields) error
	Update(ctx context.Context, collection, id string, fields Fields) error
	Delete(ctx context.Context, collection, id string) error
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Subscribe(ctx context.Context, q Query, onSnapshot SnapshotFunc, onError ErrorFunc) (CancelFunc, error)
	// Increment atomically adds delta to an integer field, creating the
	// document when it does not exist, and returns the new value.
	Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error)
}

// Topic is the feed topic written to on every change in collection.
func Topic(collection string) string {
	return "docstore." + collection
}

// IsPermissionDenied reports whether err is an authorization failure.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
