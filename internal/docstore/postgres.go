package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"playroom/internal/feed"
)

// insufficientPrivilege is the SQLSTATE raised when a role lacks a grant or
// a row level security policy rejects the statement.
const (
	insufficientPrivilege = "42501"
	uniqueViolation       = "23505"
)

// PostgresStore keeps every collection in the JSONB table "documents".
type PostgresStore struct {
	db      *pgxpool.Pool
	broker  feed.Broker
	timeout time.Duration
	log     *zap.Logger
}

func NewPostgres(db *pgxpool.Pool, broker feed.Broker, timeout time.Duration, log *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:      db,
		broker:  broker,
		timeout: timeout,
		log:     log.Named("docstore"),
	}
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// notify publishes a change. A failed publish is logged only: the write
// itself has been committed.
func (s *PostgresStore) notify(ctx context.Context, collection, id string) {
	if err := s.broker.Publish(ctx, Topic(collection), id); err != nil {
		s.log.Warn("change notification failed",
			zap.String("collection", collection),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}

func (s *PostgresStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	id := uuid.NewString()
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode %s document: %w", collection, err)
	}

	const sql = `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, now(), now())`

	timeoutCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.Exec(timeoutCtx, sql, collection, id, string(data)); err != nil {
		return "", fmt.Errorf("create %s document: %w", collection, classify(err))
	}
	s.notify(ctx, collection, id)
	return id, nil
}

func (s *PostgresStore) Insert(ctx context.Context, collection, id string, fields Fields) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", collection, err)
	}

	const sql = `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, now(), now())
		ON CONFLICT (collection, id) DO NOTHING`

	timeoutCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.db.Exec(timeoutCtx, sql, collection, id, string(data))
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, id, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert %s/%s: %w", collection, id, ErrAlreadyExists)
	}
	s.notify(ctx, collection, id)
	return nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, fields Fields) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", collection, err)
	}

	const sql = `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, now(), now())
		ON CONFLICT (collection, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = now()`

	timeoutCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.Exec(timeoutCtx, sql, collection, id, string(data)); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, classify(err))
	}
	s.notify(ctx, collection, id)
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", collection, err)
	}

	const sql = `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2`

	timeoutCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.db.Exec(timeoutCtx, sql, collection, id, string(data))
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.notify(ctx, collection, id)
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	timeoutCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.db.Exec(timeoutCtx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.notify(ctx, collection, id)
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	timeoutCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	err := s.db.QueryRow(timeoutCtx, `SELECT data FROM documents WHERE collection = $1 AND id = $2`, collection, id).Scan(&raw)
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrNotFound) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return Document{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return Document{ID: id, Fields: fields}, nil
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Document, error) {
	sql, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.Query(timeoutCtx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, classify(err))
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Collection, err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", q.Collection, id, err)
		}
		out = append(out, Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, classify(err))
	}
	return out, nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, q Query, onSnapshot SnapshotFunc, onError ErrorFunc) (CancelFunc, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	return watch(ctx, s.broker, q, s.Query, onSnapshot, onError), nil
}

func (s *PostgresStore) Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error) {
	const sql = `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, jsonb_build_object($3::text, $4::bigint), now(), now())
		ON CONFLICT (collection, id) DO UPDATE SET
			data = documents.data || jsonb_build_object(
				$3::text, COALESCE((documents.data ->> $3::text)::bigint, 0) + $4::bigint
			),
			updated_at = now()
		RETURNING (data ->> $3::text)::bigint`

	var value int64
	timeoutCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.db.QueryRow(timeoutCtx, sql, collection, id, field, delta).Scan(&value); err != nil {
		return 0, fmt.Errorf("increment %s/%s.%s: %w", collection, id, field, classify(err))
	}
	s.notify(ctx, collection, id)
	return value, nil
}

func buildQuery(q Query) (string, []any, error) {
	if err := q.validate(); err != nil {
		return "", nil, err
	}
	sql := `SELECT id, data FROM documents WHERE collection = $1`
	args := []any{q.Collection}

	if q.Filter != nil {
		predicate, err := json.Marshal(map[string]any{q.Filter.Field: q.Filter.Value})
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		args = append(args, string(predicate))
		sql += fmt.Sprintf(" AND data @> $%d::jsonb", len(args))
	}

	if q.Order != nil {
		dir := "ASC"
		if q.Order.Desc {
			dir = "DESC"
		}
		args = append(args, q.Order.Field)
		sql += fmt.Sprintf(" ORDER BY data -> $%d::text %s NULLS LAST, id ASC", len(args), dir)
	}
	return sql, args, nil
}

func classify(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case insufficientPrivilege:
			return fmt.Errorf("%w: %s", ErrPermissionDenied, pgErr.Message)
		case uniqueViolation:
			return fmt.Errorf("%w: %s", ErrAlreadyExists, pgErr.Message)
		}
	}
	return err
}

func decodeFields(raw []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	out := make(Fields, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out, nil
}

// normalize turns json.Number into int64 when integral, float64 otherwise.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	}
	return v
}
