package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"playroom/internal/feed"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore() *MemoryStore {
	return NewMemory(feed.NewMemory())
}

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	id, err := s.Create(ctx, "games", Fields{"title": "Tetris", "category": "Puzzle"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := s.Get(ctx, "games", id)
	require.NoError(t, err)
	assert.Equal(t, "Tetris", doc.String("title"))

	require.NoError(t, s.Update(ctx, "games", id, Fields{"title": "Tetris 99"}))
	doc, err = s.Get(ctx, "games", id)
	require.NoError(t, err)
	assert.Equal(t, "Tetris 99", doc.String("title"))
	assert.Equal(t, "Puzzle", doc.String("category"), "update merges fields")

	require.NoError(t, s.Delete(ctx, "games", id))
	_, err = s.Get(ctx, "games", id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_MissingDocuments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	assert.ErrorIs(t, s.Update(ctx, "games", "nope", Fields{"a": 1}), ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "games", "nope"), ErrNotFound)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Set(ctx, "games", "g1", Fields{"title": "Pong"}))

	doc, err := s.Get(ctx, "games", "g1")
	require.NoError(t, err)
	doc.Fields["title"] = "mutated"

	again, err := s.Get(ctx, "games", "g1")
	require.NoError(t, err)
	assert.Equal(t, "Pong", again.String("title"))
}

func TestMemoryStore_QueryFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Set(ctx, "reviews", "r1", Fields{"gameId": "g1", "createdAt": int64(100)}))
	require.NoError(t, s.Set(ctx, "reviews", "r2", Fields{"gameId": "g1", "createdAt": int64(300)}))
	require.NoError(t, s.Set(ctx, "reviews", "r3", Fields{"gameId": "g2", "createdAt": int64(200)}))
	require.NoError(t, s.Set(ctx, "reviews", "r4", Fields{"gameId": "g1"}))

	docs, err := s.Query(ctx, Query{
		Collection: "reviews",
		Filter:     &Filter{Field: "gameId", Value: "g1"},
		Order:      &Order{Field: "createdAt", Desc: true},
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "r2", docs[0].ID)
	assert.Equal(t, "r1", docs[1].ID)
	assert.Equal(t, "r4", docs[2].ID, "documents without the order field sort last")
}

func TestMemoryStore_QueryInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Set(ctx, "games", id, Fields{}))
	}

	docs, err := s.Query(ctx, Query{Collection: "games"})
	require.NoError(t, err)
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestMemoryStore_QueryValidation(t *testing.T) {
	s := newTestStore()

	_, err := s.Query(context.Background(), Query{})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = s.Query(context.Background(), Query{Collection: "games", Filter: &Filter{}})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestMemoryStore_Increment(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	v, err := s.Increment(ctx, "stats", "site", "totalVisits", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.Increment(ctx, "stats", "site", "totalVisits", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	doc, err := s.Get(ctx, "stats", "site")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Int64("totalVisits"))
}

func TestMemoryStore_IncrementConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Increment(ctx, "stats", "site", "totalVisits", 1)
		}()
	}
	wg.Wait()

	doc, err := s.Get(ctx, "stats", "site")
	require.NoError(t, err)
	assert.Equal(t, int64(50), doc.Int64("totalVisits"))
}

func TestMemoryStore_InsertOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.Insert(ctx, "user_emails", "ana@example.com", Fields{"userId": "u1"}))
	err := s.Insert(ctx, "user_emails", "ana@example.com", Fields{"userId": "u2"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	doc, err := s.Get(ctx, "user_emails", "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.String("userId"), "the first insert wins")
}

func TestMemoryStore_InsertConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Insert(ctx, "user_emails", "dup@example.com", Fields{}); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)
}

func TestMemoryStore_Rules(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	s.SetRule(DenyAll(OpWrite, "stats"))

	_, err := s.Increment(ctx, "stats", "site", "totalVisits", 1)
	assert.True(t, IsPermissionDenied(err))

	_, err = s.Create(ctx, "games", Fields{"title": "ok"})
	assert.NoError(t, err)

	s.SetRule(DenyAll(OpRead, "games"))
	_, err = s.Query(ctx, Query{Collection: "games"})
	assert.True(t, IsPermissionDenied(err))
}

type snapshots struct {
	mu   sync.Mutex
	got  [][]Document
	errs []error
	ch   chan struct{}
}

func newSnapshots() *snapshots {
	return &snapshots{ch: make(chan struct{}, 64)}
}

func (s *snapshots) onSnapshot(docs []Document) {
	s.mu.Lock()
	s.got = append(s.got, docs)
	s.mu.Unlock()
	s.ch <- struct{}{}
}

func (s *snapshots) onError(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	s.ch <- struct{}{}
}

func (s *snapshots) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func (s *snapshots) last() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.got) == 0 {
		return nil
	}
	return s.got[len(s.got)-1]
}

func TestMemoryStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Set(ctx, "games", "g1", Fields{"title": "Pong"}))

	rec := newSnapshots()
	cancel, err := s.Subscribe(ctx, Query{Collection: "games"}, rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	defer cancel()

	rec.wait(t)
	require.Len(t, rec.last(), 1)

	require.NoError(t, s.Set(ctx, "games", "g2", Fields{"title": "Snake"}))
	require.Eventually(t, func() bool {
		return len(rec.last()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Delete(ctx, "games", "g1"))
	require.Eventually(t, func() bool {
		docs := rec.last()
		return len(docs) == 1 && docs[0].ID == "g2"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryStore_SubscribeCancelStopsCallbacks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	rec := newSnapshots()
	cancel, err := s.Subscribe(ctx, Query{Collection: "games"}, rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	rec.wait(t)

	cancel()
	cancel()

	rec.mu.Lock()
	before := len(rec.got)
	rec.mu.Unlock()

	require.NoError(t, s.Set(ctx, "games", "g1", Fields{}))
	time.Sleep(50 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, before, len(rec.got))
}

func TestMemoryStore_SubscribePermissionDeniedEnds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	s.SetRule(DenyAll(OpRead, "stats"))

	rec := newSnapshots()
	cancel, err := s.Subscribe(ctx, Query{Collection: "stats"}, rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	defer cancel()

	rec.wait(t)
	rec.mu.Lock()
	require.Len(t, rec.errs, 1)
	assert.True(t, IsPermissionDenied(rec.errs[0]))
	assert.Empty(t, rec.got)
	rec.mu.Unlock()

	// The subscription is over; later writes are not observed.
	s.SetRule(nil)
	require.NoError(t, s.Set(ctx, "stats", "site", Fields{"totalVisits": int64(1)}))
	time.Sleep(50 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.got)
}

func TestMemoryStore_SubscribeContextCancel(t *testing.T) {
	ctx, stop := context.WithCancel(context.Background())
	s := newTestStore()

	rec := newSnapshots()
	cancel, err := s.Subscribe(ctx, Query{Collection: "games"}, rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	rec.wait(t)

	stop()
	cancel()
}

func TestDocument_Accessors(t *testing.T) {
	doc := Document{ID: "x", Fields: Fields{
		"title":  "Pong",
		"n":      int64(7),
		"f":      float64(3),
		"roles":  []any{"admin", 3, "user"},
		"direct": []string{"a"},
	}}

	assert.Equal(t, "Pong", doc.String("title"))
	assert.Equal(t, "", doc.String("n"))
	assert.Equal(t, int64(7), doc.Int64("n"))
	assert.Equal(t, int64(3), doc.Int64("f"))
	assert.Equal(t, int64(0), doc.Int64("title"))
	assert.Equal(t, []string{"admin", "user"}, doc.Strings("roles"))
	assert.Equal(t, []string{"a"}, doc.Strings("direct"))
	assert.Nil(t, doc.Strings("missing"))
}

func TestBuildQuery(t *testing.T) {
	sql, args, err := buildQuery(Query{
		Collection: "reviews",
		Filter:     &Filter{Field: "gameId", Value: "g1"},
		Order:      &Order{Field: "createdAt", Desc: true},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "data @> $2::jsonb")
	assert.Contains(t, sql, "ORDER BY data -> $3::text DESC NULLS LAST, id ASC")
	assert.Equal(t, []any{"reviews", `{"gameId":"g1"}`, "createdAt"}, args)

	sql, args, err = buildQuery(Query{Collection: "games"})
	require.NoError(t, err)
	assert.NotContains(t, sql, "ORDER BY")
	assert.Equal(t, []any{"games"}, args)

	_, _, err = buildQuery(Query{})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(pgx.ErrNoRows), ErrNotFound)

	denied := classify(&pgconn.PgError{Code: "42501", Message: "permission denied for table documents"})
	assert.True(t, IsPermissionDenied(denied))

	taken := classify(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	assert.ErrorIs(t, taken, ErrAlreadyExists)

	other := errors.New("boom")
	assert.Equal(t, other, classify(other))
}

func TestDecodeFields(t *testing.T) {
	fields, err := decodeFields([]byte(`{"n":42,"f":1.5,"s":"x","list":[1,"a"]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), fields["n"])
	assert.Equal(t, 1.5, fields["f"])
	assert.Equal(t, "x", fields["s"])
	assert.Equal(t, []any{int64(1), "a"}, fields["list"])
}
