package projection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"playroom/internal/docstore"
	"playroom/internal/feed"
	"playroom/internal/game"
	"playroom/internal/review"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 2 * time.Second
const tick = 10 * time.Millisecond

func newStore() *docstore.MemoryStore {
	return docstore.NewMemory(feed.NewMemory())
}

func titles(games []game.Game) []string {
	out := make([]string, len(games))
	for i, g := range games {
		out[i] = g.Title
	}
	return out
}

func TestCatalog_ReplacesSnapshotOnChange(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	require.NoError(t, store.Set(ctx, game.Collection, "g1", docstore.Fields{"title": "Old", "createdAt": int64(1)}))

	p, err := NewCatalog(ctx, store, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	require.Eventually(t, func() bool {
		games, ok := p.Snapshot()
		return ok && len(games) == 1
	}, waitFor, tick)
	assert.Equal(t, StateLive, p.State())

	require.NoError(t, store.Set(ctx, game.Collection, "g2", docstore.Fields{"title": "New", "createdAt": int64(2)}))
	require.Eventually(t, func() bool {
		games, _ := p.Snapshot()
		return len(games) == 2
	}, waitFor, tick)

	games, _ := p.Snapshot()
	assert.Equal(t, []string{"New", "Old"}, titles(games))

	require.NoError(t, store.Delete(ctx, game.Collection, "g1"))
	require.Eventually(t, func() bool {
		games, _ := p.Snapshot()
		return len(games) == 1 && games[0].Title == "New"
	}, waitFor, tick)
}

func TestReviews_SortedAndScopedToGame(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	for id, ts := range map[string]int64{"a": 100, "b": 300, "c": 200} {
		require.NoError(t, store.Set(ctx, review.Collection, id, docstore.Fields{"gameId": "g1", "createdAt": ts}))
	}
	require.NoError(t, store.Set(ctx, review.Collection, "x", docstore.Fields{"gameId": "g2", "createdAt": int64(999)}))

	p, err := NewReviews(ctx, store, "g1", zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	require.Eventually(t, func() bool {
		_, ok := p.Snapshot()
		return ok
	}, waitFor, tick)

	reviews, _ := p.Snapshot()
	require.Len(t, reviews, 3)
	assert.Equal(t, []int64{300, 200, 100}, []int64{reviews[0].CreatedAt, reviews[1].CreatedAt, reviews[2].CreatedAt})
}

type collector struct {
	mu     sync.Mutex
	values [][]game.Game
}

func (c *collector) add(v []game.Game) {
	c.mu.Lock()
	c.values = append(c.values, v)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

func TestOnChange_DeliversCurrentThenUpdates(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	require.NoError(t, store.Set(ctx, game.Collection, "g1", docstore.Fields{"title": "A"}))

	p, err := NewCatalog(ctx, store, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	require.Eventually(t, func() bool { _, ok := p.Snapshot(); return ok }, waitFor, tick)

	c := &collector{}
	stop := p.OnChange(c.add)
	assert.Equal(t, 1, c.len(), "current snapshot is delivered on registration")

	require.NoError(t, store.Set(ctx, game.Collection, "g2", docstore.Fields{"title": "B"}))
	require.Eventually(t, func() bool { return c.len() == 2 }, waitFor, tick)

	stop()
	require.NoError(t, store.Set(ctx, game.Collection, "g3", docstore.Fields{"title": "C"}))
	require.Eventually(t, func() bool {
		games, _ := p.Snapshot()
		return len(games) == 3
	}, waitFor, tick)
	assert.Equal(t, 2, c.len(), "unregistered listener is not called")
}

func TestClose_StopsListeners(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	p, err := NewCatalog(ctx, store, zap.NewNop())
	require.NoError(t, err)
	require.Eventually(t, func() bool { _, ok := p.Snapshot(); return ok }, waitFor, tick)

	c := &collector{}
	p.OnChange(c.add)
	before := c.len()

	p.Close()
	p.Close()
	assert.Equal(t, StateClosed, p.State())

	require.NoError(t, store.Set(ctx, game.Collection, "g1", docstore.Fields{"title": "late"}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, c.len())

	// Registering on a closed projection is a no-op.
	p.OnChange(c.add)()
	assert.Equal(t, before, c.len())
}

func TestPermissionDenied_StallsAndWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := newStore()
	store.SetRule(docstore.DenyAll(docstore.OpRead, game.Collection))

	p, err := NewCatalog(context.Background(), store, zap.New(core))
	require.NoError(t, err)
	defer p.Close()

	require.Eventually(t, func() bool { return p.State() == StateStalled }, waitFor, tick)
	_, ok := p.Snapshot()
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("subscription denied, projection stalled").Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len(), "denial is not reported as an error")
}

func TestTransportError_KeepsProjectionOpen(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	store := newStore()

	var mu sync.Mutex
	failures := 1
	store.SetRule(func(op docstore.Op, collection string) error {
		mu.Lock()
		defer mu.Unlock()
		if op == docstore.OpRead && failures > 0 {
			failures--
			return errors.New("connection reset")
		}
		return nil
	})

	p, err := NewCatalog(ctx, store, zap.New(core))
	require.NoError(t, err)
	defer p.Close()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("subscription error").Len() == 1
	}, waitFor, tick)
	assert.Equal(t, StatePending, p.State())

	require.NoError(t, store.Set(ctx, game.Collection, "g1", docstore.Fields{"title": "Recovered"}))
	require.Eventually(t, func() bool { return p.State() == StateLive }, waitFor, tick)

	games, _ := p.Snapshot()
	assert.Equal(t, []string{"Recovered"}, titles(games))
}
