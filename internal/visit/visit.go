// Package visit counts site visits, at most once per browser session.
package visit

import (
	"context"
	"errors"
	"sync"

	"github.com/alexedwards/scs/v2"
	"go.uber.org/zap"

	"playroom/internal/docstore"
	"playroom/internal/projection"
)

const (
	Collection = "stats"
	DocID      = "site"
	Field      = "totalVisits"

	sessionKey = "visited"
)

// Counter increments the shared visit total once per session.
type Counter struct {
	store    docstore.Store
	sessions *scs.SessionManager
	log      *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewCounter(store docstore.Store, sessions *scs.SessionManager, log *zap.Logger) *Counter {
	return &Counter{
		store:    store,
		sessions: sessions,
		log:      log.Named("visit"),
		inflight: make(map[string]struct{}),
	}
}

// Record counts the visit of the session loaded into ctx unless it was
// already counted. It reports whether an increment was written. Failures are
// logged and leave the session unmarked.
func (c *Counter) Record(ctx context.Context) bool {
	if c.sessions.GetBool(ctx, sessionKey) {
		return false
	}

	// Parallel requests of one existing session share a token; only one of
	// them may increment.
	token := c.sessions.Token(ctx)
	if token != "" {
		c.mu.Lock()
		if _, busy := c.inflight[token]; busy {
			c.mu.Unlock()
			return false
		}
		c.inflight[token] = struct{}{}
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			delete(c.inflight, token)
			c.mu.Unlock()
		}()
	}

	if _, err := c.store.Increment(ctx, Collection, DocID, Field, 1); err != nil {
		if docstore.IsPermissionDenied(err) {
			c.log.Warn("visit increment denied", zap.Error(err))
		} else {
			c.log.Error("visit increment failed", zap.Error(err))
		}
		return false
	}
	c.sessions.Put(ctx, sessionKey, true)
	return true
}

// Total reads the current visit total. A missing counter reads as zero.
func (c *Counter) Total(ctx context.Context) (int64, error) {
	doc, err := c.store.Get(ctx, Collection, DocID)
	if errors.Is(err, docstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.Int64(Field), nil
}

// Watch follows the live total, including increments from other sessions,
// until the returned func is called.
func (c *Counter) Watch(ctx context.Context, fn func(total int64)) (func(), error) {
	p, err := projection.New(ctx, c.store, "visits", docstore.Query{Collection: Collection}, totalFromDocs, c.log)
	if err != nil {
		return nil, err
	}
	p.OnChange(fn)
	return p.Close, nil
}

func totalFromDocs(docs []docstore.Document) int64 {
	for _, d := range docs {
		if d.ID == DocID {
			return d.Int64(Field)
		}
	}
	return 0
}
