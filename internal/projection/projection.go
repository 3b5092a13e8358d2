// Package projection keeps live, typed copies of document store query
// results. Every change replaces the whole snapshot.
package projection

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"playroom/internal/docstore"
)

// State describes the health of a projection.
type State int

const (
	// StatePending means no snapshot has arrived yet.
	StatePending State = iota
	// StateLive means snapshots are flowing.
	StateLive
	// StateStalled means the store refused access; no further updates come.
	StateStalled
	// StateClosed means Close was called.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLive:
		return "live"
	case StateStalled:
		return "stalled"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Decoder turns raw documents into the projected value.
type Decoder[T any] func(docs []docstore.Document) T

// Projection owns one store subscription and the latest decoded snapshot.
// Listeners are called one at a time, in delivery order. Listeners must not
// call Close.
type Projection[T any] struct {
	name   string
	log    *zap.Logger
	decode Decoder[T]
	cancel docstore.CancelFunc

	mu        sync.Mutex
	snapshot  T
	has       bool
	state     State
	listeners map[int]func(T)
	nextID    int

	// deliverMu serialises listener calls so a listener added by OnChange
	// never runs concurrently with a store delivery.
	deliverMu sync.Mutex
}

// New subscribes to q and starts projecting. The subscription lives until
// Close or until ctx is cancelled.
func New[T any](ctx context.Context, store docstore.Store, name string, q docstore.Query, decode Decoder[T], log *zap.Logger) (*Projection[T], error) {
	p := &Projection[T]{
		name:      name,
		log:       log.Named("projection").With(zap.String("projection", name)),
		decode:    decode,
		listeners: make(map[int]func(T)),
	}
	cancel, err := store.Subscribe(ctx, q, p.onSnapshot, p.onError)
	if err != nil {
		return nil, err
	}
	p.cancel = cancel
	return p, nil
}

func (p *Projection[T]) onSnapshot(docs []docstore.Document) {
	value := p.decode(docs)

	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.snapshot = value
	p.has = true
	p.state = StateLive
	listeners := make([]func(T), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(value)
	}
}

func (p *Projection[T]) onError(err error) {
	if docstore.IsPermissionDenied(err) {
		p.log.Warn("subscription denied, projection stalled", zap.Error(err))
		p.mu.Lock()
		if p.state != StateClosed {
			p.state = StateStalled
		}
		p.mu.Unlock()
		return
	}
	p.log.Error("subscription error", zap.Error(err))
}

// OnChange registers fn for every future snapshot. When a snapshot is
// already known fn receives it right away. The returned func unregisters fn.
func (p *Projection[T]) OnChange(fn func(T)) func() {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return func() {}
	}
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	value, has := p.snapshot, p.has
	p.mu.Unlock()

	if has {
		fn(value)
	}

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Snapshot returns the latest value and whether one has arrived.
func (p *Projection[T]) Snapshot() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot, p.has
}

func (p *Projection[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close cancels the store subscription and drops every listener. No
// listener runs after Close returns. Safe to call more than once.
func (p *Projection[T]) Close() {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.state = StateClosed
	p.listeners = make(map[int]func(T))
	p.mu.Unlock()

	p.cancel()
}
