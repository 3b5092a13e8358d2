package docstore

import (
	"context"
	"errors"
	"sync"

	"playroom/internal/feed"
)

type queryFunc func(ctx context.Context, q Query) ([]Document, error)

// watch runs one subscription: an initial snapshot, then a fresh snapshot
// for every notification on the collection topic. Callbacks run on a
// single goroutine in order.
func watch(ctx context.Context, broker feed.Broker, q Query, query queryFunc, onSnapshot SnapshotFunc, onError ErrorFunc) CancelFunc {
	// Subscribe before the first read so no write can slip between them.
	sub := broker.Subscribe(Topic(q.Collection))
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	deliver := func() bool {
		docs, err := query(ctx, q)
		if ctx.Err() != nil {
			return false
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return !errors.Is(err, ErrPermissionDenied)
		}
		onSnapshot(docs)
		return true
	}

	go func() {
		defer close(done)
		defer sub.Close()

		if !deliver() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C():
				if !ok {
					return
				}
				drain(sub)
				if !deliver() {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// drain discards queued notifications; one re-read covers all of them.
func drain(sub *feed.Subscription) {
	for {
		select {
		case _, ok := <-sub.C():
			if !ok {
				return
			}
		default:
			return
		}
	}
}
