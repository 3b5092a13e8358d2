package live

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"playroom/internal/game"
	"playroom/internal/identity"
	"playroom/internal/projection"
	"playroom/internal/review"
)

// Games handles GET /v1/live/games?category=&q=
// Every catalog snapshot is filtered and sent as cards.
func (h *Handler) Games(w http.ResponseWriter, r *http.Request) {
	category := game.ParseCategory(r.URL.Query().Get("category"))
	term := r.URL.Query().Get("q")

	h.serve(w, r, "catalog", func(ctx context.Context, s *stream, _ *identity.Identity) (view, error) {
		p, err := projection.NewCatalog(ctx, h.store, h.log)
		if err != nil {
			return view{}, err
		}
		p.OnChange(func(games []game.Game) {
			s.send(Frame{Type: FrameSnapshot, Data: game.NewCards(game.Filter(games, category, term))})
		})
		return view{close: p.Close}, nil
	})
}

// Reviews handles GET /v1/live/games/{id}/reviews
func (h *Handler) Reviews(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")

	h.serve(w, r, "reviews", func(ctx context.Context, s *stream, viewer *identity.Identity) (view, error) {
		rv := &reviewsView{stream: s, viewer: viewer}
		p, err := projection.NewReviews(ctx, h.store, gameID, h.log)
		if err != nil {
			return view{}, err
		}
		p.OnChange(rv.setReviews)
		return view{close: p.Close, onViewer: rv.setViewer}, nil
	})
}

// Stats handles GET /v1/live/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "stats", func(ctx context.Context, s *stream, _ *identity.Identity) (view, error) {
		stop, err := h.visits.Watch(ctx, func(total int64) {
			s.send(Frame{Type: FrameStats, Data: map[string]int64{"total_visits": total}})
		})
		if err != nil {
			return view{}, err
		}
		return view{close: stop}, nil
	})
}

// reviewsView re-decorates the latest reviews whenever either the reviews
// or the viewer change.
type reviewsView struct {
	stream *stream

	mu      sync.Mutex
	viewer  *identity.Identity
	reviews []review.Review
	has     bool
}

func (v *reviewsView) setReviews(reviews []review.Review) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reviews, v.has = reviews, true
	v.emit()
}

func (v *reviewsView) setViewer(id *identity.Identity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewer = id
	if v.has {
		v.emit()
	}
}

// emit must hold mu so frames leave in the order state changed.
func (v *reviewsView) emit() {
	v.stream.send(Frame{Type: FrameSnapshot, Data: review.Views(v.viewer, v.reviews)})
}
