package main

import (
	"context"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"playroom/internal/config"
	"playroom/internal/docstore"
	"playroom/internal/game"
	"playroom/internal/httpx"
	"playroom/internal/identity"
	"playroom/internal/live"
	"playroom/internal/review"
	"playroom/internal/visit"
)

// app holds everything the router needs.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	store      docstore.Store
	sessions   *scs.SessionManager
	identities *identity.Service
	games      *game.Service
	reviews    *review.Service
	visits     *visit.Counter
	rateLimit  *httpx.RateLimitMiddleware
	// ready reports whether backing services answer; nil means always ready.
	ready func(ctx context.Context) error
}

func newApp(cfg *config.Config, log *zap.Logger, store docstore.Store, identities *identity.Service, sessions *scs.SessionManager) *app {
	return &app{
		cfg:        cfg,
		log:        log,
		store:      store,
		sessions:   sessions,
		identities: identities,
		games:      game.NewService(game.NewDocstoreRepo(store), log),
		reviews:    review.NewService(review.NewDocstoreRepo(store), log),
		visits:     visit.NewCounter(store, sessions, log),
		rateLimit:  httpx.NewRateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

func (a *app) routes() http.Handler {
	identityHandler := identity.NewHTTPHandler(a.identities)
	gameHandler := game.NewHTTPHandler(a.games, a.cfg.PublicBaseURL, a.log)
	reviewHandler := review.NewHTTPHandler(a.reviews, a.log)
	visitHandler := visit.NewHTTPHandler(a.visits, a.log)
	liveHandler := live.NewHandler(a.store, a.identities, a.visits, a.cfg.CORSAllowedOrigins, a.log)

	r := chi.NewRouter()
	r.Use(httpx.RequestIDMiddleware)
	r.Use(httpx.AccessLogMiddleware(a.log))
	r.Use(httpx.RecoveryMiddleware(a.log))
	r.Use(httpx.SecurityHeadersMiddleware(a.cfg.EnableHSTS))
	r.Use(httpx.CORSMiddleware(a.cfg.CORSAllowedOrigins))
	r.Use(httpx.RequestSizeLimitMiddleware(a.cfg.MaxBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(a.rateLimit.Middleware)
		r.Use(identity.Authenticate(a.identities, a.log))

		r.Post("/auth/register", identityHandler.Register)
		r.Post("/auth/sign-in", identityHandler.SignIn)
		r.Post("/auth/sign-out", identityHandler.SignOut)
		r.Get("/me", identityHandler.Me)

		r.Get("/games", gameHandler.List)
		r.Get("/games/{id}", gameHandler.Get)
		r.Get("/games/{id}/reviews", reviewHandler.ListForGame)
		r.With(identity.RequireIdentity).Post("/games/{id}/reviews", reviewHandler.Create)
		r.With(identity.RequireIdentity).Delete("/reviews/{id}", reviewHandler.Delete)

		// Only the visit counter keeps server side session state.
		r.With(a.sessions.LoadAndSave).Post("/visits", visitHandler.Record)
		r.Get("/stats", visitHandler.Stats)

		r.Route("/admin", func(r chi.Router) {
			r.Use(identity.RequireRole(identity.RoleAdmin))
			r.Get("/games", gameHandler.AdminList)
			r.Post("/games", gameHandler.Create)
			r.Put("/games/{id}", gameHandler.Update)
			r.Delete("/games/{id}", gameHandler.Delete)
		})

		r.Route("/live", func(r chi.Router) {
			r.Get("/games", liveHandler.Games)
			r.Get("/games/{id}/reviews", liveHandler.Reviews)
			r.Get("/stats", liveHandler.Stats)
		})
	})

	return r
}

func (a *app) readyz(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := a.ready(ctx); err != nil {
			a.log.Warn("readiness check failed", zap.Error(err))
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
