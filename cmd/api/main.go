package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexedwards/scs/pgxstore"
	"github.com/alexedwards/scs/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"playroom/internal/config"
	"playroom/internal/docstore"
	"playroom/internal/feed"
	"playroom/internal/identity"
	"playroom/internal/platform/logger"
	"playroom/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := openDB(ctx, cfg.DatabaseDSN, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	broker, closeBroker, err := newBroker(cfg, pool, log)
	if err != nil {
		return err
	}
	defer closeBroker()

	store := docstore.NewPostgres(pool, broker, cfg.StoreTimeout, log)

	sessionStore := pgxstore.New(pool)
	defer sessionStore.StopCleanup()
	sessions := newSessionManager(cfg, sessionStore)

	users := identity.NewDocstoreRepo(store)
	identities := identity.NewService(users, users, broker, cfg.JWTSecret, cfg.AccessTokenTTL, log)

	a := newApp(cfg, log, store, identities, sessions)
	a.ready = pool.Ping
	defer a.rateLimit.Stop()

	sched := scheduler.New(log)
	if err := sched.Add("purge-revoked", "@hourly", scheduler.PurgeRevokedJob(identities, log)); err != nil {
		return fmt.Errorf("schedule purge: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Live views hold their connection open, so no server wide
		// write timeout; each frame write has its own deadline.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return broker.Run(gctx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting server", zap.String("addr", cfg.Addr), zap.String("feed", cfg.FeedDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newSessionManager(cfg *config.Config, store scs.Store) *scs.SessionManager {
	sm := scs.New()
	sm.Store = store
	sm.Lifetime = cfg.SessionLifetime
	sm.Cookie.Name = "playroom_session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = cfg.CookieSecure
	return sm
}

// newBroker picks the change feed transport. The returned func releases it.
func newBroker(cfg *config.Config, pool *pgxpool.Pool, log *zap.Logger) (feed.Broker, func(), error) {
	switch cfg.FeedDriver {
	case config.FeedMemory:
		return feed.NewMemory(), func() {}, nil
	case config.FeedRedis:
		b, err := feed.NewRedis(cfg.RedisURL, log)
		if err != nil {
			return nil, nil, fmt.Errorf("redis feed: %w", err)
		}
		return b, func() { _ = b.Close() }, nil
	default:
		return feed.NewPostgres(pool, log), func() {}, nil
	}
}

func openDB(ctx context.Context, dsn string, log *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database (%s): %w", redactDSN(dsn), err)
	}
	log.Info("database connection OK")
	return pool, nil
}

func redactDSN(dsn string) string {
	const marker = "://"
	start := strings.Index(dsn, marker)
	if start < 0 {
		return dsn
	}
	start += len(marker)
	end := strings.Index(dsn[start:], "@")
	if end < 0 {
		return dsn
	}
	return dsn[:start] + "***" + dsn[start+end:]
}
