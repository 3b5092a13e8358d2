package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"playroom/internal/config"
	"playroom/internal/docstore"
	"playroom/internal/feed"
	"playroom/internal/game"
	"playroom/internal/identity"
	"playroom/internal/platform/logger"
)

func main() {
	config.LoadEnvFiles()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Load catalog entries and the admin account from a YAML file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return seedDatabase(cmd.Context(), cfg, log, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed.yaml", "seed file")
	return cmd
}

func seedDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	f, err := parse(fh)
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	// Running servers pick the new documents up through the feed.
	broker := feed.NewPostgres(pool, log)
	store := docstore.NewPostgres(pool, broker, cfg.StoreTimeout, log)
	users := identity.NewDocstoreRepo(store)

	s := &seeder{
		identities: identity.NewService(users, users, broker, cfg.JWTSecret, cfg.AccessTokenTTL, log),
		games:      game.NewDocstoreRepo(store),
		now:        time.Now,
		log:        log.Named("seed"),
	}
	res, err := s.run(ctx, f)
	if err != nil {
		return err
	}
	log.Info("seed finished",
		zap.Bool("admin_created", res.AdminCreated),
		zap.Int("games_added", res.GamesAdded),
		zap.Int("games_skipped", res.GamesSkipped),
	)
	return nil
}
