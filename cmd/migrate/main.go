package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"playroom/internal/platform/migrations"
)

func main() {
	loadEnvFiles()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dsn string

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the playroom database schema",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "Postgres DSN (defaults to DB_DSN)")

	withDB := func(fn func(db *sql.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				dsn = databaseDSN()
			}
			db, closeDB, err := openDB(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer closeDB()
			if err := migrations.Setup(); err != nil {
				return err
			}
			return fn(db)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(db *sql.DB) error {
				if err := goose.Up(db, migrations.Dir); err != nil {
					return fmt.Errorf("apply migrations: %w", err)
				}
				fmt.Fprintln(root.OutOrStdout(), "Migrations applied successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(db *sql.DB) error {
				if err := goose.Down(db, migrations.Dir); err != nil {
					return fmt.Errorf("roll back migration: %w", err)
				}
				fmt.Fprintln(root.OutOrStdout(), "Migration rolled back successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the state of every migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(db *sql.DB) error {
				return goose.Status(db, migrations.Dir)
			}),
		},
		&cobra.Command{
			Use:   "create NAME",
			Short: "Create a new SQL migration file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return createMigration(cmd, migrationsDir(), args[0])
			},
		},
	)
	return root
}

func createMigration(cmd *cobra.Command, dir, name string) error {
	goose.SetBaseFS(nil)
	goose.SetSequential(true)
	if err := goose.Create(nil, dir, name, "sql"); err != nil {
		return fmt.Errorf("create migration: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migration created: %s\n", name)
	return nil
}

func openDB(ctx context.Context, dsn string) (*sql.DB, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	return db, func() {
		_ = db.Close()
		pool.Close()
	}, nil
}
