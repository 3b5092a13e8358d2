// Package migrations embeds the SQL schema and applies it with goose.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// Dir is the directory of the migration files inside FS.
const Dir = "sql"

//go:embed sql/*.sql
var FS embed.FS

// Setup points goose at the embedded files.
func Setup() error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Up applies every pending migration.
func Up(db *sql.DB) error {
	if err := Setup(); err != nil {
		return err
	}
	if err := goose.Up(db, Dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
