package database

import (
	"context"
	"embed"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// goose keeps its dialect and file system in package state
var gooseMu sync.Mutex

func gooseDialect(driver string) (string, error) {
	switch driver {
	case EnginePostgres:
		return "postgres", nil
	case EngineSQLite:
		return "sqlite3", nil
	default:
		return "", errors.Errorf("unsupported database driver %q", driver)
	}
}

// Run runs the goose `command` (up, down, status, version, redo, ...) with the embedded migrations.
func Run(ctx context.Context, db *sqlx.DB, command string, args ...string) error {
	dialect, err := gooseDialect(db.DriverName())
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	if err = goose.SetDialect(dialect); err != nil {
		return errors.Wrap(err, "setting migrations dialect")
	}
	return goose.RunContext(ctx, command, db.DB, migrationsDir, args...)
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	return errors.Wrap(Run(ctx, db, "up"), "migrating database")
}
