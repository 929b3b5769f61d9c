package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Misgexx/mintguard/internal/storage/postgres/migrations"
	"github.com/pressly/goose/v3"
)

// MigrationCommands lists the commands accepted by Migrate.
var MigrationCommands = []string{"up", "down", "status", "version", "redo", "reset", "up-to", "down-to"}

// Migrate runs a goose command against the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, command string, version int64, log goose.Logger) error {
	goose.SetBaseFS(migrations.FS)
	if log != nil {
		goose.SetLogger(log)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	const dir = "."
	actions := map[string]func() error{
		"up":      func() error { return goose.UpContext(ctx, db, dir) },
		"down":    func() error { return goose.DownContext(ctx, db, dir) },
		"status":  func() error { return goose.StatusContext(ctx, db, dir) },
		"version": func() error { return goose.VersionContext(ctx, db, dir) },
		"redo":    func() error { return goose.RedoContext(ctx, db, dir) },
		"reset":   func() error { return goose.ResetContext(ctx, db, dir) },
		"up-to":   func() error { return goose.UpToContext(ctx, db, dir, version) },
		"down-to": func() error { return goose.DownToContext(ctx, db, dir, version) },
	}
	action, ok := actions[command]
	if !ok {
		return fmt.Errorf("unknown migrate command %q", command)
	}
	return action()
}
