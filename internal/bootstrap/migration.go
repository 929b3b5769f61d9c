package bootstrap

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Misgexx/mintguard/internal/config"
	"github.com/Misgexx/mintguard/internal/storage/postgres"
	_ "github.com/lib/pq"
)

func Migrate(ctx context.Context, cfg config.Config, cmd string, version int64) error {
	if cfg.Database.URL == "" {
		return errors.New("db: database url is required")
	}
	log, err := BuildLogger(cfg)
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return err
	}
	return postgres.Migrate(ctx, db, cmd, version, log)
}
