package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/BradenHooton/propertyhub/migrations"
)

// Migration commands understood by Migrate.
const (
	MigrateUp     = "up"
	MigrateDown   = "down"
	MigrateStatus = "status"
)

// Migrate runs a goose command against the embedded migrations using the
// pool's connection settings.
func Migrate(ctx context.Context, pool *pgxpool.Pool, command string, logger *slog.Logger) error {
	switch command {
	case MigrateUp, MigrateDown, MigrateStatus:
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	// goose works on database/sql, so open a stdlib handle over the pgx config
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	var err error
	switch command {
	case MigrateUp:
		err = goose.UpContext(ctx, sqlDB, ".")
	case MigrateDown:
		err = goose.DownContext(ctx, sqlDB, ".")
	case MigrateStatus:
		err = goose.StatusContext(ctx, sqlDB, ".")
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}

	if logger != nil {
		version, verr := goose.GetDBVersionContext(ctx, sqlDB)
		if verr == nil {
			logger.Info("migrations applied", slog.String("command", command), slog.Int64("version", version))
		}
	}
	return nil
}

// Migrate applies a goose command to this connection.
func (db *DB) Migrate(ctx context.Context, command string) error {
	return Migrate(ctx, db.Pool, command, db.logger)
}
