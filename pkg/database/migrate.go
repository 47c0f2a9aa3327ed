package database

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const migrationSuffix = ".up.sql"

// RunMigrations applies every *.up.sql file at the root of migrations, in
// name order, skipping versions already recorded in schema_migrations. Each
// file runs in its own transaction. Connection failures are retried; SQL
// errors are not. It returns the versions applied by this call.
func RunMigrations(ctx context.Context, db DBTX, migrations fs.FS, logger *slog.Logger) ([]string, error) {
	applied, err := backoff.Retry(ctx, func() ([]string, error) {
		applied, err := migrateOnce(ctx, db, migrations, logger)
		if err != nil && !IsConnectionError(err) {
			return applied, backoff.Permanent(err)
		}
		return applied, err
	},
		backoff.WithBackOff(startupBackOff()),
		backoff.WithMaxTries(connectAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn("migration failed due to connection error, retrying",
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return applied, fmt.Errorf("run migrations: %w", err)
	}
	return applied, nil
}

func migrateOnce(ctx context.Context, db DBTX, migrations fs.FS, logger *slog.Logger) ([]string, error) {
	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), migrationSuffix) {
			versions = append(versions, e.Name())
		}
	}
	slices.Sort(versions)

	var applied []string
	for _, version := range versions {
		var exists bool
		if err := db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version).Scan(&exists); err != nil {
			return applied, fmt.Errorf("check migration %s: %w", version, err)
		}
		if exists {
			logger.Debug("migration already applied", slog.String("version", version))
			continue
		}

		content, err := fs.ReadFile(migrations, version)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", version, err)
		}
		if err := applyMigration(ctx, db, version, string(content)); err != nil {
			return applied, err
		}
		applied = append(applied, version)
		logger.Info("migration applied", slog.String("version", version))
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db DBTX, version, sql string) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", version, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}
