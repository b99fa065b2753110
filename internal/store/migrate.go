package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/halcyon271/strafetimer/internal/obslog"
)

// migration is one schema step. Ids are ordered and recorded in
// schema_migrations, so re-running EnsureSchema replays nothing.
type migration struct {
	id    string
	stmts []string
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		id VARCHAR(64) PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`

func applyMigrations(ctx context.Context, db *sql.DB, backend string, migrations []migration, insertApplied string) error {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.QueryContext(ctx, `SELECT id FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate schema_migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.id] {
			continue
		}
		for _, stmt := range m.stmts {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s: %w", m.id, err)
			}
		}
		if _, err := db.ExecContext(ctx, insertApplied, m.id, time.Now().Unix()); err != nil {
			return fmt.Errorf("record migration %s: %w", m.id, err)
		}
		obslog.L().Info("schema_migration_applied",
			zap.String("backend", backend),
			zap.String("id", m.id),
		)
	}
	return nil
}
