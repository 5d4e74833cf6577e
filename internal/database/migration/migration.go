package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_extension_pgcrypto",
		SQL:  `CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
	},
	{
		Name: "create_table_users",
		SQL: `CREATE TABLE IF NOT EXISTS users (
  id            UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
  email         TEXT        NOT NULL UNIQUE,
  password_hash TEXT        NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_profiles",
		SQL: `CREATE TABLE IF NOT EXISTS profiles (
  user_id    UUID        PRIMARY KEY REFERENCES users (id) ON DELETE CASCADE,
  email      TEXT        NOT NULL,
  name       TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_pdfs",
		SQL: `CREATE TABLE IF NOT EXISTS pdfs (
  id           TEXT        PRIMARY KEY,
  owner_id     UUID        NOT NULL REFERENCES users (id) ON DELETE CASCADE,
  title        TEXT        NOT NULL,
  filename     TEXT        NOT NULL,
  storage_path TEXT        NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_pdfs_owner_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_pdfs_owner_created_at ON pdfs (owner_id, created_at DESC);`,
	},
	{
		Name: "create_table_resources",
		SQL: `CREATE TABLE IF NOT EXISTS resources (
  id          UUID             PRIMARY KEY DEFAULT gen_random_uuid(),
  document_id TEXT             NOT NULL REFERENCES pdfs (id) ON DELETE CASCADE,
  owner_id    UUID             NOT NULL REFERENCES users (id) ON DELETE CASCADE,
  source_id   TEXT             NOT NULL DEFAULT '',
  title       TEXT             NOT NULL,
  category    TEXT             NOT NULL CHECK (category IN ('article', 'video', 'course')),
  url         TEXT             NOT NULL,
  confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
  created_at  TIMESTAMPTZ      NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_resources_document",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_resources_document ON resources (document_id);`,
	},
	{
		Name: "create_index_resources_owner",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_resources_owner ON resources (owner_id);`,
	},
}

// EnsureMigrated checks if the 'resources' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, logger *slog.Logger, dbHost string) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "database", "db_host", dbHost)
	start := time.Now()

	logger.Info("db_migration_check", "status", "starting")

	var exists bool
	query := "SELECT to_regclass('public.resources') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		logger.Error("db_migration_failed",
			"status", "error",
			"error_message", fmt.Sprintf("failed to check sentinel table: %v", err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		logger.Info("db_migration_skip",
			"status", "success",
			"detail", "schema already exists, skipping migration",
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	logger.Info("db_migration_start", "status", "in_progress", "steps", len(steps))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			logger.Error("db_migration_failed",
				"status", "error",
				"migration_step", step.Name,
				"error_message", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
				"step_duration_ms", time.Since(stepStart).Milliseconds(),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		logger.Info("db_migration_step",
			"status", "success",
			"migration_step", step.Name,
			"step_duration_ms", time.Since(stepStart).Milliseconds(),
		)
	}

	logger.Info("db_migration_success",
		"status", "success",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
