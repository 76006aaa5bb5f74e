package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const postgresSchema = `
DO $$ BEGIN
	CREATE TYPE job_status AS ENUM ('bot', 'human', 'success', 'fail');
EXCEPTION
	WHEN duplicate_object THEN NULL;
END $$;

CREATE TABLE IF NOT EXISTS inference_jobs (
	job_id     TEXT PRIMARY KEY,
	status     job_status NOT NULL DEFAULT 'bot',
	payload    BYTEA NOT NULL,
	response   BYTEA,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_inference_jobs_status_created
	ON inference_jobs (status, created_at, job_id);
CREATE INDEX IF NOT EXISTS idx_inference_jobs_created
	ON inference_jobs (created_at, job_id);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS inference_jobs (
	job_id     TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'bot' CHECK (status IN ('bot', 'human', 'success', 'fail')),
	payload    BLOB NOT NULL,
	response   BLOB,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_inference_jobs_status_created
	ON inference_jobs (status, created_at, job_id);
CREATE INDEX IF NOT EXISTS idx_inference_jobs_created
	ON inference_jobs (created_at, job_id);
`

// Migrate creates the inference_jobs table for the given dialect
// ("postgres" or "sqlite"). It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sqlx.DB, dialect string) error {
	var schema string
	switch dialect {
	case "postgres":
		schema = postgresSchema
	case "sqlite":
		schema = sqliteSchema
	default:
		return fmt.Errorf("unsupported database dialect %q", dialect)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate %s schema: %w", dialect, err)
	}
	return nil
}
