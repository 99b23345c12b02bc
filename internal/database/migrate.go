package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash BYTEA NOT NULL,
		display_name  TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS images (
		id                  TEXT PRIMARY KEY,
		object_key          TEXT NOT NULL,
		kind                TEXT NOT NULL,
		location            TEXT NOT NULL,
		structure_component TEXT NOT NULL,
		filename            TEXT NOT NULL,
		content_type        TEXT NOT NULL,
		size_bytes          BIGINT NOT NULL,
		capture_date        TIMESTAMPTZ,
		camera              TEXT NOT NULL DEFAULT '',
		notes               TEXT NOT NULL DEFAULT '',
		comparison_id       TEXT,
		uploaded_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_images_location_kind ON images (location, kind)`,
	`CREATE INDEX IF NOT EXISTS idx_images_uploaded_at ON images (uploaded_at DESC)`,
	`CREATE TABLE IF NOT EXISTS comparisons (
		id                    TEXT PRIMARY KEY,
		location              TEXT NOT NULL,
		structure_component   TEXT NOT NULL,
		baseline_object_key   TEXT NOT NULL,
		baseline_image_id     TEXT NOT NULL,
		baseline_filename     TEXT NOT NULL DEFAULT '',
		baseline_uploaded_at  TIMESTAMPTZ,
		current_object_key    TEXT NOT NULL,
		current_image_id      TEXT NOT NULL,
		current_filename      TEXT NOT NULL DEFAULT '',
		current_uploaded_at   TIMESTAMPTZ,
		diff_object_key       TEXT,
		diff_image_id         TEXT,
		diff_filename         TEXT,
		diff_uploaded_at      TIMESTAMPTZ,
		ssim_score            DOUBLE PRECISION NOT NULL DEFAULT 0,
		severity              TEXT NOT NULL,
		difference_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
		affected_area         DOUBLE PRECISION NOT NULL DEFAULT 0,
		contour_count         INTEGER NOT NULL DEFAULT 0,
		change_detected       BOOLEAN NOT NULL DEFAULT FALSE,
		message               TEXT NOT NULL DEFAULT '',
		recommendations       TEXT NOT NULL DEFAULT '',
		processing_time_ms    BIGINT NOT NULL DEFAULT 0,
		status                TEXT NOT NULL,
		alert_flag            BOOLEAN NOT NULL DEFAULT FALSE,
		error_message         TEXT,
		error_detail          TEXT,
		notes                 TEXT NOT NULL DEFAULT '',
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comparisons_location ON comparisons (location, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_comparisons_severity ON comparisons (severity, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_comparisons_alert ON comparisons (alert_flag, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_comparisons_status ON comparisons (status, created_at DESC)`,
}

// EnsureSchema creates the catalog tables if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
