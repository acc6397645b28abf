package batchstore

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// migrate creates (or upgrades) the batch schema in-place.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS batches (
			batch_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			label TEXT,
			mode TEXT,
			total INTEGER NOT NULL,
			completed_count INTEGER NOT NULL DEFAULT 0,
			failed_count INTEGER NOT NULL DEFAULT 0,
			current_activity TEXT,
			failure_detail TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			metrics_json TEXT NOT NULL DEFAULT '{}'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_batches_created_at ON batches(created_at);`,

		`CREATE TABLE IF NOT EXISTS batch_results (
			batch_id TEXT NOT NULL,
			item_index INTEGER NOT NULL,
			status TEXT NOT NULL,
			result_ref TEXT,
			error_detail TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			score_json TEXT,
			PRIMARY KEY(batch_id, item_index),
			FOREIGN KEY(batch_id) REFERENCES batches(batch_id)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	if current != schemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, schemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
