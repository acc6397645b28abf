package batchstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tailorforge/tailorbatch/pkg/batch"
)

// SQLiteStore is a Store backed by a local SQLite database.
//
// It keeps batches across process restarts, which the memory store
// cannot. The scheduler and orchestrator are unaware of which backing
// store is in use.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) a SQLite-backed batch
// store at path. ":memory:" opens a throwaway database.
//
// WAL and busy_timeout are applied for predictable behavior with a
// single writer and many concurrent readers.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("batch store path is required")
	}

	dsn := path
	if path != ":memory:" {
		dir := filepath.Dir(filepath.Clean(path))
		if dir != "." && dir != string(filepath.Separator) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
		dsn = "file:" + filepath.Clean(path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open batch store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping batch store: %w", err)
	}

	// Keep a single connection and use WAL to reduce lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if dsn != ":memory:" {
		var journalMode string
		if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		var busyTimeout int
		if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, total int, meta Meta) (*batch.Batch, error) {
	now := time.Now().UTC()
	b := batch.Batch{
		ID:        uuid.New().String(),
		State:     batch.StatePending,
		Label:     meta.Label,
		Mode:      meta.Mode,
		Total:     total,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (batch_id, state, label, mode, total, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, string(b.State), b.Label, b.Mode, b.Total,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}
	return &b, nil
}

func (s *SQLiteStore) GetStatus(ctx context.Context, batchID string) (*batch.Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT batch_id, state, label, mode, total, completed_count, failed_count,
		        COALESCE(current_activity, ''), COALESCE(failure_detail, ''),
		        created_at, updated_at, metrics_json
		 FROM batches WHERE batch_id = ?`, batchID)

	var b batch.Batch
	var state, createdAt, updatedAt, metricsJSON string
	var label, mode sql.NullString
	err := row.Scan(&b.ID, &state, &label, &mode, &b.Total, &b.CompletedCount, &b.FailedCount,
		&b.CurrentActivity, &b.FailureDetail, &createdAt, &updatedAt, &metricsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan batch: %w", err)
	}

	b.State = batch.State(state)
	b.Label = label.String
	b.Mode = mode.String
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &b.Metrics); err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}
	return &b, nil
}

func (s *SQLiteStore) GetResults(ctx context.Context, batchID string) ([]batch.ItemResult, error) {
	b, err := s.GetStatus(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !b.State.Terminal() {
		return nil, ErrResultsNotReady
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT item_index, status, COALESCE(result_ref, ''), COALESCE(error_detail, ''),
		        duration_ms, score_json
		 FROM batch_results WHERE batch_id = ? ORDER BY item_index`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]batch.ItemResult, 0, b.Total)
	for rows.Next() {
		var r batch.ItemResult
		var status string
		var scoreJSON sql.NullString
		if err := rows.Scan(&r.Index, &status, &r.ResultRef, &r.ErrorDetail, &r.DurationMs, &scoreJSON); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Status = batch.ItemStatus(status)
		if scoreJSON.Valid && scoreJSON.String != "" {
			var sr batch.ScoreReport
			if err := json.Unmarshal([]byte(scoreJSON.String), &sr); err != nil {
				return nil, fmt.Errorf("parse score: %w", err)
			}
			r.Score = &sr
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ApplyItemOutcome(ctx context.Context, batchID string, item batch.WorkItem) error {
	col := ""
	switch {
	case item.Status == batch.ItemCompleted:
		col = "completed_count"
	case item.Status.Failed():
		col = "failed_count"
	default:
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET `+col+` = `+col+` + 1, updated_at = ? WHERE batch_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), batchID)
	if err != nil {
		return fmt.Errorf("apply item outcome: %w", err)
	}
	return checkFound(res)
}

func (s *SQLiteStore) SetMetrics(ctx context.Context, batchID string, m batch.Metrics) error {
	metricsJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET metrics_json = ?, updated_at = ? WHERE batch_id = ?`,
		string(metricsJSON), time.Now().UTC().Format(time.RFC3339Nano), batchID)
	if err != nil {
		return fmt.Errorf("set metrics: %w", err)
	}
	return checkFound(res)
}

func (s *SQLiteStore) SetActivity(ctx context.Context, batchID string, activity string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET current_activity = ?, updated_at = ? WHERE batch_id = ?`,
		activity, time.Now().UTC().Format(time.RFC3339Nano), batchID)
	if err != nil {
		return fmt.Errorf("set activity: %w", err)
	}
	return checkFound(res)
}

func (s *SQLiteStore) Transition(ctx context.Context, batchID string, next batch.State) error {
	return s.transition(ctx, batchID, next, "")
}

func (s *SQLiteStore) Fail(ctx context.Context, batchID string, detail string) error {
	return s.transition(ctx, batchID, batch.StateFailed, detail)
}

// transition enforces monotonicity inside a transaction so concurrent
// callers cannot interleave a read-check-write.
func (s *SQLiteStore) transition(ctx context.Context, batchID string, next batch.State, detail string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT state FROM batches WHERE batch_id = ?`, batchID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	if !batch.State(current).CanTransition(next) {
		return illegalTransition(batch.State(current), next)
	}

	if detail != "" {
		_, err = tx.ExecContext(ctx,
			`UPDATE batches SET state = ?, failure_detail = ?, updated_at = ? WHERE batch_id = ?`,
			string(next), detail, time.Now().UTC().Format(time.RFC3339Nano), batchID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE batches SET state = ?, updated_at = ? WHERE batch_id = ?`,
			string(next), time.Now().UTC().Format(time.RFC3339Nano), batchID)
	}
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) PutResults(ctx context.Context, batchID string, results []batch.ItemResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM batches WHERE batch_id = ?`, batchID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check batch: %w", err)
	}

	for _, r := range results {
		var scoreJSON any
		if r.Score != nil {
			b, err := json.Marshal(r.Score)
			if err != nil {
				return fmt.Errorf("marshal score: %w", err)
			}
			scoreJSON = string(b)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO batch_results (batch_id, item_index, status, result_ref, error_detail, duration_ms, score_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(batch_id, item_index) DO UPDATE SET
			   status = excluded.status,
			   result_ref = excluded.result_ref,
			   error_detail = excluded.error_detail,
			   duration_ms = excluded.duration_ms,
			   score_json = excluded.score_json`,
			batchID, r.Index, string(r.Status), r.ResultRef, r.ErrorDetail, r.DurationMs, scoreJSON)
		if err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
