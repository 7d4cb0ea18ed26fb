// Package db provides PostgreSQL storage for run checkpoints and per-stage status.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/trend-radar/internal/checkpoint"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		run_id     TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		snapshot   JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status)`,
	`CREATE TABLE IF NOT EXISTS run_steps (
		run_id        TEXT NOT NULL REFERENCES pipeline_runs(run_id) ON DELETE CASCADE,
		step          TEXT NOT NULL,
		status        TEXT NOT NULL,
		started_at    TIMESTAMPTZ,
		completed_at  TIMESTAMPTZ,
		error_message TEXT,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (run_id, step)
	)`,
}

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database and creates the tables when missing.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

// Save stores the snapshot and the stage statuses it carries in one transaction.
// A snapshot with a lower sequence number than the stored one is ignored.
func (db *DB) Save(ctx context.Context, snap *checkpoint.Snapshot) error {
	data, err := checkpoint.Encode(snap)
	if err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO pipeline_runs (run_id, status, seq, snapshot)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id) DO UPDATE
		 SET status = EXCLUDED.status, seq = EXCLUDED.seq, snapshot = EXCLUDED.snapshot, updated_at = NOW()
		 WHERE EXCLUDED.seq >= pipeline_runs.seq`,
		snap.RunID, string(snap.Status), snap.Seq, data,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for run %s: %w", snap.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		// a newer snapshot is already stored
		return nil
	}

	batch := &pgx.Batch{}
	for _, row := range StepRows(snap) {
		batch.Queue(
			`INSERT INTO run_steps (run_id, step, status, started_at, completed_at, error_message)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (run_id, step) DO UPDATE
			 SET status = EXCLUDED.status,
			     started_at = COALESCE(run_steps.started_at, EXCLUDED.started_at),
			     completed_at = EXCLUDED.completed_at,
			     error_message = EXCLUDED.error_message,
			     updated_at = NOW()`,
			snap.RunID, row.Step, row.Status, row.StartedAt, row.CompletedAt, row.ErrorMessage,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save run steps for run %s: %w", snap.RunID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit checkpoint for run %s: %w", snap.RunID, err)
	}
	return nil
}

// Load reads the latest snapshot of a run, or returns nil, nil when there is none.
func (db *DB) Load(ctx context.Context, runID string) (*checkpoint.Snapshot, error) {
	if err := checkpoint.ValidateRunID(runID); err != nil {
		return nil, err
	}

	var data []byte
	err := db.pool.QueryRow(ctx,
		`SELECT snapshot FROM pipeline_runs WHERE run_id = $1`,
		runID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkpoint for run %s: %w", runID, err)
	}
	return checkpoint.Decode(runID, data)
}

// ListRuns returns the most recently updated runs, optionally filtered by status.
func (db *DB) ListRuns(ctx context.Context, status string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT run_id, status, seq, created_at, updated_at FROM pipeline_runs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.RunID, &run.Status, &run.Seq, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its steps.
func (db *DB) DeleteRun(ctx context.Context, runID string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM pipeline_runs WHERE run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
