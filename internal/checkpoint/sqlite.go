package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // register sqlite3 driver
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS checkpoints (
		run_id   TEXT PRIMARY KEY,
		seq      INTEGER NOT NULL,
		status   TEXT NOT NULL,
		payload  TEXT NOT NULL,
		saved_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON checkpoints(status)`,
}

// SQLiteStore keeps snapshots in an embedded SQLite database, one row per run.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates when missing) the checkpoint database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	// A single connection keeps writes strictly ordered.
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create checkpoint schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Save upserts the run snapshot. Older sequence numbers never replace newer ones.
func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, seq, status, payload, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			seq = excluded.seq,
			status = excluded.status,
			payload = excluded.payload,
			saved_at = excluded.saved_at
		WHERE excluded.seq >= checkpoints.seq`,
		snap.RunID, snap.Seq, string(snap.Status), string(data), snap.SavedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for run %s: %w", snap.RunID, err)
	}
	return nil
}

// Load reads the run snapshot, or returns nil, nil when there is none.
func (s *SQLiteStore) Load(ctx context.Context, runID string) (*Snapshot, error) {
	if err := ValidateRunID(runID); err != nil {
		return nil, err
	}

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for run %s: %w", runID, err)
	}
	return Decode(runID, []byte(payload))
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
