package db

import (
	"context"
	"fmt"
	"sort"

	"github.com/jonathan/trend-radar/internal/checkpoint"
	"github.com/jonathan/trend-radar/internal/state"
)

// StepRows derives the run_steps rows from a snapshot. Timestamps are the snapshot's
// save time; the upsert keeps the first start time it saw.
func StepRows(snap *checkpoint.Snapshot) []RunStep {
	if snap.Context == nil {
		return nil
	}
	names := make([]string, 0, len(snap.Context.StageStatus))
	for name := range snap.Context.StageStatus {
		names = append(names, name)
	}
	sort.Strings(names)

	lastError := make(map[string]string)
	for _, e := range snap.Context.ErrorLog {
		if e.Stage != "" {
			lastError[e.Stage] = e.Message
		}
	}

	rows := make([]RunStep, 0, len(names))
	for _, name := range names {
		status := snap.Context.StageStatus[name]
		row := RunStep{RunID: snap.RunID, Step: name, Status: string(status), UpdatedAt: snap.SavedAt}
		if status != state.StatusPending {
			row.StartedAt = timePtr(snap.SavedAt)
		}
		if status.Terminal() {
			row.CompletedAt = timePtr(snap.SavedAt)
		}
		if msg, ok := lastError[name]; ok && status == state.StatusFailed {
			row.ErrorMessage = &msg
		}
		rows = append(rows, row)
	}
	return rows
}

// ListRunSteps retrieves all steps for a run, optionally filtered by status
func (db *DB) ListRunSteps(ctx context.Context, runID, status string) ([]RunStep, error) {
	query := `SELECT run_id, step, status, started_at, completed_at, error_message, updated_at
	          FROM run_steps
	          WHERE run_id = $1`
	args := []any{runID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY step"

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list run steps: %w", err)
	}
	defer rows.Close()

	var steps []RunStep
	for rows.Next() {
		var step RunStep
		if err := rows.Scan(&step.RunID, &step.Step, &step.Status, &step.StartedAt,
			&step.CompletedAt, &step.ErrorMessage, &step.UpdatedAt); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}
