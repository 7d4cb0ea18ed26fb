// Package checkpoint persists run snapshots so an interrupted or failed run can resume
// from its last committed stage.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/trend-radar/internal/state"
)

// FormatVersion is the snapshot encoding version
const FormatVersion = 1

// RunStatus is the overall status of a run
type RunStatus string

// Run statuses
const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunAborted     RunStatus = "aborted"
	RunInterrupted RunStatus = "interrupted"
)

// Terminal reports whether a run in this status will not be scheduled again.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunAborted
}

// Snapshot is the durable state of a run after a commit
type Snapshot struct {
	Version int       `json:"version"`
	RunID   string    `json:"run_id"`
	Seq     int       `json:"seq"`
	Status  RunStatus `json:"status"`
	// Routes records, per stage, the targets chosen by its conditional edges
	Routes  map[string][]string `json:"routes,omitempty"`
	Context *state.RunContext   `json:"context"`
	SavedAt time.Time           `json:"saved_at"`
}

// Store saves and loads snapshots keyed by run id.
// Load returns nil, nil when no snapshot exists for the run.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, runID string) (*Snapshot, error)
	Close() error
}

// Encode serializes a snapshot.
func Encode(snap *Snapshot) ([]byte, error) {
	if err := ValidateRunID(snap.RunID); err != nil {
		return nil, err
	}
	if snap.Context == nil {
		return nil, fmt.Errorf("snapshot for run %s has no context", snap.RunID)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot and checks it belongs to runID.
func Decode(runID string, data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for run %s: %w", runID, err)
	}
	if snap.Version != FormatVersion {
		return nil, fmt.Errorf("snapshot for run %s has unsupported version %d", runID, snap.Version)
	}
	if snap.RunID != runID {
		return nil, fmt.Errorf("snapshot run id %q does not match %q", snap.RunID, runID)
	}
	if snap.Context == nil {
		return nil, fmt.Errorf("snapshot for run %s has no context", runID)
	}
	return &snap, nil
}

// ValidateRunID rejects ids that cannot be used as a storage key.
func ValidateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is empty")
	}
	if strings.ContainsAny(runID, `/\`) || strings.Contains(runID, "..") {
		return fmt.Errorf("run id %q contains path characters", runID)
	}
	return nil
}
