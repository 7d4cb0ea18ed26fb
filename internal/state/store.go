package state

import (
	"sync"

	"github.com/jonathan/trend-radar/internal/types"
)

// Store serializes all writes to a run context. Stages never see the live record;
// they read snapshots and hand back updates.
type Store struct {
	mu sync.Mutex
	rc *RunContext
}

// NewStore wraps rc. The store takes ownership of rc.
func NewStore(rc *RunContext) *Store {
	if rc.StageStatus == nil {
		rc.StageStatus = make(map[string]StageStatus)
	}
	return &Store{rc: rc}
}

// Apply merges a stage update under the store lock.
func (s *Store) Apply(stage string, u *Update, declared FieldSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Apply(s.rc, stage, u, declared)
}

// SetStatus records a stage status. Only the orchestrator calls this.
func (s *Store) SetStatus(stage string, status StageStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rc.StageStatus[stage] = status
}

// Status returns the current status of a stage.
func (s *Store) Status(stage string) StageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rc.Status(stage)
}

// Statuses returns a copy of the stage status map.
func (s *Store) Statuses() map[string]StageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]StageStatus, len(s.rc.StageStatus))
	for k, v := range s.rc.StageStatus {
		out[k] = v
	}
	return out
}

// LogError appends orchestrator generated entries to the error log.
func (s *Store) LogError(entries ...types.ErrorEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rc.ErrorLog = append(s.rc.ErrorLog, entries...)
}

// Snapshot returns an independent copy of the current context.
func (s *Store) Snapshot() *RunContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rc.Clone()
}

// RunID returns the run identifier.
func (s *Store) RunID() string {
	return s.rc.RunID
}
