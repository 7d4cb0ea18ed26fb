package orchestrator

import "time"

// Event kinds emitted while a run progresses
const (
	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventStageFailed    = "stage_failed"
	EventStageSkipped   = "stage_skipped"
	EventRouted         = "routed"
	EventRunFinished    = "run_finished"
)

// ProgressEvent describes one scheduling step
type ProgressEvent struct {
	RunID    string        `json:"run_id"`
	Kind     string        `json:"kind"`
	Stage    string        `json:"stage,omitempty"`
	Category string        `json:"category,omitempty"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Time     time.Time     `json:"time"`
}

// ProgressCallback receives events from the committer goroutine. It must not block for long.
type ProgressCallback func(ProgressEvent)
