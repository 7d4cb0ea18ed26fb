package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jonathan/trend-radar/internal/db"
	"github.com/jonathan/trend-radar/internal/pipeline/steps"
	"github.com/jonathan/trend-radar/internal/state"
)

// StepLister is implemented by stores that keep per-stage rows, such as db.DB.
type StepLister interface {
	ListRunSteps(ctx context.Context, runID, status string) ([]db.RunStep, error)
}

// RunLister is implemented by stores that index runs by status, such as db.DB.
type RunLister interface {
	ListRuns(ctx context.Context, status string, limit int) ([]db.Run, error)
}

// RunListResponse is the body of GET /runs
type RunListResponse struct {
	Runs  []db.Run `json:"runs"`
	Count int      `json:"count"`
}

// handleListRuns returns the most recently updated runs, filtered by ?status= and
// bounded by ?limit=. Only stores that index runs support listing.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.store.(RunLister)
	if !ok {
		s.errorResponse(w, http.StatusNotImplemented, "run listing requires the postgres checkpoint store")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			s.errorFrom(w, &ErrValidation{Field: "limit", Message: "must be between 1 and 500"})
			return
		}
		limit = n
	}

	runs, err := lister.ListRuns(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, RunListResponse{Runs: nonNil(runs), Count: len(runs)})
}

// StepStatusResponse represents the status of a single step
type StepStatusResponse struct {
	Step         string   `json:"step"`
	Category     string   `json:"category,omitempty"`
	Status       string   `json:"status"`
	StartedAt    *string  `json:"started_at,omitempty"`
	CompletedAt  *string  `json:"completed_at,omitempty"`
	Error        *string  `json:"error,omitempty"`
	Dependencies []string `json:"dependencies"`
	BlockedBy    []string `json:"blocked_by,omitempty"`
}

// RunStepsListResponse represents the list of all steps for a run
type RunStepsListResponse struct {
	RunID   string               `json:"run_id"`
	Status  string               `json:"status"`
	Steps   []StepStatusResponse `json:"steps"`
	Summary RunStepsSummary      `json:"summary"`
}

// RunStepsSummary represents a summary of step statuses
type RunStepsSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Running   int `json:"running"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// handleListRunSteps returns the stage statuses of a run, optionally filtered by
// ?status=. Stores without step rows derive them from the last checkpoint.
func (s *Server) handleListRunSteps(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	snap, err := s.loadRun(r.Context(), runID)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	filter := r.URL.Query().Get("status")

	var rows []db.RunStep
	if lister, ok := s.store.(StepLister); ok {
		rows, err = lister.ListRunSteps(r.Context(), runID, filter)
		if err != nil {
			s.errorFrom(w, err)
			return
		}
	} else {
		for _, row := range db.StepRows(snap) {
			if filter == "" || row.Status == filter {
				rows = append(rows, row)
			}
		}
	}

	resp := RunStepsListResponse{
		RunID:  runID,
		Status: string(snap.Status),
		Steps:  make([]StepStatusResponse, 0, len(rows)),
	}
	for _, row := range rows {
		step := StepStatusResponse{
			Step:         row.Step,
			Status:       row.Status,
			StartedAt:    formatTime(row.StartedAt),
			CompletedAt:  formatTime(row.CompletedAt),
			Error:        row.ErrorMessage,
			Dependencies: []string{},
		}
		if def, ok := steps.StepRegistry[row.Step]; ok {
			step.Category = def.Category
			step.Dependencies = append(step.Dependencies, def.Dependencies...)
		}
		if row.Status == string(state.StatusPending) {
			var depErr *steps.DependencyError
			if err := steps.ValidateDependencies(snap.Context.StageStatus, row.Step); errors.As(err, &depErr) {
				step.BlockedBy = depErr.MissingDependencies
			}
		}
		resp.Steps = append(resp.Steps, step)
		resp.Summary.add(state.StageStatus(row.Status))
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (sum *RunStepsSummary) add(status state.StageStatus) {
	sum.Total++
	switch status {
	case state.StatusCompleted:
		sum.Completed++
	case state.StatusRunning:
		sum.Running++
	case state.StatusPending:
		sum.Pending++
	case state.StatusFailed:
		sum.Failed++
	case state.StatusSkipped:
		sum.Skipped++
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
