package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/trend-radar/internal/checkpoint"
	"github.com/jonathan/trend-radar/internal/orchestrator"
	"github.com/jonathan/trend-radar/internal/pipeline"
	"github.com/jonathan/trend-radar/internal/types"
)

// RunRequest is the body of POST /runs and POST /runs/stream
type RunRequest struct {
	Keywords []string `json:"keywords"`
	Fast     bool     `json:"fast,omitempty"`
	RunID    string   `json:"run_id,omitempty"`
}

// RunResponse acknowledges a started or resumed run
type RunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunStatusResponse is the last checkpoint of a run
type RunStatusResponse struct {
	RunID    string                `json:"run_id"`
	Status   string                `json:"status"`
	Seq      int                   `json:"seq"`
	SavedAt  string                `json:"saved_at"`
	Fast     bool                  `json:"fast"`
	Keywords []string              `json:"keywords"`
	Stages   map[string]string     `json:"stages"`
	Themes   *types.Ranking        `json:"themes,omitempty"`
	Report   *types.ReportArtifact `json:"report,omitempty"`
	Errors   []types.ErrorEntry    `json:"errors"`
	Messages []types.Message       `json:"messages"`
}

// decodeRunRequest validates a run request and assigns a run id when none was given.
func (s *Server) decodeRunRequest(r *http.Request) (RunRequest, error) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, &ErrValidation{Field: "body", Message: err.Error()}
	}

	var kws []string
	for _, k := range req.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, k)
		}
	}
	if len(kws) == 0 {
		return req, &ErrValidation{Field: "keywords", Message: "at least one keyword is required"}
	}
	req.Keywords = kws

	if req.RunID == "" {
		req.RunID = uuid.New().String()
	} else if err := checkpoint.ValidateRunID(req.RunID); err != nil {
		return req, &ErrValidation{Field: "run_id", Message: err.Error()}
	}

	snap, err := s.store.Load(r.Context(), req.RunID)
	if err != nil {
		return req, err
	}
	if snap != nil {
		return req, fmt.Errorf("%w: %s", orchestrator.ErrRunExists, req.RunID)
	}
	return req, nil
}

func (req RunRequest) options(onProgress orchestrator.ProgressCallback) pipeline.RunOptions {
	return pipeline.RunOptions{RunID: req.RunID, Keywords: req.Keywords, Fast: req.Fast, OnProgress: onProgress}
}

// handleCreateRun starts a run in the background and returns its id.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRunRequest(r)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if !s.claim(req.RunID) {
		s.errorFrom(w, fmt.Errorf("%w: %s", ErrRunActive, req.RunID))
		return
	}

	logger := s.logger.With(zap.String("run_id", req.RunID))
	s.background(req.RunID, func(ctx context.Context) {
		res, err := s.pipeline.Run(ctx, s.store, req.options(nil))
		logOutcome(logger, res, err)
	})

	s.jsonResponse(w, http.StatusAccepted, RunResponse{RunID: req.RunID, Status: "started"})
}

// handleRunStream runs the pipeline within the request and streams progress events.
// A client disconnect interrupts the run, which stays resumable.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRunRequest(r)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if !s.claim(req.RunID) {
		s.errorFrom(w, fmt.Errorf("%w: %s", ErrRunActive, req.RunID))
		return
	}
	defer s.release(req.RunID)
	stream, err := newEventStream(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger := s.logger.With(zap.String("run_id", req.RunID))
	if err := stream.send("started", RunResponse{RunID: req.RunID, Status: "started"}); err != nil {
		logger.Warn("failed to write stream event", zap.Error(err))
	}
	relay := newProgressRelay(progressBuffer)
	done := make(chan struct{})
	var (
		res    *orchestrator.Result
		runErr error
	)
	go func() {
		defer close(done)
		res, runErr = s.pipeline.Run(r.Context(), s.store, req.options(relay.publish))
	}()
	relay.forward(stream, done)

	logOutcome(logger, res, runErr)
	if n := relay.dropped.Load(); n > 0 {
		logger.Warn("progress events dropped for a slow stream client", zap.Int64("dropped", n))
	}
	if runErr != nil {
		_ = stream.fail(runErr.Error())
	}
	if res != nil {
		_ = stream.complete(res.RunID, string(res.Status), len(res.ErrorLog()))
	}
}

// handleResumeRun continues an interrupted run in the background. A finished run is
// reported as is.
func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	snap, err := s.loadRun(r.Context(), runID)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if snap.Status.Terminal() {
		s.jsonResponse(w, http.StatusOK, RunResponse{RunID: runID, Status: string(snap.Status)})
		return
	}
	if !s.claim(runID) {
		s.errorFrom(w, fmt.Errorf("%w: %s", ErrRunActive, runID))
		return
	}

	logger := s.logger.With(zap.String("run_id", runID))
	s.background(runID, func(ctx context.Context) {
		res, err := s.pipeline.Resume(ctx, s.store, runID, nil)
		logOutcome(logger, res, err)
	})
	s.jsonResponse(w, http.StatusAccepted, RunResponse{RunID: runID, Status: "resuming"})
}

// handleGetRun returns the last checkpoint of a run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.loadRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	rc := snap.Context
	resp := RunStatusResponse{
		RunID:    snap.RunID,
		Status:   string(snap.Status),
		Seq:      snap.Seq,
		SavedAt:  snap.SavedAt.Format(time.RFC3339),
		Fast:     rc.Fast,
		Keywords: nonNil(rc.Keywords),
		Stages:   make(map[string]string, len(rc.StageStatus)),
		Themes:   rc.Themes,
		Report:   rc.Report,
		Errors:   nonNil(rc.ErrorLog),
		Messages: nonNil(rc.Messages),
	}
	for name, st := range rc.StageStatus {
		resp.Stages[name] = string(st)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) loadRun(ctx context.Context, runID string) (*checkpoint.Snapshot, error) {
	if err := checkpoint.ValidateRunID(runID); err != nil {
		return nil, &ErrValidation{Field: "run_id", Message: err.Error()}
	}
	return pipeline.Status(ctx, s.store, runID)
}

func logOutcome(logger *zap.Logger, res *orchestrator.Result, err error) {
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		logger.Error("run failed", zap.Error(err))
	case res == nil:
		return
	case res.Status == checkpoint.RunAborted:
		logger.Warn("run aborted", zap.Int("errors", len(res.ErrorLog())))
	default:
		logger.Info("run finished", zap.String("status", string(res.Status)), zap.Strings("executed", res.Executed))
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
