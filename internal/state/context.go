package state

import (
	"maps"
	"slices"
	"time"

	"github.com/jonathan/trend-radar/internal/types"
)

// RunContext is the typed context record of one pipeline run.
// Accumulator fields start empty and only grow or get replaced through Apply.
type RunContext struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	// Fast records the limited collection mode the run was started with
	Fast bool `json:"fast"`
	// Requested holds the raw keywords before canonicalization
	Requested []string `json:"requested_keywords"`

	Keywords      []string                   `json:"keywords"`
	RawEntities   types.RawEntities          `json:"raw_entities"`
	TechTrends    []types.TechTrend          `json:"tech_trends"`
	MarketDemands []types.MarketDemand       `json:"market_demands"`
	DerivedScores map[string]types.SubScores `json:"derived_scores"`
	Retrieval     *types.RetrievalResult     `json:"retrieval,omitempty"`
	Themes        *types.Ranking             `json:"themes,omitempty"`
	Report        *types.ReportArtifact      `json:"report,omitempty"`

	StageStatus map[string]StageStatus `json:"stage_status"`
	ErrorLog    []types.ErrorEntry     `json:"error_log"`
	Messages    []types.Message        `json:"messages"`
}

// New creates the context for a fresh run with every stage pending.
func New(runID string, requested []string, fast bool, stages []string) *RunContext {
	rc := &RunContext{
		RunID:         runID,
		CreatedAt:     time.Now().UTC(),
		Fast:          fast,
		Requested:     slices.Clone(requested),
		DerivedScores: make(map[string]types.SubScores),
		StageStatus:   make(map[string]StageStatus, len(stages)),
	}
	for _, name := range stages {
		rc.StageStatus[name] = StatusPending
	}
	return rc
}

// Clone returns a copy whose top-level slices and maps are independent of rc.
// Elements are shared and must be treated as read-only.
func (rc *RunContext) Clone() *RunContext {
	if rc == nil {
		return nil
	}
	out := *rc
	out.Requested = slices.Clone(rc.Requested)
	out.Keywords = slices.Clone(rc.Keywords)
	out.RawEntities = types.RawEntities{
		Papers:         slices.Clone(rc.RawEntities.Papers),
		Repositories:   slices.Clone(rc.RawEntities.Repositories),
		Trends:         slices.Clone(rc.RawEntities.Trends),
		MarketSnippets: slices.Clone(rc.RawEntities.MarketSnippets),
	}
	out.TechTrends = slices.Clone(rc.TechTrends)
	out.MarketDemands = slices.Clone(rc.MarketDemands)
	out.DerivedScores = maps.Clone(rc.DerivedScores)
	out.StageStatus = maps.Clone(rc.StageStatus)
	out.ErrorLog = slices.Clone(rc.ErrorLog)
	out.Messages = slices.Clone(rc.Messages)
	if rc.Retrieval != nil {
		r := *rc.Retrieval
		r.Sources = slices.Clone(rc.Retrieval.Sources)
		out.Retrieval = &r
	}
	if rc.Themes != nil {
		t := *rc.Themes
		t.Themes = slices.Clone(rc.Themes.Themes)
		t.Dropped = slices.Clone(rc.Themes.Dropped)
		out.Themes = &t
	}
	if rc.Report != nil {
		r := *rc.Report
		out.Report = &r
	}
	return &out
}

// Status returns the status of a stage, pending when unknown.
func (rc *RunContext) Status(stage string) StageStatus {
	if s, ok := rc.StageStatus[stage]; ok {
		return s
	}
	return StatusPending
}
