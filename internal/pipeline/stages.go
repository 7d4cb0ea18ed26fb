package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/trend-radar/internal/checkpoint"
	"github.com/jonathan/trend-radar/internal/orchestrator"
	"github.com/jonathan/trend-radar/internal/pipeline/steps"
	"github.com/jonathan/trend-radar/internal/retrieval"
	"github.com/jonathan/trend-radar/internal/state"
	"github.com/jonathan/trend-radar/internal/types"
)

// collect canonicalizes the requested keywords and runs every collector.
func (p *Pipeline) collect(ctx context.Context, view *state.RunContext) (*state.Update, error) {
	kws, rejected := p.canon.Canonicalize(view.Requested)
	u := state.NewUpdate().SetKeywords(kws)
	for _, r := range rejected {
		u.Note(steps.Collector, fmt.Sprintf("keyword %q dropped: %s", r.Keyword, r.Reason))
	}
	if len(kws) == 0 {
		return u, orchestrator.Validation("no usable keywords after canonicalization of %q", view.Requested)
	}

	raw, errs := p.collectors.Collect(ctx, kws, p.cfg.LimitsFor(view.Fast))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u.AddPapers(raw.Papers...).
		AddRepositories(raw.Repositories...).
		AddTrends(raw.Trends...).
		AddMarketSnippets(raw.MarketSnippets...).
		AppendErrors(errs...)
	u.Note(steps.Collector, fmt.Sprintf("collected %d papers, %d repositories, %d trend series and %d market snippets for %s",
		len(raw.Papers), len(raw.Repositories), len(raw.Trends), len(raw.MarketSnippets), strings.Join(kws, ", ")))
	return u, nil
}

func (p *Pipeline) scoreTech(_ context.Context, view *state.RunContext) (*state.Update, error) {
	res := p.analyzer.Tech(view.RawEntities)
	u := state.NewUpdate().SetTechTrends(res.Trends)
	for id, scores := range res.Scores {
		u.PutScores(id, scores)
	}
	if len(res.Excluded) > 0 {
		u.Note(steps.TechScoring, fmt.Sprintf("%d keywords failed the eligibility gate: %s",
			len(res.Excluded), strings.Join(res.Excluded, ", ")))
	}
	u.Note(steps.TechScoring, fmt.Sprintf("%d technologies scored", len(res.Trends)))
	return u, nil
}

func (p *Pipeline) scoreMarket(_ context.Context, view *state.RunContext) (*state.Update, error) {
	res := p.analyzer.Market(p.vocab.Markets, view.RawEntities.MarketSnippets)
	u := state.NewUpdate().SetMarketDemands(res.Demands)
	for id, scores := range res.Scores {
		u.PutScores(id, scores)
	}
	u.Note(steps.MarketScoring, fmt.Sprintf("%d markets scored", len(res.Demands)))
	return u, nil
}

// retrieve asks the document index about the leading technologies.
func (p *Pipeline) retrieve(ctx context.Context, view *state.RunContext) (*state.Update, error) {
	if p.retriever == nil {
		return nil, fmt.Errorf("retrieval is not configured")
	}
	names := make([]string, 0, len(view.TechTrends))
	for _, t := range view.TechTrends {
		names = append(names, t.Name)
	}

	result, err := p.retriever.Analyze(ctx, retrieval.Question(names))
	if err != nil {
		return nil, orchestrator.Transient(fmt.Errorf("retrieval analysis failed: %w", err))
	}

	u := state.NewUpdate().SetRetrieval(result)
	if result.OK {
		u.Note(steps.Retrieval, fmt.Sprintf("answer drawn from %d document chunks", len(result.Sources)))
	} else {
		u.Note(steps.Retrieval, "no indexed document matched the question")
	}
	return u, nil
}

// fuse ranks the themes. An empty ranking is committed and recorded in the error log.
func (p *Pipeline) fuse(_ context.Context, view *state.RunContext) (*state.Update, error) {
	ranking := p.fusion.Fuse(view.TechTrends, view.MarketDemands, view.Retrieval)
	u := state.NewUpdate().SetThemes(ranking)

	if ranking.Empty {
		u.AppendErrors(types.ErrorEntry{
			Stage:   steps.Fusion,
			Kind:    types.ErrorKindFusion,
			Message: "empty ranking: " + ranking.Reason,
			Time:    time.Now().UTC(),
		})
		u.Note(steps.Fusion, "no theme qualified: "+ranking.Reason)
		return u, nil
	}

	names := make([]string, 0, len(ranking.Themes))
	for _, th := range ranking.Themes {
		names = append(names, th.Name)
	}
	u.Note(steps.Fusion, fmt.Sprintf("%d of %d themes ranked: %s", len(ranking.Themes), ranking.Considered, strings.Join(names, ", ")))
	if len(ranking.Dropped) > 0 {
		dropped := append([]string(nil), ranking.Dropped...)
		sort.Strings(dropped)
		u.Note(steps.Fusion, "dropped for a missing side: "+strings.Join(dropped, ", "))
	}
	return u, nil
}

func (p *Pipeline) writeReport(ctx context.Context, view *state.RunContext) (*state.Update, error) {
	if p.reporter == nil {
		return state.NewUpdate().Note(steps.Report, "report writing disabled"), nil
	}
	artifact, err := p.reporter.Write(ctx, view, string(checkpoint.RunCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	return state.NewUpdate().
		SetReport(artifact).
		Note(steps.Report, "report written to "+artifact.MarkdownPath), nil
}
