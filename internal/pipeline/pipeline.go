// Package pipeline wires the trend analysis stages into an orchestrated graph and runs it.
package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/trend-radar/internal/analysis"
	"github.com/jonathan/trend-radar/internal/checkpoint"
	"github.com/jonathan/trend-radar/internal/collectors"
	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/fusion"
	"github.com/jonathan/trend-radar/internal/keywords"
	"github.com/jonathan/trend-radar/internal/orchestrator"
	"github.com/jonathan/trend-radar/internal/pipeline/steps"
	"github.com/jonathan/trend-radar/internal/state"
	"github.com/jonathan/trend-radar/internal/types"
)

// Retriever answers analysis questions from the document index
type Retriever interface {
	Available(ctx context.Context) bool
	Analyze(ctx context.Context, query string) (types.RetrievalResult, error)
}

// Reporter writes the report of a run
type Reporter interface {
	Write(ctx context.Context, rc *state.RunContext, status string) (types.ReportArtifact, error)
}

// Options holds the dependencies of a Pipeline. Retriever and Reporter may be nil,
// which skips retrieval and report writing.
type Options struct {
	Config     *config.Config
	Vocabulary *config.Vocabulary
	Collectors []collectors.Collector
	Retriever  Retriever
	Reporter   Reporter
	Logger     *zap.Logger
}

// Pipeline is the validated stage graph plus the services its stages call
type Pipeline struct {
	cfg        *config.Config
	vocab      *config.Vocabulary
	canon      *keywords.Canonicalizer
	collectors *collectors.Set
	analyzer   *analysis.Analyzer
	fusion     *fusion.Engine
	retriever  Retriever
	reporter   Reporter
	logger     *zap.Logger
	graph      *orchestrator.Graph
}

// RunOptions holds the parameters of a new run
type RunOptions struct {
	// RunID defaults to a random UUID
	RunID      string
	Keywords   []string
	Fast       bool
	OnProgress orchestrator.ProgressCallback
}

// New builds the pipeline graph. Every registered step must have an implementation
// and the graph edges must match the registered dependencies.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("pipeline requires a configuration")
	}
	vocab := opts.Vocabulary
	if vocab == nil {
		vocab = config.DefaultVocabulary()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	analyzer := analysis.New(opts.Config.Scoring, vocab)
	p := &Pipeline{
		cfg:        opts.Config,
		vocab:      vocab,
		canon:      keywords.New(vocab, opts.Config.Canonicalization.Strict),
		collectors: collectors.NewSet(logger, opts.Collectors...),
		analyzer:   analyzer,
		fusion:     fusion.New(opts.Config.Fusion, vocab.Themes, analyzer.Engine().Competition),
		retriever:  opts.Retriever,
		reporter:   opts.Reporter,
		logger:     logger,
	}

	graph, err := p.buildGraph()
	if err != nil {
		return nil, err
	}
	p.graph = graph
	return p, nil
}

func (p *Pipeline) stages() map[string]orchestrator.Stage {
	stage := func(name string, fn func(context.Context, *state.RunContext) (*state.Update, error)) orchestrator.Stage {
		return orchestrator.StageFunc{StageName: name, Fn: fn}
	}
	return map[string]orchestrator.Stage{
		steps.Collector:     stage(steps.Collector, p.collect),
		steps.TechScoring:   stage(steps.TechScoring, p.scoreTech),
		steps.MarketScoring: stage(steps.MarketScoring, p.scoreMarket),
		steps.Retrieval:     stage(steps.Retrieval, p.retrieve),
		steps.Fusion:        stage(steps.Fusion, p.fuse),
		steps.Report:        stage(steps.Report, p.writeReport),
	}
}

func (p *Pipeline) buildGraph() (*orchestrator.Graph, error) {
	impls := p.stages()
	for name := range impls {
		if _, ok := steps.StepRegistry[name]; !ok {
			return nil, fmt.Errorf("stage %s is not registered", name)
		}
	}

	b := orchestrator.NewBuilder()
	for _, name := range steps.Names() {
		impl, ok := impls[name]
		if !ok {
			return nil, fmt.Errorf("no implementation for step %s", name)
		}
		def, err := steps.Define(name, impl)
		if err != nil {
			return nil, err
		}
		b.AddStage(def)
	}

	gate := RetrievalAvailable(p.retriever)
	b.SetEntry(steps.Collector).
		AddConditionalEdge(steps.Collector, MinimumVolume(p.cfg.MinVolume),
			[]string{steps.TechScoring, steps.MarketScoring}, []string{orchestrator.Abort}).
		AddConditionalEdge(steps.TechScoring, gate, []string{steps.Retrieval}, []string{steps.Fusion}).
		AddConditionalEdge(steps.MarketScoring, gate, []string{steps.Retrieval}, []string{steps.Fusion}).
		AddEdge(steps.Retrieval, steps.Fusion).
		AddEdge(steps.Fusion, steps.Report)

	graph, err := b.Build()
	if err != nil {
		return nil, err
	}

	for _, name := range graph.Stages() {
		want := slices.Sorted(slices.Values(steps.StepRegistry[name].Dependencies))
		if got := graph.Upstream(name); !slices.Equal(got, want) {
			return nil, fmt.Errorf("step %s: graph upstream %v does not match registered dependencies %v", name, got, want)
		}
	}
	return graph, nil
}

// Graph returns the validated stage graph.
func (p *Pipeline) Graph() *orchestrator.Graph {
	return p.graph
}

func (p *Pipeline) newOrchestrator(store checkpoint.Store, onProgress orchestrator.ProgressCallback) *orchestrator.Orchestrator {
	return orchestrator.New(p.graph, store, orchestrator.Options{
		MaxParallel: p.cfg.MaxParallel,
		Logger:      p.logger,
		OnProgress:  onProgress,
	})
}

// Run starts a new run. The returned result is non-nil whenever the run was started,
// even when an error is also returned.
func (p *Pipeline) Run(ctx context.Context, store checkpoint.Store, opts RunOptions) (*orchestrator.Result, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	rc := state.New(runID, opts.Keywords, opts.Fast, p.graph.Stages())

	p.logger.Info("starting run",
		zap.String("run_id", runID),
		zap.Strings("keywords", opts.Keywords),
		zap.Bool("fast", opts.Fast))
	res, err := p.newOrchestrator(store, opts.OnProgress).Start(ctx, rc)
	p.finish(ctx, res)
	return res, err
}

// Resume continues a stored run from its last checkpoint.
func (p *Pipeline) Resume(ctx context.Context, store checkpoint.Store, runID string, onProgress orchestrator.ProgressCallback) (*orchestrator.Result, error) {
	res, err := p.newOrchestrator(store, onProgress).Resume(ctx, runID)
	p.finish(ctx, res)
	return res, err
}

// Status loads the last checkpoint of a run.
func Status(ctx context.Context, store checkpoint.Store, runID string) (*checkpoint.Snapshot, error) {
	snap, err := store.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", orchestrator.ErrRunNotFound, runID)
	}
	return snap, nil
}

// finish writes a partial report for an aborted run so the error log is still rendered.
// The artifact is attached to the returned context only; the checkpoint is not changed.
func (p *Pipeline) finish(ctx context.Context, res *orchestrator.Result) {
	if res == nil || res.Context == nil || p.reporter == nil {
		return
	}
	if res.Status != checkpoint.RunAborted || res.Context.Report != nil {
		return
	}
	artifact, err := p.reporter.Write(context.WithoutCancel(ctx), res.Context, string(checkpoint.RunAborted))
	if err != nil {
		p.logger.Warn("failed to write report for aborted run", zap.String("run_id", res.RunID), zap.Error(err))
		return
	}
	res.Context.Report = &artifact
}
