package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/trend-radar/internal/checkpoint"
	"github.com/jonathan/trend-radar/internal/state"
	"github.com/jonathan/trend-radar/internal/types"
)

// Options configures an Orchestrator
type Options struct {
	// MaxParallel bounds concurrently executing stages; zero means unbounded
	MaxParallel int
	Logger      *zap.Logger
	OnProgress  ProgressCallback
}

// Orchestrator schedules a graph over a run context and checkpoints every commit.
type Orchestrator struct {
	graph  *Graph
	store  checkpoint.Store
	opts   Options
	logger *zap.Logger
}

// New creates an orchestrator. The checkpoint store is written only by this orchestrator.
func New(graph *Graph, store checkpoint.Store, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{graph: graph, store: store, opts: opts, logger: logger}
}

// Result is the outcome of Start or Resume
type Result struct {
	RunID   string
	Status  checkpoint.RunStatus
	Context *state.RunContext
	// Executed lists the stages executed by this call, in commit order
	Executed []string
}

// ErrorLog returns the accumulated error log of the run.
func (r *Result) ErrorLog() []types.ErrorEntry {
	if r == nil || r.Context == nil {
		return nil
	}
	return r.Context.ErrorLog
}

// Start runs a new pipeline over rc. Every graph stage starts pending.
func (o *Orchestrator) Start(ctx context.Context, rc *state.RunContext) (*Result, error) {
	if err := checkpoint.ValidateRunID(rc.RunID); err != nil {
		return nil, err
	}
	existing, err := o.store.Load(ctx, rc.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing run: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, rc.RunID)
	}

	rc = rc.Clone()
	rc.StageStatus = make(map[string]state.StageStatus, len(o.graph.names))
	for _, name := range o.graph.names {
		rc.StageStatus[name] = state.StatusPending
	}
	if rc.DerivedScores == nil {
		rc.DerivedScores = make(map[string]types.SubScores)
	}

	snap := &checkpoint.Snapshot{
		Version: checkpoint.FormatVersion,
		RunID:   rc.RunID,
		Status:  checkpoint.RunRunning,
		Routes:  make(map[string][]string),
		Context: rc,
	}
	return o.run(ctx, snap)
}

// Resume loads the last checkpoint of a run and continues scheduling. Completed stages
// are not executed again. Resuming a terminal run returns its stored result unchanged.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*Result, error) {
	snap, err := o.store.Load(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if snap.Status.Terminal() {
		o.logger.Info("run already finished", zap.String("run_id", runID), zap.String("status", string(snap.Status)))
		return &Result{RunID: runID, Status: snap.Status, Context: snap.Context}, nil
	}

	rc := snap.Context
	if rc.StageStatus == nil {
		rc.StageStatus = make(map[string]state.StageStatus)
	}
	for name := range rc.StageStatus {
		if _, ok := o.graph.stages[name]; !ok {
			return nil, fmt.Errorf("checkpoint of run %s references unknown stage %q", runID, name)
		}
	}
	for _, name := range o.graph.names {
		// A stage interrupted mid-flight never committed, so it runs again.
		if s, ok := rc.StageStatus[name]; !ok || s == state.StatusRunning {
			rc.StageStatus[name] = state.StatusPending
		}
	}
	if snap.Routes == nil {
		snap.Routes = make(map[string][]string)
	}
	snap.Status = checkpoint.RunRunning

	o.logger.Info("resuming run", zap.String("run_id", runID), zap.Int("seq", snap.Seq))
	return o.run(ctx, snap)
}

type stageResult struct {
	stage    string
	update   *state.Update
	err      error
	duration time.Duration
}

// runState is owned by the committer loop
type runState struct {
	store    *state.Store
	routes   map[string][]string
	seq      int
	aborted  bool
	executed []string
}

func (o *Orchestrator) run(ctx context.Context, snap *checkpoint.Snapshot) (*Result, error) {
	rs := &runState{
		store:  state.NewStore(snap.Context),
		routes: maps.Clone(snap.Routes),
		seq:    snap.Seq,
	}
	runID := snap.RunID
	logger := o.logger.With(zap.String("run_id", runID))

	// Saves use a context that survives cancellation so the final snapshot is written.
	saveCtx := context.WithoutCancel(ctx)
	if err := o.save(saveCtx, rs, checkpoint.RunRunning); err != nil {
		return nil, err
	}

	maxParallel := o.opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = len(o.graph.names)
	}

	results := make(chan stageResult)
	inFlight := 0
	var saveErr error

	for {
		if !rs.aborted && saveErr == nil && ctx.Err() == nil {
			plan := o.graph.Plan(rs.store.Statuses(), rs.routes)
			if len(plan.Skip) > 0 {
				for _, name := range plan.Skip {
					rs.store.SetStatus(name, state.StatusSkipped)
					logger.Info("stage skipped", zap.String("stage", name))
					o.emit(ProgressEvent{RunID: runID, Kind: EventStageSkipped, Stage: name})
				}
				saveErr = o.save(saveCtx, rs, checkpoint.RunRunning)
			}
			for _, name := range plan.Ready {
				if inFlight >= maxParallel || saveErr != nil {
					break
				}
				def := o.graph.stages[name]
				rs.store.SetStatus(name, state.StatusRunning)
				view := rs.store.Snapshot()
				inFlight++
				logger.Info("stage started", zap.String("stage", name))
				o.emit(ProgressEvent{RunID: runID, Kind: EventStageStarted, Stage: name, Category: def.Category})
				go execute(ctx, def, view, results)
			}
		}

		if inFlight == 0 {
			break
		}

		res := <-results
		inFlight--
		if err := o.commit(ctx, saveCtx, rs, res, logger); err != nil && saveErr == nil {
			saveErr = err
		}
	}

	status := o.finalStatus(ctx, rs, saveErr, logger)
	if err := o.save(saveCtx, rs, status); err != nil && saveErr == nil {
		saveErr = err
	}

	result := &Result{
		RunID:    runID,
		Status:   status,
		Context:  rs.store.Snapshot(),
		Executed: rs.executed,
	}
	o.emit(ProgressEvent{RunID: runID, Kind: EventRunFinished, Message: string(status)})
	logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("errors", len(result.Context.ErrorLog)),
		zap.Strings("executed", rs.executed))

	if saveErr != nil {
		return result, saveErr
	}
	if status == checkpoint.RunInterrupted {
		return result, ctx.Err()
	}
	return result, nil
}

// execute runs one stage on its own goroutine. Panics are converted to errors.
func execute(ctx context.Context, def *StageDef, view *state.RunContext, out chan<- stageResult) {
	start := time.Now()
	res := stageResult{stage: def.Name}
	defer func() {
		if r := recover(); r != nil {
			res.update = nil
			res.err = fmt.Errorf("stage %s panicked: %v", def.Name, r)
		}
		res.duration = time.Since(start)
		out <- res
	}()
	res.update, res.err = def.Stage.Execute(ctx, view)
}

// commit applies one stage result. It is only called from the run loop, which makes it
// the single writer of both the context and the checkpoint.
func (o *Orchestrator) commit(ctx, saveCtx context.Context, rs *runState, res stageResult, logger *zap.Logger) error {
	def := o.graph.stages[res.stage]
	logger = logger.With(zap.String("stage", res.stage))

	if res.err != nil && ctx.Err() != nil && (errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded)) {
		// Interrupted before committing; the stage stays pending for resume.
		rs.store.SetStatus(res.stage, state.StatusPending)
		logger.Warn("stage interrupted", zap.Error(res.err))
		return nil
	}

	rs.executed = append(rs.executed, res.stage)

	if err := rs.store.Apply(res.stage, res.update, def.Produces); err != nil {
		rs.store.LogError(errorEntry(res.stage, types.ErrorKindConfiguration, err.Error(), true))
		rs.store.SetStatus(res.stage, state.StatusFailed)
		rs.aborted = true
		logger.Error("stage update rejected", zap.Error(err))
		o.emit(ProgressEvent{RunID: rs.store.RunID(), Kind: EventStageFailed, Stage: res.stage, Message: err.Error()})
		return o.save(saveCtx, rs, checkpoint.RunAborted)
	}

	if res.err != nil {
		kind, fatal := classify(res.err, def.Fatality)
		rs.store.LogError(errorEntry(res.stage, kind, res.err.Error(), fatal))
		rs.store.SetStatus(res.stage, state.StatusFailed)
		o.emit(ProgressEvent{RunID: rs.store.RunID(), Kind: EventStageFailed, Stage: res.stage, Message: res.err.Error(), Duration: res.duration})
		if fatal {
			rs.aborted = true
			logger.Error("stage failed, aborting run", zap.Error(res.err), zap.String("kind", string(kind)))
			return o.save(saveCtx, rs, checkpoint.RunAborted)
		}
		logger.Warn("stage failed", zap.Error(res.err), zap.String("kind", string(kind)))
	} else {
		rs.store.SetStatus(res.stage, state.StatusCompleted)
		logger.Info("stage completed", zap.Duration("duration", res.duration))
		o.emit(ProgressEvent{RunID: rs.store.RunID(), Kind: EventStageCompleted, Stage: res.stage, Category: def.Category, Duration: res.duration})
	}

	if cond, ok := o.graph.conds[res.stage]; ok {
		o.route(ctx, rs, cond, logger)
	}

	status := checkpoint.RunRunning
	if rs.aborted {
		status = checkpoint.RunAborted
	}
	return o.save(saveCtx, rs, status)
}

// route evaluates a conditional edge against the committed context and records the choice.
func (o *Orchestrator) route(ctx context.Context, rs *runState, cond *ConditionalEdge, logger *zap.Logger) {
	ok, reason, err := evaluate(ctx, cond.Predicate, rs.store.Snapshot())
	if err != nil {
		rs.store.LogError(errorEntry(cond.From, types.ErrorKindConfiguration, err.Error(), true))
		rs.aborted = true
		logger.Error("routing predicate failed", zap.String("predicate", cond.Predicate.Name), zap.Error(err))
		return
	}

	targets := cond.Targets(ok)
	if slices.Contains(targets, Abort) {
		msg := fmt.Sprintf("%s: %s", cond.Predicate.Name, reason)
		rs.store.LogError(errorEntry(cond.From, types.ErrorKindValidation, msg, true))
		rs.aborted = true
		logger.Error("run aborted by routing", zap.String("predicate", cond.Predicate.Name), zap.String("reason", reason))
		o.emit(ProgressEvent{RunID: rs.store.RunID(), Kind: EventRouted, Stage: cond.From, Message: msg})
		return
	}

	rs.routes[cond.From] = slices.Clone(targets)
	logger.Info("routed",
		zap.String("predicate", cond.Predicate.Name),
		zap.Bool("outcome", ok),
		zap.Strings("targets", targets),
		zap.String("reason", reason))
	o.emit(ProgressEvent{RunID: rs.store.RunID(), Kind: EventRouted, Stage: cond.From, Message: fmt.Sprintf("%s -> %v", cond.Predicate.Name, targets)})
}

func evaluate(ctx context.Context, p Predicate, view *state.RunContext) (ok bool, reason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("predicate %s panicked: %v", p.Name, r)
		}
	}()
	ok, reason = p.Eval(ctx, view)
	return ok, reason, nil
}

func (o *Orchestrator) finalStatus(ctx context.Context, rs *runState, saveErr error, logger *zap.Logger) checkpoint.RunStatus {
	if rs.aborted {
		return checkpoint.RunAborted
	}
	if saveErr != nil {
		rs.store.LogError(errorEntry("", types.ErrorKindConfiguration, saveErr.Error(), true))
		return checkpoint.RunAborted
	}
	statuses := rs.store.Statuses()
	if o.graph.Finished(statuses) {
		return checkpoint.RunCompleted
	}
	if ctx.Err() != nil {
		rs.store.LogError(errorEntry("", types.ErrorKindInterrupted, ctx.Err().Error(), false))
		return checkpoint.RunInterrupted
	}

	var stuck []string
	for _, name := range o.graph.names {
		if !statuses[name].Terminal() {
			stuck = append(stuck, name)
		}
	}
	msg := fmt.Sprintf("stages never became ready: %v", stuck)
	logger.Error("run stalled", zap.Strings("stages", stuck))
	rs.store.LogError(errorEntry("", types.ErrorKindConfiguration, msg, true))
	return checkpoint.RunAborted
}

func (o *Orchestrator) save(ctx context.Context, rs *runState, status checkpoint.RunStatus) error {
	rs.seq++
	snap := &checkpoint.Snapshot{
		Version: checkpoint.FormatVersion,
		RunID:   rs.store.RunID(),
		Seq:     rs.seq,
		Status:  status,
		Routes:  maps.Clone(rs.routes),
		Context: rs.store.Snapshot(),
		SavedAt: time.Now().UTC(),
	}
	if err := o.store.Save(ctx, snap); err != nil {
		o.logger.Error("checkpoint save failed", zap.String("run_id", snap.RunID), zap.Int("seq", snap.Seq), zap.Error(err))
		return fmt.Errorf("failed to save checkpoint %d for run %s: %w", snap.Seq, snap.RunID, err)
	}
	return nil
}

func errorEntry(stage string, kind types.ErrorKind, msg string, fatal bool) types.ErrorEntry {
	return types.ErrorEntry{
		Stage:   stage,
		Kind:    kind,
		Message: msg,
		Fatal:   fatal,
		Time:    time.Now().UTC(),
	}
}

func (o *Orchestrator) emit(event ProgressEvent) {
	if o.opts.OnProgress == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	o.opts.OnProgress(event)
}
