package orchestrator

import (
	"context"
	"sync"

	"github.com/jonathan/trend-radar/internal/state"
)

// fakeStage records its executions and the views it received.
type fakeStage struct {
	name string
	fn   func(ctx context.Context, view *state.RunContext) (*state.Update, error)

	mu    sync.Mutex
	calls int
	views []*state.RunContext
}

func newStage(name string, fn func(ctx context.Context, view *state.RunContext) (*state.Update, error)) *fakeStage {
	if fn == nil {
		fn = func(context.Context, *state.RunContext) (*state.Update, error) {
			return state.NewUpdate().Note(name, "done"), nil
		}
	}
	return &fakeStage{name: name, fn: fn}
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Execute(ctx context.Context, view *state.RunContext) (*state.Update, error) {
	s.mu.Lock()
	s.calls++
	s.views = append(s.views, view)
	s.mu.Unlock()
	return s.fn(ctx, view)
}

func (s *fakeStage) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeStage) LastView() *state.RunContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.views) == 0 {
		return nil
	}
	return s.views[len(s.views)-1]
}

func def(stage *fakeStage, fatality Fatality, fields ...state.Field) StageDef {
	return StageDef{
		Name:     stage.name,
		Fatality: fatality,
		Produces: state.Fields(append(fields, state.FieldMessages)...),
		Stage:    stage,
	}
}

func always(ok bool, reason string) Predicate {
	return Predicate{
		Name: "test_gate",
		Eval: func(context.Context, *state.RunContext) (bool, string) { return ok, reason },
	}
}

func newRun(id string) *state.RunContext {
	return state.New(id, []string{"llm"}, false, nil)
}
