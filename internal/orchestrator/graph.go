// Package orchestrator executes a directed acyclic graph of named stages over a shared
// run context, with conditional routing, concurrent fan-out, join barriers and
// checkpointed resume.
package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/jonathan/trend-radar/internal/state"
)

// Abort is a routing target that ends the run with a fatal validation error
const Abort = "!abort"

// Stage is one executable unit. Execute reads an immutable view of the run context and
// returns the partial update to commit. Stages must not retain or mutate the view.
type Stage interface {
	Name() string
	Execute(ctx context.Context, view *state.RunContext) (*state.Update, error)
}

// StageFunc adapts a function to the Stage interface
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, view *state.RunContext) (*state.Update, error)
}

// Name returns the stage name.
func (s StageFunc) Name() string { return s.StageName }

// Execute calls the wrapped function.
func (s StageFunc) Execute(ctx context.Context, view *state.RunContext) (*state.Update, error) {
	return s.Fn(ctx, view)
}

// StageDef declares a stage: its implementation, fatality and the fields it produces
type StageDef struct {
	Name     string
	Category string
	Fatality Fatality
	Produces state.FieldSet
	Stage    Stage
}

// Predicate decides a conditional edge. Reason is recorded when the edge routes to Abort.
type Predicate struct {
	Name string
	Eval func(ctx context.Context, view *state.RunContext) (ok bool, reason string)
}

// ConditionalEdge routes from a stage to IfTrue or IfFalse depending on a predicate
type ConditionalEdge struct {
	From      string
	Predicate Predicate
	IfTrue    []string
	IfFalse   []string
}

// Targets returns the route for a predicate outcome.
func (c *ConditionalEdge) Targets(ok bool) []string {
	if ok {
		return c.IfTrue
	}
	return c.IfFalse
}

type link struct {
	from, to    string
	conditional bool
}

// Graph is a validated, immutable stage graph
type Graph struct {
	entry  string
	stages map[string]*StageDef
	names  []string
	in     map[string][]link
	out    map[string][]link
	conds  map[string]*ConditionalEdge
}

// Builder accumulates stage and edge declarations. Problems are reported together by Build.
type Builder struct {
	entry    string
	stages   map[string]*StageDef
	order    []string
	edges    []link
	conds    map[string]*ConditionalEdge
	problems []string
}

// NewBuilder returns an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{
		stages: make(map[string]*StageDef),
		conds:  make(map[string]*ConditionalEdge),
	}
}

func (b *Builder) problemf(format string, args ...any) {
	b.problems = append(b.problems, fmt.Sprintf(format, args...))
}

// AddStage declares a stage.
func (b *Builder) AddStage(def StageDef) *Builder {
	switch {
	case def.Name == "":
		b.problemf("stage with empty name")
		return b
	case def.Name == Abort:
		b.problemf("stage name %q is reserved", Abort)
		return b
	case b.stages[def.Name] != nil:
		b.problemf("duplicate stage %q", def.Name)
		return b
	case def.Stage == nil:
		b.problemf("stage %q has no implementation", def.Name)
	case def.Stage.Name() != def.Name:
		b.problemf("stage %q is implemented by %q", def.Name, def.Stage.Name())
	}
	d := def
	b.stages[def.Name] = &d
	b.order = append(b.order, def.Name)
	return b
}

// AddEdge declares an unconditional edge.
func (b *Builder) AddEdge(from, to string) *Builder {
	b.edges = append(b.edges, link{from: from, to: to})
	return b
}

// AddConditionalEdge declares a routed edge. A stage has at most one conditional edge.
func (b *Builder) AddConditionalEdge(from string, p Predicate, ifTrue, ifFalse []string) *Builder {
	if b.conds[from] != nil {
		b.problemf("stage %q has more than one conditional edge", from)
		return b
	}
	if p.Eval == nil {
		b.problemf("conditional edge from %q has no predicate", from)
	}
	b.conds[from] = &ConditionalEdge{
		From:      from,
		Predicate: p,
		IfTrue:    sortedCopy(ifTrue),
		IfFalse:   sortedCopy(ifFalse),
	}
	return b
}

// SetEntry sets the first stage of the graph.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

// Build validates the declarations and returns the graph, or a *ConfigError listing
// every problem found: unknown stages, cycles, unreachable stages, undeclared or
// orchestrator-owned output fields, and exclusive fields declared by stages that can
// run concurrently.
func (b *Builder) Build() (*Graph, error) {
	g := &Graph{
		entry:  b.entry,
		stages: b.stages,
		names:  sortedCopy(b.order),
		in:     make(map[string][]link),
		out:    make(map[string][]link),
		conds:  b.conds,
	}

	if b.entry == "" {
		b.problemf("no entry stage")
	} else if b.stages[b.entry] == nil {
		b.problemf("entry references unknown stage %q", b.entry)
	}

	for _, e := range b.edges {
		if b.checkEndpoint("edge", e.from, false) && b.checkEndpoint("edge", e.to, false) {
			g.addLink(e)
		}
	}
	for _, from := range sortedKeys(b.conds) {
		c := b.conds[from]
		if !b.checkEndpoint("conditional edge", from, false) {
			continue
		}
		if len(c.IfTrue) == 0 && len(c.IfFalse) == 0 {
			b.problemf("conditional edge from %q has no targets", from)
		}
		targets := make(map[string]bool)
		for _, to := range append(slices.Clone(c.IfTrue), c.IfFalse...) {
			if b.checkEndpoint("conditional edge", to, true) && to != Abort {
				targets[to] = true
			}
		}
		for _, to := range sortedKeys(targets) {
			g.addLink(link{from: from, to: to, conditional: true})
		}
	}

	if g.stages[b.entry] != nil && len(g.in[b.entry]) > 0 {
		b.problemf("entry stage %q has incoming edges", b.entry)
	}

	for _, name := range b.order {
		def := b.stages[name]
		for _, f := range def.Produces.Sorted() {
			if _, ok := state.Rule(f); !ok {
				b.problemf("stage %q declares unknown field %q", name, f)
			} else if state.OrchestratorOwned(f) {
				b.problemf("stage %q declares orchestrator-owned field %q", name, f)
			}
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		b.problemf("cycle detected: %v", cycle)
	} else {
		b.checkReachability(g)
		b.checkConcurrentWriters(g)
	}

	if len(b.problems) > 0 {
		return nil, &ConfigError{Problems: slices.Clone(b.problems)}
	}
	return g, nil
}

func (b *Builder) checkEndpoint(kind, name string, allowAbort bool) bool {
	if allowAbort && name == Abort {
		return true
	}
	if b.stages[name] == nil {
		b.problemf("%s references unknown stage %q", kind, name)
		return false
	}
	return true
}

func (g *Graph) addLink(l link) {
	for _, existing := range g.out[l.from] {
		if existing.to == l.to {
			return
		}
	}
	g.out[l.from] = append(g.out[l.from], l)
	g.in[l.to] = append(g.in[l.to], l)
}

// findCycle returns the stages of one cycle, or nil.
func (g *Graph) findCycle() []string {
	const (
		unvisited = iota
		visiting
		visited
	)
	marks := make(map[string]int, len(g.names))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		marks[name] = visiting
		stack = append(stack, name)
		for _, l := range g.out[name] {
			switch marks[l.to] {
			case visiting:
				start := slices.Index(stack, l.to)
				cycle = append(slices.Clone(stack[start:]), l.to)
				return true
			case unvisited:
				if visit(l.to) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		marks[name] = visited
		return false
	}

	for _, name := range g.names {
		if marks[name] == unvisited && visit(name) {
			return cycle
		}
	}
	return nil
}

func (g *Graph) descendants(name string) map[string]bool {
	seen := make(map[string]bool)
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, l := range g.out[cur] {
			if !seen[l.to] {
				seen[l.to] = true
				queue = append(queue, l.to)
			}
		}
	}
	return seen
}

func (b *Builder) checkReachability(g *Graph) {
	if g.stages[g.entry] == nil {
		return
	}
	reach := g.descendants(g.entry)
	reach[g.entry] = true
	for _, name := range g.names {
		if !reach[name] {
			b.problemf("stage %q is unreachable from entry %q", name, g.entry)
		}
	}
}

// checkConcurrentWriters rejects exclusive fields declared by two stages with no path
// between them, since their commit order is not defined.
func (b *Builder) checkConcurrentWriters(g *Graph) {
	desc := make(map[string]map[string]bool, len(g.names))
	for _, name := range g.names {
		desc[name] = g.descendants(name)
	}
	for i, a := range g.names {
		for _, c := range g.names[i+1:] {
			if desc[a][c] || desc[c][a] {
				continue
			}
			for _, f := range g.stages[a].Produces.Sorted() {
				if state.ExclusiveWriter(f) && g.stages[c].Produces.Has(f) {
					b.problemf("stages %q and %q may run concurrently and both write %s field %q",
						a, c, mustRule(f), f)
				}
			}
		}
	}
}

func mustRule(f state.Field) state.MergeRule {
	rule, _ := state.Rule(f)
	return rule
}

// Entry returns the entry stage name.
func (g *Graph) Entry() string { return g.entry }

// Stages returns all stage names in lexical order.
func (g *Graph) Stages() []string { return slices.Clone(g.names) }

// Def returns the declaration of a stage.
func (g *Graph) Def(name string) (*StageDef, bool) {
	def, ok := g.stages[name]
	return def, ok
}

// Conditional returns the conditional edge leaving a stage, if any.
func (g *Graph) Conditional(name string) (*ConditionalEdge, bool) {
	c, ok := g.conds[name]
	return c, ok
}

// Upstream returns the stages with an edge into name.
func (g *Graph) Upstream(name string) []string {
	var out []string
	for _, l := range g.in[name] {
		out = append(out, l.from)
	}
	sort.Strings(out)
	return slices.Compact(out)
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	sort.Strings(out)
	return slices.Compact(out)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
