package orchestrator

import (
	"slices"
	"sort"

	"github.com/jonathan/trend-radar/internal/state"
)

type edgeState int

const (
	edgePending edgeState = iota
	edgeActive
	edgeDead
)

// Plan is the scheduling decision for a set of stage statuses
type Plan struct {
	// Ready holds pending stages whose join requirements are met, in lexical order
	Ready []string
	// Skip holds pending stages that can never run because no incoming edge was taken
	Skip []string
}

// Plan computes the ready set from stage statuses and recorded routes alone, so the
// same checkpoint always yields the same plan. Skips propagate transitively.
func (g *Graph) Plan(statuses map[string]state.StageStatus, routes map[string][]string) Plan {
	current := make(map[string]state.StageStatus, len(g.names))
	for _, name := range g.names {
		current[name] = state.StatusPending
		if s, ok := statuses[name]; ok {
			current[name] = s
		}
	}

	var plan Plan
	for {
		var newlySkipped []string
		for _, name := range g.names {
			if current[name] != state.StatusPending || name == g.entry {
				continue
			}
			resolved, active := g.inbound(name, current, routes)
			if resolved && !active {
				newlySkipped = append(newlySkipped, name)
			}
		}
		if len(newlySkipped) == 0 {
			break
		}
		for _, name := range newlySkipped {
			current[name] = state.StatusSkipped
		}
		plan.Skip = append(plan.Skip, newlySkipped...)
	}

	for _, name := range g.names {
		if current[name] != state.StatusPending {
			continue
		}
		if name == g.entry {
			plan.Ready = append(plan.Ready, name)
			continue
		}
		if resolved, active := g.inbound(name, current, routes); resolved && active {
			plan.Ready = append(plan.Ready, name)
		}
	}

	sort.Strings(plan.Skip)
	return plan
}

// inbound reports whether every incoming edge of name has resolved and whether at least
// one of them was taken.
func (g *Graph) inbound(name string, statuses map[string]state.StageStatus, routes map[string][]string) (resolved, active bool) {
	resolved = true
	for _, l := range g.in[name] {
		switch g.edge(l, statuses, routes) {
		case edgePending:
			resolved = false
		case edgeActive:
			active = true
		}
	}
	return resolved, active
}

func (g *Graph) edge(l link, statuses map[string]state.StageStatus, routes map[string][]string) edgeState {
	switch statuses[l.from] {
	case state.StatusSkipped:
		return edgeDead
	case state.StatusCompleted:
	case state.StatusFailed:
		if def := g.stages[l.from]; def == nil || def.Fatality == Fatal {
			return edgePending
		}
	default:
		return edgePending
	}

	if !l.conditional {
		return edgeActive
	}
	chosen, ok := routes[l.from]
	if !ok {
		return edgePending
	}
	if slices.Contains(chosen, l.to) {
		return edgeActive
	}
	return edgeDead
}

// Finished reports whether every stage has reached a terminal status.
func (g *Graph) Finished(statuses map[string]state.StageStatus) bool {
	for _, name := range g.names {
		if !statuses[name].Terminal() {
			return false
		}
	}
	return true
}
