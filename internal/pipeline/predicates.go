package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/trend-radar/internal/orchestrator"
	"github.com/jonathan/trend-radar/internal/state"
)

// Predicate names recorded in routing decisions
const (
	PredicateMinimumVolume      = "minimum_volume"
	PredicateRetrievalAvailable = "retrieval_available"
)

// MinimumVolume passes when every raw entity source named in thresholds holds at least
// its minimum count. The reason lists each shortfall.
func MinimumVolume(thresholds map[string]int) orchestrator.Predicate {
	sources := make([]string, 0, len(thresholds))
	for source := range thresholds {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	return orchestrator.Predicate{
		Name: PredicateMinimumVolume,
		Eval: func(_ context.Context, view *state.RunContext) (bool, string) {
			counts := view.RawEntities.Counts()
			var short []string
			for _, source := range sources {
				if n, want := counts[source], thresholds[source]; n < want {
					short = append(short, fmt.Sprintf("%s %d < %d", source, n, want))
				}
			}
			if len(short) > 0 {
				return false, "insufficient collection: " + strings.Join(short, ", ")
			}
			return true, "collection volume sufficient"
		},
	}
}

// RetrievalAvailable passes when a retriever is configured and its index holds documents.
func RetrievalAvailable(r Retriever) orchestrator.Predicate {
	return orchestrator.Predicate{
		Name: PredicateRetrievalAvailable,
		Eval: func(ctx context.Context, _ *state.RunContext) (bool, string) {
			if r == nil {
				return false, "retrieval disabled"
			}
			if !r.Available(ctx) {
				return false, "retrieval index missing or empty"
			}
			return true, "retrieval index available"
		},
	}
}
