// Package steps declares the stages of the trend analysis pipeline: their categories,
// upstream dependencies, fatality and the context fields each one produces.
package steps

import (
	"fmt"
	"sort"

	"github.com/jonathan/trend-radar/internal/orchestrator"
	"github.com/jonathan/trend-radar/internal/state"
)

// Stage names
const (
	Collector     = "collector"
	TechScoring   = "tech_scoring"
	MarketScoring = "market_scoring"
	Retrieval     = "retrieval"
	Fusion        = "fusion"
	Report        = "report"
)

// Step categories
const (
	CategoryCollection = "collection"
	CategoryScoring    = "scoring"
	CategoryEnrichment = "enrichment"
	CategoryFusion     = "fusion"
	CategoryRendering  = "rendering"
)

// StepDefinition defines metadata for a pipeline step
type StepDefinition struct {
	Name         string
	Category     string
	Description  string
	Dependencies []string
	Fatality     orchestrator.Fatality
	Produces     state.FieldSet
}

// StepRegistry holds all step definitions
var StepRegistry = map[string]StepDefinition{
	Collector: {
		Name:         Collector,
		Category:     CategoryCollection,
		Description:  "canonicalize keywords and gather papers, repositories, trend series and market snippets",
		Dependencies: []string{},
		Fatality:     orchestrator.NonFatal,
		Produces:     state.Fields(state.FieldKeywords, state.FieldRawEntities, state.FieldErrorLog, state.FieldMessages),
	},
	TechScoring: {
		Name:         TechScoring,
		Category:     CategoryScoring,
		Description:  "derive technology entities and their maturity, growth and competition scores",
		Dependencies: []string{Collector},
		Fatality:     orchestrator.Fatal,
		Produces:     state.Fields(state.FieldTechTrends, state.FieldDerivedScores, state.FieldMessages),
	},
	MarketScoring: {
		Name:         MarketScoring,
		Category:     CategoryScoring,
		Description:  "score the market catalog for opportunity and attach market evidence",
		Dependencies: []string{Collector},
		Fatality:     orchestrator.Fatal,
		Produces:     state.Fields(state.FieldMarketDemands, state.FieldDerivedScores, state.FieldMessages),
	},
	Retrieval: {
		Name:         Retrieval,
		Category:     CategoryEnrichment,
		Description:  "query the document index for supporting analysis",
		Dependencies: []string{MarketScoring, TechScoring},
		Fatality:     orchestrator.NonFatal,
		Produces:     state.Fields(state.FieldRetrieval, state.FieldMessages),
	},
	Fusion: {
		Name:         Fusion,
		Category:     CategoryFusion,
		Description:  "cluster entities into themes and rank them",
		Dependencies: []string{MarketScoring, Retrieval, TechScoring},
		Fatality:     orchestrator.Fatal,
		Produces:     state.Fields(state.FieldThemes, state.FieldErrorLog, state.FieldMessages),
	},
	Report: {
		Name:         Report,
		Category:     CategoryRendering,
		Description:  "render the ranked themes to markdown and JSON",
		Dependencies: []string{Fusion},
		Fatality:     orchestrator.NonFatal,
		Produces:     state.Fields(state.FieldReport, state.FieldMessages),
	},
}

// Names returns the registered step names in lexical order.
func Names() []string {
	names := make([]string, 0, len(StepRegistry))
	for name := range StepRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("missing dependencies: %v", e.MissingDependencies)
}

// Define turns a registry entry and its implementation into a stage declaration.
func Define(name string, impl orchestrator.Stage) (orchestrator.StageDef, error) {
	def, ok := StepRegistry[name]
	if !ok {
		return orchestrator.StageDef{}, fmt.Errorf("unknown step: %s", name)
	}
	return orchestrator.StageDef{
		Name:     def.Name,
		Category: def.Category,
		Fatality: def.Fatality,
		Produces: def.Produces,
		Stage:    impl,
	}, nil
}

// ValidateDependencies checks that every dependency of a step has finished.
// A skipped or non-fatally failed dependency counts as finished.
func ValidateDependencies(statuses map[string]state.StageStatus, stepName string) error {
	def, ok := StepRegistry[stepName]
	if !ok {
		return fmt.Errorf("unknown step: %s", stepName)
	}

	var missing []string
	for _, dep := range def.Dependencies {
		if !statuses[dep].Terminal() {
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{
			Step:                stepName,
			MissingDependencies: missing,
		}
	}
	return nil
}

// GetAvailableSteps returns pending steps whose dependencies have finished.
func GetAvailableSteps(statuses map[string]state.StageStatus) []string {
	var available []string
	for _, name := range Names() {
		if s := statuses[name]; s != "" && s != state.StatusPending {
			continue
		}
		if ValidateDependencies(statuses, name) == nil {
			available = append(available, name)
		}
	}
	return available
}

// GetBlockedSteps returns pending steps still waiting on a dependency.
func GetBlockedSteps(statuses map[string]state.StageStatus) []string {
	var blocked []string
	for _, name := range Names() {
		if s := statuses[name]; s != "" && s != state.StatusPending {
			continue
		}
		if ValidateDependencies(statuses, name) != nil {
			blocked = append(blocked, name)
		}
	}
	return blocked
}
