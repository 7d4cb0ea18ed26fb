package state

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/jonathan/trend-radar/internal/types"
)

// ErrUndeclaredField is returned when an update writes a field its stage did not declare
var ErrUndeclaredField = errors.New("undeclared field")

// ErrFieldFrozen is returned when a write-once field is written a second time
var ErrFieldFrozen = errors.New("field already written")

// FieldError describes a rejected field write
type FieldError struct {
	Stage string
	Field Field
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("stage %s: field %s: %v", e.Stage, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Apply merges u into rc in place. Every written field must be in declared.
// The update is checked in full before anything is applied, so a rejected update leaves rc unchanged.
func Apply(rc *RunContext, stage string, u *Update, declared FieldSet) error {
	if u.Empty() {
		return nil
	}

	for _, f := range u.Fields() {
		if OrchestratorOwned(f) || !declared.Has(f) {
			return &FieldError{Stage: stage, Field: f, Err: ErrUndeclaredField}
		}
		if rule, _ := Rule(f); rule == MergeWriteOnce && written(rc, f) {
			return &FieldError{Stage: stage, Field: f, Err: ErrFieldFrozen}
		}
	}

	for _, f := range u.Fields() {
		switch f {
		case FieldKeywords:
			rc.Keywords = slices.Clone(u.keywords)
		case FieldRawEntities:
			rc.RawEntities = appendRaw(rc.RawEntities, u.raw)
		case FieldTechTrends:
			rc.TechTrends = slices.Clone(u.techTrends)
		case FieldMarketDemands:
			rc.MarketDemands = slices.Clone(u.marketDemands)
		case FieldDerivedScores:
			if rc.DerivedScores == nil {
				rc.DerivedScores = make(map[string]types.SubScores, len(u.scores))
			}
			maps.Copy(rc.DerivedScores, u.scores)
		case FieldRetrieval:
			rc.Retrieval = u.retrieval
		case FieldThemes:
			rc.Themes = u.themes
		case FieldReport:
			rc.Report = u.report
		case FieldErrorLog:
			rc.ErrorLog = append(rc.ErrorLog, u.errors...)
		case FieldMessages:
			rc.Messages = append(rc.Messages, u.messages...)
		}
	}
	return nil
}

func written(rc *RunContext, f Field) bool {
	switch f {
	case FieldThemes:
		return rc.Themes != nil
	default:
		return false
	}
}

// appendRaw appends entities whose id is not already present, preserving order.
// A retried collector therefore never duplicates an entity.
func appendRaw(current, add types.RawEntities) types.RawEntities {
	current.Papers = appendUnique(current.Papers, add.Papers, func(p types.Paper) string { return p.ID })
	current.Repositories = appendUnique(current.Repositories, add.Repositories, func(r types.Repository) string { return r.ID })
	current.Trends = appendUnique(current.Trends, add.Trends, func(t types.TrendSeries) string { return t.Keyword })
	current.MarketSnippets = appendUnique(current.MarketSnippets, add.MarketSnippets, func(m types.MarketSnippet) string { return m.ID })
	return current
}

func appendUnique[T any](current, add []T, id func(T) string) []T {
	if len(add) == 0 {
		return current
	}
	seen := make(map[string]bool, len(current)+len(add))
	for _, item := range current {
		seen[id(item)] = true
	}
	for _, item := range add {
		key := id(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		current = append(current, item)
	}
	return current
}
