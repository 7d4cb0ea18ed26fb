// Package state implements the run context record threaded through every pipeline stage
// and the merge rules used to commit stage updates into it.
package state

import (
	"fmt"
	"sort"
)

// Field names a context field a stage may declare as output
type Field string

// Context fields
const (
	FieldKeywords      Field = "keywords"
	FieldRawEntities   Field = "raw_entities"
	FieldTechTrends    Field = "tech_trends"
	FieldMarketDemands Field = "market_demands"
	FieldDerivedScores Field = "derived_scores"
	FieldRetrieval     Field = "retrieval"
	FieldThemes        Field = "themes"
	FieldReport        Field = "report"
	FieldErrorLog      Field = "error_log"
	FieldMessages      Field = "messages"
	// FieldStageStatus is owned by the orchestrator and may not be declared by a stage
	FieldStageStatus Field = "stage_status"
)

// MergeRule describes how a stage update to a field is combined with the current value
type MergeRule int

const (
	// MergeOverwrite replaces the old value with the new one
	MergeOverwrite MergeRule = iota
	// MergeAppend concatenates new elements after the existing ones
	MergeAppend
	// MergeKeyed upserts entries by key, leaving other keys untouched
	MergeKeyed
	// MergeWriteOnce sets the value once; a second write is rejected
	MergeWriteOnce
)

func (r MergeRule) String() string {
	switch r {
	case MergeOverwrite:
		return "overwrite"
	case MergeAppend:
		return "append"
	case MergeKeyed:
		return "keyed"
	case MergeWriteOnce:
		return "write-once"
	default:
		return fmt.Sprintf("MergeRule(%d)", int(r))
	}
}

var mergeRules = map[Field]MergeRule{
	FieldKeywords:      MergeOverwrite,
	FieldRawEntities:   MergeAppend,
	FieldTechTrends:    MergeOverwrite,
	FieldMarketDemands: MergeOverwrite,
	FieldDerivedScores: MergeKeyed,
	FieldRetrieval:     MergeOverwrite,
	FieldThemes:        MergeWriteOnce,
	FieldReport:        MergeOverwrite,
	FieldErrorLog:      MergeAppend,
	FieldMessages:      MergeAppend,
	FieldStageStatus:   MergeOverwrite,
}

// Rule returns the merge rule of a field. ok is false for unknown fields.
func Rule(f Field) (rule MergeRule, ok bool) {
	rule, ok = mergeRules[f]
	return rule, ok
}

// OrchestratorOwned reports whether only the orchestrator may write the field.
func OrchestratorOwned(f Field) bool {
	return f == FieldStageStatus
}

// ExclusiveWriter reports whether concurrent writers of the field would make the result
// depend on commit order.
func ExclusiveWriter(f Field) bool {
	rule, ok := mergeRules[f]
	return ok && (rule == MergeOverwrite || rule == MergeWriteOnce)
}

// FieldSet is a set of declared output fields
type FieldSet map[Field]bool

// Fields builds a FieldSet.
func Fields(fs ...Field) FieldSet {
	set := make(FieldSet, len(fs))
	for _, f := range fs {
		set[f] = true
	}
	return set
}

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool {
	return s[f]
}

// Sorted returns the fields in name order.
func (s FieldSet) Sorted() []Field {
	out := make([]Field, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StageStatus is the lifecycle state of one stage in a run
type StageStatus string

// Stage statuses
const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusCompleted StageStatus = "completed"
	StatusFailed    StageStatus = "failed"
	// StatusSkipped marks a stage on a branch that routing did not take
	StatusSkipped StageStatus = "skipped"
)

// Terminal reports whether the status can no longer change within the run.
func (s StageStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}
