package state

import (
	"slices"
	"time"

	"github.com/jonathan/trend-radar/internal/types"
)

// Update is the partial context produced by one stage execution.
// Setters record which fields the update writes; Apply only touches those fields.
type Update struct {
	fields FieldSet

	keywords      []string
	raw           types.RawEntities
	techTrends    []types.TechTrend
	marketDemands []types.MarketDemand
	scores        map[string]types.SubScores
	retrieval     *types.RetrievalResult
	themes        *types.Ranking
	report        *types.ReportArtifact
	errors        []types.ErrorEntry
	messages      []types.Message
}

// NewUpdate returns an empty update.
func NewUpdate() *Update {
	return &Update{fields: make(FieldSet)}
}

func (u *Update) mark(f Field) {
	if u.fields == nil {
		u.fields = make(FieldSet)
	}
	u.fields[f] = true
}

// Fields returns the fields written by the update in name order.
func (u *Update) Fields() []Field {
	if u == nil {
		return nil
	}
	return u.fields.Sorted()
}

// Writes reports whether the update writes f.
func (u *Update) Writes(f Field) bool {
	return u != nil && u.fields.Has(f)
}

// Empty reports whether the update writes nothing.
func (u *Update) Empty() bool {
	return u == nil || len(u.fields) == 0
}

// SetKeywords overwrites the canonical keyword list.
func (u *Update) SetKeywords(keywords []string) *Update {
	u.keywords = slices.Clone(keywords)
	u.mark(FieldKeywords)
	return u
}

// AddPapers appends papers to the raw entities.
func (u *Update) AddPapers(papers ...types.Paper) *Update {
	u.raw.Papers = append(u.raw.Papers, papers...)
	u.mark(FieldRawEntities)
	return u
}

// AddRepositories appends repositories to the raw entities.
func (u *Update) AddRepositories(repos ...types.Repository) *Update {
	u.raw.Repositories = append(u.raw.Repositories, repos...)
	u.mark(FieldRawEntities)
	return u
}

// AddTrends appends trend series to the raw entities.
func (u *Update) AddTrends(series ...types.TrendSeries) *Update {
	u.raw.Trends = append(u.raw.Trends, series...)
	u.mark(FieldRawEntities)
	return u
}

// AddMarketSnippets appends market snippets to the raw entities.
func (u *Update) AddMarketSnippets(snippets ...types.MarketSnippet) *Update {
	u.raw.MarketSnippets = append(u.raw.MarketSnippets, snippets...)
	u.mark(FieldRawEntities)
	return u
}

// SetTechTrends overwrites the derived technology entities.
func (u *Update) SetTechTrends(trends []types.TechTrend) *Update {
	u.techTrends = slices.Clone(trends)
	u.mark(FieldTechTrends)
	return u
}

// SetMarketDemands overwrites the scored market entities.
func (u *Update) SetMarketDemands(demands []types.MarketDemand) *Update {
	u.marketDemands = slices.Clone(demands)
	u.mark(FieldMarketDemands)
	return u
}

// PutScores upserts the sub-scores of one entity.
func (u *Update) PutScores(entityID string, scores types.SubScores) *Update {
	if u.scores == nil {
		u.scores = make(map[string]types.SubScores)
	}
	u.scores[entityID] = scores
	u.mark(FieldDerivedScores)
	return u
}

// SetRetrieval overwrites the retrieval analysis.
func (u *Update) SetRetrieval(result types.RetrievalResult) *Update {
	u.retrieval = &result
	u.mark(FieldRetrieval)
	return u
}

// SetThemes sets the fusion ranking. It can be applied once per run.
func (u *Update) SetThemes(ranking types.Ranking) *Update {
	u.themes = &ranking
	u.mark(FieldThemes)
	return u
}

// SetReport overwrites the report artifact.
func (u *Update) SetReport(report types.ReportArtifact) *Update {
	u.report = &report
	u.mark(FieldReport)
	return u
}

// AppendErrors appends entries to the error log.
func (u *Update) AppendErrors(entries ...types.ErrorEntry) *Update {
	if len(entries) == 0 {
		return u
	}
	u.errors = append(u.errors, entries...)
	u.mark(FieldErrorLog)
	return u
}

// Note appends an inter-stage message.
func (u *Update) Note(stage, text string) *Update {
	u.messages = append(u.messages, types.Message{Stage: stage, Text: text, Time: time.Now().UTC()})
	u.mark(FieldMessages)
	return u
}

// Errors returns the error entries carried by the update.
func (u *Update) Errors() []types.ErrorEntry {
	if u == nil {
		return nil
	}
	return u.errors
}
