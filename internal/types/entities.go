// Package types provides type definitions for structured data used throughout the trend-radar system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "time"

// Paper is a research paper returned by the paper collector
type Paper struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Authors    []string  `json:"authors,omitempty"`
	Abstract   string    `json:"abstract,omitempty"`
	Published  time.Time `json:"published"`
	Categories []string  `json:"categories,omitempty"`
	URL        string    `json:"url,omitempty"`
	// Keywords holds the canonical search keywords that matched this paper
	Keywords []string `json:"keywords"`
}

// Repository is a code repository returned by the repository collector
type Repository struct {
	// ID is the full owner/name of the repository
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	Language    string    `json:"language,omitempty"`
	URL         string    `json:"url,omitempty"`
	Topics      []string  `json:"topics,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	Keywords    []string  `json:"keywords"`
}

// TrendPoint is one averaged observation of search interest
type TrendPoint struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

// TrendSeries is the search interest over time for a keyword
type TrendSeries struct {
	Keyword string       `json:"keyword"`
	Points  []TrendPoint `json:"points"`
}

// MarketSnippet is a search result describing market activity
type MarketSnippet struct {
	// ID is the result URL
	ID        string  `json:"id"`
	Query     string  `json:"query"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	Source    string  `json:"source,omitempty"`
	Relevance float64 `json:"relevance"`
}

// RawEntities groups the collector outputs by source
type RawEntities struct {
	Papers         []Paper         `json:"papers"`
	Repositories   []Repository    `json:"repositories"`
	Trends         []TrendSeries   `json:"trends"`
	MarketSnippets []MarketSnippet `json:"market_snippets"`
}

// Counts returns the number of entities per source name.
func (r RawEntities) Counts() map[string]int {
	return map[string]int{
		SourcePapers:         len(r.Papers),
		SourceRepositories:   len(r.Repositories),
		SourceTrends:         len(r.Trends),
		SourceMarketSnippets: len(r.MarketSnippets),
	}
}

// Source names used in configuration thresholds and error descriptors
const (
	SourcePapers         = "papers"
	SourceRepositories   = "repositories"
	SourceTrends         = "trends"
	SourceMarketSnippets = "market_snippets"
)
