package types

// EntityRef identifies an entity and the raw signal it was chosen on
type EntityRef struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Signal float64 `json:"signal"`
}

// MemberCounts holds how many entities of each side matched a theme
type MemberCounts struct {
	Tech   int `json:"tech"`
	Market int `json:"market"`
}

// ThemeEvidence keeps the raw references needed to explain a theme's rank
type ThemeEvidence struct {
	TechIDs        []string `json:"tech_ids"`
	MarketIDs      []string `json:"market_ids"`
	TechExamples   []string `json:"tech_examples"`
	MarketExamples []string `json:"market_examples"`
	// Projects are the strongest repositories behind the tech members
	Projects       []ProjectRef `json:"projects,omitempty"`
	AvgMaturity    float64      `json:"avg_maturity"`
	AvgOpportunity float64      `json:"avg_opportunity"`
	GrowthTerm     float64      `json:"growth_term"`
}

// Insight is the retrieval analysis attached to a ranked theme
type Insight struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
}

// Theme is one ranked theme record
type Theme struct {
	Rank        int           `json:"rank"`
	Name        string        `json:"name"`
	FinalScore  float64       `json:"final_score"`
	Tech        EntityRef     `json:"representative_tech"`
	Market      EntityRef     `json:"representative_market"`
	Members     MemberCounts  `json:"member_counts"`
	GrowthRate  float64       `json:"growth_rate"`
	Competition float64       `json:"competition_score"`
	Evidence    ThemeEvidence `json:"evidence"`
	Insight     *Insight      `json:"insight,omitempty"`
}

// Ranking is the fusion result. An empty ranking is still a valid result;
// Empty distinguishes it from a successful non-empty ranking.
type Ranking struct {
	Themes     []Theme  `json:"themes"`
	Considered int      `json:"considered"`
	Dropped    []string `json:"dropped,omitempty"`
	Empty      bool     `json:"empty"`
	Reason     string   `json:"reason,omitempty"`
}
