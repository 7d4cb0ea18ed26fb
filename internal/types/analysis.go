package types

// SubScores is the per-entity score record kept in the derived score map
type SubScores struct {
	Maturity    float64 `json:"maturity_score"`
	Opportunity float64 `json:"opportunity_score"`
	// GrowthRate is a fraction, not a percentage
	GrowthRate  float64 `json:"growth_rate"`
	Competition float64 `json:"competition_score"`
}

// ProjectRef is a short reference to a repository used as evidence
type ProjectRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stars int    `json:"stars"`
	URL   string `json:"url,omitempty"`
}

// TechTrend is a technology entity derived from papers and repositories
type TechTrend struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	PaperCount int     `json:"paper_count"`
	RepoCount  int     `json:"repo_count"`
	TotalStars int     `json:"total_stars"`
	Maturity   float64 `json:"maturity_score"`
	GrowthRate float64 `json:"growth_rate"`
	// Penalty is the multiplicative factor applied to maturity (1 when none)
	Penalty  float64      `json:"penalty"`
	Projects []ProjectRef `json:"projects,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
}

// MarketDemand is a market entity from the configured catalog, scored for opportunity
type MarketDemand struct {
	ID             string          `json:"id" yaml:"id"`
	Name           string          `json:"name" yaml:"name"`
	Problem        string          `json:"problem,omitempty" yaml:"problem"`
	MarketSizeUSD  float64         `json:"market_size_usd" yaml:"market_size_usd"`
	GrowthRate     *float64        `json:"growth_rate,omitempty" yaml:"growth_rate"`
	GovSupport     bool            `json:"gov_support" yaml:"gov_support"`
	SearchKeywords []string        `json:"search_keywords,omitempty" yaml:"search_keywords"`
	Tags           []string        `json:"tags,omitempty" yaml:"tags"`
	Opportunity    float64         `json:"opportunity_score"`
	Reports        []MarketSnippet `json:"reports,omitempty"`
}

// DefaultGrowthRate is used when a market demand carries no growth rate
const DefaultGrowthRate = 0.20

// Growth returns the demand growth rate, falling back to DefaultGrowthRate.
func (m MarketDemand) Growth() float64 {
	if m.GrowthRate == nil {
		return DefaultGrowthRate
	}
	return *m.GrowthRate
}
