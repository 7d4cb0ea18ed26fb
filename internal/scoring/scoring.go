// Package scoring provides the pure scoring functions used to normalize raw entity
// signals into bounded sub-scores.
package scoring

import (
	"math"
	"strings"

	"github.com/jonathan/trend-radar/internal/config"
)

// Score bounds
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// MaturityParams are the constants of the maturity score
type MaturityParams struct {
	// PapersPerRepo (K) is the number of papers expected per productized repository
	PapersPerRepo float64
	// StarsReference (S) is the star total at which the activity ratio saturates
	StarsReference       float64
	ProductizationWeight float64
	ActivityWeight       float64
}

// OpportunityParams are the constants of the opportunity score
type OpportunityParams struct {
	ReferenceMarketSize float64
	ReferenceGrowth     float64
	SizeWeight          float64
	GrowthWeight        float64
	SupportBonus        float64
}

// EligibilityParams configure the eligibility gate and the soft penalty
type EligibilityParams struct {
	MinRepos        int
	MinStars        int
	PenaltyMinRepos int
	PenaltyMinStars int
	RepoPenalty     float64
	StarPenalty     float64
}

// Engine bundles the scoring constants. It holds no mutable state.
type Engine struct {
	Maturity    MaturityParams
	Opportunity OpportunityParams
	Eligibility EligibilityParams
	Competition CompetitionTable
}

// NewEngine builds an Engine from configuration and the competition intensity table.
func NewEngine(cfg config.ScoringConfig, competition map[string]float64) Engine {
	return Engine{
		Maturity: MaturityParams{
			PapersPerRepo:        cfg.PapersPerRepo,
			StarsReference:       cfg.StarsReference,
			ProductizationWeight: cfg.ProductizationWeight,
			ActivityWeight:       cfg.ActivityWeight,
		},
		Opportunity: OpportunityParams{
			ReferenceMarketSize: cfg.ReferenceMarketSize,
			ReferenceGrowth:     cfg.ReferenceGrowth,
			SizeWeight:          cfg.SizeWeight,
			GrowthWeight:        cfg.GrowthWeight,
			SupportBonus:        cfg.SupportBonus,
		},
		Eligibility: EligibilityParams{
			MinRepos:        cfg.EligibilityMinRepos,
			MinStars:        cfg.EligibilityMinStars,
			PenaltyMinRepos: cfg.PenaltyMinRepos,
			PenaltyMinStars: cfg.PenaltyMinStars,
			RepoPenalty:     cfg.RepoPenalty,
			StarPenalty:     cfg.StarPenalty,
		},
		Competition: NewCompetitionTable(competition, cfg.CompetitionBaseline, cfg.SegmentBonus, cfg.SegmentKeywords),
	}
}

// Maturity scores how far a technology has moved from research into practice.
// productization = min(repos / max(papers/K, 1), 1), activity = min(stars/S, 1).
func Maturity(paperCount, totalStars, repoCount int, p MaturityParams) float64 {
	papers := math.Max(float64(paperCount), 0)
	repos := math.Max(float64(repoCount), 0)
	stars := math.Max(float64(totalStars), 0)

	expected := 1.0
	if p.PapersPerRepo > 0 {
		expected = math.Max(papers/p.PapersPerRepo, 1)
	}
	productization := math.Min(repos/expected, 1)

	activity := 0.0
	if p.StarsReference > 0 {
		activity = math.Min(stars/p.StarsReference, 1)
	}

	score := (p.ProductizationWeight*productization + p.ActivityWeight*activity) * MaxScore
	return Round1(Clamp(score, MinScore, MaxScore))
}

// Opportunity scores a market from its size, growth rate and public support.
func Opportunity(marketSizeUSD, growthRate float64, govSupport bool, p OpportunityParams) float64 {
	size := 0.0
	if p.ReferenceMarketSize > 0 {
		size = Clamp(marketSizeUSD/p.ReferenceMarketSize, 0, 1)
	}
	growth := 0.0
	if p.ReferenceGrowth > 0 {
		growth = Clamp(growthRate/p.ReferenceGrowth, 0, 1)
	}

	score := size*p.SizeWeight + growth*p.GrowthWeight
	if govSupport {
		score += p.SupportBonus
	}
	return Round1(Clamp(score, MinScore, MaxScore))
}

// Verdict is the outcome of the eligibility gate
type Verdict struct {
	Eligible bool
	// Factor multiplies the maturity score of an eligible entity
	Factor  float64
	Reasons []string
}

// Assess applies the eligibility gate: an entity whose repository count and star total
// are both under their minimums is excluded. Otherwise each count under its penalty
// threshold multiplies the factor by its penalty.
func Assess(repoCount, totalStars int, p EligibilityParams) Verdict {
	if repoCount < p.MinRepos && totalStars < p.MinStars {
		return Verdict{Eligible: false, Factor: 0, Reasons: []string{"insufficient repositories and stars"}}
	}

	v := Verdict{Eligible: true, Factor: 1}
	if repoCount < p.PenaltyMinRepos {
		v.Factor *= p.RepoPenalty
		v.Reasons = append(v.Reasons, "few repositories")
	}
	if totalStars < p.PenaltyMinStars {
		v.Factor *= p.StarPenalty
		v.Reasons = append(v.Reasons, "low stars")
	}
	return v
}

// GrowthRate returns the relative change between the mean of the first and last
// observations of a series, as a fraction. Series shorter than two points have no growth.
func GrowthRate(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	window := min(3, n/2)
	first, last := mean(values[:window]), mean(values[n-window:])
	if first <= 0 {
		return 0
	}
	rate := (last - first) / first
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0
	}
	return math.Round(rate*1000) / 1000
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Clamp bounds v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// containsFold reports whether substr is within s, ignoring case.
func containsFold(s, substr string) bool {
	return substr != "" && strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// MaturityScore scores with the engine constants.
func (e Engine) MaturityScore(paperCount, totalStars, repoCount int) float64 {
	return Maturity(paperCount, totalStars, repoCount, e.Maturity)
}

// OpportunityScore scores with the engine constants.
func (e Engine) OpportunityScore(marketSizeUSD, growthRate float64, govSupport bool) float64 {
	return Opportunity(marketSizeUSD, growthRate, govSupport, e.Opportunity)
}

// Assess applies the engine eligibility parameters.
func (e Engine) Assess(repoCount, totalStars int) Verdict {
	return Assess(repoCount, totalStars, e.Eligibility)
}
