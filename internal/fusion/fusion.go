// Package fusion clusters scored technology and market entities into configured themes
// and ranks the themes by a composite score.
package fusion

import (
	"math"
	"sort"
	"strings"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/scoring"
	"github.com/jonathan/trend-radar/internal/types"
)

const exampleCount = 3

// Empty result reasons
const (
	ReasonNoTech   = "no technology entities to cluster"
	ReasonNoMarket = "no market entities to cluster"
	ReasonNoThemes = "no theme matched both technology and market entities"
	ReasonNoRules  = "no themes configured"
)

// Engine ranks themes. It is stateless between calls.
type Engine struct {
	rules          []config.ThemeRule
	weights        config.FusionWeights
	growthCap      float64
	topN           int
	insightChars   int
	insightSources int
	competition    scoring.CompetitionTable
}

// New creates a fusion engine over the vocabulary theme rules.
func New(cfg config.FusionConfig, rules []config.ThemeRule, competition scoring.CompetitionTable) *Engine {
	return &Engine{
		rules:          rules,
		weights:        cfg.Weights,
		growthCap:      cfg.GrowthCap,
		topN:           cfg.TopN,
		insightChars:   cfg.InsightChars,
		insightSources: cfg.InsightSources,
		competition:    competition,
	}
}

// FinalScore combines the theme aggregates:
// clamp(wm*maturity + wo*opportunity + wg*min(growth/cap, 1)*100 - wc*competition, 0, 100),
// rounded to one decimal.
func FinalScore(avgMaturity, avgOpportunity, avgGrowth, competition float64, w config.FusionWeights, growthCap float64) float64 {
	score := w.Maturity*avgMaturity +
		w.Opportunity*avgOpportunity +
		w.Growth*GrowthTerm(avgGrowth, growthCap) -
		w.Competition*competition
	return scoring.Round1(scoring.Clamp(score, scoring.MinScore, scoring.MaxScore))
}

// GrowthTerm maps a growth fraction onto [0,100] saturating at growthCap.
func GrowthTerm(growth, growthCap float64) float64 {
	if growthCap <= 0 || math.IsNaN(growth) {
		return 0
	}
	return scoring.Clamp(growth/growthCap, 0, 1) * scoring.MaxScore
}

// Fuse clusters the entities into themes, drops themes missing either side and returns
// the top themes ordered by final score descending, then name ascending.
// A nil or unsuccessful retrieval result attaches no insight.
func (e *Engine) Fuse(tech []types.TechTrend, market []types.MarketDemand, retrieval *types.RetrievalResult) types.Ranking {
	ranking := types.Ranking{Themes: []types.Theme{}, Considered: len(e.rules)}

	switch {
	case len(e.rules) == 0:
		return empty(ranking, ReasonNoRules)
	case len(tech) == 0:
		return empty(ranking, ReasonNoTech)
	case len(market) == 0:
		return empty(ranking, ReasonNoMarket)
	}

	for _, rule := range e.rules {
		theme, ok := e.score(rule, tech, market)
		if !ok {
			ranking.Dropped = append(ranking.Dropped, rule.Name)
			continue
		}
		ranking.Themes = append(ranking.Themes, theme)
	}

	sort.SliceStable(ranking.Themes, func(i, j int) bool {
		a, b := ranking.Themes[i], ranking.Themes[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		return a.Name < b.Name
	})
	if e.topN > 0 && len(ranking.Themes) > e.topN {
		ranking.Themes = ranking.Themes[:e.topN]
	}

	insight := e.insight(retrieval)
	for i := range ranking.Themes {
		ranking.Themes[i].Rank = i + 1
		if insight != nil {
			cp := *insight
			cp.Sources = append([]types.SourceRef(nil), insight.Sources...)
			ranking.Themes[i].Insight = &cp
		}
	}

	if len(ranking.Themes) == 0 {
		return empty(ranking, ReasonNoThemes)
	}
	return ranking
}

func empty(r types.Ranking, reason string) types.Ranking {
	r.Themes = []types.Theme{}
	r.Empty = true
	r.Reason = reason
	return r
}

func (e *Engine) score(rule config.ThemeRule, tech []types.TechTrend, market []types.MarketDemand) (types.Theme, bool) {
	var techMembers []types.TechTrend
	for _, t := range tech {
		if matches(rule.Tech, t.Name, t.Tags) {
			techMembers = append(techMembers, t)
		}
	}
	var marketMembers []types.MarketDemand
	for _, m := range market {
		if matches(rule.Market, m.Name, m.Tags) {
			marketMembers = append(marketMembers, m)
		}
	}
	if len(techMembers) == 0 || len(marketMembers) == 0 {
		return types.Theme{}, false
	}

	// strongest first, ties by id
	sort.SliceStable(techMembers, func(i, j int) bool {
		if techMembers[i].Maturity != techMembers[j].Maturity {
			return techMembers[i].Maturity > techMembers[j].Maturity
		}
		return techMembers[i].ID < techMembers[j].ID
	})
	sort.SliceStable(marketMembers, func(i, j int) bool {
		if marketMembers[i].Opportunity != marketMembers[j].Opportunity {
			return marketMembers[i].Opportunity > marketMembers[j].Opportunity
		}
		return marketMembers[i].ID < marketMembers[j].ID
	})

	var sumMaturity, sumOpportunity, sumGrowth float64
	for _, t := range techMembers {
		sumMaturity += t.Maturity
	}
	for _, m := range marketMembers {
		sumOpportunity += m.Opportunity
		sumGrowth += m.Growth()
	}
	avgMaturity := sumMaturity / float64(len(techMembers))
	avgOpportunity := sumOpportunity / float64(len(marketMembers))
	avgGrowth := sumGrowth / float64(len(marketMembers))

	repTech, repMarket := techMembers[0], marketMembers[0]
	competition := e.competition.Pressure(repTech.Name, repMarket.Name)

	theme := types.Theme{
		Name:        rule.Name,
		FinalScore:  FinalScore(avgMaturity, avgOpportunity, avgGrowth, competition, e.weights, e.growthCap),
		Tech:        types.EntityRef{ID: repTech.ID, Name: repTech.Name, Signal: repTech.Maturity},
		Market:      types.EntityRef{ID: repMarket.ID, Name: repMarket.Name, Signal: repMarket.Opportunity},
		Members:     types.MemberCounts{Tech: len(techMembers), Market: len(marketMembers)},
		GrowthRate:  math.Round(avgGrowth*1000) / 1000,
		Competition: scoring.Round1(competition),
		Evidence: types.ThemeEvidence{
			AvgMaturity:    scoring.Round1(avgMaturity),
			AvgOpportunity: scoring.Round1(avgOpportunity),
			GrowthTerm:     scoring.Round1(GrowthTerm(avgGrowth, e.growthCap)),
		},
	}

	for i, t := range techMembers {
		theme.Evidence.TechIDs = append(theme.Evidence.TechIDs, t.ID)
		if i < exampleCount {
			theme.Evidence.TechExamples = append(theme.Evidence.TechExamples, t.Name)
		}
	}
	for i, m := range marketMembers {
		theme.Evidence.MarketIDs = append(theme.Evidence.MarketIDs, m.ID)
		if i < exampleCount {
			theme.Evidence.MarketExamples = append(theme.Evidence.MarketExamples, m.Name)
		}
	}
	theme.Evidence.Projects = strongestProjects(techMembers, exampleCount)
	return theme, true
}

// matches reports whether any keyword is a case-insensitive substring of the name or a tag.
func matches(keywords []string, name string, tags []string) bool {
	candidates := append([]string{name}, tags...)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		for _, c := range candidates {
			if strings.Contains(strings.ToLower(c), kw) {
				return true
			}
		}
	}
	return false
}

func strongestProjects(members []types.TechTrend, n int) []types.ProjectRef {
	seen := make(map[string]bool)
	var all []types.ProjectRef
	for _, t := range members {
		for _, p := range t.Projects {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			all = append(all, p)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Stars != all[j].Stars {
			return all[i].Stars > all[j].Stars
		}
		return all[i].ID < all[j].ID
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func (e *Engine) insight(r *types.RetrievalResult) *types.Insight {
	if r == nil || !r.OK || strings.TrimSpace(r.Answer) == "" {
		return nil
	}
	answer := r.Answer
	if e.insightChars > 0 {
		if runes := []rune(answer); len(runes) > e.insightChars {
			answer = string(runes[:e.insightChars])
		}
	}
	sources := r.Sources
	if len(sources) > e.insightSources {
		sources = sources[:e.insightSources]
	}
	return &types.Insight{Answer: answer, Sources: append([]types.SourceRef(nil), sources...)}
}
