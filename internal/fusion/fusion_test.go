package fusion

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trend-radar/internal/analysis"
	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/types"
)

func growth(v float64) *float64 { return &v }

func newEngine(rules ...config.ThemeRule) *Engine {
	cfg := config.Default()
	a := analysis.New(cfg.Scoring, config.DefaultVocabulary())
	return New(cfg.Fusion, rules, a.Engine().Competition)
}

var workforce = config.ThemeRule{
	Name:   "AI Workforce Era",
	Tech:   []string{"LLM agent"},
	Market: []string{"SME automation"},
}

var smeMarket = types.MarketDemand{
	ID:          "market_001",
	Name:        "SME automation for back-office work",
	GrowthRate:  growth(0.48),
	Opportunity: 78.8,
}

func TestFuse_EligibilityScenario(t *testing.T) {
	cfg := config.Default()
	a := analysis.New(cfg.Scoring, config.DefaultVocabulary())

	candidates := []analysis.TechCandidate{
		{Name: "agent platform", Tags: []string{"LLM agent"}, PaperCount: 100, TotalStars: 50000, RepoCount: 5},
		{Name: "agent framework", Tags: []string{"LLM agent"}, PaperCount: 80, TotalStars: 20000, RepoCount: 3},
		{Name: "agent theory", Tags: []string{"LLM agent"}, PaperCount: 10, TotalStars: 100, RepoCount: 0},
	}
	var tech []types.TechTrend
	for _, c := range candidates {
		if trend, _, ok := a.ScoreTech(c); ok {
			tech = append(tech, trend)
		}
	}

	e := New(cfg.Fusion, []config.ThemeRule{workforce}, a.Engine().Competition)
	ranking := e.Fuse(tech, []types.MarketDemand{smeMarket}, nil)

	require.False(t, ranking.Empty)
	require.Len(t, ranking.Themes, 1)
	theme := ranking.Themes[0]
	assert.Equal(t, 1, theme.Rank)
	assert.Equal(t, types.MemberCounts{Tech: 2, Market: 1}, theme.Members)
	assert.Equal(t, analysis.TechID("agent platform"), theme.Tech.ID)
	assert.Equal(t, 100.0, theme.Tech.Signal)
	assert.Equal(t, []string{analysis.TechID("agent platform"), analysis.TechID("agent framework")}, theme.Evidence.TechIDs)
	assert.Equal(t, 88.0, theme.Evidence.AvgMaturity)
	// "agent" intensity 50 plus the SME segment bonus
	assert.Equal(t, 55.0, theme.Competition)
	// 0.3*88 + 0.4*78.8 + 0.3*96 - 0.15*55
	assert.Equal(t, 78.5, theme.FinalScore)
	assert.Nil(t, theme.Insight)
}

func TestFuse_DropsThemesMissingASide(t *testing.T) {
	e := newEngine(
		workforce,
		config.ThemeRule{Name: "No Tech", Tech: []string{"quantum"}, Market: []string{"SME automation"}},
		config.ThemeRule{Name: "No Market", Tech: []string{"LLM agent"}, Market: []string{"space mining"}},
	)
	tech := []types.TechTrend{{ID: "tech_llm_agent", Name: "LLM agent", Maturity: 70}}

	ranking := e.Fuse(tech, []types.MarketDemand{smeMarket}, nil)
	require.Len(t, ranking.Themes, 1)
	assert.Equal(t, "AI Workforce Era", ranking.Themes[0].Name)
	assert.Equal(t, []string{"No Tech", "No Market"}, ranking.Dropped)
	assert.Equal(t, 3, ranking.Considered)
}

func TestFuse_EmptyResultIsDistinct(t *testing.T) {
	e := newEngine(config.ThemeRule{Name: "Unmatched", Tech: []string{"quantum"}, Market: []string{"space"}})
	tech := []types.TechTrend{{ID: "tech_llm_agent", Name: "LLM agent", Maturity: 70}}

	ranking := e.Fuse(tech, []types.MarketDemand{smeMarket}, nil)
	assert.True(t, ranking.Empty)
	assert.Equal(t, ReasonNoThemes, ranking.Reason)
	assert.NotNil(t, ranking.Themes)
	assert.Empty(t, ranking.Themes)

	assert.Equal(t, ReasonNoTech, e.Fuse(nil, []types.MarketDemand{smeMarket}, nil).Reason)
	assert.Equal(t, ReasonNoMarket, e.Fuse(tech, nil, nil).Reason)
	assert.Equal(t, ReasonNoRules, newEngine().Fuse(tech, []types.MarketDemand{smeMarket}, nil).Reason)
}

func TestFuse_TiesBrokenByName(t *testing.T) {
	e := newEngine(
		config.ThemeRule{Name: "Gamma", Tech: []string{"agent"}, Market: []string{"sme"}},
		config.ThemeRule{Name: "Alpha", Tech: []string{"agent"}, Market: []string{"sme"}},
		config.ThemeRule{Name: "Beta", Tech: []string{"agent"}, Market: []string{"sme"}},
	)
	tech := []types.TechTrend{{ID: "tech_llm_agent", Name: "LLM agent", Maturity: 70}}

	ranking := e.Fuse(tech, []types.MarketDemand{smeMarket}, nil)
	require.Len(t, ranking.Themes, 3)
	for i, name := range []string{"Alpha", "Beta", "Gamma"} {
		assert.Equal(t, name, ranking.Themes[i].Name)
		assert.Equal(t, i+1, ranking.Themes[i].Rank)
	}
}

func TestFuse_RepresentativeTieBrokenByID(t *testing.T) {
	e := newEngine(workforce)
	tech := []types.TechTrend{
		{ID: "tech_b", Name: "LLM agent b", Maturity: 80},
		{ID: "tech_a", Name: "LLM agent a", Maturity: 80},
	}
	ranking := e.Fuse(tech, []types.MarketDemand{smeMarket}, nil)
	require.Len(t, ranking.Themes, 1)
	assert.Equal(t, "tech_a", ranking.Themes[0].Tech.ID)
}

func TestFuse_TopN(t *testing.T) {
	var rules []config.ThemeRule
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		rules = append(rules, config.ThemeRule{Name: name, Tech: []string{"agent"}, Market: []string{"sme"}})
	}
	e := newEngine(rules...)
	tech := []types.TechTrend{{ID: "t", Name: "LLM agent", Maturity: 50}}

	ranking := e.Fuse(tech, []types.MarketDemand{smeMarket}, nil)
	assert.Len(t, ranking.Themes, 5)
	assert.Equal(t, 5, ranking.Themes[4].Rank)
}

func TestFuse_Deterministic(t *testing.T) {
	vocab := config.DefaultVocabulary()
	cfg := config.Default()
	a := analysis.New(cfg.Scoring, vocab)
	e := New(cfg.Fusion, vocab.Themes, a.Engine().Competition)

	tech := []types.TechTrend{
		{ID: "tech_llm_agent", Name: "LLM agent", Maturity: 64.2, Tags: []string{"LLM agent"}},
		{ID: "tech_vector_database", Name: "vector database", Maturity: 51},
		{ID: "tech_mlops", Name: "MLOps", Maturity: 51},
		{ID: "tech_real_time_translation", Name: "real-time translation", Maturity: 33.3},
		{ID: "tech_code_intelligence", Name: "code intelligence", Maturity: 80},
	}
	market := a.Market(vocab.Markets, nil).Demands

	first := e.Fuse(tech, market, nil)
	require.False(t, first.Empty)

	reversedTech := make([]types.TechTrend, len(tech))
	for i := range tech {
		reversedTech[len(tech)-1-i] = tech[i]
	}
	reversedMarket := make([]types.MarketDemand, len(market))
	for i := range market {
		reversedMarket[len(market)-1-i] = market[i]
	}

	for range 5 {
		again := e.Fuse(reversedTech, reversedMarket, nil)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("ranking changed with input order (-first +again):\n%s", diff)
		}
	}

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(e.Fuse(tech, market, nil))
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
}

func TestFuse_Insight(t *testing.T) {
	e := newEngine(workforce)
	tech := []types.TechTrend{{ID: "t", Name: "LLM agent", Maturity: 50}}
	answer := strings.Repeat("é", 600)
	retrieval := &types.RetrievalResult{
		OK:     true,
		Answer: answer,
		Sources: []types.SourceRef{
			{Source: "a.md"}, {Source: "b.md"}, {Source: "c.md"},
		},
	}

	ranking := e.Fuse(tech, []types.MarketDemand{smeMarket}, retrieval)
	require.Len(t, ranking.Themes, 1)
	insight := ranking.Themes[0].Insight
	require.NotNil(t, insight)
	assert.Len(t, []rune(insight.Answer), 500)
	assert.Len(t, insight.Sources, 2)

	notOK := e.Fuse(tech, []types.MarketDemand{smeMarket}, &types.RetrievalResult{Answer: "x"})
	assert.Nil(t, notOK.Themes[0].Insight)
}

func TestFinalScore_Bounds(t *testing.T) {
	w := config.Default().Fusion.Weights
	values := []float64{math.Inf(-1), -1000, -1, 0, 0.5, 50, 100, 1000, math.Inf(1), math.NaN()}
	growths := []float64{-5, -0.1, 0, 0.25, 0.5, 3, math.NaN()}

	for _, m := range values {
		for _, o := range values {
			for _, g := range growths {
				for _, c := range values {
					got := FinalScore(m, o, g, c, w, 0.5)
					require.GreaterOrEqual(t, got, 0.0)
					require.LessOrEqual(t, got, 100.0)
				}
			}
		}
	}
}

func TestFinalScore(t *testing.T) {
	w := config.Default().Fusion.Weights
	assert.Equal(t, 78.5, FinalScore(88, 78.8, 0.48, 55, w, 0.5))
	// growth saturates at the cap
	assert.Equal(t, FinalScore(50, 50, 0.5, 50, w, 0.5), FinalScore(50, 50, 2, 50, w, 0.5))
	// penalty never drives the score negative
	assert.Equal(t, 0.0, FinalScore(0, 0, 0, 100, w, 0.5))
}
