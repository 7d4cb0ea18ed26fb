package analysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/types"
)

func newAnalyzer() *Analyzer {
	return New(config.Default().Scoring, config.DefaultVocabulary())
}

func papers(keyword string, n int) []types.Paper {
	out := make([]types.Paper, n)
	for i := range out {
		out[i] = types.Paper{ID: fmt.Sprintf("%s-%d", keyword, i), Keywords: []string{keyword}}
	}
	return out
}

func TestTopKeywords(t *testing.T) {
	var ps []types.Paper
	ps = append(ps, papers("b", 3)...)
	ps = append(ps, papers("a", 3)...)
	ps = append(ps, papers("c", 5)...)
	ps = append(ps, types.Paper{ID: "blank", Keywords: []string{" ", ""}})

	got := TopKeywords(ps, 2)
	assert.Equal(t, []KeywordCount{{"c", 5}, {"a", 3}}, got)
	assert.Len(t, TopKeywords(ps, 0), 3)
}

func TestMatchRepositories(t *testing.T) {
	repos := []types.Repository{
		{ID: "o/vector-db", Name: "vector-db", Description: "A Vector Database in Go"},
		{ID: "o/tagged", Name: "tagged", Keywords: []string{"VECTOR DATABASE"}},
		{ID: "o/other", Name: "other", Description: "unrelated"},
	}
	got := MatchRepositories("vector database", repos)
	require.Len(t, got, 2)
	assert.Equal(t, "o/vector-db", got[0].ID)
	assert.Equal(t, "o/tagged", got[1].ID)
}

func TestScoreTech_EligibilityScenario(t *testing.T) {
	a := newAnalyzer()

	inputs := []TechCandidate{
		{Name: "LLM agent platform", Tags: []string{"LLM agent"}, PaperCount: 100, TotalStars: 50000, RepoCount: 5},
		{Name: "LLM agent framework", Tags: []string{"LLM agent"}, PaperCount: 80, TotalStars: 20000, RepoCount: 3},
		{Name: "LLM agent theory", Tags: []string{"LLM agent"}, PaperCount: 10, TotalStars: 100, RepoCount: 0},
	}

	var kept []types.TechTrend
	for _, c := range inputs {
		if trend, _, ok := a.ScoreTech(c); ok {
			kept = append(kept, trend)
		}
	}

	require.Len(t, kept, 2)
	assert.Equal(t, 100.0, kept[0].Maturity)
	assert.Equal(t, 76.0, kept[1].Maturity)
}

func TestScoreTech_ZeroTractionExcludedForAnyPaperCount(t *testing.T) {
	a := newAnalyzer()
	for _, n := range []int{0, 1, 80, 100000} {
		_, _, ok := a.ScoreTech(TechCandidate{Name: "x", PaperCount: n})
		assert.False(t, ok, "paper count %d", n)
	}
}

func TestScoreTech_Penalty(t *testing.T) {
	a := newAnalyzer()

	trend, scores, ok := a.ScoreTech(TechCandidate{Name: "vector database", PaperCount: 10, TotalStars: 300, RepoCount: 2})
	require.True(t, ok)
	// base 0.6*1 + 0.4*0.006 = 60.24 -> 60.2, times 0.9*0.92
	assert.InDelta(t, 49.8, trend.Maturity, 0.05)
	assert.InDelta(t, 0.828, trend.Penalty, 1e-9)
	assert.Equal(t, trend.Maturity, scores.Maturity)
	assert.Equal(t, 50.0, scores.Competition)
}

func TestTech(t *testing.T) {
	a := newAnalyzer()

	raw := types.RawEntities{
		Papers: append(append(papers("LLM agent", 100), papers("vector database", 40)...), papers("AI observability", 5)...),
		Repositories: []types.Repository{
			{ID: "a/agents", Name: "agents", Description: "LLM agent toolkit", Stars: 30000, Keywords: []string{"LLM agent"}},
			{ID: "b/crew", Name: "crew", Stars: 15000, Keywords: []string{"LLM agent"}},
			{ID: "c/swarm", Name: "swarm", Stars: 5000, Keywords: []string{"LLM agent"}},
			{ID: "d/tiny", Name: "tiny", Stars: 10, Keywords: []string{"LLM agent"}},
			{ID: "e/vdb", Name: "vdb", Description: "vector database", Stars: 900},
			{ID: "f/vecs", Name: "vecs", Stars: 400, Keywords: []string{"vector database"}},
		},
		Trends: []types.TrendSeries{
			{Keyword: "llm agent", Points: []types.TrendPoint{{Value: 40}, {Value: 40}, {Value: 40}, {Value: 60}, {Value: 60}, {Value: 60}}},
		},
	}

	res := a.Tech(raw)
	require.Len(t, res.Trends, 2)
	assert.Equal(t, []string{"AI observability"}, res.Excluded)

	top := res.Trends[0]
	assert.Equal(t, "LLM agent", top.Name)
	assert.Equal(t, "tech_llm_agent", top.ID)
	assert.Equal(t, 100, top.PaperCount)
	assert.Equal(t, 4, top.RepoCount)
	assert.Equal(t, 50010, top.TotalStars)
	assert.Equal(t, 0.5, top.GrowthRate)
	require.Len(t, top.Projects, 3)
	assert.Equal(t, []string{"a/agents", "b/crew", "c/swarm"}, []string{top.Projects[0].ID, top.Projects[1].ID, top.Projects[2].ID})

	assert.Equal(t, "vector database", res.Trends[1].Name)
	assert.Contains(t, res.Scores, "tech_llm_agent")
	assert.Contains(t, res.Scores, "tech_vector_database")
	assert.Equal(t, 90.0, res.Scores["tech_llm_agent"].Competition)
}

func TestMarket(t *testing.T) {
	a := newAnalyzer()
	catalog := config.DefaultVocabulary().Markets
	snippets := []types.MarketSnippet{
		{ID: "https://x/1", Query: "sovereign AI market", Relevance: 0.4},
		{ID: "https://x/2", Query: "sovereign AI market", Relevance: 0.9},
		{ID: "https://x/3", Query: "AI diagnostics market", Relevance: 0.7},
	}

	res := a.Market(catalog, snippets)
	require.Len(t, res.Demands, len(catalog))
	require.Len(t, res.Scores, len(catalog))

	for i := 1; i < len(res.Demands); i++ {
		assert.GreaterOrEqual(t, res.Demands[i-1].Opportunity, res.Demands[i].Opportunity)
	}

	byID := map[string]types.MarketDemand{}
	for i, d := range res.Demands {
		byID[d.ID] = d
		if i >= 3 {
			assert.Empty(t, d.Reports, d.ID)
		}
	}

	// 600M, 38% growth, supported: 24 + 22.8 + 30
	sovereign := byID["market_005"]
	assert.InDelta(t, 76.8, sovereign.Opportunity, 0.001)
	assert.Equal(t, 55.0, res.Scores["market_009"].Competition)
	assert.Nil(t, catalog[0].Reports)

	assert.Equal(t, []string{"market_009", "market_001", "market_005"}, []string{res.Demands[0].ID, res.Demands[1].ID, res.Demands[2].ID})
	require.Len(t, sovereign.Reports, 2)
	assert.Equal(t, "https://x/2", sovereign.Reports[0].ID)
	assert.Empty(t, byID["market_006"].Reports)
}

func TestMarket_DefaultGrowth(t *testing.T) {
	a := newAnalyzer()
	res := a.Market([]types.MarketDemand{{ID: "m", Name: "m", MarketSizeUSD: 1e9}}, nil)
	require.Len(t, res.Demands, 1)
	// 40 + (0.2/0.5)*30
	assert.InDelta(t, 52.0, res.Demands[0].Opportunity, 0.001)
	assert.Equal(t, 0.2, res.Scores["m"].GrowthRate)
}
