// Package analysis derives scored technology and market entities from collected data.
package analysis

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/scoring"
	"github.com/jonathan/trend-radar/internal/types"
)

// Analyzer turns raw entities into scored entities
type Analyzer struct {
	engine           scoring.Engine
	topKeywords      int
	topProjects      int
	topMarketReports int
}

// New creates an Analyzer from the scoring configuration and the vocabulary competition table.
func New(cfg config.ScoringConfig, vocab *config.Vocabulary) *Analyzer {
	return &Analyzer{
		engine:           scoring.NewEngine(cfg, vocab.Competition),
		topKeywords:      cfg.TopKeywords,
		topProjects:      cfg.TopProjects,
		topMarketReports: cfg.TopMarketReports,
	}
}

// Engine returns the scoring engine used by the analyzer.
func (a *Analyzer) Engine() scoring.Engine {
	return a.engine
}

// KeywordCount is a paper keyword and the number of papers tagged with it
type KeywordCount struct {
	Keyword string
	Count   int
}

// TopKeywords counts paper keywords and returns the n most frequent, ties by keyword.
func TopKeywords(papers []types.Paper, n int) []KeywordCount {
	counts := make(map[string]int)
	for _, p := range papers {
		for _, kw := range p.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				counts[kw]++
			}
		}
	}

	out := make([]KeywordCount, 0, len(counts))
	for kw, c := range counts {
		out = append(out, KeywordCount{Keyword: kw, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// MatchRepositories returns the repositories whose name or description contains the
// keyword, or that were collected for it.
func MatchRepositories(keyword string, repos []types.Repository) []types.Repository {
	kw := strings.ToLower(keyword)
	var out []types.Repository
	for _, r := range repos {
		if strings.Contains(strings.ToLower(r.Name), kw) ||
			strings.Contains(strings.ToLower(r.Description), kw) ||
			containsEqualFold(r.Keywords, keyword) {
			out = append(out, r)
		}
	}
	return out
}

// TechCandidate is the evidence gathered for one technology before scoring
type TechCandidate struct {
	Name       string
	Tags       []string
	PaperCount int
	RepoCount  int
	TotalStars int
	Projects   []types.ProjectRef
	GrowthRate float64
}

// ScoreTech applies the eligibility gate and the maturity score to a candidate.
// The boolean is false when the candidate is excluded.
func (a *Analyzer) ScoreTech(c TechCandidate) (types.TechTrend, types.SubScores, bool) {
	verdict := a.engine.Assess(c.RepoCount, c.TotalStars)
	if !verdict.Eligible {
		return types.TechTrend{}, types.SubScores{}, false
	}

	maturity := a.engine.MaturityScore(c.PaperCount, c.TotalStars, c.RepoCount)
	maturity = scoring.Round1(scoring.Clamp(maturity*verdict.Factor, scoring.MinScore, scoring.MaxScore))

	trend := types.TechTrend{
		ID:         TechID(c.Name),
		Name:       c.Name,
		PaperCount: c.PaperCount,
		RepoCount:  c.RepoCount,
		TotalStars: c.TotalStars,
		Maturity:   maturity,
		GrowthRate: c.GrowthRate,
		Penalty:    verdict.Factor,
		Projects:   c.Projects,
		Tags:       c.Tags,
	}
	scores := types.SubScores{
		Maturity:    maturity,
		GrowthRate:  c.GrowthRate,
		Competition: a.engine.Competition.Pressure(c.Name, ""),
	}
	return trend, scores, true
}

// TechResult is the output of technology analysis
type TechResult struct {
	Trends []types.TechTrend
	Scores map[string]types.SubScores
	// Excluded lists keywords that failed the eligibility gate
	Excluded []string
}

// Tech derives technology trends from the collected papers, repositories and trend series.
// Trends are ordered by maturity descending, then name.
func (a *Analyzer) Tech(raw types.RawEntities) TechResult {
	res := TechResult{Scores: make(map[string]types.SubScores)}

	for _, kc := range TopKeywords(raw.Papers, a.topKeywords) {
		repos := MatchRepositories(kc.Keyword, raw.Repositories)
		candidate := TechCandidate{
			Name:       kc.Keyword,
			Tags:       []string{kc.Keyword},
			PaperCount: kc.Count,
			RepoCount:  len(repos),
			Projects:   topProjects(repos, a.topProjects),
			GrowthRate: seriesGrowth(kc.Keyword, raw.Trends),
		}
		for _, r := range repos {
			candidate.TotalStars += r.Stars
		}

		trend, scores, ok := a.ScoreTech(candidate)
		if !ok {
			res.Excluded = append(res.Excluded, kc.Keyword)
			continue
		}
		res.Trends = append(res.Trends, trend)
		res.Scores[trend.ID] = scores
	}

	sort.SliceStable(res.Trends, func(i, j int) bool {
		if res.Trends[i].Maturity != res.Trends[j].Maturity {
			return res.Trends[i].Maturity > res.Trends[j].Maturity
		}
		return res.Trends[i].Name < res.Trends[j].Name
	})
	return res
}

func topProjects(repos []types.Repository, n int) []types.ProjectRef {
	sorted := append([]types.Repository(nil), repos...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Stars != sorted[j].Stars {
			return sorted[i].Stars > sorted[j].Stars
		}
		return sorted[i].ID < sorted[j].ID
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	out := make([]types.ProjectRef, 0, len(sorted))
	for _, r := range sorted {
		out = append(out, types.ProjectRef{ID: r.ID, Name: r.Name, Stars: r.Stars, URL: r.URL})
	}
	return out
}

func seriesGrowth(keyword string, series []types.TrendSeries) float64 {
	for _, s := range series {
		if !strings.EqualFold(s.Keyword, keyword) {
			continue
		}
		values := make([]float64, 0, len(s.Points))
		for _, p := range s.Points {
			values = append(values, p.Value)
		}
		return scoring.GrowthRate(values)
	}
	return 0
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// TechID returns the stable identifier of a technology name.
func TechID(name string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "_"), "_")
	return "tech_" + slug
}

func containsEqualFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
