package analysis

import (
	"slices"
	"sort"

	"github.com/jonathan/trend-radar/internal/types"
)

// MarketResult is the output of market analysis
type MarketResult struct {
	Demands []types.MarketDemand
	Scores  map[string]types.SubScores
}

// Market scores every demand of the catalog for opportunity. The top demands by
// opportunity keep the market snippets collected for their search keywords as reports.
// Demands are ordered by opportunity descending, then id.
func (a *Analyzer) Market(catalog []types.MarketDemand, snippets []types.MarketSnippet) MarketResult {
	res := MarketResult{
		Demands: make([]types.MarketDemand, 0, len(catalog)),
		Scores:  make(map[string]types.SubScores, len(catalog)),
	}

	for _, d := range catalog {
		d.Tags = slices.Clone(d.Tags)
		d.SearchKeywords = slices.Clone(d.SearchKeywords)
		d.Reports = nil
		d.Opportunity = a.engine.OpportunityScore(d.MarketSizeUSD, d.Growth(), d.GovSupport)
		res.Demands = append(res.Demands, d)
		res.Scores[d.ID] = types.SubScores{
			Opportunity: d.Opportunity,
			GrowthRate:  d.Growth(),
			Competition: a.engine.Competition.Pressure("", d.Name),
		}
	}

	sort.SliceStable(res.Demands, func(i, j int) bool {
		if res.Demands[i].Opportunity != res.Demands[j].Opportunity {
			return res.Demands[i].Opportunity > res.Demands[j].Opportunity
		}
		return res.Demands[i].ID < res.Demands[j].ID
	})

	for i := range res.Demands {
		if i >= a.topMarketReports {
			break
		}
		res.Demands[i].Reports = reportsFor(res.Demands[i], snippets)
	}
	return res
}

func reportsFor(d types.MarketDemand, snippets []types.MarketSnippet) []types.MarketSnippet {
	var out []types.MarketSnippet
	for _, s := range snippets {
		if containsEqualFold(d.SearchKeywords, s.Query) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Relevance > out[j].Relevance
	})
	return out
}
