package scoring

import "sort"

// CompetitionTable maps keywords to competition intensity
type CompetitionTable struct {
	entries         []competitionEntry
	baseline        float64
	segmentBonus    float64
	segmentKeywords []string
}

type competitionEntry struct {
	keyword   string
	intensity float64
}

// NewCompetitionTable creates a table. Entries are kept in keyword order so lookups
// do not depend on map iteration.
func NewCompetitionTable(intensity map[string]float64, baseline, segmentBonus float64, segmentKeywords []string) CompetitionTable {
	t := CompetitionTable{
		baseline:        baseline,
		segmentBonus:    segmentBonus,
		segmentKeywords: append([]string(nil), segmentKeywords...),
	}
	for k, v := range intensity {
		t.entries = append(t.entries, competitionEntry{keyword: k, intensity: v})
	}
	sort.Slice(t.entries, func(i, j int) bool { return t.entries[i].keyword < t.entries[j].keyword })
	return t
}

// Pressure returns the competition pressure of an entity: the highest intensity among
// table keywords contained in entityName, or the baseline when none match, plus the
// segment bonus when marketName mentions a segment keyword. The result is within [0,100].
func (t CompetitionTable) Pressure(entityName, marketName string) float64 {
	score := t.baseline
	matched := false
	for _, e := range t.entries {
		if !containsFold(entityName, e.keyword) {
			continue
		}
		if !matched || e.intensity > score {
			score = e.intensity
		}
		matched = true
	}

	for _, kw := range t.segmentKeywords {
		if containsFold(marketName, kw) {
			score += t.segmentBonus
			break
		}
	}
	return Clamp(score, MinScore, MaxScore)
}
