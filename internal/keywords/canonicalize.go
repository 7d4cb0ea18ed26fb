// Package keywords normalizes user supplied search terms against the seed vocabulary.
package keywords

import (
	"sort"
	"strings"

	"github.com/jonathan/trend-radar/internal/config"
)

// Rejection explains why a raw keyword did not survive canonicalization
type Rejection struct {
	Keyword string `json:"keyword"`
	Reason  string `json:"reason"`
}

// Rejection reasons
const (
	ReasonEmpty        = "empty"
	ReasonStopword     = "stopword"
	ReasonNotWhitelist = "not in seed vocabulary"
)

// Canonicalizer applies alias resolution, stop-term rejection and the whitelist filter.
type Canonicalizer struct {
	aliases   map[string]string
	stopwords []string
	// whitelist maps a lowercased seed term to its canonical spelling
	whitelist map[string]string
	strict    bool
}

// New creates a Canonicalizer from the vocabulary. When strict is false, keywords outside
// the seed vocabulary pass through instead of being dropped.
func New(vocab *config.Vocabulary, strict bool) *Canonicalizer {
	c := &Canonicalizer{
		aliases:   make(map[string]string, len(vocab.Aliases)),
		whitelist: make(map[string]string, len(vocab.SeedTech)),
		strict:    strict,
	}
	for from, to := range vocab.Aliases {
		c.aliases[normalize(from)] = to
	}
	for _, stop := range vocab.Stopwords {
		if s := normalize(stop); s != "" {
			c.stopwords = append(c.stopwords, s)
		}
	}
	for _, seed := range vocab.SeedTech {
		c.whitelist[normalize(seed)] = seed
	}
	return c
}

// Canonicalize returns the sorted, deduplicated canonical keywords and the rejected inputs.
func (c *Canonicalizer) Canonicalize(raw []string) ([]string, []Rejection) {
	seen := make(map[string]bool)
	var out []string
	var rejected []Rejection

	for _, keyword := range raw {
		key := normalize(keyword)
		if key == "" {
			rejected = append(rejected, Rejection{Keyword: keyword, Reason: ReasonEmpty})
			continue
		}
		if c.isStopword(key) {
			rejected = append(rejected, Rejection{Keyword: keyword, Reason: ReasonStopword})
			continue
		}

		canonical := key
		if alias, ok := c.aliases[key]; ok {
			canonical = alias
		}
		if seed, ok := c.whitelist[normalize(canonical)]; ok {
			canonical = seed
		} else if c.strict {
			rejected = append(rejected, Rejection{Keyword: keyword, Reason: ReasonNotWhitelist})
			continue
		}

		if !seen[canonical] {
			seen[canonical] = true
			out = append(out, canonical)
		}
	}

	sort.Strings(out)
	return out, rejected
}

func (c *Canonicalizer) isStopword(key string) bool {
	for _, stop := range c.stopwords {
		if strings.Contains(key, stop) {
			return true
		}
	}
	return false
}

// normalize lowercases, trims and collapses inner whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
