package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/trend-radar/internal/types"
)

// ThemeRule defines a named theme by its technology-side and market-side keywords
type ThemeRule struct {
	Name   string   `yaml:"name" json:"name"`
	Tech   []string `yaml:"tech" json:"tech"`
	Market []string `yaml:"market" json:"market"`
}

// Vocabulary is the fixed domain vocabulary: seed keywords, normalization rules,
// theme rules, the competition intensity table and the market catalog.
type Vocabulary struct {
	SeedTech    []string             `yaml:"seed_tech" json:"seed_tech"`
	SeedMarkets []string             `yaml:"seed_markets" json:"seed_markets"`
	Aliases     map[string]string    `yaml:"aliases" json:"aliases"`
	Stopwords   []string             `yaml:"stopwords" json:"stopwords"`
	Themes      []ThemeRule          `yaml:"themes" json:"themes"`
	Competition map[string]float64   `yaml:"competition" json:"competition"`
	Markets     []types.MarketDemand `yaml:"markets" json:"markets"`
}

// LoadVocabulary reads a YAML vocabulary file. An empty path returns DefaultVocabulary.
// Sections missing from the file keep their default values.
func LoadVocabulary(path string) (*Vocabulary, error) {
	vocab := DefaultVocabulary()
	if path == "" {
		return vocab, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file %s: %w", path, err)
	}

	var file Vocabulary
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary YAML: %w", err)
	}

	if file.SeedTech != nil {
		vocab.SeedTech = file.SeedTech
	}
	if file.SeedMarkets != nil {
		vocab.SeedMarkets = file.SeedMarkets
	}
	if file.Aliases != nil {
		vocab.Aliases = file.Aliases
	}
	if file.Stopwords != nil {
		vocab.Stopwords = file.Stopwords
	}
	if file.Themes != nil {
		vocab.Themes = file.Themes
	}
	if file.Competition != nil {
		vocab.Competition = file.Competition
	}
	if file.Markets != nil {
		vocab.Markets = file.Markets
	}

	if err := vocab.Validate(); err != nil {
		return nil, err
	}
	return vocab, nil
}

// Validate checks that themes and markets are well formed.
func (v *Vocabulary) Validate() error {
	if len(v.SeedTech) == 0 {
		return fmt.Errorf("vocabulary error: seed_tech is empty")
	}

	themeNames := make(map[string]bool, len(v.Themes))
	for i, theme := range v.Themes {
		if strings.TrimSpace(theme.Name) == "" {
			return fmt.Errorf("vocabulary error: theme %d has no name", i)
		}
		if themeNames[theme.Name] {
			return fmt.Errorf("vocabulary error: duplicate theme %q", theme.Name)
		}
		themeNames[theme.Name] = true
		if len(theme.Tech) == 0 || len(theme.Market) == 0 {
			return fmt.Errorf("vocabulary error: theme %q needs both tech and market keywords", theme.Name)
		}
	}

	marketIDs := make(map[string]bool, len(v.Markets))
	for i, market := range v.Markets {
		if market.ID == "" || market.Name == "" {
			return fmt.Errorf("vocabulary error: market %d needs an id and a name", i)
		}
		if marketIDs[market.ID] {
			return fmt.Errorf("vocabulary error: duplicate market id %q", market.ID)
		}
		marketIDs[market.ID] = true
		if market.MarketSizeUSD < 0 {
			return fmt.Errorf("vocabulary error: market %q has negative size", market.ID)
		}
	}

	for keyword, intensity := range v.Competition {
		if intensity < 0 || intensity > 100 {
			return fmt.Errorf("vocabulary error: competition intensity for %q must be within [0,100]", keyword)
		}
	}
	return nil
}

func growth(rate float64) *float64 {
	return &rate
}

// DefaultVocabulary returns the built-in B2B vocabulary.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		SeedTech: []string{
			"LLM agent",
			"retrieval augmented generation",
			"multimodal speech asr",
			"real-time translation",
			"code intelligence",
			"private LLM",
			"AI observability",
			"MLOps",
			"vector database",
			"enterprise search",
			"document automation",
			"AI contact center",
		},
		SeedMarkets: []string{
			"SME automation",
			"contact center automation",
			"developer productivity",
			"manufacturing quality",
			"privacy and sovereign AI",
			"health diagnostics",
			"personalized learning",
			"marketing content automation",
		},
		Aliases: map[string]string{
			"generative ai":                  "LLM agent",
			"gen ai":                         "LLM agent",
			"large language model":           "LLM agent",
			"llm":                            "LLM agent",
			"ai agent":                       "LLM agent",
			"autonomous agent":               "LLM agent",
			"retrieval-augmented generation": "retrieval augmented generation",
			"rag":                            "retrieval augmented generation",
			"speech recognition":             "multimodal speech asr",
			"asr":                            "multimodal speech asr",
			"speech-to-text":                 "multimodal speech asr",
			"real time translation":          "real-time translation",
			"multilingual ai":                "real-time translation",
			"code generation":                "code intelligence",
			"pair programming ai":            "code intelligence",
			"on-prem llm":                    "private LLM",
			"sovereign ai":                   "private LLM",
			"privacy ai":                     "private LLM",
			"ai governance":                  "AI observability",
			"ai monitoring":                  "AI observability",
			"model monitoring":               "AI observability",
			"enterprise rag":                 "enterprise search",
			"knowledge management":           "enterprise search",
			"document processing":            "document automation",
		},
		Stopwords: []string{
			"chatbot", "gaming", "filter", "meme", "social", "entertainment",
			"art", "photo", "music cover", "face swap", "deepfake",
		},
		Themes: []ThemeRule{
			{
				Name:   "AI Workforce Era",
				Tech:   []string{"LLM agent", "document automation", "enterprise search", "code intelligence"},
				Market: []string{"SME automation", "developer productivity", "contact center automation"},
			},
			{
				Name:   "Zero Language Barrier",
				Tech:   []string{"multimodal speech asr", "real-time translation"},
				Market: []string{"contact center automation", "SME automation"},
			},
			{
				Name:   "1-Person Creator Revolution",
				Tech:   []string{"LLM agent", "retrieval augmented generation"},
				Market: []string{"marketing content automation"},
			},
			{
				Name:   "Hyper-Personalized Education",
				Tech:   []string{"LLM agent", "retrieval augmented generation"},
				Market: []string{"personalized learning"},
			},
			{
				Name:   "Invisible AI Infrastructure",
				Tech:   []string{"private LLM", "AI observability", "MLOps", "vector database"},
				Market: []string{"privacy and sovereign AI", "developer productivity"},
			},
		},
		Competition: map[string]float64{
			"generative AI":        85,
			"large language model": 90,
			"LLM":                  90,
			"agent":                50,
			"multimodal":           80,
			"edge AI":              40,
			"automation":           60,
			"text to image":        75,
		},
		Markets: []types.MarketDemand{
			{
				ID:             "market_001",
				Name:           "SME automation for back-office work",
				Problem:        "Small firms cannot hire for repetitive document and admin work",
				MarketSizeUSD:  500_000_000,
				GrowthRate:     growth(0.48),
				GovSupport:     true,
				SearchKeywords: []string{"SME AI automation market", "small business workflow automation AI"},
			},
			{
				ID:             "market_002",
				Name:           "Contact center automation",
				Problem:        "Support teams are overloaded by repetitive inbound requests",
				MarketSizeUSD:  300_000_000,
				GrowthRate:     growth(0.35),
				SearchKeywords: []string{"AI contact center market", "customer service automation AI"},
			},
			{
				ID:             "market_003",
				Name:           "Developer productivity platforms",
				Problem:        "Engineering capacity lags behind software demand",
				MarketSizeUSD:  400_000_000,
				GrowthRate:     growth(0.55),
				GovSupport:     true,
				SearchKeywords: []string{"AI coding assistant market", "developer productivity AI"},
			},
			{
				ID:             "market_004",
				Name:           "Manufacturing quality inspection",
				Problem:        "Manual inspection misses defects and slows production lines",
				MarketSizeUSD:  250_000_000,
				GrowthRate:     growth(0.42),
				GovSupport:     true,
				SearchKeywords: []string{"AI visual inspection manufacturing market"},
			},
			{
				ID:             "market_005",
				Name:           "Privacy and sovereign AI deployments",
				Problem:        "Regulated enterprises cannot send data to public model APIs",
				MarketSizeUSD:  600_000_000,
				GrowthRate:     growth(0.38),
				GovSupport:     true,
				SearchKeywords: []string{"sovereign AI market", "on-premise LLM enterprise"},
			},
			{
				ID:             "market_006",
				Name:           "Health diagnostics assistance",
				Problem:        "Clinicians need faster triage of imaging and records",
				MarketSizeUSD:  350_000_000,
				GrowthRate:     growth(0.45),
				GovSupport:     true,
				SearchKeywords: []string{"AI diagnostics market"},
			},
			{
				ID:             "market_007",
				Name:           "Personalized learning services",
				Problem:        "One-size curricula fail learners with different paces",
				MarketSizeUSD:  450_000_000,
				GrowthRate:     growth(0.50),
				SearchKeywords: []string{"AI tutoring market", "personalized learning AI"},
			},
			{
				ID:             "market_008",
				Name:           "Marketing content automation",
				Problem:        "Small teams must produce content for many channels",
				MarketSizeUSD:  550_000_000,
				GrowthRate:     growth(0.60),
				SearchKeywords: []string{"AI content generation market", "marketing automation generative AI"},
			},
			{
				ID:             "market_009",
				Name:           "Enterprise SME automation for global sales",
				Problem:        "Cross-border sales teams lose deals to language and paperwork friction",
				MarketSizeUSD:  700_000_000,
				GrowthRate:     growth(0.52),
				GovSupport:     true,
				SearchKeywords: []string{"AI translation business market"},
			},
			{
				ID:             "market_010",
				Name:           "Developer productivity for data teams",
				Problem:        "Data teams spend most of their time on pipeline upkeep",
				MarketSizeUSD:  400_000_000,
				GrowthRate:     growth(0.58),
				SearchKeywords: []string{"MLOps platform market"},
			},
		},
	}
}
