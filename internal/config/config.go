// Package config provides configuration loading and validation for the trend-radar pipeline.
package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jonathan/trend-radar/internal/types"
)

// EnvPrefix is the prefix for environment variable overrides (TREND_RADAR_LOG_LEVEL etc.)
const EnvPrefix = "TREND_RADAR"

// DefaultConfigName is the config file looked up in the working directory when no path is given
const DefaultConfigName = "trend-radar"

// Config is the explicit configuration passed into the pipeline at construction time.
type Config struct {
	Keywords         []string               `mapstructure:"keywords" json:"keywords" validate:"dive,required"`
	Fast             bool                   `mapstructure:"fast" json:"fast"`
	MaxParallel      int                    `mapstructure:"max_parallel" json:"max_parallel" validate:"gte=1"`
	VocabularyPath   string                 `mapstructure:"vocabulary_path" json:"vocabulary_path,omitempty"`
	Canonicalization CanonicalizationConfig `mapstructure:"canonicalization" json:"canonicalization"`
	Limits           Limits                 `mapstructure:"limits" json:"limits"`
	FastLimits       Limits                 `mapstructure:"fast_limits" json:"fast_limits"`
	Collector        CollectorConfig        `mapstructure:"collector" json:"collector"`
	// MinVolume maps a raw entity source to the minimum count required after collection
	MinVolume  map[string]int   `mapstructure:"min_volume" json:"min_volume" validate:"dive,gte=0"`
	Scoring    ScoringConfig    `mapstructure:"scoring" json:"scoring"`
	Fusion     FusionConfig     `mapstructure:"fusion" json:"fusion"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" json:"checkpoint"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval" json:"retrieval"`
	Report     ReportConfig     `mapstructure:"report" json:"report"`
	LLM        LLMConfig        `mapstructure:"llm" json:"llm"`
	Log        LogConfig        `mapstructure:"log" json:"log"`
	Server     ServerConfig     `mapstructure:"server" json:"server"`
}

// CanonicalizationConfig controls keyword normalization before collection
type CanonicalizationConfig struct {
	// Strict drops keywords that are not in the seed vocabulary
	Strict bool `mapstructure:"strict" json:"strict"`
}

// Limits bounds how much each collector fetches per keyword
type Limits struct {
	PapersPerKeyword int `mapstructure:"papers_per_keyword" json:"papers_per_keyword" validate:"gte=1"`
	ReposPerKeyword  int `mapstructure:"repos_per_keyword" json:"repos_per_keyword" validate:"gte=1"`
	MinStars         int `mapstructure:"min_stars" json:"min_stars" validate:"gte=0"`
	SnippetsPerQuery int `mapstructure:"snippets_per_query" json:"snippets_per_query" validate:"gte=1,lte=10"`
	QueriesPerMarket int `mapstructure:"queries_per_market" json:"queries_per_market" validate:"gte=1"`
}

// CollectorConfig holds network settings shared by the collectors
type CollectorConfig struct {
	Timeout        time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
	MaxRetries     int           `mapstructure:"max_retries" json:"max_retries" validate:"gte=0,lte=10"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" json:"retry_base_delay" validate:"gte=0"`
	UserAgent      string        `mapstructure:"user_agent" json:"user_agent"`
	DateFrom       string        `mapstructure:"date_from" json:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo         string        `mapstructure:"date_to" json:"date_to" validate:"omitempty,datetime=2006-01-02"`
	ArxivBaseURL   string        `mapstructure:"arxiv_base_url" json:"arxiv_base_url" validate:"required,url"`
	GitHubBaseURL  string        `mapstructure:"github_base_url" json:"github_base_url" validate:"required,url"`
	GitHubToken    string        `mapstructure:"github_token" json:"-"`
	SearchAPIKey   string        `mapstructure:"search_api_key" json:"-"`
	SearchEngineID string        `mapstructure:"search_engine_id" json:"search_engine_id,omitempty"`
	SearchEndpoint string        `mapstructure:"search_endpoint" json:"search_endpoint,omitempty" validate:"omitempty,url"`
	TrendsEndpoint string        `mapstructure:"trends_endpoint" json:"trends_endpoint,omitempty" validate:"omitempty,url"`
	TrendsBatch    int           `mapstructure:"trends_batch" json:"trends_batch" validate:"gte=1,lte=5"`
}

// ScoringConfig holds the scoring engine constants
type ScoringConfig struct {
	// PapersPerRepo (K) is how many papers are expected per productized repository
	PapersPerRepo float64 `mapstructure:"papers_per_repo" json:"papers_per_repo" validate:"gt=0"`
	// StarsReference (S) is the star count at which activity saturates
	StarsReference       float64 `mapstructure:"stars_reference" json:"stars_reference" validate:"gt=0"`
	ProductizationWeight float64 `mapstructure:"productization_weight" json:"productization_weight" validate:"gte=0,lte=1"`
	ActivityWeight       float64 `mapstructure:"activity_weight" json:"activity_weight" validate:"gte=0,lte=1"`

	ReferenceMarketSize float64 `mapstructure:"reference_market_size" json:"reference_market_size" validate:"gt=0"`
	ReferenceGrowth     float64 `mapstructure:"reference_growth" json:"reference_growth" validate:"gt=0"`
	SizeWeight          float64 `mapstructure:"size_weight" json:"size_weight" validate:"gte=0"`
	GrowthWeight        float64 `mapstructure:"growth_weight" json:"growth_weight" validate:"gte=0"`
	SupportBonus        float64 `mapstructure:"support_bonus" json:"support_bonus" validate:"gte=0"`

	CompetitionBaseline float64  `mapstructure:"competition_baseline" json:"competition_baseline" validate:"gte=0,lte=100"`
	SegmentBonus        float64  `mapstructure:"segment_bonus" json:"segment_bonus" validate:"gte=0,lte=100"`
	SegmentKeywords     []string `mapstructure:"segment_keywords" json:"segment_keywords"`

	// Eligibility excludes an entity when both counts fall below these minimums
	EligibilityMinRepos int `mapstructure:"eligibility_min_repos" json:"eligibility_min_repos" validate:"gte=1"`
	EligibilityMinStars int `mapstructure:"eligibility_min_stars" json:"eligibility_min_stars" validate:"gte=1"`
	// Penalty factors apply independently when a count falls below its threshold
	PenaltyMinRepos int     `mapstructure:"penalty_min_repos" json:"penalty_min_repos" validate:"gte=0"`
	PenaltyMinStars int     `mapstructure:"penalty_min_stars" json:"penalty_min_stars" validate:"gte=0"`
	RepoPenalty     float64 `mapstructure:"repo_penalty" json:"repo_penalty" validate:"gt=0,lte=1"`
	StarPenalty     float64 `mapstructure:"star_penalty" json:"star_penalty" validate:"gt=0,lte=1"`

	TopKeywords int `mapstructure:"top_keywords" json:"top_keywords" validate:"gte=1"`
	TopProjects int `mapstructure:"top_projects" json:"top_projects" validate:"gte=1"`
	// TopMarketReports is how many demands keep their market snippets as evidence
	TopMarketReports int `mapstructure:"top_market_reports" json:"top_market_reports" validate:"gte=0"`
}

// FusionWeights are the final score weights. Maturity, Opportunity and Growth sum to 1.
type FusionWeights struct {
	Maturity    float64 `mapstructure:"maturity" json:"maturity" validate:"gte=0,lte=1"`
	Opportunity float64 `mapstructure:"opportunity" json:"opportunity" validate:"gte=0,lte=1"`
	Growth      float64 `mapstructure:"growth" json:"growth" validate:"gte=0,lte=1"`
	Competition float64 `mapstructure:"competition" json:"competition" validate:"gte=0,lte=1"`
}

// FusionConfig holds the theme fusion settings
type FusionConfig struct {
	Weights        FusionWeights `mapstructure:"weights" json:"weights"`
	GrowthCap      float64       `mapstructure:"growth_cap" json:"growth_cap" validate:"gt=0"`
	TopN           int           `mapstructure:"top_n" json:"top_n" validate:"gte=1"`
	InsightChars   int           `mapstructure:"insight_chars" json:"insight_chars" validate:"gte=0"`
	InsightSources int           `mapstructure:"insight_sources" json:"insight_sources" validate:"gte=0"`
}

// Checkpoint backends
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// CheckpointConfig selects where run snapshots are stored
type CheckpointConfig struct {
	Backend     string `mapstructure:"backend" json:"backend" validate:"oneof=file sqlite postgres memory"`
	Dir         string `mapstructure:"dir" json:"dir"`
	SQLitePath  string `mapstructure:"sqlite_path" json:"sqlite_path"`
	DatabaseURL string `mapstructure:"database_url" json:"-"`
}

// RetrievalConfig controls the optional document retrieval stage
type RetrievalConfig struct {
	DocumentsDir string `mapstructure:"documents_dir" json:"documents_dir"`
	IndexPath    string `mapstructure:"index_path" json:"index_path"`
	ChunkSize    int    `mapstructure:"chunk_size" json:"chunk_size" validate:"gte=100"`
	ChunkOverlap int    `mapstructure:"chunk_overlap" json:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK         int    `mapstructure:"top_k" json:"top_k" validate:"gte=1"`
	// Synthesize asks the LLM to write the answer from the retrieved chunks
	Synthesize bool `mapstructure:"synthesize" json:"synthesize"`
}

// ReportConfig controls report rendering
type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir" json:"output_dir" validate:"required"`
	// SchemaPath overrides the embedded export schema when the file can be found
	SchemaPath string `mapstructure:"schema_path" json:"schema_path"`
	// TemplatePath overrides the embedded markdown template
	TemplatePath string `mapstructure:"template_path" json:"template_path,omitempty"`
	Summary      bool   `mapstructure:"summary" json:"summary"`
	Terminal     bool   `mapstructure:"terminal" json:"terminal"`
	TerminalWrap int    `mapstructure:"terminal_wrap" json:"terminal_wrap" validate:"gte=0"`
}

// LLMConfig configures the optional language model client
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key" json:"-"`
	Model       string        `mapstructure:"model" json:"model"`
	LiteModel   string        `mapstructure:"lite_model" json:"lite_model"`
	Temperature float32       `mapstructure:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout" validate:"gte=0"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" json:"format" validate:"oneof=json console"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr      string          `mapstructure:"addr" json:"addr" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig configures per-client token buckets. Run-starting endpoints get
// their own, stricter bucket.
type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled" json:"enabled"`
	DefaultLimit  int           `mapstructure:"default_limit" json:"default_limit" validate:"gte=0"`
	DefaultWindow time.Duration `mapstructure:"default_window" json:"default_window"`
	RunLimit      int           `mapstructure:"run_limit" json:"run_limit" validate:"gte=0"`
	RunWindow     time.Duration `mapstructure:"run_window" json:"run_window"`
	RunBurst      int           `mapstructure:"run_burst" json:"run_burst" validate:"gte=0"`
	Whitelist     []string      `mapstructure:"whitelist" json:"whitelist"`
	Blacklist     []string      `mapstructure:"blacklist" json:"blacklist"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxParallel:      4,
		Canonicalization: CanonicalizationConfig{Strict: true},
		Limits: Limits{
			PapersPerKeyword: 200,
			ReposPerKeyword:  50,
			MinStars:         100,
			SnippetsPerQuery: 10,
			QueriesPerMarket: 2,
		},
		FastLimits: Limits{
			PapersPerKeyword: 20,
			ReposPerKeyword:  10,
			MinStars:         100,
			SnippetsPerQuery: 3,
			QueriesPerMarket: 1,
		},
		Collector: CollectorConfig{
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			UserAgent:      "trend-radar/1.0",
			DateFrom:       "2023-01-01",
			DateTo:         "2025-10-21",
			ArxivBaseURL:   "https://export.arxiv.org/api/query",
			GitHubBaseURL:  "https://api.github.com",
			TrendsBatch:    5,
		},
		MinVolume: map[string]int{
			"papers":       50,
			"repositories": 10,
		},
		Scoring: ScoringConfig{
			PapersPerRepo:        80,
			StarsReference:       50000,
			ProductizationWeight: 0.6,
			ActivityWeight:       0.4,
			ReferenceMarketSize:  1e9,
			ReferenceGrowth:      0.5,
			SizeWeight:           40,
			GrowthWeight:         30,
			SupportBonus:         30,
			CompetitionBaseline:  50,
			SegmentBonus:         5,
			SegmentKeywords:      []string{"sme", "enterprise"},
			EligibilityMinRepos:  2,
			EligibilityMinStars:  200,
			PenaltyMinRepos:      3,
			PenaltyMinStars:      500,
			RepoPenalty:          0.90,
			StarPenalty:          0.92,
			TopKeywords:          20,
			TopProjects:          3,
			TopMarketReports:     3,
		},
		Fusion: FusionConfig{
			Weights: FusionWeights{
				Maturity:    0.30,
				Opportunity: 0.40,
				Growth:      0.30,
				Competition: 0.15,
			},
			GrowthCap:      0.5,
			TopN:           5,
			InsightChars:   500,
			InsightSources: 2,
		},
		Checkpoint: CheckpointConfig{
			Backend:    BackendFile,
			Dir:        "outputs/checkpoints",
			SQLitePath: "outputs/checkpoints/checkpoints.db",
		},
		Retrieval: RetrievalConfig{
			DocumentsDir: "data/rag_documents",
			IndexPath:    "data/vectorstore/index.db",
			ChunkSize:    1000,
			ChunkOverlap: 200,
			TopK:         4,
		},
		Report: ReportConfig{
			OutputDir:    "outputs/reports",
			SchemaPath:   "schemas/ranking.schema.json",
			TerminalWrap: 100,
		},
		LLM: LLMConfig{
			Model:       "gemini-2.5-flash",
			LiteModel:   "gemini-2.5-flash-lite",
			Temperature: 0.1,
			Timeout:     60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Addr: ":8080",
			RateLimit: RateLimitConfig{
				Enabled:       true,
				DefaultLimit:  1000,
				DefaultWindow: time.Minute,
				RunLimit:      10,
				RunWindow:     time.Hour,
				RunBurst:      2,
			},
		},
	}
}

// volumeSources are the raw entity collections a minimum volume can apply to
var volumeSources = []string{types.SourcePapers, types.SourceRepositories, types.SourceTrends, types.SourceMarketSnippets}

func checkVolumeSources(minVolume map[string]int) error {
	var unknown []string
	for source := range minVolume {
		if !slices.Contains(volumeSources, source) {
			unknown = append(unknown, source)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	return fmt.Errorf("config error: min_volume has unknown source(s) %s; expected one of %s",
		strings.Join(unknown, ", "), strings.Join(volumeSources, ", "))
}

// LimitsFor returns the collector limits of a run in fast or full mode.
func (c *Config) LimitsFor(fast bool) Limits {
	if fast {
		return c.FastLimits
	}
	return c.Limits
}

// envBindings maps config keys to the conventional environment variables also accepted for them
var envBindings = map[string]string{
	"collector.github_token":     "GITHUB_TOKEN",
	"collector.search_api_key":   "GOOGLE_SEARCH_API_KEY",
	"collector.search_engine_id": "GOOGLE_SEARCH_ENGINE_ID",
	"llm.api_key":                "GEMINI_API_KEY",
	"checkpoint.database_url":    "DATABASE_URL",
}

// Load reads configuration from path (or trend-radar.yaml in the working directory
// when path is empty) on top of Default, then applies environment overrides.
// A missing default config file is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	for _, key := range []string{"log.level", "log.format", "checkpoint.backend", "server.addr", "fast"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

const weightTolerance = 1e-6

// Validate checks struct tags and the cross-field constraints of the scoring model.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	w := c.Fusion.Weights
	if sum := w.Maturity + w.Opportunity + w.Growth; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("config error: fusion weights maturity+opportunity+growth must sum to 1, got %.4f", sum)
	}
	s := c.Scoring
	if sum := s.ProductizationWeight + s.ActivityWeight; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("config error: maturity weights must sum to 1, got %.4f", sum)
	}
	if sum := s.SizeWeight + s.GrowthWeight + s.SupportBonus; math.Abs(sum-100) > weightTolerance {
		return fmt.Errorf("config error: opportunity weights must sum to 100, got %.2f", sum)
	}
	if c.Collector.DateFrom != "" && c.Collector.DateTo != "" && c.Collector.DateFrom > c.Collector.DateTo {
		return fmt.Errorf("config error: collector.date_from %s is after date_to %s", c.Collector.DateFrom, c.Collector.DateTo)
	}
	if err := checkVolumeSources(c.MinVolume); err != nil {
		return err
	}
	if c.Checkpoint.Backend == BackendPostgres && c.Checkpoint.DatabaseURL == "" {
		return fmt.Errorf("config error: checkpoint backend postgres requires database_url (or DATABASE_URL)")
	}
	return nil
}
