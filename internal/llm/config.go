// Package llm provides the language model client used for retrieval answers and
// report summaries.
package llm

import (
	"time"

	"github.com/jonathan/trend-radar/internal/config"
)

// ModelTier selects a model by the kind of work asked of it
type ModelTier string

const (
	// TierLite writes short grounded answers over retrieved excerpts
	TierLite ModelTier = "lite"
	// TierStandard writes structured output such as the executive summary
	TierStandard ModelTier = "standard"
)

const (
	defaultLiteModel     = "gemini-2.5-flash-lite"
	defaultStandardModel = "gemini-2.5-flash"
)

// Config holds the model per tier and the generation settings shared by every call.
type Config struct {
	Models      map[ModelTier]string
	Temperature float32
	// Timeout bounds a single generation call; zero leaves it to the caller's context
	Timeout time.Duration
}

// DefaultConfig returns the configuration built from the default settings.
func DefaultConfig() *Config {
	return FromSettings(config.Default().LLM)
}

// FromSettings builds the client configuration from the llm section of the config file.
// Empty model names keep the defaults.
func FromSettings(cfg config.LLMConfig) *Config {
	c := &Config{
		Models: map[ModelTier]string{
			TierLite:     defaultLiteModel,
			TierStandard: defaultStandardModel,
		},
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}
	if cfg.Model != "" {
		c.Models[TierStandard] = cfg.Model
	}
	if cfg.LiteModel != "" {
		c.Models[TierLite] = cfg.LiteModel
	}
	return c
}

// Model returns the model of a tier. Unknown tiers use the standard model.
func (c *Config) Model(tier ModelTier) string {
	if m, ok := c.Models[tier]; ok && m != "" {
		return m
	}
	return c.Models[TierStandard]
}
