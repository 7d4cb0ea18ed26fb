package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/jonathan/trend-radar/internal/collectors"
	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/llm"
	"github.com/jonathan/trend-radar/internal/report"
	"github.com/jonathan/trend-radar/internal/retrieval"
)

// Services bundles a pipeline built from configuration with the clients it owns.
type Services struct {
	Pipeline *Pipeline
	LLM      llm.Client
}

// Close releases the clients owned by the services.
func (s *Services) Close() error {
	if s.LLM != nil {
		return s.LLM.Close()
	}
	return nil
}

// NewServices builds the collectors, language model client, retriever and reporter
// described by cfg. A missing API key disables the language model features instead of
// failing. out receives terminal report output and may be nil.
func NewServices(ctx context.Context, cfg *config.Config, vocab *config.Vocabulary, logger *zap.Logger, out io.Writer) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var client llm.Client
	gemini, err := llm.NewClient(ctx, llm.FromSettings(cfg.LLM), cfg.LLM.APIKey)
	switch {
	case errors.Is(err, llm.ErrNoAPIKey):
		logger.Info("no LLM API key configured, answer synthesis and executive summary disabled")
	case err != nil:
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	default:
		client = gemini
	}

	list := []collectors.Collector{
		collectors.NewArxivCollector(cfg.Collector, nil),
		collectors.NewGitHubCollector(cfg.Collector, nil),
	}
	if cfg.Collector.TrendsEndpoint != "" {
		list = append(list, collectors.NewTrendsCollector(cfg.Collector, nil))
	} else {
		logger.Info("no trends endpoint configured, trend series collection disabled")
	}
	market, err := collectors.NewMarketCollector(ctx, cfg.Collector, vocab.Markets)
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, err
	}
	if market != nil {
		list = append(list, market)
	} else {
		logger.Info("no search credentials configured, market snippet collection disabled")
	}

	p, err := New(Options{
		Config:     cfg,
		Vocabulary: vocab,
		Collectors: list,
		Retriever:  retrieval.NewAnalyzer(cfg.Retrieval, client, logger),
		Reporter:   report.New(cfg.Report, client, logger, out),
		Logger:     logger,
	})
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, err
	}
	return &Services{Pipeline: p, LLM: client}, nil
}
