package retrieval

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/llm"
	"github.com/jonathan/trend-radar/internal/prompts"
	"github.com/jonathan/trend-radar/internal/types"
)

const (
	excerptRunes   = 300
	fallbackChunks = 3
	answerWords    = 250
	questionTechs  = 5
)

// Analyzer answers questions from the document index.
type Analyzer struct {
	cfg    config.RetrievalConfig
	client llm.Client
	logger *zap.Logger
}

// NewAnalyzer creates an analyzer. client may be nil, in which case answers are the
// concatenated top chunks.
func NewAnalyzer(cfg config.RetrievalConfig, client llm.Client, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{cfg: cfg, client: client, logger: logger}
}

// Available reports whether the index exists and holds at least one chunk.
func (a *Analyzer) Available(ctx context.Context) bool {
	if !Exists(a.cfg.IndexPath) {
		return false
	}
	ix, err := Open(a.cfg.IndexPath)
	if err != nil {
		a.logger.Warn("retrieval index unreadable", zap.String("path", a.cfg.IndexPath), zap.Error(err))
		return false
	}
	defer ix.Close()
	n, err := ix.ChunkCount(ctx)
	if err != nil {
		a.logger.Warn("retrieval index unreadable", zap.String("path", a.cfg.IndexPath), zap.Error(err))
		return false
	}
	return n > 0
}

// Question builds the analysis question asked about the leading technologies.
func Question(techNames []string) string {
	if len(techNames) > questionTechs {
		techNames = techNames[:questionTechs]
	}
	subject := "emerging AI technologies"
	if len(techNames) > 0 {
		subject = strings.Join(techNames, ", ")
	}
	return fmt.Sprintf("What are the 2025-2030 trends for %s? "+
		"Cover industry use cases and success factors, adoption challenges for companies, "+
		"expected changes over the next five years, and investment and market outlook.", subject)
}

// Analyze answers query from the top indexed chunks. A query with no matching chunk
// returns a result with OK false and no error.
func (a *Analyzer) Analyze(ctx context.Context, query string) (types.RetrievalResult, error) {
	result := types.RetrievalResult{Query: query, Sources: []types.SourceRef{}}

	ix, err := Open(a.cfg.IndexPath)
	if err != nil {
		return result, err
	}
	defer ix.Close()

	hits, err := ix.Search(ctx, query, a.cfg.TopK)
	if err != nil {
		return result, err
	}
	if len(hits) == 0 {
		a.logger.Info("no document matched the query")
		return result, nil
	}

	for _, h := range hits {
		result.Sources = append(result.Sources, types.SourceRef{
			Source:  h.Source,
			Chunk:   h.Seq,
			Excerpt: truncateRunes(h.Content, excerptRunes),
			Score:   math.Round(h.Score*1000) / 1000,
		})
	}

	result.Answer = concatenate(hits)
	if a.cfg.Synthesize && a.client != nil {
		answer, err := a.synthesize(ctx, query, hits)
		if err != nil {
			a.logger.Warn("answer synthesis failed, using retrieved text", zap.Error(err))
		} else if answer != "" {
			result.Answer = answer
		}
	}
	result.OK = strings.TrimSpace(result.Answer) != ""
	return result, nil
}

func (a *Analyzer) synthesize(ctx context.Context, query string, hits []Hit) (string, error) {
	var excerpts strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&excerpts, "[%d] (%s)\n%s\n\n", i+1, h.Source, h.Content)
	}
	prompt, err := prompts.Render("retrieval.json", "answer-from-chunks", map[string]string{
		"Query":    query,
		"Excerpts": strings.TrimSpace(excerpts.String()),
		"MaxWords": strconv.Itoa(answerWords),
	})
	if err != nil {
		return "", err
	}
	answer, err := a.client.GenerateContent(ctx, prompt, llm.TierLite)
	if err != nil {
		return "", fmt.Errorf("failed to synthesize answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func concatenate(hits []Hit) string {
	n := min(len(hits), fallbackChunks)
	parts := make([]string, 0, n)
	for _, h := range hits[:n] {
		parts = append(parts, h.Content)
	}
	return strings.Join(parts, "\n\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
