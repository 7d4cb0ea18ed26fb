package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/orchestrator"
	"github.com/jonathan/trend-radar/internal/types"
)

func TestPrintKeywords(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintKeywords([]string{"LLM", "rag", "the"}, []string{"large language model", "retrieval augmented generation"})
	output := buf.String()

	assert.Contains(t, output, "KEYWORDS")
	assert.Contains(t, output, "LLM, rag, the")
	assert.Contains(t, output, "large language model")
	assert.Contains(t, output, "(1 dropped or merged)")
}

func TestPrintKeywords_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintKeywords(nil, nil)
	assert.Empty(t, buf.String())
}

func TestPrintCollection(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintCollection(types.RawEntities{
		Papers:       make([]types.Paper, 120),
		Repositories: make([]types.Repository, 14),
	})
	output := buf.String()

	assert.Contains(t, output, "COLLECTED ENTITIES")
	assert.Contains(t, output, "papers")
	assert.Contains(t, output, "120")
	assert.Contains(t, output, "market_snippets")
}

func TestPrintTechTrends(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	trends := []types.TechTrend{
		{Name: "llm agent", Maturity: 76, GrowthRate: 0.5, PaperCount: 80, RepoCount: 3, TotalStars: 20000, Penalty: 1},
		{Name: "diffusion", Maturity: 40, GrowthRate: -0.1, PaperCount: 10, RepoCount: 2, TotalStars: 300, Penalty: 0.828},
	}
	p.PrintTechTrends(trends)
	output := buf.String()

	assert.Contains(t, output, "TECHNOLOGY TRENDS")
	assert.Contains(t, output, "#1  llm agent")
	assert.Contains(t, output, "+50.0%")
	assert.Contains(t, output, "(×0.83)")
	assert.Equal(t, 1, strings.Count(output, "×"), "only penalized trends show a factor")
}

func TestPrintMarketDemands_TruncatesList(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	demands := make([]types.MarketDemand, 7)
	for i := range demands {
		demands[i] = types.MarketDemand{Name: "market", Opportunity: 50}
	}
	demands[0].Reports = []types.MarketSnippet{{ID: "u"}}
	p.PrintMarketDemands(demands)
	output := buf.String()

	assert.Contains(t, output, "MARKET OPPORTUNITIES")
	assert.Contains(t, output, "CAGR: 20%")
	assert.Contains(t, output, "Reports: 1")
	assert.Contains(t, output, "... and 2 more")
}

func TestPrintRanking(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRanking(&types.Ranking{
		Themes: []types.Theme{{
			Rank: 1, Name: "Agents x Support", FinalScore: 78.5,
			Tech:       types.EntityRef{Name: "llm agent"},
			Market:     types.EntityRef{Name: "Customer Service"},
			GrowthRate: 0.3, Competition: 55,
		}},
		Dropped: []string{"Vision x Retail"},
	})
	output := buf.String()

	assert.Contains(t, output, "#1  Agents x Support  78.5")
	assert.Contains(t, output, "llm agent × Customer Service")
	assert.Contains(t, output, "Dropped: Vision x Retail")
}

func TestPrintRanking_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintRanking(&types.Ranking{Themes: []types.Theme{}, Empty: true, Reason: "no market entities"})
	assert.Contains(t, buf.String(), "No theme qualified: no market entities")

	buf.Reset()
	NewPrinter(&buf).PrintRanking(nil)
	assert.Empty(t, buf.String())
}

func TestPrintErrors_WithErrors(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintErrors([]types.ErrorEntry{
		{Stage: "collector", Kind: types.ErrorKindTransient, Message: "github: status 503"},
		{Kind: types.ErrorKindValidation, Message: "minimum_volume: papers 12 < 50", Fatal: true},
	})
	output := buf.String()

	assert.Contains(t, output, "Recorded 2 errors")
	assert.Contains(t, output, "⚠ collector [transient]")
	assert.Contains(t, output, "✗ run [validation]")
}

func TestPrintErrors_NoErrors(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintErrors(nil)
	assert.Contains(t, buf.String(), "NO ERRORS RECORDED")
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Progress(orchestrator.ProgressEvent{Kind: orchestrator.EventStageStarted, Stage: "collector"})
	p.Progress(orchestrator.ProgressEvent{Kind: orchestrator.EventStageCompleted, Stage: "collector", Duration: 1500 * time.Millisecond})
	p.Progress(orchestrator.ProgressEvent{Kind: orchestrator.EventStageSkipped, Stage: "retrieval"})
	p.Progress(orchestrator.ProgressEvent{Kind: orchestrator.EventRunFinished, RunID: "r1", Message: "completed"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"▶ collector", "✓ collector (1.5s)", "↷ retrieval skipped", "■ run r1 completed"}, lines)
}

func TestPrintBox_LongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.printBox("TITLE", strings.Repeat("é", 100))
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), boxWidth)
	}
	assert.Contains(t, buf.String(), "...")
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = NewLogger(config.LogConfig{Level: "warn", Format: "console"}, true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel), "verbose forces debug")

	_, err = NewLogger(config.LogConfig{Level: "loud"}, false)
	assert.Error(t, err)
}
