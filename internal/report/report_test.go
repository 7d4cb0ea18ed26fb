package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/llm"
	"github.com/jonathan/trend-radar/internal/schemas"
	"github.com/jonathan/trend-radar/internal/state"
	"github.com/jonathan/trend-radar/internal/types"
	embedded "github.com/jonathan/trend-radar/schemas"
)

// MockLLMClient implements llm.Client for testing
type MockLLMClient struct {
	GenerateJSONFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
	calls            int
}

func (m *MockLLMClient) GenerateContent(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
	return "", nil
}

func (m *MockLLMClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	m.calls++
	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, prompt, tier)
	}
	return "{}", nil
}

func (m *MockLLMClient) Close() error { return nil }

func rankedContext() *state.RunContext {
	rc := state.New("run-1", []string{"LLM agents"}, false, []string{"collector", "report"})
	rc.Keywords = []string{"llm agents"}
	rc.RawEntities.Papers = []types.Paper{{ID: "arxiv:1"}, {ID: "arxiv:2"}}
	rc.Themes = &types.Ranking{
		Considered: 3,
		Dropped:    []string{"Robotics"},
		Themes: []types.Theme{{
			Rank:        1,
			Name:        "Agents | Automation",
			FinalScore:  71.4,
			Tech:        types.EntityRef{ID: "tech:agents", Name: "Autonomous agents", Signal: 80},
			Market:      types.EntityRef{ID: "market:service", Name: "Customer service", Signal: 65},
			Members:     types.MemberCounts{Tech: 1, Market: 1},
			GrowthRate:  0.32,
			Competition: 40,
			Evidence: types.ThemeEvidence{
				TechIDs:        []string{"tech:agents"},
				MarketIDs:      []string{"market:service"},
				TechExamples:   []string{"Autonomous agents"},
				MarketExamples: []string{"Customer service"},
				Projects:       []types.ProjectRef{{ID: "gh:1", Name: "agentkit", Stars: 1200}},
				AvgMaturity:    80,
				AvgOpportunity: 65,
				GrowthTerm:     64,
			},
			Insight: &types.Insight{
				Answer:  "Agents handle tier-one support.\nAdoption is accelerating.",
				Sources: []types.SourceRef{{Source: "agents.md", Chunk: 0, Score: 1.2}},
			},
		}},
	}
	return rc
}

func reportConfig(t *testing.T) config.ReportConfig {
	t.Helper()
	cfg := config.Default().Report
	cfg.OutputDir = filepath.Join(t.TempDir(), "reports")
	cfg.SchemaPath = ""
	return cfg
}

func TestNewExport_NormalizesMissingParts(t *testing.T) {
	rc := state.New("run-2", nil, false, nil)
	export := NewExport(rc, "aborted")

	assert.Equal(t, "run-2", export.RunID)
	assert.NotNil(t, export.Keywords)
	assert.NotNil(t, export.Errors)
	assert.NotNil(t, export.Ranking.Themes)
	assert.True(t, export.Ranking.Empty)
	assert.Equal(t, "fusion did not run", export.Ranking.Reason)
	assert.Equal(t, 0, export.Counts[types.SourcePapers])

	schema, err := embedded.Load(embedded.Ranking)
	require.NoError(t, err)
	assert.NoError(t, schemas.ValidateValue(schema, export))
}

func TestWrite_CreatesMarkdownAndJSON(t *testing.T) {
	cfg := reportConfig(t)
	r := New(cfg, nil, nil, nil)

	artifact, err := r.Write(context.Background(), rankedContext(), "completed")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "run-1.md"), artifact.MarkdownPath)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "run-1.json"), artifact.JSONPath)
	assert.Empty(t, artifact.Summary)

	md, err := os.ReadFile(artifact.MarkdownPath)
	require.NoError(t, err)
	text := string(md)
	assert.Contains(t, text, "# AI Trend Radar")
	assert.Contains(t, text, "status **completed**")
	assert.Contains(t, text, `Agents \| Automation`)
	assert.Contains(t, text, "| 1 | ")
	assert.Contains(t, text, "32%")
	assert.Contains(t, text, "agentkit (1200 stars)")
	assert.Contains(t, text, "> Agents handle tier-one support.\n> Adoption is accelerating.")
	assert.Contains(t, text, "Dropped for missing technology or market evidence: Robotics")
	assert.Contains(t, text, "| papers | 2 |")
	assert.NotContains(t, text, "## Executive Summary")

	data, err := os.ReadFile(artifact.JSONPath)
	require.NoError(t, err)
	schema, err := embedded.Load(embedded.Ranking)
	require.NoError(t, err)
	assert.NoError(t, schemas.ValidateJSONString(schema, string(data)))

	var export Export
	require.NoError(t, json.Unmarshal(data, &export))
	require.Len(t, export.Ranking.Themes, 1)
	assert.Equal(t, 71.4, export.Ranking.Themes[0].FinalScore)
}

func TestWrite_EmptyRanking(t *testing.T) {
	rc := state.New("run-3", nil, false, nil)
	rc.Themes = &types.Ranking{Empty: true, Reason: "no theme has both technology and market members"}
	rc.ErrorLog = []types.ErrorEntry{{Stage: "fusion", Kind: types.ErrorKindFusion, Message: "empty ranking"}}

	artifact, err := New(reportConfig(t), nil, nil, nil).Write(context.Background(), rc, "completed")
	require.NoError(t, err)

	md, err := os.ReadFile(artifact.MarkdownPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "No theme qualified: no theme has both technology and market members.")
	assert.Contains(t, string(md), "**fusion** [fusion]: empty ranking")
	assert.NotContains(t, string(md), "| Rank |")
}

func TestWrite_InvalidExportIsRejected(t *testing.T) {
	rc := rankedContext()
	rc.Themes.Themes[0].FinalScore = 120

	cfg := reportConfig(t)
	_, err := New(cfg, nil, nil, nil).Write(context.Background(), rc, "completed")
	require.Error(t, err)
	var renderErr *RenderError
	assert.True(t, errors.As(err, &renderErr))

	_, statErr := os.Stat(filepath.Join(cfg.OutputDir, "run-1.json"))
	assert.True(t, os.IsNotExist(statErr), "nothing is written for an invalid export")
}

func TestWrite_ExecutiveSummary(t *testing.T) {
	cfg := reportConfig(t)
	cfg.Summary = true
	var gotPrompt string
	client := &MockLLMClient{
		GenerateJSONFunc: func(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
			gotPrompt = prompt
			assert.Equal(t, llm.TierStandard, tier)
			return `{"headline": "Agents lead the radar", "summary": "Customer service adoption drives the top theme.", "risks": ["vendor lock-in"]}`, nil
		},
	}

	artifact, err := New(cfg, client, nil, nil).Write(context.Background(), rankedContext(), "completed")
	require.NoError(t, err)
	assert.Equal(t, "Agents lead the radar", artifact.Summary)
	assert.Contains(t, gotPrompt, `"name":"Agents | Automation"`)
	assert.NotContains(t, gotPrompt, "{{.Themes}}")

	md, err := os.ReadFile(artifact.MarkdownPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "## Executive Summary")
	assert.Contains(t, string(md), "- vendor lock-in")
}

func TestWrite_InvalidSummaryIsSkipped(t *testing.T) {
	cfg := reportConfig(t)
	cfg.Summary = true
	client := &MockLLMClient{
		GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
			return `{"headline": ""}`, nil
		},
	}

	artifact, err := New(cfg, client, nil, nil).Write(context.Background(), rankedContext(), "completed")
	require.NoError(t, err)
	assert.Empty(t, artifact.Summary)
	assert.Equal(t, 1, client.calls)
}

func TestWrite_SummarySkippedForEmptyRanking(t *testing.T) {
	cfg := reportConfig(t)
	cfg.Summary = true
	client := &MockLLMClient{}
	rc := state.New("run-4", nil, false, nil)

	_, err := New(cfg, client, nil, nil).Write(context.Background(), rc, "aborted")
	require.NoError(t, err)
	assert.Zero(t, client.calls)
}

func TestWrite_CustomTemplate(t *testing.T) {
	cfg := reportConfig(t)
	cfg.TemplatePath = filepath.Join(t.TempDir(), "custom.tmpl")
	require.NoError(t, os.WriteFile(cfg.TemplatePath, []byte("{{.RunID}}: {{len .Ranking.Themes}} themes\n"), 0o644))

	artifact, err := New(cfg, nil, nil, nil).Write(context.Background(), rankedContext(), "completed")
	require.NoError(t, err)
	md, err := os.ReadFile(artifact.MarkdownPath)
	require.NoError(t, err)
	assert.Equal(t, "run-1: 1 themes\n", string(md))
}

func TestWrite_MissingTemplate(t *testing.T) {
	cfg := reportConfig(t)
	cfg.TemplatePath = filepath.Join(t.TempDir(), "missing.tmpl")

	_, err := New(cfg, nil, nil, nil).Write(context.Background(), rankedContext(), "completed")
	require.Error(t, err)
	var tmplErr *TemplateError
	require.True(t, errors.As(err, &tmplErr))
	assert.Contains(t, tmplErr.Message, "template file not found")
}

func TestParseTemplate_SyntaxError(t *testing.T) {
	_, err := ParseTemplate("{{.RunID")
	var tmplErr *TemplateError
	assert.True(t, errors.As(err, &tmplErr))
}

func TestWrite_TerminalOutput(t *testing.T) {
	cfg := reportConfig(t)
	cfg.Terminal = true
	cfg.TerminalWrap = 80
	var out bytes.Buffer

	_, err := New(cfg, nil, nil, &out).Write(context.Background(), rankedContext(), "completed")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "AI Trend Radar")
}

func TestRenderTerminal(t *testing.T) {
	rendered, err := RenderTerminal("# Title\n\nSome **bold** text.", 0)
	require.NoError(t, err)
	assert.Contains(t, rendered, "Title")
	assert.Contains(t, rendered, "bold")
}

func TestEscapeCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Edge AI", "Edge AI"},
		{"pipe", "a|b", `a\|b`},
		{"newlines", "line one\nline  two\r\n", "line one line two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeCell(tt.input))
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "one\n> two", Quote("one  \ntwo\n"))
	assert.Equal(t, "single", Quote("single"))
	assert.False(t, strings.HasSuffix(Quote("x\n\n"), "> "))
}
