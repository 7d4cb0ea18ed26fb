// Package report renders the outcome of a run as a markdown report and a
// schema-validated JSON export.
package report

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/llm"
	"github.com/jonathan/trend-radar/internal/prompts"
	"github.com/jonathan/trend-radar/internal/schemas"
	"github.com/jonathan/trend-radar/internal/state"
	"github.com/jonathan/trend-radar/internal/types"
	embedded "github.com/jonathan/trend-radar/schemas"
)

//go:embed report.md.tmpl
var defaultTemplate string

// Summary is the executive summary written by the language model
type Summary struct {
	Headline string   `json:"headline"`
	Summary  string   `json:"summary"`
	Risks    []string `json:"risks,omitempty"`
}

// Export is the JSON document written next to the markdown report
type Export struct {
	RunID       string             `json:"run_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Status      string             `json:"status"`
	Keywords    []string           `json:"keywords"`
	Counts      map[string]int     `json:"counts"`
	Ranking     types.Ranking      `json:"ranking"`
	Summary     *Summary           `json:"summary,omitempty"`
	Errors      []types.ErrorEntry `json:"errors"`
}

// NewExport collects the reportable parts of a run context. Nil collections become empty
// so the export always satisfies the schema.
func NewExport(rc *state.RunContext, status string) Export {
	e := Export{
		RunID:       rc.RunID,
		GeneratedAt: time.Now().UTC(),
		Status:      status,
		Keywords:    append([]string{}, rc.Keywords...),
		Counts:      rc.RawEntities.Counts(),
		Errors:      append([]types.ErrorEntry{}, rc.ErrorLog...),
	}
	if rc.Themes != nil {
		e.Ranking = *rc.Themes
	} else {
		e.Ranking = types.Ranking{Empty: true, Reason: "fusion did not run"}
	}
	if e.Ranking.Themes == nil {
		e.Ranking.Themes = []types.Theme{}
	}
	return e
}

// Reporter writes reports for finished runs.
type Reporter struct {
	cfg    config.ReportConfig
	client llm.Client
	logger *zap.Logger
	out    io.Writer
}

// New creates a reporter. client may be nil, which disables the executive summary.
// out receives the terminal rendering when it is enabled.
func New(cfg config.ReportConfig, client llm.Client, logger *zap.Logger, out io.Writer) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{cfg: cfg, client: client, logger: logger, out: out}
}

// Write renders the run to <OutputDir>/<runId>.md and .json. The JSON export is
// validated before anything is written.
func (r *Reporter) Write(ctx context.Context, rc *state.RunContext, status string) (types.ReportArtifact, error) {
	export := NewExport(rc, status)

	if r.cfg.Summary && r.client != nil && len(export.Ranking.Themes) > 0 {
		summary, err := r.summarize(ctx, export.Ranking)
		if err != nil {
			r.logger.Warn("executive summary skipped", zap.String("run_id", rc.RunID), zap.Error(err))
		} else {
			export.Summary = summary
		}
	}

	schema, err := r.schema()
	if err != nil {
		return types.ReportArtifact{}, err
	}
	if err := schema.Validate(export); err != nil {
		return types.ReportArtifact{}, &RenderError{Message: "export does not match schema", Cause: err}
	}

	tmpl, err := r.template()
	if err != nil {
		return types.ReportArtifact{}, err
	}
	markdown, err := Markdown(tmpl, export)
	if err != nil {
		return types.ReportArtifact{}, err
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return types.ReportArtifact{}, &RenderError{Message: "failed to encode export", Cause: err}
	}

	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return types.ReportArtifact{}, &RenderError{Message: "failed to create output directory", Cause: err}
	}
	artifact := types.ReportArtifact{
		MarkdownPath: filepath.Join(r.cfg.OutputDir, rc.RunID+".md"),
		JSONPath:     filepath.Join(r.cfg.OutputDir, rc.RunID+".json"),
	}
	if export.Summary != nil {
		artifact.Summary = export.Summary.Headline
	}
	if err := os.WriteFile(artifact.MarkdownPath, []byte(markdown), 0o644); err != nil {
		return types.ReportArtifact{}, &RenderError{Message: "failed to write markdown report", Cause: err}
	}
	if err := os.WriteFile(artifact.JSONPath, data, 0o644); err != nil {
		return types.ReportArtifact{}, &RenderError{Message: "failed to write JSON export", Cause: err}
	}
	r.logger.Info("report written",
		zap.String("run_id", rc.RunID),
		zap.String("markdown", artifact.MarkdownPath),
		zap.String("json", artifact.JSONPath))

	if r.cfg.Terminal && r.out != nil {
		rendered, err := RenderTerminal(markdown, r.cfg.TerminalWrap)
		if err != nil {
			r.logger.Warn("terminal rendering failed", zap.Error(err))
		} else {
			_, _ = fmt.Fprint(r.out, rendered)
		}
	}
	return artifact, nil
}

func (r *Reporter) schema() (*schemas.Schema, error) {
	if r.cfg.SchemaPath != "" {
		if path := schemas.FindFile(r.cfg.SchemaPath); path != "" {
			s, err := schemas.Load(path)
			if err != nil {
				return nil, &RenderError{Message: "failed to load schema " + path, Cause: err}
			}
			return s, nil
		}
	}
	return compileEmbedded(embedded.Ranking)
}

func compileEmbedded(name string) (*schemas.Schema, error) {
	content, err := embedded.Load(name)
	if err != nil {
		return nil, err
	}
	return schemas.Compile(name, content)
}

func (r *Reporter) template() (*template.Template, error) {
	content := defaultTemplate
	if r.cfg.TemplatePath != "" {
		data, err := os.ReadFile(r.cfg.TemplatePath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, &TemplateError{Message: fmt.Sprintf("template file not found: %s", r.cfg.TemplatePath), Cause: err}
			}
			return nil, &TemplateError{Message: fmt.Sprintf("failed to read template file: %s", r.cfg.TemplatePath), Cause: err}
		}
		content = string(data)
	}
	return ParseTemplate(content)
}

// ParseTemplate parses a report template with the report helper functions.
func ParseTemplate(content string) (*template.Template, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"cell":    EscapeCell,
		"quote":   Quote,
		"join":    strings.Join,
		"percent": func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
	}).Parse(content)
	if err != nil {
		return nil, &TemplateError{Message: "failed to parse template", Cause: err}
	}
	return tmpl, nil
}

// Markdown executes tmpl over the export.
func Markdown(tmpl *template.Template, export Export) (string, error) {
	var result strings.Builder
	if err := tmpl.Execute(&result, export); err != nil {
		return "", &TemplateError{Message: "failed to execute template", Cause: err}
	}
	return result.String(), nil
}

// RenderTerminal renders markdown for a terminal, wrapping at width columns.
func RenderTerminal(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", &RenderError{Message: "failed to create terminal renderer", Cause: err}
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return "", &RenderError{Message: "failed to render markdown", Cause: err}
	}
	return out, nil
}

type themeDigest struct {
	Name        string  `json:"name"`
	Score       float64 `json:"final_score"`
	Technology  string  `json:"technology"`
	Market      string  `json:"market"`
	Growth      float64 `json:"market_growth"`
	Competition float64 `json:"competition"`
}

func (r *Reporter) summarize(ctx context.Context, ranking types.Ranking) (*Summary, error) {
	digest := make([]themeDigest, 0, len(ranking.Themes))
	for _, th := range ranking.Themes {
		digest = append(digest, themeDigest{
			Name:        th.Name,
			Score:       th.FinalScore,
			Technology:  th.Tech.Name,
			Market:      th.Market.Name,
			Growth:      th.GrowthRate,
			Competition: th.Competition,
		})
	}
	themes, err := json.Marshal(digest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode themes: %w", err)
	}

	prompt, err := prompts.Render("report.json", "executive-summary", map[string]string{"Themes": string(themes)})
	if err != nil {
		return nil, err
	}

	text, err := r.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary: %w", err)
	}

	schema, err := compileEmbedded(embedded.Summary)
	if err != nil {
		return nil, err
	}
	if err := schema.ValidateJSON(text); err != nil {
		return nil, fmt.Errorf("summary does not match schema: %w", err)
	}

	var summary Summary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	return &summary, nil
}
