// Package observability provides the process logger and formatted output for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/trend-radar/internal/orchestrator"
	"github.com/jonathan/trend-radar/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len([]rune(line)) > boxWidth-4 {
			line = truncate(line, boxWidth-4)
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// Progress prints one line per scheduling event. It is safe to pass as an
// orchestrator progress callback.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) Progress(event orchestrator.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch event.Kind {
	case orchestrator.EventStageStarted:
		fmt.Fprintf(p.out, "▶ %s\n", event.Stage)
	case orchestrator.EventStageCompleted:
		fmt.Fprintf(p.out, "✓ %s (%s)\n", event.Stage, event.Duration.Round(time.Millisecond))
	case orchestrator.EventStageFailed:
		fmt.Fprintf(p.out, "✗ %s: %s\n", event.Stage, event.Message)
	case orchestrator.EventStageSkipped:
		fmt.Fprintf(p.out, "↷ %s skipped\n", event.Stage)
	case orchestrator.EventRouted:
		fmt.Fprintf(p.out, "→ %s: %s\n", event.Stage, event.Message)
	case orchestrator.EventRunFinished:
		fmt.Fprintf(p.out, "■ run %s %s\n", event.RunID, event.Message)
	}
}

// PrintKeywords outputs the requested keywords next to their canonical forms.
func (p *Printer) PrintKeywords(requested, canonical []string) {
	if len(requested) == 0 && len(canonical) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Requested: %s\n", strings.Join(requested, ", ")))
	sb.WriteString(fmt.Sprintf("Canonical: %s", strings.Join(canonical, ", ")))
	if dropped := len(requested) - len(canonical); dropped > 0 {
		sb.WriteString(fmt.Sprintf("\n(%d dropped or merged)", dropped))
	}

	p.printBox("KEYWORDS", sb.String())
}

// PrintCollection outputs how many entities each source returned.
func (p *Printer) PrintCollection(raw types.RawEntities) {
	counts := raw.Counts()
	sources := make([]string, 0, len(counts))
	for s := range counts {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	var sb strings.Builder
	for _, s := range sources {
		sb.WriteString(fmt.Sprintf("%-16s %6d\n", s, counts[s]))
	}

	p.printBox("COLLECTED ENTITIES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintTechTrends outputs the strongest technology entities.
func (p *Printer) PrintTechTrends(trends []types.TechTrend) {
	if len(trends) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Scored %d technologies:\n\n", len(trends)))

	count := min(len(trends), maxItemsToShow)
	for i := 0; i < count; i++ {
		t := trends[i]
		sb.WriteString(fmt.Sprintf("#%d  %s\n", i+1, t.Name))
		sb.WriteString(fmt.Sprintf("    Maturity: %.1f  Growth: %+.1f%%\n", t.Maturity, t.GrowthRate*100))
		sb.WriteString(fmt.Sprintf("    Papers: %d  Repos: %d  Stars: %d", t.PaperCount, t.RepoCount, t.TotalStars))
		if t.Penalty > 0 && t.Penalty < 1 {
			sb.WriteString(fmt.Sprintf("  (×%.2f)", t.Penalty))
		}
		sb.WriteString("\n")
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(trends) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more", len(trends)-maxItemsToShow))
	}

	p.printBox("TECHNOLOGY TRENDS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintMarketDemands outputs the markets with the highest opportunity.
func (p *Printer) PrintMarketDemands(demands []types.MarketDemand) {
	if len(demands) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(demands), maxItemsToShow)
	for i := 0; i < count; i++ {
		d := demands[i]
		sb.WriteString(fmt.Sprintf("#%d  %s\n", i+1, d.Name))
		sb.WriteString(fmt.Sprintf("    Opportunity: %.1f  CAGR: %.0f%%", d.Opportunity, d.Growth()*100))
		if len(d.Reports) > 0 {
			sb.WriteString(fmt.Sprintf("  Reports: %d", len(d.Reports)))
		}
		sb.WriteString("\n")
	}

	if len(demands) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more", len(demands)-maxItemsToShow))
	}

	p.printBox("MARKET OPPORTUNITIES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRanking outputs the ranked themes.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintRanking(ranking *types.Ranking) {
	if ranking == nil {
		return
	}
	if ranking.Empty || len(ranking.Themes) == 0 {
		p.printBox("THEME RANKING", "No theme qualified: "+ranking.Reason)
		return
	}

	var sb strings.Builder
	for i, th := range ranking.Themes {
		sb.WriteString(fmt.Sprintf("#%d  %s  %.1f\n", th.Rank, th.Name, th.FinalScore))
		sb.WriteString(fmt.Sprintf("    %s × %s\n", th.Tech.Name, th.Market.Name))
		sb.WriteString(fmt.Sprintf("    Growth: %.0f%%  Competition: %.0f", th.GrowthRate*100, th.Competition))
		if i < len(ranking.Themes)-1 {
			sb.WriteString("\n\n")
		}
	}
	if len(ranking.Dropped) > 0 {
		sb.WriteString(fmt.Sprintf("\n\nDropped: %s", strings.Join(ranking.Dropped, ", ")))
	}

	p.printBox("THEME RANKING", sb.String())
}

// PrintErrors outputs the run error log.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintErrors(entries []types.ErrorEntry) {
	if len(entries) == 0 {
		p.mu.Lock()
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ NO ERRORS RECORDED")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		p.mu.Unlock()
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Recorded %d errors:\n\n", len(entries)))

	for i, e := range entries {
		marker := "⚠"
		if e.Fatal {
			marker = "✗"
		}
		stage := e.Stage
		if stage == "" {
			stage = "run"
		}
		sb.WriteString(fmt.Sprintf("%s %s [%s]\n", marker, stage, e.Kind))
		sb.WriteString(fmt.Sprintf("  %s\n", truncate(e.Message, 45)))
		if i < len(entries)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("ERROR LOG", strings.TrimSuffix(sb.String(), "\n"))
}
