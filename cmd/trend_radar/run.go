package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jonathan/trend-radar/internal/checkpoint"
	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/observability"
	"github.com/jonathan/trend-radar/internal/orchestrator"
	"github.com/jonathan/trend-radar/internal/pipeline"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the trend analysis pipeline end-to-end",
	Long: `Runs collector -> tech_scoring + market_scoring -> retrieval -> fusion -> report.

Configuration is read from --config; flags override config file values when set.
The command exits non-zero when the run is aborted.`,
	RunE: runPipelineCmd,
}

var (
	runKeywords   []string
	runFast       bool
	runID         string
	runOutDir     string
	runBackend    string
	runNoTerminal bool
)

func init() {
	runCommand.Flags().StringSliceVarP(&runKeywords, "keywords", "k", nil, "Comma-separated keywords (default: config keywords, then the seed vocabulary)")
	runCommand.Flags().BoolVar(&runFast, "fast", false, "Use the reduced collection limits")
	runCommand.Flags().StringVar(&runID, "run-id", "", "Run identifier (default: random UUID)")
	runCommand.Flags().StringVarP(&runOutDir, "out", "o", "", "Report output directory")
	runCommand.Flags().StringVar(&runBackend, "checkpoint", "", "Checkpoint backend: file, sqlite, postgres or memory")
	runCommand.Flags().BoolVar(&runNoTerminal, "no-terminal", false, "Do not render the report to the terminal")

	rootCmd.AddCommand(runCommand)
}

// applyRunFlags overrides config values with the flags that were set explicitly.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("keywords") {
		cfg.Keywords = runKeywords
	}
	if cmd.Flags().Changed("fast") {
		cfg.Fast = runFast
	}
	if cmd.Flags().Changed("out") {
		cfg.Report.OutputDir = runOutDir
	}
	if cmd.Flags().Changed("checkpoint") {
		cfg.Checkpoint.Backend = runBackend
	}
	if cmd.Flags().Changed("no-terminal") {
		cfg.Report.Terminal = !runNoTerminal
	}
}

// runKeywordsFor returns the configured keywords, falling back to the seed technologies.
func runKeywordsFor(cfg *config.Config, vocab *config.Vocabulary) []string {
	if len(cfg.Keywords) > 0 {
		return cfg.Keywords
	}
	return vocab.SeedTech
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(func(cfg *config.Config) { applyRunFlags(cmd, cfg) })
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	svc, err := pipeline.NewServices(ctx, a.cfg, a.vocab, a.logger, out)
	if err != nil {
		return err
	}
	defer svc.Close()

	printer := observability.NewPrinter(out)
	res, err := svc.Pipeline.Run(ctx, store, pipeline.RunOptions{
		RunID:      runID,
		Keywords:   runKeywordsFor(a.cfg, a.vocab),
		Fast:       a.cfg.Fast,
		OnProgress: printer.Progress,
	})
	return finishRun(out, printer, res, err)
}

// finishRun prints the outcome and turns aborted or interrupted runs into errors.
func finishRun(out io.Writer, printer *observability.Printer, res *orchestrator.Result, err error) error {
	if res != nil {
		printResult(printer, res)
	}
	switch {
	case err != nil && errors.Is(err, context.Canceled) && res != nil:
		_, _ = fmt.Fprintf(out, "\nRun interrupted. Continue with: trend_radar resume %s\n", res.RunID)
		return fmt.Errorf("run %s interrupted", res.RunID)
	case err != nil:
		return err
	case res.Status == checkpoint.RunAborted:
		return fmt.Errorf("run %s aborted", res.RunID)
	}
	if res.Context.Report != nil {
		_, _ = fmt.Fprintf(out, "\nReport: %s\n", res.Context.Report.MarkdownPath)
	}
	return nil
}

func printResult(printer *observability.Printer, res *orchestrator.Result) {
	rc := res.Context
	if rc == nil {
		return
	}
	printer.PrintKeywords(rc.Requested, rc.Keywords)
	printer.PrintCollection(rc.RawEntities)
	printer.PrintTechTrends(rc.TechTrends)
	printer.PrintMarketDemands(rc.MarketDemands)
	printer.PrintRanking(rc.Themes)
	printer.PrintErrors(rc.ErrorLog)
}
