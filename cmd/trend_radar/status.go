package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/trend-radar/internal/checkpoint"
	"github.com/jonathan/trend-radar/internal/observability"
	"github.com/jonathan/trend-radar/internal/pipeline"
	"github.com/jonathan/trend-radar/internal/pipeline/steps"
)

var statusCommand = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the last checkpoint of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  statusCmd,
}

var statusJSON bool

func init() {
	statusCommand.Flags().BoolVar(&statusJSON, "json", false, "Print the checkpoint as JSON")
	rootCmd.AddCommand(statusCommand)
}

func statusCmd(cmd *cobra.Command, args []string) error {
	a, err := loadApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := pipeline.Status(ctx, store, args[0])
	if err != nil {
		return err
	}
	return printStatus(cmd.OutOrStdout(), snap, statusJSON)
}

func printStatus(out io.Writer, snap *checkpoint.Snapshot, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	rc := snap.Context
	_, _ = fmt.Fprintf(out, "Run:      %s\n", snap.RunID)
	_, _ = fmt.Fprintf(out, "Status:   %s\n", snap.Status)
	_, _ = fmt.Fprintf(out, "Saved:    %s (checkpoint %d)\n", snap.SavedAt.Format(time.RFC3339), snap.Seq)

	names := make([]string, 0, len(rc.StageStatus))
	for name := range rc.StageStatus {
		names = append(names, name)
	}
	sort.Strings(names)
	_, _ = fmt.Fprintln(out, "Stages:")
	for _, name := range names {
		_, _ = fmt.Fprintf(out, "  %-15s %s\n", name, rc.StageStatus[name])
	}
	if !snap.Status.Terminal() {
		if next := steps.GetAvailableSteps(rc.StageStatus); len(next) > 0 {
			_, _ = fmt.Fprintf(out, "Next:     %s\n", strings.Join(next, ", "))
		}
		if waiting := steps.GetBlockedSteps(rc.StageStatus); len(waiting) > 0 {
			_, _ = fmt.Fprintf(out, "Waiting:  %s\n", strings.Join(waiting, ", "))
		}
	}

	printer := observability.NewPrinter(out)
	printer.PrintRanking(rc.Themes)
	printer.PrintErrors(rc.ErrorLog)
	if rc.Report != nil {
		_, _ = fmt.Fprintf(out, "Report: %s\n", rc.Report.MarkdownPath)
	}
	return nil
}
