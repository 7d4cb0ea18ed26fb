package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/trend-radar/internal/observability"
	"github.com/jonathan/trend-radar/internal/pipeline"
)

var resumeCommand = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume an interrupted run from its last checkpoint",
	Long: `Continues a run from its last checkpoint. Completed stages are not executed again;
resuming a finished run prints its stored result.`,
	Args: cobra.ExactArgs(1),
	RunE: resumeCmd,
}

func init() {
	rootCmd.AddCommand(resumeCommand)
}

func resumeCmd(cmd *cobra.Command, args []string) error {
	a, err := loadApp(nil)
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
	res, err := svc.Pipeline.Resume(ctx, store, args[0], printer.Progress)
	return finishRun(out, printer, res, err)
}
