package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/pipeline"
	"github.com/jonathan/trend-radar/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts an HTTP server exposing endpoints to start, stream, resume and inspect runs.
Runs in flight when the server stops are interrupted at a checkpoint and can be resumed.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(func(cfg *config.Config) {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}
		// reports are written to disk only; the API returns their paths
		cfg.Report.Terminal = false
	})
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

	svc, err := pipeline.NewServices(ctx, a.cfg, a.vocab, a.logger, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	return server.New(a.cfg.Server, svc.Pipeline, store, a.logger).Start(ctx)
}
