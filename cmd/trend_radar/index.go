package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/fetch"
	"github.com/jonathan/trend-radar/internal/retrieval"
)

var indexCommand = &cobra.Command{
	Use:   "index",
	Short: "Build the retrieval index from the documents directory",
	Long: `Indexes markdown, text and HTML documents under the documents directory into the
retrieval index. Unchanged files are skipped and deleted files are removed.
Pages given with --url are fetched and stored under their URL.`,
	RunE: indexCmd,
}

var (
	indexDocs string
	indexPath string
	indexURLs []string
)

func init() {
	indexCommand.Flags().StringVar(&indexDocs, "docs", "", "Documents directory (default from config)")
	indexCommand.Flags().StringVar(&indexPath, "index", "", "Index database path (default from config)")
	indexCommand.Flags().StringSliceVar(&indexURLs, "url", nil, "Web page to fetch and index (repeatable)")
	rootCmd.AddCommand(indexCommand)
}

func indexCmd(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(func(cfg *config.Config) {
		if cmd.Flags().Changed("docs") {
			cfg.Retrieval.DocumentsDir = indexDocs
		}
		if cmd.Flags().Changed("index") {
			cfg.Retrieval.IndexPath = indexPath
		}
	})
	if err != nil {
		return err
	}
	defer a.close()
	rc := a.cfg.Retrieval
	if rc.IndexPath == "" {
		return fmt.Errorf("retrieval.index_path is not configured")
	}

	ctx, stop := signalContext()
	defer stop()

	ix, err := retrieval.Open(rc.IndexPath)
	if err != nil {
		return err
	}
	defer ix.Close()

	out := cmd.OutOrStdout()
	if rc.DocumentsDir != "" {
		summary, err := ix.Build(ctx, rc.DocumentsDir, rc.ChunkSize, rc.ChunkOverlap, a.logger)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Indexed %d, updated %d, unchanged %d, removed %d, skipped %d, failed %d (%d chunks written)\n",
			summary.Indexed, summary.Updated, summary.Unchanged, summary.Removed, summary.Skipped, summary.Failed, summary.Chunks)
	}

	fetcher := fetch.New(fetch.Options{Timeout: a.cfg.Collector.Timeout})
	var failed int
	for _, u := range indexURLs {
		page, err := fetcher.Get(ctx, u)
		if err != nil {
			a.logger.Warn("failed to fetch page", zap.String("url", u), zap.Error(err))
			failed++
			continue
		}
		text := page.Text
		if page.Title != "" {
			text = page.Title + "\n\n" + text
		}
		n, err := ix.AddDocument(ctx, page.URL, time.Now().UTC().Format(time.RFC3339), text, rc.ChunkSize, rc.ChunkOverlap)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Indexed %s (%d chunks)\n", page.URL, n)
	}

	total, err := ix.ChunkCount(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Index %s holds %d chunks\n", rc.IndexPath, total)
	if failed > 0 {
		return fmt.Errorf("%d of %d pages could not be fetched", failed, len(indexURLs))
	}
	return nil
}
