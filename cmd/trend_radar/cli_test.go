package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trend-radar/internal/checkpoint"
	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/observability"
	"github.com/jonathan/trend-radar/internal/orchestrator"
	"github.com/jonathan/trend-radar/internal/state"
	"github.com/jonathan/trend-radar/internal/types"
)

func TestApplyRunFlags_OnlyChangedFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().StringSliceVarP(&runKeywords, "keywords", "k", nil, "")
	cmd.Flags().BoolVar(&runFast, "fast", false, "")
	cmd.Flags().StringVarP(&runOutDir, "out", "o", "", "")
	cmd.Flags().StringVar(&runBackend, "checkpoint", "", "")
	cmd.Flags().BoolVar(&runNoTerminal, "no-terminal", false, "")
	require.NoError(t, cmd.ParseFlags([]string{"--keywords", "LLM,edge AI", "--no-terminal"}))

	cfg := config.Default()
	cfg.Fast = true
	cfg.Report.Terminal = true
	applyRunFlags(cmd, &cfg)

	assert.Equal(t, []string{"LLM", "edge AI"}, cfg.Keywords)
	assert.True(t, cfg.Fast, "unset flags keep config values")
	assert.Equal(t, config.Default().Report.OutputDir, cfg.Report.OutputDir)
	assert.False(t, cfg.Report.Terminal)
}

func TestRunKeywordsFor(t *testing.T) {
	vocab := config.DefaultVocabulary()
	cfg := config.Default()

	assert.Equal(t, vocab.SeedTech, runKeywordsFor(&cfg, vocab))
	cfg.Keywords = []string{"LLM"}
	assert.Equal(t, []string{"LLM"}, runKeywordsFor(&cfg, vocab))
}

func result(status checkpoint.RunStatus) *orchestrator.Result {
	rc := state.New("run-1", []string{"LLM"}, false, []string{"collector"})
	rc.Keywords = []string{"LLM agent"}
	return &orchestrator.Result{RunID: "run-1", Status: status, Context: rc}
}

func TestFinishRun(t *testing.T) {
	var out bytes.Buffer
	printer := observability.NewPrinter(&out)

	completed := result(checkpoint.RunCompleted)
	completed.Context.Report = &types.ReportArtifact{MarkdownPath: "reports/run-1.md"}
	require.NoError(t, finishRun(&out, printer, completed, nil))
	assert.Contains(t, out.String(), "Report: reports/run-1.md")

	err := finishRun(&out, printer, result(checkpoint.RunAborted), nil)
	assert.EqualError(t, err, "run run-1 aborted")

	out.Reset()
	err = finishRun(&out, printer, result(checkpoint.RunInterrupted), fmt.Errorf("stage: %w", context.Canceled))
	assert.EqualError(t, err, "run run-1 interrupted")
	assert.Contains(t, out.String(), "trend_radar resume run-1")

	boom := errors.New("checkpoint store unavailable")
	assert.ErrorIs(t, finishRun(&out, printer, nil, boom), boom)
}

func TestPrintStatus(t *testing.T) {
	snap := &checkpoint.Snapshot{RunID: "run-1", Seq: 3, Status: checkpoint.RunInterrupted, Context: result(checkpoint.RunInterrupted).Context}
	snap.Context.StageStatus["collector"] = state.StatusCompleted

	var out bytes.Buffer
	require.NoError(t, printStatus(&out, snap, false))
	assert.Contains(t, out.String(), "Status:   interrupted")
	assert.Contains(t, out.String(), "checkpoint 3")
	assert.Contains(t, out.String(), "collector")
	assert.Contains(t, out.String(), "Next:     market_scoring, tech_scoring")
	assert.Contains(t, out.String(), "Waiting:  fusion, report, retrieval")

	out.Reset()
	require.NoError(t, printStatus(&out, snap, true))
	assert.Contains(t, out.String(), `"run_id": "run-1"`)
}

func TestStatusCommand(t *testing.T) {
	dir := t.TempDir()
	checkpoints := filepath.Join(dir, "checkpoints")
	cfgPath := filepath.Join(dir, "trend-radar.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("checkpoint:\n  backend: file\n  dir: %s\nlog:\n  level: error\n", checkpoints)), 0o644))

	store, err := checkpoint.NewFileStore(checkpoints)
	require.NoError(t, err)
	snap := &checkpoint.Snapshot{Version: checkpoint.FormatVersion, RunID: "cli-1", Seq: 1, Status: checkpoint.RunCompleted, Context: result(checkpoint.RunCompleted).Context}
	require.NoError(t, store.Save(context.Background(), snap))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		configPath = ""
	})

	rootCmd.SetArgs([]string{"status", "cli-1", "--config", cfgPath})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Run:      cli-1")
	assert.Contains(t, out.String(), "Status:   completed")

	rootCmd.SetArgs([]string{"status", "missing", "--config", cfgPath})
	err = rootCmd.Execute()
	assert.ErrorIs(t, err, orchestrator.ErrRunNotFound)
}
