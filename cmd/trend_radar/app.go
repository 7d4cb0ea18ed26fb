package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/jonathan/trend-radar/internal/checkpoint"
	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/observability"
	"github.com/jonathan/trend-radar/internal/pipeline"
)

// app is the configuration shared by the subcommands
type app struct {
	cfg    *config.Config
	vocab  *config.Vocabulary
	logger *zap.Logger
}

// loadApp reads the config file, lets override adjust it, then validates the result
// and loads the vocabulary it names.
func loadApp(override func(*config.Config)) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	vocab, err := config.LoadVocabulary(cfg.VocabularyPath)
	if err != nil {
		return nil, err
	}
	if err := vocab.Validate(); err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Log, verbose)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, vocab: vocab, logger: logger}, nil
}

func (a *app) openStore(ctx context.Context) (checkpoint.Store, error) {
	store, err := pipeline.OpenStore(ctx, a.cfg.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	return store, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// signalContext is cancelled on SIGINT or SIGTERM so a run stops at a checkpoint.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
