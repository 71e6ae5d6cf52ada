// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maestro-foundation/maestro/lib/clock"
	"github.com/maestro-foundation/maestro/lib/config"
	"github.com/maestro-foundation/maestro/lib/llm"
	"github.com/maestro-foundation/maestro/lib/process"
	"github.com/maestro-foundation/maestro/lib/service"
	"github.com/maestro-foundation/maestro/lib/version"
)

// shutdownGrace bounds the wait for active campaign runs after their
// contexts are cancelled. A cancelled run only needs to persist its
// terminal state, so this covers the persist retry schedule with room
// to spare.
const shutdownGrace = 30 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var showVersion bool
	flag.StringVar(&configPath, "config", "", "path to maestro.yaml (defaults to $MAESTRO_CONFIG, then built-in defaults)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		version.Print("maestro-campaign-service")
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Environment == config.Development {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := OpenStore(StoreConfig{Path: cfg.StateDB, Logger: logger})
	if err != nil {
		return err
	}
	defer store.Close()

	policy := DefaultPolicy()
	if cfg.PolicyFile != "" {
		policy, err = LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return err
		}
	}

	catalog, err := LoadSegmentCatalog(cfg.SegmentCatalog)
	if err != nil {
		return err
	}

	stageTimeout, err := cfg.StageTimeoutDuration()
	if err != nil {
		return err
	}

	pipeline, err := NewPipeline(PipelineConfig{
		Store:        store,
		Generator:    buildGenerator(cfg),
		Catalog:      catalog,
		Gate:         NewComplianceGate(policy, buildScorer(cfg)),
		Clock:        clock.Real(),
		Logger:       logger,
		StageTimeout: stageTimeout,
		Experiment:   cfg.Experiment,
	})
	if err != nil {
		return err
	}

	campaignService := NewCampaignService(store, pipeline, cfg.Experiment, clock.Real(), logger)

	// CBOR socket server for the CLI and other local clients.
	socketServer := service.NewSocketServer(cfg.Socket, logger)
	campaignService.registerActions(socketServer)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	select {
	case <-socketServer.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	// HTTP server for REST and SSE clients.
	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Listen,
		Handler: campaignService.httpHandler(),
		Logger:  logger,
	})

	httpDone := make(chan error, 1)
	go func() {
		httpDone <- httpServer.Serve(ctx)
	}()

	select {
	case <-httpServer.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	logger.Info("campaign service running",
		"environment", string(cfg.Environment),
		"socket", cfg.Socket,
		"listen", httpServer.Addr().String(),
		"provider", cfg.Generator.Provider,
		"segments", catalog.Len(),
	)

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down")

	// Cancel active runs and wait for them to persist their terminal
	// state before the store closes.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := pipeline.Shutdown(shutdownCtx); err != nil {
		logger.Error("pipeline shutdown incomplete", "error", err)
	}

	// Wait for both servers to drain.
	if err := <-httpDone; err != nil {
		logger.Error("http server error", "error", err)
	}
	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}
	return nil
}

// loadConfig resolves configuration, in order: the --config flag,
// $MAESTRO_CONFIG, then the built-in development defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("MAESTRO_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// buildGenerator constructs the configured completion provider.
func buildGenerator(cfg *config.Config) llm.Generator {
	if cfg.Generator.Provider == config.ProviderOpenAI {
		return llm.NewOpenAI(llm.OpenAIOptions{
			BaseURL:           cfg.Generator.BaseURL,
			APIKey:            cfg.Generator.APIKey,
			Model:             cfg.Generator.Model,
			RequestsPerMinute: cfg.Generator.RequestsPerMinute,
		})
	}
	return &llm.Scripted{Rules: scriptedRules()}
}

// buildScorer selects the moderation backend: the HTTP scorer when an
// endpoint is configured, the built-in lexicon otherwise.
func buildScorer(cfg *config.Config) Scorer {
	if cfg.Scorer.Endpoint != "" {
		return newHTTPScorer(cfg.Scorer.Endpoint, cfg.Scorer.APIKey, nil)
	}
	return newLexiconScorer()
}
