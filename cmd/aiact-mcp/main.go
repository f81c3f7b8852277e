// Package main provides the entry point for the aiact MCP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/aiact-go/internal/app"
	"github.com/raphaelgruber/aiact-go/internal/config"
	"github.com/raphaelgruber/aiact-go/internal/server"
	"github.com/raphaelgruber/aiact-go/internal/tools"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger("aiact-mcp", cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	logger.Info("aiact-mcp starting",
		"version", version,
		"store", cfg.Store,
		"llm_provider", cfg.LLMProvider,
		"corpus", cfg.CorpusPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing services")
		if err := a.Close(); err != nil {
			logger.Error("failed to close services", "error", err)
		}
	}()

	if cfg.WatchCorpus {
		if err := a.WatchCorpus(ctx); err != nil {
			logger.Error("failed to watch corpus", "error", err)
			os.Exit(1)
		}
	}

	// Create and setup server
	srv := server.New(version, logger)
	srv.Setup()

	// Register tools
	tools.RegisterAll(srv.MCPServer(), &tools.Dependencies{
		Chat:    a.Chat,
		Index:   a.Index,
		Metrics: a.Metrics,
		Logger:  logger,
	})

	logger.Info("server ready, awaiting connections")

	// Run server (blocks until disconnect or context cancelled)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
