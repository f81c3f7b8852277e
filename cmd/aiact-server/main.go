// Package main provides the HTTP server for the AI Act chatbot.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/aiact-go/internal/app"
	"github.com/raphaelgruber/aiact-go/internal/config"
	"github.com/raphaelgruber/aiact-go/internal/httpapi"
	"github.com/raphaelgruber/aiact-go/internal/server"
	"github.com/raphaelgruber/aiact-go/internal/tools"
)

const version = "0.1.0"

func main() {
	// Parse flags
	wipeDB := flag.Bool("wipe", false, "delete all conversations on startup (testing only)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger("aiact-server", cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	logger.Info("starting aiact-server",
		"version", version,
		"addr", cfg.ServerAddr,
		"store", cfg.Store,
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel,
		"corpus", cfg.CorpusPath,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close services", "error", err)
		}
	}()

	// Wipe conversations if requested (via flag or env var)
	if *wipeDB || os.Getenv("AIACT_WIPE_DB") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := a.WipeData(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to wipe conversations", "error", err)
			os.Exit(1)
		}
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.WatchCorpus {
		if err := a.WatchCorpus(runCtx); err != nil {
			logger.Error("failed to watch corpus", "error", err)
			os.Exit(1)
		}
	}

	api := httpapi.New(a.Chat, a.Index, a.Metrics, logger)

	// The MCP tools are served next to the REST API.
	mcpServer := server.New(version, logger)
	mcpServer.Setup()
	tools.RegisterAll(mcpServer.MCPServer(), &tools.Dependencies{
		Chat:    a.Chat,
		Index:   a.Index,
		Metrics: a.Metrics,
		Logger:  logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpServer.HTTPHandler())
	mux.Handle("/", api.Handler())
	httpServer := httpapi.NewHTTPServer(cfg.ServerAddr, mux)

	go func() {
		logger.Info("HTTP API available", "addr", cfg.ServerAddr)
		logger.Info("MCP endpoint available", "path", "/mcp")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutting down server...", "signal", sig)
	stop()

	if err := httpapi.Shutdown(httpServer, 10*time.Second); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}
