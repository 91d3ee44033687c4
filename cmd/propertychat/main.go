package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/propertychat/internal/auth"
	"github.com/tjfontaine/propertychat/internal/config"
	"github.com/tjfontaine/propertychat/internal/frontdoor/chat"
	"github.com/tjfontaine/propertychat/internal/llm/openai"
	"github.com/tjfontaine/propertychat/internal/orchestrator"
	"github.com/tjfontaine/propertychat/internal/retrieval"
	"github.com/tjfontaine/propertychat/internal/server"
	"github.com/tjfontaine/propertychat/internal/storage/sqldb"
	"github.com/tjfontaine/propertychat/internal/telemetry"
	"github.com/tjfontaine/propertychat/internal/tokens"
	"github.com/tjfontaine/propertychat/internal/tools"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer(server.ServiceName, cfg.Telemetry, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	if cfg.Storage.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DSN), 0o755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}
	store, err := sqldb.New(sqldb.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		log.Fatalf("Failed to open price store: %v", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}

	loop, err := newLoop(cfg, store, logger)
	if err != nil {
		log.Fatalf("Failed to build chat loop: %v", err)
	}

	srv := server.New(cfg.Server, logger, auth.NewAuthenticator(cfg.Auth.APIKeys))
	srv.Router.Get("/healthz", server.Healthz)
	handler := chat.NewHandler(loop, chat.WithLogger(logger), chat.WithHeartbeat(15*time.Second))
	for _, route := range handler.Routes() {
		srv.Router.Method(route.Method, route.Path, route.Handler)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("propertychat started",
		slog.Int("port", cfg.Server.Port),
		slog.String("strategy", string(cfg.Chat.Strategy)),
		slog.String("model", cfg.Model.Name),
		slog.String("storage", cfg.Storage.Driver),
		slog.Bool("auth", len(cfg.Auth.APIKeys) > 0),
	)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping server...")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Server shutdown complete")
}

// newLoop wires the model and the grounding strategy. Tools and retrieval
// are never combined: retrieval mode runs with an empty registry.
func newLoop(cfg *config.Config, store *sqldb.Store, logger *slog.Logger) (*orchestrator.Loop, error) {
	var modelOpts []openai.ClientOption
	if cfg.Model.BaseURL != "" {
		modelOpts = append(modelOpts, openai.WithBaseURL(cfg.Model.BaseURL))
	}
	model := openai.NewClient(cfg.Model.APIKey, modelOpts...)

	opts := []orchestrator.Option{
		orchestrator.WithCounter(tokens.NewOpenAICounter(cfg.Model.Name)),
		orchestrator.WithLogger(logger),
	}

	switch cfg.Chat.Strategy {
	case config.StrategyTools:
		registry, err := tools.New(tools.Deps{Prices: store},
			tools.WithTimeout(cfg.Tools.Timeout),
			tools.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return orchestrator.New(model, registry, orchestrator.ConfigFrom(cfg), opts...), nil

	case config.StrategyRetrieval:
		embed := retrieval.NewOpenAIEmbedder(retrieval.NewOpenAIClient(cfg.Model), cfg.Retrieval.EmbeddingModel)
		r, err := retrieval.New(cfg.Retrieval, embed, retrieval.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if r.Count() == 0 {
			logger.Warn("retrieval collection is empty, run ingest with --docs first",
				slog.String("collection", cfg.Retrieval.Collection))
		}
		opts = append(opts, orchestrator.WithRetriever(r))
		return orchestrator.New(model, tools.Empty(), orchestrator.ConfigFrom(cfg), opts...), nil
	}
	return nil, errors.New("unknown chat strategy " + string(cfg.Chat.Strategy))
}
