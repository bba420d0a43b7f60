package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaot623/dualchat/internal/adapter/provider"
	"github.com/xiaot623/dualchat/internal/auth"
	"github.com/xiaot623/dualchat/internal/config"
	"github.com/xiaot623/dualchat/internal/logging"
	"github.com/xiaot623/dualchat/internal/metrics"
	"github.com/xiaot623/dualchat/internal/policy"
	"github.com/xiaot623/dualchat/internal/registry"
	"github.com/xiaot623/dualchat/internal/repository"
	"github.com/xiaot623/dualchat/internal/service"
	httpserver "github.com/xiaot623/dualchat/internal/transport/http"
	"github.com/xiaot623/dualchat/internal/transport/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger, err := logging.Init(cfg)
	if err != nil {
		logger.Warn("log file disabled", "error", err)
	}

	logger.Info("starting dualchat relay", "http_port", cfg.HTTPPort, "mode", cfg.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	db, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "failed to initialize store", err)
	}
	defer db.Close()

	// Initialize provider adapters and catalog
	adapters := provider.ForMode(cfg.Mode, provider.NewHTTPClient(cfg.ProviderTimeout))
	reg := registry.Default()
	if cfg.ProvidersFile != "" {
		reg, err = registry.LoadFile(cfg.ProvidersFile, adapters.IDs())
		if err != nil {
			fatal(logger, "failed to load provider catalog", err)
		}
		logger.Info("provider catalog loaded", "path", cfg.ProvidersFile)
	}

	// Initialize policy engine
	policyEngine, err := policy.Load(ctx, cfg.PolicyFile)
	if err != nil {
		fatal(logger, "failed to initialize policy engine", err)
	}

	tokens := auth.NewTokens(cfg.AuthTokens)
	if tokens.Open() {
		logger.Warn("AUTH_TOKENS is empty, any bearer token is accepted as its own owner id")
	}

	// Observers
	collector := metrics.New()
	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	// Initialize service
	svc := service.New(db, reg, adapters, cfg,
		service.WithLogger(logger),
		service.WithPolicy(policyEngine),
		service.WithRelayObserver(collector),
		service.WithRelayObserver(hub),
		service.WithSessionObserver(hub),
	)

	wsServer := ws.NewServer(cfg, hub, svc, tokens, logger)
	server := httpserver.NewServer(svc, cfg, tokens,
		httpserver.WithLogger(logger),
		httpserver.WithMetrics(collector.Handler()),
		httpserver.WithWebSocket(wsServer.HandleWebSocket),
	)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			fatal(logger, "failed to start HTTP server", err)
		}
	}()

	logger.Info("HTTP API started", "port", cfg.HTTPPort)

	<-ctx.Done()
	logger.Info("shutting down dualchat relay")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server gracefully", "error", err)
	}

	logger.Info("dualchat relay stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
