package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"anistream/pkg/config"
	"anistream/pkg/hlsproxy"
	"anistream/pkg/logger"
	"anistream/pkg/orchestrator"
	"anistream/pkg/provider"
	"anistream/pkg/reliability"
	"anistream/pkg/server"
)

func main() {
	// Load environment variables for logger and config
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}
	logger.Init(logLevel)

	logger.Info("Starting AniStream", "version", "v0.1.0")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)

	registry := provider.NewRegistry(buildProviders(cfg)...)
	logger.Info("Providers registered", "count", len(registry.Names()), "order", registry.Names())

	breaker := reliability.NewBreaker(cfg.BreakerFailureThreshold, cfg.BreakerResetTimeout())
	wrapper := reliability.NewWrapper(breaker, reliability.Options{
		MaxAttempts: cfg.ProviderMaxAttempts,
		Timeout:     cfg.ProviderTimeout(),
		RetryDelay:  cfg.ProviderRetryDelay(),
	})

	manager := orchestrator.New(registry, wrapper, orchestrator.Config{
		CacheTTL:  cfg.CacheTTL(),
		StreamTTL: cfg.StreamCacheTTL(),
	})

	proxy := hlsproxy.New(hlsproxy.Config{
		Route:           "/stream/proxy",
		UpstreamTimeout: cfg.ProxyTimeout(),
	})

	srv := server.New(cfg, manager, proxy)

	// Serve until the listener fails or a shutdown signal arrives.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		logger.Info("Shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("Graceful shutdown incomplete", "err", err)
		}
	}
}

// buildProviders constructs a REST adapter per configured provider, already
// in rank order (config.Load sorts them).
func buildProviders(cfg *config.Config) []provider.Provider {
	out := make([]provider.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		if pc.Name == "" || pc.URL == "" {
			logger.Warn("Skipping misconfigured provider", "name", pc.Name, "url", pc.URL)
			continue
		}
		out = append(out, provider.NewREST(provider.RESTConfig{
			Name:    pc.Name,
			BaseURL: pc.URL,
			APIKey:  pc.APIKey,
		}))
	}
	return out
}
