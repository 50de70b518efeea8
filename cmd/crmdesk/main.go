// Package main is the entry point for the CRM Desk server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/apiclient"
	"github.com/pitabwire/crmdesk/internal/config"
	"github.com/pitabwire/crmdesk/internal/navigation"
	"github.com/pitabwire/crmdesk/internal/observability"
	"github.com/pitabwire/crmdesk/internal/session"
	"github.com/pitabwire/crmdesk/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before configuration")
	flag.Parse()

	// Step 2: Load environment and configuration.
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "dotenv error: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "crmdesk", version)
	if err != nil {
		logger.Fatal("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Shared CRM API transport and circuit breaker.
	httpClient := apiclient.NewHTTPClient(cfg.API.Timeout)
	cb := cfg.API.CircuitBreaker
	breaker := apiclient.NewCircuitBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout)
	breaker.OnStateChange(func(state apiclient.BreakerState) {
		metrics.SetCircuitBreakerState(float64(state))
		logger.Warn("circuit breaker state changed", zap.String("state", state.String()))
	})

	// Step 5: Page assets.
	assets := buildAssetSource(cfg.Assets, httpClient)

	// Step 6: Session flag store.
	tokens, tokensCloser, err := buildTokenStore(cfg.Session.Store, logger)
	if err != nil {
		logger.Fatal("token store initialization failed", zap.Error(err))
		return 1
	}

	sessions := session.NewStore(session.Deps{
		Config:     cfg,
		HTTPClient: httpClient,
		Breaker:    breaker,
		Assets:     assets,
		Logger:     logger,
		Metrics:    metrics,
	}, tokens)

	// Step 7: Build HTTP router.
	probe := apiclient.New(cfg.API, nil, apiclient.WithHTTPClient(httpClient), apiclient.WithLogger(logger))
	readinessChecks := observability.ReadinessChecks{
		API: probe,
		Assets: observability.CheckFunc(func(ctx context.Context) error {
			_, err := assets.Fetch(ctx, navigation.MarkupPath(cfg.Navigation.StartPage))
			return err
		}),
	}
	if hc, ok := tokens.(observability.HealthChecker); ok {
		readinessChecks.TokenStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:   cfg,
		Sessions: sessions,
		Ready:    readinessChecks,
		Logger:   logger,
		Metrics:  metrics,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 8: Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	go sessions.Run(bgCtx, cfg.Session.SweepInterval)

	// Step 9: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("api_base_url", cfg.API.BaseURL),
		zap.String("session_store", cfg.Session.Store.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel background tasks.
	bgCancel()

	if tokensCloser != nil {
		tokensCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildAssetSource serves page markup from the asset server when one is
// configured, otherwise from the asset directory.
func buildAssetSource(cfg config.AssetsConfig, client *http.Client) navigation.Source {
	if cfg.BaseURL != "" {
		return &navigation.HTTPSource{BaseURL: cfg.BaseURL, Client: client}
	}
	return navigation.NewDirSource(cfg.Dir)
}

// buildTokenStore creates the session flag store based on config.
func buildTokenStore(cfg config.SessionStoreConfig, logger *zap.Logger) (session.TokenStore, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory session token store")
		return session.NewMemoryTokenStore(), nil, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("token store: %s environment variable not set", cfg.AddrEnv)
		}
		client, err := session.Connect(addr, cfg.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("token store: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("token store: ping: %w", err)
		}
		logger.Info("using redis session token store")
		return session.NewRedisTokenStore(client), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported token store driver: %q", cfg.Driver)
	}
}
