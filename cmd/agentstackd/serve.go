package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentstackio/agentstack/internal/auth"
	"github.com/agentstackio/agentstack/internal/config"
	"github.com/agentstackio/agentstack/internal/contribute"
	"github.com/agentstackio/agentstack/internal/ranking"
	"github.com/agentstackio/agentstack/internal/reputation"
	"github.com/agentstackio/agentstack/internal/search"
	"github.com/agentstackio/agentstack/internal/server"
	"github.com/agentstackio/agentstack/internal/telemetry"
	"github.com/agentstackio/agentstack/internal/verify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agentstackd HTTP server",
	Long: `Start the HTTP server with full service initialization: relational
store, vector index, embedding provider, and optional NATS event
publishing. Blocks until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return runServe(ctx)
	},
}

// runServe initializes all dependencies and blocks until ctx is cancelled:
//
//  1. Loads and validates configuration
//  2. Initializes logger and telemetry
//  3. Opens the relational store and ensures the schema
//  4. Creates the embedding provider and vector index
//  5. Connects the event publisher
//  6. Wires business services and the HTTP server
//  7. Performs graceful shutdown on context cancellation
func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Underlying()

	zl.Info("starting agentstackd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Provider),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider))

	tel, err := newTelemetry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			zl.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	deps, err := initDependencies(ctx, cfg, zl)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Close()

	zl.Info("dependencies initialized",
		zap.Bool("index_ready", deps.index != nil),
		zap.Bool("events_enabled", cfg.Events.Enabled))

	decay := ranking.ExponentialDecay{
		HalfLife: cfg.Decay.HalfLife,
		Floor:    cfg.Decay.Floor,
	}

	contributor := contribute.NewService(deps.store, deps.index, deps.publisher, zl)
	searcher := search.NewService(deps.store, deps.index, contributor, decay, cfg.Search, zl)
	verifier := verify.NewService(deps.store, deps.publisher, zl)
	authSvc := auth.NewService(deps.store, zl)
	engine := reputation.NewEngine(deps.store, reputation.DefaultPolicy{}, decay, zl)

	srv, err := server.NewServer(server.Deps{
		Store:      deps.store,
		Search:     searcher,
		Contribute: contributor,
		Verify:     verifier,
		Auth:       authSvc,
		Reputation: engine,
	}, cfg.Server, zl)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	zl.Info("shutdown complete")
	return nil
}

// newTelemetry builds the OTLP pipeline from the observability section.
// Returns a disabled (nil-safe) Telemetry when telemetry is off.
func newTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	tcfg := telemetry.NewDefaultConfig()
	tcfg.Enabled = cfg.Observability.EnableTelemetry
	tcfg.ServiceVersion = version
	if cfg.Observability.ServiceName != "" {
		tcfg.ServiceName = cfg.Observability.ServiceName
	}
	if cfg.Observability.OTLPEndpoint != "" {
		tcfg.Endpoint = cfg.Observability.OTLPEndpoint
	}
	return telemetry.New(ctx, tcfg)
}
