package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agentstackio/agentstack/internal/config"
	"github.com/agentstackio/agentstack/internal/embeddings"
	"github.com/agentstackio/agentstack/internal/events"
	"github.com/agentstackio/agentstack/internal/logging"
	"github.com/agentstackio/agentstack/internal/store"
	"github.com/agentstackio/agentstack/internal/vectorstore"
)

// newLogger builds the structured logger from the logging section, on top
// of the redacting defaults.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	lcfg := logging.NewDefaultConfig()
	if cfg.Logging.Level != "" {
		level, err := logging.LevelFromString(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		lcfg.Level = level
	}
	if cfg.Logging.Format != "" {
		lcfg.Format = cfg.Logging.Format
	}
	return logging.New(lcfg)
}

// openStore opens the relational store selected by the configuration. For
// postgres the schema is created if missing.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Provider {
	case "postgres":
		pg, err := store.NewPostgresStore(cfg.Store.DSN.Value(), cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return pg, nil
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store provider: %q", cfg.Store.Provider)
	}
}

// dependencies holds all infrastructure handles for the serve command.
type dependencies struct {
	store     store.Store
	embedder  embeddings.Provider
	index     vectorstore.Index
	publisher events.Publisher
}

// Close releases all infrastructure resources in reverse dependency order.
func (d *dependencies) Close() {
	if d.publisher != nil {
		d.publisher.Close()
	}
	if d.index != nil {
		_ = d.index.Close()
	}
	if d.embedder != nil {
		_ = d.embedder.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// initDependencies opens the store, embedding provider, vector index, and
// event publisher. On any failure everything already opened is closed.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	deps.store = st

	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	deps.embedder = embedder

	logger.Info("embedding provider initialized",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.String("model", cfg.Embeddings.Model),
		zap.Int("dimension", embedder.Dimension()))

	index, err := vectorstore.New(cfg.VectorStore, embedder, logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	deps.index = index

	publisher, err := events.New(cfg.Events, logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("connect event publisher: %w", err)
	}
	deps.publisher = publisher

	return deps, nil
}
