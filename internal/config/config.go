// Package config provides configuration loading for agentstackd.
//
// Configuration is loaded from a YAML file and overridden with environment
// variables. Every section carries defaults that produce a runnable local
// instance (embedded vector store, no event bus).
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete agentstackd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Store         StoreConfig         `koanf:"store"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Search        SearchConfig        `koanf:"search"`
	Decay         DecayConfig         `koanf:"decay"`
	Events        EventsConfig        `koanf:"events"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	BodyLimit       string        `koanf:"body_limit"`
}

// StoreConfig holds relational store configuration.
//
// Provider "postgres" requires DSN. Provider "memory" keeps everything
// in-process and loses data on restart; it exists for tests and local
// experiments.
type StoreConfig struct {
	Provider     string `koanf:"provider"`
	DSN          Secret `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
}

// VectorStoreConfig selects and configures the vector index backend.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"` // "qdrant" or "chromem"
	Qdrant   QdrantConfig  `koanf:"qdrant"`
	Chromem  ChromemConfig `koanf:"chromem"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	APIKey         Secret `koanf:"api_key"`
	UseTLS         bool   `koanf:"use_tls"`
	CollectionName string `koanf:"collection_name"`
	VectorSize     int    `koanf:"vector_size"`
}

// ChromemConfig holds embedded chromem-go settings.
type ChromemConfig struct {
	Path           string `koanf:"path"`
	CollectionName string `koanf:"collection_name"`
	VectorSize     int    `koanf:"vector_size"`
	Compress       bool   `koanf:"compress"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"` // "fastembed" or "tei"
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`  // TEI endpoint
	CacheDir string `koanf:"cache_dir"` // fastembed model cache
}

// SearchConfig holds search orchestration thresholds.
type SearchConfig struct {
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	MinSimilarity       float64 `koanf:"min_similarity"`
	MaxResults          int     `koanf:"max_results"`
	AutoContribute      bool    `koanf:"auto_contribute"`
}

// DecayConfig holds confidence decay parameters.
type DecayConfig struct {
	HalfLife time.Duration `koanf:"half_life"`
	Floor    float64       `koanf:"floor"`
}

// EventsConfig holds NATS event publishing configuration.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Timeouts are not positive
//   - A postgres store is selected without a DSN
//   - Search thresholds fall outside [0, 1]
//   - Decay half-life is not positive or floor outside [0, 1)
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.Store.Provider {
	case "postgres":
		if !c.Store.DSN.IsSet() {
			return errors.New("store.dsn required for postgres provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store provider: %q (must be postgres or memory)", c.Store.Provider)
	}

	switch c.VectorStore.Provider {
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			return errors.New("vectorstore.qdrant.host required for qdrant provider")
		}
		if c.VectorStore.Qdrant.VectorSize <= 0 {
			return errors.New("vectorstore.qdrant.vector_size must be positive")
		}
	case "chromem":
		if c.VectorStore.Chromem.Path == "" {
			return errors.New("vectorstore.chromem.path required for chromem provider")
		}
	default:
		return fmt.Errorf("unknown vectorstore provider: %q (must be qdrant or chromem)", c.VectorStore.Provider)
	}

	switch c.Embeddings.Provider {
	case "fastembed":
	case "tei":
		if c.Embeddings.BaseURL == "" {
			return errors.New("embeddings.base_url required for tei provider")
		}
	default:
		return fmt.Errorf("unknown embeddings provider: %q (must be fastembed or tei)", c.Embeddings.Provider)
	}

	if c.Search.ConfidenceThreshold < 0 || c.Search.ConfidenceThreshold > 1 {
		return fmt.Errorf("search.confidence_threshold must be in [0,1], got %g", c.Search.ConfidenceThreshold)
	}
	if c.Search.MinSimilarity < 0 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("search.min_similarity must be in [0,1], got %g", c.Search.MinSimilarity)
	}
	if c.Search.MinSimilarity > c.Search.ConfidenceThreshold {
		return errors.New("search.min_similarity cannot exceed search.confidence_threshold")
	}
	if c.Search.MaxResults < 1 {
		return fmt.Errorf("search.max_results must be at least 1, got %d", c.Search.MaxResults)
	}

	if c.Decay.HalfLife <= 0 {
		return errors.New("decay.half_life must be positive")
	}
	if c.Decay.Floor < 0 || c.Decay.Floor >= 1 {
		return fmt.Errorf("decay.floor must be in [0,1), got %g", c.Decay.Floor)
	}

	if c.Events.Enabled && c.Events.URL == "" {
		return errors.New("events.url required when events are enabled")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}
