package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	envPrefix = "AGENTSTACK_"
)

// defaultsYAML carries defaults whose zero value is indistinguishable from
// "unset" after unmarshaling. Scalar defaults live in applyDefaults.
var defaultsYAML = []byte(`
search:
  auto_contribute: true
observability:
  enable_telemetry: true
`)

// Load loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (AGENTSTACK_SERVER_HTTP_PORT, AGENTSTACK_STORE_DSN, ...)
//  2. YAML config file (path from the --config flag; optional)
//  3. Hardcoded defaults
//
// Environment variables are prefixed with AGENTSTACK_, then mapped to config
// keys by splitting on the first underscore:
//
//	AGENTSTACK_SERVER_HTTP_PORT -> server.http_port
//	AGENTSTACK_STORE_DSN        -> store.dsn
//	AGENTSTACK_SEARCH_CONFIDENCE_THRESHOLD -> search.confidence_threshold
//
// Nested sections (qdrant, chromem) use the double-underscore separator:
//
//	AGENTSTACK_VECTORSTORE__QDRANT__HOST -> vectorstore.qdrant.host
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// transformEnvKey maps an environment variable name to a koanf key.
//
// The prefix is stripped, double underscores become section separators, and
// the remainder splits on the first single underscore into section.field:
//
//	AGENTSTACK_SERVER_HTTP_PORT        -> server.http_port
//	AGENTSTACK_VECTORSTORE__QDRANT__HOST -> vectorstore.qdrant.host
func transformEnvKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))

	if strings.Contains(lower, "__") {
		return strings.ReplaceAll(lower, "__", ".")
	}

	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.BodyLimit == "" {
		cfg.Server.BodyLimit = "1M"
	}

	if cfg.Store.Provider == "" {
		cfg.Store.Provider = "postgres"
	}
	if cfg.Store.MaxOpenConns == 0 {
		cfg.Store.MaxOpenConns = 25
	}
	if cfg.Store.MaxIdleConns == 0 {
		cfg.Store.MaxIdleConns = 5
	}

	// chromem is the default vector store: embedded, no external deps.
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.CollectionName == "" {
		cfg.VectorStore.Qdrant.CollectionName = "agentstack_bugs"
	}
	if cfg.VectorStore.Qdrant.VectorSize == 0 {
		cfg.VectorStore.Qdrant.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.local/share/agentstack/vectorstore"
	}
	if cfg.VectorStore.Chromem.CollectionName == "" {
		cfg.VectorStore.Chromem.CollectionName = "agentstack_bugs"
	}
	if cfg.VectorStore.Chromem.VectorSize == 0 {
		cfg.VectorStore.Chromem.VectorSize = 384
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8081"
	}

	if cfg.Search.ConfidenceThreshold == 0 {
		cfg.Search.ConfidenceThreshold = 0.85
	}
	if cfg.Search.MinSimilarity == 0 {
		cfg.Search.MinSimilarity = 0.3
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 10
	}

	if cfg.Decay.HalfLife == 0 {
		cfg.Decay.HalfLife = 90 * 24 * time.Hour
	}
	if cfg.Decay.Floor == 0 {
		cfg.Decay.Floor = 0.1
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "agentstack"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "agentstackd"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
