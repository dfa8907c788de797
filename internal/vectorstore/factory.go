package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/agentstackio/agentstack/internal/config"
)

// New creates the Index selected by the vectorstore configuration.
func New(cfg config.VectorStoreConfig, embedder Embedder, logger *zap.Logger) (Index, error) {
	switch cfg.Provider {
	case "qdrant":
		return NewQdrantIndex(QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			UseTLS:         cfg.Qdrant.UseTLS,
			CollectionName: cfg.Qdrant.CollectionName,
			VectorSize:     uint64(cfg.Qdrant.VectorSize),
		}, embedder, logger)
	case "chromem":
		return NewChromemIndex(ChromemConfig{
			Path:           cfg.Chromem.Path,
			CollectionName: cfg.Chromem.CollectionName,
			VectorSize:     cfg.Chromem.VectorSize,
			Compress:       cfg.Chromem.Compress,
		}, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
