package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("agentstack.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Supports ~ expansion.
	Path string

	// CollectionName is the collection holding bug vectors.
	CollectionName string

	// VectorSize is the embedding dimensionality. Informational for
	// chromem, which infers dimensions from the first document.
	VectorSize int

	// Compress enables gzip compression of persisted documents.
	Compress bool
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path required", ErrInvalidConfig)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	return nil
}

// ChromemIndex is an Index backed by the embedded chromem-go database.
// Suited to single-node deployments with no external vector database.
type ChromemIndex struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger

	// chromem collection writes are not safe against concurrent
	// GetOrCreateCollection, serialize collection access.
	mu sync.Mutex
}

var _ Index = (*ChromemIndex)(nil)

// NewChromemIndex creates a persistent chromem-go index at the configured path.
func NewChromemIndex(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemIndex, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := ValidateCollectionName(config.CollectionName); err != nil {
		return nil, fmt.Errorf("validating collection name: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	idx := &ChromemIndex{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	logger.Info("chromem index initialized",
		zap.String("path", expandedPath),
		zap.String("collection", config.CollectionName),
		zap.Bool("compress", config.Compress),
	)

	return idx, nil
}

// expandChromemPath expands ~ to the home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc adapts the Embedder to chromem's embedding callback.
func (idx *ChromemIndex) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return idx.embedder.EmbedQuery(ctx, text)
	}
}

func (idx *ChromemIndex) collection() (*chromem.Collection, error) {
	collection, err := idx.db.GetOrCreateCollection(idx.config.CollectionName, nil, idx.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", idx.config.CollectionName, err)
	}
	return collection, nil
}

// IndexBug embeds the error pattern and stores it under the bug ID.
// chromem upserts by document ID, so re-indexing replaces the vector.
func (idx *ChromemIndex) IndexBug(ctx context.Context, bugID, errorPattern string, metadata map[string]string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.IndexBug")
	defer span.End()

	span.SetAttributes(attribute.String("bug_id", bugID))

	if bugID == "" {
		return fmt.Errorf("bug ID cannot be empty")
	}
	if errorPattern == "" {
		return fmt.Errorf("error pattern cannot be empty")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	collection, err := idx.collection()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	meta := map[string]string{"bug_id": bugID}
	for k, v := range metadata {
		meta[k] = v
	}

	doc := chromem.Document{
		ID:       bugID,
		Content:  errorPattern,
		Metadata: meta,
	}

	if err := collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	span.SetStatus(codes.Ok, "indexed")
	return nil
}

// Query embeds the text and returns the k nearest bugs, restricted to
// documents whose metadata matches the filter when one is given.
func (idx *ChromemIndex) Query(ctx context.Context, text string, k int, filter map[string]string) ([]Match, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Query")
	defer span.End()

	span.SetAttributes(attribute.Int("k", k))

	if text == "" {
		return nil, fmt.Errorf("query text cannot be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	collection, err := idx.collection()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// chromem requires nResults <= document count
	docCount := collection.Count()
	if docCount == 0 {
		return []Match{}, nil
	}
	if k > docCount {
		k = docCount
	}

	var where map[string]string
	if len(filter) > 0 {
		where = filter
	}
	results, err := collection.Query(ctx, text, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", idx.config.CollectionName, err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{BugID: r.ID, Score: r.Similarity}
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")

	idx.logger.Debug("queried chromem collection",
		zap.Int("k", k),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}

// Ping verifies the persistence directory is writable.
func (idx *ChromemIndex) Ping(ctx context.Context) error {
	_ = ctx
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, err := idx.collection()
	return err
}

// Close is a no-op for the embedded store, persistence is synchronous.
func (idx *ChromemIndex) Close() error {
	return nil
}
