// Package vectorstore provides the semantic index over bug error patterns.
//
// Two implementations are available: a Qdrant-backed index speaking native
// gRPC for deployments with an external vector database, and an embedded
// chromem-go index persisting to local disk for single-node setups. Both
// store one vector per bug, keyed by the bug ID, and answer k-nearest
// queries used by the search pipeline.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates missing or malformed configuration.
	ErrInvalidConfig = errors.New("invalid vectorstore config")

	// ErrInvalidCollectionName indicates a collection name failing validation.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrConnectionFailed indicates the backing store is unreachable.
	ErrConnectionFailed = errors.New("vectorstore connection failed")

	// ErrEmbeddingFailed indicates embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrCollectionNotFound indicates the collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against naming rules.
// Rejects uppercase, special characters, path traversal, and spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Embedder generates vector embeddings from text.
// Implemented by the embeddings package providers.
type Embedder interface {
	// EmbedDocuments generates embeddings for a batch of documents.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Match is a single semantic search hit.
type Match struct {
	// BugID is the canonical bug identifier the vector points at.
	BugID string

	// Score is the cosine similarity in [0, 1], higher is closer.
	Score float32
}

// Index is the semantic index over normalized error patterns.
//
// IndexBug is idempotent per bug ID: re-indexing the same bug replaces
// its vector rather than adding a duplicate.
type Index interface {
	// IndexBug embeds the error pattern and upserts it under the bug ID.
	IndexBug(ctx context.Context, bugID, errorPattern string, metadata map[string]string) error

	// Query embeds the text and returns the k nearest bugs by similarity.
	// A non-empty filter restricts candidates to vectors whose metadata
	// matches every key/value pair.
	Query(ctx context.Context, text string, k int, filter map[string]string) ([]Match, error)

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases resources held by the index.
	Close() error
}
