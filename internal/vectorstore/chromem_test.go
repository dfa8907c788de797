package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubEmbedder returns preset vectors for known texts so tests control
// similarity ordering without a real model.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (e *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (e *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newTestIndex(t *testing.T, dir string) *ChromemIndex {
	t.Helper()

	embedder := &stubEmbedder{vectors: map[string][]float32{
		"nil pointer dereference": {1, 0, 0},
		"connection refused":      {0, 1, 0},
		"index out of range":      {0, 0, 1},
		"nil pointer panic":       {0.95, 0.05, 0},
	}}

	idx, err := NewChromemIndex(ChromemConfig{
		Path:           dir,
		CollectionName: "bugs_test",
		VectorSize:     3,
	}, embedder, zap.NewNop())
	require.NoError(t, err)
	return idx
}

func TestNewChromemIndexValidation(t *testing.T) {
	embedder := &stubEmbedder{}

	_, err := NewChromemIndex(ChromemConfig{CollectionName: "bugs"}, embedder, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewChromemIndex(ChromemConfig{Path: t.TempDir(), CollectionName: "Bad-Name"}, embedder, nil)
	require.ErrorIs(t, err, ErrInvalidCollectionName)

	_, err = NewChromemIndex(ChromemConfig{Path: t.TempDir(), CollectionName: "bugs"}, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChromemIndexAndQuery(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, idx.IndexBug(ctx, "bug-1", "nil pointer dereference", map[string]string{"error_type": "runtime"}))
	require.NoError(t, idx.IndexBug(ctx, "bug-2", "connection refused", nil))
	require.NoError(t, idx.IndexBug(ctx, "bug-3", "index out of range", nil))

	matches, err := idx.Query(ctx, "nil pointer panic", 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "bug-1", matches[0].BugID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	assert.Greater(t, matches[0].Score, float32(0.9))
}

func TestChromemQueryMetadataFilter(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, idx.IndexBug(ctx, "bug-1", "nil pointer dereference", map[string]string{"error_type": "NullPointerError"}))
	require.NoError(t, idx.IndexBug(ctx, "bug-2", "connection refused", map[string]string{"error_type": "ConnectionError"}))
	require.NoError(t, idx.IndexBug(ctx, "bug-3", "index out of range", map[string]string{"error_type": "IndexError"}))

	// Without the filter the nearest neighbor wins; with it, only bugs of
	// the requested type are candidates at all.
	matches, err := idx.Query(ctx, "nil pointer panic", 3, map[string]string{"error_type": "ConnectionError"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "bug-2", matches[0].BugID)

	matches, err = idx.Query(ctx, "nil pointer panic", 3, map[string]string{"error_type": "TimeoutError"})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromemQueryEmptyCollection(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())

	matches, err := idx.Query(context.Background(), "nil pointer panic", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromemQueryCapsKAtCount(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, idx.IndexBug(ctx, "bug-1", "nil pointer dereference", nil))

	matches, err := idx.Query(ctx, "nil pointer panic", 10, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestChromemIndexBugReplacesVector(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, idx.IndexBug(ctx, "bug-1", "nil pointer dereference", nil))
	require.NoError(t, idx.IndexBug(ctx, "bug-1", "connection refused", nil))

	matches, err := idx.Query(ctx, "connection refused", 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "bug-1", matches[0].BugID)
}

func TestChromemIndexValidatesInput(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())
	ctx := context.Background()

	require.Error(t, idx.IndexBug(ctx, "", "nil pointer dereference", nil))
	require.Error(t, idx.IndexBug(ctx, "bug-1", "", nil))

	_, err := idx.Query(ctx, "", 5, nil)
	require.Error(t, err)

	_, err = idx.Query(ctx, "nil pointer panic", 0, nil)
	require.Error(t, err)
}

func TestChromemPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx := newTestIndex(t, dir)
	require.NoError(t, idx.IndexBug(ctx, "bug-1", "connection refused", nil))
	require.NoError(t, idx.Close())

	reopened := newTestIndex(t, dir)
	matches, err := reopened.Query(ctx, "connection refused", 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "bug-1", matches[0].BugID)
}

func TestChromemPing(t *testing.T) {
	idx := newTestIndex(t, t.TempDir())
	assert.NoError(t, idx.Ping(context.Background()))
}
