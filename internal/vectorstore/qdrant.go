package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("agentstack.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334), NOT the HTTP REST port (6333).
	Port int

	// APIKey authenticates against a secured Qdrant deployment. Optional.
	APIKey string

	// CollectionName is the collection holding bug vectors.
	CollectionName string

	// VectorSize is the dimensionality of embeddings.
	// MUST match the embedder's output dimension.
	VectorSize uint64

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the maximum retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries.
	// Doubles on each retry. Default: 1 second.
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB.
	MaxMessageSize int

	// CircuitBreakerThreshold is the failure count that opens the circuit.
	// Default: 5
	CircuitBreakerThreshold int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts and temporary unavailability.
// Returns false for invalid arguments, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantIndex is an Index backed by Qdrant's native gRPC client.
//
// gRPC transport avoids the HTTP layer's payload limits and performs
// better for batch upserts. Transient failures are retried with
// exponential backoff behind a circuit breaker.
type QdrantIndex struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger

	ensureOnce sync.Once
	ensureErr  error

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

var _ Index = (*QdrantIndex)(nil)

// NewQdrantIndex creates a QdrantIndex and verifies connectivity.
func NewQdrantIndex(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantIndex, error) {
	config.ApplyDefaults()

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

	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext, enable TLS for production")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	idx := &QdrantIndex{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := idx.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	logger.Info("qdrant index initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.CollectionName),
		zap.Uint64("vector_size", config.VectorSize),
	)

	return idx, nil
}

// Ping checks connectivity via the gRPC health check.
func (idx *QdrantIndex) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Ping")
	defer span.End()

	_, err := idx.client.HealthCheck(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// Close closes the gRPC connection.
func (idx *QdrantIndex) Close() error {
	return idx.client.Close()
}

// ensureCollection creates the bug collection if it does not exist.
// Runs at most once per process.
func (idx *QdrantIndex) ensureCollection(ctx context.Context) error {
	idx.ensureOnce.Do(func() {
		exists, err := idx.client.CollectionExists(ctx, idx.config.CollectionName)
		if err != nil {
			idx.ensureErr = fmt.Errorf("checking collection: %w", err)
			return
		}
		if exists {
			return
		}

		idx.ensureErr = idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: idx.config.CollectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     idx.config.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if idx.ensureErr == nil {
			idx.logger.Info("created qdrant collection",
				zap.String("collection", idx.config.CollectionName),
			)
		}
	})
	return idx.ensureErr
}

// retryOperation retries an operation with exponential backoff.
func (idx *QdrantIndex) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := idx.config.RetryBackoff

	for attempt := 0; attempt <= idx.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			idx.resetCircuitBreaker()
			return nil
		}

		if idx.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open", operationName)
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		idx.recordFailure()

		if attempt == idx.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, idx.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (idx *QdrantIndex) recordFailure() {
	idx.circuitBreaker.mu.Lock()
	defer idx.circuitBreaker.mu.Unlock()
	idx.circuitBreaker.failures++
	idx.circuitBreaker.lastFail = time.Now()
}

func (idx *QdrantIndex) resetCircuitBreaker() {
	idx.circuitBreaker.mu.Lock()
	defer idx.circuitBreaker.mu.Unlock()
	idx.circuitBreaker.failures = 0
}

func (idx *QdrantIndex) isCircuitOpen() bool {
	idx.circuitBreaker.mu.Lock()
	defer idx.circuitBreaker.mu.Unlock()

	if idx.circuitBreaker.failures >= idx.config.CircuitBreakerThreshold {
		// Allow retry after 30 seconds
		if time.Since(idx.circuitBreaker.lastFail) > 30*time.Second {
			idx.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// IndexBug embeds the error pattern and upserts it keyed by the bug ID.
// Point IDs are the bug UUIDs, so re-indexing a bug replaces its vector.
func (idx *QdrantIndex) IndexBug(ctx context.Context, bugID, errorPattern string, metadata map[string]string) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.IndexBug")
	defer span.End()

	span.SetAttributes(
		attribute.String("bug_id", bugID),
		attribute.String("collection", idx.config.CollectionName),
	)

	if bugID == "" {
		return fmt.Errorf("bug ID cannot be empty")
	}
	if errorPattern == "" {
		return fmt.Errorf("error pattern cannot be empty")
	}

	if err := idx.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	embedding, err := idx.embedder.EmbedQuery(ctx, errorPattern)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	payload := map[string]*qdrant.Value{
		"bug_id":        {Kind: &qdrant.Value_StringValue{StringValue: bugID}},
		"error_pattern": {Kind: &qdrant.Value_StringValue{StringValue: errorPattern}},
	}
	for k, v := range metadata {
		payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(bugID),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: payload,
	}

	err = idx.retryOperation(ctx, "upsert", func() error {
		_, upsertErr := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: idx.config.CollectionName,
			Points:         []*qdrant.PointStruct{point},
		})
		return upsertErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "indexed")
	return nil
}

// Query embeds the text and returns the k nearest bugs by cosine similarity.
// A non-empty filter becomes a payload must-match condition per entry.
func (idx *QdrantIndex) Query(ctx context.Context, text string, k int, filter map[string]string) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", idx.config.CollectionName),
		attribute.Int("k", k),
	)

	if text == "" {
		return nil, fmt.Errorf("query text cannot be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	if err := idx.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	queryVector, err := idx.embedder.EmbedQuery(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	var payloadFilter *qdrant.Filter
	if len(filter) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filter))
		for key, value := range filter {
			conditions = append(conditions, qdrant.NewMatch(key, value))
		}
		payloadFilter = &qdrant.Filter{Must: conditions}
	}

	var results []*qdrant.ScoredPoint
	err = idx.retryOperation(ctx, "query", func() error {
		res, queryErr := idx.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: idx.config.CollectionName,
			Query:          qdrant.NewQuery(queryVector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			Filter:         payloadFilter,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if queryErr != nil {
			return queryErr
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	matches := make([]Match, 0, len(results))
	for _, point := range results {
		bugID := ""
		if v, ok := point.Payload["bug_id"]; ok {
			if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
				bugID = sv.StringValue
			}
		}
		if bugID == "" {
			continue
		}
		matches = append(matches, Match{BugID: bugID, Score: point.Score})
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}
