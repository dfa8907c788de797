// Package verify records verification outcomes: one agent reporting whether
// one solution actually fixed the bug. Counter updates are atomic in the
// store so concurrent verifications never lose updates.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/agentstackio/agentstack/internal/events"
	"github.com/agentstackio/agentstack/internal/knowledge"
	"github.com/agentstackio/agentstack/internal/store"
)

var tracer = otel.Tracer("agentstack.verify")

// Thresholds for flagging solutions that keep failing.
const (
	minAttemptsForFlag  = 5
	lowSuccessThreshold = 0.3
)

// Request is one verification report.
type Request struct {
	SolutionID       string
	Success          bool
	ResolutionTimeMs int
	Context          map[string]string
}

// Result is a recorded verification: the event's ID and the solution
// with its updated counters.
type Result struct {
	VerificationID string
	Solution       *knowledge.Solution
}

// Service records verifications.
type Service struct {
	store     store.Store
	publisher events.Publisher
	logger    *zap.Logger

	verifications metric.Int64Counter
}

// NewService creates a verification service. publisher may be nil.
func NewService(st store.Store, publisher events.Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	counter, err := otel.Meter("agentstack.verify").Int64Counter(
		"agentstack.verifications_total",
		metric.WithDescription("Total verifications recorded, labeled by outcome"),
	)
	if err != nil {
		logger.Warn("failed to create verifications counter", zap.Error(err))
	}

	return &Service{
		store:         st,
		publisher:     publisher,
		logger:        logger,
		verifications: counter,
	}
}

// Verify appends the verification event and applies its counter updates
// atomically, returning the event ID and the updated solution.
func (s *Service) Verify(ctx context.Context, agentID string, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Verify")
	defer span.End()

	if req.SolutionID == "" {
		return nil, fmt.Errorf("%w: solution_id is required", knowledge.ErrValidation)
	}
	if req.ResolutionTimeMs < 0 {
		return nil, fmt.Errorf("%w: resolution_time_ms must be non-negative", knowledge.ErrValidation)
	}

	v := &knowledge.Verification{
		ID:               uuid.NewString(),
		SolutionID:       req.SolutionID,
		AgentID:          agentID,
		Success:          req.Success,
		ResolutionTimeMs: req.ResolutionTimeMs,
		Context:          req.Context,
		CreatedAt:        time.Now().UTC(),
	}

	sol, err := s.store.RecordVerification(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("recording verification: %w", err)
	}

	span.SetAttributes(
		attribute.String("solution_id", sol.ID),
		attribute.Bool("success", req.Success),
	)
	if s.verifications != nil {
		s.verifications.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", req.Success)))
	}

	if sol.TotalAttempts >= minAttemptsForFlag && sol.SuccessRate < lowSuccessThreshold {
		s.logger.Warn("low-performing solution flagged",
			zap.String("solution_id", sol.ID),
			zap.Float64("success_rate", sol.SuccessRate),
			zap.Int("total_attempts", sol.TotalAttempts),
		)
	}

	s.publisher.PublishVerification(ctx, events.VerificationEvent{
		SolutionID: sol.ID,
		BugID:      sol.BugID,
		AgentID:    agentID,
		Success:    req.Success,
		Timestamp:  v.CreatedAt,
	})

	s.logger.Info("verification recorded",
		zap.String("solution_id", sol.ID),
		zap.String("agent_id", agentID),
		zap.Bool("success", req.Success),
		zap.Float64("success_rate", sol.SuccessRate),
	)

	return &Result{VerificationID: v.ID, Solution: sol}, nil
}
