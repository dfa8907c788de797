// Package contribute accepts new bug knowledge: fingerprinting the error,
// deduplicating against known bugs by structural hash, and attaching
// solutions and failed approaches.
package contribute

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
	"github.com/agentstackio/agentstack/internal/fingerprint"
	"github.com/agentstackio/agentstack/internal/knowledge"
	"github.com/agentstackio/agentstack/internal/store"
	"github.com/agentstackio/agentstack/internal/vectorstore"
)

var tracer = otel.Tracer("agentstack.contribute")

// Request is one contribution: the error being described plus the solution
// and any known dead ends. Solution may be nil when only registering the
// bug itself (auto-contribution from a search miss).
type Request struct {
	ErrorPattern     string
	ErrorType        string
	Environment      map[string]string
	Tags             []string
	Solution         *knowledge.Solution
	FailedApproaches []*knowledge.FailedApproach
}

// Result reports what the contribution produced.
type Result struct {
	BugID      string
	SolutionID string
	IsNewBug   bool
}

// Service handles contributions.
type Service struct {
	store     store.Store
	index     vectorstore.Index
	publisher events.Publisher
	logger    *zap.Logger

	contributions metric.Int64Counter
}

// NewService creates a contribution service. index and publisher may be nil.
func NewService(st store.Store, index vectorstore.Index, publisher events.Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	counter, err := otel.Meter("agentstack.contribute").Int64Counter(
		"agentstack.contributions_total",
		metric.WithDescription("Total contributions accepted, labeled by whether the bug was new"),
	)
	if err != nil {
		logger.Warn("failed to create contributions counter", zap.Error(err))
	}

	return &Service{
		store:         st,
		index:         index,
		publisher:     publisher,
		logger:        logger,
		contributions: counter,
	}
}

func (s *Service) validate(req Request) error {
	if req.ErrorPattern == "" {
		return fmt.Errorf("%w: error_pattern is required", knowledge.ErrValidation)
	}
	if req.Solution != nil {
		if req.Solution.ApproachName == "" {
			return fmt.Errorf("%w: solution approach_name is required", knowledge.ErrValidation)
		}
		if err := knowledge.ValidateSteps(req.Solution.Steps); err != nil {
			return err
		}
	}
	for i, fa := range req.FailedApproaches {
		if fa == nil || fa.ApproachName == "" {
			return fmt.Errorf("%w: failed_approaches[%d] approach_name is required", knowledge.ErrValidation, i)
		}
		if fa.FailureRate < 0 || fa.FailureRate > 1 {
			return fmt.Errorf("%w: failed_approaches[%d] failure_rate must be in [0,1]", knowledge.ErrValidation, i)
		}
	}
	return nil
}

// Contribute records the bug (deduplicated by structural hash) and attaches
// the solution and failed approaches. The relational write is authoritative;
// vector indexing afterwards is best-effort since the index is rebuildable.
func (s *Service) Contribute(ctx context.Context, agentID string, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Contribute")
	defer span.End()

	if err := s.validate(req); err != nil {
		return nil, err
	}

	normalized, hash := fingerprint.Fingerprint(req.ErrorPattern)

	errorType := req.ErrorType
	if errorType == "" {
		errorType = fingerprint.DetectErrorType(req.ErrorPattern)
	}

	// The bug keeps the raw error text for display; the normalized form
	// feeds only the structural hash and the vector index.
	bug := &knowledge.Bug{
		ID:             uuid.NewString(),
		StructuralHash: hash,
		ErrorPattern:   req.ErrorPattern,
		ErrorType:      errorType,
		Environment:    req.Environment,
		Tags:           req.Tags,
		CreatedAt:      time.Now().UTC(),
	}

	canonical, created, err := s.store.FindOrCreateBug(ctx, bug)
	if err != nil {
		return nil, fmt.Errorf("finding or creating bug: %w", err)
	}

	span.SetAttributes(
		attribute.String("bug_id", canonical.ID),
		attribute.Bool("is_new_bug", created),
	)

	result := &Result{BugID: canonical.ID, IsNewBug: created}

	var sol *knowledge.Solution
	if req.Solution != nil {
		cp := *req.Solution
		cp.ID = uuid.NewString()
		cp.BugID = canonical.ID
		cp.ContributedBy = agentID
		cp.SuccessCount = 0
		cp.FailureCount = 0
		cp.RecomputeRate()
		if cp.Source == "" {
			cp.Source = "agent_contribution"
		}
		cp.CreatedAt = time.Now().UTC()
		sol = &cp
	}

	var approaches []*knowledge.FailedApproach
	for _, fa := range req.FailedApproaches {
		a := *fa
		a.ID = uuid.NewString()
		a.BugID = canonical.ID
		approaches = append(approaches, &a)
	}

	if sol != nil || len(approaches) > 0 {
		if err := s.store.AttachContribution(ctx, canonical.ID, sol, approaches); err != nil {
			return nil, fmt.Errorf("attaching contribution: %w", err)
		}
	}
	if sol != nil {
		result.SolutionID = sol.ID
	}

	// Post-commit: the index is derived state, so a failure here is logged
	// and the contribution still succeeds.
	if s.index != nil && created {
		meta := map[string]string{"error_type": canonical.ErrorType}
		if err := s.index.IndexBug(ctx, canonical.ID, normalized, meta); err != nil {
			s.logger.Warn("indexing bug after contribution",
				zap.String("bug_id", canonical.ID),
				zap.Error(err),
			)
		}
	}

	if s.contributions != nil {
		s.contributions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("is_new_bug", created)))
	}

	s.publisher.PublishContribution(ctx, events.ContributionEvent{
		BugID:      result.BugID,
		SolutionID: result.SolutionID,
		AgentID:    agentID,
		ErrorType:  canonical.ErrorType,
		IsNewBug:   created,
		Timestamp:  time.Now().UTC(),
	})

	s.logger.Info("contribution recorded",
		zap.String("bug_id", result.BugID),
		zap.String("solution_id", result.SolutionID),
		zap.String("agent_id", agentID),
		zap.Bool("is_new_bug", created),
	)

	return result, nil
}
