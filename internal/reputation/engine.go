package reputation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentstackio/agentstack/internal/knowledge"
	"github.com/agentstackio/agentstack/internal/ranking"
	"github.com/agentstackio/agentstack/internal/store"
)

// Engine runs the reputation and decay maintenance batches.
type Engine struct {
	store       store.Store
	policy      Policy
	decay       ranking.DecayPolicy
	logger      *zap.Logger
	concurrency int
}

// NewEngine creates a maintenance engine. policy defaults to DefaultPolicy,
// decay to the exponential half-life policy.
func NewEngine(st store.Store, policy Policy, decay ranking.DecayPolicy, logger *zap.Logger) *Engine {
	if policy == nil {
		policy = DefaultPolicy{}
	}
	if decay == nil {
		decay = ranking.NewExponentialDecay()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:       st,
		policy:      policy,
		decay:       decay,
		logger:      logger,
		concurrency: 8,
	}
}

// statsFor gathers the policy inputs for one agent.
func (e *Engine) statsFor(ctx context.Context, agentID string) (Stats, error) {
	solutions, err := e.store.SolutionsByContributor(ctx, agentID)
	if err != nil {
		return Stats{}, fmt.Errorf("loading solutions: %w", err)
	}

	verifications, err := e.store.CountVerificationsByAgent(ctx, agentID)
	if err != nil {
		return Stats{}, fmt.Errorf("counting verifications: %w", err)
	}

	breadth, err := e.store.CountDistinctErrorTypes(ctx, agentID)
	if err != nil {
		return Stats{}, fmt.Errorf("counting error types: %w", err)
	}

	var accuracy float64
	rated := 0
	for _, sol := range solutions {
		if sol.TotalAttempts > 0 {
			accuracy += sol.SuccessRate
			rated++
		}
	}
	if rated > 0 {
		accuracy /= float64(rated)
	}

	return Stats{
		ContributionAccuracy: accuracy,
		ContributionVolume:   len(solutions),
		VerificationVolume:   verifications,
		DomainBreadth:        breadth,
	}, nil
}

// RecomputeAgent recomputes and persists one agent's reputation score.
func (e *Engine) RecomputeAgent(ctx context.Context, agentID string) (float64, error) {
	stats, err := e.statsFor(ctx, agentID)
	if err != nil {
		return 0, err
	}

	score := e.policy.Score(stats)
	if err := e.store.UpdateAgentReputation(ctx, agentID, score); err != nil {
		return 0, fmt.Errorf("persisting reputation: %w", err)
	}
	return score, nil
}

// RecomputeAll recomputes reputation for every agent. Idempotent; returns
// the number of agents whose score changed.
func (e *Engine) RecomputeAll(ctx context.Context) (int, error) {
	agents, err := e.store.Agents(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing agents: %w", err)
	}

	var updated int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	results := make([]bool, len(agents))
	for i, agent := range agents {
		g.Go(func() error {
			score, err := e.RecomputeAgent(ctx, agent.ID)
			if err != nil {
				return fmt.Errorf("agent %s: %w", agent.ID, err)
			}
			results[i] = score != agent.ReputationScore
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	for _, changed := range results {
		if changed {
			updated++
		}
	}

	e.logger.Info("reputation recompute finished",
		zap.Int("agents", len(agents)),
		zap.Int64("updated", updated),
	)
	return int(updated), nil
}

// ApplyDecay recomputes the decay confidence of every rated solution.
// Only the derived confidence changes; recorded counts are untouched.
func (e *Engine) ApplyDecay(ctx context.Context) (int, error) {
	solutions, err := e.store.Solutions(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing solutions: %w", err)
	}

	now := time.Now().UTC()
	decayed := 0
	for _, sol := range solutions {
		if sol.TotalAttempts == 0 {
			continue
		}
		weight := e.decay.Weight(sol.LastVerified, now)
		if weight == sol.Confidence {
			continue
		}
		if err := e.store.UpdateSolutionConfidence(ctx, sol.ID, weight); err != nil {
			return decayed, fmt.Errorf("solution %s: %w", sol.ID, err)
		}
		decayed++
	}

	e.logger.Info("confidence decay applied",
		zap.Int("solutions", len(solutions)),
		zap.Int("decayed", decayed),
	)
	return decayed, nil
}

// DomainBadges returns per-error-type expert badges for an agent: error
// types where the agent has at least 3 well-attempted solutions averaging
// over 0.8 success.
func (e *Engine) DomainBadges(ctx context.Context, agentID string) ([]string, error) {
	solutions, err := e.store.SolutionsByContributor(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading solutions: %w", err)
	}

	rated := make([]*knowledge.Solution, 0, len(solutions))
	bugIDs := make([]string, 0, len(solutions))
	seen := map[string]bool{}
	for _, sol := range solutions {
		if sol.TotalAttempts < expertMinAttempts {
			continue
		}
		rated = append(rated, sol)
		if !seen[sol.BugID] {
			seen[sol.BugID] = true
			bugIDs = append(bugIDs, sol.BugID)
		}
	}
	if len(rated) == 0 {
		return nil, nil
	}

	bugs, err := e.store.BugsByIDs(ctx, bugIDs)
	if err != nil {
		return nil, fmt.Errorf("loading bugs: %w", err)
	}
	typeByBug := make(map[string]string, len(bugs))
	for _, bug := range bugs {
		typeByBug[bug.ID] = bug.ErrorType
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	order := []string{}
	for _, sol := range rated {
		errType := typeByBug[sol.BugID]
		if errType == "" {
			continue
		}
		if _, ok := counts[errType]; !ok {
			order = append(order, errType)
		}
		sums[errType] += sol.SuccessRate
		counts[errType]++
	}

	var badges []string
	for _, errType := range order {
		n := counts[errType]
		if n >= expertMinSolutions && sums[errType]/float64(n) > expertMinSuccessRate {
			badges = append(badges, errType+" Expert")
		}
	}
	return badges, nil
}
