// Package store provides persistence for the knowledge base: agents, bugs,
// solutions, failed approaches, and the append-only verification log.
//
// Two implementations exist: PostgresStore for production and MemoryStore for
// tests and local experiments. All counter updates happen inside a single
// transaction (or under a single lock) so concurrent verifications never lose
// updates.
package store

import (
	"context"

	"github.com/agentstackio/agentstack/internal/knowledge"
)

// Store is the persistence interface for the knowledge base.
type Store interface {
	// RegisterAgent inserts a new agent identity.
	RegisterAgent(ctx context.Context, agent *knowledge.Agent) error

	// AgentByID returns an agent by ID, or knowledge.ErrNotFound.
	AgentByID(ctx context.Context, id string) (*knowledge.Agent, error)

	// AgentByKeyHash returns the agent owning the given API key hash, or
	// knowledge.ErrNotFound.
	AgentByKeyHash(ctx context.Context, keyHash string) (*knowledge.Agent, error)

	// Agents returns all registered agents.
	Agents(ctx context.Context) ([]*knowledge.Agent, error)

	// UpdateAgentReputation persists a recomputed reputation score.
	UpdateAgentReputation(ctx context.Context, agentID string, score float64) error

	// FindOrCreateBug inserts the bug unless one with the same structural
	// hash already exists, and returns the canonical row plus a flag that is
	// true only for the caller that actually created it. Concurrent calls
	// with the same hash converge on one row.
	FindOrCreateBug(ctx context.Context, bug *knowledge.Bug) (*knowledge.Bug, bool, error)

	// BugByID returns a bug with solutions and failed approaches hydrated,
	// or knowledge.ErrNotFound.
	BugByID(ctx context.Context, id string) (*knowledge.Bug, error)

	// BugByHash returns the bug with the given structural hash, hydrated,
	// or knowledge.ErrNotFound.
	BugByHash(ctx context.Context, structuralHash string) (*knowledge.Bug, error)

	// BugsByIDs returns the hydrated bugs for the given IDs, preserving
	// input order. Unknown IDs are skipped.
	BugsByIDs(ctx context.Context, ids []string) ([]*knowledge.Bug, error)

	// AttachSolution adds a solution to an existing bug, bumping the bug's
	// solution count and the contributor's contribution count in the same
	// transaction.
	AttachSolution(ctx context.Context, sol *knowledge.Solution) error

	// AttachFailedApproaches records known dead ends for a bug.
	AttachFailedApproaches(ctx context.Context, bugID string, approaches []*knowledge.FailedApproach) error

	// AttachContribution writes a solution and its failed approaches to an
	// existing bug in one transaction, so a failure partway through leaves
	// no solution row or counter bump behind. Either sol or approaches may
	// be nil when the contribution carries only one of them.
	AttachContribution(ctx context.Context, bugID string, sol *knowledge.Solution, approaches []*knowledge.FailedApproach) error

	// SolutionsByContributor returns every solution contributed by an agent.
	SolutionsByContributor(ctx context.Context, agentID string) ([]*knowledge.Solution, error)

	// Solutions returns every solution. Used by maintenance jobs.
	Solutions(ctx context.Context) ([]*knowledge.Solution, error)

	// UpdateSolutionConfidence persists a recomputed decay confidence. It
	// never touches the recorded counters.
	UpdateSolutionConfidence(ctx context.Context, solutionID string, confidence float64) error

	// RecordVerification appends a verification event and atomically applies
	// its counter and timing updates to the target solution, returning the
	// updated solution. Returns knowledge.ErrNotFound if the solution does
	// not exist.
	RecordVerification(ctx context.Context, v *knowledge.Verification) (*knowledge.Solution, error)

	// CountVerificationsByAgent returns how many verification events an
	// agent has submitted.
	CountVerificationsByAgent(ctx context.Context, agentID string) (int, error)

	// CountDistinctErrorTypes returns how many distinct error types an agent
	// has contributed solutions for.
	CountDistinctErrorTypes(ctx context.Context, agentID string) (int, error)

	// Stats returns knowledge-base-wide aggregates.
	Stats(ctx context.Context) (*Stats, error)

	// Ping reports backend reachability.
	Ping(ctx context.Context) error

	// Close releases held resources.
	Close() error
}

// Stats holds knowledge-base-wide aggregates for the dashboard endpoint.
type Stats struct {
	TotalBugs          int     `json:"total_bugs"`
	TotalSolutions     int     `json:"total_solutions"`
	TotalAgents        int     `json:"total_agents"`
	TotalVerifications int     `json:"total_verifications"`
	OverallSuccessRate float64 `json:"overall_success_rate"`
}

// Exponential moving average weights for avg_resolution_ms. The recorded
// average keeps 80% of its value and takes 20% from each new report.
const (
	emaKeep = 0.8
	emaNew  = 0.2
)

// applyVerification folds one verification event into a solution's counters.
// Shared by both store implementations so the arithmetic cannot drift.
func applyVerification(sol *knowledge.Solution, v *knowledge.Verification) {
	if v.Success {
		sol.SuccessCount++
	} else {
		sol.FailureCount++
	}
	sol.RecomputeRate()

	if v.ResolutionTimeMs > 0 {
		if sol.AvgResolutionMs == 0 {
			sol.AvgResolutionMs = v.ResolutionTimeMs
		} else {
			sol.AvgResolutionMs = int(emaKeep*float64(sol.AvgResolutionMs) + emaNew*float64(v.ResolutionTimeMs))
		}
	}
	sol.LastVerified = v.CreatedAt
}
