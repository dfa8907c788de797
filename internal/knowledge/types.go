// Package knowledge defines the domain model for the bug-fix knowledge base:
// bugs identified by structural hash, the solutions and failed approaches
// attached to them, the agents that contribute, and the append-only
// verification log that drives every derived statistic.
package knowledge

import "time"

// Bug is a deduplicated error pattern. StructuralHash is derived from the
// normalized ErrorPattern and is never set independently; two bugs with equal
// normalized text collapse to one row.
type Bug struct {
	ID             string            `json:"id"`
	StructuralHash string            `json:"structural_hash"`
	ErrorPattern   string            `json:"error_pattern"`
	ErrorType      string            `json:"error_type"`
	Environment    map[string]string `json:"environment,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	SolutionCount  int               `json:"solution_count"`
	CreatedAt      time.Time         `json:"created_at"`

	// Loaded relations; populated by store reads that hydrate them.
	Solutions        []*Solution       `json:"solutions,omitempty"`
	FailedApproaches []*FailedApproach `json:"failed_approaches,omitempty"`
}

// Solution is one verified approach to fixing a Bug. Counters mutate only
// through verification events; SuccessRate is always recomputed from counts.
type Solution struct {
	ID                 string            `json:"id"`
	BugID              string            `json:"bug_id"`
	ContributedBy      string            `json:"contributed_by"`
	ApproachName       string            `json:"approach_name"`
	Steps              []Step            `json:"steps"`
	DiffPatch          string            `json:"diff_patch,omitempty"`
	VersionConstraints map[string]string `json:"version_constraints,omitempty"`
	Warnings           []string          `json:"warnings,omitempty"`
	SuccessCount       int               `json:"success_count"`
	FailureCount       int               `json:"failure_count"`
	TotalAttempts      int               `json:"total_attempts"`
	SuccessRate        float64           `json:"success_rate"`
	AvgResolutionMs    int               `json:"avg_resolution_ms"`
	Source             string            `json:"source"`
	CreatedAt          time.Time         `json:"created_at"`
	LastVerified       time.Time         `json:"last_verified"`

	// Confidence is the decay-adjusted presentation weight in [0,1].
	// It is derived from SuccessRate and LastVerified and never feeds back
	// into the recorded counts.
	Confidence float64 `json:"confidence"`
}

// RecomputeRate recalculates TotalAttempts and SuccessRate from the raw
// counters. SuccessRate is 0 when there are no attempts.
func (s *Solution) RecomputeRate() {
	s.TotalAttempts = s.SuccessCount + s.FailureCount
	if s.TotalAttempts == 0 {
		s.SuccessRate = 0
		return
	}
	s.SuccessRate = float64(s.SuccessCount) / float64(s.TotalAttempts)
}

// FailedApproach records a known dead end for a Bug, so agents can skip it.
type FailedApproach struct {
	ID                  string  `json:"id"`
	BugID               string  `json:"bug_id"`
	ApproachName        string  `json:"approach_name"`
	CommandOrAction     string  `json:"command_or_action,omitempty"`
	FailureRate         float64 `json:"failure_rate"`
	CommonFollowupError string  `json:"common_followup_error,omitempty"`
	Reason              string  `json:"reason,omitempty"`
}

// Agent is an identity in the knowledge base. The API key (stored only as a
// SHA-256 hash) is the sole security boundary for writes; DisplayName is
// metadata and never trusted for identity.
type Agent struct {
	ID                 string    `json:"id"`
	APIKeyHash         string    `json:"-"`
	Provider           string    `json:"provider"`
	Model              string    `json:"model"`
	DisplayName        string    `json:"display_name"`
	ReputationScore    float64   `json:"reputation_score"`
	TotalContributions int       `json:"total_contributions"`
	TotalVerifications int       `json:"total_verifications"`
	CreatedAt          time.Time `json:"created_at"`
}

// Verification is an append-only event: one agent reporting whether one
// solution worked. Never mutated after insert.
type Verification struct {
	ID               string            `json:"id"`
	SolutionID       string            `json:"solution_id"`
	AgentID          string            `json:"agent_id"`
	Success          bool              `json:"success"`
	ResolutionTimeMs int               `json:"resolution_time_ms,omitempty"`
	Context          map[string]string `json:"context,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}
