// Package ranking orders solutions and failed approaches for presentation.
//
// Ordering never mutates stored counters. A DecayPolicy derives a weight
// from verification recency so stale solutions sink without their recorded
// history changing.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/agentstackio/agentstack/internal/knowledge"
)

// DecayPolicy derives a presentation weight in [0, 1] from the time since a
// solution was last verified. Weight must be monotonic non-increasing in age.
type DecayPolicy interface {
	Weight(lastVerified, now time.Time) float64
}

// NoDecay weighs every solution at 1 regardless of age.
type NoDecay struct{}

// Weight always returns 1.
func (NoDecay) Weight(_, _ time.Time) float64 { return 1 }

// ExponentialDecay halves the weight every HalfLife after last verification,
// clamped at Floor so old but proven solutions never vanish entirely.
type ExponentialDecay struct {
	HalfLife time.Duration
	Floor    float64
}

// NewExponentialDecay creates the default policy: 90 day half-life, 0.1 floor.
func NewExponentialDecay() ExponentialDecay {
	return ExponentialDecay{HalfLife: 90 * 24 * time.Hour, Floor: 0.1}
}

// Weight returns 2^(-age/halfLife), clamped to [Floor, 1].
// Solutions that were never verified carry full weight.
func (d ExponentialDecay) Weight(lastVerified, now time.Time) float64 {
	if lastVerified.IsZero() || d.HalfLife <= 0 {
		return 1
	}
	age := now.Sub(lastVerified)
	if age <= 0 {
		return 1
	}
	w := math.Exp2(-age.Hours() / d.HalfLife.Hours())
	if w < d.Floor {
		return d.Floor
	}
	return w
}

// Score is the decay-weighted success rate used for ordering.
func Score(s knowledge.Solution, policy DecayPolicy, now time.Time) float64 {
	return s.SuccessRate * policy.Weight(s.LastVerified, now)
}

// Solutions sorts solutions for presentation: decay-weighted success rate
// descending, then total attempts descending, then last verified descending.
// The slice is sorted in place and each solution's Confidence is set to its
// computed weight so callers can expose it.
func Solutions(solutions []knowledge.Solution, policy DecayPolicy, now time.Time) {
	if policy == nil {
		policy = NoDecay{}
	}

	for i := range solutions {
		solutions[i].Confidence = policy.Weight(solutions[i].LastVerified, now)
	}

	sort.SliceStable(solutions, func(i, j int) bool {
		si := solutions[i].SuccessRate * solutions[i].Confidence
		sj := solutions[j].SuccessRate * solutions[j].Confidence
		if si != sj {
			return si > sj
		}
		if solutions[i].TotalAttempts != solutions[j].TotalAttempts {
			return solutions[i].TotalAttempts > solutions[j].TotalAttempts
		}
		return solutions[i].LastVerified.After(solutions[j].LastVerified)
	})
}

// FailedApproaches sorts failed approaches by failure rate descending so the
// most reliably broken dead ends surface first.
func FailedApproaches(approaches []knowledge.FailedApproach) {
	sort.SliceStable(approaches, func(i, j int) bool {
		return approaches[i].FailureRate > approaches[j].FailureRate
	})
}
