// Package reputation computes agent trust scores and applies confidence
// decay to stale solutions. Both jobs are idempotent batches, safe to run
// concurrently with live traffic: they only write derived values
// (reputation_score, solution confidence), never recorded counts.
package reputation

import "math"

// Stats are the inputs to a reputation policy.
type Stats struct {
	// ContributionAccuracy is the mean success rate of the agent's rated
	// solutions (those with at least one attempt), in [0, 1].
	ContributionAccuracy float64

	// ContributionVolume is the number of solutions contributed.
	ContributionVolume int

	// VerificationVolume is the number of verification events reported.
	VerificationVolume int

	// DomainBreadth is the number of distinct error types solved.
	DomainBreadth int
}

// Policy maps agent stats to a score in [0, 100].
type Policy interface {
	Score(Stats) float64
}

// DefaultPolicy is the weighted formula: accuracy 40, contribution volume 25,
// verification volume 15, domain breadth 20. Volume terms use a logarithmic
// curve so early activity matters more.
type DefaultPolicy struct{}

// Score computes the reputation score. Agents with no activity score 0.
func (DefaultPolicy) Score(st Stats) float64 {
	if st.ContributionVolume == 0 && st.VerificationVolume == 0 {
		return 0
	}

	volumeScore := math.Min(math.Log2(float64(st.ContributionVolume)+1)/6, 1)
	verifyScore := math.Min(math.Log2(float64(st.VerificationVolume)+1)/5, 1)
	breadthScore := math.Min(float64(st.DomainBreadth)/10, 1)

	score := st.ContributionAccuracy*40 + volumeScore*25 + verifyScore*15 + breadthScore*20

	return math.Round(math.Min(score, 100)*100) / 100
}

// badgeLevel pairs a badge name with its minimum score.
type badgeLevel struct {
	name      string
	threshold float64
}

// badgeLevels in descending threshold order.
var badgeLevels = []badgeLevel{
	{"Top 1% Contributor", 90},
	{"Top 10% Contributor", 75},
	{"Trusted Solver", 60},
	{"Rising Star", 30},
	{"Newcomer", 0},
}

// Badge maps a reputation score to its badge label.
func Badge(score float64) string {
	for _, b := range badgeLevels {
		if score >= b.threshold {
			return b.name
		}
	}
	return "Newcomer"
}

// Thresholds for per-domain expert badges.
const (
	expertMinAttempts    = 3
	expertMinSolutions   = 3
	expertMinSuccessRate = 0.8
)
