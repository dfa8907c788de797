package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstackio/agentstack/internal/knowledge"
)

func solution(name string, rate float64, attempts int, lastVerified time.Time) knowledge.Solution {
	return knowledge.Solution{
		ApproachName:  name,
		SuccessRate:   rate,
		TotalAttempts: attempts,
		LastVerified:  lastVerified,
	}
}

func TestSolutionsOrderStable(t *testing.T) {
	now := time.Now().UTC()

	sols := []knowledge.Solution{
		solution("half", 0.5, 100, now),
		solution("strong-few", 0.9, 10, now),
		solution("strong-many", 0.9, 50, now),
	}

	Solutions(sols, NoDecay{}, now)

	require.Len(t, sols, 3)
	assert.Equal(t, "strong-many", sols[0].ApproachName)
	assert.Equal(t, "strong-few", sols[1].ApproachName)
	assert.Equal(t, "half", sols[2].ApproachName)
}

func TestSolutionsTieBreakOnLastVerified(t *testing.T) {
	now := time.Now().UTC()
	older := now.Add(-time.Hour)

	sols := []knowledge.Solution{
		solution("older", 0.8, 20, older),
		solution("newer", 0.8, 20, now),
	}

	Solutions(sols, NoDecay{}, now)
	assert.Equal(t, "newer", sols[0].ApproachName)
}

func TestSolutionsDecayReordersStale(t *testing.T) {
	now := time.Now().UTC()
	policy := ExponentialDecay{HalfLife: 30 * 24 * time.Hour, Floor: 0.01}

	sols := []knowledge.Solution{
		// 0.9 * 2^(-120/30) = 0.05625, decayed below the fresh 0.6
		solution("stale-strong", 0.9, 200, now.Add(-120*24*time.Hour)),
		solution("fresh-ok", 0.6, 10, now.Add(-24*time.Hour)),
	}

	Solutions(sols, policy, now)
	assert.Equal(t, "fresh-ok", sols[0].ApproachName)
	assert.Equal(t, "stale-strong", sols[1].ApproachName)
}

func TestSolutionsSetConfidence(t *testing.T) {
	now := time.Now().UTC()
	sols := []knowledge.Solution{
		solution("fresh", 0.9, 10, now),
	}

	Solutions(sols, NewExponentialDecay(), now)
	assert.InDelta(t, 1.0, sols[0].Confidence, 1e-9)
}

func TestExponentialDecayWeight(t *testing.T) {
	now := time.Now().UTC()
	policy := ExponentialDecay{HalfLife: 90 * 24 * time.Hour, Floor: 0.1}

	t.Run("never verified carries full weight", func(t *testing.T) {
		assert.Equal(t, 1.0, policy.Weight(time.Time{}, now))
	})

	t.Run("fresh carries full weight", func(t *testing.T) {
		assert.Equal(t, 1.0, policy.Weight(now, now))
	})

	t.Run("one half-life halves", func(t *testing.T) {
		w := policy.Weight(now.Add(-90*24*time.Hour), now)
		assert.InDelta(t, 0.5, w, 1e-9)
	})

	t.Run("clamped at floor", func(t *testing.T) {
		w := policy.Weight(now.Add(-10*365*24*time.Hour), now)
		assert.Equal(t, 0.1, w)
	})

	t.Run("monotonic non-increasing", func(t *testing.T) {
		prev := 1.0
		for days := 1; days <= 720; days += 30 {
			w := policy.Weight(now.Add(-time.Duration(days)*24*time.Hour), now)
			assert.LessOrEqual(t, w, prev)
			prev = w
		}
	})
}

func TestFailedApproachesOrder(t *testing.T) {
	approaches := []knowledge.FailedApproach{
		{ApproachName: "sometimes", FailureRate: 0.5},
		{ApproachName: "always", FailureRate: 1.0},
		{ApproachName: "often", FailureRate: 0.8},
	}

	FailedApproaches(approaches)

	assert.Equal(t, "always", approaches[0].ApproachName)
	assert.Equal(t, "often", approaches[1].ApproachName)
	assert.Equal(t, "sometimes", approaches[2].ApproachName)
}
