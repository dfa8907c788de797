package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicyScore(t *testing.T) {
	policy := DefaultPolicy{}

	t.Run("no activity scores zero", func(t *testing.T) {
		assert.Zero(t, policy.Score(Stats{}))
	})

	t.Run("perfect prolific agent caps at 100", func(t *testing.T) {
		score := policy.Score(Stats{
			ContributionAccuracy: 1.0,
			ContributionVolume:   1000,
			VerificationVolume:   1000,
			DomainBreadth:        50,
		})
		assert.Equal(t, 100.0, score)
	})

	t.Run("accuracy dominates", func(t *testing.T) {
		accurate := policy.Score(Stats{ContributionAccuracy: 0.9, ContributionVolume: 5})
		sloppy := policy.Score(Stats{ContributionAccuracy: 0.2, ContributionVolume: 5})
		assert.Greater(t, accurate, sloppy)
	})

	t.Run("monotonic in every input", func(t *testing.T) {
		base := Stats{
			ContributionAccuracy: 0.5,
			ContributionVolume:   5,
			VerificationVolume:   5,
			DomainBreadth:        2,
		}
		baseScore := policy.Score(base)

		more := base
		more.ContributionAccuracy = 0.6
		assert.Greater(t, policy.Score(more), baseScore)

		more = base
		more.ContributionVolume = 10
		assert.Greater(t, policy.Score(more), baseScore)

		more = base
		more.VerificationVolume = 10
		assert.Greater(t, policy.Score(more), baseScore)

		more = base
		more.DomainBreadth = 5
		assert.Greater(t, policy.Score(more), baseScore)
	})

	t.Run("verification-only agent scores above zero", func(t *testing.T) {
		score := policy.Score(Stats{VerificationVolume: 10})
		assert.Greater(t, score, 0.0)
	})
}

func TestBadge(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{95, "Top 1% Contributor"},
		{90, "Top 1% Contributor"},
		{80, "Top 10% Contributor"},
		{65, "Trusted Solver"},
		{45, "Rising Star"},
		{10, "Newcomer"},
		{0, "Newcomer"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Badge(tt.score), "score %.0f", tt.score)
	}
}
