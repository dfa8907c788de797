package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstackio/agentstack/internal/knowledge"
	"github.com/agentstackio/agentstack/internal/store"
)

func seedSolution(t *testing.T, st store.Store, successes, failures int) *knowledge.Solution {
	t.Helper()
	ctx := context.Background()

	bug, _, err := st.FindOrCreateBug(ctx, &knowledge.Bug{
		StructuralHash: "hash-" + t.Name(),
		ErrorPattern:   "boom",
		ErrorType:      "GenericError",
	})
	require.NoError(t, err)

	sol := &knowledge.Solution{
		BugID:        bug.ID,
		ApproachName: "the fix",
		Steps: []knowledge.Step{
			{Action: knowledge.ActionExec, Command: "make fix"},
		},
		SuccessCount: successes,
		FailureCount: failures,
	}
	sol.RecomputeRate()
	require.NoError(t, st.AttachSolution(ctx, sol))
	return sol
}

func TestVerifySuccessUpdatesCounters(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	sol := seedSolution(t, st, 8, 2)
	svc := NewService(st, nil, nil)

	result, err := svc.Verify(ctx, "agent-1", Request{
		SolutionID:       sol.ID,
		Success:          false,
		ResolutionTimeMs: 1500,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.VerificationID)

	updated := result.Solution
	assert.Equal(t, 8, updated.SuccessCount)
	assert.Equal(t, 3, updated.FailureCount)
	assert.Equal(t, 11, updated.TotalAttempts)
	assert.InDelta(t, 8.0/11.0, updated.SuccessRate, 1e-9)
	assert.WithinDuration(t, time.Now().UTC(), updated.LastVerified, time.Minute)
}

func TestVerifyReturnsDistinctVerificationIDs(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	sol := seedSolution(t, st, 0, 0)
	svc := NewService(st, nil, nil)

	first, err := svc.Verify(ctx, "agent-1", Request{SolutionID: sol.ID, Success: true})
	require.NoError(t, err)
	second, err := svc.Verify(ctx, "agent-2", Request{SolutionID: sol.ID, Success: false})
	require.NoError(t, err)

	require.NotEmpty(t, first.VerificationID)
	require.NotEmpty(t, second.VerificationID)
	assert.NotEqual(t, first.VerificationID, second.VerificationID)
}

func TestVerifyUnknownSolution(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), nil, nil)

	_, err := svc.Verify(context.Background(), "agent-1", Request{SolutionID: "missing"})
	require.ErrorIs(t, err, knowledge.ErrNotFound)
}

func TestVerifyValidation(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), nil, nil)
	ctx := context.Background()

	_, err := svc.Verify(ctx, "agent-1", Request{})
	require.ErrorIs(t, err, knowledge.ErrValidation)

	_, err = svc.Verify(ctx, "agent-1", Request{SolutionID: "sol", ResolutionTimeMs: -1})
	require.ErrorIs(t, err, knowledge.ErrValidation)
}

func TestVerifyResolutionTimeEMA(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	sol := seedSolution(t, st, 0, 0)
	svc := NewService(st, nil, nil)

	first, err := svc.Verify(ctx, "agent-1", Request{
		SolutionID: sol.ID, Success: true, ResolutionTimeMs: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1000, first.Solution.AvgResolutionMs)

	second, err := svc.Verify(ctx, "agent-1", Request{
		SolutionID: sol.ID, Success: true, ResolutionTimeMs: 2000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1200, second.Solution.AvgResolutionMs) // 0.8*1000 + 0.2*2000
}
