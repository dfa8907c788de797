package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstackio/agentstack/internal/knowledge"
)

func newTestAgent(t *testing.T, s Store, keyHash string) *knowledge.Agent {
	t.Helper()
	agent := &knowledge.Agent{
		APIKeyHash:  keyHash,
		Provider:    "anthropic",
		Model:       "claude-sonnet",
		DisplayName: "test agent",
	}
	require.NoError(t, s.RegisterAgent(context.Background(), agent))
	return agent
}

func newTestBug(t *testing.T, s Store, hash string) *knowledge.Bug {
	t.Helper()
	bug, created, err := s.FindOrCreateBug(context.Background(), &knowledge.Bug{
		StructuralHash: hash,
		ErrorPattern:   "TypeError: cannot read property <VAR> of undefined",
		ErrorType:      "TypeError",
		Environment:    map[string]string{"language": "javascript"},
		Tags:           []string{"frontend"},
	})
	require.NoError(t, err)
	require.True(t, created)
	return bug
}

func TestRegisterAgentAndLookup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	agent := newTestAgent(t, s, "hash-1")
	require.NotEmpty(t, agent.ID)

	got, err := s.AgentByID(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got.Provider)

	byKey, err := s.AgentByKeyHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, agent.ID, byKey.ID)

	_, err = s.AgentByKeyHash(ctx, "missing")
	assert.ErrorIs(t, err, knowledge.ErrNotFound)

	// Duplicate key hash rejected.
	err = s.RegisterAgent(ctx, &knowledge.Agent{APIKeyHash: "hash-1"})
	assert.ErrorIs(t, err, knowledge.ErrConflict)
}

func TestFindOrCreateBugDeduplicates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := newTestBug(t, s, "abc123")

	second, created, err := s.FindOrCreateBug(ctx, &knowledge.Bug{
		StructuralHash: "abc123",
		ErrorPattern:   "TypeError: cannot read property <VAR> of undefined",
		ErrorType:      "TypeError",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestFindOrCreateBugConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 50
	ids := make([]string, n)
	createdCount := make([]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bug, created, err := s.FindOrCreateBug(ctx, &knowledge.Bug{
				StructuralHash: "same-hash",
				ErrorPattern:   "x",
				ErrorType:      "TypeError",
			})
			assert.NoError(t, err)
			ids[i] = bug.ID
			createdCount[i] = created
		}(i)
	}
	wg.Wait()

	creators := 0
	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i], "all callers must converge on one bug")
	}
	for _, c := range createdCount {
		if c {
			creators++
		}
	}
	assert.Equal(t, 1, creators, "exactly one caller observes creation")
}

func TestAttachSolutionBumpsCounts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	agent := newTestAgent(t, s, "k1")
	bug := newTestBug(t, s, "h1")

	sol := &knowledge.Solution{
		BugID:         bug.ID,
		ContributedBy: agent.ID,
		ApproachName:  "pin transitive dependency",
		Steps:         []knowledge.Step{{Action: knowledge.ActionExec, Command: "npm install foo@1.2.3"}},
		Source:        "agent",
	}
	require.NoError(t, s.AttachSolution(ctx, sol))
	require.NotEmpty(t, sol.ID)

	got, err := s.BugByID(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SolutionCount)
	require.Len(t, got.Solutions, 1)
	assert.Equal(t, "pin transitive dependency", got.Solutions[0].ApproachName)

	updatedAgent, err := s.AgentByID(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updatedAgent.TotalContributions)

	// Unknown bug rejected.
	err = s.AttachSolution(ctx, &knowledge.Solution{BugID: "nope", ContributedBy: agent.ID})
	assert.ErrorIs(t, err, knowledge.ErrNotFound)
}

func TestAttachFailedApproaches(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	bug := newTestBug(t, s, "h2")
	err := s.AttachFailedApproaches(ctx, bug.ID, []*knowledge.FailedApproach{
		{ApproachName: "clear npm cache", FailureRate: 0.4},
		{ApproachName: "reinstall node", FailureRate: 0.9},
	})
	require.NoError(t, err)

	got, err := s.BugByID(ctx, bug.ID)
	require.NoError(t, err)
	require.Len(t, got.FailedApproaches, 2)
	// Ordered by failure rate descending.
	assert.Equal(t, "reinstall node", got.FailedApproaches[0].ApproachName)
}

func TestAttachContribution(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	agent := newTestAgent(t, s, "k-contrib")
	bug := newTestBug(t, s, "h-contrib")

	sol := &knowledge.Solution{ContributedBy: agent.ID, ApproachName: "pin dependency"}
	err := s.AttachContribution(ctx, bug.ID, sol, []*knowledge.FailedApproach{
		{ApproachName: "bump everything", FailureRate: 0.7},
	})
	require.NoError(t, err)

	got, err := s.BugByID(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SolutionCount)
	require.Len(t, got.Solutions, 1)
	assert.Equal(t, bug.ID, got.Solutions[0].BugID)
	require.Len(t, got.FailedApproaches, 1)

	gotAgent, err := s.AgentByID(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotAgent.TotalContributions)
}

func TestAttachContributionUnknownBugWritesNothing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sol := &knowledge.Solution{ApproachName: "fix"}
	err := s.AttachContribution(ctx, "no-such-bug", sol, []*knowledge.FailedApproach{
		{ApproachName: "dead end", FailureRate: 0.5},
	})
	require.ErrorIs(t, err, knowledge.ErrNotFound)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSolutions)
}

func TestRecordVerificationUpdatesCounters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	agent := newTestAgent(t, s, "k1")
	bug := newTestBug(t, s, "h3")
	sol := &knowledge.Solution{BugID: bug.ID, ContributedBy: agent.ID, ApproachName: "fix"}
	require.NoError(t, s.AttachSolution(ctx, sol))

	updated, err := s.RecordVerification(ctx, &knowledge.Verification{
		SolutionID:       sol.ID,
		AgentID:          agent.ID,
		Success:          true,
		ResolutionTimeMs: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.SuccessCount)
	assert.Equal(t, 1, updated.TotalAttempts)
	assert.InDelta(t, 1.0, updated.SuccessRate, 1e-9)
	assert.Equal(t, 1000, updated.AvgResolutionMs)
	assert.False(t, updated.LastVerified.IsZero())

	// EMA: 0.8*1000 + 0.2*2000 = 1200
	updated, err = s.RecordVerification(ctx, &knowledge.Verification{
		SolutionID:       sol.ID,
		AgentID:          agent.ID,
		Success:          false,
		ResolutionTimeMs: 2000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.FailureCount)
	assert.InDelta(t, 0.5, updated.SuccessRate, 1e-9)
	assert.Equal(t, 1200, updated.AvgResolutionMs)

	count, err := s.CountVerificationsByAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	updatedAgent, err := s.AgentByID(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updatedAgent.TotalVerifications)

	_, err = s.RecordVerification(ctx, &knowledge.Verification{SolutionID: "missing", AgentID: agent.ID})
	assert.ErrorIs(t, err, knowledge.ErrNotFound)
}

func TestRecordVerificationConcurrentNoLostUpdates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	agent := newTestAgent(t, s, "k1")
	bug := newTestBug(t, s, "h4")
	sol := &knowledge.Solution{BugID: bug.ID, ContributedBy: agent.ID, ApproachName: "fix"}
	require.NoError(t, s.AttachSolution(ctx, sol))

	const successes, failures = 60, 40
	var wg sync.WaitGroup
	for i := 0; i < successes+failures; i++ {
		wg.Add(1)
		go func(success bool) {
			defer wg.Done()
			_, err := s.RecordVerification(ctx, &knowledge.Verification{
				SolutionID: sol.ID,
				AgentID:    agent.ID,
				Success:    success,
			})
			assert.NoError(t, err)
		}(i < successes)
	}
	wg.Wait()

	got, err := s.BugByID(ctx, bug.ID)
	require.NoError(t, err)
	require.Len(t, got.Solutions, 1)
	final := got.Solutions[0]
	assert.Equal(t, successes, final.SuccessCount)
	assert.Equal(t, failures, final.FailureCount)
	assert.Equal(t, successes+failures, final.TotalAttempts)
	assert.InDelta(t, 0.6, final.SuccessRate, 1e-9)
}

func TestUpdateSolutionConfidenceLeavesCountsAlone(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	agent := newTestAgent(t, s, "k1")
	bug := newTestBug(t, s, "h5")
	sol := &knowledge.Solution{BugID: bug.ID, ContributedBy: agent.ID, ApproachName: "fix"}
	require.NoError(t, s.AttachSolution(ctx, sol))
	_, err := s.RecordVerification(ctx, &knowledge.Verification{SolutionID: sol.ID, AgentID: agent.ID, Success: true})
	require.NoError(t, err)

	require.NoError(t, s.UpdateSolutionConfidence(ctx, sol.ID, 0.42))

	got, err := s.BugByID(ctx, bug.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.42, got.Solutions[0].Confidence, 1e-9)
	assert.Equal(t, 1, got.Solutions[0].SuccessCount)
}

func TestCountDistinctErrorTypes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	agent := newTestAgent(t, s, "k1")

	for i, errType := range []string{"TypeError", "TypeError", "ImportError"} {
		bug, _, err := s.FindOrCreateBug(ctx, &knowledge.Bug{
			StructuralHash: string(rune('a' + i)),
			ErrorPattern:   "p",
			ErrorType:      errType,
		})
		require.NoError(t, err)
		require.NoError(t, s.AttachSolution(ctx, &knowledge.Solution{
			BugID: bug.ID, ContributedBy: agent.ID, ApproachName: "fix",
		}))
	}

	count, err := s.CountDistinctErrorTypes(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStats(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	agent := newTestAgent(t, s, "k1")
	bug := newTestBug(t, s, "h6")
	sol := &knowledge.Solution{BugID: bug.ID, ContributedBy: agent.ID, ApproachName: "fix"}
	require.NoError(t, s.AttachSolution(ctx, sol))
	for i := 0; i < 4; i++ {
		_, err := s.RecordVerification(ctx, &knowledge.Verification{
			SolutionID: sol.ID, AgentID: agent.ID, Success: i < 3,
		})
		require.NoError(t, err)
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalBugs)
	assert.Equal(t, 1, st.TotalSolutions)
	assert.Equal(t, 1, st.TotalAgents)
	assert.Equal(t, 4, st.TotalVerifications)
	assert.InDelta(t, 0.75, st.OverallSuccessRate, 1e-9)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	bug := newTestBug(t, s, "h7")
	bug.ErrorType = "mutated"

	got, err := s.BugByID(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, "TypeError", got.ErrorType)
}

func TestVerificationTimestampsMonotonic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	agent := newTestAgent(t, s, "k1")
	bug := newTestBug(t, s, "h8")
	sol := &knowledge.Solution{BugID: bug.ID, ContributedBy: agent.ID, ApproachName: "fix"}
	require.NoError(t, s.AttachSolution(ctx, sol))

	before := time.Now().UTC().Add(-time.Second)
	updated, err := s.RecordVerification(ctx, &knowledge.Verification{
		SolutionID: sol.ID, AgentID: agent.ID, Success: true,
	})
	require.NoError(t, err)
	assert.True(t, updated.LastVerified.After(before))
}
