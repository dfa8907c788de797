package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstackio/agentstack/internal/config"
	"github.com/agentstackio/agentstack/internal/contribute"
	"github.com/agentstackio/agentstack/internal/fingerprint"
	"github.com/agentstackio/agentstack/internal/knowledge"
	"github.com/agentstackio/agentstack/internal/ranking"
	"github.com/agentstackio/agentstack/internal/store"
	"github.com/agentstackio/agentstack/internal/vectorstore"
)

// fakeIndex returns canned matches regardless of query text and records
// the filter it was queried with.
type fakeIndex struct {
	matches    []vectorstore.Match
	fail       bool
	lastFilter map[string]string
}

func (f *fakeIndex) IndexBug(context.Context, string, string, map[string]string) error {
	return nil
}

func (f *fakeIndex) Query(_ context.Context, _ string, _ int, filter map[string]string) ([]vectorstore.Match, error) {
	f.lastFilter = filter
	if f.fail {
		return nil, errors.New("index down")
	}
	return f.matches, nil
}

func (f *fakeIndex) Ping(context.Context) error { return nil }
func (f *fakeIndex) Close() error               { return nil }

func searchConfig() config.SearchConfig {
	return config.SearchConfig{
		ConfidenceThreshold: 0.85,
		MinSimilarity:       0.3,
		MaxResults:          10,
		AutoContribute:      true,
	}
}

func seedBug(t *testing.T, st store.Store, pattern string, solutions ...*knowledge.Solution) *knowledge.Bug {
	t.Helper()
	ctx := context.Background()

	normalized, hash := fingerprint.Fingerprint(pattern)
	bug, _, err := st.FindOrCreateBug(ctx, &knowledge.Bug{
		ID:             "",
		StructuralHash: hash,
		ErrorPattern:   normalized,
		ErrorType:      fingerprint.DetectErrorType(pattern),
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	for _, sol := range solutions {
		sol.BugID = bug.ID
		require.NoError(t, st.AttachSolution(ctx, sol))
	}
	return bug
}

func ratedSolution(name string, successes, failures int, lastVerified time.Time) *knowledge.Solution {
	sol := &knowledge.Solution{
		ApproachName: name,
		Steps: []knowledge.Step{
			{Action: knowledge.ActionDescription, Description: "apply fix"},
		},
		SuccessCount: successes,
		FailureCount: failures,
		LastVerified: lastVerified,
	}
	sol.RecomputeRate()
	return sol
}

func TestSearchExactHashMatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	bug := seedBug(t, st, "TypeError: Cannot read properties of undefined",
		ratedSolution("fix-a", 8, 2, time.Now().UTC()))

	svc := NewService(st, nil, nil, ranking.NoDecay{}, searchConfig(), nil)

	resp, err := svc.Search(ctx, Request{
		ErrorPattern: "TypeError: Cannot read properties of undefined",
	})
	require.NoError(t, err)

	require.Equal(t, 1, resp.TotalFound)
	assert.Equal(t, bug.ID, resp.Results[0].Bug.ID)
	assert.Equal(t, MatchExactHash, resp.Results[0].MatchType)
	assert.Nil(t, resp.Results[0].Similarity)
	assert.True(t, resp.IsConfidentMatch)
	assert.Nil(t, resp.TopSimilarity) // no semantic phase ran
}

func TestSearchSemanticCandidatesFollowExact(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	exact := seedBug(t, st, "KeyError: missing user in request context",
		ratedSolution("fix-exact", 5, 0, time.Now().UTC()))
	similar := seedBug(t, st, "KeyError: missing session in request context",
		ratedSolution("fix-similar", 3, 1, time.Now().UTC()))

	idx := &fakeIndex{matches: []vectorstore.Match{
		{BugID: exact.ID, Score: 1.0}, // excluded as duplicate of the exact hit
		{BugID: similar.ID, Score: 0.72},
	}}

	svc := NewService(st, idx, nil, ranking.NoDecay{}, searchConfig(), nil)

	resp, err := svc.Search(ctx, Request{ErrorPattern: "KeyError: missing user in request context"})
	require.NoError(t, err)

	require.Equal(t, 2, resp.TotalFound)
	assert.Equal(t, exact.ID, resp.Results[0].Bug.ID)
	assert.Equal(t, MatchExactHash, resp.Results[0].MatchType)
	assert.Equal(t, similar.ID, resp.Results[1].Bug.ID)
	assert.Equal(t, MatchSemantic, resp.Results[1].MatchType)
	require.NotNil(t, resp.Results[1].Similarity)
	assert.InDelta(t, 0.72, float64(*resp.Results[1].Similarity), 1e-6)
	require.NotNil(t, resp.TopSimilarity)
	assert.InDelta(t, 0.72, float64(*resp.TopSimilarity), 1e-6)
}

func TestSearchPassesErrorTypeFilter(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	bug := seedBug(t, st, "ConnectionError: econnrefused 127.0.0.1:5432")

	idx := &fakeIndex{matches: []vectorstore.Match{{BugID: bug.ID, Score: 0.8}}}
	cfg := searchConfig()
	cfg.AutoContribute = false
	svc := NewService(st, idx, nil, ranking.NoDecay{}, cfg, nil)

	_, err := svc.Search(ctx, Request{
		ErrorPattern: "connection refused talking to postgres",
		ErrorType:    "ConnectionError",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"error_type": "ConnectionError"}, idx.lastFilter)

	_, err = svc.Search(ctx, Request{ErrorPattern: "connection refused talking to postgres"})
	require.NoError(t, err)
	assert.Nil(t, idx.lastFilter)
}

func TestSearchFiltersLowSimilarity(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	weak := seedBug(t, st, "ValueError: bad input")

	idx := &fakeIndex{matches: []vectorstore.Match{
		{BugID: weak.ID, Score: 0.2}, // below the 0.3 floor
	}}

	cfg := searchConfig()
	cfg.AutoContribute = false
	svc := NewService(st, idx, nil, ranking.NoDecay{}, cfg, nil)

	resp, err := svc.Search(ctx, Request{ErrorPattern: "something unrelated went wrong"})
	require.NoError(t, err)
	assert.Zero(t, resp.TotalFound)
	assert.False(t, resp.IsConfidentMatch)
}

func TestSearchConfidenceThreshold(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	bug := seedBug(t, st, "ConnectionError: refused")

	svc := NewService(st, &fakeIndex{matches: []vectorstore.Match{{BugID: bug.ID, Score: 0.9}}},
		nil, ranking.NoDecay{}, searchConfig(), nil)

	resp, err := svc.Search(ctx, Request{ErrorPattern: "ECONNREFUSED talking to redis"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.TotalFound)
	assert.True(t, resp.IsConfidentMatch)

	svc = NewService(st, &fakeIndex{matches: []vectorstore.Match{{BugID: bug.ID, Score: 0.5}}},
		nil, ranking.NoDecay{}, searchConfig(), nil)

	resp, err = svc.Search(ctx, Request{ErrorPattern: "ECONNREFUSED talking to redis"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.TotalFound)
	assert.False(t, resp.IsConfidentMatch)
}

func TestSearchRanksSolutions(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	seedBug(t, st, "ImportError: cannot import name 'settings'",
		ratedSolution("weak", 5, 5, now),
		ratedSolution("strong-few", 9, 1, now),
		ratedSolution("strong-many", 45, 5, now),
	)

	svc := NewService(st, nil, nil, ranking.NoDecay{}, searchConfig(), nil)

	resp, err := svc.Search(ctx, Request{ErrorPattern: "ImportError: cannot import name 'settings'"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.TotalFound)

	sols := resp.Results[0].Bug.Solutions
	require.Len(t, sols, 3)
	assert.Equal(t, "strong-many", sols[0].ApproachName)
	assert.Equal(t, "strong-few", sols[1].ApproachName)
	assert.Equal(t, "weak", sols[2].ApproachName)
}

func TestSearchAutoContributesOnMiss(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	contributor := contribute.NewService(st, nil, nil, nil)
	svc := NewService(st, &fakeIndex{}, contributor, ranking.NoDecay{}, searchConfig(), nil)

	resp, err := svc.Search(ctx, Request{ErrorPattern: "PanicError: unrecoverable state"})
	require.NoError(t, err)

	assert.Zero(t, resp.TotalFound)
	require.NotEmpty(t, resp.AutoContributedBugID)

	bug, err := st.BugByID(ctx, resp.AutoContributedBugID)
	require.NoError(t, err)
	assert.Zero(t, bug.SolutionCount)

	// The next identical search finds it by exact hash
	resp2, err := svc.Search(ctx, Request{ErrorPattern: "PanicError: unrecoverable state"})
	require.NoError(t, err)
	require.Equal(t, 1, resp2.TotalFound)
	assert.Equal(t, resp.AutoContributedBugID, resp2.Results[0].Bug.ID)
	assert.Empty(t, resp2.AutoContributedBugID)
}

func TestSearchAutoContributeDisabledPerRequest(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	contributor := contribute.NewService(st, nil, nil, nil)
	svc := NewService(st, &fakeIndex{}, contributor, ranking.NoDecay{}, searchConfig(), nil)

	off := false
	resp, err := svc.Search(ctx, Request{
		ErrorPattern:   "totally novel failure",
		AutoContribute: &off,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.AutoContributedBugID)
}

func TestSearchIndexOutageIsRetryable(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc := NewService(st, &fakeIndex{fail: true}, nil, ranking.NoDecay{}, searchConfig(), nil)

	_, err := svc.Search(ctx, Request{ErrorPattern: "some error"})
	require.Error(t, err)
	assert.True(t, knowledge.IsRetryable(err))
}

func TestSearchRequiresPattern(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), nil, nil, nil, searchConfig(), nil)
	_, err := svc.Search(context.Background(), Request{})
	require.ErrorIs(t, err, knowledge.ErrValidation)
}
