package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentstackio/agentstack/internal/knowledge"
)

// MemoryStore is an in-process Store for tests and local experiments.
// All data is lost on restart. A single mutex serializes every mutation,
// giving the same no-lost-update guarantee the Postgres row locks provide.
type MemoryStore struct {
	mu sync.Mutex

	agents        map[string]*knowledge.Agent
	agentsByKey   map[string]string // api key hash -> agent ID
	bugs          map[string]*knowledge.Bug
	bugsByHash    map[string]string // structural hash -> bug ID
	solutions     map[string]*knowledge.Solution
	approaches    map[string][]*knowledge.FailedApproach // bug ID -> approaches
	verifications []*knowledge.Verification
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:      make(map[string]*knowledge.Agent),
		agentsByKey: make(map[string]string),
		bugs:        make(map[string]*knowledge.Bug),
		bugsByHash:  make(map[string]string),
		solutions:   make(map[string]*knowledge.Solution),
		approaches:  make(map[string][]*knowledge.FailedApproach),
	}
}

func (s *MemoryStore) RegisterAgent(_ context.Context, agent *knowledge.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.agentsByKey[agent.APIKeyHash]; exists {
		return knowledge.ErrConflict
	}

	cp := *agent
	s.agents[agent.ID] = &cp
	s.agentsByKey[agent.APIKeyHash] = agent.ID
	return nil
}

func (s *MemoryStore) AgentByID(_ context.Context, id string) (*knowledge.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentLocked(id)
}

func (s *MemoryStore) agentLocked(id string) (*knowledge.Agent, error) {
	agent, ok := s.agents[id]
	if !ok {
		return nil, knowledge.ErrNotFound
	}
	cp := *agent
	return &cp, nil
}

func (s *MemoryStore) AgentByKeyHash(_ context.Context, keyHash string) (*knowledge.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.agentsByKey[keyHash]
	if !ok {
		return nil, knowledge.ErrNotFound
	}
	return s.agentLocked(id)
}

func (s *MemoryStore) Agents(_ context.Context) ([]*knowledge.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agents := make([]*knowledge.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		cp := *agent
		agents = append(agents, &cp)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].CreatedAt.Before(agents[j].CreatedAt) })
	return agents, nil
}

func (s *MemoryStore) UpdateAgentReputation(_ context.Context, agentID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return knowledge.ErrNotFound
	}
	agent.ReputationScore = score
	return nil
}

func (s *MemoryStore) FindOrCreateBug(_ context.Context, bug *knowledge.Bug) (*knowledge.Bug, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.bugsByHash[bug.StructuralHash]; ok {
		return s.hydratedBugLocked(existingID), false, nil
	}

	if bug.ID == "" {
		bug.ID = uuid.NewString()
	}
	if bug.CreatedAt.IsZero() {
		bug.CreatedAt = time.Now().UTC()
	}

	cp := *bug
	cp.Solutions = nil
	cp.FailedApproaches = nil
	s.bugs[cp.ID] = &cp
	s.bugsByHash[cp.StructuralHash] = cp.ID
	return s.hydratedBugLocked(cp.ID), true, nil
}

// hydratedBugLocked returns a copy of the bug with solutions and failed
// approaches attached. Caller must hold the lock.
func (s *MemoryStore) hydratedBugLocked(id string) *knowledge.Bug {
	bug, ok := s.bugs[id]
	if !ok {
		return nil
	}
	cp := *bug

	var sols []*knowledge.Solution
	for _, sol := range s.solutions {
		if sol.BugID == id {
			solCp := *sol
			sols = append(sols, &solCp)
		}
	}
	sort.Slice(sols, func(i, j int) bool { return sols[i].CreatedAt.Before(sols[j].CreatedAt) })
	cp.Solutions = sols

	var fas []*knowledge.FailedApproach
	for _, fa := range s.approaches[id] {
		faCp := *fa
		fas = append(fas, &faCp)
	}
	sort.Slice(fas, func(i, j int) bool { return fas[i].FailureRate > fas[j].FailureRate })
	cp.FailedApproaches = fas

	return &cp
}

func (s *MemoryStore) BugByID(_ context.Context, id string) (*knowledge.Bug, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bug := s.hydratedBugLocked(id)
	if bug == nil {
		return nil, knowledge.ErrNotFound
	}
	return bug, nil
}

func (s *MemoryStore) BugByHash(_ context.Context, structuralHash string) (*knowledge.Bug, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.bugsByHash[structuralHash]
	if !ok {
		return nil, knowledge.ErrNotFound
	}
	return s.hydratedBugLocked(id), nil
}

func (s *MemoryStore) BugsByIDs(_ context.Context, ids []string) ([]*knowledge.Bug, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bugs := make([]*knowledge.Bug, 0, len(ids))
	for _, id := range ids {
		if bug := s.hydratedBugLocked(id); bug != nil {
			bugs = append(bugs, bug)
		}
	}
	return bugs, nil
}

func (s *MemoryStore) AttachSolution(_ context.Context, sol *knowledge.Solution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bugs[sol.BugID]; !ok {
		return knowledge.ErrNotFound
	}
	s.attachSolutionLocked(sol)
	return nil
}

func (s *MemoryStore) AttachFailedApproaches(_ context.Context, bugID string, approaches []*knowledge.FailedApproach) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bugs[bugID]; !ok {
		return knowledge.ErrNotFound
	}
	s.attachFailedApproachesLocked(bugID, approaches)
	return nil
}

func (s *MemoryStore) AttachContribution(_ context.Context, bugID string, sol *knowledge.Solution, approaches []*knowledge.FailedApproach) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bugs[bugID]; !ok {
		return knowledge.ErrNotFound
	}
	if sol != nil {
		sol.BugID = bugID
		s.attachSolutionLocked(sol)
	}
	s.attachFailedApproachesLocked(bugID, approaches)
	return nil
}

func (s *MemoryStore) attachSolutionLocked(sol *knowledge.Solution) {
	if sol.ID == "" {
		sol.ID = uuid.NewString()
	}
	if sol.CreatedAt.IsZero() {
		sol.CreatedAt = time.Now().UTC()
	}
	if sol.LastVerified.IsZero() {
		sol.LastVerified = sol.CreatedAt
	}
	if sol.Confidence == 0 {
		sol.Confidence = 1
	}
	sol.RecomputeRate()

	cp := *sol
	s.solutions[cp.ID] = &cp
	s.bugs[sol.BugID].SolutionCount++

	if agent, ok := s.agents[sol.ContributedBy]; ok {
		agent.TotalContributions++
	}
}

func (s *MemoryStore) attachFailedApproachesLocked(bugID string, approaches []*knowledge.FailedApproach) {
	for _, fa := range approaches {
		if fa.ID == "" {
			fa.ID = uuid.NewString()
		}
		fa.BugID = bugID
		cp := *fa
		s.approaches[bugID] = append(s.approaches[bugID], &cp)
	}
}

func (s *MemoryStore) SolutionsByContributor(_ context.Context, agentID string) ([]*knowledge.Solution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sols []*knowledge.Solution
	for _, sol := range s.solutions {
		if sol.ContributedBy == agentID {
			cp := *sol
			sols = append(sols, &cp)
		}
	}
	sort.Slice(sols, func(i, j int) bool { return sols[i].CreatedAt.Before(sols[j].CreatedAt) })
	return sols, nil
}

func (s *MemoryStore) Solutions(_ context.Context) ([]*knowledge.Solution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sols := make([]*knowledge.Solution, 0, len(s.solutions))
	for _, sol := range s.solutions {
		cp := *sol
		sols = append(sols, &cp)
	}
	sort.Slice(sols, func(i, j int) bool { return sols[i].CreatedAt.Before(sols[j].CreatedAt) })
	return sols, nil
}

func (s *MemoryStore) UpdateSolutionConfidence(_ context.Context, solutionID string, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sol, ok := s.solutions[solutionID]
	if !ok {
		return knowledge.ErrNotFound
	}
	sol.Confidence = confidence
	return nil
}

func (s *MemoryStore) RecordVerification(_ context.Context, v *knowledge.Verification) (*knowledge.Solution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sol, ok := s.solutions[v.SolutionID]
	if !ok {
		return nil, knowledge.ErrNotFound
	}

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	applyVerification(sol, v)

	vCp := *v
	s.verifications = append(s.verifications, &vCp)

	if agent, ok := s.agents[v.AgentID]; ok {
		agent.TotalVerifications++
	}

	cp := *sol
	return &cp, nil
}

func (s *MemoryStore) CountVerificationsByAgent(_ context.Context, agentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, v := range s.verifications {
		if v.AgentID == agentID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountDistinctErrorTypes(_ context.Context, agentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make(map[string]struct{})
	for _, sol := range s.solutions {
		if sol.ContributedBy != agentID {
			continue
		}
		if bug, ok := s.bugs[sol.BugID]; ok {
			types[bug.ErrorType] = struct{}{}
		}
	}
	return len(types), nil
}

func (s *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &Stats{
		TotalBugs:          len(s.bugs),
		TotalSolutions:     len(s.solutions),
		TotalAgents:        len(s.agents),
		TotalVerifications: len(s.verifications),
	}

	var successes, attempts int
	for _, sol := range s.solutions {
		successes += sol.SuccessCount
		attempts += sol.SuccessCount + sol.FailureCount
	}
	if attempts > 0 {
		st.OverallSuccessRate = float64(successes) / float64(attempts)
	}
	return st, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
