// Package search orchestrates knowledge lookups: exact structural-hash
// matching first, semantic similarity second, with ranked solutions and an
// optional auto-contribution when nothing is found.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/agentstackio/agentstack/internal/config"
	"github.com/agentstackio/agentstack/internal/contribute"
	"github.com/agentstackio/agentstack/internal/fingerprint"
	"github.com/agentstackio/agentstack/internal/knowledge"
	"github.com/agentstackio/agentstack/internal/ranking"
	"github.com/agentstackio/agentstack/internal/store"
	"github.com/agentstackio/agentstack/internal/vectorstore"
)

var tracer = otel.Tracer("agentstack.search")

// Match types reported per result.
const (
	MatchExactHash = "exact_hash"
	MatchSemantic  = "semantic_similar"
)

// Request is one search query.
type Request struct {
	ErrorPattern   string
	ErrorType      string
	Environment    map[string]string
	MaxResults     int
	AutoContribute *bool // nil means use the configured default
	Context        map[string]string
}

// Result is one matched bug with its ranked solutions.
type Result struct {
	Bug        *knowledge.Bug `json:"bug"`
	MatchType  string         `json:"match_type"`
	Similarity *float32       `json:"similarity_score,omitempty"`
}

// Response is the full search outcome. TopSimilarity reflects only the
// semantic phase: it is nil when no semantic candidate survived the
// similarity floor, exact hit or not.
type Response struct {
	Results              []Result `json:"results"`
	TotalFound           int      `json:"total_found"`
	SearchTimeMs         int      `json:"search_time_ms"`
	AutoContributedBugID string   `json:"auto_contributed_bug_id,omitempty"`
	TopSimilarity        *float32 `json:"top_similarity,omitempty"`
	IsConfidentMatch     bool     `json:"is_confident_match"`
}

// Service orchestrates searches over the store and the semantic index.
type Service struct {
	store       store.Store
	index       vectorstore.Index
	contributor *contribute.Service
	policy      ranking.DecayPolicy
	cfg         config.SearchConfig
	logger      *zap.Logger

	searches metric.Int64Counter
}

// NewService creates a search service. index may be nil, in which case only
// exact-hash lookups are served. contributor may be nil to disable
// auto-contribution regardless of config.
func NewService(st store.Store, index vectorstore.Index, contributor *contribute.Service, policy ranking.DecayPolicy, cfg config.SearchConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = ranking.NewExponentialDecay()
	}

	counter, err := otel.Meter("agentstack.search").Int64Counter(
		"agentstack.searches_total",
		metric.WithDescription("Total searches, labeled by outcome (exact, semantic, miss)"),
	)
	if err != nil {
		logger.Warn("failed to create searches counter", zap.Error(err))
	}

	return &Service{
		store:       st,
		index:       index,
		contributor: contributor,
		policy:      policy,
		cfg:         cfg,
		logger:      logger,
		searches:    counter,
	}
}

// Search runs the two-phase lookup. An exact structural-hash match always
// ranks first; semantic candidates follow in descending similarity.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	start := time.Now()

	if req.ErrorPattern == "" {
		return nil, fmt.Errorf("%w: error_pattern is required", knowledge.ErrValidation)
	}

	maxResults := req.MaxResults
	if maxResults <= 0 || maxResults > s.cfg.MaxResults {
		maxResults = s.cfg.MaxResults
	}

	normalized, hash := fingerprint.Fingerprint(req.ErrorPattern)
	now := time.Now().UTC()

	resp := &Response{Results: []Result{}}

	// Phase 1: exact hash
	exact, err := s.store.BugByHash(ctx, hash)
	if err != nil && !errorsIsNotFound(err) {
		return nil, fmt.Errorf("exact hash lookup: %w", err)
	}
	if exact != nil {
		s.rankBug(exact, now)
		resp.Results = append(resp.Results, Result{Bug: exact, MatchType: MatchExactHash})
		resp.IsConfidentMatch = true
	}

	// Phase 2: semantic candidates, excluding the exact match
	if s.index != nil && len(resp.Results) < maxResults {
		var filter map[string]string
		if req.ErrorType != "" {
			filter = map[string]string{"error_type": req.ErrorType}
		}
		matches, err := s.index.Query(ctx, normalized, maxResults, filter)
		if err != nil {
			return nil, fmt.Errorf("%w: semantic query: %v", knowledge.ErrUnavailable, err)
		}

		ids := make([]string, 0, len(matches))
		scores := make(map[string]float32, len(matches))
		for _, m := range matches {
			if exact != nil && m.BugID == exact.ID {
				continue
			}
			if float64(m.Score) < s.cfg.MinSimilarity {
				continue
			}
			ids = append(ids, m.BugID)
			scores[m.BugID] = m.Score
		}

		if len(ids) > 0 {
			bugs, err := s.store.BugsByIDs(ctx, ids)
			if err != nil {
				return nil, fmt.Errorf("loading semantic candidates: %w", err)
			}
			for _, bug := range bugs {
				if len(resp.Results) >= maxResults {
					break
				}
				s.rankBug(bug, now)
				score := scores[bug.ID]
				resp.Results = append(resp.Results, Result{
					Bug:        bug,
					MatchType:  MatchSemantic,
					Similarity: &score,
				})
				if resp.TopSimilarity == nil || score > *resp.TopSimilarity {
					top := score
					resp.TopSimilarity = &top
				}
			}
		}
	}

	resp.TotalFound = len(resp.Results)
	if !resp.IsConfidentMatch && resp.TopSimilarity != nil {
		resp.IsConfidentMatch = float64(*resp.TopSimilarity) > s.cfg.ConfidenceThreshold
	}

	outcome := "miss"
	switch {
	case exact != nil:
		outcome = "exact"
	case resp.TotalFound > 0:
		outcome = "semantic"
	}

	// Miss: optionally register the bug so the next agent finds it.
	// The auto-contributed bug is not a search result.
	if resp.TotalFound == 0 && s.autoContribute(req) && s.contributor != nil {
		result, err := s.contributor.Contribute(ctx, "", contribute.Request{
			ErrorPattern: req.ErrorPattern,
			ErrorType:    req.ErrorType,
			Environment:  req.Environment,
		})
		if err != nil {
			s.logger.Warn("auto-contributing missed bug", zap.Error(err))
		} else {
			resp.AutoContributedBugID = result.BugID
		}
	}

	resp.SearchTimeMs = int(time.Since(start).Milliseconds())

	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("total_found", resp.TotalFound),
	)
	if s.searches != nil {
		s.searches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}

	s.logger.Debug("search completed",
		zap.String("outcome", outcome),
		zap.Int("total_found", resp.TotalFound),
		zap.Int("search_time_ms", resp.SearchTimeMs),
	)

	return resp, nil
}

// rankBug orders the bug's solutions and failed approaches in place.
func (s *Service) rankBug(bug *knowledge.Bug, now time.Time) {
	sols := make([]knowledge.Solution, len(bug.Solutions))
	for i, sol := range bug.Solutions {
		sols[i] = *sol
	}
	ranking.Solutions(sols, s.policy, now)
	for i := range sols {
		bug.Solutions[i] = &sols[i]
	}

	fas := make([]knowledge.FailedApproach, len(bug.FailedApproaches))
	for i, fa := range bug.FailedApproaches {
		fas[i] = *fa
	}
	ranking.FailedApproaches(fas)
	for i := range fas {
		bug.FailedApproaches[i] = &fas[i]
	}
}

func (s *Service) autoContribute(req Request) bool {
	if req.AutoContribute != nil {
		return *req.AutoContribute
	}
	return s.cfg.AutoContribute
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, knowledge.ErrNotFound)
}
