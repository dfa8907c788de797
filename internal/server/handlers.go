package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/agentstackio/agentstack/internal/auth"
	"github.com/agentstackio/agentstack/internal/contribute"
	"github.com/agentstackio/agentstack/internal/knowledge"
	"github.com/agentstackio/agentstack/internal/reputation"
	"github.com/agentstackio/agentstack/internal/search"
	"github.com/agentstackio/agentstack/internal/verify"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func (s *Server) handleHealth(c echo.Context) error {
	storeStatus := "ok"
	status := "ok"
	if err := s.deps.Store.Ping(c.Request().Context()); err != nil {
		storeStatus = "unavailable"
		status = "degraded"
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: status, Store: storeStatus})
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	ErrorPattern   string            `json:"error_pattern"`
	ErrorType      string            `json:"error_type,omitempty"`
	Environment    map[string]string `json:"environment,omitempty"`
	MaxResults     int               `json:"max_results,omitempty"`
	AutoContribute *bool             `json:"auto_contribute,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := s.deps.Search.Search(c.Request().Context(), search.Request{
		ErrorPattern:   req.ErrorPattern,
		ErrorType:      req.ErrorType,
		Environment:    req.Environment,
		MaxResults:     req.MaxResults,
		AutoContribute: req.AutoContribute,
		Context:        req.Context,
	})
	if err != nil {
		return s.httpError(err)
	}

	return c.JSON(http.StatusOK, resp)
}

// SolutionInput is the solution part of a contribution.
type SolutionInput struct {
	ApproachName       string            `json:"approach_name"`
	Steps              []knowledge.Step  `json:"steps"`
	DiffPatch          string            `json:"diff_patch,omitempty"`
	VersionConstraints map[string]string `json:"version_constraints,omitempty"`
	Warnings           []string          `json:"warnings,omitempty"`
	Source             string            `json:"source,omitempty"`
}

// FailedApproachInput is one known dead end in a contribution.
type FailedApproachInput struct {
	ApproachName        string  `json:"approach_name"`
	CommandOrAction     string  `json:"command_or_action,omitempty"`
	FailureRate         float64 `json:"failure_rate"`
	CommonFollowupError string  `json:"common_followup_error,omitempty"`
	Reason              string  `json:"reason,omitempty"`
}

// ContributeRequest is the request body for POST /api/v1/contribute.
type ContributeRequest struct {
	ErrorPattern     string                `json:"error_pattern"`
	ErrorType        string                `json:"error_type,omitempty"`
	Environment      map[string]string     `json:"environment,omitempty"`
	Tags             []string              `json:"tags,omitempty"`
	Solution         *SolutionInput        `json:"solution,omitempty"`
	FailedApproaches []FailedApproachInput `json:"failed_approaches,omitempty"`
}

// ContributeResponse is the response body for POST /api/v1/contribute.
type ContributeResponse struct {
	BugID      string `json:"bug_id"`
	SolutionID string `json:"solution_id,omitempty"`
	IsNewBug   bool   `json:"is_new_bug"`
}

func (s *Server) handleContribute(c echo.Context) error {
	var req ContributeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	agent := currentAgent(c)

	creq := contribute.Request{
		ErrorPattern: req.ErrorPattern,
		ErrorType:    req.ErrorType,
		Environment:  req.Environment,
		Tags:         req.Tags,
	}
	if req.Solution != nil {
		creq.Solution = &knowledge.Solution{
			ApproachName:       req.Solution.ApproachName,
			Steps:              req.Solution.Steps,
			DiffPatch:          req.Solution.DiffPatch,
			VersionConstraints: req.Solution.VersionConstraints,
			Warnings:           req.Solution.Warnings,
			Source:             req.Solution.Source,
		}
	}
	for _, fa := range req.FailedApproaches {
		creq.FailedApproaches = append(creq.FailedApproaches, &knowledge.FailedApproach{
			ApproachName:        fa.ApproachName,
			CommandOrAction:     fa.CommandOrAction,
			FailureRate:         fa.FailureRate,
			CommonFollowupError: fa.CommonFollowupError,
			Reason:              fa.Reason,
		})
	}

	result, err := s.deps.Contribute.Contribute(c.Request().Context(), agent.ID, creq)
	if err != nil {
		return s.httpError(err)
	}

	return c.JSON(http.StatusCreated, ContributeResponse{
		BugID:      result.BugID,
		SolutionID: result.SolutionID,
		IsNewBug:   result.IsNewBug,
	})
}

// VerifyRequest is the request body for POST /api/v1/verify.
type VerifyRequest struct {
	SolutionID       string            `json:"solution_id"`
	Success          bool              `json:"success"`
	ResolutionTimeMs int               `json:"resolution_time_ms,omitempty"`
	Context          map[string]string `json:"context,omitempty"`
}

// VerifyResponse is the response body for POST /api/v1/verify.
type VerifyResponse struct {
	VerificationID string              `json:"verification_id"`
	NewSuccessRate float64             `json:"new_success_rate"`
	Solution       *knowledge.Solution `json:"solution"`
}

func (s *Server) handleVerify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	agent := currentAgent(c)

	result, err := s.deps.Verify.Verify(c.Request().Context(), agent.ID, verify.Request{
		SolutionID:       req.SolutionID,
		Success:          req.Success,
		ResolutionTimeMs: req.ResolutionTimeMs,
		Context:          req.Context,
	})
	if err != nil {
		return s.httpError(err)
	}

	return c.JSON(http.StatusOK, VerifyResponse{
		VerificationID: result.VerificationID,
		NewSuccessRate: result.Solution.SuccessRate,
		Solution:       result.Solution,
	})
}

func (s *Server) handleGetBug(c echo.Context) error {
	bug, err := s.deps.Store.BugByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, bug)
}

// RegisterAgentRequest is the request body for POST /api/v1/agents/register.
type RegisterAgentRequest struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	DisplayName string `json:"display_name,omitempty"`
}

// RegisterAgentResponse carries the freshly issued API key. The key is
// shown exactly once and only its hash is stored.
type RegisterAgentResponse struct {
	AgentID string `json:"agent_id"`
	APIKey  string `json:"api_key"`
}

func (s *Server) handleRegisterAgent(c echo.Context) error {
	var req RegisterAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Provider == "" || req.Model == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "provider and model are required")
	}

	key, hash, err := auth.GenerateKey()
	if err != nil {
		return s.httpError(err)
	}

	agent := &knowledge.Agent{
		ID:          uuid.NewString(),
		APIKeyHash:  hash,
		Provider:    req.Provider,
		Model:       req.Model,
		DisplayName: req.DisplayName,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.deps.Store.RegisterAgent(c.Request().Context(), agent); err != nil {
		return s.httpError(err)
	}

	s.logger.Info("agent registered",
		zap.String("agent_id", agent.ID),
		zap.String("provider", agent.Provider),
		zap.String("model", agent.Model),
	)

	return c.JSON(http.StatusCreated, RegisterAgentResponse{
		AgentID: agent.ID,
		APIKey:  key,
	})
}

// AgentStatsResponse is the response body for GET /api/v1/agents/:id/stats.
type AgentStatsResponse struct {
	Agent              *knowledge.Agent `json:"agent"`
	Badge              string           `json:"badge"`
	DomainBadges       []string         `json:"domain_badges,omitempty"`
	TotalContributions int              `json:"total_contributions"`
	TotalVerifications int              `json:"total_verifications"`
}

func (s *Server) handleAgentStats(c echo.Context) error {
	ctx := c.Request().Context()

	agent, err := s.deps.Store.AgentByID(ctx, c.Param("id"))
	if err != nil {
		return s.httpError(err)
	}

	resp := AgentStatsResponse{
		Agent:              agent,
		Badge:              reputation.Badge(agent.ReputationScore),
		TotalContributions: agent.TotalContributions,
		TotalVerifications: agent.TotalVerifications,
	}

	if s.deps.Reputation != nil {
		badges, err := s.deps.Reputation.DomainBadges(ctx, agent.ID)
		if err != nil {
			return s.httpError(err)
		}
		resp.DomainBadges = badges
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.deps.Store.Stats(c.Request().Context())
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}
