package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/livechat-engine/internal/chat"
	"github.com/capitalize-ai/livechat-engine/internal/middleware"
	"github.com/capitalize-ai/livechat-engine/internal/model"
	"github.com/capitalize-ai/livechat-engine/pkg/logger"
)

// AgentDirectory persists the staff directory.
type AgentDirectory interface {
	UpsertAgent(ctx context.Context, a model.Agent) error
}

// AgentHandler handles the agent roster endpoints.
type AgentHandler struct {
	engine    *chat.Engine
	directory AgentDirectory
	logger    *logger.Logger
}

// NewAgentHandler creates a new agent handler. directory may be nil, in
// which case registrations only live in memory.
func NewAgentHandler(engine *chat.Engine, directory AgentDirectory, log *logger.Logger) *AgentHandler {
	return &AgentHandler{
		engine:    engine,
		directory: directory,
		logger:    log,
	}
}

// AgentsResponse lists the roster.
type AgentsResponse struct {
	Agents []model.Agent `json:"agents"`
}

// RegisterAgentRequest adds a staff member to the roster.
type RegisterAgentRequest struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Role model.AgentRole `json:"role"`
}

// List handles GET /api/v1/agents
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &AgentsResponse{Agents: h.engine.Roster().List()})
}

// Register handles POST /api/v1/agents
func (h *AgentHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if !decode(w, r, &req) {
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := middleware.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role == "" {
		req.Role = model.AgentRoleSupport
	}
	agent := model.Agent{ID: req.ID, Name: strings.TrimSpace(req.Name), Role: req.Role}
	if !agent.CanTakeChats() {
		writeError(w, http.StatusBadRequest, "role must be support or admin")
		return
	}

	if h.directory != nil {
		if err := h.directory.UpsertAgent(r.Context(), agent); err != nil {
			middleware.RequestLogger(r.Context(), h.logger).Error("failed to save agent",
				logger.AgentID(agent.ID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "failed to save agent")
			return
		}
	}

	writeJSON(w, http.StatusCreated, h.engine.RegisterAgent(agent))
}

// SetStatus handles PUT /api/v1/agents/:id/status
// Agents change their own presence; admins may change anyone's.
func (h *AgentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "id")

	if agentID != middleware.GetUserID(ctx) && middleware.GetRole(ctx) != middleware.RoleAdmin {
		writeError(w, http.StatusForbidden, "cannot change another agent's status")
		return
	}

	var req model.SetAgentStatusRequest
	if !decode(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be online, away or offline")
		return
	}

	agent, ok := h.engine.SetAgentStatus(ctx, agentID, req.Status)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	middleware.RequestLogger(ctx, h.logger).Info("agent status changed",
		logger.AgentID(agentID),
		zap.String("status", string(req.Status)),
	)
	writeJSON(w, http.StatusOK, agent)
}
