package api

import (
	"encoding/json"
	"net/http"

	"github.com/fleetforge/coordinator/internal/types"
)

type registerAgentRequest struct {
	AgentID        string `json:"agent_id"`
	ProjectID      int64  `json:"project_id"`
	Role           string `json:"role"`
	Level          string `json:"level"`
	ConnectionKind string `json:"connection_kind"`
}

type registerAgentResponse struct {
	Agent          *types.Agent     `json:"agent"`
	NextTask       *types.Task      `json:"next_task"`
	UnreadMentions []*types.Mention `json:"unread_mentions"`
}

// handleRegisterAgent implements spec.md §6's register/refresh agent
// operation: upsert the agent row, then report its next eligible task
// (or a waiting token) and unread mentions in the same response so a
// client doesn't need a second round trip just to start working.
func (h *Handler) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)

	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		respondError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	role, ok := types.NormalizeRole(req.Role)
	if !ok {
		respondError(w, http.StatusBadRequest, "unrecognized role: "+req.Role)
		return
	}
	level, ok := types.NormalizeSkillLevel(req.Level)
	if !ok {
		respondError(w, http.StatusBadRequest, "unrecognized level: "+req.Level)
		return
	}
	connKind, ok := types.NormalizeConnectionKind(req.ConnectionKind)
	if !ok {
		respondError(w, http.StatusBadRequest, "unrecognized connection_kind: "+req.ConnectionKind)
		return
	}

	agent, err := h.store.UpsertAgent(&types.Agent{
		ID:             req.AgentID,
		ProjectID:      req.ProjectID,
		Role:           role,
		Level:          level,
		ConnectionKind: connKind,
		Status:         types.AgentIdle,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := registerAgentResponse{Agent: agent}

	candidates, err := h.eligibility.Eligible(req.ProjectID, role, level)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(candidates) > 0 {
		resp.NextTask = candidates[0]
	} else {
		resp.NextTask = types.WaitingToken(role, req.AgentID, RegisterPollHint)
	}

	mentions, err := h.store.ListUnreadMentions(req.ProjectID, req.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp.UnreadMentions = mentions

	respondJSON(w, http.StatusOK, resp)
}
