package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fleetforge/coordinator/internal/types"
)

type registerServiceRequest struct {
	ProjectID    int64  `json:"project_id"`
	Name         string `json:"name"`
	OwnerAgentID string `json:"owner_agent_id"`
	PingURL      string `json:"ping_url"`
	Port         *int   `json:"port,omitempty"`
	Metadata     string `json:"metadata,omitempty"`
}

func (h *Handler) handleRegisterService(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	var req registerServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svc, err := h.store.RegisterService(&types.Service{
		ProjectID:    req.ProjectID,
		Name:         req.Name,
		OwnerAgentID: req.OwnerAgentID,
		PingURL:      req.PingURL,
		Port:         req.Port,
		Status:       types.ServiceStarting,
		Metadata:     req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, svc)
}

func (h *Handler) handleHeartbeatService(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	projectID, err := strconv.ParseInt(r.URL.Query().Get("project_id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	if err := h.store.HeartbeatService(projectID, name); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleUnregisterService(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	projectID, err := strconv.ParseInt(r.URL.Query().Get("project_id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	if err := h.store.UnregisterService(projectID, name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(r.URL.Query().Get("project_id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	services, err := h.store.ListServices(projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, services)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
