package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fleetforge/coordinator/internal/types"
)

// handleNextTask implements spec.md §6's request-next-task operation. It
// is a long poll: the dispatcher blocks (responsive to client
// disconnect, via r.Context()) until a task is eligible or its own
// timeout budget elapses, at which point it returns a waiting token.
func (h *Handler) handleNextTask(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	projectID, err := strconv.ParseInt(q.Get("project_id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	role, ok := types.NormalizeRole(q.Get("role"))
	if !ok {
		respondError(w, http.StatusBadRequest, "unrecognized role: "+q.Get("role"))
		return
	}
	level, ok := types.NormalizeSkillLevel(q.Get("level"))
	if !ok {
		respondError(w, http.StatusBadRequest, "unrecognized level: "+q.Get("level"))
		return
	}
	callerID := q.Get("agent_id")

	var timeout time.Duration
	if raw := q.Get("timeout"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "timeout must be an integer number of seconds")
			return
		}
		timeout = time.Duration(seconds) * time.Second
	}

	task, err := h.dispatcher.NextTask(r.Context(), projectID, role, level, callerID, timeout)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

type lockTaskRequest struct {
	AgentID string `json:"agent_id"`
}

func (h *Handler) handleLockTask(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	taskID, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req lockTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := h.arbiter.Claim(taskID, req.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

type updateStatusRequest struct {
	Status  string `json:"status"`
	ActorID string `json:"actor_id"`
	Notes   string `json:"notes,omitempty"`
}

type updateStatusResponse struct {
	Task   *types.Task           `json:"task"`
	Next   *types.Task           `json:"next_task,omitempty"`
	Status types.WorkflowStatus  `json:"workflow_status"`
	Entry  *types.ChangelogEntry `json:"changelog_entry"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	taskID, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.flow.Transition(taskID, req.Status, req.ActorID, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updateStatusResponse{
		Task: result.Task, Next: result.Next, Status: result.Status, Entry: result.Entry,
	})
}

type addCommentRequest struct {
	ActorID string `json:"actor_id"`
	Text    string `json:"text"`
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	taskID, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req addCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := h.flow.Comment(taskID, req.ActorID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

type assignTaskRequest struct {
	TargetAgentID string `json:"target_agent_id"`
	AssignerID    string `json:"assigner_id"`
}

// handleAssignTask implements the PM-only assign operation. The
// project-pm check itself lives in the store's AssignTask transaction
// (it must read the assigner's role under the same transaction that
// checks the target's idle status), not here.
func (h *Handler) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	taskID, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req assignTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := h.arbiter.Assign(taskID, req.TargetAgentID, req.AssignerID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

type manuallyCompleteRequest struct {
	TargetStatus string `json:"target_status"`
	ActorID      string `json:"actor_id"`
}

// handleManuallyComplete implements the PM-only manual-complete
// operation. Unlike assign, taskflow.ManuallyComplete applies the
// target status unconditionally (it has to, since it is meant to
// bypass the normal transition matrix), so the PM-role check has to
// happen here, before the transition, rather than inside the store.
func (h *Handler) handleManuallyComplete(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	taskID, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req manuallyCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	targetStatus, ok := types.NormalizeTaskStatus(req.TargetStatus)
	if !ok {
		respondError(w, http.StatusBadRequest, "unrecognized target_status: "+req.TargetStatus)
		return
	}

	projectID, err := h.store.ProjectIDForTask(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	actor, err := h.store.GetAgent(projectID, req.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	if actor.Role != types.RoleProjectPM {
		writeError(w, types.NewError(types.ErrForbidden, "only project-pm may manually complete a task"))
		return
	}

	task, _, err := h.flow.ManuallyComplete(taskID, targetStatus, req.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

type deleteTaskRequest struct {
	ActorID string `json:"actor_id"`
}

// handleDeleteTask implements spec.md §3's force-delete: a task "may be
// force-deleted by a UI admin". Bypasses the transition matrix entirely,
// so the role check happens here rather than inside the store, the same
// way handleManuallyComplete gates its own bypass.
func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r)
	taskID, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req deleteTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	projectID, err := h.store.ProjectIDForTask(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	actor, err := h.store.GetAgent(projectID, req.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	if actor.Role != types.RoleUIAdmin {
		writeError(w, types.NewError(types.ErrForbidden, "only ui-admin may force-delete a task"))
		return
	}

	if err := h.store.DeleteTask(taskID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
