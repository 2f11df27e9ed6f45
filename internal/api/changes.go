package api

import (
	"net/http"
	"strconv"
	"time"
)

type pollChangesResponse struct {
	Events          interface{} `json:"events"`
	LatestTimestamp time.Time   `json:"latest_timestamp"`
}

// handlePollChanges implements the change-feed poll operation. Per
// spec.md §7's propagation policy, Feed.Changes already swallows its
// own internal errors into an empty window at the same cursor, so
// there is no error path here to map.
func (h *Handler) handlePollChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	projectID, err := strconv.ParseInt(q.Get("project_id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	var since time.Time
	if raw := q.Get("since"); raw != "" {
		since, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
	}

	result := h.feed.Changes(projectID, since)
	respondJSON(w, http.StatusOK, pollChangesResponse{
		Events:          result.Events,
		LatestTimestamp: result.LatestTimestamp,
	})
}
