// Package api exposes the core coordinator operations over HTTP/JSON for
// directly-connected agents and the admin tooling. Protocol-mediated
// agents go through internal/natsbridge instead; both sit on top of the
// same component packages so the transport is the only thing that
// differs.
package api

import (
	"github.com/gorilla/mux"

	"github.com/fleetforge/coordinator/internal/changefeed"
	"github.com/fleetforge/coordinator/internal/dispatch"
	"github.com/fleetforge/coordinator/internal/eligibility"
	"github.com/fleetforge/coordinator/internal/lock"
	"github.com/fleetforge/coordinator/internal/store"
	"github.com/fleetforge/coordinator/internal/taskflow"
)

// MaxPayloadSize bounds any single request body accepted by this API.
const MaxPayloadSize = 1 * 1024 * 1024

// RegisterPollHint is the poll_interval (seconds) carried on the waiting
// token returned from register/refresh, which is a one-shot snapshot
// rather than a long poll: the caller is expected to follow up with
// next_task, which does its own long-poll wait.
const RegisterPollHint = 5

type Handler struct {
	store       store.Store
	eligibility *eligibility.Resolver
	flow        *taskflow.Flow
	dispatcher  *dispatch.Dispatcher
	arbiter     *lock.Arbiter
	feed        *changefeed.Feed
}

func New(s store.Store, e *eligibility.Resolver, f *taskflow.Flow, d *dispatch.Dispatcher, a *lock.Arbiter, cf *changefeed.Feed) *Handler {
	return &Handler{store: s, eligibility: e, flow: f, dispatcher: d, arbiter: a, feed: cf}
}

// RegisterRoutes wires every operation from spec.md §6 onto r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.handleHealthz).Methods("GET")

	r.HandleFunc("/agents/register", h.handleRegisterAgent).Methods("POST")

	r.HandleFunc("/tasks/next", h.handleNextTask).Methods("GET")
	r.HandleFunc("/tasks/{id}/lock", h.handleLockTask).Methods("POST")
	r.HandleFunc("/tasks/{id}/status", h.handleUpdateStatus).Methods("PUT")
	r.HandleFunc("/tasks/{id}/comments", h.handleAddComment).Methods("POST")
	r.HandleFunc("/tasks/{id}/assign", h.handleAssignTask).Methods("POST")
	r.HandleFunc("/tasks/{id}/complete", h.handleManuallyComplete).Methods("POST")
	r.HandleFunc("/tasks/{id}", h.handleDeleteTask).Methods("DELETE")

	r.HandleFunc("/changes", h.handlePollChanges).Methods("GET")

	r.HandleFunc("/services/register", h.handleRegisterService).Methods("POST")
	r.HandleFunc("/services/{name}/heartbeat", h.handleHeartbeatService).Methods("POST")
	r.HandleFunc("/services/{name}", h.handleUnregisterService).Methods("DELETE")
	r.HandleFunc("/services", h.handleListServices).Methods("GET")
}
