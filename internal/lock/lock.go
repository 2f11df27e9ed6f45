// Package lock is a thin orchestration layer over the store's
// transactional lock acquisition and assignment; it passes calls
// through to the store and counts lock conflicts when metrics are
// attached.
package lock

import (
	"github.com/fleetforge/coordinator/internal/metrics"
	"github.com/fleetforge/coordinator/internal/store"
	"github.com/fleetforge/coordinator/internal/types"
)

type Arbiter struct {
	store   store.Store
	metrics *metrics.Registry
}

func New(s store.Store) *Arbiter {
	return &Arbiter{store: s}
}

// SetMetrics attaches a metrics registry. Optional.
func (a *Arbiter) SetMetrics(m *metrics.Registry) {
	a.metrics = m
}

// Claim acquires taskID exclusively for agentID. All invariant checks
// (not-already-locked, at-most-one-active-task, project scoping) run
// inside the store's single transaction; this layer adds nothing but
// the call boundary.
func (a *Arbiter) Claim(taskID int64, agentID string) (*types.Task, error) {
	task, err := a.store.LockTask(taskID, agentID)
	if a.metrics != nil {
		if types.IsKind(err, types.ErrConflict) {
			a.metrics.LockConflicts.Inc()
		}
	}
	return task, err
}

// Assign hands a task to targetAgentID on assignerID's behalf. The
// store enforces that assignerID is a project-pm and targetAgentID is
// idle; used for management tasks the dispatcher never auto-offers.
func (a *Arbiter) Assign(taskID int64, targetAgentID, assignerID string) (*types.Task, error) {
	return a.store.AssignTask(taskID, targetAgentID, assignerID)
}
