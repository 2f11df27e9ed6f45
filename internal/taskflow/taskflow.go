// Package taskflow is a thin wrapper over the store's transactional
// status-transition primitive, adding legacy-alias normalization on the
// way in and "what's next for this agent" computation on the way out.
package taskflow

import (
	"github.com/fleetforge/coordinator/internal/eligibility"
	"github.com/fleetforge/coordinator/internal/store"
	"github.com/fleetforge/coordinator/internal/types"
)

type Flow struct {
	store       store.Store
	eligibility *eligibility.Resolver
}

func New(s store.Store, e *eligibility.Resolver) *Flow {
	return &Flow{store: s, eligibility: e}
}

// Result bundles a status-transition's outcome with the caller's next
// unit of work, matching the update-task-status contract.
type Result struct {
	Task   *types.Task
	Entry  *types.ChangelogEntry
	Next   *types.Task
	Status types.WorkflowStatus
}

// Transition normalizes the requested status, applies it, and computes
// the actor's next eligible task in the same project.
func (f *Flow) Transition(taskID int64, rawStatus, actorID, notes string) (*Result, error) {
	toStatus, ok := types.NormalizeTaskStatus(rawStatus)
	if !ok {
		return nil, types.NewError(types.ErrInvalid, "unrecognized task status: "+rawStatus)
	}

	task, entry, err := f.store.TransitionTask(taskID, toStatus, actorID, notes)
	if err != nil {
		return nil, err
	}

	if task.TaskType == types.TaskManagement {
		return &Result{Task: task, Entry: entry, Status: types.WorkflowManagement}, nil
	}

	projectID, err := f.store.ProjectIDForTask(taskID)
	if err != nil {
		return nil, err
	}
	actor, err := f.store.GetAgent(projectID, actorID)
	if err != nil {
		return &Result{Task: task, Entry: entry, Status: types.WorkflowNoTasks}, nil
	}

	candidates, err := f.eligibility.Eligible(projectID, actor.Role, actor.Level)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &Result{Task: task, Entry: entry, Status: types.WorkflowNoTasks}, nil
	}
	return &Result{Task: task, Entry: entry, Next: candidates[0], Status: types.WorkflowContinue}, nil
}

// Comment appends to the task's notes log and derives mentions,
// distinct from Transition's replace-on-transition notes handling.
func (f *Flow) Comment(taskID int64, actorID, text string) (*types.Task, error) {
	return f.store.AppendTaskNote(taskID, actorID, text)
}

// ManuallyComplete lets a project-pm bypass the normal transition
// matrix: the store applies the target status unconditionally, the
// same as any other transition, so privilege-checking lives in the
// caller that knows the actor's role.
func (f *Flow) ManuallyComplete(taskID int64, targetStatus types.TaskStatus, actorID string) (*types.Task, *types.ChangelogEntry, error) {
	return f.store.TransitionTask(taskID, targetStatus, actorID, "")
}
