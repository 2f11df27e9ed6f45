// Package eligibility computes the set of tasks an agent may claim,
// applying the skill-level fallback rule and project scoping.
package eligibility

import (
	"time"

	"github.com/fleetforge/coordinator/internal/store"
	"github.com/fleetforge/coordinator/internal/types"
)

// DefaultActiveWindow is how recently a same-level agent must have been
// seen for a fallback to a level above it to be withheld.
const DefaultActiveWindow = 30 * time.Minute

// Resolver owns the fallback computation against a Store.
type Resolver struct {
	store        store.Store
	activeWindow time.Duration
}

func New(s store.Store, activeWindow time.Duration) *Resolver {
	if activeWindow <= 0 {
		activeWindow = DefaultActiveWindow
	}
	return &Resolver{store: s, activeWindow: activeWindow}
}

// Eligible returns tasks, oldest-first, that the given (role, level) may
// claim within projectID. QA ignores target role entirely (rule 1);
// every other role is matched against target-role and a computed
// permitted-difficulty set (rules 2-4, 6). Management tasks never
// appear here (rule 5), enforced inside the store queries themselves.
func (r *Resolver) Eligible(projectID int64, role types.AgentRole, level types.SkillLevel) ([]*types.Task, error) {
	if role == types.RoleQA {
		return r.store.ListEligibleForQA(projectID)
	}

	difficulties, err := r.permittedDifficulties(projectID, role, level)
	if err != nil {
		return nil, err
	}

	statuses := []types.TaskStatus{types.StatusCreated}
	return r.store.ListEligibleForRole(projectID, role, statuses, difficulties)
}

// permittedDifficulties implements rule 3: every level at or below the
// agent's own is always permitted; a level above is permitted only if
// no agent at that exact level and role has been seen recently.
func (r *Resolver) permittedDifficulties(projectID int64, role types.AgentRole, level types.SkillLevel) ([]types.TaskDifficulty, error) {
	permitted := types.SkillLevelsAtOrBelow(level)

	since := time.Now().Add(-r.activeWindow)
	for _, above := range types.SkillLevelsAbove(level) {
		count, err := r.store.CountActiveAgentsAtLevel(projectID, role, above, since)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			permitted = append(permitted, above)
		}
	}
	return permitted, nil
}
