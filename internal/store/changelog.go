package store

import (
	"fmt"
	"time"

	"github.com/fleetforge/coordinator/internal/types"
)

// ListChangesSince feeds the change feed's "task_updated" event source:
// changelog rows joined through Task -> Feature -> Epic for project
// scoping, bounded by changed_at > since.
func (s *SQLiteStore) ListChangesSince(projectID int64, since time.Time) ([]*types.ChangelogEntry, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.task_id, c.from_state, c.to_state, c.actor_id, c.notes, c.changed_at
		FROM changelog c
		JOIN tasks t ON t.id = c.task_id
		JOIN features f ON f.id = t.feature_id
		JOIN epics e ON e.id = f.epic_id
		WHERE e.project_id = ? AND c.changed_at > ?
		ORDER BY c.changed_at ASC`, projectID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query changelog: %w", err)
	}
	defer rows.Close()

	var out []*types.ChangelogEntry
	for rows.Next() {
		var e types.ChangelogEntry
		var from, to string
		if err := rows.Scan(&e.ID, &e.TaskID, &from, &to, &e.ActorID, &e.Notes, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan changelog entry: %w", err)
		}
		e.FromState = types.TaskStatus(from)
		e.ToState = types.TaskStatus(to)
		out = append(out, &e)
	}
	return out, rows.Err()
}
