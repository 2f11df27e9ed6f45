package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fleetforge/coordinator/internal/mentions"
	"github.com/fleetforge/coordinator/internal/types"
)

// CreateTask inserts a task and, in the same transaction, emits the
// initial self-transition changelog entry (CREATED -> CREATED) so the
// change feed's timestamp window uniformly covers creation events.
func (s *SQLiteStore) CreateTask(t *types.Task) (*types.Task, error) {
	deriveBranch := t.Branch == ""
	if t.Status == "" {
		t.Status = types.StatusCreated
	}
	if t.TaskType == "" {
		t.TaskType = types.TaskRegular
	}
	if t.Complexity == "" {
		t.Complexity = types.ComplexityMinor
	}

	var created *types.Task
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO tasks (feature_id, title, description, creator_id, target_role, difficulty, complexity, task_type, branch, status, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.FeatureID, t.Title, t.Description, t.CreatorID, string(t.TargetRole), string(t.Difficulty),
			string(t.Complexity), string(t.TaskType), t.Branch, string(t.Status), t.Notes)
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read new task id: %w", err)
		}
		if deriveBranch {
			t.ID, t.Branch = id, ""
			t.EnsureBranch()
			if _, err := tx.Exec(`UPDATE tasks SET branch = ? WHERE id = ?`, t.Branch, id); err != nil {
				return fmt.Errorf("failed to set task branch: %w", err)
			}
		}

		if _, err := tx.Exec(`
			INSERT INTO changelog (task_id, from_state, to_state, actor_id, notes)
			VALUES (?, ?, ?, ?, ?)`,
			id, string(types.StatusCreated), string(types.StatusCreated), t.CreatorID, "Task created"); err != nil {
			return fmt.Errorf("failed to write initial changelog entry: %w", err)
		}

		row := tx.QueryRow(taskSelectColumns+` FROM tasks WHERE id = ?`, id)
		created, err = scanTask(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

const taskSelectColumns = `
	SELECT id, feature_id, title, description, creator_id, target_role, difficulty, complexity,
	       task_type, branch, status, lock_holder, lock_timestamp, notes, created_at, updated_at`

func scanTask(row scannable) (*types.Task, error) {
	var t types.Task
	var targetRole, difficulty, complexity, taskType, status string
	var lockHolder sql.NullString
	var lockTimestamp sql.NullTime
	if err := row.Scan(&t.ID, &t.FeatureID, &t.Title, &t.Description, &t.CreatorID, &targetRole, &difficulty,
		&complexity, &taskType, &t.Branch, &status, &lockHolder, &lockTimestamp, &t.Notes, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.TargetRole = types.AgentRole(targetRole)
	t.Difficulty = types.TaskDifficulty(difficulty)
	t.Complexity = types.TaskComplexity(complexity)
	t.TaskType = types.TaskType(taskType)
	t.Status = types.TaskStatus(status)
	t.LockHolder = stringPtrFromNull(lockHolder)
	t.LockTimestamp = timePtrFromNull(lockTimestamp)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*types.Task, error) {
	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetTask(id int64) (*types.Task, error) {
	row := s.db.QueryRow(taskSelectColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("task %d not found", id))
	}
	return t, err
}

func (s *SQLiteStore) getTaskTx(tx *sql.Tx, id int64) (*types.Task, error) {
	row := tx.QueryRow(taskSelectColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("task %d not found", id))
	}
	return t, err
}

func (s *SQLiteStore) DeleteTask(id int64) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.NewError(types.ErrNotFound, fmt.Sprintf("task %d not found", id))
	}
	return nil
}

// ListEligibleForQA implements eligibility rule 1: DEV_DONE, unlocked,
// across the whole project regardless of target role.
func (s *SQLiteStore) ListEligibleForQA(projectID int64) ([]*types.Task, error) {
	rows, err := s.db.Query(taskJoinedSelectColumns+`
		WHERE e.project_id = ? AND t.status = ? AND t.lock_holder IS NULL AND t.task_type != ?
		ORDER BY t.created_at ASC`,
		projectID, string(types.StatusDevDone), string(types.TaskManagement))
	if err != nil {
		return nil, fmt.Errorf("failed to query QA-eligible tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

const taskJoinedSelectColumns = `
	SELECT t.id, t.feature_id, t.title, t.description, t.creator_id, t.target_role, t.difficulty, t.complexity,
	       t.task_type, t.branch, t.status, t.lock_holder, t.lock_timestamp, t.notes, t.created_at, t.updated_at
	FROM tasks t
	JOIN features f ON f.id = t.feature_id
	JOIN epics e ON e.id = f.epic_id`

// ListEligibleForRole implements eligibility rule 2 (and rule 6's legacy
// status carve-out via the caller-supplied statuses set): matching
// target role, one of the given statuses, unlocked, difficulty within
// the caller's permitted set, excluding management tasks, project-scoped
// via the Task -> Feature -> Epic join.
func (s *SQLiteStore) ListEligibleForRole(projectID int64, role types.AgentRole, statuses []types.TaskStatus, difficulties []types.TaskDifficulty) ([]*types.Task, error) {
	if len(statuses) == 0 || len(difficulties) == 0 {
		return nil, nil
	}
	query := taskJoinedSelectColumns + `
		WHERE e.project_id = ? AND t.target_role = ? AND t.lock_holder IS NULL AND t.task_type != ?
		AND t.status IN (` + placeholders(len(statuses)) + `)
		AND t.difficulty IN (` + placeholders(len(difficulties)) + `)
		ORDER BY t.created_at ASC`

	args := []interface{}{projectID, string(role), string(types.TaskManagement)}
	for _, st := range statuses {
		args = append(args, string(st))
	}
	for _, d := range difficulties {
		args = append(args, string(d))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query role-eligible tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ListStaleLocks returns tasks whose lock holder's last_seen predates
// cutoff. Status is deliberately not part of the predicate: a task left
// in UNDER_WORK with no holder after reaping is a well-defined state,
// not something this query itself produces.
func (s *SQLiteStore) ListStaleLocks(cutoff time.Time) ([]*types.Task, error) {
	rows, err := s.db.Query(`
		SELECT t.id, t.feature_id, t.title, t.description, t.creator_id, t.target_role, t.difficulty, t.complexity,
		       t.task_type, t.branch, t.status, t.lock_holder, t.lock_timestamp, t.notes, t.created_at, t.updated_at
		FROM tasks t
		JOIN features f ON f.id = t.feature_id
		JOIN epics e ON e.id = f.epic_id
		JOIN agents a ON a.agent_id = t.lock_holder AND a.project_id = e.project_id
		WHERE t.lock_holder IS NOT NULL AND a.last_seen <= ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale locks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ReleaseLock is the reaper's atomic reclaim: null the holder and
// timestamp, leave status untouched.
func (s *SQLiteStore) ReleaseLock(taskID int64) error {
	_, err := s.db.Exec(`
		UPDATE tasks SET lock_holder = NULL, lock_timestamp = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// LockTask implements the lock arbiter's algorithm as a single
// transaction so the not-already-locked and at-most-one-task checks can
// never race with a concurrent commit.
func (s *SQLiteStore) LockTask(taskID int64, agentID string) (*types.Task, error) {
	var locked *types.Task
	err := s.withTx(func(tx *sql.Tx) error {
		task, err := s.getTaskTx(tx, taskID)
		if err != nil {
			return err
		}
		if task.LockHolder != nil {
			return types.NewError(types.ErrConflict, "task already locked")
		}

		var projectID int64
		if err := tx.QueryRow(`
			SELECT e.project_id FROM features f JOIN epics e ON e.id = f.epic_id WHERE f.id = ?`,
			task.FeatureID).Scan(&projectID); err != nil {
			return fmt.Errorf("failed to resolve task project: %w", err)
		}

		var registeredProjects int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM agents WHERE agent_id = ?`, agentID).Scan(&registeredProjects); err != nil {
			return fmt.Errorf("failed to load agent: %w", err)
		}
		if registeredProjects == 0 {
			return types.NewError(types.ErrNotFound, fmt.Sprintf("agent %q not registered", agentID))
		}

		var inProject int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM agents WHERE agent_id = ? AND project_id = ?`, agentID, projectID).Scan(&inProject); err != nil {
			return fmt.Errorf("failed to load agent: %w", err)
		}
		if inProject == 0 {
			return types.NewError(types.ErrForbidden, "agent is not a member of this task's project")
		}

		existingLock, err := s.agentHasLockedTaskTx(tx, projectID, agentID)
		if err != nil {
			return err
		}
		if existingLock {
			return types.NewError(types.ErrConflict, "agent already has a locked task")
		}

		now := time.Now()
		if _, err := tx.Exec(`
			UPDATE tasks SET lock_holder = ?, lock_timestamp = ?, status = ?, updated_at = ?
			WHERE id = ?`, agentID, now, string(types.StatusUnderWork), now, taskID); err != nil {
			return fmt.Errorf("failed to set lock: %w", err)
		}
		if err := s.setAgentWorkingTx(tx, projectID, agentID, taskID, now); err != nil {
			return fmt.Errorf("failed to update agent status: %w", err)
		}

		locked, err = s.getTaskTx(tx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return locked, nil
}

// agentHasLockedTaskTx scopes the at-most-one-active-task check to the
// (agent_id, project_id) pair: agent identifiers are unique only within
// a project, so two different agents in different projects may share
// the same literal id string.
func (s *SQLiteStore) agentHasLockedTaskTx(tx *sql.Tx, projectID int64, agentID string) (bool, error) {
	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM tasks t
		JOIN features f ON f.id = t.feature_id
		JOIN epics e ON e.id = f.epic_id
		WHERE t.lock_holder = ? AND e.project_id = ?`, agentID, projectID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check existing locks: %w", err)
	}
	return count > 0, nil
}

// AssignTask is the management-task assignment variant: the assigner
// must be a project-pm in the same project, and the target must be idle.
func (s *SQLiteStore) AssignTask(taskID int64, targetAgentID, assignerID string) (*types.Task, error) {
	var assigned *types.Task
	err := s.withTx(func(tx *sql.Tx) error {
		task, err := s.getTaskTx(tx, taskID)
		if err != nil {
			return err
		}
		if task.LockHolder != nil {
			return types.NewError(types.ErrConflict, "task already locked")
		}

		var projectID int64
		if err := tx.QueryRow(`SELECT e.project_id FROM features f JOIN epics e ON e.id = f.epic_id WHERE f.id = ?`, task.FeatureID).Scan(&projectID); err != nil {
			return fmt.Errorf("failed to resolve task project: %w", err)
		}

		var assignerRole string
		if err := tx.QueryRow(`SELECT role FROM agents WHERE agent_id = ? AND project_id = ?`, assignerID, projectID).Scan(&assignerRole); err != nil {
			if err == sql.ErrNoRows {
				return types.NewError(types.ErrNotFound, fmt.Sprintf("assigner %q not registered", assignerID))
			}
			return fmt.Errorf("failed to load assigner: %w", err)
		}
		if assignerRole != string(types.RoleProjectPM) {
			return types.NewError(types.ErrForbidden, "only project-pm may assign tasks")
		}

		var targetStatus string
		if err := tx.QueryRow(`SELECT status FROM agents WHERE agent_id = ? AND project_id = ?`, targetAgentID, projectID).Scan(&targetStatus); err != nil {
			if err == sql.ErrNoRows {
				return types.NewError(types.ErrNotFound, fmt.Sprintf("target agent %q not registered", targetAgentID))
			}
			return fmt.Errorf("failed to load target agent: %w", err)
		}
		if targetStatus != string(types.AgentIdle) {
			return types.NewError(types.ErrForbidden, "target agent is not idle")
		}

		existingLock, err := s.agentHasLockedTaskTx(tx, projectID, targetAgentID)
		if err != nil {
			return err
		}
		if existingLock {
			return types.NewError(types.ErrConflict, "target agent already has a locked task")
		}

		now := time.Now()
		if _, err := tx.Exec(`
			UPDATE tasks SET lock_holder = ?, lock_timestamp = ?, status = ?, updated_at = ?
			WHERE id = ?`, targetAgentID, now, string(types.StatusUnderWork), now, taskID); err != nil {
			return fmt.Errorf("failed to set lock: %w", err)
		}
		if err := s.setAgentWorkingTx(tx, projectID, targetAgentID, taskID, now); err != nil {
			return fmt.Errorf("failed to update target agent status: %w", err)
		}

		assigned, err = s.getTaskTx(tx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return assigned, nil
}

// TransitionTask implements the task state machine's unconditional
// apply: the allowed-transition matrix is enforced by callers who know
// the actor's privilege level, not here.
func (s *SQLiteStore) TransitionTask(taskID int64, toStatus types.TaskStatus, actorID, notes string) (*types.Task, *types.ChangelogEntry, error) {
	var task *types.Task
	var entry *types.ChangelogEntry
	err := s.withTx(func(tx *sql.Tx) error {
		var err error
		task, err = s.getTaskTx(tx, taskID)
		if err != nil {
			return err
		}

		var actorExists int
		projectID, perr := s.projectIDForTaskTx(tx, taskID)
		if perr != nil {
			return perr
		}
		if err := tx.QueryRow(`SELECT COUNT(*) FROM agents WHERE agent_id = ? AND project_id = ?`, actorID, projectID).Scan(&actorExists); err != nil {
			return fmt.Errorf("failed to verify actor: %w", err)
		}
		if actorExists == 0 {
			return types.NewError(types.ErrNotFound, fmt.Sprintf("actor %q not registered", actorID))
		}

		fromStatus := task.Status
		now := time.Now()

		newNotes := task.Notes
		if notes != "" {
			newNotes = notes
		}

		if _, err := tx.Exec(`UPDATE tasks SET status = ?, notes = ?, updated_at = ? WHERE id = ?`,
			string(toStatus), newNotes, now, taskID); err != nil {
			return fmt.Errorf("failed to update task status: %w", err)
		}

		if fromStatus == types.StatusUnderWork && toStatus != types.StatusUnderWork {
			if _, err := tx.Exec(`UPDATE tasks SET lock_holder = NULL, lock_timestamp = NULL WHERE id = ?`, taskID); err != nil {
				return fmt.Errorf("failed to release lock on transition: %w", err)
			}
			if err := s.setAgentIdleByTaskTx(tx, taskID, now); err != nil {
				return fmt.Errorf("failed to idle holding agent: %w", err)
			}
		}

		res, err := tx.Exec(`
			INSERT INTO changelog (task_id, from_state, to_state, actor_id, notes)
			VALUES (?, ?, ?, ?, ?)`, taskID, string(fromStatus), string(toStatus), actorID, notes)
		if err != nil {
			return fmt.Errorf("failed to append changelog entry: %w", err)
		}
		entryID, _ := res.LastInsertId()

		task, err = s.getTaskTx(tx, taskID)
		if err != nil {
			return err
		}
		entry = &types.ChangelogEntry{
			ID: entryID, TaskID: taskID, FromState: fromStatus, ToState: toStatus,
			ActorID: actorID, Notes: notes, ChangedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return task, entry, nil
}

func (s *SQLiteStore) projectIDForTaskTx(tx *sql.Tx, taskID int64) (int64, error) {
	var projectID int64
	err := tx.QueryRow(`
		SELECT e.project_id FROM tasks t
		JOIN features f ON f.id = t.feature_id
		JOIN epics e ON e.id = f.epic_id
		WHERE t.id = ?`, taskID).Scan(&projectID)
	if err == sql.ErrNoRows {
		return 0, types.NewError(types.ErrNotFound, fmt.Sprintf("task %d not found", taskID))
	}
	return projectID, err
}

// AppendTaskNote is the supplemented comment operation: it appends to
// the notes log (distinct from TransitionTask's replace-on-transition
// handling of notes) and derives mentions from the comment text with
// the task as source.
func (s *SQLiteStore) AppendTaskNote(taskID int64, actorID, text string) (*types.Task, error) {
	var task *types.Task
	err := s.withTx(func(tx *sql.Tx) error {
		var err error
		task, err = s.getTaskTx(tx, taskID)
		if err != nil {
			return err
		}

		stamp := time.Now().Format(time.RFC3339)
		appended := task.Notes
		if appended != "" {
			appended += "\n"
		}
		appended += fmt.Sprintf("[%s] %s: %s", stamp, actorID, text)

		if _, err := tx.Exec(`UPDATE tasks SET notes = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, appended, taskID); err != nil {
			return fmt.Errorf("failed to append note: %w", err)
		}

		if err := insertMentionsTx(tx, types.MentionSourceTask, taskID, actorID, text); err != nil {
			return err
		}

		task, err = s.getTaskTx(tx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// insertMentionsTx derives and persists mention rows for newly-created or
// updated content from source. Shared between task comments and documents.
func insertMentionsTx(tx *sql.Tx, kind types.MentionSourceKind, sourceID int64, creatingID, text string) error {
	ids := mentions.ExtractSlice(text)
	for _, mentioned := range ids {
		if _, err := tx.Exec(`
			INSERT INTO mentions (source_kind, source_id, mentioned_id, creating_id, read)
			VALUES (?, ?, ?, ?, 0)`, string(kind), sourceID, mentioned, creatingID); err != nil {
			return fmt.Errorf("failed to insert mention: %w", err)
		}
	}
	return nil
}
