package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fleetforge/coordinator/internal/types"
)

// UpsertAgent registers a new agent or silently refreshes an existing
// one's last-seen/connection-kind, per the register-or-refresh lifecycle.
func (s *SQLiteStore) UpsertAgent(agent *types.Agent) (*types.Agent, error) {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO agents (agent_id, project_id, role, level, connection_kind, status, current_task_id, last_seen, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, project_id) DO UPDATE SET
			role = excluded.role,
			level = excluded.level,
			connection_kind = excluded.connection_kind,
			last_seen = excluded.last_seen`,
		agent.ID, agent.ProjectID, string(agent.Role), string(agent.Level), string(agent.ConnectionKind),
		string(types.AgentIdle), nullInt64(agent.CurrentTaskID), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert agent: %w", err)
	}
	return s.GetAgent(agent.ProjectID, agent.ID)
}

func (s *SQLiteStore) GetAgent(projectID int64, agentID string) (*types.Agent, error) {
	row := s.db.QueryRow(`
		SELECT agent_id, project_id, role, level, connection_kind, status, current_task_id, last_seen, last_activity, created_at
		FROM agents WHERE project_id = ? AND agent_id = ?`, projectID, agentID)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("agent %q not registered", agentID))
	}
	return a, err
}

func scanAgent(row scannable) (*types.Agent, error) {
	var a types.Agent
	var role, level, conn, status string
	var currentTask sql.NullInt64
	if err := row.Scan(&a.ID, &a.ProjectID, &role, &level, &conn, &status, &currentTask, &a.LastSeen, &a.LastActivity, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Role = types.AgentRole(role)
	a.Level = types.SkillLevel(level)
	a.ConnectionKind = types.ConnectionKind(conn)
	a.Status = types.AgentStatus(status)
	a.CurrentTaskID = int64PtrFromNull(currentTask)
	return &a, nil
}

// CountActiveAgentsAtLevel implements the eligibility resolver's fallback
// check: how many agents of this exact role/level have been seen within
// the active window. Grounded on the stale-agent idiom's relative-time
// comparison, used here as a positive "seen recently" test instead.
func (s *SQLiteStore) CountActiveAgentsAtLevel(projectID int64, role types.AgentRole, level types.SkillLevel, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM agents
		WHERE project_id = ? AND role = ? AND level = ? AND last_seen >= ?`,
		projectID, string(role), string(level), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active agents: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) setAgentWorkingTx(tx *sql.Tx, projectID int64, agentID string, taskID int64, now time.Time) error {
	_, err := tx.Exec(`
		UPDATE agents SET status = ?, current_task_id = ?, last_activity = ?
		WHERE project_id = ? AND agent_id = ?`,
		string(types.AgentWorking), taskID, now, projectID, agentID)
	return err
}

func (s *SQLiteStore) setAgentIdleByTaskTx(tx *sql.Tx, taskID int64, now time.Time) error {
	_, err := tx.Exec(`
		UPDATE agents SET status = ?, current_task_id = NULL, last_activity = ?
		WHERE current_task_id = ?`,
		string(types.AgentIdle), now, taskID)
	return err
}
