package types

import (
	"strconv"
	"strings"
	"time"

	"github.com/fleetforge/coordinator/internal/stringutils"
)

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// AgentRole is the specialization a dispatched task targets.
type AgentRole string

const (
	RoleFrontendDev AgentRole = "frontend-dev"
	RoleBackendDev  AgentRole = "backend-dev"
	RoleQA          AgentRole = "qa"
	RoleArchitect   AgentRole = "architect"
	RoleProjectPM   AgentRole = "project-pm"
	RoleUIAdmin     AgentRole = "ui-admin"
)

// NormalizeRole lowercases and maps the legacy "pm" alias to project-pm.
func NormalizeRole(raw string) (AgentRole, bool) {
	switch lower(raw) {
	case string(RoleFrontendDev):
		return RoleFrontendDev, true
	case string(RoleBackendDev):
		return RoleBackendDev, true
	case string(RoleQA):
		return RoleQA, true
	case string(RoleArchitect):
		return RoleArchitect, true
	case string(RoleProjectPM), "pm":
		return RoleProjectPM, true
	case string(RoleUIAdmin):
		return RoleUIAdmin, true
	default:
		return "", false
	}
}

// SkillLevel is ordered junior < senior < principal; the ordering drives
// the eligibility resolver's fallback rule.
type SkillLevel string

const (
	LevelJunior    SkillLevel = "junior"
	LevelSenior    SkillLevel = "senior"
	LevelPrincipal SkillLevel = "principal"
)

// skillHierarchy is the canonical ordering referenced by the eligibility
// resolver's fallback computation (lowest index = least senior).
var skillHierarchy = []SkillLevel{LevelJunior, LevelSenior, LevelPrincipal}

// Index returns the level's position in the hierarchy, or -1 if invalid.
func (l SkillLevel) Index() int {
	for i, h := range skillHierarchy {
		if h == l {
			return i
		}
	}
	return -1
}

// NormalizeSkillLevel lowercases and validates against the canonical set.
func NormalizeSkillLevel(raw string) (SkillLevel, bool) {
	l := SkillLevel(lower(raw))
	if l.Index() < 0 {
		return "", false
	}
	return l, true
}

// SkillLevelsAbove returns every level with a strictly higher hierarchy
// index than l, in ascending order.
func SkillLevelsAbove(l SkillLevel) []SkillLevel {
	var out []SkillLevel
	for _, h := range skillHierarchy[l.Index()+1:] {
		out = append(out, h)
	}
	return out
}

// SkillLevelsAtOrBelow returns every level with hierarchy index <= l's.
func SkillLevelsAtOrBelow(l SkillLevel) []SkillLevel {
	out := make([]SkillLevel, l.Index()+1)
	copy(out, skillHierarchy[:l.Index()+1])
	return out
}

// ConnectionKind describes how an agent reaches the coordinator.
type ConnectionKind string

const (
	ConnDirect            ConnectionKind = "direct"
	ConnProtocolMediated  ConnectionKind = "protocol-mediated"
	ConnUI                ConnectionKind = "ui"
)

func NormalizeConnectionKind(raw string) (ConnectionKind, bool) {
	switch lower(raw) {
	case string(ConnDirect):
		return ConnDirect, true
	case string(ConnProtocolMediated):
		return ConnProtocolMediated, true
	case string(ConnUI):
		return ConnUI, true
	default:
		return "", false
	}
}

// AgentStatus is the agent's current activity state.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentWorking AgentStatus = "working"
	AgentOffline AgentStatus = "offline"
)

// Agent is a working participant registered within a project.
type Agent struct {
	ID             string         `json:"id"`
	ProjectID      int64          `json:"project_id"`
	Role           AgentRole      `json:"role"`
	Level          SkillLevel     `json:"level"`
	ConnectionKind ConnectionKind `json:"connection_kind"`
	Status         AgentStatus    `json:"status"`
	CurrentTaskID  *int64         `json:"current_task_id,omitempty"`
	LastSeen       time.Time      `json:"last_seen"`
	LastActivity   time.Time      `json:"last_activity"`
	CreatedAt      time.Time      `json:"created_at"`
}

// TaskStatus is the task lifecycle state. Ordered CREATED .. COMMITTED.
type TaskStatus string

const (
	StatusCreated            TaskStatus = "created"
	StatusUnderWork          TaskStatus = "under_work"
	StatusDevDone            TaskStatus = "dev_done"
	StatusQADone             TaskStatus = "qa_done"
	StatusDocumentationDone  TaskStatus = "documentation_done"
	StatusCommitted          TaskStatus = "committed"
)

// NormalizeTaskStatus lowercases and maps the legacy aliases
// "evaluation" -> qa_done and "approved" -> committed.
func NormalizeTaskStatus(raw string) (TaskStatus, bool) {
	switch lower(raw) {
	case string(StatusCreated):
		return StatusCreated, true
	case string(StatusUnderWork):
		return StatusUnderWork, true
	case string(StatusDevDone):
		return StatusDevDone, true
	case string(StatusQADone), "evaluation":
		return StatusQADone, true
	case string(StatusDocumentationDone):
		return StatusDocumentationDone, true
	case string(StatusCommitted), "approved":
		return StatusCommitted, true
	default:
		return "", false
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s TaskStatus) IsTerminal() bool { return s == StatusCommitted }

// TaskDifficulty is an alias of SkillLevel: a task's difficulty uses the
// same three values and ordering as an agent's level.
type TaskDifficulty = SkillLevel

// TaskComplexity is an orthogonal size hint, not used in eligibility.
type TaskComplexity string

const (
	ComplexityMinor TaskComplexity = "minor"
	ComplexityMajor TaskComplexity = "major"
)

func NormalizeComplexity(raw string) (TaskComplexity, bool) {
	switch lower(raw) {
	case string(ComplexityMinor):
		return ComplexityMinor, true
	case string(ComplexityMajor):
		return ComplexityMajor, true
	default:
		return "", false
	}
}

// TaskType distinguishes auto-dispatched work from explicitly assigned
// management work and the synthetic waiting token.
type TaskType string

const (
	TaskRegular    TaskType = "regular"
	TaskManagement TaskType = "management"
	TaskWaiting    TaskType = "waiting"
)

func NormalizeTaskType(raw string) (TaskType, bool) {
	switch lower(raw) {
	case string(TaskRegular):
		return TaskRegular, true
	case string(TaskManagement):
		return TaskManagement, true
	case string(TaskWaiting):
		return TaskWaiting, true
	default:
		return "", false
	}
}

// Task is a unit of work scoped to a project through Feature -> Epic.
type Task struct {
	ID            int64          `json:"id"`
	FeatureID     int64          `json:"feature_id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	CreatorID     string         `json:"creator_id"`
	TargetRole    AgentRole      `json:"target_role"`
	Difficulty    TaskDifficulty `json:"difficulty"`
	Complexity    TaskComplexity `json:"complexity"`
	TaskType      TaskType       `json:"task_type"`
	Branch        string         `json:"branch"`
	Status        TaskStatus     `json:"status"`
	LockHolder    *string        `json:"lock_holder,omitempty"`
	LockTimestamp *time.Time     `json:"lock_timestamp,omitempty"`
	Notes         string         `json:"notes"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsWaitingToken reports whether this is the dispatcher's synthetic
// non-persisted result rather than a real row.
func (t *Task) IsWaitingToken() bool { return t.ID < 0 }

// EnsureBranch fills Branch with a deterministic slug derived from the
// task id and title when the caller left it blank.
func (t *Task) EnsureBranch() {
	if t.Branch != "" {
		return
	}
	t.Branch = stringutils.Slugify(t.Title, t.ID)
}

// ChangelogEntry is an immutable audit record of a status transition.
type ChangelogEntry struct {
	ID        int64      `json:"id"`
	TaskID    int64      `json:"task_id"`
	FromState TaskStatus `json:"from_status"`
	ToState   TaskStatus `json:"to_status"`
	ActorID   string     `json:"actor_id"`
	Notes     string     `json:"notes,omitempty"`
	ChangedAt time.Time  `json:"changed_at"`
}

// Epic and Feature exist only as the scoping path between Project and
// Task; neither carries behavior beyond that join.
type Epic struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type Feature struct {
	ID        int64     `json:"id"`
	EpicID    int64     `json:"epic_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ServiceStatus tracks externally runnable agent-owned services.
type ServiceStatus string

const (
	ServiceUp       ServiceStatus = "up"
	ServiceDown     ServiceStatus = "down"
	ServiceStarting ServiceStatus = "starting"
)

type Service struct {
	ID               int64         `json:"id"`
	ProjectID        int64         `json:"project_id"`
	Name             string        `json:"name"`
	OwnerAgentID     string        `json:"owner_agent_id"`
	PingURL          string        `json:"ping_url"`
	Port             *int          `json:"port,omitempty"`
	Status           ServiceStatus `json:"status"`
	LastHeartbeatAt  *time.Time    `json:"last_heartbeat_at,omitempty"`
	LastPingAt       *time.Time    `json:"last_ping_at,omitempty"`
	LastPingSuccess  bool          `json:"last_ping_success"`
	Metadata         string        `json:"metadata,omitempty"`
}

// WaitingToken constructs the dispatcher's bit-exact synthetic result:
// negative id, task-type waiting, status under_work, locked by the caller.
func WaitingToken(role AgentRole, lockedBy string, pollIntervalSeconds int) *Task {
	now := time.Now()
	return &Task{
		ID:            -1,
		Title:         "Monitoring for new " + string(role) + " tasks",
		TargetRole:    role,
		Status:        StatusUnderWork,
		TaskType:      TaskWaiting,
		LockHolder:    &lockedBy,
		LockTimestamp: &now,
		Notes:         pollIntervalNote(pollIntervalSeconds),
	}
}

func pollIntervalNote(seconds int) string {
	return "poll_interval=" + strconv.Itoa(seconds)
}
