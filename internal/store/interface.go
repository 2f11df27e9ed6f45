package store

import (
	"time"

	"github.com/fleetforge/coordinator/internal/types"
)

// Store is the durable persistence boundary. Every method here either
// completes in one transaction or is a plain read; no caller is expected
// to coordinate multi-step writes itself (see lock/taskflow packages,
// which stay thin orchestration over these transactional primitives).
type Store interface {
	Close() error

	// Projects
	CreateProject(name, sharedPath, instructionsPath, docsPath string) (*types.Project, error)
	GetProject(id int64) (*types.Project, error)
	DeleteProject(id int64, force bool) error

	// Scoping hierarchy
	CreateEpic(projectID int64, title string) (*types.Epic, error)
	CreateFeature(epicID int64, title string) (*types.Feature, error)
	ProjectIDForTask(taskID int64) (int64, error)

	// Agents
	UpsertAgent(agent *types.Agent) (*types.Agent, error)
	GetAgent(projectID int64, agentID string) (*types.Agent, error)
	CountActiveAgentsAtLevel(projectID int64, role types.AgentRole, level types.SkillLevel, since time.Time) (int, error)

	// Tasks
	CreateTask(t *types.Task) (*types.Task, error)
	GetTask(id int64) (*types.Task, error)
	DeleteTask(id int64) error
	ListEligibleForQA(projectID int64) ([]*types.Task, error)
	ListEligibleForRole(projectID int64, role types.AgentRole, statuses []types.TaskStatus, difficulties []types.TaskDifficulty) ([]*types.Task, error)
	ListStaleLocks(cutoff time.Time) ([]*types.Task, error)
	ReleaseLock(taskID int64) error
	LockTask(taskID int64, agentID string) (*types.Task, error)
	AssignTask(taskID int64, targetAgentID, assignerID string) (*types.Task, error)
	TransitionTask(taskID int64, toStatus types.TaskStatus, actorID, notes string) (*types.Task, *types.ChangelogEntry, error)
	AppendTaskNote(taskID int64, actorID, text string) (*types.Task, error)

	// Changelog
	ListChangesSince(projectID int64, since time.Time) ([]*types.ChangelogEntry, error)

	// Documents
	CreateDocument(d *types.Document) (*types.Document, error)
	UpdateDocument(id int64, title, content, metadata string) (*types.Document, error)
	ListDocumentsCreatedSince(projectID int64, since time.Time) ([]*types.Document, error)
	ListDocumentsUpdatedSince(projectID int64, since time.Time) ([]*types.Document, error)

	// Mentions
	ListUnreadMentions(projectID int64, agentID string) ([]*types.Mention, error)
	MarkMentionsRead(projectID int64, agentID string) error

	// Services
	RegisterService(s *types.Service) (*types.Service, error)
	GetServiceByName(projectID int64, name string) (*types.Service, error)
	HeartbeatService(projectID int64, name string) error
	UnregisterService(projectID int64, name string) error
	ListServices(projectID int64) ([]*types.Service, error)
	ListAllServicesForProbing() ([]*types.Service, error)
	RecordProbeResult(serviceID int64, success bool, at time.Time) error
}
