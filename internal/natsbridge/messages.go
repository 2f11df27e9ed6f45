package natsbridge

import "time"

// Subject constants for every request-reply operation this bridge
// exposes. All of them expect a reply subject (request semantics); each
// is subscribed with QueueSubscribe on WorkerQueueGroup — see bridge.go.
const (
	SubjectAgentRegister     = "coordinator.agents.register"
	SubjectTaskNext          = "coordinator.tasks.next"
	SubjectTaskLock          = "coordinator.tasks.lock"
	SubjectTaskStatus        = "coordinator.tasks.status"
	SubjectTaskComment       = "coordinator.tasks.comment"
	SubjectTaskAssign        = "coordinator.tasks.assign"
	SubjectTaskComplete      = "coordinator.tasks.complete"
	SubjectChangesPoll       = "coordinator.changes.poll"
	SubjectServiceRegister   = "coordinator.services.register"
	SubjectServiceHeartbeat  = "coordinator.services.heartbeat"
	SubjectServiceUnregister = "coordinator.services.unregister"
)

// WorkerQueueGroup load-balances requests across every coordinatord
// instance connected to the same NATS server, mirroring the teacher's
// "tool-workers" queue group for its tool-call subject.
const WorkerQueueGroup = "coordinator-workers"

type errorResponse struct {
	Error string `json:"error"`
}

type registerAgentRequest struct {
	AgentID        string `json:"agent_id"`
	ProjectID      int64  `json:"project_id"`
	Role           string `json:"role"`
	Level          string `json:"level"`
	ConnectionKind string `json:"connection_kind"`
}

type nextTaskRequest struct {
	ProjectID int64  `json:"project_id"`
	Role      string `json:"role"`
	Level     string `json:"level"`
	AgentID   string `json:"agent_id"`
	TimeoutMS int64  `json:"timeout_ms"`
}

type lockTaskRequest struct {
	TaskID  int64  `json:"task_id"`
	AgentID string `json:"agent_id"`
}

type updateStatusRequest struct {
	TaskID  int64  `json:"task_id"`
	Status  string `json:"status"`
	ActorID string `json:"actor_id"`
	Notes   string `json:"notes,omitempty"`
}

type addCommentRequest struct {
	TaskID  int64  `json:"task_id"`
	ActorID string `json:"actor_id"`
	Text    string `json:"text"`
}

type assignTaskRequest struct {
	TaskID        int64  `json:"task_id"`
	TargetAgentID string `json:"target_agent_id"`
	AssignerID    string `json:"assigner_id"`
}

type manuallyCompleteRequest struct {
	TaskID       int64  `json:"task_id"`
	TargetStatus string `json:"target_status"`
	ActorID      string `json:"actor_id"`
}

type pollChangesRequest struct {
	ProjectID int64     `json:"project_id"`
	Since     time.Time `json:"since"`
}

type registerServiceRequest struct {
	ProjectID    int64  `json:"project_id"`
	Name         string `json:"name"`
	OwnerAgentID string `json:"owner_agent_id"`
	PingURL      string `json:"ping_url"`
	Port         *int   `json:"port,omitempty"`
	Metadata     string `json:"metadata,omitempty"`
}

type serviceNameRequest struct {
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
}
