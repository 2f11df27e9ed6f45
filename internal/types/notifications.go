package types

import "time"

// DocumentType tags a project-scoped message's purpose.
type DocumentType string

const (
	DocStandup       DocumentType = "standup"
	DocCriticalIssue DocumentType = "critical-issue"
	DocServiceStatus DocumentType = "service-status"
	DocUpdate        DocumentType = "update"
)

func NormalizeDocumentType(raw string) (DocumentType, bool) {
	switch lower(raw) {
	case string(DocStandup):
		return DocStandup, true
	case string(DocCriticalIssue):
		return DocCriticalIssue, true
	case string(DocServiceStatus):
		return DocServiceStatus, true
	case string(DocUpdate):
		return DocUpdate, true
	default:
		return "", false
	}
}

const (
	DocumentTitleMaxLen   = 200
	DocumentContentMaxLen = 50000
)

// Document is a project-scoped message from which mentions are derived.
type Document struct {
	ID         int64        `json:"id"`
	ProjectID  int64        `json:"project_id"`
	Type       DocumentType `json:"type"`
	AuthorID   string       `json:"author_id"`
	Title      string       `json:"title"`
	Content    string       `json:"content"`
	Metadata   string       `json:"metadata,omitempty"`
	ExpiresAt  *time.Time   `json:"expires_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// MentionSourceKind distinguishes the two entities mentions derive from.
type MentionSourceKind string

const (
	MentionSourceDocument MentionSourceKind = "document"
	MentionSourceTask     MentionSourceKind = "task"
)

// Mention is an edge from a source (document or task) to a mentioned agent.
type Mention struct {
	ID            int64             `json:"id"`
	SourceKind    MentionSourceKind `json:"source_kind"`
	SourceID      int64             `json:"source_id"`
	MentionedID   string            `json:"mentioned_agent_id"`
	CreatingID    string            `json:"creating_agent_id"`
	Read          bool              `json:"read"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ChangeEventType tags the kind of row a Change Feed event describes.
type ChangeEventType string

const (
	EventDocumentCreated ChangeEventType = "document_created"
	EventDocumentUpdated ChangeEventType = "document_updated"
	EventTaskUpdated     ChangeEventType = "task_updated"
)

// ChangeEvent is one row of the Change Feed's merged, timestamp-sorted
// result across documents and the task changelog.
type ChangeEvent struct {
	Type      ChangeEventType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	ProjectID int64           `json:"project_id"`
	TaskID    int64           `json:"task_id,omitempty"`
	DocID     int64           `json:"document_id,omitempty"`
	OldStatus TaskStatus      `json:"old_status,omitempty"`
	NewStatus TaskStatus      `json:"new_status,omitempty"`
	ActorID   string          `json:"actor_id,omitempty"`
	Notes     string          `json:"notes,omitempty"`
}

// WSMessage envelopes a push to a dashboard websocket viewer.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	WSTypeChangeEvent = "change_event"
	WSTypeStateSync   = "state_sync"
)
