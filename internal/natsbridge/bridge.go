package natsbridge

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	nc "github.com/nats-io/nats.go"

	"github.com/fleetforge/coordinator/internal/changefeed"
	"github.com/fleetforge/coordinator/internal/dispatch"
	"github.com/fleetforge/coordinator/internal/eligibility"
	"github.com/fleetforge/coordinator/internal/lock"
	"github.com/fleetforge/coordinator/internal/store"
	"github.com/fleetforge/coordinator/internal/taskflow"
	"github.com/fleetforge/coordinator/internal/types"
)

// Bridge subscribes to every coordinator.* subject and delegates to the
// same core components internal/api uses, so HTTP and NATS clients see
// identical semantics.
type Bridge struct {
	client      *Client
	store       store.Store
	eligibility *eligibility.Resolver
	flow        *taskflow.Flow
	dispatcher  *dispatch.Dispatcher
	arbiter     *lock.Arbiter
	feed        *changefeed.Feed

	subsMu sync.Mutex
	subs   []*nc.Subscription
}

func New(client *Client, s store.Store, e *eligibility.Resolver, f *taskflow.Flow, d *dispatch.Dispatcher, a *lock.Arbiter, cf *changefeed.Feed) *Bridge {
	return &Bridge{client: client, store: s, eligibility: e, flow: f, dispatcher: d, arbiter: a, feed: cf}
}

// Start subscribes every operation's subject under the shared worker
// queue group, so running several coordinatord instances against the
// same NATS server load-balances requests rather than duplicating them.
func (b *Bridge) Start() error {
	subjects := map[string]func(*Message){
		SubjectAgentRegister:     b.handleRegisterAgent,
		SubjectTaskNext:          b.handleNextTask,
		SubjectTaskLock:          b.handleLockTask,
		SubjectTaskStatus:        b.handleUpdateStatus,
		SubjectTaskComment:       b.handleAddComment,
		SubjectTaskAssign:        b.handleAssignTask,
		SubjectTaskComplete:      b.handleManuallyComplete,
		SubjectChangesPoll:       b.handlePollChanges,
		SubjectServiceRegister:   b.handleRegisterService,
		SubjectServiceHeartbeat:  b.handleHeartbeatService,
		SubjectServiceUnregister: b.handleUnregisterService,
	}

	for subject, fn := range subjects {
		sub, err := b.client.QueueSubscribe(subject, WorkerQueueGroup, fn)
		if err != nil {
			return err
		}
		b.subsMu.Lock()
		b.subs = append(b.subs, sub)
		b.subsMu.Unlock()
	}

	log.Printf("[NATSBRIDGE] subscribed to %d subjects", len(subjects))
	return nil
}

func (b *Bridge) Stop() {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	b.subs = nil
}

func (b *Bridge) reply(subject string, v interface{}) {
	if subject == "" {
		return
	}
	if err := b.client.PublishJSON(subject, v); err != nil {
		log.Printf("[NATSBRIDGE] failed to send reply on %s: %v", subject, err)
	}
}

func (b *Bridge) replyError(subject string, err error) {
	b.reply(subject, errorResponse{Error: err.Error()})
}

func (b *Bridge) handleRegisterAgent(msg *Message) {
	var req registerAgentRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.replyError(msg.Reply, err)
		return
	}

	role, ok := types.NormalizeRole(req.Role)
	if !ok {
		b.replyError(msg.Reply, types.NewError(types.ErrInvalid, "unrecognized role: "+req.Role))
		return
	}
	level, ok := types.NormalizeSkillLevel(req.Level)
	if !ok {
		b.replyError(msg.Reply, types.NewError(types.ErrInvalid, "unrecognized level: "+req.Level))
		return
	}
	connKind, ok := types.NormalizeConnectionKind(req.ConnectionKind)
	if !ok {
		b.replyError(msg.Reply, types.NewError(types.ErrInvalid, "unrecognized connection_kind: "+req.ConnectionKind))
		return
	}

	agent, err := b.store.UpsertAgent(&types.Agent{
		ID: req.AgentID, ProjectID: req.ProjectID, Role: role, Level: level,
		ConnectionKind: connKind, Status: types.AgentIdle,
	})
	if err != nil {
		b.replyError(msg.Reply, err)
		return
	}

	next, err := b.eligibility.Eligible(req.ProjectID, role, level)
	if err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	var nextTask *types.Task
	if len(next) > 0 {
		nextTask = next[0]
	} else {
		const registerPollHintSeconds = 5
		nextTask = types.WaitingToken(role, req.AgentID, registerPollHintSeconds)
	}

	mentions, err := b.store.ListUnreadMentions(req.ProjectID, req.AgentID)
	if err != nil {
		b.replyError(msg.Reply, err)
		return
	}

	b.reply(msg.Reply, struct {
		Agent          *types.Agent     `json:"agent"`
		NextTask       *types.Task      `json:"next_task"`
		UnreadMentions []*types.Mention `json:"unread_mentions"`
	}{agent, nextTask, mentions})
}

func (b *Bridge) handleNextTask(msg *Message) {
	var req nextTaskRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	role, ok := types.NormalizeRole(req.Role)
	if !ok {
		b.replyError(msg.Reply, types.NewError(types.ErrInvalid, "unrecognized role: "+req.Role))
		return
	}
	level, ok := types.NormalizeSkillLevel(req.Level)
	if !ok {
		b.replyError(msg.Reply, types.NewError(types.ErrInvalid, "unrecognized level: "+req.Level))
		return
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout+dispatch.DefaultPollInterval)
		defer cancel()
	}

	task, err := b.dispatcher.NextTask(ctx, req.ProjectID, role, level, req.AgentID, timeout)
	if err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	b.reply(msg.Reply, task)
}

func (b *Bridge) handleLockTask(msg *Message) {
	var req lockTaskRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	task, err := b.arbiter.Claim(req.TaskID, req.AgentID)
	if err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	b.reply(msg.Reply, task)
}

func (b *Bridge) handleUpdateStatus(msg *Message) {
	var req updateStatusRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	result, err := b.flow.Transition(req.TaskID, req.Status, req.ActorID, req.Notes)
	if err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	b.reply(msg.Reply, struct {
		Task   *types.Task           `json:"task"`
		Next   *types.Task           `json:"next_task,omitempty"`
		Status types.WorkflowStatus  `json:"workflow_status"`
		Entry  *types.ChangelogEntry `json:"changelog_entry"`
	}{result.Task, result.Next, result.Status, result.Entry})
}

func (b *Bridge) handleAddComment(msg *Message) {
	var req addCommentRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	task, err := b.flow.Comment(req.TaskID, req.ActorID, req.Text)
	if err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	b.reply(msg.Reply, task)
}

func (b *Bridge) handleAssignTask(msg *Message) {
	var req assignTaskRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	task, err := b.arbiter.Assign(req.TaskID, req.TargetAgentID, req.AssignerID)
	if err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	b.reply(msg.Reply, task)
}

// handleManuallyComplete enforces the same project-pm check as
// internal/api: taskflow.Flow.ManuallyComplete is unconditional by
// design, so the privilege check has to happen at this boundary.
func (b *Bridge) handleManuallyComplete(msg *Message) {
	var req manuallyCompleteRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	targetStatus, ok := types.NormalizeTaskStatus(req.TargetStatus)
	if !ok {
		b.replyError(msg.Reply, types.NewError(types.ErrInvalid, "unrecognized target_status: "+req.TargetStatus))
		return
	}

	projectID, err := b.store.ProjectIDForTask(req.TaskID)
	if err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	actor, err := b.store.GetAgent(projectID, req.ActorID)
	if err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	if actor.Role != types.RoleProjectPM {
		b.replyError(msg.Reply, types.NewError(types.ErrForbidden, "only project-pm may manually complete a task"))
		return
	}

	task, _, err := b.flow.ManuallyComplete(req.TaskID, targetStatus, req.ActorID)
	if err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	b.reply(msg.Reply, task)
}

func (b *Bridge) handlePollChanges(msg *Message) {
	var req pollChangesRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	result := b.feed.Changes(req.ProjectID, req.Since)
	b.reply(msg.Reply, struct {
		Events          []*types.ChangeEvent `json:"events"`
		LatestTimestamp time.Time             `json:"latest_timestamp"`
	}{result.Events, result.LatestTimestamp})
}

func (b *Bridge) handleRegisterService(msg *Message) {
	var req registerServiceRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	svc, err := b.store.RegisterService(&types.Service{
		ProjectID: req.ProjectID, Name: req.Name, OwnerAgentID: req.OwnerAgentID,
		PingURL: req.PingURL, Port: req.Port, Status: types.ServiceStarting, Metadata: req.Metadata,
	})
	if err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	b.reply(msg.Reply, svc)
}

func (b *Bridge) handleHeartbeatService(msg *Message) {
	var req serviceNameRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	if err := b.store.HeartbeatService(req.ProjectID, req.Name); err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	b.reply(msg.Reply, map[string]string{"status": "ok"})
}

func (b *Bridge) handleUnregisterService(msg *Message) {
	var req serviceNameRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	if err := b.store.UnregisterService(req.ProjectID, req.Name); err != nil {
		b.replyError(msg.Reply, err)
		return
	}
	b.reply(msg.Reply, map[string]string{"status": "ok"})
}
