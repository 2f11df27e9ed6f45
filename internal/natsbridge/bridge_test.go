package natsbridge

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetforge/coordinator/internal/changefeed"
	"github.com/fleetforge/coordinator/internal/dispatch"
	"github.com/fleetforge/coordinator/internal/eligibility"
	"github.com/fleetforge/coordinator/internal/lock"
	"github.com/fleetforge/coordinator/internal/reaper"
	"github.com/fleetforge/coordinator/internal/store"
	"github.com/fleetforge/coordinator/internal/taskflow"
	"github.com/fleetforge/coordinator/internal/types"
)

// setupBridge starts an embedded NATS server on a fixed test port, a
// store-backed Bridge subscribed to it, and a plain client for sending
// requests, mirroring internal/nats's embedded-server test pattern.
func setupBridge(t *testing.T) (*Client, store.Store, int64) {
	t.Helper()

	srv, err := NewEmbeddedServer(EmbeddedServerConfig{Port: 18422})
	if err != nil {
		t.Fatalf("NewEmbeddedServer() error = %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("srv.Start() error = %v", err)
	}
	t.Cleanup(srv.Shutdown)

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	proj, err := s.CreateProject("widgets", "/shared", "/instructions", "/docs")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	epic, _ := s.CreateEpic(proj.ID, "epic one")
	feature, _ := s.CreateFeature(epic.ID, "feature one")
	if _, err := s.CreateTask(&types.Task{
		FeatureID: feature.ID, Title: "build the widget", CreatorID: "pm1",
		TargetRole: types.RoleBackendDev, Difficulty: types.LevelJunior,
		TaskType: types.TaskRegular, Status: types.StatusCreated,
	}); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	e := eligibility.New(s, time.Hour)
	rp := reaper.New(s, time.Hour, time.Hour)
	d := dispatch.New(e, rp, 10*time.Millisecond)
	a := lock.New(s)
	f := taskflow.New(s, e)
	cf := changefeed.New(s)

	serverClient, err := NewClient(srv.URL())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(serverClient.Close)

	bridge := New(serverClient, s, e, f, d, a, cf)
	if err := bridge.Start(); err != nil {
		t.Fatalf("bridge.Start() error = %v", err)
	}
	t.Cleanup(bridge.Stop)

	callerClient, err := NewClient(srv.URL())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(callerClient.Close)

	return callerClient, s, proj.ID
}

func request(t *testing.T, c *Client, subject string, req, resp interface{}) {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	msg, err := c.conn.Request(subject, data, 2*time.Second)
	if err != nil {
		t.Fatalf("request to %s failed: %v", subject, err)
	}
	if err := json.Unmarshal(msg.Data, resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
}

func TestRegisterAgentOverNATSReturnsEligibleTask(t *testing.T) {
	client, _, projectID := setupBridge(t)

	var resp struct {
		Agent    *types.Agent `json:"agent"`
		NextTask *types.Task  `json:"next_task"`
	}
	request(t, client, SubjectAgentRegister, registerAgentRequest{
		AgentID: "agent1", ProjectID: projectID, Role: "backend-dev", Level: "junior", ConnectionKind: "protocol-mediated",
	}, &resp)

	if resp.Agent == nil || resp.Agent.ID != "agent1" {
		t.Fatalf("unexpected agent in response: %+v", resp.Agent)
	}
	if resp.NextTask == nil || resp.NextTask.IsWaitingToken() {
		t.Errorf("expected a real eligible task, got %+v", resp.NextTask)
	}
}

func TestLockTaskOverNATSThenConflict(t *testing.T) {
	client, s, projectID := setupBridge(t)
	for _, id := range []string{"agentA", "agentB"} {
		if _, err := s.UpsertAgent(&types.Agent{ID: id, ProjectID: projectID, Role: types.RoleBackendDev, Level: types.LevelJunior, ConnectionKind: types.ConnProtocolMediated, Status: types.AgentIdle}); err != nil {
			t.Fatalf("UpsertAgent(%s) error = %v", id, err)
		}
	}

	var task types.Task
	request(t, client, SubjectTaskLock, lockTaskRequest{TaskID: 1, AgentID: "agentA"}, &task)
	if task.LockHolder == nil || *task.LockHolder != "agentA" {
		t.Fatalf("expected task locked by agentA, got %+v", task)
	}

	var errResp errorResponse
	request(t, client, SubjectTaskLock, lockTaskRequest{TaskID: 1, AgentID: "agentB"}, &errResp)
	if errResp.Error == "" {
		t.Error("expected an error reply for the conflicting lock")
	}
}

func TestPollChangesOverNATS(t *testing.T) {
	client, _, projectID := setupBridge(t)

	var resp struct {
		Events          []*types.ChangeEvent `json:"events"`
		LatestTimestamp time.Time            `json:"latest_timestamp"`
	}
	request(t, client, SubjectChangesPoll, pollChangesRequest{ProjectID: projectID}, &resp)
	if len(resp.Events) != 1 || resp.Events[0].Type != types.EventTaskUpdated {
		t.Fatalf("expected the seeded task's creation event, got %+v", resp.Events)
	}
	if resp.LatestTimestamp.IsZero() {
		t.Error("expected latest_timestamp to advance past the zero cursor")
	}
}
