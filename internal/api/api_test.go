package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/fleetforge/coordinator/internal/changefeed"
	"github.com/fleetforge/coordinator/internal/dispatch"
	"github.com/fleetforge/coordinator/internal/eligibility"
	"github.com/fleetforge/coordinator/internal/lock"
	"github.com/fleetforge/coordinator/internal/reaper"
	"github.com/fleetforge/coordinator/internal/store"
	"github.com/fleetforge/coordinator/internal/taskflow"
	"github.com/fleetforge/coordinator/internal/types"
)

func setupRouter(t *testing.T) (*mux.Router, store.Store, int64) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	proj, err := s.CreateProject("widgets", "/shared", "/instructions", "/docs")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	epic, err := s.CreateEpic(proj.ID, "epic one")
	if err != nil {
		t.Fatalf("CreateEpic() error = %v", err)
	}
	feature, err := s.CreateFeature(epic.ID, "feature one")
	if err != nil {
		t.Fatalf("CreateFeature() error = %v", err)
	}
	if _, err := s.CreateTask(&types.Task{
		FeatureID:  feature.ID,
		Title:      "build the widget",
		CreatorID:  "pm1",
		TargetRole: types.RoleBackendDev,
		Difficulty: types.LevelJunior,
		TaskType:   types.TaskRegular,
		Status:     types.StatusCreated,
	}); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	e := eligibility.New(s, time.Hour)
	rp := reaper.New(s, time.Hour, time.Hour)
	d := dispatch.New(e, rp, 10*time.Millisecond)
	a := lock.New(s)
	f := taskflow.New(s, e)
	cf := changefeed.New(s)

	h := New(s, e, f, d, a, cf)
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r, s, proj.ID
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRegisterAgentReturnsEligibleTask(t *testing.T) {
	router, _, projectID := setupRouter(t)

	rr := doJSON(t, router, "POST", "/agents/register", registerAgentRequest{
		AgentID: "agent1", ProjectID: projectID,
		Role: "backend-dev", Level: "junior", ConnectionKind: "direct",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp registerAgentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.NextTask == nil || resp.NextTask.IsWaitingToken() {
		t.Errorf("expected a real eligible task, got %+v", resp.NextTask)
	}
}

func TestRegisterAgentRejectsUnknownRole(t *testing.T) {
	router, _, projectID := setupRouter(t)

	rr := doJSON(t, router, "POST", "/agents/register", registerAgentRequest{
		AgentID: "agent1", ProjectID: projectID,
		Role: "not-a-role", Level: "junior", ConnectionKind: "direct",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestLockThenConflictingSecondLock(t *testing.T) {
	router, s, projectID := setupRouter(t)

	for _, id := range []string{"agentA", "agentB"} {
		if _, err := s.UpsertAgent(&types.Agent{ID: id, ProjectID: projectID, Role: types.RoleBackendDev, Level: types.LevelJunior, ConnectionKind: types.ConnDirect, Status: types.AgentIdle}); err != nil {
			t.Fatalf("UpsertAgent(%s) error = %v", id, err)
		}
	}

	rr := doJSON(t, router, "POST", "/tasks/1/lock", lockTaskRequest{AgentID: "agentA"})
	if rr.Code != http.StatusOK {
		t.Fatalf("first lock status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr2 := doJSON(t, router, "POST", "/tasks/1/lock", lockTaskRequest{AgentID: "agentB"})
	if rr2.Code != http.StatusConflict {
		t.Errorf("second lock status = %d, want 409, body = %s", rr2.Code, rr2.Body.String())
	}
}

func TestUpdateStatusReturnsWorkflowStatus(t *testing.T) {
	router, s, projectID := setupRouter(t)
	if _, err := s.UpsertAgent(&types.Agent{ID: "agentA", ProjectID: projectID, Role: types.RoleBackendDev, Level: types.LevelJunior, ConnectionKind: types.ConnDirect, Status: types.AgentIdle}); err != nil {
		t.Fatalf("UpsertAgent() error = %v", err)
	}
	if rr := doJSON(t, router, "POST", "/tasks/1/lock", lockTaskRequest{AgentID: "agentA"}); rr.Code != http.StatusOK {
		t.Fatalf("lock status = %d", rr.Code)
	}

	rr := doJSON(t, router, "PUT", "/tasks/1/status", updateStatusRequest{Status: "qa_done", ActorID: "agentA"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp updateStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != types.WorkflowNoTasks {
		t.Errorf("workflow_status = %q, want %q", resp.Status, types.WorkflowNoTasks)
	}
}

func TestManuallyCompleteRequiresProjectPM(t *testing.T) {
	router, s, projectID := setupRouter(t)
	if _, err := s.UpsertAgent(&types.Agent{ID: "dev1", ProjectID: projectID, Role: types.RoleBackendDev, Level: types.LevelJunior, ConnectionKind: types.ConnDirect, Status: types.AgentIdle}); err != nil {
		t.Fatalf("UpsertAgent() error = %v", err)
	}

	rr := doJSON(t, router, "POST", "/tasks/1/complete", manuallyCompleteRequest{TargetStatus: "committed", ActorID: "dev1"})
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403, body = %s", rr.Code, rr.Body.String())
	}

	if _, err := s.UpsertAgent(&types.Agent{ID: "pm1", ProjectID: projectID, Role: types.RoleProjectPM, Level: types.LevelSenior, ConnectionKind: types.ConnDirect, Status: types.AgentIdle}); err != nil {
		t.Fatalf("UpsertAgent() error = %v", err)
	}
	rr2 := doJSON(t, router, "POST", "/tasks/1/complete", manuallyCompleteRequest{TargetStatus: "committed", ActorID: "pm1"})
	if rr2.Code != http.StatusOK {
		t.Errorf("status = %d, want 200, body = %s", rr2.Code, rr2.Body.String())
	}
}

func TestDeleteTaskRequiresUIAdmin(t *testing.T) {
	router, s, projectID := setupRouter(t)
	if _, err := s.UpsertAgent(&types.Agent{ID: "dev1", ProjectID: projectID, Role: types.RoleBackendDev, Level: types.LevelJunior, ConnectionKind: types.ConnDirect, Status: types.AgentIdle}); err != nil {
		t.Fatalf("UpsertAgent() error = %v", err)
	}

	rr := doJSON(t, router, "DELETE", "/tasks/1", deleteTaskRequest{ActorID: "dev1"})
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403, body = %s", rr.Code, rr.Body.String())
	}
	if _, err := s.GetTask(1); err != nil {
		t.Errorf("task should still exist after forbidden delete, GetTask() error = %v", err)
	}

	if _, err := s.UpsertAgent(&types.Agent{ID: "admin1", ProjectID: projectID, Role: types.RoleUIAdmin, Level: types.LevelSenior, ConnectionKind: types.ConnUI, Status: types.AgentIdle}); err != nil {
		t.Fatalf("UpsertAgent() error = %v", err)
	}
	rr2 := doJSON(t, router, "DELETE", "/tasks/1", deleteTaskRequest{ActorID: "admin1"})
	if rr2.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204, body = %s", rr2.Code, rr2.Body.String())
	}
	if _, err := s.GetTask(1); err == nil {
		t.Error("expected task to be gone after force-delete")
	}
}

func TestPollChangesReturnsTaskCreationEventInitially(t *testing.T) {
	router, _, projectID := setupRouter(t)

	req := httptest.NewRequest("GET", "/changes?project_id="+strconv.FormatInt(projectID, 10), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Events []*types.ChangeEvent `json:"events"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].Type != types.EventTaskUpdated {
		t.Errorf("expected the seeded task's creation event, got %+v", resp.Events)
	}
}

func TestServiceRegisterHeartbeatUnregister(t *testing.T) {
	router, _, projectID := setupRouter(t)

	rr := doJSON(t, router, "POST", "/services/register", registerServiceRequest{
		ProjectID: projectID, Name: "web", OwnerAgentID: "agent1", PingURL: "http://localhost:9000/health",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr2 := doJSON(t, router, "POST", "/services/web/heartbeat?project_id="+strconv.FormatInt(projectID, 10), nil)
	if rr2.Code != http.StatusOK {
		t.Fatalf("heartbeat status = %d, body = %s", rr2.Code, rr2.Body.String())
	}

	req := httptest.NewRequest("DELETE", "/services/web?project_id="+strconv.FormatInt(projectID, 10), nil)
	rr3 := httptest.NewRecorder()
	router.ServeHTTP(rr3, req)
	if rr3.Code != http.StatusNoContent {
		t.Errorf("unregister status = %d, want 204", rr3.Code)
	}
}
