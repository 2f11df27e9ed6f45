package taskflow

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/fleetforge/coordinator/internal/eligibility"
	"github.com/fleetforge/coordinator/internal/store"
	"github.com/fleetforge/coordinator/internal/types"
)

func setup(t *testing.T) (*store.SQLiteStore, *Flow, int64) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "coordinator.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	p, err := s.CreateProject("demo", "/s", "/i", "/d")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if _, err := s.UpsertAgent(&types.Agent{ID: "backend_dev_001", ProjectID: p.ID, Role: types.RoleBackendDev, Level: types.LevelJunior, ConnectionKind: types.ConnDirect}); err != nil {
		t.Fatalf("UpsertAgent() error = %v", err)
	}

	flow := New(s, eligibility.New(s, eligibility.DefaultActiveWindow))
	return s, flow, p.ID
}

func TestTransitionAcceptsLegacyStatusAlias(t *testing.T) {
	s, flow, p := setup(t)
	epic, _ := s.CreateEpic(p, "epic")
	feature, _ := s.CreateFeature(epic.ID, "feature")
	task, err := s.CreateTask(&types.Task{FeatureID: feature.ID, Title: "t", CreatorID: "backend_dev_001", TargetRole: types.RoleBackendDev, Difficulty: types.LevelJunior})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if _, err := s.LockTask(task.ID, "backend_dev_001"); err != nil {
		t.Fatalf("LockTask() error = %v", err)
	}

	result, err := flow.Transition(task.ID, "evaluation", "backend_dev_001", "")
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if result.Task.Status != types.StatusQADone {
		t.Errorf("Status = %s, want qa_done (legacy 'evaluation' alias)", result.Task.Status)
	}
}

func TestTransitionReturnsNoTasksWhenNoneEligible(t *testing.T) {
	s, flow, p := setup(t)
	epic, _ := s.CreateEpic(p, "epic")
	feature, _ := s.CreateFeature(epic.ID, "feature")
	task, err := s.CreateTask(&types.Task{FeatureID: feature.ID, Title: "t", CreatorID: "backend_dev_001", TargetRole: types.RoleBackendDev, Difficulty: types.LevelJunior})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if _, err := s.LockTask(task.ID, "backend_dev_001"); err != nil {
		t.Fatalf("LockTask() error = %v", err)
	}

	result, err := flow.Transition(task.ID, "dev_done", "backend_dev_001", "")
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if result.Status != types.WorkflowNoTasks {
		t.Errorf("Status = %s, want no-tasks", result.Status)
	}
}

func TestTransitionReturnsManagementForManagementTasks(t *testing.T) {
	s, flow, p := setup(t)
	epic, _ := s.CreateEpic(p, "epic")
	feature, _ := s.CreateFeature(epic.ID, "feature")
	task, err := s.CreateTask(&types.Task{
		FeatureID: feature.ID, Title: "t", CreatorID: "backend_dev_001",
		TargetRole: types.RoleBackendDev, Difficulty: types.LevelJunior, TaskType: types.TaskManagement,
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if _, err := s.AssignTask(task.ID, "backend_dev_001", "backend_dev_001"); err == nil {
		t.Fatalf("expected AssignTask to fail without a project-pm assigner")
	}

	result, err := flow.Transition(task.ID, "under_work", "backend_dev_001", "")
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if result.Status != types.WorkflowManagement {
		t.Errorf("Status = %s, want management", result.Status)
	}
}

func TestCommentAppendsWithoutReplacingNotes(t *testing.T) {
	s, flow, p := setup(t)
	epic, _ := s.CreateEpic(p, "epic")
	feature, _ := s.CreateFeature(epic.ID, "feature")
	task, err := s.CreateTask(&types.Task{FeatureID: feature.ID, Title: "t", CreatorID: "backend_dev_001", TargetRole: types.RoleBackendDev, Difficulty: types.LevelJunior})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if _, err := flow.Comment(task.ID, "backend_dev_001", "first note"); err != nil {
		t.Fatalf("Comment() error = %v", err)
	}
	updated, err := flow.Comment(task.ID, "backend_dev_001", "second note")
	if err != nil {
		t.Fatalf("Comment() error = %v", err)
	}
	if updated.Notes == "" {
		t.Fatal("expected non-empty notes after two comments")
	}
	if !strings.Contains(updated.Notes, "first note") || !strings.Contains(updated.Notes, "second note") {
		t.Errorf("expected both comments in notes, got %q", updated.Notes)
	}
}
