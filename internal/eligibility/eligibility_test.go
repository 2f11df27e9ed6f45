package eligibility

import (
	"path/filepath"
	"testing"

	"github.com/fleetforge/coordinator/internal/store"
	"github.com/fleetforge/coordinator/internal/types"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "coordinator.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTask(t *testing.T, s *store.SQLiteStore, projectID int64, role types.AgentRole, difficulty types.SkillLevel, status types.TaskStatus) *types.Task {
	t.Helper()
	if _, err := s.UpsertAgent(&types.Agent{
		ID: "pm_001", ProjectID: projectID, Role: types.RoleProjectPM, Level: types.LevelPrincipal, ConnectionKind: types.ConnDirect,
	}); err != nil {
		t.Fatalf("UpsertAgent(pm_001) error = %v", err)
	}
	epic, err := s.CreateEpic(projectID, "epic")
	if err != nil {
		t.Fatalf("CreateEpic() error = %v", err)
	}
	feature, err := s.CreateFeature(epic.ID, "feature")
	if err != nil {
		t.Fatalf("CreateFeature() error = %v", err)
	}
	task, err := s.CreateTask(&types.Task{
		FeatureID: feature.ID, Title: "task", CreatorID: "pm_001",
		TargetRole: role, Difficulty: difficulty,
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if status != types.StatusCreated {
		if _, _, err := s.TransitionTask(task.ID, status, "pm_001", ""); err != nil {
			t.Fatalf("TransitionTask() error = %v", err)
		}
		task, _ = s.GetTask(task.ID)
	}
	return task
}

func TestEligibleIgnoresTargetRoleForQA(t *testing.T) {
	s := newTestStore(t)
	p, err := s.CreateProject("demo", "/s", "/i", "/d")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	seedTask(t, s, p.ID, types.RoleBackendDev, types.LevelJunior, types.StatusCreated)
	qaTask := seedTask(t, s, p.ID, types.RoleFrontendDev, types.LevelJunior, types.StatusDevDone)

	r := New(s, DefaultActiveWindow)
	tasks, err := r.Eligible(p.ID, types.RoleQA, types.LevelJunior)
	if err != nil {
		t.Fatalf("Eligible() error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != qaTask.ID {
		t.Fatalf("Eligible() = %v, want [%d]", tasks, qaTask.ID)
	}
}

func TestEligibleFallsBackToSeniorLevelWhenNoPrincipalActive(t *testing.T) {
	s := newTestStore(t)
	p, err := s.CreateProject("demo", "/s", "/i", "/d")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	principalTask := seedTask(t, s, p.ID, types.RoleBackendDev, types.LevelPrincipal, types.StatusCreated)

	r := New(s, DefaultActiveWindow)
	tasks, err := r.Eligible(p.ID, types.RoleBackendDev, types.LevelSenior)
	if err != nil {
		t.Fatalf("Eligible() error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != principalTask.ID {
		t.Fatalf("expected senior to fall back to principal task when none active, got %v", tasks)
	}
}

func TestEligibleWithholdsFallbackWhenPrincipalIsActive(t *testing.T) {
	s := newTestStore(t)
	p, err := s.CreateProject("demo", "/s", "/i", "/d")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	seedTask(t, s, p.ID, types.RoleBackendDev, types.LevelPrincipal, types.StatusCreated)
	if _, err := s.UpsertAgent(&types.Agent{
		ID: "backend_dev_principal_001", ProjectID: p.ID,
		Role: types.RoleBackendDev, Level: types.LevelPrincipal, ConnectionKind: types.ConnDirect,
	}); err != nil {
		t.Fatalf("UpsertAgent() error = %v", err)
	}

	r := New(s, DefaultActiveWindow)
	tasks, err := r.Eligible(p.ID, types.RoleBackendDev, types.LevelSenior)
	if err != nil {
		t.Fatalf("Eligible() error = %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no fallback tasks while a principal is active, got %v", tasks)
	}
}

func TestEligibleScopesByProject(t *testing.T) {
	s := newTestStore(t)
	p1, err := s.CreateProject("one", "/s1", "/i1", "/d1")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	p2, err := s.CreateProject("two", "/s2", "/i2", "/d2")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	seedTask(t, s, p1.ID, types.RoleBackendDev, types.LevelJunior, types.StatusCreated)

	r := New(s, DefaultActiveWindow)
	tasks, err := r.Eligible(p2.ID, types.RoleBackendDev, types.LevelJunior)
	if err != nil {
		t.Fatalf("Eligible() error = %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected project 2 to have no eligible tasks, got %v", tasks)
	}
}
