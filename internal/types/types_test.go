package types

import (
	"encoding/json"
	"testing"
)

func TestNormalizeRole(t *testing.T) {
	cases := []struct {
		in   string
		want AgentRole
		ok   bool
	}{
		{"backend-dev", RoleBackendDev, true},
		{"BACKEND-DEV", RoleBackendDev, true},
		{"pm", RoleProjectPM, true},
		{"project-pm", RoleProjectPM, true},
		{"qa", RoleQA, true},
		{"nonsense", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizeRole(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("NormalizeRole(%q) = (%v, %v), want (%v, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestNormalizeTaskStatus(t *testing.T) {
	cases := []struct {
		in   string
		want TaskStatus
		ok   bool
	}{
		{"created", StatusCreated, true},
		{"evaluation", StatusQADone, true},
		{"approved", StatusCommitted, true},
		{"APPROVED", StatusCommitted, true},
		{"bogus", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizeTaskStatus(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("NormalizeTaskStatus(%q) = (%v, %v), want (%v, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestTaskStatusIsTerminal(t *testing.T) {
	if !StatusCommitted.IsTerminal() {
		t.Error("committed should be terminal")
	}
	if StatusDevDone.IsTerminal() {
		t.Error("dev_done should not be terminal")
	}
}

func TestSkillLevelIndex(t *testing.T) {
	if LevelJunior.Index() >= LevelSenior.Index() {
		t.Error("junior should sort below senior")
	}
	if LevelSenior.Index() >= LevelPrincipal.Index() {
		t.Error("senior should sort below principal")
	}
	if SkillLevel("bogus").Index() != -1 {
		t.Error("unknown level should report index -1")
	}
}

func TestWaitingTokenContract(t *testing.T) {
	tok := WaitingToken(RoleBackendDev, "agent-1", 300)
	if tok.ID >= 0 {
		t.Errorf("waiting token id = %d, want negative", tok.ID)
	}
	if tok.TaskType != TaskWaiting {
		t.Errorf("waiting token task type = %q, want %q", tok.TaskType, TaskWaiting)
	}
	if tok.Status != StatusUnderWork {
		t.Errorf("waiting token status = %q, want %q", tok.Status, StatusUnderWork)
	}
	if tok.LockHolder == nil || *tok.LockHolder != "agent-1" {
		t.Errorf("waiting token lock holder = %v, want agent-1", tok.LockHolder)
	}
	if !tok.IsWaitingToken() {
		t.Error("IsWaitingToken() should be true for negative id")
	}
}

func TestTaskEnsureBranch(t *testing.T) {
	task := &Task{ID: 42, Title: "Fix the login bug"}
	task.EnsureBranch()
	if task.Branch == "" {
		t.Fatal("EnsureBranch left Branch empty")
	}
	existing := &Task{ID: 7, Title: "ignored", Branch: "custom-branch"}
	existing.EnsureBranch()
	if existing.Branch != "custom-branch" {
		t.Errorf("EnsureBranch overwrote an explicit branch: %q", existing.Branch)
	}
}

func TestAgentJSONRoundTrip(t *testing.T) {
	agent := &Agent{
		ID:             "backend_dev_junior_001",
		ProjectID:      1,
		Role:           RoleBackendDev,
		Level:          LevelJunior,
		ConnectionKind: ConnDirect,
		Status:         AgentWorking,
	}

	data, err := json.Marshal(agent)
	if err != nil {
		t.Fatalf("json.Marshal error: %v", err)
	}

	var decoded Agent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}

	if decoded.ID != agent.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, agent.ID)
	}
	if decoded.Role != agent.Role {
		t.Errorf("Role = %v, want %v", decoded.Role, agent.Role)
	}
	if decoded.Status != agent.Status {
		t.Errorf("Status = %v, want %v", decoded.Status, agent.Status)
	}
}

func TestErrorKindUnwrap(t *testing.T) {
	cause := NewError(ErrTransient, "db unreachable")
	wrapped := WrapError(ErrConflict, "lock task", cause)

	if !IsKind(wrapped, ErrConflict) {
		t.Error("wrapped error should report its own kind")
	}
	if wrapped.Error() == "" {
		t.Error("Error() should not be empty")
	}
	if wrapped.Unwrap() != cause {
		t.Error("Unwrap() should return the wrapped cause")
	}
}

func TestWSMessageJSONRoundTrip(t *testing.T) {
	msg := WSMessage{
		Type: WSTypeChangeEvent,
		Data: map[string]interface{}{"task_id": float64(1)},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("json.Marshal error: %v", err)
	}

	var decoded WSMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if decoded.Type != WSTypeChangeEvent {
		t.Errorf("Type = %q, want %q", decoded.Type, WSTypeChangeEvent)
	}
}
