package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewRegistryRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.LockConflicts.Inc()
	r.TasksReaped.Add(3)
	r.ProbeUp.Inc()
	r.ProbeTransitions.Inc()

	if got := counterValue(t, r.LockConflicts); got != 1 {
		t.Errorf("LockConflicts = %v, want 1", got)
	}
	if got := counterValue(t, r.TasksReaped); got != 3 {
		t.Errorf("TasksReaped = %v, want 3", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) != 8 {
		t.Errorf("Gather() returned %d metric families, want 8", len(families))
	}
}

func TestNewRegistryPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRegistry(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic registering a second registry against the same prometheus.Registerer")
		}
	}()
	NewRegistry(reg)
}
