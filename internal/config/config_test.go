package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesOverridesOnTopOfDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configYAML := `store:
  db_path: /var/lib/coordinator/coordinator.db
http:
  listen_addr: ":9090"
reaper:
  stale_threshold: 45m
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.DBPath != "/var/lib/coordinator/coordinator.db" {
		t.Errorf("DBPath = %q, want override", cfg.Store.DBPath)
	}
	if cfg.HTTP.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want override", cfg.HTTP.ListenAddr)
	}
	if cfg.Reaper.GetStaleThreshold() != 45*time.Minute {
		t.Errorf("GetStaleThreshold() = %v, want 45m", cfg.Reaper.GetStaleThreshold())
	}
	// Fields the file didn't touch keep their defaults.
	if cfg.Reaper.GetSweepInterval() != 60*time.Second {
		t.Errorf("GetSweepInterval() = %v, want default 60s", cfg.Reaper.GetSweepInterval())
	}
	if cfg.Dispatch.GetActiveAgentWindow() != 30*time.Minute {
		t.Errorf("GetActiveAgentWindow() = %v, want default 30m", cfg.Dispatch.GetActiveAgentWindow())
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")
	if err := os.WriteFile(configPath, []byte("{{invalid yaml"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "empty.yaml")
	if err := os.WriteFile(configPath, []byte(""), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() should not error on empty file: %v", err)
	}
	if cfg.Store.DBPath != "coordinator.db" {
		t.Errorf("DBPath = %q, want default", cfg.Store.DBPath)
	}
}

func TestMalformedDurationFallsBackToDefault(t *testing.T) {
	h := HealthConfig{ProbeInterval: "not-a-duration"}
	if got := h.GetProbeInterval(); got != 30*time.Second {
		t.Errorf("GetProbeInterval() = %v, want default 30s on malformed input", got)
	}
}

func TestDefaultsEnableDashboardWithNoExternalNATS(t *testing.T) {
	cfg := Defaults()
	if !cfg.Dashboard.Enabled {
		t.Error("Dashboard.Enabled = false, want true by default")
	}
	if cfg.Dashboard.GetPollInterval() != 2*time.Second {
		t.Errorf("GetPollInterval() = %v, want default 2s", cfg.Dashboard.GetPollInterval())
	}
	if cfg.NATS.Enabled {
		t.Error("NATS.Enabled = true, want false by default")
	}
	if cfg.NATS.URL != "" {
		t.Errorf("NATS.URL = %q, want empty so an enabled daemon spins up an embedded broker", cfg.NATS.URL)
	}
}
