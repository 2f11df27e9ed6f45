package instance

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireLockThenReleaseRemovesPIDFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "coordinatord.pid")
	m := NewManager(pidPath, 8080)

	if err := m.AcquireLock(); err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if err := m.WritePIDFile(os.Getpid(), "/data", "test"); err != nil {
		t.Fatalf("WritePIDFile() error = %v", err)
	}

	data, err := ReadPIDFile(pidPath)
	if err != nil {
		t.Fatalf("ReadPIDFile() error = %v", err)
	}
	if data.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", data.PID, os.Getpid())
	}
	if data.Port != 8080 {
		t.Errorf("Port = %d, want 8080", data.Port)
	}

	if err := m.ReleaseLock(); err != nil {
		t.Fatalf("ReleaseLock() error = %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("expected PID file removed after ReleaseLock")
	}
}

func TestSecondAcquireLockFailsWhileFirstHeld(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "coordinatord.pid")
	first := NewManager(pidPath, 8080)
	if err := first.AcquireLock(); err != nil {
		t.Fatalf("first AcquireLock() error = %v", err)
	}
	defer first.ReleaseLock()

	second := NewManager(pidPath, 8081)
	if err := second.AcquireLock(); err == nil {
		t.Error("expected second AcquireLock() to fail while first instance holds the lock")
	}
}

func TestWritePIDFileRequiresLock(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "coordinatord.pid")
	m := NewManager(pidPath, 8080)
	if err := m.WritePIDFile(os.Getpid(), "/data", "test"); err == nil {
		t.Error("expected WritePIDFile to fail without a held lock")
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !IsProcessRunning(os.Getpid()) {
		t.Error("expected own process to be reported as running")
	}
	if IsProcessRunning(1 << 30) {
		t.Error("expected an implausible PID to be reported as not running")
	}
}
