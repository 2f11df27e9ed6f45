// Package instance enforces that only one coordinatord process runs
// against a given data directory at a time, using a flock'd PID file.
package instance

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// InstanceManager owns the PID file and its flock for one coordinatord
// process.
type InstanceManager struct {
	pidFilePath string
	port        int
	lockFile    *os.File
	acquired    bool
}

// InstanceInfo describes a running (or stale) instance found on disk.
type InstanceInfo struct {
	PID       int
	Port      int
	StartTime time.Time
	IsRunning bool
	Version   string
	BasePath  string
}

// PIDFileData is the JSON shape written to the PID file.
type PIDFileData struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
	BasePath  string    `json:"base_path"`
	Hostname  string    `json:"hostname"`
}

func NewManager(pidFilePath string, port int) *InstanceManager {
	return &InstanceManager{pidFilePath: pidFilePath, port: port}
}

// AcquireLock takes an exclusive, non-blocking flock on the PID file.
// It fails immediately (rather than blocking) if another process holds
// it, matching the fail-fast single-instance contract a server daemon
// wants on startup.
func (m *InstanceManager) AcquireLock() error {
	f, err := os.OpenFile(m.pidFilePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open PID file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("another instance already holds the lock on %s", m.pidFilePath)
		}
		return fmt.Errorf("failed to acquire flock: %w", err)
	}

	m.lockFile = f
	m.acquired = true
	return nil
}

// ReleaseLock releases the flock and removes the PID file. Safe to call
// even if AcquireLock was never called or already failed.
func (m *InstanceManager) ReleaseLock() error {
	if !m.acquired {
		return nil
	}
	if err := unix.Flock(int(m.lockFile.Fd()), unix.LOCK_UN); err != nil {
		m.lockFile.Close()
		return fmt.Errorf("failed to release flock: %w", err)
	}
	if err := m.lockFile.Close(); err != nil {
		return fmt.Errorf("failed to close PID file: %w", err)
	}
	m.acquired = false
	if err := os.Remove(m.pidFilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// WritePIDFile overwrites the PID file's contents once the lock is
// held. Call after AcquireLock succeeds.
func (m *InstanceManager) WritePIDFile(pid int, basePath, version string) error {
	if !m.acquired {
		return fmt.Errorf("cannot write PID file without holding the lock")
	}
	hostname, _ := os.Hostname()
	data := PIDFileData{
		PID:       pid,
		Port:      m.port,
		StartedAt: time.Now(),
		Version:   version,
		BasePath:  basePath,
		Hostname:  hostname,
	}
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal PID data: %w", err)
	}
	if err := m.lockFile.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate PID file: %w", err)
	}
	if _, err := m.lockFile.WriteAt(jsonData, 0); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// ReadPIDFile reads and parses whatever PID file currently exists at
// pidFilePath, independent of whether this manager holds the lock —
// used by cmd/coordinatord's -status and -stop paths to inspect another
// process's instance.
func ReadPIDFile(pidFilePath string) (*PIDFileData, error) {
	jsonData, err := os.ReadFile(pidFilePath)
	if err != nil {
		return nil, err
	}
	var data PIDFileData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse PID file: %w", err)
	}
	return &data, nil
}

// IsProcessRunning reports whether pid names a live process, using the
// POSIX convention of sending signal 0 (no-op, permission/existence
// check only).
func IsProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func (m *InstanceManager) GetPort() int {
	return m.port
}
