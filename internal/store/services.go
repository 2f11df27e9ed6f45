package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fleetforge/coordinator/internal/types"
)

const serviceSelectColumns = `
	SELECT id, project_id, name, owner_agent_id, ping_url, port, status,
	       last_heartbeat_at, last_ping_at, last_ping_success, metadata
	FROM services`

// RegisterService records a new service or re-registers one under the
// same (name, project) pair, mirroring the agent register-or-refresh
// upsert idiom.
func (s *SQLiteStore) RegisterService(svc *types.Service) (*types.Service, error) {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO services (project_id, name, owner_agent_id, ping_url, port, status, last_heartbeat_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, project_id) DO UPDATE SET
			owner_agent_id = excluded.owner_agent_id,
			ping_url = excluded.ping_url,
			port = excluded.port,
			status = excluded.status,
			last_heartbeat_at = excluded.last_heartbeat_at,
			metadata = excluded.metadata`,
		svc.ProjectID, svc.Name, svc.OwnerAgentID, svc.PingURL, nullIntPtr(svc.Port),
		string(types.ServiceStarting), now, svc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to register service: %w", err)
	}
	return s.GetServiceByName(svc.ProjectID, svc.Name)
}

func scanService(row scannable) (*types.Service, error) {
	var svc types.Service
	var status string
	var port sql.NullInt64
	var lastHeartbeat, lastPing sql.NullTime
	var lastPingSuccess int
	if err := row.Scan(&svc.ID, &svc.ProjectID, &svc.Name, &svc.OwnerAgentID, &svc.PingURL, &port, &status,
		&lastHeartbeat, &lastPing, &lastPingSuccess, &svc.Metadata); err != nil {
		return nil, err
	}
	svc.Port = intPtrFromNull(port)
	svc.Status = types.ServiceStatus(status)
	svc.LastHeartbeatAt = timePtrFromNull(lastHeartbeat)
	svc.LastPingAt = timePtrFromNull(lastPing)
	svc.LastPingSuccess = lastPingSuccess != 0
	return &svc, nil
}

func (s *SQLiteStore) GetServiceByName(projectID int64, name string) (*types.Service, error) {
	row := s.db.QueryRow(serviceSelectColumns+` WHERE project_id = ? AND name = ?`, projectID, name)
	svc, err := scanService(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("service %q not found", name))
	}
	return svc, err
}

// HeartbeatService bumps last_heartbeat_at and marks the service up,
// called by the owning agent on its own cadence, distinct from the
// coordinator's own probe cycle recorded via RecordProbeResult.
func (s *SQLiteStore) HeartbeatService(projectID int64, name string) error {
	res, err := s.db.Exec(`
		UPDATE services SET status = ?, last_heartbeat_at = ?
		WHERE project_id = ? AND name = ?`, string(types.ServiceUp), time.Now(), projectID, name)
	if err != nil {
		return fmt.Errorf("failed to heartbeat service: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.NewError(types.ErrNotFound, fmt.Sprintf("service %q not found", name))
	}
	return nil
}

func (s *SQLiteStore) UnregisterService(projectID int64, name string) error {
	res, err := s.db.Exec(`DELETE FROM services WHERE project_id = ? AND name = ?`, projectID, name)
	if err != nil {
		return fmt.Errorf("failed to unregister service: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.NewError(types.ErrNotFound, fmt.Sprintf("service %q not found", name))
	}
	return nil
}

func (s *SQLiteStore) ListServices(projectID int64) ([]*types.Service, error) {
	rows, err := s.db.Query(serviceSelectColumns+` WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var out []*types.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// RecordProbeResult stores the outcome of the health prober's own GET
// to the service's ping URL, independent of agent-reported heartbeats.
func (s *SQLiteStore) RecordProbeResult(serviceID int64, success bool, at time.Time) error {
	status := types.ServiceDown
	if success {
		status = types.ServiceUp
	}
	_, err := s.db.Exec(`
		UPDATE services SET status = ?, last_ping_at = ?, last_ping_success = ?
		WHERE id = ?`, string(status), at, boolToInt(success), serviceID)
	if err != nil {
		return fmt.Errorf("failed to record probe result: %w", err)
	}
	return nil
}

// ListAllServicesForProbing returns every service across all projects,
// the input set for the health prober's single background sweep.
func (s *SQLiteStore) ListAllServicesForProbing() ([]*types.Service, error) {
	rows, err := s.db.Query(serviceSelectColumns + ` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services for probing: %w", err)
	}
	defer rows.Close()

	var out []*types.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}
