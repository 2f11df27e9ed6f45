// coordinatorctl is a read-only diagnostic CLI against a coordinator's
// SQLite database. It opens the database through the pure-Go sqlite
// driver so it never needs cgo on an operator's machine, unlike
// coordinatord itself.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	_ "modernc.org/sqlite"
)

func main() {
	dbPath := flag.String("db", "coordinator.db", "Path to the coordinator's SQLite database")
	action := flag.String("action", "", "Action: list-agents, list-tasks, show-task, list-services, show-project")
	projectID := flag.Int64("project", 0, "Project ID (required by list-agents, list-tasks, list-services, show-project)")
	taskID := flag.Int64("task", 0, "Task ID (required by show-task)")
	jsonOutput := flag.Bool("json", false, "Output as JSON instead of a table")
	flag.Parse()

	if *action == "" {
		fmt.Fprintln(os.Stderr, "Usage: coordinatorctl -db <path> -action <action> [-project <id>] [-task <id>] [-json]")
		fmt.Fprintln(os.Stderr, "Actions: list-agents, list-tasks, show-task, list-services, show-project")
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(5000)&mode=ro", *dbPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	var runErr error
	switch *action {
	case "list-agents":
		runErr = listAgents(db, *projectID, *jsonOutput)
	case "list-tasks":
		runErr = listTasks(db, *projectID, *jsonOutput)
	case "show-task":
		runErr = showTask(db, *taskID, *jsonOutput)
	case "list-services":
		runErr = listServices(db, *projectID, *jsonOutput)
	case "show-project":
		runErr = showProject(db, *projectID, *jsonOutput)
	default:
		fmt.Fprintf(os.Stderr, "unknown action: %s\n", *action)
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", *action, runErr)
		os.Exit(1)
	}
}

type agentRow struct {
	AgentID       string `json:"agent_id"`
	Role          string `json:"role"`
	Level         string `json:"level"`
	ConnKind      string `json:"connection_kind"`
	Status        string `json:"status"`
	CurrentTaskID *int64 `json:"current_task_id"`
	LastSeen      string `json:"last_seen"`
}

func listAgents(db *sql.DB, projectID int64, asJSON bool) error {
	rows, err := db.Query(`
		SELECT agent_id, role, level, connection_kind, status, current_task_id, last_seen
		FROM agents WHERE project_id = ? ORDER BY agent_id`, projectID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var agents []agentRow
	for rows.Next() {
		var a agentRow
		var currentTaskID sql.NullInt64
		if err := rows.Scan(&a.AgentID, &a.Role, &a.Level, &a.ConnKind, &a.Status, &currentTaskID, &a.LastSeen); err != nil {
			return err
		}
		if currentTaskID.Valid {
			a.CurrentTaskID = &currentTaskID.Int64
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(agents)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT_ID\tROLE\tLEVEL\tCONN\tSTATUS\tCURRENT_TASK\tLAST_SEEN")
	for _, a := range agents {
		task := "-"
		if a.CurrentTaskID != nil {
			task = fmt.Sprintf("%d", *a.CurrentTaskID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", a.AgentID, a.Role, a.Level, a.ConnKind, a.Status, task, a.LastSeen)
	}
	return tw.Flush()
}

type taskRow struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	TargetRole string  `json:"target_role"`
	Difficulty string  `json:"difficulty"`
	Status     string  `json:"status"`
	LockHolder *string `json:"lock_holder"`
}

func listTasks(db *sql.DB, projectID int64, asJSON bool) error {
	rows, err := db.Query(`
		SELECT t.id, t.title, t.target_role, t.difficulty, t.status, t.lock_holder
		FROM tasks t
		JOIN features f ON f.id = t.feature_id
		JOIN epics e ON e.id = f.epic_id
		WHERE e.project_id = ?
		ORDER BY t.id`, projectID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var tasks []taskRow
	for rows.Next() {
		var t taskRow
		var lockHolder sql.NullString
		if err := rows.Scan(&t.ID, &t.Title, &t.TargetRole, &t.Difficulty, &t.Status, &lockHolder); err != nil {
			return err
		}
		if lockHolder.Valid {
			t.LockHolder = &lockHolder.String
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(tasks)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tROLE\tDIFFICULTY\tSTATUS\tLOCK_HOLDER")
	for _, t := range tasks {
		holder := "-"
		if t.LockHolder != nil {
			holder = *t.LockHolder
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.TargetRole, t.Difficulty, t.Status, holder)
	}
	return tw.Flush()
}

type taskDetail struct {
	taskRow
	Description string      `json:"description"`
	Notes       string      `json:"notes"`
	CreatedAt   string      `json:"created_at"`
	UpdatedAt   string      `json:"updated_at"`
	Changelog   []changeRow `json:"changelog"`
}

type changeRow struct {
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	ActorID   string `json:"actor_id"`
	Notes     string `json:"notes"`
	ChangedAt string `json:"changed_at"`
}

func showTask(db *sql.DB, taskID int64, asJSON bool) error {
	if taskID == 0 {
		return fmt.Errorf("-task is required")
	}

	var d taskDetail
	var lockHolder sql.NullString
	err := db.QueryRow(`
		SELECT id, title, target_role, difficulty, status, lock_holder, description, notes, created_at, updated_at
		FROM tasks WHERE id = ?`, taskID).Scan(
		&d.ID, &d.Title, &d.TargetRole, &d.Difficulty, &d.Status, &lockHolder,
		&d.Description, &d.Notes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return err
	}
	if lockHolder.Valid {
		d.LockHolder = &lockHolder.String
	}

	rows, err := db.Query(`
		SELECT from_state, to_state, actor_id, notes, changed_at
		FROM changelog WHERE task_id = ? ORDER BY changed_at`, taskID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var c changeRow
		if err := rows.Scan(&c.FromState, &c.ToState, &c.ActorID, &c.Notes, &c.ChangedAt); err != nil {
			return err
		}
		d.Changelog = append(d.Changelog, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(d)
	}

	fmt.Printf("task #%d: %s\n", d.ID, d.Title)
	fmt.Printf("  role:       %s / %s\n", d.TargetRole, d.Difficulty)
	fmt.Printf("  status:     %s\n", d.Status)
	if d.LockHolder != nil {
		fmt.Printf("  lock:       %s\n", *d.LockHolder)
	}
	fmt.Printf("  created:    %s\n", d.CreatedAt)
	fmt.Printf("  updated:    %s\n", d.UpdatedAt)
	if d.Description != "" {
		fmt.Printf("  description: %s\n", d.Description)
	}
	if len(d.Changelog) > 0 {
		fmt.Println("  changelog:")
		for _, c := range d.Changelog {
			fmt.Printf("    %s  %s -> %s  by %s  %s\n", c.ChangedAt, c.FromState, c.ToState, c.ActorID, c.Notes)
		}
	}
	return nil
}

type serviceRow struct {
	Name            string `json:"name"`
	OwnerAgentID    string `json:"owner_agent_id"`
	Status          string `json:"status"`
	PingURL         string `json:"ping_url"`
	LastPingSuccess bool   `json:"last_ping_success"`
}

func listServices(db *sql.DB, projectID int64, asJSON bool) error {
	rows, err := db.Query(`
		SELECT name, owner_agent_id, status, ping_url, last_ping_success
		FROM services WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var services []serviceRow
	for rows.Next() {
		var s serviceRow
		var lastPingSuccess int
		if err := rows.Scan(&s.Name, &s.OwnerAgentID, &s.Status, &s.PingURL, &lastPingSuccess); err != nil {
			return err
		}
		s.LastPingSuccess = lastPingSuccess != 0
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(services)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tOWNER\tSTATUS\tPING_URL\tLAST_PING_OK")
	for _, s := range services {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n", s.Name, s.OwnerAgentID, s.Status, s.PingURL, s.LastPingSuccess)
	}
	return tw.Flush()
}

type projectDetail struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	SharedPath string `json:"shared_path"`
	CreatedAt  string `json:"created_at"`
	AgentCount int    `json:"agent_count"`
	TaskCount  int    `json:"task_count"`
}

func showProject(db *sql.DB, projectID int64, asJSON bool) error {
	if projectID == 0 {
		return fmt.Errorf("-project is required")
	}

	var p projectDetail
	err := db.QueryRow(`SELECT id, name, shared_path, created_at FROM projects WHERE id = ?`, projectID).
		Scan(&p.ID, &p.Name, &p.SharedPath, &p.CreatedAt)
	if err != nil {
		return err
	}

	if err := db.QueryRow(`SELECT COUNT(*) FROM agents WHERE project_id = ?`, projectID).Scan(&p.AgentCount); err != nil {
		return err
	}
	if err := db.QueryRow(`
		SELECT COUNT(*) FROM tasks t
		JOIN features f ON f.id = t.feature_id
		JOIN epics e ON e.id = f.epic_id
		WHERE e.project_id = ?`, projectID).Scan(&p.TaskCount); err != nil {
		return err
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(p)
	}

	fmt.Printf("project #%d: %s\n", p.ID, p.Name)
	fmt.Printf("  shared path: %s\n", p.SharedPath)
	fmt.Printf("  created:     %s\n", p.CreatedAt)
	fmt.Printf("  agents:      %d\n", p.AgentCount)
	fmt.Printf("  tasks:       %d\n", p.TaskCount)
	return nil
}
