package store

import (
	"database/sql"
	"fmt"

	"github.com/fleetforge/coordinator/internal/types"
)

func (s *SQLiteStore) CreateProject(name, sharedPath, instructionsPath, docsPath string) (*types.Project, error) {
	var p *types.Project
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO projects (name, shared_path, instructions_path, docs_path)
			VALUES (?, ?, ?, ?)`,
			name, sharedPath, instructionsPath, docsPath)
		if err != nil {
			return types.WrapError(types.ErrConflict, "project name already exists", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read new project id: %w", err)
		}
		p, err = s.getProjectTx(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) getProjectTx(tx *sql.Tx, id int64) (*types.Project, error) {
	row := tx.QueryRow(`
		SELECT id, name, shared_path, instructions_path, docs_path, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func (s *SQLiteStore) GetProject(id int64) (*types.Project, error) {
	row := s.db.QueryRow(`
		SELECT id, name, shared_path, instructions_path, docs_path, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("project %d not found", id))
	}
	return p, err
}

// DeleteProject removes a project. Non-force deletes fail if any epic
// still exists under it; force relies on ON DELETE CASCADE to clean up
// the entire dependent tree in the database rather than in application
// code (per the cascading-deletes design note).
func (s *SQLiteStore) DeleteProject(id int64, force bool) error {
	return s.withTx(func(tx *sql.Tx) error {
		if !force {
			var count int
			if err := tx.QueryRow(`SELECT COUNT(*) FROM epics WHERE project_id = ?`, id).Scan(&count); err != nil {
				return fmt.Errorf("failed to count epics: %w", err)
			}
			if count > 0 {
				return types.NewError(types.ErrConflict, "project is not empty; use force delete")
			}
		}
		res, err := tx.Exec(`DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return types.NewError(types.ErrNotFound, fmt.Sprintf("project %d not found", id))
		}
		return nil
	})
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanProject(row scannable) (*types.Project, error) {
	var p types.Project
	if err := row.Scan(&p.ID, &p.Name, &p.SharedPath, &p.InstructionsPath, &p.DocsPath, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) CreateEpic(projectID int64, title string) (*types.Epic, error) {
	var e *types.Epic
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO epics (project_id, title) VALUES (?, ?)`, projectID, title)
		if err != nil {
			return fmt.Errorf("failed to create epic: %w", err)
		}
		id, _ := res.LastInsertId()
		row := tx.QueryRow(`SELECT id, project_id, title, created_at FROM epics WHERE id = ?`, id)
		e = &types.Epic{}
		return row.Scan(&e.ID, &e.ProjectID, &e.Title, &e.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLiteStore) CreateFeature(epicID int64, title string) (*types.Feature, error) {
	var f *types.Feature
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO features (epic_id, title) VALUES (?, ?)`, epicID, title)
		if err != nil {
			return fmt.Errorf("failed to create feature: %w", err)
		}
		id, _ := res.LastInsertId()
		row := tx.QueryRow(`SELECT id, epic_id, title, created_at FROM features WHERE id = ?`, id)
		f = &types.Feature{}
		return row.Scan(&f.ID, &f.EpicID, &f.Title, &f.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *SQLiteStore) ProjectIDForTask(taskID int64) (int64, error) {
	var projectID int64
	err := s.db.QueryRow(`
		SELECT e.project_id FROM tasks t
		JOIN features f ON f.id = t.feature_id
		JOIN epics e ON e.id = f.epic_id
		WHERE t.id = ?`, taskID).Scan(&projectID)
	if err == sql.ErrNoRows {
		return 0, types.NewError(types.ErrNotFound, fmt.Sprintf("task %d not found", taskID))
	}
	return projectID, err
}
