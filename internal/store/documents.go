package store

import (
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/fleetforge/coordinator/internal/types"
)

// CreateDocument persists a document and derives its mentions in the
// same transaction, one of the store's three required transactional
// operations alongside lock acquisition and status transition.
func (s *SQLiteStore) CreateDocument(d *types.Document) (*types.Document, error) {
	if utf8.RuneCountInString(d.Title) > types.DocumentTitleMaxLen {
		return nil, types.NewError(types.ErrInvalid, "title exceeds maximum length")
	}
	if utf8.RuneCountInString(d.Content) > types.DocumentContentMaxLen {
		return nil, types.NewError(types.ErrInvalid, "content exceeds maximum length")
	}

	var created *types.Document
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO documents (project_id, doc_type, author_id, title, content, metadata, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.ProjectID, string(d.Type), d.AuthorID, d.Title, d.Content, d.Metadata, nullTime(d.ExpiresAt))
		if err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read new document id: %w", err)
		}

		if err := insertMentionsTx(tx, types.MentionSourceDocument, id, d.AuthorID, d.Content); err != nil {
			return err
		}

		created, err = s.getDocumentTx(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

const documentSelectColumns = `
	SELECT id, project_id, doc_type, author_id, title, content, metadata, expires_at, created_at, updated_at`

func scanDocument(row scannable) (*types.Document, error) {
	var d types.Document
	var docType string
	var expiresAt sql.NullTime
	if err := row.Scan(&d.ID, &d.ProjectID, &docType, &d.AuthorID, &d.Title, &d.Content, &d.Metadata, &expiresAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Type = types.DocumentType(docType)
	d.ExpiresAt = timePtrFromNull(expiresAt)
	return &d, nil
}

func (s *SQLiteStore) getDocumentTx(tx *sql.Tx, id int64) (*types.Document, error) {
	row := tx.QueryRow(documentSelectColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// UpdateDocument replaces title/content/metadata and, per the mention
// lifecycle, purges old mentions and re-derives them from the new content.
func (s *SQLiteStore) UpdateDocument(id int64, title, content, metadata string) (*types.Document, error) {
	if utf8.RuneCountInString(title) > types.DocumentTitleMaxLen {
		return nil, types.NewError(types.ErrInvalid, "title exceeds maximum length")
	}
	if utf8.RuneCountInString(content) > types.DocumentContentMaxLen {
		return nil, types.NewError(types.ErrInvalid, "content exceeds maximum length")
	}

	var updated *types.Document
	err := s.withTx(func(tx *sql.Tx) error {
		existing, err := s.getDocumentTx(tx, id)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`
			UPDATE documents SET title = ?, content = ?, metadata = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, title, content, metadata, id); err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM mentions WHERE source_kind = ? AND source_id = ?`,
			string(types.MentionSourceDocument), id); err != nil {
			return fmt.Errorf("failed to purge old mentions: %w", err)
		}
		if err := insertMentionsTx(tx, types.MentionSourceDocument, id, existing.AuthorID, content); err != nil {
			return err
		}

		updated, err = s.getDocumentTx(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListDocumentsCreatedSince feeds the change feed's "document_created"
// event source.
func (s *SQLiteStore) ListDocumentsCreatedSince(projectID int64, since time.Time) ([]*types.Document, error) {
	rows, err := s.db.Query(documentSelectColumns+`
		FROM documents WHERE project_id = ? AND created_at > ? ORDER BY created_at ASC`, projectID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query created documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListDocumentsUpdatedSince feeds "document_updated": updated_at > since
// and updated_at != created_at, so a plain creation isn't double-counted.
func (s *SQLiteStore) ListDocumentsUpdatedSince(projectID int64, since time.Time) ([]*types.Document, error) {
	rows, err := s.db.Query(documentSelectColumns+`
		FROM documents
		WHERE project_id = ? AND updated_at > ? AND updated_at != created_at
		ORDER BY updated_at ASC`, projectID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query updated documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]*types.Document, error) {
	var out []*types.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
