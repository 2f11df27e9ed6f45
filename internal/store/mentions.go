package store

import (
	"fmt"

	"github.com/fleetforge/coordinator/internal/types"
)

// ListUnreadMentions returns every unread mention of agentID, newest first.
func (s *SQLiteStore) ListUnreadMentions(projectID int64, agentID string) ([]*types.Mention, error) {
	rows, err := s.db.Query(`
		SELECT m.id, m.source_kind, m.source_id, m.mentioned_id, m.creating_id, m.read, m.created_at
		FROM mentions m
		WHERE m.mentioned_id = ? AND m.read = 0 AND m.id IN (
			SELECT m2.id FROM mentions m2
			LEFT JOIN documents d ON m2.source_kind = 'document' AND m2.source_id = d.id
			LEFT JOIN tasks t ON m2.source_kind = 'task' AND m2.source_id = t.id
			LEFT JOIN features f ON f.id = t.feature_id
			LEFT JOIN epics e ON e.id = f.epic_id
			WHERE (d.project_id = ? OR e.project_id = ?)
		)
		ORDER BY m.created_at DESC`, agentID, projectID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unread mentions: %w", err)
	}
	defer rows.Close()

	var out []*types.Mention
	for rows.Next() {
		m, err := scanMention(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mention: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMention(row scannable) (*types.Mention, error) {
	var m types.Mention
	var kind string
	var read int
	if err := row.Scan(&m.ID, &kind, &m.SourceID, &m.MentionedID, &m.CreatingID, &read, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.SourceKind = types.MentionSourceKind(kind)
	m.Read = read != 0
	return &m, nil
}

// MarkMentionsRead flips every unread mention of agentID within
// projectID to read. The register handlers only list unread mentions
// and do not call this, so a mention stays unread until this is called.
func (s *SQLiteStore) MarkMentionsRead(projectID int64, agentID string) error {
	_, err := s.db.Exec(`
		UPDATE mentions SET read = 1
		WHERE mentioned_id = ? AND read = 0 AND id IN (
			SELECT m2.id FROM mentions m2
			LEFT JOIN documents d ON m2.source_kind = 'document' AND m2.source_id = d.id
			LEFT JOIN tasks t ON m2.source_kind = 'task' AND m2.source_id = t.id
			LEFT JOIN features f ON f.id = t.feature_id
			LEFT JOIN epics e ON e.id = f.epic_id
			WHERE (d.project_id = ? OR e.project_id = ?)
		)`, agentID, projectID, projectID)
	if err != nil {
		return fmt.Errorf("failed to mark mentions read: %w", err)
	}
	return nil
}
