package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/zjrosen/weft/internal/assembly"
)

const messageColumns = `id, session_id, position, role, created_at, body, tool_use_id`

// ArchiveRepository stores assembled transcripts.
type ArchiveRepository struct {
	db *sql.DB
}

// NewArchiveRepository wraps an open archive database.
func NewArchiveRepository(db *sql.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// SaveSession archives a session's full transcript, replacing any earlier
// archive of the same session.
func (r *ArchiveRepository) SaveSession(sessionID string, openedAt time.Time, history []*assembly.Message) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear prior archive: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO sessions (id, opened_at, message_count) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			opened_at = excluded.opened_at,
			archived_at = CURRENT_TIMESTAMP,
			message_count = excluded.message_count`,
		sessionID, openedAt.UTC(), len(history),
	); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	for i, msg := range history {
		if _, err := tx.Exec(
			`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, sessionID, i, string(msg.Role), msg.CreatedAt.UTC(), msg.Text(), msg.ToolUseID,
		); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}
	return nil
}

// ListSessions returns archived sessions, most recently archived first.
func (r *ArchiveRepository) ListSessions() ([]SessionRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, opened_at, archived_at, message_count
		 FROM sessions ORDER BY archived_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.OpenedAt, &rec.ArchivedAt, &rec.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadMessages returns a session's archived messages in transcript order.
func (r *ArchiveRepository) LoadMessages(sessionID string) ([]MessageRecord, error) {
	rows, err := r.db.Query(
		`SELECT `+messageColumns+` FROM messages WHERE session_id = ? ORDER BY position`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// SearchMessages finds archived messages whose body contains term, across
// all sessions.
func (r *ArchiveRepository) SearchMessages(term string) ([]MessageRecord, error) {
	rows, err := r.db.Query(
		`SELECT `+messageColumns+` FROM messages
		 WHERE body LIKE '%' || ? || '%'
		 ORDER BY session_id, position`,
		term)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// DeleteSession removes a session and its messages from the archive.
func (r *ArchiveRepository) DeleteSession(sessionID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return tx.Commit()
}

func scanMessages(rows *sql.Rows) ([]MessageRecord, error) {
	var out []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Position, &rec.Role,
			&rec.CreatedAt, &rec.Body, &rec.ToolUseID); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
