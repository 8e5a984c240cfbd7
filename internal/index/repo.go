package index

import (
	"fmt"
	"time"

	"github.com/starford/raido/internal/models"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	SessionID string
	NoteID    string
	File      string
	Line      int
	EndLine   int
	Content   string
	UpdatedAt time.Time
}

// RowFromNote builds an index row from a domain note. The end-line default
// is resolved here so range queries over the table stay uniform.
func RowFromNote(sessionID string, n *models.Note) NoteRow {
	return NoteRow{
		SessionID: sessionID,
		NoteID:    n.ID,
		File:      n.File,
		Line:      n.Line,
		EndLine:   n.LastLine(),
		Content:   n.Content,
		UpdatedAt: time.Now(),
	}
}

// SearchResult represents one search hit.
type SearchResult struct {
	SessionID string `json:"session_id"`
	NoteID    string `json:"note_id"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Snippet   string `json:"snippet"`
}

// UpsertNote inserts or replaces a note row and its FTS entry in one
// transaction.
func (db *DB) UpsertNote(row NoteRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO notes (session_id, note_id, file, line, end_line, content, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, note_id) DO UPDATE SET
			file       = excluded.file,
			line       = excluded.line,
			end_line   = excluded.end_line,
			content    = excluded.content,
			updated_at = excluded.updated_at
	`, row.SessionID, row.NoteID, row.File, row.Line, row.EndLine, row.Content, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// FTS upsert (no-op when the FTS5 tag is absent).
	if err := ftsUpsert(tx, row); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteNote removes a note row and its FTS entry.
func (db *DB) DeleteNote(sessionID, noteID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeleteNote(tx, sessionID, noteID)
	_, _ = tx.Exec(`DELETE FROM notes WHERE session_id = ? AND note_id = ?`, sessionID, noteID)

	return tx.Commit()
}

// DeleteSession removes every row belonging to a session.
func (db *DB) DeleteSession(sessionID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeleteSession(tx, sessionID)
	_, _ = tx.Exec(`DELETE FROM notes WHERE session_id = ?`, sessionID)

	return tx.Commit()
}

// ReindexSession replaces every row of a session with the given rows.
// Sessions are small, so wholesale replacement beats diffing.
func (db *DB) ReindexSession(sessionID string, rows []NoteRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeleteSession(tx, sessionID)
	if _, err := tx.Exec(`DELETE FROM notes WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("index: clear session: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO notes (session_id, note_id, file, line, end_line, content, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(row.SessionID, row.NoteID, row.File, row.Line, row.EndLine, row.Content, row.UpdatedAt); err != nil {
			return fmt.Errorf("index: insert note: %w", err)
		}
		if err := ftsUpsert(tx, row); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SessionIDs returns every session id present in the index.
func (db *DB) SessionIDs() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT session_id FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: session ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// CountNotes returns the number of indexed notes for a session.
func (db *DB) CountNotes(sessionID string) (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT count(*) FROM notes WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("index: count notes: %w", err)
	}
	return n, nil
}
