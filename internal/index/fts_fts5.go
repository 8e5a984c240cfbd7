//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			session_id UNINDEXED,
			note_id UNINDEXED,
			file,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, row NoteRow) error {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE session_id = ? AND note_id = ?`, row.SessionID, row.NoteID)
	_, err := tx.Exec(`INSERT INTO notes_fts (session_id, note_id, file, content) VALUES (?, ?, ?, ?)`,
		row.SessionID, row.NoteID, row.File, row.Content)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDeleteNote(tx *sql.Tx, sessionID, noteID string) {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE session_id = ? AND note_id = ?`, sessionID, noteID)
}

func ftsDeleteSession(tx *sql.Tx, sessionID string) {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE session_id = ?`, sessionID)
}

// Search performs an FTS5 full-text search and returns matching notes with
// snippets, joined back to the notes table for line anchors.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT f.session_id,
		       f.note_id,
		       n.file,
		       n.line,
		       snippet(notes_fts, 3, '<b>', '</b>', '...', 64)
		FROM notes_fts f
		JOIN notes n ON n.session_id = f.session_id AND n.note_id = f.note_id
		WHERE notes_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.SessionID, &r.NoteID, &r.File, &r.Line, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
