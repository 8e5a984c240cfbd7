package index

// NoteIndex defines the interface for note indexing operations. Consumers
// should depend on this interface rather than the concrete *DB type to
// facilitate testing with mocks.
type NoteIndex interface {
	UpsertNote(row NoteRow) error
	DeleteNote(sessionID, noteID string) error
	DeleteSession(sessionID string) error
	ReindexSession(sessionID string, rows []NoteRow) error
	Search(query string, limit int) ([]SearchResult, error)
	SessionIDs() (map[string]struct{}, error)
	CountNotes(sessionID string) (int, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
