package models

import "time"

// DefaultSessionID is the reserved id (and name) of the anonymous session
// used for notes taken outside any named session. It cannot be deleted.
const DefaultSessionID = "default"

// Session is a named, ordered collection of notes. Note order is insertion
// order and is meaningful: retrace traversal follows it.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Branch    string    `json:"branch,omitempty"`
	Notes     []Note    `json:"notes"`
}

// NoteByID returns the index of the note with the given id, or -1.
func (s *Session) NoteByID(id string) int {
	for i := range s.Notes {
		if s.Notes[i].ID == id {
			return i
		}
	}
	return -1
}

// IsDefault reports whether this is the reserved anonymous session.
func (s *Session) IsDefault() bool {
	return s.ID == DefaultSessionID
}
