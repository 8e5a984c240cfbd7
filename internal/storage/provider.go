// Package storage persists sessions as JSON documents, one file per
// session id, under either a repository-local or a global root.
package storage

import "github.com/starford/raido/internal/models"

// Provider is the interface for session document operations.
type Provider interface {
	// Init creates the storage root if it does not exist. Idempotent.
	Init() error
	// SaveSession atomically writes the session document.
	SaveSession(s *models.Session) error
	// LoadSession returns the session with the given id.
	// Missing documents yield apperr.ErrNotFound; corrupt ones an error.
	LoadSession(id string) (*models.Session, error)
	// ListSessions returns all readable session documents sorted by
	// updated_at descending. Unreadable or malformed files are skipped.
	ListSessions() ([]*models.Session, error)
	// DeleteSession removes the session document.
	DeleteSession(id string) error
	// SessionExists reports whether a document exists for id.
	SessionExists(id string) bool
	// Root returns the absolute storage root directory.
	Root() string
}
