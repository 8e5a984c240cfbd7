// Package session implements session and note CRUD on top of the storage
// provider, keeping the search index in step with every mutation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/storage"
)

// Service coordinates session persistence and indexing.
type Service struct {
	store   storage.Provider
	db      index.NoteIndex
	workdir string
}

// NewService creates a session service. workdir is where VCS branch capture
// runs; empty means the process working directory.
func NewService(store storage.Provider, db index.NoteIndex, workdir string) *Service {
	return &Service{store: store, db: db, workdir: workdir}
}

// Create makes and persists a new session. An empty name synthesizes one
// from the current time. Name uniqueness is enforced against all persisted
// sessions; collisions yield apperr.ErrAlreadyExists.
func (s *Service) Create(ctx context.Context, name string) (*models.Session, error) {
	if name == "" {
		name = "session-" + time.Now().Format("20060102-150405")
	}
	taken, err := s.nameTaken(name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("session %q: %w", name, apperr.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	sess := &models.Session{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Branch:    currentBranch(ctx, s.workdir),
		Notes:     []models.Note{},
	}
	if err := s.store.SaveSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Load returns the session with the given id, or apperr.ErrNotFound for
// both missing and unreadable documents.
func (s *Service) Load(id string) (*models.Session, error) {
	sess, err := s.store.LoadSession(id)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			slog.Warn("session: load failed", slog.String("id", id), slog.String("error", err.Error()))
		}
		return nil, apperr.ErrNotFound
	}
	return sess, nil
}

// Save stamps updated_at and persists the session.
func (s *Service) Save(sess *models.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	return s.store.SaveSession(sess)
}

// GetOrCreateDefault loads the reserved default session, creating and
// persisting it on first use.
func (s *Service) GetOrCreateDefault(ctx context.Context) (*models.Session, error) {
	sess, err := s.Load(models.DefaultSessionID)
	if err == nil {
		return sess, nil
	}

	now := time.Now().UTC()
	sess = &models.Session{
		ID:        models.DefaultSessionID,
		Name:      models.DefaultSessionID,
		CreatedAt: now,
		UpdatedAt: now,
		Branch:    currentBranch(ctx, s.workdir),
		Notes:     []models.Note{},
	}
	if err := s.store.SaveSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// List returns all persisted sessions, most recently updated first.
func (s *Service) List() ([]*models.Session, error) {
	return s.store.ListSessions()
}

// Delete removes a session and its index rows. The default session is
// protected and yields apperr.ErrProtected.
func (s *Service) Delete(id string) error {
	if id == models.DefaultSessionID {
		slog.Warn("session: refusing to delete the default session")
		return fmt.Errorf("default session: %w", apperr.ErrProtected)
	}
	if err := s.store.DeleteSession(id); err != nil {
		return err
	}
	return s.db.DeleteSession(id)
}

// Rename changes a session's name, enforcing the same uniqueness rule as
// Create against all other sessions.
func (s *Service) Rename(id, newName string) error {
	if newName == "" {
		return fmt.Errorf("session: empty name")
	}
	sess, err := s.Load(id)
	if err != nil {
		return err
	}
	taken, err := s.nameTaken(newName, id)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("session %q: %w", newName, apperr.ErrAlreadyExists)
	}
	sess.Name = newName
	return s.Save(sess)
}

// AddNote appends the note to the end of the session (insertion order is
// what retrace traverses) and persists.
func (s *Service) AddNote(sess *models.Session, n models.Note) error {
	sess.Notes = append(sess.Notes, n)
	if err := s.Save(sess); err != nil {
		return err
	}
	return s.db.UpsertNote(index.RowFromNote(sess.ID, &n))
}

// RemoveNote removes the first note with the given id.
func (s *Service) RemoveNote(sess *models.Session, noteID string) error {
	i := sess.NoteByID(noteID)
	if i < 0 {
		return fmt.Errorf("note %q: %w", noteID, apperr.ErrNotFound)
	}
	sess.Notes = append(sess.Notes[:i], sess.Notes[i+1:]...)
	if err := s.Save(sess); err != nil {
		return err
	}
	return s.db.DeleteNote(sess.ID, noteID)
}

// UpdateNote replaces the content of the note with the given id in place.
func (s *Service) UpdateNote(sess *models.Session, noteID, content string) error {
	i := sess.NoteByID(noteID)
	if i < 0 {
		return fmt.Errorf("note %q: %w", noteID, apperr.ErrNotFound)
	}
	sess.Notes[i].Content = content
	if err := s.Save(sess); err != nil {
		return err
	}
	return s.db.UpsertNote(index.RowFromNote(sess.ID, &sess.Notes[i]))
}

// NotesForFile returns the session's notes whose file matches exactly,
// preserving insertion order.
func (s *Service) NotesForFile(sess *models.Session, file string) []models.Note {
	out := []models.Note{}
	for i := range sess.Notes {
		if sess.Notes[i].File == file {
			out = append(out, sess.Notes[i])
		}
	}
	return out
}

// NoteAtLine returns the first note (lowest insertion index) whose file
// matches and whose line range contains line. First match wins even for
// overlapping or nested ranges; there is no innermost preference.
func (s *Service) NoteAtLine(sess *models.Session, file string, line int) *models.Note {
	for i := range sess.Notes {
		n := &sess.Notes[i]
		if n.File == file && n.Contains(line) {
			return n
		}
	}
	return nil
}

// nameTaken reports whether another session (id != excludeID) already uses
// the name.
func (s *Service) nameTaken(name, excludeID string) (bool, error) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		return false, err
	}
	for _, sess := range sessions {
		if sess.Name == name && sess.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}
