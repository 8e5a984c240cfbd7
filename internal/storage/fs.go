package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// FS implements Provider backed by the local file system. Each session is
// one self-contained JSON document at <root>/<id>.json.
type FS struct {
	root string
}

// NewFS creates an FS provider rooted at the given directory. The directory
// is created lazily by Init, not here.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute storage root directory.
func (f *FS) Root() string {
	return f.root
}

// Init creates the storage root. Safe to call repeatedly.
func (f *FS) Init() error {
	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return fmt.Errorf("storage: init root: %w", err)
	}
	return nil
}

// docPath maps a session id to its document path, rejecting ids that could
// escape the root.
func (f *FS) docPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("storage: invalid session id %q", id)
	}
	return filepath.Join(f.root, id+".json"), nil
}

// SaveSession atomically writes the session document: tmp file → fsync → rename.
func (f *FS) SaveSession(s *models.Session) error {
	path, err := f.docPath(s.ID)
	if err != nil {
		return err
	}
	if err := f.Init(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(f.root, ".raido-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// LoadSession reads and decodes one session document.
func (f *FS) LoadSession(id string) (*models.Session, error) {
	path, err := f.docPath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("storage: read %s: %w", id, err)
	}
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", id, err)
	}
	if s.Notes == nil {
		s.Notes = []models.Note{}
	}
	return &s, nil
}

// ListSessions returns every readable session document, most recently
// updated first. Non-JSON files and malformed documents are skipped.
func (f *FS) ListSessions() ([]*models.Session, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.Session{}, nil
		}
		return nil, fmt.Errorf("storage: list: %w", err)
	}

	out := make([]*models.Session, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		s, err := f.LoadSession(id)
		if err != nil {
			slog.Debug("storage: skipping unreadable document",
				slog.String("file", e.Name()),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// DeleteSession removes the session document.
func (f *FS) DeleteSession(id string) error {
	path, err := f.docPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("storage: delete %s: %w", id, err)
	}
	return nil
}

// SessionExists reports whether a document exists for id.
func (f *FS) SessionExists(id string) bool {
	path, err := f.docPath(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
