package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if err := fs.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return fs
}

func sampleSession(id, name string) *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Notes:     []models.Note{},
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := tempStore(t)
	sess := sampleSession("abc", "review")
	sess.Branch = "feature/x"
	sess.Notes = append(sess.Notes, models.NewNote("/src/main.go", 10, 14, "check this"))

	if err := s.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	got, err := s.LoadSession("abc")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.Name != "review" || got.Branch != "feature/x" {
		t.Errorf("loaded = %+v", got)
	}
	if len(got.Notes) != 1 || got.Notes[0].LastLine() != 14 {
		t.Errorf("notes = %+v", got.Notes)
	}
}

func TestSingleLineNoteOmitsEndLine(t *testing.T) {
	s := tempStore(t)
	sess := sampleSession("single", "s")
	sess.Notes = append(sess.Notes, models.NewNote("/a.go", 5, 5, "x"))
	if err := s.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(s.Root(), "single.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(raw), "end_line") {
		t.Errorf("single-line note serialized an end_line field: %s", raw)
	}
}

func TestLoadLegacyDocumentWithoutEndLine(t *testing.T) {
	s := tempStore(t)
	doc := map[string]any{
		"id":         "legacy",
		"name":       "legacy",
		"created_at": time.Now().UTC(),
		"updated_at": time.Now().UTC(),
		"notes": []map[string]any{
			{"id": "n1", "file": "/a.go", "line": 7, "content": "old note", "created_at": time.Now().UTC()},
		},
	}
	raw, _ := json.Marshal(doc)
	if err := os.WriteFile(filepath.Join(s.Root(), "legacy.json"), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadSession("legacy")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	n := got.Notes[0]
	if n.LastLine() != 7 {
		t.Errorf("LastLine = %d, want 7", n.LastLine())
	}
	if !n.Contains(7) || n.Contains(8) {
		t.Errorf("range resolution wrong: contains(7)=%v contains(8)=%v", n.Contains(7), n.Contains(8))
	}
}

func TestLoadMissing(t *testing.T) {
	s := tempStore(t)
	if _, err := s.LoadSession("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListSkipsMalformedAndForeignFiles(t *testing.T) {
	s := tempStore(t)
	_ = s.SaveSession(sampleSession("ok", "good"))
	_ = os.WriteFile(filepath.Join(s.Root(), "broken.json"), []byte("{nope"), 0o644)
	_ = os.WriteFile(filepath.Join(s.Root(), "readme.txt"), []byte("not a session"), 0o644)

	sessions, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "ok" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestListOrderedByUpdatedAtDesc(t *testing.T) {
	s := tempStore(t)
	old := sampleSession("old", "old")
	old.UpdatedAt = time.Now().Add(-time.Hour)
	recent := sampleSession("recent", "recent")

	_ = s.SaveSession(old)
	_ = s.SaveSession(recent)

	sessions, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len = %d", len(sessions))
	}
	if sessions[0].ID != "recent" {
		t.Errorf("first = %q, want recent", sessions[0].ID)
	}
}

func TestListMissingRootIsEmpty(t *testing.T) {
	fs, err := NewFS(filepath.Join(t.TempDir(), "never-created"))
	if err != nil {
		t.Fatal(err)
	}
	sessions, err := fs.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("len = %d, want 0", len(sessions))
	}
}

func TestDeleteAndExists(t *testing.T) {
	s := tempStore(t)
	_ = s.SaveSession(sampleSession("gone", "gone"))
	if !s.SessionExists("gone") {
		t.Fatal("expected session to exist")
	}
	if err := s.DeleteSession("gone"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if s.SessionExists("gone") {
		t.Error("session still exists after delete")
	}
	if err := s.DeleteSession("gone"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestInvalidIDsRejected(t *testing.T) {
	s := tempStore(t)
	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		if _, err := s.LoadSession(id); err == nil {
			t.Errorf("LoadSession(%q) succeeded", id)
		}
		if err := s.SaveSession(sampleSession(id, "x")); err == nil {
			t.Errorf("SaveSession(%q) succeeded", id)
		}
	}
}
