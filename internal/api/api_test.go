package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/raido/internal/display"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/retrace"
	"github.com/starford/raido/internal/session"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/storage"
)

type quietNotifier struct{}

func (quietNotifier) Info(string) {}
func (quietNotifier) Warn(string) {}

// testEnv sets up a temp store, SQLite index, service, engine, and router.
// authToken == "" means auth disabled.
func testEnv(t *testing.T, authToken string) (*session.Service, http.Handler) {
	t.Helper()
	svc, router, _ := testEnvFull(t, authToken)
	return svc, router
}

func testEnvFull(t *testing.T, authToken string) (*session.Service, http.Handler, *retrace.EventList) {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.NewFS(filepath.Join(dir, "sessions"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if err := store.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	db, err := index.Open(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := session.NewService(store, db, dir)

	broker := sse.NewBroker(time.Second)
	t.Cleanup(broker.Close)

	renderer := display.NewRenderer(broker, 0, logger)
	sink := retrace.NewEventList(broker)
	engine := retrace.New(sink, renderer, quietNotifier{}, svc, logger)

	h := NewHandler(svc, db, engine, sink, renderer, broker, logger)
	return svc, NewRouter(h, authToken != "", authToken, broker), sink
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetSession(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "auth refactor"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Name != "auth refactor" {
		t.Fatalf("name = %q", created.Name)
	}
	if created.Checksum == "" {
		t.Fatal("expected a checksum")
	}

	w = doJSON(t, router, http.MethodGet, "/sessions/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
}

func TestCreateSessionDuplicateName(t *testing.T) {
	_, router := testEnv(t, "")

	if w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "dup"}); w.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "dup"}); w.Code != http.StatusConflict {
		t.Fatalf("second create status = %d, want 409", w.Code)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	_, router := testEnv(t, "")
	if w := doJSON(t, router, http.MethodGet, "/sessions/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestRenameSession(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "old"})
	var created SessionResponse
	json.Unmarshal(w.Body.Bytes(), &created)

	w = doJSON(t, router, http.MethodPatch, "/sessions/"+created.ID, map[string]string{"name": "new"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename status = %d, body = %s", w.Code, w.Body.String())
	}
	var renamed SessionResponse
	json.Unmarshal(w.Body.Bytes(), &renamed)
	if renamed.Name != "new" {
		t.Fatalf("name = %q", renamed.Name)
	}
}

func TestDeleteDefaultSessionForbidden(t *testing.T) {
	svc, router := testEnv(t, "")
	if _, err := svc.GetOrCreateDefault(context.Background()); err != nil {
		t.Fatalf("GetOrCreateDefault: %v", err)
	}
	if w := doJSON(t, router, http.MethodDelete, "/sessions/"+models.DefaultSessionID, nil); w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestNoteLifecycle(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "notes"})
	var sess SessionResponse
	json.Unmarshal(w.Body.Bytes(), &sess)

	w = doJSON(t, router, http.MethodPost, "/sessions/"+sess.ID+"/notes", map[string]any{
		"file": "auth.go", "line": 12, "content": "token parsing happens here",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add note status = %d, body = %s", w.Code, w.Body.String())
	}
	var note models.Note
	json.Unmarshal(w.Body.Bytes(), &note)
	if note.ID == "" || note.Line != 12 {
		t.Fatalf("unexpected note: %+v", note)
	}

	w = doJSON(t, router, http.MethodPut, "/sessions/"+sess.ID+"/notes/"+note.ID, map[string]string{
		"content": "token parsing, now with refresh",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/sessions/"+sess.ID+"/notes", nil)
	var listed NoteListResponse
	json.Unmarshal(w.Body.Bytes(), &listed)
	if listed.Total != 1 || listed.Notes[0].Content != "token parsing, now with refresh" {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	if w := doJSON(t, router, http.MethodDelete, "/sessions/"+sess.ID+"/notes/"+note.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodDelete, "/sessions/"+sess.ID+"/notes/"+note.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("double delete status = %d, want 404", w.Code)
	}
}

func TestListNotesFilters(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "filters"})
	var sess SessionResponse
	json.Unmarshal(w.Body.Bytes(), &sess)

	doJSON(t, router, http.MethodPost, "/sessions/"+sess.ID+"/notes", map[string]any{
		"file": "a.go", "line": 3, "end_line": 8, "content": "ranged",
	})
	doJSON(t, router, http.MethodPost, "/sessions/"+sess.ID+"/notes", map[string]any{
		"file": "b.go", "line": 2, "content": "other file",
	})

	w = doJSON(t, router, http.MethodGet, "/sessions/"+sess.ID+"/notes?file=a.go", nil)
	var listed NoteListResponse
	json.Unmarshal(w.Body.Bytes(), &listed)
	if listed.Total != 1 || listed.Notes[0].File != "a.go" {
		t.Fatalf("file filter listing: %+v", listed)
	}

	w = doJSON(t, router, http.MethodGet, "/sessions/"+sess.ID+"/notes?file=a.go&line=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("at-line status = %d, body = %s", w.Code, w.Body.String())
	}
	var hit models.Note
	json.Unmarshal(w.Body.Bytes(), &hit)
	if hit.Content != "ranged" {
		t.Fatalf("at-line note = %+v", hit)
	}

	if w := doJSON(t, router, http.MethodGet, "/sessions/"+sess.ID+"/notes?file=a.go&line=20", nil); w.Code != http.StatusNotFound {
		t.Fatalf("miss status = %d, want 404", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/sessions/"+sess.ID+"/notes?line=5", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("line without file status = %d, want 400", w.Code)
	}
}

func TestUpdateNoteToEmptyContent(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "clear-out"})
	var sess SessionResponse
	json.Unmarshal(w.Body.Bytes(), &sess)

	w = doJSON(t, router, http.MethodPost, "/sessions/"+sess.ID+"/notes", map[string]any{
		"file": "a.go", "line": 1, "content": "some text",
	})
	var note models.Note
	json.Unmarshal(w.Body.Bytes(), &note)

	w = doJSON(t, router, http.MethodPut, "/sessions/"+sess.ID+"/notes/"+note.ID, map[string]string{
		"content": "",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("empty update status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated models.Note
	json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Content != "" {
		t.Fatalf("content = %q, want empty", updated.Content)
	}
}

func TestUpdateNoteIfMatchConflict(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "cas"})
	var sess SessionResponse
	json.Unmarshal(w.Body.Bytes(), &sess)

	w = doJSON(t, router, http.MethodPost, "/sessions/"+sess.ID+"/notes", map[string]any{
		"file": "main.go", "line": 1, "content": "entry point",
	})
	var note models.Note
	json.Unmarshal(w.Body.Bytes(), &note)

	body, _ := json.Marshal(map[string]string{"content": "changed"})
	req := httptest.NewRequest(http.MethodPut, "/sessions/"+sess.ID+"/notes/"+note.ID, bytes.NewReader(body))
	req.Header.Set("If-Match", "stale-checksum")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestAddNoteValidation(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "v"})
	var sess SessionResponse
	json.Unmarshal(w.Body.Bytes(), &sess)

	// Missing file.
	if w := doJSON(t, router, http.MethodPost, "/sessions/"+sess.ID+"/notes", map[string]any{"line": 3, "content": "x"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing file status = %d", w.Code)
	}
	// end_line before line.
	if w := doJSON(t, router, http.MethodPost, "/sessions/"+sess.ID+"/notes", map[string]any{
		"file": "a.go", "line": 10, "end_line": 4, "content": "x",
	}); w.Code != http.StatusBadRequest {
		t.Fatalf("inverted range status = %d", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "s"})
	var sess SessionResponse
	json.Unmarshal(w.Body.Bytes(), &sess)

	doJSON(t, router, http.MethodPost, "/sessions/"+sess.ID+"/notes", map[string]any{
		"file": "broker.go", "line": 42, "content": "fanout happens in the run loop",
	})

	w = doJSON(t, router, http.MethodGet, "/search?q=fanout", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d, body = %s", w.Code, w.Body.String())
	}
	var res struct {
		Results []index.SearchResult `json:"results"`
		Total   int                  `json:"total"`
	}
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.Total != 1 || res.Results[0].File != "broker.go" {
		t.Fatalf("unexpected results: %+v", res)
	}

	if w := doJSON(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing q status = %d", w.Code)
	}
}

func TestRetraceFlow(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "walk"})
	var sess SessionResponse
	json.Unmarshal(w.Body.Bytes(), &sess)

	for i, content := range []string{"first stop", "second stop", "third stop"} {
		doJSON(t, router, http.MethodPost, "/sessions/"+sess.ID+"/notes", map[string]any{
			"file": "walk.go", "line": (i + 1) * 10, "content": content,
		})
	}

	w = doJSON(t, router, http.MethodPost, "/retrace/start", map[string]string{"session_id": sess.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp RetraceResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Active || resp.State.Index != 1 || resp.State.Total != 3 {
		t.Fatalf("unexpected start state: %+v", resp)
	}

	w = doJSON(t, router, http.MethodPost, "/retrace/next", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.State.Index != 2 {
		t.Fatalf("index after next = %d", resp.State.Index)
	}

	w = doJSON(t, router, http.MethodPost, "/retrace/prev", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.State.Index != 1 {
		t.Fatalf("index after prev = %d", resp.State.Index)
	}

	w = doJSON(t, router, http.MethodGet, "/retrace", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Active {
		t.Fatal("expected active state")
	}

	w = doJSON(t, router, http.MethodPost, "/retrace/stop", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Active {
		t.Fatal("expected inactive state after stop")
	}
}

func TestLoclistClosedInvalidatesSink(t *testing.T) {
	_, router, sink := testEnvFull(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "closed"})
	var sess SessionResponse
	json.Unmarshal(w.Body.Bytes(), &sess)
	doJSON(t, router, http.MethodPost, "/sessions/"+sess.ID+"/notes", map[string]any{
		"file": "x.go", "line": 1, "content": "only stop",
	})

	doJSON(t, router, http.MethodPost, "/retrace/start", map[string]string{"session_id": sess.ID})
	if !sink.Valid() {
		t.Fatal("list should be valid after start")
	}

	if w := doJSON(t, router, http.MethodPost, "/retrace/loclist/closed", nil); w.Code != http.StatusNoContent {
		t.Fatalf("closed status = %d", w.Code)
	}
	if sink.Valid() {
		t.Fatal("list should be invalid after the editor reports it closed")
	}

	// Stop still works against the closed window.
	var resp RetraceResponse
	w = doJSON(t, router, http.MethodPost, "/retrace/stop", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Active {
		t.Fatal("expected inactive state after stop")
	}
}

func TestRetraceStartUnknownSession(t *testing.T) {
	_, router := testEnv(t, "")
	if w := doJSON(t, router, http.MethodPost, "/retrace/start", map[string]string{"session_id": "ghost"}); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDeleteSessionStopsRetrace(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "doomed"})
	var sess SessionResponse
	json.Unmarshal(w.Body.Bytes(), &sess)
	doJSON(t, router, http.MethodPost, "/sessions/"+sess.ID+"/notes", map[string]any{
		"file": "x.go", "line": 1, "content": "soon gone",
	})

	doJSON(t, router, http.MethodPost, "/retrace/start", map[string]string{"session_id": sess.ID})
	if w := doJSON(t, router, http.MethodDelete, "/sessions/"+sess.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}

	var resp RetraceResponse
	w = doJSON(t, router, http.MethodGet, "/retrace", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Active {
		t.Fatal("retrace should stop when its session is deleted")
	}
}

func TestBufferOpenClose(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "buf"})
	var sess SessionResponse
	json.Unmarshal(w.Body.Bytes(), &sess)
	doJSON(t, router, http.MethodPost, "/sessions/"+sess.ID+"/notes", map[string]any{
		"file": "render.go", "line": 5, "content": "decorate me",
	})

	if w := doJSON(t, router, http.MethodPost, "/buffers/open", map[string]any{
		"buffer": "render.go", "line_count": 100, "session_id": sess.ID,
	}); w.Code != http.StatusNoContent {
		t.Fatalf("open status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, router, http.MethodPost, "/buffers/close", map[string]string{"buffer": "render.go"}); w.Code != http.StatusNoContent {
		t.Fatalf("close status = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodPost, "/buffers/open", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty open status = %d", w.Code)
	}
}

func TestBufferDecorationsReplay(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"name": "replay"})
	var sess SessionResponse
	json.Unmarshal(w.Body.Bytes(), &sess)
	doJSON(t, router, http.MethodPost, "/sessions/"+sess.ID+"/notes", map[string]any{
		"file": "replay.go", "line": 3, "content": "restore me after reconnect",
	})
	doJSON(t, router, http.MethodPost, "/buffers/open", map[string]any{
		"buffer": "replay.go", "line_count": 50, "session_id": sess.ID,
	})

	w = doJSON(t, router, http.MethodGet, "/buffers/decorations?buffer=replay.go", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("decorations status = %d, body = %s", w.Code, w.Body.String())
	}
	var res struct {
		Buffer      string               `json:"buffer"`
		Decorations []display.Decoration `json:"decorations"`
	}
	json.Unmarshal(w.Body.Bytes(), &res)
	if len(res.Decorations) != 1 || res.Decorations[0].Line != 3 {
		t.Fatalf("unexpected decorations: %+v", res)
	}
	if res.Decorations[0].Preview != "restore me after reconnect" {
		t.Fatalf("preview = %q", res.Decorations[0].Preview)
	}

	// Untracked buffer replays as empty, not an error.
	w = doJSON(t, router, http.MethodGet, "/buffers/decorations?buffer=ghost.go", nil)
	var empty struct {
		Decorations []display.Decoration `json:"decorations"`
	}
	json.Unmarshal(w.Body.Bytes(), &empty)
	if w.Code != http.StatusOK || len(empty.Decorations) != 0 {
		t.Fatalf("ghost buffer: status = %d, decorations = %+v", w.Code, empty.Decorations)
	}

	if w := doJSON(t, router, http.MethodGet, "/buffers/decorations", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing buffer param status = %d, want 400", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	_, router := testEnv(t, "sekrit")

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("with token status = %d", w.Code)
	}
}
