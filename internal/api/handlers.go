package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/display"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/retrace"
	"github.com/starford/raido/internal/session"
	"github.com/starford/raido/internal/sse"
)

const defaultSearchLimit = 20

// Handler bundles the service dependencies behind the HTTP surface.
type Handler struct {
	svc      *session.Service
	db       index.NoteIndex
	engine   *retrace.Engine
	loclist  *retrace.EventList
	renderer *display.Renderer
	broker   *sse.Broker
	logger   *slog.Logger
}

// NewHandler builds the API handler set.
func NewHandler(svc *session.Service, db index.NoteIndex, engine *retrace.Engine, loclist *retrace.EventList, renderer *display.Renderer, broker *sse.Broker, logger *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		db:       db,
		engine:   engine,
		loclist:  loclist,
		renderer: renderer,
		broker:   broker,
		logger:   logger,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrProtected):
		writeJSON(w, http.StatusForbidden, errorBody(err.Error()))
	default:
		h.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func decode(r *http.Request, dst interface{ Validate() error }) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return dst.Validate()
}

func sessionChecksum(sess *models.Session) string {
	data, err := json.Marshal(sess)
	if err != nil {
		return ""
	}
	return checksum.Sum(data)
}

func sessionResponse(sess *models.Session) SessionResponse {
	return SessionResponse{Session: sess, Checksum: sessionChecksum(sess)}
}

func summarize(sess *models.Session) SessionSummary {
	return SessionSummary{
		ID:        sess.ID,
		Name:      sess.Name,
		Branch:    sess.Branch,
		NoteCount: len(sess.Notes),
		UpdatedAt: sess.UpdatedAt.Format(time.RFC3339),
	}
}

// afterNoteChange fans a note mutation out to the index, the decoration
// renderer and any retrace replay of the same session.
func (h *Handler) afterNoteChange(sess *models.Session, file string) {
	h.broker.PublishSessionEvent("updated", sess.ID)
	h.renderer.RefreshBuffer(file, h.svc.NotesForFile(sess, file))
	if st := h.engine.CurrentState(); st != nil && st.SessionID == sess.ID {
		h.engine.Refresh()
	}
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.List()
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		items = append(items, summarize(sess))
	}
	writeJSON(w, http.StatusOK, SessionListResponse{Sessions: items, Total: len(items)})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	sess, err := h.svc.Create(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.broker.PublishSessionEvent("updated", sess.ID)
	writeJSON(w, http.StatusCreated, sessionResponse(sess))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Load(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

func (h *Handler) renameSession(w http.ResponseWriter, r *http.Request) {
	var req RenameSessionRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.svc.Rename(id, req.Name); err != nil {
		h.writeError(w, err)
		return
	}
	sess, err := h.svc.Load(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.broker.PublishSessionEvent("updated", id)
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(id); err != nil {
		h.writeError(w, err)
		return
	}
	if st := h.engine.CurrentState(); st != nil && st.SessionID == id {
		h.engine.Stop()
	}
	h.broker.PublishSessionEvent("deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// listNotes returns a session's notes. A file query parameter narrows the
// listing to one file; adding line resolves the single note covering that
// position, if any.
func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Load(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	file := r.URL.Query().Get("file")
	if raw := r.URL.Query().Get("line"); raw != "" {
		if file == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("line requires file"))
			return
		}
		line, err := strconv.Atoi(raw)
		if err != nil || line < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid line"))
			return
		}
		n := h.svc.NoteAtLine(sess, file, line)
		if n == nil {
			writeJSON(w, http.StatusNotFound, errorBody("no note at this line"))
			return
		}
		writeJSON(w, http.StatusOK, n)
		return
	}

	notes := sess.Notes
	if file != "" {
		notes = h.svc.NotesForFile(sess, file)
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: len(notes)})
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	var req AddNoteRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	sess, err := h.svc.Load(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	note := models.NewNote(req.File, req.Line, req.EndLine, req.Content)
	if err := h.svc.AddNote(sess, note); err != nil {
		h.writeError(w, err)
		return
	}
	h.afterNoteChange(sess, note.File)
	writeJSON(w, http.StatusCreated, note)
}

func (h *Handler) updateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	sess, err := h.svc.Load(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if match := r.Header.Get("If-Match"); match != "" && match != sessionChecksum(sess) {
		writeJSON(w, http.StatusConflict, errorBody("session changed since last read"))
		return
	}
	noteID := chi.URLParam(r, "noteID")
	if err := h.svc.UpdateNote(sess, noteID, req.Content); err != nil {
		h.writeError(w, err)
		return
	}
	pos := sess.NoteByID(noteID)
	h.afterNoteChange(sess, sess.Notes[pos].File)
	writeJSON(w, http.StatusOK, sess.Notes[pos])
}

func (h *Handler) deleteNote(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Load(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	noteID := chi.URLParam(r, "noteID")
	pos := sess.NoteByID(noteID)
	if pos < 0 {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	file := sess.Notes[pos].File
	if err := h.svc.RemoveNote(sess, noteID); err != nil {
		h.writeError(w, err)
		return
	}
	h.afterNoteChange(sess, file)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing query parameter q"))
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid limit"))
			return
		}
		limit = n
	}
	results, err := h.db.Search(query, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   len(results),
	})
}

func (h *Handler) openBuffer(w http.ResponseWriter, r *http.Request) {
	var req OpenBufferRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	h.renderer.TrackBuffer(req.Buffer, req.LineCount)
	if req.SessionID != "" {
		sess, err := h.svc.Load(req.SessionID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.renderer.RefreshBuffer(req.Buffer, h.svc.NotesForFile(sess, req.Buffer))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) closeBuffer(w http.ResponseWriter, r *http.Request) {
	var req CloseBufferRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	h.renderer.UntrackBuffer(req.Buffer)
	w.WriteHeader(http.StatusNoContent)
}

// bufferDecorations replays a buffer's current decorations so a
// reconnecting client can restore them without waiting for the next change.
func (h *Handler) bufferDecorations(w http.ResponseWriter, r *http.Request) {
	buffer := r.URL.Query().Get("buffer")
	if buffer == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing query parameter buffer"))
		return
	}
	decorations := h.renderer.Decorations(buffer)
	if decorations == nil {
		decorations = []display.Decoration{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"buffer":      buffer,
		"decorations": decorations,
	})
}
