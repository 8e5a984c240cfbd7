package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Sessions CRUD.
	r.Get("/sessions", h.listSessions)
	r.Post("/sessions", h.createSession)
	r.Get("/sessions/{id}", h.getSession)
	r.Patch("/sessions/{id}", h.renameSession)
	r.Delete("/sessions/{id}", h.deleteSession)

	// Notes within a session.
	r.Get("/sessions/{id}/notes", h.listNotes)
	r.Post("/sessions/{id}/notes", h.addNote)
	r.Put("/sessions/{id}/notes/{noteID}", h.updateNote)
	r.Delete("/sessions/{id}/notes/{noteID}", h.deleteNote)

	// Search across all indexed notes.
	r.Get("/search", h.search)

	// Retrace replay commands.
	r.Get("/retrace", h.getRetrace)
	r.Post("/retrace/start", h.startRetrace)
	r.Post("/retrace/stop", h.stopRetrace)
	r.Post("/retrace/next", h.nextRetrace)
	r.Post("/retrace/prev", h.prevRetrace)
	r.Post("/retrace/refresh", h.refreshRetrace)
	r.Post("/retrace/loclist/closed", h.loclistClosed)

	// Editor buffer lifecycle for decoration rendering.
	r.Post("/buffers/open", h.openBuffer)
	r.Post("/buffers/close", h.closeBuffer)
	r.Get("/buffers/decorations", h.bufferDecorations)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
