package api

import (
	"net/http"
)

func (h *Handler) retraceState() RetraceResponse {
	st := h.engine.CurrentState()
	return RetraceResponse{Active: st != nil, State: st}
}

// publishRetrace mirrors the engine state to SSE clients so editor
// frontends can follow commands issued from elsewhere.
func (h *Handler) publishRetrace(resp RetraceResponse) {
	h.broker.PublishEvent("retrace", resp)
}

func (h *Handler) getRetrace(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.retraceState())
}

func (h *Handler) startRetrace(w http.ResponseWriter, r *http.Request) {
	var req StartRetraceRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	sess, err := h.svc.Load(req.SessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.engine.Start(sess)
	resp := h.retraceState()
	h.publishRetrace(resp)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) stopRetrace(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop()
	resp := h.retraceState()
	h.publishRetrace(resp)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) nextRetrace(w http.ResponseWriter, r *http.Request) {
	h.engine.Next()
	resp := h.retraceState()
	h.publishRetrace(resp)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) prevRetrace(w http.ResponseWriter, r *http.Request) {
	h.engine.Prev()
	resp := h.retraceState()
	h.publishRetrace(resp)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) refreshRetrace(w http.ResponseWriter, r *http.Request) {
	h.engine.Refresh()
	resp := h.retraceState()
	h.publishRetrace(resp)
	writeJSON(w, http.StatusOK, resp)
}

// loclistClosed is the editor's report that the user closed the location
// list window. The engine's next teardown then skips the clear event for a
// window that no longer exists.
func (h *Handler) loclistClosed(w http.ResponseWriter, r *http.Request) {
	h.loclist.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}
