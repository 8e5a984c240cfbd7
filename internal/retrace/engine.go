// Package retrace implements replay mode: sequential navigation through a
// session's notes in insertion order, driving an editor-side location list
// and the note display.
//
// The engine is a two-state machine (inactive/active) owning at most one
// replay at a time. It deliberately does not observe session mutations:
// code that changes notes while retrace is active must call Refresh (the
// daemon publishes session.updated events as the cue). Foreseeable
// conditions such as boundary navigation or an empty session are user
// notifications, never errors.
package retrace

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/notetext"
)

// ListEntry is one row of the navigable location list.
type ListEntry struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// ListSink is the editor-facing location list the engine drives.
type ListSink interface {
	// Set replaces the list contents and opens its companion view.
	Set(entries []ListEntry) error
	// Focus moves the list cursor to the 1-based index and centers it.
	Focus(index int) error
	// Clear empties the list and closes the view.
	Clear() error
	// Valid reports whether the editor still shows the list. A list the
	// user already closed is treated as cleaned up, not as an error.
	Valid() bool
}

// Display renders the current note into its buffer.
type Display interface {
	ShowVirtualLine(buffer string, n models.Note)
}

// Notifier delivers user-facing messages.
type Notifier interface {
	Info(msg string)
	Warn(msg string)
}

// Source resolves the freshest copy of a session. Refresh uses it so note
// mutations made through any surface become visible.
type Source interface {
	Load(id string) (*models.Session, error)
}

// State is a read-only snapshot of an active retrace.
type State struct {
	SessionID   string `json:"session_id"`
	SessionName string `json:"session_name"`
	Index       int    `json:"index"`
	Total       int    `json:"total"`
}

// Engine owns the single retrace instance. Construct exactly one in the
// application wiring; all command surfaces share it.
type Engine struct {
	mu      sync.Mutex
	sink    ListSink
	display Display
	notify  Notifier
	source  Source
	logger  *slog.Logger

	sess  *models.Session
	index int // 1-based into sess.Notes; 0 when inactive
}

// New creates an engine. source may be nil, in which case Refresh reuses
// the session object handed to Start.
func New(sink ListSink, display Display, notify Notifier, source Source, logger *slog.Logger) *Engine {
	return &Engine{sink: sink, display: display, notify: notify, source: source, logger: logger}
}

// Start enters retrace mode over the session's notes. A session without
// notes is refused with a warning. Starting while already active replaces
// the previous replay.
func (e *Engine) Start(sess *models.Session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(sess.Notes) == 0 {
		e.notify.Warn("No notes in session: " + sess.Name)
		return false
	}
	if e.sess != nil {
		e.teardownLocked()
	}

	if err := e.sink.Set(buildEntries(sess.Notes)); err != nil {
		e.logger.Error("retrace: creating location list failed", slog.String("error", err.Error()))
		e.notify.Warn("Could not create location list")
		return false
	}

	e.sess = sess
	e.index = 1
	// The start message already carries the position, so showing the
	// current note must not announce it a second time.
	e.showCurrentLocked(false)
	e.notify.Info(fmt.Sprintf("Retrace mode started - Note 1/%d", len(sess.Notes)))
	return true
}

// Stop leaves retrace mode. Calling it while inactive warns and is
// otherwise a no-op.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		e.notify.Warn("Not in retrace mode")
		return false
	}
	e.teardownLocked()
	e.notify.Info("Retrace mode stopped")
	return true
}

// Next advances to the following note, clamping at the end.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		e.notify.Warn("Not in retrace mode")
		return
	}
	if e.index >= len(e.sess.Notes) {
		e.notify.Warn("Already at last note")
		return
	}
	e.index++
	e.showCurrentLocked(true)
}

// Prev steps back to the previous note, clamping at the start.
func (e *Engine) Prev() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		e.notify.Warn("Not in retrace mode")
		return
	}
	if e.index <= 1 {
		e.notify.Warn("Already at first note")
		return
	}
	e.index--
	e.showCurrentLocked(true)
}

// Refresh rebuilds the location list from the current session notes,
// clamping the cursor to the new length. A session that lost all its notes
// stops retrace mode entirely: an empty replay has no valid position.
// While inactive, Refresh is a no-op.
func (e *Engine) Refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return
	}

	if e.source != nil {
		latest, err := e.source.Load(e.sess.ID)
		if err != nil {
			e.logger.Warn("retrace: refresh reload failed",
				slog.String("session", e.sess.ID),
				slog.String("error", err.Error()))
		} else {
			e.sess = latest
		}
	}

	notes := e.sess.Notes
	if len(notes) == 0 {
		e.teardownLocked()
		e.notify.Warn("All notes removed - retrace mode stopped")
		return
	}

	if err := e.sink.Set(buildEntries(notes)); err != nil {
		e.logger.Error("retrace: rebuilding location list failed", slog.String("error", err.Error()))
		return
	}
	if e.index > len(notes) {
		e.index = len(notes)
		// Only a clamped cursor moves the view.
		e.showCurrentLocked(true)
	}
}

// CurrentState returns a snapshot of the active retrace, or nil.
func (e *Engine) CurrentState() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil
	}
	return &State{
		SessionID:   e.sess.ID,
		SessionName: e.sess.Name,
		Index:       e.index,
		Total:       len(e.sess.Notes),
	}
}

// Active reports whether a retrace is in progress.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess != nil
}

// teardownLocked releases the external list and discards state. The list
// is only cleared while the editor still shows it.
func (e *Engine) teardownLocked() {
	if e.sink.Valid() {
		if err := e.sink.Clear(); err != nil {
			e.logger.Warn("retrace: clearing location list failed", slog.String("error", err.Error()))
		}
	}
	e.sess = nil
	e.index = 0
}

func (e *Engine) showCurrentLocked(announce bool) {
	n := e.sess.Notes[e.index-1]
	if err := e.sink.Focus(e.index); err != nil {
		e.logger.Warn("retrace: focus failed", slog.String("error", err.Error()))
	}
	e.display.ShowVirtualLine(n.File, n)
	if announce {
		e.notify.Info(fmt.Sprintf("Note %d/%d", e.index, len(e.sess.Notes)))
	}
}

// buildEntries maps notes to list rows one-to-one, preserving order so the
// engine cursor and the list index stay in lockstep by construction.
func buildEntries(notes []models.Note) []ListEntry {
	entries := make([]ListEntry, len(notes))
	for i := range notes {
		entries[i] = ListEntry{
			File: notes[i].File,
			Line: notes[i].Line,
			Text: notetext.Flatten(notes[i].Content),
		}
	}
	return entries
}
