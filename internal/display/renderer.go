// Package display renders note decorations (gutter marks plus above-line
// virtual text) for editor buffers. The daemon owns the decoration state;
// the editor client applies the events it receives over SSE and reports
// which buffers it has open.
package display

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/notetext"
)

const virtualPrefix = "Note: "

// Decoration is one rendered note inside a buffer. Preview is the
// single-line gutter text, bounded by the configured preview length; Text
// is the full above-line block.
type Decoration struct {
	NoteID  string   `json:"note_id"`
	Line    int      `json:"line"`
	Preview string   `json:"preview"`
	Text    []string `json:"text"`
}

// Publisher delivers decoration events to connected editor clients.
type Publisher interface {
	PublishEvent(eventType string, data any)
}

// Renderer tracks per-buffer decorations and publishes changes.
type Renderer struct {
	mu         sync.Mutex
	pub        Publisher
	logger     *slog.Logger
	previewLen int
	buffers    map[string]*bufferState
}

type bufferState struct {
	lineCount   int
	decorations []Decoration
}

// NewRenderer creates a renderer publishing through pub. previewLen bounds
// the gutter preview text; zero or negative falls back to the default.
func NewRenderer(pub Publisher, previewLen int, logger *slog.Logger) *Renderer {
	if previewLen <= 0 {
		previewLen = notetext.DefaultPreviewLength
	}
	return &Renderer{
		pub:        pub,
		logger:     logger,
		previewLen: previewLen,
		buffers:    make(map[string]*bufferState),
	}
}

// TrackBuffer registers an open editor buffer and its current line count.
// Decorations are only rendered into tracked buffers.
func (r *Renderer) TrackBuffer(buffer string, lineCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.buffers[buffer]
	if !ok {
		state = &bufferState{}
		r.buffers[buffer] = state
	}
	state.lineCount = lineCount
}

// UntrackBuffer forgets a closed buffer. Silent for unknown buffers.
func (r *Renderer) UntrackBuffer(buffer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buffers, buffer)
}

// RefreshBuffer clears then re-renders all given notes' decorations in one
// buffer, published as a single event.
func (r *Renderer) RefreshBuffer(buffer string, notes []models.Note) {
	r.mu.Lock()
	state, ok := r.buffers[buffer]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("display: refresh for untracked buffer", slog.String("buffer", buffer))
		return
	}
	state.decorations = state.decorations[:0]
	for i := range notes {
		if d, ok := r.decorate(state, &notes[i]); ok {
			state.decorations = append(state.decorations, d)
		}
	}
	snapshot := append([]Decoration(nil), state.decorations...)
	r.mu.Unlock()

	r.publish(buffer, snapshot)
}

// ShowVirtualLine renders one note's gutter marker and above-line text
// block. An untracked buffer or out-of-range line is a silent no-op.
func (r *Renderer) ShowVirtualLine(buffer string, n models.Note) {
	r.mu.Lock()
	state, ok := r.buffers[buffer]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("display: untracked buffer", slog.String("buffer", buffer))
		return
	}
	d, ok := r.decorate(state, &n)
	if !ok {
		r.mu.Unlock()
		return
	}

	// Replace any existing decoration for the same note.
	replaced := false
	for i := range state.decorations {
		if state.decorations[i].NoteID == d.NoteID {
			state.decorations[i] = d
			replaced = true
			break
		}
	}
	if !replaced {
		state.decorations = append(state.decorations, d)
	}
	snapshot := append([]Decoration(nil), state.decorations...)
	r.mu.Unlock()

	r.publish(buffer, snapshot)
}

// ClearBuffer removes all decorations from a buffer.
func (r *Renderer) ClearBuffer(buffer string) {
	r.mu.Lock()
	state, ok := r.buffers[buffer]
	if ok {
		state.decorations = nil
	}
	r.mu.Unlock()
	if ok {
		r.publish(buffer, nil)
	}
}

// Decorations returns the current decorations of a buffer, for replaying
// to a reconnecting client.
func (r *Renderer) Decorations(buffer string) []Decoration {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.buffers[buffer]
	if !ok {
		return nil
	}
	return append([]Decoration(nil), state.decorations...)
}

func (r *Renderer) decorate(state *bufferState, n *models.Note) (Decoration, bool) {
	if n.Line < 1 || (state.lineCount > 0 && n.Line > state.lineCount) {
		r.logger.Debug("display: note line out of range",
			slog.String("note", n.ID),
			slog.Int("line", n.Line))
		return Decoration{}, false
	}
	return Decoration{
		NoteID:  n.ID,
		Line:    n.Line,
		Preview: notetext.Preview(n.Content, r.previewLen),
		Text:    virtualLines(n.Content),
	}, true
}

// virtualLines builds the above-line text block: the first line carries the
// prefix, continuation lines are indented to line up under it.
func virtualLines(content string) []string {
	lines := strings.Split(content, "\n")
	out := make([]string, len(lines))
	indent := strings.Repeat(" ", len(virtualPrefix))
	for i, line := range lines {
		if i == 0 {
			out[i] = virtualPrefix + line
		} else {
			out[i] = indent + line
		}
	}
	return out
}

func (r *Renderer) publish(buffer string, decorations []Decoration) {
	if decorations == nil {
		decorations = []Decoration{}
	}
	r.pub.PublishEvent("decorations", map[string]any{
		"buffer":      buffer,
		"decorations": decorations,
	})
}
