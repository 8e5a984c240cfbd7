package retrace

import "sync"

// Publisher delivers loclist events to the connected editor client.
type Publisher interface {
	PublishEvent(eventType string, data any)
}

// EventList is a ListSink that mirrors the location list in memory and
// publishes every change to the editor, which owns the real window. The
// editor reports the window being closed through Invalidate.
type EventList struct {
	mu      sync.Mutex
	pub     Publisher
	entries []ListEntry
	valid   bool
}

// NewEventList creates an empty, invalid list.
func NewEventList(pub Publisher) *EventList {
	return &EventList{pub: pub}
}

// Set replaces the list contents and asks the editor to open the view.
func (l *EventList) Set(entries []ListEntry) error {
	l.mu.Lock()
	l.entries = append([]ListEntry(nil), entries...)
	l.valid = true
	l.mu.Unlock()

	l.pub.PublishEvent("loclist.set", map[string]any{
		"entries": entries,
		"open":    true,
	})
	return nil
}

// Focus moves the list cursor, centering the viewport on it.
func (l *EventList) Focus(index int) error {
	l.pub.PublishEvent("loclist.focus", map[string]any{
		"index":  index,
		"center": true,
	})
	return nil
}

// Clear empties the list and closes the view.
func (l *EventList) Clear() error {
	l.mu.Lock()
	l.entries = nil
	l.valid = false
	l.mu.Unlock()

	l.pub.PublishEvent("loclist.clear", map[string]any{})
	return nil
}

// Valid reports whether the editor still shows the list.
func (l *EventList) Valid() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.valid
}

// Invalidate records that the editor closed the list window on its own.
// A later Clear becomes a no-op instead of an error.
func (l *EventList) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.valid = false
}

// Entries returns a copy of the current list contents.
func (l *EventList) Entries() []ListEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ListEntry(nil), l.entries...)
}
