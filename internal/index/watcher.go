package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/raido/internal/storage"
)

// EventCallback is called after a watcher-driven resync for each session
// document that changed. kind is "updated" or "deleted".
type EventCallback func(kind string, sessionID string)

// Watch starts an fsnotify watcher on the session store root and keeps the
// index synchronized with out-of-band document changes (another raido
// process, or the user editing a session file directly) until ctx is
// cancelled. Events are debounced because atomic writes produce bursts.
//
// The retrace engine deliberately does not observe these events itself:
// the callback is the place to publish a change notification, and the
// editor client reacts by requesting a retrace refresh.
func Watch(ctx context.Context, db NoteIndex, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	// Debounce bursts from atomic tmp-write-rename sequences.
	var flushTimer *time.Timer
	var flushCh <-chan time.Time
	pending := make(map[string]struct{})

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(200 * time.Millisecond)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			if err := Sync(db, store, logger); err != nil {
				logger.Warn("watcher: resync failed", slog.String("error", err.Error()))
			}
			for id := range pending {
				kind := "updated"
				if !store.SessionExists(id) {
					kind = "deleted"
				}
				if cb != nil {
					cb(kind, id)
				}
				delete(pending, id)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("watcher: event",
				slog.String("op", ev.Op.String()),
				slog.String("file", name))
			pending[strings.TrimSuffix(name, ".json")] = struct{}{}
			scheduleFlush()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: error", slog.String("error", err.Error()))
		}
	}
}
