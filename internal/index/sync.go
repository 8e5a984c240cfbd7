package index

import (
	"log/slog"

	"github.com/starford/raido/internal/storage"
)

// Sync brings the index in line with the session documents on disk:
//   - every stored session is wholesale reindexed
//   - index entries for sessions no longer on disk are removed
//
// Session documents are small, so rebuilding beats change detection.
func Sync(db NoteIndex, store storage.Provider, logger *slog.Logger) error {
	sessions, err := store.ListSessions()
	if err != nil {
		return err
	}

	indexed, err := db.SessionIDs()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(sessions))
	for _, sess := range sessions {
		disk[sess.ID] = struct{}{}

		rows := make([]NoteRow, len(sess.Notes))
		for i := range sess.Notes {
			rows[i] = RowFromNote(sess.ID, &sess.Notes[i])
		}
		if err := db.ReindexSession(sess.ID, rows); err != nil {
			logger.Warn("sync: reindex failed",
				slog.String("session", sess.ID),
				slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed",
				slog.String("session", sess.ID),
				slog.Int("notes", len(rows)))
		}
	}

	// Remove stale sessions.
	for id := range indexed {
		if _, ok := disk[id]; !ok {
			if err := db.DeleteSession(id); err != nil {
				logger.Warn("sync: delete failed", slog.String("session", id), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("session", id))
			}
		}
	}

	return nil
}
