package index

import (
	"log/slog"

	"github.com/starford/tether/internal/storage"
)

// SyncResult counts the index rows a Sync touched.
type SyncResult struct {
	Indexed int
	Removed int
}

// Sync brings the index in line with the notes on disk. Notes whose
// checksum is unchanged are skipped; rows for vanished notes are dropped.
// Per-note failures are logged and do not stop the walk.
func Sync(db NoteIndex, store storage.Provider, logger *slog.Logger) (SyncResult, error) {
	var res SyncResult
	metas, err := store.List("")
	if err != nil {
		return res, err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return res, err
	}

	for _, m := range metas {
		known, ok := checksums[m.Path]
		delete(checksums, m.Path)
		if ok && known == m.Checksum {
			continue
		}
		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := db.IndexNote(m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		res.Indexed++
	}

	// Whatever is left in checksums no longer exists on disk.
	for p := range checksums {
		if err := db.DeleteNote(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		res.Removed++
	}

	if res.Indexed > 0 || res.Removed > 0 {
		logger.Debug("sync: done", slog.Int("indexed", res.Indexed), slog.Int("removed", res.Removed))
	}
	return res, nil
}
