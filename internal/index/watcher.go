package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tether/internal/checksum"
	"github.com/starford/tether/internal/placement"
	"github.com/starford/tether/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after every vault change the watcher processes,
// for notes and non-note files alike. kind is one of the Event constants.
type EventCallback func(kind string, path string)

// WatchOption configures Watch.
type WatchOption func(*watchConfig)

type watchConfig struct {
	store   storage.Provider
	ignored []string
}

// IgnoreDir excludes a vault-relative folder from watching, on top of the
// folders the store itself skips.
func IgnoreDir(dir string) WatchOption {
	return func(c *watchConfig) {
		if d := strings.Trim(filepath.ToSlash(dir), "/"); d != "" {
			c.ignored = append(c.ignored, d)
		}
	}
}

func (c *watchConfig) skip(rel string) bool {
	if c.store.Skips(rel) {
		return true
	}
	for _, d := range c.ignored {
		if rel == d || strings.HasPrefix(rel, d+"/") {
			return true
		}
	}
	return false
}

// Watch starts an fsnotify watcher on the vault root and processes file
// change events until ctx is cancelled. Notes are kept current in the index;
// cb (if non-nil) is called for every processed change.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass that removes stale
// index entries whose files no longer exist on disk.
func Watch(ctx context.Context, db NoteIndex, store storage.Provider, vaultRoot string, logger *slog.Logger, cb EventCallback, opts ...WatchOption) error {
	cfg := &watchConfig{store: store}
	for _, opt := range opts {
		opt(cfg)
	}
	notify := func(kind, rel string) {
		if cb != nil {
			cb(kind, rel)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot, vaultRoot, cfg); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcileAfterRename(db, store, logger, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name
			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if cfg.skip(rel) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, vaultRoot, absPath, cfg); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					indexNewDir(db, store, vaultRoot, absPath, cfg, logger, notify)
					continue
				}
			}

			isNote := placement.IsNote(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind := EventUpdated
				if ev.Op&fsnotify.Create != 0 {
					kind = EventCreated
				}
				if isNote {
					data, readErr := store.Read(rel)
					if readErr != nil {
						logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
						continue
					}
					// Notes written through the companion service are already indexed.
					if cs, _ := db.GetChecksum(rel); !checksum.Matches(cs, data) {
						if idxErr := db.IndexNote(rel, data); idxErr != nil {
							logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
							continue
						}
						logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
					}
				}
				notify(kind, rel)

			case ev.Op&fsnotify.Remove != 0:
				if isNote {
					if delErr := db.DeleteNote(rel); delErr != nil {
						logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
						continue
					}
					logger.Debug("watcher: deleted", slog.String("path", rel))
				}
				notify(EventDeleted, rel)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. The new
				// path arrives as a separate Create event when it stays
				// inside a watched dir.
				if isNote {
					if delErr := db.DeleteNote(rel); delErr != nil {
						logger.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
						scheduleReconcile()
						continue
					}
					logger.Debug("watcher: rename old deleted", slog.String("path", rel))
				}
				notify(EventDeleted, rel)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcileAfterRename removes index entries without a file on disk and
// indexes on-disk notes that are missing or stale.
func reconcileAfterRename(db NoteIndex, store storage.Provider, logger *slog.Logger, notify EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	metas, err := store.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if delErr := db.DeleteNote(p); delErr == nil {
				logger.Debug("reconcile: removed stale", slog.String("path", p))
				notify(EventDeleted, p)
			}
		}
	}

	for p, cs := range disk {
		if checksums[p] == cs {
			continue
		}
		data, readErr := store.Read(p)
		if readErr != nil {
			continue
		}
		if idxErr := db.IndexNote(p, data); idxErr == nil {
			logger.Debug("reconcile: indexed new", slog.String("path", p))
			notify(EventCreated, p)
		}
	}
}

// indexNewDir reports every file of a newly created directory and indexes its notes.
func indexNewDir(db NoteIndex, store storage.Provider, vaultRoot, dirPath string, cfg *watchConfig, logger *slog.Logger, notify EventCallback) {
	_ = filepath.WalkDir(dirPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(vaultRoot, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if cfg.skip(rel) {
			return nil
		}
		if placement.IsNote(rel) {
			data, readErr := store.Read(rel)
			if readErr != nil {
				return nil
			}
			if idxErr := db.IndexNote(rel, data); idxErr != nil {
				return nil
			}
			logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
		}
		notify(EventCreated, rel)
		return nil
	})
}

// addDirsRecursive adds root and all its non-ignored subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, vaultRoot, dir string, cfg *watchConfig) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(vaultRoot, p); relErr == nil && rel != "." && cfg.skip(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
