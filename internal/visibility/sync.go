// Package visibility keeps the presentation of source files in step with
// the existence of their companion notes.
package visibility

import (
	"context"
	"log/slog"
	"path"
	"sync"

	"github.com/starford/tether/internal/companion"
	"github.com/starford/tether/internal/models"
	"github.com/starford/tether/internal/placement"
)

// Finder locates the companion note of a source file.
type Finder interface {
	FindNote(ctx context.Context, src models.SourceFile) (*models.Note, error)
}

// Synchronizer hides source files that have a companion note.
type Synchronizer struct {
	finder Finder
	logger *slog.Logger

	mu        sync.Mutex
	tree      Tree
	enabled   bool
	anyHidden bool
}

// NewSynchronizer creates a Synchronizer. Hiding follows settings.HideSources.
func NewSynchronizer(finder Finder, settings companion.Settings, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{finder: finder, logger: logger, enabled: settings.HideSources}
}

// SetTree attaches the presentation tree. Until then Refresh does nothing.
func (s *Synchronizer) SetTree(t Tree) {
	s.mu.Lock()
	s.tree = t
	s.mu.Unlock()
}

// SetSettings applies a new configuration snapshot.
func (s *Synchronizer) SetSettings(settings companion.Settings) {
	s.mu.Lock()
	s.enabled = settings.HideSources
	s.mu.Unlock()
}

// Refresh recomputes the hidden flag of every source item and returns how
// many flags changed.
func (s *Synchronizer) Refresh(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tree == nil || (!s.enabled && !s.anyHidden) {
		return 0
	}

	changed := 0
	anyHidden := false
	for _, item := range s.tree.Items() {
		p := item.Path()
		if placement.IsNote(p) || path.Ext(p) == "" {
			continue
		}
		hide := false
		if s.enabled {
			_, err := s.finder.FindNote(ctx, models.NewSourceFile(p))
			hide = err == nil
		}
		if item.Hidden() != hide {
			item.SetHidden(hide)
			changed++
		}
		if hide {
			anyHidden = true
		}
	}
	s.anyHidden = anyHidden

	if changed > 0 {
		s.logger.DebugContext(ctx, "visibility: refreshed", slog.Int("changed", changed))
	}
	return changed
}
