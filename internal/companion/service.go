package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/starford/tether/internal/apperr"
	"github.com/starford/tether/internal/models"
	"github.com/starford/tether/internal/notify"
	"github.com/starford/tether/internal/placement"
	"github.com/starford/tether/internal/storage"
)

// eventCreated matches the watcher's event kind for added files.
const eventCreated = "created"

// Index is the metadata index the service keeps current with its own writes.
type Index interface {
	MetadataReader
	IndexNote(path string, data []byte) error
	DeleteNote(path string) error
}

// BatchResult aggregates the outcome of a batch operation.
type BatchResult struct {
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Listener observes successful note creation and removal.
type Listener interface {
	NoteCreated(src models.SourceFile, notePath string)
	NoteRemoved(src models.SourceFile, notePath string)
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the sink for user-facing notices.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithListener registers l for note lifecycle events.
func WithListener(l Listener) Option {
	return func(s *Service) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service creates, removes and locates companion notes.
type Service struct {
	store     storage.Provider
	index     Index
	locator   *Locator
	notifier  notify.Notifier
	listeners []Listener
	logger    *slog.Logger

	mu       sync.RWMutex
	settings Settings

	// opMu serializes the lookup-then-write of create and remove.
	opMu sync.Mutex
}

// revealer is implemented by stores that hide dot folders from walks.
type revealer interface {
	Reveal(dirs ...string)
}

// NewService creates a companion service. idx may be nil, in which case
// frontmatter is parsed from the store on every declared lookup.
func NewService(store storage.Provider, idx Index, settings Settings, opts ...Option) *Service {
	s := &Service{
		store:    store,
		index:    idx,
		notifier: notify.Nop{},
		logger:   slog.Default(),
		settings: settings,
	}
	var meta MetadataReader
	if idx != nil {
		meta = idx
	}
	s.locator = NewLocator(store, meta)
	for _, opt := range opts {
		opt(s)
	}
	s.reveal(settings)
	return s
}

// Settings returns the current configuration snapshot.
func (s *Service) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetSettings replaces the configuration snapshot.
func (s *Service) SetSettings(settings Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	s.reveal(settings)
}

// reveal lets the store walk a dot-named notes folder.
func (s *Service) reveal(settings Settings) {
	if r, ok := s.store.(revealer); ok {
		r.Reveal(settings.Placement.Folder())
	}
}

// Source resolves a vault path to an existing source file.
func (s *Service) Source(p string) (models.SourceFile, error) {
	src, err := s.store.Stat(p)
	if err != nil {
		return models.SourceFile{}, fmt.Errorf("companion: source %s: %w", p, apperr.ErrNotFound)
	}
	if placement.IsNote(src.Path) {
		return models.SourceFile{}, fmt.Errorf("companion: %s is a note: %w", p, apperr.ErrInvalid)
	}
	return src, nil
}

// NotePath returns where the note for src lives or would be created.
func (s *Service) NotePath(_ context.Context, src models.SourceFile) string {
	settings := s.Settings()
	if note, err := s.locator.Find(settings, src); err == nil {
		return note.Path
	}
	return settings.Placement.UniquePath(src, s.store.Exists)
}

// FindNote returns the note bound to src, or apperr.ErrNotFound.
func (s *Service) FindNote(_ context.Context, src models.SourceFile) (*models.Note, error) {
	return s.locator.Find(s.Settings(), src)
}

// CreateNote creates the companion note of src.
func (s *Service) CreateNote(ctx context.Context, src models.SourceFile) (*models.Note, error) {
	note, err := s.create(s.Settings(), src)
	switch {
	case err == nil:
		s.notifier.Notify(notify.LevelInfo, fmt.Sprintf("Created note for %s", src.Name))
	case errors.Is(err, apperr.ErrAlreadyExists):
		s.notifier.Notify(notify.LevelInfo, fmt.Sprintf("Note already exists for %s", src.Name))
	default:
		s.logger.ErrorContext(ctx, "companion: create failed",
			slog.String("source", src.Path),
			slog.String("error", err.Error()))
		s.notifier.Notify(notify.LevelError, fmt.Sprintf("Failed to create note for %s: %s", src.Name, reason(err)))
	}
	return note, err
}

// RemoveNote moves the companion note of src to the vault trash.
func (s *Service) RemoveNote(ctx context.Context, src models.SourceFile) error {
	notePath, err := s.remove(s.Settings(), src)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "companion: removed", slog.String("source", src.Path), slog.String("note", notePath))
		s.notifier.Notify(notify.LevelInfo, fmt.Sprintf("Removed note for %s", src.Name))
	case errors.Is(err, apperr.ErrNotFound):
		s.notifier.Notify(notify.LevelInfo, fmt.Sprintf("Note does not exist for %s", src.Name))
	default:
		s.logger.ErrorContext(ctx, "companion: remove failed",
			slog.String("source", src.Path),
			slog.String("error", err.Error()))
		s.notifier.Notify(notify.LevelError, fmt.Sprintf("Failed to remove note for %s: %s", src.Name, reason(err)))
	}
	return err
}

// CreateNotes creates notes for every source in order. Sources that already
// have a note are skipped; a failing source never stops the batch.
func (s *Service) CreateNotes(ctx context.Context, srcs []models.SourceFile) BatchResult {
	settings := s.Settings()
	var res BatchResult
	for _, src := range srcs {
		_, err := s.create(settings, src)
		switch {
		case err == nil:
			res.Success++
		case errors.Is(err, apperr.ErrAlreadyExists):
			res.Skipped++
		default:
			res.Failed++
			s.logger.ErrorContext(ctx, "companion: batch create failed",
				slog.String("source", src.Path),
				slog.String("error", err.Error()))
		}
	}
	s.notifyBatch("Created", res)
	return res
}

// RemoveNotes trashes the notes of every source in order. Sources without a
// note are skipped; a failing source never stops the batch.
func (s *Service) RemoveNotes(ctx context.Context, srcs []models.SourceFile) BatchResult {
	settings := s.Settings()
	var res BatchResult
	for _, src := range srcs {
		_, err := s.remove(settings, src)
		switch {
		case err == nil:
			res.Success++
		case errors.Is(err, apperr.ErrNotFound):
			res.Skipped++
		default:
			res.Failed++
			s.logger.ErrorContext(ctx, "companion: batch remove failed",
				slog.String("source", src.Path),
				slog.String("error", err.Error()))
		}
	}
	s.notifyBatch("Removed", res)
	return res
}

// ExistingNotes returns the subset of srcs that currently have a note.
func (s *Service) ExistingNotes(_ context.Context, srcs []models.SourceFile) []models.SourceFile {
	settings := s.Settings()
	out := make([]models.SourceFile, 0, len(srcs))
	for _, src := range srcs {
		if _, err := s.locator.Find(settings, src); err == nil {
			out = append(out, src)
		}
	}
	return out
}

// Files lists every non-note file under dir.
func (s *Service) Files(dir string) ([]models.SourceFile, error) {
	return s.store.ListFiles(dir)
}

// EligibleSources lists the files under dir that take part in folder-wide
// note creation.
func (s *Service) EligibleSources(_ context.Context, dir string) ([]models.SourceFile, error) {
	settings := s.Settings()
	files, err := s.store.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make([]models.SourceFile, 0, len(files))
	for _, f := range files {
		if settings.Eligible(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// HandleFileEvent creates a note for a newly added eligible source when
// auto-create is enabled.
func (s *Service) HandleFileEvent(ctx context.Context, kind, p string) {
	settings := s.Settings()
	if kind != eventCreated || !settings.AutoCreate {
		return
	}
	src, err := s.store.Stat(p)
	if err != nil || placement.IsNote(src.Path) || !settings.Eligible(src) {
		return
	}
	if _, err := s.locator.Find(settings, src); err == nil {
		return
	}
	_, _ = s.CreateNote(ctx, src)
}

func (s *Service) create(settings Settings, src models.SourceFile) (*models.Note, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if _, err := s.locator.Find(settings, src); err == nil {
		return nil, apperr.ErrAlreadyExists
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	notePath := settings.Placement.UniquePath(src, s.store.Exists)
	if dir := path.Dir(notePath); dir != "." && !s.store.Exists(dir) {
		if err := s.store.MkdirAll(dir); err != nil {
			return nil, fmt.Errorf("companion: create %s: %w", notePath, err)
		}
	}

	content := BuildContent(src, settings.Template, settings.DeclareBinding)
	if err := s.store.Write(notePath, []byte(content)); err != nil {
		return nil, fmt.Errorf("companion: create %s: %w", notePath, err)
	}
	if s.index != nil {
		if err := s.index.IndexNote(notePath, []byte(content)); err != nil {
			s.logger.Error("companion: index new note failed",
				slog.String("note", notePath),
				slog.String("error", err.Error()))
		}
	}

	note := &models.Note{Path: notePath, Body: content}
	if settings.DeclareBinding {
		note.Source = src.Path
	}
	s.logger.Debug("companion: created", slog.String("source", src.Path), slog.String("note", notePath))
	for _, l := range s.listeners {
		l.NoteCreated(src, notePath)
	}
	return note, nil
}

func (s *Service) remove(settings Settings, src models.SourceFile) (string, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	note, err := s.locator.Find(settings, src)
	if err != nil {
		return "", err
	}
	if _, err := s.store.Trash(note.Path); err != nil {
		return "", fmt.Errorf("companion: remove %s: %w", note.Path, err)
	}
	if s.index != nil {
		if err := s.index.DeleteNote(note.Path); err != nil {
			s.logger.Error("companion: unindex note failed",
				slog.String("note", note.Path),
				slog.String("error", err.Error()))
		}
	}
	for _, l := range s.listeners {
		l.NoteRemoved(src, note.Path)
	}
	return note.Path, nil
}

func (s *Service) notifyBatch(verb string, res BatchResult) {
	level := notify.LevelInfo
	if res.Failed > 0 {
		level = notify.LevelError
	}
	s.notifier.Notify(level, fmt.Sprintf("%s %d notes (%d skipped, %d failed)", verb, res.Success, res.Skipped, res.Failed))
}

// reason unwraps err to its innermost message.
func reason(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
