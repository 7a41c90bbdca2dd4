package companion

import (
	"fmt"
	"sort"

	"github.com/starford/tether/internal/apperr"
	"github.com/starford/tether/internal/models"
	"github.com/starford/tether/internal/parser"
	"github.com/starford/tether/internal/placement"
	"github.com/starford/tether/internal/storage"
)

// MetadataReader reports the structured frontmatter of a note.
// A nil map means the note has none.
type MetadataReader interface {
	Frontmatter(path string) (map[string]any, error)
}

// SourceIndex maps a declared source path to the notes declaring it,
// ordered by note path.
type SourceIndex interface {
	NotesBySource(source string) ([]string, error)
}

// StoreMetadata reads frontmatter by parsing notes straight from the store.
type StoreMetadata struct {
	store storage.Provider
}

// NewStoreMetadata returns a MetadataReader backed by store.
func NewStoreMetadata(store storage.Provider) *StoreMetadata {
	return &StoreMetadata{store: store}
}

// Frontmatter parses the note at path.
func (m *StoreMetadata) Frontmatter(path string) (map[string]any, error) {
	data, err := m.store.Read(path)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	return res.Frontmatter, nil
}

// Locator finds the note currently bound to a source file.
type Locator struct {
	store storage.Provider
	meta  MetadataReader
}

// NewLocator creates a Locator. When meta also implements SourceIndex,
// declared bindings are looked up through it instead of scanning.
func NewLocator(store storage.Provider, meta MetadataReader) *Locator {
	if meta == nil {
		meta = NewStoreMetadata(store)
	}
	return &Locator{store: store, meta: meta}
}

// Find returns the note bound to src, or apperr.ErrNotFound. A note is
// never a source, so note paths fail with apperr.ErrInvalid.
func (l *Locator) Find(settings Settings, src models.SourceFile) (*models.Note, error) {
	if placement.IsNote(src.Path) {
		return nil, fmt.Errorf("companion: %s is a note: %w", src.Path, apperr.ErrInvalid)
	}
	if settings.DeclaredLookup() {
		return l.findDeclared(settings.Placement, src)
	}
	return l.findDerived(settings, src)
}

func (l *Locator) findDerived(settings Settings, src models.SourceFile) (*models.Note, error) {
	p := settings.Placement.BasePath(src)
	if _, err := l.store.Stat(p); err != nil {
		return nil, apperr.ErrNotFound
	}
	note := &models.Note{Path: p}
	if fm, err := l.meta.Frontmatter(p); err == nil {
		note.Frontmatter = fm
		note.Source, _ = parser.DeclaredSource(fm)
	}
	return note, nil
}

func (l *Locator) findDeclared(policy placement.Policy, src models.SourceFile) (*models.Note, error) {
	folder := policy.Folder()
	if folder == "" || !l.store.Exists(folder) {
		return nil, apperr.ErrNotFound
	}

	candidates, err := l.candidates(folder, src)
	if err != nil {
		return nil, err
	}
	for _, p := range candidates {
		if !policy.Contains(p) || !l.store.Exists(p) {
			continue
		}
		fm, err := l.meta.Frontmatter(p)
		if err != nil || fm == nil {
			continue
		}
		declared, ok := parser.DeclaredSource(fm)
		if !ok || declared != src.Path {
			continue
		}
		return &models.Note{Path: p, Source: declared, Frontmatter: fm}, nil
	}
	return nil, apperr.ErrNotFound
}

// candidates lists the notes worth checking, in ascending path order.
func (l *Locator) candidates(folder string, src models.SourceFile) ([]string, error) {
	if idx, ok := l.meta.(SourceIndex); ok {
		paths, err := idx.NotesBySource(src.Path)
		if err != nil {
			return nil, fmt.Errorf("companion: lookup %s: %w", src.Path, err)
		}
		return paths, nil
	}

	metas, err := l.store.List(folder)
	if err != nil {
		return nil, fmt.Errorf("companion: scan %s: %w", folder, err)
	}
	paths := make([]string, 0, len(metas))
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	sort.Strings(paths)
	return paths, nil
}
