package visibility

import (
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/starford/tether/internal/storage"
)

// Item is one presentable entry of a file tree.
type Item interface {
	Path() string
	Hidden() bool
	SetHidden(hidden bool)
}

// Tree exposes the items currently presented to the user.
type Tree interface {
	Items() []Item
}

// Entry is a snapshot of one FileTree item.
type Entry struct {
	Path   string `json:"path"`
	Note   bool   `json:"note"`
	Hidden bool   `json:"hidden"`
}

// FileTree is the presentable tree of vault files.
type FileTree struct {
	store storage.Provider

	mu      sync.RWMutex
	entries []Entry
	hidden  mapset.Set[string]
}

// NewFileTree returns an empty tree over store. Call Reload to populate it.
func NewFileTree(store storage.Provider) *FileTree {
	return &FileTree{store: store, hidden: mapset.NewSet[string]()}
}

// Reload re-reads the vault. Hidden flags of surviving paths are kept.
func (t *FileTree) Reload() error {
	notes, err := t.store.List("")
	if err != nil {
		return fmt.Errorf("visibility: reload: %w", err)
	}
	files, err := t.store.ListFiles("")
	if err != nil {
		return fmt.Errorf("visibility: reload: %w", err)
	}

	entries := make([]Entry, 0, len(notes)+len(files))
	present := mapset.NewThreadUnsafeSetWithSize[string](len(notes) + len(files))
	for _, n := range notes {
		entries = append(entries, Entry{Path: n.Path, Note: true})
		present.Add(n.Path)
	}
	for _, f := range files {
		entries = append(entries, Entry{Path: f.Path})
		present.Add(f.Path)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	t.mu.Lock()
	t.entries = entries
	for _, p := range t.hidden.ToSlice() {
		if !present.Contains(p) {
			t.hidden.Remove(p)
		}
	}
	t.mu.Unlock()
	return nil
}

// Items implements Tree.
func (t *FileTree) Items() []Item {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Item, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, fileItem{tree: t, path: e.Path})
	}
	return out
}

// Snapshot returns the entries in path order. Hidden entries are left out
// unless all is set.
func (t *FileTree) Snapshot(all bool) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		e.Hidden = t.hidden.Contains(e.Path)
		if e.Hidden && !all {
			continue
		}
		out = append(out, e)
	}
	return out
}

// HiddenCount returns the number of hidden entries.
func (t *FileTree) HiddenCount() int {
	return t.hidden.Cardinality()
}

type fileItem struct {
	tree *FileTree
	path string
}

func (i fileItem) Path() string { return i.path }

func (i fileItem) Hidden() bool { return i.tree.hidden.Contains(i.path) }

func (i fileItem) SetHidden(hidden bool) {
	if hidden {
		i.tree.hidden.Add(i.path)
	} else {
		i.tree.hidden.Remove(i.path)
	}
}
