package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/starford/tether/internal/checksum"
	"github.com/starford/tether/internal/models"
	"github.com/starford/tether/internal/placement"
)

// DefaultTrashDir is the vault folder that receives removed notes.
const DefaultTrashDir = ".trash"

const tmpPrefix = ".tether-tmp-"

// FSOption configures an FS provider.
type FSOption func(*FS)

// WithTrashDir sets the vault-relative trash folder.
func WithTrashDir(dir string) FSOption {
	return func(f *FS) {
		if d := strings.Trim(filepath.ToSlash(dir), "/"); d != "" {
			f.trash = d
		}
	}
}

// FS implements Provider backed by the local file system.
type FS struct {
	root     string // absolute path to vault directory
	trash    string
	mu       sync.RWMutex
	revealed mapset.Set[string] // dot folders walks still enter
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...FSOption) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	f := &FS{root: abs, trash: DefaultTrashDir, revealed: mapset.NewThreadUnsafeSet[string]()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute vault directory.
func (f *FS) Root() string {
	return f.root
}

// TrashDir returns the vault-relative trash folder.
func (f *FS) TrashDir() string {
	return f.trash
}

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	// Ensure the resolved path is still under root.
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes vault root: %s", rel)
	}
	return abs, nil
}

// rel converts an absolute path under root back to a vault path.
func (f *FS) rel(abs string) string {
	r, _ := filepath.Rel(f.root, abs)
	return filepath.ToSlash(r)
}

// Reveal replaces the set of dot folders that walks enter. A folder given
// as "a/.notes" also matches any "x/a/.notes", so relative note subfolders
// are found under every source folder.
func (f *FS) Reveal(dirs ...string) {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, d := range dirs {
		if d = strings.Trim(filepath.ToSlash(d), "/"); d != "" {
			set.Add(d)
		}
	}
	f.mu.Lock()
	f.revealed = set
	f.mu.Unlock()
}

func (f *FS) isRevealed(dir string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, r := range f.revealed.ToSlice() {
		if dir == r || strings.HasPrefix(r, dir+"/") || strings.HasSuffix(dir, "/"+r) {
			return true
		}
	}
	return false
}

// Skips reports whether rel lies in a folder walks leave out: the trash,
// or a dot folder (.git, .obsidian) that was not revealed.
func (f *FS) Skips(rel string) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" {
		return false
	}
	if rel == f.trash || strings.HasPrefix(rel, f.trash+"/") {
		return true
	}
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, ".") && !f.isRevealed(strings.Join(parts[:i+1], "/")) {
			return true
		}
	}
	return false
}

func (f *FS) walk(dir string, visit func(abs string, d fs.DirEntry) error) error {
	base, err := f.safePath(dir)
	if err != nil {
		return err
	}
	return filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != base && f.Skips(f.rel(p)) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		return visit(p, d)
	})
}

// List walks dir and returns metadata for every .md file.
func (f *FS) List(dir string) ([]models.NoteMetadata, error) {
	var out []models.NoteMetadata
	err := f.walk(dir, func(p string, d fs.DirEntry) error {
		if !placement.IsNote(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out = append(out, models.NoteMetadata{
			Path:      f.rel(p),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// ListFiles walks dir and returns every file that is not a note.
func (f *FS) ListFiles(dir string) ([]models.SourceFile, error) {
	var out []models.SourceFile
	err := f.walk(dir, func(p string, d fs.DirEntry) error {
		if placement.IsNote(d.Name()) {
			return nil
		}
		out = append(out, models.NewSourceFile(f.rel(p)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list files: %w", err)
	}
	return out, nil
}

// Stat resolves a vault path to a file handle.
func (f *FS) Stat(p string) (models.SourceFile, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return models.SourceFile{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return models.SourceFile{}, fmt.Errorf("storage: stat %s: %w", p, err)
	}
	if info.IsDir() {
		return models.SourceFile{}, fmt.Errorf("storage: %s is a directory", p)
	}
	return models.NewSourceFile(f.rel(abs)), nil
}

// Exists reports whether anything exists at p.
func (f *FS) Exists(p string) bool {
	abs, err := f.safePath(p)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(p string) ([]byte, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(p string, content []byte) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// MkdirAll creates a vault folder chain.
func (f *FS) MkdirAll(dir string) error {
	abs, err := f.safePath(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	return nil
}

// Delete removes a file from the vault.
func (f *FS) Delete(p string) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", p, err)
	}
	return nil
}

// Trash moves a file under the trash folder, keeping its relative directory.
// An occupied trash slot gets a " (n)" suffix instead of being overwritten.
func (f *FS) Trash(p string) (string, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("storage: trash %s: %w", p, err)
	}
	rel := f.rel(abs)
	dst := path.Join(f.trash, rel)
	ext := path.Ext(dst)
	stem := strings.TrimSuffix(dst, ext)
	for i := 1; f.Exists(dst); i++ {
		dst = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
	if err := f.Move(rel, dst); err != nil {
		return "", fmt.Errorf("storage: trash %s: %w", p, err)
	}
	return dst, nil
}

// Move renames a file within the vault.
func (f *FS) Move(oldPath, newPath string) error {
	absOld, err := f.safePath(oldPath)
	if err != nil {
		return err
	}
	absNew, err := f.safePath(newPath)
	if err != nil {
		return err
	}
	dir := filepath.Dir(absNew)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for move: %w", err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("storage: move: %w", err)
	}
	return nil
}

// IsNotExist reports whether err means the path is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
