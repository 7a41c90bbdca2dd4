// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/tether/internal/models"

// Provider is the interface for vault file operations. All paths are
// relative to the vault root and use forward slashes.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// ListFiles returns every non-note file under dir.
	ListFiles(dir string) ([]models.SourceFile, error)
	// Stat resolves path to a file handle. Directories are rejected.
	Stat(path string) (models.SourceFile, error)
	// Exists reports whether a file or folder exists at path.
	Exists(path string) bool
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
	// Delete removes the file at path.
	Delete(path string) error
	// Trash moves the file at path into the vault trash and returns its new path.
	Trash(path string) (string, error)
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Skips reports whether walks leave the folder at rel out.
	Skips(rel string) bool
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
