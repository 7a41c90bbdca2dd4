// Package models defines the domain types for Tether.
package models

import (
	"path"
	"strings"
	"time"
)

// SourceFile is a vault file that may own a companion note.
// Paths are vault-relative and always use forward slashes.
type SourceFile struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Parent string `json:"parent"` // "" for the vault root
}

// NewSourceFile builds a SourceFile handle from a vault-relative path.
func NewSourceFile(p string) SourceFile {
	p = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
	parent := path.Dir(p)
	if parent == "." || parent == "/" {
		parent = ""
	}
	return SourceFile{Path: p, Name: path.Base(p), Parent: parent}
}

// Ext returns the lower-cased extension without the leading dot.
func (s SourceFile) Ext() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(s.Name), "."))
}

// Stem returns the file name without its last extension.
func (s SourceFile) Stem() string {
	return strings.TrimSuffix(s.Name, path.Ext(s.Name))
}

// Note is a located companion note.
type Note struct {
	Path        string         `json:"path"`
	Source      string         `json:"source,omitempty"` // declared binding, if any
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Body        string         `json:"body,omitempty"`
	Checksum    string         `json:"checksum,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
