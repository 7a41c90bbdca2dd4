// Package placement maps source files to companion note paths.
//
// A Policy is parsed from the single notes-folder setting:
//
//	""         Colocated: the note sits beside its source.
//	"./Notes"  RelativeSubfolder: the note sits in Notes/ under the source's folder.
//	"Notes"    CentralFolder: every note sits in the vault-level Notes/ folder.
//
// Only CentralFolder can map two sources to the same note path, so only it
// needs collision probing.
package placement

import (
	"fmt"
	"path"
	"strings"

	"github.com/starford/tether/internal/models"
)

// NoteExt is the extension of companion notes.
const NoteExt = ".md"

const relativeMarker = "./"

// Kind identifies the active placement variant.
type Kind int

const (
	Colocated Kind = iota
	RelativeSubfolder
	CentralFolder
)

func (k Kind) String() string {
	switch k {
	case RelativeSubfolder:
		return "relative-subfolder"
	case CentralFolder:
		return "central-folder"
	default:
		return "colocated"
	}
}

// Policy is an immutable placement rule.
type Policy struct {
	kind   Kind
	folder string
}

// Parse derives a Policy from the notes-folder setting.
func Parse(setting string) Policy {
	s := strings.TrimSpace(strings.ReplaceAll(setting, "\\", "/"))
	if s == "" {
		return Policy{kind: Colocated}
	}
	kind := CentralFolder
	if strings.HasPrefix(s, relativeMarker) {
		kind = RelativeSubfolder
		s = s[len(relativeMarker):]
	}
	folder := strings.Trim(s, "/")
	if folder == "" {
		return Policy{kind: Colocated}
	}
	return Policy{kind: kind, folder: folder}
}

// Kind returns the active variant.
func (p Policy) Kind() Kind { return p.kind }

// Folder returns the subfolder or central folder name, "" when colocated.
func (p Policy) Folder() string { return p.folder }

// IsCentral reports whether all notes share one vault-level folder.
func (p Policy) IsCentral() bool { return p.kind == CentralFolder }

// String renders the policy back into its setting form.
func (p Policy) String() string {
	switch p.kind {
	case RelativeSubfolder:
		return relativeMarker + p.folder
	case CentralFolder:
		return p.folder
	default:
		return ""
	}
}

// NoteDir returns the folder the note for src is placed in ("" for the vault root).
func (p Policy) NoteDir(src models.SourceFile) string {
	switch p.kind {
	case RelativeSubfolder:
		return join(src.Parent, p.folder)
	case CentralFolder:
		return p.folder
	default:
		return src.Parent
	}
}

// BasePath returns the note path for src before any collision handling.
func (p Policy) BasePath(src models.SourceFile) string {
	return join(p.NoteDir(src), src.Stem()+NoteExt)
}

// UniquePath returns a note path for src that exists reports as free.
// Colocated and relative placements scope notes by source folder and return
// BasePath as is. Central placement tries "stem (1).md", "stem (2).md", ...
func (p Policy) UniquePath(src models.SourceFile, exists func(string) bool) string {
	base := p.BasePath(src)
	if p.kind != CentralFolder || !exists(base) {
		return base
	}
	for i := 1; ; i++ {
		candidate := join(p.folder, fmt.Sprintf("%s (%d)%s", src.Stem(), i, NoteExt))
		if !exists(candidate) {
			return candidate
		}
	}
}

// IsNote reports whether p names a companion-note-type file.
func IsNote(p string) bool {
	return strings.EqualFold(path.Ext(p), NoteExt)
}

// Contains reports whether notePath lies inside the central folder.
func (p Policy) Contains(notePath string) bool {
	return p.kind == CentralFolder && strings.HasPrefix(notePath, p.folder+"/")
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}
