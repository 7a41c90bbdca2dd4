// Package companion binds vault source files to their companion notes:
// it locates, creates and removes notes under the configured placement.
package companion

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/starford/tether/internal/models"
	"github.com/starford/tether/internal/placement"
)

// DefaultTemplate embeds the source file in its note.
const DefaultTemplate = "![[" + FilenamePlaceholder + "]]"

// Settings is an immutable snapshot of the companion configuration.
// Components receive a new snapshot on reload instead of sharing a mutable one.
type Settings struct {
	Placement      placement.Policy
	DeclareBinding bool
	HideSources    bool
	AutoCreate     bool
	Template       string

	extensions      mapset.Set[string]
	excludedPaths   mapset.Set[string]
	excludedFolders []string
}

// SettingsInput carries raw configuration values.
type SettingsInput struct {
	Extensions      string
	NotesFolder     string
	DeclareBinding  bool
	HideSources     bool
	AutoCreate      bool
	Template        string
	ExcludedPaths   []string
	ExcludedFolders []string
}

// NewSettings normalizes raw configuration into a snapshot. Declared
// binding is forced on under central placement.
func NewSettings(in SettingsInput) Settings {
	policy := placement.Parse(in.NotesFolder)

	excluded := mapset.NewThreadUnsafeSet[string]()
	for _, p := range in.ExcludedPaths {
		if p = normalizePath(p); p != "" {
			excluded.Add(p)
		}
	}
	var folders []string
	for _, f := range in.ExcludedFolders {
		if f = normalizePath(f); f != "" {
			folders = append(folders, f)
		}
	}

	return Settings{
		Placement:       policy,
		DeclareBinding:  in.DeclareBinding || policy.IsCentral(),
		HideSources:     in.HideSources,
		AutoCreate:      in.AutoCreate,
		Template:        in.Template,
		extensions:      ParseExtensions(in.Extensions),
		excludedPaths:   excluded,
		excludedFolders: folders,
	}
}

// ParseExtensions splits a comma-separated allow-list into lower-cased
// extensions without dots.
func ParseExtensions(list string) mapset.Set[string] {
	out := mapset.NewThreadUnsafeSet[string]()
	for _, ext := range strings.Split(list, ",") {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			out.Add(ext)
		}
	}
	return out
}

// DeclaredLookup reports whether notes are located by their declared source.
// Only central placement scans by declaration; scoped placements always
// derive the note from the source path.
func (s Settings) DeclaredLookup() bool {
	return s.DeclareBinding && s.Placement.IsCentral()
}

// Extensions returns the allow-list in sorted order.
func (s Settings) Extensions() []string {
	if s.extensions == nil {
		return nil
	}
	out := s.extensions.ToSlice()
	sort.Strings(out)
	return out
}

// AllowsExtension reports whether src has an allow-listed extension.
func (s Settings) AllowsExtension(src models.SourceFile) bool {
	return s.extensions != nil && s.extensions.Contains(src.Ext())
}

// Excluded reports whether src is excluded by path or by folder prefix.
func (s Settings) Excluded(src models.SourceFile) bool {
	if s.excludedPaths != nil && s.excludedPaths.Contains(src.Path) {
		return true
	}
	for _, f := range s.excludedFolders {
		if strings.HasPrefix(src.Path, f+"/") {
			return true
		}
	}
	return false
}

// Eligible reports whether src takes part in automatic and folder-wide
// note creation.
func (s Settings) Eligible(src models.SourceFile) bool {
	return !placement.IsNote(src.Path) && s.AllowsExtension(src) && !s.Excluded(src)
}

func normalizePath(p string) string {
	return strings.Trim(strings.TrimSpace(strings.ReplaceAll(p, "\\", "/")), "/")
}
