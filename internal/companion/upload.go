package companion

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/tether/internal/apperr"
	"github.com/starford/tether/internal/models"
	"github.com/starford/tether/internal/placement"
)

var unsafeNameRe = regexp.MustCompile(`[^\p{L}\p{N} ._()-]`)

// Upload is the outcome of AddSource.
type Upload struct {
	Source models.SourceFile `json:"source"`
	Note   *models.Note      `json:"note,omitempty"`
}

// AddSource stores data as a new source file under dir and, with
// auto-create on, creates its note. A taken name gets a short random suffix.
func (s *Service) AddSource(ctx context.Context, dir, name string, data []byte) (*Upload, error) {
	name = SanitizeName(name)
	if placement.IsNote(name) {
		return nil, fmt.Errorf("companion: add source %s: notes are not sources: %w", name, apperr.ErrInvalid)
	}
	dir = strings.Trim(path.Clean("/"+strings.ReplaceAll(dir, "\\", "/")), "/")

	p := path.Join(dir, name)
	if s.store.Exists(p) {
		ext := path.Ext(name)
		p = path.Join(dir, strings.TrimSuffix(name, ext)+"-"+uuid.NewString()[:8]+ext)
	}
	if err := s.store.Write(p, data); err != nil {
		return nil, fmt.Errorf("companion: add source %s: %w", p, err)
	}

	up := &Upload{Source: models.NewSourceFile(p)}
	settings := s.Settings()
	if settings.AutoCreate && settings.Eligible(up.Source) {
		note, err := s.CreateNote(ctx, up.Source)
		if err != nil {
			return up, err
		}
		up.Note = note
	}
	return up, nil
}

// SanitizeName reduces name to a plain file name. Empty names become a UUID.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeNameRe.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		return uuid.NewString()
	}
	return name
}
