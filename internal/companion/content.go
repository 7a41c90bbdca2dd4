package companion

import (
	"strings"

	"github.com/starford/tether/internal/models"
	"github.com/starford/tether/internal/parser"
)

// FilenamePlaceholder is replaced by the source file name in templates.
const FilenamePlaceholder = "{{filename}}"

var yamlQuoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// BuildContent renders the note body for src. With declare set, a
// frontmatter block recording the binding precedes the body.
func BuildContent(src models.SourceFile, template string, declare bool) string {
	body := strings.ReplaceAll(template, FilenamePlaceholder, src.Name)
	if !declare {
		return body
	}
	return BindingBlock(src.Path) + body
}

// BindingBlock returns the three-line frontmatter declaring sourcePath.
func BindingBlock(sourcePath string) string {
	return "---\n" + parser.SourceKey + `: "[[` + yamlQuoteEscaper.Replace(sourcePath) + `]]"` + "\n---\n"
}
