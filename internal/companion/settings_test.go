package companion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starford/tether/internal/models"
	"github.com/starford/tether/internal/placement"
)

func TestNewSettings_CentralForcesDeclaredBinding(t *testing.T) {
	s := NewSettings(SettingsInput{NotesFolder: "Notes"})
	assert.True(t, s.DeclareBinding)
	assert.True(t, s.DeclaredLookup())

	s = NewSettings(SettingsInput{NotesFolder: "./Notes", DeclareBinding: true})
	assert.True(t, s.DeclareBinding)
	assert.False(t, s.DeclaredLookup(), "scoped placements locate by path")

	s = NewSettings(SettingsInput{})
	assert.Equal(t, placement.Colocated, s.Placement.Kind())
	assert.False(t, s.DeclareBinding)
}

func TestParseExtensions(t *testing.T) {
	set := ParseExtensions(" PDF, .mp4 ,png,, ")
	assert.True(t, set.Contains("pdf"))
	assert.True(t, set.Contains("mp4"))
	assert.True(t, set.Contains("png"))
	assert.Equal(t, 3, set.Cardinality())
}

func TestSettings_Eligible(t *testing.T) {
	s := NewSettings(SettingsInput{
		Extensions:      "pdf,MP4",
		ExcludedPaths:   []string{"Inbox/skip.pdf"},
		ExcludedFolders: []string{"Archive/", "/Private"},
	})
	assert.Equal(t, []string{"mp4", "pdf"}, s.Extensions())

	tests := []struct {
		path string
		want bool
	}{
		{"Videos/clip.MP4", true},
		{"report.pdf", true},
		{"image.png", false},
		{"Inbox/skip.pdf", false},
		{"Inbox/keep.pdf", true},
		{"Archive/old.pdf", false},
		{"Archive2/old.pdf", true},
		{"Private/deep/tax.pdf", false},
		{"notes/thing.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Eligible(models.NewSourceFile(tt.path)))
		})
	}
}
