package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starford/tether/internal/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		setting string
		kind    Kind
		folder  string
	}{
		{"", Colocated, ""},
		{"   ", Colocated, ""},
		{"./Notes", RelativeSubfolder, "Notes"},
		{"./Notes/", RelativeSubfolder, "Notes"},
		{"./", Colocated, ""},
		{"Notes", CentralFolder, "Notes"},
		{"/Meta/Notes/", CentralFolder, "Meta/Notes"},
		{"/", Colocated, ""},
	}
	for _, tt := range tests {
		t.Run(tt.setting, func(t *testing.T) {
			p := Parse(tt.setting)
			assert.Equal(t, tt.kind, p.Kind())
			assert.Equal(t, tt.folder, p.Folder())
		})
	}
}

func TestPolicyStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "./Notes", "Notes"} {
		assert.Equal(t, s, Parse(s).String())
	}
}

func TestBasePath(t *testing.T) {
	clip := models.NewSourceFile("Videos/clip.mp4")
	root := models.NewSourceFile("scan.tar.gz")

	tests := []struct {
		name    string
		setting string
		src     models.SourceFile
		want    string
	}{
		{"colocated", "", clip, "Videos/clip.md"},
		{"colocated root", "", root, "scan.tar.md"},
		{"relative", "./Notes", clip, "Videos/Notes/clip.md"},
		{"relative root", "./Notes", root, "Notes/scan.tar.md"},
		{"central", "Notes", clip, "Notes/clip.md"},
		{"central root", "Notes", root, "Notes/scan.tar.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.setting).BasePath(tt.src))
		})
	}
}

func TestBasePath_ScopedPlacementsNeverCollide(t *testing.T) {
	a := models.NewSourceFile("A/report.pdf")
	b := models.NewSourceFile("B/report.pdf")
	for _, setting := range []string{"", "./Notes"} {
		p := Parse(setting)
		assert.NotEqual(t, p.BasePath(a), p.BasePath(b), "setting %q", setting)
	}
}

func TestUniquePath_ScopedReturnsBase(t *testing.T) {
	src := models.NewSourceFile("A/report.pdf")
	always := func(string) bool { return true }
	assert.Equal(t, "A/report.md", Parse("").UniquePath(src, always))
	assert.Equal(t, "A/Notes/report.md", Parse("./Notes").UniquePath(src, always))
}

func TestUniquePath_CentralProbesInOrder(t *testing.T) {
	src := models.NewSourceFile("B/report.pdf")
	p := Parse("Notes")

	taken := map[string]bool{}
	var checked []string
	exists := func(path string) bool {
		checked = append(checked, path)
		return taken[path]
	}

	assert.Equal(t, "Notes/report.md", p.UniquePath(src, exists))

	taken["Notes/report.md"] = true
	assert.Equal(t, "Notes/report (1).md", p.UniquePath(src, exists))

	taken["Notes/report (1).md"] = true
	taken["Notes/report (2).md"] = true
	checked = nil
	got := p.UniquePath(src, exists)
	assert.Equal(t, "Notes/report (3).md", got)
	assert.Equal(t, []string{
		"Notes/report.md",
		"Notes/report (1).md",
		"Notes/report (2).md",
		"Notes/report (3).md",
	}, checked)
	assert.False(t, taken[got])
}

func TestUniquePath_CentralFillsGap(t *testing.T) {
	src := models.NewSourceFile("C/report.pdf")
	taken := map[string]bool{"Notes/report.md": true, "Notes/report (2).md": true}
	got := Parse("Notes").UniquePath(src, func(p string) bool { return taken[p] })
	assert.Equal(t, "Notes/report (1).md", got)
}

func TestIsNoteAndContains(t *testing.T) {
	assert.True(t, IsNote("a/b.md"))
	assert.True(t, IsNote("a/B.MD"))
	assert.False(t, IsNote("a/b.pdf"))
	assert.False(t, IsNote("README"))

	p := Parse("Notes")
	assert.True(t, p.Contains("Notes/report.md"))
	assert.False(t, p.Contains("NotesArchive/report.md"))
	assert.False(t, Parse("./Notes").Contains("Notes/report.md"))
}
