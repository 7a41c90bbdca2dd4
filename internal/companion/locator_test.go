package companion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tether/internal/apperr"
	"github.com/starford/tether/internal/models"
	"github.com/starford/tether/internal/placement"
	"github.com/starford/tether/internal/testutil"
)

func TestLocator_PathDerived(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFiles(t, store, map[string]string{
		"Videos/clip.mp4":      "bin",
		"Videos/Notes/clip.md": "note",
		"Videos/clip.md":       "colocated note",
		"Videos/other.mp4":     "bin",
	})
	loc := NewLocator(store, nil)
	clip := models.NewSourceFile("Videos/clip.mp4")

	note, err := loc.Find(NewSettings(SettingsInput{}), clip)
	require.NoError(t, err)
	assert.Equal(t, "Videos/clip.md", note.Path)

	note, err = loc.Find(NewSettings(SettingsInput{NotesFolder: "./Notes"}), clip)
	require.NoError(t, err)
	assert.Equal(t, "Videos/Notes/clip.md", note.Path)

	_, err = loc.Find(NewSettings(SettingsInput{}), models.NewSourceFile("Videos/missing.mp4"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLocator_DeclaredScan(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFiles(t, store, map[string]string{
		"Notes/report.md":     BindingBlock("A/report.pdf"),
		"Notes/report (1).md": BindingBlock("B/report.pdf"),
		"Notes/plain.md":      "no frontmatter",
		"Notes/number.md":     "---\nsource: 42\n---\n",
		"Notes/broken.md":     "---\nsource: \"[[B/report.pdf\"\n---\n",
		"Elsewhere/b.md":      BindingBlock("C/report.pdf"),
	})
	loc := NewLocator(store, nil)
	settings := NewSettings(SettingsInput{NotesFolder: "Notes"})

	note, err := loc.Find(settings, models.NewSourceFile("B/report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "Notes/report (1).md", note.Path)
	assert.Equal(t, "B/report.pdf", note.Source)

	_, err = loc.Find(settings, models.NewSourceFile("C/report.pdf"))
	assert.ErrorIs(t, err, apperr.ErrNotFound, "notes outside the central folder are ignored")
}

func TestLocator_DeclaredUsesIndex(t *testing.T) {
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	files := map[string]string{
		"Notes/report.md":     BindingBlock("A/report.pdf"),
		"Notes/report (1).md": BindingBlock("B/report.pdf"),
	}
	testutil.WriteFiles(t, store, files)
	for p, c := range files {
		require.NoError(t, db.IndexNote(p, []byte(c)))
	}

	loc := NewLocator(store, db)
	settings := NewSettings(SettingsInput{NotesFolder: "Notes"})
	note, err := loc.Find(settings, models.NewSourceFile("B/report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "Notes/report (1).md", note.Path)

	// A stale index entry whose file is gone is not a match.
	_, err = store.Trash("Notes/report (1).md")
	require.NoError(t, err)
	_, err = loc.Find(settings, models.NewSourceFile("B/report.pdf"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLocator_DeclaredTieBreakByPath(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFiles(t, store, map[string]string{
		"Notes/z.md": BindingBlock("A/report.pdf"),
		"Notes/b.md": BindingBlock("A/report.pdf"),
		"Notes/m.md": BindingBlock("A/report.pdf"),
	})
	note, err := NewLocator(store, nil).Find(NewSettings(SettingsInput{NotesFolder: "Notes"}), models.NewSourceFile("A/report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "Notes/b.md", note.Path)
}

func TestLocator_DeclaredWithoutCentralFolder(t *testing.T) {
	_, store := testutil.TestVault(t)
	testutil.WriteFiles(t, store, map[string]string{"a.md": BindingBlock("a.pdf")})
	loc := NewLocator(store, nil)

	_, err := loc.findDeclared(placement.Parse(""), models.NewSourceFile("a.pdf"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = loc.findDeclared(placement.Parse("Missing"), models.NewSourceFile("a.pdf"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

type failingIndex struct{ err error }

func (f failingIndex) Frontmatter(string) (map[string]any, error) { return nil, f.err }
func (f failingIndex) NotesBySource(string) ([]string, error)     { return nil, f.err }

func TestLocator_IndexFailureIsAnError(t *testing.T) {
	_, store := testutil.TestVault(t)
	require.NoError(t, store.MkdirAll("Notes"))
	boom := errors.New("disk I/O error")

	_, err := NewLocator(store, failingIndex{err: boom}).Find(NewSettings(SettingsInput{NotesFolder: "Notes"}), models.NewSourceFile("a.pdf"))
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, apperr.ErrNotFound))
}
