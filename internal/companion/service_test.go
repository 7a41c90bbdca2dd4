package companion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tether/internal/apperr"
	"github.com/starford/tether/internal/index"
	"github.com/starford/tether/internal/models"
	"github.com/starford/tether/internal/storage"
	"github.com/starford/tether/internal/testutil"
)

func newTestService(t *testing.T, in SettingsInput, withIndex bool) (*Service, *storage.FS, *testutil.Recorder) {
	t.Helper()
	_, store := testutil.TestVault(t)
	if in.Template == "" {
		in.Template = DefaultTemplate
	}
	rec := &testutil.Recorder{}
	var idx Index
	if withIndex {
		idx = testutil.TestDB(t)
	}
	return NewService(store, idx, NewSettings(in), WithNotifier(rec)), store, rec
}

func TestService_CentralDuplicateBasenames(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, SettingsInput{NotesFolder: "Notes"}, true)
	testutil.WriteFiles(t, store, map[string]string{"A/report.pdf": "a", "B/report.pdf": "b"})

	a, err := svc.CreateNote(ctx, models.NewSourceFile("A/report.pdf"))
	require.NoError(t, err)
	b, err := svc.CreateNote(ctx, models.NewSourceFile("B/report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "Notes/report.md", a.Path)
	assert.Equal(t, "Notes/report (1).md", b.Path)

	data, err := store.Read(b.Path)
	require.NoError(t, err)
	assert.Equal(t, "---\nsource: \"[[B/report.pdf]]\"\n---\n![[report.pdf]]", string(data))

	found, err := svc.FindNote(ctx, models.NewSourceFile("B/report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "Notes/report (1).md", found.Path)
}

func TestService_CreateThenFind(t *testing.T) {
	folders := []string{"", "./Notes", "Notes", "Deep/Notes"}
	for _, folder := range folders {
		for _, declare := range []bool{false, true} {
			for _, withIndex := range []bool{false, true} {
				name := fmt.Sprintf("folder=%q/declare=%v/index=%v", folder, declare, withIndex)
				t.Run(name, func(t *testing.T) {
					ctx := context.Background()
					svc, store, _ := newTestService(t, SettingsInput{NotesFolder: folder, DeclareBinding: declare}, withIndex)
					src := models.NewSourceFile("Media/clip one.mp4")
					testutil.WriteFiles(t, store, map[string]string{src.Path: "bin"})

					_, err := svc.FindNote(ctx, src)
					require.ErrorIs(t, err, apperr.ErrNotFound)
					predicted := svc.NotePath(ctx, src)

					created, err := svc.CreateNote(ctx, src)
					require.NoError(t, err)
					assert.Equal(t, predicted, created.Path)
					assert.True(t, store.Exists(created.Path))

					found, err := svc.FindNote(ctx, src)
					require.NoError(t, err)
					assert.Equal(t, created.Path, found.Path)
					assert.Equal(t, created.Path, svc.NotePath(ctx, src))

					require.NoError(t, svc.RemoveNote(ctx, src))
					_, err = svc.FindNote(ctx, src)
					assert.ErrorIs(t, err, apperr.ErrNotFound)
					assert.False(t, store.Exists(created.Path))
				})
			}
		}
	}
}

func TestService_CreateExistingLeavesVaultUntouched(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newTestService(t, SettingsInput{}, false)
	testutil.WriteFiles(t, store, map[string]string{
		"doc.pdf": "pdf",
		"doc.md":  "hand written",
	})

	note, err := svc.CreateNote(ctx, models.NewSourceFile("doc.pdf"))
	assert.Nil(t, note)
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	assert.Equal(t, "Note already exists for doc.pdf", rec.Last())

	data, err := store.Read("doc.md")
	require.NoError(t, err)
	assert.Equal(t, "hand written", string(data))
	assert.False(t, store.Exists("doc (1).md"))
}

func TestService_RemoveMovesToTrash(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newTestService(t, SettingsInput{NotesFolder: "./Notes"}, true)
	src := models.NewSourceFile("Scans/page.png")
	testutil.WriteFiles(t, store, map[string]string{src.Path: "png"})

	_, err := svc.CreateNote(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, "Created note for page.png", rec.Last())

	require.NoError(t, svc.RemoveNote(ctx, src))
	assert.Equal(t, "Removed note for page.png", rec.Last())
	assert.True(t, store.Exists(".trash/Scans/Notes/page.md"))
	assert.True(t, store.Exists(src.Path), "the source is never touched")

	err = svc.RemoveNote(ctx, src)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "Note does not exist for page.png", rec.Last())
}

func TestService_RemoveNotesBatch(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newTestService(t, SettingsInput{}, false)

	var srcs []models.SourceFile
	for i := 0; i < 5; i++ {
		src := models.NewSourceFile(fmt.Sprintf("f%d.pdf", i))
		srcs = append(srcs, src)
		testutil.WriteFiles(t, store, map[string]string{src.Path: "pdf"})
		if i != 1 && i != 3 {
			_, err := svc.CreateNote(ctx, src)
			require.NoError(t, err)
		}
	}

	res := svc.RemoveNotes(ctx, srcs)
	assert.Equal(t, BatchResult{Success: 3, Skipped: 2}, res)
	assert.Equal(t, "Removed 3 notes (2 skipped, 0 failed)", rec.Last())
	for _, src := range srcs {
		_, err := svc.FindNote(ctx, src)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	}
}

// flakyStore fails writes whose path contains a marker.
type flakyStore struct {
	*storage.FS
	marker string
}

func (f flakyStore) Write(p string, content []byte) error {
	if strings.Contains(p, f.marker) {
		return errors.New("permission denied")
	}
	return f.FS.Write(p, content)
}

func TestService_CreateNotesContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	_, fsStore := testutil.TestVault(t)
	store := flakyStore{FS: fsStore, marker: "bad"}
	rec := &testutil.Recorder{}
	svc := NewService(store, nil, NewSettings(SettingsInput{Template: DefaultTemplate}), WithNotifier(rec))

	testutil.WriteFiles(t, fsStore, map[string]string{
		"a.pdf":   "a",
		"bad.pdf": "b",
		"c.pdf":   "c",
		"c.md":    "existing",
	})
	srcs := []models.SourceFile{
		models.NewSourceFile("a.pdf"),
		models.NewSourceFile("bad.pdf"),
		models.NewSourceFile("c.pdf"),
	}

	res := svc.CreateNotes(ctx, srcs)
	assert.Equal(t, BatchResult{Success: 1, Skipped: 1, Failed: 1}, res)
	assert.Equal(t, "Created 1 notes (1 skipped, 1 failed)", rec.Last())
	assert.True(t, fsStore.Exists("a.md"))

	_, err := svc.CreateNote(ctx, models.NewSourceFile("bad.pdf"))
	require.Error(t, err)
	assert.Equal(t, "Failed to create note for bad.pdf: permission denied", rec.Last())
}

func TestService_ExistingNotesAndEligibleSources(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, SettingsInput{
		Extensions:      "pdf,png",
		ExcludedFolders: []string{"Docs/private"},
	}, false)
	testutil.WriteFiles(t, store, map[string]string{
		"Docs/a.pdf":         "a",
		"Docs/b.png":         "b",
		"Docs/c.txt":         "c",
		"Docs/private/d.pdf": "d",
		"Docs/a.md":          "note",
	})

	eligible, err := svc.EligibleSources(ctx, "Docs")
	require.NoError(t, err)
	var paths []string
	for _, src := range eligible {
		paths = append(paths, src.Path)
	}
	assert.ElementsMatch(t, []string{"Docs/a.pdf", "Docs/b.png"}, paths)

	existing := svc.ExistingNotes(ctx, eligible)
	require.Len(t, existing, 1)
	assert.Equal(t, "Docs/a.pdf", existing[0].Path)
}

func TestService_HandleFileEventAutoCreates(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, SettingsInput{Extensions: "pdf", AutoCreate: true}, false)
	testutil.WriteFiles(t, store, map[string]string{
		"in/new.pdf":  "pdf",
		"in/skip.txt": "txt",
	})

	svc.HandleFileEvent(ctx, "created", "in/new.pdf")
	svc.HandleFileEvent(ctx, "created", "in/skip.txt")
	svc.HandleFileEvent(ctx, "created", "in/gone.pdf")
	assert.True(t, store.Exists("in/new.md"))
	assert.False(t, store.Exists("in/skip.md"))

	// Disabled auto-create ignores new files.
	settings := svc.Settings()
	settings.AutoCreate = false
	svc.SetSettings(settings)
	testutil.WriteFiles(t, store, map[string]string{"in/later.pdf": "pdf"})
	svc.HandleFileEvent(ctx, "created", "in/later.pdf")
	assert.False(t, store.Exists("in/later.md"))
}

func TestService_MalformedDeclarationsIgnored(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, SettingsInput{NotesFolder: "Notes"}, false)
	testutil.WriteFiles(t, store, map[string]string{
		"x.pdf":        "pdf",
		"Notes/x.md":   "---\nsource: \"[[x.pdf\"\n---\n",
		"Notes/bad.md": "---\nsource: [unclosed\n---\n",
	})

	_, err := svc.FindNote(ctx, models.NewSourceFile("x.pdf"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	note, err := svc.CreateNote(ctx, models.NewSourceFile("x.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "Notes/x (1).md", note.Path)
}

type recordingListener struct {
	events []string
}

func (l *recordingListener) NoteCreated(src models.SourceFile, notePath string) {
	l.events = append(l.events, "created "+src.Path+" -> "+notePath)
}

func (l *recordingListener) NoteRemoved(src models.SourceFile, notePath string) {
	l.events = append(l.events, "removed "+src.Path+" -> "+notePath)
}

func TestService_ListenerSeesLifecycle(t *testing.T) {
	ctx := context.Background()
	_, store := testutil.TestVault(t)
	l := &recordingListener{}
	svc := NewService(store, nil, NewSettings(SettingsInput{NotesFolder: "Notes", Template: DefaultTemplate}), WithListener(l))
	testutil.WriteFiles(t, store, map[string]string{"a/x.pdf": "x"})
	src := models.NewSourceFile("a/x.pdf")

	_, err := svc.CreateNote(ctx, src)
	require.NoError(t, err)
	_, err = svc.CreateNote(ctx, src)
	require.ErrorIs(t, err, apperr.ErrAlreadyExists)
	res := svc.RemoveNotes(ctx, []models.SourceFile{src})
	assert.Equal(t, 1, res.Success)

	assert.Equal(t, []string{
		"created a/x.pdf -> Notes/x.md",
		"removed a/x.pdf -> Notes/x.md",
	}, l.events)
}

func TestService_AddSource(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, SettingsInput{Extensions: "pdf", AutoCreate: true, NotesFolder: "Notes"}, true)

	up, err := svc.AddSource(ctx, "/inbox/", "scan.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "inbox/scan.pdf", up.Source.Path)
	require.NotNil(t, up.Note)
	assert.Equal(t, "Notes/scan.md", up.Note.Path)

	again, err := svc.AddSource(ctx, "inbox", "scan.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.NotEqual(t, "inbox/scan.pdf", again.Source.Path)
	assert.True(t, strings.HasPrefix(again.Source.Path, "inbox/scan-"))
	require.NotNil(t, again.Note)
	assert.Equal(t, "Notes/"+again.Source.Stem()+".md", again.Note.Path)

	plain, err := svc.AddSource(ctx, "", "notes.txt", []byte("text"))
	require.NoError(t, err)
	assert.Nil(t, plain.Note, "ineligible uploads get no note")
	assert.True(t, store.Exists("notes.txt"))

	_, err = svc.AddSource(ctx, "", "sneaky.md", []byte("x"))
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "passwd", SanitizeName("../../etc/passwd"))
	assert.Equal(t, "a_b.pdf", SanitizeName("a|b.pdf"))
	assert.Equal(t, "report (1).pdf", SanitizeName(`C:\docs\report (1).pdf`))
	assert.Equal(t, "env", SanitizeName(".env"))
	assert.Len(t, SanitizeName(""), 36)
}

func TestService_DotNotesFolder(t *testing.T) {
	cases := []struct {
		folder string
		want   string
	}{
		{".meta", ".meta/clip.md"},
		{"./.notes", "v/.notes/clip.md"},
	}
	for _, tc := range cases {
		for _, withIndex := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/index=%v", tc.folder, withIndex), func(t *testing.T) {
				ctx := context.Background()
				_, store := testutil.TestVault(t)
				var (
					idx Index
					db  *index.DB
				)
				if withIndex {
					db = testutil.TestDB(t)
					idx = db
				}
				svc := NewService(store, idx, NewSettings(SettingsInput{NotesFolder: tc.folder, Template: DefaultTemplate}))
				testutil.WriteFiles(t, store, map[string]string{"v/clip.mp4": "bin"})
				src := models.NewSourceFile("v/clip.mp4")

				note, err := svc.CreateNote(ctx, src)
				require.NoError(t, err)
				assert.Equal(t, tc.want, note.Path)

				if db != nil {
					res, err := index.Sync(db, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
					require.NoError(t, err)
					assert.Equal(t, 0, res.Removed)
				}

				found, err := svc.FindNote(ctx, src)
				require.NoError(t, err)
				assert.Equal(t, tc.want, found.Path)

				_, err = svc.CreateNote(ctx, src)
				assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
				metas, err := store.List("")
				require.NoError(t, err)
				assert.Len(t, metas, 1)
			})
		}
	}
}

func TestService_NotesAreNotSources(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, SettingsInput{}, false)
	testutil.WriteFiles(t, store, map[string]string{"journal.md": "# today"})
	journal := models.NewSourceFile("journal.md")

	res := svc.RemoveNotes(ctx, []models.SourceFile{journal})
	assert.Equal(t, BatchResult{Failed: 1}, res)
	assert.True(t, store.Exists("journal.md"))
	assert.False(t, store.Exists(".trash/journal.md"))

	assert.ErrorIs(t, svc.RemoveNote(ctx, journal), apperr.ErrInvalid)
	_, err := svc.CreateNote(ctx, journal)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = svc.FindNote(ctx, journal)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	assert.Empty(t, svc.ExistingNotes(ctx, []models.SourceFile{journal}))
	_, err = svc.Source("journal.md")
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	data, err := store.Read("journal.md")
	require.NoError(t, err)
	assert.Equal(t, "# today", string(data))
}

func TestService_ConcurrentCreateBindsOnce(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, SettingsInput{NotesFolder: "Notes"}, true)
	testutil.WriteFiles(t, store, map[string]string{"a/clip.mp4": "bin"})
	src := models.NewSourceFile("a/clip.mp4")

	var (
		wg      sync.WaitGroup
		created atomic.Int32
		exists  atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateNote(ctx, src)
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, apperr.ErrAlreadyExists):
				exists.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(7), exists.Load())
	metas, err := store.List("Notes")
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "Notes/clip.md", metas[0].Path)
}
