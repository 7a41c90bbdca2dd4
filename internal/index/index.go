package index

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type NoteIndex interface {
	IndexNote(path string, data []byte) error
	UpsertNote(n NoteRow, links []string) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	Frontmatter(path string) (map[string]any, error)
	NotesBySource(source string) ([]string, error)
	Backlinks(target string) ([]string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
