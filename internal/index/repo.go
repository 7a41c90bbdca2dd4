package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/tether/internal/checksum"
	"github.com/starford/tether/internal/parser"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path        string
	Checksum    string
	Source      string
	Frontmatter map[string]any
	Tags        []string
	UpdatedAt   time.Time
}

// IndexNote parses data and upserts it under path.
func (db *DB) IndexNote(path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	return db.UpsertNote(NoteRow{
		Path:        path,
		Checksum:    checksum.Sum(data),
		Source:      res.Source,
		Frontmatter: res.Frontmatter,
		Tags:        res.Tags,
		UpdatedAt:   time.Now(),
	}, res.Links)
}

// UpsertNote inserts or replaces a note and its links within a transaction.
func (db *DB) UpsertNote(n NoteRow, links []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)
	fm := n.Frontmatter
	if fm == nil {
		fm = map[string]any{}
	}
	fmJSON, err := json.Marshal(fm)
	if err != nil {
		return fmt.Errorf("index: encode frontmatter %s: %w", n.Path, err)
	}

	_, err = tx.Exec(`
		INSERT INTO notes (path, checksum, source, frontmatter, tags, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum    = excluded.checksum,
			source      = excluded.source,
			frontmatter = excluded.frontmatter,
			tags        = excluded.tags,
			updated_at  = excluded.updated_at
	`, n.Path, n.Checksum, n.Source, string(fmJSON), string(tagsJSON), n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// Replace links: delete old then bulk insert.
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, n.Path)
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range links {
			if _, err := stmt.Exec(n.Path, target); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteNote removes a note and its outgoing links.
func (db *DB) DeleteNote(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM notes WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a note, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// Frontmatter returns the indexed frontmatter snapshot of a note.
// Unknown notes and notes without frontmatter yield a nil map.
func (db *DB) Frontmatter(path string) (map[string]any, error) {
	var raw string
	err := db.conn.QueryRow(`SELECT frontmatter FROM notes WHERE path = ?`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: frontmatter %s: %w", path, err)
	}
	var fm map[string]any
	if err := json.Unmarshal([]byte(raw), &fm); err != nil {
		return nil, fmt.Errorf("index: decode frontmatter %s: %w", path, err)
	}
	if len(fm) == 0 {
		return nil, nil
	}
	return fm, nil
}

// NotesBySource returns the notes declaring source as their binding,
// ordered by note path.
func (db *DB) NotesBySource(source string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT path FROM notes WHERE source = ? ORDER BY path`, source)
	if err != nil {
		return nil, fmt.Errorf("index: notes by source: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// AllChecksums returns every indexed note path mapped to its checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns all note paths that link to or embed the given target.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT source FROM links WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
