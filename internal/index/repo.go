package index

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/veddartha/cairn/internal/models"
)

// Row represents one artifact row in the index. Path is project-relative.
type Row struct {
	Path        string
	Name        string
	Type        models.ResourceType
	Title       string
	Alias       string
	FrontMatter map[string]any
	Checksum    string
	UpdatedAt   time.Time
}

// SearchResult is one search hit.
type SearchResult struct {
	Path  string              `json:"path"`
	Name  string              `json:"name"`
	Title string              `json:"title"`
	Type  models.ResourceType `json:"type"`
}

// Upsert inserts or replaces an artifact row keyed by path.
func (db *DB) Upsert(r Row) error {
	fmJSON, _ := json.Marshal(r.FrontMatter)
	if r.FrontMatter == nil {
		fmJSON = []byte("{}")
	}

	_, err := db.conn.Exec(`
		INSERT INTO artifacts (path, name, type, title, alias, front_matter, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name         = excluded.name,
			type         = excluded.type,
			title        = excluded.title,
			alias        = excluded.alias,
			front_matter = excluded.front_matter,
			checksum     = excluded.checksum,
			updated_at   = excluded.updated_at
	`, r.Path, r.Name, string(r.Type), r.Title, r.Alias, string(fmJSON), r.Checksum, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert artifact: %w", err)
	}
	return nil
}

// Delete removes an artifact row.
func (db *DB) Delete(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM artifacts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete artifact: %w", err)
	}
	return nil
}

// Rename rekeys an artifact row from oldPath to newPath, replacing any
// existing row at the destination.
func (db *DB) Rename(oldPath, newPath, newName string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM artifacts WHERE path = ?`, newPath)
	if _, err := tx.Exec(`UPDATE artifacts SET path = ?, name = ? WHERE path = ?`, newPath, newName, oldPath); err != nil {
		return fmt.Errorf("index: rename artifact: %w", err)
	}
	return tx.Commit()
}

// Get returns the row for a path, or nil when absent.
func (db *DB) Get(path string) (*Row, error) {
	row := db.conn.QueryRow(`
		SELECT path, name, type, title, alias, front_matter, checksum, updated_at
		FROM artifacts WHERE path = ?
	`, path)
	r, err := scanRow(row)
	if err != nil {
		return nil, nil // absent is not an error for the read-through cache
	}
	return r, nil
}

// AllChecksums returns path → checksum for every indexed artifact.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM artifacts`)
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

// Search performs a LIKE-based search over artifact names, titles and aliases.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT path, name, title, type
		FROM artifacts
		WHERE name LIKE ? OR title LIKE ? OR alias LIKE ?
		ORDER BY path
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Name, &r.Title, &r.Type); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRow(s scannable) (*Row, error) {
	var r Row
	var typ, fmJSON string
	if err := s.Scan(&r.Path, &r.Name, &typ, &r.Title, &r.Alias, &fmJSON, &r.Checksum, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Type = models.ResourceType(typ)
	if fmJSON != "" && fmJSON != "{}" {
		_ = json.Unmarshal([]byte(fmJSON), &r.FrontMatter)
	}
	return &r, nil
}
