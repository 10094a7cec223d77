// Package backend implements the artifact metadata and file operations the
// cache engine depends on: bulk fetch, subset fetch, move, and raw file IO.
//
// Fetches are served through a SQLite read-through cache keyed by content
// checksum, so unchanged files are never re-parsed. Paths crossing this API
// are absolute; internally everything is project-relative.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/veddartha/cairn/internal/apperr"
	"github.com/veddartha/cairn/internal/checksum"
	"github.com/veddartha/cairn/internal/index"
	"github.com/veddartha/cairn/internal/models"
	"github.com/veddartha/cairn/internal/parser"
	"github.com/veddartha/cairn/internal/storage"
)

// Client serves artifact metadata and file operations for one project.
type Client struct {
	store  storage.Provider
	db     *index.DB
	logger *slog.Logger
}

// New creates a backend client over the given storage and metadata index.
func New(store storage.Provider, db *index.DB, logger *slog.Logger) *Client {
	return &Client{store: store, db: db, logger: logger}
}

// Root returns the absolute project root this client serves.
func (c *Client) Root() string { return c.store.Root() }

// rel translates an absolute artifact path to a project-relative one.
func (c *Client) rel(abs string) (string, error) {
	cleaned := filepath.Clean(abs)
	root := c.store.Root()
	if !strings.HasPrefix(cleaned, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("backend: path outside project: %s", abs)
	}
	return filepath.Rel(root, cleaned)
}

func (c *Client) abs(rel string) string {
	return filepath.Join(c.store.Root(), rel)
}

// FetchAll returns metadata for every artifact in the project and prunes
// index rows whose files no longer exist on disk.
func (c *Client) FetchAll(_ context.Context) ([]models.Artifact, error) {
	metas, err := c.store.List("")
	if err != nil {
		return nil, fmt.Errorf("backend: fetch all: %w", err)
	}

	indexed, err := c.db.AllChecksums()
	if err != nil {
		return nil, fmt.Errorf("backend: fetch all: %w", err)
	}

	out := make([]models.Artifact, 0, len(metas))
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		a, err := c.fetchRel(m.Path, m.Checksum)
		if err != nil {
			c.logger.Warn("backend: fetch failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		out = append(out, *a)
	}

	for p := range indexed {
		if _, ok := disk[p]; !ok {
			if err := c.db.Delete(p); err == nil {
				c.logger.Debug("backend: pruned stale index row", slog.String("path", p))
			}
		}
	}

	return out, nil
}

// FetchPaths returns metadata for the subset of paths that still exist.
// Paths no longer present on disk are simply absent from the result; their
// index rows are removed so the cache does not resurrect them later.
func (c *Client) FetchPaths(_ context.Context, paths []string) ([]models.Artifact, error) {
	out := make([]models.Artifact, 0, len(paths))
	for _, p := range paths {
		rel, err := c.rel(p)
		if err != nil {
			c.logger.Warn("backend: skipping foreign path", slog.String("path", p))
			continue
		}
		data, err := c.store.Read(rel)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				_ = c.db.Delete(rel)
				continue
			}
			return nil, fmt.Errorf("backend: fetch %s: %w", p, err)
		}
		a, err := c.fetchRelWithData(rel, checksum.Sum(data), data)
		if err != nil {
			return nil, fmt.Errorf("backend: fetch %s: %w", p, err)
		}
		out = append(out, *a)
	}
	return out, nil
}

// fetchRel builds an Artifact for a relative path, reading and parsing the
// file only when the stored checksum no longer matches.
func (c *Client) fetchRel(rel, cs string) (*models.Artifact, error) {
	row, _ := c.db.Get(rel)
	if row != nil && row.Checksum == cs {
		return c.fromRow(row), nil
	}
	data, err := c.store.Read(rel)
	if err != nil {
		return nil, err
	}
	return c.fetchRelWithData(rel, checksum.Sum(data), data)
}

// fetchRelWithData is fetchRel for callers that already hold the content.
func (c *Client) fetchRelWithData(rel, cs string, data []byte) (*models.Artifact, error) {
	row, _ := c.db.Get(rel)
	if row != nil && row.Checksum == cs {
		return c.fromRow(row), nil
	}

	res, err := parser.Parse(rel, data)
	if err != nil {
		return nil, err
	}
	fresh := index.Row{
		Path:        rel,
		Name:        filepath.Base(rel),
		Type:        res.Type,
		Title:       res.Title,
		Alias:       res.Alias,
		FrontMatter: res.FrontMatter,
		Checksum:    cs,
		UpdatedAt:   modTime(c.abs(rel)),
	}
	if err := c.db.Upsert(fresh); err != nil {
		return nil, err
	}
	return c.fromRow(&fresh), nil
}

func (c *Client) fromRow(r *index.Row) *models.Artifact {
	return &models.Artifact{
		Path:        c.abs(r.Path),
		Name:        r.Name,
		Type:        r.Type,
		FrontMatter: r.FrontMatter,
		Checksum:    r.Checksum,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Move relocates an artifact into targetFolder and returns the actual new
// absolute path. When the preferred name is taken the destination gets a
// numeric suffix, which is why the returned path can differ from the one a
// caller predicted.
func (c *Client) Move(_ context.Context, path, targetFolder string) (string, error) {
	relOld, err := c.rel(path)
	if err != nil {
		return "", err
	}
	relFolder, err := c.rel(targetFolder)
	if err != nil {
		return "", err
	}

	base := filepath.Base(relOld)
	relNew := filepath.Join(relFolder, base)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 2; ; n++ {
		if _, statErr := os.Stat(c.abs(relNew)); errors.Is(statErr, os.ErrNotExist) {
			break
		}
		relNew = filepath.Join(relFolder, fmt.Sprintf("%s %d%s", stem, n, ext))
	}

	if err := c.store.Move(relOld, relNew); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", apperr.ErrNotFound
		}
		return "", err
	}
	if err := c.db.Rename(relOld, relNew, filepath.Base(relNew)); err != nil {
		c.logger.Warn("backend: index rename failed", slog.String("path", relOld), slog.String("error", err.Error()))
	}
	return c.abs(relNew), nil
}

// ReadFile returns the raw content of an artifact.
func (c *Client) ReadFile(_ context.Context, path string) ([]byte, error) {
	rel, err := c.rel(path)
	if err != nil {
		return nil, err
	}
	data, err := c.store.Read(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// WriteFile atomically writes artifact content.
func (c *Client) WriteFile(_ context.Context, path string, content []byte) error {
	rel, err := c.rel(path)
	if err != nil {
		return err
	}
	return c.store.Write(rel, content)
}

// DeleteFile removes an artifact file and its index row.
func (c *Client) DeleteFile(_ context.Context, path string) error {
	rel, err := c.rel(path)
	if err != nil {
		return err
	}
	if err := c.store.Delete(rel); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	return c.db.Delete(rel)
}

// Search queries the metadata index by name, title, or alias.
func (c *Client) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return c.db.Search(query, limit)
}

func modTime(abs string) time.Time {
	if info, err := os.Stat(abs); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}
