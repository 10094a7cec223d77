package cache

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// fileOps is the slice of the backend the rename debouncer needs.
type fileOps interface {
	WriteFile(ctx context.Context, path string, content []byte) error
	DeleteFile(ctx context.Context, path string) error
}

// RenameDebouncer coalesces rapid title edits into a single disk rename
// after a quiet period. One edit session is active at a time; switching
// paths flushes the previous session first so no pending rename is lost.
//
// The store is only relabeled after the write+delete pair both succeed, so
// a mid-flight failure can never leave the store pointing at a file that
// does not exist.
type RenameDebouncer struct {
	backend fileOps
	store   *Store
	window  time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	editPath string
	content  []byte
	target   string // pending rename destination, "" when none
	timer    *time.Timer
}

// NewRenameDebouncer creates a debouncer with the given quiet window.
func NewRenameDebouncer(backend fileOps, store *Store, window time.Duration, logger *slog.Logger) *RenameDebouncer {
	if window <= 0 {
		window = 750 * time.Millisecond
	}
	return &RenameDebouncer{
		backend: backend,
		store:   store,
		window:  window,
		logger:  logger,
	}
}

// SanitizeTitle turns a raw heading title into a filesystem-safe file name.
// Characters illegal in file names are stripped; an empty result falls back
// to "Untitled".
func SanitizeTitle(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return -1
		default:
			return r
		}
	}, raw)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "Untitled"
	}
	return cleaned
}

// OnTitleChange records the latest edited title and content for the
// artifact at path and (re)starts the debounce timer when the sanitized
// title implies a different file name. Same resulting path means no rename
// is scheduled; any previously scheduled one is dropped.
func (d *RenameDebouncer) OnTitleChange(path, rawTitle string, content []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.editPath != path {
		// New edit session: flush whatever the previous one still owes.
		if err := d.flushLocked(); err != nil {
			d.logger.Warn("rename: flush of previous session failed",
				slog.String("path", d.editPath),
				slog.String("error", err.Error()))
		}
		d.editPath = path
	}
	d.content = content

	newPath := filepath.Join(filepath.Dir(path), SanitizeTitle(rawTitle)+".md")
	if newPath == d.editPath {
		d.target = ""
		d.stopTimerLocked()
		return
	}

	d.target = newPath
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.timerFired)
	} else {
		d.timer.Reset(d.window)
	}
}

// Finalize cancels any pending timer and synchronously flushes the edit
// session: a pending rename is performed now, otherwise the latest content
// is saved in place. Called on navigation away or explicit save.
func (d *RenameDebouncer) Finalize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushLocked()
}

// EditPath returns the path the active edit session currently targets.
// Keystrokes arriving after a committed rename debounce against this path.
func (d *RenameDebouncer) EditPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.editPath
}

func (d *RenameDebouncer) timerFired() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.flushLocked(); err != nil {
		d.logger.Warn("rename: debounced rename failed",
			slog.String("path", d.editPath),
			slog.String("error", err.Error()))
	}
}

// flushLocked commits the session's pending work. On rename the order is
// write new → delete old → relabel store; the store stays at the old path
// until both disk operations succeed.
func (d *RenameDebouncer) flushLocked() error {
	d.stopTimerLocked()

	if d.editPath == "" {
		return nil
	}

	ctx := context.Background()

	if d.target == "" || d.target == d.editPath {
		if d.content == nil {
			return nil
		}
		return d.backend.WriteFile(ctx, d.editPath, d.content)
	}

	oldPath, newPath := d.editPath, d.target
	if err := d.backend.WriteFile(ctx, newPath, d.content); err != nil {
		return err
	}
	if err := d.backend.DeleteFile(ctx, oldPath); err != nil {
		return err
	}

	d.store.rename(oldPath, newPath)
	d.editPath = newPath
	d.target = ""
	d.logger.Debug("rename: committed",
		slog.String("from", oldPath),
		slog.String("to", newPath))
	return nil
}

func (d *RenameDebouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
}
