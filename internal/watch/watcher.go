package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/veddartha/cairn/internal/storage"
)

// maxBatch bounds the number of coalesced paths per batch. Past this point
// individual paths stop being useful and the batch degrades to the
// reload-everything sentinel.
const maxBatch = 512

// watcher owns one fsnotify instance rooted at a project directory and
// coalesces raw events into path batches after a quiet window.
type watcher struct {
	root   string
	window time.Duration
	emit   func([]string)
	logger *slog.Logger
}

// run processes filesystem events until ctx is cancelled. Directories
// created at runtime are added to the watch list. An empty batch is emitted
// whenever fidelity was lost (event overflow or watch errors) and means
// "reload everything", never "nothing changed".
func (w *watcher) run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// dirs tracks every directory under watch so a Rename/Remove of one can
	// be recognized after the fact, when Stat no longer answers.
	dirs := make(map[string]struct{})
	if err := addDirsRecursive(fw, w.root, dirs); err != nil {
		return err
	}

	w.logger.Info("watcher: started", slog.String("root", w.root))

	pending := make(map[string]struct{})
	overflowed := false

	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(w.window)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(w.window)
		}
	}

	addPending := func(path string) {
		if overflowed {
			return
		}
		pending[filepath.Clean(path)] = struct{}{}
		if len(pending) > maxBatch {
			pending = make(map[string]struct{})
			overflowed = true
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			w.logger.Info("watcher: stopped", slog.String("root", w.root))
			return nil

		case <-flushCh:
			if overflowed {
				w.logger.Warn("watcher: batch overflow, requesting full reload", slog.String("root", w.root))
				w.emit([]string{})
			} else {
				batch := make([]string, 0, len(pending))
				for p := range pending {
					batch = append(batch, p)
				}
				sort.Strings(batch)
				w.emit(batch)
			}
			pending = make(map[string]struct{})
			overflowed = false

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if _, isDir := dirs[filepath.Clean(ev.Name)]; isDir {
					// A watched directory went away. Its children emit no
					// events of their own, so fidelity is lost.
					delete(dirs, filepath.Clean(ev.Name))
					pending = make(map[string]struct{})
					overflowed = true
					scheduleFlush()
					continue
				}
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(fw, ev.Name, dirs); addErr != nil {
						w.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					collectDirFiles(ev.Name, addPending)
					scheduleFlush()
					continue
				}
			}

			if !storage.Tracked(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			addPending(ev.Name)
			scheduleFlush()

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
			pending = make(map[string]struct{})
			overflowed = true
			scheduleFlush()
		}
	}
}

// collectDirFiles reports every tracked file already present in a newly
// created directory, since their individual Create events may have fired
// before the directory was watched.
func collectDirFiles(dir string, add func(string)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.Tracked(path) {
			return nil
		}
		add(path)
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher,
// recording each in dirs.
func addDirsRecursive(fw *fsnotify.Watcher, root string, dirs map[string]struct{}) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs[filepath.Clean(path)] = struct{}{}
			return fw.Add(path)
		}
		return nil
	})
}
