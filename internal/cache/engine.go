package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/veddartha/cairn/internal/models"
)

// Backend is the slice of the backend the engine consumes: bulk fetch,
// subset fetch, and the confirmed move operation.
type Backend interface {
	FetchAll(ctx context.Context) ([]models.Artifact, error)
	FetchPaths(ctx context.Context, paths []string) ([]models.Artifact, error)
	Move(ctx context.Context, path, targetFolder string) (string, error)
	WriteFile(ctx context.Context, path string, content []byte) error
	DeleteFile(ctx context.Context, path string) error
}

// EventCallback is called after engine-driven cache changes.
// kind is one of "updated", "removed", "moving", "moved".
type EventCallback func(kind, path string)

// Engine ties the store, reconciler, and coordinators together and applies
// watcher batches in the background so bursts of filesystem events never
// block interactive reads.
type Engine struct {
	backend Backend
	store   *Store
	moves   *MoveCoordinator
	renames *RenameDebouncer
	logger  *slog.Logger
	cb      EventCallback

	batchCh chan []string

	reloadWindow time.Duration
	reloadMu     sync.Mutex
	reloadTimer  *time.Timer
	reloadGroup  singleflight.Group
}

// NewEngine creates an engine over the given backend. reloadWindow bounds
// how long near-simultaneous full-reload triggers coalesce; renameWindow is
// the title-edit debounce quiet period. notify receives every published
// snapshot; cb receives per-artifact change events. Both may be nil.
func NewEngine(
	backend Backend,
	reloadWindow, renameWindow time.Duration,
	notify func([]models.Artifact),
	cb EventCallback,
	logger *slog.Logger,
) *Engine {
	if reloadWindow <= 0 {
		reloadWindow = 100 * time.Millisecond
	}
	store := NewStore(notify)
	e := &Engine{
		backend:      backend,
		store:        store,
		moves:        NewMoveCoordinator(store),
		logger:       logger,
		cb:           cb,
		batchCh:      make(chan []string, 64),
		reloadWindow: reloadWindow,
	}
	e.renames = NewRenameDebouncer(backend, store, renameWindow, logger)
	return e
}

// Store exposes the canonical artifact store.
func (e *Engine) Store() *Store { return e.store }

// Renames exposes the title-edit rename debouncer.
func (e *Engine) Renames() *RenameDebouncer { return e.renames }

// Snapshot returns the latest committed artifact snapshot.
func (e *Engine) Snapshot() []models.Artifact { return e.store.Snapshot() }

// PendingMoves returns the predicted paths of unresolved moves.
func (e *Engine) PendingMoves() []string { return e.moves.Pending() }

// Start runs the background batch worker until ctx is cancelled. Watcher
// batches queue through here rather than being applied inline, keeping
// event bursts off the interactive path.
func (e *Engine) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch := <-e.batchCh:
			e.HandleBatch(ctx, batch)
		}
	}
}

// EnqueueBatch hands a watcher batch to the background worker. If the queue
// is saturated the batch degrades to a full-reload request, which is always
// safe.
func (e *Engine) EnqueueBatch(batch []string) {
	select {
	case e.batchCh <- batch:
	default:
		e.logger.Warn("cache: batch queue full, requesting full reload")
		e.RequestFullReload()
	}
}

// HandleBatch applies one changed-path batch. An empty batch is the
// reserved reload-everything sentinel. A failed subset fetch never
// partially applies; it falls back to a full reload instead.
func (e *Engine) HandleBatch(ctx context.Context, changedPaths []string) {
	if len(changedPaths) == 0 {
		e.RequestFullReload()
		return
	}

	fetched, err := e.backend.FetchPaths(ctx, changedPaths)
	if err != nil {
		e.logger.Warn("cache: subset fetch failed, falling back to full reload",
			slog.Int("paths", len(changedPaths)),
			slog.String("error", err.Error()))
		e.RequestFullReload()
		return
	}

	// Read store and pending set fresh: both may have changed while the
	// fetch was in flight.
	updates, removals := reconcile(e.store.view(), e.moves.pendingSet(), changedPaths, fetched)
	e.store.Merge(updates, removals)

	if e.cb != nil {
		for _, a := range updates {
			e.cb("updated", a.Path)
		}
		for p := range removals {
			e.cb("removed", p)
		}
	}

	e.logger.Debug("cache: batch reconciled",
		slog.Int("changed", len(changedPaths)),
		slog.Int("updates", len(updates)),
		slog.Int("removals", len(removals)))
}

// RequestFullReload schedules a full reload, absorbing bursts of
// near-simultaneous triggers into one pass.
func (e *Engine) RequestFullReload() {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	if e.reloadTimer == nil {
		e.reloadTimer = time.AfterFunc(e.reloadWindow, func() {
			if err := e.FullReload(context.Background()); err != nil {
				e.logger.Error("cache: full reload failed", slog.String("error", err.Error()))
			}
		})
	} else {
		e.reloadTimer.Reset(e.reloadWindow)
	}
}

// FullReload replaces the store with a fresh full project fetch. Concurrent
// calls collapse into a single backend scan.
func (e *Engine) FullReload(ctx context.Context) error {
	_, err, _ := e.reloadGroup.Do("reload", func() (any, error) {
		all, err := e.backend.FetchAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("cache: full reload: %w", err)
		}
		e.store.Replace(all)
		e.logger.Info("cache: full reload complete", slog.Int("artifacts", len(all)))
		return nil, nil
	})
	return err
}

// Move speculatively relocates an artifact, asks the backend to perform the
// move, and confirms with the actual path. If the backend call fails the
// speculation is rolled back, restoring the exact pre-move state.
func (e *Engine) Move(ctx context.Context, path, targetFolder string) (string, error) {
	rollback, err := e.moves.BeginMove(path, targetFolder)
	if err != nil {
		return "", err
	}
	if e.cb != nil {
		e.cb("moving", PredictedPath(path, targetFolder))
	}

	actual, err := e.backend.Move(ctx, path, targetFolder)
	if err != nil {
		rollback()
		return "", err
	}

	e.moves.ConfirmMove(path, actual)
	if e.cb != nil {
		e.cb("moved", actual)
	}
	return actual, nil
}
