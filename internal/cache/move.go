package cache

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/veddartha/cairn/internal/apperr"
	"github.com/veddartha/cairn/internal/models"
)

// moveTicket tracks one in-flight speculative move until it is confirmed or
// rolled back.
type moveTicket struct {
	resolved bool
	records  map[string]models.Artifact
	pending  map[string]struct{}
}

// MoveCoordinator applies speculative artifact relocations ahead of backend
// confirmation. While a move is in flight its predicted path sits in the
// pending set, flagging to readers that the record's path is a prediction,
// not backend truth.
type MoveCoordinator struct {
	store *Store

	mu      sync.Mutex
	pending map[string]struct{}
	tickets map[string]*moveTicket // keyed by predicted path
}

// NewMoveCoordinator creates a coordinator over the given store.
func NewMoveCoordinator(store *Store) *MoveCoordinator {
	return &MoveCoordinator{
		store:   store,
		pending: make(map[string]struct{}),
		tickets: make(map[string]*moveTicket),
	}
}

// Pending returns the predicted paths of all unresolved moves, sorted.
func (m *MoveCoordinator) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.pending))
	for p := range m.pending {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// IsPending reports whether path is an unresolved predicted path.
func (m *MoveCoordinator) IsPending(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[path]
	return ok
}

// pendingSet returns a copy of the pending set for reconciliation.
func (m *MoveCoordinator) pendingSet() map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.pending))
	for p := range m.pending {
		out[p] = struct{}{}
	}
	return out
}

// BeginMove speculatively relocates the record at path into targetFolder and
// returns a rollback closure restoring the exact pre-move state, pending set
// included. A second BeginMove on a still-unresolved prediction fails with
// ErrMovePending; the earlier move must confirm or roll back first.
func (m *MoveCoordinator) BeginMove(path, targetFolder string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, inflight := m.pending[path]; inflight {
		return nil, apperr.ErrMovePending
	}
	if _, ok := m.store.Get(path); !ok {
		return nil, apperr.ErrNotFound
	}

	predicted := PredictedPath(path, targetFolder)
	if _, taken := m.pending[predicted]; taken {
		return nil, apperr.ErrMovePending
	}

	t := &moveTicket{
		records: m.store.export(),
		pending: copySet(m.pending),
	}

	m.store.rename(path, predicted)
	m.pending[predicted] = struct{}{}
	m.tickets[predicted] = t

	rollback := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if t.resolved {
			return
		}
		t.resolved = true
		delete(m.tickets, predicted)
		m.pending = copySet(t.pending)
		m.store.restore(t.records)
	}
	return rollback, nil
}

// ConfirmMove resolves a speculative move once the backend reports the
// actual new path. The record may sit at the predicted path, at the original
// path (a watcher-driven reconciliation relabeled it back before the
// confirmation arrived), or already at the actual path; all three settle on
// actualNewPath with the prediction cleared.
func (m *MoveCoordinator) ConfirmMove(oldPath, actualNewPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	predicted := PredictedPath(oldPath, filepath.Dir(actualNewPath))
	if t, ok := m.tickets[predicted]; ok {
		t.resolved = true
		delete(m.tickets, predicted)
	}
	delete(m.pending, predicted)

	if !m.store.rename(predicted, actualNewPath) {
		m.store.rename(oldPath, actualNewPath)
	}
}

// PredictedPath computes the path an artifact is expected to land at when
// moved into targetFolder. Confirm derives the same prediction from the
// actual path's directory, so both sides agree without extra bookkeeping.
func PredictedPath(path, targetFolder string) string {
	return filepath.Join(targetFolder, filepath.Base(path))
}

func copySet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
