// Package cache keeps an in-memory artifact map consistent with disk state
// by merging watcher-driven change batches, and supports speculative local
// mutations (moves, debounced renames) that are later confirmed or rolled
// back against backend truth.
package cache

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/veddartha/cairn/internal/models"
)

// Store owns the canonical path → artifact mapping for one active project.
//
// Every successful mutation publishes a fresh immutable snapshot through the
// notify callback; readers always get the latest committed snapshot and
// never block on in-flight reconciliations.
type Store struct {
	mu      sync.RWMutex
	records map[string]models.Artifact
	notify  func([]models.Artifact)
}

// NewStore creates an empty store. notify may be nil.
func NewStore(notify func([]models.Artifact)) *Store {
	return &Store{
		records: make(map[string]models.Artifact),
		notify:  notify,
	}
}

// Merge applies updates keyed by path and removes the given paths, then
// publishes and returns the new snapshot.
func (s *Store) Merge(updates []models.Artifact, removals map[string]struct{}) []models.Artifact {
	s.mu.Lock()
	for p := range removals {
		delete(s.records, p)
	}
	for _, a := range updates {
		s.records[a.Path] = a
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return snap
}

// Replace swaps the entire store content, for full reloads.
func (s *Store) Replace(all []models.Artifact) []models.Artifact {
	s.mu.Lock()
	s.records = make(map[string]models.Artifact, len(all))
	for _, a := range all {
		s.records[a.Path] = a
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return snap
}

// Get returns the record at path.
func (s *Store) Get(path string) (models.Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.records[path]
	return a, ok
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns the current records sorted by path.
func (s *Store) Snapshot() []models.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// view returns a shallow copy of the record map for reconciliation. The
// copy is taken fresh at call time; callers must not hold it across a
// blocking fetch, since unrelated events may mutate the store in between.
func (s *Store) view() map[string]models.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Artifact, len(s.records))
	for p, a := range s.records {
		out[p] = a
	}
	return out
}

// rename rekeys the record at oldPath to newPath, updating its identity
// fields, and publishes the new snapshot. Returns false when no record
// exists at oldPath. Renaming a path onto itself is a successful no-op.
func (s *Store) rename(oldPath, newPath string) bool {
	s.mu.Lock()
	a, ok := s.records[oldPath]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if oldPath == newPath {
		s.mu.Unlock()
		return true
	}
	delete(s.records, oldPath)
	a.Path = newPath
	a.Name = filepath.Base(newPath)
	s.records[newPath] = a
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return true
}

// export returns a deep-enough copy of the record map for later restore.
func (s *Store) export() map[string]models.Artifact {
	return s.view()
}

// restore replaces the record map with a previously exported copy and
// publishes the restored snapshot.
func (s *Store) restore(records map[string]models.Artifact) {
	s.mu.Lock()
	s.records = make(map[string]models.Artifact, len(records))
	for p, a := range records {
		s.records[p] = a
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *Store) snapshotLocked() []models.Artifact {
	out := make([]models.Artifact, 0, len(s.records))
	for _, a := range s.records {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (s *Store) publish(snap []models.Artifact) {
	if s.notify != nil {
		s.notify(snap)
	}
}
