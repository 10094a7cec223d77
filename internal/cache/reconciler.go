package cache

import (
	"os"
	"sort"
	"strings"

	"github.com/veddartha/cairn/internal/models"
)

// reconcile computes the store delta for one changed-path batch.
//
// current is the record map as of now (read fresh, never a stale snapshot),
// pending is the set of predicted optimistic-move paths, changedPaths is the
// watcher batch, and fetched holds backend metadata for the subset of those
// paths that still exist on disk.
//
// Rename inference: a fetched record adopts an existing record's slot when
// the existing record has the same file name at a different path and either
// (a) its path was itself reported changed, meaning both sides of the
// rename were observed, or (b) its path is a predicted optimistic path with the
// same file name, covering moves where the old directory entry vanished
// without its own event. Exact evidence (a) always beats the prediction
// heuristic (b).
//
// Deletion: a changed path with no fetched successor that still exists in
// the store is gone from disk and is removed.
//
// An empty changedPaths batch is a reload-everything sentinel and must be
// handled by the caller before reaching this function.
func reconcile(
	current map[string]models.Artifact,
	pending map[string]struct{},
	changedPaths []string,
	fetched []models.Artifact,
) (updates []models.Artifact, removals map[string]struct{}) {
	changed := make(map[string]struct{}, len(changedPaths))
	for _, p := range changedPaths {
		changed[p] = struct{}{}
	}
	seen := make(map[string]struct{}, len(fetched))
	for _, a := range fetched {
		seen[a.Path] = struct{}{}
	}

	removals = make(map[string]struct{})

	for _, rec := range fetched {
		if old := renameCandidate(current, pending, changed, rec); old != "" {
			removals[old] = struct{}{}
		}
	}

	for _, p := range changedPaths {
		if _, ok := seen[p]; ok {
			continue
		}
		if _, ok := current[p]; !ok {
			continue
		}
		removals[p] = struct{}{}
	}

	// A path another fetched record now occupies is alive, not stale.
	for p := range removals {
		if _, ok := seen[p]; ok {
			delete(removals, p)
		}
	}

	return fetched, removals
}

// renameCandidate finds the old path a fetched record is the successor of,
// or "" when the record is genuinely new. With several same-named
// candidates, paths literally present in the batch win over predicted ones,
// and ties break lexicographically for determinism.
func renameCandidate(
	current map[string]models.Artifact,
	pending map[string]struct{},
	changed map[string]struct{},
	rec models.Artifact,
) string {
	var exact, predicted []string
	for oldPath, old := range current {
		if old.Name != rec.Name || oldPath == rec.Path {
			continue
		}
		if _, ok := changed[oldPath]; ok {
			exact = append(exact, oldPath)
			continue
		}
		if _, ok := pending[oldPath]; ok && strings.HasSuffix(oldPath, string(os.PathSeparator)+rec.Name) {
			predicted = append(predicted, oldPath)
		}
	}
	if len(exact) > 0 {
		sort.Strings(exact)
		return exact[0]
	}
	if len(predicted) > 0 {
		sort.Strings(predicted)
		return predicted[0]
	}
	return ""
}
