package cache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/veddartha/cairn/internal/models"
	"github.com/veddartha/cairn/internal/testutil"
)

// fakeBackend simulates disk truth as a path-keyed artifact map.
type fakeBackend struct {
	mu            sync.Mutex
	disk          map[string]models.Artifact
	fetchAllCalls int
	fetchPathsErr error
	moveErr       error
	moveActual    string // overrides the predicted path when set
	writes        []string
	deletes       []string
}

func newFakeBackend(arts ...models.Artifact) *fakeBackend {
	f := &fakeBackend{disk: make(map[string]models.Artifact)}
	for _, a := range arts {
		f.disk[a.Path] = a
	}
	return f
}

func (f *fakeBackend) FetchAll(context.Context) ([]models.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchAllCalls++
	out := make([]models.Artifact, 0, len(f.disk))
	for _, a := range f.disk {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeBackend) FetchPaths(_ context.Context, paths []string) ([]models.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchPathsErr != nil {
		return nil, f.fetchPathsErr
	}
	var out []models.Artifact
	for _, p := range paths {
		if a, ok := f.disk[p]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeBackend) Move(_ context.Context, path, targetFolder string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moveErr != nil {
		return "", f.moveErr
	}
	a, ok := f.disk[path]
	if !ok {
		return "", errors.New("no such artifact")
	}
	actual := f.moveActual
	if actual == "" {
		actual = PredictedPath(path, targetFolder)
	}
	delete(f.disk, path)
	a.Path = actual
	a.Name = base(actual)
	f.disk[actual] = a
	return actual, nil
}

func (f *fakeBackend) WriteFile(_ context.Context, path string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, path)
	f.disk[path] = art(path)
	return nil
}

func (f *fakeBackend) DeleteFile(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, path)
	delete(f.disk, path)
	return nil
}

func (f *fakeBackend) allCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchAllCalls
}

func testEngine(backend Backend) *Engine {
	return NewEngine(backend, 20*time.Millisecond, 50*time.Millisecond, nil, nil, testLogger())
}

func TestEngine_HandleBatchUpdatesAndDeletes(t *testing.T) {
	f := newFakeBackend(art("/p/a.md"), art("/p/b.md"))
	e := testEngine(f)
	if err := e.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	// b vanished from disk, c appeared.
	f.mu.Lock()
	delete(f.disk, "/p/b.md")
	f.disk["/p/c.md"] = art("/p/c.md")
	f.mu.Unlock()

	e.HandleBatch(context.Background(), []string{"/p/b.md", "/p/c.md"})

	if _, ok := e.Store().Get("/p/b.md"); ok {
		t.Error("deleted artifact should be removed")
	}
	if _, ok := e.Store().Get("/p/c.md"); !ok {
		t.Error("new artifact should be present")
	}
	if _, ok := e.Store().Get("/p/a.md"); !ok {
		t.Error("untouched artifact should survive")
	}
}

func TestEngine_HandleBatchIsIdempotent(t *testing.T) {
	f := newFakeBackend(art("/p/a.md"))
	e := testEngine(f)
	if err := e.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	batch := []string{"/p/a.md", "/p/gone.md"}
	e.HandleBatch(context.Background(), batch)
	first := e.Snapshot()
	e.HandleBatch(context.Background(), batch)
	second := e.Snapshot()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("replayed batch diverged:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestEngine_EmptyBatchTriggersFullReload(t *testing.T) {
	f := newFakeBackend(art("/p/a.md"))
	e := testEngine(f)

	e.HandleBatch(context.Background(), nil)

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return f.allCalls() == 1 && e.Store().Len() == 1
	}, "empty batch should trigger exactly one full reload")
}

func TestEngine_ReloadRequestsCoalesce(t *testing.T) {
	f := newFakeBackend(art("/p/a.md"))
	e := testEngine(f)

	for range 5 {
		e.RequestFullReload()
	}

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return f.allCalls() >= 1
	}, "full reload should fire")
	time.Sleep(60 * time.Millisecond)
	if got := f.allCalls(); got != 1 {
		t.Errorf("fetchAll calls = %d, want 1 (burst should coalesce)", got)
	}
}

func TestEngine_FetchFailureFallsBackToFullReload(t *testing.T) {
	f := newFakeBackend(art("/p/a.md"), art("/p/b.md"))
	e := NewEngine(f, 100*time.Millisecond, 50*time.Millisecond, nil, nil, testLogger())
	if err := e.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := f.allCalls()

	f.mu.Lock()
	f.fetchPathsErr = errors.New("backend down")
	delete(f.disk, "/p/b.md")
	f.mu.Unlock()

	e.HandleBatch(context.Background(), []string{"/p/b.md"})

	// Nothing may be applied partially before the fallback lands.
	if _, ok := e.Store().Get("/p/b.md"); !ok {
		t.Error("failed subset fetch must not partially remove records")
	}

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return f.allCalls() > before && e.Store().Len() == 1
	}, "fallback full reload should converge the store")
}

func TestEngine_StartAppliesQueuedBatches(t *testing.T) {
	f := newFakeBackend(art("/p/a.md"))
	e := testEngine(f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Start(ctx)

	e.EnqueueBatch([]string{"/p/a.md"})

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		_, ok := e.Store().Get("/p/a.md")
		return ok
	}, "queued batch should be applied by the background worker")
}

func TestEngine_MoveRoundTrip(t *testing.T) {
	f := newFakeBackend(art("/p/a/f.md"))
	e := testEngine(f)
	if err := e.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	var events []string
	e.cb = func(kind, path string) { events = append(events, kind+" "+path) }

	actual, err := e.Move(context.Background(), "/p/a/f.md", "/p/b")
	if err != nil {
		t.Fatal(err)
	}
	if actual != "/p/b/f.md" {
		t.Errorf("actual = %q, want /p/b/f.md", actual)
	}
	if _, ok := e.Store().Get("/p/b/f.md"); !ok {
		t.Error("store should hold the confirmed path")
	}
	if len(e.PendingMoves()) != 0 {
		t.Errorf("pending = %v, want empty", e.PendingMoves())
	}
	want := []string{"moving /p/b/f.md", "moved /p/b/f.md"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestEngine_MoveCollisionSettlesOnActualPath(t *testing.T) {
	f := newFakeBackend(art("/p/a/f.md"))
	f.moveActual = "/p/b/f 2.md"
	e := testEngine(f)
	if err := e.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	actual, err := e.Move(context.Background(), "/p/a/f.md", "/p/b")
	if err != nil {
		t.Fatal(err)
	}
	if actual != "/p/b/f 2.md" {
		t.Errorf("actual = %q, want /p/b/f 2.md", actual)
	}
	if _, ok := e.Store().Get("/p/b/f 2.md"); !ok {
		t.Error("store should settle on the collision-suffixed path")
	}
	if _, ok := e.Store().Get("/p/b/f.md"); ok {
		t.Error("predicted path must not linger")
	}
}

func TestEngine_MoveFailureRollsBack(t *testing.T) {
	f := newFakeBackend(art("/p/a/f.md"))
	e := testEngine(f)
	if err := e.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := e.Snapshot()

	f.moveErr = errors.New("permission denied")
	if _, err := e.Move(context.Background(), "/p/a/f.md", "/p/b"); err == nil {
		t.Fatal("expected move error")
	}

	if !reflect.DeepEqual(e.Snapshot(), before) {
		t.Errorf("store after failed move:\ngot  %+v\nwant %+v", e.Snapshot(), before)
	}
	if len(e.PendingMoves()) != 0 {
		t.Errorf("pending = %v, want empty after rollback", e.PendingMoves())
	}
}

func TestEngine_FullReloadNotifiesSubscribers(t *testing.T) {
	f := newFakeBackend(art("/p/a.md"))

	var mu sync.Mutex
	var published [][]models.Artifact
	notify := func(snap []models.Artifact) {
		mu.Lock()
		published = append(published, snap)
		mu.Unlock()
	}
	e := NewEngine(f, 20*time.Millisecond, 50*time.Millisecond, notify, nil, testLogger())

	if err := e.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(published) != 1 {
		t.Fatalf("published %d snapshots, want 1", len(published))
	}
	if len(published[0]) != 1 || published[0][0].Path != "/p/a.md" {
		t.Errorf("snapshot = %+v", published[0])
	}
}

func TestEngine_TitleRenameEndToEnd(t *testing.T) {
	f := newFakeBackend(art("/p/draft.md"))
	e := testEngine(f)
	if err := e.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	e.Renames().OnTitleChange("/p/draft.md", "Project Plan", []byte("# Project Plan\n"))

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		_, ok := e.Store().Get("/p/Project Plan.md")
		return ok
	}, "debounced title rename should relabel the store")

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) != 1 || f.writes[0] != "/p/Project Plan.md" {
		t.Errorf("writes = %v, want single write of the new path", f.writes)
	}
	if len(f.deletes) != 1 || f.deletes[0] != "/p/draft.md" {
		t.Errorf("deletes = %v, want single delete of the old path", f.deletes)
	}
}
