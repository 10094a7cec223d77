package index

import (
	"os"
	"testing"
	"time"

	"github.com/veddartha/cairn/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "cairn-index-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertAndGet(t *testing.T) {
	db := testDB(t)

	r := Row{
		Path:        "notes/a.md",
		Name:        "a.md",
		Type:        models.TypeNote,
		Title:       "Alpha",
		Alias:       "al",
		FrontMatter: map[string]any{"tags": []any{"x"}},
		Checksum:    "cs1",
		UpdatedAt:   time.Now().UTC(),
	}
	if err := db.Upsert(r); err != nil {
		t.Fatal(err)
	}

	got, err := db.Get("notes/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("row missing after upsert")
	}
	if got.Title != "Alpha" || got.Type != models.TypeNote || got.Checksum != "cs1" {
		t.Errorf("row = %+v", got)
	}
	if got.FrontMatter == nil {
		t.Error("front matter should round-trip through JSON")
	}

	// Upsert replaces in place.
	r.Title = "Alpha v2"
	r.Checksum = "cs2"
	if err := db.Upsert(r); err != nil {
		t.Fatal(err)
	}
	got, _ = db.Get("notes/a.md")
	if got.Title != "Alpha v2" || got.Checksum != "cs2" {
		t.Errorf("row after second upsert = %+v", got)
	}
}

func TestGetAbsent(t *testing.T) {
	db := testDB(t)
	got, err := db.Get("missing.md")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil for absent path", got)
	}
}

func TestDelete(t *testing.T) {
	db := testDB(t)
	if err := db.Upsert(Row{Path: "a.md", Name: "a.md", Type: models.TypeNote}); err != nil {
		t.Fatal(err)
	}
	if err := db.Delete("a.md"); err != nil {
		t.Fatal(err)
	}
	if got, _ := db.Get("a.md"); got != nil {
		t.Error("row should be gone after delete")
	}

	// Deleting an absent row is fine.
	if err := db.Delete("a.md"); err != nil {
		t.Errorf("delete absent = %v", err)
	}
}

func TestRename(t *testing.T) {
	db := testDB(t)
	if err := db.Upsert(Row{Path: "a/f.md", Name: "f.md", Type: models.TypeNote, Checksum: "cs"}); err != nil {
		t.Fatal(err)
	}

	if err := db.Rename("a/f.md", "b/g.md", "g.md"); err != nil {
		t.Fatal(err)
	}

	if got, _ := db.Get("a/f.md"); got != nil {
		t.Error("old key should be gone")
	}
	got, _ := db.Get("b/g.md")
	if got == nil {
		t.Fatal("new key missing")
	}
	if got.Name != "g.md" || got.Checksum != "cs" {
		t.Errorf("renamed row = %+v", got)
	}
}

func TestRenameOverDestination(t *testing.T) {
	db := testDB(t)
	if err := db.Upsert(Row{Path: "a.md", Name: "a.md", Checksum: "keep"}); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(Row{Path: "b.md", Name: "b.md", Checksum: "replace-me"}); err != nil {
		t.Fatal(err)
	}

	if err := db.Rename("a.md", "b.md", "b.md"); err != nil {
		t.Fatal(err)
	}
	got, _ := db.Get("b.md")
	if got == nil || got.Checksum != "keep" {
		t.Errorf("destination row = %+v, want the renamed row", got)
	}
}

func TestAllChecksums(t *testing.T) {
	db := testDB(t)
	for _, r := range []Row{
		{Path: "a.md", Name: "a.md", Checksum: "c1"},
		{Path: "b.md", Name: "b.md", Checksum: "c2"},
	} {
		if err := db.Upsert(r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.AllChecksums()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["a.md"] != "c1" || got["b.md"] != "c2" {
		t.Errorf("checksums = %v", got)
	}
}

func TestSearch(t *testing.T) {
	db := testDB(t)
	rows := []Row{
		{Path: "p/alpha.md", Name: "alpha.md", Title: "Alpha Notes", Type: models.TypeNote},
		{Path: "p/beta.md", Name: "beta.md", Title: "Beta", Alias: "alpha-alias", Type: models.TypeNote},
		{Path: "p/gamma.md", Name: "gamma.md", Title: "Gamma", Type: models.TypeNote},
	}
	for _, r := range rows {
		if err := db.Upsert(r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.Search("alpha", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("hits = %+v, want 2 (name match and alias match)", got)
	}
	if got[0].Path != "p/alpha.md" || got[1].Path != "p/beta.md" {
		t.Errorf("hits = %+v", got)
	}

	got, err = db.Search("gamma", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "Gamma" {
		t.Errorf("hits = %+v", got)
	}
}

func TestSearchLimit(t *testing.T) {
	db := testDB(t)
	for _, p := range []string{"a.md", "b.md", "c.md"} {
		if err := db.Upsert(Row{Path: p, Name: p}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := db.Search(".md", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("hits = %d, want limit of 2 applied", len(got))
	}
}
