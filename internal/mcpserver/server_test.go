package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/veddartha/cairn/internal/backend"
	"github.com/veddartha/cairn/internal/cache"
	"github.com/veddartha/cairn/internal/testutil"
)

func testServer(t *testing.T) (*Server, *backend.Client, string) {
	t.Helper()

	root, store := testutil.TestProject(t)
	db := testutil.TestDB(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	client := backend.New(store, db, logger)
	engine := cache.NewEngine(client, 50*time.Millisecond, time.Hour, nil, nil, logger)

	srv := New(engine, client)
	return srv, client, root
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so tool handlers are
	// invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_artifacts":
		result, err = srv.listArtifacts(ctx, req)
	case "read_artifact":
		result, err = srv.readArtifact(ctx, req)
	case "search_artifacts":
		result, err = srv.searchArtifacts(ctx, req)
	case "move_artifact":
		result, err = srv.moveArtifact(ctx, req)
	case "pending_moves":
		result, err = srv.pendingMoves(ctx, req)
	case "get_artifact_contract":
		result, err = srv.getArtifactContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func seedAndReload(t *testing.T, srv *Server, client *backend.Client, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, rel)
	if err := client.WriteFile(context.Background(), abs, []byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := srv.engine.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}
	return abs
}

func TestListArtifacts(t *testing.T) {
	srv, client, root := testServer(t)
	seedAndReload(t, srv, client, root, "a.md", "# A\n")
	seedAndReload(t, srv, client, root, "d.canvas", "{}")

	r := callTool(t, srv, "list_artifacts", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "a.md") || !strings.Contains(text, "d.canvas") {
		t.Errorf("list result = %q", text)
	}

	r = callTool(t, srv, "list_artifacts", map[string]interface{}{"type": "diagram"})
	text = resultText(r)
	if strings.Contains(text, "a.md") || !strings.Contains(text, "d.canvas") {
		t.Errorf("filtered list result = %q", text)
	}
}

func TestListArtifactsEmpty(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "list_artifacts", map[string]interface{}{})
	if resultText(r) != "no artifacts" {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestReadArtifact(t *testing.T) {
	srv, client, root := testServer(t)
	abs := seedAndReload(t, srv, client, root, "a.md", "# A\nHello")

	r := callTool(t, srv, "read_artifact", map[string]interface{}{"path": abs})
	if resultText(r) != "# A\nHello" {
		t.Errorf("read result = %q", resultText(r))
	}

	r = callTool(t, srv, "read_artifact", map[string]interface{}{
		"path": filepath.Join(root, "missing.md"),
	})
	if !r.IsError {
		t.Error("expected error result for missing artifact")
	}
}

func TestSearchArtifacts(t *testing.T) {
	srv, client, root := testServer(t)
	seedAndReload(t, srv, client, root, "alpha.md", "---\ntitle: Alpha Plan\n---\nx")
	seedAndReload(t, srv, client, root, "beta.md", "# Beta\n")

	r := callTool(t, srv, "search_artifacts", map[string]interface{}{"query": "Alpha"})
	text := resultText(r)
	if !strings.Contains(text, "alpha.md") || strings.Contains(text, "beta.md") {
		t.Errorf("search result = %q", text)
	}
}

func TestMoveArtifact(t *testing.T) {
	srv, client, root := testServer(t)
	abs := seedAndReload(t, srv, client, root, "a/f.md", "content")

	r := callTool(t, srv, "move_artifact", map[string]interface{}{
		"path":          abs,
		"target_folder": filepath.Join(root, "b"),
	})
	want := "moved to: " + filepath.Join(root, "b", "f.md")
	if resultText(r) != want {
		t.Errorf("move result = %q, want %q", resultText(r), want)
	}

	// The cache reflects the confirmed location.
	if _, ok := srv.engine.Store().Get(filepath.Join(root, "b", "f.md")); !ok {
		t.Error("cache missing the moved artifact")
	}
}

func TestMoveArtifactMissing(t *testing.T) {
	srv, _, root := testServer(t)
	r := callTool(t, srv, "move_artifact", map[string]interface{}{
		"path":          filepath.Join(root, "missing.md"),
		"target_folder": filepath.Join(root, "b"),
	})
	if !r.IsError {
		t.Error("expected error result for missing artifact")
	}
}

func TestPendingMoves(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "pending_moves", map[string]interface{}{})
	if resultText(r) != "no pending moves" {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestGetArtifactContract(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "get_artifact_contract", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "front matter") && !strings.Contains(text, "---") {
		t.Errorf("contract result = %q", text)
	}
}
