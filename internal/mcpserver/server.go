// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the artifact cache to LLM integrations via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/veddartha/cairn/internal/backend"
	"github.com/veddartha/cairn/internal/cache"
)

// Server wraps the MCP server with Cairn tools.
type Server struct {
	mcp     *server.MCPServer
	engine  *cache.Engine
	backend *backend.Client
}

// New creates a new MCP server with all Cairn tools registered.
func New(engine *cache.Engine, client *backend.Client) *Server {
	s := &Server{engine: engine, backend: client}

	s.mcp = server.NewMCPServer(
		"Cairn",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_artifacts",
		mcp.WithDescription("List the current artifact cache snapshot: path, name, and resource type per artifact."),
		mcp.WithString("type", mcp.Description("Optional resource type filter (note, kit, walkthrough, diagram, agent, task, plan, file)")),
	), s.listArtifacts)

	s.mcp.AddTool(mcp.NewTool("read_artifact",
		mcp.WithDescription("Read the full content of an artifact by absolute path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the artifact")),
	), s.readArtifact)

	s.mcp.AddTool(mcp.NewTool("search_artifacts",
		mcp.WithDescription("Search artifacts by file name, title, or alias."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchArtifacts)

	s.mcp.AddTool(mcp.NewTool("move_artifact",
		mcp.WithDescription("Move an artifact into another folder. Returns the actual new path, "+
			"which may carry a numeric suffix when the preferred name is taken."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the artifact to move")),
		mcp.WithString("target_folder", mcp.Required(), mcp.Description("Absolute path of the destination folder")),
	), s.moveArtifact)

	s.mcp.AddTool(mcp.NewTool("pending_moves",
		mcp.WithDescription("List predicted paths of moves still awaiting backend confirmation."),
	), s.pendingMoves)

	s.mcp.AddTool(mcp.NewTool("get_artifact_contract",
		mcp.WithDescription("Returns the canonical artifact front matter contract. "+
			"Call this before creating artifact content to ensure correct structure."),
	), s.getArtifactContract)

	s.mcp.AddResource(
		mcp.NewResource("cairn://artifact-format", "Artifact Format Contract",
			mcp.WithResourceDescription("Canonical front matter format that all artifacts should follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readArtifactFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listArtifacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typ := ""
	if v, err := req.RequireString("type"); err == nil {
		typ = v
	}

	snap := s.engine.Snapshot()
	var lines []string
	for _, a := range snap {
		if typ != "" && string(a.Type) != typ {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", a.Path, a.Name, a.Type))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no artifacts"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readArtifact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.backend.ReadFile(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) searchArtifacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.backend.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) moveArtifact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	folder, err := req.RequireString("target_folder")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actual, err := s.engine.Move(ctx, path, folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved to: %s", actual)), nil
}

func (s *Server) pendingMoves(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pending := s.engine.PendingMoves()
	if len(pending) == 0 {
		return mcp.NewToolResultText("no pending moves"), nil
	}
	return mcp.NewToolResultText(strings.Join(pending, "\n")), nil
}

func (s *Server) getArtifactContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ArtifactFormatContract), nil
}

func (s *Server) readArtifactFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "cairn://artifact-format",
			MIMEType: "text/markdown",
			Text:     ArtifactFormatContract,
		},
	}, nil
}
