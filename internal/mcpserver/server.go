// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the target and definition query surface for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mystindex/internal/analysis"
	"github.com/starford/mystindex/internal/models"
	"github.com/starford/mystindex/internal/parser"
	"github.com/starford/mystindex/internal/storage"
	"github.com/starford/mystindex/internal/workspace"
)

const syntaxResourceURI = "mystindex://syntax"

// Server wraps the MCP server with the query tools.
type Server struct {
	mcp   *server.MCPServer
	ws    *workspace.Workspace
	store storage.Provider
}

// New creates a new MCP server with all tools registered. store may be nil,
// in which case list_files is not offered.
func New(ws *workspace.Workspace, store storage.Provider, version string) *Server {
	s := &Server{ws: ws, store: store}

	s.mcp = server.NewMCPServer(
		"mystindex",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("find_targets",
		mcp.WithDescription("Find every declaration of a target name across the project. "+
			"Targets are declared with a (name)= line."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Exact target name, e.g. sec-intro")),
	), s.findTargets)

	s.mcp.AddTool(mcp.NewTool("list_targets",
		mcp.WithDescription("List project targets in declaration order."),
		mcp.WithString("prefix", mcp.Description("Only names starting with this prefix")),
		mcp.WithBoolean("distinct", mcp.Description("Only the first declaration per name (default true)")),
	), s.listTargets)

	s.mcp.AddTool(mcp.NewTool("list_definitions",
		mcp.WithDescription("List the link reference definitions visible from an open document, "+
			"including those of sibling notebook cells."),
		mcp.WithString("uri", mcp.Required(), mcp.Description("Document URI")),
		mcp.WithBoolean("distinct", mcp.Description("Only the first definition per label (default true)")),
	), s.listDefinitions)

	s.mcp.AddTool(mcp.NewTool("get_document_tokens",
		mcp.WithDescription("Return the block tokens of a document, or only those covering one line. "+
			"Documents not open in the editor are parsed from the project on disk."),
		mcp.WithString("uri", mcp.Required(), mcp.Description("Document URI")),
		mcp.WithNumber("line", mcp.Description("Optional 0-indexed line")),
	), s.getDocumentTokens)

	s.mcp.AddTool(mcp.NewTool("parse_markdown",
		mcp.WithDescription("Parse Markdown text with the configured extensions and return its block tokens. "+
			"Nothing is stored."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Markdown source")),
	), s.parseMarkdown)

	s.mcp.AddTool(mcp.NewTool("validate_target_name",
		mcp.WithDescription("Check whether a string is a valid target name."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Candidate name")),
	), s.validateTargetName)

	if store != nil {
		s.mcp.AddTool(mcp.NewTool("list_files",
			mcp.WithDescription("List the Markdown files of the project or of one folder."),
			mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
		), s.listFiles)
	}

	s.mcp.AddResource(
		mcp.NewResource(syntaxResourceURI, "MyST Syntax Reference",
			mcp.WithResourceDescription("Block constructs recognized by the analysis engine."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSyntaxResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) findTargets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	targets, err := s.ws.GetTargets(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(targets) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("no target named %s", name)), nil
	}
	return jsonResult(targets)
}

func (s *Server) listTargets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix := req.GetString("prefix", "")
	distinct := req.GetBool("distinct", true)

	var filter func(models.Target) bool
	if prefix != "" {
		filter = func(t models.Target) bool { return strings.HasPrefix(t.Name, prefix) }
	}
	targets := []models.Target{}
	for t := range s.ws.IterateTargets(distinct, filter) {
		targets = append(targets, t)
	}
	return jsonResult(targets)
}

func (s *Server) listDefinitions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri, err := req.RequireString("uri")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defs := []models.Definition{}
	for d := range s.ws.IterateDefinitions(uri, req.GetBool("distinct", true)) {
		defs = append(defs, d)
	}
	return jsonResult(defs)
}

func (s *Server) getDocumentTokens(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri, err := req.RequireString("uri")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var (
		tokens []parser.Token
		lines  analysis.LineIndex
	)
	if snap, ok := s.ws.GetData(uri); ok {
		tokens, lines = snap.Tokens, snap.LineIndex
	} else {
		tokens, err = s.parseFromDisk(uri)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		lines = analysis.BuildLineIndex(tokens)
	}

	line := req.GetInt("line", -1)
	if line < 0 {
		return jsonResult(tokens)
	}
	covering := []parser.Token{}
	for _, i := range lines.At(line) {
		covering = append(covering, tokens[i])
	}
	return jsonResult(covering)
}

// parseFromDisk parses a project file that is not open. Nothing is cached.
func (s *Server) parseFromDisk(uri string) ([]parser.Token, error) {
	if s.store == nil {
		return nil, fmt.Errorf("document not open: %s", uri)
	}
	path, ok := s.store.Path(uri)
	if !ok {
		return nil, fmt.Errorf("document not open and outside the project: %s", uri)
	}
	data, err := s.store.Read(path)
	if err != nil {
		return nil, err
	}
	return s.ws.Parser().Parse(string(data)).Tokens, nil
}

func (s *Server) parseMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.ws.Parser().Parse(text).Tokens)
}

func (s *Server) validateTargetName(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := models.ValidateTargetName(name); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("invalid: %s", err.Error())), nil
	}
	return mcp.NewToolResultText("valid"), nil
}

func (s *Server) listFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.store.List(req.GetString("folder", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var paths []string
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) readSyntaxResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      syntaxResourceURI,
			MIMEType: "text/markdown",
			Text:     SyntaxReference,
		},
	}, nil
}
