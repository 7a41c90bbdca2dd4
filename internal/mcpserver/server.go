// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Tether companion tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tether/internal/apperr"
	"github.com/starford/tether/internal/companion"
	"github.com/starford/tether/internal/models"
)

const formatURI = "tether://note-format"

// Server wraps the MCP server with Tether tools.
type Server struct {
	mcp *server.MCPServer
	svc *companion.Service
}

type companionResult struct {
	Source string `json:"source"`
	Note   string `json:"note,omitempty"`
}

// New creates a new MCP server with all Tether tools registered.
func New(svc *companion.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Tether",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("find_companion",
		mcp.WithDescription("Find the companion note of a source file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault path of the source file (e.g. Media/clip.mp4)")),
	), s.findCompanion)

	s.mcp.AddTool(mcp.NewTool("create_companion",
		mcp.WithDescription("Create companion notes. Pass one path, a list of paths, "+
			"or a folder to bind every eligible file in it."),
		mcp.WithString("path", mcp.Description("Source path")),
		mcp.WithArray("paths", mcp.Description("Source paths"), mcp.WithStringItems()),
		mcp.WithString("folder", mcp.Description("Folder whose eligible files get notes")),
	), s.createCompanion)

	s.mcp.AddTool(mcp.NewTool("remove_companion",
		mcp.WithDescription("Move the companion notes of sources to the vault trash."),
		mcp.WithString("path", mcp.Description("Source path")),
		mcp.WithArray("paths", mcp.Description("Source paths"), mcp.WithStringItems()),
	), s.removeCompanion)

	s.mcp.AddTool(mcp.NewTool("list_companions",
		mcp.WithDescription("List the source files of a folder with their companion notes."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for the whole vault)")),
	), s.listCompanions)

	s.mcp.AddTool(mcp.NewTool("upload_source",
		mcp.WithDescription("Store a file from an http(s) or base64 data URL in the vault."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:<mime>;base64,<data> URI")),
		mcp.WithString("filename", mcp.Description("Optional file name; derived from the URL when empty")),
		mcp.WithString("folder", mcp.Description("Optional target folder")),
	), s.uploadSource)

	s.mcp.AddTool(mcp.NewTool("get_note_format",
		mcp.WithDescription("Returns the companion note format and binding rules. "+
			"Call this before editing companion notes."),
	), s.getNoteFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Companion Note Format",
			mcp.WithResourceDescription("Placement and binding rules of companion notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) findCompanion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	src := models.NewSourceFile(p)
	note, err := s.svc.FindNote(ctx, src)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no companion note for %s (would be created at %s)", src.Path, s.svc.NotePath(ctx, src))), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(companionResult{Source: src.Path, Note: note.Path}), nil
}

func (s *Server) createCompanion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := requestPaths(req)
	folder := strings.Trim(req.GetString("folder", ""), "/")
	if len(paths) == 0 && folder == "" {
		return mcp.NewToolResultError("path or folder is required"), nil
	}

	if folder == "" && req.GetString("path", "") != "" && len(paths) == 1 {
		src, err := s.svc.Source(paths[0])
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("source not found: %s", paths[0])), nil
		}
		note, err := s.svc.CreateNote(ctx, src)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(companionResult{Source: src.Path, Note: note.Path}), nil
	}

	var srcs []models.SourceFile
	missing := 0
	if folder != "" {
		eligible, err := s.svc.EligibleSources(ctx, folder)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("folder not found: %s", folder)), nil
		}
		srcs = eligible
	}
	for _, p := range paths {
		src, err := s.svc.Source(p)
		if err != nil {
			missing++
			continue
		}
		srcs = append(srcs, src)
	}
	res := s.svc.CreateNotes(ctx, srcs)
	res.Failed += missing
	return jsonResult(res), nil
}

func (s *Server) removeCompanion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := requestPaths(req)
	if len(paths) == 0 {
		return mcp.NewToolResultError("path or paths is required"), nil
	}
	if req.GetString("path", "") != "" && len(paths) == 1 {
		if err := s.svc.RemoveNote(ctx, models.NewSourceFile(paths[0])); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("removed: %s", paths[0])), nil
	}
	srcs := make([]models.SourceFile, 0, len(paths))
	for _, p := range paths {
		srcs = append(srcs, models.NewSourceFile(p))
	}
	return jsonResult(s.svc.RemoveNotes(ctx, srcs)), nil
}

func (s *Server) listCompanions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := strings.Trim(req.GetString("folder", ""), "/")
	files, err := s.svc.Files(folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var lines []string
	for _, src := range files {
		line := src.Path
		if note, err := s.svc.FindNote(ctx, src); err == nil {
			line += " -> " + note.Path
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no source files found"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getNoteFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

// requestPaths merges the "path" and "paths" arguments.
func requestPaths(req mcp.CallToolRequest) []string {
	var out []string
	for _, p := range append([]string{req.GetString("path", "")}, req.GetStringSlice("paths", nil)...) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}
