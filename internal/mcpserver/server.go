// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes puffnotes tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/puffnotes/internal/editor"
	"github.com/starford/puffnotes/internal/rewrite"
)

// StyleURI is the resource holding the note-writing guidance used for
// rewrites.
const StyleURI = "puffnotes://note-style"

// Server wraps the MCP server with puffnotes tools.
type Server struct {
	mcp *server.MCPServer
	ed  *editor.Editor
}

// New creates a new MCP server with all puffnotes tools registered.
func New(ed *editor.Editor, version string) *Server {
	s := &Server{ed: ed}

	s.mcp = server.NewMCPServer(
		"puffnotes",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List the notes in the granted folder with their titles, tags and excerpts."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a stored note."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note name, with or without the .md suffix")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("current_draft",
		mcp.WithDescription("Return the open note: name, draft body, save status and any rewrite proposal awaiting review."),
	), s.currentDraft)

	s.mcp.AddTool(mcp.NewTool("export_pdf",
		mcp.WithDescription("Open a stored note and export it as a paginated PDF."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note name")),
		mcp.WithString("output", mcp.Required(), mcp.Description("Directory to write the PDF into")),
	), s.exportPDF)

	s.mcp.AddResource(
		mcp.NewResource(StyleURI, "Note Style",
			mcp.WithResourceDescription("Guidance the rewrite service follows when restructuring notes."),
			mcp.WithMIMEType("text/plain"),
		),
		s.readStyleResource,
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

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.ed.ListNotes(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	out, _ := json.MarshalIndent(notes, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := s.ed.ReadNote(ctx, name)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) currentDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.ed.State()
	draft := struct {
		Name     string `json:"name"`
		Body     string `json:"body"`
		Status   string `json:"status"`
		Dirty    bool   `json:"dirty"`
		Phase    string `json:"rewrite_phase"`
		Proposal string `json:"proposal,omitempty"`
	}{
		Name:   st.Session.Name,
		Body:   st.Session.Body,
		Status: st.Session.Status,
		Dirty:  st.Session.Dirty,
		Phase:  st.Rewrite.Phase.String(),
	}
	if st.Rewrite.Phase == rewrite.Staged {
		draft.Proposal = st.Rewrite.ProposedBody
	}
	out, _ := json.MarshalIndent(draft, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) exportPDF(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	output, err := req.RequireString("output")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, err := s.ed.Open(ctx, name); err != nil {
		return toolError(err), nil
	}
	doc, filename, err := s.ed.Export(ctx)
	if err != nil {
		return toolError(err), nil
	}
	dest := filepath.Join(output, filename)
	if err := os.WriteFile(dest, doc.Data, 0o644); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("exported: %s (%d pages)", dest, doc.Pages)), nil
}

func (s *Server) readStyleResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      StyleURI,
			MIMEType: "text/plain",
			Text:     rewrite.SystemPrompt,
		},
	}, nil
}

// toolError reports err together with its recovery hint.
func toolError(err error) *mcp.CallToolResult {
	if hint := editor.Hint(err); hint != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%v\n%s", err, hint))
	}
	return mcp.NewToolResultError(err.Error())
}
