// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Raido tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/notetext"
	"github.com/starford/raido/internal/session"
)

// Server wraps the MCP server with Raido tools.
type Server struct {
	mcp *server.MCPServer
	svc *session.Service
	db  index.NoteIndex
}

// New creates a new MCP server with all Raido tools registered.
func New(svc *session.Service, db index.NoteIndex) *Server {
	s := &Server{svc: svc, db: db}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List all note sessions with their note counts."),
	), s.listSessions)

	s.mcp.AddTool(mcp.NewTool("session_notes",
		mcp.WithDescription("List the notes of a session in insertion order."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session to read")),
	), s.sessionNotes)

	s.mcp.AddTool(mcp.NewTool("add_note",
		mcp.WithDescription("Attach a note to a file position inside a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the target session")),
		mcp.WithString("file", mcp.Required(), mcp.Description("File path the note belongs to")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("1-based line number")),
		mcp.WithNumber("end_line", mcp.Description("Optional last line of a ranged note")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note text, may span multiple lines")),
	), s.addNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note content across all sessions."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("note_at_line",
		mcp.WithDescription("Find the note covering a file line in a session, if any."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session to inspect")),
		mcp.WithString("file", mcp.Required(), mcp.Description("File path to inspect")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("1-based line number")),
	), s.noteAtLine)

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

func (s *Server) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := s.svc.List()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var lines []string
	for _, sess := range sessions {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%d notes", sess.ID, sess.Name, len(sess.Notes)))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no sessions"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) sessionNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.svc.Load(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	var lines []string
	for _, n := range sess.Notes {
		lines = append(lines, notetext.Format(&n))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("session has no notes"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) addNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	file, err := req.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := req.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if line < 1 {
		return mcp.NewToolResultError("line must be at least 1"), nil
	}
	endLine := req.GetInt("end_line", 0)
	if endLine != 0 && endLine < line {
		return mcp.NewToolResultError("end_line must not precede line"), nil
	}

	sess, err := s.svc.Load(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	note := models.NewNote(file, line, endLine, content)
	if err := s.svc.AddNote(sess, note); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added note %s to session %s", note.ID, sess.ID)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.db.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) noteAtLine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	file, err := req.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := req.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess, err := s.svc.Load(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	n := s.svc.NoteAtLine(sess, file, line)
	if n == nil {
		return mcp.NewToolResultText("no note at this line"), nil
	}
	out, _ := json.MarshalIndent(n, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
