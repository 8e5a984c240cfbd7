package api

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/retrace"
)

// CreateSessionRequest is the request body for creating a session.
// An empty name asks the server to synthesize one.
type CreateSessionRequest struct {
	Name string `json:"name"`
}

// Validate validates the request.
func (r *CreateSessionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Length(0, 120)),
	)
}

// RenameSessionRequest is the request body for renaming a session.
type RenameSessionRequest struct {
	Name string `json:"name"`
}

// Validate validates the request.
func (r *RenameSessionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 120)),
	)
}

// AddNoteRequest is the request body for adding a note to a session.
// EndLine is optional; zero or equal to Line means a single-line note.
type AddNoteRequest struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	EndLine int    `json:"end_line"`
	Content string `json:"content"`
}

// Validate validates the request.
func (r *AddNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.File, validation.Required),
		validation.Field(&r.Line, validation.Required, validation.Min(1)),
		validation.Field(&r.EndLine, validation.Min(0), validation.By(func(any) error {
			if r.EndLine != 0 && r.EndLine < r.Line {
				return fmt.Errorf("must not precede line")
			}
			return nil
		})),
	)
}

// UpdateNoteRequest is the request body for replacing a note's content.
// Empty content is allowed, same as on creation.
type UpdateNoteRequest struct {
	Content string `json:"content"`
}

// Validate validates the request.
func (r *UpdateNoteRequest) Validate() error {
	return validation.ValidateStruct(r)
}

// StartRetraceRequest selects the session to replay.
type StartRetraceRequest struct {
	SessionID string `json:"session_id"`
}

// Validate validates the request.
func (r *StartRetraceRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.SessionID, validation.Required),
	)
}

// OpenBufferRequest registers an editor buffer for decoration rendering.
// SessionID, when set, immediately renders that session's notes for the
// buffer's file.
type OpenBufferRequest struct {
	Buffer    string `json:"buffer"`
	LineCount int    `json:"line_count"`
	SessionID string `json:"session_id"`
}

// Validate validates the request.
func (r *OpenBufferRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Buffer, validation.Required),
		validation.Field(&r.LineCount, validation.Min(0)),
	)
}

// CloseBufferRequest unregisters an editor buffer.
type CloseBufferRequest struct {
	Buffer string `json:"buffer"`
}

// Validate validates the request.
func (r *CloseBufferRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Buffer, validation.Required),
	)
}

// SessionResponse is a full session document plus its content digest,
// usable as an If-Match precondition on note updates.
type SessionResponse struct {
	*models.Session
	Checksum string `json:"checksum"`
}

// SessionListResponse wraps session listings.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}

// SessionSummary is a lightweight item in a list response.
type SessionSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Branch    string `json:"branch,omitempty"`
	NoteCount int    `json:"note_count"`
	UpdatedAt string `json:"updated_at"`
}

// NoteListResponse wraps a session's note listing.
type NoteListResponse struct {
	Notes []models.Note `json:"notes"`
	Total int           `json:"total"`
}

// RetraceResponse reports the engine state after a retrace command.
type RetraceResponse struct {
	Active bool           `json:"active"`
	State  *retrace.State `json:"state,omitempty"`
}
