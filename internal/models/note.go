// Package models defines the domain types for Raido.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Note is one annotation anchored to a file and a 1-based inclusive line
// range. EndLine is zero for single-line notes; documents written before
// ranged notes existed omit the field entirely, so read sites must go
// through LastLine rather than the raw value.
type Note struct {
	ID        string    `json:"id"`
	File      string    `json:"file"`
	Line      int       `json:"line"`
	EndLine   int       `json:"end_line,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNote creates a note with a fresh id and creation timestamp.
// endLine values at or below line collapse to a single-line note.
func NewNote(file string, line, endLine int, content string) Note {
	n := Note{
		ID:        uuid.NewString(),
		File:      file,
		Line:      line,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if endLine > line {
		n.EndLine = endLine
	}
	return n
}

// LastLine resolves the optional end of the range, defaulting to Line.
func (n *Note) LastLine() int {
	if n.EndLine > n.Line {
		return n.EndLine
	}
	return n.Line
}

// Ranged reports whether the note spans more than one line.
func (n *Note) Ranged() bool {
	return n.LastLine() != n.Line
}

// Contains reports whether line falls inside the note's inclusive range.
func (n *Note) Contains(line int) bool {
	return line >= n.Line && line <= n.LastLine()
}
