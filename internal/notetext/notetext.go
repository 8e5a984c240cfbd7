// Package notetext derives display strings from free-text note content:
// single-line previews, titles, and loclist labels.
package notetext

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/raido/internal/models"
)

// DefaultPreviewLength is the preview truncation used when no explicit
// length is configured.
const DefaultPreviewLength = 30

// Flatten collapses all whitespace runs (including newlines) to single
// spaces and trims the ends.
func Flatten(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// Preview returns a flattened preview of content truncated to length runes,
// with "..." appended only when truncation occurred. Non-positive lengths
// fall back to DefaultPreviewLength.
func Preview(content string, length int) string {
	if length <= 0 {
		length = DefaultPreviewLength
	}
	flat := Flatten(content)
	runes := []rune(flat)
	if len(runes) <= length {
		return flat
	}
	return string(runes[:length]) + "..."
}

// IsEmpty reports whether content is empty or all whitespace.
func IsEmpty(content string) bool {
	return strings.TrimSpace(content) == ""
}

// Title returns the first line of content with any leading Markdown heading
// markers stripped, trimmed of surrounding whitespace.
func Title(content string) string {
	line, _, _ := strings.Cut(content, "\n")
	line = strings.TrimSpace(line)
	if rest := strings.TrimLeft(line, "#"); rest != line {
		line = strings.TrimPrefix(rest, " ")
	}
	return strings.TrimSpace(line)
}

// Format renders a human label for a note:
// "<basename>:<line>[-<end_line>] - <title>". Notes without a usable title
// fall back to a 50-rune preview of the content.
func Format(n *models.Note) string {
	loc := fmt.Sprintf("%s:%d", filepath.Base(n.File), n.Line)
	if n.Ranged() {
		loc = fmt.Sprintf("%s-%d", loc, n.LastLine())
	}
	label := Title(n.Content)
	if label == "" || len([]rune(label)) > 50 {
		label = Preview(n.Content, 50)
	}
	return loc + " - " + label
}
