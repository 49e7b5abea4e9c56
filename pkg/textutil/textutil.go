// Package textutil provides the small string primitives shared by the
// output pipeline and history normalization: ANSI stripping and the
// line-ending trims that PTY output needs before classification.
package textutil

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// StripANSI removes all ANSI escape sequences from s.
func StripANSI(s string) string {
	return ansi.Strip(s)
}

// TrimEdges removes trailing newlines, carriage returns and whitespace,
// and leading newlines and carriage returns. Leading spaces are kept on
// purpose: indented output is real output.
func TrimEdges(s string) string {
	s = strings.TrimRight(s, "\n\r")
	s = strings.TrimRight(s, " \t")
	s = strings.TrimLeft(s, "\n\r")
	return s
}

// TrimLineBreaks removes newlines and carriage returns from both ends
// of s, leaving interior characters untouched.
func TrimLineBreaks(s string) string {
	return strings.Trim(s, "\n\r")
}

// CleanProgress normalizes a package-manager status line by dropping
// embedded carriage returns and surrounding spaces.
func CleanProgress(s string) string {
	return strings.Trim(strings.ReplaceAll(s, "\r", ""), " ")
}

// HasPercent reports whether s contains a percent sign. Lines with
// percentages are progress-bar redraws and never survive splitting.
func HasPercent(s string) bool {
	return strings.Contains(s, "%")
}
