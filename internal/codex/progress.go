package codex

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// CleanProgressText strips ANSI sequences from a stderr line, splits carriage
// return redraws into separate lines, and drops blank lines.
func CleanProgressText(s string) string {
	s = strings.ReplaceAll(ansi.Strip(s), "\r", "\n")

	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
