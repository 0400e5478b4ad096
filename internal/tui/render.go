package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/zjrosen/codexwui/internal/codex"
)

// EntryKind distinguishes transcript rows.
type EntryKind int

const (
	EntryUser EntryKind = iota
	EntryAssistant
	EntryTool
	EntryError
)

// Entry is one row of the chat transcript.
type Entry struct {
	Kind     EntryKind
	Content  string
	Thinking string

	// Tool rows only.
	ToolStatus codex.ToolStatus
	ToolOutput string

	// Streaming is true while deltas are still arriving.
	Streaming bool
	Cancelled bool
}

// RenderOptions controls RenderTranscript.
type RenderOptions struct {
	Width        int
	ShowThinking bool
	// Markdown renders finished assistant content. Nil wraps it as plain text.
	Markdown *MarkdownRenderer
}

// RenderTranscript renders entries top to bottom. Consecutive tool rows are
// grouped under one assistant label with ├╴ / ╰╴ connectors.
func RenderTranscript(entries []Entry, opts RenderOptions) string {
	wrap := max(opts.Width-4, 10)
	var b strings.Builder

	for i, e := range entries {
		firstTool := e.Kind == EntryTool && (i == 0 || entries[i-1].Kind != EntryTool)
		lastTool := e.Kind == EntryTool && (i == len(entries)-1 || entries[i+1].Kind != EntryTool)

		switch e.Kind {
		case EntryUser:
			b.WriteString(roleStyle.Foreground(UserColor).Render("You") + "\n")
			b.WriteString(userStyle.Render(wordwrap.String(e.Content, wrap)) + "\n\n")

		case EntryTool:
			if firstTool {
				b.WriteString(roleStyle.Foreground(AssistantColor).Render("Codex") + "\n")
			}
			prefix := "├╴ "
			if lastTool {
				prefix = "╰╴ "
			}
			line := prefix + toolIcon(e.ToolStatus) + " " + firstLine(e.Content)
			b.WriteString(toolStyle.Render(runewidth.Truncate(line, wrap, "…")) + "\n")
			if lastTool {
				b.WriteString("\n")
			}

		case EntryError:
			b.WriteString(roleStyle.Foreground(ErrorColor).Render("Error") + "\n")
			b.WriteString(errorStyle.Render(wordwrap.String(e.Content, wrap)) + "\n\n")

		default:
			b.WriteString(roleStyle.Foreground(AssistantColor).Render("Codex") + "\n")
			if opts.ShowThinking && e.Thinking != "" {
				b.WriteString(thinkingStyle.Render(wordwrap.String(strings.TrimSpace(e.Thinking), wrap)) + "\n")
			}
			b.WriteString(renderAssistant(e, wrap, opts.Markdown) + "\n")
			if e.Cancelled {
				b.WriteString(toolStyle.Render("(cancelled)") + "\n")
			}
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderAssistant(e Entry, wrap int, md *MarkdownRenderer) string {
	content := strings.TrimRight(e.Content, "\n")
	if e.Streaming || md == nil || content == "" {
		return wordwrap.String(content, wrap)
	}
	out, err := md.Render(content)
	if err != nil {
		return wordwrap.String(content, wrap)
	}
	return strings.Trim(out, "\n")
}

func toolIcon(s codex.ToolStatus) string {
	switch s {
	case codex.ToolDone:
		return "✓"
	case codex.ToolError:
		return "✗"
	default:
		return "…"
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
