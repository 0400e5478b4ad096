package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading…"
	}

	sections := []string{
		m.renderHeader(),
		m.viewport.View(),
	}
	if box := m.renderApproval(); box != "" {
		sections = append(sections, box)
	}
	sections = append(sections, m.renderStatus(), m.input.View())
	if m.showHelp {
		sections = append(sections, m.help.View(m.keys))
	}
	return zone.Scan(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) renderHeader() string {
	rc := m.cfg.Service.RuntimeConfig()
	model := rc.Model
	if model == "" {
		model = "default model"
	}
	parts := []string{"codex", model, rc.Mode}
	if rc.YoloMode {
		parts = append(parts, "yolo")
	}
	parts = append(parts, rc.Cwd)
	line := runewidth.Truncate(strings.Join(parts, " · "), max(m.width-1, 1), "…")
	return headerStyle.Width(m.width).Render(line)
}

func (m Model) renderStatus() string {
	var line string
	switch {
	case m.working && m.progress != "":
		line = m.spinner.View() + " " + m.progress
	case m.working:
		line = m.spinner.View() + " working… (" + m.keys.Cancel.Help().Key + " to cancel)"
	case m.logLine != "":
		line = strings.TrimSpace(m.logLine)
	default:
		line = m.keys.Help.Help().Key + " help"
	}
	return statusStyle.Render(runewidth.Truncate(line, max(m.width-1, 1), "…"))
}

// renderApproval draws the oldest pending request with clickable buttons.
func (m Model) renderApproval() string {
	if len(m.approvals) == 0 {
		return ""
	}
	req := m.approvals[0]
	inner := max(m.width-4, 10)

	var b strings.Builder
	title := req.Title
	if title == "" {
		title = "Approval required"
	}
	b.WriteString(roleStyle.Foreground(ApprovalColor).Render(wordwrap.String(title, inner)))
	if req.Description != "" {
		b.WriteString("\n" + wordwrap.String(req.Description, inner))
	}
	if n := len(m.approvals); n > 1 {
		b.WriteString("\n" + toolStyle.Render(fmt.Sprintf("%d more waiting", n-1)))
	}
	buttons := lipgloss.JoinHorizontal(lipgloss.Top,
		zone.Mark(zoneApprove, approveButtonStyle.Render("Approve (y)")),
		"  ",
		zone.Mark(zoneReject, rejectButtonStyle.Render("Reject (n)")),
	)
	b.WriteString("\n\n" + buttons)

	return approvalBoxStyle.Width(max(m.width-2, 10)).Render(b.String())
}

// layout sizes the viewport to whatever the other sections leave.
func (m *Model) layout() {
	if m.width == 0 {
		return
	}
	used := lipgloss.Height(m.renderHeader()) + 1 + m.input.Height()
	if box := m.renderApproval(); box != "" {
		used += lipgloss.Height(box)
	}
	if m.showHelp {
		used += lipgloss.Height(m.help.View(m.keys))
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-used, 1)
}
