package tui

import "github.com/charmbracelet/lipgloss"

// Role colors, consistent across the transcript and the status bar.
var (
	AssistantColor = lipgloss.AdaptiveColor{Light: "#179299", Dark: "#179299"}
	UserColor      = lipgloss.AdaptiveColor{Light: "#FB923C", Dark: "#FB923C"}
	ErrorColor     = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	MutedColor     = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"}
	ApprovalColor  = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	DoneColor      = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#43BF6D"}
)

var (
	roleStyle     = lipgloss.NewStyle().Bold(true)
	userStyle     = lipgloss.NewStyle().Foreground(UserColor)
	thinkingStyle = lipgloss.NewStyle().Foreground(MutedColor).Italic(true)
	toolStyle     = lipgloss.NewStyle().Foreground(MutedColor)
	errorStyle    = lipgloss.NewStyle().Foreground(ErrorColor)

	headerStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(MutedColor)

	statusStyle = lipgloss.NewStyle().Foreground(MutedColor)

	approvalBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ApprovalColor).
				Padding(0, 1)

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Bold(true)

	approveButtonStyle = buttonStyle.Background(DoneColor).Foreground(lipgloss.Color("#000000"))
	rejectButtonStyle  = buttonStyle.Background(ErrorColor).Foreground(lipgloss.Color("#000000"))
)
