package codex

import (
	"github.com/zjrosen/codexwui/internal/pubsub"
)

// Notification is a closed set of stream notifications produced for a
// conversation. Switch on the concrete type to handle each variant.
type Notification interface {
	// Kind is the wire event name, e.g. "codex-stream-delta".
	Kind() string
	// Conversation is the owning conversation id ("" for global events).
	Conversation() string
	notification()
}

// ToolStatus is the normalized state of a tool call.
type ToolStatus string

const (
	ToolRunning ToolStatus = "running"
	ToolDone    ToolStatus = "done"
	ToolError   ToolStatus = "error"
)

// StreamToken is raw non-JSON stdout passed through as content.
type StreamToken struct {
	ConversationID string `json:"cid"`
	Text           string `json:"data"`
}

// StreamDelta is incremental assistant content.
type StreamDelta struct {
	ConversationID string `json:"cid"`
	Text           string `json:"data"`
}

// ThinkingDelta is incremental reasoning content.
type ThinkingDelta struct {
	ConversationID string `json:"cid"`
	Text           string `json:"data"`
}

// ToolCall reports a command, MCP tool or file change.
type ToolCall struct {
	ConversationID string     `json:"cid"`
	Title          string     `json:"title"`
	Status         ToolStatus `json:"status"`
	Output         string     `json:"output"`
}

// TerminalOutput is the aggregated output of a command execution item.
type TerminalOutput struct {
	ConversationID string `json:"cid"`
	TerminalID     string `json:"terminalId"`
	Output         string `json:"output"`
	ExitCode       *int   `json:"exitCode"`
}

// ApprovalRequested asks the user to approve or reject an action.
type ApprovalRequested struct {
	ConversationID string `json:"cid"`
	ApprovalRequest
}

// Progress is a cleaned stderr line.
type Progress struct {
	ConversationID string `json:"cid"`
	Text           string `json:"data"`
}

// StreamEnd marks the end of a turn.
type StreamEnd struct {
	ConversationID string `json:"cid"`
	Cancelled      bool   `json:"cancelled,omitempty"`
	ExitCode       *int   `json:"exitCode,omitempty"`
}

// StreamError marks a failed turn.
type StreamError struct {
	ConversationID string `json:"cid"`
	Message        string `json:"data"`
	ExitCode       *int   `json:"exitCode,omitempty"`
}

// InstallProgress reports `npm install -g @openai/codex` progress.
type InstallProgress struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

func (StreamToken) Kind() string       { return "codex-stream-token" }
func (StreamDelta) Kind() string       { return "codex-stream-delta" }
func (ThinkingDelta) Kind() string     { return "codex-thinking-delta" }
func (ToolCall) Kind() string          { return "codex-tool-call" }
func (TerminalOutput) Kind() string    { return "codex-terminal-output" }
func (ApprovalRequested) Kind() string { return "codex-approval-request" }
func (Progress) Kind() string          { return "codex-progress" }
func (StreamEnd) Kind() string         { return "codex-stream-end" }
func (StreamError) Kind() string       { return "codex-stream-error" }
func (InstallProgress) Kind() string   { return "codex-install-progress" }

func (n StreamToken) Conversation() string       { return n.ConversationID }
func (n StreamDelta) Conversation() string       { return n.ConversationID }
func (n ThinkingDelta) Conversation() string     { return n.ConversationID }
func (n ToolCall) Conversation() string          { return n.ConversationID }
func (n TerminalOutput) Conversation() string    { return n.ConversationID }
func (n ApprovalRequested) Conversation() string { return n.ConversationID }
func (n Progress) Conversation() string          { return n.ConversationID }
func (n StreamEnd) Conversation() string         { return n.ConversationID }
func (n StreamError) Conversation() string       { return n.ConversationID }
func (InstallProgress) Conversation() string     { return "" }

func (StreamToken) notification()       {}
func (StreamDelta) notification()       {}
func (ThinkingDelta) notification()     {}
func (ToolCall) notification()          {}
func (TerminalOutput) notification()    {}
func (ApprovalRequested) notification() {}
func (Progress) notification()          {}
func (StreamEnd) notification()         {}
func (StreamError) notification()       {}
func (InstallProgress) notification()   {}

// Sink receives notifications. Implementations must be safe for concurrent
// use: stdout and stderr of one process, and different processes, notify
// from separate goroutines.
type Sink interface {
	Notify(Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notification)

// Notify calls f(n).
func (f SinkFunc) Notify(n Notification) { f(n) }

// BrokerSink publishes notifications on a pubsub broker.
type BrokerSink struct {
	Broker *pubsub.Broker[Notification]
}

// Notify publishes n as a NotifyEvent.
func (s BrokerSink) Notify(n Notification) {
	s.Broker.Publish(pubsub.NotifyEvent, n)
}

// MultiSink forwards each notification to every sink, in order, on the
// caller's goroutine.
type MultiSink []Sink

// Notify calls Notify on each sink.
func (m MultiSink) Notify(n Notification) {
	for _, s := range m {
		s.Notify(n)
	}
}

// ForConversation returns a filter for Broker.SubscribeFiltered that keeps
// notifications of one conversation.
func ForConversation(cid string) func(Notification) bool {
	return func(n Notification) bool { return n.Conversation() == cid }
}

// IsTerminal reports whether n ends a turn.
func IsTerminal(n Notification) bool {
	switch n.(type) {
	case StreamEnd, StreamError:
		return true
	default:
		return false
	}
}

func intPtr(v int) *int { return &v }
