// Package tui is the terminal chat front-end. It drives one conversation:
// prompts go to the codex coordinator, and the conversation's notification
// stream is folded into a scrolling transcript with inline approval prompts.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"

	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/history"
	"github.com/zjrosen/codexwui/internal/keys"
	"github.com/zjrosen/codexwui/internal/log"
	"github.com/zjrosen/codexwui/internal/pubsub"
)

// Zone IDs for mouse clicks on the approval buttons.
const (
	zoneApprove = "tui-approve"
	zoneReject  = "tui-reject"
)

// Service is the part of the codex coordinator the chat view drives.
type Service interface {
	Submit(ctx context.Context, req codex.SubmitRequest) error
	Cancel(cid string) bool
	RespondToApproval(requestID string, approved bool) error
	RuntimeConfig() codex.RuntimeConfig
}

// Config wires a chat Model.
type Config struct {
	Service       Service
	Notifications *pubsub.Broker[codex.Notification]
	// Store is optional; without it prompts are not persisted.
	Store history.MessageAppender

	ConversationID string
	// History is the stored transcript shown on start and replayed into prompts.
	History []history.Message

	// Debug shows the latest log line in the status bar.
	Debug         bool
	MarkdownStyle string
}

type submitDoneMsg struct{ err error }

// cancelDoneMsg reports whether Cancel found a process.
type cancelDoneMsg struct{ found bool }

type approvalDoneMsg struct {
	requestID string
	approved  bool
	err       error
}

// Model is the chat view.
type Model struct {
	cfg  Config
	keys keys.KeyMap
	ctx  context.Context

	entries   []Entry
	turnStart int
	working   bool
	approvals []codex.ApprovalRequest
	progress  string
	logLine   string

	showThinking bool
	showHelp     bool

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	md       *MarkdownRenderer

	listener    *pubsub.ContinuousListener[codex.Notification]
	logListener *log.LogListener

	width  int
	height int
}

// New creates a chat model. The notification subscription lives until ctx
// is cancelled.
func New(ctx context.Context, cfg Config) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask codex…"
	ta.ShowLineNumbers = false
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := Model{
		cfg:          cfg,
		keys:         keys.DefaultKeyMap(),
		ctx:          ctx,
		input:        ta,
		viewport:     viewport.New(80, 20),
		spinner:      sp,
		help:         help.New(),
		showThinking: true,
	}
	for _, msg := range cfg.History {
		m.entries = append(m.entries, entryFromMessage(msg))
	}
	m.turnStart = len(m.entries)

	if cfg.Notifications != nil {
		// Reliable: the listener is re-armed after every event until ctx ends.
		m.listener = pubsub.NewReliableListener(ctx, cfg.Notifications, codex.ForConversation(cfg.ConversationID))
	}
	if cfg.Debug {
		m.logListener = log.NewListener(ctx)
	}
	return m
}

func entryFromMessage(msg history.Message) Entry {
	if msg.Role == history.RoleUser {
		return Entry{Kind: EntryUser, Content: msg.Content}
	}
	e := Entry{Kind: EntryAssistant, Content: msg.Content}
	if msg.Thinking != nil {
		e.Thinking = *msg.Thinking
	}
	return e
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if m.listener != nil {
		cmds = append(cmds, m.listener.Listen())
	}
	if m.logListener != nil {
		cmds = append(cmds, m.logListener.Listen())
	}
	return tea.Batch(cmds...)
}

// Entries returns the transcript rows.
func (m Model) Entries() []Entry { return m.entries }

// Working reports whether a turn is in flight.
func (m Model) Working() bool { return m.working }

// PendingApprovals returns the approval requests waiting for an answer.
func (m Model) PendingApprovals() []codex.ApprovalRequest { return m.approvals }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.SetWidth(msg.Width)
		m.help.Width = msg.Width
		if md, err := NewMarkdownRenderer(max(msg.Width-4, 20), m.cfg.MarkdownStyle); err == nil {
			m.md = md
		} else {
			log.ErrorErr(log.CatTUI, "markdown renderer unavailable", err)
		}
		m.layout()
		m.refresh(true)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case pubsub.Event[codex.Notification]:
		m.apply(msg.Payload)
		return m, m.listener.Listen()

	case pubsub.Event[string]:
		m.logLine = msg.Payload
		return m, m.logListener.Listen()

	case submitDoneMsg:
		if msg.err != nil {
			log.ErrorErr(log.CatTUI, "submit failed", msg.err, "cid", m.cfg.ConversationID)
			m.entries = append(m.entries, Entry{Kind: EntryError, Content: msg.err.Error()})
			m.finishTurn()
		}
		return m, nil

	case cancelDoneMsg:
		if !msg.found && m.working {
			m.finishTurn()
		}
		return m, nil

	case approvalDoneMsg:
		if msg.err != nil {
			log.ErrorErr(log.CatTUI, "approval failed", msg.err, "request", msg.requestID)
			m.progress = "approval " + msg.requestID + ": " + msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.working {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if !m.working {
			return m, tea.Quit
		}
		// Cancel runs off the update loop: its cancelled StreamEnd has to be
		// read by the listener. The turn ends when that StreamEnd arrives.
		svc, cid := m.cfg.Service, m.cfg.ConversationID
		return m, func() tea.Msg {
			return cancelDoneMsg{found: svc.Cancel(cid)}
		}

	case len(m.approvals) > 0 && key.Matches(msg, m.keys.Approve):
		return m.answer(true)

	case len(m.approvals) > 0 && key.Matches(msg, m.keys.Reject):
		return m.answer(false)

	case len(m.approvals) > 0:
		// The composer is blurred while an approval is pending.
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.ToggleThinking):
		m.showThinking = !m.showThinking
		m.refresh(false)
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Newline):
		m.input.InsertString("\n")
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft && len(m.approvals) > 0 {
		if z := zone.Get(zoneApprove); z != nil && z.InBounds(msg) {
			return m.answer(true)
		}
		if z := zone.Get(zoneReject); z != nil && z.InBounds(msg) {
			return m.answer(false)
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// submit starts a turn with the composer's text.
func (m Model) submit() (tea.Model, tea.Cmd) {
	prompt := strings.TrimSpace(m.input.Value())
	if prompt == "" || m.working {
		return m, nil
	}

	prior := m.promptHistory()
	m.input.Reset()
	m.turnStart = len(m.entries)
	m.entries = append(m.entries, Entry{Kind: EntryUser, Content: prompt})
	m.working = true
	m.progress = ""
	m.refresh(true)

	return m, tea.Batch(m.spinner.Tick, m.submitCmd(prompt, prior))
}

func (m Model) submitCmd(prompt string, prior []codex.HistoryMessage) tea.Cmd {
	cfg := m.cfg
	ctx := m.ctx
	return func() tea.Msg {
		if cfg.Store != nil {
			if _, err := cfg.Store.CreateMessage(ctx, history.Message{
				ConversationID: cfg.ConversationID,
				Role:           history.RoleUser,
				Content:        prompt,
			}); err != nil {
				log.ErrorErr(log.CatTUI, "storing prompt failed", err, "cid", cfg.ConversationID)
			}
		}
		err := cfg.Service.Submit(ctx, codex.SubmitRequest{
			ConversationID: cfg.ConversationID,
			Prompt:         prompt,
			History:        prior,
		})
		return submitDoneMsg{err: err}
	}
}

// promptHistory converts finished user and assistant rows into launcher history.
func (m Model) promptHistory() []codex.HistoryMessage {
	var out []codex.HistoryMessage
	for _, e := range m.entries {
		switch e.Kind {
		case EntryUser:
			out = append(out, codex.HistoryMessage{Role: string(history.RoleUser), Content: e.Content})
		case EntryAssistant:
			if e.Content != "" {
				out = append(out, codex.HistoryMessage{Role: string(history.RoleAssistant), Content: e.Content})
			}
		}
	}
	return out
}

func (m Model) answer(approved bool) (tea.Model, tea.Cmd) {
	req := m.approvals[0]
	m.approvals = m.approvals[1:]
	if len(m.approvals) == 0 {
		m.input.Focus()
	}
	m.layout()

	svc := m.cfg.Service
	return m, func() tea.Msg {
		err := svc.RespondToApproval(req.RequestID, approved)
		return approvalDoneMsg{requestID: req.RequestID, approved: approved, err: err}
	}
}

// apply folds one notification of this conversation into the transcript.
func (m *Model) apply(n codex.Notification) {
	switch v := n.(type) {
	case codex.StreamToken:
		m.assistant().Content += v.Text + "\n"
	case codex.StreamDelta:
		m.assistant().Content += v.Text
	case codex.ThinkingDelta:
		m.assistant().Thinking += v.Text
	case codex.ToolCall:
		m.upsertTool(v)
	case codex.ApprovalRequested:
		m.approvals = append(m.approvals, v.ApprovalRequest)
		m.input.Blur()
		m.layout()
	case codex.Progress:
		lines := strings.Split(v.Text, "\n")
		m.progress = lines[len(lines)-1]
	case codex.StreamEnd:
		if v.Cancelled {
			if e := m.lastAssistant(); e != nil {
				e.Cancelled = true
			}
		}
		m.finishTurn()
	case codex.StreamError:
		m.entries = append(m.entries, Entry{Kind: EntryError, Content: v.Message})
		m.finishTurn()
	case codex.TerminalOutput:
		// Command output is summarized by the matching ToolCall.
	}
	m.refresh(false)
}

// assistant returns the streaming assistant row, appending one when the last
// row is something else.
func (m *Model) assistant() *Entry {
	if n := len(m.entries); n > 0 {
		if last := &m.entries[n-1]; last.Kind == EntryAssistant && last.Streaming {
			return last
		}
	}
	m.entries = append(m.entries, Entry{Kind: EntryAssistant, Streaming: true})
	return &m.entries[len(m.entries)-1]
}

func (m *Model) lastAssistant() *Entry {
	for i := len(m.entries) - 1; i >= m.turnStart && i >= 0; i-- {
		if m.entries[i].Kind == EntryAssistant {
			return &m.entries[i]
		}
	}
	return nil
}

// upsertTool updates the running row of the same tool in the current run
// of tool rows, or appends a new one.
func (m *Model) upsertTool(tc codex.ToolCall) {
	for i := len(m.entries) - 1; i >= m.turnStart && m.entries[i].Kind == EntryTool; i-- {
		e := &m.entries[i]
		if e.Content == tc.Title && e.ToolStatus == codex.ToolRunning {
			e.ToolStatus = tc.Status
			e.ToolOutput = tc.Output
			return
		}
	}
	m.entries = append(m.entries, Entry{Kind: EntryTool, Content: tc.Title, ToolStatus: tc.Status, ToolOutput: tc.Output})
}

func (m *Model) finishTurn() {
	for i := m.turnStart; i < len(m.entries); i++ {
		m.entries[i].Streaming = false
	}
	m.working = false
	m.approvals = nil
	m.progress = ""
	m.input.Focus()
	m.layout()
}

// refresh re-renders the transcript, following the bottom when the user has
// not scrolled up.
func (m *Model) refresh(forceBottom bool) {
	follow := forceBottom || m.viewport.AtBottom()
	m.viewport.SetContent(RenderTranscript(m.entries, RenderOptions{
		Width:        m.viewport.Width,
		ShowThinking: m.showThinking,
		Markdown:     m.md,
	}))
	if follow {
		m.viewport.GotoBottom()
	}
}
