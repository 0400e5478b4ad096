package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/history"
	"github.com/zjrosen/codexwui/internal/log"
	"github.com/zjrosen/codexwui/internal/tui"
)

var (
	runConversation string
	runAutoApprove  bool
	runShowThinking bool
)

var runCmd = &cobra.Command{
	Use:   "run [prompt...]",
	Short: "Send one prompt and stream the reply",
	Long: `Send a single prompt to codex and stream the reply to stdout.

Use "-" as the prompt to read it from stdin. Approval requests are asked on
the terminal unless --yes is given; without a terminal they are rejected.

Examples:
  codexwui run "explain main.go"
  git diff | codexwui run -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConversation, "conversation", "C", "", "continue the conversation with this id")
	runCmd.Flags().BoolVarP(&runAutoApprove, "yes", "y", false, "approve every request")
	runCmd.Flags().BoolVar(&runShowThinking, "thinking", false, "print reasoning to stderr")
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading prompt from stdin: %w", err)
		}
		args = []string{string(data)}
	}
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}
	return prompt, nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(args, os.Stdin)
	if err != nil {
		return err
	}

	cleanup, err := initLogging("codexwui-run")
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.ErrorErr(log.CatConfig, "Shutdown failed", err)
		}
	}()

	ctx, stop := signal.NotifyContext(a.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, a.Store, a.Codex.RuntimeConfig(), runConversation)
	if err != nil {
		return fmt.Errorf("opening conversation: %w", err)
	}
	if sess.Fresh {
		if err := a.Store.UpdateConversationTitle(ctx, sess.ConversationID, conversationTitle(prompt)); err != nil {
			log.ErrorErr(log.CatDB, "Naming conversation failed", err, "cid", sess.ConversationID)
		}
	}

	// Subscribe before submitting so no notification is missed. The loop
	// below reads until it returns, which cancels ctx via stop.
	events := a.Notifications.SubscribeReliable(ctx, codex.ForConversation(sess.ConversationID))

	if _, err := a.Store.CreateMessage(ctx, history.Message{
		ConversationID: sess.ConversationID,
		Role:           history.RoleUser,
		Content:        prompt,
	}); err != nil {
		log.ErrorErr(log.CatDB, "Storing prompt failed", err, "cid", sess.ConversationID)
	}

	if err := a.Codex.Submit(ctx, codex.SubmitRequest{
		ConversationID: sess.ConversationID,
		Prompt:         prompt,
		History:        history.PromptHistory(sess.History),
	}); err != nil {
		return err
	}

	p := newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
	approver := newApprover(os.Stdin, cmd.ErrOrStderr(), runAutoApprove)

	for {
		select {
		case <-ctx.Done():
			a.Codex.Cancel(sess.ConversationID)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errors.New("notification stream closed")
			}
			switch n := ev.Payload.(type) {
			case codex.ApprovalRequested:
				approved := approver.ask(n.ApprovalRequest)
				if err := a.Codex.RespondToApproval(n.RequestID, approved); err != nil {
					p.warn(err.Error())
				}
			case codex.StreamError:
				p.flush()
				return errors.New(n.Message)
			case codex.StreamEnd:
				p.flush()
				if n.Cancelled {
					return errors.New("cancelled")
				}
				return nil
			default:
				p.handle(ev.Payload)
			}
		}
	}
}

// printer streams a reply. On a terminal the answer is buffered and shown as
// rendered markdown at the end; otherwise deltas go straight to out.
type printer struct {
	out, errOut io.Writer
	tty         bool
	width       int
	answer      strings.Builder
	muted       lipgloss.Style
	warning     lipgloss.Style
}

func newPrinter(out, errOut io.Writer) *printer {
	p := &printer{out: out, errOut: errOut, width: 80}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			p.width = w
		}
	}
	r := lipgloss.NewRenderer(errOut, termenv.WithColorCache(true))
	p.muted = r.NewStyle().Foreground(tui.MutedColor)
	p.warning = r.NewStyle().Foreground(tui.ErrorColor)
	return p
}

func (p *printer) handle(n codex.Notification) {
	switch v := n.(type) {
	case codex.StreamDelta:
		p.text(v.Text)
	case codex.StreamToken:
		p.text(v.Text + "\n")
	case codex.ThinkingDelta:
		if runShowThinking {
			fmt.Fprint(p.errOut, p.muted.Render(v.Text))
		}
	case codex.ToolCall:
		if v.Status == codex.ToolRunning {
			return
		}
		icon := "✓"
		if v.Status == codex.ToolError {
			icon = "✗"
		}
		fmt.Fprintln(p.errOut, p.muted.Render(icon+" "+firstLineOf(v.Title)))
	case codex.Progress:
		log.Debug(log.CatCodex, "progress", "line", v.Text)
	}
}

func (p *printer) text(s string) {
	if p.tty {
		p.answer.WriteString(s)
		return
	}
	fmt.Fprint(p.out, s)
}

func (p *printer) warn(msg string) {
	fmt.Fprintln(p.errOut, p.warning.Render(msg))
}

// flush prints the buffered answer.
func (p *printer) flush() {
	if !p.tty {
		fmt.Fprintln(p.out)
		return
	}
	content := strings.TrimSpace(p.answer.String())
	p.answer.Reset()
	if content == "" {
		return
	}
	md, err := tui.NewMarkdownRenderer(max(p.width-2, 20), markdownStyle())
	if err == nil {
		if rendered, err := md.Render(content); err == nil {
			fmt.Fprint(p.out, rendered)
			return
		}
	}
	fmt.Fprintln(p.out, wordwrap.String(content, p.width))
}

func firstLineOf(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// approver answers approval requests on the terminal.
type approver struct {
	in   *bufio.Reader
	out  io.Writer
	tty  bool
	auto bool
}

func newApprover(in *os.File, out io.Writer, auto bool) *approver {
	return &approver{
		in:   bufio.NewReader(in),
		out:  out,
		tty:  term.IsTerminal(int(in.Fd())),
		auto: auto,
	}
}

func (a *approver) ask(req codex.ApprovalRequest) bool {
	title := req.Title
	if title == "" {
		title = "codex requests approval"
	}
	if a.auto {
		fmt.Fprintf(a.out, "approved: %s\n", title)
		return true
	}
	if !a.tty {
		fmt.Fprintf(a.out, "rejected (no terminal): %s\n", title)
		return false
	}
	fmt.Fprintf(a.out, "\n%s\n", title)
	if req.Description != "" {
		fmt.Fprintln(a.out, req.Description)
	}
	fmt.Fprint(a.out, "Approve? [y/N] ")
	line, _ := a.in.ReadString('\n')
	return parseYes(line)
}

func parseYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// markdownStyle picks the glamour style for the terminal background.
func markdownStyle() string {
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}
