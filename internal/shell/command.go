// Package shell runs one-shot shell commands and interactive PTY terminals.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/log"
)

// Result is the outcome of RunCommand.
type Result struct {
	Success     bool   `json:"success"`
	CommandID   string `json:"commandId"`
	Output      string `json:"output"`
	ErrorOutput string `json:"errorOutput"`
	ExitCode    int    `json:"exitCode"`
	Error       string `json:"error,omitempty"`
}

// Runner executes commands and owns the open terminals.
type Runner struct {
	sink       Sink
	defaultCwd func() string
	terminals  *terminalSet
}

// Option configures a Runner.
type Option func(*Runner)

// WithDefaultCwd supplies the directory used when a caller passes none.
func WithDefaultCwd(fn func() string) Option {
	return func(r *Runner) { r.defaultCwd = fn }
}

// NewRunner creates a Runner publishing to sink. A nil sink drops events.
func NewRunner(sink Sink, opts ...Option) *Runner {
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	r := &Runner{
		sink:       sink,
		defaultCwd: func() string { return "." },
		terminals:  newTerminalSet(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) resolveCwd(cwd string) string {
	if strings.TrimSpace(cwd) == "" {
		cwd = r.defaultCwd()
	}
	return codex.ExpandTildePath(cwd)
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// RunCommand runs command through the platform shell in cwd and waits for
// it. Non-empty stdout and stderr are also published as CommandOutput.
func (r *Runner) RunCommand(ctx context.Context, command, cwd string) Result {
	id := newID("cmd")

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	cmd.Dir = r.resolveCwd(cwd)
	cmd.Env = codex.SpawnEnv()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug(log.CatShell, "run command", "id", id, "cwd", cmd.Dir)
	err := cmd.Run()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		log.Warn(log.CatShell, "command failed to start", "id", id, "error", err)
		return Result{CommandID: id, ExitCode: -1, Error: err.Error()}
	}

	code := cmd.ProcessState.ExitCode()
	out, errOut := stdout.String(), stderr.String()
	if out != "" {
		r.sink.Notify(CommandOutput{CommandID: id, Stream: "stdout", Data: out})
	}
	if errOut != "" {
		r.sink.Notify(CommandOutput{CommandID: id, Stream: "stderr", Data: errOut})
	}
	return Result{
		Success:     code == 0,
		CommandID:   id,
		Output:      out,
		ErrorOutput: errOut,
		ExitCode:    code,
	}
}
