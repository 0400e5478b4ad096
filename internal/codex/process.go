package codex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/zjrosen/codexwui/internal/log"
)

// CommandFactoryFunc creates an exec.Cmd. Tests use it to substitute a fake binary.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// LineFunc receives one complete output line.
type LineFunc func(line string)

// ExitInfo describes how a process ended.
type ExitInfo struct {
	// ExitCode is nil when the exit status is unknown (e.g. killed by a signal).
	ExitCode  *int
	Err       error
	Stderr    []string
	Cancelled bool
}

// procState is the lifecycle of a child. A kill before exit marks the
// exit as cancelled.
type procState uint8

const (
	stateStarting procState = iota
	stateRunning
	stateExited
	stateKilled
)

// Process is a running codex child. Stdout and stderr are read in chunks,
// framed into lines and handed to the configured callbacks in arrival order.
type Process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	stdinMu sync.Mutex
	stdin   io.WriteCloser

	mu          sync.RWMutex
	state       procState
	stderrLines []string
	exit        ExitInfo

	onStdout LineFunc
	onStderr LineFunc
	onExit   func(*Process, ExitInfo)

	readers sync.WaitGroup
	done    chan struct{}
}

// PID returns the OS process id, or -1 if not started.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Done is closed after the process exited and onExit returned.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exit returns the exit information. Valid after Done is closed.
func (p *Process) Exit() ExitInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exit
}

// StderrLines returns the stderr lines captured so far.
func (p *Process) StderrLines() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.stderrLines))
	copy(out, p.stderrLines)
	return out
}

// HasStdin reports whether the process accepts writes on stdin.
func (p *Process) HasStdin() bool {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	return p.stdin != nil
}

// WriteLine writes data followed by a newline to stdin.
func (p *Process) WriteLine(data []byte) error {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if p.stdin == nil {
		return ErrStdinUnavailable
	}
	buf := make([]byte, 0, len(data)+1)
	buf = append(append(buf, data...), '\n')
	if _, err := p.stdin.Write(buf); err != nil {
		return fmt.Errorf("writing to codex stdin: %w", err)
	}
	return nil
}

// CloseStdin closes stdin; later writes fail with ErrStdinUnavailable.
func (p *Process) CloseStdin() error {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if p.stdin == nil {
		return nil
	}
	err := p.stdin.Close()
	p.stdin = nil
	return err
}

// Kill sends a single kill signal. It is best-effort: errors are discarded
// and there is no escalation or wait.
func (p *Process) Kill() {
	p.mu.Lock()
	if p.state == stateExited || p.state == stateKilled {
		p.mu.Unlock()
		return
	}
	p.state = stateKilled
	p.mu.Unlock()

	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func (p *Process) start() {
	p.readers.Add(2)
	go p.readStream(p.stdout, p.onStdout, false)
	go p.readStream(p.stderr, p.onStderr, true)
	go p.waitForExit()
}

// readStream feeds raw chunks through a LineFramer so that lines of any
// length are delivered whole.
func (p *Process) readStream(r io.Reader, fn LineFunc, capture bool) {
	defer p.readers.Done()

	var framer LineFramer
	emit := func(line string) {
		if capture {
			p.mu.Lock()
			p.stderrLines = append(p.stderrLines, line)
			p.mu.Unlock()
		}
		if fn != nil {
			fn(line)
		}
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range framer.Feed(buf[:n]) {
				emit(line)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				log.Debug(log.CatCodex, "stream read error", "pid", p.PID(), "error", err)
			}
			break
		}
	}
	if line, ok := framer.Flush(); ok {
		emit(line)
	}
}

// waitForExit waits for both readers to drain before calling Wait, as
// required by exec.Cmd pipes, then records the outcome.
func (p *Process) waitForExit() {
	defer close(p.done)

	p.readers.Wait()
	err := p.cmd.Wait()

	info := ExitInfo{Err: err}
	if ps := p.cmd.ProcessState; ps != nil && ps.ExitCode() >= 0 {
		info.ExitCode = intPtr(ps.ExitCode())
	}

	p.mu.Lock()
	info.Stderr = append([]string(nil), p.stderrLines...)
	if p.state == stateKilled {
		info.Cancelled = true
	} else {
		p.state = stateExited
	}
	p.exit = info
	p.mu.Unlock()

	p.stdinMu.Lock()
	p.stdin = nil
	p.stdinMu.Unlock()

	if p.onExit != nil {
		p.onExit(p, info)
	}
}

// SpawnBuilder provides a fluent API for starting a codex child.
type SpawnBuilder struct {
	ctx            context.Context
	execPath       string
	args           []string
	workDir        string
	env            []string
	stdinData      []byte
	keepStdin      bool
	onStdout       LineFunc
	onStderr       LineFunc
	onExit         func(*Process, ExitInfo)
	commandFactory CommandFactoryFunc
}

// NewSpawnBuilder creates a new SpawnBuilder with the given context.
func NewSpawnBuilder(ctx context.Context) *SpawnBuilder {
	return &SpawnBuilder{ctx: ctx, keepStdin: true}
}

// WithExecutable sets the executable path and arguments.
func (b *SpawnBuilder) WithExecutable(path string, args []string) *SpawnBuilder {
	b.execPath = path
	b.args = args
	return b
}

// WithWorkDir sets the working directory for the process.
func (b *SpawnBuilder) WithWorkDir(dir string) *SpawnBuilder {
	b.workDir = dir
	return b
}

// WithEnv sets the full environment ("KEY=VALUE"). Nil inherits os.Environ().
func (b *SpawnBuilder) WithEnv(env []string) *SpawnBuilder {
	b.env = env
	return b
}

// WithStdinPrompt writes data to stdin right after start and closes it.
func (b *SpawnBuilder) WithStdinPrompt(data []byte) *SpawnBuilder {
	b.stdinData = data
	b.keepStdin = false
	return b
}

// WithStdout sets the stdout line callback.
func (b *SpawnBuilder) WithStdout(fn LineFunc) *SpawnBuilder {
	b.onStdout = fn
	return b
}

// WithStderr sets the stderr line callback.
func (b *SpawnBuilder) WithStderr(fn LineFunc) *SpawnBuilder {
	b.onStderr = fn
	return b
}

// WithExitHandler sets the callback run once after the process exits.
func (b *SpawnBuilder) WithExitHandler(fn func(*Process, ExitInfo)) *SpawnBuilder {
	b.onExit = fn
	return b
}

// WithCommandFactory sets a custom command factory for testing.
func (b *SpawnBuilder) WithCommandFactory(fn CommandFactoryFunc) *SpawnBuilder {
	b.commandFactory = fn
	return b
}

// Build creates the pipes, starts the process and its reader goroutines.
// On error every created resource is released.
func (b *SpawnBuilder) Build() (*Process, error) {
	if b.execPath == "" {
		return nil, fmt.Errorf("spawn builder: executable path is required")
	}

	var cmd *exec.Cmd
	if b.commandFactory != nil {
		cmd = b.commandFactory(b.ctx, b.execPath, b.args...)
	} else {
		// #nosec G204 -- argv is built from RuntimeConfig
		cmd = exec.CommandContext(b.ctx, b.execPath, b.args...)
	}
	cmd.Dir = b.workDir
	if b.env != nil {
		cmd.Env = b.env
	}

	var closers []io.Closer
	cleanup := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn builder: failed to create stdin pipe: %w", err)
	}
	closers = append(closers, stdin)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("spawn builder: failed to create stdout pipe: %w", err)
	}
	closers = append(closers, stdout)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("spawn builder: failed to create stderr pipe: %w", err)
	}
	closers = append(closers, stderr)

	p := &Process{
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		state:    stateStarting,
		onStdout: b.onStdout,
		onStderr: b.onStderr,
		onExit:   b.onExit,
		done:     make(chan struct{}),
	}

	log.Debug(log.CatCodex, "Spawning process", "execPath", b.execPath, "workDir", b.workDir, "argc", len(b.args))

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to start %s: %w", b.execPath, err)
	}
	log.Debug(log.CatCodex, "Process started", "pid", cmd.Process.Pid)

	p.mu.Lock()
	p.state = stateRunning
	p.mu.Unlock()

	p.start()

	if !b.keepStdin {
		// The prompt owns stdin in this mode; approvals cannot be answered.
		p.stdinMu.Lock()
		p.stdin = nil
		p.stdinMu.Unlock()
		go func(data []byte, pid int) {
			if len(data) > 0 {
				if _, err := stdin.Write(data); err != nil {
					log.Debug(log.CatCodex, "writing prompt to stdin failed", "pid", pid, "error", err)
				}
			}
			_ = stdin.Close()
		}(b.stdinData, cmd.Process.Pid)
	}

	return p, nil
}
