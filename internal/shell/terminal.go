package shell

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/creack/pty"

	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/log"
)

const readChunk = 4096

// ErrTerminalNotFound is returned for unknown or exited terminal ids.
var ErrTerminalNotFound = errors.New("terminal not found")

// TerminalInfo describes a newly created terminal.
type TerminalInfo struct {
	ID    string `json:"id"`
	Shell string `json:"shell"`
	Pid   int    `json:"pid"`
}

type terminal struct {
	id   string
	cmd  *exec.Cmd
	ptmx *os.File
	mu   sync.Mutex
}

type terminalSet struct {
	mu    sync.Mutex
	items map[string]*terminal
}

func newTerminalSet() *terminalSet {
	return &terminalSet{items: make(map[string]*terminal)}
}

func (s *terminalSet) get(id string) (*terminal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	return t, ok
}

func (s *terminalSet) put(t *terminal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[t.id] = t
}

func (s *terminalSet) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

func (s *terminalSet) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// DefaultShell is $SHELL, or bash (powershell.exe on windows).
func DefaultShell() string {
	if runtime.GOOS == "windows" {
		return "powershell.exe"
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "bash"
}

// Create starts shell (DefaultShell when empty) on a new PTY of the given
// size. Output is published as PTYData until the shell exits, then one
// PTYExit follows.
func (r *Runner) Create(cwd, shell string, cols, rows uint16) (TerminalInfo, error) {
	if strings.TrimSpace(shell) == "" {
		shell = DefaultShell()
	}
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	// #nosec G204 -- the user picks their own shell
	cmd := exec.Command(codex.ResolveBinary(shell))
	cmd.Dir = r.resolveCwd(cwd)
	cmd.Env = append(codex.SpawnEnv(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return TerminalInfo{}, fmt.Errorf("starting %s: %w", shell, err)
	}

	t := &terminal{id: newID("pty"), cmd: cmd, ptmx: ptmx}
	r.terminals.put(t)
	log.Info(log.CatShell, "terminal started", "id", t.id, "shell", shell, "pid", cmd.Process.Pid)

	go r.pump(t)

	return TerminalInfo{ID: t.id, Shell: shell, Pid: cmd.Process.Pid}, nil
}

func (r *Runner) pump(t *terminal) {
	buf := make([]byte, readChunk)
	for {
		n, err := t.ptmx.Read(buf)
		if n > 0 {
			r.sink.Notify(PTYData{ID: t.id, Data: strings.ToValidUTF8(string(buf[:n]), "�")})
		}
		if err != nil {
			break
		}
	}

	_ = t.cmd.Wait()
	_ = t.ptmx.Close()
	r.terminals.remove(t.id)

	code := -1
	if t.cmd.ProcessState != nil {
		code = t.cmd.ProcessState.ExitCode()
	}
	log.Info(log.CatShell, "terminal exited", "id", t.id, "exitCode", code)
	r.sink.Notify(PTYExit{ID: t.id, ExitCode: code})
}

// Write sends data to the terminal's input.
func (r *Runner) Write(id, data string) error {
	t, ok := r.terminals.get(id)
	if !ok {
		return ErrTerminalNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.ptmx.WriteString(data); err != nil {
		return fmt.Errorf("writing to terminal %s: %w", id, err)
	}
	return nil
}

// Resize changes the terminal window size.
func (r *Runner) Resize(id string, cols, rows uint16) error {
	t, ok := r.terminals.get(id)
	if !ok {
		return ErrTerminalNotFound
	}
	if err := pty.Setsize(t.ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return fmt.Errorf("resizing terminal %s: %w", id, err)
	}
	return nil
}

// Kill stops the terminal's shell. The PTYExit notification still follows.
func (r *Runner) Kill(id string) error {
	t, ok := r.terminals.get(id)
	if !ok {
		return ErrTerminalNotFound
	}
	if err := t.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("stopping terminal %s: %w", id, err)
	}
	return nil
}

// List returns the ids of running terminals.
func (r *Runner) List() []string {
	return r.terminals.ids()
}

// Close kills every terminal.
func (r *Runner) Close() {
	for _, id := range r.List() {
		_ = r.Kill(id)
	}
}
