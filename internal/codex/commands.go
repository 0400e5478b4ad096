package codex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/zjrosen/codexwui/internal/log"
)

// Install progress statuses.
const (
	InstallInstalling = "installing"
	InstallComplete   = "complete"
	InstallError      = "error"
)

// InstallPackage is the npm package providing the codex CLI.
const InstallPackage = "@openai/codex"

const npmMissingMessage = "npm executable was not found. Please install Node.js and make sure npm is available in PATH."

// CommandResult is the outcome of a one-shot codex invocation.
type CommandResult struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	Error    string `json:"error,omitempty"`
}

func (s *Service) command(ctx context.Context, name string, args ...string) *exec.Cmd {
	var cmd *exec.Cmd
	if s.commandFactory != nil {
		cmd = s.commandFactory(ctx, name, args...)
	} else {
		// #nosec G204 -- fixed binaries, user supplied args
		cmd = exec.CommandContext(ctx, ResolveBinary(name), args...)
	}
	cmd.Env = s.env()
	return cmd
}

// CheckInstalled reports whether `codex --version` succeeds.
func (s *Service) CheckInstalled(ctx context.Context) bool {
	cmd := s.command(ctx, s.binary, "--version")
	err := cmd.Run()
	if err != nil {
		log.Debug(log.CatCodex, "codex --version failed", "error", err)
	}
	return err == nil
}

// RunCommand runs `codex <subcommand> <args...>` in cwd, or in the runtime
// cwd when cwd is empty, and captures its output.
func (s *Service) RunCommand(ctx context.Context, subcommand string, args []string, cwd string) CommandResult {
	if cwd == "" {
		cwd = s.RuntimeConfig().Cwd
	}
	argv := append([]string{subcommand}, args...)
	cmd := s.command(ctx, s.binary, argv...)
	cmd.Dir = ExpandTildePath(cwd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: -1}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
		res.Success = cmd.ProcessState.Success()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		res.Error = err.Error()
	}
	log.Debug(log.CatCodex, "codex command finished", "subcommand", subcommand, "exitCode", res.ExitCode)
	return res
}

// Install runs `npm install -g @openai/codex`, reporting InstallProgress
// notifications. Stderr lines advance the percentage from 10 to 80, stdout
// lines report 85, and completion reports 100.
func (s *Service) Install(ctx context.Context) error {
	s.sink.Notify(InstallProgress{Status: InstallInstalling, Message: "Installing Codex CLI...", Percent: 0})

	var mu sync.Mutex
	stderrCount := 0
	fail := func(msg string) error {
		s.sink.Notify(InstallProgress{Status: InstallError, Message: msg, Percent: 0})
		log.Error(log.CatCodex, "Install failed", "message", msg)
		return errors.New(msg)
	}

	p, err := NewSpawnBuilder(ctx).
		WithExecutable(ResolveBinary("npm"), []string{"install", "-g", InstallPackage}).
		WithEnv(s.env()).
		WithCommandFactory(s.commandFactory).
		WithStderr(func(line string) {
			line = strings.TrimSpace(line)
			if line == "" {
				return
			}
			mu.Lock()
			stderrCount++
			percent := min(10+stderrCount*5, 80)
			mu.Unlock()
			s.sink.Notify(InstallProgress{Status: InstallInstalling, Message: line, Percent: percent})
		}).
		WithStdout(func(line string) {
			line = strings.TrimSpace(line)
			if line == "" {
				return
			}
			s.sink.Notify(InstallProgress{Status: InstallInstalling, Message: line, Percent: 85})
		}).
		Build()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fail(npmMissingMessage)
		}
		return fail(err.Error())
	}
	_ = p.CloseStdin()

	select {
	case <-p.Done():
	case <-ctx.Done():
		p.Kill()
		<-p.Done()
		return fail(ctx.Err().Error())
	}

	info := p.Exit()
	if info.ExitCode != nil && *info.ExitCode == 0 {
		s.sink.Notify(InstallProgress{Status: InstallComplete, Message: "Codex CLI installed successfully", Percent: 100})
		log.Info(log.CatCodex, "Codex CLI installed")
		return nil
	}
	code := -1
	if info.ExitCode != nil {
		code = *info.ExitCode
	}
	return fail(fmt.Sprintf("Install failed: exit %d", code))
}
