package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/log"
)

func (s *Service) command(ctx context.Context, args ...string) *exec.Cmd {
	var cmd *exec.Cmd
	if s.commandFactory != nil {
		cmd = s.commandFactory(ctx, s.binary, args...)
	} else {
		// #nosec G204 -- fixed binary and arguments
		cmd = exec.CommandContext(ctx, codex.ResolveBinary(s.binary), args...)
	}
	cmd.Env = codex.SpawnEnv()
	return cmd
}

// Login returns the cached credentials when present. Otherwise it runs
// `codex login` with method (browser when empty) and rereads the credentials.
func (s *Service) Login(ctx context.Context, method, apiKey string) LoginResult {
	if user, err := s.CurrentUser(ctx); err == nil && user != nil {
		return LoginResult{Success: true, User: user}
	}

	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		method = MethodBrowser
	}
	apiKey = strings.TrimSpace(apiKey)

	args := []string{"login"}
	switch method {
	case MethodDeviceAuth:
		args = append(args, "--device-auth")
	case MethodAPIKey:
		if apiKey == "" {
			return LoginResult{Error: ErrEmptyAPIKey.Error()}
		}
		args = append(args, "--with-api-key")
	}

	cmd := s.command(ctx, args...)
	if method == MethodAPIKey {
		cmd.Stdin = strings.NewReader(apiKey + "\n")
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Info(log.CatAuth, "codex login", "method", method)
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = stdout.String()
		}
		var exitErr *exec.ExitError
		if msg == "" || !errors.As(err, &exitErr) {
			msg = err.Error()
		}
		log.Warn(log.CatAuth, "codex login failed", "method", method, "error", err)
		return LoginResult{Error: msg}
	}

	s.Invalidate()
	user, err := s.CurrentUser(ctx)
	if err != nil {
		log.ErrorErr(log.CatAuth, "reading credentials after login", err)
	}
	return LoginResult{Success: true, User: user, Method: method, Output: stdout.String()}
}

// Logout runs `codex logout` and drops the cached user.
func (s *Service) Logout(ctx context.Context) error {
	defer s.Invalidate()

	err := s.command(ctx, "logout").Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("codex logout failed with exit code %d", exitErr.ExitCode())
	}
	if err != nil {
		return fmt.Errorf("codex logout: %w", err)
	}
	log.Info(log.CatAuth, "logged out")
	return nil
}
