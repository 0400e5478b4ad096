// Package auth reads codex CLI credentials and drives `codex login`.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/codexwui/internal/cachemanager"
	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/log"
	"github.com/zjrosen/codexwui/internal/watcher"
)

const (
	// AuthFileName is the credentials file inside the codex home directory.
	AuthFileName = "auth.json"

	userCacheKey = "current-user"
	userCacheTTL = time.Minute

	claimPlanType = "https://api.openai.com/auth.chatgpt_plan_type"
)

// Login methods accepted by Login.
const (
	MethodBrowser    = "browser"
	MethodDeviceAuth = "device-auth"
	MethodAPIKey     = "api-key"
)

// ErrEmptyAPIKey is returned when api-key login has no key.
var ErrEmptyAPIKey = errors.New("API key login requires a non-empty apiKey value")

// User is the identity found in the codex credentials file.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Picture      string `json:"picture"`
	AuthMode     string `json:"authMode"`
	AuthProvider string `json:"authProvider"`
	PlanType     string `json:"planType,omitempty"`
}

// Method describes a login method for display.
type Method struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// LoginResult is the outcome of Login.
type LoginResult struct {
	Success bool   `json:"success"`
	User    *User  `json:"user,omitempty"`
	Method  string `json:"method,omitempty"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Service reads and caches the current codex user.
type Service struct {
	home           string
	binary         string
	getenv         func(string) string
	commandFactory codex.CommandFactoryFunc
	users          *cachemanager.ReadThroughCache[*User, string]
	watcher        *watcher.Watcher
}

// Option configures a Service.
type Option func(*Service)

// WithHome overrides the codex home directory.
func WithHome(dir string) Option {
	return func(s *Service) { s.home = dir }
}

// WithBinary sets the codex executable used for login and logout.
func WithBinary(binary string) Option {
	return func(s *Service) {
		if binary != "" {
			s.binary = binary
		}
	}
}

// WithCommandFactory replaces exec.CommandContext, for tests.
func WithCommandFactory(fn codex.CommandFactoryFunc) Option {
	return func(s *Service) { s.commandFactory = fn }
}

// WithGetenv replaces os.Getenv, for tests.
func WithGetenv(fn func(string) string) Option {
	return func(s *Service) { s.getenv = fn }
}

// NewService creates a Service rooted at CODEX_HOME, or ~/.codex.
func NewService(opts ...Option) *Service {
	s := &Service{
		binary: "codex",
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.home == "" {
		s.home = CodexHome(s.getenv)
	}
	cache := cachemanager.NewInMemoryCacheManager[*User]("auth-user", userCacheTTL, cachemanager.DefaultCleanupInterval)
	s.users = cachemanager.NewReadThroughCache(cache, s.readUser, false)
	return s
}

// CodexHome returns $CODEX_HOME or ~/.codex.
func CodexHome(getenv func(string) string) string {
	if v := strings.TrimSpace(getenv("CODEX_HOME")); v != "" {
		return codex.ExpandTildePath(v)
	}
	if home, ok := codex.HomeDir(); ok {
		return filepath.Join(home, ".codex")
	}
	return ".codex"
}

// AuthPath is the credentials file this service reads.
func (s *Service) AuthPath() string {
	return filepath.Join(s.home, AuthFileName)
}

// CurrentUser returns the logged-in user, or nil when no credentials exist.
func (s *Service) CurrentUser(ctx context.Context) (*User, error) {
	return s.users.Get(ctx, userCacheKey, s.AuthPath(), userCacheTTL)
}

// Invalidate drops the cached user.
func (s *Service) Invalidate() {
	s.users.Invalidate(userCacheKey)
}

func (s *Service) readUser(_ context.Context, path string) (*User, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	user, err := ParseAuthFile(data, s.getenv("OPENAI_API_KEY") != "")
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return user, nil
}

type authFile struct {
	AuthMode string `json:"auth_mode"`
	APIKey   string `json:"OPENAI_API_KEY"`
	Tokens   struct {
		IDToken   string `json:"id_token"`
		AccountID string `json:"account_id"`
	} `json:"tokens"`
}

// ParseAuthFile builds a User from auth.json contents. envAPIKey reports
// whether OPENAI_API_KEY is set in the environment.
func ParseAuthFile(data []byte, envAPIKey bool) (*User, error) {
	var f authFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	user := &User{
		ID:       f.Tokens.AccountID,
		AuthMode: f.AuthMode,
	}
	if user.ID == "" {
		user.ID = "codex-user"
	}
	if user.AuthMode == "" {
		user.AuthMode = "unknown"
	}

	if claims := jwtClaims(f.Tokens.IDToken); claims != nil {
		user.Email, _ = claims["email"].(string)
		user.AuthProvider, _ = claims["auth_provider"].(string)
		if plan, ok := claims[claimPlanType].(string); ok {
			user.PlanType = plan
		} else if nested, ok := claims["https://api.openai.com/auth"].(map[string]any); ok {
			user.PlanType, _ = nested["chatgpt_plan_type"].(string)
		}
	}

	if user.AuthMode == "api_key" || envAPIKey || (f.APIKey != "" && f.Tokens.IDToken == "") {
		user.AuthProvider = "api_key"
	}

	if local, _, _ := strings.Cut(user.Email, "@"); local != "" {
		user.Name = local
	} else {
		user.Name = "codex-" + user.AuthMode
	}
	return user, nil
}

// jwtClaims decodes the payload segment of token without verifying it.
func jwtClaims(token string) map[string]any {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		payload, err = base64.URLEncoding.DecodeString(parts[1])
		if err != nil {
			return nil
		}
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil
	}
	return claims
}

// Watch invalidates the cached user whenever auth.json changes, until ctx
// is done. The codex home directory must exist.
func (s *Service) Watch(ctx context.Context) error {
	w, err := watcher.New(watcher.DefaultConfig(s.AuthPath()))
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return err
	}
	s.watcher = w

	go func() {
		defer func() { _ = w.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				log.Info(log.CatAuth, "credentials changed", "path", s.AuthPath())
				s.Invalidate()
			}
		}
	}()
	return nil
}

// LoginMethods lists the supported login methods.
func LoginMethods() []Method {
	return []Method{
		{ID: MethodBrowser, Label: "Browser OAuth"},
		{ID: MethodDeviceAuth, Label: "Device Auth"},
		{ID: MethodAPIKey, Label: "API Key"},
	}
}
