// Package api exposes the codex shell over local HTTP. REST endpoints cover
// history, settings and tools; SSE streams carry codex notifications,
// terminal output and the debug log.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/zjrosen/codexwui/internal/auth"
	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/fsops"
	"github.com/zjrosen/codexwui/internal/history"
	"github.com/zjrosen/codexwui/internal/log"
	"github.com/zjrosen/codexwui/internal/pubsub"
	"github.com/zjrosen/codexwui/internal/shell"
)

// CodexService launches turns and owns the runtime settings.
type CodexService interface {
	Submit(ctx context.Context, req codex.SubmitRequest) error
	Cancel(cid string) bool
	RespondToApproval(requestID string, approved bool) error
	Running() []string
	RuntimeConfig() codex.RuntimeConfig
	SetMode(mode string) error
	SetYoloMode(enabled bool)
	SetModel(model string)
	SetCLIOptions(patch codex.CLIOptionsPatch) codex.CLIOptions
	SwitchWorkspace(cwd string) error
	Models() []codex.ModelInfo
	CheckInstalled(ctx context.Context) bool
	Install(ctx context.Context) error
	RunCommand(ctx context.Context, subcommand string, args []string, cwd string) codex.CommandResult
}

// AuthService reads and changes the codex login.
type AuthService interface {
	CurrentUser(ctx context.Context) (*auth.User, error)
	Login(ctx context.Context, method, apiKey string) auth.LoginResult
	Logout(ctx context.Context) error
}

// ShellService runs commands and terminals.
type ShellService interface {
	RunCommand(ctx context.Context, command, cwd string) shell.Result
	Create(cwd, shell string, cols, rows uint16) (shell.TerminalInfo, error)
	Write(id, data string) error
	Resize(id string, cols, rows uint16) error
	Kill(id string) error
	List() []string
}

// FileService provides the cached and networked file helpers.
type FileService interface {
	SearchFiles(ctx context.Context, workspace, query string) ([]fsops.FileMatch, error)
	WebSearch(ctx context.Context, query string) ([]fsops.WebResult, error)
	OpenInEditor(path, editor string) (string, error)
}

// TeamsSender posts to a Teams webhook.
type TeamsSender interface {
	Send(ctx context.Context, webhookURL, title, content string) (int, error)
}

// HandlerConfig wires the handler's collaborators. Codex and Store are
// required; routes whose collaborator is nil answer 501.
type HandlerConfig struct {
	Codex CodexService
	Store history.Store
	Auth  AuthService
	Shell ShellService
	Files FileService
	Teams TeamsSender

	Notifications *pubsub.Broker[codex.Notification]
	ShellEvents   *pubsub.Broker[shell.Event]

	// Persist stores user messages before each prompt.
	Persist bool
	// HistoryLimit is how many stored messages are replayed into a prompt.
	HistoryLimit int
	// TeamsWebhook is used when a send request names no webhook.
	TeamsWebhook string
	// Heartbeat is the SSE keepalive interval, 30s when zero.
	Heartbeat time.Duration
}

// Handler provides the HTTP endpoints.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler creates a handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = codex.DefaultHistoryLimit
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	return &Handler{cfg: cfg}
}

// Routes returns an http.Handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	// History
	mux.HandleFunc("GET /state", h.GetState)
	mux.HandleFunc("POST /workspaces", h.CreateWorkspace)
	mux.HandleFunc("DELETE /workspaces/{id}", h.DeleteWorkspace)
	mux.HandleFunc("POST /conversations", h.CreateConversation)
	mux.HandleFunc("GET /conversations/{id}", h.GetConversation)
	mux.HandleFunc("PATCH /conversations/{id}", h.UpdateConversation)
	mux.HandleFunc("DELETE /conversations/{id}", h.DeleteConversation)
	mux.HandleFunc("GET /conversations/{id}/messages", h.ListMessages)
	mux.HandleFunc("POST /conversations/{id}/messages", h.CreateMessage)

	// Turns
	mux.HandleFunc("POST /conversations/{id}/prompt", h.Prompt)
	mux.HandleFunc("POST /conversations/{id}/cancel", h.Cancel)
	mux.HandleFunc("POST /approvals/{id}", h.RespondToApproval)

	// Settings
	mux.HandleFunc("GET /settings", h.GetSettings)
	mux.HandleFunc("PATCH /settings", h.UpdateSettings)
	mux.HandleFunc("POST /settings/workspace", h.SwitchWorkspace)
	mux.HandleFunc("GET /models", h.ListModels)

	// Codex CLI
	mux.HandleFunc("GET /codex/check", h.CheckInstalled)
	mux.HandleFunc("POST /codex/install", h.Install)
	mux.HandleFunc("POST /codex/command", h.RunCodexCommand)

	// Auth
	mux.HandleFunc("GET /auth/user", h.CurrentUser)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/methods", h.LoginMethods)

	// Shell
	mux.HandleFunc("POST /shell/run", h.RunShell)
	mux.HandleFunc("POST /terminals", h.CreateTerminal)
	mux.HandleFunc("GET /terminals", h.ListTerminals)
	mux.HandleFunc("POST /terminals/{id}/input", h.WriteTerminal)
	mux.HandleFunc("POST /terminals/{id}/resize", h.ResizeTerminal)
	mux.HandleFunc("DELETE /terminals/{id}", h.KillTerminal)

	// Files
	mux.HandleFunc("GET /fs/read", h.ReadFile)
	mux.HandleFunc("PUT /fs/write", h.WriteFile)
	mux.HandleFunc("GET /fs/list", h.ListDir)
	mux.HandleFunc("GET /fs/exists", h.FileExists)
	mux.HandleFunc("GET /fs/search", h.SearchFiles)
	mux.HandleFunc("GET /fs/websearch", h.WebSearch)
	mux.HandleFunc("POST /fs/open", h.OpenInEditor)

	mux.HandleFunc("POST /teams/send", h.SendToTeams)

	// Event streaming
	mux.HandleFunc("GET /events", h.StreamAllEvents)
	mux.HandleFunc("GET /conversations/{id}/events", h.StreamConversationEvents)
	mux.HandleFunc("GET /logs", h.StreamLogs)

	return mux
}

// ErrorResponse is the response body for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse acknowledges a request with no other result.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string   `json:"status"`
	Running []string `json:"running"`
}

// Health reports liveness and the conversations with a running turn.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	running := h.cfg.Codex.Running()
	if running == nil {
		running = []string{}
	}
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Running: running})
}

// === Helpers ===

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatAPI, "Failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	var nf *history.NotFoundError
	if errors.As(err, &nf) {
		h.writeError(w, http.StatusNotFound, "not_found", nf.Error(), "")
		return
	}
	log.ErrorErr(log.CatAPI, "store operation failed", err)
	h.writeError(w, http.StatusInternalServerError, "store_error", "Storage operation failed", err.Error())
}

func (h *Handler) unavailable(w http.ResponseWriter, what string) {
	h.writeError(w, http.StatusNotImplemented, "not_configured", what+" is not configured", "")
}

// Server wraps the Handler with an http.Server for lifecycle management.
type Server struct {
	server   *http.Server
	listener net.Listener
	port     int
	cancel   context.CancelFunc
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Addr is the address to listen on, e.g. "127.0.0.1:7420". Port 0 picks a free port.
	Addr    string
	Handler *Handler
	// ReadTimeout defaults to 30s. There is no write timeout so SSE streams stay open.
	ReadTimeout time.Duration
}

// NewServer binds the listener so Port is known before Start.
func NewServer(cfg ServerConfig) (*Server, error) {
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}
	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	// Cancelled by Stop so open event streams end and Shutdown can finish.
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		listener: listener,
		port:     port,
		cancel:   cancel,
		server: &http.Server{
			Handler:           cfg.Handler.Routes(),
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return base },
		},
	}, nil
}

// Start serves until Stop. It returns http.ErrServerClosed after a clean stop.
func (s *Server) Start() error {
	log.Info(log.CatAPI, "Starting API server", "addr", s.listener.Addr().String())
	return s.server.Serve(s.listener)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatAPI, "Stopping API server")
	s.cancel()
	return s.server.Shutdown(ctx)
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}
