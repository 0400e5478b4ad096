package api

import (
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/zjrosen/codexwui/internal/auth"
	"github.com/zjrosen/codexwui/internal/fsops"
	"github.com/zjrosen/codexwui/internal/shell"
	"github.com/zjrosen/codexwui/internal/teams"
)

// === Auth ===

// UserResponse is the response body for GET /auth/user. User is null when
// no credentials exist.
type UserResponse struct {
	User *auth.User `json:"user"`
}

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Method string `json:"method,omitempty"`
	APIKey string `json:"apiKey,omitempty"`
}

// MethodsResponse is the response body for GET /auth/methods.
type MethodsResponse struct {
	Methods []auth.Method `json:"methods"`
}

// CurrentUser returns the logged-in codex user.
// GET /auth/user
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Auth == nil {
		h.unavailable(w, "auth")
		return
	}
	user, err := h.cfg.Auth.CurrentUser(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "auth_error", "Failed to read credentials", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, UserResponse{User: user})
}

// Login runs codex login unless credentials already exist.
// POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Auth == nil {
		h.unavailable(w, "auth")
		return
	}
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.cfg.Auth.Login(r.Context(), req.Method, req.APIKey))
}

// Logout runs codex logout.
// POST /auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Auth == nil {
		h.unavailable(w, "auth")
		return
	}
	if err := h.cfg.Auth.Logout(r.Context()); err != nil {
		h.writeError(w, http.StatusBadGateway, "logout_failed", err.Error(), "")
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// LoginMethods lists the supported login methods.
// GET /auth/methods
func (h *Handler) LoginMethods(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, MethodsResponse{Methods: auth.LoginMethods()})
}

// === Shell ===

// RunShellRequest is the request body for POST /shell/run.
type RunShellRequest struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd,omitempty"`
}

// CreateTerminalRequest is the request body for POST /terminals.
type CreateTerminalRequest struct {
	Cwd   string `json:"cwd,omitempty"`
	Shell string `json:"shell,omitempty"`
	Cols  uint16 `json:"cols,omitempty"`
	Rows  uint16 `json:"rows,omitempty"`
}

// TerminalInputRequest is the request body for POST /terminals/{id}/input.
type TerminalInputRequest struct {
	Data string `json:"data"`
}

// ResizeRequest is the request body for POST /terminals/{id}/resize.
type ResizeRequest struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// TerminalsResponse is the response body for GET /terminals.
type TerminalsResponse struct {
	Terminals []string `json:"terminals"`
}

// RunShell runs a shell command and waits for it.
// POST /shell/run
func (h *Handler) RunShell(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Shell == nil {
		h.unavailable(w, "shell")
		return
	}
	var req RunShellRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "command is required", "")
		return
	}
	h.writeJSON(w, http.StatusOK, h.cfg.Shell.RunCommand(r.Context(), req.Command, req.Cwd))
}

// CreateTerminal starts a PTY shell. Output streams on /events.
// POST /terminals
func (h *Handler) CreateTerminal(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Shell == nil {
		h.unavailable(w, "shell")
		return
	}
	var req CreateTerminalRequest
	if !h.decode(w, r, &req) {
		return
	}
	info, err := h.cfg.Shell.Create(req.Cwd, req.Shell, req.Cols, req.Rows)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "terminal_failed", "Failed to start terminal", err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, info)
}

// ListTerminals returns the running terminal ids.
// GET /terminals
func (h *Handler) ListTerminals(w http.ResponseWriter, _ *http.Request) {
	if h.cfg.Shell == nil {
		h.unavailable(w, "shell")
		return
	}
	ids := h.cfg.Shell.List()
	if ids == nil {
		ids = []string{}
	}
	h.writeJSON(w, http.StatusOK, TerminalsResponse{Terminals: ids})
}

// WriteTerminal sends input to a terminal.
// POST /terminals/{id}/input
func (h *Handler) WriteTerminal(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Shell == nil {
		h.unavailable(w, "shell")
		return
	}
	var req TerminalInputRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeTerminalResult(w, h.cfg.Shell.Write(r.PathValue("id"), req.Data))
}

// ResizeTerminal changes a terminal's window size.
// POST /terminals/{id}/resize
func (h *Handler) ResizeTerminal(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Shell == nil {
		h.unavailable(w, "shell")
		return
	}
	var req ResizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Cols == 0 || req.Rows == 0 {
		h.writeError(w, http.StatusBadRequest, "validation_error", "cols and rows must be positive", "")
		return
	}
	h.writeTerminalResult(w, h.cfg.Shell.Resize(r.PathValue("id"), req.Cols, req.Rows))
}

// KillTerminal stops a terminal.
// DELETE /terminals/{id}
func (h *Handler) KillTerminal(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Shell == nil {
		h.unavailable(w, "shell")
		return
	}
	h.writeTerminalResult(w, h.cfg.Shell.Kill(r.PathValue("id")))
}

func (h *Handler) writeTerminalResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
	case errors.Is(err, shell.ErrTerminalNotFound):
		h.writeError(w, http.StatusNotFound, "terminal_not_found", err.Error(), "")
	default:
		h.writeError(w, http.StatusInternalServerError, "terminal_error", err.Error(), "")
	}
}

// === Files ===

// FileContentResponse is the response body for GET /fs/read.
type FileContentResponse struct {
	Content string `json:"content"`
}

// WriteFileRequest is the request body for PUT /fs/write.
type WriteFileRequest struct {
	Workspace string `json:"workspace"`
	Path      string `json:"path"`
	Content   string `json:"content"`
}

// EntriesResponse is the response body for GET /fs/list.
type EntriesResponse struct {
	Entries []fsops.DirEntry `json:"entries"`
}

// ExistsResponse is the response body for GET /fs/exists.
type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// FileMatchesResponse is the response body for GET /fs/search.
type FileMatchesResponse struct {
	Results []fsops.FileMatch `json:"results"`
}

// WebResultsResponse is the response body for GET /fs/websearch.
type WebResultsResponse struct {
	Results []fsops.WebResult `json:"results"`
}

// OpenRequest is the request body for POST /fs/open.
type OpenRequest struct {
	Path   string `json:"path"`
	Editor string `json:"editor,omitempty"`
}

// OpenResponse is the response body for POST /fs/open.
type OpenResponse struct {
	Editor string `json:"editor"`
}

// ReadFile returns a workspace file.
// GET /fs/read?workspace=W&path=P
func (h *Handler) ReadFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	content, err := fsops.ReadFile(q.Get("workspace"), q.Get("path"))
	if err != nil {
		h.writeFSError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, FileContentResponse{Content: content})
}

// WriteFile replaces a workspace file and returns the line diff summary.
// PUT /fs/write
func (h *Handler) WriteFile(w http.ResponseWriter, r *http.Request) {
	var req WriteFileRequest
	if !h.decode(w, r, &req) {
		return
	}
	summary, err := fsops.WriteFile(req.Workspace, req.Path, req.Content)
	if err != nil {
		h.writeFSError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// ListDir lists a workspace directory.
// GET /fs/list?workspace=W&path=P
func (h *Handler) ListDir(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		path = "."
	}
	entries, err := fsops.ListDir(q.Get("workspace"), path)
	if err != nil {
		h.writeFSError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, EntriesResponse{Entries: entries})
}

// FileExists reports whether a workspace path exists.
// GET /fs/exists?workspace=W&path=P
func (h *Handler) FileExists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.writeJSON(w, http.StatusOK, ExistsResponse{Exists: fsops.FileExists(q.Get("workspace"), q.Get("path"))})
}

// SearchFiles finds workspace files by name.
// GET /fs/search?workspace=W&q=Q
func (h *Handler) SearchFiles(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Files == nil {
		h.unavailable(w, "file search")
		return
	}
	q := r.URL.Query()
	if q.Get("workspace") == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "workspace is required", "")
		return
	}
	results, err := h.cfg.Files.SearchFiles(r.Context(), q.Get("workspace"), q.Get("q"))
	if err != nil {
		h.writeFSError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, FileMatchesResponse{Results: results})
}

// WebSearch queries the instant answer API.
// GET /fs/websearch?q=Q
func (h *Handler) WebSearch(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Files == nil {
		h.unavailable(w, "web search")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "q is required", "")
		return
	}
	results, err := h.cfg.Files.WebSearch(r.Context(), query)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "search_failed", "Web search failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, WebResultsResponse{Results: results})
}

// OpenInEditor opens a file in the user's editor.
// POST /fs/open
func (h *Handler) OpenInEditor(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Files == nil {
		h.unavailable(w, "editor")
		return
	}
	var req OpenRequest
	if !h.decode(w, r, &req) {
		return
	}
	editor, err := h.cfg.Files.OpenInEditor(req.Path, req.Editor)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "open_failed", err.Error(), "")
		return
	}
	h.writeJSON(w, http.StatusOK, OpenResponse{Editor: editor})
}

func (h *Handler) writeFSError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fsops.ErrOutsideWorkspace):
		h.writeError(w, http.StatusForbidden, "outside_workspace", err.Error(), "")
	case errors.Is(err, fsops.ErrWorkspaceRequired),
		errors.Is(err, fsops.ErrWorkspaceMissing),
		errors.Is(err, fsops.ErrWorkspaceNotDir),
		errors.Is(err, fsops.ErrParentMissing):
		h.writeError(w, http.StatusBadRequest, "invalid_path", err.Error(), "")
	case errors.Is(err, fs.ErrNotExist):
		h.writeError(w, http.StatusNotFound, "not_found", err.Error(), "")
	default:
		h.writeError(w, http.StatusInternalServerError, "fs_error", err.Error(), "")
	}
}

// === Teams ===

// TeamsRequest is the request body for POST /teams/send.
type TeamsRequest struct {
	WebhookURL string `json:"webhookUrl,omitempty"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

// TeamsResponse is the response body for POST /teams/send.
type TeamsResponse struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

// SendToTeams posts a message card to the configured or given webhook.
// POST /teams/send
func (h *Handler) SendToTeams(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Teams == nil {
		h.unavailable(w, "teams")
		return
	}
	var req TeamsRequest
	if !h.decode(w, r, &req) {
		return
	}
	webhook := req.WebhookURL
	if webhook == "" {
		webhook = h.cfg.TeamsWebhook
	}
	status, err := h.cfg.Teams.Send(r.Context(), webhook, req.Title, req.Content)
	if errors.Is(err, teams.ErrEmptyWebhook) {
		h.writeError(w, http.StatusBadRequest, "validation_error", err.Error(), "")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "teams_failed", err.Error(), "")
		return
	}
	h.writeJSON(w, http.StatusOK, TeamsResponse{Success: true, Status: status})
}
