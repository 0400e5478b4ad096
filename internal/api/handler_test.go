package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/codexwui/internal/auth"
	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/history"
	"github.com/zjrosen/codexwui/internal/shell"
	"github.com/zjrosen/codexwui/internal/teams"
)

type fixture struct {
	store   *mockStore
	codex   *mockCodex
	auth    *mockAuth
	shell   *mockShell
	files   *mockFiles
	teams   *mockTeams
	handler http.Handler
}

func newFixture(t *testing.T, mutate ...func(*HandlerConfig)) *fixture {
	t.Helper()
	f := &fixture{
		store: &mockStore{},
		codex: &mockCodex{},
		auth:  &mockAuth{},
		shell: &mockShell{},
		files: &mockFiles{},
		teams: &mockTeams{},
	}
	cfg := HandlerConfig{
		Codex:        f.codex,
		Store:        f.store,
		Auth:         f.auth,
		Shell:        f.shell,
		Files:        f.files,
		Teams:        f.teams,
		Persist:      true,
		HistoryLimit: 4,
		TeamsWebhook: "https://hooks.example/default",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	f.handler = NewHandler(cfg).Routes()
	t.Cleanup(func() {
		f.store.AssertExpectations(t)
		f.codex.AssertExpectations(t)
		f.auth.AssertExpectations(t)
		f.shell.AssertExpectations(t)
		f.files.AssertExpectations(t)
		f.teams.AssertExpectations(t)
	})
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// === Health ===

func TestHandler_Health(t *testing.T) {
	f := newFixture(t)
	f.codex.On("Running").Return(nil).Once()

	w := f.do(http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[HealthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{}, resp.Running)
}

// === Turns ===

func TestHandler_Prompt_ReplaysStoredHistory(t *testing.T) {
	f := newFixture(t)
	stored := []history.Message{
		{Role: history.RoleUser, Content: "q1"},
		{Role: history.RoleAssistant, Content: "a1"},
	}
	f.store.On("ListMessages", mock.Anything, "c1", 4).Return(stored, nil).Once()
	f.store.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m history.Message) bool {
		return m.ConversationID == "c1" && m.Role == history.RoleUser && m.Content == "q2"
	})).Return(history.Message{ID: "m2"}, nil).Once()
	f.codex.On("Submit", mock.Anything, codex.SubmitRequest{
		ConversationID: "c1",
		Prompt:         "q2",
		History: []codex.HistoryMessage{
			{Role: "user", Content: "q1"},
			{Role: "assistant", Content: "a1"},
		},
	}).Return(nil).Once()

	w := f.do(http.MethodPost, "/conversations/c1/prompt", `{"prompt":"q2"}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	resp := decodeBody[PromptResponse](t, w)
	assert.Equal(t, "c1", resp.ConversationID)
	assert.Equal(t, "m2", resp.MessageID)
}

func TestHandler_Prompt_RequestHistoryWins(t *testing.T) {
	f := newFixture(t)
	f.store.On("CreateMessage", mock.Anything, mock.Anything).Return(history.Message{ID: "m1"}, nil).Once()
	f.codex.On("Submit", mock.Anything, mock.MatchedBy(func(req codex.SubmitRequest) bool {
		return len(req.History) == 1 && req.History[0].Content == "given"
	})).Return(nil).Once()

	w := f.do(http.MethodPost, "/conversations/c1/prompt", `{"prompt":"hi","history":[{"role":"user","content":"given"}]}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	f.store.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_Prompt_WithoutPersistence(t *testing.T) {
	f := newFixture(t, func(c *HandlerConfig) { c.Persist = false })
	f.codex.On("Submit", mock.Anything, codex.SubmitRequest{ConversationID: "c1", Prompt: "hi"}).Return(nil).Once()

	w := f.do(http.MethodPost, "/conversations/c1/prompt", `{"prompt":"hi"}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, decodeBody[PromptResponse](t, w).MessageID)
}

func TestHandler_Prompt_Validation(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/conversations/c1/prompt", `{"prompt":"   "}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decodeBody[ErrorResponse](t, w).Code)

	w = f.do(http.MethodPost, "/conversations/c1/prompt", `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_json", decodeBody[ErrorResponse](t, w).Code)
}

func TestHandler_Prompt_SubmitFailure(t *testing.T) {
	f := newFixture(t, func(c *HandlerConfig) { c.Persist = false })
	f.codex.On("Submit", mock.Anything, mock.Anything).Return(errors.New("spawn failed")).Once()

	w := f.do(http.MethodPost, "/conversations/c1/prompt", `{"prompt":"hi"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeBody[ErrorResponse](t, w)
	assert.Equal(t, "submit_failed", resp.Code)
	assert.Equal(t, "spawn failed", resp.Details)
}

func TestHandler_Cancel(t *testing.T) {
	f := newFixture(t)
	f.codex.On("Cancel", "c1").Return(true).Once()
	f.codex.On("Cancel", "c2").Return(false).Once()

	w := f.do(http.MethodPost, "/conversations/c1/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[CancelResponse](t, w).Cancelled)

	w = f.do(http.MethodPost, "/conversations/c2/cancel", "")
	assert.False(t, decodeBody[CancelResponse](t, w).Cancelled)
}

func TestHandler_RespondToApproval(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"answered", nil, http.StatusOK, ""},
		{"unknown request", codex.ErrApprovalNotFound, http.StatusNotFound, "approval_not_found"},
		{"process gone", codex.ErrProcessNotRunning, http.StatusConflict, "process_unavailable"},
		{"stdin closed", fmt.Errorf("write: %w", codex.ErrStdinUnavailable), http.StatusConflict, "process_unavailable"},
		{"other failure", errors.New("broken pipe"), http.StatusInternalServerError, "approval_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.codex.On("RespondToApproval", "req-1", true).Return(tt.err).Once()

			w := f.do(http.MethodPost, "/approvals/req-1", `{"approved":true}`)

			require.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, w).Code)
			}
		})
	}
}

// === Settings ===

func TestHandler_UpdateSettings_AppliesPresentFields(t *testing.T) {
	f := newFixture(t)
	rc := codex.RuntimeConfig{Mode: "plan", Model: "o3"}
	f.codex.On("SetMode", "plan").Return(nil).Once()
	f.codex.On("SetModel", "o3").Once()
	f.codex.On("RuntimeConfig").Return(rc).Once()

	w := f.do(http.MethodPatch, "/settings", `{"mode":"plan","model":"o3"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, rc, decodeBody[codex.RuntimeConfig](t, w))
	f.codex.AssertNotCalled(t, "SetYoloMode", mock.Anything)
}

func TestHandler_UpdateSettings_RejectsBadMode(t *testing.T) {
	f := newFixture(t)
	f.codex.On("SetMode", "turbo").Return(errors.New(`unknown mode "turbo"`)).Once()

	w := f.do(http.MethodPatch, "/settings", `{"mode":"turbo","yoloMode":true}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	f.codex.AssertNotCalled(t, "SetYoloMode", mock.Anything)
}

func TestHandler_SwitchWorkspace(t *testing.T) {
	f := newFixture(t)
	f.codex.On("SwitchWorkspace", "/missing").Return(errors.New("not a directory")).Once()

	w := f.do(http.MethodPost, "/settings/workspace", `{"path":"/missing"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ListModels(t *testing.T) {
	f := newFixture(t)
	f.codex.On("Models").Return(codex.DefaultModels()).Once()

	w := f.do(http.MethodGet, "/models", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[ModelsResponse](t, w).Models, len(codex.DefaultModels()))
}

func TestHandler_RunCodexCommand(t *testing.T) {
	f := newFixture(t)
	f.codex.On("RunCommand", mock.Anything, "mcp", []string{"list"}, "").
		Return(codex.CommandResult{Success: true, Stdout: "none\n"}).Once()

	w := f.do(http.MethodPost, "/codex/command", `{"subcommand":"mcp","args":["list"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "none\n", decodeBody[codex.CommandResult](t, w).Stdout)

	w = f.do(http.MethodPost, "/codex/command", `{"subcommand":""}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Install_ReportsFailureInBody(t *testing.T) {
	f := newFixture(t)
	f.codex.On("Install", mock.Anything).Return(errors.New("npm missing")).Once()

	w := f.do(http.MethodPost, "/codex/install", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[InstallResponse](t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "npm missing", resp.Error)
}

// === History ===

func TestHandler_GetConversation_NotFound(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetConversation", mock.Anything, "nope").
		Return(history.Conversation{}, &history.NotFoundError{Kind: "conversation", ID: "nope"}).Once()

	w := f.do(http.MethodGet, "/conversations/nope", "")

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeBody[ErrorResponse](t, w).Code)
}

func TestHandler_DeleteConversation_CancelsRunningTurn(t *testing.T) {
	f := newFixture(t)
	f.codex.On("Cancel", "c1").Return(true).Once()
	f.store.On("DeleteConversation", mock.Anything, "c1").Return(nil).Once()

	w := f.do(http.MethodDelete, "/conversations/c1", "")
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandler_ListMessages_Limit(t *testing.T) {
	f := newFixture(t)
	f.store.On("ListMessages", mock.Anything, "c1", 2).Return(nil, nil).Once()

	w := f.do(http.MethodGet, "/conversations/c1/messages?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []history.Message{}, decodeBody[MessagesResponse](t, w).Messages)

	w = f.do(http.MethodGet, "/conversations/c1/messages?limit=-1", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CreateMessage_ValidatesRole(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/conversations/c1/messages", `{"role":"system","content":"x"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CreateWorkspace_GeneratesID(t *testing.T) {
	f := newFixture(t)
	f.store.On("CreateWorkspace", mock.Anything, mock.MatchedBy(func(id string) bool { return id != "" }), "app", "~/src/app").
		Return(history.Workspace{ID: "generated", Name: "app", Path: "/home/u/src/app"}, nil).Once()

	w := f.do(http.MethodPost, "/workspaces", `{"name":"app","path":"~/src/app"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodPost, "/workspaces", `{"name":"app"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

// === Tools ===

func TestHandler_CurrentUser(t *testing.T) {
	f := newFixture(t)
	f.auth.On("CurrentUser", mock.Anything).Return(&auth.User{Email: "dev@example.com"}, nil).Once()

	w := f.do(http.MethodGet, "/auth/user", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dev@example.com", decodeBody[UserResponse](t, w).User.Email)
}

func TestHandler_MissingCollaboratorIsNotImplemented(t *testing.T) {
	f := newFixture(t, func(c *HandlerConfig) {
		c.Auth = nil
		c.Shell = nil
		c.Teams = nil
	})

	for _, path := range []string{"/auth/user", "/terminals"} {
		w := f.do(http.MethodGet, path, "")
		require.Equal(t, http.StatusNotImplemented, w.Code, path)
	}
	w := f.do(http.MethodPost, "/teams/send", `{"title":"t","content":"c"}`)
	require.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHandler_KillTerminal_NotFound(t *testing.T) {
	f := newFixture(t)
	f.shell.On("Kill", "t9").Return(shell.ErrTerminalNotFound).Once()

	w := f.do(http.MethodDelete, "/terminals/t9", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_SendToTeams_UsesDefaultWebhook(t *testing.T) {
	f := newFixture(t)
	f.teams.On("Send", mock.Anything, "https://hooks.example/default", "t", "c").Return(200, nil).Once()

	w := f.do(http.MethodPost, "/teams/send", `{"title":"t","content":"c"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, TeamsResponse{Success: true, Status: 200}, decodeBody[TeamsResponse](t, w))
}

func TestHandler_SendToTeams_EmptyWebhook(t *testing.T) {
	f := newFixture(t, func(c *HandlerConfig) { c.TeamsWebhook = "" })
	f.teams.On("Send", mock.Anything, "", "t", "c").Return(0, teams.ErrEmptyWebhook).Once()

	w := f.do(http.MethodPost, "/teams/send", `{"title":"t","content":"c"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Files_StayInsideWorkspace(t *testing.T) {
	f := newFixture(t)
	parent := t.TempDir()
	ws := filepath.Join(parent, "ws")
	require.NoError(t, os.Mkdir(ws, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), []byte("one\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("no"), 0o600))

	w := f.do(http.MethodGet, "/fs/read?workspace="+ws+"&path=a.txt", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "one\n", decodeBody[FileContentResponse](t, w).Content)

	w = f.do(http.MethodGet, "/fs/read?workspace="+ws+"&path=../secret.txt", "")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "outside_workspace", decodeBody[ErrorResponse](t, w).Code)

	w = f.do(http.MethodGet, "/fs/exists?workspace="+ws+"&path=missing.txt", "")
	assert.False(t, decodeBody[ExistsResponse](t, w).Exists)
}
