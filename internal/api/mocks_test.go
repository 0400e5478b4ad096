package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zjrosen/codexwui/internal/auth"
	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/fsops"
	"github.com/zjrosen/codexwui/internal/history"
	"github.com/zjrosen/codexwui/internal/shell"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) CreateWorkspace(ctx context.Context, id, name, path string) (history.Workspace, error) {
	args := m.Called(ctx, id, name, path)
	return args.Get(0).(history.Workspace), args.Error(1)
}

func (m *mockStore) DeleteWorkspace(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) CreateConversation(ctx context.Context, id, workspaceID, title string) (history.Conversation, error) {
	args := m.Called(ctx, id, workspaceID, title)
	return args.Get(0).(history.Conversation), args.Error(1)
}

func (m *mockStore) UpdateConversationTitle(ctx context.Context, id, title string) error {
	return m.Called(ctx, id, title).Error(0)
}

func (m *mockStore) DeleteConversation(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) GetConversation(ctx context.Context, id string) (history.Conversation, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(history.Conversation), args.Error(1)
}

func (m *mockStore) CreateMessage(ctx context.Context, msg history.Message) (history.Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(history.Message), args.Error(1)
}

func (m *mockStore) ListMessages(ctx context.Context, cid string, limit int) ([]history.Message, error) {
	args := m.Called(ctx, cid, limit)
	msgs, _ := args.Get(0).([]history.Message)
	return msgs, args.Error(1)
}

func (m *mockStore) GetFullState(ctx context.Context) (history.State, error) {
	args := m.Called(ctx)
	return args.Get(0).(history.State), args.Error(1)
}

type mockCodex struct{ mock.Mock }

func (m *mockCodex) Submit(ctx context.Context, req codex.SubmitRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockCodex) Cancel(cid string) bool { return m.Called(cid).Bool(0) }

func (m *mockCodex) RespondToApproval(requestID string, approved bool) error {
	return m.Called(requestID, approved).Error(0)
}

func (m *mockCodex) Running() []string {
	ids, _ := m.Called().Get(0).([]string)
	return ids
}

func (m *mockCodex) RuntimeConfig() codex.RuntimeConfig {
	return m.Called().Get(0).(codex.RuntimeConfig)
}

func (m *mockCodex) SetMode(mode string) error { return m.Called(mode).Error(0) }

func (m *mockCodex) SetYoloMode(enabled bool) { m.Called(enabled) }

func (m *mockCodex) SetModel(model string) { m.Called(model) }

func (m *mockCodex) SetCLIOptions(patch codex.CLIOptionsPatch) codex.CLIOptions {
	return m.Called(patch).Get(0).(codex.CLIOptions)
}

func (m *mockCodex) SwitchWorkspace(cwd string) error { return m.Called(cwd).Error(0) }

func (m *mockCodex) Models() []codex.ModelInfo {
	return m.Called().Get(0).([]codex.ModelInfo)
}

func (m *mockCodex) CheckInstalled(ctx context.Context) bool { return m.Called(ctx).Bool(0) }

func (m *mockCodex) Install(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockCodex) RunCommand(ctx context.Context, subcommand string, args []string, cwd string) codex.CommandResult {
	return m.Called(ctx, subcommand, args, cwd).Get(0).(codex.CommandResult)
}

type mockAuth struct{ mock.Mock }

func (m *mockAuth) CurrentUser(ctx context.Context) (*auth.User, error) {
	args := m.Called(ctx)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *mockAuth) Login(ctx context.Context, method, apiKey string) auth.LoginResult {
	return m.Called(ctx, method, apiKey).Get(0).(auth.LoginResult)
}

func (m *mockAuth) Logout(ctx context.Context) error { return m.Called(ctx).Error(0) }

type mockShell struct{ mock.Mock }

func (m *mockShell) RunCommand(ctx context.Context, command, cwd string) shell.Result {
	return m.Called(ctx, command, cwd).Get(0).(shell.Result)
}

func (m *mockShell) Create(cwd, sh string, cols, rows uint16) (shell.TerminalInfo, error) {
	args := m.Called(cwd, sh, cols, rows)
	return args.Get(0).(shell.TerminalInfo), args.Error(1)
}

func (m *mockShell) Write(id, data string) error { return m.Called(id, data).Error(0) }

func (m *mockShell) Resize(id string, cols, rows uint16) error {
	return m.Called(id, cols, rows).Error(0)
}

func (m *mockShell) Kill(id string) error { return m.Called(id).Error(0) }

func (m *mockShell) List() []string {
	ids, _ := m.Called().Get(0).([]string)
	return ids
}

type mockFiles struct{ mock.Mock }

func (m *mockFiles) SearchFiles(ctx context.Context, workspace, query string) ([]fsops.FileMatch, error) {
	args := m.Called(ctx, workspace, query)
	res, _ := args.Get(0).([]fsops.FileMatch)
	return res, args.Error(1)
}

func (m *mockFiles) WebSearch(ctx context.Context, query string) ([]fsops.WebResult, error) {
	args := m.Called(ctx, query)
	res, _ := args.Get(0).([]fsops.WebResult)
	return res, args.Error(1)
}

func (m *mockFiles) OpenInEditor(path, editor string) (string, error) {
	args := m.Called(path, editor)
	return args.String(0), args.Error(1)
}

type mockTeams struct{ mock.Mock }

func (m *mockTeams) Send(ctx context.Context, webhookURL, title, content string) (int, error) {
	args := m.Called(ctx, webhookURL, title, content)
	return args.Int(0), args.Error(1)
}
