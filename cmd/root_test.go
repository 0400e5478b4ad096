package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/config"
	"github.com/zjrosen/codexwui/internal/history"
	"github.com/zjrosen/codexwui/internal/infrastructure/sqlite"
)

func newStore(t *testing.T) history.Store {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "state.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.HistoryStore()
}

func TestRootCmd_Subcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"chat", "run", "serve", "check", "install", "models", "auth", "history", "config"} {
		require.Contains(t, names, want)
	}
}

func TestInitConfig_ReadsFileAndKeepsDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(func() {
		viper.Reset()
		cfgFile = ""
		cfg = config.Config{}
	})

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("codex:\n  model: o3\n  yolo: true\nflags:\n  auth-watch: false\n"), 0o600))
	cfgFile = path

	initConfig()

	require.Equal(t, "o3", cfg.Codex.Model)
	require.True(t, cfg.Codex.Yolo)
	require.Equal(t, "workspace-write", cfg.Codex.Sandbox)
	require.Equal(t, 10, cfg.Codex.HistoryLimit)
	require.Equal(t, config.Defaults().API.Addr, cfg.API.Addr)
	require.False(t, cfg.Flags["auth-watch"])
	require.Equal(t, path, configPath())
}

func TestWorkspaceID_StablePerDirectory(t *testing.T) {
	require.Equal(t, workspaceID("/src/app"), workspaceID("/src/app/"))
	require.NotEqual(t, workspaceID("/src/app"), workspaceID("/src/other"))
}

func TestConversationTitle(t *testing.T) {
	require.Equal(t, "New conversation", conversationTitle("  \n "))
	require.Equal(t, "fix the build", conversationTitle("fix   the\nbuild"))

	long := conversationTitle(strings.Repeat("word ", 30))
	require.True(t, strings.HasSuffix(long, "…"))
	require.LessOrEqual(t, len([]rune(long)), titleWidth)
}

func TestReadPrompt(t *testing.T) {
	p, err := readPrompt([]string{"explain", "main.go"}, strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, "explain main.go", p)

	p, err = readPrompt([]string{"-"}, strings.NewReader("  from stdin\n"))
	require.NoError(t, err)
	require.Equal(t, "from stdin", p)

	_, err = readPrompt([]string{"-"}, strings.NewReader("   "))
	require.Error(t, err)
}

func TestParseYes(t *testing.T) {
	require.True(t, parseYes("y\n"))
	require.True(t, parseYes(" YES "))
	require.False(t, parseYes("\n"))
	require.False(t, parseYes("nope"))
}

func TestApprover_NonTerminalRejects(t *testing.T) {
	var out bytes.Buffer
	a := &approver{out: &out}
	require.False(t, a.ask(codex.ApprovalRequest{RequestID: "r1", Title: "Run rm -rf"}))
	require.Contains(t, out.String(), "rejected")

	a.auto = true
	require.True(t, a.ask(codex.ApprovalRequest{RequestID: "r2"}))
}

func TestPrinter_StreamsWhenNotATerminal(t *testing.T) {
	var out, errOut bytes.Buffer
	p := newPrinter(&out, &errOut)

	p.handle(codex.StreamDelta{Text: "Hello "})
	p.handle(codex.StreamDelta{Text: "world"})
	p.handle(codex.ToolCall{Title: "ls", Status: codex.ToolRunning})
	p.handle(codex.ToolCall{Title: "ls\n-la", Status: codex.ToolDone})
	p.flush()

	require.Equal(t, "Hello world\n", out.String())
	require.Contains(t, errOut.String(), "✓ ls")
	require.NotContains(t, errOut.String(), "-la")
}

func TestWriteModels_MarksCurrent(t *testing.T) {
	var buf bytes.Buffer
	writeModels(&buf, codex.DefaultModels(), "o3")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(codex.DefaultModels()))
	for _, l := range lines {
		if strings.Contains(l, "Advanced reasoning") {
			require.True(t, strings.HasPrefix(l, "* o3"))
		} else {
			require.True(t, strings.HasPrefix(l, "  "))
		}
	}
}

func TestOpenSession_CreatesAndResumes(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	rc := codex.RuntimeConfig{Cwd: t.TempDir()}

	sess, err := openSession(ctx, store, rc, "")
	require.NoError(t, err)
	require.True(t, sess.Fresh)

	_, err = store.CreateMessage(ctx, history.Message{ConversationID: sess.ConversationID, Role: history.RoleUser, Content: "hi"})
	require.NoError(t, err)

	resumed, err := openSession(ctx, store, rc, sess.ConversationID)
	require.NoError(t, err)
	require.False(t, resumed.Fresh)
	require.Len(t, resumed.History, 1)

	_, err = openSession(ctx, store, rc, "missing")
	require.ErrorContains(t, err, `no conversation with id "missing"`)
}

func TestFinishSession_NamesOrDrops(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	rc := codex.RuntimeConfig{Cwd: t.TempDir()}

	used, err := openSession(ctx, store, rc, "")
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, history.Message{ConversationID: used.ConversationID, Role: history.RoleUser, Content: "refactor the parser"})
	require.NoError(t, err)
	require.True(t, finishSession(ctx, store, used))

	conv, err := store.GetConversation(ctx, used.ConversationID)
	require.NoError(t, err)
	require.Equal(t, "refactor the parser", conv.Title)

	empty, err := openSession(ctx, store, rc, "")
	require.NoError(t, err)
	require.False(t, finishSession(ctx, store, empty))

	_, err = store.GetConversation(ctx, empty.ConversationID)
	var nf *history.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestTranscript(t *testing.T) {
	out := transcript(history.Conversation{Messages: []history.Message{
		{Role: history.RoleUser, Content: "q"},
		{Role: history.RoleAssistant, Content: "a\n"},
	}})
	require.Equal(t, "You:\nq\n\nCodex:\na\n\n", out)
}

func TestWriteState_Empty(t *testing.T) {
	var buf bytes.Buffer
	writeState(&buf, history.State{})
	require.Equal(t, "No conversations yet\n", buf.String())
}
