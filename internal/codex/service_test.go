package codex

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCodex behaves according to its last argument, which is the prompt.
const fakeCodex = `#!/bin/sh
for a; do last=$a; done
case "$last" in
  --version)
    echo "codex-cli 0.0.0"
    ;;
  -)
    IFS= read -r prompt
    printf '%s\n' "$prompt"
    ;;
  echo)
    printf '%s\n' '{"type":"item.streaming","item":{"id":"m1","type":"agent_message","delta":{"text":"Hello "}}}'
    printf '%s\n' '{"type":"item.completed","item":{"id":"m1","type":"agent_message","text":"Hello world"}}'
    echo "working..." >&2
    ;;
  approve)
    printf '%s\n' '{"type":"exec_approval_request","request_id":"req-1","title":"Run ls"}'
    IFS= read -r answer
    printf '%s\n' "$answer" > "$FAKE_CODEX_OUT"
    ;;
  hang)
    printf '{"type":"exec_approval_request","request_id":"req-%s"}\n' "$$"
    exec sleep 30
    ;;
  fail)
    echo "boom" >&2
    exit 3
    ;;
  npm-ok)
    echo "fetching" >&2
    echo "linking" >&2
    echo "added 1 package"
    ;;
  npm-fail)
    exit 2
    ;;
esac
`

const waitFor = 5 * time.Second

func writeFakeCodex(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake codex is a shell script")
	}
	path := filepath.Join(t.TempDir(), "codex")
	require.NoError(t, os.WriteFile(path, []byte(fakeCodex), 0o755))
	return path
}

func newTestService(t *testing.T, sink Sink, opts ...Option) (*Service, string) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "answer.txt")
	cfg := DefaultRuntimeConfig()
	cfg.Cwd = t.TempDir()
	opts = append([]Option{
		WithBinary(writeFakeCodex(t)),
		WithEnv(func() []string { return append(os.Environ(), "FAKE_CODEX_OUT="+out) }),
	}, opts...)
	svc := NewService(cfg, sink, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, out
}

func terminals(sink *recordingSink, cid string) []Notification {
	var out []Notification
	for _, n := range sink.all() {
		if IsTerminal(n) && n.Conversation() == cid {
			out = append(out, n)
		}
	}
	return out
}

func waitTerminal(t *testing.T, sink *recordingSink, cid string) Notification {
	t.Helper()
	require.Eventually(t, func() bool { return len(terminals(sink, cid)) > 0 }, waitFor, 10*time.Millisecond)
	return terminals(sink, cid)[0]
}

func TestService_StreamsAndEnds(t *testing.T) {
	sink := &recordingSink{}
	svc, _ := newTestService(t, sink)

	require.NoError(t, svc.Submit(context.Background(), SubmitRequest{ConversationID: "c1", Prompt: "echo"}))

	end := waitTerminal(t, sink, "c1")
	require.Equal(t, StreamEnd{ConversationID: "c1", ExitCode: intPtr(0)}, end)

	var deltas []string
	var progress []string
	for _, n := range sink.all() {
		switch v := n.(type) {
		case StreamDelta:
			deltas = append(deltas, v.Text)
		case Progress:
			progress = append(progress, v.Text)
		}
	}
	require.Equal(t, []string{"Hello ", "world"}, deltas)
	require.Equal(t, []string{"working..."}, progress)
	require.False(t, svc.IsRunning("c1"))
}

func TestService_NonZeroExitIsStreamError(t *testing.T) {
	sink := &recordingSink{}
	svc, _ := newTestService(t, sink)

	require.NoError(t, svc.Submit(context.Background(), SubmitRequest{ConversationID: "c1", Prompt: "fail"}))

	got := waitTerminal(t, sink, "c1")
	require.Equal(t, StreamError{ConversationID: "c1", Message: "Codex exited with code 3\nboom", ExitCode: intPtr(3)}, got)
}

func TestService_SpawnFailure(t *testing.T) {
	sink := &recordingSink{}
	svc := NewService(DefaultRuntimeConfig(), sink, WithBinary(filepath.Join(t.TempDir(), "missing", "codex")))

	require.NoError(t, svc.Submit(context.Background(), SubmitRequest{ConversationID: "c1", Prompt: "hi"}))

	got := terminals(sink, "c1")
	require.Len(t, got, 1)
	msg := got[0].(StreamError).Message
	require.True(t, strings.HasPrefix(msg, "Failed to start codex: "), msg)
	require.Empty(t, svc.Running())
}

func TestService_RejectsEmptyConversation(t *testing.T) {
	svc := NewService(DefaultRuntimeConfig(), &recordingSink{})
	require.ErrorIs(t, svc.Submit(context.Background(), SubmitRequest{ConversationID: " "}), ErrEmptyConversationID)
}

func TestService_ApprovalRoundTrip(t *testing.T) {
	sink := &recordingSink{}
	svc, out := newTestService(t, sink)

	require.NoError(t, svc.Submit(context.Background(), SubmitRequest{ConversationID: "c1", Prompt: "approve"}))
	require.Eventually(t, func() bool { return len(svc.PendingApprovals("c1")) == 1 }, waitFor, 10*time.Millisecond)

	require.NoError(t, svc.RespondToApproval("req-1", true))
	require.ErrorIs(t, svc.RespondToApproval("req-1", true), ErrApprovalNotFound)

	require.IsType(t, StreamEnd{}, waitTerminal(t, sink, "c1"))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, `{"request_id":"req-1","approved":true}`+"\n", string(data))
	require.Empty(t, svc.PendingApprovals("c1"))
}

func TestService_SupersedeLeavesOneProcessAndNoStaleApprovals(t *testing.T) {
	sink := &recordingSink{}
	svc, _ := newTestService(t, sink)
	ctx := context.Background()

	require.NoError(t, svc.Submit(ctx, SubmitRequest{ConversationID: "c1", Prompt: "hang"}))
	require.Eventually(t, func() bool { return len(svc.PendingApprovals("c1")) == 1 }, waitFor, 10*time.Millisecond)
	first := svc.PendingApprovals("c1")[0]

	require.NoError(t, svc.Submit(ctx, SubmitRequest{ConversationID: "c1", Prompt: "hang"}))
	require.Equal(t, []string{"c1"}, svc.Running())

	require.Eventually(t, func() bool {
		p := svc.PendingApprovals("c1")
		return len(p) == 1 && p[0] != first
	}, waitFor, 10*time.Millisecond)
	require.ErrorIs(t, svc.RespondToApproval(first, true), ErrApprovalNotFound)

	// The superseded process ends silently.
	require.Never(t, func() bool { return len(terminals(sink, "c1")) > 0 }, 300*time.Millisecond, 20*time.Millisecond)

	require.True(t, svc.Cancel("c1"))
	require.False(t, svc.Cancel("c1"))
	require.Empty(t, svc.PendingApprovals("c1"))
	require.Empty(t, svc.Running())

	require.Never(t, func() bool { return len(terminals(sink, "c1")) > 1 }, 300*time.Millisecond, 20*time.Millisecond)
	require.Equal(t, []Notification{StreamEnd{ConversationID: "c1", Cancelled: true}}, terminals(sink, "c1"))
}

func TestService_TurnHookRunsAfterTeardown(t *testing.T) {
	sink := &recordingSink{}
	var (
		svc        *Service
		hookCalls  int
		runningAt  []bool
		seenAtHook []int
	)
	var forwarded atomic.Int64
	counting := SinkFunc(func(Notification) { forwarded.Add(1) })
	svc, _ = newTestService(t, MultiSink{sink, counting}, WithTurnHook(func(cid string) {
		hookCalls++
		runningAt = append(runningAt, svc.IsRunning(cid))
		seenAtHook = append(seenAtHook, len(sink.all()))
	}))
	ctx := context.Background()

	require.NoError(t, svc.Submit(ctx, SubmitRequest{ConversationID: "c1", Prompt: "hang"}))
	require.Eventually(t, func() bool { return len(svc.PendingApprovals("c1")) == 1 }, waitFor, 10*time.Millisecond)
	first := svc.PendingApprovals("c1")[0]

	require.NoError(t, svc.Submit(ctx, SubmitRequest{ConversationID: "c1", Prompt: "hang"}))
	require.Eventually(t, func() bool {
		p := svc.PendingApprovals("c1")
		return len(p) == 1 && p[0] != first
	}, waitFor, 10*time.Millisecond)

	require.Equal(t, 2, hookCalls)
	require.Equal(t, []bool{false, false}, runningAt)
	for _, n := range sink.all()[seenAtHook[1]:] {
		if req, ok := n.(ApprovalRequested); ok {
			require.NotEqual(t, first, req.RequestID, "superseded output emitted after the hook")
		}
	}
	require.Eventually(t, func() bool { return int(forwarded.Load()) == len(sink.all()) }, waitFor, 10*time.Millisecond)
}

func TestService_RespondWithoutProcess(t *testing.T) {
	svc := NewService(DefaultRuntimeConfig(), &recordingSink{})
	svc.approvals.Register("r1", "gone")

	require.ErrorIs(t, svc.RespondToApproval("r1", false), ErrProcessNotRunning)
	require.ErrorIs(t, svc.RespondToApproval("nope", false), ErrApprovalNotFound)
}

func TestService_PromptViaStdin(t *testing.T) {
	sink := &recordingSink{}
	svc, _ := newTestService(t, sink, WithPromptViaStdin(true))

	require.NoError(t, svc.Submit(context.Background(), SubmitRequest{ConversationID: "c1", Prompt: "from stdin"}))
	require.IsType(t, StreamEnd{}, waitTerminal(t, sink, "c1"))
	require.Contains(t, sink.all(), Notification(StreamToken{ConversationID: "c1", Text: "from stdin"}))
}

func TestService_Settings(t *testing.T) {
	home := t.TempDir()
	t.Setenv("USERPROFILE", home)

	var snapshots []RuntimeConfig
	svc := NewService(DefaultRuntimeConfig(), &recordingSink{}, WithSettingsHook(func(c RuntimeConfig) {
		snapshots = append(snapshots, c)
	}))

	require.Error(t, svc.SetMode("turbo"))
	require.NoError(t, svc.SetMode("plan"))
	svc.SetYoloMode(true)
	svc.SetModel(" o3 ")

	sandbox := "read-only"
	opts := svc.SetCLIOptions(CLIOptionsPatch{Sandbox: &sandbox})
	assert.Equal(t, "read-only", opts.Sandbox)
	assert.Equal(t, "on-request", opts.ApprovalPolicy)

	require.Error(t, svc.SwitchWorkspace("  "))
	require.NoError(t, svc.SwitchWorkspace("~/proj"))

	cfg := svc.RuntimeConfig()
	assert.Equal(t, "plan", svc.Mode())
	assert.True(t, svc.YoloMode())
	assert.Equal(t, "o3", svc.Model())
	assert.Equal(t, filepath.Join(home, "proj"), cfg.Cwd)
	assert.Len(t, snapshots, 5)
	assert.Equal(t, cfg, snapshots[len(snapshots)-1])
}

func TestCLIOptionsPatch_AcceptsAskForApproval(t *testing.T) {
	var p CLIOptionsPatch
	require.NoError(t, p.UnmarshalJSON([]byte(`{"askForApproval":"never","skipGitRepoCheck":false}`)))
	require.Equal(t, "never", *p.ApprovalPolicy)
	require.False(t, *p.SkipGitRepoCheck)
	require.Nil(t, p.Sandbox)

	require.NoError(t, p.UnmarshalJSON([]byte(`{"approvalPolicy":"untrusted","ask_for_approval":"never"}`)))
	require.Equal(t, "untrusted", *p.ApprovalPolicy)
}

func TestService_CheckInstalledAndRunCommand(t *testing.T) {
	svc, _ := newTestService(t, &recordingSink{})
	ctx := context.Background()

	require.True(t, svc.CheckInstalled(ctx))

	res := svc.RunCommand(ctx, "fail", nil, "")
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "boom\n", res.Stderr)
	assert.Empty(t, res.Error)

	res = svc.RunCommand(ctx, "echo", []string{"--version"}, t.TempDir())
	assert.True(t, res.Success)
	assert.Equal(t, "codex-cli 0.0.0\n", res.Stdout)

	missing := NewService(DefaultRuntimeConfig(), &recordingSink{}, WithBinary(filepath.Join(t.TempDir(), "nope")))
	require.False(t, missing.CheckInstalled(ctx))
	res = missing.RunCommand(ctx, "login", nil, t.TempDir())
	assert.Equal(t, -1, res.ExitCode)
	assert.NotEmpty(t, res.Error)
}

func installService(t *testing.T, mode string) (*Service, *recordingSink) {
	t.Helper()
	script := writeFakeCodex(t)
	sink := &recordingSink{}
	svc := NewService(DefaultRuntimeConfig(), sink, WithCommandFactory(func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, script, mode)
	}))
	return svc, sink
}

func installEvents(sink *recordingSink) []InstallProgress {
	var out []InstallProgress
	for _, n := range sink.all() {
		if p, ok := n.(InstallProgress); ok {
			out = append(out, p)
		}
	}
	return out
}

func TestService_Install(t *testing.T) {
	svc, sink := installService(t, "npm-ok")
	require.NoError(t, svc.Install(context.Background()))

	events := installEvents(sink)
	require.Equal(t, InstallProgress{Status: InstallInstalling, Message: "Installing Codex CLI...", Percent: 0}, events[0])
	require.Equal(t, InstallProgress{Status: InstallComplete, Message: "Codex CLI installed successfully", Percent: 100}, events[len(events)-1])

	var stderrPercents []int
	for _, e := range events[1 : len(events)-1] {
		if e.Percent == 85 {
			require.Equal(t, "added 1 package", e.Message)
			continue
		}
		stderrPercents = append(stderrPercents, e.Percent)
	}
	require.Equal(t, []int{15, 20}, stderrPercents)
}

func TestService_InstallFailure(t *testing.T) {
	svc, sink := installService(t, "npm-fail")
	require.EqualError(t, svc.Install(context.Background()), "Install failed: exit 2")

	events := installEvents(sink)
	require.Equal(t, InstallProgress{Status: InstallError, Message: "Install failed: exit 2", Percent: 0}, events[len(events)-1])
}

func TestModels(t *testing.T) {
	models := NewService(DefaultRuntimeConfig(), &recordingSink{}).Models()
	require.Len(t, models, 4)
	require.Equal(t, ModelInfo{ID: "codex", Name: "GPT-5.3-Codex", Description: "Most capable coding model"}, models[0])
}
