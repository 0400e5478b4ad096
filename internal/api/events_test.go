package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/pubsub"
	"github.com/zjrosen/codexwui/internal/shell"
)

// sseReader reads "event:"/"data:" pairs from a stream.
type sseReader struct {
	t       *testing.T
	scanner *bufio.Scanner
}

func openStream(t *testing.T, srv *httptest.Server, path string) *sseReader {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := &sseReader{t: t, scanner: bufio.NewScanner(resp.Body)}
	name, _ := r.next()
	require.Equal(t, "connected", name)
	return r
}

// next returns the next event name and data, skipping heartbeats.
func (r *sseReader) next() (string, string) {
	r.t.Helper()
	var name, data string
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
	r.t.Fatalf("stream ended: %v", r.scanner.Err())
	return "", ""
}

// waitForSubscribers blocks until the handler has subscribed to b.
func waitForSubscribers[T any](t *testing.T, b *pubsub.Broker[T], n int) {
	t.Helper()
	require.Eventually(t, func() bool { return b.SubscriberCount() >= n }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamConversationEvents_FiltersByConversation(t *testing.T) {
	notifications := pubsub.NewBroker[codex.Notification]()
	defer notifications.Close()

	h := NewHandler(HandlerConfig{Codex: &mockCodex{}, Store: &mockStore{}, Notifications: notifications})
	srv := httptest.NewServer(h.Routes())
	// Registered before openStream so the stream is cancelled first.
	t.Cleanup(srv.Close)

	stream := openStream(t, srv, "/conversations/c1/events")
	waitForSubscribers(t, notifications, 1)

	notifications.Publish(pubsub.NotifyEvent, codex.StreamDelta{ConversationID: "c2", Text: "other"})
	notifications.Publish(pubsub.NotifyEvent, codex.StreamDelta{ConversationID: "c1", Text: "mine"})
	notifications.Publish(pubsub.NotifyEvent, codex.StreamEnd{ConversationID: "c1"})

	name, data := stream.next()
	require.Equal(t, "codex-stream-delta", name)
	require.JSONEq(t, `{"cid":"c1","data":"mine"}`, data)

	name, data = stream.next()
	require.Equal(t, "codex-stream-end", name)
	require.JSONEq(t, `{"cid":"c1"}`, data)
}

func TestStreamAllEvents_MergesShellEvents(t *testing.T) {
	notifications := pubsub.NewBroker[codex.Notification]()
	defer notifications.Close()
	shellEvents := pubsub.NewBroker[shell.Event]()
	defer shellEvents.Close()

	h := NewHandler(HandlerConfig{
		Codex:         &mockCodex{},
		Store:         &mockStore{},
		Notifications: notifications,
		ShellEvents:   shellEvents,
	})
	srv := httptest.NewServer(h.Routes())
	// Registered before openStream so the stream is cancelled first.
	t.Cleanup(srv.Close)

	stream := openStream(t, srv, "/events")
	waitForSubscribers(t, notifications, 1)
	waitForSubscribers(t, shellEvents, 1)

	notifications.Publish(pubsub.NotifyEvent, codex.ApprovalRequested{
		ConversationID:  "c1",
		ApprovalRequest: codex.ApprovalRequest{RequestID: "r1", Title: "Run ls"},
	})
	name, data := stream.next()
	require.Equal(t, "codex-approval-request", name)
	require.JSONEq(t, `{"cid":"c1","requestId":"r1","title":"Run ls","description":""}`, data)

	shellEvents.Publish(pubsub.NotifyEvent, shell.PTYExit{ID: "t1", ExitCode: 0})
	name, _ = stream.next()
	require.Equal(t, "pty-exit", name)
}

func TestStreamConversationEvents_WithoutBroker(t *testing.T) {
	h := NewHandler(HandlerConfig{Codex: &mockCodex{}, Store: &mockStore{}})
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/c1/events", nil))
	require.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestStreamLogs_DisabledWithoutLogger(t *testing.T) {
	h := NewHandler(HandlerConfig{Codex: &mockCodex{}, Store: &mockStore{}})
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
