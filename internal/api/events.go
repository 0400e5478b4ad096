package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/log"
	"github.com/zjrosen/codexwui/internal/pubsub"
	"github.com/zjrosen/codexwui/internal/shell"
)

type sseEvent struct {
	name string
	data any
}

// LogLine is the payload of a "log" event.
type LogLine struct {
	Line string `json:"line"`
}

// forward relays broker events into out until ctx ends or in closes.
func forward[T any](ctx context.Context, in <-chan pubsub.Event[T], out chan<- sseEvent, convert func(T) sseEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- convert(ev.Payload):
			case <-ctx.Done():
				return
			}
		}
	}
}

func notificationEvent(n codex.Notification) sseEvent {
	return sseEvent{name: n.Kind(), data: n}
}

// StreamAllEvents streams every codex notification plus shell and terminal
// events.
// GET /events
func (h *Handler) StreamAllEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := make(chan sseEvent, 64)
	if h.cfg.Notifications != nil {
		go forward(ctx, h.cfg.Notifications.Subscribe(ctx), out, notificationEvent)
	}
	if h.cfg.ShellEvents != nil {
		go forward(ctx, h.cfg.ShellEvents.Subscribe(ctx), out, func(e shell.Event) sseEvent {
			return sseEvent{name: e.Kind(), data: e}
		})
	}
	h.streamEvents(w, r, out)
}

// StreamConversationEvents streams the notifications of one conversation.
// GET /conversations/{id}/events
func (h *Handler) StreamConversationEvents(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Notifications == nil {
		h.unavailable(w, "event stream")
		return
	}
	ctx := r.Context()
	out := make(chan sseEvent, 64)
	events := h.cfg.Notifications.SubscribeFiltered(ctx, codex.ForConversation(r.PathValue("id")))
	go forward(ctx, events, out, notificationEvent)
	h.streamEvents(w, r, out)
}

// StreamLogs tails the debug log.
// GET /logs
func (h *Handler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lines := log.Subscribe(ctx)
	if lines == nil {
		h.writeError(w, http.StatusServiceUnavailable, "logging_disabled", "Debug logging is not enabled", "")
		return
	}
	out := make(chan sseEvent, 64)
	go forward(ctx, lines, out, func(line string) sseEvent {
		return sseEvent{name: "log", data: LogLine{Line: line}}
	})
	h.streamEvents(w, r, out)
}

func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan sseEvent) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.cfg.Heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case event := <-events:
			data, err := json.Marshal(event.data)
			if err != nil {
				log.Error(log.CatAPI, "Failed to marshal event", "event", event.name, "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.name, data)
			flusher.Flush()
		}
	}
}
