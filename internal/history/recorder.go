package history

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/log"
)

// saveTimeout bounds one store write made from the notification path.
const saveTimeout = 10 * time.Second

// Recorder turns a conversation's notification stream into the assistant
// message that is persisted when the turn ends.
type Recorder struct {
	store MessageAppender
	now   func() time.Time

	mu    sync.Mutex
	turns map[string]*turn

	// OnSaved, if set, is called after each message is stored.
	OnSaved func(Message)
}

type turn struct {
	content       strings.Builder
	thinking      strings.Builder
	thinkingStart time.Time
	thinkingEnd   time.Time
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store MessageAppender) *Recorder {
	return &Recorder{store: store, now: time.Now, turns: make(map[string]*turn)}
}

// Begin starts accumulating a new turn for cid. An unfinished turn for cid
// was superseded and never sees a terminal notification, so whatever it
// gathered is stored first.
func (r *Recorder) Begin(cid string) {
	r.mu.Lock()
	prev := r.turns[cid]
	r.turns[cid] = &turn{}
	r.mu.Unlock()

	if prev != nil {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		r.save(ctx, prev.partial(cid))
	}
}

// Flush stores the partial content of every unfinished turn and forgets
// them. It is used at shutdown, after the processes are gone.
func (r *Recorder) Flush(ctx context.Context) {
	r.mu.Lock()
	turns := r.turns
	r.turns = make(map[string]*turn)
	r.mu.Unlock()

	for cid, t := range turns {
		r.save(ctx, t.partial(cid))
	}
}

// Active reports whether a turn for cid is being recorded.
func (r *Recorder) Active(cid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.turns[cid]
	return ok
}

// Notify implements codex.Sink. It runs on the emitting goroutine, so every
// notification of a turn is seen in order. Writes are not tied to any caller
// context and finish even while the application shuts down.
func (r *Recorder) Notify(n codex.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	r.Handle(ctx, n)
}

// Handle applies one notification. Notifications for conversations without
// an active turn are ignored, so only the first terminal notification of a
// turn is recorded.
func (r *Recorder) Handle(ctx context.Context, n codex.Notification) {
	cid := n.Conversation()

	r.mu.Lock()
	t, ok := r.turns[cid]
	if !ok {
		r.mu.Unlock()
		return
	}

	var msg *Message
	switch v := n.(type) {
	case codex.StreamToken:
		t.content.WriteString(v.Text)
		t.content.WriteString("\n")
	case codex.StreamDelta:
		t.content.WriteString(v.Text)
	case codex.ThinkingDelta:
		if t.thinkingStart.IsZero() {
			t.thinkingStart = r.now()
		}
		t.thinkingEnd = r.now()
		t.thinking.WriteString(v.Text)
	case codex.StreamEnd:
		delete(r.turns, cid)
		msg = t.partial(cid)
	case codex.StreamError:
		delete(r.turns, cid)
		msg = t.message(cid, "Error: "+v.Message)
	}
	r.mu.Unlock()

	r.save(ctx, msg)
}

func (r *Recorder) save(ctx context.Context, msg *Message) {
	if msg == nil {
		return
	}
	cid := msg.ConversationID
	msg.Timestamp = r.now()
	saved, err := r.store.CreateMessage(ctx, *msg)
	if err != nil {
		log.ErrorErr(log.CatDB, "Failed to store assistant message", err, "cid", cid)
		return
	}
	log.Debug(log.CatDB, "Stored assistant message", "cid", cid, "id", saved.ID)
	if r.OnSaved != nil {
		r.OnSaved(saved)
	}
}

func (t *turn) partial(cid string) *Message {
	return t.message(cid, strings.TrimRight(t.content.String(), "\n"))
}

// message builds the assistant message, or nil when the turn produced
// nothing worth keeping.
func (t *turn) message(cid, content string) *Message {
	thinking := t.thinking.String()
	if content == "" && thinking == "" {
		return nil
	}
	m := &Message{ConversationID: cid, Role: RoleAssistant, Content: content}
	if thinking != "" {
		m.Thinking = &thinking
		secs := int64(t.thinkingEnd.Sub(t.thinkingStart).Round(time.Second) / time.Second)
		m.ThinkingDuration = &secs
	}
	return m
}

// PromptHistory converts stored messages into launcher history.
func PromptHistory(messages []Message) []codex.HistoryMessage {
	out := make([]codex.HistoryMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, codex.HistoryMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
