package codex

import (
	"strings"

	"github.com/zjrosen/codexwui/internal/log"
)

// StreamParseCache remembers the last full text seen per item so cumulative
// updates can be turned into deltas. One cache belongs to one process.
type StreamParseCache struct {
	text map[string]string
}

// NewStreamParseCache returns an empty cache.
func NewStreamParseCache() *StreamParseCache {
	return &StreamParseCache{text: make(map[string]string)}
}

// Delta returns the part of full not yet seen for id. When full does not
// extend the cached text the whole of full is returned. terminal forgets id.
func (c *StreamParseCache) Delta(id, full string, terminal bool) string {
	if id == "" || full == "" {
		return ""
	}
	prev := c.text[id]
	delta := full
	if strings.HasPrefix(full, prev) {
		delta = full[len(prev):]
	}
	if terminal {
		delete(c.text, id)
		return delta
	}
	c.text[id] = full
	return delta
}

// Append records a true delta for id.
func (c *StreamParseCache) Append(id, delta string) {
	if id == "" || delta == "" {
		return
	}
	c.text[id] += delta
}

// adopt moves the text recorded under from to to when to has no entry yet.
func (c *StreamParseCache) adopt(from, to string) {
	if _, ok := c.text[to]; ok {
		return
	}
	if v, ok := c.text[from]; ok {
		c.text[to] = v
		delete(c.text, from)
	}
}

// Len reports how many items are being tracked.
func (c *StreamParseCache) Len() int {
	return len(c.text)
}

// Streaming deltas without an item id are tracked under these keys and
// attributed to the next lifecycle item of the same kind.
const (
	anonContentKey  = "\x00stream:content"
	anonThinkingKey = "\x00stream:thinking"
)

// Router decodes stdout lines for one process and notifies a Sink.
// It never touches the approval broker; approval requests are returned to
// the caller for registration.
type Router struct {
	sink   Sink
	cache  *StreamParseCache
	legacy bool
	events int
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// RouteLegacyEvents enables the flat message/agent_message/reasoning events.
func RouteLegacyEvents(enabled bool) RouterOption {
	return func(r *Router) { r.legacy = enabled }
}

// NewRouter returns a Router with a fresh StreamParseCache.
func NewRouter(sink Sink, opts ...RouterOption) *Router {
	r := &Router{sink: sink, cache: NewStreamParseCache(), legacy: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache exposes the router's parse cache.
func (r *Router) Cache() *StreamParseCache { return r.cache }

// Events reports how many lines have been routed.
func (r *Router) Events() int { return r.events }

// Route decodes and dispatches one stdout line for conversation cid.
func (r *Router) Route(cid, line string) *ApprovalRequest {
	return r.RouteEvent(cid, DecodeEvent([]byte(line)))
}

// RouteEvent dispatches an already decoded event.
func (r *Router) RouteEvent(cid string, ev Event) *ApprovalRequest {
	r.events++

	switch e := ev.(type) {
	case PlainTextEvent:
		r.sink.Notify(StreamToken{ConversationID: cid, Text: e.Text})

	case ApprovalRequestEvent:
		req := e.Request
		r.sink.Notify(ApprovalRequested{ConversationID: cid, ApprovalRequest: req})
		return &req

	case ItemStreamingEvent:
		r.routeStreaming(cid, e)

	case ItemLifecycleEvent:
		r.routeItem(cid, e)

	case TurnFailedEvent:
		r.sink.Notify(StreamError{ConversationID: cid, Message: e.Message})

	case ErrorEvent:
		r.sink.Notify(StreamError{ConversationID: cid, Message: e.Message})

	case LegacyTextEvent:
		if !r.legacy {
			return nil
		}
		delta := r.cache.Delta("legacy:"+e.Type, e.Text, false)
		if delta == "" {
			return nil
		}
		if e.Type == ItemReasoning {
			r.sink.Notify(ThinkingDelta{ConversationID: cid, Text: delta})
		} else {
			r.sink.Notify(StreamDelta{ConversationID: cid, Text: delta})
		}

	case UnknownEvent:
		log.Debug(log.CatCodex, "ignoring event", "cid", cid, "type", e.Type)
	}
	return nil
}

func (r *Router) routeStreaming(cid string, e ItemStreamingEvent) {
	if e.Delta == "" {
		return
	}
	thinking := e.ItemType == ItemReasoning
	key := e.ItemID
	if key == "" {
		key = anonContentKey
		if thinking {
			key = anonThinkingKey
		}
	}
	r.cache.Append(key, e.Delta)

	if thinking {
		r.sink.Notify(ThinkingDelta{ConversationID: cid, Text: e.Delta})
	} else {
		r.sink.Notify(StreamDelta{ConversationID: cid, Text: e.Delta})
	}
}

func (r *Router) routeItem(cid string, e ItemLifecycleEvent) {
	item := e.Item
	terminal := e.Phase == ItemCompleted

	switch item.Type {
	case ItemReasoning:
		r.cache.adopt(anonThinkingKey, item.ID)
		if delta := r.cache.Delta(item.ID, item.Text, terminal); delta != "" {
			r.sink.Notify(ThinkingDelta{ConversationID: cid, Text: delta})
		}

	case ItemAgentMessage, ItemMessage:
		r.cache.adopt(anonContentKey, item.ID)
		if delta := r.cache.Delta(item.ID, item.Text, terminal); delta != "" {
			r.sink.Notify(StreamDelta{ConversationID: cid, Text: delta})
		}

	case ItemCommandExecution:
		command := item.Command
		if command == "" {
			command = "command"
		}
		status := item.Status
		if status == "" {
			status = "in_progress"
		}

		var exitCode *int
		if status == "completed" || status == "failed" || status == "declined" {
			exitCode = item.ExitCode
			if exitCode == nil {
				exitCode = intPtr(-1)
			}
		}
		terminalID := item.ID
		if terminalID == "" {
			terminalID = cid + "-command"
		}

		r.sink.Notify(TerminalOutput{
			ConversationID: cid,
			TerminalID:     terminalID,
			Output:         item.AggregatedOutput,
			ExitCode:       exitCode,
		})
		r.sink.Notify(ToolCall{
			ConversationID: cid,
			Title:          command,
			Status:         toolStatus(status, true),
			Output:         item.AggregatedOutput,
		})

	case ItemMCPToolCall:
		server, tool := item.Server, item.Tool
		if server == "" {
			server = "mcp"
		}
		if tool == "" {
			tool = "tool"
		}
		output := ValueText(item.Result)
		if item.Result == nil {
			output = ValueText(item.Error)
		}
		r.sink.Notify(ToolCall{
			ConversationID: cid,
			Title:          server + ":" + tool,
			Status:         toolStatus(item.Status, false),
			Output:         output,
		})

	case ItemFileChange:
		r.sink.Notify(ToolCall{
			ConversationID: cid,
			Title:          ItemFileChange,
			Status:         toolStatus(item.Status, false),
			Output:         ValueText(item.Changes),
		})

	default:
		log.Debug(log.CatCodex, "ignoring item", "cid", cid, "type", item.Type, "phase", e.Phase)
	}
}

// toolStatus maps a protocol status to a ToolStatus. declined counts as an
// error only for command executions.
func toolStatus(status string, declinedIsError bool) ToolStatus {
	switch status {
	case "completed":
		return ToolDone
	case "failed":
		return ToolError
	case "declined":
		if declinedIsError {
			return ToolError
		}
	}
	return ToolRunning
}
