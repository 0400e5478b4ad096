package codex

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Event is one decoded stdout line. The set of variants is closed; lines with
// an unrecognized type decode to UnknownEvent and lines that are not JSON
// decode to PlainTextEvent.
type Event interface {
	event()
}

// ItemPhase is the lifecycle stage of an item event.
type ItemPhase string

const (
	ItemStarted   ItemPhase = "item.started"
	ItemUpdated   ItemPhase = "item.updated"
	ItemCompleted ItemPhase = "item.completed"
)

// Item types carried by lifecycle events.
const (
	ItemReasoning        = "reasoning"
	ItemAgentMessage     = "agent_message"
	ItemMessage          = "message"
	ItemCommandExecution = "command_execution"
	ItemMCPToolCall      = "mcp_tool_call"
	ItemFileChange       = "file_change"
)

// ApprovalRequest is an approval prompt extracted from the stream.
type ApprovalRequest struct {
	RequestID   string `json:"requestId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Item is the tolerant view of an item payload. Absent fields are zero.
type Item struct {
	ID               string
	Type             string
	Text             string
	Command          string
	AggregatedOutput string
	Status           string
	ExitCode         *int
	Server           string
	Tool             string
	Result           any
	Error            any
	Changes          any
}

type (
	// PlainTextEvent is a stdout line that is not valid JSON.
	PlainTextEvent struct{ Text string }

	// ApprovalRequestEvent is any event whose type or method mentions approval
	// and that carries a request id.
	ApprovalRequestEvent struct{ Request ApprovalRequest }

	// ItemStreamingEvent carries a true delta for an item.
	ItemStreamingEvent struct {
		ItemID   string
		ItemType string
		Delta    string
	}

	// ItemLifecycleEvent is item.started, item.updated or item.completed.
	ItemLifecycleEvent struct {
		Phase ItemPhase
		Item  Item
	}

	// TurnFailedEvent ends a turn with an error.
	TurnFailedEvent struct{ Message string }

	// ErrorEvent is a top-level protocol error.
	ErrorEvent struct{ Message string }

	// LegacyTextEvent is an older flat event ("message", "agent_message",
	// "reasoning") carrying cumulative text at the top level.
	LegacyTextEvent struct {
		Type string
		Text string
	}

	// UnknownEvent is valid JSON with an unrecognized type.
	UnknownEvent struct {
		Type string
		Raw  json.RawMessage
	}
)

func (PlainTextEvent) event()       {}
func (ApprovalRequestEvent) event() {}
func (ItemStreamingEvent) event()   {}
func (ItemLifecycleEvent) event()   {}
func (TurnFailedEvent) event()      {}
func (ErrorEvent) event()           {}
func (LegacyTextEvent) event()      {}
func (UnknownEvent) event()         {}

type object map[string]any

// DecodeEvent decodes one stdout line. It never fails: missing or mistyped
// fields default to their zero values.
func DecodeEvent(line []byte) Event {
	trimmed := bytes.TrimSpace(line)
	var obj object
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil || obj == nil || dec.More() {
		return PlainTextEvent{Text: string(line)}
	}

	if req, ok := extractApproval(obj); ok {
		return ApprovalRequestEvent{Request: req}
	}

	typ := obj.str("type")
	switch typ {
	case "item.streaming":
		item := obj.obj("item")
		return ItemStreamingEvent{
			ItemID:   item.str("id"),
			ItemType: strings.ToLower(item.str("type")),
			Delta:    item.obj("delta").str("text"),
		}
	case string(ItemStarted), string(ItemUpdated), string(ItemCompleted):
		return ItemLifecycleEvent{Phase: ItemPhase(typ), Item: decodeItem(obj.obj("item"))}
	case "turn.failed":
		errObj := obj.obj("error")
		msg := errObj.str("message")
		if msg == "" {
			msg = errObj.str("error")
		}
		if msg == "" {
			msg = "Turn failed"
		}
		return TurnFailedEvent{Message: msg}
	case "error":
		msg := obj.str("message")
		if msg == "" {
			msg = "Unknown error"
		}
		return ErrorEvent{Message: msg}
	case ItemMessage, ItemAgentMessage, ItemReasoning:
		return LegacyTextEvent{Type: typ, Text: obj.str("text")}
	default:
		return UnknownEvent{Type: typ, Raw: json.RawMessage(append([]byte(nil), trimmed...))}
	}
}

func decodeItem(o object) Item {
	item := Item{
		ID:               o.str("id"),
		Type:             strings.ToLower(o.str("type")),
		Text:             o.str("text"),
		Command:          o.str("command"),
		AggregatedOutput: o.str("aggregated_output"),
		Status:           strings.ToLower(o.str("status")),
		Server:           o.str("server"),
		Tool:             o.str("tool"),
		Result:           o["result"],
		Error:            o["error"],
		Changes:          o["changes"],
	}
	if n, ok := o["exit_code"].(json.Number); ok {
		if v, err := n.Int64(); err == nil {
			item.ExitCode = intPtr(int(v))
		}
	}
	return item
}

// extractApproval detects an approval request. Detection takes priority over
// every other event type.
func extractApproval(o object) (ApprovalRequest, bool) {
	typ := strings.ToLower(o.str("type"))
	method := o.str("method")
	if !strings.Contains(typ, "approval") && !strings.Contains(strings.ToLower(method), "approval") {
		return ApprovalRequest{}, false
	}

	id := o.firstID("requestId", "request_id", "id")
	if id == "" {
		return ApprovalRequest{}, false
	}

	title := o.firstStr("title", "method")
	if title == "" {
		title = "Approval requested"
	}

	var desc string
	switch {
	case o.has("description"):
		desc = ValueText(o["description"])
	case o.has("params"):
		desc = ValueText(o["params"])
	default:
		desc = ValueText(map[string]any(o))
	}

	return ApprovalRequest{RequestID: id, Title: title, Description: desc}, true
}

// ValueText renders a JSON value for display: strings verbatim, null as "",
// everything else as indented JSON.
func ValueText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

func (o object) has(key string) bool {
	_, ok := o[key]
	return ok
}

func (o object) str(key string) string {
	s, _ := o[key].(string)
	return s
}

// firstStr returns the value of the first present key. A present key with a
// non-string value stops the search and yields "".
func (o object) firstStr(keys ...string) string {
	for _, k := range keys {
		if v, ok := o[k]; ok {
			s, _ := v.(string)
			return s
		}
	}
	return ""
}

// firstID is firstStr that also accepts numeric ids.
func (o object) firstID(keys ...string) string {
	for _, k := range keys {
		if v, ok := o[k]; ok {
			switch t := v.(type) {
			case string:
				return t
			case json.Number:
				return t.String()
			}
			return ""
		}
	}
	return ""
}

func (o object) obj(key string) object {
	m, _ := o[key].(map[string]any)
	return object(m)
}
