// Package history defines the conversation history domain: workspaces own
// conversations, conversations own messages. Storage lives in
// internal/infrastructure/sqlite.
package history

import (
	"context"
	"fmt"
	"time"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one turn of a conversation.
type Message struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversationId"`
	Role           Role    `json:"role"`
	Content        string  `json:"content"`
	Thinking       *string `json:"thinking,omitempty"`
	// ThinkingDuration is in seconds.
	ThinkingDuration *int64    `json:"thinkingDuration,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Conversation is an ordered list of messages in a workspace.
type Conversation struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Messages    []Message `json:"messages"`
}

// Workspace is a project directory with its conversations.
type Workspace struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Path          string         `json:"path"`
	Conversations []Conversation `json:"conversations"`
}

// State is the full persisted tree.
type State struct {
	Workspaces []Workspace `json:"workspaces"`
}

// NotFoundError is returned when a workspace, conversation or message does
// not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// Store persists the history tree.
type Store interface {
	// CreateWorkspace inserts or updates a workspace. A leading ~ in path is
	// expanded.
	CreateWorkspace(ctx context.Context, id, name, path string) (Workspace, error)
	// DeleteWorkspace removes a workspace with its conversations and messages.
	DeleteWorkspace(ctx context.Context, id string) error

	CreateConversation(ctx context.Context, id, workspaceID, title string) (Conversation, error)
	UpdateConversationTitle(ctx context.Context, id, title string) error
	DeleteConversation(ctx context.Context, id string) error
	// GetConversation returns a conversation with its messages.
	GetConversation(ctx context.Context, id string) (Conversation, error)

	// CreateMessage inserts m and bumps the conversation's updated_at in the
	// same transaction. Empty ID and zero Timestamp are filled in.
	CreateMessage(ctx context.Context, m Message) (Message, error)
	// ListMessages returns the last limit messages oldest first. limit <= 0
	// returns all of them.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)

	// GetFullState returns every workspace with conversations ordered by
	// updated_at descending and messages ordered by timestamp ascending.
	GetFullState(ctx context.Context) (State, error)
}

// MessageAppender is the subset of Store the Recorder needs.
type MessageAppender interface {
	CreateMessage(ctx context.Context, m Message) (Message, error)
}
