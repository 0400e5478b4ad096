package sqlite

import (
	"time"

	"github.com/zjrosen/codexwui/internal/history"
)

// Time columns hold Unix milliseconds.

type conversationModel struct {
	ID          string
	WorkspaceID string
	Title       string
	CreatedAt   int64
	UpdatedAt   int64
}

type messageModel struct {
	ID               string
	ConversationID   string
	Role             string
	Content          string
	Thinking         *string // nullable
	ThinkingDuration *int64  // nullable
	Timestamp        int64
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func (m *conversationModel) toDomain() history.Conversation {
	return history.Conversation{
		ID:          m.ID,
		WorkspaceID: m.WorkspaceID,
		Title:       m.Title,
		CreatedAt:   fromMillis(m.CreatedAt),
		UpdatedAt:   fromMillis(m.UpdatedAt),
		Messages:    []history.Message{},
	}
}

func toMessageModel(m history.Message) messageModel {
	return messageModel{
		ID:               m.ID,
		ConversationID:   m.ConversationID,
		Role:             string(m.Role),
		Content:          m.Content,
		Thinking:         m.Thinking,
		ThinkingDuration: m.ThinkingDuration,
		Timestamp:        toMillis(m.Timestamp),
	}
}

func (m *messageModel) toDomain() history.Message {
	return history.Message{
		ID:               m.ID,
		ConversationID:   m.ConversationID,
		Role:             history.Role(m.Role),
		Content:          m.Content,
		Thinking:         m.Thinking,
		ThinkingDuration: m.ThinkingDuration,
		Timestamp:        fromMillis(m.Timestamp),
	}
}

type scanner interface{ Scan(...any) error }

const conversationColumns = `id, workspace_id, title, created_at, updated_at`

func scanConversation(s scanner) (*conversationModel, error) {
	var m conversationModel
	err := s.Scan(&m.ID, &m.WorkspaceID, &m.Title, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

const messageColumns = `id, conversation_id, role, content, thinking, thinking_duration, timestamp`

func scanMessage(s scanner) (*messageModel, error) {
	var m messageModel
	err := s.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Thinking, &m.ThinkingDuration, &m.Timestamp)
	return &m, err
}
