package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/history"
	"github.com/zjrosen/codexwui/internal/log"
)

// historyRepository implements history.Store using SQLite.
type historyRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ history.Store = (*historyRepository)(nil)

func newHistoryRepository(db *sql.DB) *historyRepository {
	return &historyRepository{db: db, now: time.Now}
}

func (r *historyRepository) CreateWorkspace(ctx context.Context, id, name, path string) (history.Workspace, error) {
	if strings.TrimSpace(id) == "" {
		return history.Workspace{}, errors.New("workspace id is required")
	}
	path = codex.ExpandTildePath(path)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workspaces (id, name, path) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, path = excluded.path`,
		id, name, path,
	)
	if err != nil {
		return history.Workspace{}, fmt.Errorf("failed to upsert workspace: %w", err)
	}
	return history.Workspace{ID: id, Name: name, Path: path, Conversations: []history.Conversation{}}, nil
}

func (r *historyRepository) DeleteWorkspace(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "workspaces", "workspace", id)
}

func (r *historyRepository) CreateConversation(ctx context.Context, id, workspaceID, title string) (history.Conversation, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if err := r.requireRow(ctx, r.db, "workspaces", "workspace", workspaceID); err != nil {
		return history.Conversation{}, err
	}

	now := toMillis(r.now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, workspace_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, workspaceID, title, now, now,
	)
	if err != nil {
		return history.Conversation{}, fmt.Errorf("failed to insert conversation: %w", err)
	}
	m := conversationModel{ID: id, WorkspaceID: workspaceID, Title: title, CreatedAt: now, UpdatedAt: now}
	return m.toDomain(), nil
}

func (r *historyRepository) UpdateConversationTitle(ctx context.Context, id, title string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, toMillis(r.now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation title: %w", err)
	}
	return expectRow(result, "conversation", id)
}

func (r *historyRepository) DeleteConversation(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "conversations", "conversation", id)
}

func (r *historyRepository) GetConversation(ctx context.Context, id string) (history.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	m, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return history.Conversation{}, &history.NotFoundError{Kind: "conversation", ID: id}
	}
	if err != nil {
		return history.Conversation{}, fmt.Errorf("failed to find conversation: %w", err)
	}
	conv := m.toDomain()
	conv.Messages, err = r.ListMessages(ctx, id, 0)
	if err != nil {
		return history.Conversation{}, err
	}
	return conv, nil
}

func (r *historyRepository) CreateMessage(ctx context.Context, msg history.Message) (history.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.now()
	}
	if !msg.Role.Valid() {
		return history.Message{}, fmt.Errorf("invalid message role %q", msg.Role)
	}
	m := toMessageModel(msg)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return history.Message{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.requireRow(ctx, tx, "conversations", "conversation", m.ConversationID); err != nil {
		return history.Message{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, m.Content, m.Thinking, m.ThinkingDuration, m.Timestamp,
	); err != nil {
		return history.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		toMillis(r.now()), m.ConversationID,
	); err != nil {
		return history.Message{}, fmt.Errorf("failed to touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return history.Message{}, fmt.Errorf("failed to commit message: %w", err)
	}
	return m.toDomain(), nil
}

func (r *historyRepository) ListMessages(ctx context.Context, conversationID string, limit int) ([]history.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ? ORDER BY timestamp DESC, rowid DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []history.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

func (r *historyRepository) GetFullState(ctx context.Context) (history.State, error) {
	state := history.State{Workspaces: []history.Workspace{}}

	wsRows, err := r.db.QueryContext(ctx, `SELECT id, name, path FROM workspaces ORDER BY rowid ASC`)
	if err != nil {
		return state, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer func() { _ = wsRows.Close() }()
	wsIndex := map[string]int{}
	for wsRows.Next() {
		var ws history.Workspace
		if err := wsRows.Scan(&ws.ID, &ws.Name, &ws.Path); err != nil {
			return state, fmt.Errorf("failed to scan workspace row: %w", err)
		}
		ws.Conversations = []history.Conversation{}
		wsIndex[ws.ID] = len(state.Workspaces)
		state.Workspaces = append(state.Workspaces, ws)
	}
	if err := wsRows.Err(); err != nil {
		return state, fmt.Errorf("error iterating workspace rows: %w", err)
	}

	msgs, err := r.messagesByConversation(ctx)
	if err != nil {
		return state, err
	}

	convRows, err := r.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations ORDER BY updated_at DESC, rowid DESC`)
	if err != nil {
		return state, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer func() { _ = convRows.Close() }()
	for convRows.Next() {
		m, err := scanConversation(convRows)
		if err != nil {
			return state, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		i, ok := wsIndex[m.WorkspaceID]
		if !ok {
			log.Warn(log.CatDB, "Conversation without workspace", "id", m.ID, "workspace", m.WorkspaceID)
			continue
		}
		conv := m.toDomain()
		if ms, ok := msgs[conv.ID]; ok {
			conv.Messages = ms
		}
		state.Workspaces[i].Conversations = append(state.Workspaces[i].Conversations, conv)
	}
	if err := convRows.Err(); err != nil {
		return state, fmt.Errorf("error iterating conversation rows: %w", err)
	}
	return state, nil
}

func (r *historyRepository) messagesByConversation(ctx context.Context) (map[string][]history.Message, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY timestamp ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := map[string][]history.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		out[m.ConversationID] = append(out[m.ConversationID], m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return out, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// requireRow returns a NotFoundError unless table has a row with id.
func (r *historyRepository) requireRow(ctx context.Context, q queryer, table, kind, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return &history.NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", kind, err)
	}
	return nil
}

func (r *historyRepository) deleteByID(ctx context.Context, table, kind, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	return expectRow(result, kind, id)
}

func expectRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return &history.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}
