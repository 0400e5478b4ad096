package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/codexwui/internal/history"
	"github.com/zjrosen/codexwui/internal/log"
)

// CreateWorkspaceRequest is the request body for POST /workspaces.
type CreateWorkspaceRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// CreateConversationRequest is the request body for POST /conversations.
type CreateConversationRequest struct {
	ID          string `json:"id,omitempty"`
	WorkspaceID string `json:"workspaceId"`
	Title       string `json:"title"`
}

// UpdateConversationRequest is the request body for PATCH /conversations/{id}.
type UpdateConversationRequest struct {
	Title string `json:"title"`
}

// CreateMessageRequest is the request body for POST /conversations/{id}/messages.
type CreateMessageRequest struct {
	ID               string       `json:"id,omitempty"`
	Role             history.Role `json:"role"`
	Content          string       `json:"content"`
	Thinking         *string      `json:"thinking,omitempty"`
	ThinkingDuration *int64       `json:"thinkingDuration,omitempty"`
	Timestamp        *time.Time   `json:"timestamp,omitempty"`
}

// MessagesResponse is the response body for GET /conversations/{id}/messages.
type MessagesResponse struct {
	Messages []history.Message `json:"messages"`
}

// GetState returns every workspace with its conversations and messages.
// GET /state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.cfg.Store.GetFullState(r.Context())
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if state.Workspaces == nil {
		state.Workspaces = []history.Workspace{}
	}
	h.writeJSON(w, http.StatusOK, state)
}

// CreateWorkspace creates or updates a workspace.
// POST /workspaces
func (h *Handler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "path is required", "")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ws, err := h.cfg.Store.CreateWorkspace(r.Context(), req.ID, req.Name, req.Path)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ws)
}

// DeleteWorkspace removes a workspace and everything in it.
// DELETE /workspaces/{id}
func (h *Handler) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Store.DeleteWorkspace(r.Context(), r.PathValue("id")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateConversation creates a conversation in a workspace.
// POST /conversations
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.WorkspaceID == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "workspaceId is required", "")
		return
	}

	conv, err := h.cfg.Store.CreateConversation(r.Context(), req.ID, req.WorkspaceID, req.Title)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, conv)
}

// GetConversation returns one conversation with its messages.
// GET /conversations/{id}
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.cfg.Store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

// UpdateConversation renames a conversation.
// PATCH /conversations/{id}
func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	var req UpdateConversationRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.cfg.Store.UpdateConversationTitle(r.Context(), r.PathValue("id"), req.Title); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// DeleteConversation cancels any running turn and deletes the conversation.
// DELETE /conversations/{id}
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if h.cfg.Codex.Cancel(id) {
		log.Info(log.CatAPI, "cancelled turn of deleted conversation", "cid", id)
	}
	if err := h.cfg.Store.DeleteConversation(r.Context(), id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMessages returns the newest messages of a conversation, oldest first.
// GET /conversations/{id}/messages?limit=N
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "validation_error", "limit must be a non-negative integer", raw)
			return
		}
		limit = n
	}

	msgs, err := h.cfg.Store.ListMessages(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []history.Message{}
	}
	h.writeJSON(w, http.StatusOK, MessagesResponse{Messages: msgs})
}

// CreateMessage appends a message to a conversation.
// POST /conversations/{id}/messages
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.Role.Valid() {
		h.writeError(w, http.StatusBadRequest, "validation_error", "role must be user or assistant", string(req.Role))
		return
	}

	msg := history.Message{
		ID:               req.ID,
		ConversationID:   r.PathValue("id"),
		Role:             req.Role,
		Content:          req.Content,
		Thinking:         req.Thinking,
		ThinkingDuration: req.ThinkingDuration,
	}
	if req.Timestamp != nil {
		msg.Timestamp = *req.Timestamp
	}

	saved, err := h.cfg.Store.CreateMessage(r.Context(), msg)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, saved)
}
