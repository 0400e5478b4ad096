package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/history"
	"github.com/zjrosen/codexwui/internal/log"
)

// PromptRequest is the request body for POST /conversations/{id}/prompt.
type PromptRequest struct {
	Prompt string `json:"prompt"`
	// MessageID names the stored user message; generated when empty.
	MessageID string `json:"messageId,omitempty"`
	// History replaces the stored history when present.
	History []codex.HistoryMessage `json:"history,omitempty"`
}

// PromptResponse is the response body for a started turn.
type PromptResponse struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId,omitempty"`
}

// ApprovalRequest is the request body for POST /approvals/{id}.
type ApprovalRequest struct {
	Approved bool `json:"approved"`
}

// CancelResponse reports whether a running turn was stopped.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// Prompt starts a codex turn. Prior messages are replayed from the store
// unless the request carries its own history, then the prompt is stored as
// a user message. Output arrives on the event streams.
// POST /conversations/{id}/prompt
func (h *Handler) Prompt(w http.ResponseWriter, r *http.Request) {
	cid := r.PathValue("id")
	var req PromptRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "prompt is required", "")
		return
	}

	ctx := r.Context()
	prior := req.History
	if prior == nil && h.cfg.Persist {
		msgs, err := h.cfg.Store.ListMessages(ctx, cid, h.cfg.HistoryLimit)
		if err != nil {
			log.ErrorErr(log.CatAPI, "loading history failed", err, "cid", cid)
		}
		prior = history.PromptHistory(msgs)
	}

	resp := PromptResponse{ConversationID: cid}
	if h.cfg.Persist {
		saved, err := h.cfg.Store.CreateMessage(ctx, history.Message{
			ID:             req.MessageID,
			ConversationID: cid,
			Role:           history.RoleUser,
			Content:        req.Prompt,
		})
		if err != nil {
			log.ErrorErr(log.CatAPI, "storing user message failed", err, "cid", cid)
		} else {
			resp.MessageID = saved.ID
		}
	}

	err := h.cfg.Codex.Submit(ctx, codex.SubmitRequest{ConversationID: cid, Prompt: req.Prompt, History: prior})
	if errors.Is(err, codex.ErrEmptyConversationID) {
		h.writeError(w, http.StatusBadRequest, "validation_error", err.Error(), "")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "submit_failed", "Failed to start turn", err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

// Cancel stops the conversation's running turn.
// POST /conversations/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, CancelResponse{Cancelled: h.cfg.Codex.Cancel(r.PathValue("id"))})
}

// RespondToApproval answers a pending approval request.
// POST /approvals/{id}
func (h *Handler) RespondToApproval(w http.ResponseWriter, r *http.Request) {
	var req ApprovalRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.cfg.Codex.RespondToApproval(r.PathValue("id"), req.Approved)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
	case errors.Is(err, codex.ErrApprovalNotFound):
		h.writeError(w, http.StatusNotFound, "approval_not_found", err.Error(), "")
	case errors.Is(err, codex.ErrProcessNotRunning), errors.Is(err, codex.ErrStdinUnavailable):
		h.writeError(w, http.StatusConflict, "process_unavailable", err.Error(), "")
	default:
		h.writeError(w, http.StatusInternalServerError, "approval_failed", "Failed to answer approval", err.Error())
	}
}

// SettingsPatch is the request body for PATCH /settings. Absent fields are
// left unchanged.
type SettingsPatch struct {
	Mode       *string                `json:"mode,omitempty"`
	YoloMode   *bool                  `json:"yoloMode,omitempty"`
	Model      *string                `json:"model,omitempty"`
	CLIOptions *codex.CLIOptionsPatch `json:"cliOptions,omitempty"`
}

// SwitchWorkspaceRequest is the request body for POST /settings/workspace.
type SwitchWorkspaceRequest struct {
	Path string `json:"path"`
}

// GetSettings returns the runtime settings.
// GET /settings
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cfg.Codex.RuntimeConfig())
}

// UpdateSettings applies a partial settings change to future launches.
// PATCH /settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsPatch
	if !h.decode(w, r, &req) {
		return
	}

	if req.Mode != nil {
		if err := h.cfg.Codex.SetMode(*req.Mode); err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_error", err.Error(), "")
			return
		}
	}
	if req.YoloMode != nil {
		h.cfg.Codex.SetYoloMode(*req.YoloMode)
	}
	if req.Model != nil {
		h.cfg.Codex.SetModel(*req.Model)
	}
	if req.CLIOptions != nil {
		h.cfg.Codex.SetCLIOptions(*req.CLIOptions)
	}
	h.writeJSON(w, http.StatusOK, h.cfg.Codex.RuntimeConfig())
}

// SwitchWorkspace changes the default working directory.
// POST /settings/workspace
func (h *Handler) SwitchWorkspace(w http.ResponseWriter, r *http.Request) {
	var req SwitchWorkspaceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.cfg.Codex.SwitchWorkspace(req.Path); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", err.Error(), "")
		return
	}
	h.writeJSON(w, http.StatusOK, h.cfg.Codex.RuntimeConfig())
}

// ModelsResponse is the response body for GET /models.
type ModelsResponse struct {
	Models []codex.ModelInfo `json:"models"`
}

// ListModels returns the model catalog.
// GET /models
func (h *Handler) ListModels(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, ModelsResponse{Models: h.cfg.Codex.Models()})
}

// CheckResponse is the response body for GET /codex/check.
type CheckResponse struct {
	Installed bool `json:"installed"`
}

// InstallResponse is the response body for POST /codex/install.
type InstallResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CodexCommandRequest is the request body for POST /codex/command.
type CodexCommandRequest struct {
	Subcommand string   `json:"subcommand"`
	Args       []string `json:"args,omitempty"`
	Cwd        string   `json:"cwd,omitempty"`
}

// CheckInstalled reports whether the codex CLI runs.
// GET /codex/check
func (h *Handler) CheckInstalled(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, CheckResponse{Installed: h.cfg.Codex.CheckInstalled(r.Context())})
}

// Install installs the codex CLI with npm. Progress is streamed on /events.
// POST /codex/install
func (h *Handler) Install(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Codex.Install(r.Context()); err != nil {
		h.writeJSON(w, http.StatusOK, InstallResponse{Error: err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, InstallResponse{Success: true})
}

// RunCodexCommand runs a one-shot codex subcommand.
// POST /codex/command
func (h *Handler) RunCodexCommand(w http.ResponseWriter, r *http.Request) {
	var req CodexCommandRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Subcommand) == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "subcommand is required", "")
		return
	}
	h.writeJSON(w, http.StatusOK, h.cfg.Codex.RunCommand(r.Context(), req.Subcommand, req.Args, req.Cwd))
}
