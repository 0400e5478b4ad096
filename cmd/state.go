package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"

	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/history"
)

// titleWidth bounds conversation titles derived from the first prompt.
const titleWidth = 48

// workspaceID is stable per directory so every session started in the same
// place shares one workspace.
func workspaceID(dir string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.Clean(dir))).String()
}

// conversationTitle turns a prompt into a one-line title.
func conversationTitle(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	if title == "" {
		return "New conversation"
	}
	return runewidth.Truncate(title, titleWidth, "…")
}

// session is the conversation a CLI front-end talks to.
type session struct {
	ConversationID string
	History        []history.Message
	// Fresh is true until the first prompt names the conversation.
	Fresh bool
}

// openSession resumes cid when set, otherwise creates a conversation in the
// workspace for rc's directory.
func openSession(ctx context.Context, store history.Store, rc codex.RuntimeConfig, cid string) (session, error) {
	if cid != "" {
		conv, err := store.GetConversation(ctx, cid)
		if err != nil {
			var nf *history.NotFoundError
			if errors.As(err, &nf) {
				return session{}, fmt.Errorf("no conversation with id %q", cid)
			}
			return session{}, err
		}
		return session{ConversationID: conv.ID, History: conv.Messages}, nil
	}

	dir := codex.ResolveCwd(rc)
	ws, err := store.CreateWorkspace(ctx, workspaceID(dir), filepath.Base(dir), dir)
	if err != nil {
		return session{}, err
	}
	conv, err := store.CreateConversation(ctx, uuid.NewString(), ws.ID, "New conversation")
	if err != nil {
		return session{}, err
	}
	return session{ConversationID: conv.ID, Fresh: true}, nil
}
