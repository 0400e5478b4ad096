package cmd

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
	"github.com/spf13/cobra"

	"github.com/zjrosen/codexwui/internal/history"
	"github.com/zjrosen/codexwui/internal/log"
	"github.com/zjrosen/codexwui/internal/tui"
)

var chatConversation string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the chat TUI (default command)",
	Long: `Open an interactive chat with codex in the current directory.

Each session is stored as a conversation in the history database. Pass
--conversation with an id from 'codexwui history' to resume one.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	addChatFlags(chatCmd)
}

func addChatFlags(c *cobra.Command) {
	c.Flags().StringVarP(&chatConversation, "conversation", "C", "", "resume the conversation with this id")
}

func runChat(_ *cobra.Command, _ []string) error {
	cleanup, err := initLogging("codexwui")
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.ErrorErr(log.CatConfig, "Shutdown failed", err)
		}
	}()

	ctx := a.Context()
	sess, err := openSession(ctx, a.Store, a.Codex.RuntimeConfig(), chatConversation)
	if err != nil {
		return fmt.Errorf("opening conversation: %w", err)
	}

	tcfg := tui.Config{
		Service:        a.Codex,
		Notifications:  a.Notifications,
		Store:          a.Store,
		ConversationID: sess.ConversationID,
		History:        sess.History,
		Debug:          debugFlag || os.Getenv("CODEXWUI_DEBUG") != "",
		MarkdownStyle:  markdownStyle(),
	}

	// The TUI's subscription holds up publishers until it is released.
	tuiCtx, stopTUI := context.WithCancel(ctx)
	zone.NewGlobal()
	p := tea.NewProgram(
		tui.New(tuiCtx, tcfg),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err = p.Run()
	stopTUI()

	kept := finishSession(context.Background(), a.Store, sess)

	if err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	if kept {
		fmt.Printf("Conversation %s\n", sess.ConversationID)
	}
	return nil
}

// finishSession names a new conversation after its first prompt, or drops
// it when nothing was asked. It reports whether the conversation remains.
func finishSession(ctx context.Context, store history.Store, sess session) bool {
	if !sess.Fresh {
		return true
	}
	msgs, err := store.ListMessages(ctx, sess.ConversationID, 0)
	if err != nil {
		log.ErrorErr(log.CatDB, "Listing messages failed", err, "cid", sess.ConversationID)
		return true
	}
	for _, m := range msgs {
		if m.Role == history.RoleUser {
			if err := store.UpdateConversationTitle(ctx, sess.ConversationID, conversationTitle(m.Content)); err != nil {
				log.ErrorErr(log.CatDB, "Naming conversation failed", err, "cid", sess.ConversationID)
			}
			return true
		}
	}
	if err := store.DeleteConversation(ctx, sess.ConversationID); err != nil {
		log.ErrorErr(log.CatDB, "Dropping empty conversation failed", err, "cid", sess.ConversationID)
		return true
	}
	return false
}
