package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/zjrosen/codexwui/internal/history"
	"github.com/zjrosen/codexwui/internal/log"
	"github.com/zjrosen/codexwui/internal/teams"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		state, err := a.Store.GetFullState(cmd.Context())
		if err != nil {
			return err
		}
		writeState(cmd.OutOrStdout(), state)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		conv, err := a.Store.GetConversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), transcript(conv))
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		return a.Store.DeleteConversation(cmd.Context(), args[0])
	},
}

var historySendCmd = &cobra.Command{
	Use:   "send <conversation-id>",
	Short: "Post a conversation to a Teams channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		webhook := sendWebhook
		if webhook == "" {
			webhook = cfg.Teams.WebhookURL
		}
		if webhook == "" {
			return errors.New("no webhook: pass --webhook or set teams.webhook_url")
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		conv, err := a.Store.GetConversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		status, err := a.Teams.Send(cmd.Context(), webhook, conv.Title, teams.Truncate(transcript(conv), teamsLimit))
		if err != nil {
			return err
		}
		log.Info(log.CatTeams, "conversation sent", "cid", conv.ID, "status", status)
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %q (HTTP %d)\n", conv.Title, status)
		return nil
	},
}

// teamsLimit keeps cards under the webhook payload limit.
const teamsLimit = 20000

var sendWebhook string

func init() {
	historySendCmd.Flags().StringVar(&sendWebhook, "webhook", "", "Teams incoming webhook URL (overrides teams.webhook_url)")
	historyCmd.AddCommand(historyShowCmd, historyDeleteCmd, historySendCmd)
	rootCmd.AddCommand(historyCmd)
}

func writeState(w io.Writer, state history.State) {
	if len(state.Workspaces) == 0 {
		fmt.Fprintln(w, "No conversations yet")
		return
	}
	for _, ws := range state.Workspaces {
		fmt.Fprintf(w, "%s  %s\n", ws.Name, ws.Path)
		for _, c := range ws.Conversations {
			fmt.Fprintf(w, "  %s  %s  %s\n",
				c.ID,
				runewidth.FillRight(runewidth.Truncate(c.Title, titleWidth, "…"), titleWidth),
				c.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
	}
}

func transcript(conv history.Conversation) string {
	var b strings.Builder
	for _, m := range conv.Messages {
		label := "You"
		if m.Role == history.RoleAssistant {
			label = "Codex"
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", label, strings.TrimSpace(m.Content))
	}
	return b.String()
}
