package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/zjrosen/codexwui/internal/codex"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the codex CLI can be run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc := codex.NewService(codex.DefaultRuntimeConfig(), discard, codex.WithBinary(cfg.Codex.Binary))
		if !svc.CheckInstalled(cmd.Context()) {
			return fmt.Errorf("%s is not installed or not on PATH; run 'codexwui install'", cfg.Codex.Binary)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is installed (%s)\n", cfg.Codex.Binary, svc.Binary())
		return nil
	},
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the codex CLI with npm",
	Long:  "Install the codex CLI globally with `npm install -g " + codex.InstallPackage + "`.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		sink := codex.SinkFunc(func(n codex.Notification) {
			if p, ok := n.(codex.InstallProgress); ok {
				fmt.Fprintf(out, "[%3d%%] %s\n", p.Percent, p.Message)
			}
		})
		svc := codex.NewService(codex.DefaultRuntimeConfig(), sink, codex.WithBinary(cfg.Codex.Binary))
		return svc.Install(cmd.Context())
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the selectable models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		writeModels(cmd.OutOrStdout(), codex.DefaultModels(), cfg.Codex.Model)
		return nil
	},
}

var execCmd = &cobra.Command{
	Use:                "exec-cmd <subcommand> [args...]",
	Short:              "Run a codex subcommand and print its output",
	Args:               cobra.MinimumNArgs(1),
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := codex.NewService(codex.DefaultRuntimeConfig(), discard, codex.WithBinary(cfg.Codex.Binary))
		res := svc.RunCommand(cmd.Context(), args[0], args[1:], "")
		fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
		fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
		if res.Error != "" {
			return errors.New(res.Error)
		}
		if !res.Success {
			return fmt.Errorf("codex %s exited with code %d", args[0], res.ExitCode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd, installCmd, modelsCmd, execCmd)
}

// discard drops notifications from commands that have no listener.
var discard = codex.SinkFunc(func(codex.Notification) {})

func writeModels(w io.Writer, models []codex.ModelInfo, current string) {
	idWidth, nameWidth := 0, 0
	for _, m := range models {
		idWidth = max(idWidth, runewidth.StringWidth(m.ID))
		nameWidth = max(nameWidth, runewidth.StringWidth(m.Name))
	}
	for _, m := range models {
		marker := "  "
		if strings.EqualFold(m.ID, current) {
			marker = "* "
		}
		fmt.Fprintf(w, "%s%s  %s  %s\n", marker,
			runewidth.FillRight(m.ID, idWidth),
			runewidth.FillRight(m.Name, nameWidth),
			m.Description)
	}
}
