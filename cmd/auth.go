package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zjrosen/codexwui/internal/auth"
)

var (
	loginMethod string
	loginAPIKey bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage codex credentials",
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to codex",
	Long: `Log in with the codex CLI. Methods are browser (default), device-auth
and api-key. With --api-key the key is read from the terminal without echo,
or from stdin when it is not a terminal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		method := loginMethod
		var key string
		if loginAPIKey {
			method = auth.MethodAPIKey
			var err error
			if key, err = readSecret(cmd.ErrOrStderr()); err != nil {
				return err
			}
		}

		res := newAuthService().Login(cmd.Context(), method, key)
		if !res.Success {
			return errors.New(strings.TrimSpace(res.Error))
		}
		printUser(cmd.OutOrStdout(), res.User)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out of codex",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := newAuthService().Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in codex user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		user, err := newAuthService().CurrentUser(cmd.Context())
		if err != nil {
			return err
		}
		printUser(cmd.OutOrStdout(), user)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginMethod, "method", "m", auth.MethodBrowser, "login method: browser, device-auth or api-key")
	loginCmd.Flags().BoolVar(&loginAPIKey, "api-key", false, "log in with an API key")
	authCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
	rootCmd.AddCommand(authCmd)
}

func newAuthService() *auth.Service {
	return auth.NewService(auth.WithBinary(cfg.Codex.Binary))
}

func readSecret(prompt io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, "API key: ")
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func printUser(w io.Writer, u *auth.User) {
	if u == nil {
		fmt.Fprintln(w, "Not logged in")
		return
	}
	name := u.Name
	if name == "" {
		name = u.Email
	}
	if name == "" {
		name = u.ID
	}
	fmt.Fprintf(w, "Logged in as %s (%s)\n", name, u.AuthMode)
	if u.PlanType != "" {
		fmt.Fprintf(w, "Plan: %s\n", u.PlanType)
	}
}
