package codex

import (
	"os"
	"strings"
	"unicode"
)

// DefaultHistoryLimit is how many trailing history messages are replayed.
const DefaultHistoryLimit = 10

const (
	flagBypass = "--dangerously-bypass-approvals-and-sandbox"
	// StdinPromptSentinel tells codex to read the prompt from stdin.
	StdinPromptSentinel = "-"
)

// HistoryMessage is one prior turn replayed into the prompt.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LaunchOptions tweak how the prompt reaches the child.
type LaunchOptions struct {
	HistoryLimit   int
	PromptViaStdin bool
}

// ExecArgs is the result of BuildExecArgs.
type ExecArgs struct {
	// FullPrompt is the prompt with the history transcript prepended.
	FullPrompt string
	// Cwd is the resolved working directory passed with -C.
	Cwd  string
	Args []string
}

// BuildExecArgs builds the `codex exec --json` argument vector.
func BuildExecArgs(prompt string, history []HistoryMessage, cfg RuntimeConfig, opts LaunchOptions) ExecArgs {
	full := BuildPrompt(prompt, history, opts.HistoryLimit)
	cwd := ResolveCwd(cfg)

	args := []string{"exec", "--json"}
	if cfg.Model != "" {
		args = append(args, "-m", cfg.Model)
	}
	if profile := strings.TrimSpace(cfg.CLIOptions.Profile); profile != "" {
		args = append(args, "-p", profile)
	}
	if cfg.YoloMode {
		args = append(args, flagBypass)
	} else {
		args = append(args,
			"-s", NormalizeSandbox(cfg.CLIOptions.Sandbox),
			"-a", NormalizeApprovalPolicy(cfg.CLIOptions.ApprovalPolicy),
		)
	}
	if cfg.CLIOptions.EnableWebSearch {
		args = append(args, "--search")
	}
	args = append(args, "-C", cwd)
	if cfg.CLIOptions.SkipGitRepoCheck {
		args = append(args, "--skip-git-repo-check")
	}
	args = append(args, ParseExtraArgs(cfg.CLIOptions.ExtraArgs)...)
	if opts.PromptViaStdin {
		args = append(args, StdinPromptSentinel)
	} else {
		args = append(args, full)
	}

	return ExecArgs{FullPrompt: full, Cwd: cwd, Args: args}
}

// BuildPrompt prefixes prompt with a transcript of the last limit messages.
func BuildPrompt(prompt string, history []HistoryMessage, limit int) string {
	if len(history) == 0 {
		return prompt
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	lines := make([]string, 0, len(history))
	for _, m := range history {
		prefix := "User"
		if m.Role == "assistant" {
			prefix = "Assistant"
		}
		lines = append(lines, prefix+": "+m.Content)
	}
	return "[Previous conversation]\n" + strings.Join(lines, "\n") + "\n\n[Current question]\n" + prompt
}

// ResolveCwd picks the working directory: a non-blank override wins over the
// workspace cwd, and a leading ~ is expanded.
func ResolveCwd(cfg RuntimeConfig) string {
	cwd := cfg.Cwd
	if strings.TrimSpace(cfg.CLIOptions.CwdOverride) != "" {
		cwd = strings.TrimSpace(cfg.CLIOptions.CwdOverride)
	}
	return ExpandTildePath(cwd)
}

// NormalizeSandbox maps unknown sandbox modes to workspace-write.
func NormalizeSandbox(s string) string {
	switch s {
	case "read-only", "danger-full-access":
		return s
	default:
		return "workspace-write"
	}
}

// NormalizeApprovalPolicy maps unknown approval policies to on-request.
func NormalizeApprovalPolicy(s string) string {
	switch s {
	case "untrusted", "on-failure", "never":
		return s
	default:
		return "on-request"
	}
}

// ParseExtraArgs splits raw on whitespace, keeping single- or double-quoted
// runs together and dropping the quote characters.
func ParseExtraArgs(raw string) []string {
	var (
		args    []string
		current strings.Builder
		quote   rune
	)
	for _, r := range raw {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
		case unicode.IsSpace(r):
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

// HomeDir resolves the user's home directory, preferring USERPROFILE then HOME.
func HomeDir() (string, bool) {
	for _, key := range []string{"USERPROFILE", "HOME"} {
		if v := os.Getenv(key); v != "" {
			return v, true
		}
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return h, true
	}
	return "", false
}

// ExpandTildePath expands "~", "~/x" and "~\x". Other paths are returned unchanged.
func ExpandTildePath(path string) string {
	if path == "~" {
		if home, ok := HomeDir(); ok {
			return home
		}
		return path
	}
	rest, found := strings.CutPrefix(path, "~/")
	if !found {
		rest, found = strings.CutPrefix(path, `~\`)
	}
	if !found {
		return path
	}
	home, ok := HomeDir()
	if !ok {
		return path
	}
	// Joined by hand: the remainder is kept as written, not cleaned.
	return home + string(os.PathSeparator) + rest
}
