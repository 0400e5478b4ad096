package codex

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func baseConfig() RuntimeConfig {
	return RuntimeConfig{
		Mode: "fast",
		Cwd:  "/work",
		CLIOptions: CLIOptions{
			Sandbox:          "workspace-write",
			ApprovalPolicy:   "on-request",
			SkipGitRepoCheck: true,
		},
	}
}

func TestBuildExecArgs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RuntimeConfig)
		opts   LaunchOptions
		want   []string
	}{
		{
			name: "defaults",
			want: []string{"exec", "--json", "-s", "workspace-write", "-a", "on-request", "-C", "/work", "--skip-git-repo-check", "fix it"},
		},
		{
			name: "model profile and search",
			mutate: func(c *RuntimeConfig) {
				c.Model = "o3"
				c.CLIOptions.Profile = " work "
				c.CLIOptions.EnableWebSearch = true
				c.CLIOptions.SkipGitRepoCheck = false
			},
			want: []string{"exec", "--json", "-m", "o3", "-p", "work", "-s", "workspace-write", "-a", "on-request", "--search", "-C", "/work", "fix it"},
		},
		{
			name:   "yolo replaces sandbox and approval flags",
			mutate: func(c *RuntimeConfig) { c.YoloMode = true },
			want:   []string{"exec", "--json", flagBypass, "-C", "/work", "--skip-git-repo-check", "fix it"},
		},
		{
			name: "unknown sandbox and policy fall back",
			mutate: func(c *RuntimeConfig) {
				c.CLIOptions.Sandbox = "everything"
				c.CLIOptions.ApprovalPolicy = "sometimes"
			},
			want: []string{"exec", "--json", "-s", "workspace-write", "-a", "on-request", "-C", "/work", "--skip-git-repo-check", "fix it"},
		},
		{
			name: "override and extra args",
			mutate: func(c *RuntimeConfig) {
				c.CLIOptions.CwdOverride = "  /other "
				c.CLIOptions.ExtraArgs = `--add-dir /tmp -c 'a b'`
				c.CLIOptions.ApprovalPolicy = "never"
				c.CLIOptions.Sandbox = "read-only"
			},
			want: []string{"exec", "--json", "-s", "read-only", "-a", "never", "-C", "/other", "--skip-git-repo-check", "--add-dir", "/tmp", "-c", "a b", "fix it"},
		},
		{
			name: "prompt via stdin",
			opts: LaunchOptions{PromptViaStdin: true},
			want: []string{"exec", "--json", "-s", "workspace-write", "-a", "on-request", "-C", "/work", "--skip-git-repo-check", "-"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			got := BuildExecArgs("fix it", nil, cfg, tt.opts)
			require.Equal(t, tt.want, got.Args)
			require.Equal(t, "fix it", got.FullPrompt)
		})
	}
}

func TestBuildExecArgs_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := RuntimeConfig{
			YoloMode: rapid.Bool().Draw(t, "yolo"),
			Model:    rapid.SampledFrom([]string{"", "o3", "gpt-4.1"}).Draw(t, "model"),
			Cwd:      "/w",
			CLIOptions: CLIOptions{
				Sandbox:          rapid.String().Draw(t, "sandbox"),
				ApprovalPolicy:   rapid.String().Draw(t, "policy"),
				SkipGitRepoCheck: rapid.Bool().Draw(t, "skip"),
				EnableWebSearch:  rapid.Bool().Draw(t, "search"),
			},
		}
		prompt := rapid.StringMatching(`[a-z ]{1,20}`).Draw(t, "prompt")
		args := BuildExecArgs(prompt, nil, cfg, LaunchOptions{}).Args

		if !slices.Equal(args[:2], []string{"exec", "--json"}) {
			t.Fatalf("args must start with exec --json: %v", args)
		}
		if args[len(args)-1] != prompt {
			t.Fatalf("prompt must be last: %v", args)
		}
		hasBypass := slices.Contains(args, flagBypass)
		hasSandbox := slices.Contains(args, "-s")
		hasPolicy := slices.Contains(args, "-a")
		if cfg.YoloMode != hasBypass {
			t.Fatalf("bypass flag present=%v with yolo=%v", hasBypass, cfg.YoloMode)
		}
		if cfg.YoloMode && (hasSandbox || hasPolicy) {
			t.Fatalf("yolo must not pass -s or -a: %v", args)
		}
		if !cfg.YoloMode {
			s := args[slices.Index(args, "-s")+1]
			a := args[slices.Index(args, "-a")+1]
			if s != NormalizeSandbox(s) || a != NormalizeApprovalPolicy(a) {
				t.Fatalf("invalid sandbox or policy: %s %s", s, a)
			}
		}
		c := slices.Index(args, "-C")
		if c < 0 || args[c+1] != "/w" {
			t.Fatalf("missing -C: %v", args)
		}
	})
}

func TestBuildPrompt(t *testing.T) {
	require.Equal(t, "hi", BuildPrompt("hi", nil, 10))

	history := []HistoryMessage{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
	}
	got := BuildPrompt("now", history, 2)
	require.Equal(t, "[Previous conversation]\nAssistant: two\nUser: three\n\n[Current question]\nnow", got)

	// Zero limit uses the default.
	require.Contains(t, BuildPrompt("now", history, 0), "User: one")
}

func TestParseExtraArgs(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"--a b", []string{"--a", "b"}},
		{`--add-dir "/tmp/my dir"  -c 'k=v w'`, []string{"--add-dir", "/tmp/my dir", "-c", "k=v w"}},
		{`x"y z"w`, []string{"xy zw"}},
		{`"unterminated value`, []string{"unterminated value"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseExtraArgs(tt.raw), "raw=%q", tt.raw)
	}
}

func TestExpandTildePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("USERPROFILE", home)
	t.Setenv("HOME", "/ignored")

	require.Equal(t, home, ExpandTildePath("~"))
	sep := string(os.PathSeparator)
	require.Equal(t, home+sep+"src/app", ExpandTildePath("~/src/app"))
	require.Equal(t, home+sep+"x", ExpandTildePath(`~\x`))
	require.Equal(t, home+sep+"a/../b/", ExpandTildePath("~/a/../b/"), "remainder is not cleaned")
	require.Equal(t, home+sep, ExpandTildePath("~/"))
	require.Equal(t, "/abs/path", ExpandTildePath("/abs/path"))
	require.Equal(t, "~user/x", ExpandTildePath("~user/x"))
}

func TestResolveCwd(t *testing.T) {
	home := t.TempDir()
	t.Setenv("USERPROFILE", home)

	cfg := baseConfig()
	require.Equal(t, "/work", ResolveCwd(cfg))

	cfg.CLIOptions.CwdOverride = "   "
	require.Equal(t, "/work", ResolveCwd(cfg))

	cfg.CLIOptions.CwdOverride = "~/proj"
	require.Equal(t, filepath.Join(home, "proj"), ResolveCwd(cfg))
}
