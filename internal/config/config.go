// Package config provides configuration types, defaults, and persistence for codexwui.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zjrosen/codexwui/internal/log"
)

// Sandbox modes accepted by `codex exec -s`.
var SandboxModes = []string{"read-only", "workspace-write", "danger-full-access"}

// ApprovalPolicies accepted by `codex exec -a`.
var ApprovalPolicies = []string{"untrusted", "on-failure", "on-request", "never"}

// Config holds all codexwui configuration.
type Config struct {
	Codex    CodexConfig     `mapstructure:"codex"`
	Database DatabaseConfig  `mapstructure:"database"`
	API      APIConfig       `mapstructure:"api"`
	Log      LogConfig       `mapstructure:"log"`
	Tracing  TracingConfig   `mapstructure:"tracing"`
	Teams    TeamsConfig     `mapstructure:"teams"`
	Flags    map[string]bool `mapstructure:"flags"`
}

// CodexConfig holds the persisted runtime settings for launching codex.
type CodexConfig struct {
	// Binary is the codex executable name or path.
	Binary string `mapstructure:"binary" yaml:"binary"`
	// Mode is a UI hint ("fast" or "plan"); it does not change the argv.
	Mode             string `mapstructure:"mode" yaml:"mode"`
	Yolo             bool   `mapstructure:"yolo" yaml:"yolo"`
	Model            string `mapstructure:"model" yaml:"model"`
	Cwd              string `mapstructure:"cwd" yaml:"cwd,omitempty"`
	Profile          string `mapstructure:"profile" yaml:"profile,omitempty"`
	Sandbox          string `mapstructure:"sandbox" yaml:"sandbox"`
	ApprovalPolicy   string `mapstructure:"approval_policy" yaml:"approval_policy"`
	SkipGitRepoCheck bool   `mapstructure:"skip_git_repo_check" yaml:"skip_git_repo_check"`
	CwdOverride      string `mapstructure:"cwd_override" yaml:"cwd_override,omitempty"`
	ExtraArgs        string `mapstructure:"extra_args" yaml:"extra_args,omitempty"`
	EnableWebSearch  bool   `mapstructure:"enable_web_search" yaml:"enable_web_search"`
	// HistoryLimit is how many prior messages are replayed into each prompt.
	HistoryLimit int `mapstructure:"history_limit" yaml:"history_limit"`
	// PromptViaStdin sends the prompt on stdin ("-") instead of argv.
	// Approval responses cannot be written back in this mode.
	PromptViaStdin bool `mapstructure:"prompt_via_stdin" yaml:"prompt_via_stdin"`
}

// DatabaseConfig configures the conversation history store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// APIConfig configures the local HTTP bridge.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures the debug log.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

// TracingConfig configures distributed tracing for codex turns.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	FilePath     string  `mapstructure:"file_path"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// TeamsConfig configures conversation export to a Microsoft Teams channel.
type TeamsConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// DataDir returns ~/.codex-wui, the directory holding the history database.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codex-wui"
	}
	return filepath.Join(home, ".codex-wui")
}

// DefaultDatabasePath returns the default SQLite history path.
func DefaultDatabasePath() string {
	return filepath.Join(DataDir(), "state.sqlite3")
}

// DefaultTracesFilePath returns the default path for trace JSONL output.
func DefaultTracesFilePath() string {
	return filepath.Join(DataDir(), "traces", "traces.jsonl")
}

// DefaultLogPath returns the default debug log path.
func DefaultLogPath() string {
	return filepath.Join(DataDir(), "debug.log")
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Codex: CodexConfig{
			Binary:           "codex",
			Mode:             "fast",
			Sandbox:          "workspace-write",
			ApprovalPolicy:   "on-request",
			SkipGitRepoCheck: true,
			HistoryLimit:     10,
		},
		Database: DatabaseConfig{Path: DefaultDatabasePath()},
		API:      APIConfig{Addr: "127.0.0.1:8765"},
		Log:      LogConfig{Path: DefaultLogPath(), Level: "debug"},
		Tracing: TracingConfig{
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Flags: map[string]bool{},
	}
}

// Validate checks the whole configuration.
func Validate(cfg Config) error {
	if err := ValidateCodex(cfg.Codex); err != nil {
		return err
	}
	if err := ValidateTracing(cfg.Tracing); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Database.Path) == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// ValidateCodex checks codex launch settings. Empty values fall back to defaults.
func ValidateCodex(c CodexConfig) error {
	if c.Sandbox != "" && !contains(SandboxModes, c.Sandbox) {
		return fmt.Errorf("codex.sandbox must be one of %s, got %q", strings.Join(SandboxModes, ", "), c.Sandbox)
	}
	if c.ApprovalPolicy != "" && !contains(ApprovalPolicies, c.ApprovalPolicy) {
		return fmt.Errorf("codex.approval_policy must be one of %s, got %q", strings.Join(ApprovalPolicies, ", "), c.ApprovalPolicy)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("codex.history_limit must be >= 0, got %d", c.HistoryLimit)
	}
	if c.Mode != "" && c.Mode != "fast" && c.Mode != "plan" {
		return fmt.Errorf("codex.mode must be \"fast\" or \"plan\", got %q", c.Mode)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// DefaultConfigTemplate returns the commented YAML written on first run.
func DefaultConfigTemplate() string {
	return `# codexwui configuration

codex:
  # Executable name or absolute path of the codex CLI.
  binary: codex
  # "fast" or "plan"
  mode: fast
  # Bypass approvals and sandboxing entirely.
  yolo: false
  # Empty uses the CLI's default model.
  model: ""
  # read-only | workspace-write | danger-full-access
  sandbox: workspace-write
  # untrusted | on-failure | on-request | never
  approval_policy: on-request
  skip_git_repo_check: true
  enable_web_search: false
  # Prior messages replayed into each prompt.
  history_limit: 10
  # profile: work
  # cwd_override: ~/src/project
  # extra_args: --add-dir /tmp "quoted value"

database:
  path: ~/.codex-wui/state.sqlite3

api:
  addr: 127.0.0.1:8765

log:
  level: debug

# teams:
#   webhook_url: https://example.webhook.office.com/...

# Tracing for codex turns (disabled by default)
# tracing:
#   enabled: true
#   exporter: file
#   file_path: ~/.codex-wui/traces/traces.jsonl
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1

flags:
  persist-history: true
  auth-watch: true
  legacy-events: true
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
