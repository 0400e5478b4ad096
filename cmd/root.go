package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/codexwui/internal/app"
	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/config"
	"github.com/zjrosen/codexwui/internal/log"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text in input fields.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

// localConfigPath is preferred over the user config when it exists.
const localConfigPath = ".codexwui/config.yaml"

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "codexwui",
	Short: "A terminal and HTTP front-end for the codex CLI",
	Long: `codexwui hosts the codex CLI: it launches one codex process per
conversation, turns its JSON event stream into chat updates, and relays
approval prompts back to the process.

Run without a subcommand to open the chat TUI in the current directory.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	Args:          cobra.NoArgs,
	RunE:          runChat,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/codexwui/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write a debug log (also enabled by CODEXWUI_DEBUG)")
	rootCmd.PersistentFlags().String("model", "", "codex model for this session")
	rootCmd.PersistentFlags().String("cwd", "", "working directory codex runs in")
	rootCmd.PersistentFlags().Bool("yolo", false, "bypass approvals and sandboxing")

	_ = viper.BindPFlag("codex.model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("codex.cwd", rootCmd.PersistentFlags().Lookup("cwd"))
	_ = viper.BindPFlag("codex.yolo", rootCmd.PersistentFlags().Lookup("yolo"))

	addChatFlags(rootCmd)
}

func setDefaults(v *viper.Viper) {
	d := config.Defaults()
	v.SetDefault("codex.binary", d.Codex.Binary)
	v.SetDefault("codex.mode", d.Codex.Mode)
	v.SetDefault("codex.yolo", d.Codex.Yolo)
	v.SetDefault("codex.model", d.Codex.Model)
	v.SetDefault("codex.sandbox", d.Codex.Sandbox)
	v.SetDefault("codex.approval_policy", d.Codex.ApprovalPolicy)
	v.SetDefault("codex.skip_git_repo_check", d.Codex.SkipGitRepoCheck)
	v.SetDefault("codex.enable_web_search", d.Codex.EnableWebSearch)
	v.SetDefault("codex.history_limit", d.Codex.HistoryLimit)
	v.SetDefault("codex.prompt_via_stdin", d.Codex.PromptViaStdin)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("api.addr", d.API.Addr)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}

func initConfig() {
	setDefaults(viper.GetViper())
	viper.SetEnvPrefix("CODEXWUI")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .codexwui/config.yaml (current directory)
		// 2. ~/.config/codexwui/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			viper.AddConfigPath(userConfigDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// First run: write the commented template to the user config.
			defaultPath := filepath.Join(userConfigDir(), "config.yaml")
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
		} else {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

func userConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "codexwui")
	}
	return filepath.Join(home, ".config", "codexwui")
}

// configPath is where runtime setting changes are written back.
func configPath() string {
	if p := viper.ConfigFileUsed(); p != "" {
		return p
	}
	return filepath.Join(userConfigDir(), "config.yaml")
}

// initLogging installs the debug log when --debug or CODEXWUI_DEBUG is set.
// The returned cleanup is always safe to call.
func initLogging(prefix string) (func(), error) {
	if !debugFlag && os.Getenv("CODEXWUI_DEBUG") == "" {
		return func() {}, nil
	}
	logPath := os.Getenv("CODEXWUI_LOG")
	if logPath == "" {
		logPath = codex.ExpandTildePath(cfg.Log.Path)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	cleanup, err := log.InitWithTeaLog(logPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	log.SetMinLevel(log.ParseLevel(cfg.Log.Level))
	log.Info(log.CatConfig, "codexwui starting", "version", version, "config", viper.ConfigFileUsed(), "logPath", logPath)
	return cleanup, nil
}

// openApp builds the shared services from the loaded config.
func openApp() (*app.App, error) {
	return app.New(cfg, configPath(), app.Options{})
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
