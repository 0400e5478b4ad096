// Package app wires the codexwui services together. Every front-end (the
// HTTP bridge, the chat TUI and the one-shot run command) is built on one
// App so they share the same coordinator, store and event brokers.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/codexwui/internal/api"
	"github.com/zjrosen/codexwui/internal/auth"
	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/config"
	"github.com/zjrosen/codexwui/internal/flags"
	"github.com/zjrosen/codexwui/internal/fsops"
	"github.com/zjrosen/codexwui/internal/history"
	"github.com/zjrosen/codexwui/internal/infrastructure/sqlite"
	"github.com/zjrosen/codexwui/internal/log"
	"github.com/zjrosen/codexwui/internal/pubsub"
	"github.com/zjrosen/codexwui/internal/shell"
	"github.com/zjrosen/codexwui/internal/teams"
	"github.com/zjrosen/codexwui/internal/tracing"
)

// App holds the long-lived services.
type App struct {
	Config     config.Config
	ConfigPath string
	Flags      *flags.Registry

	Notifications *pubsub.Broker[codex.Notification]
	ShellEvents   *pubsub.Broker[shell.Event]

	Codex    *codex.Service
	Store    history.Store
	Recorder *history.Recorder
	Auth     *auth.Service
	Shell    *shell.Runner
	Files    *fsops.Service
	Teams    *teams.Client

	db      *sqlite.DB
	tracing *tracing.Provider
	ctx     context.Context
	cancel  context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// Options tweaks New for tests and for commands that need less.
type Options struct {
	// CommandFactory substitutes exec.CommandContext for codex children.
	CommandFactory codex.CommandFactoryFunc
	// SkipAuthWatch disables the credentials file watcher.
	SkipAuthWatch bool
}

// New opens the store and builds every service. Close releases them.
func New(cfg config.Config, configPath string, opts Options) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		Config:        cfg,
		ConfigPath:    configPath,
		Flags:         flags.New(cfg.Flags),
		Notifications: pubsub.NewBrokerWithBuffer[codex.Notification](256),
		ShellEvents:   pubsub.NewBroker[shell.Event](),
		ctx:           ctx,
		cancel:        cancel,
	}

	db, err := sqlite.NewDB(codex.ExpandTildePath(cfg.Database.Path))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	a.db = db
	a.Store = db.HistoryStore()

	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		FilePath:     codex.ExpandTildePath(cfg.Tracing.FilePath),
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		_ = db.Close()
		cancel()
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}
	a.tracing = tp

	codexOpts := []codex.Option{
		codex.WithBinary(cfg.Codex.Binary),
		codex.WithTracer(tp.Tracer()),
		codex.WithHistoryLimit(cfg.Codex.HistoryLimit),
		codex.WithPromptViaStdin(cfg.Codex.PromptViaStdin),
		codex.WithLegacyEvents(a.Flags.Enabled(flags.FlagLegacyEvents)),
		codex.WithSettingsHook(a.saveSettings),
	}
	if opts.CommandFactory != nil {
		codexOpts = append(codexOpts, codex.WithCommandFactory(opts.CommandFactory))
	}
	// The recorder sits in front of the broker so it sees every
	// notification in order, whatever the subscribers drop.
	var sink codex.Sink = codex.BrokerSink{Broker: a.Notifications}
	if a.Flags.Enabled(flags.FlagPersistHistory) {
		a.Recorder = history.NewRecorder(a.Store)
		sink = codex.MultiSink{a.Recorder, sink}
		codexOpts = append(codexOpts, codex.WithTurnHook(a.Recorder.Begin))
	}
	a.Codex = codex.NewService(RuntimeFromConfig(cfg.Codex), sink, codexOpts...)

	authOpts := []auth.Option{auth.WithBinary(cfg.Codex.Binary)}
	if opts.CommandFactory != nil {
		authOpts = append(authOpts, auth.WithCommandFactory(opts.CommandFactory))
	}
	a.Auth = auth.NewService(authOpts...)
	if !opts.SkipAuthWatch && a.Flags.Enabled(flags.FlagAuthWatch) {
		// The watcher is optional; a missing ~/.codex just disables it.
		if err := a.Auth.Watch(ctx); err != nil {
			log.Warn(log.CatAuth, "Credentials watcher disabled", "error", err)
		}
	}

	a.Shell = shell.NewRunner(
		shell.SinkFunc(func(e shell.Event) { a.ShellEvents.Publish(pubsub.NotifyEvent, e) }),
		shell.WithDefaultCwd(func() string { return codex.ResolveCwd(a.Codex.RuntimeConfig()) }),
	)
	a.Files = fsops.NewService()
	a.Teams = teams.NewClient(nil)

	log.Info(log.CatConfig, "codexwui services ready",
		"db", cfg.Database.Path, "binary", a.Codex.Binary(), "tracing", tp.Enabled())
	return a, nil
}

// Handler builds the HTTP API over the app's services.
func (a *App) Handler() *api.Handler {
	cfg := api.HandlerConfig{
		Codex:         a.Codex,
		Store:         a.Store,
		Auth:          a.Auth,
		Shell:         a.Shell,
		Files:         a.Files,
		Teams:         a.Teams,
		Notifications: a.Notifications,
		ShellEvents:   a.ShellEvents,
		Persist:       a.Recorder != nil,
		HistoryLimit:  a.Config.Codex.HistoryLimit,
		TeamsWebhook:  a.Config.Teams.WebhookURL,
	}
	return api.NewHandler(cfg)
}

// Context is cancelled by Close.
func (a *App) Context() context.Context { return a.ctx }

// Close stops running turns and terminals and releases the store and the
// tracer. Subscriptions derived from Context are cancelled first so no
// publisher waits on them. Shutdown returns only after the last
// notification of every turn went through the recorder, so its messages
// are stored before the database closes. Later calls return the first
// result.
func (a *App) Close() error {
	a.closeOnce.Do(func() { a.closeErr = a.close() })
	return a.closeErr
}

func (a *App) close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.cancel()
	var errs []error
	if err := a.Codex.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if a.Recorder != nil {
		a.Recorder.Flush(shutdownCtx)
	}
	a.Shell.Close()
	a.Notifications.Close()
	a.ShellEvents.Close()

	if err := a.tracing.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down tracing: %w", err))
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}

// saveSettings writes runtime changes back to the config file so the next
// start uses them.
func (a *App) saveSettings(rc codex.RuntimeConfig) {
	if a.ConfigPath == "" {
		return
	}
	cc := CodexConfigFromRuntime(a.Config.Codex, rc)
	if err := config.SaveCodex(a.ConfigPath, cc); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to persist runtime settings", err)
	}
}

// RuntimeFromConfig builds the initial runtime settings. An empty cwd falls
// back to the process working directory.
func RuntimeFromConfig(c config.CodexConfig) codex.RuntimeConfig {
	rc := codex.DefaultRuntimeConfig()
	if c.Mode != "" {
		rc.Mode = c.Mode
	}
	rc.YoloMode = c.Yolo
	rc.Model = strings.TrimSpace(c.Model)
	if strings.TrimSpace(c.Cwd) != "" {
		rc.Cwd = codex.ExpandTildePath(strings.TrimSpace(c.Cwd))
	}
	rc.CLIOptions = codex.CLIOptions{
		Profile:          c.Profile,
		Sandbox:          codex.NormalizeSandbox(c.Sandbox),
		ApprovalPolicy:   codex.NormalizeApprovalPolicy(c.ApprovalPolicy),
		SkipGitRepoCheck: c.SkipGitRepoCheck,
		CwdOverride:      c.CwdOverride,
		ExtraArgs:        c.ExtraArgs,
		EnableWebSearch:  c.EnableWebSearch,
	}
	return rc
}

// CodexConfigFromRuntime folds rc into base, keeping the fields that only
// exist in the file (binary, history limit, prompt mode).
func CodexConfigFromRuntime(base config.CodexConfig, rc codex.RuntimeConfig) config.CodexConfig {
	base.Mode = rc.Mode
	base.Yolo = rc.YoloMode
	base.Model = rc.Model
	if wd, err := os.Getwd(); err != nil || wd != rc.Cwd {
		base.Cwd = rc.Cwd
	}
	base.Profile = rc.CLIOptions.Profile
	base.Sandbox = rc.CLIOptions.Sandbox
	base.ApprovalPolicy = rc.CLIOptions.ApprovalPolicy
	base.SkipGitRepoCheck = rc.CLIOptions.SkipGitRepoCheck
	base.CwdOverride = rc.CLIOptions.CwdOverride
	base.ExtraArgs = rc.CLIOptions.ExtraArgs
	base.EnableWebSearch = rc.CLIOptions.EnableWebSearch
	return base
}
