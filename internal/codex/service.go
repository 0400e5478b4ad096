package codex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/codexwui/internal/log"
	"github.com/zjrosen/codexwui/internal/tracing"
)

// stderrTailLines bounds the stderr excerpt attached to a failed turn.
const stderrTailLines = 20

// SubmitRequest starts one turn.
type SubmitRequest struct {
	ConversationID string
	Prompt         string
	// History is the prior transcript, oldest first. Only the tail is used.
	History []HistoryMessage
}

// Service owns the runtime settings, the process registry and the approval
// broker. It is the single coordinator behind every UI surface.
type Service struct {
	mu      sync.RWMutex
	runtime RuntimeConfig

	binary         string
	historyLimit   int
	promptViaStdin bool
	legacyEvents   bool
	env            func() []string
	commandFactory CommandFactoryFunc
	tracer         trace.Tracer
	onSettings     func(RuntimeConfig)
	onTurn         func(cid string)

	// launchMu serializes Submit and Cancel so teardown and spawn of one
	// conversation never interleave.
	launchMu sync.Mutex
	// ownMu makes "is this process still registered" and the approval map
	// change together.
	ownMu sync.Mutex
	// routeMu is read-held while a stdout line is checked and routed.
	// teardown write-locks it once so no line of the removed process is
	// still in flight when it returns.
	routeMu sync.RWMutex

	registry  *Registry
	approvals *ApprovalBroker
	sink      Sink
}

// Option configures a Service.
type Option func(*Service)

// WithBinary sets the codex executable. Defaults to "codex".
func WithBinary(binary string) Option {
	return func(s *Service) {
		if binary != "" {
			s.binary = binary
		}
	}
}

// WithTracer sets the tracer used for turn spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithCommandFactory substitutes exec.CommandContext.
func WithCommandFactory(fn CommandFactoryFunc) Option {
	return func(s *Service) { s.commandFactory = fn }
}

// WithHistoryLimit sets how many history messages are replayed.
func WithHistoryLimit(n int) Option {
	return func(s *Service) { s.historyLimit = n }
}

// WithPromptViaStdin passes the prompt on stdin instead of argv.
func WithPromptViaStdin(enabled bool) Option {
	return func(s *Service) { s.promptViaStdin = enabled }
}

// WithLegacyEvents toggles the flat message event handling of each router.
func WithLegacyEvents(enabled bool) Option {
	return func(s *Service) { s.legacyEvents = enabled }
}

// WithSettingsHook is called with the new snapshot after every settings change.
func WithSettingsHook(fn func(RuntimeConfig)) Option {
	return func(s *Service) { s.onSettings = fn }
}

// WithTurnHook is called by Submit with the conversation id once any
// previous process is gone and before the new one starts. Nothing from the
// old process is emitted after the hook runs.
func WithTurnHook(fn func(cid string)) Option {
	return func(s *Service) { s.onTurn = fn }
}

// WithEnv replaces the spawn environment provider.
func WithEnv(fn func() []string) Option {
	return func(s *Service) { s.env = fn }
}

// NewService creates a coordinator that reports to sink.
func NewService(runtime RuntimeConfig, sink Sink, opts ...Option) *Service {
	s := &Service{
		runtime:      runtime,
		binary:       "codex",
		historyLimit: DefaultHistoryLimit,
		legacyEvents: true,
		env:          SpawnEnv,
		tracer:       noop.NewTracerProvider().Tracer("codex"),
		registry:     NewRegistry(),
		approvals:    NewApprovalBroker(),
		sink:         sink,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Binary returns the configured codex executable.
func (s *Service) Binary() string { return s.binary }

// Submit starts a turn for req.ConversationID, terminating any process the
// conversation already has. Launch failures are reported as a StreamError
// notification, not as a returned error.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) error {
	cid := req.ConversationID
	if strings.TrimSpace(cid) == "" {
		return ErrEmptyConversationID
	}

	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	if prev, ok := s.teardown(cid); ok {
		log.Info(log.CatRegistry, "Superseding running turn", "cid", cid, "pid", prev.Process.PID())
		if prev.span != nil {
			prev.span.AddEvent(tracing.EventSuperseded)
		}
	}
	if s.onTurn != nil {
		s.onTurn(cid)
	}

	cfg := s.RuntimeConfig()
	launch := BuildExecArgs(req.Prompt, req.History, cfg, LaunchOptions{
		HistoryLimit:   s.historyLimit,
		PromptViaStdin: s.promptViaStdin,
	})

	// The turn outlives the request that started it.
	spanCtx, span := s.tracer.Start(context.WithoutCancel(ctx), tracing.SpanTurn,
		trace.WithAttributes(
			attribute.String(tracing.AttrConversationID, cid),
			attribute.String(tracing.AttrModel, cfg.Model),
			attribute.String(tracing.AttrSandbox, NormalizeSandbox(cfg.CLIOptions.Sandbox)),
			attribute.String(tracing.AttrApprovalPolicy, NormalizeApprovalPolicy(cfg.CLIOptions.ApprovalPolicy)),
			attribute.Bool(tracing.AttrYolo, cfg.YoloMode),
			attribute.String(tracing.AttrCwd, launch.Cwd),
		))

	router := NewRouter(s.sink, RouteLegacyEvents(s.legacyEvents))
	registered := make(chan struct{})
	var proc *Process

	builder := NewSpawnBuilder(spanCtx).
		WithExecutable(ResolveBinary(s.binary), launch.Args).
		WithWorkDir(launch.Cwd).
		WithEnv(s.env()).
		WithCommandFactory(s.commandFactory).
		WithStdout(func(line string) {
			<-registered
			if strings.TrimSpace(line) == "" {
				return
			}
			s.routeMu.RLock()
			defer s.routeMu.RUnlock()
			if !s.owns(cid, proc) {
				log.Debug(log.CatCodex, "dropping output of superseded process", "cid", cid)
				return
			}
			if approval := router.Route(cid, line); approval != nil {
				s.registerApproval(cid, proc, approval.RequestID)
				span.AddEvent(tracing.EventApprovalRequested,
					trace.WithAttributes(attribute.String(tracing.AttrRequestID, approval.RequestID)))
			}
		}).
		WithStderr(func(line string) {
			<-registered
			text := CleanProgressText(line)
			if text == "" || !s.owns(cid, proc) {
				return
			}
			s.sink.Notify(Progress{ConversationID: cid, Text: text})
		}).
		WithExitHandler(func(p *Process, info ExitInfo) {
			<-registered
			s.finish(cid, p, info, router, span)
		})
	if s.promptViaStdin {
		builder = builder.WithStdinPrompt([]byte(launch.FullPrompt))
	}

	p, err := builder.Build()
	if err != nil {
		log.ErrorErr(log.CatCodex, "Failed to start codex", err, "cid", cid, "binary", s.binary)
		span.RecordError(err)
		span.SetStatus(codes.Error, "spawn failed")
		span.End()
		s.sink.Notify(StreamError{ConversationID: cid, Message: fmt.Sprintf("Failed to start codex: %v", err)})
		return nil
	}

	proc = p
	s.registry.Put(&RunningProcess{ConversationID: cid, Process: p, StartedAt: time.Now(), span: span})
	span.AddEvent(tracing.EventSpawned, trace.WithAttributes(attribute.Int(tracing.AttrProcessPID, p.PID())))
	close(registered)

	log.Info(log.CatCodex, "Turn started", "cid", cid, "pid", p.PID(), "model", cfg.Model, "yolo", cfg.YoloMode)
	return nil
}

// Cancel kills the conversation's process. It reports whether one existed;
// only then is a cancelled StreamEnd emitted.
func (s *Service) Cancel(cid string) bool {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	rp, ok := s.teardown(cid)
	if !ok {
		return false
	}
	log.Info(log.CatRegistry, "Turn cancelled", "cid", cid, "pid", rp.Process.PID())
	s.sink.Notify(StreamEnd{ConversationID: cid, Cancelled: true})
	return true
}

// teardown removes cid's process, clears its approvals and kills it.
func (s *Service) teardown(cid string) (*RunningProcess, bool) {
	s.ownMu.Lock()
	rp, ok := s.registry.Remove(cid)
	cleared := s.approvals.ClearConversation(cid)
	s.ownMu.Unlock()

	if cleared > 0 {
		log.Debug(log.CatApproval, "Cleared pending approvals", "cid", cid, "count", cleared)
	}
	if !ok {
		return nil, false
	}
	rp.Process.Kill()
	s.routeMu.Lock() //nolint:staticcheck // SA2001: waits out in-flight lines
	s.routeMu.Unlock()
	return rp, true
}

func (s *Service) owns(cid string, p *Process) bool {
	rp, ok := s.registry.Get(cid)
	return ok && rp.Process == p
}

func (s *Service) registerApproval(cid string, p *Process, requestID string) {
	s.ownMu.Lock()
	defer s.ownMu.Unlock()
	if !s.owns(cid, p) {
		return
	}
	s.approvals.Register(requestID, cid)
	log.Debug(log.CatApproval, "Approval requested", "cid", cid, "request", requestID)
}

// finish runs once per process after its output is drained. Only the
// caller that removes the registry entry notifies, so a superseded or
// cancelled process ends silently.
func (s *Service) finish(cid string, p *Process, info ExitInfo, router *Router, span trace.Span) {
	defer span.End()
	span.SetAttributes(
		attribute.Int(tracing.AttrEventCount, router.Events()),
		attribute.Bool(tracing.AttrCancelled, info.Cancelled),
	)
	if info.ExitCode != nil {
		span.SetAttributes(attribute.Int(tracing.AttrProcessExitCode, *info.ExitCode))
	}

	s.ownMu.Lock()
	removed := s.registry.RemoveIf(cid, p)
	if removed {
		s.approvals.ClearConversation(cid)
	}
	s.ownMu.Unlock()

	if !removed {
		log.Debug(log.CatRegistry, "Exited process no longer registered", "cid", cid, "pid", p.PID())
		return
	}

	if info.ExitCode == nil || *info.ExitCode == 0 {
		span.SetStatus(codes.Ok, "")
		log.Info(log.CatCodex, "Turn finished", "cid", cid, "events", router.Events())
		s.sink.Notify(StreamEnd{ConversationID: cid, ExitCode: info.ExitCode})
		return
	}

	msg := fmt.Sprintf("Codex exited with code %d", *info.ExitCode)
	if tail := stderrTail(info.Stderr); tail != "" {
		msg += "\n" + tail
	}
	span.SetStatus(codes.Error, msg)
	log.Warn(log.CatCodex, "Turn failed", "cid", cid, "exitCode", *info.ExitCode)
	s.sink.Notify(StreamError{ConversationID: cid, Message: msg, ExitCode: info.ExitCode})
}

func stderrTail(lines []string) string {
	var kept []string
	for _, l := range lines {
		if t := CleanProgressText(l); t != "" {
			kept = append(kept, t)
		}
	}
	if len(kept) > stderrTailLines {
		kept = kept[len(kept)-stderrTailLines:]
	}
	return strings.Join(kept, "\n")
}

type approvalResponse struct {
	RequestID string `json:"request_id"`
	Approved  bool   `json:"approved"`
}

// RespondToApproval answers a pending request. Each request can be answered
// once; a second answer returns ErrApprovalNotFound.
func (s *Service) RespondToApproval(requestID string, approved bool) error {
	cid, ok := s.approvals.Take(requestID)
	if !ok {
		return ErrApprovalNotFound
	}
	rp, ok := s.registry.Get(cid)
	if !ok {
		return ErrProcessNotRunning
	}

	payload, err := json.Marshal(approvalResponse{RequestID: requestID, Approved: approved})
	if err != nil {
		return fmt.Errorf("encoding approval response: %w", err)
	}
	if err := rp.Process.WriteLine(payload); err != nil {
		log.ErrorErr(log.CatApproval, "Failed to answer approval", err, "cid", cid, "request", requestID)
		return err
	}
	if rp.span != nil {
		rp.span.AddEvent(tracing.EventApprovalAnswered, trace.WithAttributes(
			attribute.String(tracing.AttrRequestID, requestID),
			attribute.Bool(tracing.AttrApproved, approved),
		))
	}
	log.Info(log.CatApproval, "Approval answered", "cid", cid, "request", requestID, "approved", approved)
	return nil
}

// PendingApprovals returns the outstanding request ids of cid.
func (s *Service) PendingApprovals(cid string) []string {
	return s.approvals.Pending(cid)
}

// Running returns the conversation ids with a live process.
func (s *Service) Running() []string {
	return s.registry.IDs()
}

// IsRunning reports whether cid has a live process.
func (s *Service) IsRunning(cid string) bool {
	_, ok := s.registry.Get(cid)
	return ok
}

// Shutdown kills every live process and waits for them to exit or ctx to end.
// No notifications are emitted for the killed turns.
func (s *Service) Shutdown(ctx context.Context) error {
	s.launchMu.Lock()
	s.ownMu.Lock()
	procs := s.registry.Drain()
	for _, rp := range procs {
		s.approvals.ClearConversation(rp.ConversationID)
	}
	s.ownMu.Unlock()
	s.launchMu.Unlock()

	for _, rp := range procs {
		rp.Process.Kill()
	}
	for _, rp := range procs {
		select {
		case <-rp.Process.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for codex processes: %w", ctx.Err())
		}
	}
	if len(procs) > 0 {
		log.Info(log.CatRegistry, "Stopped running turns", "count", len(procs))
	}
	return nil
}

// RuntimeConfig returns a snapshot of the current settings.
func (s *Service) RuntimeConfig() RuntimeConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runtime
}

// Mode returns the UI mode.
func (s *Service) Mode() string { return s.RuntimeConfig().Mode }

// YoloMode reports whether approvals and sandboxing are bypassed.
func (s *Service) YoloMode() bool { return s.RuntimeConfig().YoloMode }

// Model returns the model override, empty for the CLI default.
func (s *Service) Model() string { return s.RuntimeConfig().Model }

// CLIOptions returns the current exec flags.
func (s *Service) CLIOptions() CLIOptions { return s.RuntimeConfig().CLIOptions }

// SetMode sets the UI mode ("fast" or "plan").
func (s *Service) SetMode(mode string) error {
	if mode != "fast" && mode != "plan" {
		return fmt.Errorf("invalid mode %q", mode)
	}
	s.update(func(c *RuntimeConfig) { c.Mode = mode })
	return nil
}

// SetYoloMode toggles the bypass flag for future launches.
func (s *Service) SetYoloMode(enabled bool) {
	s.update(func(c *RuntimeConfig) { c.YoloMode = enabled })
}

// SetModel sets the model for future launches.
func (s *Service) SetModel(model string) {
	s.update(func(c *RuntimeConfig) { c.Model = strings.TrimSpace(model) })
}

// SetCLIOptions merges patch into the current options and returns the result.
func (s *Service) SetCLIOptions(patch CLIOptionsPatch) CLIOptions {
	var out CLIOptions
	s.update(func(c *RuntimeConfig) {
		c.CLIOptions = c.CLIOptions.Apply(patch)
		out = c.CLIOptions
	})
	return out
}

// SwitchWorkspace sets the working directory used when no override is set.
func (s *Service) SwitchWorkspace(cwd string) error {
	cwd = strings.TrimSpace(cwd)
	if cwd == "" {
		return errors.New("workspace path is required")
	}
	expanded := ExpandTildePath(cwd)
	s.update(func(c *RuntimeConfig) { c.Cwd = expanded })
	log.Info(log.CatCodex, "Switched workspace", "cwd", expanded)
	return nil
}

func (s *Service) update(fn func(*RuntimeConfig)) {
	s.mu.Lock()
	fn(&s.runtime)
	snapshot := s.runtime
	s.mu.Unlock()

	if s.onSettings != nil {
		s.onSettings(snapshot)
	}
}
