// Package app wires all interviewcoach subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run (or RunHeadless) executes the session loop, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithDialer,
// WithControllerOptions, ...). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/MrWong99/interviewcoach/internal/aggregate"
	"github.com/MrWong99/interviewcoach/internal/analysis"
	"github.com/MrWong99/interviewcoach/internal/backend"
	"github.com/MrWong99/interviewcoach/internal/coach"
	"github.com/MrWong99/interviewcoach/internal/config"
	"github.com/MrWong99/interviewcoach/internal/health"
	"github.com/MrWong99/interviewcoach/internal/interview"
	"github.com/MrWong99/interviewcoach/internal/journal"
	"github.com/MrWong99/interviewcoach/internal/monitor"
	"github.com/MrWong99/interviewcoach/internal/observe"
	"github.com/MrWong99/interviewcoach/internal/resilience"
	"github.com/MrWong99/interviewcoach/internal/scoring"
	"github.com/MrWong99/interviewcoach/internal/transport"
	"github.com/MrWong99/interviewcoach/pkg/media"
	"github.com/MrWong99/interviewcoach/pkg/provider/face"
	"github.com/MrWong99/interviewcoach/pkg/provider/llm"
	"github.com/MrWong99/interviewcoach/pkg/provider/vad"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

// ErrTransportDegraded is reported by the transport readiness check while a
// recording runs on local analysis only.
var ErrTransportDegraded = errors.New("app: live transport disconnected, running locally")

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Media media.Device
	VAD   vad.Engine
	Face  face.Detector
	LLM   llm.Provider
}

// App owns all subsystem lifetimes for one interview client.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics    *observe.Metrics
	levelVar   *slog.LevelVar
	dial       interview.Dialer
	ctrlOpts   []interview.Option
	backend    *backend.Client
	journal    *journal.FileStore
	aggregator *aggregate.Aggregator
	analyzer   *analysis.Analyzer
	ctrl       *interview.Controller
	checkers   []health.Checker

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads adjust the log level of the default logger.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithDialer replaces the WebSocket transport dialer.
func WithDialer(d interview.Dialer) Option {
	return func(a *App) { a.dial = d }
}

// WithControllerOptions passes extra options to the interview controller.
func WithControllerOptions(opts ...interview.Option) Option {
	return func(a *App) { a.ctrlOpts = append(a.ctrlOpts, opts...) }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Media is required;
// every other provider is optional.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Media == nil {
		return nil, errors.New("app: a media provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Backend client ────────────────────────────────────────────────
	if err := a.initBackend(); err != nil {
		return nil, fmt.Errorf("app: init backend: %w", err)
	}

	// ── 2. Aggregator (+ optional coach) ─────────────────────────────────
	if err := a.initAggregator(); err != nil {
		return nil, fmt.Errorf("app: init aggregator: %w", err)
	}

	// ── 3. Face/expression analyzer ──────────────────────────────────────
	a.analyzer = analysis.New(ctx, providers.Face)
	slog.Info("face analysis ready", "mode", a.analyzer.Mode())

	// ── 4. Transport dialer ──────────────────────────────────────────────
	if a.dial == nil && cfg.Backend.WSURL != "" {
		a.dial = a.dialTransport
	}

	// ── 5. Interview controller ──────────────────────────────────────────
	if err := a.initController(); err != nil {
		return nil, fmt.Errorf("app: init controller: %w", err)
	}

	// ── 6. Health checks ─────────────────────────────────────────────────
	a.initHealth()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initBackend() error {
	opts := []backend.Option{
		backend.WithTimeout(a.cfg.Backend.Timeout),
		backend.WithMetrics(a.metrics),
	}
	if a.cfg.Backend.Token != "" {
		opts = append(opts, backend.WithToken(a.cfg.Backend.Token))
	}
	c, err := backend.New(a.cfg.Backend.APIURL, opts...)
	if err != nil {
		return err
	}
	a.backend = c
	return nil
}

func (a *App) initAggregator() error {
	opts := []aggregate.Option{
		aggregate.WithMinScore(a.cfg.Policy.MinReportedScore),
		aggregate.WithMetrics(a.metrics),
	}
	if a.providers.LLM != nil {
		fb := resilience.NewLLMFallback(a.providers.LLM, a.cfg.Providers.LLM.Name, resilience.FallbackConfig{})
		c, err := coach.New(fb)
		if err != nil {
			return err
		}
		opts = append(opts, aggregate.WithCoach(c))
		slog.Info("coaching notes enabled", "llm", a.cfg.Providers.LLM.Name, "model", fb.Model())
	}
	var sub aggregate.Submitter = a.backend
	if path := a.cfg.Interview.JournalFile; path != "" {
		a.journal = journal.NewFileStore(path)
		// The controller is built after the aggregator; the id is read per submit.
		sessionID := func() string {
			if a.ctrl == nil {
				return ""
			}
			return a.ctrl.SessionID()
		}
		sub = &journalingSubmitter{next: a.backend, store: a.journal, sessionID: sessionID}
	}
	a.aggregator = aggregate.New(sub, opts...)
	return nil
}

func (a *App) initController() error {
	static := make(interview.StaticSource, 0, len(a.cfg.Questions.Fallback))
	for _, q := range a.cfg.Questions.Fallback {
		static = append(static, types.Question{ID: q.ID, Text: q.Text, Category: q.Category})
	}

	deps := interview.Deps{
		Device:     media.NewPermissionGate(a.providers.Media),
		VAD:        a.providers.VAD,
		Analyzer:   a.analyzer,
		Questions:  interview.NewQuestionSources(a.backend, static, resilience.FallbackConfig{}),
		Aggregator: a.aggregator,
		Dial:       a.dial,
	}
	opts := append([]interview.Option{interview.WithMetrics(a.metrics)}, a.ctrlOpts...)
	ctrl, err := interview.New(Settings(a.cfg), deps, opts...)
	if err != nil {
		return err
	}
	a.ctrl = ctrl
	return nil
}

func (a *App) initHealth() {
	a.checkers = []health.Checker{
		{Name: "backend", Check: a.backend.Ping},
		{
			Name:     "transport",
			Optional: true,
			Check: func(context.Context) error {
				if a.dial == nil || !a.ctrl.Recording() || a.ctrl.TransportConnected() {
					return nil
				}
				return ErrTransportDegraded
			},
		},
	}
}

// dialTransport opens the live WebSocket for sessionID. A failed dial returns
// a nil interface, not a typed nil *transport.Client.
func (a *App) dialTransport(ctx context.Context, sessionID string) (interview.Link, error) {
	p := a.cfg.Policy
	burst := max(int(p.OutboundRate/2), 1)
	c, err := transport.Dial(ctx, a.cfg.Backend.WSURL, sessionID, a.cfg.Interview.UserID,
		transport.WithRate(rate.Limit(p.OutboundRate), burst),
		transport.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the interview controller driven by the UI.
func (a *App) Controller() *interview.Controller { return a.ctrl }

// Backend returns the REST client, used by the history and resume commands.
func (a *App) Backend() *backend.Client { return a.backend }

// Journal returns the local session journal, or nil when none is configured.
func (a *App) Journal() *journal.FileStore { return a.journal }

// HealthCheckers returns the readiness checks for the debug server.
func (a *App) HealthCheckers() []health.Checker { return a.checkers }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run executes the interview loop until ctx is cancelled. The UI drives the
// session through [App.Controller].
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running", "type", a.cfg.Interview.Type, "analysis", a.analyzer.Mode())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.ctrl.Run(gctx) })
	return g.Wait()
}

// RunHeadless runs one session without a UI: recording starts as soon as a
// question is shown and questions advance on silence or the answer time
// limit. It returns the submitted payload once the session completes.
func (a *App) RunHeadless(ctx context.Context) (*types.SessionSubmission, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var result *types.SessionSubmission
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.ctrl.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		sub, err := a.drive(gctx)
		result = sub
		return err
	})
	err := g.Wait()
	return result, err
}

// maxSubmitRetries bounds headless resubmission attempts.
const maxSubmitRetries = 2

// drive reacts to controller views until the session ends.
func (a *App) drive(ctx context.Context) (*types.SessionSubmission, error) {
	var (
		started bool
		retries int
	)
	for {
		var v interview.View
		select {
		case <-ctx.Done():
			return nil, nil
		case v = <-a.ctrl.Updates():
		}

		switch v.Phase {
		case interview.PhaseNoQuestions:
			return nil, fmt.Errorf("app: %w", v.Err)
		case interview.PhaseReady:
			if started {
				continue
			}
			if err := a.ctrl.StartRecording(ctx); err != nil {
				return nil, fmt.Errorf("app: start recording: %w", err)
			}
			started = true
			slog.Info("headless session recording", "session_id", v.SessionID, "questions", v.TotalQuestions)
		case interview.PhaseRecording:
			if v.Alert {
				slog.Info("candidate silent", "question", v.QuestionIndex+1, "silence", v.Speech.SilenceDuration.Round(time.Second))
			}
		case interview.PhaseSubmitFailed:
			if retries >= maxSubmitRetries {
				return v.Submission, fmt.Errorf("app: submit session: %w", v.Err)
			}
			retries++
			slog.Warn("session submission failed, retrying", "attempt", retries, "err", v.Err)
			if err := a.ctrl.Submit(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("resubmit failed", "err", err)
			}
		case interview.PhaseCompleted:
			return v.Submission, nil
		}
	}
}

// ApplyConfig applies the hot-reloadable parts of a changed config file.
func (a *App) ApplyConfig(ctx context.Context, old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.PolicyChanged {
		if err := a.ctrl.UpdatePolicy(ctx, PolicyFromConfig(d.NewPolicy)); err != nil {
			slog.Warn("failed to apply policy change", "err", err)
		} else {
			slog.Info("policy updated; applies from the next question")
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		if _, pending := a.aggregator.Pending(); pending {
			slog.Warn("session ended with an unsubmitted payload")
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// AddCloser registers fn to run during Shutdown.
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// Settings converts the config into controller settings.
func Settings(cfg *config.Config) interview.Settings {
	p := cfg.Policy
	windowMs := int(p.SpeechInterval / time.Millisecond)
	return interview.Settings{
		Type: types.InterviewType(cfg.Interview.Type),
		Constraints: media.Constraints{
			Width:      cfg.Media.Width,
			Height:     cfg.Media.Height,
			FPS:        cfg.Media.FPS,
			SampleRate: cfg.Media.SampleRate,
			WindowMs:   windowMs,
		},
		VAD: vad.Config{
			SampleRate:      cfg.Media.SampleRate,
			FrameSizeMs:     windowMs,
			SpeechThreshold: p.SpeechThreshold,
		},
		Weights:         scoring.DefaultWeights(),
		Policy:          PolicyFromConfig(p),
		AnswerTimeLimit: cfg.Interview.AnswerTimeLimit,
	}
}

// PolicyFromConfig maps the policy block onto the controller policy.
func PolicyFromConfig(p config.PolicyConfig) interview.Policy {
	return interview.Policy{
		AnalysisInterval:   p.AnalysisInterval,
		SpeechInterval:     p.SpeechInterval,
		MonitorInterval:    p.MonitorInterval,
		FrameRelayInterval: p.FrameRelayInterval,
		Monitor: monitor.Policy{
			AbsenceTimeout:        p.AbsenceTimeout,
			SilenceAlertAfter:     p.SilenceAlertAfter,
			AutoAdvanceAfter:      p.SilenceAutoAdvance,
			EngagementDecayAfter:  p.EngagementDecayAfter,
			DecayFactor:           p.DecayFactor,
			EngagementDecayFactor: p.EngagementDecayFactor,
		},
		EmotionHistory: p.EmotionHistory,
	}
}

// SlogLevel converts a config log level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
