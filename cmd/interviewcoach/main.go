// Command interviewcoach runs a mock interview with live body-language
// feedback, either in a terminal UI or headless.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/interviewcoach/internal/app"
	"github.com/MrWong99/interviewcoach/internal/config"
	"github.com/MrWong99/interviewcoach/internal/health"
	"github.com/MrWong99/interviewcoach/internal/journal"
	"github.com/MrWong99/interviewcoach/internal/observe"
	"github.com/MrWong99/interviewcoach/internal/tui"
	"github.com/MrWong99/interviewcoach/pkg/media"
	"github.com/MrWong99/interviewcoach/pkg/media/replay"
	"github.com/MrWong99/interviewcoach/pkg/provider/face"
	"github.com/MrWong99/interviewcoach/pkg/provider/face/httpdetector"
	"github.com/MrWong99/interviewcoach/pkg/provider/llm"
	"github.com/MrWong99/interviewcoach/pkg/provider/llm/openai"
	"github.com/MrWong99/interviewcoach/pkg/provider/vad"
	"github.com/MrWong99/interviewcoach/pkg/provider/vad/energy"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "interviewcoach.yaml", "path to the YAML configuration file")
	headless := flag.Bool("headless", false, "run one session without the terminal UI and print the result")
	interviewType := flag.String("type", "", "interview type override: behavioral, hr or technical")
	resumePath := flag.String("resume", "", "upload a résumé for analysis before the session starts")
	watch := flag.Bool("watch", true, "reload log level and policy when the config file changes")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: interviewcoach [flags] [history|resend]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "interviewcoach: config file %q not found, using defaults\n", *configPath)
			cfg = config.Default()
			*watch = false
		} else {
			fmt.Fprintf(os.Stderr, "interviewcoach: %v\n", err)
			return 1
		}
	}
	if *interviewType != "" {
		cfg.Interview.Type = *interviewType
		if err := config.Validate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "interviewcoach: %v\n", err)
			return 1
		}
	}

	subcommand := flag.Arg(0)
	tuiMode := !*headless && subcommand == ""

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(app.SlogLevel(cfg.Server.LogLevel))
	logger, closeLog, err := newLogger(cfg.Server.LogFile, levelVar, tuiMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "interviewcoach: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("interviewcoach starting",
		"version", version,
		"config", *configPath,
		"type", cfg.Interview.Type,
		"api_url", cfg.Backend.APIURL,
		"ws_url", cfg.Backend.WSURL,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── OpenTelemetry ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers, app.WithMetrics(metrics), app.WithLevelVar(levelVar))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	// ── Sub-commands ──────────────────────────────────────────────────────────
	switch subcommand {
	case "":
	case "history":
		return printHistory(ctx, application)
	case "resend":
		return resendPending(ctx, application)
	default:
		fmt.Fprintf(os.Stderr, "interviewcoach: unknown command %q\n", subcommand)
		flag.Usage()
		return 2
	}

	if *resumePath != "" {
		if err := uploadResume(ctx, application, *resumePath, !tuiMode); err != nil {
			slog.Error("résumé upload failed", "path", *resumePath, "err", err)
			return 1
		}
	}

	// ── Debug server (optional) ───────────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		srv := newDebugServer(cfg.Server.ListenAddr, metrics, application.HealthCheckers())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("debug server error", "err", err)
			}
		}()
		application.AddCloser(func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
		slog.Info("debug server listening", "addr", cfg.Server.ListenAddr)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			application.ApplyConfig(ctx, old, new)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			application.AddCloser(func() error { w.Stop(); return nil })
		}
	}

	if !tuiMode {
		return runHeadless(ctx, application)
	}
	return runTUI(ctx, application)
}

func runHeadless(ctx context.Context, application *app.App) int {
	slog.Info("running headless session; press Ctrl+C to abort")
	sub, err := application.RunHeadless(ctx)
	if sub != nil {
		printSummary(os.Stdout, sub)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("session failed", "err", err)
		return 1
	}
	return 0
}

func runTUI(ctx context.Context, application *app.App) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		p := tea.NewProgram(tui.New(tui.Config{Ctx: gctx, Controller: application.Controller()}), tea.WithAltScreen())
		_, err := p.Run()
		return err
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		fmt.Fprintf(os.Stderr, "interviewcoach: %v\n", err)
		return 1
	}
	return 0
}

// ── Debug server ──────────────────────────────────────────────────────────────

func newDebugServer(addr string, metrics *observe.Metrics, checkers []health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	// ── Media ─────────────────────────────────────────────────────────────────
	reg.RegisterMedia("replay", func(entry config.ProviderEntry) (media.Device, error) {
		frames := cfg.Media.FramesDir
		if v := optString(entry.Options, "frames_dir"); v != "" {
			frames = v
		}
		audio := cfg.Media.AudioFile
		if v := optString(entry.Options, "audio_file"); v != "" {
			audio = v
		}
		return replay.New(replay.WithFramesDir(frames), replay.WithAudioFile(audio)), nil
	})

	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── Face ──────────────────────────────────────────────────────────────────
	reg.RegisterFace("http", func(entry config.ProviderEntry) (face.Detector, error) {
		var opts []httpdetector.Option
		if entry.Timeout > 0 {
			opts = append(opts, httpdetector.WithTimeout(entry.Timeout))
		}
		return httpdetector.New(entry.BaseURL, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		model := entry.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(entry.Timeout))
		}
		return openai.New(entry.APIKey, model, opts...)
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// Media is mandatory; a failing optional provider is logged and skipped so the
// session can still run on its fallback.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	dev, err := reg.CreateMedia(cfg.Providers.Media)
	if err != nil {
		return nil, fmt.Errorf("create media provider %q: %w", cfg.Providers.Media.Name, err)
	}
	ps.Media = dev
	slog.Info("provider created", "kind", "media", "name", cfg.Providers.Media.Name)

	if name := cfg.Providers.VAD.Name; name != "" {
		p, err := reg.CreateVAD(cfg.Providers.VAD)
		if err != nil {
			slog.Warn("vad provider unavailable, speech detection disabled", "name", name, "err", err)
		} else {
			ps.VAD = p
			slog.Info("provider created", "kind", "vad", "name", name)
		}
	}

	if name := cfg.Providers.Face.Name; name != "" {
		p, err := reg.CreateFace(cfg.Providers.Face)
		if err != nil {
			slog.Warn("face provider unavailable, using fallback analysis", "name", name, "err", err)
		} else {
			ps.Face = p
			slog.Info("provider created", "kind", "face", "name", name)
		}
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			slog.Warn("llm provider unavailable, coaching notes disabled", "name", name, "err", err)
		} else {
			ps.LLM = p
			slog.Info("provider created", "kind", "llm", "name", name, "model", p.Model())
		}
	}

	return ps, nil
}

// ── Sub-commands ──────────────────────────────────────────────────────────────

func printHistory(ctx context.Context, application *app.App) int {
	h, err := application.Backend().History(ctx)
	if err != nil {
		slog.Error("failed to load session history", "err", err)
		return 1
	}
	a := h.Analytics
	fmt.Printf("Sessions: %d   average score: %.0f%%   best: %d%%   practice time: %d min\n",
		a.TotalSessions, a.AverageScore, a.BestScore, a.TotalTime)
	if a.RecentImprovement != 0 {
		fmt.Printf("Recent improvement: %+.0f points\n", a.RecentImprovement)
	}
	for _, s := range h.Sessions {
		fmt.Printf("  %s  %-10s %3d%%  %2d min\n", s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Type, s.Score, s.Duration)
	}
	if j := application.Journal(); j != nil {
		records, err := j.Records()
		if err != nil {
			slog.Warn("failed to read session journal", "path", j.Path(), "err", err)
		} else if n := len(journal.Pending(records)); n > 0 {
			fmt.Printf("%d session(s) not yet submitted; run `interviewcoach resend`\n", n)
		}
	}
	return 0
}

func resendPending(ctx context.Context, application *app.App) int {
	j := application.Journal()
	if j == nil {
		fmt.Fprintln(os.Stderr, "interviewcoach: resend needs interview.journal_file in the config")
		return 2
	}
	sent, err := app.ResendPending(ctx, j, application.Backend())
	if err != nil {
		slog.Error("resend failed", "err", err)
		return 1
	}
	records, err := j.Records()
	if err != nil {
		slog.Error("failed to read session journal", "err", err)
		return 1
	}
	left := len(journal.Pending(records))
	fmt.Printf("Resent %d session(s), %d still pending\n", sent, left)
	if left > 0 {
		return 1
	}
	return 0
}

func uploadResume(ctx context.Context, application *app.App, path string, verbose bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := application.Backend().UploadResume(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	slog.Info("résumé analysed", "skills", len(res.Skills), "years_experience", res.YearsExperience)
	if verbose {
		fmt.Printf("Résumé: %.0f years of experience; skills: %v\n", res.YearsExperience, res.Skills)
	}
	return nil
}

func printSummary(w io.Writer, s *types.SessionSubmission) {
	fmt.Fprintf(w, "Overall score: %d%% (%s interview, %d min)\n", s.OverallScore, s.Type, s.DurationMinutes)
	fmt.Fprintf(w, "  eye contact %d%%, confidence %d%%, engagement %d%%\n",
		s.FinalAverageScores.EyeContact, s.FinalAverageScores.Confidence, s.FinalAverageScores.Engagement)
	for _, a := range s.Answers {
		fmt.Fprintf(w, "  Q%d: eye %d%%, confidence %d%%, engagement %d%%\n",
			a.QuestionIndex+1, a.AverageScores.EyeContact, a.AverageScores.Confidence, a.AverageScores.Engagement)
	}
	fmt.Fprintln(w, s.Feedback.Overall)
	if s.Feedback.Coaching != "" {
		fmt.Fprintln(w, s.Feedback.Coaching)
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger writes to stderr, except in UI mode where the screen belongs to
// the TUI: logs then go to logFile, or nowhere if it is empty.
func newLogger(logFile string, level *slog.LevelVar, tuiMode bool) (*slog.Logger, func(), error) {
	var (
		out     io.Writer = os.Stderr
		closeFn           = func() {}
	)
	if tuiMode {
		out = io.Discard
	}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closeFn, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
