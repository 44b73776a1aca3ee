package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the backend URLs.
const (
	EnvAPIURL = "INTERVIEW_API_URL"
	EnvWSURL  = "INTERVIEW_WS_URL"
)

// Default backend locations.
const (
	DefaultAPIURL = "http://localhost:5001"
	DefaultWSURL  = "ws://localhost:5001"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"media": {"replay"},
	"vad":   {"energy"},
	"face":  {"http"},
	"llm":   {"openai"},
}

var validInterviewTypes = []string{"behavioral", "hr", "technical"}

// DefaultFallbackQuestions is used when neither the backend nor the config
// provide questions.
var DefaultFallbackQuestions = []QuestionEntry{
	{ID: "fallback-1", Text: "Tell me about yourself and your background.", Category: "General"},
	{ID: "fallback-2", Text: "What interests you about this role?", Category: "Motivation"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults and environment overrides applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// environment overrides, and validates the result. An empty document yields
// the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	ApplyEnv(cfg, os.Getenv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	ApplyEnv(cfg, os.Getenv)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.LogLevel, LogInfo)

	setDefault(&cfg.Backend.APIURL, DefaultAPIURL)
	setDefault(&cfg.Backend.WSURL, DefaultWSURL)
	setDefault(&cfg.Backend.Timeout, 10*time.Second)

	setDefault(&cfg.Interview.Type, "behavioral")
	setDefault(&cfg.Interview.UserID, "anonymous")

	setDefault(&cfg.Media.Width, 640)
	setDefault(&cfg.Media.Height, 480)
	setDefault(&cfg.Media.FPS, 30)
	setDefault(&cfg.Media.SampleRate, 16000)

	setDefault(&cfg.Providers.Media.Name, "replay")
	setDefault(&cfg.Providers.VAD.Name, "energy")

	p := &cfg.Policy
	setDefault(&p.AnalysisInterval, time.Second)
	setDefault(&p.SpeechInterval, 100*time.Millisecond)
	setDefault(&p.MonitorInterval, time.Second)
	setDefault(&p.FrameRelayInterval, 2*time.Second)
	setDefault(&p.AbsenceTimeout, 2*time.Second)
	setDefault(&p.SilenceAlertAfter, 30*time.Second)
	setDefault(&p.SilenceAutoAdvance, 180*time.Second)
	setDefault(&p.EngagementDecayAfter, 60*time.Second)
	setDefault(&p.DecayFactor, 0.95)
	setDefault(&p.EngagementDecayFactor, 0.98)
	setDefault(&p.SpeechThreshold, 5)
	setDefault(&p.MinReportedScore, 60)
	setDefault(&p.EmotionHistory, 20)
	setDefault(&p.OutboundRate, 20)

	if len(cfg.Questions.Fallback) == 0 {
		cfg.Questions.Fallback = slices.Clone(DefaultFallbackQuestions)
	}
}

// ApplyEnv overrides the backend URLs from the environment. getenv is
// usually os.Getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvAPIURL); v != "" {
		cfg.Backend.APIURL = v
	}
	if v := getenv(EnvWSURL); v != "" {
		cfg.Backend.WSURL = v
	}
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Backend
	if err := validateURL(cfg.Backend.APIURL, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("backend.api_url: %w", err))
	}
	if err := validateURL(cfg.Backend.WSURL, "ws", "wss"); err != nil {
		errs = append(errs, fmt.Errorf("backend.ws_url: %w", err))
	}
	if cfg.Backend.Timeout < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout must not be negative"))
	}

	// Interview
	if !slices.Contains(validInterviewTypes, cfg.Interview.Type) {
		errs = append(errs, fmt.Errorf("interview.type %q is invalid; valid values: behavioral, hr, technical", cfg.Interview.Type))
	}
	if cfg.Interview.AnswerTimeLimit < 0 {
		errs = append(errs, fmt.Errorf("interview.answer_time_limit must not be negative"))
	}

	// Media
	if cfg.Media.Width < 0 || cfg.Media.Height < 0 || cfg.Media.FPS < 0 || cfg.Media.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("media dimensions, fps and sample_rate must not be negative"))
	}

	// Providers
	validateProviderName("media", cfg.Providers.Media.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("face", cfg.Providers.Face.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	if cfg.Providers.Face.Name == "http" && cfg.Providers.Face.BaseURL == "" {
		errs = append(errs, fmt.Errorf("providers.face.base_url is required for the http detector"))
	}
	if cfg.Providers.Face.Name == "" {
		slog.Warn("providers.face is not configured; expression analysis will use the pixel-statistics fallback")
	}
	if cfg.Providers.LLM.Name != "" && cfg.Providers.LLM.APIKey == "" && cfg.Providers.LLM.BaseURL == "" {
		slog.Warn("providers.llm has no api_key or base_url; coaching notes will likely fail", "name", cfg.Providers.LLM.Name)
	}

	// Policy
	errs = append(errs, validatePolicy(&cfg.Policy)...)

	// Questions
	for i, q := range cfg.Questions.Fallback {
		if q.Text == "" {
			errs = append(errs, fmt.Errorf("questions.fallback[%d].text is required", i))
		}
	}

	return errors.Join(errs...)
}

func validatePolicy(p *PolicyConfig) []error {
	var errs []error
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"analysis_interval", p.AnalysisInterval},
		{"speech_interval", p.SpeechInterval},
		{"monitor_interval", p.MonitorInterval},
		{"frame_relay_interval", p.FrameRelayInterval},
		{"absence_timeout", p.AbsenceTimeout},
		{"silence_alert_after", p.SilenceAlertAfter},
		{"silence_auto_advance", p.SilenceAutoAdvance},
		{"engagement_decay_after", p.EngagementDecayAfter},
	}
	for _, f := range positive {
		if f.d <= 0 {
			errs = append(errs, fmt.Errorf("policy.%s must be positive", f.name))
		}
	}
	if p.DecayFactor <= 0 || p.DecayFactor > 1 {
		errs = append(errs, fmt.Errorf("policy.decay_factor %.2f is out of range (0, 1]", p.DecayFactor))
	}
	if p.EngagementDecayFactor <= 0 || p.EngagementDecayFactor > 1 {
		errs = append(errs, fmt.Errorf("policy.engagement_decay_factor %.2f is out of range (0, 1]", p.EngagementDecayFactor))
	}
	if p.SpeechThreshold < 0 || p.SpeechThreshold > 255 {
		errs = append(errs, fmt.Errorf("policy.speech_threshold %.2f is out of range [0, 255]", p.SpeechThreshold))
	}
	if p.MinReportedScore < 0 || p.MinReportedScore > 100 {
		errs = append(errs, fmt.Errorf("policy.min_reported_score %d is out of range [0, 100]", p.MinReportedScore))
	}
	if p.EmotionHistory < 0 {
		errs = append(errs, fmt.Errorf("policy.emotion_history must not be negative"))
	}
	if p.OutboundRate < 0 {
		errs = append(errs, fmt.Errorf("policy.outbound_rate must not be negative"))
	}
	if p.SilenceAutoAdvance > 0 && p.SilenceAlertAfter >= p.SilenceAutoAdvance {
		slog.Warn("policy.silence_alert_after is not shorter than silence_auto_advance; the alert will never show",
			"alert_after", p.SilenceAlertAfter,
			"auto_advance", p.SilenceAutoAdvance,
		)
	}
	return errs
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !slices.Contains(schemes, u.Scheme) {
		return fmt.Errorf("scheme %q is invalid; valid values: %v", u.Scheme, schemes)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
