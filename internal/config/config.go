// Package config provides the configuration schema, loader, and provider
// registry for the interviewcoach client.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Interview InterviewConfig `yaml:"interview"`
	Media     MediaConfig     `yaml:"media"`
	Providers ProvidersConfig `yaml:"providers"`
	Policy    PolicyConfig    `yaml:"policy"`
	Questions QuestionsConfig `yaml:"questions"`
}

// ServerConfig holds logging and the optional debug HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address of the debug server exposing /metrics,
	// /healthz and /readyz (e.g., ":9090"). Empty disables it.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile receives logs while the terminal UI owns the screen. Empty
	// means logs are discarded in UI mode and written to stderr otherwise.
	LogFile string `yaml:"log_file"`
}

// BackendConfig locates the interview backend.
type BackendConfig struct {
	// APIURL is the REST base URL. Overridden by INTERVIEW_API_URL.
	APIURL string `yaml:"api_url"`

	// WSURL is the WebSocket base URL. Overridden by INTERVIEW_WS_URL.
	WSURL string `yaml:"ws_url"`

	// Timeout bounds each REST call.
	Timeout time.Duration `yaml:"timeout"`

	// Token, when set, is sent as a Bearer token.
	Token string `yaml:"token"`
}

// InterviewConfig describes the session to run.
type InterviewConfig struct {
	// Type selects the question bank: behavioral, hr or technical.
	Type string `yaml:"type"`

	// UserID identifies the candidate in join_session messages.
	UserID string `yaml:"user_id"`

	// AnswerTimeLimit auto-advances a question after this long in headless
	// mode. Zero disables the limit.
	AnswerTimeLimit time.Duration `yaml:"answer_time_limit"`

	// JournalFile is a local JSON-lines log of finished sessions. Payloads
	// the backend rejected stay pending there until resent. Empty disables it.
	JournalFile string `yaml:"journal_file"`
}

// MediaConfig describes the capture constraints and the replay sources.
type MediaConfig struct {
	Width      int `yaml:"width"`
	Height     int `yaml:"height"`
	FPS        int `yaml:"fps"`
	SampleRate int `yaml:"sample_rate"`

	// FramesDir and AudioFile feed the replay device.
	FramesDir string `yaml:"frames_dir"`
	AudioFile string `yaml:"audio_file"`
}

// ProvidersConfig declares which implementation backs each pluggable
// capability. Each entry selects a named factory registered in the [Registry].
type ProvidersConfig struct {
	Media ProviderEntry `yaml:"media"`
	VAD   ProviderEntry `yaml:"vad"`
	Face  ProviderEntry `yaml:"face"`
	LLM   ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "energy", "http", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Timeout bounds each provider call. Zero uses the provider default.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// PolicyConfig exposes every tunable timing and threshold of the feedback
// loop. Zero values are replaced by [ApplyDefaults].
type PolicyConfig struct {
	AnalysisInterval   time.Duration `yaml:"analysis_interval"`
	SpeechInterval     time.Duration `yaml:"speech_interval"`
	MonitorInterval    time.Duration `yaml:"monitor_interval"`
	FrameRelayInterval time.Duration `yaml:"frame_relay_interval"`

	AbsenceTimeout        time.Duration `yaml:"absence_timeout"`
	SilenceAlertAfter     time.Duration `yaml:"silence_alert_after"`
	SilenceAutoAdvance    time.Duration `yaml:"silence_auto_advance"`
	EngagementDecayAfter  time.Duration `yaml:"engagement_decay_after"`
	DecayFactor           float64       `yaml:"decay_factor"`
	EngagementDecayFactor float64       `yaml:"engagement_decay_factor"`

	// SpeechThreshold is the loudness (0..255) above which audio is speech.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// MinReportedScore floors the submitted overall score.
	MinReportedScore int `yaml:"min_reported_score"`

	// EmotionHistory is the number of emotion samples kept for display.
	EmotionHistory int `yaml:"emotion_history"`

	// OutboundRate caps transport messages per second.
	OutboundRate float64 `yaml:"outbound_rate"`
}

// QuestionsConfig holds the static question set used when the backend
// cannot supply questions.
type QuestionsConfig struct {
	Fallback []QuestionEntry `yaml:"fallback"`
}

// QuestionEntry is one configured question.
type QuestionEntry struct {
	ID       string `yaml:"id"`
	Text     string `yaml:"text"`
	Category string `yaml:"category"`
}
