// Package vad defines the Engine interface for speech activity backends.
//
// A VAD engine wraps a window-level speech detector (an energy gate, a WebRTC
// VAD, or a trained model) and surfaces it as a stateful, per-stream session.
// Each session keeps its own edge state so that the candidate's microphone
// can be re-acquired on restart without stale "speaking" flags leaking into
// the next recording.
//
// VAD is synchronous: ProcessFrame returns immediately with a detection
// result so it can run inside the interview controller's event loop without
// blocking other ticks.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// windows passed to ProcessFrame. Common values: 16000, 44100, 48000.
	SampleRate int

	// FrameSizeMs is the nominal duration of each window in milliseconds. The
	// energy engine accepts any length; model-backed engines may reject windows
	// that do not match.
	FrameSizeMs int

	// SpeechThreshold is the loudness above which a window is classified as
	// speech, on the engine's native scale. The energy engine uses the 0..255
	// byte-magnitude scale; a typical value is 5.
	SpeechThreshold float64

	// SilenceThreshold is the loudness at or below which an active speech
	// segment is considered ended. Must be ≤ SpeechThreshold. Zero means
	// "same as SpeechThreshold" (no hysteresis).
	SilenceThreshold float64
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations
// without a live engine. Reset clears edge state without closing the session.
type SessionHandle interface {
	// ProcessFrame analyses one PCM window (little-endian signed 16-bit mono)
	// and returns the detection result. VADSpeechStart and VADSpeechEnd are
	// reported only on the transition edges; steady states report
	// VADSpeechContinue or VADSilence.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears the accumulated edge state without closing the session.
	Reset()

	// Close releases all resources associated with the session. After Close,
	// ProcessFrame returns an error. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	//
	// Returns an error if the configuration is invalid (for example a negative
	// threshold or a silence threshold above the speech threshold).
	NewSession(cfg Config) (SessionHandle, error)
}
