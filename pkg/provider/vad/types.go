package vad

// VADEvent represents a voice activity detection result for a single window.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Level is the measured loudness on the engine's native scale.
	Level float64
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended.
	VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence
)

// Speaking reports whether the event describes a window containing speech.
func (t VADEventType) Speaking() bool {
	return t == VADSpeechStart || t == VADSpeechContinue
}

// String returns a short label for logging.
func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech_continue"
	case VADSpeechEnd:
		return "speech_end"
	case VADSilence:
		return "silence"
	}
	return "unknown"
}
