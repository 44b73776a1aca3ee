// Package speech tracks whether the candidate is speaking.
//
// A [Detector] samples the microphone's most recent PCM window on every
// speech tick, feeds it to a VAD session and reports the speaking/silent
// transitions as edges. It also keeps the time of the last speaking tick so
// the rest of the session can reason about silence duration.
//
// Detector degrades instead of failing: when no VAD engine is configured or a
// session cannot be created it reports "not speaking" forever.
package speech

import (
	"log/slog"
	"time"

	"github.com/MrWong99/interviewcoach/pkg/provider/vad"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

// Edge is a speaking-state transition.
type Edge int

const (
	// EdgeNone means the speaking state did not change.
	EdgeNone Edge = iota

	// EdgeStart means the candidate just started speaking.
	EdgeStart

	// EdgeStop means the candidate just stopped speaking.
	EdgeStop
)

// String returns the edge label.
func (e Edge) String() string {
	switch e {
	case EdgeNone:
		return "none"
	case EdgeStart:
		return "start"
	case EdgeStop:
		return "stop"
	default:
		return "unknown"
	}
}

// AudioSource supplies the most recent PCM window. media.Stream satisfies it.
type AudioSource interface {
	AudioWindow() ([]byte, error)
}

// Detector samples an AudioSource through a VAD session. It is not safe for
// concurrent use.
type Detector struct {
	src  AudioSource
	sess vad.SessionHandle

	speaking   bool
	lastSpeech time.Time
	lastLevel  float64
}

// New creates a Detector. start is the reference point for silence duration
// before any speech has been heard. A nil engine or a session error yields a
// detector that never reports speech.
func New(eng vad.Engine, cfg vad.Config, src AudioSource, start time.Time) *Detector {
	d := &Detector{src: src, lastSpeech: start}
	if eng == nil {
		slog.Warn("speech: no VAD engine configured, speech detection disabled")
		return d
	}
	sess, err := eng.NewSession(cfg)
	if err != nil {
		slog.Warn("speech: failed to create VAD session, speech detection disabled", "err", err)
		return d
	}
	d.sess = sess
	return d
}

// Enabled reports whether a VAD session is active.
func (d *Detector) Enabled() bool { return d.sess != nil }

// Sample reads one audio window and returns the resulting edge. Read and VAD
// errors are logged and treated as "no change".
func (d *Detector) Sample(now time.Time) Edge {
	if d.sess == nil || d.src == nil {
		return EdgeNone
	}
	pcm, err := d.src.AudioWindow()
	if err != nil {
		slog.Debug("speech: audio window unavailable", "err", err)
		return EdgeNone
	}
	ev, err := d.sess.ProcessFrame(pcm)
	if err != nil {
		slog.Debug("speech: vad error", "err", err)
		return EdgeNone
	}
	d.lastLevel = ev.Level

	speaking := ev.Type.Speaking()
	if speaking {
		d.lastSpeech = now
	}

	edge := EdgeNone
	switch {
	case speaking && !d.speaking:
		edge = EdgeStart
	case !speaking && d.speaking:
		edge = EdgeStop
	}
	d.speaking = speaking
	return edge
}

// State returns the speech state at now.
func (d *Detector) State(now time.Time) types.SpeechState {
	silence := time.Duration(0)
	if !d.speaking {
		silence = now.Sub(d.lastSpeech)
		if silence < 0 {
			silence = 0
		}
	}
	return types.SpeechState{
		IsSpeaking:      d.speaking,
		LastSpeech:      d.lastSpeech,
		SilenceDuration: silence,
	}
}

// Level returns the loudness measured on the last sample.
func (d *Detector) Level() float64 { return d.lastLevel }

// ResetTimers restarts the silence clock at now, as at the start of a new
// question. The speaking flag is kept.
func (d *Detector) ResetTimers(now time.Time) {
	d.lastSpeech = now
}

// Close releases the VAD session. Safe to call more than once.
func (d *Detector) Close() error {
	if d.sess == nil {
		return nil
	}
	err := d.sess.Close()
	d.sess = nil
	d.speaking = false
	return err
}
