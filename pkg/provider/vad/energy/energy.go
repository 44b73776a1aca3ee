// Package energy provides a loudness-gated VAD engine.
//
// The engine computes the RMS of each little-endian s16 PCM window and maps it
// onto the 0..255 byte-magnitude scale used by browser audio analysers. A
// window is speech when its level exceeds the configured SpeechThreshold.
// Edges are reported exactly once per transition: VADSpeechStart on the first
// loud window and VADSpeechEnd on the first quiet window after speech.
package energy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/MrWong99/interviewcoach/pkg/provider/vad"
)

// DefaultSpeechThreshold is the loudness above which a window counts as speech.
const DefaultSpeechThreshold = 5.0

// fullScale is the largest magnitude of a signed 16-bit sample.
const fullScale = 32768.0

// Engine is a vad.Engine backed by RMS energy. The zero value is ready to use.
type Engine struct{}

// New returns an energy Engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg and returns a fresh session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	speech := cfg.SpeechThreshold
	if speech == 0 {
		speech = DefaultSpeechThreshold
	}
	silence := cfg.SilenceThreshold
	if silence == 0 {
		silence = speech
	}
	if speech < 0 || speech > 255 {
		return nil, fmt.Errorf("energy: speech threshold %.2f out of range [0, 255]", speech)
	}
	if silence < 0 || silence > speech {
		return nil, fmt.Errorf("energy: silence threshold %.2f must be in [0, %.2f]", silence, speech)
	}
	return &session{speech: speech, silence: silence}, nil
}

var _ vad.Engine = (*Engine)(nil)

var errClosed = errors.New("energy: session closed")

type session struct {
	mu       sync.Mutex
	speech   float64
	silence  float64
	speaking bool
	closed   bool
}

// ProcessFrame measures the window and reports the edge-aware event.
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, errClosed
	}
	if len(frame)%2 != 0 {
		return vad.VADEvent{}, fmt.Errorf("energy: odd frame length %d", len(frame))
	}

	level := Level(frame)
	ev := vad.VADEvent{Level: level}
	if s.speaking {
		if level <= s.silence {
			s.speaking = false
			ev.Type = vad.VADSpeechEnd
		} else {
			ev.Type = vad.VADSpeechContinue
		}
		return ev, nil
	}
	if level > s.speech {
		s.speaking = true
		ev.Type = vad.VADSpeechStart
	} else {
		ev.Type = vad.VADSilence
	}
	return ev, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = false
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Level returns the RMS loudness of an s16le PCM window on the 0..255 scale.
// An empty window has level 0.
func Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum/float64(n)) / fullScale * 255
}
