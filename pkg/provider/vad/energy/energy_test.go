package energy

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/interviewcoach/pkg/provider/vad"
)

// tone returns n s16le samples of constant amplitude.
func tone(n int, amp int16) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amp
		if i%2 == 1 {
			v = -amp
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{name: "empty", pcm: nil, want: 0},
		{name: "silence", pcm: tone(160, 0), want: 0},
		{name: "full scale", pcm: tone(160, math.MaxInt16), want: 255 * float64(math.MaxInt16) / fullScale},
		{name: "quarter", pcm: tone(160, 8192), want: 255 * 0.25},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Level(tc.pcm)
			if math.Abs(got-tc.want) > 1e-6 {
				t.Errorf("Level = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSessionEdges(t *testing.T) {
	t.Parallel()

	s, err := New().NewSession(vad.Config{SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	loud := tone(160, 4000) // ~31 on the byte scale
	quiet := tone(160, 10)

	sequence := [][]byte{quiet, loud, loud, loud, quiet, quiet}
	want := []vad.VADEventType{
		vad.VADSilence, vad.VADSpeechStart, vad.VADSpeechContinue,
		vad.VADSpeechContinue, vad.VADSpeechEnd, vad.VADSilence,
	}

	var starts, ends int
	for i, frame := range sequence {
		ev, err := s.ProcessFrame(frame)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if ev.Type != want[i] {
			t.Errorf("frame %d: got %s, want %s", i, ev.Type, want[i])
		}
		switch ev.Type {
		case vad.VADSpeechStart:
			starts++
		case vad.VADSpeechEnd:
			ends++
		}
	}
	if starts != 1 || ends != 1 {
		t.Errorf("starts=%d ends=%d, want exactly one of each", starts, ends)
	}
}

func TestSessionReset(t *testing.T) {
	t.Parallel()

	s, _ := New().NewSession(vad.Config{})
	loud := tone(160, 4000)
	if ev, _ := s.ProcessFrame(loud); ev.Type != vad.VADSpeechStart {
		t.Fatalf("want speech start, got %s", ev.Type)
	}
	s.Reset()
	if ev, _ := s.ProcessFrame(loud); ev.Type != vad.VADSpeechStart {
		t.Errorf("after Reset want speech start again, got %s", ev.Type)
	}
}

func TestSessionClosed(t *testing.T) {
	t.Parallel()

	s, _ := New().NewSession(vad.Config{})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := s.ProcessFrame(tone(10, 0)); err == nil {
		t.Error("expected error after Close")
	}
}

func TestNewSessionValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     vad.Config
		wantErr bool
	}{
		{name: "defaults", cfg: vad.Config{}},
		{name: "hysteresis", cfg: vad.Config{SpeechThreshold: 10, SilenceThreshold: 4}},
		{name: "negative", cfg: vad.Config{SpeechThreshold: -1}, wantErr: true},
		{name: "too loud", cfg: vad.Config{SpeechThreshold: 300}, wantErr: true},
		{name: "silence above speech", cfg: vad.Config{SpeechThreshold: 5, SilenceThreshold: 8}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New().NewSession(tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSessionOddFrame(t *testing.T) {
	t.Parallel()

	s, _ := New().NewSession(vad.Config{})
	if _, err := s.ProcessFrame([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for odd-length frame")
	}
}
