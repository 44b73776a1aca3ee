// Package replay implements media.Device from recorded files on disk.
//
// Video comes from a directory of JPEG or PNG frames, cycled in lexical order
// at the configured frame rate. Audio comes from a raw little-endian s16 mono
// PCM file, windowed by wall-clock time since acquisition and looped once the
// end is reached. Either source may be omitted: a device without frames
// serves a black frame, a device without audio serves silence.
package replay

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/interviewcoach/pkg/media"
)

// Option is a functional option for configuring a Device.
type Option func(*Device)

// WithFramesDir sets the directory of recorded video frames.
func WithFramesDir(dir string) Option {
	return func(d *Device) { d.framesDir = dir }
}

// WithAudioFile sets the raw PCM recording.
func WithAudioFile(path string) Option {
	return func(d *Device) { d.audioFile = path }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Device) { d.now = now }
}

// Device is a media.Device that replays recorded files.
type Device struct {
	framesDir string
	audioFile string
	now       func() time.Time
}

// New creates a replay Device.
func New(opts ...Option) *Device {
	d := &Device{now: time.Now}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Acquire loads the recordings and returns a Stream. Missing paths map to
// media.ErrDeviceUnavailable and unreadable ones to media.ErrPermissionDenied.
func (d *Device) Acquire(ctx context.Context, c media.Constraints) (media.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.SampleRate <= 0 {
		c.SampleRate = media.DefaultConstraints().SampleRate
	}
	if c.WindowMs <= 0 {
		c.WindowMs = media.DefaultConstraints().WindowMs
	}
	if c.FPS <= 0 {
		c.FPS = media.DefaultConstraints().FPS
	}

	frames, err := loadFrames(d.framesDir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		w, h := c.Width, c.Height
		if w <= 0 || h <= 0 {
			w, h = 640, 480
		}
		frames = []image.Image{image.NewRGBA(image.Rect(0, 0, w, h))}
	}

	var pcm []byte
	if d.audioFile != "" {
		pcm, err = os.ReadFile(d.audioFile)
		if err != nil {
			return nil, classify("audio", d.audioFile, err)
		}
		if len(pcm)%2 == 1 {
			pcm = pcm[:len(pcm)-1]
		}
	}

	return &stream{
		frames:  frames,
		pcm:     pcm,
		c:       c,
		now:     d.now,
		started: d.now(),
	}, nil
}

var _ media.Device = (*Device)(nil)

func loadFrames(dir string) ([]image.Image, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, classify("frames", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("replay: no frames in %q: %w", dir, media.ErrDeviceUnavailable)
	}

	frames := make([]image.Image, 0, len(names))
	for _, n := range names {
		img, err := decodeFile(filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	return frames, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classify("frame", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("replay: decode %q: %w", path, err)
	}
	return img, nil
}

func classify(what, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("replay: %s %q: %w", what, path, media.ErrDeviceUnavailable)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("replay: %s %q: %w", what, path, media.ErrPermissionDenied)
	default:
		return fmt.Errorf("replay: %s %q: %w", what, path, err)
	}
}

type stream struct {
	frames  []image.Image
	pcm     []byte
	c       media.Constraints
	now     func() time.Time
	started time.Time

	mu      sync.Mutex
	stopped bool
}

func (s *stream) VideoFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, media.ErrStopped
	}
	elapsed := s.now().Sub(s.started)
	idx := int(elapsed.Seconds()*float64(s.c.FPS)) % len(s.frames)
	return s.frames[idx], nil
}

func (s *stream) AudioWindow() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, media.ErrStopped
	}
	size := s.c.SampleRate * s.c.WindowMs / 1000 * 2
	out := make([]byte, size)
	if len(s.pcm) == 0 || size == 0 {
		return out, nil
	}

	elapsed := s.now().Sub(s.started)
	end := int(elapsed.Milliseconds()) * s.c.SampleRate / 1000 * 2
	start := end - size
	for i := range out {
		pos := start + i
		pos %= len(s.pcm)
		if pos < 0 {
			pos += len(s.pcm)
		}
		out[i] = s.pcm[pos]
	}
	return out, nil
}

func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}
