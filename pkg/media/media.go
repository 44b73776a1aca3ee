// Package media defines the camera and microphone acquisition contract used by
// the interview controller.
//
// The two primary abstractions are:
//
//   - [Device] acquires a combined video + audio [Stream] under a set of
//     [Constraints], mirroring a browser's getUserMedia prompt.
//   - [Stream] exposes the latest video frame and the most recent PCM audio
//     window, and owns the underlying capture tracks until [Stream.Stop].
//
// Implementations live in sub-packages (media/replay reads recorded frames and
// PCM from disk; media/mock is the test double). Real capture backends plug in
// by implementing [Device].
//
// This package lives under pkg/ because external code is expected to implement
// [Device] and [Stream].
package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
)

var (
	// ErrPermissionDenied is returned when the user (or the OS) refuses access
	// to the camera or microphone. It is never retried automatically.
	ErrPermissionDenied = errors.New("media: permission denied")

	// ErrDeviceUnavailable is returned when no matching capture device exists.
	ErrDeviceUnavailable = errors.New("media: device unavailable")

	// ErrStopped is returned by [Stream] reads after Stop.
	ErrStopped = errors.New("media: stream stopped")
)

// Constraints describes the requested capture parameters.
type Constraints struct {
	// Width and Height are the ideal video dimensions in pixels.
	Width  int
	Height int

	// FPS is the ideal video frame rate.
	FPS int

	// SampleRate is the audio sample rate in Hz. Audio is always mono s16le.
	SampleRate int

	// WindowMs is the length of the audio window returned by AudioWindow.
	WindowMs int
}

// DefaultConstraints returns the capture parameters used by the interview
// client: 640x480 at 30 fps, 16 kHz audio, 100 ms windows.
func DefaultConstraints() Constraints {
	return Constraints{Width: 640, Height: 480, FPS: 30, SampleRate: 16000, WindowMs: 100}
}

// Stream is an acquired camera + microphone pair.
//
// Implementations must be safe for concurrent use.
type Stream interface {
	// VideoFrame returns the most recent video frame. It returns ErrStopped
	// after Stop.
	VideoFrame() (image.Image, error)

	// AudioWindow returns the most recent audio window as little-endian signed
	// 16-bit mono PCM. It returns ErrStopped after Stop.
	AudioWindow() ([]byte, error)

	// Stop releases every capture track. Calling Stop more than once is safe
	// and returns nil.
	Stop() error
}

// Device acquires media streams.
type Device interface {
	// Acquire opens the camera and microphone. Failures wrap
	// ErrPermissionDenied or ErrDeviceUnavailable.
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// PermissionGate wraps a [Device] and remembers the first permission
// decision. Once a permission denial has been observed, later Acquire calls
// return the cached error without asking the underlying device again.
type PermissionGate struct {
	dev Device

	mu     sync.Mutex
	denied error
}

// NewPermissionGate wraps dev.
func NewPermissionGate(dev Device) *PermissionGate {
	return &PermissionGate{dev: dev}
}

// Acquire implements [Device].
func (g *PermissionGate) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	g.mu.Lock()
	if g.denied != nil {
		err := g.denied
		g.mu.Unlock()
		return nil, err
	}
	g.mu.Unlock()

	s, err := g.dev.Acquire(ctx, c)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			g.mu.Lock()
			g.denied = err
			g.mu.Unlock()
		}
		return nil, fmt.Errorf("media: acquire: %w", err)
	}
	return s, nil
}

// Denied reports whether a permission denial has been cached.
func (g *PermissionGate) Denied() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.denied != nil
}

var _ Device = (*PermissionGate)(nil)
