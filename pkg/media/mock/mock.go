// Package mock provides test doubles for the media package interfaces.
//
// Device records every Acquire call and hands out Stream (or AcquireErr).
// Stream returns fixed frames and audio windows and counts Stop calls.
package mock

import (
	"context"
	"image"
	"sync"

	"github.com/MrWong99/interviewcoach/pkg/media"
)

// Device is a mock implementation of media.Device.
type Device struct {
	mu sync.Mutex

	// Stream is returned by Acquire. If nil, a new default Stream is returned.
	Stream *Stream

	// AcquireErr, if non-nil, is returned by Acquire.
	AcquireErr error

	// AcquireCalls records the constraints of every Acquire call.
	AcquireCalls []media.Constraints
}

// Acquire records the call and returns Stream, AcquireErr.
func (d *Device) Acquire(_ context.Context, c media.Constraints) (media.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AcquireCalls = append(d.AcquireCalls, c)
	if d.AcquireErr != nil {
		return nil, d.AcquireErr
	}
	if d.Stream == nil {
		d.Stream = &Stream{}
	}
	return d.Stream, nil
}

// Calls returns the number of Acquire calls. Thread-safe.
func (d *Device) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.AcquireCalls)
}

var _ media.Device = (*Device)(nil)

// Stream is a mock implementation of media.Stream.
type Stream struct {
	mu sync.Mutex

	// Frame is returned by VideoFrame. A nil Frame yields a 64x48 black image.
	Frame image.Image

	// FrameErr, if non-nil, is returned by VideoFrame.
	FrameErr error

	// Audio is returned by AudioWindow.
	Audio []byte

	// AudioErr, if non-nil, is returned by AudioWindow.
	AudioErr error

	// StopCallCount is the number of times Stop was called.
	StopCallCount int

	stopped bool
}

// VideoFrame returns Frame or FrameErr.
func (s *Stream) VideoFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, media.ErrStopped
	}
	if s.FrameErr != nil {
		return nil, s.FrameErr
	}
	if s.Frame == nil {
		return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
	}
	return s.Frame, nil
}

// AudioWindow returns Audio or AudioErr.
func (s *Stream) AudioWindow() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, media.ErrStopped
	}
	if s.AudioErr != nil {
		return nil, s.AudioErr
	}
	return s.Audio, nil
}

// SetAudio replaces the audio window. Thread-safe.
func (s *Stream) SetAudio(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Audio = pcm
}

// Stop marks the stream stopped and counts the call.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCallCount++
	s.stopped = true
	return nil
}

// Stops returns StopCallCount. Thread-safe.
func (s *Stream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StopCallCount
}

var _ media.Stream = (*Stream)(nil)
