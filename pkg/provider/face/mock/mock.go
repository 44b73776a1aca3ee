// Package mock provides a test double for face.Detector.
package mock

import (
	"context"
	"image"
	"sync"

	"github.com/MrWong99/interviewcoach/pkg/provider/face"
)

// Detector is a mock implementation of face.Detector.
type Detector struct {
	mu sync.Mutex

	// LoadErr, if non-nil, is returned by Load.
	LoadErr error

	// Detections is returned by every Detect call.
	Detections []face.Detection

	// DetectErr, if non-nil, is returned by Detect.
	DetectErr error

	// LoadCallCount is the number of times Load was called.
	LoadCallCount int

	// DetectCallCount is the number of times Detect was called.
	DetectCallCount int
}

// Load records the call and returns LoadErr.
func (d *Detector) Load(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.LoadCallCount++
	return d.LoadErr
}

// Detect records the call and returns Detections, DetectErr.
func (d *Detector) Detect(_ context.Context, _ image.Image) ([]face.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DetectCallCount++
	if d.DetectErr != nil {
		return nil, d.DetectErr
	}
	return d.Detections, nil
}

// SetDetections replaces the scripted result. Thread-safe.
func (d *Detector) SetDetections(dets []face.Detection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Detections = dets
}

var _ face.Detector = (*Detector)(nil)
