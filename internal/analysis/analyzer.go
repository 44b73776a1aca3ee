// Package analysis turns video frames into face/expression samples.
//
// An [Analyzer] runs one of two strategies, chosen once at construction:
//
//   - Model-backed: a trained [face.Detector] locates the face, its landmarks
//     and per-expression probabilities.
//   - Fallback: when no detector is configured or its models fail to load,
//     the analyzer estimates a plausible expression distribution from the
//     frame's pixel statistics and assumes a centred face.
//
// The fallback keeps the interview usable on machines without the detection
// sidecar. It is not a face detector; its output always reports a face.
package analysis

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/MrWong99/interviewcoach/pkg/provider/face"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

// Mode identifies the active strategy.
type Mode int

const (
	// ModeModel uses a trained face detector.
	ModeModel Mode = iota

	// ModeFallback estimates expressions from pixel statistics.
	ModeFallback
)

// String returns the human-readable name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeModel:
		return "model"
	case ModeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Option is a functional option for configuring an Analyzer.
type Option func(*Analyzer)

// WithRand overrides the random source used by the fallback estimator. fn must
// return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(a *Analyzer) { a.rand = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// Analyzer produces a [types.DetectionSample] per frame. It is not safe for
// concurrent use; the interview controller calls it from its event loop.
type Analyzer struct {
	detector face.Detector
	mode     Mode
	rand     func() float64
	now      func() time.Time
}

// New creates an Analyzer and selects its strategy. When det is nil or
// det.Load fails the analyzer falls back to pixel statistics and logs a
// warning; New itself never fails.
func New(ctx context.Context, det face.Detector, opts ...Option) *Analyzer {
	a := &Analyzer{
		detector: det,
		mode:     ModeModel,
		rand:     rand.Float64,
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}

	switch {
	case det == nil:
		a.mode = ModeFallback
		slog.Warn("analysis: no face detector configured, using fallback estimator")
	default:
		if err := det.Load(ctx); err != nil {
			a.mode = ModeFallback
			slog.Warn("analysis: face detector unavailable, using fallback estimator", "err", err)
		}
	}
	return a
}

// Mode reports the strategy chosen at construction.
func (a *Analyzer) Mode() Mode { return a.mode }

// AnalyzeFrame analyses one frame. Per-frame detector errors are returned to
// the caller, which is expected to log and skip the tick.
func (a *Analyzer) AnalyzeFrame(ctx context.Context, img image.Image) (types.DetectionSample, error) {
	if img == nil {
		return types.DetectionSample{}, fmt.Errorf("analysis: nil frame")
	}
	b := img.Bounds()
	if b.Empty() {
		return types.DetectionSample{}, fmt.Errorf("analysis: empty frame")
	}
	if a.mode == ModeFallback {
		return a.fallback(img), nil
	}
	return a.model(ctx, img)
}

func (a *Analyzer) model(ctx context.Context, img image.Image) (types.DetectionSample, error) {
	b := img.Bounds()
	sample := types.DetectionSample{
		Timestamp:   a.now(),
		FrameWidth:  b.Dx(),
		FrameHeight: b.Dy(),
		Source:      types.SourceModel,
	}

	dets, err := a.detector.Detect(ctx, img)
	if err != nil {
		return types.DetectionSample{}, fmt.Errorf("analysis: detect: %w", err)
	}
	if len(dets) == 0 {
		sample.DominantEmotion = "no_face"
		return sample, nil
	}

	d := dets[0]
	box := d.Box
	sample.FaceDetected = true
	sample.Box = &box
	sample.Landmarks = d.Landmarks
	sample.Expressions = d.Expressions
	sample.DominantEmotion, _ = types.DominantEmotion(d.Expressions)
	return sample, nil
}
