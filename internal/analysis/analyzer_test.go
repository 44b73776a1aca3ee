package analysis

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/interviewcoach/pkg/provider/face"
	"github.com/MrWong99/interviewcoach/pkg/provider/face/mock"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func fixedClock() time.Time { return time.UnixMilli(1_700_000_000_000) }

func TestNew_SelectsMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		det  face.Detector
		want Mode
	}{
		{name: "nil detector", det: nil, want: ModeFallback},
		{name: "load fails", det: &mock.Detector{LoadErr: errors.New("no models")}, want: ModeFallback},
		{name: "load ok", det: &mock.Detector{}, want: ModeModel},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := New(context.Background(), tc.det)
			if a.Mode() != tc.want {
				t.Errorf("Mode() = %s, want %s", a.Mode(), tc.want)
			}
		})
	}
}

func TestNew_LoadsOnce(t *testing.T) {
	t.Parallel()

	det := &mock.Detector{}
	a := New(context.Background(), det)
	img := solid(10, 10, color.White)
	for i := 0; i < 3; i++ {
		if _, err := a.AnalyzeFrame(context.Background(), img); err != nil {
			t.Fatal(err)
		}
	}
	if det.LoadCallCount != 1 {
		t.Errorf("Load called %d times, want 1", det.LoadCallCount)
	}
}

func TestAnalyzeFrame_Model(t *testing.T) {
	t.Parallel()

	lm := &types.Landmarks{LeftEye: types.Point{X: 1, Y: 1}}
	det := &mock.Detector{Detections: []face.Detection{
		{
			Box:         types.BoundingBox{X: 10, Y: 10, Width: 50, Height: 60},
			Landmarks:   lm,
			Expressions: map[string]float64{"happy": 0.2, "sad": 0.7, "neutral": 0.1},
		},
		{Box: types.BoundingBox{X: 0, Y: 0, Width: 5, Height: 5}},
	}}
	a := New(context.Background(), det, WithClock(fixedClock))

	s, err := a.AnalyzeFrame(context.Background(), solid(200, 100, color.Black))
	if err != nil {
		t.Fatalf("AnalyzeFrame: %v", err)
	}
	if !s.FaceDetected || s.Source != types.SourceModel {
		t.Fatalf("sample = %+v", s)
	}
	if s.Box.Width != 50 {
		t.Errorf("first face should win, got box %+v", s.Box)
	}
	if s.DominantEmotion != "sad" {
		t.Errorf("dominant = %q, want sad", s.DominantEmotion)
	}
	if s.Landmarks != lm {
		t.Error("landmarks not propagated")
	}
	if s.FrameWidth != 200 || s.FrameHeight != 100 {
		t.Errorf("frame = %dx%d", s.FrameWidth, s.FrameHeight)
	}
	if !s.Timestamp.Equal(fixedClock()) {
		t.Errorf("timestamp = %v", s.Timestamp)
	}
}

func TestAnalyzeFrame_ModelNoFace(t *testing.T) {
	t.Parallel()

	a := New(context.Background(), &mock.Detector{})
	s, err := a.AnalyzeFrame(context.Background(), solid(4, 4, color.Black))
	if err != nil {
		t.Fatal(err)
	}
	if s.FaceDetected || s.Box != nil {
		t.Errorf("expected no face, got %+v", s)
	}
}

func TestAnalyzeFrame_ModelError(t *testing.T) {
	t.Parallel()

	a := New(context.Background(), &mock.Detector{DetectErr: errors.New("timeout")})
	if _, err := a.AnalyzeFrame(context.Background(), solid(4, 4, color.Black)); err == nil {
		t.Error("expected per-frame error to propagate")
	}
}

func TestAnalyzeFrame_InvalidFrame(t *testing.T) {
	t.Parallel()

	a := New(context.Background(), nil)
	if _, err := a.AnalyzeFrame(context.Background(), nil); err == nil {
		t.Error("expected error for nil frame")
	}
	if _, err := a.AnalyzeFrame(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 0))); err == nil {
		t.Error("expected error for empty frame")
	}
}

func TestAnalyzeFrame_FallbackBox(t *testing.T) {
	t.Parallel()

	a := New(context.Background(), nil, WithClock(fixedClock), WithRand(func() float64 { return 0.5 }))
	s, err := a.AnalyzeFrame(context.Background(), solid(640, 480, color.Gray{Y: 128}))
	if err != nil {
		t.Fatal(err)
	}
	if !s.FaceDetected || s.Source != types.SourceFallback {
		t.Fatalf("sample = %+v", s)
	}
	if s.Landmarks != nil {
		t.Error("fallback must not report landmarks")
	}
	want := types.BoundingBox{X: 192, Y: 72, Width: 256, Height: 240}
	if *s.Box != want {
		t.Errorf("box = %+v, want %+v", *s.Box, want)
	}
	c := s.Box.Center()
	if c.X != 320 || c.Y != 192 {
		t.Errorf("centre = %+v, want (320, 192)", c)
	}
}

func TestEstimateExpressions_SumsToOne(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame image.Image
	}{
		{name: "all black", frame: solid(16, 16, color.Black)},
		{name: "all white", frame: solid(16, 16, color.White)},
		{name: "blue", frame: solid(16, 16, color.RGBA{B: 255, A: 255})},
		{name: "gray image", frame: image.NewGray(image.Rect(0, 0, 8, 8))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			for _, rnd := range []float64{0, 0.5, 0.999} {
				e := EstimateExpressions(MeasurePixels(tc.frame), 1_700_000_000_000, rnd)
				var sum float64
				for k, v := range e {
					if v < 0 || v > 1 || math.IsNaN(v) {
						t.Errorf("%s = %v out of range", k, v)
					}
					sum += v
				}
				if math.Abs(sum-1) > 1e-9 {
					t.Errorf("sum = %v, want 1", sum)
				}
				if len(e) != 7 {
					t.Errorf("got %d labels, want 7", len(e))
				}
			}
		})
	}
}

func TestEstimateExpressions_DarkFrameIsDull(t *testing.T) {
	t.Parallel()

	dark := EstimateExpressions(MeasurePixels(solid(4, 4, color.Black)), 0, 0)
	bright := EstimateExpressions(MeasurePixels(solid(4, 4, color.White)), 0, 0)
	if dark["dull"] <= bright["dull"] {
		t.Errorf("dull dark=%v bright=%v, want dark > bright", dark["dull"], bright["dull"])
	}
	if dark["confident"] >= bright["confident"] {
		t.Errorf("confident dark=%v bright=%v, want dark < bright", dark["confident"], bright["confident"])
	}
}

func TestMeasurePixels(t *testing.T) {
	t.Parallel()

	st := MeasurePixels(solid(3, 3, color.RGBA{R: 255, G: 0, B: 51, A: 255}))
	if math.Abs(st.R-1) > 1e-9 || st.G != 0 || math.Abs(st.B-0.2) > 1e-9 {
		t.Errorf("stats = %+v", st)
	}
	if math.Abs(st.Brightness-0.4) > 1e-9 {
		t.Errorf("brightness = %v, want 0.4", st.Brightness)
	}
}
