package analysis

import (
	"image"
	"math"

	"github.com/MrWong99/interviewcoach/pkg/types"
)

// Fallback face placement, as fractions of the frame.
const (
	fallbackCenterX = 0.5
	fallbackCenterY = 0.4
	fallbackWidth   = 0.4
	fallbackHeight  = 0.5
)

// PixelStats are the mean channel values of a frame, each in [0, 1].
type PixelStats struct {
	Brightness float64
	R, G, B    float64
}

// MeasurePixels computes the mean brightness and per-channel colour of img.
func MeasurePixels(img image.Image) PixelStats {
	b := img.Bounds()
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return PixelStats{}
	}

	var rs, gs, bs float64
	switch src := img.(type) {
	case *image.RGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, y):src.PixOffset(b.Max.X, y)]
			for i := 0; i+3 < len(row); i += 4 {
				rs += float64(row[i])
				gs += float64(row[i+1])
				bs += float64(row[i+2])
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bb, _ := img.At(x, y).RGBA()
				rs += float64(r >> 8)
				gs += float64(g >> 8)
				bs += float64(bb >> 8)
			}
		}
	}

	st := PixelStats{
		R: rs / n / 255,
		G: gs / n / 255,
		B: bs / n / 255,
	}
	st.Brightness = (st.R + st.G + st.B) / 3
	return st
}

// EstimateExpressions derives a normalised expression distribution from pixel
// statistics, a slow time-of-day oscillation (nowMs in Unix milliseconds) and
// one random draw in [0, 1). The result always sums to 1.
func EstimateExpressions(st PixelStats, nowMs int64, rnd float64) map[string]float64 {
	t := math.Sin(float64(nowMs)/10000)*0.3 + 0.5
	color := (st.R + st.G*1.2 + st.B*0.8) / 3

	dullBias := 0.0
	if st.Brightness < 0.4 {
		dullBias = 0.3
	}

	e := map[string]float64{
		"happy":      clamp(color*0.4+t*0.3, 0, 1),
		"confident":  clamp(st.Brightness*0.6+t*0.2, 0, 1),
		"focused":    clamp((1-st.Brightness)*0.4+0.3, 0, 1),
		"neutral":    clamp(0.5-math.Abs(t-0.5), 0.1, 0.8),
		"surprised":  clamp(rnd*0.2, 0, 0.3),
		"thoughtful": clamp((st.B-st.R)*0.5+0.2, 0, 0.4),
		"dull":       clamp((1-color)*0.3+dullBias, 0, 0.6),
	}

	var total float64
	for _, v := range e {
		total += v
	}
	// focused alone is at least 0.3, so total is never zero.
	for k, v := range e {
		e[k] = v / total
	}
	return e
}

func (a *Analyzer) fallback(img image.Image) types.DetectionSample {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	now := a.now()

	expr := EstimateExpressions(MeasurePixels(img), now.UnixMilli(), a.rand())
	dominant, _ := types.DominantEmotion(expr)

	bw, bh := w*fallbackWidth, h*fallbackHeight
	return types.DetectionSample{
		Timestamp:    now,
		FaceDetected: true,
		Box: &types.BoundingBox{
			X:      w*fallbackCenterX - bw/2,
			Y:      h*fallbackCenterY - bh/2,
			Width:  bw,
			Height: bh,
		},
		Expressions:     expr,
		DominantEmotion: dominant,
		FrameWidth:      b.Dx(),
		FrameHeight:     b.Dy(),
		Source:          types.SourceFallback,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
