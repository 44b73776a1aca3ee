// Package scoring converts face/expression samples and speech state into the
// eye-contact, confidence and engagement percentages shown to the candidate.
//
// The weights and thresholds are policy, not measurement: they are tuned to
// give stable, plausible feedback and are exposed through [Weights] so that
// deployments can adjust them from configuration.
package scoring

import (
	"math"
	"time"

	"github.com/MrWong99/interviewcoach/pkg/types"
)

// composure lists the expression labels that raise the confidence score.
var composure = map[string]bool{
	"happy":      true,
	"confident":  true,
	"focused":    true,
	"neutral":    true,
	"thoughtful": true,
	"calm":       true,
}

// Weights holds the tunable scoring policy.
type Weights struct {
	// TargetX and TargetY are the ideal normalised face centre.
	TargetX, TargetY float64
	// CenterRadius is the normalised distance at which centering reaches 0.
	CenterRadius float64

	// EyeCentering and EyeForward weight the eye-contact score when
	// landmarks are available.
	EyeCentering, EyeForward float64
	// EyeBase and EyeBaseCentering are used without landmarks:
	// eyeContact = EyeBase + EyeBaseCentering*centering.
	EyeBase, EyeBaseCentering float64

	// ConfEmotion, ConfStability and ConfSize weight the confidence score.
	ConfEmotion, ConfStability, ConfSize float64
	// FullSizeRatio is the face/frame area ratio that counts as fully present.
	FullSizeRatio float64
	// MaxShift is the normalised centre movement between ticks at which
	// stability reaches 0.
	MaxShift float64

	// EngSpeech and EngVariability weight the engagement score.
	EngSpeech, EngVariability float64
	// SilenceHorizon is the silence after which the speech term reaches 0.
	SilenceHorizon time.Duration
	// FullVariation is the mean expression change per tick that counts as
	// fully animated.
	FullVariation float64
	// Window is the number of recent samples used for variability.
	Window int
}

// DefaultWeights returns the stock scoring policy.
func DefaultWeights() Weights {
	return Weights{
		TargetX:          0.5,
		TargetY:          0.45,
		CenterRadius:     0.5,
		EyeCentering:     0.4,
		EyeForward:       0.6,
		EyeBase:          0.3,
		EyeBaseCentering: 0.7,
		ConfEmotion:      0.5,
		ConfStability:    0.25,
		ConfSize:         0.25,
		FullSizeRatio:    0.2,
		MaxShift:         0.25,
		EngSpeech:        0.6,
		EngVariability:   0.4,
		SilenceHorizon:   30 * time.Second,
		FullVariation:    0.25,
		Window:           5,
	}
}

// RemoteScores is a server-computed score triple received over the transport.
type RemoteScores struct {
	EyeContact float64
	Confidence float64
	Engagement float64
}

// Synthesizer turns detection samples into score snapshots. It remembers the
// previous face position and a short expression history, so one Synthesizer
// serves one question; call Reset between questions.
//
// Synthesizer is not safe for concurrent use.
type Synthesizer struct {
	w Weights

	prevCenter *types.Point
	recent     []map[string]float64
}

// New creates a Synthesizer with the given weights.
func New(w Weights) *Synthesizer {
	if w.Window < 2 {
		w.Window = 2
	}
	return &Synthesizer{w: w}
}

// SetWeights replaces the policy. History is kept.
func (s *Synthesizer) SetWeights(w Weights) {
	if w.Window < 2 {
		w.Window = 2
	}
	s.w = w
}

// Reset forgets the previous position and expression history.
func (s *Synthesizer) Reset() {
	s.prevCenter = nil
	s.recent = nil
}

// Synthesize scores one sample. It must only be called for samples with
// FaceDetected set; the caller decides presence.
func (s *Synthesizer) Synthesize(sample types.DetectionSample, speech types.SpeechState) types.ScoreSnapshot {
	center, ok := normalisedCenter(sample)

	centering := 0.0
	if ok {
		d := math.Hypot(center.X-s.w.TargetX, center.Y-s.w.TargetY)
		centering = 1 - math.Min(1, d/s.w.CenterRadius)
	}

	var eye float64
	if sample.Landmarks != nil {
		eye = s.w.EyeCentering*centering + s.w.EyeForward*forwardGaze(*sample.Landmarks)
	} else {
		eye = s.w.EyeBase + s.w.EyeBaseCentering*centering
	}

	stability := 1.0
	if ok && s.prevCenter != nil {
		shift := math.Hypot(center.X-s.prevCenter.X, center.Y-s.prevCenter.Y)
		stability = 1 - math.Min(1, shift/s.w.MaxShift)
	}
	if ok {
		c := center
		s.prevCenter = &c
	}

	conf := s.w.ConfEmotion*emotionTerm(sample.Expressions) +
		s.w.ConfStability*stability +
		s.w.ConfSize*s.sizeTerm(sample)

	s.push(sample.Expressions)
	eng := s.w.EngSpeech*s.speechTerm(speech) + s.w.EngVariability*s.variability()

	return types.ScoreSnapshot{
		EyeContact:   types.ClampPercent(eye * 100),
		Confidence:   types.ClampPercent(conf * 100),
		Engagement:   types.ClampPercent(eng * 100),
		UserPresent:  true,
		FaceDetected: true,
		SpeechActive: speech.IsSpeaking,
		Timestamp:    sample.Timestamp,
	}
}

// ApplyRemote converts server-computed scores into a snapshot, clamping each
// value to [0, 100]. Presence flags and speech activity are carried over from
// prev.
func ApplyRemote(prev types.ScoreSnapshot, r RemoteScores, now time.Time) types.ScoreSnapshot {
	return types.ScoreSnapshot{
		EyeContact:   types.ClampPercent(r.EyeContact),
		Confidence:   types.ClampPercent(r.Confidence),
		Engagement:   types.ClampPercent(r.Engagement),
		UserPresent:  prev.UserPresent,
		FaceDetected: prev.FaceDetected,
		SpeechActive: prev.SpeechActive,
		Timestamp:    now,
	}
}

func normalisedCenter(sample types.DetectionSample) (types.Point, bool) {
	if sample.Box == nil || sample.FrameWidth <= 0 || sample.FrameHeight <= 0 {
		return types.Point{}, false
	}
	c := sample.Box.Center()
	return types.Point{
		X: c.X / float64(sample.FrameWidth),
		Y: c.Y / float64(sample.FrameHeight),
	}, true
}

// forwardGaze estimates how directly the face points at the camera from the
// nose offset relative to the eye midpoint, attenuated by head roll.
func forwardGaze(lm types.Landmarks) float64 {
	eyeDist := math.Hypot(lm.RightEye.X-lm.LeftEye.X, lm.RightEye.Y-lm.LeftEye.Y)
	if eyeDist == 0 {
		return 0
	}
	midX := (lm.LeftEye.X + lm.RightEye.X) / 2
	yaw := 1 - math.Min(1, math.Abs(lm.Nose.X-midX)/(0.5*eyeDist))
	roll := 1 - math.Min(1, math.Abs(lm.LeftEye.Y-lm.RightEye.Y)/eyeDist)
	return yaw * roll
}

func emotionTerm(expr map[string]float64) float64 {
	if len(expr) == 0 {
		return 0.5
	}
	label, p := types.DominantEmotion(expr)
	if composure[label] {
		return 0.5 + 0.5*p
	}
	return 0.5 - 0.5*p
}

func (s *Synthesizer) sizeTerm(sample types.DetectionSample) float64 {
	if sample.Box == nil || sample.FrameWidth <= 0 || sample.FrameHeight <= 0 {
		return 0
	}
	ratio := sample.Box.Area() / float64(sample.FrameWidth*sample.FrameHeight)
	return math.Min(1, ratio/s.w.FullSizeRatio)
}

func (s *Synthesizer) speechTerm(st types.SpeechState) float64 {
	if st.IsSpeaking {
		return 1
	}
	if s.w.SilenceHorizon <= 0 {
		return 0
	}
	return math.Max(0, 1-float64(st.SilenceDuration)/float64(s.w.SilenceHorizon))
}

func (s *Synthesizer) push(expr map[string]float64) {
	s.recent = append(s.recent, expr)
	if len(s.recent) > s.w.Window {
		s.recent = s.recent[len(s.recent)-s.w.Window:]
	}
}

// variability is the mean total variation distance between consecutive
// expression distributions, scaled to [0, 1].
func (s *Synthesizer) variability() float64 {
	if len(s.recent) < 2 {
		return 0.5
	}
	var sum float64
	for i := 1; i < len(s.recent); i++ {
		sum += totalVariation(s.recent[i-1], s.recent[i])
	}
	mean := sum / float64(len(s.recent)-1)
	return math.Min(1, mean/s.w.FullVariation)
}

func totalVariation(a, b map[string]float64) float64 {
	var d float64
	for k, v := range a {
		d += math.Abs(v - b[k])
	}
	for k, v := range b {
		if _, ok := a[k]; !ok {
			d += math.Abs(v)
		}
	}
	return d / 2
}
