// Package monitor implements the per-question presence and decay state
// machine.
//
// The monitor runs on its own fixed-period ticker, independent of the
// analysis ticker. A question starts ACTIVE; it becomes ABSENT once no face
// has been seen for longer than the absence timeout, and returns to ACTIVE on
// the next detection. While ABSENT and recording, the live scores decay
// towards zero and each decayed value is appended to the score history,
// marked as not present so that answer averages exclude it.
//
// The monitor also owns the silence policy: a "please speak" alert after
// sustained silence, an engagement-only decay for a present but silent
// candidate, and a one-shot auto-advance after very long silence.
package monitor

import (
	"math"
	"time"

	"github.com/MrWong99/interviewcoach/pkg/types"
)

// State is the presence state of the current question.
type State int

const (
	// Active means a face was seen within the absence timeout.
	Active State = iota

	// Absent means no face has been seen for longer than the absence timeout.
	Absent
)

// String returns "ACTIVE" or "ABSENT".
func (s State) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Absent:
		return "ABSENT"
	default:
		return "UNKNOWN"
	}
}

// Policy holds the monitor's thresholds and decay factors.
type Policy struct {
	AbsenceTimeout        time.Duration
	SilenceAlertAfter     time.Duration
	AutoAdvanceAfter      time.Duration
	EngagementDecayAfter  time.Duration
	DecayFactor           float64
	EngagementDecayFactor float64
}

// DefaultPolicy returns the stock thresholds: 2 s absence, 30 s alert, 180 s
// auto-advance, 60 s engagement decay, factors 0.95 and 0.98.
func DefaultPolicy() Policy {
	return Policy{
		AbsenceTimeout:        2 * time.Second,
		SilenceAlertAfter:     30 * time.Second,
		AutoAdvanceAfter:      180 * time.Second,
		EngagementDecayAfter:  60 * time.Second,
		DecayFactor:           0.95,
		EngagementDecayFactor: 0.98,
	}
}

// Input is the session state the monitor reads on each tick.
type Input struct {
	Now       time.Time
	Recording bool
	Speech    types.SpeechState
	Live      types.ScoreSnapshot
}

// Result is what one tick decided. The controller applies it to session
// state.
type Result struct {
	State State

	// Live is the live snapshot after any decay. Equal to Input.Live when no
	// decay applied.
	Live types.ScoreSnapshot

	// Decayed is the snapshot to append to the score history, or nil.
	Decayed *types.ScoreSnapshot

	// EngagementDecayed is set when the present-but-silent decay applied.
	EngagementDecayed bool

	// AlertRaised is set on the tick that raises the silence alert.
	AlertRaised bool

	// Alert reports whether the silence alert is showing after this tick.
	Alert bool

	// Advance is set on the single tick that requests an auto-advance.
	Advance bool
}

// Monitor tracks presence and silence for one question at a time. It is not
// safe for concurrent use.
type Monitor struct {
	policy Policy

	lastFace time.Time
	alert    bool
	advanced bool
}

// New creates a Monitor. The question clock starts at start.
func New(p Policy, start time.Time) *Monitor {
	return &Monitor{policy: p, lastFace: start}
}

// SetPolicy replaces the thresholds. It takes effect on the next tick.
func (m *Monitor) SetPolicy(p Policy) { m.policy = p }

// Reset starts a new question: presence is assumed, the alert is cleared and
// the auto-advance latch is released.
func (m *Monitor) Reset(now time.Time) {
	m.lastFace = now
	m.alert = false
	m.advanced = false
}

// ObserveFace records a successful detection.
func (m *Monitor) ObserveFace(now time.Time) {
	if now.After(m.lastFace) {
		m.lastFace = now
	}
}

// SpeechStarted clears the silence alert.
func (m *Monitor) SpeechStarted() { m.alert = false }

// Alert reports whether the silence alert is showing.
func (m *Monitor) Alert() bool { return m.alert }

// State returns the presence state at now.
func (m *Monitor) State(now time.Time) State {
	if now.Sub(m.lastFace) > m.policy.AbsenceTimeout {
		return Absent
	}
	return Active
}

// Tick evaluates the policy once.
func (m *Monitor) Tick(in Input) Result {
	res := Result{State: m.State(in.Now), Live: in.Live}
	silence := in.Speech.SilenceDuration

	if in.Recording && !in.Speech.IsSpeaking && !m.alert && silence > m.policy.SilenceAlertAfter {
		m.alert = true
		res.AlertRaised = true
	}

	if !m.advanced && !in.Speech.IsSpeaking && silence > m.policy.AutoAdvanceAfter {
		m.advanced = true
		m.alert = false
		res.Advance = true
	}

	if in.Recording {
		switch {
		case res.State == Absent:
			live := types.ScoreSnapshot{
				EyeContact:   decay(in.Live.EyeContact, m.policy.DecayFactor),
				Confidence:   decay(in.Live.Confidence, m.policy.DecayFactor),
				Engagement:   decay(in.Live.Engagement, m.policy.DecayFactor),
				UserPresent:  false,
				FaceDetected: false,
				SpeechActive: in.Speech.IsSpeaking,
				Timestamp:    in.Now,
			}
			res.Live = live
			res.Decayed = &live
		case silence > m.policy.EngagementDecayAfter && !in.Speech.IsSpeaking:
			res.Live.Engagement = decay(in.Live.Engagement, m.policy.EngagementDecayFactor)
			res.EngagementDecayed = true
		}
	}

	res.Alert = m.alert
	return res
}

// decay scales v by factor, flooring so that repeated decay is monotone
// non-increasing and never negative.
func decay(v int, factor float64) int {
	if factor < 0 || factor > 1 {
		factor = 1
	}
	d := int(math.Floor(float64(v) * factor))
	if d < 0 {
		return 0
	}
	if d > v {
		return v
	}
	return d
}
