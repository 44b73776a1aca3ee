package interview

import (
	"math"
	"slices"
	"time"

	"github.com/MrWong99/interviewcoach/internal/monitor"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

// Phase is the coarse lifecycle position of a session.
type Phase int

const (
	// PhaseLoading means questions are being fetched.
	PhaseLoading Phase = iota

	// PhaseNoQuestions means every question source failed. The session
	// waits for ReloadQuestions or Restart.
	PhaseNoQuestions

	// PhaseReady shows a question with capture stopped.
	PhaseReady

	// PhaseRecording shows a question with capture and analysis running.
	PhaseRecording

	// PhaseSubmitting means the final payload is being sent.
	PhaseSubmitting

	// PhaseSubmitFailed means the payload is pending and Submit may retry it.
	PhaseSubmitFailed

	// PhaseCompleted means the session was submitted.
	PhaseCompleted
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseNoQuestions:
		return "no_questions"
	case PhaseReady:
		return "ready"
	case PhaseRecording:
		return "recording"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSubmitFailed:
		return "submit_failed"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// questionActive reports whether a question is on screen.
func (p Phase) questionActive() bool {
	return p == PhaseReady || p == PhaseRecording
}

// State is the mutable session state shared by every tick handler. Only the
// controller's loop goroutine touches it, and only through the methods below.
type State struct {
	Phase Phase
	Err   error

	QuestionIndex int
	QuestionStart time.Time

	Live     types.ScoreSnapshot
	History  []types.ScoreSnapshot
	Speech   types.SpeechState
	Presence monitor.State
	Alert    bool

	Emotion  string
	Emotions []types.EmotionSample

	Recommendations []string

	emotionLimit int
}

func newState(emotionLimit int) *State {
	if emotionLimit <= 0 {
		emotionLimit = 20
	}
	return &State{Emotion: "neutral", emotionLimit: emotionLimit}
}

func (s *State) setPhase(p Phase, err error) {
	s.Phase = p
	s.Err = err
}

// beginQuestion clears everything scoped to one question.
func (s *State) beginQuestion(index int, now time.Time) {
	s.QuestionIndex = index
	s.QuestionStart = now
	s.Live = types.ScoreSnapshot{Timestamp: now}
	s.History = nil
	s.Speech = types.SpeechState{IsSpeaking: s.Speech.IsSpeaking, LastSpeech: now}
	s.Presence = monitor.Active
	s.Alert = false
	s.Recommendations = nil
}

// resetSession discards all per-session data, as on a user restart.
func (s *State) resetSession() {
	limit := s.emotionLimit
	*s = State{Emotion: "neutral", emotionLimit: limit}
}

func (s *State) setEmotionLimit(n int) {
	if n <= 0 {
		return
	}
	s.emotionLimit = n
	s.trimEmotions()
}

func (s *State) applySynthesis(sample types.DetectionSample, snap types.ScoreSnapshot) {
	s.Live = snap
	s.History = append(s.History, snap)
	s.Presence = monitor.Active

	label, p := types.DominantEmotion(sample.Expressions)
	if sample.DominantEmotion != "" {
		label, p = sample.DominantEmotion, sample.Expressions[sample.DominantEmotion]
	}
	s.recordEmotion(label, p, sample.Timestamp)
}

// applyNoFace marks the live view as "no data" without touching the scores;
// the monitor decays them once the absence timeout passes.
func (s *State) applyNoFace() {
	s.Emotion = "no_face"
	s.Live.FaceDetected = false
}

func (s *State) applySpeech(st types.SpeechState) {
	s.Speech = st
	s.Live.SpeechActive = st.IsSpeaking
}

func (s *State) clearAlert() { s.Alert = false }

// speechAt returns the speech state with the silence duration recomputed at now.
func (s *State) speechAt(now time.Time) types.SpeechState {
	st := s.Speech
	if st.IsSpeaking {
		st.SilenceDuration = 0
		return st
	}
	st.SilenceDuration = max(now.Sub(st.LastSpeech), 0)
	return st
}

func (s *State) applyMonitor(res monitor.Result, speech types.SpeechState) {
	s.Speech = speech
	s.Presence = res.State
	s.Alert = res.Alert
	s.Live = res.Live
	if res.Decayed != nil {
		s.History = append(s.History, *res.Decayed)
	}
}

func (s *State) applyRemoteScores(snap types.ScoreSnapshot, emotion string, recs []string) {
	s.Live = snap
	if emotion != "" {
		s.Emotion = emotion
	}
	if len(recs) > 0 {
		s.Recommendations = slices.Clone(recs)
	}
}

func (s *State) recordEmotion(label string, p float64, at time.Time) {
	s.Emotion = label
	s.Emotions = append(s.Emotions, types.EmotionSample{
		Emotion:    label,
		Confidence: int(math.Round(p * 100)),
		Timestamp:  at,
	})
	s.trimEmotions()
}

func (s *State) trimEmotions() {
	if n := len(s.Emotions); n > s.emotionLimit {
		s.Emotions = slices.Clone(s.Emotions[n-s.emotionLimit:])
	}
}
