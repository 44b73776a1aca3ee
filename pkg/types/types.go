// Package types defines the shared types used across all interviewcoach packages.
//
// These types form the lingua franca between the analyzer, the scorer, the
// presence monitor, the aggregator and the transport. Each package defines its
// own domain types; cross-cutting data structures live here to avoid circular
// imports.
package types

import (
	"math"
	"sort"
	"time"
)

// InterviewType selects the question bank requested from the backend.
type InterviewType string

const (
	InterviewBehavioral InterviewType = "behavioral"
	InterviewHR         InterviewType = "hr"
	InterviewTechnical  InterviewType = "technical"
)

// IsValid reports whether t is a recognised interview type.
func (t InterviewType) IsValid() bool {
	switch t {
	case InterviewBehavioral, InterviewHR, InterviewTechnical:
		return true
	}
	return false
}

// AnalysisSource records which analyzer strategy produced a sample.
type AnalysisSource string

const (
	// SourceModel marks samples produced by a trained face detector.
	SourceModel AnalysisSource = "model"

	// SourceFallback marks samples synthesised from pixel statistics.
	SourceFallback AnalysisSource = "fallback"
)

// Point is a 2-D pixel coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is a face rectangle in the pixel coordinates of the analysed frame.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the centre point of the box.
func (b BoundingBox) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Area returns the box area in square pixels.
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// Landmarks holds the facial landmark subset used for eye-contact estimation.
// Detectors that produce the full 68-point model reduce it to these centroids.
type Landmarks struct {
	LeftEye  Point `json:"leftEye"`
	RightEye Point `json:"rightEye"`
	Nose     Point `json:"nose"`
	Mouth    Point `json:"mouth"`
}

// DetectionSample is one analysis tick's raw face/expression output.
type DetectionSample struct {
	// Timestamp is when the frame was analysed.
	Timestamp time.Time

	// FaceDetected is false when the analyzer found no face in the frame.
	FaceDetected bool

	// Box is the face rectangle. Nil when no face was detected.
	Box *BoundingBox

	// Landmarks is nil for the fallback estimator and for detectors that do
	// not report landmarks.
	Landmarks *Landmarks

	// Expressions maps emotion label to probability in [0, 1].
	Expressions map[string]float64

	// DominantEmotion is the arg-max over Expressions.
	DominantEmotion string

	// FrameWidth and FrameHeight are the analysed frame's dimensions in pixels.
	FrameWidth  int
	FrameHeight int

	// Source records which analyzer strategy produced the sample.
	Source AnalysisSource
}

// DominantEmotion returns the label with the highest probability and that
// probability. Ties resolve to the alphabetically first label so that the
// result is deterministic. An empty map yields ("neutral", 0).
func DominantEmotion(expressions map[string]float64) (string, float64) {
	if len(expressions) == 0 {
		return "neutral", 0
	}
	labels := make([]string, 0, len(expressions))
	for k := range expressions {
		labels = append(labels, k)
	}
	sort.Strings(labels)

	best, bestP := labels[0], expressions[labels[0]]
	for _, l := range labels[1:] {
		if p := expressions[l]; p > bestP {
			best, bestP = l, p
		}
	}
	return best, bestP
}

// EmotionSample is one entry of the rolling emotion history shown to the user.
type EmotionSample struct {
	Emotion    string    `json:"emotion"`
	Confidence int       `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// ScoreSnapshot is one tick's normalised eye-contact/confidence/engagement
// percentages. Values are immutable once appended to a history.
type ScoreSnapshot struct {
	EyeContact   int       `json:"eyeContact"`
	Confidence   int       `json:"confidence"`
	Engagement   int       `json:"engagement"`
	UserPresent  bool      `json:"userPresent"`
	FaceDetected bool      `json:"faceDetected"`
	SpeechActive bool      `json:"speechActive"`
	Timestamp    time.Time `json:"timestamp"`
}

// Clamp returns a copy of s with every percentage limited to [0, 100].
func (s ScoreSnapshot) Clamp() ScoreSnapshot {
	s.EyeContact = ClampPercent(float64(s.EyeContact))
	s.Confidence = ClampPercent(float64(s.Confidence))
	s.Engagement = ClampPercent(float64(s.Engagement))
	return s
}

// Valid reports whether the snapshot should count towards answer averages.
func (s ScoreSnapshot) Valid() bool {
	return s.FaceDetected && s.UserPresent
}

// ClampPercent rounds v to the nearest integer and limits it to [0, 100].
// NaN maps to 0.
func ClampPercent(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	r := math.Round(v)
	switch {
	case r < 0:
		return 0
	case r > 100:
		return 100
	}
	return int(r)
}

// SpeechState tracks whether the candidate is currently speaking.
type SpeechState struct {
	IsSpeaking      bool
	LastSpeech      time.Time
	SilenceDuration time.Duration
}

// Question is a single interview question.
type Question struct {
	ID       string        `json:"_id"`
	Text     string        `json:"question"`
	Category string        `json:"category"`
	Type     InterviewType `json:"type,omitempty"`
}

// AverageScores holds per-category means over a set of snapshots.
type AverageScores struct {
	EyeContact int `json:"eyeContact"`
	Confidence int `json:"confidence"`
	Engagement int `json:"engagement"`
}

// Overall returns the rounded mean of the three categories.
func (a AverageScores) Overall() int {
	return int(math.Round(float64(a.EyeContact+a.Confidence+a.Engagement) / 3))
}

// QuestionAnswerRecord summarises the candidate's performance on one question.
type QuestionAnswerRecord struct {
	QuestionID     string          `json:"questionId"`
	QuestionText   string          `json:"question"`
	QuestionIndex  int             `json:"questionIndex"`
	AverageScores  AverageScores   `json:"averageScores"`
	ValidSamples   int             `json:"validSamples"`
	EmotionSamples []EmotionSample `json:"emotionData"`
	Timestamp      time.Time       `json:"timestamp"`
}

// SessionData is the bookkeeping block nested in [CategoryFeedback].
type SessionData struct {
	QuestionsAnswered int           `json:"questionsAnswered"`
	TotalQuestions    int           `json:"totalQuestions"`
	InterviewType     InterviewType `json:"interviewType"`
}

// CategoryFeedback carries the human-readable feedback per score category.
type CategoryFeedback struct {
	Overall         string      `json:"overall"`
	EyeContact      string      `json:"eyeContact"`
	Confidence      string      `json:"confidence"`
	Engagement      string      `json:"engagement"`
	EmotionAnalysis string      `json:"emotionAnalysis"`
	Coaching        string      `json:"coaching,omitempty"`
	SessionData     SessionData `json:"sessionData"`
}

// SessionSubmission is the payload posted to the backend once per session.
type SessionSubmission struct {
	Type               InterviewType          `json:"type"`
	DurationMinutes    int                    `json:"duration"`
	OverallScore       int                    `json:"score"`
	Feedback           CategoryFeedback       `json:"feedback"`
	Answers            []QuestionAnswerRecord `json:"answers"`
	FinalAverageScores AverageScores          `json:"realTimeScores"`
	EmotionData        []EmotionSample        `json:"emotionData"`
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}
