// Package aggregate turns per-question score histories into answer records and
// builds, submits and retries the final session payload.
//
// An [Aggregator] holds everything a session produces until the backend has
// accepted the submission. A failed submission keeps the payload pending so
// the user can retry; only a successful submission or an explicit [Aggregator.Reset]
// discards it.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/interviewcoach/internal/observe"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

var (
	// ErrSubmissionFailed wraps any error returned while sending the payload.
	// The payload stays pending and can be resent with [Aggregator.Retry].
	ErrSubmissionFailed = errors.New("aggregate: submission failed")

	// ErrAlreadySubmitted is returned when a submission is in flight or the
	// session has already been accepted by the backend.
	ErrAlreadySubmitted = errors.New("aggregate: session already submitted")

	// ErrNothingPending is returned by Retry when no payload is waiting.
	ErrNothingPending = errors.New("aggregate: no pending submission")
)

// Submitter sends a finished session to the backend.
type Submitter interface {
	SubmitSession(ctx context.Context, s types.SessionSubmission) error
}

// Coach writes free-form coaching notes for a finished session.
type Coach interface {
	Notes(ctx context.Context, s types.SessionSubmission) (string, error)
}

// Meta describes the session being finalised.
type Meta struct {
	Type           types.InterviewType
	TotalQuestions int

	// Emotions is the rolling emotion history at the time of completion.
	Emotions []types.EmotionSample
}

// DefaultMinScore is the lowest overall score ever reported.
const DefaultMinScore = 60

// Option configures an [Aggregator].
type Option func(*Aggregator)

// WithCoach enables LLM-written coaching notes.
func WithCoach(c Coach) Option {
	return func(a *Aggregator) { a.coach = c }
}

// WithMinScore overrides [DefaultMinScore].
func WithMinScore(n int) Option {
	return func(a *Aggregator) { a.minScore = n }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// Aggregator accumulates answer records for one session. It is safe for
// concurrent use.
type Aggregator struct {
	submitter Submitter
	coach     Coach
	minScore  int
	metrics   *observe.Metrics

	mu         sync.Mutex
	started    time.Time
	answers    []types.QuestionAnswerRecord
	pending    *types.SessionSubmission
	submitting bool
	submitted  bool
}

// New returns an Aggregator that submits through s.
func New(s Submitter, opts ...Option) *Aggregator {
	a := &Aggregator{submitter: s, minScore: DefaultMinScore}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// MarkStart records the first recording start. Later calls are ignored so the
// duration always covers the whole session.
func (a *Aggregator) MarkStart(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started.IsZero() {
		a.started = t
	}
}

// Average computes rounded per-category means over the snapshots that count
// (face detected and user present). It returns the averages and the number of
// valid snapshots; with none, all averages are 0.
func Average(history []types.ScoreSnapshot) (types.AverageScores, int) {
	var eye, conf, eng float64
	n := 0
	for _, s := range history {
		if !s.Valid() {
			continue
		}
		eye += float64(s.EyeContact)
		conf += float64(s.Confidence)
		eng += float64(s.Engagement)
		n++
	}
	if n == 0 {
		return types.AverageScores{}, 0
	}
	return types.AverageScores{
		EyeContact: int(math.Round(eye / float64(n))),
		Confidence: int(math.Round(conf / float64(n))),
		Engagement: int(math.Round(eng / float64(n))),
	}, n
}

// RecordAnswer summarises history for the question at index and appends the
// record. The history and emotion slices are copied; callers may reuse them.
func (a *Aggregator) RecordAnswer(index int, q types.Question, history []types.ScoreSnapshot, emotions []types.EmotionSample, now time.Time) types.QuestionAnswerRecord {
	avg, n := Average(history)
	rec := types.QuestionAnswerRecord{
		QuestionID:     q.ID,
		QuestionText:   q.Text,
		QuestionIndex:  index,
		AverageScores:  avg,
		ValidSamples:   n,
		EmotionSamples: append([]types.EmotionSample(nil), emotions...),
		Timestamp:      now,
	}

	a.mu.Lock()
	a.answers = append(a.answers, rec)
	a.mu.Unlock()

	slog.Debug("answer recorded",
		"question", q.ID,
		"index", index,
		"valid_samples", n,
		"eye_contact", avg.EyeContact,
		"confidence", avg.Confidence,
		"engagement", avg.Engagement,
	)
	return rec
}

// Answers returns a copy of the records collected so far.
func (a *Aggregator) Answers() []types.QuestionAnswerRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.QuestionAnswerRecord(nil), a.answers...)
}

// Pending returns the payload waiting for a successful submission.
func (a *Aggregator) Pending() (types.SessionSubmission, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return types.SessionSubmission{}, false
	}
	return *a.pending, true
}

// Finalize builds the session payload from all recorded answers and submits
// it. On failure the payload stays pending and the returned error wraps
// [ErrSubmissionFailed]. Calling Finalize again while a payload is pending
// resends that payload unchanged.
func (a *Aggregator) Finalize(ctx context.Context, meta Meta, now time.Time) (types.SessionSubmission, error) {
	a.mu.Lock()
	switch {
	case a.submitted || a.submitting:
		a.mu.Unlock()
		return types.SessionSubmission{}, ErrAlreadySubmitted
	case a.pending != nil:
		a.mu.Unlock()
		return a.retry(ctx)
	}
	a.submitting = true
	sub := a.build(meta, now)
	a.mu.Unlock()

	if a.coach != nil {
		start := time.Now()
		notes, err := a.coach.Notes(ctx, sub)
		a.metrics.CoachDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			slog.Warn("coaching notes unavailable, using template feedback", "err", err)
		} else {
			sub.Feedback.Coaching = notes
		}
	}

	a.mu.Lock()
	a.pending = &sub
	a.mu.Unlock()

	return a.send(ctx, sub)
}

// Retry resends the pending payload exactly as it was built.
func (a *Aggregator) Retry(ctx context.Context) error {
	_, err := a.retry(ctx)
	return err
}

func (a *Aggregator) retry(ctx context.Context) (types.SessionSubmission, error) {
	a.mu.Lock()
	switch {
	case a.submitted || a.submitting:
		a.mu.Unlock()
		return types.SessionSubmission{}, ErrAlreadySubmitted
	case a.pending == nil:
		a.mu.Unlock()
		return types.SessionSubmission{}, ErrNothingPending
	}
	a.submitting = true
	sub := *a.pending
	a.mu.Unlock()

	return a.send(ctx, sub)
}

// send posts sub. The caller must have set a.submitting.
func (a *Aggregator) send(ctx context.Context, sub types.SessionSubmission) (types.SessionSubmission, error) {
	err := a.submitter.SubmitSession(ctx, sub)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitting = false
	if err != nil {
		a.metrics.RecordSubmission(ctx, "error")
		slog.Error("session submission failed", "err", err, "answers", len(sub.Answers))
		return sub, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	a.metrics.RecordSubmission(ctx, "ok")
	slog.Info("session submitted", "score", sub.OverallScore, "duration_min", sub.DurationMinutes)
	a.submitted = true
	a.clear()
	return sub, nil
}

// Reset discards every answer and any pending payload. It is the user's
// explicit restart; nothing else drops unsent data.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending != nil {
		slog.Warn("discarding unsent session", "answers", len(a.pending.Answers))
	}
	a.clear()
	a.submitted = false
}

// clear drops session data. Must be called with a.mu held.
func (a *Aggregator) clear() {
	a.answers = nil
	a.pending = nil
	a.started = time.Time{}
}

// build assembles the payload. Must be called with a.mu held.
func (a *Aggregator) build(meta Meta, now time.Time) types.SessionSubmission {
	avg := sessionAverage(a.answers)
	overall := avg.Overall()

	duration := 1
	if !a.started.IsZero() {
		if m := int(now.Sub(a.started) / time.Minute); m > 1 {
			duration = m
		}
	}

	emotions := append([]types.EmotionSample(nil), meta.Emotions...)
	return types.SessionSubmission{
		Type:               meta.Type,
		DurationMinutes:    duration,
		OverallScore:       max(overall, a.minScore),
		Feedback:           feedback(meta, avg, overall, len(a.answers), emotions),
		Answers:            append([]types.QuestionAnswerRecord(nil), a.answers...),
		FinalAverageScores: avg,
		EmotionData:        emotions,
	}
}

// sessionAverage is the rounded mean of the per-answer averages.
func sessionAverage(answers []types.QuestionAnswerRecord) types.AverageScores {
	if len(answers) == 0 {
		return types.AverageScores{}
	}
	var eye, conf, eng float64
	for _, r := range answers {
		eye += float64(r.AverageScores.EyeContact)
		conf += float64(r.AverageScores.Confidence)
		eng += float64(r.AverageScores.Engagement)
	}
	n := float64(len(answers))
	return types.AverageScores{
		EyeContact: int(math.Round(eye / n)),
		Confidence: int(math.Round(conf / n)),
		Engagement: int(math.Round(eng / n)),
	}
}
