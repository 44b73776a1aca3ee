package aggregate_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/interviewcoach/internal/aggregate"
	"github.com/MrWong99/interviewcoach/internal/observe"
	"github.com/MrWong99/interviewcoach/pkg/types"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// fakeSubmitter records payloads and returns errs in order (nil once exhausted).
type fakeSubmitter struct {
	mu      sync.Mutex
	errs    []error
	got     []types.SessionSubmission
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeSubmitter) SubmitSession(_ context.Context, s types.SessionSubmission) error {
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, s)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeSubmitter) calls() []types.SessionSubmission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.SessionSubmission(nil), f.got...)
}

type fakeCoach struct {
	notes string
	err   error
}

func (c fakeCoach) Notes(context.Context, types.SessionSubmission) (string, error) {
	return c.notes, c.err
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func snap(eye, conf, eng int, valid bool) types.ScoreSnapshot {
	return types.ScoreSnapshot{
		EyeContact: eye, Confidence: conf, Engagement: eng,
		FaceDetected: valid, UserPresent: valid,
	}
}

func TestAverage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		history []types.ScoreSnapshot
		want    types.AverageScores
		wantN   int
	}{
		{name: "empty", want: types.AverageScores{}, wantN: 0},
		{
			name:    "only decayed samples",
			history: []types.ScoreSnapshot{snap(50, 50, 50, false), snap(40, 40, 40, false)},
			want:    types.AverageScores{},
			wantN:   0,
		},
		{
			name:    "mixed",
			history: []types.ScoreSnapshot{snap(80, 70, 61, true), snap(10, 10, 10, false), snap(71, 60, 60, true)},
			want:    types.AverageScores{EyeContact: 76, Confidence: 65, Engagement: 61},
			wantN:   2,
		},
		{
			name: "face without presence is excluded",
			history: []types.ScoreSnapshot{
				snap(90, 90, 90, true),
				{EyeContact: 0, Confidence: 0, Engagement: 0, FaceDetected: true, UserPresent: false},
			},
			want:  types.AverageScores{EyeContact: 90, Confidence: 90, Engagement: 90},
			wantN: 1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, n := aggregate.Average(tc.history)
			if got != tc.want || n != tc.wantN {
				t.Errorf("Average = %+v (%d), want %+v (%d)", got, n, tc.want, tc.wantN)
			}
		})
	}
}

func TestRecordAnswer_CopiesInputs(t *testing.T) {
	t.Parallel()

	a := aggregate.New(&fakeSubmitter{}, aggregate.WithMetrics(testMetrics(t)))
	history := []types.ScoreSnapshot{snap(60, 60, 60, true)}
	emotions := []types.EmotionSample{{Emotion: "happy", Confidence: 70, Timestamp: t0}}

	rec := a.RecordAnswer(0, types.Question{ID: "q1", Text: "Tell me about yourself."}, history, emotions, t0)
	emotions[0].Emotion = "mutated"

	if rec.QuestionID != "q1" || rec.ValidSamples != 1 || rec.AverageScores.EyeContact != 60 {
		t.Errorf("record = %+v", rec)
	}
	answers := a.Answers()
	if len(answers) != 1 || answers[0].EmotionSamples[0].Emotion != "happy" {
		t.Errorf("stored record should not alias caller slices: %+v", answers)
	}
}

func TestFinalize_BuildsPayload(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	a := aggregate.New(sub, aggregate.WithMetrics(testMetrics(t)))
	a.MarkStart(t0)
	a.MarkStart(t0.Add(time.Hour)) // ignored

	a.RecordAnswer(0, types.Question{ID: "q1"}, []types.ScoreSnapshot{snap(90, 80, 70, true)}, nil, t0.Add(time.Minute))
	a.RecordAnswer(1, types.Question{ID: "q2"}, []types.ScoreSnapshot{snap(70, 60, 50, true)}, nil, t0.Add(2*time.Minute))

	emotions := []types.EmotionSample{{Emotion: "focused", Confidence: 55}}
	got, err := a.Finalize(context.Background(), aggregate.Meta{
		Type: types.InterviewTechnical, TotalQuestions: 2, Emotions: emotions,
	}, t0.Add(3*time.Minute+50*time.Second))
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	wantAvg := types.AverageScores{EyeContact: 80, Confidence: 70, Engagement: 60}
	if got.FinalAverageScores != wantAvg {
		t.Errorf("averages = %+v, want %+v", got.FinalAverageScores, wantAvg)
	}
	if got.OverallScore != 70 {
		t.Errorf("score = %d, want 70", got.OverallScore)
	}
	if got.DurationMinutes != 3 {
		t.Errorf("duration = %d, want 3 (floored minutes)", got.DurationMinutes)
	}
	if got.Type != types.InterviewTechnical || len(got.Answers) != 2 {
		t.Errorf("payload = %+v", got)
	}
	if got.Feedback.Overall != "Completed 2 questions with 70% average performance" {
		t.Errorf("overall feedback = %q", got.Feedback.Overall)
	}
	if !strings.HasPrefix(got.Feedback.EyeContact, "Average eye contact: 80%") {
		t.Errorf("eye contact feedback = %q", got.Feedback.EyeContact)
	}
	if got.Feedback.EmotionAnalysis != "Detected 1 emotion changes" {
		t.Errorf("emotion analysis = %q", got.Feedback.EmotionAnalysis)
	}
	if got.Feedback.SessionData.QuestionsAnswered != 2 {
		t.Errorf("session data = %+v", got.Feedback.SessionData)
	}

	if calls := sub.calls(); len(calls) != 1 || !reflect.DeepEqual(calls[0], got) {
		t.Fatalf("submitter calls = %d, want the returned payload once", len(calls))
	}
	if len(a.Answers()) != 0 {
		t.Error("successful submission should clear session data")
	}
	if _, ok := a.Pending(); ok {
		t.Error("nothing should be pending after success")
	}
	if _, err := a.Finalize(context.Background(), aggregate.Meta{}, t0); !errors.Is(err, aggregate.ErrAlreadySubmitted) {
		t.Errorf("second Finalize err = %v, want ErrAlreadySubmitted", err)
	}
}

func TestFinalize_FloorsAndMinimums(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	a := aggregate.New(sub, aggregate.WithMetrics(testMetrics(t)))
	a.MarkStart(t0)
	a.RecordAnswer(0, types.Question{ID: "q1"}, []types.ScoreSnapshot{snap(20, 10, 30, true)}, nil, t0)

	got, err := a.Finalize(context.Background(), aggregate.Meta{TotalQuestions: 1}, t0.Add(20*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if got.OverallScore != aggregate.DefaultMinScore {
		t.Errorf("score = %d, want floor %d", got.OverallScore, aggregate.DefaultMinScore)
	}
	if got.DurationMinutes != 1 {
		t.Errorf("duration = %d, want minimum 1", got.DurationMinutes)
	}
	if got.Feedback.EmotionAnalysis != "Limited emotion data" {
		t.Errorf("emotion analysis = %q", got.Feedback.EmotionAnalysis)
	}
	if got.FinalAverageScores.Confidence != 10 {
		t.Errorf("averages should stay unfloored, got %+v", got.FinalAverageScores)
	}
}

func TestFinalize_NoAnswers(t *testing.T) {
	t.Parallel()

	a := aggregate.New(&fakeSubmitter{}, aggregate.WithMetrics(testMetrics(t)), aggregate.WithMinScore(50))
	got, err := a.Finalize(context.Background(), aggregate.Meta{TotalQuestions: 3}, t0)
	if err != nil {
		t.Fatal(err)
	}
	if got.OverallScore != 50 || got.FinalAverageScores != (types.AverageScores{}) {
		t.Errorf("payload = %+v", got)
	}
}

func TestFinalize_FailureKeepsPendingAndRetryResendsIdentical(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend: submit rejected: 502")
	sub := &fakeSubmitter{errs: []error{boom, boom}}
	a := aggregate.New(sub, aggregate.WithMetrics(testMetrics(t)))
	a.MarkStart(t0)
	a.RecordAnswer(0, types.Question{ID: "q1"}, []types.ScoreSnapshot{snap(90, 90, 90, true)}, nil, t0)

	_, err := a.Finalize(context.Background(), aggregate.Meta{TotalQuestions: 1}, t0.Add(5*time.Minute))
	if !errors.Is(err, aggregate.ErrSubmissionFailed) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want ErrSubmissionFailed wrapping cause", err)
	}
	pending, ok := a.Pending()
	if !ok {
		t.Fatal("payload should stay pending after failure")
	}
	if len(a.Answers()) != 1 {
		t.Error("answers must be preserved after failure")
	}

	if err := a.Retry(context.Background()); !errors.Is(err, aggregate.ErrSubmissionFailed) {
		t.Fatalf("first retry err = %v", err)
	}
	// Finalize while pending resends the same payload instead of rebuilding.
	if _, err := a.Finalize(context.Background(), aggregate.Meta{TotalQuestions: 9}, t0.Add(time.Hour)); err != nil {
		t.Fatalf("second retry: %v", err)
	}

	calls := sub.calls()
	if len(calls) != 3 {
		t.Fatalf("submit calls = %d, want 3", len(calls))
	}
	for i, c := range calls {
		if !reflect.DeepEqual(c, pending) {
			t.Errorf("call %d differs from the pending payload", i)
		}
	}
	if err := a.Retry(context.Background()); !errors.Is(err, aggregate.ErrAlreadySubmitted) {
		t.Errorf("retry after success err = %v, want ErrAlreadySubmitted", err)
	}
}

func TestRetry_NothingPending(t *testing.T) {
	t.Parallel()

	a := aggregate.New(&fakeSubmitter{}, aggregate.WithMetrics(testMetrics(t)))
	if err := a.Retry(context.Background()); !errors.Is(err, aggregate.ErrNothingPending) {
		t.Errorf("err = %v, want ErrNothingPending", err)
	}
}

func TestReset_DiscardsPending(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{errs: []error{errors.New("offline")}}
	a := aggregate.New(sub, aggregate.WithMetrics(testMetrics(t)))
	a.RecordAnswer(0, types.Question{ID: "q1"}, nil, nil, t0)
	_, _ = a.Finalize(context.Background(), aggregate.Meta{}, t0)

	a.Reset()
	if _, ok := a.Pending(); ok {
		t.Error("Reset should discard the pending payload")
	}
	if len(a.Answers()) != 0 {
		t.Error("Reset should discard answers")
	}
	if err := a.Retry(context.Background()); !errors.Is(err, aggregate.ErrNothingPending) {
		t.Errorf("retry after reset err = %v", err)
	}
}

func TestFinalize_ConcurrentSubmitRejected(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{entered: make(chan struct{}, 1), block: make(chan struct{})}
	a := aggregate.New(sub, aggregate.WithMetrics(testMetrics(t)))
	a.RecordAnswer(0, types.Question{ID: "q1"}, nil, nil, t0)

	done := make(chan error, 1)
	go func() {
		_, err := a.Finalize(context.Background(), aggregate.Meta{}, t0)
		done <- err
	}()

	select {
	case <-sub.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never reached the backend")
	}

	if _, err := a.Finalize(context.Background(), aggregate.Meta{}, t0); !errors.Is(err, aggregate.ErrAlreadySubmitted) {
		t.Errorf("concurrent Finalize err = %v, want ErrAlreadySubmitted", err)
	}
	if err := a.Retry(context.Background()); !errors.Is(err, aggregate.ErrAlreadySubmitted) {
		t.Errorf("concurrent Retry err = %v, want ErrAlreadySubmitted", err)
	}

	close(sub.block)
	if err := <-done; err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	if n := len(sub.calls()); n != 1 {
		t.Errorf("submit calls = %d, want exactly 1", n)
	}
}

func TestFinalize_Coach(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		coach fakeCoach
		want  string
	}{
		{name: "notes attached", coach: fakeCoach{notes: "1. Pause before answering."}, want: "1. Pause before answering."},
		{name: "failure falls back to template", coach: fakeCoach{err: errors.New("llm down")}, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := aggregate.New(&fakeSubmitter{}, aggregate.WithMetrics(testMetrics(t)), aggregate.WithCoach(tc.coach))
			got, err := a.Finalize(context.Background(), aggregate.Meta{TotalQuestions: 1}, t0)
			if err != nil {
				t.Fatal(err)
			}
			if got.Feedback.Coaching != tc.want {
				t.Errorf("coaching = %q, want %q", got.Feedback.Coaching, tc.want)
			}
			if got.Feedback.Overall == "" {
				t.Error("template feedback must always be present")
			}
		})
	}
}

func TestTips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func(int) string
		in   int
		want string
	}{
		{"eye high", aggregate.EyeContactTip, 61, "Excellent eye contact!"},
		{"eye mid", aggregate.EyeContactTip, 60, "Try to look at the camera more"},
		{"eye low", aggregate.EyeContactTip, 30, "Focus on maintaining eye contact"},
		{"confidence high", aggregate.ConfidenceTip, 71, "Very confident demeanor!"},
		{"confidence mid", aggregate.ConfidenceTip, 41, "Good confidence level"},
		{"confidence low", aggregate.ConfidenceTip, 40, "Try to appear more confident"},
		{"engagement high", aggregate.EngagementTip, 90, "Highly engaged!"},
		{"engagement mid", aggregate.EngagementTip, 31, "Show more engagement"},
		{"engagement low", aggregate.EngagementTip, 0, "Increase your enthusiasm and interest"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.fn(tc.in); got != tc.want {
				t.Errorf("tip(%d) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
