package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/interviewcoach/internal/interview"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

type fakeController struct {
	calls   []string
	err     error
	updates chan interview.View
}

func newFakeController() *fakeController {
	return &fakeController{updates: make(chan interview.View, 1)}
}

func (f *fakeController) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) StartRecording(context.Context) error  { return f.record("start") }
func (f *fakeController) StopRecording(context.Context) error   { return f.record("stop") }
func (f *fakeController) NextQuestion(context.Context) error    { return f.record("next") }
func (f *fakeController) Submit(context.Context) error          { return f.record("submit") }
func (f *fakeController) Restart(context.Context) error         { return f.record("restart") }
func (f *fakeController) ReloadQuestions(context.Context) error { return f.record("reload") }
func (f *fakeController) Updates() <-chan interview.View        { return f.updates }

func newTestModel(t *testing.T, ctrl Controller) *model {
	t.Helper()
	m, ok := New(Config{Ctx: context.Background(), Controller: ctrl}).(*model)
	if !ok {
		t.Fatal("New should return *model")
	}
	return m
}

func readyView() interview.View {
	return interview.View{
		SessionID:      "interview_1_abc",
		Type:           types.InterviewBehavioral,
		Phase:          interview.PhaseReady,
		TotalQuestions: 3,
		Question:       types.Question{ID: "q1", Text: "Tell me about a conflict you resolved.", Category: "teamwork"},
		AnalysisMode:   "local",
		Emotion:        "neutral",
	}
}

// runCmd executes cmd and any batched children, returning the first
// actionResultMsg produced.
func runCmd(t *testing.T, cmd tea.Cmd) (actionResultMsg, bool) {
	t.Helper()
	if cmd == nil {
		return actionResultMsg{}, false
	}
	switch msg := cmd().(type) {
	case actionResultMsg:
		return msg, true
	case tea.BatchMsg:
		for _, c := range msg {
			if c == nil {
				continue
			}
			// Skip the spinner tick, which would sleep for a frame.
			if res, ok := tryAction(c); ok {
				return res, true
			}
		}
	}
	return actionResultMsg{}, false
}

func tryAction(c tea.Cmd) (actionResultMsg, bool) {
	done := make(chan tea.Msg, 1)
	go func() { done <- c() }()
	select {
	case msg := <-done:
		res, ok := msg.(actionResultMsg)
		return res, ok
	case <-time.After(time.Second):
		return actionResultMsg{}, false
	}
}

func TestViewMsgEntersSession(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(t, ctrl)
	if !strings.Contains(m.View(), "Connecting") {
		t.Fatalf("initial view should show the loading message, got %q", m.View())
	}

	_, cmd := m.Update(viewMsg{view: readyView()})
	if cmd == nil {
		t.Fatal("a view update should re-arm the update listener")
	}
	if m.stage != stageSession {
		t.Fatalf("stage = %v, want stageSession", m.stage)
	}
	out := m.View()
	for _, want := range []string{"Question 1 of 3", "Tell me about a conflict", "Press r to start recording", "Eye contact"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestRecordKeyTogglesByPhase(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(t, ctrl)
	m.Update(viewMsg{view: readyView()})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if m.pending != "start recording" {
		t.Fatalf("pending = %q, want start recording", m.pending)
	}
	res, ok := runCmd(t, cmd)
	if !ok {
		t.Fatal("record key should issue a controller command")
	}
	m.Update(res)
	if m.pending != "" {
		t.Fatalf("pending should clear after the result, got %q", m.pending)
	}

	rec := readyView()
	rec.Phase = interview.PhaseRecording
	m.Update(viewMsg{view: rec})
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if _, ok := runCmd(t, cmd); !ok {
		t.Fatal("record key while recording should issue a command")
	}

	if got := strings.Join(ctrl.calls, ","); got != "start,stop" {
		t.Fatalf("calls = %s, want start,stop", got)
	}
	if !strings.Contains(m.View(), "REC") {
		t.Error("recording view should show the REC badge")
	}
}

func TestKeysIgnoredWhilePending(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(t, ctrl)
	m.Update(viewMsg{view: readyView()})

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	if cmd != nil {
		t.Fatalf("second key while pending should be ignored, got %T", cmd)
	}
}

func TestActionErrorIsShown(t *testing.T) {
	ctrl := newFakeController()
	ctrl.err = errors.New("camera busy")
	m := newTestModel(t, ctrl)
	m.Update(viewMsg{view: readyView()})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	res, _ := runCmd(t, cmd)
	m.Update(res)

	if !strings.Contains(m.View(), "start recording: camera busy") {
		t.Fatalf("view should show the action error, got %q", m.View())
	}
}

func TestPhaseSpecificKeys(t *testing.T) {
	tests := []struct {
		name  string
		phase interview.Phase
		key   string
		want  string
	}{
		{name: "submit retry", phase: interview.PhaseSubmitFailed, key: "s", want: "submit"},
		{name: "reload", phase: interview.PhaseNoQuestions, key: "l", want: "reload"},
		{name: "restart", phase: interview.PhaseCompleted, key: "R", want: "restart"},
		{name: "next", phase: interview.PhaseRecording, key: "n", want: "next"},
		{name: "submit outside failure", phase: interview.PhaseReady, key: "s", want: ""},
		{name: "reload with questions", phase: interview.PhaseReady, key: "l", want: ""},
		{name: "next after completion", phase: interview.PhaseCompleted, key: "n", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			m := newTestModel(t, ctrl)
			v := readyView()
			v.Phase = tt.phase
			m.Update(viewMsg{view: v})

			_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(tt.key)})
			runCmd(t, cmd)
			got := strings.Join(ctrl.calls, ",")
			if got != tt.want {
				t.Fatalf("calls = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQuitKey(t *testing.T) {
	m := newTestModel(t, newFakeController())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("ctrl+c should return tea.Quit")
	}
	if m.stage != stageStopped {
		t.Fatalf("stage = %v, want stageStopped", m.stage)
	}
}

func TestContextCancelStopsProgram(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	msg := waitForView(ctx, make(chan interview.View))()
	if _, ok := msg.(stoppedMsg); !ok {
		t.Fatalf("msg = %T, want stoppedMsg", msg)
	}
}

func TestAlertAndSummaryViews(t *testing.T) {
	m := newTestModel(t, newFakeController())

	v := readyView()
	v.Phase = interview.PhaseRecording
	v.Alert = true
	v.Speech.SilenceDuration = 12 * time.Second
	m.Update(viewMsg{view: v})
	if !strings.Contains(m.View(), "No speech for 0:12") {
		t.Errorf("alert missing from view: %q", m.View())
	}

	done := readyView()
	done.Phase = interview.PhaseCompleted
	done.Submission = &types.SessionSubmission{
		OverallScore:       72,
		DurationMinutes:    4,
		FinalAverageScores: types.AverageScores{EyeContact: 70, Confidence: 75, Engagement: 71},
		Feedback:           types.CategoryFeedback{Overall: "Solid performance.", Coaching: "1. Slow down."},
		Answers: []types.QuestionAnswerRecord{
			{QuestionIndex: 0, QuestionText: "Tell me about a conflict you resolved.", AverageScores: types.AverageScores{EyeContact: 70}},
		},
	}
	m.Update(viewMsg{view: done})
	out := m.View()
	for _, want := range []string{"Overall score 72% over 4 min", "Coaching notes", "1. Slow down.", "Q1"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{-time.Second, "0:00"},
		{65*time.Second + 400*time.Millisecond, "1:05"},
		{10 * time.Minute, "10:00"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.in); got != tt.want {
			t.Errorf("formatElapsed(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
