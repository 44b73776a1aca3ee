package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/MrWong99/interviewcoach/internal/interview"
	"github.com/MrWong99/interviewcoach/internal/monitor"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

var (
	titleStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	sectionHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	questionStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(0, 2)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helperStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	alertStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	recordingStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f5f5f5")).Background(lipgloss.Color("#d62828")).Padding(0, 1)
	statusBarStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	keyStyle           = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	keyDescStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4"))
	labelStyle         = lipgloss.NewStyle().Width(13)
)

func (m *model) View() string {
	switch m.stage {
	case stageStopped:
		return helperStyle.Render("Session closed.") + "\n"
	case stageLoading:
		return fmt.Sprintf("%s Connecting to the interview session…\n", m.spinner.View())
	}

	v := m.view
	parts := []string{m.headerView()}
	switch v.Phase {
	case interview.PhaseLoading:
		parts = append(parts, fmt.Sprintf("%s Loading %s questions…", m.spinner.View(), v.Type))
	case interview.PhaseNoQuestions:
		parts = append(parts,
			errorStyle.Render("No questions could be loaded."),
			helperStyle.Render(errText(v.Err)),
		)
	case interview.PhaseReady, interview.PhaseRecording:
		parts = append(parts, m.questionView(), m.scoresView(), m.emotionView())
	case interview.PhaseSubmitting:
		parts = append(parts, fmt.Sprintf("%s Submitting your session…", m.spinner.View()))
	case interview.PhaseSubmitFailed:
		parts = append(parts,
			errorStyle.Render("Submitting the session failed: "+errText(v.Err)),
			helperStyle.Render("Press s to retry. Your results are kept until you restart."),
		)
	case interview.PhaseCompleted:
		parts = append(parts, m.summaryView())
	}

	if m.pending != "" {
		parts = append(parts, helperStyle.Render(fmt.Sprintf("%s %s…", m.spinner.View(), m.pending)))
	}
	if m.errorMessage != "" {
		parts = append(parts, errorStyle.Render(m.errorMessage))
	}
	if m.infoMessage != "" {
		parts = append(parts, helperStyle.Render(m.infoMessage))
	}
	parts = append(parts, m.legendView())
	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
}

func (m *model) headerView() string {
	v := m.view
	title := titleStyle.Render(fmt.Sprintf("Mock %s interview", v.Type))
	status := []string{"session " + v.SessionID}
	if v.AnalysisMode != "" {
		status = append(status, "analysis: "+v.AnalysisMode)
	}
	if v.TransportConnected {
		status = append(status, "live feed: connected")
	} else {
		status = append(status, "live feed: local")
	}
	if v.QuestionSource != "" {
		status = append(status, "questions: "+v.QuestionSource)
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, statusBarStyle.Render(strings.Join(status, " · ")))
}

func (m *model) questionView() string {
	v := m.view
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render(fmt.Sprintf("Question %d of %d", v.QuestionIndex+1, v.TotalQuestions)))
	if v.Question.Category != "" {
		b.WriteString(helperStyle.Render("  " + v.Question.Category))
	}
	b.WriteString("\n")
	b.WriteString(questionStyle.Render(wordwrap.String(v.Question.Text, max(m.width-8, 20))))
	b.WriteString("\n")

	if v.Phase == interview.PhaseRecording {
		b.WriteString(recordingStyle.Render("● REC"))
		b.WriteString(" ")
		b.WriteString(helperStyle.Render(formatElapsed(v.Live.Timestamp.Sub(v.QuestionStart))))
	} else {
		b.WriteString(helperStyle.Render("Press r to start recording your answer."))
	}
	if v.Alert {
		b.WriteString("\n")
		b.WriteString(alertStyle.Render(fmt.Sprintf("Still there? No speech for %s.", formatElapsed(v.Speech.SilenceDuration))))
	}
	return b.String()
}

func (m *model) scoresView() string {
	v := m.view
	rows := []string{sectionHeaderStyle.Render("Live scores")}
	if v.Presence == monitor.Absent || !v.Live.FaceDetected {
		rows = append(rows, helperStyle.Render("No face detected. Scores decay while you are away."))
	}
	rows = append(rows,
		m.scoreRow("Eye contact", v.Live.EyeContact),
		m.scoreRow("Confidence", v.Live.Confidence),
		m.scoreRow("Engagement", v.Live.Engagement),
	)
	speaking := "silent"
	if v.Speech.IsSpeaking {
		speaking = "speaking"
	}
	rows = append(rows, labelStyle.Render("Voice")+" "+m.level.ViewAs(clamp01(v.Level))+" "+helperStyle.Render(speaking))
	for _, r := range v.Recommendations {
		rows = append(rows, helperStyle.Render("• "+r))
	}
	return strings.Join(rows, "\n")
}

func (m *model) scoreRow(label string, pct int) string {
	return fmt.Sprintf("%s %s %3d%%", labelStyle.Render(label), m.bar.ViewAs(float64(pct)/100), pct)
}

func (m *model) emotionView() string {
	v := m.view
	line := sectionHeaderStyle.Render("Expression") + " " + v.Emotion
	if n := len(v.Emotions); n > 0 {
		recent := v.Emotions[max(n-5, 0):]
		labels := make([]string, len(recent))
		for i, e := range recent {
			labels[i] = fmt.Sprintf("%s %d%%", e.Emotion, e.Confidence)
		}
		line += helperStyle.Render("  recent: " + strings.Join(labels, ", "))
	}
	return line
}

func (m *model) summaryView() string {
	v := m.view
	rows := []string{sectionHeaderStyle.Render("Session complete")}
	if sub := v.Submission; sub != nil {
		rows = append(rows,
			fmt.Sprintf("Overall score %d%% over %d min", sub.OverallScore, sub.DurationMinutes),
			m.scoreRow("Eye contact", sub.FinalAverageScores.EyeContact),
			m.scoreRow("Confidence", sub.FinalAverageScores.Confidence),
			m.scoreRow("Engagement", sub.FinalAverageScores.Engagement),
			"",
			wordwrap.String(sub.Feedback.Overall, max(m.width-2, 20)),
		)
		if sub.Feedback.Coaching != "" {
			rows = append(rows, "", sectionHeaderStyle.Render("Coaching notes"), wordwrap.String(sub.Feedback.Coaching, max(m.width-2, 20)))
		}
		rows = append(rows, "", answersTable(sub.Answers))
	}
	rows = append(rows, helperStyle.Render("Press R to start a new session or q to quit."))
	return strings.Join(rows, "\n")
}

func answersTable(answers []types.QuestionAnswerRecord) string {
	if len(answers) == 0 {
		return helperStyle.Render("No answers were recorded.")
	}
	var b strings.Builder
	for _, a := range answers {
		fmt.Fprintf(&b, "Q%d  eye %3d%%  conf %3d%%  eng %3d%%  %s\n",
			a.QuestionIndex+1,
			a.AverageScores.EyeContact,
			a.AverageScores.Confidence,
			a.AverageScores.Engagement,
			helperStyle.Render(truncate(a.QuestionText, 48)),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) legendView() string {
	type binding struct{ key, desc string }
	var keys []binding
	switch m.view.Phase {
	case interview.PhaseReady:
		keys = append(keys, binding{"r", "record"}, binding{"n", "next"})
	case interview.PhaseRecording:
		keys = append(keys, binding{"r", "stop"}, binding{"n", "next"})
	case interview.PhaseNoQuestions:
		keys = append(keys, binding{"l", "reload"})
	case interview.PhaseSubmitFailed:
		keys = append(keys, binding{"s", "retry submit"})
	}
	keys = append(keys, binding{"R", "restart"}, binding{"q", "quit"})
	items := make([]string, len(keys))
	for i, k := range keys {
		items[i] = keyStyle.Render(k.key) + " " + keyDescStyle.Render(k.desc)
	}
	return "\n" + strings.Join(items, "  ")
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func formatElapsed(d time.Duration) string {
	d = max(d, 0).Truncate(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
