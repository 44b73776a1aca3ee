// Package coach asks an LLM for short, personalised coaching tips based on a
// finished session's scores.
package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/interviewcoach/pkg/provider/llm"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

const systemPrompt = `You are an interview coach reviewing a candidate's mock interview.
The scores are percentages measured from webcam and microphone signals:
eye contact (looking at the camera), confidence (composed expression, steady posture)
and engagement (speaking, expressive face).
Reply with exactly three numbered, actionable tips, one line each, no preamble.`

// Coach writes coaching notes through an LLM provider.
type Coach struct {
	llm         llm.Provider
	maxTokens   int
	temperature float64
}

// Option configures a [Coach].
type Option func(*Coach)

// WithMaxTokens caps the completion length. Default: 300.
func WithMaxTokens(n int) Option {
	return func(c *Coach) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature. Default: 0.4.
func WithTemperature(t float64) Option {
	return func(c *Coach) { c.temperature = t }
}

// New returns a Coach backed by p.
func New(p llm.Provider, opts ...Option) (*Coach, error) {
	if p == nil {
		return nil, errors.New("coach: llm provider must not be nil")
	}
	c := &Coach{llm: p, maxTokens: 300, temperature: 0.4}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Notes returns three coaching tips for s.
func (c *Coach) Notes(ctx context.Context, s types.SessionSubmission) (string, error) {
	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []types.Message{{Role: "user", Content: Prompt(s)}},
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("coach: %s: %w", c.llm.Model(), err)
	}
	notes := strings.TrimSpace(resp.Content)
	if notes == "" {
		return "", fmt.Errorf("coach: %s: empty completion", c.llm.Model())
	}
	return notes, nil
}

// Prompt renders the user message describing s.
func Prompt(s types.SessionSubmission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Interview type: %s\n", s.Type)
	fmt.Fprintf(&b, "Duration: %d min, questions answered: %d of %d\n",
		s.DurationMinutes, s.Feedback.SessionData.QuestionsAnswered, s.Feedback.SessionData.TotalQuestions)
	fmt.Fprintf(&b, "Session averages: eye contact %d%%, confidence %d%%, engagement %d%%\n",
		s.FinalAverageScores.EyeContact, s.FinalAverageScores.Confidence, s.FinalAverageScores.Engagement)

	for _, a := range s.Answers {
		fmt.Fprintf(&b, "Q%d %q: eye %d%%, confidence %d%%, engagement %d%% (%d samples)\n",
			a.QuestionIndex+1, a.QuestionText,
			a.AverageScores.EyeContact, a.AverageScores.Confidence, a.AverageScores.Engagement,
			a.ValidSamples)
	}

	if len(s.EmotionData) > 0 {
		counts := make(map[string]int)
		var order []string
		for _, e := range s.EmotionData {
			if counts[e.Emotion] == 0 {
				order = append(order, e.Emotion)
			}
			counts[e.Emotion]++
		}
		parts := make([]string, len(order))
		for i, e := range order {
			parts[i] = fmt.Sprintf("%s x%d", e, counts[e])
		}
		fmt.Fprintf(&b, "Recent expressions: %s\n", strings.Join(parts, ", "))
	}
	return b.String()
}
