package interview

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/interviewcoach/internal/resilience"
	"github.com/MrWong99/interviewcoach/pkg/types"
)

var errEmptyQuestions = errors.New("source returned no questions")

// QuestionSource supplies the questions for an interview type. The backend
// client satisfies it.
type QuestionSource interface {
	Questions(ctx context.Context, t types.InterviewType) ([]types.Question, error)
}

// StaticSource is a fixed question set used when the backend cannot answer.
type StaticSource []types.Question

// Questions returns a copy of the set with Type filled in.
func (s StaticSource) Questions(_ context.Context, t types.InterviewType) ([]types.Question, error) {
	if len(s) == 0 {
		return nil, errEmptyQuestions
	}
	out := make([]types.Question, len(s))
	for i, q := range s {
		if q.Type == "" {
			q.Type = t
		}
		out[i] = q
	}
	return out, nil
}

// NewQuestionSources builds the fallback chain: remote first, then the
// static set. Either may be nil.
func NewQuestionSources(remote QuestionSource, static StaticSource, cfg resilience.FallbackConfig) *resilience.FallbackGroup[QuestionSource] {
	var fg *resilience.FallbackGroup[QuestionSource]
	add := func(name string, src QuestionSource) {
		if fg == nil {
			fg = resilience.NewFallbackGroup(src, name, cfg)
			return
		}
		fg.AddFallback(name, src)
	}
	if remote != nil {
		add("remote", remote)
	}
	if len(static) > 0 {
		add("static", static)
	}
	return fg
}

// fetchQuestions walks the chain. An empty result counts as a failure so the
// next source gets a chance.
func fetchQuestions(ctx context.Context, fg *resilience.FallbackGroup[QuestionSource], t types.InterviewType) ([]types.Question, string, error) {
	if fg == nil {
		return nil, "", ErrNoQuestions
	}
	qs, name, err := resilience.ExecuteNamed(fg, func(src QuestionSource) ([]types.Question, error) {
		qs, err := src.Questions(ctx, t)
		if err != nil {
			return nil, err
		}
		if len(qs) == 0 {
			return nil, errEmptyQuestions
		}
		return qs, nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrNoQuestions, err)
	}
	return qs, name, nil
}
