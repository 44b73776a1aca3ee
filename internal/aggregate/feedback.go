package aggregate

import (
	"fmt"

	"github.com/MrWong99/interviewcoach/pkg/types"
)

func feedback(meta Meta, avg types.AverageScores, overall, answered int, emotions []types.EmotionSample) types.CategoryFeedback {
	emotion := "Limited emotion data"
	if len(emotions) > 0 {
		emotion = fmt.Sprintf("Detected %d emotion changes", len(emotions))
	}
	return types.CategoryFeedback{
		Overall:         fmt.Sprintf("Completed %d questions with %d%% average performance", meta.TotalQuestions, overall),
		EyeContact:      fmt.Sprintf("Average eye contact: %d%%. %s", avg.EyeContact, EyeContactTip(avg.EyeContact)),
		Confidence:      fmt.Sprintf("Confidence level: %d%%. %s", avg.Confidence, ConfidenceTip(avg.Confidence)),
		Engagement:      fmt.Sprintf("Engagement score: %d%%. %s", avg.Engagement, EngagementTip(avg.Engagement)),
		EmotionAnalysis: emotion,
		SessionData: types.SessionData{
			QuestionsAnswered: answered,
			TotalQuestions:    meta.TotalQuestions,
			InterviewType:     meta.Type,
		},
	}
}

// EyeContactTip returns the one-line hint shown next to an eye-contact score.
func EyeContactTip(score int) string {
	switch {
	case score > 60:
		return "Excellent eye contact!"
	case score > 30:
		return "Try to look at the camera more"
	}
	return "Focus on maintaining eye contact"
}

// ConfidenceTip returns the one-line hint shown next to a confidence score.
func ConfidenceTip(score int) string {
	switch {
	case score > 70:
		return "Very confident demeanor!"
	case score > 40:
		return "Good confidence level"
	}
	return "Try to appear more confident"
}

// EngagementTip returns the one-line hint shown next to an engagement score.
func EngagementTip(score int) string {
	switch {
	case score > 60:
		return "Highly engaged!"
	case score > 30:
		return "Show more engagement"
	}
	return "Increase your enthusiasm and interest"
}
