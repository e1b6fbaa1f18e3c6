package service

import (
	"github.com/google/uuid"
	"github.com/quizlock/quizlock-backend/internal/model"
)

// GradedAnswer is one answer with its grading verdict attached.
type GradedAnswer struct {
	QuestionID    uuid.UUID
	OptionID      string
	TextResponse  string
	IsCorrect     *bool
	PointsAwarded float64
}

// GradeResult is the outcome of grading one submission.
type GradeResult struct {
	Score    float64
	MaxScore float64
	Answers  []GradedAnswer
}

// BuildGradingKey derives the cached grading table from a question set.
func BuildGradingKey(questions []model.Question) model.GradingKey {
	key := make(model.GradingKey, len(questions))
	for _, q := range questions {
		rule := model.GradingRule{
			QuestionType: q.QuestionType,
			Points:       q.Points,
		}
		if q.QuestionType == model.QuestionTypeMultipleChoice {
			for _, opt := range q.Options {
				if opt.Correct {
					rule.CorrectOption = opt.ID
					break
				}
			}
		}
		key[q.ID.String()] = rule
	}
	return key
}

// Grade scores a submission against the grading key by point summation.
// Multiple choice answers earn the question's points when the selected
// option matches; free text answers are kept for manual review and earn
// nothing automatically. Answers to unknown questions are dropped.
// MaxScore counts every auto-gradable question, answered or not.
func Grade(key model.GradingKey, answers []model.AnswerPayload) GradeResult {
	result := GradeResult{MaxScore: key.MaxScore()}

	for _, a := range answers {
		rule, ok := key[a.QuestionID]
		if !ok {
			continue
		}
		qid, err := uuid.Parse(a.QuestionID)
		if err != nil {
			continue
		}

		graded := GradedAnswer{
			QuestionID:   qid,
			OptionID:     a.OptionID,
			TextResponse: a.TextResponse,
		}

		if rule.QuestionType == model.QuestionTypeMultipleChoice {
			correct := a.OptionID != "" && a.OptionID == rule.CorrectOption
			graded.IsCorrect = &correct
			if correct {
				graded.PointsAwarded = rule.Points
				result.Score += rule.Points
			}
		}

		result.Answers = append(result.Answers, graded)
	}

	return result
}
