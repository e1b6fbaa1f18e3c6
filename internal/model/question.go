package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the supported question kinds. Only multiple
// choice questions are auto-gradable; free text answers are stored for
// manual review and contribute nothing to the automatic score.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeFreeText       QuestionType = "FREE_TEXT"
)

// Option is one selectable choice of a multiple choice question.
// Correct never leaves the server.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct,omitempty"`
}

// Question represents a single quiz question.
type Question struct {
	ID           uuid.UUID    `json:"id"`
	QuizID       uuid.UUID    `json:"quiz_id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Options      []Option     `json:"options"`
	Points       float64      `json:"points"`
	OrderNum     int          `json:"order_num"`
}

// StudentOption is an option with the correct flag stripped.
type StudentOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionForStudent is a question without grading data, sent to students.
type QuestionForStudent struct {
	ID           uuid.UUID       `json:"id"`
	QuestionText string          `json:"question_text"`
	QuestionType QuestionType    `json:"question_type"`
	Options      []StudentOption `json:"options,omitempty"`
	Points       float64         `json:"points"`
	OrderNum     int             `json:"order_num"`
}

// ForStudent strips the grading data from a question.
func (q Question) ForStudent() QuestionForStudent {
	out := QuestionForStudent{
		ID:           q.ID,
		QuestionText: q.QuestionText,
		QuestionType: q.QuestionType,
		Points:       q.Points,
		OrderNum:     q.OrderNum,
	}
	for _, opt := range q.Options {
		out.Options = append(out.Options, StudentOption{ID: opt.ID, Text: opt.Text})
	}
	return out
}

// AddQuestionRequest is the payload for adding a question to a quiz.
type AddQuestionRequest struct {
	QuestionText string   `json:"question_text" binding:"required,min=1,max=2000"`
	QuestionType string   `json:"question_type" binding:"required,oneof=MULTIPLE_CHOICE FREE_TEXT"`
	Options      []Option `json:"options" binding:"omitempty,dive"`
	Points       float64  `json:"points" binding:"required,gt=0"`
	OrderNum     int      `json:"order_num" binding:"min=0"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}
