package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the states of a quiz attempt.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
)

// Attempt represents one student's run at one quiz. The database enforces
// at most one attempt per (quiz, student) pair.
type Attempt struct {
	ID           uuid.UUID     `json:"id"`
	QuizID       uuid.UUID     `json:"quiz_id"`
	StudentID    int           `json:"student_id"`
	Status       AttemptStatus `json:"status"`
	SubmitReason string        `json:"submit_reason,omitempty"`
	FinalScore   *float64      `json:"final_score,omitempty"`
	MaxScore     *float64      `json:"max_score,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
}

// AttemptAnswer is one persisted answer row of a submitted attempt.
type AttemptAnswer struct {
	AttemptID     uuid.UUID `json:"attempt_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	OptionID      string    `json:"option_id,omitempty"`
	TextResponse  string    `json:"text_response,omitempty"`
	IsCorrect     *bool     `json:"is_correct,omitempty"`
	PointsAwarded float64   `json:"points_awarded"`
}

// AttemptViolation is one persisted violation log entry.
type AttemptViolation struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	Severity   string    `json:"severity"`
	OccurredAt time.Time `json:"occurred_at"`
}

// GradingRule is the per-question entry of the cached grading key.
type GradingRule struct {
	QuestionType  QuestionType `json:"question_type"`
	CorrectOption string       `json:"correct_option,omitempty"`
	Points        float64      `json:"points"`
}

// GradingKey maps question IDs to their grading rules. Built when a quiz
// is published and cached in Redis so submission grading never touches
// the questions table.
type GradingKey map[string]GradingRule

// MaxScore is the total of all auto-gradable points in the key.
func (k GradingKey) MaxScore() float64 {
	var total float64
	for _, rule := range k {
		if rule.QuestionType == QuestionTypeMultipleChoice {
			total += rule.Points
		}
	}
	return total
}

// AnswerPayload is one answer in a submit request.
type AnswerPayload struct {
	QuestionID   string `json:"question_id" binding:"required,uuid"`
	OptionID     string `json:"option_id" binding:"omitempty"`
	TextResponse string `json:"text_response" binding:"omitempty,max=10000"`
}

// ViolationPayload is one violation record in a submit request.
type ViolationPayload struct {
	Kind      string    `json:"kind" binding:"required"`
	Message   string    `json:"message" binding:"omitempty,max=500"`
	Severity  string    `json:"severity" binding:"required,oneof=low medium high"`
	Timestamp time.Time `json:"timestamp" binding:"required"`
}

// JoinQuizRequest starts or resumes an attempt by entry token.
type JoinQuizRequest struct {
	EntryToken string `json:"entry_token" binding:"required,min=4,max=20"`
}

// SubmitAttemptRequest is the HTTP fallback payload for submitting an
// attempt when the websocket session is gone.
type SubmitAttemptRequest struct {
	Answers    []AnswerPayload    `json:"answers" binding:"omitempty,dive"`
	Violations []ViolationPayload `json:"violations" binding:"omitempty,dive"`
	Reason     string             `json:"reason" binding:"required,oneof=manual timeout auto-submitted"`
	Confirmed  bool               `json:"confirmed"`
}

// AttemptResult is the response for a submitted attempt.
type AttemptResult struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	Score     float64   `json:"score"`
	MaxScore  float64   `json:"max_score"`
}
