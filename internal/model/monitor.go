package model

import (
	"time"

	"github.com/google/uuid"
)

// LiveAttempt is one row of the live monitoring view: an in-progress
// attempt with its violation pressure.
type LiveAttempt struct {
	AttemptID       uuid.UUID  `json:"attempt_id"`
	QuizID          uuid.UUID  `json:"quiz_id"`
	StudentID       int        `json:"student_id"`
	StudentName     string     `json:"student_name"`
	StartedAt       time.Time  `json:"started_at"`
	ViolationCount  int        `json:"violation_count"`
	LastViolationAt *time.Time `json:"last_violation_at,omitempty"`
}

// ViolationBreakdown aggregates a quiz's violations by kind.
type ViolationBreakdown struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}
