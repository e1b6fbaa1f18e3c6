package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// AttemptStartKey returns the cache key for a student's attempt start time
func (r *CacheKeyStruct) AttemptStartKey(quizID string, studentID int) string {
	return fmt.Sprintf("student:%d:quiz:%s:attempt_start", studentID, quizID)
}

// StudentAnswersKey returns the cache key for a student's autosaved answers
func (r *CacheKeyStruct) StudentAnswersKey(quizID string, studentID int) string {
	return fmt.Sprintf("student:%d:quiz:%s:answers", studentID, quizID)
}

// QuizPayloadKey returns the cache key for a quiz's student-facing payload
func (r *CacheKeyStruct) QuizPayloadKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:payload", quizID)
}

// QuizDurationKey returns the cache key for a quiz's duration in minutes
func (r *CacheKeyStruct) QuizDurationKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:duration", quizID)
}

// QuizGradingKey returns the cache key for a quiz's grading table
func (r *CacheKeyStruct) QuizGradingKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:grading", quizID)
}

// QuizLockdownKey returns the cache key for a quiz's lockdown flag
func (r *CacheKeyStruct) QuizLockdownKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:lockdown", quizID)
}

// StudentActiveQuizKey returns the cache key for a student's currently active quiz
func (r *CacheKeyStruct) StudentActiveQuizKey(studentID int) string {
	return fmt.Sprintf("student:%d:active_quiz", studentID)
}

var CacheKey = NewCacheKeyStruct()
