package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quizlock/quizlock-backend/internal/config"
	"github.com/quizlock/quizlock-backend/internal/lockdown"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/quizlock/quizlock-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrUnansweredNeedsConfirm is returned for an unconfirmed manual submit
// with unanswered questions on the HTTP fallback path.
var ErrUnansweredNeedsConfirm = errors.New("unanswered questions, confirmation required")

// AnswerJob is the queue payload for one graded answer row. QuizID and
// StudentID ride along so the worker can clear the autosave buffer after
// persisting the batch.
type AnswerJob struct {
	AttemptID     string  `json:"attempt_id"`
	QuizID        string  `json:"quiz_id"`
	StudentID     int     `json:"student_id"`
	QuestionID    string  `json:"question_id"`
	OptionID      string  `json:"option_id,omitempty"`
	TextResponse  string  `json:"text_response,omitempty"`
	IsCorrect     *bool   `json:"is_correct,omitempty"`
	PointsAwarded float64 `json:"points_awarded"`
}

// ViolationJob is the queue payload for one violation log entry.
type ViolationJob struct {
	AttemptID string `json:"attempt_id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
	Timestamp int64  `json:"timestamp"`
}

// SubmissionService is the scoring side of a quiz submission: it grades
// the answers against the cached grading key, finalizes the attempt row
// exactly once, and queues the bulky rows for the persistence workers.
// It implements lockdown.Submitter for the in-process session core.
type SubmissionService struct {
	attemptRepo *repository.AttemptRepository
	quizService *QuizService
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	attemptRepo *repository.AttemptRepository,
	quizService *QuizService,
	rdb *redis.Client,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		attemptRepo: attemptRepo,
		quizService: quizService,
		rdb:         rdb,
		log:         log.With().Str("component", "submission_service").Logger(),
	}
}

// Submit grades and finalizes one attempt. The UPDATE that flips the
// attempt to SUBMITTED is the single authoritative duplicate guard: the
// second submitter for a (quiz, student) pair gets
// lockdown.ErrAlreadyAttempted regardless of which instance it hit.
func (s *SubmissionService) Submit(ctx context.Context, req lockdown.SubmitRequest) (lockdown.SubmitResult, error) {
	key, err := s.quizService.GetGradingKey(ctx, req.QuizID)
	if err != nil {
		return lockdown.SubmitResult{}, fmt.Errorf("load grading key: %w", err)
	}

	payloads := make([]model.AnswerPayload, len(req.Answers))
	for i, a := range req.Answers {
		payloads[i] = model.AnswerPayload{
			QuestionID:   a.QuestionID,
			OptionID:     a.OptionID,
			TextResponse: a.TextResponse,
		}
	}
	graded := Grade(key, payloads)

	attemptID, err := s.attemptRepo.MarkSubmitted(ctx, req.QuizID, req.StudentID,
		string(req.Reason), graded.Score, graded.MaxScore)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateAttempt) {
			return lockdown.SubmitResult{}, fmt.Errorf("quiz %s student %d: %w",
				req.QuizID, req.StudentID, lockdown.ErrAlreadyAttempted)
		}
		return lockdown.SubmitResult{}, fmt.Errorf("finalize attempt: %w", err)
	}

	s.enqueueAnswers(ctx, attemptID, req.QuizID, req.StudentID, graded.Answers)
	s.EnqueueViolations(ctx, attemptID, req.Violations)
	s.clearStudentState(ctx, req.QuizID, req.StudentID)

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Str("quiz_id", req.QuizID.String()).
		Int("student_id", req.StudentID).
		Str("reason", string(req.Reason)).
		Float64("score", graded.Score).
		Msg("Attempt finalized")

	return lockdown.SubmitResult{
		Score:     graded.Score,
		MaxScore:  graded.MaxScore,
		AttemptID: attemptID.String(),
	}, nil
}

// SubmitHTTP is the fallback path for clients whose websocket session is
// gone. It applies the same confirmation rule the live session enforces,
// then runs the standard submit pipeline.
func (s *SubmissionService) SubmitHTTP(ctx context.Context, quizID uuid.UUID, studentID int, req *model.SubmitAttemptRequest) (*model.AttemptResult, error) {
	if req.Reason == string(lockdown.ReasonManual) && !req.Confirmed {
		payload, err := s.quizService.GetQuizPayload(ctx, quizID)
		if err != nil {
			return nil, err
		}
		if len(req.Answers) < len(payload.Questions) {
			return nil, ErrUnansweredNeedsConfirm
		}
	}

	sub := lockdown.SubmitRequest{
		QuizID:    quizID,
		StudentID: studentID,
		Reason:    lockdown.SubmitReason(req.Reason),
	}
	for _, a := range req.Answers {
		sub.Answers = append(sub.Answers, lockdown.Answer{
			QuestionID:   a.QuestionID,
			OptionID:     a.OptionID,
			TextResponse: a.TextResponse,
		})
	}
	for _, v := range req.Violations {
		sub.Violations = append(sub.Violations, lockdown.Violation{
			Kind:      lockdown.Kind(v.Kind),
			Message:   v.Message,
			Severity:  lockdown.Severity(v.Severity),
			Timestamp: v.Timestamp,
		})
	}

	res, err := s.Submit(ctx, sub)
	if err != nil {
		return nil, err
	}

	attemptID, err := uuid.Parse(res.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("parse attempt id: %w", err)
	}
	return &model.AttemptResult{
		AttemptID: attemptID,
		Score:     res.Score,
		MaxScore:  res.MaxScore,
	}, nil
}

// EnqueueViolations queues violation log entries for the persistence
// worker. The websocket handler also calls this live, one entry at a
// time, so the monitor view sees violations before submission.
func (s *SubmissionService) EnqueueViolations(ctx context.Context, attemptID uuid.UUID, violations []lockdown.Violation) {
	if len(violations) == 0 {
		return
	}
	pipe := s.rdb.Pipeline()
	for _, v := range violations {
		job := ViolationJob{
			AttemptID: attemptID.String(),
			Kind:      string(v.Kind),
			Message:   v.Message,
			Severity:  string(v.Severity),
			Timestamp: v.Timestamp.Unix(),
		}
		data, err := json.Marshal(job)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to enqueue violations")
	}
}

func (s *SubmissionService) enqueueAnswers(ctx context.Context, attemptID, quizID uuid.UUID, studentID int, answers []GradedAnswer) {
	if len(answers) == 0 {
		return
	}
	pipe := s.rdb.Pipeline()
	for _, a := range answers {
		job := AnswerJob{
			AttemptID:     attemptID.String(),
			QuizID:        quizID.String(),
			StudentID:     studentID,
			QuestionID:    a.QuestionID.String(),
			OptionID:      a.OptionID,
			TextResponse:  a.TextResponse,
			IsCorrect:     a.IsCorrect,
			PointsAwarded: a.PointsAwarded,
		}
		data, err := json.Marshal(job)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to enqueue answers")
	}
}

// clearStudentState drops the per-attempt bookkeeping keys. The autosave
// buffer itself is cleared by the answer worker after the rows land.
func (s *SubmissionService) clearStudentState(ctx context.Context, quizID uuid.UUID, studentID int) {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.AttemptStartKey(quizID.String(), studentID))
	pipe.Del(ctx, config.CacheKey.StudentActiveQuizKey(studentID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Int("student_id", studentID).Msg("Failed to clear student state keys")
	}
}
