package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizlock/quizlock-backend/internal/config"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/quizlock/quizlock-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Common attempt errors.
var (
	ErrQuizNotFound         = errors.New("no published quiz for this entry token")
	ErrQuizAlreadyAttempted = errors.New("quiz already attempted")
	ErrNoActiveAttempt      = errors.New("no active attempt")
	ErrTimeExpired          = errors.New("quiz time has expired")
)

// JoinResult is everything a student needs to start or resume an attempt.
type JoinResult struct {
	AttemptID        uuid.UUID             `json:"attempt_id"`
	Quiz             *model.QuizPayload    `json:"quiz"`
	RemainingSeconds int                   `json:"remaining_seconds"`
	Answers          []model.AnswerPayload `json:"answers"`
	Resumed          bool                  `json:"resumed"`
}

// AttemptService manages the attempt lifecycle before submission: joining
// by entry token, resuming after a disconnect, and the Redis autosave
// buffer that survives both.
type AttemptService struct {
	attemptRepo *repository.AttemptRepository
	quizRepo    *repository.QuizRepository
	quizService *QuizService
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	quizRepo *repository.QuizRepository,
	quizService *QuizService,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attemptRepo: attemptRepo,
		quizRepo:    quizRepo,
		quizService: quizService,
		rdb:         rdb,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// Join starts or resumes an attempt for the quiz behind an entry token.
// A submitted attempt cannot be rejoined; an in-progress one resumes with
// its original clock and autosaved answers.
func (s *AttemptService) Join(ctx context.Context, studentID int, entryToken string) (*JoinResult, error) {
	quiz, err := s.quizRepo.GetByEntryToken(ctx, entryToken)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("find quiz: %w", err)
	}

	attempt, err := s.attemptRepo.GetByQuizAndStudent(ctx, quiz.ID, studentID)
	resumed := false
	switch {
	case err == nil:
		if attempt.Status == model.AttemptStatusSubmitted {
			return nil, ErrQuizAlreadyAttempted
		}
		resumed = true
	case errors.Is(err, pgx.ErrNoRows):
		attempt = &model.Attempt{QuizID: quiz.ID, StudentID: studentID}
		if err := s.attemptRepo.Create(ctx, attempt); err != nil {
			if errors.Is(err, repository.ErrDuplicateAttempt) {
				// Lost a join race against ourselves on another device.
				return nil, ErrQuizAlreadyAttempted
			}
			return nil, fmt.Errorf("create attempt: %w", err)
		}
	default:
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	payload, err := s.quizService.GetQuizPayload(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}

	remaining := remainingSeconds(quiz.DurationMinutes, attempt.StartedAt)
	if remaining <= 0 {
		// The sweeper will finalize it; the student cannot re-enter.
		return nil, ErrTimeExpired
	}

	quizID := quiz.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.SetNX(ctx, config.CacheKey.AttemptStartKey(quizID, studentID), attempt.StartedAt.Unix(), 0)
	pipe.Set(ctx, config.CacheKey.StudentActiveQuizKey(studentID), quizID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("register attempt state: %w", err)
	}

	answers, err := s.AutosavedAnswers(ctx, quiz.ID, studentID)
	if err != nil {
		s.log.Warn().Err(err).Int("student_id", studentID).Msg("Failed to load autosaved answers")
		answers = nil
	}

	s.log.Info().
		Str("quiz_id", quizID).
		Int("student_id", studentID).
		Bool("resumed", resumed).
		Msg("Student joined quiz")

	return &JoinResult{
		AttemptID:        attempt.ID,
		Quiz:             payload,
		RemainingSeconds: remaining,
		Answers:          answers,
		Resumed:          resumed,
	}, nil
}

// Get returns the attempt for a quiz-student pair.
func (s *AttemptService) Get(ctx context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.GetByQuizAndStudent(ctx, quizID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveAttempt
		}
		return nil, err
	}
	return attempt, nil
}

// ListByStudent returns all attempts of a student, newest first.
func (s *AttemptService) ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	return s.attemptRepo.ListByStudent(ctx, studentID)
}

// ActiveQuiz returns the quiz the student is currently inside, if any.
func (s *AttemptService) ActiveQuiz(ctx context.Context, studentID int) (uuid.UUID, error) {
	val, err := s.rdb.Get(ctx, config.CacheKey.StudentActiveQuizKey(studentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrNoActiveAttempt
		}
		return uuid.Nil, fmt.Errorf("get active quiz: %w", err)
	}
	return uuid.Parse(val)
}

// AutosaveAnswer stores or clears one answer in the Redis autosave buffer.
// The buffer is what a resume replays and what the timeout sweeper grades
// when a client dies without submitting.
func (s *AttemptService) AutosaveAnswer(ctx context.Context, quizID uuid.UUID, studentID int, a model.AnswerPayload) error {
	key := config.CacheKey.StudentAnswersKey(quizID.String(), studentID)
	if a.OptionID == "" && a.TextResponse == "" {
		return s.rdb.HDel(ctx, key, a.QuestionID).Err()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	return s.rdb.HSet(ctx, key, a.QuestionID, data).Err()
}

// AutosavedAnswers loads the full autosave buffer of one attempt.
func (s *AttemptService) AutosavedAnswers(ctx context.Context, quizID uuid.UUID, studentID int) ([]model.AnswerPayload, error) {
	key := config.CacheKey.StudentAnswersKey(quizID.String(), studentID)
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load autosaved answers: %w", err)
	}

	answers := make([]model.AnswerPayload, 0, len(fields))
	for _, raw := range fields {
		var a model.AnswerPayload
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			s.log.Warn().Err(err).Str("data", raw).Msg("Discarding malformed autosaved answer")
			continue
		}
		answers = append(answers, a)
	}
	return answers, nil
}

func remainingSeconds(durationMinutes int, startedAt time.Time) int {
	deadline := startedAt.Add(time.Duration(durationMinutes) * time.Minute)
	remaining := int(time.Until(deadline).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}
