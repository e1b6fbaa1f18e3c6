package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/quizlock/quizlock-backend/internal/repository"
	"github.com/rs/zerolog"
)

// MonitorService serves the teacher-facing live monitoring views.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
	attemptRepo *repository.AttemptRepository
	log         zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(
	monitorRepo *repository.MonitorRepository,
	attemptRepo *repository.AttemptRepository,
	log zerolog.Logger,
) *MonitorService {
	return &MonitorService{
		monitorRepo: monitorRepo,
		attemptRepo: attemptRepo,
		log:         log.With().Str("component", "monitor_service").Logger(),
	}
}

// LiveAttempts returns the in-progress attempts of a quiz with violation
// counts, for the monitoring dashboard poll.
func (s *MonitorService) LiveAttempts(ctx context.Context, quizID uuid.UUID) ([]model.LiveAttempt, error) {
	attempts, err := s.monitorRepo.ListLiveAttempts(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []model.LiveAttempt{}
	}
	return attempts, nil
}

// ViolationBreakdown aggregates a quiz's violations by kind.
func (s *MonitorService) ViolationBreakdown(ctx context.Context, quizID uuid.UUID) ([]model.ViolationBreakdown, error) {
	return s.monitorRepo.ViolationBreakdown(ctx, quizID)
}

// AttemptViolations returns the full violation log of one attempt.
func (s *MonitorService) AttemptViolations(ctx context.Context, attemptID uuid.UUID) ([]model.AttemptViolation, error) {
	return s.monitorRepo.ListViolationsByAttempt(ctx, attemptID)
}

// QuizResults returns the paginated results table of a quiz.
func (s *MonitorService) QuizResults(ctx context.Context, quizID uuid.UUID, page, perPage int) ([]repository.AttemptResultRow, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	return s.attemptRepo.ListByQuiz(ctx, quizID, page, perPage)
}
