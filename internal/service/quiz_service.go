package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quizlock/quizlock-backend/internal/config"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/quizlock/quizlock-backend/internal/repository"
	"github.com/quizlock/quizlock-backend/internal/response"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Common quiz errors.
var (
	ErrNoQuestions  = errors.New("quiz has no questions")
	ErrNotTheAuthor = errors.New("not the author of this quiz")
	ErrNotPublished = errors.New("quiz is not published")
)

// QuizService manages the quiz lifecycle and the Redis fast lane: once a
// quiz is published, its student payload and grading key live in Redis so
// join and submit paths never touch the questions table.
type QuizService struct {
	quizRepo     *repository.QuizRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(
	quizRepo *repository.QuizRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *QuizService {
	return &QuizService{
		quizRepo:     quizRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "quiz_service").Logger(),
	}
}

// GetByID retrieves a quiz by its UUID.
func (s *QuizService) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	return s.quizRepo.GetByID(ctx, id)
}

// ListByAuthor retrieves quizzes, filtered by author if not superadmin.
func (s *QuizService) ListByAuthor(ctx context.Context, authorID, page, perPage int) ([]model.Quiz, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	limit := perPage
	offset := (page - 1) * perPage

	quizzes, total, err := s.quizRepo.ListByAuthorPaginated(ctx, authorID, limit, offset)
	if err != nil {
		return nil, nil, err
	}

	if quizzes == nil {
		quizzes = []model.Quiz{}
	}

	totalPages := (total + perPage - 1) / perPage

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}

	return quizzes, pagination, nil
}

// Create inserts a new quiz as DRAFT.
func (s *QuizService) Create(ctx context.Context, quiz *model.Quiz) error {
	quiz.Status = model.QuizStatusDraft
	return s.quizRepo.Create(ctx, quiz)
}

// Update applies an update request to the author's own quiz.
func (s *QuizService) Update(ctx context.Context, id uuid.UUID, authorID int, req *model.UpdateQuizRequest) error {
	quiz, err := s.quizRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get quiz: %w", err)
	}
	if authorID != 0 && quiz.AuthorID != authorID {
		return ErrNotTheAuthor
	}
	if err := s.quizRepo.Update(ctx, id, req); err != nil {
		return err
	}
	if quiz.Status == model.QuizStatusPublished {
		return s.RefreshCache(ctx, id, authorID)
	}
	return nil
}

// Delete removes the author's own quiz and drops its cache entries.
func (s *QuizService) Delete(ctx context.Context, id uuid.UUID, authorID int) error {
	quiz, err := s.quizRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get quiz: %w", err)
	}
	if authorID != 0 && quiz.AuthorID != authorID {
		return ErrNotTheAuthor
	}
	if err := s.quizRepo.Delete(ctx, id); err != nil {
		return err
	}

	quizID := id.String()
	s.rdb.Del(ctx,
		config.CacheKey.QuizPayloadKey(quizID),
		config.CacheKey.QuizGradingKey(quizID),
		config.CacheKey.QuizDurationKey(quizID),
		config.CacheKey.QuizLockdownKey(quizID),
	)
	return nil
}

// Publish changes quiz status to PUBLISHED and caches the payload plus
// grading key in Redis. This is the path that populates the fast lane.
func (s *QuizService) Publish(ctx context.Context, quizID uuid.UUID, authorID int) error {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return fmt.Errorf("get quiz: %w", err)
	}

	if authorID != 0 && quiz.AuthorID != authorID {
		return ErrNotTheAuthor
	}
	if quiz.Status != model.QuizStatusDraft {
		return fmt.Errorf("quiz status is %s, expected DRAFT", quiz.Status)
	}

	if err := s.WarmQuizCache(ctx, quiz); err != nil {
		return err
	}

	if err := s.quizRepo.UpdateStatus(ctx, quizID, model.QuizStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("quiz_id", quizID.String()).Msg("Quiz published")
	return nil
}

// RefreshCache re-caches the payload and grading key for a published quiz.
// Called when questions are updated after publish.
func (s *QuizService) RefreshCache(ctx context.Context, quizID uuid.UUID, authorID int) error {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return fmt.Errorf("get quiz: %w", err)
	}
	if authorID != 0 && quiz.AuthorID != authorID {
		return ErrNotTheAuthor
	}
	if quiz.Status != model.QuizStatusPublished {
		return ErrNotPublished
	}
	return s.WarmQuizCache(ctx, quiz)
}

// WarmQuizCache builds and caches the student payload, grading key,
// duration and lockdown flag for one quiz. Used by Publish, RefreshCache,
// and PrewarmAllCaches.
func (s *QuizService) WarmQuizCache(ctx context.Context, quiz *model.Quiz) error {
	questions, err := s.questionRepo.ListByQuiz(ctx, quiz.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	studentQuestions := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		studentQuestions[i] = q.ForStudent()
	}

	payload := model.QuizPayload{
		QuizID:       quiz.ID,
		Title:        quiz.Title,
		Duration:     quiz.DurationMinutes,
		LockdownMode: quiz.LockdownMode,
		Questions:    studentQuestions,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	gradingKey := BuildGradingKey(questions)
	gradingJSON, err := json.Marshal(gradingKey)
	if err != nil {
		return fmt.Errorf("marshal grading key: %w", err)
	}

	quizID := quiz.ID.String()
	lockdown := "0"
	if quiz.LockdownMode {
		lockdown = "1"
	}

	// All four entries land atomically via pipeline.
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.QuizPayloadKey(quizID), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.QuizGradingKey(quizID), gradingJSON, 0)
	pipe.Set(ctx, config.CacheKey.QuizDurationKey(quizID), quiz.DurationMinutes, 0)
	pipe.Set(ctx, config.CacheKey.QuizLockdownKey(quizID), lockdown, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("quiz_id", quizID).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published quizzes into Redis on application
// startup, so a restart never leaves a live quiz lazy-loading under
// thundering herd traffic.
func (s *QuizService) PrewarmAllCaches(ctx context.Context) error {
	quizzes, err := s.quizRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published quizzes: %w", err)
	}

	if len(quizzes) == 0 {
		s.log.Info().Msg("No published quizzes to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(quizzes)).Msg("Prewarming published quizzes...")

	warmed := 0
	for i := range quizzes {
		if err := s.WarmQuizCache(ctx, &quizzes[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("quiz_id", quizzes[i].ID.String()).
				Msg("Failed to warm quiz, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(quizzes)).
		Msg("Prewarming complete")
	return nil
}

// GetQuizPayload retrieves the cached student payload from Redis.
func (s *QuizService) GetQuizPayload(ctx context.Context, quizID uuid.UUID) (*model.QuizPayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.QuizPayloadKey(quizID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotPublished
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var payload model.QuizPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

// GetGradingKey retrieves the grading key from Redis for in-memory grading.
func (s *QuizService) GetGradingKey(ctx context.Context, quizID uuid.UUID) (model.GradingKey, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.QuizGradingKey(quizID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.New("grading key not found in cache")
		}
		return nil, fmt.Errorf("get grading key: %w", err)
	}

	var key model.GradingKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("unmarshal grading key: %w", err)
	}
	return key, nil
}

// ListQuestions returns a quiz's questions with correct answers, for the
// author's editing view.
func (s *QuizService) ListQuestions(ctx context.Context, quizID uuid.UUID, authorID int) ([]model.Question, error) {
	if _, err := s.authorQuiz(ctx, quizID, authorID); err != nil {
		return nil, err
	}
	return s.questionRepo.ListByQuiz(ctx, quizID)
}

// AddQuestion appends one question to a quiz and refreshes the cache if
// the quiz is already published.
func (s *QuizService) AddQuestion(ctx context.Context, quizID uuid.UUID, authorID int, req *model.AddQuestionRequest) (*model.Question, error) {
	quiz, err := s.authorQuiz(ctx, quizID, authorID)
	if err != nil {
		return nil, err
	}

	q := model.Question{
		QuizID:       quizID,
		QuestionText: req.QuestionText,
		QuestionType: model.QuestionType(req.QuestionType),
		Options:      req.Options,
		Points:       req.Points,
		OrderNum:     req.OrderNum,
	}
	if err := s.questionRepo.Add(ctx, &q); err != nil {
		return nil, fmt.Errorf("add question: %w", err)
	}

	s.rewarmIfPublished(ctx, quiz)
	return &q, nil
}

// ReplaceQuestions swaps a quiz's full question set in one transaction.
func (s *QuizService) ReplaceQuestions(ctx context.Context, quizID uuid.UUID, authorID int, req *model.ReplaceQuestionsRequest) ([]model.Question, error) {
	quiz, err := s.authorQuiz(ctx, quizID, authorID)
	if err != nil {
		return nil, err
	}

	questions := make([]model.Question, len(req.Questions))
	for i, rq := range req.Questions {
		questions[i] = model.Question{
			QuizID:       quizID,
			QuestionText: rq.QuestionText,
			QuestionType: model.QuestionType(rq.QuestionType),
			Options:      rq.Options,
			Points:       rq.Points,
			OrderNum:     rq.OrderNum,
		}
	}
	if err := s.questionRepo.ReplaceAll(ctx, quizID, questions); err != nil {
		return nil, fmt.Errorf("replace questions: %w", err)
	}

	s.rewarmIfPublished(ctx, quiz)
	return questions, nil
}

// DeleteQuestion removes one question from a quiz.
func (s *QuizService) DeleteQuestion(ctx context.Context, quizID, questionID uuid.UUID, authorID int) error {
	quiz, err := s.authorQuiz(ctx, quizID, authorID)
	if err != nil {
		return err
	}
	if err := s.questionRepo.Delete(ctx, questionID); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	s.rewarmIfPublished(ctx, quiz)
	return nil
}

// authorQuiz loads a quiz and enforces ownership. authorID 0 bypasses the
// check for superadmin access.
func (s *QuizService) authorQuiz(ctx context.Context, quizID uuid.UUID, authorID int) (*model.Quiz, error) {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if authorID != 0 && quiz.AuthorID != authorID {
		return nil, ErrNotTheAuthor
	}
	return quiz, nil
}

// rewarmIfPublished refreshes the Redis cache after a question edit so
// live students never see a stale paper. Failures are logged, not fatal,
// since the next publish or refresh will repair the cache.
func (s *QuizService) rewarmIfPublished(ctx context.Context, quiz *model.Quiz) {
	if quiz.Status != model.QuizStatusPublished {
		return
	}
	if err := s.WarmQuizCache(ctx, quiz); err != nil {
		s.log.Error().Err(err).Str("quiz_id", quiz.ID.String()).Msg("Failed to rewarm cache after question edit")
	}
}
