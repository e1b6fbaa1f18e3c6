package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/quizlock/quizlock-backend/internal/config"
	"github.com/quizlock/quizlock-backend/internal/logger"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

func newCacheOnlyQuizService(t *testing.T) (*QuizService, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	// Repositories stay nil: the cache read path never touches PostgreSQL.
	return NewQuizService(nil, nil, rdb, logger.Nop()), rdb
}

func TestGetQuizPayloadFromCache(t *testing.T) {
	svc, rdb := newCacheOnlyQuizService(t)
	ctx := context.Background()

	quizID := uuid.New()
	payload := model.QuizPayload{
		QuizID:       quizID,
		Title:        "Algebra Midterm",
		Duration:     45,
		LockdownMode: true,
		Questions: []model.QuestionForStudent{
			{ID: uuid.New(), QuestionText: "2 + 2 = ?", QuestionType: model.QuestionTypeMultipleChoice, Points: 2},
		},
	}
	data, _ := json.Marshal(payload)
	if err := rdb.Set(ctx, config.CacheKey.QuizPayloadKey(quizID.String()), data, 0).Err(); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	got, err := svc.GetQuizPayload(ctx, quizID)
	if err != nil {
		t.Fatalf("get payload: %v", err)
	}
	if got.Title != "Algebra Midterm" || got.Duration != 45 || !got.LockdownMode {
		t.Errorf("payload = %+v", got)
	}
	if len(got.Questions) != 1 {
		t.Errorf("got %d questions, want 1", len(got.Questions))
	}
}

func TestGetQuizPayloadMissingMeansUnpublished(t *testing.T) {
	svc, _ := newCacheOnlyQuizService(t)

	_, err := svc.GetQuizPayload(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotPublished) {
		t.Errorf("error = %v, want ErrNotPublished", err)
	}
}

func TestGetGradingKeyFromCache(t *testing.T) {
	svc, rdb := newCacheOnlyQuizService(t)
	ctx := context.Background()

	quizID := uuid.New()
	questionID := uuid.New().String()
	key := model.GradingKey{
		questionID: {QuestionType: model.QuestionTypeMultipleChoice, CorrectOption: "b", Points: 3},
	}
	data, _ := json.Marshal(key)
	if err := rdb.Set(ctx, config.CacheKey.QuizGradingKey(quizID.String()), data, 0).Err(); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	got, err := svc.GetGradingKey(ctx, quizID)
	if err != nil {
		t.Fatalf("get grading key: %v", err)
	}
	if rule := got[questionID]; rule.CorrectOption != "b" || rule.Points != 3 {
		t.Errorf("rule = %+v, want correct option b with 3 pts", rule)
	}
}
