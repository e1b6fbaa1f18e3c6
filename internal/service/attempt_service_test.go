package service

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/quizlock/quizlock-backend/internal/config"
	"github.com/quizlock/quizlock-backend/internal/logger"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

func newBufferOnlyAttemptService(t *testing.T) (*AttemptService, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	// Repositories stay nil: the autosave buffer lives entirely in Redis.
	return NewAttemptService(nil, nil, nil, rdb, logger.Nop()), mr, rdb
}

func TestAutosaveRoundTrip(t *testing.T) {
	svc, _, _ := newBufferOnlyAttemptService(t)
	ctx := context.Background()
	quizID := uuid.New()

	q1 := uuid.New().String()
	q2 := uuid.New().String()

	if err := svc.AutosaveAnswer(ctx, quizID, 9, model.AnswerPayload{QuestionID: q1, OptionID: "a"}); err != nil {
		t.Fatalf("autosave q1: %v", err)
	}
	if err := svc.AutosaveAnswer(ctx, quizID, 9, model.AnswerPayload{QuestionID: q2, TextResponse: "answer"}); err != nil {
		t.Fatalf("autosave q2: %v", err)
	}
	// Overwrite q1 with a different option.
	if err := svc.AutosaveAnswer(ctx, quizID, 9, model.AnswerPayload{QuestionID: q1, OptionID: "b"}); err != nil {
		t.Fatalf("overwrite q1: %v", err)
	}

	answers, err := svc.AutosavedAnswers(ctx, quizID, 9)
	if err != nil {
		t.Fatalf("load answers: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("got %d answers, want 2", len(answers))
	}

	byQuestion := make(map[string]model.AnswerPayload, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	if byQuestion[q1].OptionID != "b" {
		t.Errorf("q1 option = %q, want b (overwritten)", byQuestion[q1].OptionID)
	}
	if byQuestion[q2].TextResponse != "answer" {
		t.Errorf("q2 text = %q, want %q", byQuestion[q2].TextResponse, "answer")
	}
}

func TestAutosaveEmptyAnswerClears(t *testing.T) {
	svc, _, _ := newBufferOnlyAttemptService(t)
	ctx := context.Background()
	quizID := uuid.New()
	q1 := uuid.New().String()

	if err := svc.AutosaveAnswer(ctx, quizID, 9, model.AnswerPayload{QuestionID: q1, OptionID: "a"}); err != nil {
		t.Fatalf("autosave: %v", err)
	}
	if err := svc.AutosaveAnswer(ctx, quizID, 9, model.AnswerPayload{QuestionID: q1}); err != nil {
		t.Fatalf("clear: %v", err)
	}

	answers, err := svc.AutosavedAnswers(ctx, quizID, 9)
	if err != nil {
		t.Fatalf("load answers: %v", err)
	}
	if len(answers) != 0 {
		t.Errorf("got %d answers after clear, want 0", len(answers))
	}
}

func TestAutosavedAnswersDiscardsMalformedEntries(t *testing.T) {
	svc, mr, _ := newBufferOnlyAttemptService(t)
	ctx := context.Background()
	quizID := uuid.New()
	q1 := uuid.New().String()

	if err := svc.AutosaveAnswer(ctx, quizID, 9, model.AnswerPayload{QuestionID: q1, OptionID: "a"}); err != nil {
		t.Fatalf("autosave: %v", err)
	}
	// Corrupt a second field directly.
	mr.HSet(config.CacheKey.StudentAnswersKey(quizID.String(), 9), "broken", "{not json")

	answers, err := svc.AutosavedAnswers(ctx, quizID, 9)
	if err != nil {
		t.Fatalf("load answers: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("got %d answers, want 1 (malformed entry discarded)", len(answers))
	}
	if answers[0].QuestionID != q1 {
		t.Errorf("surviving answer = %+v", answers[0])
	}
}

func TestActiveQuizWhenNoneSet(t *testing.T) {
	svc, _, _ := newBufferOnlyAttemptService(t)

	_, err := svc.ActiveQuiz(context.Background(), 9)
	if !errors.Is(err, ErrNoActiveAttempt) {
		t.Errorf("error = %v, want ErrNoActiveAttempt", err)
	}
}

func TestActiveQuizRoundTrip(t *testing.T) {
	svc, _, rdb := newBufferOnlyAttemptService(t)
	ctx := context.Background()
	quizID := uuid.New()

	if err := rdb.Set(ctx, config.CacheKey.StudentActiveQuizKey(9), quizID.String(), 0).Err(); err != nil {
		t.Fatalf("seed active quiz: %v", err)
	}

	got, err := svc.ActiveQuiz(ctx, 9)
	if err != nil {
		t.Fatalf("active quiz: %v", err)
	}
	if got != quizID {
		t.Errorf("active quiz = %s, want %s", got, quizID)
	}
}
