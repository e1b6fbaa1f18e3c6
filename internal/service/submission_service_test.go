package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/quizlock/quizlock-backend/internal/config"
	"github.com/quizlock/quizlock-backend/internal/lockdown"
	"github.com/quizlock/quizlock-backend/internal/logger"
	"github.com/redis/go-redis/v9"
)

func TestEnqueueViolationsPushesJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	svc := NewSubmissionService(nil, nil, rdb, logger.Nop())

	ctx := context.Background()
	attemptID := uuid.New()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	svc.EnqueueViolations(ctx, attemptID, []lockdown.Violation{
		{Kind: lockdown.KindTabHidden, Message: "Quiz tab was hidden", Severity: lockdown.SeverityLow, Timestamp: at},
		{Kind: lockdown.KindAltTab, Message: "Attempted to switch windows (Alt+Tab)", Severity: lockdown.SeverityHigh, Timestamp: at.Add(time.Second)},
	})

	entries, err := rdb.LRange(ctx, config.WorkerKey.PersistViolationsQueue, 0, -1).Result()
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("queue has %d jobs, want 2", len(entries))
	}

	var job ViolationJob
	if err := json.Unmarshal([]byte(entries[0]), &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}
	if job.AttemptID != attemptID.String() {
		t.Errorf("attempt id = %q, want %q", job.AttemptID, attemptID)
	}
	if job.Kind != string(lockdown.KindTabHidden) || job.Severity != string(lockdown.SeverityLow) {
		t.Errorf("job = %+v", job)
	}
	if job.Timestamp != at.Unix() {
		t.Errorf("timestamp = %d, want %d", job.Timestamp, at.Unix())
	}
}

func TestEnqueueViolationsEmptyLogIsNoop(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	svc := NewSubmissionService(nil, nil, rdb, logger.Nop())

	svc.EnqueueViolations(context.Background(), uuid.New(), nil)

	if mr.Exists(config.WorkerKey.PersistViolationsQueue) {
		t.Error("queue key created for empty violation log")
	}
}
