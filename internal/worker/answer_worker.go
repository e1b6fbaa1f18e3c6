package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizlock/quizlock-backend/internal/config"
	"github.com/quizlock/quizlock-backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// AnswerWorker drains the graded-answer queue into attempt_answers in
// batches, then clears the Redis autosave buffers of the attempts whose
// rows landed.
type AnswerWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAnswerWorker creates a new AnswerWorker.
func NewAnswerWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	return &AnswerWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "answer_worker").Logger(),
	}
}

// Start runs the worker loop until ctx is cancelled. The remaining batch
// is flushed on shutdown.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AnswerWorker started")

	batch := make([]*service.AnswerJob, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(batch)
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(item) < 2 {
			continue
		}

		var job service.AnswerJob
		if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed JSON")
			continue
		}

		batch = append(batch, &job)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *AnswerWorker) flushSafe(ctx context.Context, batch []*service.AnswerJob) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}

	w.bulkClearAutosaved(ctx, batch)
}

func (w *AnswerWorker) bulkInsert(ctx context.Context, batch []*service.AnswerJob) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, job := range batch {
		attemptID, err := uuid.Parse(job.AttemptID)
		if err != nil {
			return err
		}
		questionID, err := uuid.Parse(job.QuestionID)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{
			attemptID, questionID, job.OptionID, job.TextResponse, job.IsCorrect, job.PointsAwarded,
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_answers"},
		[]string{"attempt_id", "question_id", "option_id", "text_response", "is_correct", "points_awarded"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *AnswerWorker) fallbackInsert(ctx context.Context, batch []*service.AnswerJob) {
	requeueList := make([]*service.AnswerJob, 0)

	for _, job := range batch {
		attemptID, err1 := uuid.Parse(job.AttemptID)
		questionID, err2 := uuid.Parse(job.QuestionID)
		if err1 != nil || err2 != nil {
			w.log.Error().Str("attempt_id", job.AttemptID).Str("question_id", job.QuestionID).
				Msg("Dropping answer row with invalid UUID")
			continue
		}

		_, err := w.pool.Exec(ctx,
			`INSERT INTO attempt_answers (attempt_id, question_id, option_id, text_response, is_correct, points_awarded)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (attempt_id, question_id) DO NOTHING`,
			attemptID, questionID, job.OptionID, job.TextResponse, job.IsCorrect, job.PointsAwarded,
		)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", job.AttemptID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, job)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *AnswerWorker) requeue(ctx context.Context, items []*service.AnswerJob) {
	pipe := w.rdb.Pipeline()
	for _, job := range items {
		data, _ := json.Marshal(job)
		pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down.
	time.Sleep(2 * time.Second)
}

// bulkClearAutosaved deletes the autosave buffers of every attempt whose
// answers were just persisted.
func (w *AnswerWorker) bulkClearAutosaved(ctx context.Context, batch []*service.AnswerJob) {
	seen := make(map[string]struct{}, len(batch))
	pipe := w.rdb.Pipeline()
	for _, job := range batch {
		key := config.CacheKey.StudentAnswersKey(job.QuizID, job.StudentID)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		pipe.Del(ctx, key)
	}
	_, _ = pipe.Exec(ctx)
}

func (w *AnswerWorker) shutdown(batch []*service.AnswerJob) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w.flushSafe(shutdownCtx, batch)
}
