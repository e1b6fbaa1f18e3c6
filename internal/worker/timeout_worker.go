package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizlock/quizlock-backend/internal/config"
	"github.com/quizlock/quizlock-backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const sweepInterval = 30 * time.Second

type expiredAttempt struct {
	ID        uuid.UUID
	QuizID    uuid.UUID
	StudentID int
}

// TimeoutWorker is the server-side clock of last resort. The live session
// submits on expiry itself, but a client that dies mid-quiz leaves an
// in-progress row behind; the sweeper finds those, grades the autosaved
// answers, and finalizes them with the timeout reason.
type TimeoutWorker struct {
	pool           *pgxpool.Pool
	rdb            *redis.Client
	quizService    *service.QuizService
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewTimeoutWorker creates a new TimeoutWorker.
func NewTimeoutWorker(
	pool *pgxpool.Pool,
	rdb *redis.Client,
	quizService *service.QuizService,
	attemptService *service.AttemptService,
	log zerolog.Logger,
) *TimeoutWorker {
	return &TimeoutWorker{
		pool:           pool,
		rdb:            rdb,
		quizService:    quizService,
		attemptService: attemptService,
		log:            log.With().Str("component", "timeout_worker").Logger(),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (w *TimeoutWorker) Start(ctx context.Context) {
	w.log.Info().Msg("TimeoutWorker started")

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *TimeoutWorker) sweep(ctx context.Context) {
	expired, err := w.listExpired(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to list expired attempts")
		return
	}
	if len(expired) == 0 {
		return
	}

	w.log.Info().Int("count", len(expired)).Msg("Sweeping expired attempts")

	n := len(expired)
	ids := make([]uuid.UUID, 0, n)
	scores := make([]float64, 0, n)
	maxScores := make([]float64, 0, n)
	gradedByID := make(map[uuid.UUID][]service.GradedAnswer, n)
	metaByID := make(map[uuid.UUID]expiredAttempt, n)
	results := make(map[uuid.UUID]service.GradeResult)

	for _, a := range expired {
		key, err := w.quizService.GetGradingKey(ctx, a.QuizID)
		if err != nil {
			w.log.Warn().Err(err).Str("quiz_id", a.QuizID.String()).Msg("No grading key, skipping attempt")
			continue
		}
		answers, err := w.attemptService.AutosavedAnswers(ctx, a.QuizID, a.StudentID)
		if err != nil {
			w.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Autosave load failed, grading empty")
			answers = nil
		}

		result := service.Grade(key, answers)
		results[a.ID] = result
		ids = append(ids, a.ID)
		scores = append(scores, result.Score)
		maxScores = append(maxScores, result.MaxScore)
		gradedByID[a.ID] = result.Answers
		metaByID[a.ID] = a
	}

	if len(ids) == 0 {
		return
	}

	finalized, err := w.bulkFinalize(ctx, ids, scores, maxScores)
	if err != nil {
		w.log.Error().Err(err).Msg("Bulk finalize failed, will retry next sweep")
		return
	}

	// Persist answer rows and clear state only for the attempts this
	// sweep actually won; a concurrent live submit keeps its own rows.
	for _, id := range finalized {
		meta := metaByID[id]
		w.enqueueAnswers(ctx, id, meta, gradedByID[id])
		w.clearStudentState(ctx, meta)
		w.log.Info().
			Str("attempt_id", id.String()).
			Int("student_id", meta.StudentID).
			Float64("score", results[id].Score).
			Msg("Expired attempt finalized")
	}
}

func (w *TimeoutWorker) listExpired(ctx context.Context) ([]expiredAttempt, error) {
	rows, err := w.pool.Query(ctx,
		`SELECT a.id, a.quiz_id, a.student_id
		 FROM attempts a
		 JOIN quizzes q ON a.quiz_id = q.id
		 WHERE a.status = 'IN_PROGRESS'
		   AND a.started_at + make_interval(mins => q.duration_minutes) < NOW()`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []expiredAttempt
	for rows.Next() {
		var a expiredAttempt
		if err := rows.Scan(&a.ID, &a.QuizID, &a.StudentID); err != nil {
			return nil, err
		}
		expired = append(expired, a)
	}
	return expired, rows.Err()
}

// bulkFinalize flips the expired attempts to SUBMITTED in one statement.
// The status guard in the join keeps the sweep from overwriting an
// attempt a live session finalized between listing and updating.
func (w *TimeoutWorker) bulkFinalize(ctx context.Context, ids []uuid.UUID, scores, maxScores []float64) ([]uuid.UUID, error) {
	rows, err := w.pool.Query(ctx,
		`UPDATE attempts AS a
		 SET status = 'SUBMITTED',
		     submit_reason = 'timeout',
		     final_score = t.score,
		     max_score = t.max_score,
		     finished_at = NOW()
		 FROM (
			SELECT u.id, u.score, u.max_score
			FROM UNNEST(
				$1::uuid[],
				$2::float8[],
				$3::float8[]
			) AS u (id, score, max_score)
		 ) AS t
		 WHERE a.id = t.id
		   AND a.status = 'IN_PROGRESS'
		 RETURNING a.id`,
		ids, scores, maxScores)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var finalized []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		finalized = append(finalized, id)
	}
	return finalized, rows.Err()
}

func (w *TimeoutWorker) enqueueAnswers(ctx context.Context, attemptID uuid.UUID, meta expiredAttempt, answers []service.GradedAnswer) {
	if len(answers) == 0 {
		return
	}
	pipe := w.rdb.Pipeline()
	for _, a := range answers {
		job := service.AnswerJob{
			AttemptID:     attemptID.String(),
			QuizID:        meta.QuizID.String(),
			StudentID:     meta.StudentID,
			QuestionID:    a.QuestionID.String(),
			OptionID:      a.OptionID,
			TextResponse:  a.TextResponse,
			IsCorrect:     a.IsCorrect,
			PointsAwarded: a.PointsAwarded,
		}
		data, _ := json.Marshal(job)
		pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to enqueue answers")
	}
}

func (w *TimeoutWorker) clearStudentState(ctx context.Context, meta expiredAttempt) {
	pipe := w.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.AttemptStartKey(meta.QuizID.String(), meta.StudentID))
	pipe.Del(ctx, config.CacheKey.StudentActiveQuizKey(meta.StudentID))
	_, _ = pipe.Exec(ctx)
}
