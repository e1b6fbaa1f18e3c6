package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizlock/quizlock-backend/internal/model"
)

// ErrDuplicateAttempt is returned when the (quiz, student) pair already
// has an attempt. The unique constraint on attempts is the authoritative
// guard; this error is how callers see it.
var ErrDuplicateAttempt = errors.New("attempt already exists for this quiz and student")

// AttemptResult combines student data with their attempt outcome for the
// teacher-facing results view.
type AttemptResultRow struct {
	StudentID    int                 `json:"student_id"`
	Name         string              `json:"name"`
	Username     string              `json:"username"`
	Status       model.AttemptStatus `json:"status"`
	SubmitReason string              `json:"submit_reason,omitempty"`
	FinalScore   *float64            `json:"score"`
	MaxScore     *float64            `json:"max_score"`
	StartedAt    *time.Time          `json:"started_at"`
	FinishedAt   *time.Time          `json:"finished_at"`
}

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByQuizAndStudent retrieves the attempt for a quiz-student combination.
func (r *AttemptRepository) GetByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, quiz_id, student_id, status, submit_reason, final_score, max_score, started_at, finished_at
		 FROM attempts
		 WHERE quiz_id = $1 AND student_id = $2`, quizID, studentID,
	).Scan(&a.ID, &a.QuizID, &a.StudentID, &a.Status, &a.SubmitReason,
		&a.FinalScore, &a.MaxScore, &a.StartedAt, &a.FinishedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new attempt (student joins the quiz). Returns
// ErrDuplicateAttempt if the pair already has one; the unique constraint
// makes this race-free across instances.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempts (quiz_id, student_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (quiz_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		a.QuizID, a.StudentID, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateAttempt
	}
	return err
}

// MarkSubmitted finalizes an attempt exactly once. The WHERE clause only
// matches an in-progress row, so the second submitter of the same attempt
// gets ErrDuplicateAttempt instead of silently overwriting the first score.
func (r *AttemptRepository) MarkSubmitted(ctx context.Context, quizID uuid.UUID, studentID int, reason string, score, maxScore float64) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET status = $1, submit_reason = $2, final_score = $3, max_score = $4, finished_at = NOW()
		 WHERE quiz_id = $5 AND student_id = $6 AND status = $7
		 RETURNING id`,
		model.AttemptStatusSubmitted, reason, score, maxScore,
		quizID, studentID, model.AttemptStatusInProgress,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrDuplicateAttempt
	}
	return id, err
}

// ListByStudent retrieves all attempts for a given student.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, quiz_id, student_id, status, submit_reason, final_score, max_score, started_at, finished_at
		 FROM attempts
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.Status, &a.SubmitReason,
			&a.FinalScore, &a.MaxScore, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListByQuiz retrieves all student results for a quiz with pagination.
func (r *AttemptRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID, page, perPage int) ([]AttemptResultRow, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE quiz_id = $1`, quizID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.name, s.username,
		        a.status, a.submit_reason, a.final_score, a.max_score, a.started_at, a.finished_at
		 FROM attempts a
		 JOIN students s ON a.student_id = s.id
		 WHERE a.quiz_id = $1
		 ORDER BY s.name ASC
		 LIMIT $2 OFFSET $3`, quizID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptResultRow
	for rows.Next() {
		var row AttemptResultRow
		if err := rows.Scan(&row.StudentID, &row.Name, &row.Username,
			&row.Status, &row.SubmitReason, &row.FinalScore, &row.MaxScore,
			&row.StartedAt, &row.FinishedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, row)
	}

	return results, total, rows.Err()
}
