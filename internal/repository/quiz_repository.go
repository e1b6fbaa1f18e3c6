package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizlock/quizlock-backend/internal/model"
)

// QuizRepository handles quiz data access.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// GetByID retrieves a quiz by its UUID.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := r.pool.QueryRow(ctx,
		`SELECT q.id, q.title, q.author_id, q.duration_minutes, q.entry_token,
		        q.lockdown_mode, q.status, q.created_at, q.updated_at,
		        (SELECT COUNT(*) FROM questions WHERE quiz_id = q.id)
		 FROM quizzes q WHERE q.id = $1`, id,
	).Scan(&q.ID, &q.Title, &q.AuthorID, &q.DurationMinutes, &q.EntryToken,
		&q.LockdownMode, &q.Status, &q.CreatedAt, &q.UpdatedAt, &q.QuestionCount)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// GetByEntryToken retrieves a published quiz by its entry token.
func (r *QuizRepository) GetByEntryToken(ctx context.Context, token string) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := r.pool.QueryRow(ctx,
		`SELECT q.id, q.title, q.author_id, q.duration_minutes, q.entry_token,
		        q.lockdown_mode, q.status, q.created_at, q.updated_at,
		        (SELECT COUNT(*) FROM questions WHERE quiz_id = q.id)
		 FROM quizzes q WHERE q.entry_token = $1 AND q.status = $2`,
		token, model.QuizStatusPublished,
	).Scan(&q.ID, &q.Title, &q.AuthorID, &q.DurationMinutes, &q.EntryToken,
		&q.LockdownMode, &q.Status, &q.CreatedAt, &q.UpdatedAt, &q.QuestionCount)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ListByAuthorPaginated retrieves quizzes filtered by author with pagination.
// Pass authorID=0 to list all quizzes (superadmin).
func (r *QuizRepository) ListByAuthorPaginated(ctx context.Context, authorID, limit, offset int) ([]model.Quiz, int, error) {
	countQuery := `SELECT COUNT(*) FROM quizzes`
	var countArgs []interface{}
	if authorID > 0 {
		countQuery += ` WHERE author_id = $1`
		countArgs = append(countArgs, authorID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, title, author_id, duration_minutes, entry_token,
	                 lockdown_mode, status, created_at, updated_at
	          FROM quizzes`
	var args []interface{}
	if authorID > 0 {
		query += ` WHERE author_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, authorID, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var quizzes []model.Quiz
	for rows.Next() {
		var q model.Quiz
		if err := rows.Scan(&q.ID, &q.Title, &q.AuthorID, &q.DurationMinutes, &q.EntryToken,
			&q.LockdownMode, &q.Status, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, 0, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, total, rows.Err()
}

// Create inserts a new quiz.
func (r *QuizRepository) Create(ctx context.Context, q *model.Quiz) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO quizzes (title, author_id, duration_minutes, entry_token, lockdown_mode, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		q.Title, q.AuthorID, q.DurationMinutes, q.EntryToken, q.LockdownMode, q.Status,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
}

// Update applies the non-zero fields of req to a quiz.
func (r *QuizRepository) Update(ctx context.Context, id uuid.UUID, req *model.UpdateQuizRequest) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE quizzes SET
		   title = COALESCE(NULLIF($1, ''), title),
		   duration_minutes = CASE WHEN $2 > 0 THEN $2 ELSE duration_minutes END,
		   entry_token = COALESCE(NULLIF($3, ''), entry_token),
		   lockdown_mode = COALESCE($4, lockdown_mode),
		   updated_at = NOW()
		 WHERE id = $5`,
		req.Title, req.DurationMinutes, req.EntryToken, req.LockdownMode, id)
	return err
}

// UpdateStatus updates a quiz's status.
func (r *QuizRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.QuizStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE quizzes SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}

// ListPublished returns all quizzes with PUBLISHED status.
// Used for cache prewarming on application startup.
func (r *QuizRepository) ListPublished(ctx context.Context) ([]model.Quiz, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, author_id, duration_minutes, entry_token,
		        lockdown_mode, status, created_at, updated_at
		 FROM quizzes WHERE status = $1`, model.QuizStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []model.Quiz
	for rows.Next() {
		var q model.Quiz
		if err := rows.Scan(&q.ID, &q.Title, &q.AuthorID, &q.DurationMinutes, &q.EntryToken,
			&q.LockdownMode, &q.Status, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

// Delete removes a quiz and, via cascade, its questions.
func (r *QuizRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM quizzes WHERE id = $1`, id)
	return err
}
