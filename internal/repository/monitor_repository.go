package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizlock/quizlock-backend/internal/model"
)

// MonitorRepository provides data access for the live quiz monitoring
// feature: in-progress attempts joined with their violation pressure.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// ListLiveAttempts returns all in-progress attempts of a quiz with their
// persisted violation counts.
func (r *MonitorRepository) ListLiveAttempts(ctx context.Context, quizID uuid.UUID) ([]model.LiveAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.quiz_id, a.student_id, s.name, a.started_at,
		        COUNT(v.attempt_id), MAX(v.occurred_at)
		 FROM attempts a
		 JOIN students s ON a.student_id = s.id
		 LEFT JOIN attempt_violations v ON v.attempt_id = a.id
		 WHERE a.quiz_id = $1 AND a.status = 'IN_PROGRESS'
		 GROUP BY a.id, a.quiz_id, a.student_id, s.name, a.started_at
		 ORDER BY s.name ASC`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.LiveAttempt
	for rows.Next() {
		var la model.LiveAttempt
		if err := rows.Scan(&la.AttemptID, &la.QuizID, &la.StudentID, &la.StudentName,
			&la.StartedAt, &la.ViolationCount, &la.LastViolationAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, la)
	}
	return attempts, rows.Err()
}

// ViolationBreakdown aggregates a quiz's persisted violations by kind.
func (r *MonitorRepository) ViolationBreakdown(ctx context.Context, quizID uuid.UUID) ([]model.ViolationBreakdown, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT v.kind, COUNT(*)
		 FROM attempt_violations v
		 JOIN attempts a ON v.attempt_id = a.id
		 WHERE a.quiz_id = $1
		 GROUP BY v.kind
		 ORDER BY COUNT(*) DESC`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var breakdown []model.ViolationBreakdown
	for rows.Next() {
		var b model.ViolationBreakdown
		if err := rows.Scan(&b.Kind, &b.Count); err != nil {
			return nil, err
		}
		breakdown = append(breakdown, b)
	}
	return breakdown, rows.Err()
}

// ListViolationsByAttempt returns the full persisted violation log of one
// attempt in chronological order.
func (r *MonitorRepository) ListViolationsByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.AttemptViolation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, kind, message, severity, occurred_at
		 FROM attempt_violations
		 WHERE attempt_id = $1
		 ORDER BY occurred_at ASC`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.AttemptViolation
	for rows.Next() {
		var v model.AttemptViolation
		if err := rows.Scan(&v.AttemptID, &v.Kind, &v.Message, &v.Severity, &v.OccurredAt); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}
