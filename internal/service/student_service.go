package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/quizlock/quizlock-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StudentService handles student accounts and login.
type StudentService struct {
	studentRepo *repository.StudentRepository
	authService *AuthService
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewStudentService creates a new StudentService.
func NewStudentService(
	studentRepo *repository.StudentRepository,
	authService *AuthService,
	rdb *redis.Client,
	log zerolog.Logger,
) *StudentService {
	return &StudentService{
		studentRepo: studentRepo,
		authService: authService,
		rdb:         rdb,
		log:         log.With().Str("component", "student_service").Logger(),
	}
}

// Login authenticates a student and issues a single-device token.
func (s *StudentService) Login(ctx context.Context, username, password string) (string, *model.Student, error) {
	student, err := s.studentRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("get student: %w", err)
	}

	if err := s.authService.CheckPassword(student.PasswordHash, password); err != nil {
		return "", nil, err
	}

	token, err := s.authService.GenerateStudentToken(ctx, student.ID)
	if err != nil {
		return "", nil, err
	}

	s.log.Info().Int("student_id", student.ID).Msg("Student logged in")
	return token, student, nil
}

// GetByID retrieves a student by ID.
func (s *StudentService) GetByID(ctx context.Context, id int) (*model.Student, error) {
	return s.studentRepo.GetByID(ctx, id)
}

// Create registers a new student with a hashed password.
func (s *StudentService) Create(ctx context.Context, req *model.CreateStudentRequest) (*model.Student, error) {
	hash, err := s.authService.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	student := &model.Student{
		Username:     req.Username,
		Name:         req.Name,
		PasswordHash: hash,
	}
	if err := s.studentRepo.Create(ctx, student); err != nil {
		return nil, err
	}
	return student, nil
}

// List retrieves students with pagination.
func (s *StudentService) List(ctx context.Context, page, perPage int) ([]model.Student, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}
	return s.studentRepo.ListPaginated(ctx, perPage, (page-1)*perPage)
}

// ResetSession clears a student's single-device login session.
func (s *StudentService) ResetSession(ctx context.Context, studentID int) error {
	if err := s.authService.ResetStudentSession(ctx, studentID); err != nil {
		return err
	}
	s.log.Info().Int("student_id", studentID).Msg("Student session reset")
	return nil
}
