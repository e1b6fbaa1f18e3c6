package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/quizlock/quizlock-backend/internal/repository"
	"github.com/rs/zerolog"
)

// AdminService handles admin accounts, login, and RBAC lookups.
type AdminService struct {
	adminRepo   *repository.AdminRepository
	roleRepo    *repository.RoleRepository
	authService *AuthService
	log         zerolog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(
	adminRepo *repository.AdminRepository,
	roleRepo *repository.RoleRepository,
	authService *AuthService,
	log zerolog.Logger,
) *AdminService {
	return &AdminService{
		adminRepo:   adminRepo,
		roleRepo:    roleRepo,
		authService: authService,
		log:         log.With().Str("component", "admin_service").Logger(),
	}
}

// Login authenticates an admin and issues a token with permissions embedded.
func (s *AdminService) Login(ctx context.Context, email, password string) (*model.AdminLoginResponse, error) {
	admin, err := s.adminRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}

	if err := s.authService.CheckPassword(admin.PasswordHash, password); err != nil {
		return nil, err
	}

	permissions, err := s.roleRepo.GetPermissionsByRoleID(ctx, admin.RoleID)
	if err != nil {
		return nil, fmt.Errorf("get permissions: %w", err)
	}

	token, err := s.authService.GenerateAdminToken(admin.ID, admin.RoleID, permissions)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	s.log.Info().Int("admin_id", admin.ID).Msg("Admin logged in")
	return &model.AdminLoginResponse{
		Token:       token,
		Admin:       *admin,
		Permissions: permissions,
	}, nil
}

// GetByID retrieves an admin by ID.
func (s *AdminService) GetByID(ctx context.Context, id int) (*model.Admin, error) {
	return s.adminRepo.GetByID(ctx, id)
}

// Create registers a new admin with a hashed password.
func (s *AdminService) Create(ctx context.Context, email, name, password string, roleID int) (*model.Admin, error) {
	hash, err := s.authService.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	admin := &model.Admin{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		RoleID:       roleID,
	}
	if err := s.adminRepo.Create(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}

// List retrieves all admins.
func (s *AdminService) List(ctx context.Context) ([]model.Admin, error) {
	return s.adminRepo.List(ctx)
}

// ListRoles retrieves all roles with their permissions.
func (s *AdminService) ListRoles(ctx context.Context) ([]model.RoleWithPermissions, error) {
	return s.roleRepo.ListRolesWithPermissions(ctx)
}

// GetPermissions retrieves the permission codes granted to a role.
func (s *AdminService) GetPermissions(ctx context.Context, roleID int) ([]string, error) {
	return s.roleRepo.GetPermissionsByRoleID(ctx, roleID)
}

// UpdateRolePermissions replaces a role's permission set. Existing admin
// tokens keep their embedded permissions until re-login.
func (s *AdminService) UpdateRolePermissions(ctx context.Context, roleID int, codes []string) error {
	return s.roleRepo.SetRolePermissions(ctx, roleID, codes)
}
