package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/quizlock/quizlock-backend/internal/response"
	"github.com/quizlock/quizlock-backend/internal/service"
	"github.com/quizlock/quizlock-backend/internal/validator"
)

// AdminUserHandler manages admin accounts and roles.
type AdminUserHandler struct {
	adminService *service.AdminService
}

// NewAdminUserHandler creates a new AdminUserHandler.
func NewAdminUserHandler(adminService *service.AdminService) *AdminUserHandler {
	return &AdminUserHandler{adminService: adminService}
}

// ListAdmins godoc
// GET /api/v1/admin/admins
func (h *AdminUserHandler) ListAdmins(c *gin.Context) {
	admins, err := h.adminService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if admins == nil {
		admins = []model.Admin{}
	}
	response.Success(c, http.StatusOK, gin.H{"admins": admins})
}

// CreateAdmin godoc
// POST /api/v1/admin/admins
func (h *AdminUserHandler) CreateAdmin(c *gin.Context) {
	var req model.CreateAdminRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	admin, err := h.adminService.Create(c.Request.Context(), req.Email, req.Name, req.Password, req.RoleID)
	if err != nil {
		response.Fail(c, http.StatusConflict, response.ErrConflict)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"admin": admin})
}

// ListRoles godoc
// GET /api/v1/admin/roles
func (h *AdminUserHandler) ListRoles(c *gin.Context) {
	roles, err := h.adminService.ListRoles(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if roles == nil {
		roles = []model.RoleWithPermissions{}
	}
	response.Success(c, http.StatusOK, gin.H{"roles": roles})
}

// UpdateRolePermissions godoc
// PUT /api/v1/admin/roles/:role_id/permissions
// Replaces a role's permission set. Admins already logged in keep their
// old permissions until their token expires.
func (h *AdminUserHandler) UpdateRolePermissions(c *gin.Context) {
	roleID, err := strconv.Atoi(c.Param("role_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateRolePermissionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.adminService.UpdateRolePermissions(c.Request.Context(), roleID, req.Permissions); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
