package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizlock/quizlock-backend/internal/middleware"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/quizlock/quizlock-backend/internal/response"
	"github.com/quizlock/quizlock-backend/internal/service"
	"github.com/quizlock/quizlock-backend/internal/validator"
)

// QuizHandler handles admin quiz management endpoints.
type QuizHandler struct {
	quizService *service.QuizService
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(quizService *service.QuizService) *QuizHandler {
	return &QuizHandler{quizService: quizService}
}

// ListQuizzes godoc
// GET /api/v1/admin/quizzes?page=1&per_page=20&all=true
// Lists the admin's own quizzes. ?all=true lists every quiz and requires
// the admins:read permission.
func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	authorID := claims.UserID
	if c.Query("all") == "true" {
		if !hasPermission(claims.Permissions, model.PermissionAdminsRead) {
			response.Fail(c, http.StatusForbidden, response.ErrPermissionDenied)
			return
		}
		authorID = 0
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	quizzes, pagination, err := h.quizService.ListByAuthor(c.Request.Context(), authorID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if quizzes == nil {
		quizzes = []model.Quiz{}
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"quizzes": quizzes}, pagination)
}

// GetQuiz godoc
// GET /api/v1/admin/quizzes/:quiz_id
func (h *QuizHandler) GetQuiz(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quiz": quiz})
}

// CreateQuiz godoc
// POST /api/v1/admin/quizzes
// Creates a quiz in DRAFT status. The entry token is generated when not
// supplied.
func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	entryToken := req.EntryToken
	if entryToken == "" {
		entryToken = generateEntryToken()
	}

	lockdownMode := true
	if req.LockdownMode != nil {
		lockdownMode = *req.LockdownMode
	}

	quiz := model.Quiz{
		Title:           req.Title,
		AuthorID:        claims.UserID,
		DurationMinutes: req.DurationMinutes,
		EntryToken:      entryToken,
		LockdownMode:    lockdownMode,
		Status:          model.QuizStatusDraft,
	}
	if err := h.quizService.Create(c.Request.Context(), &quiz); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"quiz": quiz})
}

// UpdateQuiz godoc
// PATCH /api/v1/admin/quizzes/:quiz_id
func (h *QuizHandler) UpdateQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.quizService.Update(c.Request.Context(), quizID, claims.UserID, &req); err != nil {
		failQuizError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// DeleteQuiz godoc
// DELETE /api/v1/admin/quizzes/:quiz_id
func (h *QuizHandler) DeleteQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.quizService.Delete(c.Request.Context(), quizID, claims.UserID); err != nil {
		failQuizError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// PublishQuiz godoc
// POST /api/v1/admin/quizzes/:quiz_id/publish
// Warms the Redis cache first, then flips the status. A quiz with no
// questions cannot be published.
func (h *QuizHandler) PublishQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.quizService.Publish(c.Request.Context(), quizID, claims.UserID); err != nil {
		switch {
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusBadRequest, response.ErrNoQuestions)
		case errors.Is(err, service.ErrNotTheAuthor):
			response.Fail(c, http.StatusForbidden, response.ErrNotQuizAuthor)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// RefreshQuizCache godoc
// POST /api/v1/admin/quizzes/:quiz_id/refresh-cache
// Rebuilds the Redis payload and grading key for a published quiz.
func (h *QuizHandler) RefreshQuizCache(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.quizService.RefreshCache(c.Request.Context(), quizID, claims.UserID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotTheAuthor):
			response.Fail(c, http.StatusForbidden, response.ErrNotQuizAuthor)
		case errors.Is(err, service.ErrNotPublished):
			response.Fail(c, http.StatusBadRequest, response.ErrQuizNotPublished)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

func failQuizError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotTheAuthor):
		response.Fail(c, http.StatusForbidden, response.ErrNotQuizAuthor)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func hasPermission(permissions []string, perm model.Permission) bool {
	for _, p := range permissions {
		if p == string(perm) {
			return true
		}
	}
	return false
}

// generateEntryToken builds a short uppercase join code.
func generateEntryToken() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(raw[:6])
}
