package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/quizlock/quizlock-backend/internal/repository"
	"github.com/quizlock/quizlock-backend/internal/response"
	"github.com/quizlock/quizlock-backend/internal/service"
)

// MonitorHandler exposes the proctoring views: live attempts with
// violation pressure, per-attempt violation logs, and final results.
type MonitorHandler struct {
	monitorService *service.MonitorService
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(monitorService *service.MonitorService) *MonitorHandler {
	return &MonitorHandler{monitorService: monitorService}
}

// LiveAttempts godoc
// GET /api/v1/admin/monitor/quizzes/:quiz_id/live
// Returns in-progress attempts with their violation counts.
func (h *MonitorHandler) LiveAttempts(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempts, err := h.monitorService.LiveAttempts(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// ViolationBreakdown godoc
// GET /api/v1/admin/monitor/quizzes/:quiz_id/violations
// Returns violation counts grouped by kind across the whole quiz.
func (h *MonitorHandler) ViolationBreakdown(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	breakdown, err := h.monitorService.ViolationBreakdown(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if breakdown == nil {
		breakdown = []model.ViolationBreakdown{}
	}
	response.Success(c, http.StatusOK, gin.H{"breakdown": breakdown})
}

// AttemptViolations godoc
// GET /api/v1/admin/monitor/attempts/:attempt_id/violations
// Returns the full violation log of one attempt, oldest first.
func (h *MonitorHandler) AttemptViolations(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	violations, err := h.monitorService.AttemptViolations(c.Request.Context(), attemptID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if violations == nil {
		violations = []model.AttemptViolation{}
	}
	response.Success(c, http.StatusOK, gin.H{"violations": violations})
}

// QuizResults godoc
// GET /api/v1/admin/quizzes/:quiz_id/results?page=1&per_page=20
// Returns finalized attempt results for a quiz, paginated.
func (h *MonitorHandler) QuizResults(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	results, total, err := h.monitorService.QuizResults(c.Request.Context(), quizID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if results == nil {
		results = []repository.AttemptResultRow{}
	}

	totalPages := int(total) / perPage
	if int(total)%perPage != 0 {
		totalPages++
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: totalPages,
	})
}
