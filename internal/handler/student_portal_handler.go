package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizlock/quizlock-backend/internal/lockdown"
	"github.com/quizlock/quizlock-backend/internal/middleware"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/quizlock/quizlock-backend/internal/response"
	"github.com/quizlock/quizlock-backend/internal/service"
	"github.com/quizlock/quizlock-backend/internal/validator"
)

// StudentPortalHandler handles student-facing endpoints: joining by entry
// token, resuming, autosave, and the HTTP submit fallback.
type StudentPortalHandler struct {
	attemptService    *service.AttemptService
	submissionService *service.SubmissionService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	attemptService *service.AttemptService,
	submissionService *service.SubmissionService,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		attemptService:    attemptService,
		submissionService: submissionService,
	}
}

// JoinQuiz godoc
// POST /api/v1/student/quizzes/join
// Exchanges an entry token for an attempt. Idempotent: an in-progress
// attempt is resumed with its autosaved answers and remaining time.
func (h *StudentPortalHandler) JoinQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.JoinQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Join(c.Request.Context(), claims.UserID, req.EntryToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQuizNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrInvalidEntryToken)
		case errors.Is(err, service.ErrQuizAlreadyAttempted):
			response.Fail(c, http.StatusConflict, response.ErrAlreadyAttempted)
		case errors.Is(err, service.ErrTimeExpired):
			response.Fail(c, http.StatusGone, response.ErrQuizNotAvailable)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetActiveQuiz godoc
// GET /api/v1/student/active
// Returns the quiz ID of the student's in-progress attempt, if any. Lets
// a reloaded client rejoin without re-entering the token.
func (h *StudentPortalHandler) GetActiveQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := h.attemptService.ActiveQuiz(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveAttempt) {
			response.Success(c, http.StatusOK, gin.H{"quiz_id": nil})
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quiz_id": quizID})
}

// AutosaveAnswer godoc
// PUT /api/v1/student/quizzes/:quiz_id/answers
// Buffers one answer in Redis. The buffer survives reloads and feeds the
// timeout sweeper if the client never submits.
func (h *StudentPortalHandler) AutosaveAnswer(c *gin.Context) {
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

	var req model.AnswerPayload
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.AutosaveAnswer(c.Request.Context(), quizID, claims.UserID, req); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// SubmitAttempt godoc
// POST /api/v1/student/quizzes/:quiz_id/submit
// HTTP fallback submission for clients whose websocket session is gone.
// Applies the same confirmation rule as the live session and is rejected
// server-side if the attempt was already finalized.
func (h *StudentPortalHandler) SubmitAttempt(c *gin.Context) {
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

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.submissionService.SubmitHTTP(c.Request.Context(), quizID, claims.UserID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnansweredNeedsConfirm):
			response.Fail(c, http.StatusBadRequest, response.ErrUnansweredConfirm)
		case errors.Is(err, lockdown.ErrAlreadyAttempted):
			response.Fail(c, http.StatusConflict, response.ErrAlreadyAttempted)
		case errors.Is(err, service.ErrNotPublished):
			response.Fail(c, http.StatusNotFound, response.ErrQuizNotPublished)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrSubmissionFailed)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetAttempt godoc
// GET /api/v1/student/quizzes/:quiz_id/attempt
// Returns the student's attempt for a quiz, including the final score if
// it was submitted.
func (h *StudentPortalHandler) GetAttempt(c *gin.Context) {
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

	attempt, err := h.attemptService.Get(c.Request.Context(), quizID, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// ListAttempts godoc
// GET /api/v1/student/attempts
// Returns the student's attempt history, newest first.
func (h *StudentPortalHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempts, err := h.attemptService.ListByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if attempts == nil {
		attempts = []model.Attempt{}
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}
