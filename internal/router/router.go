package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/quizlock/quizlock-backend/internal/config"
	"github.com/quizlock/quizlock-backend/internal/handler"
	"github.com/quizlock/quizlock-backend/internal/middleware"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/quizlock/quizlock-backend/internal/response"
	"github.com/quizlock/quizlock-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	StudentPortal *handler.StudentPortalHandler
	StudentMgmt   *handler.StudentManagementHandler
	Quiz          *handler.QuizHandler
	Question      *handler.QuestionHandler
	Monitor       *handler.MonitorHandler
	AdminUser     *handler.AdminUserHandler
	WS            *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.POST("/quizzes/join", handlers.StudentPortal.JoinQuiz)
		studentAPI.GET("/active", handlers.StudentPortal.GetActiveQuiz)
		studentAPI.GET("/attempts", handlers.StudentPortal.ListAttempts)
		studentAPI.PUT("/quizzes/:quiz_id/answers", handlers.StudentPortal.AutosaveAnswer)
		studentAPI.POST("/quizzes/:quiz_id/submit", handlers.StudentPortal.SubmitAttempt)
		studentAPI.GET("/quizzes/:quiz_id/attempt", handlers.StudentPortal.GetAttempt)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/quizzes/:quiz_id", handlers.WS.QuizSocket)
	}

	// ─── 4. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		// Quiz management
		adminAPI.GET("/quizzes",
			middleware.RequirePermission(string(model.PermissionQuizzesRead)),
			handlers.Quiz.ListQuizzes,
		)
		adminAPI.POST("/quizzes",
			middleware.RequirePermission(string(model.PermissionQuizzesWriteOwn)),
			handlers.Quiz.CreateQuiz,
		)
		adminAPI.GET("/quizzes/:quiz_id",
			middleware.RequirePermission(string(model.PermissionQuizzesRead)),
			handlers.Quiz.GetQuiz,
		)
		adminAPI.PATCH("/quizzes/:quiz_id",
			middleware.RequirePermission(string(model.PermissionQuizzesWriteOwn)),
			handlers.Quiz.UpdateQuiz,
		)
		adminAPI.DELETE("/quizzes/:quiz_id",
			middleware.RequirePermission(string(model.PermissionQuizzesWriteOwn)),
			handlers.Quiz.DeleteQuiz,
		)
		adminAPI.POST("/quizzes/:quiz_id/publish",
			middleware.RequirePermission(string(model.PermissionQuizzesPublish)),
			handlers.Quiz.PublishQuiz,
		)
		adminAPI.POST("/quizzes/:quiz_id/refresh-cache",
			middleware.RequirePermission(string(model.PermissionQuizzesWriteOwn)),
			handlers.Quiz.RefreshQuizCache,
		)

		// Question management
		adminAPI.GET("/quizzes/:quiz_id/questions",
			middleware.RequirePermission(string(model.PermissionQuizzesRead)),
			handlers.Question.ListQuestions,
		)
		adminAPI.POST("/quizzes/:quiz_id/questions",
			middleware.RequirePermission(string(model.PermissionQuizzesWriteOwn)),
			handlers.Question.AddQuestion,
		)
		adminAPI.PUT("/quizzes/:quiz_id/questions",
			middleware.RequirePermission(string(model.PermissionQuizzesWriteOwn)),
			handlers.Question.ReplaceQuestions,
		)
		adminAPI.DELETE("/quizzes/:quiz_id/questions/:question_id",
			middleware.RequirePermission(string(model.PermissionQuizzesWriteOwn)),
			handlers.Question.DeleteQuestion,
		)

		// Results and monitoring
		adminAPI.GET("/quizzes/:quiz_id/results",
			middleware.RequirePermission(string(model.PermissionResultsRead)),
			handlers.Monitor.QuizResults,
		)
		adminAPI.GET("/monitor/quizzes/:quiz_id/live",
			middleware.RequirePermission(string(model.PermissionMonitorRead)),
			handlers.Monitor.LiveAttempts,
		)
		adminAPI.GET("/monitor/quizzes/:quiz_id/violations",
			middleware.RequirePermission(string(model.PermissionMonitorRead)),
			handlers.Monitor.ViolationBreakdown,
		)
		adminAPI.GET("/monitor/attempts/:attempt_id/violations",
			middleware.RequirePermission(string(model.PermissionMonitorRead)),
			handlers.Monitor.AttemptViolations,
		)

		// Student management
		adminAPI.GET("/students",
			middleware.RequirePermission(string(model.PermissionStudentsRead)),
			handlers.StudentMgmt.ListStudents,
		)
		adminAPI.POST("/students",
			middleware.RequirePermission(string(model.PermissionStudentsWrite)),
			handlers.StudentMgmt.CreateStudent,
		)
		adminAPI.POST("/students/:student_id/reset-session",
			middleware.RequirePermission(string(model.PermissionStudentsResetSession)),
			handlers.StudentMgmt.ResetStudentSession,
		)

		// Admin users and roles
		adminAPI.GET("/admins",
			middleware.RequirePermission(string(model.PermissionAdminsRead)),
			handlers.AdminUser.ListAdmins,
		)
		adminAPI.POST("/admins",
			middleware.RequirePermission(string(model.PermissionAdminsWrite)),
			handlers.AdminUser.CreateAdmin,
		)
		adminAPI.GET("/roles",
			middleware.RequirePermission(string(model.PermissionRolesRead)),
			handlers.AdminUser.ListRoles,
		)
		adminAPI.PUT("/roles/:role_id/permissions",
			middleware.RequirePermission(string(model.PermissionRolesWrite)),
			handlers.AdminUser.UpdateRolePermissions,
		)
	}

	return router
}
