package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/handler"
	"github.com/stemsi/autoexam/internal/metrics"
	"github.com/stemsi/autoexam/internal/middleware"
	"github.com/stemsi/autoexam/internal/response"
	"github.com/stemsi/autoexam/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	ExamFiles     *handler.ExamFileHandler
	Sessions      *handler.SessionHandler
	StudentPortal *handler.StudentPortalHandler
	Monitor       *handler.MonitorHandler
	WS            *handler.WSHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds the lifetime of background helpers such as the login limiter.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware(log))
	router.Use(metrics.MetricsMiddleware())
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		SkipPrefixes: []string{"/metrics", "/ws/"},
	}))

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", metrics.PrometheusHandler())

	teacherAuth := []gin.HandlerFunc{
		middleware.RequireTeacherJWT(authService),
		middleware.CheckTokenNotRevoked(authService),
	}

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	loginLimiter := middleware.NewRateLimiter(ctx, cfg.LoginRatePerMinute, time.Minute)

	auth := router.Group("/api/v1/auth/teacher")
	{
		auth.POST("/login", loginLimiter.Middleware(), handlers.Auth.TeacherLogin)
		auth.GET("/me", append(teacherAuth, handlers.Auth.GetTeacherProfile)...)
		auth.POST("/logout", append(teacherAuth, handlers.Auth.TeacherLogout)...)
	}

	// ─── 2. Teacher Group (JWT + Revocation) ───────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(teacherAuth...)
	{
		// Exam files
		teacherAPI.GET("/exams", handlers.ExamFiles.ListExams)
		teacherAPI.POST("/exams", handlers.ExamFiles.UploadExam)
		teacherAPI.POST("/exams/validate", handlers.ExamFiles.ValidateExam)
		teacherAPI.POST("/exams/preview", handlers.ExamFiles.PreviewExam)
		teacherAPI.DELETE("/exams/:filename", handlers.ExamFiles.DeleteExam)
		teacherAPI.GET("/exams/:filename/source", handlers.ExamFiles.GetSource)
		teacherAPI.PUT("/exams/:filename/source", handlers.ExamFiles.SaveSource)

		// Live sessions
		teacherAPI.POST("/sessions", handlers.Sessions.StartSession)
		teacherAPI.GET("/sessions", handlers.Sessions.ListActiveSessions)
		teacherAPI.POST("/sessions/:id/end", handlers.Sessions.EndSession)
		teacherAPI.GET("/sessions/:id/students", handlers.Sessions.GetSessionStudents)
		teacherAPI.GET("/sessions/:id/monitor", handlers.Monitor.MonitorSessionSSE)

		// Results and archive
		teacherAPI.GET("/results", handlers.Sessions.ListResults)
		teacherAPI.GET("/history", handlers.Sessions.ListHistory)
		teacherAPI.GET("/history/:run_id/submissions", handlers.Sessions.GetRunSubmissions)
		teacherAPI.GET("/logs", handlers.Sessions.GetLogs)

		teacherAPI.GET("/system/stream", handlers.System.SystemStatusSSE)
	}

	// ─── 3. Student Group (Entry Token) ────────────────────────────────
	examAPI := router.Group("/api/v1/exam/:id")
	examAPI.Use(middleware.NoStore(), middleware.BodyLimit(middleware.MaxStudentBody))
	{
		examAPI.GET("", handlers.StudentPortal.GetExamInfo)
		examAPI.POST("/register", handlers.StudentPortal.Register)
		examAPI.GET("/questions", handlers.StudentPortal.GetQuestions)
		examAPI.POST("/submit", handlers.StudentPortal.SubmitExam)
		examAPI.POST("/refresh", handlers.StudentPortal.RecordRefresh)
		examAPI.POST("/cheat", handlers.StudentPortal.ReportCheat)
	}

	// ─── 4. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/exam/:id/stream", handlers.WS.StudentStream)
	}

	return router
}
