package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// Handlers groups all handler instances for route setup.
// Monitor is nil when Redis is not configured.
type Handlers struct {
	Attempt *handler.AttemptHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// logLimiter throttles activity logging per user.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	logLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), logger.RequestLogger(log, response.ContextKeyRequestID))

	// ─── CORS ──────────────────────────────────────────────────────────
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Attempt Group (any authenticated caller) ───────────────────
	attempts := router.Group("/api/v1/attempts")
	attempts.Use(middleware.RequireJWT(authService), middleware.NoStore())
	{
		attempts.POST("/:id/start", handlers.Attempt.Start)
		attempts.GET("/:id", middleware.Brotli(), handlers.Attempt.View)
		attempts.GET("/:id/result", middleware.Brotli(), handlers.Attempt.Result)
		attempts.POST("/:id/answer", handlers.Attempt.SaveAnswer)
		attempts.POST("/:id/mark", handlers.Attempt.MarkForReview)
		attempts.POST("/:id/submit", handlers.Attempt.Submit)
		attempts.POST("/:id/next", handlers.Attempt.Next)
		attempts.POST("/:id/log", logLimiter.Middleware(), handlers.Attempt.LogActivity)
		attempts.POST("/:id/publish", middleware.RequireStaff(), handlers.Attempt.Publish)
	}

	// ─── 2. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/attempts/:id/stream", handlers.WS.AttemptStream)
	}

	// ─── 3. Staff Group (teacher/admin) ────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireJWT(authService), middleware.RequireStaff())
	{
		adminAPI.GET("/attempts/:id", middleware.NoStore(), middleware.Brotli(), handlers.Attempt.StaffView)
		adminAPI.GET("/exams/:id/attempts", middleware.NoStore(), middleware.Brotli(), handlers.Attempt.ListByExam)
		if handlers.Monitor != nil {
			adminAPI.GET("/exams/:id/monitor", handlers.Monitor.MonitorExamSSE)
		}
		adminAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
