package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lumistudy/lumi-backend/internal/config"
	"github.com/lumistudy/lumi-backend/internal/handler"
	"github.com/lumistudy/lumi-backend/internal/middleware"
	"github.com/lumistudy/lumi-backend/internal/response"
	"github.com/lumistudy/lumi-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Assessment *handler.AssessmentHandler
	Course     *handler.CourseHandler
	WS         *handler.WSHandler
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

	// ─── 1. Learner Group (JWT) ────────────────────────────────────────
	learnerAPI := router.Group("/api/v1/learner")
	learnerAPI.Use(middleware.RequireLearnerJWT(authService))
	{
		learnerAPI.GET("/courses/:course_id/progress", handlers.Course.GetProgress)
		learnerAPI.POST("/courses/:course_id/assessments", handlers.Assessment.Create)

		learnerAPI.GET("/assessments/:assessment_id", handlers.Assessment.Get)
		learnerAPI.PUT("/assessments/:assessment_id/items/:item_id/answer", handlers.Assessment.RecordAnswer)
		learnerAPI.POST("/assessments/:assessment_id/submit", handlers.Assessment.Submit)
		learnerAPI.GET("/assessments/:assessment_id/summary", handlers.Assessment.GetSummary)
	}

	// ─── 2. WebSocket Group (Learner WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireLearnerWSAuth(authService))
	{
		ws.GET("/learner/assessments/:assessment_id/stream", handlers.WS.AssessmentStream)
	}

	return router
}
