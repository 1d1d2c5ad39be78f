package api

import (
	"net/http"
	"time"

	"github.com/ejournal-workflow-api/internal/auth"
	"github.com/ejournal-workflow-api/internal/config"
	"github.com/ejournal-workflow-api/internal/repository"
	"github.com/ejournal-workflow-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter creates and configures the Gin router
func NewRouter(services *service.Services, replays repository.ReplayRepository, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	if cfg.Log.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.Storage.MaxUploadSize

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware())

	// Handlers
	submissionHandler := NewSubmissionHandler(services, cfg, log)
	editorHandler := NewEditorHandler(services, log)
	reviewerHandler := NewReviewerHandler(services, log)

	// Health check
	router.GET("/health", healthCheck)
	router.GET("/metrics", metricsHandler(services))

	// Locally stored manuscripts are served as static files
	if cfg.Storage.Backend == "local" {
		router.Static("/files", cfg.Storage.UploadDir)
	}

	apiGroup := router.Group("/api")
	apiGroup.Use(auth.Middleware(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer))
	apiGroup.Use(idempotencyMiddleware(replays, log))
	{
		apiGroup.GET("/topic-areas", submissionHandler.ListTopicAreas)

		// Author endpoints
		submissions := apiGroup.Group("/submissions")
		{
			submissions.POST("", submissionHandler.CreateDraft)
			submissions.GET("", submissionHandler.ListMine)
			submissions.GET("/:id", submissionHandler.Get)
			submissions.PATCH("/:id", submissionHandler.UpdateDraft)
			submissions.DELETE("/:id", submissionHandler.DeleteDraft)
			submissions.POST("/:id/upload-file", submissionHandler.UploadFile)
			submissions.POST("/:id/submit", submissionHandler.Submit)
			submissions.POST("/:id/resubmit", submissionHandler.Resubmit)
			submissions.POST("/:id/withdraw", submissionHandler.Withdraw)
			submissions.GET("/:id/versions", submissionHandler.ListVersions)
		}

		// Editor endpoints
		editor := apiGroup.Group("/editor")
		{
			editor.GET("/submissions", editorHandler.List)
			editor.GET("/submissions/:id", editorHandler.Get)
			editor.POST("/submissions/:id/start-screening", editorHandler.StartScreening)
			editor.POST("/submissions/:id/desk-reject", editorHandler.DeskReject)
			editor.POST("/submissions/:id/send-to-review", editorHandler.SendToReview)
			editor.POST("/submissions/:id/invite-reviewer", editorHandler.InviteReviewer)
			editor.POST("/submissions/:id/move-to-decision", editorHandler.MoveToDecision)
			editor.POST("/submissions/:id/decision", editorHandler.Decide)
			editor.POST("/submissions/:id/publish", editorHandler.Publish)
			editor.POST("/review-assignments/:id/remind", editorHandler.Remind)
		}

		// Reviewer endpoints
		reviewer := apiGroup.Group("/reviewer")
		{
			reviewer.GET("/assignments", reviewerHandler.ListMine)
			reviewer.POST("/assignments/:id/accept", reviewerHandler.Accept)
			reviewer.POST("/assignments/:id/decline", reviewerHandler.Decline)
			reviewer.POST("/assignments/:id/submit-review", reviewerHandler.SubmitReview)
			reviewer.GET("/accept-by-token", reviewerHandler.LookupToken)
			reviewer.POST("/accept-by-token", reviewerHandler.AcceptByToken)
		}
	}

	return router
}

// healthCheck returns the health status
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "ejournal-workflow-api",
	})
}

// metricsHandler reports notifications that need operator attention
func metricsHandler(services *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		failed, err := services.Notification.ListFailed(c.Request.Context(), 0)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"kind": "internal_error", "message": "outbox unavailable"}})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"notifications": gin.H{
				"failed": len(failed),
			},
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Str("path", c.Request.URL.Path).Msg("Panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{"kind": "internal_error", "message": "internal server error"},
				})
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		actor := auth.ActorFrom(c)
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Str("actor_id", actor.UserID).
			Msg("Request completed")
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Idempotency-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
