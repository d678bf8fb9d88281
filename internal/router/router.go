package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"imagestudio-backend/internal/config"
	"imagestudio-backend/internal/database"
	"imagestudio-backend/internal/handlers"
	"imagestudio-backend/internal/middleware"
	"imagestudio-backend/internal/queue"
	"imagestudio-backend/internal/realtime"
	"imagestudio-backend/internal/repositories"
	"imagestudio-backend/internal/services"
	"imagestudio-backend/internal/storage"
)

// Setup creates and configures the Gin router for the image-generation
// studio backend: token ledger, generation intake/status, timeline, and
// the realtime websocket upgrade, all behind Clerk-authenticated routes.
func Setup(
	db *database.DB,
	users *repositories.UserRepository,
	ledger *services.LedgerService,
	opTypes *repositories.OperationTypeRepository,
	templates *repositories.PromptTemplateRepository,
	generations *repositories.GenerationRepository,
	uploads *repositories.UploadRepository,
	store *storage.Facade,
	q *queue.Queue,
	hub *realtime.Hub,
) *gin.Engine {
	authHandler := handlers.NewAuthHandler(users)
	tokenHandler := handlers.NewTokenHandler(ledger)
	generationHandler := handlers.NewGenerationHandler(opTypes, templates, generations, uploads, store, q)
	timelineHandler := handlers.NewTimelineHandler(generations)
	realtimeHandler := handlers.NewRealtimeHandler(hub, users, config.GetAllowedOrigins())

	router := setupBaseRouter()

	router.GET("/health", healthCheck(db))

	signupBonus := int64(config.SignupBonusTokens())
	authMiddleware := handlers.AuthMiddleware(users, func(ctx context.Context, userID uuid.UUID) {
		if _, err := ledger.GrantSignupBonus(ctx, userID, signupBonus); err != nil {
			slog.Error("grant signup bonus", "user_id", userID, "error", err)
		}
	})

	router.GET("/api/me", authMiddleware, authHandler.GetMe)
	router.GET("/ws", realtimeHandler.Connect)

	api := router.Group("/api")
	api.Use(authMiddleware)
	{
		tokens := api.Group("/tokens")
		{
			tokens.GET("/balance", tokenHandler.GetBalance)
			tokens.GET("/history", tokenHandler.GetHistory)
			tokens.POST("/admin/topup", tokenHandler.AdminTopup)
		}

		generate := api.Group("/generate")
		{
			generate.GET("/operations", generationHandler.ListOperations)
			generate.GET("/prompt-templates", generationHandler.ListPromptTemplates)
			generate.POST("/text-to-image", generationHandler.CreateTextToImage)
			generate.POST("/image-reference", generationHandler.CreateImageReference)
			generate.POST("/image-multiple-reference", generationHandler.CreateImageMultiReference)
			generate.GET("/queue/:id", generationHandler.GetQueueStatus)
			generate.POST("/queue/:id/cancel", generationHandler.CancelGeneration)
			generate.GET("/my-queue", generationHandler.GetMyQueue)
			generate.GET("/my-generations", timelineHandler.GetMyGenerations)
		}
	}

	queueOps := router.Group("/api/queue")
	queueOps.Use(authMiddleware)
	{
		queueOps.GET("/metrics", generationHandler.QueueMetrics)
		queueOps.GET("/health", generationHandler.QueueHealth)
	}

	router.GET("/api", apiDocumentation())

	return router
}

func setupBaseRouter() *gin.Engine {
	router := gin.New()

	router.Use(otelgin.Middleware("imagestudio-api"))
	router.Use(middleware.Observability())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RateLimit())

	// Trusted Proxies Configuration
	// In production, you should set this to the specific IP ranges of your load balancers or reverse proxies.
	// For now, setting it to nil means we don't trust any proxy headers (X-Forwarded-For, etc.)
	// This prevents IP spoofing if not behind a configured proxy.
	router.SetTrustedProxies(nil)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.GetAllowedOrigins()
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Authorization",
		"Accept",
		"User-Agent",
		"Cache-Control",
		"Pragma",
		"X-Session-ID",
		"Idempotency-Key",
	}
	corsConfig.AllowMethods = []string{
		"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS",
	}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	return router
}

func healthCheck(db *database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"database":  "postgresql",
				"timestamp": time.Now().Unix(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"version":   "1.0",
			"database":  "postgresql",
			"timestamp": time.Now().Unix(),
		})
	}
}

func apiDocumentation() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "ImageStudio API",
			"version":     "1.0",
			"description": "AI image-generation studio backend: token ledger, generation pipeline, realtime progress",
			"endpoints": map[string]interface{}{
				"health": "GET /health",
				"tokens": map[string]string{
					"balance": "GET /api/tokens/balance",
					"history": "GET /api/tokens/history?cursor=...&limit=...&type=...&reasonCode=...",
				},
				"generate": map[string]string{
					"operations":               "GET /api/generate/operations",
					"text_to_image":            "POST /api/generate/text-to-image",
					"image_reference":          "POST /api/generate/image-reference",
					"image_multiple_reference": "POST /api/generate/image-multiple-reference",
					"queue_status":             "GET /api/generate/queue/:id",
					"cancel":                   "POST /api/generate/queue/:id/cancel",
					"my_queue":                 "GET /api/generate/my-queue",
					"my_generations":           "GET /api/generate/my-generations?cursor=...&limit=...&includeFailed=...",
				},
				"queue":    "GET /api/queue/metrics, GET /api/queue/health",
				"realtime": "GET /ws?token=...",
			},
		})
	}
}
