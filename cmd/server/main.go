package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"imagestudio-backend/internal/auth"
	"imagestudio-backend/internal/config"
	"imagestudio-backend/internal/database"
	"imagestudio-backend/internal/logger"
	"imagestudio-backend/internal/observability"
	"imagestudio-backend/internal/provider"
	"imagestudio-backend/internal/queue"
	"imagestudio-backend/internal/realtime"
	"imagestudio-backend/internal/repositories"
	"imagestudio-backend/internal/router"
	"imagestudio-backend/internal/services"
	"imagestudio-backend/internal/storage"
	"imagestudio-backend/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	port := getEnv("PORT", "3001")
	env := getEnv("NODE_ENV", "development")

	logger.Init("imagestudio-backend", env, logger.ParseLevelFromEnv())

	shutdownOTel, err := observability.InitOTel(context.Background(), "imagestudio-api")
	if err != nil {
		log.Printf("Warning: Failed to initialize OpenTelemetry: %v", err)
	} else {
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				log.Printf("Error shutting down OpenTelemetry: %v", err)
			}
		}()
		log.Println("OpenTelemetry initialized")
	}

	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.New(databaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	auth.InitClerk()

	queueCfg := config.LoadQueueConfig()
	rdb := redis.NewClient(&redis.Options{
		Addr:     queueCfg.RedisAddr,
		Password: queueCfg.RedisPassword,
		DB:       queueCfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()
	log.Println("Connected to Redis")

	busClient := redis.NewClient(&redis.Options{
		Addr:     queueCfg.RedisAddr,
		Password: queueCfg.RedisPassword,
		DB:       queueCfg.RedisDB,
	})

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)
	opTypeRepo := repositories.NewOperationTypeRepository(db)
	templateRepo := repositories.NewPromptTemplateRepository(db)
	generationRepo := repositories.NewGenerationRepository(db)
	uploadRepo := repositories.NewUploadRepository(db)

	// Realtime fabric: bus fans events across instances, hub owns local
	// socket delivery and satisfies both notifier interfaces.
	bus := realtime.NewBus(busClient, queueCfg.KeyPrefix+":realtime")
	hub := realtime.NewHub(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := hub.Start(ctx); err != nil {
		log.Fatal("Failed to start realtime bus forwarder:", err)
	}

	ledgerService := services.NewLedgerService(ledgerRepo, hub)

	// Object store facade (optional — continues without generation
	// output persistence wired if R2 isn't configured, same graceful
	// degradation the upload flow always had).
	var storageFacade *storage.Facade
	r2Client, err := storage.NewR2Client()
	if err != nil {
		log.Printf("Warning: R2 storage not configured: %v", err)
	} else {
		storageFacade = storage.NewFacade(r2Client, config.GetAllowedFetchHosts())
	}

	providerClient := provider.NewClient(config.LoadProviderConfig())
	jobQueue := queue.NewQueue(rdb, queueCfg.KeyPrefix, queueCfg.QueueName)

	if storageFacade != nil {
		pool := worker.NewPool(worker.Deps{
			Queue:       jobQueue,
			Generations: generationRepo,
			Uploads:     uploadRepo,
			Ledger:      ledgerService,
			OpTypes:     opTypeRepo,
			Templates:   templateRepo,
			Provider:    providerClient,
			Storage:     storageFacade,
			Notifier:    hub,
			WorkerCount: queueCfg.WorkerCount,
		})
		pool.Start(ctx)
		defer pool.Stop()
		log.Printf("Worker pool started with %d workers", queueCfg.WorkerCount)
	} else {
		log.Println("Warning: worker pool not started, object storage is not configured")
	}

	r := router.Setup(db, userRepo, ledgerService, opTypeRepo, templateRepo, generationRepo, uploadRepo, storageFacade, jobQueue, hub)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Printf("Server starting on port %s", port)
		log.Printf("Environment: %s", env)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	slog.Info("server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
