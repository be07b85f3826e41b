package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"omnichannel-rag-platform/internal/ai"
	"omnichannel-rag-platform/internal/config"
	"omnichannel-rag-platform/internal/index"
	"omnichannel-rag-platform/internal/logger"
	"omnichannel-rag-platform/internal/telemetry"
	"omnichannel-rag-platform/middleware"
	"omnichannel-rag-platform/routes"
	"omnichannel-rag-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("omnichannel-rag-platform")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
		shutdownTracer = func() {}
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	geminiClient, err := ai.NewGeminiClient(cfg)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer geminiClient.Close()

	store := index.NewStore(db)
	registry := index.NewRegistry()
	quotas := ai.NewQuotaManager(db)
	cache := services.NewAnswerCache(rdb, cfg.AnswerCacheTTL)
	chunker := services.NewChunkingService(cfg)
	policies := services.NewPolicyService(store, cfg)

	notifier := services.NewReloadNotifier(rdb)
	ingestion := services.NewIngestionService(registry, store, chunker, geminiClient, cache, notifier, metrics)
	orchestrator := services.NewQueryOrchestrator(cfg, registry, policies, geminiClient, geminiClient, quotas, cache, metrics)

	hydrateCtx, cancelHydrate := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := ingestion.HydrateAll(hydrateCtx); err != nil {
		log.Fatal("Failed to hydrate tenant indexes:", err)
	}
	cancelHydrate()

	// Worker processes publish after every index swap; rehydrate on each.
	subCtx, cancelSub := context.WithCancel(context.Background())
	defer cancelSub()
	go notifier.Subscribe(subCtx, ingestion)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.MaxBodySize))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := mongoClient.Ping(ctx, nil); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg, rdb)

	routes.SetupQueryRoutes(router, orchestrator, authMiddleware)
	routes.SetupDocumentRoutes(router, store, ingestion, asynqClient, authMiddleware)
	routes.SetupAdminRoutes(router, store, quotas, rdb, authMiddleware)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
