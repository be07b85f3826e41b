package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"omnichannel-rag-platform/internal/ai"
	"omnichannel-rag-platform/internal/config"
	"omnichannel-rag-platform/internal/index"
	"omnichannel-rag-platform/internal/logger"
	"omnichannel-rag-platform/internal/queue"
	"omnichannel-rag-platform/internal/telemetry"
	"omnichannel-rag-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

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
	cache := services.NewAnswerCache(rdb, cfg.AnswerCacheTTL)
	chunker := services.NewChunkingService(cfg)
	notifier := services.NewReloadNotifier(rdb)
	ingestion := services.NewIngestionService(registry, store, chunker, geminiClient, cache, notifier, metrics)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 20,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ingestion)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, processor.ProcessIngest)
	mux.HandleFunc(queue.TaskReloadTenant, processor.ProcessReload)

	logger.Info("Starting worker",
		"concurrency", 20, "redis", cfg.RedisURL,
		"queues", "critical(6) default(3) low(1)")

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
