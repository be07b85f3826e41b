package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI     string
	DBName       string
	Port         string
	GinMode      string
	CORSOrigins  []string
	AccessSecret string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Gemini provider
	GeminiAPIKey          string
	GoogleEmbeddingsModel string
	GenerationModel       string
	AITier                string

	// Chunking
	MaxChunkSize int
	ChunkOverlap int
	MinChunkSize int

	// Retrieval policy
	TopK             int
	RRFConstant      int
	VectorDimensions int
	RetrievalTimeout time.Duration
	MaxQueryLength   int

	// Confidence policy
	ConfidenceHigh      float64
	ConfidenceLow       float64
	ConfidenceTopWeight float64
	ConfidenceGapWeight float64
	CitationDocCap      int

	// Upstream retry budgets
	EmbedMaxRetries    int
	GenerateMaxRetries int

	// Answer cache
	AnswerCacheTTL time.Duration

	// HTTP limits
	RateLimitReqs   int
	RateLimitWindow int
	MaxBodySize     int64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017/rag_platform"),
		DBName:       getEnv("DB_NAME", "rag_platform"),
		Port:         getEnv("PORT", "8080"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		CORSOrigins:  strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		AccessSecret: getEnv("ACCESS_SECRET", ""),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		GenerationModel:       getEnv("GENERATION_MODEL", "gemini-2.0-flash"),
		AITier:                getEnv("AI_TIER", "free"),

		MaxChunkSize: getEnvInt("MAX_CHUNK_SIZE", 700),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 100),
		MinChunkSize: getEnvInt("MIN_CHUNK_SIZE", 100),

		TopK:             getEnvInt("RETRIEVAL_TOP_K", 5),
		RRFConstant:      getEnvInt("RRF_CONSTANT", 60),
		VectorDimensions: getEnvInt("VECTOR_DIM", 1536),
		RetrievalTimeout: time.Duration(getEnvInt("RETRIEVAL_TIMEOUT_MS", 1500)) * time.Millisecond,
		MaxQueryLength:   getEnvInt("MAX_QUERY_LENGTH", 4000),

		ConfidenceHigh:      getEnvFloat64("CONFIDENCE_HIGH", 0.8),
		ConfidenceLow:       getEnvFloat64("CONFIDENCE_LOW", 0.5),
		ConfidenceTopWeight: getEnvFloat64("CONFIDENCE_TOP_WEIGHT", 0.7),
		ConfidenceGapWeight: getEnvFloat64("CONFIDENCE_GAP_WEIGHT", 0.3),
		CitationDocCap:      getEnvInt("CITATION_DOC_CAP", 2),

		EmbedMaxRetries:    getEnvInt("EMBED_MAX_RETRIES", 2),
		GenerateMaxRetries: getEnvInt("GENERATE_MAX_RETRIES", 2),

		AnswerCacheTTL: time.Duration(getEnvInt("ANSWER_CACHE_TTL_SECONDS", 300)) * time.Second,

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),
		MaxBodySize:     getEnvInt64("MAX_BODY_SIZE", 10485760), // 10MB raw document uploads
	}

	// Validate required fields
	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("ACCESS_SECRET is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.ConfidenceLow > cfg.ConfidenceHigh {
		return nil, fmt.Errorf("CONFIDENCE_LOW (%v) must not exceed CONFIDENCE_HIGH (%v)",
			cfg.ConfidenceLow, cfg.ConfidenceHigh)
	}

	if cfg.ChunkOverlap >= cfg.MaxChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than MAX_CHUNK_SIZE (%d)",
			cfg.ChunkOverlap, cfg.MaxChunkSize)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
