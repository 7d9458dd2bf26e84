package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Embedding backend
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingDimension int
	EmbeddingCacheDir  string

	// Vector index
	IndexDir  string
	IndexKind string // "ip" or "l2"

	// Retrieval
	TopK                int
	SimilarityThreshold float64
	MaxChunksPerDoc     int
	ContextBudgetChars  int

	// Reranking
	RerankEnabled  bool
	RerankBaseURL  string
	RerankModel    string
	RerankPoolSize int
	MMRLambda      float64

	// LLM
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModelName   string
	LLMMaxTokens   int
	LLMTemperature float64

	// Storage
	DBPath          string
	UploadDir       string
	MaxUploadSizeMB int

	// Answer cache
	AnswerCacheTTLSeconds int
	AnswerCacheSize       int

	// API
	APIPort   string
	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or a parent directory, it is
// loaded automatically; variables already set take precedence over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load() // Try current directory

	// Walk up a few levels looking for a project-root .env
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "all-MiniLM-L6-v2"),
		EmbeddingCacheDir:  getEnv("EMBEDDING_CACHE_DIR", "./data/cache/embeddings"),
		IndexDir:           getEnv("INDEX_DIR", "./data/index"),
		IndexKind:          getEnv("INDEX_KIND", "ip"),
		RerankBaseURL:      getEnv("RERANK_BASE_URL", ""),
		RerankModel:        getEnv("RERANK_MODEL", "ms-marco-MiniLM-L-6-v2"),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMAPIKey:          getEnv("LLM_API_KEY", "dummy-key"),
		LLMModelName:       getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		DBPath:             getEnv("DB_PATH", "./data/docqa.db"),
		UploadDir:          getEnv("UPLOAD_DIR", "./data/uploads"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.ChunkSize, err = getEnvInt("CHUNK_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap, err = getEnvInt("CHUNK_OVERLAP", 200); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	// EMBEDDING_DIMENSION must match the output size of the embedding model.
	// If it changes, the index must be rebuilt.
	dimStr := getEnv("EMBEDDING_DIMENSION", "")
	if dimStr == "" {
		return nil, fmt.Errorf("EMBEDDING_DIMENSION is required")
	}
	dim, err := strconv.Atoi(dimStr)
	if err != nil {
		return nil, fmt.Errorf("EMBEDDING_DIMENSION must be a valid integer: %w", err)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("EMBEDDING_DIMENSION must be greater than 0")
	}
	cfg.EmbeddingDimension = dim

	if cfg.IndexKind != "ip" && cfg.IndexKind != "l2" {
		return nil, fmt.Errorf("INDEX_KIND must be \"ip\" or \"l2\", got %q", cfg.IndexKind)
	}

	if cfg.TopK, err = getEnvInt("TOP_K", 5); err != nil {
		return nil, err
	}
	if cfg.SimilarityThreshold, err = getEnvFloat("SIMILARITY_THRESHOLD", 0.3); err != nil {
		return nil, err
	}
	if cfg.MaxChunksPerDoc, err = getEnvInt("MAX_CHUNKS_PER_DOC", 3); err != nil {
		return nil, err
	}
	if cfg.ContextBudgetChars, err = getEnvInt("CONTEXT_BUDGET_CHARS", 12000); err != nil {
		return nil, err
	}
	if cfg.RerankPoolSize, err = getEnvInt("RERANK_POOL_SIZE", 20); err != nil {
		return nil, err
	}
	if cfg.MMRLambda, err = getEnvFloat("MMR_LAMBDA", 0.5); err != nil {
		return nil, err
	}
	if cfg.MMRLambda < 0 || cfg.MMRLambda > 1 {
		return nil, fmt.Errorf("MMR_LAMBDA must be in [0, 1], got %v", cfg.MMRLambda)
	}
	if cfg.LLMMaxTokens, err = getEnvInt("LLM_MAX_TOKENS", 500); err != nil {
		return nil, err
	}
	if cfg.LLMTemperature, err = getEnvFloat("LLM_TEMPERATURE", 0.7); err != nil {
		return nil, err
	}
	if cfg.MaxUploadSizeMB, err = getEnvInt("MAX_UPLOAD_SIZE_MB", 50); err != nil {
		return nil, err
	}
	if cfg.AnswerCacheTTLSeconds, err = getEnvInt("ANSWER_CACHE_TTL_SECONDS", 600); err != nil {
		return nil, err
	}
	if cfg.AnswerCacheSize, err = getEnvInt("ANSWER_CACHE_SIZE", 500); err != nil {
		return nil, err
	}

	cfg.RerankEnabled = getEnv("RERANK_ENABLED", "false") == "true"
	if cfg.RerankEnabled && cfg.RerankBaseURL == "" {
		return nil, fmt.Errorf("RERANK_BASE_URL is required when RERANK_ENABLED=true")
	}

	switch getEnv("LOG_LEVEL", "info") {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}

	// Create data directories up front so component init can assume they exist.
	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.UploadDir, cfg.IndexDir, cfg.EmbeddingCacheDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return v, nil
}
