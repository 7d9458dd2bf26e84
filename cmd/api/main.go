package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"time"

	"docqa/internal/cache"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/embedder"
	"docqa/internal/http"
	"docqa/internal/llm"
	"docqa/internal/reranker"
	"docqa/internal/retriever"
	"docqa/internal/service"
	"docqa/internal/storage"
	"docqa/internal/vectorindex"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx := context.Background()

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	documentRepo := storage.NewDocumentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	queryRepo := storage.NewQueryRepo(db)

	// Validate embedding backend (fail-fast)
	emb, err := embedder.NewClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingDimension, cfg.EmbeddingCacheDir)
	if err != nil {
		log.Fatalf("Failed to create embedding client: %v", err)
	}
	if err := emb.Ping(ctx); err != nil {
		log.Fatalf("Failed to validate embedding backend: %v", err)
	}
	slog.Info("Embedding backend validated",
		"base_url", cfg.EmbeddingBaseURL,
		"model", cfg.EmbeddingModelName,
		"dimension", cfg.EmbeddingDimension)

	// Load the vector index from disk, or start a fresh one
	indexKind := vectorindex.Kind(cfg.IndexKind)
	index := vectorindex.NewFlat(cfg.IndexDir)
	loaded, err := index.Load()
	if err != nil {
		log.Fatalf("Failed to load vector index: %v", err)
	}
	if !loaded {
		if err := index.Create(cfg.EmbeddingDimension, indexKind); err != nil {
			log.Fatalf("Failed to create vector index: %v", err)
		}
		slog.Info("Created empty vector index", "dir", cfg.IndexDir, "kind", cfg.IndexKind)
	} else {
		stats := index.Stats()
		if stats.Dimension != cfg.EmbeddingDimension {
			log.Fatalf("Index dimension %d does not match EMBEDDING_DIMENSION %d; rebuild the index", stats.Dimension, cfg.EmbeddingDimension)
		}
		slog.Info("Loaded vector index", "vectors", stats.Total, "dimension", stats.Dimension, "kind", stats.Kind)
	}

	recursiveChunker, err := chunker.NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("Failed to create chunker: %v", err)
	}

	answers := cache.New[*service.Answer](time.Duration(cfg.AnswerCacheTTLSeconds)*time.Second, cfg.AnswerCacheSize)

	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName, cfg.LLMMaxTokens, cfg.LLMTemperature)

	semanticRetriever := retriever.New(emb, index, chunkRepo, documentRepo, cfg.TopK, float32(cfg.SimilarityThreshold))

	// Cross-encoder reranking when a rerank backend is configured,
	// MMR diversification otherwise.
	var rr service.Reranker
	if cfg.RerankEnabled {
		rr = reranker.New(reranker.NewCrossEncoder(cfg.RerankBaseURL, cfg.RerankModel))
		slog.Info("Cross-encoder reranking enabled", "base_url", cfg.RerankBaseURL, "model", cfg.RerankModel)
	} else {
		rr = reranker.NewDiversifier(emb, cfg.MMRLambda)
		slog.Info("MMR diversification enabled", "lambda", cfg.MMRLambda)
	}

	qaService := service.NewQAService(
		semanticRetriever,
		rr,
		llmClient,
		queryRepo,
		answers,
		cfg.TopK,
		cfg.MaxChunksPerDoc,
		cfg.ContextBudgetChars,
		cfg.RerankPoolSize,
	)

	documentService := service.NewDocumentService(
		documentRepo,
		chunkRepo,
		recursiveChunker,
		emb,
		index,
		indexKind,
		cfg.UploadDir,
		int64(cfg.MaxUploadSizeMB)<<20,
		qaService.Invalidate,
	)

	deps := &http.Deps{
		QA:           qaService,
		Documents:    documentService,
		Admin:        documentService,
		QueryHistory: queryRepo,
		Embedder:     emb,
		MaxBodyBytes: int64(cfg.MaxUploadSizeMB+1) << 20,
	}
	router := http.NewRouter(deps)

	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
