package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"docqa/internal/cache"
	"docqa/internal/contextutil"
	"docqa/internal/retriever"
	"docqa/internal/storage"
)

// NoAnswerText is returned when retrieval finds nothing relevant.
const NoAnswerText = "I could not find relevant information in the uploaded documents to answer that question."

const systemPrompt = "You are a helpful assistant that answers questions using only the provided context. " +
	"If the context does not contain the answer, say so. Cite sources as [Source N]."

// Retriever finds chunks relevant to a question.
type Retriever interface {
	Search(ctx context.Context, query string, opts retriever.Options) ([]retriever.Result, error)
}

// Reranker reorders retrieved chunks before prompting.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []retriever.Result, finalK int) []retriever.Result
}

// Generator produces an answer from a prompt.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Answer is the result of asking a question.
type Answer struct {
	Text       string             `json:"answer"`
	Sources    []retriever.Result `json:"sources"`
	Cached     bool               `json:"cached"`
	DurationMs int64              `json:"duration_ms"`
	TopK       int                `json:"top_k"`
}

// QAService answers questions over the indexed documents.
type QAService struct {
	retriever Retriever
	reranker  Reranker // optional
	generator Generator
	queries   storage.QueryStore
	answers   *cache.Cache[*Answer]

	defaultTopK    int
	maxPerDocument int
	contextBudget  int
	rerankPool     int
}

// NewQAService creates a QA service. reranker may be nil to keep the
// vector ranking as-is. rerankPool widens retrieval when a reranker is
// set, giving it more candidates than the final TopK.
func NewQAService(ret Retriever, rr Reranker, gen Generator, queries storage.QueryStore, answers *cache.Cache[*Answer], topK, maxPerDocument, contextBudget, rerankPool int) *QAService {
	if topK <= 0 {
		topK = 5
	}
	return &QAService{
		retriever:      ret,
		reranker:       rr,
		generator:      gen,
		queries:        queries,
		answers:        answers,
		defaultTopK:    topK,
		maxPerDocument: maxPerDocument,
		contextBudget:  contextBudget,
		rerankPool:     rerankPool,
	}
}

// Ask retrieves relevant chunks and generates an answer. Identical
// questions are served from the answer cache until the document set
// changes.
func (s *QAService) Ask(ctx context.Context, question string, topK int) (*Answer, error) {
	logger := contextutil.LoggerFromContext(ctx)

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &ValidationError{Field: "question", Message: "cannot be empty"}
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	key := cache.Key(question)
	if s.answers != nil {
		if cached, ok := s.answers.Get(key); ok {
			logger.DebugContext(ctx, "answer served from cache", "top_k", topK)
			hit := *cached
			hit.Cached = true
			return &hit, nil
		}
	}

	started := time.Now()

	searchK := topK
	if s.reranker != nil && s.rerankPool > searchK {
		searchK = s.rerankPool
	}

	results, err := s.retriever.Search(ctx, question, retriever.Options{TopK: searchK})
	if err != nil {
		return nil, WrapError(err, "retrieving context")
	}

	if len(results) == 0 {
		answer := &Answer{
			Text:       NoAnswerText,
			Sources:    []retriever.Result{},
			DurationMs: time.Since(started).Milliseconds(),
			TopK:       topK,
		}
		s.record(ctx, question, answer)
		return answer, nil
	}

	if s.reranker != nil {
		results = s.reranker.Rerank(ctx, question, results, topK)
	}
	results = retriever.Deduplicate(results, s.maxPerDocument)

	window := retriever.BuildContextWindow(results, s.contextBudget)
	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", window, question)

	text, err := s.generator.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		logger.ErrorContext(ctx, "answer generation failed", "error", err)
		return nil, fmt.Errorf("%w: generating answer: %v", ErrExternalService, err)
	}

	answer := &Answer{
		Text:       strings.TrimSpace(text),
		Sources:    results,
		DurationMs: time.Since(started).Milliseconds(),
		TopK:       topK,
	}

	s.record(ctx, question, answer)
	if s.answers != nil {
		s.answers.Put(key, answer)
	}

	logger.InfoContext(ctx, "question answered",
		"sources", len(results),
		"duration_ms", answer.DurationMs)
	return answer, nil
}

// Invalidate drops all cached answers.
func (s *QAService) Invalidate() {
	if s.answers != nil {
		s.answers.Purge()
	}
}

// record persists the query to history. Failures are logged, not
// returned, so history never blocks answering.
func (s *QAService) record(ctx context.Context, question string, answer *Answer) {
	if s.queries == nil {
		return
	}

	type retrieved struct {
		ChunkID string  `json:"chunk_id"`
		Score   float32 `json:"score"`
	}
	refs := make([]retrieved, len(answer.Sources))
	for i, src := range answer.Sources {
		refs[i] = retrieved{ChunkID: src.ChunkID, Score: src.Score}
	}
	encoded, err := json.Marshal(refs)
	if err != nil {
		encoded = []byte("[]")
	}

	rec := &storage.QueryRecord{
		QueryText:  question,
		Response:   answer.Text,
		DurationMs: answer.DurationMs,
		TopK:       answer.TopK,
		Retrieved:  string(encoded),
	}
	if err := s.queries.Insert(ctx, rec); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to record query", "error", err)
	}
}
