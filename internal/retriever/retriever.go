// Package retriever turns a question into ranked, source-attributed chunks.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"docqa/internal/contextutil"
	"docqa/internal/embedder"
	"docqa/internal/storage"
	"docqa/internal/vectorindex"
)

// ErrEmptyQuery is returned when the query is blank after trimming.
var ErrEmptyQuery = errors.New("query is empty")

// Result is one retrieved chunk with its provenance and similarity score.
type Result struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
	VectorID   int64   `json:"vector_id"`
	ChunkIndex int     `json:"chunk_index"`
	Page       int     `json:"page,omitempty"`
}

// VectorSearcher is the slice of the vector index the retriever needs.
type VectorSearcher interface {
	Search(query []float32, k int) ([]vectorindex.Candidate, error)
}

// ChunkLookup resolves vector IDs back to stored chunks.
type ChunkLookup interface {
	GetByVectorID(ctx context.Context, vectorID int64) (*storage.ChunkRecord, error)
}

// DocumentLookup resolves document IDs to their records.
type DocumentLookup interface {
	GetByID(ctx context.Context, id string) (*storage.DocumentRecord, error)
}

// Options tunes a single search. Zero values fall back to the
// retriever's defaults.
type Options struct {
	TopK       int
	MinScore   float32 // similarity floor; negative disables the default
	DocumentID string  // restrict results to one document
}

// SemanticRetriever searches the vector index and joins hits back to
// their chunks and documents.
type SemanticRetriever struct {
	embedder embedder.Embedder
	index    VectorSearcher
	chunks   ChunkLookup
	docs     DocumentLookup

	defaultTopK     int
	defaultMinScore float32
}

// New creates a retriever with the given defaults.
func New(emb embedder.Embedder, index VectorSearcher, chunks ChunkLookup, docs DocumentLookup, topK int, minScore float32) *SemanticRetriever {
	if topK <= 0 {
		topK = 5
	}
	return &SemanticRetriever{
		embedder:        emb,
		index:           index,
		chunks:          chunks,
		docs:            docs,
		defaultTopK:     topK,
		defaultMinScore: minScore,
	}
}

// Search embeds the query and returns up to TopK chunks above the
// similarity floor. The index is overfetched at twice TopK so that
// filtered or orphaned hits still leave enough candidates. Vectors with
// no matching chunk row are skipped.
func (r *SemanticRetriever) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = r.defaultTopK
	}
	minScore := r.defaultMinScore
	if opts.MinScore != 0 {
		minScore = opts.MinScore
	}
	if minScore < 0 {
		minScore = 0
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	candidates, err := r.index.Search(vec, 2*topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	logger := contextutil.LoggerFromContext(ctx)
	docCache := make(map[string]*storage.DocumentRecord)

	results := make([]Result, 0, topK)
	for _, cand := range candidates {
		if cand.Score < minScore {
			continue
		}

		chunk, err := r.chunks.GetByVectorID(ctx, cand.ID)
		if errors.Is(err, storage.ErrNotFound) {
			logger.WarnContext(ctx, "vector has no chunk row, skipping",
				"vector_id", cand.ID,
				"document_id", cand.Meta.DocumentID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving vector %d: %w", cand.ID, err)
		}

		if opts.DocumentID != "" && chunk.DocID != opts.DocumentID {
			continue
		}

		doc, ok := docCache[chunk.DocID]
		if !ok {
			doc, err = r.docs.GetByID(ctx, chunk.DocID)
			if err != nil {
				return nil, fmt.Errorf("resolving document %s: %w", chunk.DocID, err)
			}
			docCache[chunk.DocID] = doc
		}

		results = append(results, Result{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocID,
			Filename:   doc.Filename,
			Text:       chunk.Text,
			Score:      cand.Score,
			VectorID:   cand.ID,
			ChunkIndex: chunk.ChunkIndex,
			Page:       chunk.Page,
		})
		if len(results) == topK {
			break
		}
	}

	logger.DebugContext(ctx, "retrieval complete",
		"candidates", len(candidates),
		"results", len(results),
		"top_k", topK)

	return results, nil
}

// Deduplicate caps how many chunks a single document contributes,
// keeping the highest-ranked ones. Order is preserved.
// maxPerDocument <= 0 disables the cap.
func Deduplicate(results []Result, maxPerDocument int) []Result {
	if maxPerDocument <= 0 {
		return results
	}

	seen := make(map[string]int)
	kept := make([]Result, 0, len(results))
	for _, res := range results {
		if seen[res.DocumentID] >= maxPerDocument {
			continue
		}
		seen[res.DocumentID]++
		kept = append(kept, res)
	}
	return kept
}

// BuildContextWindow formats results as numbered source blocks for the
// LLM prompt, stopping before maxChars runes is exceeded. The first
// result is always included so a long top hit cannot produce an empty
// window.
func BuildContextWindow(results []Result, maxChars int) string {
	if len(results) == 0 {
		return ""
	}

	var (
		b     strings.Builder
		total int
	)
	for i, res := range results {
		block := fmt.Sprintf("[Source %d: %s]\n%s", i+1, res.Filename, res.Text)
		blockLen := utf8.RuneCountInString(block)
		if i > 0 {
			if maxChars > 0 && total+2+blockLen > maxChars {
				break
			}
			b.WriteString("\n\n")
			total += 2
		}
		b.WriteString(block)
		total += blockLen
	}
	return b.String()
}
