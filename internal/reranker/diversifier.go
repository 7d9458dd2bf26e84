package reranker

import (
	"context"

	"docqa/internal/contextutil"
	"docqa/internal/embedder"
	"docqa/internal/retriever"
)

// Diversifier reorders results with maximal marginal relevance, using
// the embedding cache to score redundancy between chunks. It satisfies
// the same interface as Reranker so either can back the QA pipeline.
type Diversifier struct {
	embedder embedder.Embedder
	lambda   float64
}

// NewDiversifier creates an MMR-based reranker.
func NewDiversifier(emb embedder.Embedder, lambda float64) *Diversifier {
	return &Diversifier{embedder: emb, lambda: lambda}
}

// Rerank selects finalK results balancing relevance and diversity. If
// the chunk texts cannot be embedded, MMR degrades to round-robin
// selection across documents.
func (d *Diversifier) Rerank(ctx context.Context, _ string, results []retriever.Result, finalK int) []retriever.Result {
	if len(results) == 0 {
		return results
	}

	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Text
	}

	embeddings, err := d.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "embedding results for MMR failed, using round-robin",
			"error", err,
			"results", len(results))
		embeddings = nil
	}

	return MMR(results, embeddings, d.lambda, finalK)
}
