// Package reranker reorders retrieved chunks, either by cross-encoder
// relevance or by maximal marginal relevance for diversity.
package reranker

import (
	"context"
	"sort"

	"docqa/internal/contextutil"
	"docqa/internal/retriever"
)

// Reranker reorders retrieval results with a cross-encoder scorer.
// Scorer failures degrade to the original vector ranking.
type Reranker struct {
	scorer Scorer
}

// New creates a reranker around the given scorer.
func New(scorer Scorer) *Reranker {
	return &Reranker{scorer: scorer}
}

// Rerank scores each result against the query and returns the top
// finalK by relevance. If the scorer fails, the input order is kept so
// a rerank outage never breaks answering.
func (r *Reranker) Rerank(ctx context.Context, query string, results []retriever.Result, finalK int) []retriever.Result {
	if finalK <= 0 || finalK > len(results) {
		finalK = len(results)
	}
	if len(results) == 0 {
		return results
	}

	passages := make([]string, len(results))
	for i, res := range results {
		passages[i] = res.Text
	}

	scores, err := r.scorer.Score(ctx, query, passages)
	if err != nil || len(scores) != len(results) {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "rerank failed, keeping vector order",
			"error", err,
			"results", len(results))
		return append([]retriever.Result(nil), results[:finalK]...)
	}

	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	reranked := make([]retriever.Result, 0, finalK)
	for _, idx := range order[:finalK] {
		reranked = append(reranked, results[idx])
	}
	return reranked
}

// MMR selects topK results balancing relevance against redundancy.
// lambda 1.0 is pure relevance, 0.0 pure diversity. Embeddings must be
// unit-normalized and parallel to results; when they are missing, the
// selection degrades to round-robin across documents, which still
// spreads results over sources without vector math.
func MMR(results []retriever.Result, embeddings [][]float32, lambda float64, topK int) []retriever.Result {
	if topK <= 0 || topK > len(results) {
		topK = len(results)
	}
	if len(results) == 0 {
		return results
	}
	if len(embeddings) != len(results) {
		return roundRobinByDocument(results, topK)
	}

	selected := make([]int, 0, topK)
	remaining := make([]int, len(results))
	for i := range remaining {
		remaining[i] = i
	}

	for len(selected) < topK {
		bestPos, bestScore := -1, 0.0
		for pos, idx := range remaining {
			relevance := float64(results[idx].Score)

			maxSim := 0.0
			for _, sel := range selected {
				if sim := float64(dot(embeddings[idx], embeddings[sel])); sim > maxSim {
					maxSim = sim
				}
			}

			score := lambda*relevance - (1-lambda)*maxSim
			if bestPos == -1 || score > bestScore {
				bestPos, bestScore = pos, score
			}
		}

		selected = append(selected, remaining[bestPos])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	out := make([]retriever.Result, 0, topK)
	for _, idx := range selected {
		out = append(out, results[idx])
	}
	return out
}

// roundRobinByDocument interleaves results across documents, taking the
// next-best chunk of each document in turn.
func roundRobinByDocument(results []retriever.Result, topK int) []retriever.Result {
	var docOrder []string
	byDoc := make(map[string][]retriever.Result)
	for _, res := range results {
		if _, ok := byDoc[res.DocumentID]; !ok {
			docOrder = append(docOrder, res.DocumentID)
		}
		byDoc[res.DocumentID] = append(byDoc[res.DocumentID], res)
	}

	out := make([]retriever.Result, 0, topK)
	for len(out) < topK {
		took := false
		for _, doc := range docOrder {
			queue := byDoc[doc]
			if len(queue) == 0 {
				continue
			}
			out = append(out, queue[0])
			byDoc[doc] = queue[1:]
			took = true
			if len(out) == topK {
				break
			}
		}
		if !took {
			break
		}
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
