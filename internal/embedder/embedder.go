// Package embedder maps text to fixed-dimension vectors via an
// OpenAI-compatible embeddings API, with a content-addressed disk cache.
//
// Every vector is L2-normalized before it is cached or returned. There is no
// normalization flag: a single policy for the whole pipeline means a cache
// entry is valid regardless of which caller produced it.
package embedder

import (
	"context"
	"errors"
	"math"
)

// ErrModelUnavailable is returned when the embedding backend cannot be
// reached. Embedding is load-bearing for ingestion and retrieval alike, so
// callers should treat this as fatal at startup.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Embedder turns text into fixed-dimension normalized vectors.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the fixed vector size for this model.
	Dimension() int
}

// normalize scales v to unit L2 norm in place and returns it.
// A zero vector is returned unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
