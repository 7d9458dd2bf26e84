package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"docqa/internal/contextutil"
)

// Client generates embeddings through an OpenAI-compatible /v1/embeddings
// endpoint (llama.cpp, text-embeddings-inference, and friends speak it).
type Client struct {
	BaseURL   string
	APIKey    string
	Model     string
	dimension int
	cache     *diskCache
	client    *http.Client
}

var _ Embedder = (*Client)(nil)

// NewClient creates an embeddings client with a disk cache rooted at
// cacheDir. dimension is the expected vector size; every response is
// validated against it.
func NewClient(baseURL, apiKey, model string, dimension int, cacheDir string) (*Client, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	cache, err := newDiskCache(cacheDir)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Model:     model,
		dimension: dimension,
		cache:     cache,
		client:    http.DefaultClient,
	}, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingData struct {
	Embedding []float64 `json:"embedding"`
}

type embeddingsResponse struct {
	Data []embeddingData `json:"data"`
}

// Dimension returns the fixed vector size for this model.
func (c *Client) Dimension() int {
	return c.dimension
}

// Embed returns the normalized vector for a single text, consulting the disk
// cache first.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text, c.dimension); ok {
		return vec, nil
	}

	vecs, err := c.requestEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if err := c.cache.Put(text, vecs[0]); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to cache embedding", "error", err)
	}
	return vecs[0], nil
}

// EmbedBatch returns one normalized vector per input, in input order. Cached
// texts are served from disk; the misses go to the backend in a single
// request and the results are stitched back into their original positions.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	result := make([][]float32, len(texts))
	var missTexts []string
	var missIndices []int

	for i, text := range texts {
		if vec, ok := c.cache.Get(text, c.dimension); ok {
			result[i] = vec
		} else {
			missTexts = append(missTexts, text)
			missIndices = append(missIndices, i)
		}
	}

	if len(missTexts) > 0 {
		logger.DebugContext(ctx, "embedding batch", "total", len(texts), "cached", len(texts)-len(missTexts), "misses", len(missTexts))

		vecs, err := c.requestEmbeddings(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			result[missIndices[j]] = vec
			if err := c.cache.Put(missTexts[j], vec); err != nil {
				logger.WarnContext(ctx, "failed to cache embedding", "error", err)
			}
		}
	}

	return result, nil
}

// Ping verifies the embedding backend is reachable and produces vectors of
// the configured dimension. It bypasses the cache on purpose.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.requestEmbeddings(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return nil
}

// ClearCache drops every cached embedding, forcing re-computation.
func (c *Client) ClearCache() error {
	return c.cache.Clear()
}

// requestEmbeddings calls the backend and returns normalized float32 vectors.
func (c *Client) requestEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	url := fmt.Sprintf("%s/v1/embeddings", c.BaseURL)

	body, err := json.Marshal(embeddingsRequest{Model: c.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	result := make([][]float32, len(parsed.Data))
	for i, data := range parsed.Data {
		if len(data.Embedding) != c.dimension {
			return nil, fmt.Errorf("embedding %d has size %d, expected %d", i, len(data.Embedding), c.dimension)
		}
		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		result[i] = normalize(vec)
	}

	return result, nil
}
