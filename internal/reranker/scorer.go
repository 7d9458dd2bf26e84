package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Scorer assigns a relevance score to each passage for a query.
type Scorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// CrossEncoder scores query/passage pairs via an HTTP rerank endpoint
// compatible with the common /v1/rerank shape.
type CrossEncoder struct {
	BaseURL string
	Model   string
	client  *http.Client
}

// NewCrossEncoder creates a cross-encoder client.
func NewCrossEncoder(baseURL, model string) *CrossEncoder {
	return &CrossEncoder{
		BaseURL: baseURL,
		Model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

var _ Scorer = (*CrossEncoder)(nil)

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Score returns one relevance score per passage, in input order.
func (c *CrossEncoder) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     c.Model,
		Query:     query,
		Documents: passages,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling rerank endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rerank endpoint returned %d: %s", resp.StatusCode, data)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(passages) {
			return nil, fmt.Errorf("rerank result index %d out of range", res.Index)
		}
		scores[res.Index] = res.RelevanceScore
		seen[res.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response missing score for passage %d", i)
		}
	}
	return scores, nil
}
