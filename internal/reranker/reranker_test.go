package reranker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docqa/internal/retriever"
)

type fakeScorer struct {
	scores []float64
	err    error
}

func (f *fakeScorer) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scores[:len(passages)], nil
}

func sampleResults() []retriever.Result {
	return []retriever.Result{
		{ChunkID: "c1", DocumentID: "doc-a", Text: "alpha", Score: 0.9},
		{ChunkID: "c2", DocumentID: "doc-a", Text: "bravo", Score: 0.8},
		{ChunkID: "c3", DocumentID: "doc-b", Text: "charlie", Score: 0.7},
	}
}

func TestRerankReorders(t *testing.T) {
	r := New(&fakeScorer{scores: []float64{0.1, 0.9, 0.5}})

	got := r.Rerank(context.Background(), "q", sampleResults(), 3)
	want := []string{"c2", "c3", "c1"}
	for i, id := range want {
		if got[i].ChunkID != id {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ChunkID, id)
		}
	}
}

func TestRerankTruncatesToFinalK(t *testing.T) {
	r := New(&fakeScorer{scores: []float64{0.1, 0.9, 0.5}})

	got := r.Rerank(context.Background(), "q", sampleResults(), 1)
	if len(got) != 1 || got[0].ChunkID != "c2" {
		t.Errorf("Rerank() = %+v, want single c2", got)
	}
}

func TestRerankFailsOpen(t *testing.T) {
	r := New(&fakeScorer{err: errors.New("model down")})

	got := r.Rerank(context.Background(), "q", sampleResults(), 2)
	if len(got) != 2 {
		t.Fatalf("Rerank() returned %d results, want 2", len(got))
	}
	// Original vector order preserved.
	if got[0].ChunkID != "c1" || got[1].ChunkID != "c2" {
		t.Errorf("Rerank() = %+v, want original order c1, c2", got)
	}
}

func TestRerankEmpty(t *testing.T) {
	r := New(&fakeScorer{})
	if got := r.Rerank(context.Background(), "q", nil, 3); len(got) != 0 {
		t.Errorf("Rerank() = %+v, want empty", got)
	}
}

func TestCrossEncoderScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rerank" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}

		// Longer passages score higher, returned out of order.
		var results []rerankResult
		for i := len(req.Documents) - 1; i >= 0; i-- {
			results = append(results, rerankResult{
				Index:          i,
				RelevanceScore: float64(len(req.Documents[i])),
			})
		}
		json.NewEncoder(w).Encode(rerankResponse{Results: results})
	}))
	defer server.Close()

	ce := NewCrossEncoder(server.URL, "test-reranker")
	scores, err := ce.Score(context.Background(), "q", []string{"aa", "bbbb", "c"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	want := []float64{2, 4, 1}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}
}

func TestCrossEncoderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ce := NewCrossEncoder(server.URL, "test-reranker")
	if _, err := ce.Score(context.Background(), "q", []string{"a"}); err == nil {
		t.Error("Score() error = nil, want failure")
	}
}

func TestMMRPureRelevance(t *testing.T) {
	results := sampleResults()
	embeddings := [][]float32{
		{1, 0},
		{1, 0}, // duplicate of the first
		{0, 1},
	}

	got := MMR(results, embeddings, 1.0, 3)
	want := []string{"c1", "c2", "c3"}
	for i, id := range want {
		if got[i].ChunkID != id {
			t.Errorf("lambda=1.0: got[%d] = %s, want %s", i, got[i].ChunkID, id)
		}
	}
}

func TestMMRPenalizesRedundancy(t *testing.T) {
	results := sampleResults()
	embeddings := [][]float32{
		{1, 0},
		{1, 0}, // near-identical to c1, should be demoted
		{0, 1},
	}

	got := MMR(results, embeddings, 0.5, 2)
	if got[0].ChunkID != "c1" {
		t.Errorf("got[0] = %s, want c1", got[0].ChunkID)
	}
	if got[1].ChunkID != "c3" {
		t.Errorf("got[1] = %s, want diverse c3", got[1].ChunkID)
	}
}

func TestMMRRoundRobinFallback(t *testing.T) {
	results := []retriever.Result{
		{ChunkID: "a1", DocumentID: "doc-a", Score: 0.9},
		{ChunkID: "a2", DocumentID: "doc-a", Score: 0.8},
		{ChunkID: "b1", DocumentID: "doc-b", Score: 0.7},
		{ChunkID: "b2", DocumentID: "doc-b", Score: 0.6},
	}

	got := MMR(results, nil, 0.5, 3)
	want := []string{"a1", "b1", "a2"}
	for i, id := range want {
		if got[i].ChunkID != id {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ChunkID, id)
		}
	}
}

func TestMMRTopKBounds(t *testing.T) {
	results := sampleResults()
	if got := MMR(results, nil, 0.5, 10); len(got) != 3 {
		t.Errorf("MMR() with oversized topK returned %d, want 3", len(got))
	}
	if got := MMR(nil, nil, 0.5, 3); len(got) != 0 {
		t.Errorf("MMR() on empty input returned %d results", len(got))
	}
}

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors[text], nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i], _ = s.Embed(ctx, text)
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return 2 }

func TestDiversifierUsesEmbeddings(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"alpha":   {1, 0},
		"bravo":   {1, 0},
		"charlie": {0, 1},
	}}
	d := NewDiversifier(emb, 0.5)

	got := d.Rerank(context.Background(), "q", sampleResults(), 2)
	if got[0].ChunkID != "c1" || got[1].ChunkID != "c3" {
		t.Errorf("Rerank() = %s, %s, want c1, c3", got[0].ChunkID, got[1].ChunkID)
	}
}

func TestDiversifierFallsBackOnEmbedError(t *testing.T) {
	d := NewDiversifier(&stubEmbedder{err: errors.New("backend down")}, 0.5)

	got := d.Rerank(context.Background(), "q", sampleResults(), 3)
	// Round-robin across doc-a and doc-b.
	want := []string{"c1", "c3", "c2"}
	for i, id := range want {
		if got[i].ChunkID != id {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ChunkID, id)
		}
	}
}

func TestRoundRobinExhaustsQueues(t *testing.T) {
	results := []retriever.Result{
		{ChunkID: "a1", DocumentID: "doc-a"},
		{ChunkID: "a2", DocumentID: "doc-a"},
		{ChunkID: "a3", DocumentID: "doc-a"},
	}
	got := roundRobinByDocument(results, 5)
	if len(got) != 3 {
		t.Fatalf("roundRobinByDocument() = %d results, want 3", len(got))
	}
	joined := got[0].ChunkID + got[1].ChunkID + got[2].ChunkID
	if !strings.HasPrefix(joined, "a1a2a3") {
		t.Errorf("single-document order wrong: %s", joined)
	}
}
