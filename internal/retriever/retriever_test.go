package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"docqa/internal/storage"
	"docqa/internal/vectorindex"
)

type fakeEmbedder struct {
	dim int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	vec := make([]float32, f.dim)
	vec[0] = 1
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = f.Embed(nil, texts[i])
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

type fakeIndex struct {
	candidates []vectorindex.Candidate
	gotK       int
}

func (f *fakeIndex) Search(_ []float32, k int) ([]vectorindex.Candidate, error) {
	f.gotK = k
	if len(f.candidates) < k {
		return f.candidates, nil
	}
	return f.candidates[:k], nil
}

type fakeChunks struct {
	byVectorID map[int64]*storage.ChunkRecord
}

func (f *fakeChunks) GetByVectorID(_ context.Context, vectorID int64) (*storage.ChunkRecord, error) {
	c, ok := f.byVectorID[vectorID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return c, nil
}

type fakeDocs struct {
	byID map[string]*storage.DocumentRecord
}

func (f *fakeDocs) GetByID(_ context.Context, id string) (*storage.DocumentRecord, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

// newFixture builds a retriever over n candidates with descending scores
// starting at top, all belonging to the given document unless overridden.
func newFixture(scores map[int64]float32, docOf map[int64]string) (*SemanticRetriever, *fakeIndex) {
	var candidates []vectorindex.Candidate
	chunks := map[int64]*storage.ChunkRecord{}
	docs := map[string]*storage.DocumentRecord{}

	for id, score := range scores {
		docID := docOf[id]
		candidates = append(candidates, vectorindex.Candidate{
			ID:    id,
			Score: score,
			Meta:  vectorindex.Metadata{DocumentID: docID},
		})
		chunks[id] = &storage.ChunkRecord{
			ID:         fmt.Sprintf("chunk-%d", id),
			DocID:      docID,
			ChunkIndex: int(id),
			Text:       fmt.Sprintf("text for vector %d", id),
		}
		docs[docID] = &storage.DocumentRecord{ID: docID, Filename: docID + ".txt"}
	}

	// Descending score order, as the index returns them.
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].Score > candidates[i].Score {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}

	idx := &fakeIndex{candidates: candidates}
	r := New(&fakeEmbedder{dim: 4}, idx, &fakeChunks{byVectorID: chunks}, &fakeDocs{byID: docs}, 5, 0)
	return r, idx
}

func TestSearchEmptyQuery(t *testing.T) {
	r, _ := newFixture(nil, nil)
	if _, err := r.Search(context.Background(), "   ", Options{}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Search() error = %v, want ErrEmptyQuery", err)
	}
}

func TestSearchOverfetchesIndex(t *testing.T) {
	r, idx := newFixture(map[int64]float32{0: 0.9}, map[int64]string{0: "doc-a"})
	if _, err := r.Search(context.Background(), "question", Options{TopK: 3}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if idx.gotK != 6 {
		t.Errorf("index searched with k = %d, want 6", idx.gotK)
	}
}

func TestSearchAppliesThreshold(t *testing.T) {
	r, _ := newFixture(
		map[int64]float32{0: 0.9, 1: 0.6, 2: 0.2},
		map[int64]string{0: "doc-a", 1: "doc-a", 2: "doc-a"},
	)

	results, err := r.Search(context.Background(), "question", Options{TopK: 5, MinScore: 0.5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	for _, res := range results {
		if res.Score < 0.5 {
			t.Errorf("result %s has score %v below threshold", res.ChunkID, res.Score)
		}
	}
}

func TestSearchSkipsOrphanedVectors(t *testing.T) {
	r, _ := newFixture(
		map[int64]float32{0: 0.9, 1: 0.8, 2: 0.7},
		map[int64]string{0: "doc-a", 1: "doc-a", 2: "doc-a"},
	)
	// Remove the chunk row behind the best hit.
	delete(r.chunks.(*fakeChunks).byVectorID, 0)

	results, err := r.Search(context.Background(), "question", Options{TopK: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	for _, res := range results {
		if res.VectorID == 0 {
			t.Error("orphaned vector made it into results")
		}
	}
}

func TestSearchDocumentFilter(t *testing.T) {
	r, _ := newFixture(
		map[int64]float32{0: 0.9, 1: 0.8, 2: 0.7},
		map[int64]string{0: "doc-a", 1: "doc-b", 2: "doc-a"},
	)

	results, err := r.Search(context.Background(), "question", Options{TopK: 5, DocumentID: "doc-b"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].DocumentID != "doc-b" {
		t.Errorf("Search() = %+v, want single doc-b result", results)
	}
}

func TestSearchStopsAtTopK(t *testing.T) {
	r, _ := newFixture(
		map[int64]float32{0: 0.9, 1: 0.8, 2: 0.7, 3: 0.6},
		map[int64]string{0: "doc-a", 1: "doc-a", 2: "doc-a", 3: "doc-a"},
	)

	results, err := r.Search(context.Background(), "question", Options{TopK: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].Score < results[1].Score {
		t.Error("results not in descending score order")
	}
	if results[0].Filename != "doc-a.txt" {
		t.Errorf("Filename = %q, want doc-a.txt", results[0].Filename)
	}
}

func TestDeduplicate(t *testing.T) {
	results := []Result{
		{ChunkID: "c1", DocumentID: "doc-a", Score: 0.9},
		{ChunkID: "c2", DocumentID: "doc-a", Score: 0.8},
		{ChunkID: "c3", DocumentID: "doc-b", Score: 0.7},
		{ChunkID: "c4", DocumentID: "doc-a", Score: 0.6},
		{ChunkID: "c5", DocumentID: "doc-b", Score: 0.5},
	}

	kept := Deduplicate(results, 2)
	want := []string{"c1", "c2", "c3", "c5"}
	if len(kept) != len(want) {
		t.Fatalf("Deduplicate() kept %d results, want %d", len(kept), len(want))
	}
	for i, id := range want {
		if kept[i].ChunkID != id {
			t.Errorf("kept[%d] = %s, want %s", i, kept[i].ChunkID, id)
		}
	}

	if got := Deduplicate(results, 0); len(got) != len(results) {
		t.Errorf("Deduplicate() with cap 0 dropped results")
	}
}

func TestBuildContextWindow(t *testing.T) {
	results := []Result{
		{Filename: "a.txt", Text: "alpha"},
		{Filename: "b.txt", Text: "bravo"},
		{Filename: "c.txt", Text: "charlie"},
	}

	window := BuildContextWindow(results, 0)
	for i, want := range []string{"[Source 1: a.txt]\nalpha", "[Source 2: b.txt]\nbravo", "[Source 3: c.txt]\ncharlie"} {
		if !strings.Contains(window, want) {
			t.Errorf("window missing block %d: %q", i+1, want)
		}
	}

	if BuildContextWindow(nil, 100) != "" {
		t.Error("empty results should produce an empty window")
	}
}

func TestBuildContextWindowRespectsBudget(t *testing.T) {
	results := []Result{
		{Filename: "a.txt", Text: strings.Repeat("x", 50)},
		{Filename: "b.txt", Text: strings.Repeat("y", 50)},
	}

	// Budget only fits the first block.
	window := BuildContextWindow(results, 80)
	if !strings.Contains(window, "Source 1") {
		t.Error("first block missing")
	}
	if strings.Contains(window, "Source 2") {
		t.Error("second block should not fit in budget")
	}

	// First block always included even when over budget.
	window = BuildContextWindow(results, 10)
	if !strings.Contains(window, "Source 1") {
		t.Error("first block must always be included")
	}
}
