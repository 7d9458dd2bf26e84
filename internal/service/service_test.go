package service

import (
	"context"
	"sort"
	"sync"

	"docqa/internal/storage"
	"docqa/internal/vectorindex"
)

// In-memory fakes shared by the document and QA service tests.

type memDocs struct {
	mu   sync.Mutex
	byID map[string]*storage.DocumentRecord
}

func newMemDocs() *memDocs {
	return &memDocs{byID: make(map[string]*storage.DocumentRecord)}
}

func (m *memDocs) Insert(_ context.Context, doc *storage.DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *doc
	m.byID[doc.ID] = &clone
	return nil
}

func (m *memDocs) GetByID(_ context.Context, id string) (*storage.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (m *memDocs) List(_ context.Context) ([]*storage.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*storage.DocumentRecord
	for _, doc := range m.byID {
		clone := *doc
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memDocs) UpdateStatus(_ context.Context, id, status string, totalChunks int, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	doc.Status = status
	doc.TotalChunks = totalChunks
	doc.ErrorMessage = errorMessage
	return nil
}

func (m *memDocs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memChunks struct {
	mu      sync.Mutex
	records []*storage.ChunkRecord
}

func (m *memChunks) InsertBatch(_ context.Context, chunks []*storage.ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		clone := *c
		m.records = append(m.records, &clone)
	}
	return nil
}

func (m *memChunks) GetByVectorID(_ context.Context, vectorID int64) (*storage.ChunkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.records {
		if c.VectorID == vectorID {
			clone := *c
			return &clone, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memChunks) ListByDocument(_ context.Context, docID string) ([]*storage.ChunkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*storage.ChunkRecord
	for _, c := range m.records {
		if c.DocID == docID {
			clone := *c
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memChunks) ListAll(_ context.Context) ([]*storage.ChunkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*storage.ChunkRecord, len(m.records))
	for i, c := range m.records {
		clone := *c
		out[i] = &clone
	}
	return out, nil
}

func (m *memChunks) UpdateVectorIDs(_ context.Context, assignments map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.records {
		if id, ok := assignments[c.ID]; ok {
			c.VectorID = id
		}
	}
	return nil
}

func (m *memChunks) DeleteByDocument(_ context.Context, docID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*storage.ChunkRecord
	var deleted int64
	for _, c := range m.records {
		if c.DocID == docID {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	m.records = kept
	return deleted, nil
}

func (m *memChunks) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

type memQueries struct {
	mu      sync.Mutex
	records []*storage.QueryRecord
}

func (m *memQueries) Insert(_ context.Context, q *storage.QueryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.ID = int64(len(m.records) + 1)
	clone := *q
	m.records = append(m.records, &clone)
	return nil
}

func (m *memQueries) ListRecent(_ context.Context, limit int) ([]*storage.QueryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*storage.QueryRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		clone := *m.records[i]
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memQueries) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

// fakeVectorIndex records adds and deletes without doing vector math.
type fakeVectorIndex struct {
	mu        sync.Mutex
	dimension int
	kind      vectorindex.Kind
	metas     map[int64]vectorindex.Metadata
	nextID    int64
	saves     int
	creates   int
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{metas: make(map[int64]vectorindex.Metadata)}
}

func (f *fakeVectorIndex) Create(dimension int, kind vectorindex.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dimension = dimension
	f.kind = kind
	f.metas = make(map[int64]vectorindex.Metadata)
	f.nextID = 0
	f.creates++
	return nil
}

func (f *fakeVectorIndex) Add(vectors [][]float32, metadata []vectorindex.Metadata) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, len(vectors))
	for i := range vectors {
		ids[i] = f.nextID
		f.metas[f.nextID] = metadata[i]
		f.nextID++
	}
	return ids, nil
}

func (f *fakeVectorIndex) DeleteByDocument(documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]int64, 0, len(f.metas))
	for id := range f.metas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// Mirror the real index: a delete rebuilds and renumbers from zero.
	kept := make(map[int64]vectorindex.Metadata)
	var next int64
	var deleted int
	for _, id := range ids {
		meta := f.metas[id]
		if meta.DocumentID == documentID {
			deleted++
			continue
		}
		kept[next] = meta
		next++
	}
	f.metas = kept
	f.nextID = next
	return deleted, nil
}

func (f *fakeVectorIndex) Assignments() map[string]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64, len(f.metas))
	for id, meta := range f.metas {
		out[meta.ChunkID] = id
	}
	return out
}

func (f *fakeVectorIndex) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return nil
}

func (f *fakeVectorIndex) Stats() vectorindex.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return vectorindex.Stats{Total: len(f.metas), Dimension: f.dimension, Kind: f.kind}
}

// stubEmbedder returns fixed-dimension vectors without a backend.
type stubEmbedder struct {
	dim   int
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	s.calls++
	vec := make([]float32, s.dim)
	vec[0] = 1
	return vec, nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = s.Embed(context.Background(), texts[i])
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return s.dim }
