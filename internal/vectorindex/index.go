// Package vectorindex provides a flat, in-process nearest-neighbor index
// with out-of-band metadata and file persistence.
//
// The index is append-only: vector IDs are assigned from a high-water mark
// that only resets on Create or a delete-triggered rebuild. There is no point
// deletion; DeleteByDocument reconstructs the index from the retained vectors
// and is O(n) in total stored vectors.
package vectorindex

import (
	"fmt"
	"sort"
	"sync"
)

// Kind selects the scoring mode fixed at index creation.
type Kind string

const (
	// KindInnerProduct scores by raw dot product; with unit-normalized
	// vectors this is cosine similarity, higher is better.
	KindInnerProduct Kind = "ip"
	// KindL2 scores by squared Euclidean distance, mapped to the bounded
	// similarity 1/(1+d) so thresholds compare uniformly across kinds.
	KindL2 Kind = "l2"
)

// Metadata is the out-of-band record stored per vector. The relational store
// owns the chunk row; the index only carries enough to join back to it.
type Metadata struct {
	DocumentID  string `json:"document_id"`
	ChunkID     string `json:"chunk_id"`
	Preview     string `json:"preview"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// Candidate is one search result, best-first.
type Candidate struct {
	ID       int64
	Score    float32
	Distance float32
	Meta     Metadata
}

// Stats describes the current index state.
type Stats struct {
	Total     int
	Dimension int
	Kind      Kind
}

// Flat is a flat (exhaustive-scan) vector index.
//
// Add, DeleteByDocument, Save, and Load take the write lock; Search and
// Stats take the read lock. Searches may run concurrently with each other
// but never interleave with a mutation.
type Flat struct {
	mu      sync.RWMutex
	dir     string
	created bool

	dimension int
	kind      Kind
	vectors   [][]float32
	meta      map[int64]Metadata
	nextID    int64
}

// NewFlat returns an uninitialized index that persists under dir.
// Create or Load must be called before Add or Search.
func NewFlat(dir string) *Flat {
	return &Flat{dir: dir}
}

// Create initializes an empty index with the given dimension and kind,
// discarding any in-memory state. On-disk state is untouched until Save.
func (f *Flat) Create(dimension int, kind Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createLocked(dimension, kind)
}

func (f *Flat) createLocked(dimension int, kind Kind) error {
	if dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if kind != KindInnerProduct && kind != KindL2 {
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}

	f.dimension = dimension
	f.kind = kind
	f.vectors = nil
	f.meta = make(map[int64]Metadata)
	f.nextID = 0
	f.created = true
	return nil
}

// Add appends vectors with their metadata and returns the assigned IDs,
// contiguous and ascending from the current high-water mark. Input vectors
// are copied; the caller keeps ownership of its slices.
func (f *Flat) Add(vectors [][]float32, metadata []Metadata) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.created {
		return nil, ErrNotInitialized
	}
	if len(vectors) != len(metadata) {
		return nil, fmt.Errorf("%w: %d vectors, %d metadata", ErrLengthMismatch, len(vectors), len(metadata))
	}

	for _, vec := range vectors {
		if len(vec) != f.dimension {
			return nil, &DimensionError{Expected: f.dimension, Actual: len(vec)}
		}
	}

	ids := make([]int64, len(vectors))
	for i, vec := range vectors {
		stored := make([]float32, len(vec))
		copy(stored, vec)

		id := f.nextID
		f.vectors = append(f.vectors, stored)
		f.meta[id] = metadata[i]
		ids[i] = id
		f.nextID++
	}

	return ids, nil
}

// Search returns up to min(k, total) candidates ordered best-first. An empty
// index yields an empty result, not an error.
func (f *Flat) Search(query []float32, k int) ([]Candidate, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.created {
		return nil, ErrNotInitialized
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}
	if len(query) != f.dimension {
		return nil, &DimensionError{Expected: f.dimension, Actual: len(query)}
	}
	if len(f.vectors) == 0 {
		return []Candidate{}, nil
	}

	candidates := make([]Candidate, 0, len(f.vectors))
	for i, vec := range f.vectors {
		id := int64(i)
		var score, distance float32

		switch f.kind {
		case KindInnerProduct:
			d := dot(query, vec)
			score, distance = d, d
		case KindL2:
			d := squaredL2(query, vec)
			score, distance = 1.0/(1.0+d), d
		}

		candidates = append(candidates, Candidate{
			ID:       id,
			Score:    score,
			Distance: distance,
			Meta:     f.meta[id],
		})
	}

	// Best-first; ties resolve to the older vector for determinism.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})

	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// DeleteByDocument removes every vector whose metadata references documentID
// and returns the number removed.
//
// The flat index has no native point deletion, so this rebuilds the whole
// index from the retained vectors: O(n) in total stored vectors, with IDs
// reassigned from zero. Callers deleting many documents should batch their
// deletions rather than looping over this.
func (f *Flat) DeleteByDocument(documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.created {
		return 0, ErrNotInitialized
	}

	var keptVectors [][]float32
	var keptMeta []Metadata
	for i, vec := range f.vectors {
		m := f.meta[int64(i)]
		if m.DocumentID == documentID {
			continue
		}
		keptVectors = append(keptVectors, vec)
		keptMeta = append(keptMeta, m)
	}

	deleted := len(f.vectors) - len(keptVectors)
	if deleted == 0 {
		return 0, nil
	}

	dimension, kind := f.dimension, f.kind
	if err := f.createLocked(dimension, kind); err != nil {
		return 0, err
	}
	for i, vec := range keptVectors {
		id := f.nextID
		f.vectors = append(f.vectors, vec)
		f.meta[id] = keptMeta[i]
		f.nextID++
	}

	return deleted, nil
}

// Assignments reports the current chunk-to-vector-ID mapping from the stored
// metadata. A delete rebuild reassigns every retained ID, so callers use this
// to resync their own records afterwards.
func (f *Flat) Assignments() map[string]int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]int64, len(f.meta))
	for id, m := range f.meta {
		out[m.ChunkID] = id
	}
	return out
}

// Stats returns the current totals. An uninitialized index reports zero.
func (f *Flat) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return Stats{
		Total:     len(f.vectors),
		Dimension: f.dimension,
		Kind:      f.kind,
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
