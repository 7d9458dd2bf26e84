package embedder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// diskCache is a content-addressed embedding cache: one file per entry, named
// by the SHA-256 of the raw input text. The key depends on nothing else, so
// an entry written during ingestion is reusable for an identical query text.
type diskCache struct {
	dir string
}

func newDiskCache(dir string) (*diskCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create embedding cache dir: %w", err)
	}
	return &diskCache{dir: dir}, nil
}

// cacheKey returns the SHA-256 hex digest of text.
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached vector for text, or ok=false on miss. Unreadable or
// corrupt entries count as misses.
func (c *diskCache) Get(text string, dimension int) ([]float32, bool) {
	raw, err := os.ReadFile(c.path(text))
	if err != nil {
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	if len(vec) != dimension {
		// Stale entry from a different model; ignore it.
		return nil, false
	}
	return vec, true
}

// Put stores the vector for text. Failures are returned so the caller can log
// them, but a failed write never fails the embedding call itself.
func (c *diskCache) Put(text string, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	if err := os.WriteFile(c.path(text), raw, 0644); err != nil {
		return fmt.Errorf("failed to write embedding cache entry: %w", err)
	}
	return nil
}

// Clear removes every cache entry.
func (c *diskCache) Clear() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("failed to clear embedding cache: %w", err)
	}
	return os.MkdirAll(c.dir, 0755)
}

func (c *diskCache) path(text string) string {
	return filepath.Join(c.dir, cacheKey(text)+".json")
}
