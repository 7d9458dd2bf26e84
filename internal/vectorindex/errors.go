package vectorindex

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when Add or Search is called before Create or Load.
	ErrNotInitialized = errors.New("index not initialized: call Create or Load first")
	// ErrUnsupportedKind is returned when Create is called with an unknown scoring kind.
	ErrUnsupportedKind = errors.New("unsupported index kind")
	// ErrLengthMismatch is returned when Add receives mismatched vector and metadata slices.
	ErrLengthMismatch = errors.New("number of vectors must match metadata list length")
)

// DimensionError indicates a vector whose size does not match the index's
// fixed dimension.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
