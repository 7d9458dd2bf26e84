package chunker

import "fmt"

// FixedSizeChunker splits text into equal-size chunks with overlap, ignoring
// natural boundaries. It is the cheap alternative to RecursiveChunker for
// content where boundary quality does not matter.
type FixedSizeChunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewFixedSizeChunker creates a fixed-size chunker with the same parameter
// constraints as NewRecursiveChunker.
func NewFixedSizeChunker(chunkSize, chunkOverlap int) (*FixedSizeChunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &FixedSizeChunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Chunk splits text into fixed-size chunks with rune offsets.
func (c *FixedSizeChunker) Chunk(text, documentID string, attributes map[string]any) ([]Chunk, error) {
	if documentID == "" {
		return nil, ErrEmptyDocumentID
	}
	if text == "" {
		return []Chunk{}, nil
	}

	runes := []rune(text)
	var chunks []Chunk
	start := 0
	index := 0

	for start < len(runes) {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, Chunk{
			Text:        string(runes[start:end]),
			DocumentID:  documentID,
			Index:       index,
			StartOffset: start,
			EndOffset:   end,
			Attributes:  cloneAttributes(attributes, index),
		})
		index++

		if end == len(runes) {
			break
		}
		start = end - c.chunkOverlap
	}

	return chunks, nil
}
