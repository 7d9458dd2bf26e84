package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrEmptyDocumentID is returned when a chunking call omits the document ID.
var ErrEmptyDocumentID = errors.New("document id is required")

// defaultSeparators are tried in priority order: paragraph break, line break,
// sentence boundary, word boundary, and finally a character-level split that
// always terminates.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// RecursiveChunker splits text into overlapping chunks, preferring natural
// boundaries over hard cuts. Sizes and offsets are measured in runes.
type RecursiveChunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewRecursiveChunker creates a recursive chunker. chunkSize must be positive
// and chunkOverlap must be smaller than chunkSize; an overlap that does not
// leave room for new content would make chunking loop without progress, so it
// is rejected here rather than clamped.
func NewRecursiveChunker(chunkSize, chunkOverlap int) (*RecursiveChunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &RecursiveChunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}, nil
}

// Chunk splits text into overlapping chunks with rune offsets into the
// original text. Empty text yields an empty slice, not an error. The given
// attributes are copied onto every chunk.
func (c *RecursiveChunker) Chunk(text, documentID string, attributes map[string]any) ([]Chunk, error) {
	if documentID == "" {
		return nil, ErrEmptyDocumentID
	}
	if text == "" {
		return []Chunk{}, nil
	}

	splits := splitRecursive(text, c.separators, c.chunkSize)

	var chunks []Chunk
	var current []string
	currentLen := 0 // runes accumulated in current
	startOffset := 0
	index := 0

	closeChunk := func() (chunkText string, endOffset int) {
		chunkText = strings.Join(current, "")
		endOffset = startOffset + utf8.RuneCountInString(chunkText)
		chunks = append(chunks, Chunk{
			Text:        chunkText,
			DocumentID:  documentID,
			Index:       index,
			StartOffset: startOffset,
			EndOffset:   endOffset,
			Attributes:  cloneAttributes(attributes, index),
		})
		index++
		return chunkText, endOffset
	}

	for _, piece := range splits {
		pieceLen := utf8.RuneCountInString(piece)

		if currentLen+pieceLen > c.chunkSize && len(current) > 0 {
			chunkText, endOffset := closeChunk()

			// Seed the next chunk with the trailing overlap of the one just
			// closed; the offset cursor moves back by the same amount so
			// offsets keep tracking the original text.
			overlapText := tailRunes(chunkText, c.chunkOverlap)
			current = []string{overlapText, piece}
			currentLen = utf8.RuneCountInString(overlapText) + pieceLen
			startOffset = endOffset - utf8.RuneCountInString(overlapText)
		} else {
			current = append(current, piece)
			currentLen += pieceLen
		}
	}

	if len(current) > 0 {
		closeChunk()
	}

	return chunks, nil
}

// splitRecursive splits text using the first separator that produces more
// than one piece; pieces still exceeding maxSize are re-split with the
// remaining lower-priority separators. The empty separator is the base case
// and splits into individual runes.
func splitRecursive(text string, separators []string, maxSize int) []string {
	if len(separators) == 0 {
		return []string{text}
	}

	separator := separators[0]
	remaining := separators[1:]

	if separator == "" {
		runes := []rune(text)
		out := make([]string, len(runes))
		for i, r := range runes {
			out[i] = string(r)
		}
		return out
	}

	parts := strings.Split(text, separator)
	if len(parts) == 1 {
		return splitRecursive(text, remaining, maxSize)
	}

	var out []string
	for i, part := range parts {
		// Re-attach the separator so that joining the pieces reproduces the
		// original text exactly; this is what keeps offset tracking honest.
		if i < len(parts)-1 {
			part += separator
		}
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) > maxSize {
			out = append(out, splitRecursive(part, remaining, maxSize)...)
		} else {
			out = append(out, part)
		}
	}
	return out
}

// tailRunes returns the last n runes of s, or all of s when shorter.
func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func cloneAttributes(attributes map[string]any, index int) map[string]any {
	out := make(map[string]any, len(attributes)+1)
	for k, v := range attributes {
		out[k] = v
	}
	out["chunk_index"] = index
	return out
}
