package chunker

// Chunk represents a contiguous span of a document's extracted text.
// Offsets are rune positions into the original text; because consecutive
// chunks overlap, StartOffset of one chunk may fall inside the previous one.
type Chunk struct {
	Text        string
	DocumentID  string
	Index       int // 0-based position within the document
	StartOffset int // inclusive
	EndOffset   int // exclusive
	Attributes  map[string]any
}
