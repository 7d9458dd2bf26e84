package storage

import "time"

// DocumentRecord represents an uploaded document in the database.
type DocumentRecord struct {
	ID           string // UUID
	Filename     string
	FileType     string // extension without the dot: "pdf", "txt", ...
	FileSize     int64
	UploadDate   time.Time
	Status       string // processing, completed, failed
	TotalChunks  int
	ErrorMessage string
}

// Document status values.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ChunkRecord represents one chunk of a document's extracted text.
// VectorID references the row's embedding in the vector index; it is
// reassigned whenever the index is rebuilt.
type ChunkRecord struct {
	ID          string // UUID
	DocID       string // foreign key to documents.id
	ChunkIndex  int    // 0-based position within the document
	Text        string
	StartOffset int
	EndOffset   int
	VectorID    int64
	Page        int // 1-based page number for paged formats, 0 when absent
	CreatedAt   time.Time
}

// QueryRecord represents a processed question and its answer.
type QueryRecord struct {
	ID         int64
	QueryText  string
	Response   string
	CreatedAt  time.Time
	DurationMs int64
	TopK       int
	Retrieved  string // JSON array of {chunk_id, score}
}
