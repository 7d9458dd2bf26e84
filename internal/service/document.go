package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"docqa/internal/chunker"
	"docqa/internal/contextutil"
	"docqa/internal/embedder"
	"docqa/internal/extract"
	"docqa/internal/storage"
	"docqa/internal/vectorindex"
)

const (
	metadataPreviewRunes = 120
	embedBatchSize       = 32
)

// Chunker splits extracted text into overlapping chunks.
type Chunker interface {
	Chunk(text, documentID string, attributes map[string]any) ([]chunker.Chunk, error)
}

// VectorIndex is the slice of the vector index the document service needs.
type VectorIndex interface {
	Create(dimension int, kind vectorindex.Kind) error
	Add(vectors [][]float32, metadata []vectorindex.Metadata) ([]int64, error)
	DeleteByDocument(documentID string) (int, error)
	Assignments() map[string]int64
	Save() error
	Stats() vectorindex.Stats
}

// DocumentService handles document ingestion and removal.
type DocumentService struct {
	docs      storage.DocumentStore
	chunks    storage.ChunkStore
	chunker   Chunker
	embedder  embedder.Embedder
	index     VectorIndex
	indexKind vectorindex.Kind

	uploadDir      string
	maxUploadBytes int64

	// invalidate is called whenever the document set changes, so cached
	// answers built on the old set are never served.
	invalidate func()
}

// NewDocumentService creates a document service.
func NewDocumentService(docs storage.DocumentStore, chunks storage.ChunkStore, ch Chunker, emb embedder.Embedder, index VectorIndex, indexKind vectorindex.Kind, uploadDir string, maxUploadBytes int64, invalidate func()) *DocumentService {
	if invalidate == nil {
		invalidate = func() {}
	}
	return &DocumentService{
		docs:           docs,
		chunks:         chunks,
		chunker:        ch,
		embedder:       emb,
		index:          index,
		indexKind:      indexKind,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
		invalidate:     invalidate,
	}
}

// Upload stores an uploaded file and ingests it: extract, chunk, embed,
// index, persist. The document record is created in processing state and
// moved to completed or failed.
func (s *DocumentService) Upload(ctx context.Context, filename string, size int64, r io.Reader) (*storage.DocumentRecord, error) {
	logger := contextutil.LoggerFromContext(ctx)

	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		return nil, &ValidationError{Field: "filename", Message: "cannot be empty"}
	}
	if s.maxUploadBytes > 0 && size > s.maxUploadBytes {
		return nil, &ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("exceeds maximum size of %d bytes", s.maxUploadBytes),
		}
	}

	ext, err := extract.ForFilename(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v (supported: %s)", ErrInvalidInput, err, strings.Join(extract.SupportedExtensions(), ", "))
	}

	doc := &storage.DocumentRecord{
		ID:         uuid.NewString(),
		Filename:   filename,
		FileType:   strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."),
		FileSize:   size,
		UploadDate: time.Now().UTC(),
		Status:     storage.StatusProcessing,
	}

	path, err := s.saveFile(doc, r)
	if err != nil {
		return nil, err
	}

	if err := s.docs.Insert(ctx, doc); err != nil {
		os.Remove(path)
		return nil, WrapError(err, "recording document")
	}

	if err := s.ingest(ctx, doc, ext, path); err != nil {
		logger.ErrorContext(ctx, "document ingestion failed",
			"document_id", doc.ID,
			"filename", doc.Filename,
			"error", err)
		if updateErr := s.docs.UpdateStatus(ctx, doc.ID, storage.StatusFailed, 0, err.Error()); updateErr != nil {
			logger.ErrorContext(ctx, "failed to mark document failed", "document_id", doc.ID, "error", updateErr)
		}
		doc.Status = storage.StatusFailed
		doc.ErrorMessage = err.Error()
		return doc, err
	}

	s.invalidate()
	logger.InfoContext(ctx, "document ingested",
		"document_id", doc.ID,
		"filename", doc.Filename,
		"chunks", doc.TotalChunks)
	return doc, nil
}

func (s *DocumentService) saveFile(doc *storage.DocumentRecord, r io.Reader) (string, error) {
	path := filepath.Join(s.uploadDir, doc.ID+filepath.Ext(doc.Filename))
	out, err := os.Create(path)
	if err != nil {
		return "", WrapError(err, "storing upload")
	}

	written, err := io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", WrapError(err, "storing upload")
	}
	if s.maxUploadBytes > 0 && written > s.maxUploadBytes {
		os.Remove(path)
		return "", &ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("exceeds maximum size of %d bytes", s.maxUploadBytes),
		}
	}
	doc.FileSize = written
	return path, nil
}

func (s *DocumentService) ingest(ctx context.Context, doc *storage.DocumentRecord, ext extract.Extractor, path string) error {
	extracted, err := ext.Extract(ctx, path)
	if err != nil {
		return WrapError(err, "extracting text")
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return fmt.Errorf("%w: document contains no extractable text", ErrInvalidInput)
	}

	pieces, err := s.chunker.Chunk(extracted.Text, doc.ID, map[string]any{"filename": doc.Filename})
	if err != nil {
		return WrapError(err, "chunking text")
	}
	if len(pieces) == 0 {
		return fmt.Errorf("%w: document produced no chunks", ErrInvalidInput)
	}

	records := make([]*storage.ChunkRecord, len(pieces))
	for i, piece := range pieces {
		records[i] = &storage.ChunkRecord{
			ID:          uuid.NewString(),
			DocID:       doc.ID,
			ChunkIndex:  piece.Index,
			Text:        piece.Text,
			StartOffset: piece.StartOffset,
			EndOffset:   piece.EndOffset,
			Page:        extract.PageForOffset(extracted.Pages, piece.StartOffset),
		}
	}

	if err := s.indexChunks(ctx, records); err != nil {
		return err
	}

	if err := s.chunks.InsertBatch(ctx, records); err != nil {
		return WrapError(err, "recording chunks")
	}
	if err := s.index.Save(); err != nil {
		return WrapError(err, "persisting index")
	}
	if err := s.docs.UpdateStatus(ctx, doc.ID, storage.StatusCompleted, len(records), ""); err != nil {
		return WrapError(err, "updating document status")
	}

	doc.Status = storage.StatusCompleted
	doc.TotalChunks = len(records)
	return nil
}

// indexChunks embeds the chunks in batches, adds them to the vector
// index, and fills in each record's VectorID.
func (s *DocumentService) indexChunks(ctx context.Context, records []*storage.ChunkRecord) error {
	for start := 0; start < len(records); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		texts := make([]string, len(batch))
		for i, rec := range batch {
			texts[i] = rec.Text
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: embedding chunks: %v", ErrExternalService, err)
		}

		metas := make([]vectorindex.Metadata, len(batch))
		for i, rec := range batch {
			metas[i] = vectorindex.Metadata{
				DocumentID:  rec.DocID,
				ChunkID:     rec.ID,
				Preview:     preview(rec.Text),
				StartOffset: rec.StartOffset,
				EndOffset:   rec.EndOffset,
			}
		}

		ids, err := s.index.Add(vectors, metas)
		if err != nil {
			return WrapError(err, "indexing chunks")
		}
		for i, id := range ids {
			batch[i].VectorID = id
		}
	}
	return nil
}

// Get returns one document.
func (s *DocumentService) Get(ctx context.Context, id string) (*storage.DocumentRecord, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, WrapError(err, "loading document")
	}
	return doc, nil
}

// List returns all documents, newest first.
func (s *DocumentService) List(ctx context.Context) ([]*storage.DocumentRecord, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return nil, WrapError(err, "listing documents")
	}
	return docs, nil
}

// Delete removes a document from the index, the database, and disk.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	logger := contextutil.LoggerFromContext(ctx)

	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	deleted, err := s.index.DeleteByDocument(id)
	if err != nil {
		return WrapError(err, "removing vectors")
	}
	if err := s.index.Save(); err != nil {
		return WrapError(err, "persisting index")
	}
	if deleted > 0 {
		// The delete rebuild reassigns IDs for every retained vector.
		if err := s.chunks.UpdateVectorIDs(ctx, s.index.Assignments()); err != nil {
			return WrapError(err, "resyncing chunk vector ids")
		}
	}

	// Chunks cascade with the document row.
	if err := s.docs.Delete(ctx, id); err != nil {
		return WrapError(err, "deleting document")
	}

	path := filepath.Join(s.uploadDir, id+filepath.Ext(doc.Filename))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.WarnContext(ctx, "failed to remove stored file", "path", path, "error", err)
	}

	s.invalidate()
	logger.InfoContext(ctx, "document deleted",
		"document_id", id,
		"vectors_removed", deleted)
	return nil
}

// RebuildIndex re-embeds every stored chunk into a fresh index and
// reassigns vector IDs. Used to repair drift between the database and
// the index files.
func (s *DocumentService) RebuildIndex(ctx context.Context) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	records, err := s.chunks.ListAll(ctx)
	if err != nil {
		return 0, WrapError(err, "listing chunks")
	}

	if err := s.index.Create(s.embedder.Dimension(), s.indexKind); err != nil {
		return 0, WrapError(err, "resetting index")
	}

	if err := s.indexChunks(ctx, records); err != nil {
		return 0, err
	}

	assignments := make(map[string]int64, len(records))
	for _, rec := range records {
		assignments[rec.ID] = rec.VectorID
	}
	if err := s.chunks.UpdateVectorIDs(ctx, assignments); err != nil {
		return 0, WrapError(err, "updating vector ids")
	}
	if err := s.index.Save(); err != nil {
		return 0, WrapError(err, "persisting index")
	}

	s.invalidate()
	logger.InfoContext(ctx, "index rebuilt", "chunks", len(records))
	return len(records), nil
}

// Stats reports index and corpus counts for the admin endpoint.
func (s *DocumentService) Stats(ctx context.Context) (Stats, error) {
	chunkCount, err := s.chunks.Count(ctx)
	if err != nil {
		return Stats{}, WrapError(err, "counting chunks")
	}
	docs, err := s.docs.List(ctx)
	if err != nil {
		return Stats{}, WrapError(err, "listing documents")
	}

	idx := s.index.Stats()
	return Stats{
		Documents:      len(docs),
		Chunks:         chunkCount,
		IndexedVectors: idx.Total,
		Dimension:      idx.Dimension,
		IndexKind:      string(idx.Kind),
	}, nil
}

// Stats summarizes the state of the corpus and index.
type Stats struct {
	Documents      int    `json:"documents"`
	Chunks         int64  `json:"chunks"`
	IndexedVectors int    `json:"indexed_vectors"`
	Dimension      int    `json:"dimension"`
	IndexKind      string `json:"index_kind"`
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= metadataPreviewRunes {
		return text
	}
	return string([]rune(text)[:metadataPreviewRunes])
}
