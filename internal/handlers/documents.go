package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"docqa/internal/contextutil"
	"docqa/internal/storage"
)

// Documents manages the document corpus; implemented by
// service.DocumentService.
type Documents interface {
	Upload(ctx context.Context, filename string, size int64, r io.Reader) (*storage.DocumentRecord, error)
	Get(ctx context.Context, id string) (*storage.DocumentRecord, error)
	List(ctx context.Context) ([]*storage.DocumentRecord, error)
	Delete(ctx context.Context, id string) error
}

// DocumentHandler handles document upload, listing, and deletion.
type DocumentHandler struct {
	docs         Documents
	maxBodyBytes int64
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(docs Documents, maxBodyBytes int64) *DocumentHandler {
	return &DocumentHandler{docs: docs, maxBodyBytes: maxBodyBytes}
}

// DocumentResponse represents a document in API responses.
type DocumentResponse struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	FileType     string `json:"file_type"`
	FileSize     int64  `json:"file_size"`
	UploadDate   string `json:"upload_date"`
	Status       string `json:"status"`
	TotalChunks  int    `json:"total_chunks"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func toDocumentResponse(doc *storage.DocumentRecord) DocumentResponse {
	return DocumentResponse{
		ID:           doc.ID,
		Filename:     doc.Filename,
		FileType:     doc.FileType,
		FileSize:     doc.FileSize,
		UploadDate:   doc.UploadDate.UTC().Format(time.RFC3339),
		Status:       doc.Status,
		TotalChunks:  doc.TotalChunks,
		ErrorMessage: doc.ErrorMessage,
	}
}

// Upload handles POST /api/v1/documents with a multipart "file" field.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.WarnContext(ctx, "missing or invalid file field", "error", err)
		writeError(w, http.StatusBadRequest, "A multipart \"file\" field is required")
		return
	}
	defer file.Close()

	doc, err := h.docs.Upload(ctx, header.Filename, header.Size, file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// List handles GET /api/v1/documents.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.docs.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]DocumentResponse, len(docs))
	for i, doc := range docs {
		out[i] = toDocumentResponse(doc)
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out, "total": len(out)})
}

// Get handles GET /api/v1/documents/{id}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// Delete handles DELETE /api/v1/documents/{id}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
