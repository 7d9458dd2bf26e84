// Package extract converts uploaded files into plain text for chunking.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupportedType is returned for file extensions no extractor handles.
var ErrUnsupportedType = errors.New("unsupported file type")

// PageMark records where a page begins in the extracted text.
// Start is a rune offset.
type PageMark struct {
	Number int
	Start  int
}

// Result holds the extracted text of a document. Pages is populated only
// for paged formats and is sorted by Start.
type Result struct {
	Text  string
	Pages []PageMark
}

// Extractor pulls plain text out of a file on disk.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Result, error)
}

// ForFilename returns the extractor for the file's extension.
func ForFilename(name string) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return &plainText{}, nil
	case ".md", ".markdown":
		return newMarkdown(), nil
	case ".pdf":
		return &pdfFile{}, nil
	case ".docx":
		return &docxFile{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(name))
	}
}

// SupportedExtensions lists the extensions ForFilename accepts.
func SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown", ".pdf", ".docx"}
}

// PageForOffset returns the page number containing the given rune offset,
// or 0 when no page information is available.
func PageForOffset(pages []PageMark, offset int) int {
	if len(pages) == 0 {
		return 0
	}
	i := sort.Search(len(pages), func(i int) bool { return pages[i].Start > offset })
	if i == 0 {
		return pages[0].Number
	}
	return pages[i-1].Number
}
