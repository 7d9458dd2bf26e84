package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// pdfFile extracts page text from .pdf files and records where each
// page starts so chunks can be attributed to a page.
type pdfFile struct{}

func (e *pdfFile) Extract(ctx context.Context, path string) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stating pdf: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parsing pdf: %w", err)
	}

	var (
		b     strings.Builder
		pages []PageMark
	)
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages the library cannot decode rather than failing
			// the whole document.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		pages = append(pages, PageMark{Number: pageNum, Start: utf8.RuneCountInString(b.String())})
		b.WriteString(text)
	}

	return &Result{Text: b.String(), Pages: pages}, nil
}
