package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	docxParaClose = regexp.MustCompile(`</w:p>`)
	docxTags      = regexp.MustCompile(`<[^>]+>`)
)

// docxFile extracts text from .docx files. The library exposes the raw
// document XML, so paragraph closes become newlines and remaining tags
// are stripped.
type docxFile struct{}

func (e *docxFile) Extract(_ context.Context, path string) (*Result, error) {
	reader, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening docx: %w", err)
	}
	defer reader.Close()

	content := reader.Editable().GetContent()
	content = docxParaClose.ReplaceAllString(content, "\n")
	content = docxTags.ReplaceAllString(content, "")
	content = unescapeXML(content)

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	return &Result{Text: strings.Join(lines, "\n")}, nil
}

func unescapeXML(s string) string {
	return strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
	).Replace(s)
}
