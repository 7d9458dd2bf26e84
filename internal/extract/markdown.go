package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// markdown strips markup from .md files by walking the goldmark AST and
// collecting the text content, with newlines at block boundaries.
type markdown struct {
	parser goldmark.Markdown
}

func newMarkdown() *markdown {
	return &markdown{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

func (e *markdown) Extract(_ context.Context, path string) (*Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading markdown file: %w", err)
	}
	if len(content) == 0 {
		return &Result{}, nil
	}

	doc := e.parser.Parser().Parse(text.NewReader(content))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.List, *ast.ListItem:
			blockBreak(&b)
		case *ast.Text:
			b.Write(node.Segment.Value(content))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.CodeBlock:
			blockBreak(&b)
			writeLines(&b, node.Lines(), content)
		case *ast.FencedCodeBlock:
			blockBreak(&b)
			writeLines(&b, node.Lines(), content)
		}
		return ast.WalkContinue, nil
	})

	return &Result{Text: strings.TrimSpace(b.String())}, nil
}

// blockBreak separates block-level elements with a blank line.
func blockBreak(b *strings.Builder) {
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n\n") {
		if strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		} else {
			b.WriteString("\n\n")
		}
	}
}

func writeLines(b *strings.Builder, lines *text.Segments, content []byte) {
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(content))
	}
}
