package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// plainText reads .txt files as-is, normalizing line endings.
type plainText struct{}

func (e *plainText) Extract(_ context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return &Result{Text: text}, nil
}
