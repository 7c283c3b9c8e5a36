// Package extract turns source files into raw text for chunking.
//
// PDF text is emitted with a "PAGE <n>" line before each page so the
// chunker's page mapper can attribute chunks to pages.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedFormat is returned by ForPath for extensions without an extractor
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Extractor reads a file and returns its text
type Extractor interface {
	Extract(path string) (string, error)
}

// ExtractorFunc adapts a function to Extractor
type ExtractorFunc func(path string) (string, error)

func (f ExtractorFunc) Extract(path string) (string, error) {
	return f(path)
}

// Text extracts plain text and markdown files
type Text struct{}

// Extract reads the file, dropping a UTF-8 byte order mark and invalid bytes
func (Text) Extract(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return cleanText(string(data)), nil
}

// PDF extracts the plain text of every page
type PDF struct{}

// Extract reads every page with ledongthuc/pdf
func (PDF) Extract(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d of %s: %w", i, path, err)
		}
		pages = append(pages, cleanText(text))
	}

	return JoinPages(pages), nil
}

// JoinPages concatenates page texts, each preceded by its PAGE marker line
func JoinPages(pages []string) string {
	var b strings.Builder
	for i, text := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "PAGE %d\n", i+1)
		b.WriteString(text)
	}
	return b.String()
}

var extractors = map[string]Extractor{
	".txt":      Text{},
	".text":     Text{},
	".md":       Text{},
	".markdown": Text{},
	".pdf":      PDF{},
}

// ForPath picks an extractor by file extension
func ForPath(path string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if e, ok := extractors[ext]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// Supported reports whether ForPath has an extractor for path
func Supported(path string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// File extracts path with the extractor chosen by ForPath
func File(path string) (string, error) {
	e, err := ForPath(path)
	if err != nil {
		return "", err
	}
	return e.Extract(path)
}

func cleanText(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	return strings.ToValidUTF8(s, "")
}
