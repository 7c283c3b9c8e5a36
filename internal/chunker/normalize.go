package chunker

import (
	"regexp"
	"strings"
)

var (
	inlineSpace   = regexp.MustCompile(`[\p{Zs}\t\v]+`)
	pageNumLine   = regexp.MustCompile(`^\d+$`)
	excessNewline = regexp.MustCompile(`\n{3,}`)
)

// Normalize cleans raw extracted text before chunking.
//
// Line endings become LF, form feeds become line breaks, runs of spaces
// (including NBSP and other Unicode space separators) and tabs collapse to one
// space, every line is trimmed, lines holding only a
// number (stray page numbers) are dropped and 3+ newlines collapse to two.
// Empty input yields empty output.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.NewReplacer("\r", "\n", "\f", "\n").Replace(text)

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
		if pageNumLine.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}

	text = strings.Join(kept, "\n")
	text = excessNewline.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
