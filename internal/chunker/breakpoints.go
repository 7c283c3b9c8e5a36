package chunker

import (
	"regexp"
	"sort"
)

// BreakKind classifies a break point. The splitter selects by proximity only.
//
// A header always starts a line, so BreakHeader offsets coincide with
// BreakLine offsets; the kind is reported for diagnostics and adds no
// candidates of its own.
type BreakKind int

const (
	BreakParagraph BreakKind = iota
	BreakHeader
	BreakLine
	BreakSentence
)

func (k BreakKind) String() string {
	switch k {
	case BreakParagraph:
		return "paragraph"
	case BreakHeader:
		return "header"
	case BreakLine:
		return "line"
	case BreakSentence:
		return "sentence"
	default:
		return "unknown"
	}
}

var (
	paragraphBreak = regexp.MustCompile(`\n{2,}`)
	headerStart    = regexp.MustCompile(`(?m)^(?:\d+\.(?:\d+\.?)*|[A-Z][A-Z ]{2,}:?)(?:\s|$)`)
	lineBreak      = regexp.MustCompile(`\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?]\s+`)
)

// FindBreakPointsByKind returns the candidate offsets of each kind, ascending.
// Every kind comes from an independent scan of text.
func FindBreakPointsByKind(text string) map[BreakKind][]int {
	return map[BreakKind][]int{
		BreakParagraph: matchEnds(paragraphBreak, text),
		BreakHeader:    matchStarts(headerStart, text),
		BreakLine:      matchEnds(lineBreak, text),
		BreakSentence:  matchEnds(sentenceEnd, text),
	}
}

// FindBreakPoints returns the ascending, de-duplicated offsets in (0, len(text)]
// where a chunk may safely end
func FindBreakPoints(text string) []int {
	var all []int
	for _, offsets := range FindBreakPointsByKind(text) {
		all = append(all, offsets...)
	}

	sort.Ints(all)

	out := all[:0]
	for _, off := range all {
		if off <= 0 || off > len(text) {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == off {
			continue
		}
		out = append(out, off)
	}

	return out
}

func matchEnds(re *regexp.Regexp, text string) []int {
	locs := re.FindAllStringIndex(text, -1)
	offsets := make([]int, 0, len(locs))
	for _, loc := range locs {
		offsets = append(offsets, loc[1])
	}
	return offsets
}

func matchStarts(re *regexp.Regexp, text string) []int {
	locs := re.FindAllStringIndex(text, -1)
	offsets := make([]int, 0, len(locs))
	for _, loc := range locs {
		// A header at offset 0 is the start of the text, not a break
		if loc[0] > 0 {
			offsets = append(offsets, loc[0])
		}
	}
	return offsets
}
