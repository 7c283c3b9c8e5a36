package chunker

import (
	"regexp"
	"strconv"

	"github.com/dshills/legalbrain/pkg/types"
)

// DefaultPageMarker matches "PAGE <n>" case-insensitively
const DefaultPageMarker = `(?i)\bPAGE\s+(\d+)\b`

var defaultPageMarker = regexp.MustCompile(DefaultPageMarker)

type pageSegment struct {
	start, end int
	page       int
}

// SplitPages partitions text at page markers and splits each page on its own.
//
// Chunk offsets are re-based onto text and indexes run globally across pages.
// Text before the first marker belongs to the first page. Without any marker
// the whole text is page 1. A nil marker uses DefaultPageMarker.
func SplitPages(text string, b Budget, marker *regexp.Regexp) []types.DocumentChunk {
	if marker == nil {
		marker = defaultPageMarker
	}

	segments := findPageSegments(text, marker)
	if len(segments) == 0 {
		chunks := Split(text, b)
		for i := range chunks {
			chunks[i].PageNumber = types.IntPtr(1)
		}
		return chunks
	}

	var chunks []types.DocumentChunk
	for _, seg := range segments {
		for _, c := range Split(text[seg.start:seg.end], b) {
			c.Index = len(chunks)
			c.CharStart += seg.start
			c.CharEnd += seg.start
			c.PageNumber = types.IntPtr(seg.page)
			chunks = append(chunks, c)
		}
	}

	return chunks
}

func findPageSegments(text string, marker *regexp.Regexp) []pageSegment {
	locs := marker.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	segments := make([]pageSegment, 0, len(locs))
	for i, loc := range locs {
		seg := pageSegment{start: loc[0], end: len(text), page: i + 1}
		if i == 0 {
			seg.start = 0
		}
		if i+1 < len(locs) {
			seg.end = locs[i+1][0]
		}
		if len(loc) >= 4 && loc[2] >= 0 {
			if n, err := strconv.Atoi(text[loc[2]:loc[3]]); err == nil && n > 0 {
				seg.page = n
			}
		}
		segments = append(segments, seg)
	}

	return segments
}
