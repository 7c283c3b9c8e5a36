package chunker

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dshills/legalbrain/pkg/types"
)

// Split walks normalized text and produces budget-bounded chunks whose ends
// snap to the break point nearest the target size. Offsets are relative to text.
//
// Each chunk spans [start, end) of text and its Content is that span trimmed.
// Consecutive chunks overlap by at most b.Overlap characters. Non-terminal
// ends are only chosen where the trimmed content reaches b.Min. A span holding
// nothing but whitespace is not emitted; it is folded into the next chunk so
// coverage has no gaps.
func Split(text string, b Budget) []types.DocumentChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	n := len(text)
	if n <= b.Min {
		return []types.DocumentChunk{newChunk(text, 0, n, 0)}
	}

	breaks := FindBreakPoints(text)
	chunks := make([]types.DocumentChunk, 0, n/max(b.Target, 1)+1)

	start := 0
	pendingStart := -1
	for {
		chunkEnd := n
		if start+b.Target < n {
			chunkEnd = pickEnd(text, breaks, start, b)
		}
		terminal := chunkEnd >= n

		spanStart := start
		if pendingStart >= 0 {
			spanStart = pendingStart
		}

		if strings.TrimSpace(text[spanStart:chunkEnd]) != "" {
			chunks = append(chunks, newChunk(text, spanStart, chunkEnd, len(chunks)))
			pendingStart = -1
		} else {
			pendingStart = spanStart
		}

		if terminal {
			break
		}

		start = nextStart(text, start, chunkEnd, b.Overlap)
	}

	return chunks
}

// pickEnd chooses the end offset of a non-terminal chunk starting at start
func pickEnd(text string, breaks []int, start int, b Budget) int {
	n := len(text)
	targetEnd := start + b.Target
	maxEnd := min(start+b.Max, n)
	minEnd := min(max(start+b.Min, start+1), maxEnd)

	best := -1
	for i := sort.SearchInts(breaks, minEnd); i < len(breaks) && breaks[i] <= maxEnd; i++ {
		// A break right after whitespace can leave less than Min once trimmed
		if !longEnough(text, start, breaks[i], b.Min) {
			continue
		}
		// Ties keep the earlier offset
		if best < 0 || abs(breaks[i]-targetEnd) < abs(best-targetEnd) {
			best = breaks[i]
		}
	}

	// End of text is always a safe place to stop
	if maxEnd == n && (best < 0 || abs(n-targetEnd) < abs(best-targetEnd)) {
		best = n
	}
	if best >= 0 {
		return best
	}

	if sp := strings.LastIndexByte(text[:min(maxEnd+1, n)], ' '); sp >= minEnd && sp > start && longEnough(text, start, sp, b.Min) {
		return sp
	}

	// Hard cut, kept on a rune boundary
	end := maxEnd
	for end > minEnd && end < n && !utf8.RuneStart(text[end]) {
		end--
	}
	return end
}

func longEnough(text string, start, end, minChars int) bool {
	return len(strings.TrimSpace(text[start:end])) >= minChars
}

// nextStart applies the overlap while guaranteeing forward progress
func nextStart(text string, start, chunkEnd, overlap int) int {
	next := max(chunkEnd-overlap, start+1)
	for next < chunkEnd && !utf8.RuneStart(text[next]) {
		next++
	}
	return next
}

func newChunk(text string, start, end, index int) types.DocumentChunk {
	content := strings.TrimSpace(text[start:end])
	return types.DocumentChunk{
		Content:    content,
		Index:      index,
		CharStart:  start,
		CharEnd:    end,
		TokenCount: EstimateTokens(content),
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
