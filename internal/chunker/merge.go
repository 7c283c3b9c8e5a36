package chunker

import "github.com/dshills/legalbrain/pkg/types"

// MergeSeparator joins the content of merged chunks
const MergeSeparator = "\n\n"

// Merge folds every chunk with fewer than minTokens tokens into the chunk that
// follows it. An undersized last chunk folds backward into the previous one.
// The result is re-indexed 0..n-1 and running Merge on it again is a no-op.
func Merge(chunks []types.DocumentChunk, minTokens int) []types.DocumentChunk {
	out := make([]types.DocumentChunk, 0, len(chunks))
	if len(chunks) <= 1 {
		return append(out, chunks...)
	}

	var carry *types.DocumentChunk
	for _, c := range chunks {
		if carry != nil {
			c = join(*carry, c)
			carry = nil
		}
		if c.TokenCount < minTokens {
			undersized := c
			carry = &undersized
			continue
		}
		out = append(out, c)
	}

	if carry != nil {
		if len(out) == 0 {
			out = append(out, *carry)
		} else {
			out[len(out)-1] = join(out[len(out)-1], *carry)
		}
	}

	for i := range out {
		out[i].Index = i
	}

	return out
}

// join concatenates b onto a; the page number of a wins
func join(a, b types.DocumentChunk) types.DocumentChunk {
	content := a.Content + MergeSeparator + b.Content
	return types.DocumentChunk{
		Content:    content,
		Index:      a.Index,
		PageNumber: a.PageNumber,
		CharStart:  min(a.CharStart, b.CharStart),
		CharEnd:    max(a.CharEnd, b.CharEnd),
		TokenCount: EstimateTokens(content),
	}
}
