package chunker

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dshills/legalbrain/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoParagraphText = "Paragraph one.\n\nParagraph two. Sentence two."

// legalText builds a deterministic, contract-like document
func legalText(seed int64, paragraphs int) string {
	rng := rand.New(rand.NewSource(seed))
	words := []string{
		"the", "lessee", "shall", "pay", "rent", "monthly", "landlord", "premises",
		"agreement", "term", "notice", "default", "party", "clause", "hereby",
	}

	var b strings.Builder
	for p := 0; p < paragraphs; p++ {
		if p > 0 {
			b.WriteString("\n\n")
		}
		if p%3 == 0 {
			fmt.Fprintf(&b, "%d. SECTION %d\n", p/3+1, p)
		}
		sentences := 2 + rng.Intn(5)
		for s := 0; s < sentences; s++ {
			if s > 0 {
				b.WriteString(" ")
			}
			n := 5 + rng.Intn(10)
			for w := 0; w < n; w++ {
				if w > 0 {
					b.WriteString(" ")
				}
				b.WriteString(words[rng.Intn(len(words))])
			}
			b.WriteString(".")
		}
	}
	return b.String()
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 4000), 1000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.text), "len %d", len(tt.text))
	}
}

func TestOptionsBudget(t *testing.T) {
	b := DefaultOptions().Budget()
	assert.Equal(t, Budget{Target: 2000, Max: 4000, Min: 400, Overlap: 200}, b)
	assert.NoError(t, b.Validate())
}

func TestBudgetValidate(t *testing.T) {
	tests := []struct {
		name   string
		budget Budget
	}{
		{"zero min", Budget{Target: 10, Max: 20, Min: 0}},
		{"target below min", Budget{Target: 5, Max: 20, Min: 10}},
		{"max below target", Budget{Target: 30, Max: 20, Min: 10}},
		{"negative overlap", Budget{Target: 10, Max: 20, Min: 1, Overlap: -1}},
		{"overlap too large", Budget{Target: 10, Max: 20, Min: 1, Overlap: 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.budget.Validate())
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "   \n\n \t ", ""},
		{"crlf and cr", "a\r\nb\rc", "a\nb\nc"},
		{"form feed", "a\fb", "a\nb"},
		{"collapse spaces and tabs", "a\tb    c", "a b c"},
		{"collapse unicode spaces", "a\u00a0\u00a0b\u2003c \u00a0d", "a b c d"},
		{"trim nbsp", "\u00a0lease\u00a0", "lease"},
		{"trim lines", "  line one  \n  line two ", "line one\nline two"},
		{"drop page number lines", "Intro\n12\nBody", "Intro\nBody"},
		{"keep numbers inside text", "Page 3 of 10\n3", "Page 3 of 10"},
		{"collapse newlines", "a\n\n\n\nb", "a\n\nb"},
		{"blank lines with spaces", "a\n  \n \n\nb", "a\n\nb"},
		{"only page numbers", "1\n2\n3", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestFindBreakPoints(t *testing.T) {
	assert.Equal(t, []int{15, 16, 31}, FindBreakPoints(twoParagraphText))
	assert.Empty(t, FindBreakPoints(""))
	assert.Empty(t, FindBreakPoints("no breaks here"))
}

func TestFindBreakPointsByKind(t *testing.T) {
	text := "Intro.\n\n1. Scope\nDEFINITIONS:\nTerms apply. Done"

	kinds := FindBreakPointsByKind(text)

	assert.Equal(t, []int{8}, kinds[BreakParagraph])
	assert.Equal(t, []int{8, 17}, kinds[BreakHeader])
	assert.Equal(t, []int{7, 8, 17, 30}, kinds[BreakLine])
	assert.Equal(t, []int{8, 11, 43}, kinds[BreakSentence])

	assert.Equal(t, []int{7, 8, 11, 17, 30, 43}, FindBreakPoints(text))
}

func TestFindBreakPointsByKind_NumberedHeaders(t *testing.T) {
	text := "Intro\n1.2. Rent\n3.4 Term\n5.6.7 Notice\n12 months"

	kinds := FindBreakPointsByKind(text)

	assert.Equal(t, []int{6, 16, 25}, kinds[BreakHeader])
	assert.Subset(t, kinds[BreakLine], kinds[BreakHeader])
}

func TestFindBreakPoints_HeaderAtStartIgnored(t *testing.T) {
	kinds := FindBreakPointsByKind("SECTION A\nbody text")
	assert.Empty(t, kinds[BreakHeader])
}

func TestFindBreakPoints_FreshScanPerCall(t *testing.T) {
	first := FindBreakPoints(twoParagraphText)
	_ = FindBreakPoints(legalText(1, 5))
	second := FindBreakPoints(twoParagraphText)
	assert.Equal(t, first, second)
}

func TestBreakKindString(t *testing.T) {
	assert.Equal(t, "paragraph", BreakParagraph.String())
	assert.Equal(t, "header", BreakHeader.String())
	assert.Equal(t, "line", BreakLine.String())
	assert.Equal(t, "sentence", BreakSentence.String())
	assert.Equal(t, "unknown", BreakKind(42).String())
}

func TestSplit_ParagraphBoundary(t *testing.T) {
	chunks := Split(twoParagraphText, Budget{Target: 10, Max: 20, Min: 1, Overlap: 0})

	// max=20 cannot hold the 28-char second paragraph, so it splits at its sentence break
	require.Len(t, chunks, 3)

	assert.Equal(t, "Paragraph one.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 15, chunks[0].CharEnd)
	assert.True(t, strings.HasPrefix(chunks[1].Content, "Paragraph two."))
	assert.Equal(t, "Sentence two.", chunks[2].Content)
	assert.Equal(t, len(twoParagraphText), chunks[2].CharEnd)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.True(t, strings.HasSuffix(c.Content, "."), "chunk %d ends mid-sentence: %q", i, c.Content)
	}
}

func TestSplit_ShortText(t *testing.T) {
	chunks := Split("Short text.", DefaultOptions().Budget())

	require.Len(t, chunks, 1)
	assert.Equal(t, "Short text.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 11, chunks[0].CharEnd)
	assert.Equal(t, 3, chunks[0].TokenCount)
	assert.Nil(t, chunks[0].PageNumber)
}

func TestSplit_Empty(t *testing.T) {
	assert.Nil(t, Split("", DefaultOptions().Budget()))
	assert.Nil(t, Split("   ", DefaultOptions().Budget()))
}

func TestSplit_HardCut(t *testing.T) {
	text := strings.Repeat("x", 100)

	chunks := Split(text, Budget{Target: 20, Max: 30, Min: 10, Overlap: 0})

	require.Len(t, chunks, 4)
	for i, want := range [][2]int{{0, 30}, {30, 60}, {60, 90}, {90, 100}} {
		assert.Equal(t, want[0], chunks[i].CharStart)
		assert.Equal(t, want[1], chunks[i].CharEnd)
	}
}

func TestSplit_SpaceFallback(t *testing.T) {
	text := "aaaa bbbb cccc dddd eeee ffff"

	chunks := Split(text, Budget{Target: 12, Max: 16, Min: 6, Overlap: 0})

	require.Len(t, chunks, 2)
	assert.Equal(t, "aaaa bbbb cccc", chunks[0].Content)
	assert.Equal(t, "dddd eeee ffff", chunks[1].Content)
}

func TestSplit_ForwardProgressWithLargeOverlap(t *testing.T) {
	text := strings.Repeat("x", 60)

	chunks := Split(text, Budget{Target: 10, Max: 20, Min: 5, Overlap: 19})

	require.NotEmpty(t, chunks)
	assert.Equal(t, len(text), chunks[len(chunks)-1].CharEnd)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].CharStart, chunks[i-1].CharStart)
	}
}

func TestSplit_KeepsRuneBoundaries(t *testing.T) {
	text := strings.Repeat("é", 50)

	chunks := Split(text, Budget{Target: 15, Max: 21, Min: 5, Overlap: 3})

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Content), "chunk %d is not valid UTF-8", c.Index)
	}
}

func TestSplit_Properties(t *testing.T) {
	b := Options{TargetTokens: 50, MaxTokens: 100, MinTokens: 10, OverlapTokens: 5}.Budget()

	for seed := int64(1); seed <= 20; seed++ {
		assertSplitProperties(t, Normalize(legalText(seed, 30)), b, fmt.Sprintf("seed %d", seed))
	}

	// A break exactly at Min lands after whitespace, so trimming leaves Min-1
	assertSplitProperties(t, "aaaaaaaa. "+strings.Repeat("b", 60),
		Budget{Target: 20, Max: 25, Min: 10, Overlap: 2}, "break at min")

	// Tight budgets put many breaks near Min
	tight := []Budget{
		{Target: 20, Max: 25, Min: 10, Overlap: 2},
		{Target: 12, Max: 16, Min: 8, Overlap: 0},
		{Target: 24, Max: 32, Min: 16, Overlap: 4},
	}
	for seed := int64(1); seed <= 20; seed++ {
		text := Normalize(legalText(seed, 10))
		for _, tb := range tight {
			assertSplitProperties(t, text, tb, fmt.Sprintf("seed %d budget %+v", seed, tb))
		}
	}
}

func assertSplitProperties(t *testing.T, text string, b Budget, label string) {
	t.Helper()
	chunks := Split(text, b)
	require.NotEmpty(t, chunks, label)

	// Coverage
	assert.Equal(t, 0, chunks[0].CharStart, label)
	assert.Equal(t, len(text), chunks[len(chunks)-1].CharEnd, label)

	for i, c := range chunks {
		require.NoError(t, c.Validate(), "%s chunk %d", label, i)
		assert.Equal(t, i, c.Index, label)
		assert.Equal(t, EstimateTokens(c.Content), c.TokenCount)

		if i == len(chunks)-1 {
			continue
		}

		// Size bound for non-terminal chunks
		assert.LessOrEqual(t, c.CharEnd-c.CharStart, b.Max, "%s chunk %d", label, i)
		assert.GreaterOrEqual(t, len(c.Content), b.Min, "%s chunk %d", label, i)

		// Overlap bound, which also rules out gaps
		overlap := c.CharEnd - chunks[i+1].CharStart
		assert.GreaterOrEqual(t, overlap, 0, "%s chunk %d", label, i)
		assert.LessOrEqual(t, overlap, b.Overlap, "%s chunk %d", label, i)
	}
}

func TestSplitPages_ThreePages(t *testing.T) {
	text := Normalize("PAGE 1\nFirst page text here.\n\nPAGE 2\nSecond page text.\n\nPAGE 3\nThird page text.")

	chunks := SplitPages(text, DefaultOptions().Budget(), nil)

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		require.NotNil(t, c.PageNumber)
		assert.Equal(t, i+1, *c.PageNumber)
		assert.True(t, strings.HasPrefix(c.Content, fmt.Sprintf("PAGE %d", i+1)))
		assert.Equal(t, strings.TrimSpace(text[c.CharStart:c.CharEnd]), c.Content)
	}

	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, strings.Index(text, "PAGE 2"), chunks[1].CharStart)
	assert.Equal(t, strings.Index(text, "PAGE 3"), chunks[2].CharStart)
	assert.Equal(t, len(text), chunks[2].CharEnd)
}

func TestSplitPages_PageNumbersNonDecreasing(t *testing.T) {
	var raw strings.Builder
	for p := 1; p <= 3; p++ {
		fmt.Fprintf(&raw, "PAGE %d\n%s\n\n", p, legalText(int64(p), 12))
	}
	text := Normalize(raw.String())

	chunks := SplitPages(text, Options{TargetTokens: 50, MaxTokens: 100, MinTokens: 10, OverlapTokens: 5}.Budget(), nil)

	require.Greater(t, len(chunks), 3)
	last := 0
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		require.NotNil(t, c.PageNumber)
		assert.GreaterOrEqual(t, *c.PageNumber, last)
		last = *c.PageNumber

		// Each chunk lies inside the segment of its page
		segStart := strings.Index(text, fmt.Sprintf("PAGE %d", *c.PageNumber))
		if *c.PageNumber == 1 {
			segStart = 0
		}
		assert.GreaterOrEqual(t, c.CharStart, segStart)
		if next := strings.Index(text, fmt.Sprintf("PAGE %d", *c.PageNumber+1)); next > 0 {
			assert.LessOrEqual(t, c.CharEnd, next)
		}
	}
	assert.Equal(t, 3, last)
}

func TestSplitPages_NoMarkers(t *testing.T) {
	chunks := SplitPages("Plain text without markers.", DefaultOptions().Budget(), nil)

	require.Len(t, chunks, 1)
	require.NotNil(t, chunks[0].PageNumber)
	assert.Equal(t, 1, *chunks[0].PageNumber)
}

func TestSplitPages_PreambleBelongsToFirstPage(t *testing.T) {
	text := "Cover sheet.\n\nPAGE 4\nBody of page four."

	chunks := SplitPages(text, DefaultOptions().Budget(), nil)

	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "Cover sheet.")
	assert.Equal(t, 4, chunks[0].Page())
}

func TestSplitPages_MarkerWithoutNumber(t *testing.T) {
	marker := regexp.MustCompile(`(?m)^--- break ---$`)
	text := "Alpha text.\n--- break ---\nBeta text.\n--- break ---\nGamma text."

	chunks := SplitPages(text, DefaultOptions().Budget(), marker)

	// Pages are numbered by marker position; the preamble joins the first page
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].Page())
	assert.Equal(t, 2, chunks[1].Page())
	assert.Equal(t, "Alpha text.\n--- break ---\nBeta text.", chunks[0].Content)
	assert.Equal(t, "--- break ---\nGamma text.", chunks[1].Content)
}

func chunkOf(content string, index, start, page, tokens int) types.DocumentChunk {
	return types.DocumentChunk{
		Content:    content,
		Index:      index,
		PageNumber: types.IntPtr(page),
		CharStart:  start,
		CharEnd:    start + len(content),
		TokenCount: tokens,
	}
}

func TestMerge_UndersizedFoldsForward(t *testing.T) {
	big := strings.TrimSpace(strings.Repeat("word ", 100))
	chunks := []types.DocumentChunk{
		chunkOf("tiny", 0, 0, 1, 5),
		chunkOf(big, 1, 6, 2, EstimateTokens(big)),
	}

	merged := Merge(chunks, 100)

	require.Len(t, merged, 1)
	assert.Equal(t, "tiny\n\n"+big, merged[0].Content)
	assert.Equal(t, 0, merged[0].Index)
	assert.Equal(t, 0, merged[0].CharStart)
	assert.Equal(t, chunks[1].CharEnd, merged[0].CharEnd)
	assert.Equal(t, 1, merged[0].Page())
	assert.Equal(t, EstimateTokens(merged[0].Content), merged[0].TokenCount)
}

func TestMerge_LastUndersizedFoldsBackward(t *testing.T) {
	big := strings.Repeat("b", 500)
	chunks := []types.DocumentChunk{
		chunkOf(big, 0, 0, 1, EstimateTokens(big)),
		chunkOf(big, 1, 500, 1, EstimateTokens(big)),
		chunkOf("end", 2, 1000, 2, 1),
	}

	merged := Merge(chunks, 100)

	require.Len(t, merged, 2)
	assert.Equal(t, big, merged[0].Content)
	assert.Equal(t, big+"\n\nend", merged[1].Content)
	assert.Equal(t, 1, merged[1].Index)
	assert.Equal(t, 1003, merged[1].CharEnd)
	assert.Equal(t, 1, merged[1].Page())
}

func TestMerge_Transitive(t *testing.T) {
	big := strings.Repeat("c", 500)
	chunks := []types.DocumentChunk{
		chunkOf("a", 0, 0, 1, 1),
		chunkOf("b", 1, 2, 1, 1),
		chunkOf(big, 2, 4, 1, EstimateTokens(big)),
	}

	merged := Merge(chunks, 100)

	require.Len(t, merged, 1)
	assert.Equal(t, "a\n\nb\n\n"+big, merged[0].Content)
}

func TestMerge_SingleChunkUnchanged(t *testing.T) {
	chunks := []types.DocumentChunk{chunkOf("only", 0, 0, 1, 1)}

	assert.Equal(t, chunks, Merge(chunks, 100))
	assert.Empty(t, Merge(nil, 100))
}

func TestMerge_Idempotent(t *testing.T) {
	b := Options{TargetTokens: 50, MaxTokens: 100, MinTokens: 10, OverlapTokens: 5}.Budget()

	for seed := int64(1); seed <= 10; seed++ {
		chunks := SplitPages(Normalize(legalText(seed, 20)), b, nil)

		once := Merge(chunks, 60)
		twice := Merge(once, 60)

		assert.Equal(t, once, twice, "seed %d", seed)
		for i, c := range once {
			assert.Equal(t, i, c.Index)
		}
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(Options{TargetTokens: 100, MaxTokens: 50, MinTokens: 10})
	assert.Error(t, err)

	opts := DefaultOptions()
	opts.PageMarker = "("
	_, err = New(opts)
	assert.Error(t, err)
}

func TestChunk_EmptyInput(t *testing.T) {
	c := NewDefault()

	for _, raw := range []string{"", "   \n\t ", "12\n34\n"} {
		chunks, err := c.Chunk(raw)
		assert.ErrorIs(t, err, types.ErrEmptyInput, "input %q", raw)
		assert.Nil(t, chunks)
	}
}

func TestChunk_ThreePageDocument(t *testing.T) {
	c, err := New(Options{TargetTokens: 20, MaxTokens: 40, MinTokens: 1, OverlapTokens: 0})
	require.NoError(t, err)

	chunks, err := c.Chunk("PAGE 1\r\nFirst page text here.\r\n\r\n\r\nPAGE 2\r\nSecond page text.\r\n7\r\nPAGE 3\r\nThird page text.")
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, i+1, c.Page())
	}
}

func TestChunk_DisablePages(t *testing.T) {
	opts := DefaultOptions()
	opts.DisablePages = true
	c, err := New(opts)
	require.NoError(t, err)

	chunks, err := c.Chunk("PAGE 2\nSome text.")
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Nil(t, chunks[0].PageNumber)
}

func TestChunkNormalized_OffsetsReferToNormalizedText(t *testing.T) {
	c, err := New(Options{TargetTokens: 50, MaxTokens: 100, MinTokens: 10, OverlapTokens: 5})
	require.NoError(t, err)

	raw := strings.ReplaceAll(legalText(7, 15), "\n", "\r\n")
	text, chunks, err := c.ChunkNormalized(raw)
	require.NoError(t, err)

	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		require.NoError(t, ch.Validate())
		assert.Equal(t, i, ch.Index)
		assert.LessOrEqual(t, ch.CharEnd, len(text))
		prefix := ch.Content[:min(10, len(ch.Content))]
		assert.True(t, strings.HasPrefix(strings.TrimSpace(text[ch.CharStart:ch.CharEnd]), prefix))
	}
}
