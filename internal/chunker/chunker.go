package chunker

import (
	"fmt"
	"regexp"

	"github.com/dshills/legalbrain/pkg/types"
)

// Chunker turns raw extracted document text into ordered, addressable chunks.
// It holds no mutable state and is safe for concurrent use.
type Chunker struct {
	opts   Options
	budget Budget
	marker *regexp.Regexp
}

// New creates a Chunker with the given sizing
func New(opts Options) (*Chunker, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunk options: %w", err)
	}

	marker := defaultPageMarker
	if opts.PageMarker != "" {
		re, err := regexp.Compile(opts.PageMarker)
		if err != nil {
			return nil, fmt.Errorf("invalid page marker: %w", err)
		}
		marker = re
	}

	return &Chunker{opts: opts, budget: opts.Budget(), marker: marker}, nil
}

// NewDefault creates a Chunker with DefaultOptions
func NewDefault() *Chunker {
	c, err := New(DefaultOptions())
	if err != nil {
		panic(err)
	}
	return c
}

// Options returns the sizing the chunker was built with
func (c *Chunker) Options() Options {
	return c.opts
}

// Chunk normalizes raw and splits it into merged, page-attributed chunks.
// It returns types.ErrEmptyInput when normalization leaves no text.
func (c *Chunker) Chunk(raw string) ([]types.DocumentChunk, error) {
	_, chunks, err := c.ChunkNormalized(raw)
	return chunks, err
}

// ChunkNormalized is Chunk but also returns the normalized text the chunk
// offsets refer to
func (c *Chunker) ChunkNormalized(raw string) (string, []types.DocumentChunk, error) {
	text := Normalize(raw)
	if text == "" {
		return "", nil, types.ErrEmptyInput
	}

	var chunks []types.DocumentChunk
	if c.opts.DisablePages {
		chunks = Split(text, c.budget)
	} else {
		chunks = SplitPages(text, c.budget, c.marker)
	}

	chunks = Merge(chunks, c.opts.MinTokens)
	if len(chunks) == 0 {
		return text, nil, types.ErrEmptyInput
	}

	return text, chunks, nil
}
