package chunker

import (
	"errors"
	"fmt"
)

const (
	// CharsPerToken is the heuristic used for every token estimate (4 chars ~ 1 token).
	// Chunk budgets and chunk TokenCount both derive from it so size limits and
	// billing estimates agree.
	CharsPerToken = 4

	DefaultTargetTokens  = 500
	DefaultMaxTokens     = 1000
	DefaultMinTokens     = 100
	DefaultOverlapTokens = 50
)

// EstimateTokens estimates the LLM token count of text from its byte length,
// rounded up. It is an approximation, not a tokenizer call.
func EstimateTokens(text string) int {
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}

// Options configures chunk sizes in tokens
type Options struct {
	TargetTokens  int
	MaxTokens     int
	MinTokens     int
	OverlapTokens int

	// PageMarker is a regular expression whose first capture group is the page
	// number. Empty uses DefaultPageMarker.
	PageMarker string

	// DisablePages skips the page overlay; chunks then carry no page number
	DisablePages bool
}

// DefaultOptions returns the standard chunk sizing
func DefaultOptions() Options {
	return Options{
		TargetTokens:  DefaultTargetTokens,
		MaxTokens:     DefaultMaxTokens,
		MinTokens:     DefaultMinTokens,
		OverlapTokens: DefaultOverlapTokens,
	}
}

// Validate checks that the sizes are consistent
func (o Options) Validate() error {
	return o.Budget().Validate()
}

// Budget converts the token sizes to character budgets
func (o Options) Budget() Budget {
	return Budget{
		Target:  o.TargetTokens * CharsPerToken,
		Max:     o.MaxTokens * CharsPerToken,
		Min:     o.MinTokens * CharsPerToken,
		Overlap: o.OverlapTokens * CharsPerToken,
	}
}

// Budget holds chunk sizes in characters (bytes of normalized text)
type Budget struct {
	Target  int
	Max     int
	Min     int
	Overlap int
}

// Validate checks that the budget can make forward progress
func (b Budget) Validate() error {
	if b.Min <= 0 {
		return errors.New("min size must be positive")
	}
	if b.Target < b.Min {
		return fmt.Errorf("target size %d is below min size %d", b.Target, b.Min)
	}
	if b.Max < b.Target {
		return fmt.Errorf("max size %d is below target size %d", b.Max, b.Target)
	}
	if b.Overlap < 0 || b.Overlap >= b.Max {
		return fmt.Errorf("overlap %d must be in [0, %d)", b.Overlap, b.Max)
	}
	return nil
}
