package retrieve

import (
	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// TokenCounter measures how many tokens a text costs against the
// context budget.
type TokenCounter interface {
	Count(text string) int
}

// NewTokenCounter returns a BPE-based counter, falling back to a
// character heuristic when the encoding cannot be loaded (for example
// with no network access to fetch the vocabulary).
func NewTokenCounter() TokenCounter {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return heuristicCounter{}
	}
	return &bpeCounter{enc: enc}
}

type bpeCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *bpeCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// heuristicCounter approximates one token per four characters, which
// overestimates slightly for prose. Overestimating keeps the assembled
// context under the real budget.
type heuristicCounter struct{}

func (heuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
