package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when no encoding name is given.
const DefaultEncoding = "cl100k_base"

// Tiktoken counts tokens with a BPE encoding. The encoding is initialized
// lazily on first use because loading it can fetch data; if initialization
// fails the counter falls back to estimation rather than erroring, since
// token-budget checks prefer an approximate count over no count.
type Tiktoken struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback *Estimator
}

// NewTiktoken creates a counter for the given encoding name. An empty name
// selects DefaultEncoding.
func NewTiktoken(encoding string) *Tiktoken {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Tiktoken{
		encoding: encoding,
		fallback: NewEstimator(),
	}
}

// CountTokens returns the token count of text.
func (t *Tiktoken) CountTokens(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err == nil {
			t.enc = enc
		}
	})
	if t.enc == nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}
