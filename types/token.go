package types

// TokenUsage represents token consumption statistics for one message or an
// entire run.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Add adds another TokenUsage to this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// IsZero reports whether no usage has been recorded.
func (u TokenUsage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

// TokenCounter is the minimal token counting contract. Implementations live
// in the tokenizer package; the interface sits here so termination conditions
// can count without importing an encoder.
type TokenCounter interface {
	// CountTokens returns the token count of the given text.
	CountTokens(text string) int
}
