package termination

import (
	"fmt"
	"strings"
	"time"

	"github.com/groupkit-ai/groupkit/types"
)

// MaxMessages fires once the cumulative message count reaches the bound.
type MaxMessages struct {
	max        int
	count      int
	terminated bool
}

// NewMaxMessages creates a condition that stops after max messages.
func NewMaxMessages(max int) *MaxMessages {
	return &MaxMessages{max: max}
}

func (c *MaxMessages) Terminated() bool { return c.terminated }

func (c *MaxMessages) Evaluate(delta []types.Message) (*types.Message, error) {
	if c.terminated {
		return nil, errAlreadyTerminated("MaxMessages")
	}
	c.count += len(delta)
	if c.count >= c.max {
		c.terminated = true
		return stop(fmt.Sprintf("maximum number of messages reached (%d)", c.max)), nil
	}
	return nil, nil
}

func (c *MaxMessages) Reset() {
	c.count = 0
	c.terminated = false
}

// TextMention fires on the first message whose rendered text contains the
// configured substring. Matching is a plain substring test, so partial-word
// matches count; pick distinctive markers.
type TextMention struct {
	text       string
	sources    map[string]bool
	terminated bool
}

// NewTextMention creates a condition that stops when text appears in any
// message. When sources are given, only messages from those sources are
// inspected.
func NewTextMention(text string, sources ...string) *TextMention {
	c := &TextMention{text: text}
	if len(sources) > 0 {
		c.sources = make(map[string]bool, len(sources))
		for _, s := range sources {
			c.sources[s] = true
		}
	}
	return c
}

func (c *TextMention) Terminated() bool { return c.terminated }

func (c *TextMention) Evaluate(delta []types.Message) (*types.Message, error) {
	if c.terminated {
		return nil, errAlreadyTerminated("TextMention")
	}
	for _, m := range delta {
		if c.sources != nil && !c.sources[m.Source] {
			continue
		}
		if strings.Contains(m.Render(), c.text) {
			c.terminated = true
			return stop(fmt.Sprintf("text %q mentioned by %s", c.text, m.Source)), nil
		}
	}
	return nil, nil
}

func (c *TextMention) Reset() {
	c.terminated = false
}

// TokenBudget accumulates token usage across messages and fires when any
// configured bound is crossed. Messages without provider usage metadata are
// estimated with the configured counter when one is set.
type TokenBudget struct {
	maxTotal      int
	maxPrompt     int
	maxCompletion int
	counter       types.TokenCounter
	usage         types.TokenUsage
	terminated    bool
}

// NewTokenBudget creates a token usage condition. Bounds of zero are
// unlimited; at least one bound must be positive.
func NewTokenBudget(maxTotal, maxPrompt, maxCompletion int) (*TokenBudget, error) {
	if maxTotal <= 0 && maxPrompt <= 0 && maxCompletion <= 0 {
		return nil, fmt.Errorf("token budget requires at least one positive bound")
	}
	return &TokenBudget{
		maxTotal:      maxTotal,
		maxPrompt:     maxPrompt,
		maxCompletion: maxCompletion,
	}, nil
}

// WithCounter sets the counter used to estimate usage for messages lacking
// provider usage metadata.
func (c *TokenBudget) WithCounter(counter types.TokenCounter) *TokenBudget {
	c.counter = counter
	return c
}

func (c *TokenBudget) Terminated() bool { return c.terminated }

func (c *TokenBudget) Evaluate(delta []types.Message) (*types.Message, error) {
	if c.terminated {
		return nil, errAlreadyTerminated("TokenBudget")
	}
	for _, m := range delta {
		usage := m.Usage
		if usage.IsZero() && c.counter != nil {
			n := c.counter.CountTokens(m.Render())
			usage = types.TokenUsage{CompletionTokens: n, TotalTokens: n}
		}
		c.usage.Add(usage)
	}
	switch {
	case c.maxTotal > 0 && c.usage.TotalTokens >= c.maxTotal:
		c.terminated = true
		return stop(fmt.Sprintf("total token budget exhausted (%d/%d)", c.usage.TotalTokens, c.maxTotal)), nil
	case c.maxPrompt > 0 && c.usage.PromptTokens >= c.maxPrompt:
		c.terminated = true
		return stop(fmt.Sprintf("prompt token budget exhausted (%d/%d)", c.usage.PromptTokens, c.maxPrompt)), nil
	case c.maxCompletion > 0 && c.usage.CompletionTokens >= c.maxCompletion:
		c.terminated = true
		return stop(fmt.Sprintf("completion token budget exhausted (%d/%d)", c.usage.CompletionTokens, c.maxCompletion)), nil
	}
	return nil, nil
}

func (c *TokenBudget) Reset() {
	c.usage = types.TokenUsage{}
	c.terminated = false
}

// HandoffTo fires when a handoff message names the configured target,
// letting a run end by delegating to a participant outside the group (e.g.
// back to the user).
type HandoffTo struct {
	target     string
	terminated bool
}

// NewHandoffTo creates a condition that stops on a handoff to target.
func NewHandoffTo(target string) *HandoffTo {
	return &HandoffTo{target: target}
}

func (c *HandoffTo) Terminated() bool { return c.terminated }

func (c *HandoffTo) Evaluate(delta []types.Message) (*types.Message, error) {
	if c.terminated {
		return nil, errAlreadyTerminated("HandoffTo")
	}
	for _, m := range delta {
		if m.Kind == types.KindHandoff && m.Target == c.target {
			c.terminated = true
			return stop(fmt.Sprintf("handoff to %s requested by %s", c.target, m.Source)), nil
		}
	}
	return nil, nil
}

func (c *HandoffTo) Reset() {
	c.terminated = false
}

// Timeout fires once the wall-clock run duration reaches the bound. It uses
// the monotonic clock carried by time.Time, so system time changes do not
// affect it.
type Timeout struct {
	limit      time.Duration
	start      time.Time
	terminated bool
}

// NewTimeout creates a condition that stops after the given duration,
// measured from creation (or the latest Reset).
func NewTimeout(limit time.Duration) *Timeout {
	return &Timeout{limit: limit, start: time.Now()}
}

func (c *Timeout) Terminated() bool { return c.terminated }

func (c *Timeout) Evaluate(delta []types.Message) (*types.Message, error) {
	if c.terminated {
		return nil, errAlreadyTerminated("Timeout")
	}
	if elapsed := time.Since(c.start); elapsed >= c.limit {
		c.terminated = true
		return stop(fmt.Sprintf("timeout after %s", elapsed.Round(time.Millisecond))), nil
	}
	return nil, nil
}

func (c *Timeout) Reset() {
	c.start = time.Now()
	c.terminated = false
}
