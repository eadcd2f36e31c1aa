package termination

import (
	"fmt"
	"sync"

	"github.com/groupkit-ai/groupkit/types"
)

// ExternalSignal fires only after an external Set call. Set is safe to call
// from any goroutine, decoupling the producer of the stop decision from the
// manager goroutine that evaluates conditions.
type ExternalSignal struct {
	mu         sync.Mutex
	set        bool
	terminated bool
}

// NewExternalSignal creates an externally triggered stop condition.
func NewExternalSignal() *ExternalSignal {
	return &ExternalSignal{}
}

// Set arms the condition; the next Evaluate fires.
func (c *ExternalSignal) Set() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set = true
}

func (c *ExternalSignal) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

func (c *ExternalSignal) Evaluate(delta []types.Message) (*types.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated {
		return nil, errAlreadyTerminated("ExternalSignal")
	}
	if c.set {
		c.terminated = true
		return stop("external termination requested"), nil
	}
	return nil, nil
}

func (c *ExternalSignal) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set = false
	c.terminated = false
}

// SourceMatch fires on the first message produced by any of the configured
// sources.
type SourceMatch struct {
	sources    map[string]bool
	terminated bool
}

// NewSourceMatch creates a condition that stops once any listed source
// speaks.
func NewSourceMatch(sources ...string) *SourceMatch {
	set := make(map[string]bool, len(sources))
	for _, s := range sources {
		set[s] = true
	}
	return &SourceMatch{sources: set}
}

func (c *SourceMatch) Terminated() bool { return c.terminated }

func (c *SourceMatch) Evaluate(delta []types.Message) (*types.Message, error) {
	if c.terminated {
		return nil, errAlreadyTerminated("SourceMatch")
	}
	for _, m := range delta {
		if c.sources[m.Source] {
			c.terminated = true
			return stop(fmt.Sprintf("source %s produced a message", m.Source)), nil
		}
	}
	return nil, nil
}

func (c *SourceMatch) Reset() {
	c.terminated = false
}

// OnStopMessage fires on receipt of an explicit stop message from any
// participant.
type OnStopMessage struct {
	terminated bool
}

// NewOnStopMessage creates a condition that stops when a participant emits a
// stop message.
func NewOnStopMessage() *OnStopMessage {
	return &OnStopMessage{}
}

func (c *OnStopMessage) Terminated() bool { return c.terminated }

func (c *OnStopMessage) Evaluate(delta []types.Message) (*types.Message, error) {
	if c.terminated {
		return nil, errAlreadyTerminated("OnStopMessage")
	}
	for _, m := range delta {
		if m.Kind == types.KindStop {
			c.terminated = true
			return stop(fmt.Sprintf("stop message received from %s", m.Source)), nil
		}
	}
	return nil, nil
}

func (c *OnStopMessage) Reset() {
	c.terminated = false
}
