package termination

import (
	"strings"

	"github.com/groupkit-ai/groupkit/types"
)

// AndCondition is terminated only once every child has fired across the
// run's history. Each Evaluate call feeds only the not-yet-terminated
// children; the final stop message concatenates every child's reason.
type AndCondition struct {
	children   []Condition
	reasons    []string
	terminated bool
}

// And combines conditions so that all of them must fire before the run
// stops.
func And(children ...Condition) *AndCondition {
	return &AndCondition{children: children}
}

func (c *AndCondition) Terminated() bool { return c.terminated }

func (c *AndCondition) Evaluate(delta []types.Message) (*types.Message, error) {
	if c.terminated {
		return nil, errAlreadyTerminated("And")
	}
	remaining := 0
	for _, child := range c.children {
		if child.Terminated() {
			continue
		}
		msg, err := child.Evaluate(delta)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			c.reasons = append(c.reasons, msg.Content)
			continue
		}
		remaining++
	}
	if remaining == 0 {
		c.terminated = true
		return stop(strings.Join(c.reasons, "; ")), nil
	}
	return nil, nil
}

func (c *AndCondition) Reset() {
	for _, child := range c.children {
		child.Reset()
	}
	c.reasons = nil
	c.terminated = false
}

// OrCondition is terminated as soon as any child fires. Every child is
// evaluated on every call; when several fire on the same delta, the stop
// message concatenates only the firing children's reasons.
type OrCondition struct {
	children   []Condition
	terminated bool
}

// Or combines conditions so that the first one to fire stops the run.
func Or(children ...Condition) *OrCondition {
	return &OrCondition{children: children}
}

func (c *OrCondition) Terminated() bool { return c.terminated }

func (c *OrCondition) Evaluate(delta []types.Message) (*types.Message, error) {
	if c.terminated {
		return nil, errAlreadyTerminated("Or")
	}
	var reasons []string
	for _, child := range c.children {
		msg, err := child.Evaluate(delta)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			reasons = append(reasons, msg.Content)
		}
	}
	if len(reasons) > 0 {
		c.terminated = true
		return stop(strings.Join(reasons, "; ")), nil
	}
	return nil, nil
}

func (c *OrCondition) Reset() {
	for _, child := range c.children {
		child.Reset()
	}
	c.terminated = false
}
