package orchestration

import (
	"context"
	"fmt"

	"github.com/groupkit-ai/groupkit/types"
)

// Strategy decides who speaks next. Given the (possibly empty) thread it
// returns the next speaker set; an empty result means nothing is runnable
// yet and the manager keeps waiting for in-flight participants. Returning
// graph.StopNode ends the run. Strategies read the thread but never mutate
// it.
type Strategy interface {
	SelectNext(ctx context.Context, thread types.Thread) ([]string, error)
	Reset()
}

// MessageProducer is an optional Strategy extension for strategies that emit
// messages of their own (e.g. a voting result). The manager drains pending
// messages after every selection and broadcasts them to the group.
type MessageProducer interface {
	DrainMessages() []types.Message
}

// RoundRobin cycles through the participants in fixed order, one speaker per
// turn.
type RoundRobin struct {
	participants []string
	next         int
}

// NewRoundRobin creates a round-robin strategy over the given participant
// names.
func NewRoundRobin(participants ...string) (*RoundRobin, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("round robin requires at least one participant")
	}
	return &RoundRobin{participants: participants}, nil
}

// SelectNext returns the next participant in rotation.
func (s *RoundRobin) SelectNext(ctx context.Context, thread types.Thread) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	speaker := s.participants[s.next%len(s.participants)]
	s.next++
	return []string{speaker}, nil
}

// Reset restarts the rotation.
func (s *RoundRobin) Reset() {
	s.next = 0
}

// SelectFunc picks one speaker from candidates given the thread. It is the
// seam where model-assisted selection plugs in: implementations typically
// prompt a model with the candidate names and descriptions. The function
// only decides a name; everything else stays with the orchestrator.
type SelectFunc func(ctx context.Context, thread types.Thread, candidates []string) (string, error)

// Selector delegates speaker selection to an injected SelectFunc.
type Selector struct {
	participants []string
	selectFn     SelectFunc
}

// NewSelector creates a selector strategy over the given candidates.
func NewSelector(selectFn SelectFunc, participants ...string) (*Selector, error) {
	if selectFn == nil {
		return nil, fmt.Errorf("selector requires a select function")
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("selector requires at least one participant")
	}
	return &Selector{participants: participants, selectFn: selectFn}, nil
}

// SelectNext asks the SelectFunc for a speaker and validates that it named a
// known participant.
func (s *Selector) SelectNext(ctx context.Context, thread types.Thread) ([]string, error) {
	name, err := s.selectFn(ctx, thread, append([]string(nil), s.participants...))
	if err != nil {
		return nil, fmt.Errorf("speaker selection failed: %w", err)
	}
	for _, p := range s.participants {
		if p == name {
			return []string{name}, nil
		}
	}
	return nil, types.NewErrorf(types.ErrAgentNotActive, "selector picked unknown participant %q", name)
}

// Reset is a no-op; the selector keeps no state between turns.
func (s *Selector) Reset() {}
