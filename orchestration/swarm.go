package orchestration

import (
	"context"
	"fmt"

	"github.com/groupkit-ai/groupkit/types"
)

// Swarm is the handoff-driven strategy: the current speaker keeps the floor
// until it emits a handoff naming another participant, which then takes
// over. The first listed participant opens the run and must therefore be
// able to produce handoff messages, which is validated at build time from
// ProducedMessageTypes.
type Swarm struct {
	names   map[string]bool
	first   string
	current string
}

// NewSwarm creates a handoff-driven strategy over the given agents.
func NewSwarm(agents []types.Agent) (*Swarm, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("swarm requires at least one agent")
	}
	first := agents[0]
	if !types.Produces(first.ProducedMessageTypes(), types.KindHandoff) {
		return nil, fmt.Errorf(
			"swarm requires the first participant (%s) to produce handoff messages", first.Name())
	}
	s := &Swarm{
		names: make(map[string]bool, len(agents)),
		first: first.Name(),
	}
	for _, a := range agents {
		s.names[a.Name()] = true
	}
	s.current = s.first
	return s, nil
}

// SelectNext keeps the current speaker unless the last message is a handoff,
// which transfers the floor to its target. A handoff to a name outside the
// group returns no speaker; pair Swarm with a HandoffTo termination
// condition to end the run on such transfers.
func (s *Swarm) SelectNext(ctx context.Context, thread types.Thread) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	last, ok := thread.Last()
	if !ok {
		return []string{s.current}, nil
	}
	if last.Kind == types.KindHandoff {
		if !s.names[last.Target] {
			return nil, nil
		}
		s.current = last.Target
	}
	return []string{s.current}, nil
}

// Reset returns the floor to the first participant.
func (s *Swarm) Reset() {
	s.current = s.first
}
