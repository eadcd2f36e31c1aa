package types

import "context"

// Agent is the participant contract consumed by the orchestrator. The
// orchestrator never calls a model itself; it only routes message history to
// agents and collects their responses.
type Agent interface {
	// Name returns the agent's unique name within a group. Names double as
	// graph node ids and topic suffixes.
	Name() string
	// Description returns a human-readable description of the agent,
	// available to speaker-selection strategies that reason over candidates.
	Description() string
	// OnMessages produces the agent's next turn given the full conversation
	// history. Implementations must honor ctx cancellation.
	OnMessages(ctx context.Context, history []Message) (Response, error)
	// ProducedMessageTypes lists the message kinds the agent can emit. Used
	// at build time to validate strategy and graph configuration, e.g. a
	// handoff-driven strategy requires its first speaker to produce
	// KindHandoff.
	ProducedMessageTypes() []Kind
}

// Response is the result of one agent turn.
type Response struct {
	// Message is the turn to append to the group thread.
	Message Message
	// InnerMessages are intermediate messages (tool calls, reflections) the
	// agent produced while computing the turn. They are surfaced on streams
	// but not appended to the group thread.
	InnerMessages []Message
}

// Produces reports whether kinds contains kind.
func Produces(kinds []Kind, kind Kind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
