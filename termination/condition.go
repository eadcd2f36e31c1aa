package termination

import (
	"github.com/groupkit-ai/groupkit/types"
)

// Source is the source attached to stop messages produced by conditions in
// this package.
const Source = "termination"

// Condition is a stateful stop predicate. A condition belongs to exactly one
// orchestration manager; the manager calls Evaluate with the delta of
// messages appended since the previous call.
type Condition interface {
	// Terminated reports whether the condition has already fired.
	Terminated() bool
	// Evaluate inspects the new messages and returns a stop message when the
	// condition fires, nil otherwise. Evaluating an already-terminated
	// condition is a programming error and returns a TERMINATION_MISUSE
	// error.
	Evaluate(delta []types.Message) (*types.Message, error)
	// Reset restores the condition for a fresh run.
	Reset()
}

// errAlreadyTerminated builds the misuse error every condition returns when
// evaluated after firing.
func errAlreadyTerminated(name string) error {
	return types.NewErrorf(types.ErrTerminationMisuse,
		"%s condition evaluated after it already terminated", name)
}

// stop builds the stop message a firing condition returns.
func stop(reason string) *types.Message {
	m := types.NewStopMessage(Source, reason)
	return &m
}
