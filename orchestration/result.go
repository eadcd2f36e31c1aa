package orchestration

import (
	"github.com/groupkit-ai/groupkit/graph"
	"github.com/groupkit-ai/groupkit/types"
)

// TaskResult is the outcome of one run.
type TaskResult struct {
	// Messages is the complete ordered thread of the run, task included.
	Messages []types.Message `json:"messages"`
	// StopReason explains why the run ended: a termination condition
	// reason, natural completion, or a fatal error.
	StopReason string `json:"stop_reason"`
	// Usage is the aggregated token usage across all turns.
	Usage types.TokenUsage `json:"usage,omitempty"`
	// Err is the fatal error that ended the run, nil on a clean stop.
	Err error `json:"-"`
}

// Event is one item yielded by RunStream: every intermediate message as it
// is appended, then exactly one final event carrying the TaskResult.
type Event struct {
	Message *types.Message
	Result  *TaskResult
}

// Snapshot is the persisted state of a run, sufficient to resume with
// identical scheduler behavior. Any transport format works as long as the
// structure round-trips.
type Snapshot struct {
	MessageThread []types.Message      `json:"message_thread"`
	Scheduler     *graph.StateSnapshot `json:"scheduler,omitempty"`
	// Termination records how many thread messages the termination
	// condition has already consumed; on restore the condition is reset and
	// replayed over the thread prefix.
	Termination TerminationSnapshot `json:"termination"`
}

// TerminationSnapshot captures termination evaluation progress.
type TerminationSnapshot struct {
	Evaluated int `json:"evaluated"`
}

// StopReasonCompleted is the stop reason of a run that ran to natural
// completion, all leaves exhausted.
const StopReasonCompleted = "no runnable participants remain"
