package orchestration

import (
	"context"

	"github.com/groupkit-ai/groupkit/graph"
	"github.com/groupkit-ai/groupkit/runtime"
	"github.com/groupkit-ai/groupkit/types"
)

// SchedulerStateHolder is the optional Strategy extension for strategies
// with serializable execution state. graph.Scheduler implements it.
type SchedulerStateHolder interface {
	Snapshot() graph.StateSnapshot
	Restore(graph.StateSnapshot)
}

// Snapshot captures the run state for checkpointing. The thread and the
// termination progress are read under the delivery lock, so calling it
// during a live run observes a consistent turn boundary.
func (m *Manager) Snapshot() *Snapshot {
	m.lockThread()
	snap := &Snapshot{
		MessageThread: m.thread.Clone(),
		Termination:   TerminationSnapshot{Evaluated: m.lastEvaluated},
	}
	m.fifo.Release()
	if holder, ok := m.strategy.(SchedulerStateHolder); ok {
		s := holder.Snapshot()
		snap.Scheduler = &s
	}
	return snap
}

// Restore replaces the manager's run state with a previously captured
// snapshot. The termination condition is reset and replayed over the
// already-evaluated thread prefix, which reproduces every message-derived
// counter; clock-derived conditions restart from the restore time.
//
// Restore only applies to an idle manager; reset a terminated one first.
func (m *Manager) Restore(snap *Snapshot) error {
	if s := m.State(); s != StateIdle {
		return types.NewErrorf(types.ErrRunState, "cannot restore while in state %s", s)
	}

	m.lockThread()
	m.thread = append(types.Thread(nil), snap.MessageThread...)
	m.lastEvaluated = snap.Termination.Evaluated
	m.usage = types.TokenUsage{}
	for _, msg := range m.thread {
		m.usage.Add(msg.Usage)
	}
	m.fifo.Release()

	if snap.Scheduler != nil {
		if holder, ok := m.strategy.(SchedulerStateHolder); ok {
			holder.Restore(*snap.Scheduler)
		}
	}

	if m.termination != nil {
		m.termination.Reset()
		if m.lastEvaluated > 0 {
			replay := m.thread[:min(m.lastEvaluated, len(m.thread))]
			// A restored snapshot of a live run cannot already satisfy the
			// condition; if it does, the next evaluation reports it.
			if _, err := m.termination.Evaluate(replay); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResumeStream continues a restored run from where the snapshot left off.
// The restored thread is rebroadcast to the participant containers so their
// local histories match before the next speaker is selected.
func (m *Manager) ResumeStream(ctx context.Context) (<-chan Event, error) {
	if s := m.State(); s != StateIdle {
		return nil, types.NewErrorf(types.ErrRunState,
			"resume requested in state %s", s)
	}
	if len(m.thread) == 0 {
		return nil, types.NewErrorf(types.ErrRunState, "nothing to resume: thread is empty")
	}
	if err := m.start(ctx); err != nil {
		return nil, err
	}
	for _, msg := range m.thread {
		if err := m.router.Publish(ctx, runtime.Envelope{
			Topic:   m.groupTopic,
			Kind:    runtime.EnvelopeResponse,
			Sender:  m.id,
			Message: msg,
		}); err != nil {
			return nil, err
		}
	}
	m.setState(StateAwaitingStart)

	events := make(chan Event, 16)
	go m.runLoop(ctx, nil, events)
	return events, nil
}

// Resume is the blocking façade over ResumeStream.
func (m *Manager) Resume(ctx context.Context) (*TaskResult, error) {
	stream, err := m.ResumeStream(ctx)
	if err != nil {
		return nil, err
	}
	var result *TaskResult
	for ev := range stream {
		if ev.Result != nil {
			result = ev.Result
		}
	}
	if result == nil {
		return nil, ctx.Err()
	}
	return result, result.Err
}
