package graph

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/groupkit-ai/groupkit/types"
)

// say appends a text message from source and returns the grown thread.
func say(thread types.Thread, source, content string) types.Thread {
	return append(thread, types.NewTextMessage(source, content))
}

func TestScheduler_SequentialFlow(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().
		AddEdge("a", "b").
		AddEdge("b", "c").
		Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())
	ctx := context.Background()

	var thread types.Thread
	thread = say(thread, "user", "task")

	next, err := s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, next)

	thread = say(thread, "a", "a speaks")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, next)

	thread = say(thread, "b", "b speaks")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, next)

	thread = say(thread, "c", "c speaks")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{StopNode}, next)
}

func TestScheduler_EmptyThreadStartsRun(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().AddEdge("a", "b").Build()
	require.NoError(t, err)
	s := NewScheduler(g, nil)

	next, err := s.SelectNext(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, next)
}

func TestScheduler_ParallelFanOutJoin(t *testing.T) {
	t.Parallel()

	// a fans out to b and c; d joins with ActivationAll.
	g, err := NewBuilder().
		AddNodeWithActivation("d", ActivationAll).
		AddEdge("a", "b").
		AddEdge("a", "c").
		AddEdge("b", "d").
		AddEdge("c", "d").
		Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())
	ctx := context.Background()

	var thread types.Thread
	thread = say(thread, "user", "task")

	next, err := s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, next)

	thread = say(thread, "a", "fan out")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, next)

	// First branch answers: d must wait for the other parent.
	thread = say(thread, "b", "b done")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Empty(t, next)

	// Second branch answers: now d joins.
	thread = say(thread, "c", "c done")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, next)

	thread = say(thread, "d", "joined")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{StopNode}, next)
}

func TestScheduler_AnyActivationFiresPerParent(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().
		AddNodeWithActivation("d", ActivationAny).
		AddEdge("a", "b").
		AddEdge("a", "c").
		AddEdge("b", "d").
		AddEdge("c", "d").
		Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())
	ctx := context.Background()

	var thread types.Thread
	thread = say(thread, "user", "task")
	_, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)

	thread = say(thread, "a", "fan out")
	_, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)

	// d activates as soon as b fires, and again when c fires.
	thread = say(thread, "b", "b done")
	next, err := s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, next)

	thread = say(thread, "c", "c done")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, next)
}

func TestScheduler_ConditionalBranch(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().
		AddConditionalEdge("triage", "billing", "invoice").
		AddConditionalEdge("triage", "support", "bug").
		SetStart("triage").
		Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())
	ctx := context.Background()

	var thread types.Thread
	thread = say(thread, "user", "task")
	next, err := s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"triage"}, next)

	thread = say(thread, "triage", "this is a bug report")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"support"}, next)

	// The pruned billing branch is gone: after support the run stops.
	thread = say(thread, "support", "fixed")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{StopNode}, next)
}

func TestScheduler_FirstMatchingConditionWins(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().
		AddConditionalEdge("a", "b", "yes").
		AddConditionalEdge("a", "c", "y").
		SetStart("a").
		Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())
	ctx := context.Background()

	var thread types.Thread
	thread = say(thread, "user", "task")
	_, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)

	// "yes" matches both conditions; the first declared edge is taken.
	thread = say(thread, "a", "yes")
	next, err := s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, next)
}

func TestScheduler_ConditionNotMet(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().
		AddConditionalEdge("a", "b", "approve").
		AddConditionalEdge("a", "c", "reject").
		SetStart("a").
		Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())
	ctx := context.Background()

	var thread types.Thread
	thread = say(thread, "user", "task")
	_, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)

	thread = say(thread, "a", "no opinion")
	_, err = s.SelectNext(ctx, thread)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrConditionNotMet))
}

func TestScheduler_AgentNotActive(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().AddEdge("a", "b").Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())
	ctx := context.Background()

	var thread types.Thread
	thread = say(thread, "user", "task")
	_, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)

	// b speaks while only a is active.
	thread = say(thread, "b", "out of order")
	_, err = s.SelectNext(ctx, thread)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrAgentNotActive))
}

func TestScheduler_NonParticipantAfterStart(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().AddEdge("a", "b").Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())
	ctx := context.Background()

	var thread types.Thread
	thread = say(thread, "user", "task")
	_, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)

	// A second non-participant message mid-run is a selection error, not a
	// restart.
	thread = say(thread, "bystander", "hello")
	_, err = s.SelectNext(ctx, thread)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrAgentNotActive))
}

func TestScheduler_CycleWithExit(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().
		AddEdge("start", "worker").
		AddConditionalEdge("worker", "reviewer", "review").
		AddConditionalEdge("reviewer", "worker", "revise").
		AddConditionalEdge("reviewer", "done", "approve").
		Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())
	ctx := context.Background()

	var thread types.Thread
	thread = say(thread, "user", "task")
	next, err := s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"start"}, next)

	thread = say(thread, "start", "begin")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"worker"}, next)

	// Two revision loops before approval.
	for i := 0; i < 2; i++ {
		thread = say(thread, "worker", "please review")
		next, err = s.SelectNext(ctx, thread)
		require.NoError(t, err)
		assert.Equal(t, []string{"reviewer"}, next)

		thread = say(thread, "reviewer", "revise this")
		next, err = s.SelectNext(ctx, thread)
		require.NoError(t, err)
		assert.Equal(t, []string{"worker"}, next)
	}

	thread = say(thread, "worker", "please review")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"reviewer"}, next)

	thread = say(thread, "reviewer", "approve")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, next)

	thread = say(thread, "done", "shipped")
	next, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{StopNode}, next)
}

func TestScheduler_ErrorLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().
		AddConditionalEdge("a", "b", "approve").
		AddConditionalEdge("a", "c", "reject").
		SetStart("a").
		Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())
	ctx := context.Background()

	var thread types.Thread
	thread = say(thread, "user", "task")
	_, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	before := s.Snapshot()

	// Failed selection must not consume a's activation.
	bad := say(thread, "a", "no opinion")
	_, err = s.SelectNext(ctx, bad)
	require.Error(t, err)
	assert.Equal(t, before, s.Snapshot())

	// The same turn can then be retried with a valid message.
	good := say(thread, "a", "approve")
	next, err := s.SelectNext(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, next)
}

func TestScheduler_CancelledContext(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().AddEdge("a", "b").Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.SelectNext(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScheduler_SnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().
		AddNodeWithActivation("d", ActivationAll).
		AddEdge("a", "b").
		AddEdge("a", "c").
		AddEdge("b", "d").
		AddEdge("c", "d").
		Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())
	ctx := context.Background()

	var thread types.Thread
	thread = say(thread, "user", "task")
	_, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	thread = say(thread, "a", "fan out")
	_, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)
	thread = say(thread, "b", "b done")
	_, err = s.SelectNext(ctx, thread)
	require.NoError(t, err)

	// Mid-join snapshot: d is waiting for c.
	snap := s.Snapshot()
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var restored StateSnapshot
	require.NoError(t, json.Unmarshal(data, &restored))

	fresh := NewScheduler(g, zap.NewNop())
	fresh.Restore(restored)

	thread = say(thread, "c", "c done")
	next, err := fresh.SelectNext(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, next)
}

func TestScheduler_ResetReplaysIdentically(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().AddEdge("a", "b").Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())
	ctx := context.Background()

	run := func() []string {
		var order []string
		var thread types.Thread
		thread = say(thread, "user", "task")
		for {
			next, err := s.SelectNext(ctx, thread)
			require.NoError(t, err)
			order = append(order, next...)
			if len(next) == 1 && next[0] == StopNode {
				return order
			}
			for _, name := range next {
				thread = say(thread, name, name+" speaks")
			}
		}
	}

	first := run()
	s.Reset()
	second := run()
	assert.Equal(t, first, second)
}

func TestScheduler_SnapshotDuringSelection(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().AddEdge("a", "b").Build()
	require.NoError(t, err)
	s := NewScheduler(g, zap.NewNop())
	ctx := context.Background()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = s.Snapshot()
		}
	}()

	for i := 0; i < 200; i++ {
		var thread types.Thread
		thread = say(thread, "user", "task")
		_, err := s.SelectNext(ctx, thread)
		require.NoError(t, err)

		thread = say(thread, "a", "a speaks")
		_, err = s.SelectNext(ctx, thread)
		require.NoError(t, err)

		s.Reset()
	}
	close(stop)
	wg.Wait()
}
