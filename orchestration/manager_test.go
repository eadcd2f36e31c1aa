package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/groupkit-ai/groupkit/graph"
	"github.com/groupkit-ai/groupkit/termination"
	"github.com/groupkit-ai/groupkit/types"
)

// scriptedAgent replays a fixed list of messages, one per turn.
type scriptedAgent struct {
	name     string
	script   []types.Message
	turn     int
	produces []types.Kind
	fail     error
}

func (a *scriptedAgent) Name() string        { return a.name }
func (a *scriptedAgent) Description() string { return "scripted test agent" }

func (a *scriptedAgent) OnMessages(_ context.Context, _ []types.Message) (types.Response, error) {
	if a.fail != nil {
		return types.Response{}, a.fail
	}
	if a.turn < len(a.script) {
		msg := a.script[a.turn]
		a.turn++
		return types.Response{Message: msg}, nil
	}
	return types.Response{Message: types.NewTextMessage(a.name, "nothing to add")}, nil
}

func (a *scriptedAgent) ProducedMessageTypes() []types.Kind {
	if len(a.produces) > 0 {
		return a.produces
	}
	return []types.Kind{types.KindText}
}

func textAgent(name string, contents ...string) *scriptedAgent {
	a := &scriptedAgent{name: name}
	for _, c := range contents {
		a.script = append(a.script, types.NewTextMessage(name, c))
	}
	return a
}

func TestNewManager_Validation(t *testing.T) {
	t.Parallel()

	rr, err := NewRoundRobin("a")
	require.NoError(t, err)

	_, err = NewManager(nil, rr)
	assert.Error(t, err)

	_, err = NewManager([]types.Agent{textAgent("a")}, nil)
	assert.Error(t, err)

	_, err = NewManager([]types.Agent{textAgent("a"), textAgent("a")}, rr)
	assert.Error(t, err)
}

func TestManager_RunRoundRobinUntilMaxMessages(t *testing.T) {
	t.Parallel()

	agents := []types.Agent{
		textAgent("writer", "draft one", "draft two"),
		textAgent("critic", "needs work", "better"),
	}
	rr, err := NewRoundRobin("writer", "critic")
	require.NoError(t, err)

	m, err := NewManager(agents, rr,
		WithTermination(termination.NewMaxMessages(4)),
		WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)
	defer m.Close()

	result, err := m.Run(context.Background(), "write a haiku")
	require.NoError(t, err)
	require.NotNil(t, result)

	// Task plus three turns: writer, critic, writer.
	require.Len(t, result.Messages, 4)
	assert.Equal(t, UserSource, result.Messages[0].Source)
	assert.Equal(t, "writer", result.Messages[1].Source)
	assert.Equal(t, "critic", result.Messages[2].Source)
	assert.Equal(t, "writer", result.Messages[3].Source)
	assert.Contains(t, result.StopReason, "4")
	assert.Equal(t, StateTerminated, m.State())
}

func TestManager_RunStreamYieldsEveryMessage(t *testing.T) {
	t.Parallel()

	agents := []types.Agent{textAgent("solo", "one", "two")}
	rr, err := NewRoundRobin("solo")
	require.NoError(t, err)

	m, err := NewManager(agents, rr, WithTermination(termination.NewMaxMessages(3)))
	require.NoError(t, err)
	defer m.Close()

	stream, err := m.RunStream(context.Background(), "task")
	require.NoError(t, err)

	var messages []string
	var result *TaskResult
	for ev := range stream {
		if ev.Message != nil {
			messages = append(messages, ev.Message.Content)
		}
		if ev.Result != nil {
			result = ev.Result
		}
	}

	assert.Equal(t, []string{"task", "one", "two"}, messages)
	require.NotNil(t, result)
	assert.NoError(t, result.Err)
}

func TestManager_RunWhileRunningFails(t *testing.T) {
	t.Parallel()

	agents := []types.Agent{textAgent("solo")}
	rr, err := NewRoundRobin("solo")
	require.NoError(t, err)

	m, err := NewManager(agents, rr, WithTermination(termination.NewMaxMessages(2)))
	require.NoError(t, err)
	defer m.Close()

	stream, err := m.RunStream(context.Background(), "task")
	require.NoError(t, err)

	_, err = m.RunStream(context.Background(), "another task")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRunState))

	for range stream {
	}
}

func TestManager_ParticipantFailureEndsRun(t *testing.T) {
	t.Parallel()

	flaky := &scriptedAgent{name: "flaky", fail: errors.New("model unavailable")}
	rr, err := NewRoundRobin("flaky")
	require.NoError(t, err)

	m, err := NewManager([]types.Agent{flaky}, rr)
	require.NoError(t, err)
	defer m.Close()

	result, err := m.Run(context.Background(), "task")
	require.Error(t, err)
	require.NotNil(t, result)
	assert.True(t, types.IsErrorCode(err, types.ErrDispatch))
	assert.Contains(t, err.Error(), "model unavailable")
}

// stallingAgent blocks its turn until the context is cancelled.
type stallingAgent struct{ name string }

func (a *stallingAgent) Name() string        { return a.name }
func (a *stallingAgent) Description() string { return "stalls forever" }

func (a *stallingAgent) OnMessages(ctx context.Context, _ []types.Message) (types.Response, error) {
	<-ctx.Done()
	return types.Response{}, ctx.Err()
}

func (a *stallingAgent) ProducedMessageTypes() []types.Kind { return []types.Kind{types.KindText} }

func TestManager_ResponseTimeout(t *testing.T) {
	t.Parallel()

	rr, err := NewRoundRobin("slow")
	require.NoError(t, err)

	m, err := NewManager([]types.Agent{&stallingAgent{name: "slow"}}, rr,
		WithResponseTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)
	defer m.Close()

	// Cancel after the run so the stalled agent turn unblocks before Close
	// waits for delivery loops.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := m.Run(ctx, "task")
	require.Error(t, err)
	require.NotNil(t, result)
	assert.True(t, types.IsErrorCode(err, types.ErrDispatch))
	assert.Contains(t, err.Error(), "no participant response")
}

func TestManager_CancelledRun(t *testing.T) {
	t.Parallel()

	agents := []types.Agent{textAgent("solo")}
	rr, err := NewRoundRobin("solo")
	require.NoError(t, err)

	m, err := NewManager(agents, rr) // no termination: runs forever
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result, err := m.Run(ctx, "task")
	require.Error(t, err)
	if result != nil {
		assert.Error(t, result.Err)
	}
}

func TestManager_ResetAllowsIdenticalRerun(t *testing.T) {
	t.Parallel()

	newAgents := func() []types.Agent {
		return []types.Agent{
			textAgent("writer", "draft"),
			textAgent("critic", "review"),
		}
	}
	rr, err := NewRoundRobin("writer", "critic")
	require.NoError(t, err)

	agents := newAgents()
	m, err := NewManager(agents, rr, WithTermination(termination.NewMaxMessages(3)))
	require.NoError(t, err)
	defer m.Close()

	first, err := m.Run(context.Background(), "task")
	require.NoError(t, err)

	require.NoError(t, m.Reset(context.Background()))
	assert.Equal(t, StateIdle, m.State())

	// Rewind the scripts so the rerun sees identical agent behavior.
	for i, a := range agents {
		a.(*scriptedAgent).turn = 0
		_ = i
	}

	second, err := m.Run(context.Background(), "task")
	require.NoError(t, err)

	require.Len(t, second.Messages, len(first.Messages))
	for i := range first.Messages {
		assert.Equal(t, first.Messages[i].Source, second.Messages[i].Source)
		assert.Equal(t, first.Messages[i].Content, second.Messages[i].Content)
	}
	assert.Equal(t, first.StopReason, second.StopReason)
}

func TestManager_ResetIsIdempotent(t *testing.T) {
	t.Parallel()

	rr, err := NewRoundRobin("solo")
	require.NoError(t, err)
	m, err := NewManager([]types.Agent{textAgent("solo")}, rr)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Reset(context.Background()))
	require.NoError(t, m.Reset(context.Background()))
	assert.Equal(t, StateIdle, m.State())
}

func TestManager_GraphSchedulerCompletesNaturally(t *testing.T) {
	t.Parallel()

	g, err := graph.NewBuilder().
		AddEdge("a", "b").
		Build()
	require.NoError(t, err)
	scheduler := graph.NewScheduler(g, zap.NewNop())

	agents := []types.Agent{
		textAgent("a", "a says hi"),
		textAgent("b", "b says bye"),
	}
	m, err := NewManager(agents, scheduler)
	require.NoError(t, err)
	defer m.Close()

	result, err := m.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, StopReasonCompleted, result.StopReason)

	var sources []string
	for _, msg := range result.Messages {
		sources = append(sources, msg.Source)
	}
	assert.Equal(t, []string{UserSource, "a", "b"}, sources)
}

func TestManager_GraphFanOutJoin(t *testing.T) {
	t.Parallel()

	g, err := graph.NewBuilder().
		AddNodeWithActivation("join", graph.ActivationAll).
		AddEdge("lead", "left").
		AddEdge("lead", "right").
		AddEdge("left", "join").
		AddEdge("right", "join").
		Build()
	require.NoError(t, err)
	scheduler := graph.NewScheduler(g, zap.NewNop())

	agents := []types.Agent{
		textAgent("lead", "fan out"),
		textAgent("left", "left result"),
		textAgent("right", "right result"),
		textAgent("join", "combined"),
	}
	m, err := NewManager(agents, scheduler)
	require.NoError(t, err)
	defer m.Close()

	result, err := m.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, StopReasonCompleted, result.StopReason)

	// join speaks exactly once, and only after both branches.
	joinIdx, leftIdx, rightIdx := -1, -1, -1
	for i, msg := range result.Messages {
		switch msg.Source {
		case "join":
			require.Equal(t, -1, joinIdx, "join must speak once")
			joinIdx = i
		case "left":
			leftIdx = i
		case "right":
			rightIdx = i
		}
	}
	require.NotEqual(t, -1, joinIdx)
	assert.Greater(t, joinIdx, leftIdx)
	assert.Greater(t, joinIdx, rightIdx)
}

func TestManager_MetricsRegistryOption(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	rr, err := NewRoundRobin("solo")
	require.NoError(t, err)

	m, err := NewManager([]types.Agent{textAgent("solo", "hi")}, rr,
		WithTermination(termination.NewMaxMessages(2)),
		WithMetricsRegistry(reg),
	)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Run(context.Background(), "task")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["groupkit_runs_total"])
	assert.True(t, names["groupkit_turns_total"])
}

// fixedCounter reports the same count for every text.
type fixedCounter struct{ n int }

func (c fixedCounter) CountTokens(string) int { return c.n }

func TestManager_ThreadReadableDuringRun(t *testing.T) {
	t.Parallel()

	rr, err := NewRoundRobin("writer", "critic")
	require.NoError(t, err)
	m, err := NewManager(
		[]types.Agent{textAgent("writer", "draft"), textAgent("critic", "notes")},
		rr,
		WithTermination(termination.NewMaxMessages(9)),
	)
	require.NoError(t, err)
	defer m.Close()

	events, err := m.RunStream(context.Background(), "start")
	require.NoError(t, err)

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
			if got := m.Thread(); len(got) > 9 {
				t.Errorf("thread grew past the cap: %d messages", len(got))
				return
			}
			_ = m.Snapshot()
		}
	}()

	var result *TaskResult
	for ev := range events {
		if ev.Result != nil {
			result = ev.Result
		}
	}
	close(stop)
	wg.Wait()

	require.NotNil(t, result)
	assert.Len(t, result.Messages, 9)
}

func TestManager_UsageEstimatedForUnmeteredMessages(t *testing.T) {
	t.Parallel()

	metered := types.NewTextMessage("writer", "draft")
	metered.Usage = types.TokenUsage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5}
	writer := &scriptedAgent{name: "writer", script: []types.Message{metered}}

	rr, err := NewRoundRobin("writer", "critic")
	require.NoError(t, err)
	m, err := NewManager(
		[]types.Agent{writer, textAgent("critic", "looks fine")},
		rr,
		WithTermination(termination.NewMaxMessages(3)),
		WithTokenCounter(fixedCounter{n: 4}),
	)
	require.NoError(t, err)
	defer m.Close()

	result, err := m.Run(context.Background(), "task")
	require.NoError(t, err)
	require.Len(t, result.Messages, 3)

	// The task and the critic turn are estimated; the writer's metered
	// turn keeps its provider counts.
	assert.Equal(t, 4, result.Messages[0].Usage.TotalTokens)
	assert.Equal(t, 5, result.Messages[1].Usage.TotalTokens)
	assert.Equal(t, 4, result.Messages[2].Usage.TotalTokens)
	assert.Equal(t, 13, result.Usage.TotalTokens)
	assert.Equal(t, 2, result.Usage.PromptTokens)
	assert.Equal(t, 11, result.Usage.CompletionTokens)
}

func TestManager_DefaultTokenCounter(t *testing.T) {
	t.Parallel()

	rr, err := NewRoundRobin("solo")
	require.NoError(t, err)
	m, err := NewManager([]types.Agent{textAgent("solo", "hi")}, rr)
	require.NoError(t, err)
	defer m.Close()

	assert.NotNil(t, m.counter)
}
