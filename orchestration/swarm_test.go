package orchestration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupkit-ai/groupkit/termination"
	"github.com/groupkit-ai/groupkit/types"
)

func handoffCapable(name string) *scriptedAgent {
	return &scriptedAgent{
		name:     name,
		produces: []types.Kind{types.KindText, types.KindHandoff},
	}
}

func TestNewSwarm_FirstAgentMustHandoff(t *testing.T) {
	t.Parallel()

	_, err := NewSwarm([]types.Agent{textAgent("plain"), handoffCapable("triage")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handoff")

	_, err = NewSwarm(nil)
	assert.Error(t, err)

	_, err = NewSwarm([]types.Agent{handoffCapable("triage"), textAgent("plain")})
	assert.NoError(t, err)
}

func TestSwarm_FloorFollowsHandoffs(t *testing.T) {
	t.Parallel()

	s, err := NewSwarm([]types.Agent{handoffCapable("triage"), textAgent("billing"), textAgent("tech")})
	require.NoError(t, err)

	// Empty thread: the first participant opens.
	speakers, err := s.SelectNext(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"triage"}, speakers)

	// Plain text keeps the floor.
	thread := types.Thread{types.NewTextMessage("triage", "looking into it")}
	speakers, err = s.SelectNext(context.Background(), thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"triage"}, speakers)

	// Handoff transfers it.
	thread = append(thread, types.NewHandoffMessage("triage", "billing", ""))
	speakers, err = s.SelectNext(context.Background(), thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing"}, speakers)

	// The new holder keeps it on subsequent turns.
	thread = append(thread, types.NewTextMessage("billing", "refund issued"))
	speakers, err = s.SelectNext(context.Background(), thread)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing"}, speakers)
}

func TestSwarm_HandoffOutsideGroupYieldsNoSpeaker(t *testing.T) {
	t.Parallel()

	s, err := NewSwarm([]types.Agent{handoffCapable("triage"), textAgent("billing")})
	require.NoError(t, err)

	thread := types.Thread{types.NewHandoffMessage("triage", "user", "all done")}
	speakers, err := s.SelectNext(context.Background(), thread)
	require.NoError(t, err)
	assert.Empty(t, speakers)
}

func TestSwarm_Reset(t *testing.T) {
	t.Parallel()

	s, err := NewSwarm([]types.Agent{handoffCapable("triage"), textAgent("billing")})
	require.NoError(t, err)

	thread := types.Thread{types.NewHandoffMessage("triage", "billing", "")}
	_, err = s.SelectNext(context.Background(), thread)
	require.NoError(t, err)

	s.Reset()
	speakers, err := s.SelectNext(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"triage"}, speakers)
}

func TestSwarm_EndToEndRun(t *testing.T) {
	t.Parallel()

	triage := handoffCapable("triage")
	triage.script = []types.Message{
		types.NewHandoffMessage("triage", "billing", "customer asks about a refund"),
	}
	billing := textAgent("billing", "refund approved, done")

	s, err := NewSwarm([]types.Agent{triage, billing})
	require.NoError(t, err)

	m, err := NewManager([]types.Agent{triage, billing}, s,
		WithTermination(termination.NewTextMention("done")),
	)
	require.NoError(t, err)
	defer m.Close()

	result, err := m.Run(context.Background(), "I want a refund")
	require.NoError(t, err)

	require.Len(t, result.Messages, 3)
	assert.Equal(t, types.KindHandoff, result.Messages[1].Kind)
	assert.Equal(t, "billing", result.Messages[2].Source)
	assert.Contains(t, result.StopReason, "done")
}
