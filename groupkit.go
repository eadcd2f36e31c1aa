// Package groupkit provides a top-level convenience entry point for running
// multi-agent group conversations with minimal boilerplate.
//
// Usage:
//
//	import "github.com/groupkit-ai/groupkit"
//
//	strategy, _ := groupkit.NewRoundRobin("writer", "critic")
//	mgr, _ := groupkit.NewManager(agents, strategy,
//	    groupkit.WithTermination(groupkit.NewMaxMessages(10)))
//	result, err := mgr.Run(ctx, "Draft a release note")
//
// This is a thin wrapper around the orchestration, graph and termination
// packages; use it when you prefer the shorter import path.
package groupkit

import (
	"github.com/groupkit-ai/groupkit/graph"
	"github.com/groupkit-ai/groupkit/orchestration"
	"github.com/groupkit-ai/groupkit/termination"
	"github.com/groupkit-ai/groupkit/types"
)

// Agent is the participant contract.
type Agent = types.Agent

// Message is one entry of a conversation thread.
type Message = types.Message

// Manager runs one group conversation at a time.
type Manager = orchestration.Manager

// Option configures the manager created by [NewManager].
type Option = orchestration.Option

// Strategy selects the next speaker(s) for each turn.
type Strategy = orchestration.Strategy

// TaskResult is the outcome of a finished run.
type TaskResult = orchestration.TaskResult

// Event is one element of a streaming run.
type Event = orchestration.Event

// NewManager creates a group manager over the given agents and strategy.
func NewManager(agents []Agent, strategy Strategy, opts ...Option) (*Manager, error) {
	return orchestration.NewManager(agents, strategy, opts...)
}

// Re-export manager options so callers never need to import orchestration/.

// WithTermination sets the run's termination condition.
var WithTermination = orchestration.WithTermination

// WithLogger sets a custom zap logger.
var WithLogger = orchestration.WithLogger

// WithResponseTimeout bounds the wait for each participant reply.
var WithResponseTimeout = orchestration.WithResponseTimeout

// WithMetricsRegistry enables Prometheus metrics on the given registry.
var WithMetricsRegistry = orchestration.WithMetricsRegistry

// WithTokenCounter replaces the counter estimating usage of unmetered
// messages. The default counts with the tokenizer package.
var WithTokenCounter = orchestration.WithTokenCounter

// Strategy constructors.

// NewRoundRobin rotates through participants in order.
var NewRoundRobin = orchestration.NewRoundRobin

// NewSwarm follows handoff messages between participants.
var NewSwarm = orchestration.NewSwarm

// NewVoting runs propose/vote/announce rounds.
var NewVoting = orchestration.NewVoting

// NewGraphBuilder starts a directed execution graph definition; pair the
// built graph with [graph.NewScheduler] as the manager's strategy.
var NewGraphBuilder = graph.NewBuilder

// Termination condition constructors.

// NewMaxMessages stops after n messages.
var NewMaxMessages = termination.NewMaxMessages

// NewTextMention stops when a substring appears.
var NewTextMention = termination.NewTextMention

// And stops when all child conditions have fired.
var And = termination.And

// Or stops when any child condition fires.
var Or = termination.Or
