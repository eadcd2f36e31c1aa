// Copyright (c) GroupKit Authors.
// Licensed under the MIT License.

/*
Package orchestration provides the group control loop: a Manager that owns
the message thread, asks a speaker-selection Strategy for the next
speaker(s), dispatches turn requests over the runtime fabric, applies the
termination condition, and repeats until the run stops.

The Manager is the single writer of the thread. Strategies read the thread
and return participant names; graph.Scheduler satisfies the Strategy
contract directly, and the package ships RoundRobin, Selector (the seam for
a model-assisted picker), Swarm (handoff-driven), Magentic (ledger-based
planning with stall detection), and Voting (negotiated consensus)
alternatives.

Runs are exposed two ways: Run is a blocking façade returning a TaskResult;
RunStream yields every intermediate message before the final result. A
Snapshot of a live run captures the message thread, the scheduler state, and
the termination progress so an identical run can be resumed elsewhere.
*/
package orchestration
