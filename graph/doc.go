// Copyright (c) GroupKit Authors.
// Licensed under the MIT License.

/*
Package graph provides the directed execution graph that drives graph-based
speaker selection.

An ExecutionGraph maps participant names to nodes. Edges carry an optional
condition string matched as a substring against the rendered text of the
triggering message; a node's outgoing edges are either all conditional or all
unconditional. Nodes declare an activation policy: ActivationAll (join
semantics, fire once every parent has fired) or ActivationAny (fire on the
first parent).

Graphs are built through Builder and validated exactly once at Build time:
non-empty node set, at least one start and one leaf node, no mixed edge
conditionality, and every cycle must contain at least one conditional edge so
it has a structural exit.

Scheduler consumes a validated graph plus the message history and produces
the next runnable participant set, tracking active nodes, in-flight
activation counts, and pending parent sets. When nothing remains runnable it
returns the synthetic StopNode sentinel.
*/
package graph
