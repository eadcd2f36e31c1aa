package graph

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/groupkit-ai/groupkit/types"
)

// Scheduler consumes a validated ExecutionGraph plus the message history and
// produces the next runnable participant set. It owns one executionState
// exclusively; callers must not share a Scheduler between concurrently
// running managers. State commits swap an immutable value under mu, so
// Snapshot may run concurrently with a selection.
type Scheduler struct {
	graph  *ExecutionGraph
	mu     sync.Mutex
	state  *executionState
	logger *zap.Logger
}

// NewScheduler creates a scheduler over the given validated graph.
func NewScheduler(g *ExecutionGraph, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		graph:  g,
		state:  newExecutionState(),
		logger: logger.With(zap.String("component", "graph_scheduler")),
	}
}

// Graph returns the underlying execution graph.
func (s *Scheduler) Graph() *ExecutionGraph {
	return s.graph
}

// SelectNext returns the next runnable participant set given the thread.
//
// An empty thread, or a thread whose last message did not come from a graph
// participant (the seeded task), starts the run at the configured start
// nodes. Otherwise the last message must come from a currently active node;
// anything else is a fatal selection error ("agent not active"), as is a
// conditional fan-out none of whose conditions match the message
// ("condition not met").
//
// An empty, nil-error result means nothing became runnable yet and the
// caller should keep waiting for in-flight participants. When nothing is
// pending, nothing is active, and nothing was selected, SelectNext returns
// the synthetic StopNode.
//
// State is mutated copy-on-success: cancellation or an error leaves the
// scheduler exactly as it was before the call.
func (s *Scheduler) SelectNext(ctx context.Context, thread types.Thread) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cur := s.current()
	last, ok := thread.Last()
	if !ok {
		return s.start()
	}
	if _, isNode := s.graph.nodes[last.Source]; !isNode {
		if cur.pristine() {
			return s.start()
		}
		return nil, types.NewErrorf(types.ErrAgentNotActive,
			"message from %q but it is not a graph participant", last.Source)
	}

	st := cur.clone()
	source := last.Source

	if st.active[source] == 0 {
		return nil, types.NewErrorf(types.ErrAgentNotActive,
			"agent %s is not active; its message arrived out of order", source)
	}
	st.deactivate(source)

	node := s.graph.nodes[source]
	if len(node.Edges) > 0 {
		if node.Edges[0].Conditional() {
			if err := st.fireConditional(s.graph, node, last.Render()); err != nil {
				return nil, err
			}
		} else {
			for _, e := range node.Edges {
				st.addPending(e.Target, source)
			}
		}
	}

	selected := st.collectReady(s.graph)

	if len(selected) == 0 && st.pendingCount() == 0 && len(st.active) == 0 {
		s.commit(st)
		s.logger.Debug("no runnable participants remain, selecting stop node")
		return []string{StopNode}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.commit(st)

	s.logger.Debug("selected next speakers",
		zap.String("source", source),
		zap.Strings("selected", selected),
	)
	return selected, nil
}

// current returns the committed state. Committed states are never mutated;
// selections work on a clone and commit it back.
func (s *Scheduler) current() *executionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) commit(st *executionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// start activates the run entry points.
func (s *Scheduler) start() ([]string, error) {
	st := s.current().clone()
	selected := append([]string(nil), s.graph.StartNodes()...)
	for _, name := range selected {
		st.markActive(name)
		for _, e := range s.graph.nodes[name].Edges {
			st.registerSlot(e.Target)
		}
	}
	s.commit(st)
	s.logger.Debug("starting run", zap.Strings("start_nodes", selected))
	return selected, nil
}

// fireConditional routes the message down the first matching conditional
// edge and speculatively prunes the sibling branches that can no longer be
// reached from this source.
func (st *executionState) fireConditional(g *ExecutionGraph, node *Node, rendered string) error {
	matched := -1
	for i, e := range node.Edges {
		if e.Matches(rendered) {
			matched = i
			break
		}
	}
	if matched < 0 {
		return types.NewErrorf(types.ErrConditionNotMet,
			"condition not met for node %s", node.Name)
	}

	st.addPending(node.Edges[matched].Target, node.Name)

	for i, e := range node.Edges {
		if i == matched || e.Target == node.Edges[matched].Target {
			continue
		}
		st.removePendingParent(e.Target, node.Name)
		if len(st.pending[e.Target]) == 0 && !st.hasLiveParent(g, e.Target) {
			delete(st.pending, e.Target)
		}
	}
	return nil
}

// hasLiveParent reports whether any parent of name is still active and could
// therefore fire into it later.
func (st *executionState) hasLiveParent(g *ExecutionGraph, name string) bool {
	for _, p := range g.Parents(name) {
		if st.active[p] > 0 {
			return true
		}
	}
	return false
}

// collectReady tests readiness of every node with pending parents, consumes
// the slots of the selected nodes, pre-registers their children, and marks
// them active. Results are sorted for deterministic replay.
func (st *executionState) collectReady(g *ExecutionGraph) []string {
	var selected []string
	for name, parents := range st.pending {
		if len(parents) == 0 {
			continue
		}
		node := g.nodes[name]
		switch node.Activation {
		case ActivationAny:
			selected = append(selected, name)
		default: // ActivationAll
			if containsAll(parents, g.Parents(name)) {
				selected = append(selected, name)
			}
		}
	}
	sort.Strings(selected)

	for _, name := range selected {
		node := g.nodes[name]
		if node.Activation == ActivationAny {
			// Trim the fired parents but keep the slot registered for
			// later activations.
			st.pending[name] = nil
		} else {
			delete(st.pending, name)
		}
		for _, e := range node.Edges {
			st.registerSlot(e.Target)
		}
		st.markActive(name)
	}
	return selected
}

// containsAll reports whether have covers every name in want.
func containsAll(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

// Reset restores the pristine execution state so the scheduler can replay an
// identical run.
func (s *Scheduler) Reset() {
	s.commit(newExecutionState())
}

// Snapshot captures the current execution state for checkpointing.
func (s *Scheduler) Snapshot() StateSnapshot {
	return s.current().snapshot()
}

// Restore replaces the execution state with a previously captured snapshot.
func (s *Scheduler) Restore(snap StateSnapshot) {
	s.commit(stateFromSnapshot(snap))
}
