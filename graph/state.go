package graph

import "sort"

// StateSnapshot is the serializable form of the scheduler's execution state.
// Round-tripping it through JSON and restoring reproduces identical
// scheduling behavior.
type StateSnapshot struct {
	ActiveNodes      []string            `json:"active_nodes"`
	ActiveNodeCount  map[string]int      `json:"active_node_count"`
	PendingExecution map[string][]string `json:"pending_execution"`
}

// executionState is the scheduler-private mutable state. It is owned by
// exactly one Scheduler and mutated only inside SelectNext; the scheduler
// mutates a clone and commits it on success so a cancelled or failed
// selection leaves the previous state untouched.
type executionState struct {
	// active maps a node name to its in-flight activation count. A node is
	// active while its count is positive; counts above one represent
	// multiple concurrent activations of an ActivationAny node.
	active map[string]int
	// pending maps a node name to the parents that have fired for it but
	// whose own turn has not started. A nil/empty slot means the node is
	// registered and waiting for its first parent.
	pending map[string][]string
}

func newExecutionState() *executionState {
	return &executionState{
		active:  make(map[string]int),
		pending: make(map[string][]string),
	}
}

func (s *executionState) clone() *executionState {
	out := newExecutionState()
	for k, v := range s.active {
		out.active[k] = v
	}
	for k, v := range s.pending {
		out.pending[k] = append([]string(nil), v...)
	}
	return out
}

// pristine reports whether no node is active or pending, i.e. the state of a
// run that has not started.
func (s *executionState) pristine() bool {
	return len(s.active) == 0 && s.pendingCount() == 0
}

// pendingCount counts nodes with at least one fired parent. Empty slots are
// registration only and do not keep a run alive.
func (s *executionState) pendingCount() int {
	n := 0
	for _, parents := range s.pending {
		if len(parents) > 0 {
			n++
		}
	}
	return n
}

func (s *executionState) markActive(name string) {
	s.active[name]++
}

// deactivate decrements the activation count, removing the node from the
// active set when it reaches zero.
func (s *executionState) deactivate(name string) {
	s.active[name]--
	if s.active[name] <= 0 {
		delete(s.active, name)
	}
}

// addPending records that parent has fired for name.
func (s *executionState) addPending(name, parent string) {
	s.pending[name] = append(s.pending[name], parent)
}

// registerSlot ensures name has a pending slot so later parent firings have
// somewhere to land.
func (s *executionState) registerSlot(name string) {
	if _, ok := s.pending[name]; !ok {
		s.pending[name] = nil
	}
}

// removePendingParent removes one occurrence of parent from name's pending
// slot.
func (s *executionState) removePendingParent(name, parent string) {
	parents := s.pending[name]
	for i, p := range parents {
		if p == parent {
			s.pending[name] = append(parents[:i], parents[i+1:]...)
			return
		}
	}
}

func (s *executionState) snapshot() StateSnapshot {
	snap := StateSnapshot{
		ActiveNodeCount:  make(map[string]int, len(s.active)),
		PendingExecution: make(map[string][]string, len(s.pending)),
	}
	for k, v := range s.active {
		snap.ActiveNodes = append(snap.ActiveNodes, k)
		snap.ActiveNodeCount[k] = v
	}
	sort.Strings(snap.ActiveNodes)
	for k, v := range s.pending {
		snap.PendingExecution[k] = append([]string(nil), v...)
	}
	return snap
}

func stateFromSnapshot(snap StateSnapshot) *executionState {
	s := newExecutionState()
	for k, v := range snap.ActiveNodeCount {
		if v > 0 {
			s.active[k] = v
		}
	}
	for k, v := range snap.PendingExecution {
		s.pending[k] = append([]string(nil), v...)
	}
	return s
}
