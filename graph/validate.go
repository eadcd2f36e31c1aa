package graph

import (
	"sort"
	"strings"
)

// validate checks the structural invariants in order: non-empty node set, at
// least one start node, at least one leaf node, no node mixing conditional
// and unconditional outgoing edges, and cycle detection requiring every
// cycle to carry at least one conditional edge. It caches the hasCycles
// result as a side effect. Runs exactly once, from Build.
func (g *ExecutionGraph) validate() error {
	if len(g.nodes) == 0 {
		return validationError("graph has no nodes")
	}

	if g.defaultStart != "" {
		if _, ok := g.nodes[g.defaultStart]; !ok {
			return validationError("default start node does not exist: %s", g.defaultStart)
		}
	}

	for name, node := range g.nodes {
		for _, e := range node.Edges {
			if _, ok := g.nodes[e.Target]; !ok {
				return validationError("node %s has edge to unknown node %s", name, e.Target)
			}
		}
	}

	// Start nodes: the explicit default, or nodes without parents.
	hasParent := make(map[string]bool, len(g.nodes))
	for _, node := range g.nodes {
		for _, e := range node.Edges {
			hasParent[e.Target] = true
		}
	}
	startCount := 0
	if g.defaultStart != "" {
		startCount = 1
	} else {
		for name := range g.nodes {
			if !hasParent[name] {
				startCount++
			}
		}
	}
	if startCount == 0 {
		return validationError("graph has no start node; set an explicit start or leave a node without parents")
	}

	leafCount := 0
	for _, node := range g.nodes {
		if len(node.Edges) == 0 {
			leafCount++
		}
	}
	if leafCount == 0 {
		return validationError("graph has no leaf node")
	}

	for name, node := range g.nodes {
		conditional, unconditional := 0, 0
		for _, e := range node.Edges {
			if e.Conditional() {
				conditional++
			} else {
				unconditional++
			}
		}
		if conditional > 0 && unconditional > 0 {
			return validationError("node %s mixes conditional and unconditional edges", name)
		}
	}

	return g.checkCycles()
}

// checkCycles runs a DFS with an explicit recursion stack. On finding a
// back-edge it reconstructs the edges composing that cycle and requires at
// least one of them to carry a condition, so every cycle has a structural
// exit.
func (g *ExecutionGraph) checkCycles() error {
	const (
		unvisited = iota
		inStack
		done
	)

	state := make(map[string]int, len(g.nodes))
	stack := make([]string, 0, len(g.nodes))

	var visit func(name string) error
	visit = func(name string) error {
		state[name] = inStack
		stack = append(stack, name)

		for _, e := range g.nodes[name].Edges {
			switch state[e.Target] {
			case inStack:
				g.hasCycles = true
				if err := g.checkCycleExit(stack, name, e); err != nil {
					return err
				}
			case unvisited:
				if err := visit(e.Target); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if state[name] == unvisited {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkCycleExit collects the edges of the cycle closed by back-edge
// back (from -> back.Target) using the current recursion stack, and fails
// unless at least one of them is conditional.
func (g *ExecutionGraph) checkCycleExit(stack []string, from string, back Edge) error {
	// Slice the stack from the back-edge target to the current node; those
	// nodes plus the back-edge form the cycle.
	start := -1
	for i, name := range stack {
		if name == back.Target {
			start = i
			break
		}
	}
	if start < 0 {
		// Back-edge target not on the stack; nothing to report here.
		return nil
	}
	cycle := append(append([]string{}, stack[start:]...), back.Target)

	if back.Conditional() {
		return nil
	}
	for i := 0; i < len(cycle)-1; i++ {
		node := g.nodes[cycle[i]]
		for _, e := range node.Edges {
			if e.Target == cycle[i+1] && e.Conditional() {
				return nil
			}
		}
	}
	return validationError("cycle without exit: %s", strings.Join(cycle, " -> "))
}
