package graph

import (
	"sort"
	"strings"
)

// ActivationPolicy governs when a node with multiple parents becomes
// runnable.
type ActivationPolicy string

const (
	// ActivationAll fires only when every parent has fired (join semantics).
	ActivationAll ActivationPolicy = "all"
	// ActivationAny fires as soon as any parent has fired.
	ActivationAny ActivationPolicy = "any"
)

// StopNode is the synthetic terminal sentinel shared by every graph; it is
// not a node of the graph itself. The scheduler returns it when no node is
// pending, none is active, and the current selection is empty; the
// orchestration manager treats it as natural completion.
const StopNode = "_stop"

// Edge is a directed transition to Target. An empty Condition makes the edge
// unconditional; a non-empty Condition is matched as a substring against the
// rendered text of the triggering message.
type Edge struct {
	Target    string `json:"target"`
	Condition string `json:"condition,omitempty"`
}

// Conditional reports whether the edge carries a transition condition.
func (e Edge) Conditional() bool {
	return e.Condition != ""
}

// Matches reports whether the edge condition matches the rendered message
// text. Unconditional edges match everything. Matching is a plain substring
// test; see Message.Render for the caveats.
func (e Edge) Matches(rendered string) bool {
	if !e.Conditional() {
		return true
	}
	return strings.Contains(rendered, e.Condition)
}

// Node is one participant in the execution graph.
type Node struct {
	Name       string           `json:"name"`
	Activation ActivationPolicy `json:"activation"`
	Edges      []Edge           `json:"edges,omitempty"`
}

// ExecutionGraph is the immutable-after-validation participant topology.
// Build it through Builder; a graph obtained any other way is unvalidated
// and must not be handed to a Scheduler.
type ExecutionGraph struct {
	nodes        map[string]*Node
	defaultStart string

	// Memoized views, computed during Build.
	parents    map[string][]string
	startNodes []string
	leafNodes  []string
	hasCycles  bool
}

// Nodes returns the node set keyed by name. Callers must not mutate it.
func (g *ExecutionGraph) Nodes() map[string]*Node {
	return g.nodes
}

// Node returns the node with the given name.
func (g *ExecutionGraph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Parents returns the names of nodes with an edge into name.
func (g *ExecutionGraph) Parents(name string) []string {
	return g.parents[name]
}

// StartNodes returns the run entry points: the explicit default start when
// configured, otherwise every node without parents.
func (g *ExecutionGraph) StartNodes() []string {
	return g.startNodes
}

// LeafNodes returns the nodes without outgoing edges.
func (g *ExecutionGraph) LeafNodes() []string {
	return g.leafNodes
}

// HasCycles reports whether the graph contains at least one cycle. Cached at
// Build time; a validated graph only contains cycles with conditional exits.
func (g *ExecutionGraph) HasCycles() bool {
	return g.hasCycles
}

// computeViews fills the memoized parent/start/leaf views. Called once by
// Build after validation succeeds.
func (g *ExecutionGraph) computeViews() {
	g.parents = make(map[string][]string, len(g.nodes))
	for name, node := range g.nodes {
		for _, e := range node.Edges {
			g.parents[e.Target] = append(g.parents[e.Target], name)
		}
	}
	for _, ps := range g.parents {
		sort.Strings(ps)
	}

	if g.defaultStart != "" {
		g.startNodes = []string{g.defaultStart}
	} else {
		for name := range g.nodes {
			if len(g.parents[name]) == 0 {
				g.startNodes = append(g.startNodes, name)
			}
		}
		sort.Strings(g.startNodes)
	}

	for name, node := range g.nodes {
		if len(node.Edges) == 0 {
			g.leafNodes = append(g.leafNodes, name)
		}
	}
	sort.Strings(g.leafNodes)
}
