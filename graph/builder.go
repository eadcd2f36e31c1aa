package graph

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/groupkit-ai/groupkit/types"
)

// Builder provides a fluent API for constructing execution graphs.
type Builder struct {
	nodes        map[string]*Node
	order        []string
	defaultStart string
	logger       *zap.Logger
}

// NewBuilder creates a new graph builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes:  make(map[string]*Node),
		logger: zap.NewNop(),
	}
}

// WithLogger sets a custom logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger.With(zap.String("component", "graph_builder"))
	}
	return b
}

// AddNode adds a participant node with ActivationAll join semantics.
func (b *Builder) AddNode(name string) *Builder {
	return b.AddNodeWithActivation(name, ActivationAll)
}

// AddNodeWithActivation adds a participant node with the given activation
// policy. Adding a name twice overwrites the policy but keeps its edges.
func (b *Builder) AddNodeWithActivation(name string, activation ActivationPolicy) *Builder {
	if node, ok := b.nodes[name]; ok {
		node.Activation = activation
		return b
	}
	b.nodes[name] = &Node{Name: name, Activation: activation}
	b.order = append(b.order, name)
	return b
}

// AddEdge adds an unconditional transition from one node to another. Nodes
// are created implicitly when missing.
func (b *Builder) AddEdge(from, to string) *Builder {
	return b.addEdge(from, to, "")
}

// AddConditionalEdge adds a transition taken only when condition appears as
// a substring in the rendered text of the triggering message.
func (b *Builder) AddConditionalEdge(from, to, condition string) *Builder {
	return b.addEdge(from, to, condition)
}

func (b *Builder) addEdge(from, to, condition string) *Builder {
	if _, ok := b.nodes[from]; !ok {
		b.AddNode(from)
	}
	if _, ok := b.nodes[to]; !ok {
		b.AddNode(to)
	}
	b.nodes[from].Edges = append(b.nodes[from].Edges, Edge{Target: to, Condition: condition})
	return b
}

// SetStart sets the explicit default start node. Without it the start set is
// computed as the nodes without parents.
func (b *Builder) SetStart(name string) *Builder {
	b.defaultStart = name
	return b
}

// Build validates the graph and returns the immutable ExecutionGraph.
// Validation failures return a types.Error with code ErrGraphValidation.
func (b *Builder) Build() (*ExecutionGraph, error) {
	g := &ExecutionGraph{
		nodes:        make(map[string]*Node, len(b.nodes)),
		defaultStart: b.defaultStart,
	}
	for name, node := range b.nodes {
		edges := make([]Edge, len(node.Edges))
		copy(edges, node.Edges)
		g.nodes[name] = &Node{Name: name, Activation: node.Activation, Edges: edges}
	}

	if err := g.validate(); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}

	g.computeViews()

	b.logger.Info("execution graph built",
		zap.Int("nodes", len(g.nodes)),
		zap.Strings("start_nodes", g.startNodes),
		zap.Strings("leaf_nodes", g.leafNodes),
		zap.Bool("has_cycles", g.hasCycles),
	)

	return g, nil
}

func validationError(format string, args ...any) error {
	return types.NewErrorf(types.ErrGraphValidation, format, args...)
}
