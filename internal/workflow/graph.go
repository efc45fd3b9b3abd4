package workflow

import (
	"context"
	"fmt"
)

// End is the terminal routing marker. A step that routes to End finishes the run.
const End = "__end__"

// Command is the result of one step: the next step to run (or End) and a
// state patch to merge before it runs.
type Command struct {
	GoTo   string
	Update State
}

// NodeFunc is a single step of the graph. It must not mutate the passed state;
// changes are returned in the command's Update and merged by the executor.
type NodeFunc func(ctx context.Context, state State) (*Command, error)

// Node is a named step plus the routing targets it is allowed to return.
type Node struct {
	ID       string
	Function NodeFunc
	// Targets lists the step names this node may route to, End included.
	// An empty list allows any registered node.
	Targets []string
}

// Graph is a compiled, immutable step registry with a fixed entry point and
// the set of step names to interrupt before.
type Graph struct {
	nodes          map[string]*Node
	entryPoint     string
	interruptAhead map[string]bool
}

// GraphBuilder assembles a Graph.
type GraphBuilder struct {
	graph *Graph
	err   error
}

// NewGraphBuilder creates an empty graph builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		graph: &Graph{
			nodes:          make(map[string]*Node),
			interruptAhead: make(map[string]bool),
		},
	}
}

// AddNode registers a step. Targets restrict where the step may route;
// pass End to allow finishing there.
func (b *GraphBuilder) AddNode(id string, fn NodeFunc, targets ...string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if id == "" || id == End {
		b.err = fmt.Errorf("invalid node id %q", id)
		return b
	}
	if _, exists := b.graph.nodes[id]; exists {
		b.err = fmt.Errorf("duplicate node id %q", id)
		return b
	}
	b.graph.nodes[id] = &Node{ID: id, Function: fn, Targets: targets}
	return b
}

// SetEntryPoint sets the step executed first on a fresh thread.
func (b *GraphBuilder) SetEntryPoint(id string) *GraphBuilder {
	if b.err == nil {
		b.graph.entryPoint = id
	}
	return b
}

// InterruptBefore marks step names at which execution must pause for external
// input before the step is invoked.
func (b *GraphBuilder) InterruptBefore(ids ...string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	for _, id := range ids {
		b.graph.interruptAhead[id] = true
	}
	return b
}

// Compile validates the graph and returns it.
func (b *GraphBuilder) Compile() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	g := b.graph
	if g.entryPoint == "" {
		return nil, fmt.Errorf("graph has no entry point")
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("entry point %q is not a registered node", g.entryPoint)
	}
	for id, node := range g.nodes {
		for _, target := range node.Targets {
			if target == End {
				continue
			}
			if _, ok := g.nodes[target]; !ok {
				return nil, fmt.Errorf("node %q routes to unknown node %q", id, target)
			}
		}
	}
	for id := range g.interruptAhead {
		if _, ok := g.nodes[id]; !ok {
			return nil, fmt.Errorf("interrupt-before names unknown node %q", id)
		}
	}
	return g, nil
}

// Node returns the registered node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// EntryPoint returns the id of the first step of a fresh thread.
func (g *Graph) EntryPoint() string {
	return g.entryPoint
}

// InterruptsBefore reports whether execution must pause before the given step.
func (g *Graph) InterruptsBefore(id string) bool {
	return g.interruptAhead[id]
}

// allowsTarget reports whether the node may route to target.
func (n *Node) allowsTarget(target string) bool {
	if len(n.Targets) == 0 {
		return true
	}
	for _, t := range n.Targets {
		if t == target {
			return true
		}
	}
	return false
}
