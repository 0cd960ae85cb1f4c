package kdag

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Chain is an ordered sequence of stages sharing one control path. The first
// stage is always a source or a merge point.
type Chain []Stage

// Head returns the first stage of the chain.
func (c Chain) Head() (Stage, bool) {
	if len(c) == 0 {
		return Stage{}, false
	}
	return c[0], true
}

// Last returns the final stage of the chain.
func (c Chain) Last() (Stage, bool) {
	if len(c) == 0 {
		return Stage{}, false
	}
	return c[len(c)-1], true
}

// Terminated reports whether the chain ends in a sink.
func (c Chain) Terminated() bool {
	last, ok := c.Last()
	return ok && last.Terminal()
}

func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, s := range c {
		parts[i] = s.String()
	}
	return strings.Join(parts, " -> ")
}

// Graph is the arena representation of a topology: chains addressed by dense
// integer index, and for every merge chain the indices of its upstream chains.
//
// Graph is mutable and NOT safe for concurrent use. Callers that need
// copy-on-write semantics Clone before mutating.
type Graph struct {
	nodes []Chain
	edges map[int][]int
	root  int
}

// NewGraph returns a graph with a single chain headed by source.
func NewGraph(source Stage) (*Graph, error) {
	if source.Kind() != StageSource {
		return nil, fmt.Errorf("%w: graph must start with a source, got %s", ErrInvalidTopology, source.Kind())
	}
	if err := source.validate(); err != nil {
		return nil, err
	}
	return &Graph{
		nodes: []Chain{{source}},
		edges: map[int][]int{},
		root:  0,
	}, nil
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	nodes := make([]Chain, len(g.nodes))
	for i, c := range g.nodes {
		nodes[i] = slices.Clone(c)
	}
	edges := make(map[int][]int, len(g.edges))
	for k, v := range g.edges {
		edges[k] = slices.Clone(v)
	}
	return &Graph{nodes: nodes, edges: edges, root: g.root}
}

// Root returns the index of the chain currently being extended.
func (g *Graph) Root() int { return g.root }

// Len returns the number of chains.
func (g *Graph) Len() int { return len(g.nodes) }

// Chain returns a copy of the chain at idx.
func (g *Graph) Chain(idx int) Chain {
	return slices.Clone(g.nodes[idx])
}

// Nodes returns a copy of all chains.
func (g *Graph) Nodes() []Chain {
	return g.Clone().nodes
}

// Edges returns a copy of the upstream mapping. Only merge chains have entries.
func (g *Graph) Edges() map[int][]int {
	return g.Clone().edges
}

// Upstreams returns the upstream chain indices of idx.
func (g *Graph) Upstreams(idx int) []int {
	return slices.Clone(g.edges[idx])
}

// AddStage appends s to the root chain.
func (g *Graph) AddStage(s Stage) error {
	if s.Head() {
		return fmt.Errorf("%w: %s stage can only start a chain", ErrInvalidTopology, s.Kind())
	}
	if err := s.validate(); err != nil {
		return err
	}
	if g.nodes[g.root].Terminated() {
		return fmt.Errorf("%w: cannot add %s after %s", ErrChainTerminated, s, g.nodes[g.root][len(g.nodes[g.root])-1])
	}
	if len(g.nodes[g.root]) >= MaxChainLength {
		return fmt.Errorf("%w: chain %d exceeds maximum length %d", ErrInvalidTopology, g.root, MaxChainLength)
	}
	g.nodes[g.root] = append(g.nodes[g.root], s)
	return nil
}

// Merge joins other into g. other's chains are appended after g's, with every
// copied edge shifted by the number of chains g had before the merge. A new
// merge chain becomes the root, with upstreams [g.Root(), other.Root()+offset].
//
// Neither input chain is extended, so either may already end in a sink.
// Merging g into itself merges a copy.
func (g *Graph) Merge(other *Graph) error {
	if other == nil {
		return fmt.Errorf("%w: cannot merge a nil graph", ErrInvalidTopology)
	}
	if other == g {
		other = g.Clone()
	}
	if len(g.nodes)+len(other.nodes)+1 > MaxNodesPerGraph {
		return fmt.Errorf("%w: merged graph exceeds maximum %d chains", ErrInvalidTopology, MaxNodesPerGraph)
	}

	offset := len(g.nodes)
	for _, c := range other.nodes {
		g.nodes = append(g.nodes, slices.Clone(c))
	}
	for idx, ups := range other.edges {
		shifted := make([]int, len(ups))
		for i, u := range ups {
			shifted[i] = u + offset
		}
		g.edges[idx+offset] = shifted
	}

	merge := len(g.nodes)
	g.nodes = append(g.nodes, Chain{MergeStage()})
	g.edges[merge] = []int{g.root, other.root + offset}
	g.root = merge
	return nil
}

// Equal reports whether g and o are structurally identical.
func (g *Graph) Equal(o *Graph) bool {
	return g.root == o.root &&
		slices.EqualFunc(g.nodes, o.nodes, func(a, b Chain) bool {
			return slices.EqualFunc(a, b, Stage.Equal)
		}) &&
		maps.EqualFunc(g.edges, o.edges, slices.Equal[[]int])
}

func (g *Graph) String() string {
	var sb strings.Builder
	for i, c := range g.nodes {
		marker := " "
		if i == g.root {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s%d: %s", marker, i, c)
		if ups, ok := g.edges[i]; ok {
			fmt.Fprintf(&sb, " <- %v", ups)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Sentinel errors for common failure cases.
var (
	ErrInvalidTopology    = errors.New("invalid topology")
	ErrUnknownStage       = errors.New("unknown stage kind")
	ErrChainTerminated    = errors.New("chain already terminated by a sink")
	ErrInvalidEdge        = errors.New("invalid edge")
	ErrCycleDetected      = errors.New("cycle detected in topology")
	ErrOrphanedNodes      = errors.New("orphaned chains found")
	ErrIncompletePipeline = errors.New("pipeline is not terminated by a sink")
)
