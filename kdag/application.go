package kdag

import (
	"errors"
	"fmt"
	"slices"

	"github.com/fxamacker/cbor/v2"
)

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Application is the value handed to the execution engine: the application
// name, the root chain index, the chains, and for every chain the indices of
// its upstream chains. Edges is dense: it has one entry per chain, empty for
// chains that are not merge points.
//
// It encodes as the CBOR array [name, root, nodes, edges].
type Application struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Root  int
	Nodes []Chain
	Edges [][]int
}

// NewApplication validates g as a complete pipeline and flattens it.
func NewApplication(name string, g *Graph) (*Application, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: application name cannot be empty", ErrInvalidTopology)
	}
	if err := g.ValidateComplete(); err != nil {
		return nil, err
	}

	c := g.Clone()
	edges := make([][]int, len(c.nodes))
	for idx := range c.nodes {
		edges[idx] = c.edges[idx]
		if edges[idx] == nil {
			edges[idx] = []int{}
		}
	}
	return &Application{
		Name:  name,
		Root:  c.root,
		Nodes: c.nodes,
		Edges: edges,
	}, nil
}

// Graph rebuilds the arena graph described by a.
func (a *Application) Graph() (*Graph, error) {
	if len(a.Edges) != len(a.Nodes) {
		return nil, fmt.Errorf("%w: %d edge lists for %d chains", ErrInvalidEdge, len(a.Edges), len(a.Nodes))
	}
	g := &Graph{
		nodes: make([]Chain, len(a.Nodes)),
		edges: map[int][]int{},
		root:  a.Root,
	}
	for i, c := range a.Nodes {
		g.nodes[i] = slices.Clone(c)
	}
	for i, ups := range a.Edges {
		if len(ups) > 0 {
			g.edges[i] = slices.Clone(ups)
		}
	}
	return g, nil
}

// Validate checks that a describes a complete, well-formed pipeline.
func (a *Application) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: application name cannot be empty", ErrInvalidTopology)
	}
	g, err := a.Graph()
	if err != nil {
		return err
	}
	return g.ValidateComplete()
}

// Stages calls fn for every stage, chain by chain in index order.
func (a *Application) Stages(fn func(chain, pos int, s Stage) error) error {
	var errs []error
	for ci, c := range a.Nodes {
		for pos, s := range c {
			if err := fn(ci, pos, s); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// MarshalBinary encodes a with deterministic CBOR.
func (a *Application) MarshalBinary() ([]byte, error) {
	return encMode.Marshal(a)
}

// UnmarshalBinary decodes and validates an application written by MarshalBinary.
func (a *Application) UnmarshalBinary(data []byte) error {
	var decoded Application
	if err := cbor.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("failed to decode application: %w", err)
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*a = decoded
	return nil
}
