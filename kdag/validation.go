package kdag

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// Validation limits to prevent pathological cases
const (
	MaxNodesPerGraph = 10000
	MaxChainLength   = 1000
	// MaxDepth bounds the upstream path length walked by cycle detection. A
	// path never visits a chain twice, so any graph within MaxNodesPerGraph
	// stays within it.
	MaxDepth = MaxNodesPerGraph
)

// Validate checks the structural invariants of g. A graph that is still being
// built (root chain not yet terminated) is structurally valid.
//
// All violations found are returned together; each can be matched with
// errors.Is against the package's sentinel errors.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 {
		return fmt.Errorf("%w: graph has no chains", ErrInvalidTopology)
	}
	if len(g.nodes) > MaxNodesPerGraph {
		return fmt.Errorf("%w: chain count %d exceeds maximum %d",
			ErrInvalidTopology, len(g.nodes), MaxNodesPerGraph)
	}
	if g.root < 0 || g.root >= len(g.nodes) {
		return fmt.Errorf("%w: root %d out of range [0, %d)", ErrInvalidTopology, g.root, len(g.nodes))
	}

	var err error
	for idx, c := range g.nodes {
		err = multierr.Append(err, g.validateChain(idx, c))
	}
	err = multierr.Append(err, g.validateEdges())
	if err != nil {
		// Reachability and cycle checks assume well-formed edges.
		return fmt.Errorf("topology validation failed: %w", err)
	}

	err = multierr.Append(err, g.detectCycles())
	err = multierr.Append(err, g.validateNoOrphans())
	if err != nil {
		return fmt.Errorf("topology validation failed: %w", err)
	}
	return nil
}

// ValidateComplete is Validate plus the requirement that every path from a
// source chain to the root passes through a sink, i.e. g describes a
// runnable pipeline.
func (g *Graph) ValidateComplete() error {
	if err := g.Validate(); err != nil {
		return err
	}
	if open := g.unterminatedSources(); len(open) > 0 {
		return fmt.Errorf("%w: no sink between source chains %s and root %d",
			ErrIncompletePipeline, joinInts(open, ", "), g.root)
	}
	return nil
}

// unterminatedSources returns the source chains that reach the root without
// passing a sink. Walking stops at terminated chains.
func (g *Graph) unterminatedSources() []int {
	var open []int
	seen := make([]bool, len(g.nodes))
	stack := []int{g.root}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[idx] || g.nodes[idx].Terminated() {
			continue
		}
		seen[idx] = true
		ups := g.edges[idx]
		if len(ups) == 0 {
			open = append(open, idx)
		}
		stack = append(stack, ups...)
	}
	slices.Sort(open)
	return open
}

func (g *Graph) validateChain(idx int, c Chain) error {
	if len(c) == 0 {
		return fmt.Errorf("%w: chain %d is empty", ErrInvalidTopology, idx)
	}
	if len(c) > MaxChainLength {
		return fmt.Errorf("%w: chain %d has %d stages, exceeds maximum %d",
			ErrInvalidTopology, idx, len(c), MaxChainLength)
	}

	var err error
	for pos, s := range c {
		if e := s.validate(); e != nil {
			err = multierr.Append(err, fmt.Errorf("chain %d stage %d: %w", idx, pos, e))
			continue
		}
		switch {
		case pos == 0 && !s.Head():
			err = multierr.Append(err, fmt.Errorf("%w: chain %d starts with %s, want source or merge",
				ErrInvalidTopology, idx, s.Kind()))
		case pos > 0 && s.Head():
			err = multierr.Append(err, fmt.Errorf("%w: chain %d has %s at position %d",
				ErrInvalidTopology, idx, s.Kind(), pos))
		case s.Terminal() && pos != len(c)-1:
			err = multierr.Append(err, fmt.Errorf("%w: chain %d continues after %s at position %d",
				ErrChainTerminated, idx, s.Kind(), pos))
		}
	}
	return err
}

func (g *Graph) validateEdges() error {
	var err error
	for _, idx := range g.edgeKeys() {
		ups := g.edges[idx]
		if idx < 0 || idx >= len(g.nodes) {
			err = multierr.Append(err, fmt.Errorf("%w: edge source %d out of range", ErrInvalidEdge, idx))
			continue
		}
		for _, u := range ups {
			if u < 0 || u >= len(g.nodes) {
				err = multierr.Append(err, fmt.Errorf("%w: chain %d references %d, out of range", ErrInvalidEdge, idx, u))
			}
		}
		if head, ok := g.nodes[idx].Head(); ok && head.Kind() != StageMerge {
			err = multierr.Append(err, fmt.Errorf("%w: chain %d has upstreams but starts with %s",
				ErrInvalidEdge, idx, head.Kind()))
		}
	}
	for idx, c := range g.nodes {
		head, ok := c.Head()
		if !ok || head.Kind() != StageMerge {
			continue
		}
		if n := len(g.edges[idx]); n != 2 {
			err = multierr.Append(err, fmt.Errorf("%w: merge chain %d has %d upstreams, want 2", ErrInvalidEdge, idx, n))
		}
	}
	return err
}

// detectCycles uses Depth-First Search (DFS) along upstream edges.
// Time complexity: O(V + E) where V is chains and E is edges.
func (g *Graph) detectCycles() error {
	visited := make([]bool, len(g.nodes))
	onStack := make([]bool, len(g.nodes))

	var dfs func(idx int, path []int) error
	dfs = func(idx int, path []int) error {
		if len(path) > MaxDepth {
			return fmt.Errorf("%w: maximum depth %d exceeded", ErrInvalidTopology, MaxDepth)
		}
		visited[idx] = true
		onStack[idx] = true
		path = append(path, idx)

		for _, up := range g.edges[idx] {
			if !visited[up] {
				if err := dfs(up, path); err != nil {
					return err
				}
			} else if onStack[up] {
				return fmt.Errorf("%w: %s", ErrCycleDetected, formatPath(append(path, up)))
			}
		}

		onStack[idx] = false
		return nil
	}

	for idx := range g.nodes {
		if !visited[idx] {
			if err := dfs(idx, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateNoOrphans checks that every chain feeds the root.
func (g *Graph) validateNoOrphans() error {
	reachable := make([]bool, len(g.nodes))
	stack := []int{g.root}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[idx] {
			continue
		}
		reachable[idx] = true
		stack = append(stack, g.edges[idx]...)
	}

	var orphans []int
	for idx, ok := range reachable {
		if !ok {
			orphans = append(orphans, idx)
		}
	}
	if len(orphans) > 0 {
		return fmt.Errorf("%w (not upstream of root %d): %s", ErrOrphanedNodes, g.root, joinInts(orphans, ", "))
	}
	return nil
}

func (g *Graph) edgeKeys() []int {
	keys := make([]int, 0, len(g.edges))
	for k := range g.edges {
		keys = append(keys, k)
	}
	slices.Sort(keys) // Deterministic error messages
	return keys
}

func formatPath(idxs []int) string {
	return joinInts(idxs, " -> ")
}

func joinInts(idxs []int, sep string) string {
	parts := make([]string, len(idxs))
	for i, idx := range idxs {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, sep)
}
