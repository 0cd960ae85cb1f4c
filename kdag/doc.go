// Package kdag models pipeline topologies as a flat arena of chains.
//
// # Overview
//
// A topology is a set of chains. Each chain is an ordered list of stages that
// share one control path; it starts with either a source or a merge point.
// Chains are addressed by dense integer index. A merge chain lists the indices
// of the two chains that feed it; no other chain has upstreams.
//
//	0: source(celsius, tcp://127.0.0.1:9000) -> to(multiply)
//	1: source(kelvin, tcp://127.0.0.1:9001) -> to(shift)
//	*2: merge -> to(add) -> to_sink(tcp://127.0.0.1:9002) <- [0 1]
//
// The chain marked * is the root: the chain currently being extended, and the
// one that must end in a sink before the topology is complete.
//
// # Merging
//
// Merge re-indexes the other graph's chains by the receiver's chain count and
// appends a fresh merge chain whose upstreams are the two previous roots:
//
//	offset := a.Len()
//	a.Merge(b)
//	a.Upstreams(a.Root()) // [oldRootA, b.Root()+offset]
//
// Graphs are mutable; callers that branch a topology must Clone first. The
// wallaroo package's Pipeline does this on every operation.
//
// # Validation
//
// Validate checks structural invariants and reports every violation at once:
//
//   - Edge targets are valid chain indices (ErrInvalidEdge)
//   - Only merge chains have upstreams, and exactly two (ErrInvalidEdge)
//   - Chains start with a source or merge stage (ErrInvalidTopology)
//   - Nothing follows a sink (ErrChainTerminated)
//   - No chain reaches itself through upstreams (ErrCycleDetected)
//   - Every chain feeds the root (ErrOrphanedNodes)
//
// ValidateComplete additionally requires a sink on every path from a source
// chain to the root (ErrIncompletePipeline). Chains that end in a sink may
// still feed a merge.
//
// # Handoff
//
// Application is the flattened (name, root, nodes, edges) value consumed by the
// execution engine. Stages reference computations and codecs by name only, so
// an Application is pure data; it encodes to deterministic CBOR.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use. Stage and Application values are
// immutable once built and safe to share.
package kdag
