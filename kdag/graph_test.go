package kdag

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/wallaroo/ktransport"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func tcp(port int, codec string) ktransport.Transport {
	return ktransport.TCPTransport("127.0.0.1", port, codec)
}

func mustGraph(t *testing.T, name string) *Graph {
	t.Helper()
	g, err := NewGraph(SourceStage(name, tcp(9000, "decoder")))
	assert.NoError(t, err)
	return g
}

// chainGraph returns a graph whose root chain has n computations.
func chainGraph(t *testing.T, name string, n int) *Graph {
	t.Helper()
	g := mustGraph(t, name)
	for i := 0; i < n; i++ {
		assert.NoError(t, g.AddStage(ComputationStage("comp", false, false)))
	}
	return g
}

func TestNewGraph(t *testing.T) {
	t.Run("source", func(t *testing.T) {
		g := mustGraph(t, "src")
		assert.Equal(t, 1, g.Len())
		assert.Equal(t, 0, g.Root())
		assert.Equal(t, 0, len(g.Edges()))
	})

	t.Run("non source head", func(t *testing.T) {
		_, err := NewGraph(ComputationStage("comp", false, false))
		assert.True(t, errors.Is(err, ErrInvalidTopology))
	})

	t.Run("invalid transport", func(t *testing.T) {
		_, err := NewGraph(SourceStage("src", tcp(0, "decoder")))
		assert.True(t, errors.Is(err, ktransport.ErrInvalidConfig))
	})
}

func TestAddStage(t *testing.T) {
	t.Run("appends to root chain", func(t *testing.T) {
		g := mustGraph(t, "src")
		assert.NoError(t, g.AddStage(ComputationStage("double", false, false)))
		assert.NoError(t, g.AddStage(KeyByStage("by-id")))
		assert.NoError(t, g.AddStage(ComputationStage("count", true, false)))

		c := g.Chain(0)
		assert.Equal(t, 4, len(c))
		assert.Equal(t, StageKeyBy, c[2].Kind())
		assert.True(t, c[3].Stateful())
	})

	t.Run("after sink", func(t *testing.T) {
		g := mustGraph(t, "src")
		assert.NoError(t, g.AddStage(SinkStage(tcp(9001, "encoder"))))

		err := g.AddStage(ComputationStage("late", false, false))
		assert.True(t, errors.Is(err, ErrChainTerminated))

		err = g.AddStage(SinkStage(tcp(9002, "encoder")))
		assert.True(t, errors.Is(err, ErrChainTerminated))
	})

	t.Run("head stages rejected", func(t *testing.T) {
		g := mustGraph(t, "src")
		assert.True(t, errors.Is(g.AddStage(MergeStage()), ErrInvalidTopology))
		assert.True(t, errors.Is(g.AddStage(SourceStage("other", tcp(1, "d"))), ErrInvalidTopology))
	})

	t.Run("unknown stage", func(t *testing.T) {
		g := mustGraph(t, "src")
		assert.True(t, errors.Is(g.AddStage(Stage{}), ErrUnknownStage))
	})

	t.Run("multi sink needs transports", func(t *testing.T) {
		g := mustGraph(t, "src")
		assert.True(t, errors.Is(g.AddStage(MultiSinkStage()), ErrInvalidTopology))
		assert.NoError(t, g.AddStage(MultiSinkStage(tcp(1, "a"), tcp(2, "b"))))
	})
}

func TestMerge(t *testing.T) {
	t.Run("two sources", func(t *testing.T) {
		a := mustGraph(t, "a")
		b := mustGraph(t, "b")

		assert.NoError(t, a.Merge(b))
		assert.Equal(t, 3, a.Len())
		assert.Equal(t, 2, a.Root())
		assert.Equal(t, []int{0, 1}, a.Upstreams(2))

		head, _ := a.Chain(2).Head()
		assert.Equal(t, StageMerge, head.Kind())
		assert.NoError(t, a.Validate())
	})

	t.Run("offsets nested merges", func(t *testing.T) {
		a := mustGraph(t, "a")

		b := mustGraph(t, "b1")
		assert.NoError(t, b.Merge(mustGraph(t, "b2")))
		assert.NoError(t, b.AddStage(ComputationStage("after-b-merge", false, false)))
		// b: 0=b1, 1=b2, 2=merge(0,1) root

		assert.NoError(t, a.Merge(b))
		// a: 0=a, 1=b1, 2=b2, 3=merge(1,2), 4=merge(0,3)
		assert.Equal(t, 5, a.Len())
		assert.Equal(t, 4, a.Root())
		assert.Equal(t, []int{1, 2}, a.Upstreams(3))
		assert.Equal(t, []int{0, 3}, a.Upstreams(4))
		assert.Equal(t, 2, len(a.Chain(3)))
		assert.NoError(t, a.Validate())
	})

	t.Run("does not alias the merged graph", func(t *testing.T) {
		a := mustGraph(t, "a")
		b := mustGraph(t, "b")
		assert.NoError(t, a.Merge(b))

		assert.NoError(t, b.AddStage(ComputationStage("only-in-b", false, false)))
		assert.Equal(t, 1, len(a.Chain(1)))
	})

	t.Run("terminated chains", func(t *testing.T) {
		a := mustGraph(t, "a")
		b := mustGraph(t, "b")
		assert.NoError(t, a.AddStage(SinkStage(tcp(9001, "e"))))
		assert.NoError(t, b.AddStage(SinkStage(tcp(9002, "e"))))

		assert.NoError(t, a.Merge(b))
		assert.Equal(t, 3, a.Len())
		assert.Equal(t, 2, a.Root())
		assert.Equal(t, []int{0, 1}, a.Upstreams(2))
		// The inputs are untouched; the merge chain is new.
		assert.Equal(t, 2, len(a.Chain(0)))
		assert.Equal(t, 2, len(a.Chain(1)))
		assert.NoError(t, a.ValidateComplete())
	})

	t.Run("with itself", func(t *testing.T) {
		a := mustGraph(t, "a")
		other := mustGraph(t, "b")
		assert.NoError(t, a.Merge(other))
		want := a.Clone()
		assert.NoError(t, want.Merge(a.Clone()))

		assert.NoError(t, a.Merge(a))
		assert.True(t, want.Equal(a), "got:\n%s\nwant:\n%s", a, want)
		// a=0, b=1, m=2, a'=3, b'=4, m'=5 <- [3, 4], root 6 <- [2, 5]
		assert.Equal(t, 7, a.Len())
		assert.Equal(t, []int{3, 4}, a.Upstreams(5))
		assert.Equal(t, []int{2, 5}, a.Upstreams(6))
		assert.NoError(t, a.Validate())
	})
}

func TestMergeLaw(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// build creates a graph from a sequence of operations: a positive number
	// adds that many computations, zero merges in a fresh source.
	build := func(ops []int) *Graph {
		g, _ := NewGraph(SourceStage("src", tcp(9000, "decoder")))
		for _, op := range ops {
			if op == 0 {
				other, _ := NewGraph(SourceStage("other", tcp(9001, "decoder")))
				_ = g.Merge(other)
				continue
			}
			for i := 0; i < op; i++ {
				_ = g.AddStage(ComputationStage("c", false, false))
			}
		}
		return g
	}
	ops := gen.SliceOfN(6, gen.IntRange(0, 2))

	properties.Property("merge adds |a|+|b|+1 chains and shifts b by |a|", prop.ForAll(
		func(opsA, opsB []int) bool {
			a, b := build(opsA), build(opsB)
			before := a.Clone()
			offset := a.Len()

			if err := a.Merge(b); err != nil {
				return false
			}
			if a.Len() != before.Len()+b.Len()+1 {
				return false
			}
			ups := a.Upstreams(a.Root())
			if len(ups) != 2 || ups[0] != before.Root() || ups[1] != b.Root()+offset {
				return false
			}
			for idx, bUps := range b.Edges() {
				got := a.Upstreams(idx + offset)
				if len(got) != len(bUps) {
					return false
				}
				for i := range bUps {
					if got[i] != bUps[i]+offset {
						return false
					}
				}
			}
			for idx := 0; idx < before.Len(); idx++ {
				if len(a.Chain(idx)) != len(before.Chain(idx)) {
					return false
				}
			}
			return a.Validate() == nil
		},
		ops, ops,
	))

	properties.TestingRun(t)
}

func TestClone(t *testing.T) {
	g := mustGraph(t, "a")
	assert.NoError(t, g.Merge(mustGraph(t, "b")))

	c := g.Clone()
	assert.True(t, g.Equal(c))

	assert.NoError(t, c.AddStage(ComputationStage("x", false, false)))
	assert.NoError(t, c.Merge(mustGraph(t, "c")))
	assert.False(t, g.Equal(c))
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 1, len(g.Chain(2)))
}

func TestAccessorsReturnCopies(t *testing.T) {
	g := mustGraph(t, "a")
	assert.NoError(t, g.Merge(mustGraph(t, "b")))

	edges := g.Edges()
	edges[2][0] = 99
	assert.Equal(t, []int{0, 1}, g.Upstreams(2))

	nodes := g.Nodes()
	nodes[0] = nil
	assert.Equal(t, 1, len(g.Chain(0)))

	src, _ := g.Chain(0).Head()
	ts := src.Transports()
	ts[0].Host = "mutated"
	src2, _ := g.Chain(0).Head()
	assert.Equal(t, "127.0.0.1", src2.Transports()[0].Host)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "to(count, state,multi)", ComputationStage("count", true, true).String())
	assert.Equal(t, "to_sink(tcp://127.0.0.1:9001)", SinkStage(tcp(9001, "e")).String())
	assert.Equal(t, "key_by(id)", KeyByStage("id").String())
}
