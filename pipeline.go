package wallaroo

import (
	"fmt"
	"reflect"

	"github.com/birdayz/wallaroo/kdag"
	"github.com/birdayz/wallaroo/ktransport"
)

// Pipeline is an immutable, partially built topology. Every method returns a
// new Pipeline and leaves the receiver untouched, so one intermediate
// pipeline can be extended in several directions:
//
//	p := wallaroo.Source("celsius", src).To(multiply)
//	a := p.To(add).ToSink(out)
//	b := p.ToSink(raw) // p and a are unaffected
//
// Misuse does not panic. The first error is carried by the returned Pipeline
// and every later one, and is reported by Err and Build.
type Pipeline struct {
	graph    *kdag.Graph
	registry *Registry
	out      reflect.Type
	err      error
}

// Source starts a pipeline named name that reads from cfg.
func Source(name string, cfg SourceConfig) Pipeline {
	if err := cfg.Err(); err != nil {
		return Pipeline{err: fmt.Errorf("source %q: %w", name, err)}
	}
	g, err := kdag.NewGraph(kdag.SourceStage(name, cfg.transport))
	if err != nil {
		return Pipeline{err: fmt.Errorf("source %q: %w", name, classify(err))}
	}
	reg := NewRegistry()
	if err := reg.Register(cfg.entry); err != nil {
		return Pipeline{err: err}
	}
	return Pipeline{graph: g, registry: reg, out: cfg.out()}
}

// Err returns the first misuse recorded while building p.
func (p Pipeline) Err() error {
	if p.err == nil && p.graph == nil {
		return errNoSource
	}
	return p.err
}

// Graph returns a copy of the topology built so far.
func (p Pipeline) Graph() (*kdag.Graph, error) {
	if err := p.Err(); err != nil {
		return nil, err
	}
	return p.graph.Clone(), nil
}

// To appends a computation.
func (p Pipeline) To(c *Entry) Pipeline {
	return p.extend(func(n *Pipeline) error {
		if err := c.Err(); err != nil {
			return err
		}
		if c.role != RoleComputation && c.role != RoleStateComputation {
			return fmt.Errorf("%w: to() needs a computation, got %s", ErrMisuse, c)
		}
		if err := n.accept(c, c.in); err != nil {
			return err
		}
		if err := n.graph.AddStage(kdag.ComputationStage(c.name, c.Stateful(), c.multi)); err != nil {
			return err
		}
		n.out = c.out
		return nil
	})
}

// KeyBy partitions the stream by the keys k extracts.
func (p Pipeline) KeyBy(k *Entry) Pipeline {
	return p.extend(func(n *Pipeline) error {
		if err := expectRole(k, RoleKeyExtractor); err != nil {
			return err
		}
		if err := n.accept(k, k.in); err != nil {
			return err
		}
		return n.graph.AddStage(kdag.KeyByStage(k.name))
	})
}

// ToSink terminates the pipeline with one sink.
func (p Pipeline) ToSink(cfg SinkConfig) Pipeline {
	return p.extend(func(n *Pipeline) error {
		t, err := n.sink(cfg)
		if err != nil {
			return err
		}
		if err := n.graph.AddStage(kdag.SinkStage(t)); err != nil {
			return err
		}
		n.out = nil
		return nil
	})
}

// ToSinks terminates the pipeline, writing every output to all of cfgs.
func (p Pipeline) ToSinks(cfgs ...SinkConfig) Pipeline {
	return p.extend(func(n *Pipeline) error {
		if len(cfgs) == 0 {
			return fmt.Errorf("%w: to_sinks() needs at least one sink", ErrMisuse)
		}
		ts := make([]ktransport.Transport, 0, len(cfgs))
		for _, cfg := range cfgs {
			t, err := n.sink(cfg)
			if err != nil {
				return err
			}
			ts = append(ts, t)
		}
		if err := n.graph.AddStage(kdag.MultiSinkStage(ts...)); err != nil {
			return err
		}
		n.out = nil
		return nil
	})
}

// Merge joins o into p. The result continues from a new merge point fed by
// p first and o second. Inputs that already end in a sink stay as they are;
// the merge point may then be extended or left without a sink.
func (p Pipeline) Merge(o Pipeline) Pipeline {
	return p.extend(func(n *Pipeline) error {
		if err := o.Err(); err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		switch {
		case n.out == nil || o.out == nil:
			n.out = nil
		case n.out != o.out:
			return fmt.Errorf("%w: cannot merge %v stream with %v stream", ErrTypeMismatch, n.out, o.out)
		}
		if err := n.registry.Merge(o.registry); err != nil {
			return err
		}
		return n.graph.Merge(o.graph)
	})
}

// extend runs fn on a deep copy of p.
func (p Pipeline) extend(fn func(n *Pipeline) error) Pipeline {
	if err := p.Err(); err != nil {
		return Pipeline{err: err}
	}
	n := Pipeline{
		graph:    p.graph.Clone(),
		registry: p.registry.Clone(),
		out:      p.out,
	}
	if err := fn(&n); err != nil {
		return Pipeline{err: classify(err)}
	}
	return n
}

// accept checks that e can consume the current output and registers it.
func (n *Pipeline) accept(e *Entry, in reflect.Type) error {
	if !accepts(in, n.out) {
		return fmt.Errorf("%w: %s expects %v, stream carries %v", ErrTypeMismatch, e, in, n.out)
	}
	return n.registry.Register(e)
}

func (n *Pipeline) sink(cfg SinkConfig) (ktransport.Transport, error) {
	if err := cfg.Err(); err != nil {
		return ktransport.Transport{}, err
	}
	if err := n.accept(cfg.entry, cfg.entry.in); err != nil {
		return ktransport.Transport{}, err
	}
	return cfg.transport, nil
}
