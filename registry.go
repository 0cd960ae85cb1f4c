package wallaroo

import (
	"fmt"
	"maps"
	"slices"

	"github.com/birdayz/wallaroo/kdag"
	"github.com/birdayz/wallaroo/ktransport"
	"go.uber.org/multierr"
)

// Registry maps names to entries. Descriptors reference functions and codecs
// by name only, so the process that runs an application resolves them against
// a registry populated the same way as in the process that built it.
//
// Registry is NOT safe for concurrent mutation.
type Registry struct {
	entries map[string]*Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]*Entry{}}
}

// Register adds e. Registering a compatible entry under a taken name is a
// no-op; anything else under that name fails with ErrConfiguration.
func (r *Registry) Register(e *Entry) error {
	if err := e.Err(); err != nil {
		return err
	}
	if old, ok := r.entries[e.name]; ok {
		return old.compatible(e)
	}
	r.entries[e.name] = e
	return nil
}

// MustRegister is Register, panicking on error.
func (r *Registry) MustRegister(e *Entry) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// RegisterFunc registers a function whose signature is only known at run
// time. A parameter count that does not match role.Arity fails with ErrArity.
// Prefer the typed New* constructors, which check signatures at compile time.
func (r *Registry) RegisterFunc(role Role, name string, fn any) (*Entry, error) {
	e, err := newFuncEntry(role, name, fn)
	if err != nil {
		return nil, err
	}
	if err := r.Register(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.entries))
}

// Len returns the number of registered entries.
func (r *Registry) Len() int { return len(r.entries) }

// Clone returns a copy of r. Entries are immutable and shared.
func (r *Registry) Clone() *Registry {
	return &Registry{entries: maps.Clone(r.entries)}
}

// Merge registers every entry of o in r. On conflict r is left unchanged.
func (r *Registry) Merge(o *Registry) error {
	for _, name := range o.Names() {
		if old, ok := r.entries[name]; ok {
			if err := old.compatible(o.entries[name]); err != nil {
				return err
			}
		}
	}
	maps.Copy(r.entries, o.entries)
	return nil
}

// Resolve checks that every name referenced by app is registered with the
// role its stage needs. All problems are reported together.
func (r *Registry) Resolve(app *kdag.Application) error {
	return app.Stages(func(chain, pos int, s kdag.Stage) error {
		var err error
		switch s.Kind() {
		case kdag.StageComputation:
			want := RoleComputation
			if s.Stateful() {
				want = RoleStateComputation
			}
			e, lerr := r.expect(s.Name(), want)
			if lerr == nil && e.multi != s.Multi() {
				lerr = fmt.Errorf("%w: %s multi=%t, stage wants multi=%t", ErrConfiguration, e, e.multi, s.Multi())
			}
			err = lerr
		case kdag.StageKeyBy:
			_, err = r.expect(s.Name(), RoleKeyExtractor)
		case kdag.StageSource:
			for _, t := range s.Transports() {
				err = multierr.Append(err, r.resolveTransport(t, RoleDecoder))
			}
		case kdag.StageSink, kdag.StageMultiSink:
			for _, t := range s.Transports() {
				err = multierr.Append(err, r.resolveTransport(t, RoleEncoder))
			}
		}
		if err != nil {
			return fmt.Errorf("chain %d stage %d (%s): %w", chain, pos, s, err)
		}
		return nil
	})
}

func (r *Registry) resolveTransport(t ktransport.Transport, codecRole Role) error {
	if t.Kind == ktransport.KindGenerator {
		_, err := r.expect(t.Generator, RoleGenerator)
		return err
	}
	e, err := r.expect(t.Codec, codecRole)
	if err != nil {
		return err
	}
	if connector := t.Kind == ktransport.KindConnector; e.connector != connector {
		return fmt.Errorf("%w: %s cannot frame a %s transport", ErrConfiguration, e, t.Kind)
	}
	return nil
}

func (r *Registry) expect(name string, role Role) (*Entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q is not registered", ErrConfiguration, role, name)
	}
	if e.role != role {
		return nil, fmt.Errorf("%w: %q is a %s, want %s", ErrConfiguration, name, e.role, role)
	}
	return e, nil
}
