package wallaroo

import (
	"fmt"

	"github.com/birdayz/wallaroo/kdag"
	"github.com/birdayz/wallaroo/ktransport"
)

// Application is a finished pipeline: the descriptor handed to the engine and
// the registry that resolves its names.
type Application struct {
	Descriptor *kdag.Application
	Registry   *Registry
}

// Build validates p as a complete pipeline and flattens it into an
// Application named appName.
func Build(appName string, p Pipeline, opts ...Option) (*Application, error) {
	cfg := buildConfig{log: NullLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := p.Err(); err != nil {
		return nil, err
	}
	desc, err := kdag.NewApplication(appName, p.graph)
	if err != nil {
		return nil, classify(err)
	}
	reg := p.registry.Clone()
	if err := reg.Resolve(desc); err != nil {
		return nil, err
	}
	if cfg.registry != nil {
		if err := cfg.registry.Merge(reg); err != nil {
			return nil, err
		}
	}

	cfg.log.Debug("Built application",
		"app", appName,
		"chains", len(desc.Nodes),
		"root", desc.Root,
		"components", reg.Names())
	return &Application{Descriptor: desc, Registry: reg}, nil
}

// MustBuild is Build, panicking on error.
func MustBuild(appName string, p Pipeline, opts ...Option) *Application {
	app, err := Build(appName, p, opts...)
	if err != nil {
		panic(err)
	}
	return app
}

// MarshalBinary encodes the descriptor for the engine. Functions are not
// encoded; the receiving process resolves them with Load.
func (a *Application) MarshalBinary() ([]byte, error) {
	return a.Descriptor.MarshalBinary()
}

// Load decodes a descriptor written by Application.MarshalBinary and
// resolves every name it references in r.
func Load(data []byte, r *Registry) (*Application, error) {
	var desc kdag.Application
	if err := desc.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := r.Resolve(&desc); err != nil {
		return nil, err
	}
	return &Application{Descriptor: &desc, Registry: r}, nil
}

// KafkaTopics returns the Kafka topics the application reads or writes, in
// stage order and without duplicates.
func (a *Application) KafkaTopics() []string {
	var ts []ktransport.Transport
	a.Descriptor.Stages(func(_, _ int, s kdag.Stage) error {
		ts = append(ts, s.Transports()...)
		return nil
	})
	return ktransport.Topics(ts...)
}
