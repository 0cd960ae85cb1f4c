package wallaroo

import (
	"errors"
	"fmt"

	"github.com/birdayz/wallaroo/kconnector"
	"github.com/birdayz/wallaroo/kdag"
	"github.com/birdayz/wallaroo/kserde"
)

var (
	// ErrConfiguration covers malformed addresses, unknown stage kinds,
	// unresolvable names and incompatible registrations. It is reported at
	// build time and never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrArity is returned when a dynamically registered function takes the
	// wrong number of parameters for its role.
	ErrArity = errors.New("arity error")
	// ErrMisuse is a programmer error in pipeline assembly, such as extending
	// a chain after its sink.
	ErrMisuse = errors.New("pipeline misuse")
	// ErrTypeMismatch is returned when a stage cannot accept the values the
	// previous stage produces.
	ErrTypeMismatch = fmt.Errorf("%w: type mismatch", ErrMisuse)

	// ErrProtocol is the parent of all framing errors.
	ErrProtocol = kserde.ErrProtocol
	// ErrConnection wraps fatal socket errors of connector sources and sinks.
	ErrConnection = kconnector.ErrConnection
)

var errNoSource = fmt.Errorf("%w: pipeline has no source", ErrMisuse)

// classify attaches the taxonomy sentinel matching a topology error.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMisuse), errors.Is(err, ErrConfiguration):
		return err
	case errors.Is(err, kdag.ErrChainTerminated), errors.Is(err, kdag.ErrIncompletePipeline):
		return fmt.Errorf("%w: %w", ErrMisuse, err)
	default:
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
}
