package wallaroo

import (
	"fmt"

	"github.com/birdayz/wallaroo/kserde"
)

// Key is the set of types a key extractor may return.
type Key interface {
	~string | ~[]byte | ~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func newEntry(role Role, name string, ident any, missing bool) *Entry {
	e := &Entry{role: role, name: name, ident: identOf(ident)}
	switch {
	case name == "":
		e.err = fmt.Errorf("%w: %s needs a name", ErrConfiguration, role)
	case missing:
		e.err = fmt.Errorf("%w: %s has no function", ErrConfiguration, e)
	}
	return e
}

// NewComputation registers fn as a stateless computation producing one output
// per input.
func NewComputation[In, Out any](name string, fn func(In) (Out, error)) *Entry {
	e := newEntry(RoleComputation, name, fn, fn == nil)
	e.in, e.out = unknownIfInterface(typeOf[In]()), unknownIfInterface(typeOf[Out]())
	e.compute = func(in, _ any) ([]any, error) {
		v, err := cast[In](e, in)
		if err != nil {
			return nil, err
		}
		out, err := fn(v)
		if err != nil {
			return nil, err
		}
		return []any{out}, nil
	}
	return e
}

// NewComputationMulti registers fn as a stateless computation producing any
// number of outputs per input.
func NewComputationMulti[In, Out any](name string, fn func(In) ([]Out, error)) *Entry {
	e := newEntry(RoleComputation, name, fn, fn == nil)
	e.multi = true
	e.in, e.out = unknownIfInterface(typeOf[In]()), unknownIfInterface(typeOf[Out]())
	e.compute = func(in, _ any) ([]any, error) {
		v, err := cast[In](e, in)
		if err != nil {
			return nil, err
		}
		outs, err := fn(v)
		if err != nil {
			return nil, err
		}
		return toAny(outs), nil
	}
	return e
}

// NewStateComputation registers fn as a computation over a state of type S.
// initial creates the state of each partition.
func NewStateComputation[In, Out, S any](name string, initial func() S, fn func(In, *S) (Out, error)) *Entry {
	e := newStateEntry[In, Out, S](name, initial, fn, fn == nil)
	e.compute = func(in, state any) ([]any, error) {
		v, s, err := stateArgs[In, S](e, in, state)
		if err != nil {
			return nil, err
		}
		out, err := fn(v, s)
		if err != nil {
			return nil, err
		}
		return []any{out}, nil
	}
	return e
}

// NewStateComputationMulti is NewStateComputation for functions producing any
// number of outputs per input.
func NewStateComputationMulti[In, Out, S any](name string, initial func() S, fn func(In, *S) ([]Out, error)) *Entry {
	e := newStateEntry[In, Out, S](name, initial, fn, fn == nil)
	e.multi = true
	e.compute = func(in, state any) ([]any, error) {
		v, s, err := stateArgs[In, S](e, in, state)
		if err != nil {
			return nil, err
		}
		outs, err := fn(v, s)
		if err != nil {
			return nil, err
		}
		return toAny(outs), nil
	}
	return e
}

func newStateEntry[In, Out, S any](name string, initial func() S, fn any, missing bool) *Entry {
	e := newEntry(RoleStateComputation, name, fn, missing)
	if e.err == nil && initial == nil {
		e.err = fmt.Errorf("%w: %s has no initial state", ErrConfiguration, e)
	}
	e.in, e.out = unknownIfInterface(typeOf[In]()), unknownIfInterface(typeOf[Out]())
	e.stateType = typeOf[S]()
	e.newState = func() any {
		s := initial()
		return &s
	}
	return e
}

func stateArgs[In, S any](e *Entry, in, state any) (In, *S, error) {
	v, err := cast[In](e, in)
	if err != nil {
		return v, nil, err
	}
	s, ok := state.(*S)
	if !ok || s == nil {
		return v, nil, fmt.Errorf("%w: %s expects state *%v, got %T", ErrTypeMismatch, e, e.stateType, state)
	}
	return v, s, nil
}

// NewKeyExtractor registers fn as a partition key extractor. Integer keys are
// turned into the single character with that code point.
func NewKeyExtractor[In any, K Key](name string, fn func(In) (K, error)) *Entry {
	e := newEntry(RoleKeyExtractor, name, fn, fn == nil)
	e.in = unknownIfInterface(typeOf[In]())
	e.extractKey = func(v any) (string, error) {
		in, err := cast[In](e, v)
		if err != nil {
			return "", err
		}
		k, err := fn(in)
		if err != nil {
			return "", err
		}
		return keyFromValue(k)
	}
	return e
}

// NewGenerator registers a generator source: initial produces the first
// value, next every following one from its predecessor.
func NewGenerator[T any](name string, initial func() T, next func(T) (T, error)) *Entry {
	e := newEntry(RoleGenerator, name, next, next == nil || initial == nil)
	e.out = unknownIfInterface(typeOf[T]())
	e.initial = func() any { return initial() }
	e.next = func(prev any) (any, error) {
		v, err := cast[T](e, prev)
		if err != nil {
			return nil, err
		}
		return next(v)
	}
	return e
}

// NewDecoder registers a plain framing decoder.
func NewDecoder[T any](name string, d *kserde.Decoder[T]) *Entry {
	e := newEntry(RoleDecoder, name, d, d == nil)
	if d == nil {
		return e
	}
	e.out = unknownIfInterface(typeOf[T]())
	e.headerLength = d.HeaderLength()
	e.payloadLength = d.PayloadLength
	e.decode = func(payload []byte) (any, error) { return d.Decode(payload) }
	return e
}

// NewConnectorDecoder registers a connector framing decoder.
func NewConnectorDecoder[T any](name string, d *kserde.ConnectorDecoder[T]) *Entry {
	e := newEntry(RoleDecoder, name, d, d == nil)
	e.connector = true
	if d == nil {
		return e
	}
	e.out = unknownIfInterface(typeOf[T]())
	e.headerLength = d.HeaderLength()
	e.payloadLength = d.PayloadLength
	e.decode = func(body []byte) (any, error) { return d.Decode(body) }
	e.decodeMeta = func(body []byte) (any, kserde.Metadata, error) { return d.DecodeWithMetadata(body) }
	return e
}

// NewEncoder registers a plain sink encoder. Its output is written verbatim.
func NewEncoder[T any](name string, enc *kserde.Encoder[T]) *Entry {
	e := newEntry(RoleEncoder, name, enc, enc == nil)
	if enc == nil {
		return e
	}
	e.in = unknownIfInterface(typeOf[T]())
	e.encode = func(v any, _ kserde.Metadata) ([]byte, error) {
		t, err := cast[T](e, v)
		if err != nil {
			return nil, err
		}
		return enc.Encode(t)
	}
	return e
}

// NewConnectorEncoder registers a connector sink encoder.
func NewConnectorEncoder[T any](name string, enc *kserde.ConnectorEncoder[T]) *Entry {
	e := newEntry(RoleEncoder, name, enc, enc == nil)
	e.connector = true
	if enc == nil {
		return e
	}
	e.in = unknownIfInterface(typeOf[T]())
	e.encode = func(v any, md kserde.Metadata) ([]byte, error) {
		t, err := cast[T](e, v)
		if err != nil {
			return nil, err
		}
		return enc.EncodeWith(t, md)
	}
	return e
}

func toAny[T any](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
