package wallaroo

import (
	"fmt"
	"reflect"

	"github.com/birdayz/wallaroo/kserde"
)

// Role is what a registered function is used for.
type Role int

const (
	RoleComputation Role = iota + 1
	RoleStateComputation
	RoleKeyExtractor
	RoleDecoder
	RoleEncoder
	RoleGenerator
)

func (r Role) String() string {
	switch r {
	case RoleComputation:
		return "computation"
	case RoleStateComputation:
		return "state_computation"
	case RoleKeyExtractor:
		return "key_extractor"
	case RoleDecoder:
		return "decoder"
	case RoleEncoder:
		return "encoder"
	case RoleGenerator:
		return "generator"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Arity is the number of parameters a function of role r takes. Stateful
// computations receive the input and the state, everything else one value.
func (r Role) Arity() int {
	if r == RoleStateComputation {
		return 2
	}
	return 1
}

func (r Role) valid() bool {
	return r >= RoleComputation && r <= RoleGenerator
}

// Entry associates a function with a name, a role and its arity. Entries are
// built by the New* constructors or Registry.RegisterFunc and are immutable.
//
// The invoke methods are type-erased: values cross them as any and are
// checked against the types the entry was built with.
type Entry struct {
	role      Role
	name      string
	multi     bool
	connector bool

	in        reflect.Type
	out       reflect.Type
	stateType reflect.Type

	// ident is the address of the user-supplied function or codec. Two
	// entries of the same name are interchangeable only if it matches.
	ident uintptr

	compute    func(in, state any) ([]any, error)
	newState   func() any
	extractKey func(any) (string, error)

	headerLength  int
	payloadLength kserde.PayloadLengthFunc
	decode        func([]byte) (any, error)
	decodeMeta    func([]byte) (any, kserde.Metadata, error)
	encode        func(any, kserde.Metadata) ([]byte, error)

	initial func() any
	next    func(any) (any, error)

	err error
}

func (e *Entry) Role() Role     { return e.role }
func (e *Entry) Name() string   { return e.name }
func (e *Entry) Arity() int     { return e.role.Arity() }
func (e *Entry) Multi() bool    { return e.multi }
func (e *Entry) Stateful() bool { return e.role == RoleStateComputation }

// Connector reports whether the entry is a connector codec.
func (e *Entry) Connector() bool { return e.connector }

// StateType is the state type of a stateful computation, nil otherwise.
func (e *Entry) StateType() reflect.Type { return e.stateType }

// InType is the type of values the entry consumes, nil if it consumes none
// or accepts anything.
func (e *Entry) InType() reflect.Type { return e.in }

// OutType is the type of values the entry produces. For multi computations
// it is the element type.
func (e *Entry) OutType() reflect.Type { return e.out }

// Err reports a construction error, such as an empty name or a nil function.
func (e *Entry) Err() error {
	if e == nil {
		return fmt.Errorf("%w: nil entry", ErrMisuse)
	}
	return e.err
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s(%s)", e.role, e.name)
}

// Compute runs a computation on in. state must come from NewState for
// stateful computations and is ignored otherwise. Single computations yield
// exactly one output.
func (e *Entry) Compute(in, state any) ([]any, error) {
	if e.compute == nil {
		return nil, e.wrongRole("compute")
	}
	return e.compute(in, state)
}

// NewState returns a fresh state for a stateful computation, as a pointer to
// StateType.
func (e *Entry) NewState() (any, error) {
	if e.newState == nil {
		return nil, e.wrongRole("create state for")
	}
	return e.newState(), nil
}

// ExtractKey returns the partition key of v.
func (e *Entry) ExtractKey(v any) (string, error) {
	if e.extractKey == nil {
		return "", e.wrongRole("extract keys with")
	}
	return e.extractKey(v)
}

// HeaderLength is the frame header size of a decoder, 0 for other roles.
func (e *Entry) HeaderLength() int { return e.headerLength }

// PayloadLength returns how many payload bytes follow header.
func (e *Entry) PayloadLength(header []byte) (int, error) {
	if e.payloadLength == nil {
		return 0, e.wrongRole("frame with")
	}
	return e.payloadLength(header)
}

// Decode turns one payload into a value. Connector decoders drop the
// partition and sequence; use DecodeWithMetadata to keep them.
func (e *Entry) Decode(payload []byte) (any, error) {
	if e.decode == nil {
		return nil, e.wrongRole("decode with")
	}
	return e.decode(payload)
}

// DecodeWithMetadata decodes a connector frame body, keeping its metadata.
func (e *Entry) DecodeWithMetadata(body []byte) (any, kserde.Metadata, error) {
	if e.decodeMeta == nil {
		return nil, kserde.Metadata{}, e.wrongRole("decode metadata with")
	}
	return e.decodeMeta(body)
}

// Encode turns v into the bytes written to a sink.
func (e *Entry) Encode(v any) ([]byte, error) {
	return e.EncodeWith(v, kserde.Metadata{})
}

// EncodeWith encodes v with metadata. Plain encoders ignore md.
func (e *Entry) EncodeWith(v any, md kserde.Metadata) ([]byte, error) {
	if e.encode == nil {
		return nil, e.wrongRole("encode with")
	}
	return e.encode(v, md)
}

// Initial returns a generator's first value.
func (e *Entry) Initial() (any, error) {
	if e.initial == nil {
		return nil, e.wrongRole("generate with")
	}
	return e.initial(), nil
}

// Next returns the value a generator produces after prev.
func (e *Entry) Next(prev any) (any, error) {
	if e.next == nil {
		return nil, e.wrongRole("generate with")
	}
	return e.next(prev)
}

func (e *Entry) wrongRole(action string) error {
	return fmt.Errorf("%w: cannot %s %s", ErrConfiguration, action, e)
}

// compatible reports whether e and o may share a name.
func (e *Entry) compatible(o *Entry) error {
	if e == o {
		return nil
	}
	switch {
	case e.role != o.role:
		return fmt.Errorf("%w: %q registered as %s and %s", ErrConfiguration, e.name, e.role, o.role)
	case e.stateType != o.stateType:
		return fmt.Errorf("%w: incompatible state declarations for %q: %v and %v", ErrConfiguration, e.name, e.stateType, o.stateType)
	case e.in != o.in || e.out != o.out:
		return fmt.Errorf("%w: %q registered with types %v->%v and %v->%v", ErrConfiguration, e.name, e.in, e.out, o.in, o.out)
	case e.multi != o.multi || e.connector != o.connector || e.headerLength != o.headerLength:
		return fmt.Errorf("%w: %q registered with different options", ErrConfiguration, e.name)
	case e.ident != o.ident:
		return fmt.Errorf("%w: %q registered with two different functions", ErrConfiguration, e.name)
	}
	return nil
}

// accepts reports whether values of type v can be passed where t is expected.
// Unknown types on either side are accepted.
func accepts(t, v reflect.Type) bool {
	if t == nil || v == nil {
		return true
	}
	return v.AssignableTo(t)
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// unknownIfInterface maps interface types to nil so that anything is accepted.
func unknownIfInterface(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Interface {
		return nil
	}
	return t
}

func identOf(v any) uintptr {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Pointer:
		return rv.Pointer()
	default:
		return 0
	}
}

// cast converts an erased value back to T.
func cast[T any](e *Entry, v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		if v == nil && typeOf[T]().Kind() == reflect.Interface {
			return zero, nil
		}
		return zero, fmt.Errorf("%w: %s expects %v, got %T", ErrTypeMismatch, e, typeOf[T](), v)
	}
	return t, nil
}
