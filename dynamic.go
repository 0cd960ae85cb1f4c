package wallaroo

import (
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/birdayz/wallaroo/kserde"
)

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	bytesType = reflect.TypeOf([]byte(nil))
)

// newFuncEntry wraps a function whose signature is only known at run time.
// fn must take Role.Arity parameters and return a value, optionally followed
// by an error.
//
// Decoders need framing parameters and can only be built with NewDecoder or
// NewConnectorDecoder.
func newFuncEntry(role Role, name string, fn any) (*Entry, error) {
	switch {
	case !role.valid():
		return nil, fmt.Errorf("%w: unknown role %d", ErrConfiguration, int(role))
	case role == RoleDecoder:
		return nil, fmt.Errorf("%w: decoder %q needs framing, use NewDecoder", ErrConfiguration, name)
	case name == "":
		return nil, fmt.Errorf("%w: %s needs a name", ErrConfiguration, role)
	}

	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%w: %s %q: %T is not a function", ErrConfiguration, role, name, fn)
	}
	ft := v.Type()
	if ft.IsVariadic() || ft.NumIn() != role.Arity() {
		return nil, fmt.Errorf("%w: %s %q takes %d parameters, want %d", ErrArity, role, name, ft.NumIn(), role.Arity())
	}
	out, hasErr, err := results(ft)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", role, name, err)
	}

	e := &Entry{role: role, name: name, ident: v.Pointer()}
	e.in = unknownIfInterface(ft.In(0))
	switch role {
	case RoleComputation:
		e.out = unknownIfInterface(out)
		e.compute = func(in, _ any) ([]any, error) {
			r, err := call(e, v, hasErr, in)
			if err != nil {
				return nil, err
			}
			return []any{r}, nil
		}
	case RoleStateComputation:
		st := ft.In(1)
		if st.Kind() != reflect.Pointer {
			return nil, fmt.Errorf("%w: %s state parameter must be a pointer, got %v", ErrConfiguration, e, st)
		}
		e.out = unknownIfInterface(out)
		e.stateType = st.Elem()
		e.newState = func() any { return reflect.New(st.Elem()).Interface() }
		e.compute = func(in, state any) ([]any, error) {
			r, err := call(e, v, hasErr, in, state)
			if err != nil {
				return nil, err
			}
			return []any{r}, nil
		}
	case RoleKeyExtractor:
		e.extractKey = func(in any) (string, error) {
			r, err := call(e, v, hasErr, in)
			if err != nil {
				return "", err
			}
			return keyFromValue(r)
		}
	case RoleEncoder:
		if out != bytesType {
			return nil, fmt.Errorf("%w: %s must return []byte, returns %v", ErrConfiguration, e, out)
		}
		e.encode = func(in any, _ kserde.Metadata) ([]byte, error) {
			r, err := call(e, v, hasErr, in)
			if err != nil {
				return nil, err
			}
			return r.([]byte), nil
		}
	case RoleGenerator:
		if out != ft.In(0) {
			return nil, fmt.Errorf("%w: %s must return its parameter type %v, returns %v", ErrConfiguration, e, ft.In(0), out)
		}
		// Generators consume nothing; the zero value is the first output.
		e.in = nil
		e.out = unknownIfInterface(out)
		zero := reflect.Zero(out).Interface()
		e.initial = func() any { return zero }
		e.next = func(prev any) (any, error) {
			return call(e, v, hasErr, prev)
		}
	}
	return e, nil
}

func results(ft reflect.Type) (out reflect.Type, hasErr bool, err error) {
	switch ft.NumOut() {
	case 1:
		return ft.Out(0), false, nil
	case 2:
		if ft.Out(1) != errorType {
			return nil, false, fmt.Errorf("%w: second result must be error, got %v", ErrConfiguration, ft.Out(1))
		}
		return ft.Out(0), true, nil
	default:
		return nil, false, fmt.Errorf("%w: function returns %d values, want 1 or 2", ErrConfiguration, ft.NumOut())
	}
}

func call(e *Entry, fn reflect.Value, hasErr bool, args ...any) (any, error) {
	ft := fn.Type()
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		want := ft.In(i)
		if a == nil {
			switch want.Kind() {
			case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
				in[i] = reflect.Zero(want)
				continue
			}
			return nil, fmt.Errorf("%w: %s expects %v, got nil", ErrTypeMismatch, e, want)
		}
		av := reflect.ValueOf(a)
		if !av.Type().AssignableTo(want) {
			return nil, fmt.Errorf("%w: %s expects %v, got %T", ErrTypeMismatch, e, want, a)
		}
		in[i] = av
	}

	res := fn.Call(in)
	if hasErr && !res[1].IsNil() {
		return nil, res[1].Interface().(error)
	}
	return res[0].Interface(), nil
}

// keyFromValue turns a key extractor result into a partition key. Integers
// become the single character with that code point.
func keyFromValue(k any) (string, error) {
	rv := reflect.ValueOf(k)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes()), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v := rv.Int(); v >= 0 && v <= utf8.MaxRune && utf8.ValidRune(rune(v)) {
			return string(rune(v)), nil
		}
		return "", fmt.Errorf("%w: key %v is not a valid character code", ErrConfiguration, k)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v := rv.Uint(); v <= utf8.MaxRune && utf8.ValidRune(rune(v)) {
			return string(rune(v)), nil
		}
		return "", fmt.Errorf("%w: key %v is not a valid character code", ErrConfiguration, k)
	}
	return "", fmt.Errorf("%w: unsupported key type %T", ErrConfiguration, k)
}
