package kserde

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// JSON encodes values with encoding/json.
func JSON[T any]() Serde[T] {
	return Serde[T]{
		Serializer:   JSONSerializer[T](),
		Deserializer: JSONDeserializer[T](),
	}
}

func JSONSerializer[T any]() Serializer[T] {
	return func(v T) ([]byte, error) {
		return json.Marshal(v)
	}
}

func JSONDeserializer[T any]() Deserializer[T] {
	return func(b []byte) (T, error) {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return v, fmt.Errorf("%w: json: %w", ErrInvalidPayload, err)
		}
		return v, nil
	}
}

var cborEnc, _ = cbor.CoreDetEncOptions().EncMode()

// CBOR encodes values as deterministic CBOR, the same encoding the
// application descriptor uses.
func CBOR[T any]() Serde[T] {
	return Serde[T]{
		Serializer: func(v T) ([]byte, error) {
			return cborEnc.Marshal(v)
		},
		Deserializer: func(b []byte) (T, error) {
			var v T
			if err := cbor.Unmarshal(b, &v); err != nil {
				return v, fmt.Errorf("%w: cbor: %w", ErrInvalidPayload, err)
			}
			return v, nil
		},
	}
}
