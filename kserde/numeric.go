package kserde

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ErrInvalidPayload is returned by deserializers given bytes that do not
// encode a value of their type.
var ErrInvalidPayload = fmt.Errorf("%w: invalid payload", ErrProtocol)

// Numeric payloads are big-endian and exactly as wide as their type.

var (
	Int32  = fixed(4, func(v int32) uint64 { return uint64(uint32(v)) }, func(u uint64) int32 { return int32(uint32(u)) })
	Int64  = fixed(8, func(v int64) uint64 { return uint64(v) }, func(u uint64) int64 { return int64(u) })
	Uint32 = fixed(4, func(v uint32) uint64 { return uint64(v) }, func(u uint64) uint32 { return uint32(u) })

	Float32 = fixed(4,
		func(v float32) uint64 { return uint64(math.Float32bits(v)) },
		func(u uint64) float32 { return math.Float32frombits(uint32(u)) })
	Float64 = fixed(8, math.Float64bits, math.Float64frombits)
)

var (
	Int32Serializer     = Int32.Serializer
	Int32Deserializer   = Int32.Deserializer
	Int64Serializer     = Int64.Serializer
	Int64Deserializer   = Int64.Deserializer
	Uint32Serializer    = Uint32.Serializer
	Uint32Deserializer  = Uint32.Deserializer
	Float32Serializer   = Float32.Serializer
	Float32Deserializer = Float32.Deserializer
	Float64Serializer   = Float64.Serializer
	Float64Deserializer = Float64.Deserializer

	// WideFloat32Deserializer reads a 4 byte float32 payload as a float64.
	WideFloat32Deserializer Deserializer[float64] = func(data []byte) (float64, error) {
		v, err := Float32Deserializer(data)
		return float64(v), err
	}
)

func fixed[T any](width int, bits func(T) uint64, value func(uint64) T) Serde[T] {
	return Serde[T]{
		Serializer: func(v T) ([]byte, error) {
			u := bits(v)
			switch width {
			case 4:
				return binary.BigEndian.AppendUint32(nil, uint32(u)), nil
			default:
				return binary.BigEndian.AppendUint64(nil, u), nil
			}
		},
		Deserializer: func(data []byte) (T, error) {
			if len(data) != width {
				return *new(T), fmt.Errorf("%w: %T needs %d bytes, got %d", ErrInvalidPayload, *new(T), width, len(data))
			}
			if width == 4 {
				return value(uint64(binary.BigEndian.Uint32(data))), nil
			}
			return value(binary.BigEndian.Uint64(data)), nil
		},
	}
}
