package kserde

import (
	"fmt"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestFloat32(t *testing.T) {
	b, err := Float32Serializer(100)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x42, 0xC8, 0x00, 0x00}, b)

	_, err = Float32Deserializer([]byte{1, 2, 3})
	assert.IsError(t, err, ErrInvalidPayload)
	assert.IsError(t, err, ErrProtocol)
}

func TestWideFloat32(t *testing.T) {
	v, err := WideFloat32Deserializer([]byte{0x42, 0x14, 0x00, 0x00})
	assert.NoError(t, err)
	assert.Equal(t, 37.0, v)
	assert.Equal(t, "98.600000", fmt.Sprintf("%.6f", v*1.8+32))

	_, err = WideFloat32Deserializer([]byte{0x42, 0x14})
	assert.IsError(t, err, ErrInvalidPayload)
}

func TestFloat64(t *testing.T) {
	b, err := Float64Serializer(1337.13)
	assert.NoError(t, err)
	v, err := Float64Deserializer(b)
	assert.NoError(t, err)
	assert.Equal(t, 1337.13, v)
}

func TestIntegers(t *testing.T) {
	b, err := Int32Serializer(-2)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFE}, b)
	i32, err := Int32Deserializer(b)
	assert.NoError(t, err)
	assert.Equal(t, int32(-2), i32)

	u32, err := Uint32Deserializer(b)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFE), u32)

	b, err = Int64Serializer(-1)
	assert.NoError(t, err)
	assert.Equal(t, 8, len(b))
	i64, err := Int64Deserializer(b)
	assert.NoError(t, err)
	assert.Equal(t, int64(-1), i64)

	_, err = Int64Deserializer(b[:4])
	assert.IsError(t, err, ErrInvalidPayload)
}

func TestLines(t *testing.T) {
	b, err := LineSerializer[float64]("%.6f")(212)
	assert.NoError(t, err)
	assert.Equal(t, "212.000000\n", string(b))

	tests := []struct {
		in   string
		want string
	}{
		{in: "abc\n", want: "abc"},
		{in: "abc\r\n", want: "abc"},
		{in: "abc", want: "abc"},
		{in: "abc\n\n", want: "abc\n"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		v, err := LineDeserializer([]byte(tt.in))
		assert.NoError(t, err)
		assert.Equal(t, tt.want, v)
	}
}

func TestStructured(t *testing.T) {
	type point struct{ X, Y int }

	for name, serde := range map[string]Serde[point]{"json": JSON[point](), "cbor": CBOR[point]()} {
		t.Run(name, func(t *testing.T) {
			b, err := serde.Serializer(point{X: 1, Y: 2})
			assert.NoError(t, err)
			p, err := serde.Deserializer(b)
			assert.NoError(t, err)
			assert.Equal(t, point{X: 1, Y: 2}, p)

			_, err = serde.Deserializer([]byte{0xFF, '{'})
			assert.IsError(t, err, ErrInvalidPayload)
		})
	}
}
