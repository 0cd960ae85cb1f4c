package kserde

import (
	"encoding/binary"
	"fmt"
	"math"
)

// LengthFormat describes a fixed-width unsigned length header.
type LengthFormat struct {
	Width int // 1, 2, 4 or 8 bytes
	Order binary.ByteOrder
}

var (
	Uint8        = LengthFormat{Width: 1, Order: binary.BigEndian}
	Uint16BE     = LengthFormat{Width: 2, Order: binary.BigEndian}
	Uint16LE     = LengthFormat{Width: 2, Order: binary.LittleEndian}
	Uint32BE     = LengthFormat{Width: 4, Order: binary.BigEndian}
	Uint32LE     = LengthFormat{Width: 4, Order: binary.LittleEndian}
	Uint64BE     = LengthFormat{Width: 8, Order: binary.BigEndian}
	Uint64LE     = LengthFormat{Width: 8, Order: binary.LittleEndian}
	connectorLen = Uint32LE
)

// SinkExtensionFormat is the header read by plain sink extensions: four bytes,
// big-endian. It differs from the little-endian connector envelope; the two are
// deliberately kept apart.
var SinkExtensionFormat = Uint32BE

// Validate checks that f has a supported width and a byte order.
func (f LengthFormat) Validate() error {
	switch f.Width {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("%w: unsupported length header width %d", ErrInvalidCodec, f.Width)
	}
	if f.Order == nil {
		return fmt.Errorf("%w: length header has no byte order", ErrInvalidCodec)
	}
	return nil
}

// Max returns the largest payload length representable by f.
func (f LengthFormat) Max() uint64 {
	if f.Width >= 8 {
		return math.MaxUint64
	}
	return 1<<(8*f.Width) - 1
}

// PayloadLength reads the length stored in header.
func (f LengthFormat) PayloadLength(header []byte) (int, error) {
	if len(header) != f.Width {
		return 0, fmt.Errorf("%w: header is %d bytes, want %d", ErrTruncatedFrame, len(header), f.Width)
	}
	var n uint64
	switch f.Width {
	case 1:
		n = uint64(header[0])
	case 2:
		n = uint64(f.Order.Uint16(header))
	case 4:
		n = uint64(f.Order.Uint32(header))
	case 8:
		n = f.Order.Uint64(header)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: payload length %d too large", ErrInvalidFrame, n)
	}
	return int(n), nil
}

// AppendHeader appends a header announcing n payload bytes to dst.
func (f LengthFormat) AppendHeader(dst []byte, n int) ([]byte, error) {
	if n < 0 || uint64(n) > f.Max() {
		return nil, fmt.Errorf("%w: payload length %d does not fit a %d byte header", ErrInvalidFrame, n, f.Width)
	}
	switch f.Width {
	case 1:
		return append(dst, byte(n)), nil
	case 2:
		return appendUint16(f.Order, dst, uint16(n)), nil
	case 4:
		return appendUint32(f.Order, dst, uint32(n)), nil
	case 8:
		return appendUint64(f.Order, dst, uint64(n)), nil
	}
	return nil, f.Validate()
}

// Frame returns header ++ payload.
func (f LengthFormat) Frame(payload []byte) ([]byte, error) {
	out, err := f.AppendHeader(make([]byte, 0, f.Width+len(payload)), len(payload))
	if err != nil {
		return nil, err
	}
	return append(out, payload...), nil
}

func appendUint16(order binary.ByteOrder, dst []byte, v uint16) []byte {
	b := make([]byte, 2)
	order.PutUint16(b, v)
	return append(dst, b...)
}

func appendUint32(order binary.ByteOrder, dst []byte, v uint32) []byte {
	b := make([]byte, 4)
	order.PutUint32(b, v)
	return append(dst, b...)
}

func appendUint64(order binary.ByteOrder, dst []byte, v uint64) []byte {
	b := make([]byte, 8)
	order.PutUint64(b, v)
	return append(dst, b...)
}
