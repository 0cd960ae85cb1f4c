package kserde

import (
	"fmt"
)

// PayloadLengthFunc computes the payload length announced by a header.
type PayloadLengthFunc func(header []byte) (int, error)

// Decoder is a plain framing decoder: header bytes of a fixed length followed
// by a payload whose length is computed from the header.
type Decoder[T any] struct {
	headerLength  int
	payloadLength PayloadLengthFunc
	decode        Deserializer[T]
}

// NewDecoder returns a plain decoder. headerLength must be positive.
func NewDecoder[T any](headerLength int, payloadLength PayloadLengthFunc, decode Deserializer[T]) (*Decoder[T], error) {
	if headerLength <= 0 {
		return nil, fmt.Errorf("%w: header length must be positive, got %d", ErrInvalidCodec, headerLength)
	}
	if payloadLength == nil || decode == nil {
		return nil, fmt.Errorf("%w: decoder requires a payload length and a decode function", ErrInvalidCodec)
	}
	return &Decoder[T]{headerLength: headerLength, payloadLength: payloadLength, decode: decode}, nil
}

// NewFramedDecoder returns a plain decoder whose header is a length in format.
func NewFramedDecoder[T any](format LengthFormat, decode Deserializer[T]) (*Decoder[T], error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return NewDecoder(format.Width, format.PayloadLength, decode)
}

// MustNewFramedDecoder is like NewFramedDecoder but panics on error.
func MustNewFramedDecoder[T any](format LengthFormat, decode Deserializer[T]) *Decoder[T] {
	d, err := NewFramedDecoder(format, decode)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Decoder[T]) HeaderLength() int { return d.headerLength }

func (d *Decoder[T]) PayloadLength(header []byte) (int, error) {
	if len(header) != d.headerLength {
		return 0, fmt.Errorf("%w: header is %d bytes, want %d", ErrTruncatedFrame, len(header), d.headerLength)
	}
	return d.payloadLength(header)
}

func (d *Decoder[T]) Decode(payload []byte) (T, error) {
	return d.decode(payload)
}

// Encoder is a plain encoder. Its output is written verbatim.
type Encoder[T any] struct {
	encode Serializer[T]
}

func NewEncoder[T any](encode Serializer[T]) (*Encoder[T], error) {
	if encode == nil {
		return nil, fmt.Errorf("%w: encoder requires an encode function", ErrInvalidCodec)
	}
	return &Encoder[T]{encode: encode}, nil
}

func MustNewEncoder[T any](encode Serializer[T]) *Encoder[T] {
	e, err := NewEncoder(encode)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Encoder[T]) Encode(v T) ([]byte, error) {
	return e.encode(v)
}
