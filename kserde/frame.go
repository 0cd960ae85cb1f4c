package kserde

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrProtocol is the parent of all framing errors. Streams that produced
	// one are not resynchronized.
	ErrProtocol = errors.New("protocol error")
	// ErrTruncatedFrame is returned when fewer bytes are available than the
	// frame header announces.
	ErrTruncatedFrame = fmt.Errorf("%w: truncated frame", ErrProtocol)
	// ErrInvalidFrame is returned for frames whose header or metadata cannot
	// be interpreted.
	ErrInvalidFrame = fmt.Errorf("%w: invalid frame", ErrProtocol)
	// ErrInvalidCodec is returned when a codec is constructed with invalid
	// framing parameters or without functions.
	ErrInvalidCodec = errors.New("invalid codec")
)

// FrameDecoder is implemented by decoders that consume length-prefixed frames.
type FrameDecoder[T any] interface {
	// HeaderLength is the fixed size of the length header in bytes.
	HeaderLength() int
	// PayloadLength returns how many bytes follow the given header.
	PayloadLength(header []byte) (int, error)
	// Decode turns one payload into a value.
	Decode(payload []byte) (T, error)
}

// ReadFrame reads exactly one frame from r and returns its payload.
//
// If r ends before a complete header has been read, ReadFrame returns io.EOF:
// the peer closed between frames. If r ends inside the payload the error wraps
// ErrTruncatedFrame. ReadFrame never attempts to resynchronize a stream.
func ReadFrame[T any](r io.Reader, d FrameDecoder[T]) ([]byte, error) {
	header := make([]byte, d.HeaderLength())
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	n, err := d.PayloadLength(header)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative payload length %d", ErrInvalidFrame, n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: want %d payload bytes: %v", ErrTruncatedFrame, n, err)
		}
		return nil, err
	}
	return payload, nil
}

// Next reads one frame from r and decodes it.
func Next[T any](r io.Reader, d FrameDecoder[T]) (T, error) {
	payload, err := ReadFrame(r, d)
	if err != nil {
		return *new(T), err
	}
	return d.Decode(payload)
}

// DecodeFrame decodes a single complete frame, header included. frame must be
// exactly header plus the announced payload; anything shorter wraps
// ErrTruncatedFrame and yields no value.
func DecodeFrame[T any](d FrameDecoder[T], frame []byte) (T, error) {
	hl := d.HeaderLength()
	if len(frame) < hl {
		return *new(T), fmt.Errorf("%w: have %d bytes, header needs %d", ErrTruncatedFrame, len(frame), hl)
	}
	n, err := d.PayloadLength(frame[:hl])
	if err != nil {
		return *new(T), err
	}
	switch {
	case len(frame)-hl < n:
		return *new(T), fmt.Errorf("%w: have %d payload bytes, header announces %d", ErrTruncatedFrame, len(frame)-hl, n)
	case len(frame)-hl > n:
		return *new(T), fmt.Errorf("%w: %d trailing bytes after payload", ErrInvalidFrame, len(frame)-hl-n)
	}
	return d.Decode(frame[hl:])
}
