// Package kserde translates between wire bytes and domain values at pipeline
// boundaries.
//
// It provides two framing codecs that coexist and are selected independently:
//
//   - Plain framing (Decoder, Encoder): a caller-defined fixed-width length
//     header followed by the payload. The header width and byte order are chosen
//     by the caller through a LengthFormat. Encoders write their output
//     verbatim; any framing on the sink side is the encoder's responsibility.
//   - Connector framing (ConnectorDecoder, ConnectorEncoder): a fixed
//     little-endian envelope carrying an optional partition key and sequence
//     number alongside the payload.
//
// Frames are never surfaced partially: ReadFrame and DecodeFrame either return
// a complete frame or an error.
package kserde

// Serde pairs a serializer and deserializer for the same type.
type Serde[T any] struct {
	Serializer   Serializer[T]
	Deserializer Deserializer[T]
}

// Serializer turns a value into its payload bytes.
type Serializer[T any] func(T) ([]byte, error)

// Deserializer turns payload bytes into a value.
type Deserializer[T any] func([]byte) (T, error)
