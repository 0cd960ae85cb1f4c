package kserde

import (
	"encoding/binary"
	"fmt"
	"math"
)

// NoSequence is the on-wire sequence number of messages sent without one.
const NoSequence int64 = -1

const (
	connectorHeaderLength = 4
	metaLengthSize        = 2
	sequenceSize          = 8
)

// Metadata is the optional routing information carried by connector frames.
type Metadata struct {
	Partition *string
	Sequence  *int64
}

// WithPartition returns m with the partition key set.
func (m Metadata) WithPartition(p string) Metadata {
	m.Partition = &p
	return m
}

// WithSequence returns m with the sequence number set.
func (m Metadata) WithSequence(s int64) Metadata {
	m.Sequence = &s
	return m
}

// EncodeConnectorFrame wraps payload in the connector envelope:
//
//	u32le(len(meta)+len(payload)) meta payload
//	meta = u16le(len(partition)+8) partition i64le(sequence)
//
// An absent partition is encoded as zero bytes, an absent sequence as
// NoSequence.
func EncodeConnectorFrame(payload []byte, md Metadata) ([]byte, error) {
	var partition []byte
	if md.Partition != nil {
		partition = []byte(*md.Partition)
	}
	seq := NoSequence
	if md.Sequence != nil {
		seq = *md.Sequence
	}

	metaLen := len(partition) + sequenceSize
	if metaLen > math.MaxUint16 {
		return nil, fmt.Errorf("%w: partition key of %d bytes too long", ErrInvalidFrame, len(partition))
	}
	bodyLen := metaLengthSize + metaLen + len(payload)
	if uint64(bodyLen) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: connector frame body of %d bytes too long", ErrInvalidFrame, bodyLen)
	}

	out := make([]byte, 0, connectorHeaderLength+bodyLen)
	out = binary.LittleEndian.AppendUint32(out, uint32(bodyLen))
	out = binary.LittleEndian.AppendUint16(out, uint16(metaLen))
	out = append(out, partition...)
	out = binary.LittleEndian.AppendUint64(out, uint64(seq))
	out = append(out, payload...)
	return out, nil
}

// DecodeConnectorBody splits a connector frame body (everything after the
// 4-byte outer header) into metadata and payload.
func DecodeConnectorBody(body []byte) ([]byte, Metadata, error) {
	if len(body) < metaLengthSize {
		return nil, Metadata{}, fmt.Errorf("%w: connector body of %d bytes has no metadata length", ErrInvalidFrame, len(body))
	}
	metaLen := int(binary.LittleEndian.Uint16(body))
	if metaLen < sequenceSize {
		return nil, Metadata{}, fmt.Errorf("%w: metadata length %d shorter than a sequence number", ErrInvalidFrame, metaLen)
	}
	end := metaLengthSize + metaLen
	if end > len(body) {
		return nil, Metadata{}, fmt.Errorf("%w: metadata length %d exceeds body of %d bytes", ErrInvalidFrame, metaLen, len(body))
	}

	var md Metadata
	if partition := body[metaLengthSize : end-sequenceSize]; len(partition) > 0 {
		p := string(partition)
		md.Partition = &p
	}
	if seq := int64(binary.LittleEndian.Uint64(body[end-sequenceSize : end])); seq != NoSequence {
		md.Sequence = &seq
	}
	return body[end:], md, nil
}

// ConnectorEncoder encodes values into connector frames.
type ConnectorEncoder[T any] struct {
	encode Serializer[T]
}

func NewConnectorEncoder[T any](encode Serializer[T]) (*ConnectorEncoder[T], error) {
	if encode == nil {
		return nil, fmt.Errorf("%w: connector encoder requires an encode function", ErrInvalidCodec)
	}
	return &ConnectorEncoder[T]{encode: encode}, nil
}

func MustNewConnectorEncoder[T any](encode Serializer[T]) *ConnectorEncoder[T] {
	e, err := NewConnectorEncoder(encode)
	if err != nil {
		panic(err)
	}
	return e
}

// Encode frames v without partition or sequence.
func (e *ConnectorEncoder[T]) Encode(v T) ([]byte, error) {
	return e.EncodeWith(v, Metadata{})
}

// EncodeWith frames v with the given metadata.
func (e *ConnectorEncoder[T]) EncodeWith(v T, md Metadata) ([]byte, error) {
	payload, err := e.encode(v)
	if err != nil {
		return nil, err
	}
	return EncodeConnectorFrame(payload, md)
}

// ConnectorDecoder decodes connector frames. Its header is the 4-byte
// little-endian body length.
type ConnectorDecoder[T any] struct {
	decode Deserializer[T]
}

func NewConnectorDecoder[T any](decode Deserializer[T]) (*ConnectorDecoder[T], error) {
	if decode == nil {
		return nil, fmt.Errorf("%w: connector decoder requires a decode function", ErrInvalidCodec)
	}
	return &ConnectorDecoder[T]{decode: decode}, nil
}

func MustNewConnectorDecoder[T any](decode Deserializer[T]) *ConnectorDecoder[T] {
	d, err := NewConnectorDecoder(decode)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *ConnectorDecoder[T]) HeaderLength() int { return connectorHeaderLength }

func (d *ConnectorDecoder[T]) PayloadLength(header []byte) (int, error) {
	return connectorLen.PayloadLength(header)
}

// Decode discards partition and sequence and decodes the message payload.
func (d *ConnectorDecoder[T]) Decode(body []byte) (T, error) {
	v, _, err := d.DecodeWithMetadata(body)
	return v, err
}

// DecodeWithMetadata decodes the message payload and returns the metadata
// that travelled with it.
func (d *ConnectorDecoder[T]) DecodeWithMetadata(body []byte) (T, Metadata, error) {
	payload, md, err := DecodeConnectorBody(body)
	if err != nil {
		return *new(T), Metadata{}, err
	}
	v, err := d.decode(payload)
	if err != nil {
		return *new(T), Metadata{}, err
	}
	return v, md, nil
}

// MessageDecoder returns the decode function applied to bare payloads.
func (d *ConnectorDecoder[T]) MessageDecoder() Deserializer[T] {
	return d.decode
}
