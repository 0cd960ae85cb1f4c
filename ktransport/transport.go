// Package ktransport describes the network and queueing mechanisms that back
// pipeline sources and sinks.
//
// A Transport carries exactly the fields the execution engine needs to open or
// accept the corresponding connection. Codecs and generators are referenced by
// their registry name, never by value, so a Transport is plain data.
package ktransport

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidConfig is returned for malformed addresses, unknown log levels and
// transports that are missing required fields.
var ErrInvalidConfig = errors.New("invalid transport configuration")

// Kind is the tag of a Transport.
type Kind int

const (
	KindTCP Kind = iota + 1
	KindKafka
	KindKafkaInternal
	KindGenerator
	KindConnector
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindKafka:
		return "kafka"
	case KindKafkaInternal:
		return "kafka-internal"
	case KindGenerator:
		return "gen"
	case KindConnector:
		return "connector"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindTCP, KindKafka, KindKafkaInternal, KindGenerator, KindConnector} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown transport kind %q", ErrInvalidConfig, s)
}

// Transport is a tagged transport descriptor. Which fields are meaningful
// depends on Kind:
//
//   - KindTCP, KindConnector: Host, Port, Codec
//   - KindKafka: Topic, Brokers, LogLevel, Codec; sinks also MaxProduceBufferMs and MaxMessageSize
//   - KindKafkaInternal: Name, Codec
//   - KindGenerator: Generator
type Transport struct {
	Kind Kind `cbor:"1,keyasint"`

	Host  string `cbor:"2,keyasint,omitempty"`
	Port  int    `cbor:"3,keyasint,omitempty"`
	Codec string `cbor:"4,keyasint,omitempty"`

	Topic              string   `cbor:"5,keyasint,omitempty"`
	Brokers            []Broker `cbor:"6,keyasint,omitempty"`
	LogLevel           LogLevel `cbor:"7,keyasint,omitempty"`
	MaxProduceBufferMs int      `cbor:"8,keyasint,omitempty"`
	MaxMessageSize     int      `cbor:"9,keyasint,omitempty"`

	Name      string `cbor:"10,keyasint,omitempty"`
	Generator string `cbor:"11,keyasint,omitempty"`
}

// TCPTransport describes a plain TCP source or sink.
func TCPTransport(host string, port int, codec string) Transport {
	return Transport{Kind: KindTCP, Host: host, Port: port, Codec: codec}
}

// ConnectorTransport describes a connector source or sink.
func ConnectorTransport(host string, port int, codec string) Transport {
	return Transport{Kind: KindConnector, Host: host, Port: port, Codec: codec}
}

// KafkaSourceTransport describes a Kafka topic consumed by the engine.
func KafkaSourceTransport(src KafkaSource, codec string) Transport {
	return Transport{
		Kind:     KindKafka,
		Topic:    src.Topic,
		Brokers:  slices.Clone(src.Brokers),
		LogLevel: src.LogLevel,
		Codec:    codec,
	}
}

// KafkaSinkTransport describes a Kafka topic produced to by the engine.
func KafkaSinkTransport(sink KafkaSink, codec string) Transport {
	return Transport{
		Kind:               KindKafka,
		Topic:              sink.Topic,
		Brokers:            slices.Clone(sink.Brokers),
		LogLevel:           sink.LogLevel,
		MaxProduceBufferMs: sink.MaxProduceBufferMs,
		MaxMessageSize:     sink.MaxMessageSize,
		Codec:              codec,
	}
}

// KafkaInternalTransport defers the Kafka settings to the engine's own
// command line, identified by name.
func KafkaInternalTransport(name, codec string) Transport {
	return Transport{Kind: KindKafkaInternal, Name: name, Codec: codec}
}

// GeneratorTransport describes an in-engine generator source.
func GeneratorTransport(generator string) Transport {
	return Transport{Kind: KindGenerator, Generator: generator}
}

// Clone returns a deep copy of t.
func (t Transport) Clone() Transport {
	t.Brokers = slices.Clone(t.Brokers)
	return t
}

// Equal reports whether t and o describe the same transport.
func (t Transport) Equal(o Transport) bool {
	return t.Kind == o.Kind &&
		t.Host == o.Host &&
		t.Port == o.Port &&
		t.Codec == o.Codec &&
		t.Topic == o.Topic &&
		slices.Equal(t.Brokers, o.Brokers) &&
		t.LogLevel == o.LogLevel &&
		t.MaxProduceBufferMs == o.MaxProduceBufferMs &&
		t.MaxMessageSize == o.MaxMessageSize &&
		t.Name == o.Name &&
		t.Generator == o.Generator
}

// References returns the registry names t depends on.
func (t Transport) References() []string {
	var refs []string
	if t.Codec != "" {
		refs = append(refs, t.Codec)
	}
	if t.Generator != "" {
		refs = append(refs, t.Generator)
	}
	return refs
}

// Validate checks that all fields required by t.Kind are present.
func (t Transport) Validate() error {
	switch t.Kind {
	case KindTCP, KindConnector:
		if t.Host == "" {
			return fmt.Errorf("%w: %s transport requires a host", ErrInvalidConfig, t.Kind)
		}
		if err := validatePort(t.Port); err != nil {
			return err
		}
		if t.Codec == "" {
			return fmt.Errorf("%w: %s transport requires a codec", ErrInvalidConfig, t.Kind)
		}
	case KindKafka:
		if t.Topic == "" {
			return fmt.Errorf("%w: kafka transport requires a topic", ErrInvalidConfig)
		}
		if len(t.Brokers) == 0 {
			return fmt.Errorf("%w: kafka transport %q requires at least one broker", ErrInvalidConfig, t.Topic)
		}
		for _, b := range t.Brokers {
			if err := b.Validate(); err != nil {
				return err
			}
		}
		if t.Codec == "" {
			return fmt.Errorf("%w: kafka transport requires a codec", ErrInvalidConfig)
		}
		if err := validateProducerLimits(t.MaxProduceBufferMs, t.MaxMessageSize); err != nil {
			return err
		}
	case KindKafkaInternal:
		if t.Name == "" {
			return fmt.Errorf("%w: kafka-internal transport requires a name", ErrInvalidConfig)
		}
		if t.Codec == "" {
			return fmt.Errorf("%w: kafka-internal transport requires a codec", ErrInvalidConfig)
		}
	case KindGenerator:
		if t.Generator == "" {
			return fmt.Errorf("%w: generator transport requires a generator", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transport kind %d", ErrInvalidConfig, int(t.Kind))
	}
	return nil
}

func (t Transport) String() string {
	switch t.Kind {
	case KindTCP, KindConnector:
		return fmt.Sprintf("%s://%s", t.Kind, Addr{Host: t.Host, Port: t.Port})
	case KindKafka:
		return fmt.Sprintf("kafka://%s", t.Topic)
	case KindKafkaInternal:
		return fmt.Sprintf("kafka-internal://%s", t.Name)
	case KindGenerator:
		return fmt.Sprintf("gen://%s", t.Generator)
	default:
		return "unknown://"
	}
}
