package wallaroo

import (
	"fmt"
	"reflect"

	"github.com/birdayz/wallaroo/ktransport"
)

const (
	// DefaultKafkaSourceName names the engine's own Kafka source settings.
	DefaultKafkaSourceName = "kafka_source"
	// DefaultKafkaSinkName names the engine's own Kafka sink settings.
	DefaultKafkaSinkName = "kafka_sink"
)

// SourceConfig describes where a pipeline reads from and how it decodes.
// Invalid configs carry their error until used by Source.
type SourceConfig struct {
	transport ktransport.Transport
	entry     *Entry
	err       error
}

func (c SourceConfig) Transport() ktransport.Transport { return c.transport.Clone() }

func (c SourceConfig) Err() error {
	if c.err == nil && c.entry == nil {
		return fmt.Errorf("%w: empty source config", ErrMisuse)
	}
	return c.err
}

func (c SourceConfig) out() reflect.Type { return c.entry.out }

// TCPSourceConfig reads plain frames from host:port.
func TCPSourceConfig(host string, port int, dec *Entry) SourceConfig {
	return newSourceConfig(dec, false, func(name string) ktransport.Transport {
		return ktransport.TCPTransport(host, port, name)
	})
}

// ConnectorSourceConfig reads connector frames from host:port.
func ConnectorSourceConfig(host string, port int, dec *Entry) SourceConfig {
	return newSourceConfig(dec, true, func(name string) ktransport.Transport {
		return ktransport.ConnectorTransport(host, port, name)
	})
}

// KafkaSourceConfig consumes the topic described by src.
func KafkaSourceConfig(src ktransport.KafkaSource, dec *Entry) SourceConfig {
	return newSourceConfig(dec, false, func(name string) ktransport.Transport {
		return ktransport.KafkaSourceTransport(src, name)
	})
}

// DefaultKafkaSourceConfig leaves the Kafka settings to the engine's command
// line under name, DefaultKafkaSourceName if empty.
func DefaultKafkaSourceConfig(dec *Entry, name string) SourceConfig {
	if name == "" {
		name = DefaultKafkaSourceName
	}
	return newSourceConfig(dec, false, func(codec string) ktransport.Transport {
		return ktransport.KafkaInternalTransport(name, codec)
	})
}

// GenSourceConfig feeds the pipeline from a generator.
func GenSourceConfig(gen *Entry) SourceConfig {
	c := SourceConfig{entry: gen}
	if c.err = expectRole(gen, RoleGenerator); c.err != nil {
		return c
	}
	c.transport = ktransport.GeneratorTransport(gen.name)
	c.err = validateTransport(c.transport)
	return c
}

func newSourceConfig(dec *Entry, connector bool, transport func(codec string) ktransport.Transport) SourceConfig {
	c := SourceConfig{entry: dec}
	if c.err = expectCodec(dec, RoleDecoder, connector); c.err != nil {
		return c
	}
	c.transport = transport(dec.name)
	c.err = validateTransport(c.transport)
	return c
}

// SinkConfig describes where a pipeline writes to and how it encodes.
type SinkConfig struct {
	transport ktransport.Transport
	entry     *Entry
	err       error
}

func (c SinkConfig) Transport() ktransport.Transport { return c.transport.Clone() }

func (c SinkConfig) Err() error {
	if c.err == nil && c.entry == nil {
		return fmt.Errorf("%w: empty sink config", ErrMisuse)
	}
	return c.err
}

// TCPSinkConfig writes encoder output verbatim to host:port.
func TCPSinkConfig(host string, port int, enc *Entry) SinkConfig {
	return newSinkConfig(enc, false, func(name string) ktransport.Transport {
		return ktransport.TCPTransport(host, port, name)
	})
}

// ConnectorSinkConfig writes connector frames to host:port.
func ConnectorSinkConfig(host string, port int, enc *Entry) SinkConfig {
	return newSinkConfig(enc, true, func(name string) ktransport.Transport {
		return ktransport.ConnectorTransport(host, port, name)
	})
}

// KafkaSinkConfig produces to the topic described by sink.
func KafkaSinkConfig(sink ktransport.KafkaSink, enc *Entry) SinkConfig {
	return newSinkConfig(enc, false, func(name string) ktransport.Transport {
		return ktransport.KafkaSinkTransport(sink, name)
	})
}

// DefaultKafkaSinkConfig leaves the Kafka settings to the engine's command
// line under name, DefaultKafkaSinkName if empty.
func DefaultKafkaSinkConfig(enc *Entry, name string) SinkConfig {
	if name == "" {
		name = DefaultKafkaSinkName
	}
	return newSinkConfig(enc, false, func(codec string) ktransport.Transport {
		return ktransport.KafkaInternalTransport(name, codec)
	})
}

func newSinkConfig(enc *Entry, connector bool, transport func(codec string) ktransport.Transport) SinkConfig {
	c := SinkConfig{entry: enc}
	if c.err = expectCodec(enc, RoleEncoder, connector); c.err != nil {
		return c
	}
	c.transport = transport(enc.name)
	c.err = validateTransport(c.transport)
	return c
}

func expectRole(e *Entry, role Role) error {
	if err := e.Err(); err != nil {
		return err
	}
	if e.role != role {
		return fmt.Errorf("%w: want a %s, got %s", ErrMisuse, role, e)
	}
	return nil
}

func expectCodec(e *Entry, role Role, connector bool) error {
	if err := expectRole(e, role); err != nil {
		return err
	}
	if e.connector != connector {
		kind := "plain"
		if connector {
			kind = "connector"
		}
		return fmt.Errorf("%w: want a %s %s, got %s", ErrMisuse, kind, role, e)
	}
	return nil
}

func validateTransport(t ktransport.Transport) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}
