package ktransport

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultKafkaPort is used for brokers given without a port.
const DefaultKafkaPort = 9092

// Addr is a host and port pair.
type Addr struct {
	Host string
	Port int
}

func (a Addr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ParseAddr parses "host:port".
func ParseAddr(s string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Addr{}, fmt.Errorf("%w: address %q: %v", ErrInvalidConfig, s, err)
	}
	if host == "" {
		return Addr{}, fmt.Errorf("%w: address %q has no host", ErrInvalidConfig, s)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return Addr{}, fmt.Errorf("address %q: %w", s, err)
	}
	return Addr{Host: host, Port: port}, nil
}

// ParseAddrs parses a comma separated list "h1:p1,h2:p2,...".
func ParseAddrs(s string) ([]Addr, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty address list", ErrInvalidConfig)
	}
	parts := strings.Split(s, ",")
	addrs := make([]Addr, 0, len(parts))
	for _, p := range parts {
		a, err := ParseAddr(p)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

// Broker is a Kafka bootstrap broker.
type Broker struct {
	Host string `cbor:"1,keyasint"`
	Port int    `cbor:"2,keyasint"`
}

func (b Broker) String() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// Validate checks that b has a host and a port in range.
func (b Broker) Validate() error {
	if b.Host == "" {
		return fmt.Errorf("%w: broker has no host", ErrInvalidConfig)
	}
	return validatePort(b.Port)
}

// ParseBroker parses "host[:port]". The port defaults to DefaultKafkaPort.
func ParseBroker(s string) (Broker, error) {
	s = strings.TrimSpace(s)
	host, portStr, found := strings.Cut(s, ":")
	if host == "" {
		return Broker{}, fmt.Errorf("%w: broker %q has no host", ErrInvalidConfig, s)
	}
	if !found {
		return Broker{Host: host, Port: DefaultKafkaPort}, nil
	}
	if strings.Contains(portStr, ":") {
		return Broker{}, fmt.Errorf("%w: broker %q has too many colons", ErrInvalidConfig, s)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return Broker{}, fmt.Errorf("broker %q: %w", s, err)
	}
	return Broker{Host: host, Port: port}, nil
}

// ParseBrokers parses a comma separated broker list.
func ParseBrokers(s string) ([]Broker, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]Broker, 0, len(parts))
	for _, p := range parts {
		b, err := ParseBroker(p)
		if err != nil {
			return nil, err
		}
		brokers = append(brokers, b)
	}
	return brokers, nil
}

// BrokerAddrs renders brokers as "host:port" strings for client libraries.
func BrokerAddrs(brokers []Broker) []string {
	out := make([]string, len(brokers))
	for i, b := range brokers {
		out[i] = b.String()
	}
	return out
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: port %q is not a number", ErrInvalidConfig, s)
	}
	if err := validatePort(port); err != nil {
		return 0, err
	}
	return port, nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, port)
	}
	return nil
}
