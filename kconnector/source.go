// Package kconnector exchanges framed messages with the engine over TCP.
//
// A Source connects to an engine's connector source and writes encoded
// values; a Sink listens for the engine's connector sink and reads frames
// from every accepted connection. Both are blocking: Connect, Accept and
// Conn.Read return only when they complete, fail, or the owning Source, Sink
// or Conn is closed.
package kconnector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/birdayz/wallaroo/kserde"
	"github.com/cenkalti/backoff/v4"
)

// DefaultRetryInterval is the pause between refused connection attempts.
const DefaultRetryInterval = time.Second

var (
	// ErrConnection wraps socket errors that are not retried.
	ErrConnection = errors.New("connection error")
	// ErrNotConnected is returned by Source.Write before Connect succeeded.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned by operations on a closed Source or Sink.
	ErrClosed = errors.New("closed")
)

// Encoder turns values into frames ready to be written.
type Encoder[T any] interface {
	Encode(v T) ([]byte, error)
}

// MetadataEncoder is an Encoder that can attach partition and sequence.
type MetadataEncoder[T any] interface {
	Encoder[T]
	EncodeWith(v T, md kserde.Metadata) ([]byte, error)
}

// Source is the client side of a connector source. It is safe for use by
// one writer while another goroutine calls Close.
type Source[T any] struct {
	enc  Encoder[T]
	opts options

	mu     sync.Mutex
	conn   net.Conn
	closed chan struct{}
	once   sync.Once
}

// NewSource returns an unconnected source writing values with enc.
func NewSource[T any](enc Encoder[T], opts ...Option) *Source[T] {
	return &Source[T]{
		enc:    enc,
		opts:   newOptions(opts),
		closed: make(chan struct{}),
	}
}

// Connect dials host:port. Refused connections are retried every retry
// interval until ctx is done or the source is closed; any other error is
// returned immediately, wrapped with ErrConnection.
func (s *Source[T]) Connect(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	var d net.Dialer
	var conn net.Conn
	attempt := 0
	op := func() error {
		attempt++
		c, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn = c
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return backoff.Permanent(cerr)
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			s.opts.log.Debug("Connection refused, retrying", "addr", addr, "attempt", attempt, "interval", s.opts.retryInterval)
			return err
		}
		return backoff.Permanent(err)
	}

	s.opts.log.Info("Connecting", "addr", addr)
	b := backoff.WithContext(backoff.NewConstantBackOff(s.opts.retryInterval), ctx)
	if err := backoff.Retry(op, b); err != nil {
		select {
		case <-s.closed:
			return fmt.Errorf("connect %s: %w", addr, ErrClosed)
		default:
		}
		return fmt.Errorf("%w: connect %s: %w", ErrConnection, addr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		conn.Close()
		return fmt.Errorf("connect %s: %w", addr, ErrClosed)
	default:
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.opts.log.Info("Connected", "addr", addr, "attempts", attempt)
	return nil
}

// Write encodes v and writes the frame.
func (s *Source[T]) Write(v T) error {
	conn, err := s.connection()
	if err != nil {
		return err
	}
	b, err := s.enc.Encode(v)
	if err != nil {
		return err
	}
	return write(conn, b)
}

// WriteWith encodes v with partition and sequence metadata. The source's
// encoder must be a MetadataEncoder.
func (s *Source[T]) WriteWith(v T, md kserde.Metadata) error {
	enc, ok := s.enc.(MetadataEncoder[T])
	if !ok {
		return fmt.Errorf("%w: %T cannot encode metadata", kserde.ErrInvalidCodec, s.enc)
	}
	conn, err := s.connection()
	if err != nil {
		return err
	}
	b, err := enc.EncodeWith(v, md)
	if err != nil {
		return err
	}
	return write(conn, b)
}

// Close stops a pending Connect and closes the connection.
func (s *Source[T]) Close() error {
	s.once.Do(func() { close(s.closed) })

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (s *Source[T]) connection() (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return nil, ErrClosed
	default:
	}
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

func write(conn net.Conn, b []byte) error {
	if _, err := conn.Write(b); err != nil {
		return fmt.Errorf("%w: write: %w", ErrConnection, err)
	}
	return nil
}
