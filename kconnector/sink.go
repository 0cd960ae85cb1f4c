package kconnector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/birdayz/wallaroo/kserde"
	"golang.org/x/sync/errgroup"
)

// ErrNotListening is returned by Sink.Accept before Listen.
var ErrNotListening = errors.New("not listening")

// Sink is the server side of a connector sink.
type Sink[T any] struct {
	dec  kserde.FrameDecoder[T]
	opts options

	mu     sync.Mutex
	ln     net.Listener
	closed bool
}

// NewSink returns a sink that decodes frames with dec.
func NewSink[T any](dec kserde.FrameDecoder[T], opts ...Option) *Sink[T] {
	return &Sink[T]{dec: dec, opts: newOptions(opts)}
}

// Listen binds host:port. Port 0 picks a free port; see Addr.
func (s *Sink[T]) Listen(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.ln != nil {
		return fmt.Errorf("%w: already listening on %s", ErrConnection, s.ln.Addr())
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("%w: listen: %w", ErrConnection, err)
	}
	s.ln = ln
	s.opts.log.Info("Listening", "addr", ln.Addr())
	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *Sink[T]) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Accept blocks until a peer connects. After Close it returns ErrClosed.
func (s *Sink[T]) Accept() (*Conn[T], error) {
	s.mu.Lock()
	ln, closed := s.ln, s.closed
	s.mu.Unlock()
	switch {
	case closed:
		return nil, ErrClosed
	case ln == nil:
		return nil, ErrNotListening
	}

	c, err := ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: accept: %w", ErrConnection, err)
	}
	s.opts.log.Info("Accepted connection", "remote", c.RemoteAddr())
	return newConn(c, s.dec), nil
}

// Serve accepts connections until ctx is done or the sink is closed, running
// handler on its own goroutine for each. Connections are closed when their
// handler returns. Serve returns the first handler error, or nil once the
// sink is closed.
func (s *Sink[T]) Serve(ctx context.Context, handler func(*Conn[T]) error) error {
	g, ctx := errgroup.WithContext(ctx)

	var (
		mu      sync.Mutex
		conns   = map[*Conn[T]]struct{}{}
		stopped bool
	)
	stop := make(chan struct{})
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		// Unblock Accept and all handlers stuck in Read.
		s.Close()
		mu.Lock()
		defer mu.Unlock()
		stopped = true
		for c := range conns {
			c.Close()
		}
		return nil
	})

	g.Go(func() error {
		defer close(stop)
		for {
			c, err := s.Accept()
			if errors.Is(err, ErrClosed) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			if stopped {
				mu.Unlock()
				c.Close()
				return nil
			}
			conns[c] = struct{}{}
			mu.Unlock()

			g.Go(func() error {
				defer func() {
					mu.Lock()
					delete(conns, c)
					mu.Unlock()
					c.Close()
				}()
				return handler(c)
			})
		}
	})
	return g.Wait()
}

// Close stops listening. Accepted connections stay open.
func (s *Sink[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// Conn is one accepted connection. It is owned by a single reader.
type Conn[T any] struct {
	conn net.Conn
	r    *bufio.Reader
	dec  kserde.FrameDecoder[T]
}

func newConn[T any](c net.Conn, dec kserde.FrameDecoder[T]) *Conn[T] {
	return &Conn[T]{conn: c, r: bufio.NewReader(c), dec: dec}
}

// ReadFrame blocks for one complete frame and returns its payload. It returns
// io.EOF when the peer closes between frames and an error wrapping
// kserde.ErrTruncatedFrame when it closes inside one.
func (c *Conn[T]) ReadFrame() ([]byte, error) {
	payload, err := kserde.ReadFrame(c.r, c.dec)
	switch {
	case err == nil:
		return payload, nil
	case errors.Is(err, io.EOF), errors.Is(err, kserde.ErrProtocol):
		return nil, err
	case errors.Is(err, net.ErrClosed):
		return nil, ErrClosed
	default:
		return nil, fmt.Errorf("%w: read: %w", ErrConnection, err)
	}
}

// Read blocks for one complete frame and decodes it. Connector frames lose
// their metadata; use ReadWithMetadata to keep it.
func (c *Conn[T]) Read() (T, error) {
	payload, err := c.ReadFrame()
	if err != nil {
		return *new(T), err
	}
	return c.dec.Decode(payload)
}

// ReadWithMetadata is Read for connector decoders, also returning partition
// and sequence.
func (c *Conn[T]) ReadWithMetadata() (T, kserde.Metadata, error) {
	dec, ok := c.dec.(interface {
		DecodeWithMetadata([]byte) (T, kserde.Metadata, error)
	})
	if !ok {
		return *new(T), kserde.Metadata{}, fmt.Errorf("%w: %T carries no metadata", kserde.ErrInvalidCodec, c.dec)
	}
	body, err := c.ReadFrame()
	if err != nil {
		return *new(T), kserde.Metadata{}, err
	}
	return dec.DecodeWithMetadata(body)
}

func (c *Conn[T]) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *Conn[T]) Close() error { return c.conn.Close() }
