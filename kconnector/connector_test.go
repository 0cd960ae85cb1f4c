package kconnector

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/wallaroo/kserde"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	stringsIn  = kserde.MustNewConnectorDecoder(kserde.StringDeserializer)
	stringsOut = kserde.MustNewConnectorEncoder(kserde.StringSerializer)
)

func listen(t *testing.T) (*Sink[string], int) {
	t.Helper()
	sink := NewSink[string](stringsIn)
	assert.NoError(t, sink.Listen("127.0.0.1", 0))
	t.Cleanup(func() { sink.Close() })
	return sink, sink.Addr().(*net.TCPAddr).Port
}

// refusedPort returns a port nothing listens on.
func refusedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	assert.NoError(t, ln.Close())
	return port
}

func TestSourceToSink(t *testing.T) {
	sink, port := listen(t)

	src := NewSource[string](stringsOut)
	defer src.Close()
	assert.NoError(t, src.Connect(context.Background(), "127.0.0.1", port))

	conn, err := sink.Accept()
	assert.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "127.0.0.1", conn.RemoteAddr().(*net.TCPAddr).IP.String())

	assert.NoError(t, src.Write("plain"))
	assert.NoError(t, src.WriteWith("keyed", kserde.Metadata{}.WithPartition("p").WithSequence(3)))

	v, err := conn.Read()
	assert.NoError(t, err)
	assert.Equal(t, "plain", v)

	v, md, err := conn.ReadWithMetadata()
	assert.NoError(t, err)
	assert.Equal(t, "keyed", v)
	assert.Equal(t, "p", *md.Partition)
	assert.Equal(t, int64(3), *md.Sequence)

	assert.NoError(t, src.Close())
	_, err = conn.Read()
	assert.IsError(t, err, io.EOF)
}

func TestWriteBeforeConnect(t *testing.T) {
	src := NewSource[string](stringsOut)
	assert.IsError(t, src.Write("x"), ErrNotConnected)

	assert.NoError(t, src.Close())
	assert.IsError(t, src.Write("x"), ErrClosed)
}

func TestWriteWithPlainEncoder(t *testing.T) {
	src := NewSource[string](kserde.MustNewEncoder(kserde.StringSerializer))
	err := src.WriteWith("x", kserde.Metadata{})
	assert.IsError(t, err, kserde.ErrInvalidCodec)
}

func TestConnectRetriesRefused(t *testing.T) {
	port := refusedPort(t)

	src := NewSource[string](stringsOut, WithRetryInterval(10*time.Millisecond))
	defer src.Close()

	done := make(chan error, 1)
	go func() {
		done <- src.Connect(context.Background(), "127.0.0.1", port)
	}()

	// Let a few attempts fail before anyone listens.
	time.Sleep(50 * time.Millisecond)
	sink := NewSink[string](stringsIn)
	assert.NoError(t, sink.Listen("127.0.0.1", port))
	defer sink.Close()

	conn, err := sink.Accept()
	assert.NoError(t, err)
	defer conn.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("connect did not return")
	}

	assert.NoError(t, src.Write("late"))
	v, err := conn.Read()
	assert.NoError(t, err)
	assert.Equal(t, "late", v)
}

func TestConnectStops(t *testing.T) {
	t.Run("context", func(t *testing.T) {
		src := NewSource[string](stringsOut, WithRetryInterval(5*time.Millisecond))
		defer src.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := src.Connect(ctx, "127.0.0.1", refusedPort(t))
		assert.IsError(t, err, ErrConnection)
		assert.IsError(t, err, context.DeadlineExceeded)
	})

	t.Run("close", func(t *testing.T) {
		src := NewSource[string](stringsOut, WithRetryInterval(5*time.Millisecond))
		port := refusedPort(t)

		done := make(chan error, 1)
		go func() {
			done <- src.Connect(context.Background(), "127.0.0.1", port)
		}()
		time.Sleep(20 * time.Millisecond)
		assert.NoError(t, src.Close())

		select {
		case err := <-done:
			assert.IsError(t, err, ErrClosed)
		case <-time.After(5 * time.Second):
			t.Fatal("connect did not return")
		}
	})

	t.Run("permanent error", func(t *testing.T) {
		src := NewSource[string](stringsOut, WithRetryInterval(time.Hour))
		defer src.Close()

		start := time.Now()
		err := src.Connect(context.Background(), "127.0.0.1", 70000)
		assert.IsError(t, err, ErrConnection)
		assert.True(t, time.Since(start) < time.Minute)
	})
}

func TestReadTruncated(t *testing.T) {
	sink, port := listen(t)

	raw, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	assert.NoError(t, err)

	conn, err := sink.Accept()
	assert.NoError(t, err)
	defer conn.Close()

	frame := binary.LittleEndian.AppendUint32(nil, 20)
	frame = append(frame, 1, 2, 3)
	_, err = raw.Write(frame)
	assert.NoError(t, err)
	assert.NoError(t, raw.Close())

	_, err = conn.Read()
	assert.IsError(t, err, kserde.ErrTruncatedFrame)
}

func TestPlainSinkReadsBigEndian(t *testing.T) {
	dec := kserde.MustNewFramedDecoder(kserde.SinkExtensionFormat, kserde.StringDeserializer)
	sink := NewSink[string](dec)
	assert.NoError(t, sink.Listen("127.0.0.1", 0))
	defer sink.Close()

	raw, err := net.Dial("tcp", sink.Addr().String())
	assert.NoError(t, err)
	defer raw.Close()

	conn, err := sink.Accept()
	assert.NoError(t, err)
	defer conn.Close()

	_, err = raw.Write([]byte{0x00, 0x00, 0x00, 0x03, 'a', 'b', 'c'})
	assert.NoError(t, err)
	v, err := conn.Read()
	assert.NoError(t, err)
	assert.Equal(t, "abc", v)

	_, _, err = conn.ReadWithMetadata()
	assert.IsError(t, err, kserde.ErrInvalidCodec)
}

func TestAcceptLifecycle(t *testing.T) {
	sink := NewSink[string](stringsIn)
	_, err := sink.Accept()
	assert.IsError(t, err, ErrNotListening)
	assert.Zero(t, sink.Addr())

	assert.NoError(t, sink.Listen("127.0.0.1", 0))
	assert.IsError(t, sink.Listen("127.0.0.1", 0), ErrConnection)

	done := make(chan error, 1)
	go func() {
		_, err := sink.Accept()
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	assert.NoError(t, sink.Close())
	assert.IsError(t, <-done, ErrClosed)
	assert.IsError(t, sink.Listen("127.0.0.1", 0), ErrClosed)
}

func TestServe(t *testing.T) {
	sink, port := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []string
	)
	received := make(chan struct{}, 4)
	served := make(chan error, 1)
	go func() {
		served <- sink.Serve(ctx, func(c *Conn[string]) error {
			for {
				v, err := c.Read()
				if errors.Is(err, io.EOF) || errors.Is(err, ErrClosed) {
					return nil
				}
				if err != nil {
					return err
				}
				mu.Lock()
				got = append(got, v)
				mu.Unlock()
				received <- struct{}{}
			}
		})
	}()

	for _, msg := range []string{"one", "two"} {
		src := NewSource[string](stringsOut)
		assert.NoError(t, src.Connect(ctx, "127.0.0.1", port))
		assert.NoError(t, src.Write(msg))
		defer src.Close()
	}
	for range 2 {
		select {
		case <-received:
		case <-time.After(5 * time.Second):
			t.Fatal("message not received")
		}
	}

	cancel()
	assert.NoError(t, <-served)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, len(got))
}

func TestServeHandlerError(t *testing.T) {
	sink, port := listen(t)
	boom := errors.New("boom")

	served := make(chan error, 1)
	go func() {
		served <- sink.Serve(context.Background(), func(c *Conn[string]) error {
			if _, err := c.Read(); err != nil {
				return err
			}
			return boom
		})
	}()

	src := NewSource[string](stringsOut)
	defer src.Close()
	assert.NoError(t, src.Connect(context.Background(), "127.0.0.1", port))
	assert.NoError(t, src.Write("x"))
	assert.IsError(t, <-served, boom)
}
