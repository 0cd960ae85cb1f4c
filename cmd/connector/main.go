// Command connector talks to an engine's connector endpoints.
//
// In source mode it connects to --host:--port and sends every line read from
// stdin as one message. In sink mode it listens on --host:--port and prints
// every message the engine delivers.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/birdayz/wallaroo/kconnector"
	"github.com/birdayz/wallaroo/kserde"
	"github.com/birdayz/wallaroo/pkg/log"
	"github.com/spf13/pflag"
)

var (
	encoder = kserde.MustNewConnectorEncoder(kserde.StringSerializer)
	decoder = kserde.MustNewConnectorDecoder(kserde.StringDeserializer)
)

func main() {
	fs := pflag.NewFlagSet("connector", pflag.ExitOnError)
	var (
		mode      = fs.String("mode", "source", "source or sink")
		host      = fs.String("host", "127.0.0.1", "engine host (source) or bind address (sink)")
		port      = fs.Int("port", 7100, "engine port (source) or listen port (sink)")
		partition = fs.String("partition", "", "partition key attached to every message")
		sequence  = fs.Bool("sequence", false, "attach increasing sequence numbers")
		logLevel  = fs.String("log_level", "info", "debug, info, warn or error")
	)
	fs.Parse(os.Args[1:])

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := log.New(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "source":
		src := kconnector.NewSource[string](encoder, kconnector.WithLog(logger))
		err = runSource(ctx, src, *host, *port, os.Stdin, *partition, *sequence)
	case "sink":
		sink := kconnector.NewSink[string](decoder, kconnector.WithLog(logger))
		if err = sink.Listen(*host, *port); err == nil {
			err = runSink(ctx, logger, sink, os.Stdout)
		}
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Failed", "err", err)
		os.Exit(1)
	}
}

// runSource connects src and writes every line of r until EOF.
func runSource(ctx context.Context, src *kconnector.Source[string], host string, port int, r io.Reader, partition string, sequence bool) error {
	defer src.Close()
	if err := src.Connect(ctx, host, port); err != nil {
		return err
	}

	scanner := bufio.NewScanner(r)
	var seq int64
	for scanner.Scan() {
		var md kserde.Metadata
		if partition != "" {
			md = md.WithPartition(partition)
		}
		if sequence {
			md = md.WithSequence(seq)
			seq++
		}
		if err := src.WriteWith(scanner.Text(), md); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// runSink serves the listening sink until ctx is done, printing one line per
// message.
func runSink(ctx context.Context, logger *slog.Logger, sink *kconnector.Sink[string], w io.Writer) error {
	defer sink.Close()

	var mu sync.Mutex
	return sink.Serve(ctx, func(c *kconnector.Conn[string]) error {
		for {
			v, md, err := c.ReadWithMetadata()
			if errors.Is(err, io.EOF) || errors.Is(err, kconnector.ErrClosed) {
				logger.Info("Connection closed", "remote", c.RemoteAddr())
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			err = printMessage(w, v, md)
			mu.Unlock()
			if err != nil {
				return err
			}
		}
	})
}

func printMessage(w io.Writer, v string, md kserde.Metadata) error {
	var err error
	switch {
	case md.Partition != nil && md.Sequence != nil:
		_, err = fmt.Fprintf(w, "%s@%d\t%s\n", *md.Partition, *md.Sequence, v)
	case md.Partition != nil:
		_, err = fmt.Fprintf(w, "%s\t%s\n", *md.Partition, v)
	case md.Sequence != nil:
		_, err = fmt.Fprintf(w, "@%d\t%s\n", *md.Sequence, v)
	default:
		_, err = fmt.Fprintln(w, v)
	}
	return err
}
