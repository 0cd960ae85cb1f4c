// Command celsius describes an application converting Celsius readings to
// Fahrenheit and writes its descriptor for the engine.
//
// Readings arrive as 4 byte big-endian length prefixed float32 values, from
// TCP (--in) or Kafka (--kafka_source_*), and are widened to float64 before
// any arithmetic. Results leave as "%.6f\n" lines over TCP (--out) or Kafka
// (--kafka_sink_*).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/birdayz/wallaroo"
	"github.com/birdayz/wallaroo/kserde"
	"github.com/birdayz/wallaroo/ktransport"
	"github.com/birdayz/wallaroo/pkg/log"
	"github.com/twmb/franz-go/pkg/kgo"
)

const appName = "Celsius to Fahrenheit"

var (
	decoder = wallaroo.NewDecoder("celsius decoder",
		kserde.MustNewFramedDecoder(kserde.Uint32BE, kserde.WideFloat32Deserializer))
	encoder = wallaroo.NewEncoder("fahrenheit encoder",
		kserde.MustNewEncoder(kserde.LineSerializer[float64]("%.6f")))

	multiply = wallaroo.NewComputation("multiply by 1.8", func(c float64) (float64, error) {
		return c * 1.8, nil
	})
	add = wallaroo.NewComputation("add 32", func(c float64) (float64, error) {
		return c + 32, nil
	})
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	logger := log.New(cfg.LogLevel)
	if err := run(context.Background(), logger, cfg); err != nil {
		logger.Error("Failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg config) error {
	app, err := wallaroo.Build(appName, pipeline(cfg), wallaroo.WithLog(logger))
	if err != nil {
		return err
	}

	if cfg.CreateTopics {
		for _, g := range cfg.provisioning() {
			if err := createTopics(ctx, logger, g); err != nil {
				return err
			}
		}
	}

	data, err := app.MarshalBinary()
	if err != nil {
		return err
	}
	if cfg.Descriptor == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(cfg.Descriptor, data, 0o644); err != nil {
		return err
	}
	logger.Info("Wrote descriptor", "path", cfg.Descriptor, "bytes", len(data))
	return nil
}

func pipeline(cfg config) wallaroo.Pipeline {
	var src wallaroo.SourceConfig
	if cfg.KafkaSource != nil {
		src = wallaroo.KafkaSourceConfig(*cfg.KafkaSource, decoder)
	} else {
		src = wallaroo.TCPSourceConfig(cfg.In[0].Host, cfg.In[0].Port, decoder)
	}

	var sink wallaroo.SinkConfig
	if cfg.KafkaSink != nil {
		sink = wallaroo.KafkaSinkConfig(*cfg.KafkaSink, encoder)
	} else {
		sink = wallaroo.TCPSinkConfig(cfg.Out[0].Host, cfg.Out[0].Port, encoder)
	}

	return wallaroo.Source("Celsius Conversion", src).
		To(multiply).
		To(add).
		ToSink(sink)
}

func createTopics(ctx context.Context, logger *slog.Logger, g topicGroup) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(g.Brokers...),
		kgo.WithLogger(ktransport.NewKgoLogger(logger, ktransport.DefaultLogLevel)),
	)
	if err != nil {
		return fmt.Errorf("kafka client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := ktransport.EnsureTopics(ctx, client, 1, 1, g.Topics...); err != nil {
		return fmt.Errorf("topics %v on %v: %w", g.Topics, g.Brokers, err)
	}
	logger.Info("Created topics", "topics", g.Topics, "brokers", g.Brokers)
	return nil
}
