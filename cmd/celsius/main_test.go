package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/wallaroo"
	"github.com/birdayz/wallaroo/kdag"
	"github.com/birdayz/wallaroo/ktransport"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		err  error
		want func(t *testing.T, cfg config)
	}{
		{
			name: "tcp",
			args: []string{"-i", "127.0.0.1:7000", "--out", "127.0.0.1:7002", "--name", "worker1"},
			want: func(t *testing.T, cfg config) {
				assert.Equal(t, []ktransport.Addr{{Host: "127.0.0.1", Port: 7000}}, cfg.In)
				assert.Equal(t, []ktransport.Addr{{Host: "127.0.0.1", Port: 7002}}, cfg.Out)
				assert.Zero(t, cfg.KafkaSource)
				assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
			},
		},
		{
			name: "kafka",
			args: []string{
				"--kafka_source_topic", "celsius",
				"--kafka_source_brokers", "k1,k2:9093",
				"--kafka_source_log_level", "Fine",
				"--kafka_sink_topic", "fahrenheit",
				"--kafka_sink_brokers", "k1",
				"--kafka_sink_max_produce_buffer_ms", "5",
				"--kafka_create_topics",
				"--log_level", "debug",
			},
			want: func(t *testing.T, cfg config) {
				assert.Equal(t, "celsius", cfg.KafkaSource.Topic)
				assert.Equal(t, []ktransport.Broker{{Host: "k1", Port: 9092}, {Host: "k2", Port: 9093}}, cfg.KafkaSource.Brokers)
				assert.Equal(t, ktransport.LogLevelFine, cfg.KafkaSource.LogLevel)
				assert.Equal(t, "fahrenheit", cfg.KafkaSink.Topic)
				assert.Equal(t, ktransport.LogLevelWarn, cfg.KafkaSink.LogLevel)
				assert.Equal(t, 5, cfg.KafkaSink.MaxProduceBufferMs)
				assert.Equal(t, ktransport.DefaultMaxMessageSize, cfg.KafkaSink.MaxMessageSize)
				assert.Equal(t, []topicGroup{
					{Brokers: []string{"k1:9092", "k2:9093"}, Topics: []string{"celsius"}},
					{Brokers: []string{"k1:9092"}, Topics: []string{"fahrenheit"}},
				}, cfg.provisioning())
				assert.True(t, cfg.CreateTopics)
				assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
			},
		},
		{
			name: "kafka shared brokers",
			args: []string{
				"--kafka_source_topic", "celsius",
				"--kafka_source_brokers", "k1",
				"--kafka_sink_topic", "fahrenheit",
				"--kafka_sink_brokers", "k1:9092",
			},
			want: func(t *testing.T, cfg config) {
				assert.Equal(t, []topicGroup{
					{Brokers: []string{"k1:9092"}, Topics: []string{"celsius", "fahrenheit"}},
				}, cfg.provisioning())
			},
		},
		{
			name: "kafka source only",
			args: []string{"--kafka_source_topic", "celsius", "--kafka_source_brokers", "k2", "-o", "127.0.0.1:7002"},
			want: func(t *testing.T, cfg config) {
				assert.Equal(t, []topicGroup{
					{Brokers: []string{"k2:9092"}, Topics: []string{"celsius"}},
				}, cfg.provisioning())
			},
		},
		{
			name: "max message size wider than int32",
			args: []string{"-i", "127.0.0.1:7000", "--kafka_sink_topic", "f", "--kafka_sink_brokers", "k1", "--kafka_sink_max_message_size", "3000000000"},
			err:  ktransport.ErrInvalidConfig,
		},
		{
			name: "negative produce buffer",
			args: []string{"-i", "127.0.0.1:7000", "--kafka_sink_topic", "f", "--kafka_sink_brokers", "k1", "--kafka_sink_max_produce_buffer_ms", "-1"},
			err:  ktransport.ErrInvalidConfig,
		},
		{
			name: "missing input",
			args: []string{"-o", "127.0.0.1:7002"},
			err:  ktransport.ErrInvalidConfig,
		},
		{
			name: "both inputs",
			args: []string{"-i", "127.0.0.1:7000", "--kafka_source_topic", "t", "-o", "127.0.0.1:7002"},
			err:  errUsage,
		},
		{
			name: "bad kafka log level",
			args: []string{"--kafka_source_topic", "t", "--kafka_source_log_level", "warn", "-o", "127.0.0.1:7002"},
			err:  ktransport.ErrInvalidConfig,
		},
		{
			name: "bad port",
			args: []string{"-i", "127.0.0.1:0", "-o", "127.0.0.1:7002"},
			err:  ktransport.ErrInvalidConfig,
		},
		{
			name: "create topics without kafka",
			args: []string{"-i", "127.0.0.1:7000", "-o", "127.0.0.1:7002", "--kafka_create_topics"},
			err:  errUsage,
		},
		{
			name: "bad log level",
			args: []string{"-i", "127.0.0.1:7000", "-o", "127.0.0.1:7002", "--log_level", "loud"},
			err:  errUsage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parseFlags(tt.args)
			if tt.err != nil {
				assert.IsError(t, err, tt.err)
				return
			}
			assert.NoError(t, err)
			tt.want(t, cfg)
		})
	}
}

func TestRunWritesDescriptor(t *testing.T) {
	cfg, err := parseFlags([]string{"-i", "127.0.0.1:7000", "-o", "127.0.0.1:7002"})
	assert.NoError(t, err)
	cfg.Descriptor = filepath.Join(t.TempDir(), "app.cbor")

	assert.NoError(t, run(context.Background(), wallaroo.NullLogger(), cfg))

	data, err := os.ReadFile(cfg.Descriptor)
	assert.NoError(t, err)

	reg := wallaroo.NewRegistry()
	for _, e := range []*wallaroo.Entry{decoder, encoder, multiply, add} {
		assert.NoError(t, reg.Register(e))
	}
	app, err := wallaroo.Load(data, reg)
	assert.NoError(t, err)

	desc := app.Descriptor
	assert.Equal(t, appName, desc.Name)
	chain := desc.Nodes[desc.Root]
	assert.Equal(t, 4, len(chain))
	assert.Equal(t, "Celsius Conversion", chain[0].Name())
	assert.Equal(t, "multiply by 1.8", chain[1].Name())
	assert.Equal(t, "add 32", chain[2].Name())
	assert.Equal(t, kdag.StageSink, chain[3].Kind())
	assert.Equal(t, 7002, chain[3].Transports()[0].Port)
}
