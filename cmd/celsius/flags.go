package main

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/birdayz/wallaroo/ktransport"
	"github.com/birdayz/wallaroo/pkg/log"
	"github.com/spf13/pflag"
)

// config is the parsed command line. Exactly one of In and KafkaSource, and
// one of Out and KafkaSink, is set.
type config struct {
	In          []ktransport.Addr
	Out         []ktransport.Addr
	KafkaSource *ktransport.KafkaSource
	KafkaSink   *ktransport.KafkaSink

	CreateTopics bool
	Descriptor   string
	LogLevel     slog.Level
}

var errUsage = errors.New("usage")

// parseFlags parses args. Flags it does not know are left to the engine.
func parseFlags(args []string) (config, error) {
	fs := pflag.NewFlagSet("celsius", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true

	var (
		in, out         string
		srcTopic        string
		srcBrokers      string
		srcLogLevel     string
		sinkTopic       string
		sinkBrokers     string
		sinkLogLevel    string
		maxProduceBufMs int
		maxMessageSize  int
		logLevel        string
		cfg             config
	)
	fs.StringVarP(&in, "in", "i", "", "comma separated input addresses host:port")
	fs.StringVarP(&out, "out", "o", "", "comma separated output addresses host:port")
	fs.StringVar(&srcTopic, "kafka_source_topic", "", "Kafka topic to consume")
	fs.StringVar(&srcBrokers, "kafka_source_brokers", "", "comma separated Kafka brokers host[:port] to consume from")
	fs.StringVar(&srcLogLevel, "kafka_source_log_level", ktransport.DefaultLogLevel.String(), "Kafka consumer log level: Fine, Info, Warn or Error")
	fs.StringVar(&sinkTopic, "kafka_sink_topic", "", "Kafka topic to produce to")
	fs.StringVar(&sinkBrokers, "kafka_sink_brokers", "", "comma separated Kafka brokers host[:port] to produce to")
	fs.StringVar(&sinkLogLevel, "kafka_sink_log_level", ktransport.DefaultLogLevel.String(), "Kafka producer log level: Fine, Info, Warn or Error")
	fs.IntVar(&maxProduceBufMs, "kafka_sink_max_produce_buffer_ms", ktransport.DefaultMaxProduceBufferMs, "how long the producer buffers messages")
	fs.IntVar(&maxMessageSize, "kafka_sink_max_message_size", ktransport.DefaultMaxMessageSize, "largest message the producer sends")
	fs.BoolVar(&cfg.CreateTopics, "kafka_create_topics", false, "create the Kafka topics before writing the descriptor")
	fs.StringVar(&cfg.Descriptor, "descriptor", "", "write the application descriptor to this file instead of stdout")
	fs.StringVar(&logLevel, "log_level", "info", "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return config{}, fmt.Errorf("%w: %w", errUsage, err)
	}

	var err error
	if cfg.LogLevel, err = log.ParseLevel(logLevel); err != nil {
		return config{}, fmt.Errorf("%w: --log_level: %w", errUsage, err)
	}

	switch {
	case in != "" && srcTopic != "":
		return config{}, fmt.Errorf("%w: --in and --kafka_source_topic are exclusive", errUsage)
	case srcTopic != "":
		brokers, err := ktransport.ParseBrokers(srcBrokers)
		if err != nil {
			return config{}, fmt.Errorf("--kafka_source_brokers: %w", err)
		}
		src := ktransport.NewKafkaSource(srcTopic, brokers)
		if src.LogLevel, err = ktransport.ParseLogLevel(srcLogLevel); err != nil {
			return config{}, fmt.Errorf("--kafka_source_log_level: %w", err)
		}
		cfg.KafkaSource = &src
	default:
		if cfg.In, err = ktransport.ParseAddrs(in); err != nil {
			return config{}, fmt.Errorf("--in: %w", err)
		}
	}

	switch {
	case out != "" && sinkTopic != "":
		return config{}, fmt.Errorf("%w: --out and --kafka_sink_topic are exclusive", errUsage)
	case sinkTopic != "":
		brokers, err := ktransport.ParseBrokers(sinkBrokers)
		if err != nil {
			return config{}, fmt.Errorf("--kafka_sink_brokers: %w", err)
		}
		sink := ktransport.NewKafkaSink(sinkTopic, brokers)
		if sink.LogLevel, err = ktransport.ParseLogLevel(sinkLogLevel); err != nil {
			return config{}, fmt.Errorf("--kafka_sink_log_level: %w", err)
		}
		sink.MaxProduceBufferMs = maxProduceBufMs
		sink.MaxMessageSize = maxMessageSize
		if err := sink.Validate(); err != nil {
			return config{}, fmt.Errorf("--kafka_sink: %w", err)
		}
		cfg.KafkaSink = &sink
	default:
		if cfg.Out, err = ktransport.ParseAddrs(out); err != nil {
			return config{}, fmt.Errorf("--out: %w", err)
		}
	}

	if cfg.CreateTopics && cfg.KafkaSource == nil && cfg.KafkaSink == nil {
		return config{}, fmt.Errorf("%w: --kafka_create_topics needs a Kafka source or sink", errUsage)
	}
	return cfg, nil
}

// topicGroup is a set of topics provisioned through one cluster.
type topicGroup struct {
	Brokers []string
	Topics  []string
}

// provisioning groups the Kafka topics by the brokers that serve them. Source
// and sink topics share a group only when their broker lists are equal.
func (c config) provisioning() []topicGroup {
	var groups []topicGroup
	add := func(brokers []ktransport.Broker, topic string) {
		addrs := ktransport.BrokerAddrs(brokers)
		for i := range groups {
			if slices.Equal(groups[i].Brokers, addrs) {
				if !slices.Contains(groups[i].Topics, topic) {
					groups[i].Topics = append(groups[i].Topics, topic)
				}
				return
			}
		}
		groups = append(groups, topicGroup{Brokers: addrs, Topics: []string{topic}})
	}
	if c.KafkaSource != nil {
		add(c.KafkaSource.Brokers, c.KafkaSource.Topic)
	}
	if c.KafkaSink != nil {
		add(c.KafkaSink.Brokers, c.KafkaSink.Topic)
	}
	return groups
}
