package ktransport

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// LogLevel is the verbosity of the engine's Kafka client.
type LogLevel int

const (
	LogLevelFine LogLevel = iota + 1
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// DefaultLogLevel is used when no log level is configured.
const DefaultLogLevel = LogLevelWarn

const (
	DefaultMaxProduceBufferMs = 0
	DefaultMaxMessageSize     = 100000
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelFine:
		return "Fine"
	case LogLevelInfo:
		return "Info"
	case LogLevelWarn:
		return "Warn"
	case LogLevelError:
		return "Error"
	default:
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
}

// ParseLogLevel accepts exactly "Fine", "Info", "Warn" or "Error".
// The empty string yields DefaultLogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch s {
	case "":
		return DefaultLogLevel, nil
	case "Fine":
		return LogLevelFine, nil
	case "Info":
		return LogLevelInfo, nil
	case "Warn":
		return LogLevelWarn, nil
	case "Error":
		return LogLevelError, nil
	}
	return 0, fmt.Errorf("%w: log level %q, want one of Fine, Info, Warn, Error", ErrInvalidConfig, s)
}

// KgoLevel maps l onto the franz-go log levels.
func (l LogLevel) KgoLevel() kgo.LogLevel {
	switch l {
	case LogLevelFine:
		return kgo.LogLevelDebug
	case LogLevelInfo:
		return kgo.LogLevelInfo
	case LogLevelError:
		return kgo.LogLevelError
	default:
		return kgo.LogLevelWarn
	}
}

// KafkaSource holds the parsed Kafka source options.
type KafkaSource struct {
	Topic    string
	Brokers  []Broker
	LogLevel LogLevel
}

// NewKafkaSource returns source options with defaults applied.
func NewKafkaSource(topic string, brokers []Broker) KafkaSource {
	return KafkaSource{Topic: topic, Brokers: brokers, LogLevel: DefaultLogLevel}
}

// ClientOpts returns the franz-go options for consuming from s.
func (s KafkaSource) ClientOpts(log *slog.Logger) []kgo.Opt {
	return []kgo.Opt{
		kgo.SeedBrokers(BrokerAddrs(s.Brokers)...),
		kgo.ConsumeTopics(s.Topic),
		kgo.WithLogger(NewKgoLogger(log, s.LogLevel)),
	}
}

// KafkaSink holds the parsed Kafka sink options.
type KafkaSink struct {
	Topic              string
	Brokers            []Broker
	LogLevel           LogLevel
	MaxProduceBufferMs int
	MaxMessageSize     int
}

// NewKafkaSink returns sink options with defaults applied.
func NewKafkaSink(topic string, brokers []Broker) KafkaSink {
	return KafkaSink{
		Topic:              topic,
		Brokers:            brokers,
		LogLevel:           DefaultLogLevel,
		MaxProduceBufferMs: DefaultMaxProduceBufferMs,
		MaxMessageSize:     DefaultMaxMessageSize,
	}
}

// Validate checks the producer limits. A zero MaxMessageSize leaves the
// client default in place.
func (s KafkaSink) Validate() error {
	return validateProducerLimits(s.MaxProduceBufferMs, s.MaxMessageSize)
}

func validateProducerLimits(bufferMs, maxMessageSize int) error {
	if bufferMs < 0 {
		return fmt.Errorf("%w: max produce buffer %dms is negative", ErrInvalidConfig, bufferMs)
	}
	if maxMessageSize < 0 || maxMessageSize > math.MaxInt32 {
		return fmt.Errorf("%w: max message size %d out of range [0, %d]", ErrInvalidConfig, maxMessageSize, math.MaxInt32)
	}
	return nil
}

// ClientOpts returns the franz-go options for producing to s. s must be valid.
func (s KafkaSink) ClientOpts(log *slog.Logger) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(BrokerAddrs(s.Brokers)...),
		kgo.DefaultProduceTopic(s.Topic),
		kgo.WithLogger(NewKgoLogger(log, s.LogLevel)),
		kgo.ProducerLinger(time.Duration(s.MaxProduceBufferMs) * time.Millisecond),
	}
	if s.MaxMessageSize > 0 {
		opts = append(opts, kgo.ProducerBatchMaxBytes(int32(s.MaxMessageSize)))
	}
	return opts
}

type kgoLogger struct {
	log   *slog.Logger
	level kgo.LogLevel
}

// NewKgoLogger bridges franz-go client logging onto log.
func NewKgoLogger(log *slog.Logger, level LogLevel) kgo.Logger {
	return &kgoLogger{log: log.WithGroup("kafka"), level: level.KgoLevel()}
}

func (l *kgoLogger) Level() kgo.LogLevel {
	return l.level
}

func (l *kgoLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	var lvl slog.Level
	switch level {
	case kgo.LogLevelError:
		lvl = slog.LevelError
	case kgo.LogLevelWarn:
		lvl = slog.LevelWarn
	case kgo.LogLevelInfo:
		lvl = slog.LevelInfo
	default:
		lvl = slog.LevelDebug
	}
	l.log.Log(context.Background(), lvl, msg, keyvals...)
}
