package kconnector

import (
	"log/slog"
	"time"
)

type options struct {
	log           *slog.Logger
	retryInterval time.Duration
}

// Option configures a Source or Sink.
type Option func(*options)

// WithLog sets the logger.
var WithLog = func(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithRetryInterval sets the pause between refused connection attempts.
var WithRetryInterval = func(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryInterval = d
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		log:           slog.New(slog.NewTextHandler(nullWriter{}, nil)),
		retryInterval: DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
