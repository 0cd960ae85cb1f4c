package wallaroo

import (
	"log/slog"

	"github.com/go-logr/logr"
)

type buildConfig struct {
	log      *slog.Logger
	registry *Registry
}

// Option configures Build.
type Option func(*buildConfig)

// WithLog sets the logger used while building.
var WithLog = func(log *slog.Logger) Option {
	return func(c *buildConfig) {
		c.log = log
	}
}

// WithLogr logs through a logr sink. slog levels below Info map to logr
// verbosity -level.
var WithLogr = func(log logr.Logger) Option {
	return WithLog(slog.New(logr.ToSlogHandler(log)))
}

// WithRegistry additionally registers every component of the application in
// r. Processes that share r resolve the descriptor by name.
var WithRegistry = func(r *Registry) Option {
	return func(c *buildConfig) {
		c.registry = r
	}
}

// NullWriter is a writer that discards all data
type NullWriter struct{}

func (NullWriter) Write(p []byte) (int, error) { return len(p), nil }

// NullLogger creates a logger that discards all output
func NullLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(NullWriter{}, nil))
}
