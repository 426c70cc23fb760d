package agent

import (
	"io"
	"log/slog"

	"github.com/haje01/swak/metric"
)

// Option configures an agent.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	version  string
	out      io.Writer
}

// WithLogger sets the logger handed to every pod.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records pod, router, buffer and queue metrics in registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) { o.registry = registry }
}

// WithVersion sets the version reported in logs and the agent info metric.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithOutput replaces standard output for the default sink of test chains.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default(), version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
