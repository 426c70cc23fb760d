package queue

import (
	"github.com/haje01/swak/metric"
)

// Option configures a queue.
type Option[T any] func(*queueOptions[T])

type queueOptions[T any] struct {
	metricsReg  *metric.MetricsRegistry
	metricsName string
}

// WithMetrics exports queue statistics under the given queue label.
// A nil registry or empty name is ignored.
func WithMetrics[T any](registry *metric.MetricsRegistry, name string) Option[T] {
	return func(opts *queueOptions[T]) {
		if registry != nil && name != "" {
			opts.metricsReg = registry
			opts.metricsName = name
		}
	}
}

func applyOptions[T any](options ...Option[T]) *queueOptions[T] {
	opts := &queueOptions[T]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
