package queue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haje01/swak/metric"
)

type queueMetrics struct {
	writes      prometheus.Counter
	reads       prometheus.Counter
	blocks      prometheus.Counter
	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newQueueMetrics(registry *metric.MetricsRegistry, name string) (*queueMetrics, error) {
	labels := prometheus.Labels{"queue": name}
	m := &queueMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "proxy_queue",
			Name:        "writes_total",
			ConstLabels: labels,
			Help:        "Data streams put on the proxy queue",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "proxy_queue",
			Name:        "reads_total",
			ConstLabels: labels,
			Help:        "Data streams taken off the proxy queue",
		}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "proxy_queue",
			Name:        "blocks_total",
			ConstLabels: labels,
			Help:        "Writes that waited for room on a full proxy queue",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "proxy_queue",
			Name:        "size",
			ConstLabels: labels,
			Help:        "Current proxy queue length",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "proxy_queue",
			Name:        "utilization",
			ConstLabels: labels,
			Help:        "Proxy queue length divided by capacity",
		}),
	}

	service := "queue." + name
	if err := registry.RegisterCounter(service, "writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(service, "reads", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(service, "blocks", m.blocks); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(service, "size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(service, "utilization", m.utilization); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *queueMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.updateSize(size, capacity)
}

func (m *queueMetrics) recordRead(size, capacity int) {
	m.reads.Inc()
	m.updateSize(size, capacity)
}

func (m *queueMetrics) recordBlock() {
	m.blocks.Inc()
}

func (m *queueMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
