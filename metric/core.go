package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Event results recorded by RecordEvents.
const (
	ResultEmitted = "emitted"
	ResultDropped = "dropped"
	ResultError   = "error"
)

// Metrics contains the agent-wide metrics shared by routers, buffers and pods.
type Metrics struct {
	RouterEvents    *prometheus.CounterVec
	RouterBytes     *prometheus.CounterVec
	RouterPipelines *prometheus.GaugeVec

	ChunksCreated *prometheus.CounterVec
	ChunksFlushed *prometheus.CounterVec
	FlushErrors   *prometheus.CounterVec
	BufferChunks  *prometheus.GaugeVec

	PodStatus *prometheus.GaugeVec
	AgentInfo *prometheus.GaugeVec
}

// NewMetrics creates the metric vectors. They are registered by NewMetricsRegistry.
func NewMetrics() *Metrics {
	return &Metrics{
		RouterEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "router",
				Name:      "events_total",
				Help:      "Events seen by the router by result (emitted, dropped, error)",
			},
			[]string{"pod", "result"},
		),

		RouterBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "router",
				Name:      "bytes_total",
				Help:      "Bytes appended to terminal sinks",
			},
			[]string{"pod"},
		),

		RouterPipelines: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "router",
				Name:      "pipelines",
				Help:      "Cached per-tag pipelines",
			},
			[]string{"pod"},
		),

		ChunksCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "buffer",
				Name:      "chunks_created_total",
				Help:      "Chunks started because the active chunk was full",
			},
			[]string{"sink"},
		),

		ChunksFlushed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "buffer",
				Name:      "chunks_flushed_total",
				Help:      "Chunks written to the sink",
			},
			[]string{"sink"},
		),

		FlushErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "buffer",
				Name:      "flush_errors_total",
				Help:      "Chunk writes that failed after retries",
			},
			[]string{"sink"},
		),

		BufferChunks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "buffer",
				Name:      "chunks",
				Help:      "Chunks currently held by the buffer",
			},
			[]string{"sink"},
		),

		PodStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "pod",
				Name:      "status",
				Help:      "Pod status (0=created, 1=started, 2=stopped, 3=shutdown)",
			},
			[]string{"pod"},
		),

		AgentInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "agent",
				Name:      "info",
				Help:      "Constant 1, labelled with the agent run id and version",
			},
			[]string{"run_id", "version"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RouterEvents,
		m.RouterBytes,
		m.RouterPipelines,
		m.ChunksCreated,
		m.ChunksFlushed,
		m.FlushErrors,
		m.BufferChunks,
		m.PodStatus,
		m.AgentInfo,
	}
}

// RecordEvents adds n events with the given result for a pod.
func (m *Metrics) RecordEvents(pod, result string, n int) {
	if n > 0 {
		m.RouterEvents.WithLabelValues(pod, result).Add(float64(n))
	}
}

// RecordBytes adds appended bytes for a pod.
func (m *Metrics) RecordBytes(pod string, n int) {
	if n > 0 {
		m.RouterBytes.WithLabelValues(pod).Add(float64(n))
	}
}

// RecordPipelines sets the number of cached pipelines for a pod.
func (m *Metrics) RecordPipelines(pod string, n int) {
	m.RouterPipelines.WithLabelValues(pod).Set(float64(n))
}

// RecordChunkCreated counts a new chunk for a sink.
func (m *Metrics) RecordChunkCreated(sink string) {
	m.ChunksCreated.WithLabelValues(sink).Inc()
}

// RecordChunkFlushed counts a written chunk for a sink.
func (m *Metrics) RecordChunkFlushed(sink string) {
	m.ChunksFlushed.WithLabelValues(sink).Inc()
}

// RecordFlushError counts a failed chunk write for a sink.
func (m *Metrics) RecordFlushError(sink string) {
	m.FlushErrors.WithLabelValues(sink).Inc()
}

// RecordBufferChunks sets the number of chunks held by a sink's buffer.
func (m *Metrics) RecordBufferChunks(sink string, n int) {
	m.BufferChunks.WithLabelValues(sink).Set(float64(n))
}

// RecordPodStatus sets the lifecycle state of a pod.
func (m *Metrics) RecordPodStatus(pod string, status int) {
	m.PodStatus.WithLabelValues(pod).Set(float64(status))
}

// RecordAgentInfo publishes the run id and version of the running agent.
func (m *Metrics) RecordAgentInfo(runID, version string) {
	m.AgentInfo.WithLabelValues(runID, version).Set(1)
}
