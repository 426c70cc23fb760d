package metric

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	swakerrors "github.com/haje01/swak/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	r := NewMetricsRegistry()
	require.NotNil(t, r.PrometheusRegistry())
	require.NotNil(t, r.CoreMetrics())
	assert.Same(t, r.Metrics, r.CoreMetrics())
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	r := NewMetricsRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total", Help: "test"})

	require.NoError(t, r.RegisterCounter("svc", "counter", c))
	c.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(c))
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	r := NewMetricsRegistry()
	g1 := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "test"})
	g2 := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "test"})

	require.NoError(t, r.RegisterGauge("svc", "gauge", g1))

	err := r.RegisterGauge("svc", "gauge", g2)
	require.Error(t, err)
	assert.True(t, swakerrors.IsInvalid(err))

	err = r.RegisterGauge("other", "gauge", g2)
	require.Error(t, err, "prometheus rejects the same fully-qualified name")
	assert.True(t, swakerrors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	r := NewMetricsRegistry()
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "unreg_total", Help: "test"}, []string{"a"})

	require.NoError(t, r.RegisterCounterVec("svc", "vec", vec))
	assert.True(t, r.Unregister("svc", "vec"))
	assert.False(t, r.Unregister("svc", "vec"))
	require.NoError(t, r.RegisterCounterVec("svc", "vec", vec))
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	r := NewMetricsRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g := prometheus.NewGauge(prometheus.GaugeOpts{
				Name: fmt.Sprintf("concurrent_gauge_%d", i),
				Help: "test",
			})
			assert.NoError(t, r.RegisterGauge("svc", fmt.Sprintf("g%d", i), g))
		}(i)
	}
	wg.Wait()
}

func TestMetricsRegistrar_Interface(_ *testing.T) {
	var _ MetricsRegistrar = NewMetricsRegistry()
}

func TestCoreMetrics_RecordMethods(t *testing.T) {
	m := NewMetricsRegistry().CoreMetrics()

	m.RecordEvents("in", ResultEmitted, 3)
	m.RecordEvents("in", ResultDropped, 0)
	m.RecordBytes("in", 128)
	m.RecordPipelines("in", 2)
	m.RecordChunkCreated("o.stdout")
	m.RecordChunkFlushed("o.stdout")
	m.RecordFlushError("o.stdout")
	m.RecordBufferChunks("o.stdout", 4)
	m.RecordPodStatus("in", 1)
	m.RecordAgentInfo("run-1", "0.1.0")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RouterEvents.WithLabelValues("in", ResultEmitted)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RouterEvents.WithLabelValues("in", ResultDropped)))
	assert.Equal(t, 128.0, testutil.ToFloat64(m.RouterBytes.WithLabelValues("in")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RouterPipelines.WithLabelValues("in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChunksCreated.WithLabelValues("o.stdout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChunksFlushed.WithLabelValues("o.stdout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushErrors.WithLabelValues("o.stdout")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.BufferChunks.WithLabelValues("o.stdout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PodStatus.WithLabelValues("in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentInfo.WithLabelValues("run-1", "0.1.0")))
}

func TestServer_ServesMetricsAndHealth(t *testing.T) {
	r := NewMetricsRegistry()
	r.CoreMetrics().RecordPodStatus("out", 1)

	var unhealthy atomic.Bool
	srv := NewServer(freePort(t), "/metrics", r, func() error {
		if unhealthy.Load() {
			return errors.New("pod failed")
		}
		return nil
	})
	require.NoError(t, srv.Start())
	defer func() { _ = srv.Stop(context.Background()) }()

	resp, err := http.Get(srv.Address())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "swak_pod_status")

	healthURL := fmt.Sprintf("http://localhost:%d/health", srv.port)
	resp, err = http.Get(healthURL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	unhealthy.Store(true)
	resp, err = http.Get(healthURL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	assert.Error(t, srv.Start(), "second start is rejected")
}
