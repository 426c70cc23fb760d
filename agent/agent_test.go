package agent

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haje01/swak/config"
	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/metric"
	"github.com/haje01/swak/plugin"
	"github.com/haje01/swak/stdplugins"
	swaktest "github.com/haje01/swak/testutil"
)

// newRegistry returns the standard plugins plus o.capture, which always
// hands out capture.
func newRegistry(t *testing.T, capture *swaktest.CaptureSink) *plugin.Registry {
	t.Helper()
	reg, err := stdplugins.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, reg.Register(plugin.Registration{
		Name: "o.capture",
		Kind: plugin.KindSink,
		Factory: func([]string) (plugin.Plugin, error) {
			return capture, nil
		},
	}))
	return reg
}

func newConfig(sources []string, matches ...config.Match) *config.Config {
	cfg := config.Default()
	cfg.Sources = sources
	cfg.Matches = matches
	cfg.Proxy.PollInterval = 5 * time.Millisecond
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func TestServiceAgent_Build(t *testing.T) {
	reg := newRegistry(t, swaktest.NewCaptureSink("o.capture"))
	cfg := newConfig(
		[]string{
			"i.counter -c 1 | tag app.web",
			"i.counter -c 1 | tag sys.cron",
			"i.counter -c 1 | o.stdout",
		},
		config.Match{Pattern: "app.**", Chain: "m.reform -w a=1 | o.capture"},
		config.Match{Pattern: "*.*", Chain: "o.stdout | b.memory -m 2 | f.json"},
	)

	a := NewServiceAgent(cfg, reg)
	require.NoError(t, a.Build())
	require.NoError(t, a.Build())

	require.Len(t, a.SinkPods(), 2)
	require.Len(t, a.SourcePods(), 3)
	assert.Equal(t, []string{"app.web"}, a.proxies[0].Tags())
	assert.Equal(t, []string{"sys.cron"}, a.proxies[1].Tags())

	// The standalone source keeps its own sink.
	sinks := a.SourcePods()[2].Sinks()
	require.Len(t, sinks, 1)
	assert.Equal(t, "o.stdout", sinks[0].Name())

	// Proxied sources end in a proxy output.
	sinks = a.SourcePods()[0].Sinks()
	require.Len(t, sinks, 1)
	assert.IsType(t, &plugin.ProxyOutput{}, sinks[0])

	assert.NotEmpty(t, a.RunID())
}

func TestServiceAgent_BuildErrors(t *testing.T) {
	reg := newRegistry(t, swaktest.NewCaptureSink("o.capture"))

	tests := []struct {
		name    string
		sources []string
		matches []config.Match
		check   func(error) bool
	}{
		{
			name:    "no matching route",
			sources: []string{"i.counter | tag zzz"},
			matches: []config.Match{{Pattern: "app.**", Chain: "o.stdout"}},
			check:   func(err error) bool { return errors.Is(err, errors.ErrNoMatchingRoute) && errors.IsFatal(err) },
		},
		{
			name:    "unknown plugin",
			sources: []string{"i.nothing"},
			check:   func(err error) bool { return errors.Is(err, errors.ErrUnknownPlugin) },
		},
		{
			name:    "bad pattern",
			sources: []string{"i.counter | o.stdout"},
			matches: []config.Match{{Pattern: "a.{b", Chain: "o.stdout"}},
			check:   func(err error) bool { return errors.Is(err, errors.ErrBadPattern) },
		},
		{
			name:    "buffer on a sink without buffer",
			sources: []string{"i.counter | o.capture | b.memory"},
			check:   func(err error) bool { return errors.Is(err, errors.ErrBadChain) },
		},
		{
			name:    "bad plugin arguments",
			sources: []string{"i.counter --count=x | o.stdout"},
			check:   errors.IsInvalid,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := NewServiceAgent(newConfig(test.sources, test.matches...), reg).Build()
			require.Error(t, err)
			assert.True(t, test.check(err), err.Error())
		})
	}
}

func TestServiceAgent_Run(t *testing.T) {
	capture := swaktest.NewCaptureSink("o.capture")
	reg := newRegistry(t, capture)
	cfg := newConfig(
		[]string{
			"i.counter -c 3 | tag app.web",
			"i.counter -c 2 -f 2 | tag app.db",
		},
		config.Match{Pattern: "app.**", Chain: "m.reform -w src=${tag_parts[1]} | o.capture"},
	)

	registry := metric.NewMetricsRegistry()
	a := NewServiceAgent(cfg, reg, WithMetrics(registry), WithVersion("1.2.3"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return capture.Len() == 5 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return a.checkHealth() == nil }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, a.Health().IsUnhealthy())
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("agent did not stop")
	}

	bySrc := map[string]int{}
	for _, ev := range capture.Events() {
		bySrc[ev.Record["src"].(string)]++
	}
	assert.Equal(t, map[string]int{"web": 3, "db": 2}, bySrc)
	assert.Equal(t, plugin.StateShutdown, capture.State())

	info := registry.CoreMetrics().AgentInfo.WithLabelValues(a.RunID(), "1.2.3")
	assert.Equal(t, 1.0, testutil.ToFloat64(info))

	assert.True(t, errors.IsFatal(a.Run(context.Background())))
	assert.Error(t, a.checkHealth())
}

func TestServiceAgent_DrainsAtShutdown(t *testing.T) {
	capture := swaktest.NewCaptureSink("o.capture")
	reg := newRegistry(t, capture)
	cfg := newConfig(
		[]string{"i.counter -c 50 | tag app"},
		config.Match{Pattern: "app", Chain: "o.capture"},
	)
	cfg.Proxy.PollInterval = time.Hour

	a := NewServiceAgent(cfg, reg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// The sink pod sleeps on its poll interval; everything arrives through
	// the drain on shutdown.
	time.Sleep(100 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 50, capture.Len())
}

func TestTestAgent_Run(t *testing.T) {
	var out bytes.Buffer
	reg := newRegistry(t, swaktest.NewCaptureSink("o.capture"))
	a := NewTestAgent(reg, true, WithOutput(&out))

	require.NoError(t, a.Run(context.Background(), "i.counter -c 2 | m.reform -w a=1 -d f1 | tag t.x"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		fields := strings.Split(line, "\t")
		require.Len(t, fields, 3)
		assert.Equal(t, "t.x", fields[1])
		assert.Equal(t, `{"a":"1"}`, fields[2])
	}
}

func TestTestAgent_RunConcurrent(t *testing.T) {
	var out bytes.Buffer
	capture := swaktest.NewCaptureSink("o.capture")
	reg := newRegistry(t, capture)
	a := NewTestAgent(reg, false, WithOutput(&out))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx, "i.counter -c 3", "i.counter -c 2 | o.capture"))

	assert.Equal(t, 3, strings.Count(out.String(), "\n"))
	assert.Equal(t, 2, capture.Len())
}

func TestTestAgent_Errors(t *testing.T) {
	reg := newRegistry(t, swaktest.NewCaptureSink("o.capture"))
	a := NewTestAgent(reg, false)

	assert.True(t, errors.IsInvalid(a.Run(context.Background())))
	assert.True(t, errors.IsInvalid(a.Run(context.Background(), "o.stdout")))
	assert.True(t, errors.IsInvalid(a.Run(context.Background(), "i.counter | m.filter -i")))
}
