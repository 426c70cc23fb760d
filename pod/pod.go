// Package pod runs one source, its routing table and its sinks on a single
// goroutine. A pod owns every plugin it holds: nothing inside a pod is
// shared with other pods except proxy queues.
package pod

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
	"github.com/haje01/swak/metric"
	"github.com/haje01/swak/plugin"
	"github.com/haje01/swak/router"
)

// DefaultIdleWait is how long Process waits after a source reported no data.
const DefaultIdleWait = 50 * time.Millisecond

// Option configures a Pod.
type Option func(*Pod)

// WithLogger sets the logger passed on to the router and plugins.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pod) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records pod, router and buffer metrics in registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Pod) { p.registry = registry }
}

// WithDebug makes routing errors stop the pod instead of being logged.
func WithDebug(debug bool) Option {
	return func(p *Pod) { p.debug = debug }
}

// WithDefaultSink replaces the stdout default sink.
func WithDefaultSink(s plugin.Sink) Option {
	return func(p *Pod) {
		if s != nil {
			p.defaultSink = s
		}
	}
}

// WithIdleWait sets the wait after a no-data item from a regular source.
// Proxy inputs pace themselves and are not affected.
func WithIdleWait(d time.Duration) Option {
	return func(p *Pod) { p.idleWait = d }
}

// WithDrainInterval sets the force interval of the final flush check run
// when the source ends.
func WithDrainInterval(d time.Duration) Option {
	return func(p *Pod) { p.drainInterval = d }
}

// Pod is an ordered list of plugins, a router and a default sink.
type Pod struct {
	name        string
	plugins     []plugin.Plugin
	router      *router.Router
	defaultSink plugin.Sink

	debug         bool
	idleWait      time.Duration
	drainInterval time.Duration
	logger        *slog.Logger
	registry      *metric.MetricsRegistry
	metrics       *metric.Metrics

	served  atomic.Bool
	state   atomic.Int32
	mu      sync.Mutex
	lastErr error
}

// New creates an empty pod.
func New(name string, opts ...Option) *Pod {
	p := &Pod{
		name:     name,
		idleWait: DefaultIdleWait,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("pod", name)
	if p.defaultSink == nil {
		p.defaultSink = newStdoutSink()
	}
	if p.registry != nil {
		p.metrics = p.registry.CoreMetrics()
	}
	p.instrument(p.defaultSink)
	p.router = router.New(p.defaultSink,
		router.WithDebug(p.debug),
		router.WithLogger(p.logger),
		router.WithMetrics(p.registry, name))
	return p
}

// Name returns the pod name.
func (p *Pod) Name() string { return p.name }

// String names the pod in supervisor logs.
func (p *Pod) String() string { return "pod/" + p.name }

// Router returns the pod's router.
func (p *Pod) Router() *router.Router { return p.router }

// Plugins returns the registered plugins in order.
func (p *Pod) Plugins() []plugin.Plugin { return p.plugins }

// Register appends pl. Filters and sinks also get a routing rule for
// pattern; a source gets pattern as its tag.
func (p *Pod) Register(pl plugin.Plugin, pattern string) error {
	if pl.Kind() == plugin.KindSource {
		if len(p.Sources()) > 0 {
			return errors.WrapInvalid(fmt.Errorf("%w: pod %s already has a source", errors.ErrBadChain, p.name),
				"Pod", "Register", "source check")
		}
		pl.SetTag(pattern)
	} else if err := p.router.AddRule(pattern, pl); err != nil {
		return err
	}

	p.instrument(pl)
	p.plugins = append(p.plugins, pl)
	return nil
}

// Insert puts a source in front of the other plugins. Sink pods use it for
// their proxy input.
func (p *Pod) Insert(src plugin.Source) error {
	if len(p.Sources()) > 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: pod %s already has a source", errors.ErrBadChain, p.name),
			"Pod", "Insert", "source check")
	}
	p.instrument(src)
	p.plugins = append([]plugin.Plugin{src}, p.plugins...)
	return nil
}

func (p *Pod) instrument(pl plugin.Plugin) {
	if in, ok := pl.(plugin.Instrumentable); ok {
		in.Instrument(p.logger, p.registry)
	}
}

// Sources returns the registered sources.
func (p *Pod) Sources() []plugin.Source {
	var out []plugin.Source
	for _, pl := range p.plugins {
		if s, ok := pl.(plugin.Source); ok {
			out = append(out, s)
		}
	}
	return out
}

// Sinks returns the registered sinks, or the default sink when none is
// registered. The result is never empty.
func (p *Pod) Sinks() []plugin.Sink {
	var out []plugin.Sink
	for _, pl := range p.plugins {
		if s, ok := pl.(plugin.Sink); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		out = append(out, p.defaultSink)
	}
	return out
}

// members is the plugin list with the default sink appended when no sink
// was registered.
func (p *Pod) members() []plugin.Plugin {
	for _, pl := range p.plugins {
		if pl.Kind() == plugin.KindSink {
			return p.plugins
		}
	}
	return append(append([]plugin.Plugin(nil), p.plugins...), p.defaultSink)
}

// Start starts every plugin in list order. When one fails, the plugins
// already started are stopped and shut down and the pod ends in shutdown.
func (p *Pod) Start(ctx context.Context) error {
	members := p.members()
	for i, pl := range members {
		if err := pl.Start(ctx); err != nil {
			p.unwind(context.WithoutCancel(ctx), members[:i])
			return errors.Wrap(err, "Pod", "Start", "start "+pl.Name())
		}
	}
	p.recordStatus(plugin.StateStarted)
	p.logger.Debug("Pod started", "plugins", len(p.plugins))
	return nil
}

func (p *Pod) unwind(ctx context.Context, started []plugin.Plugin) {
	for _, pl := range started {
		if err := pl.Stop(); err != nil {
			p.logger.Error("Plugin stop failed", "plugin", pl.Name(), "error", err)
		}
	}
	for _, pl := range started {
		if err := pl.Shutdown(ctx); err != nil {
			p.logger.Error("Plugin shutdown failed", "plugin", pl.Name(), "error", err)
		}
	}
	p.recordStatus(plugin.StateShutdown)
}

// Stop stops every plugin in list order. Every plugin is visited; the
// first error is returned.
func (p *Pod) Stop() error {
	var first error
	for _, pl := range p.members() {
		if err := pl.Stop(); err != nil {
			p.logger.Error("Plugin stop failed", "plugin", pl.Name(), "error", err)
			if first == nil {
				first = errors.Wrap(err, "Pod", "Stop", "stop "+pl.Name())
			}
		}
	}
	p.recordStatus(plugin.StateStopped)
	return first
}

// Shutdown shuts down every plugin in list order. Sinks flush here.
func (p *Pod) Shutdown(ctx context.Context) error {
	var first error
	for _, pl := range p.members() {
		if err := pl.Shutdown(ctx); err != nil {
			p.logger.Error("Plugin shutdown failed", "plugin", pl.Name(), "error", err)
			if first == nil {
				first = errors.Wrap(err, "Pod", "Shutdown", "shutdown "+pl.Name())
			}
		}
	}
	p.recordStatus(plugin.StateShutdown)
	p.logger.Debug("Pod shut down")
	return first
}

// MaybeFlush runs the flush triggers of every sink. Write failures are
// logged; the chunk stays buffered for the next check.
func (p *Pod) MaybeFlush(ctx context.Context) {
	for _, s := range p.Sinks() {
		if err := s.MaybeFlush(ctx); err != nil {
			p.logger.Warn("Flush check failed", "sink", s.Name(), "error", err)
		}
	}
}

func (p *Pod) maybeFlushWithin(ctx context.Context, force time.Duration) {
	for _, s := range p.Sinks() {
		if err := s.MaybeFlushWithin(ctx, force); err != nil {
			p.logger.Warn("Final flush check failed", "sink", s.Name(), "error", err)
		}
	}
}

// Process starts the pod, routes everything its source reads until the
// source ends or ctx is done, then stops and shuts the pod down. Flush
// triggers are checked after every item, including no-data items.
func (p *Pod) Process(ctx context.Context) error {
	sources := p.Sources()
	if len(sources) != 1 {
		return errors.WrapInvalid(fmt.Errorf("%w: pod %s has %d sources", errors.ErrBadChain, p.name, len(sources)),
			"Pod", "Process", "source check")
	}
	src := sources[0]
	_, proxied := src.(*plugin.ProxyInput)

	if err := p.Start(ctx); err != nil {
		return err
	}

	runErr := p.loop(ctx, src, proxied)
	if runErr == nil {
		p.maybeFlushWithin(context.WithoutCancel(ctx), p.drainInterval)
	}

	stopErr := p.Stop()
	shutdownErr := p.Shutdown(context.WithoutCancel(ctx))
	switch {
	case runErr != nil:
		return runErr
	case stopErr != nil:
		return stopErr
	default:
		return shutdownErr
	}
}

func (p *Pod) loop(ctx context.Context, src plugin.Source, proxied bool) error {
	var idle *time.Timer
	if !proxied && p.idleWait > 0 {
		idle = time.NewTimer(p.idleWait)
		defer idle.Stop()
	}

	for tag, s := range src.Read(ctx) {
		if !event.Empty(s) {
			if _, err := p.router.EmitStream(ctx, tag, s); err != nil {
				return errors.Wrap(err, "Pod", "Process", "emit "+tag)
			}
		}
		p.MaybeFlush(ctx)

		if s == nil && idle != nil {
			idle.Reset(p.idleWait)
			select {
			case <-ctx.Done():
			case <-idle.C:
			}
		}
	}
	return nil
}

// SimpleProcess runs the pod until its source is exhausted.
func (p *Pod) SimpleProcess() error {
	return p.Process(context.Background())
}

// Serve runs Process under a supervisor. A pod cannot run twice, so it
// never asks to be restarted.
func (p *Pod) Serve(ctx context.Context) error {
	if p.served.Swap(true) {
		return suture.ErrDoNotRestart
	}
	if err := p.Process(ctx); err != nil {
		p.logger.Error("Pod failed", "error", err)
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
	}
	return suture.ErrDoNotRestart
}

// State is the lifecycle state of the pod as a whole.
func (p *Pod) State() plugin.State { return plugin.State(p.state.Load()) }

// Err returns the error that ended Serve, if any.
func (p *Pod) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Pod) recordStatus(s plugin.State) {
	p.state.Store(int32(s))
	if p.metrics != nil {
		p.metrics.RecordPodStatus(p.name, int(s))
	}
}
