// Package plugin defines the source, filter and sink contracts, the lifecycle
// every plugin instance goes through, the sink base with formatter and
// buffer, the proxy pair that joins pods, and the name-based plugin registry.
package plugin

import (
	"context"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
	"github.com/haje01/swak/metric"
)

// Kind discriminates the role of a plugin.
type Kind int

const (
	KindSource Kind = iota
	KindFilter
	KindSink
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindFilter:
		return "filter"
	case KindSink:
		return "sink"
	default:
		return "unknown"
	}
}

// Prefix returns the chain prefix used for plugins of this kind.
func (k Kind) Prefix() string {
	switch k {
	case KindSource:
		return "i."
	case KindFilter:
		return "m."
	case KindSink:
		return "o."
	default:
		return ""
	}
}

// State is the lifecycle state of a plugin. It only moves forward:
// created, started, stopped, shutdown.
type State int32

const (
	StateCreated State = iota
	StateStarted
	StateStopped
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Plugin is implemented by every source, filter and sink.
type Plugin interface {
	Name() string
	Kind() Kind
	State() State

	// Tag is the source tag for sources and the routing pattern for filters
	// and sinks.
	Tag() string
	SetTag(tag string)

	Start(ctx context.Context) error
	// Stop asks the plugin to wind down. It does not block.
	Stop() error
	// Shutdown releases resources. Sinks flush here when configured to.
	Shutdown(ctx context.Context) error
}

// Source produces tagged data streams.
type Source interface {
	Plugin
	// Read returns a lazy sequence of (tag, stream) pairs. A nil stream is a
	// no-data sentinel that still lets the caller run its flush checks. The
	// sequence ends when the source is exhausted or ctx is done.
	Read(ctx context.Context) iter.Seq2[string, event.Stream]
}

// Filter transforms or drops events.
type Filter interface {
	Plugin
	// PrepareForStream is called once per stream before Apply.
	PrepareForStream(tag string, s event.Stream)
	// Apply returns the event to forward, or a nil record to drop it.
	Apply(tag string, t time.Time, r event.Record) (time.Time, event.Record, error)
}

// Sink is the terminal collector of a pipeline.
type Sink interface {
	Plugin
	// Append takes a stream and returns the bytes appended.
	Append(ctx context.Context, tag string, s event.Stream) (int, error)
	// Flush writes the head chunk, or every chunk when all is set.
	Flush(ctx context.Context, all bool) error
	MaybeFlush(ctx context.Context) error
	MaybeFlushWithin(ctx context.Context, force time.Duration) error
	// Write delivers formatted bytes to the destination.
	Write(ctx context.Context, data []byte) error
}

// Instrumentable plugins accept the pod's logger and metrics registry.
type Instrumentable interface {
	Instrument(logger *slog.Logger, registry *metric.MetricsRegistry)
}

// Hooks are the plugin specific parts of the lifecycle.
type Hooks struct {
	OnStart    func(ctx context.Context) error
	OnStop     func()
	OnShutdown func(ctx context.Context) error
}

// Base implements the lifecycle state machine. Plugins embed *Base and
// supply their hooks through NewBase.
type Base struct {
	name   string
	kind   Kind
	tag    string
	state  atomic.Int32
	hooks  Hooks
	logger *slog.Logger
}

// NewBase creates a lifecycle in the created state.
func NewBase(name string, kind Kind, hooks Hooks) *Base {
	b := &Base{name: name, kind: kind, hooks: hooks}
	b.logger = slog.Default().With("plugin", name)
	return b
}

func (b *Base) Name() string { return b.name }
func (b *Base) Kind() Kind { return b.kind }
func (b *Base) State() State { return State(b.state.Load()) }
func (b *Base) Tag() string { return b.tag }
func (b *Base) SetTag(tag string) { b.tag = tag }
func (b *Base) Logger() *slog.Logger { return b.logger }

// Instrument replaces the logger.
func (b *Base) Instrument(logger *slog.Logger, _ *metric.MetricsRegistry) {
	if logger != nil {
		b.logger = logger.With("plugin", b.name)
	}
}

// Start moves created to started.
func (b *Base) Start(ctx context.Context) error {
	if s := b.State(); s != StateCreated {
		return b.violation("Start", s)
	}
	if b.hooks.OnStart != nil {
		if err := b.hooks.OnStart(ctx); err != nil {
			return errors.Wrap(err, b.name, "Start", "start plugin")
		}
	}
	b.state.Store(int32(StateStarted))
	return nil
}

// Stop moves started to stopped.
func (b *Base) Stop() error {
	if s := b.State(); s != StateStarted {
		return b.violation("Stop", s)
	}
	if b.hooks.OnStop != nil {
		b.hooks.OnStop()
	}
	b.state.Store(int32(StateStopped))
	return nil
}

// Shutdown moves stopped to shutdown. The state becomes shutdown even when
// the hook fails, so resources are never released twice.
func (b *Base) Shutdown(ctx context.Context) error {
	if s := b.State(); s != StateStopped {
		return b.violation("Shutdown", s)
	}
	b.state.Store(int32(StateShutdown))
	if b.hooks.OnShutdown != nil {
		if err := b.hooks.OnShutdown(ctx); err != nil {
			return errors.Wrap(err, b.name, "Shutdown", "shutdown plugin")
		}
	}
	return nil
}

func (b *Base) violation(method string, s State) error {
	var err error
	switch {
	case s == StateShutdown:
		err = errors.ErrAlreadyShutdown
	case method == "Start":
		err = errors.ErrAlreadyStarted
	case method == "Stop" && s == StateCreated:
		err = errors.ErrNotStarted
	case method == "Stop":
		err = errors.ErrAlreadyStopped
	default:
		err = errors.ErrNotStopped
	}
	return errors.WrapFatal(err, b.name, method, "lifecycle check in state "+s.String())
}
