// Package router decides which filters and which terminal sink handle an
// event stream. Rules are (tag pattern, filter or sink) pairs evaluated in
// registration order: every matching filter applies, the first matching sink
// ends the scan, and the default sink is used when no sink rule matches.
// The resulting Pipeline is cached per tag.
//
// A Router belongs to one pod and is not safe for concurrent use.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
	"github.com/haje01/swak/metric"
	"github.com/haje01/swak/plugin"
	"github.com/haje01/swak/tag"
)

// Rule binds a compiled tag pattern to exactly one of Filter or Sink.
type Rule struct {
	Pattern string
	Matcher tag.Matcher
	Filter  plugin.Filter
	Sink    plugin.Sink
}

// Pipeline is the ordered filters and the terminal sink for one tag.
type Pipeline struct {
	Filters []plugin.Filter
	Sink    plugin.Sink
}

// Option configures a Router.
type Option func(*Router)

// WithDebug makes EmitStream return filter and sink errors instead of
// logging them.
func WithDebug(debug bool) Option {
	return func(r *Router) { r.debug = debug }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records routing counters under the pod's name.
func WithMetrics(registry *metric.MetricsRegistry, pod string) Option {
	return func(r *Router) {
		if registry != nil {
			r.metrics = registry.CoreMetrics()
			r.pod = pod
		}
	}
}

// Router routes tagged streams through their pipelines.
type Router struct {
	rules       []Rule
	cache       map[string]*Pipeline
	defaultSink plugin.Sink

	debug   bool
	logger  *slog.Logger
	metrics *metric.Metrics
	pod     string
}

// New creates a router falling back to defaultSink.
func New(defaultSink plugin.Sink, opts ...Option) *Router {
	r := &Router{
		cache:       make(map[string]*Pipeline),
		defaultSink: defaultSink,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "router")
	return r
}

// DefaultSink returns the sink used when no sink rule matches.
func (r *Router) DefaultSink() plugin.Sink { return r.defaultSink }

// Rules returns the registered rules in order.
func (r *Router) Rules() []Rule { return r.rules }

// AddRule compiles pattern and appends a rule for p, which must be a filter
// or a sink. The plugin's tag is set to the raw pattern. Adding a rule
// clears the pipeline cache.
func (r *Router) AddRule(pattern string, p plugin.Plugin) error {
	m, err := tag.Compile(pattern)
	if err != nil {
		return err
	}

	rule := Rule{Pattern: pattern, Matcher: m}
	switch c := p.(type) {
	case plugin.Filter:
		rule.Filter = c
	case plugin.Sink:
		rule.Sink = c
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: %s is a %s, not a filter or sink", errors.ErrBadChain, p.Name(), p.Kind()),
			"Router", "AddRule", "collector check")
	}

	p.SetTag(pattern)
	r.rules = append(r.rules, rule)
	if len(r.cache) > 0 {
		clear(r.cache)
		r.recordPipelines()
	}
	return nil
}

// HasMatch reports whether any rule accepts t.
func (r *Router) HasMatch(t string) bool {
	for _, rule := range r.rules {
		if rule.Matcher.Match(t) {
			return true
		}
	}
	return false
}

// Match returns the cached pipeline for t, building it on first use.
func (r *Router) Match(t string) *Pipeline {
	if p, ok := r.cache[t]; ok {
		return p
	}

	p := &Pipeline{}
	for _, rule := range r.rules {
		if !rule.Matcher.Match(t) {
			continue
		}
		if rule.Sink != nil {
			p.Sink = rule.Sink
			break
		}
		p.Filters = append(p.Filters, rule.Filter)
	}
	if p.Sink == nil {
		p.Sink = r.defaultSink
	}

	r.cache[t] = p
	r.recordPipelines()
	r.logger.Debug("Pipeline built", "tag", t, "filters", len(p.Filters), "sink", sinkName(p.Sink))
	return p
}

// Emit routes a single event.
func (r *Router) Emit(ctx context.Context, t string, ts time.Time, rec event.Record) (int, error) {
	return r.EmitStream(ctx, t, event.NewOne(ts, rec))
}

// EmitStream runs every event of s through the filters of t's pipeline and
// appends the survivors to its sink. It returns the bytes appended.
//
// A failing filter or sink drops the rest of the stream. Events the sink
// accepted before failing stay accepted and only the others count as lost.
// The failure, or a panic, is logged and swallowed so one bad record cannot
// stop the pod; with debug set it is returned instead.
func (r *Router) EmitStream(ctx context.Context, t string, s event.Stream) (n int, err error) {
	if s == nil {
		return 0, nil
	}

	lost := s.Len()
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, fmt.Errorf("%w: panic while emitting: %v", errors.ErrInvalidData, rec)
		}
		if err != nil {
			r.record(metric.ResultError, lost)
			if r.debug {
				return
			}
			r.logger.Error("Emit failed, events dropped", "tag", t, "events", lost, "error", err)
			n, err = 0, nil
		}
	}()

	p := r.Match(t)
	if p.Sink == nil {
		return 0, errors.WrapInvalid(errors.ErrMissingConfig, "Router", "EmitStream", "resolve sink for "+t)
	}

	out := s
	if len(p.Filters) > 0 {
		if out, err = r.filter(t, p.Filters, s); err != nil {
			return 0, err
		}
		if dropped := s.Len() - out.Len(); dropped > 0 {
			r.record(metric.ResultDropped, dropped)
		}
		if out.Len() == 0 {
			return 0, nil
		}
		lost = out.Len()
	}

	n, err = p.Sink.Append(ctx, t, out)
	if err != nil {
		if accepted := min(errors.Accepted(err), out.Len()); accepted > 0 {
			r.record(metric.ResultEmitted, accepted)
			lost = out.Len() - accepted
		}
		return 0, errors.Wrap(err, "Router", "EmitStream", "append to "+p.Sink.Name())
	}
	r.record(metric.ResultEmitted, out.Len())
	if r.metrics != nil {
		r.metrics.RecordBytes(r.pod, n)
	}
	return n, nil
}

func (r *Router) filter(t string, filters []plugin.Filter, s event.Stream) (event.Stream, error) {
	for _, f := range filters {
		f.PrepareForStream(t, s)
	}

	out := event.NewMultiWithCap(s.Len())
	for ts, rec := range s.All() {
		kept := true
		for _, f := range filters {
			var err error
			ts, rec, err = f.Apply(t, ts, rec)
			if err != nil {
				return nil, errors.Wrap(err, "Router", "EmitStream", "apply "+f.Name())
			}
			if rec == nil {
				kept = false
				break
			}
		}
		if kept {
			out.Add(ts, rec)
		}
	}
	return out, nil
}

func (r *Router) record(result string, n int) {
	if r.metrics != nil {
		r.metrics.RecordEvents(r.pod, result, n)
	}
}

func (r *Router) recordPipelines() {
	if r.metrics != nil {
		r.metrics.RecordPipelines(r.pod, len(r.cache))
	}
}

func sinkName(s plugin.Sink) string {
	if s == nil {
		return ""
	}
	return s.Name()
}
