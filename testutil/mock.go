// Package testutil provides in-memory plugins and helpers for testing
// routers, pods and agents without real sources or destinations.
package testutil

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/haje01/swak/event"
	"github.com/haje01/swak/plugin"
)

// Common test errors
var (
	ErrMockFailed     = errors.New("mock operation failed")
	ErrMockConnection = errors.New("mock connection error")
)

// Event is one captured event.
type Event struct {
	Tag    string
	Time   time.Time
	Record event.Record
}

// CaptureSink is a sink that keeps every appended event in memory.
// Thread-safe for concurrent use from multiple goroutines.
type CaptureSink struct {
	*plugin.Base

	mu          sync.Mutex
	events      []Event
	flushCalls  int
	maybeCalls  int
	drainCalls  int
	appendError error
	panicOn     string
}

// NewCaptureSink creates a capture sink named name.
func NewCaptureSink(name string) *CaptureSink {
	return &CaptureSink{Base: plugin.NewBase(name, plugin.KindSink, plugin.Hooks{})}
}

// FailWith makes every Append return err.
func (s *CaptureSink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendError = err
}

// PanicOn makes Append panic for the given tag.
func (s *CaptureSink) PanicOn(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panicOn = tag
}

// Append stores every event of st and returns the number of events as bytes.
func (s *CaptureSink) Append(_ context.Context, tag string, st event.Stream) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.panicOn != "" && s.panicOn == tag {
		panic("capture sink: forced panic")
	}
	if s.appendError != nil {
		return 0, s.appendError
	}

	n := 0
	for t, r := range st.All() {
		s.events = append(s.events, Event{Tag: tag, Time: t, Record: r.Clone()})
		n++
	}
	return n, nil
}

func (s *CaptureSink) Flush(context.Context, bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushCalls++
	return nil
}

func (s *CaptureSink) MaybeFlush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeCalls++
	return nil
}

func (s *CaptureSink) MaybeFlushWithin(context.Context, time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainCalls++
	return nil
}

func (s *CaptureSink) Write(context.Context, []byte) error { return nil }

// Events returns a copy of the captured events.
func (s *CaptureSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Records returns the captured records in order.
func (s *CaptureSink) Records() []event.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := make([]event.Record, len(s.events))
	for i, e := range s.events {
		recs[i] = e.Record
	}
	return recs
}

// Len returns the number of captured events.
func (s *CaptureSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// MaybeFlushCalls returns how often a flush check ran.
func (s *CaptureSink) MaybeFlushCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maybeCalls
}

// FlushCalls returns how often Flush was called.
func (s *CaptureSink) FlushCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushCalls
}

// DrainCalls returns how often a flush check with a force interval ran.
func (s *CaptureSink) DrainCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drainCalls
}

// FieldFilter sets one field on every event. With Drop set it drops events
// whose record already has the field.
type FieldFilter struct {
	*plugin.Base

	Key      string
	Value    any
	Drop     bool
	Err      error
	Prepared int
}

// NewFieldFilter creates a filter that sets key to value.
func NewFieldFilter(key string, value any) *FieldFilter {
	return &FieldFilter{
		Base:  plugin.NewBase("m.field", plugin.KindFilter, plugin.Hooks{}),
		Key:   key,
		Value: value,
	}
}

func (f *FieldFilter) PrepareForStream(string, event.Stream) { f.Prepared++ }

func (f *FieldFilter) Apply(_ string, t time.Time, r event.Record) (time.Time, event.Record, error) {
	if f.Err != nil {
		return t, nil, f.Err
	}
	if _, ok := r[f.Key]; ok && f.Drop {
		return t, nil, nil
	}
	r[f.Key] = f.Value
	return t, r, nil
}

// Item is one (tag, stream) pair produced by a SliceSource. A nil Stream is
// passed through as a no-data sentinel.
type Item struct {
	Tag    string
	Stream event.Stream
}

// SliceSource yields a fixed list of items and ends.
type SliceSource struct {
	*plugin.Base
	items []Item
}

// NewSliceSource creates a source over items.
func NewSliceSource(items ...Item) *SliceSource {
	return &SliceSource{
		Base:  plugin.NewBase("i.slice", plugin.KindSource, plugin.Hooks{}),
		items: items,
	}
}

// Records builds items for tag with one single-event stream per record.
func Records(tag string, recs ...event.Record) []Item {
	items := make([]Item, len(recs))
	for i, r := range recs {
		items[i] = Item{Tag: tag, Stream: event.NewOne(time.Unix(int64(i), 0), r)}
	}
	return items
}

func (s *SliceSource) Read(ctx context.Context) iter.Seq2[string, event.Stream] {
	return func(yield func(string, event.Stream) bool) {
		for _, it := range s.items {
			if ctx.Err() != nil {
				return
			}
			if !yield(it.Tag, it.Stream) {
				return
			}
		}
	}
}

// EndlessSource yields a sentinel every interval until ctx is done.
type EndlessSource struct {
	*plugin.Base
	interval time.Duration
}

// NewEndlessSource creates an idle source that only stops on cancellation.
func NewEndlessSource(interval time.Duration) *EndlessSource {
	return &EndlessSource{
		Base:     plugin.NewBase("i.endless", plugin.KindSource, plugin.Hooks{}),
		interval: interval,
	}
}

func (s *EndlessSource) Read(ctx context.Context) iter.Seq2[string, event.Stream] {
	return func(yield func(string, event.Stream) bool) {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !yield("", nil) {
					return
				}
			}
		}
	}
}
