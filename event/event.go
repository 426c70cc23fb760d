// Package event defines the records that flow through swak and the data
// streams that carry them between sources, filters and sinks.
package event

import (
	"fmt"
	"iter"
	"maps"
	"time"

	"github.com/haje01/swak/errors"
)

// Record is one event: string keys to arbitrary values. Filters mutate
// records in place; the holder of a record owns it.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	return maps.Clone(r)
}

// Stream is an ordered sequence of (time, record) pairs sharing one tag.
type Stream interface {
	Len() int
	// All yields the events in order. Streams in this package are backed by
	// memory and can be iterated more than once.
	All() iter.Seq2[time.Time, Record]
}

// One is a stream holding a single event.
type One struct {
	Time   time.Time
	Record Record
}

// NewOne wraps a single event as a stream.
func NewOne(t time.Time, r Record) *One {
	return &One{Time: t, Record: r}
}

func (o *One) Len() int { return 1 }

func (o *One) All() iter.Seq2[time.Time, Record] {
	return func(yield func(time.Time, Record) bool) {
		yield(o.Time, o.Record)
	}
}

// Multi is a stream holding any number of events.
type Multi struct {
	times   []time.Time
	records []Record
}

// NewMulti builds a stream from parallel slices of equal length.
func NewMulti(times []time.Time, records []Record) (*Multi, error) {
	if len(times) != len(records) {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %d times for %d records", errors.ErrInvalidData, len(times), len(records)),
			"event", "NewMulti", "length check")
	}
	return &Multi{times: times, records: records}, nil
}

// NewMultiWithCap returns an empty stream with room for n events.
func NewMultiWithCap(n int) *Multi {
	return &Multi{
		times:   make([]time.Time, 0, n),
		records: make([]Record, 0, n),
	}
}

// Add appends one event.
func (m *Multi) Add(t time.Time, r Record) {
	m.times = append(m.times, t)
	m.records = append(m.records, r)
}

func (m *Multi) Len() int { return len(m.records) }

func (m *Multi) All() iter.Seq2[time.Time, Record] {
	return func(yield func(time.Time, Record) bool) {
		for i := range m.records {
			if !yield(m.times[i], m.records[i]) {
				return
			}
		}
	}
}

// Empty reports whether s is nil or holds no events.
func Empty(s Stream) bool {
	return s == nil || s.Len() == 0
}

// Records collects the records of s, mostly for tests and diagnostics.
func Records(s Stream) []Record {
	if s == nil {
		return nil
	}
	out := make([]Record, 0, s.Len())
	for _, r := range s.All() {
		out = append(out, r)
	}
	return out
}
