// Package counter implements i.counter, a source that emits incrementing
// numbers. It is mostly used to try chains out.
package counter

import (
	"context"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/spf13/pflag"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
	"github.com/haje01/swak/plugin"
)

// Name is the chain name of the plugin.
const Name = "i.counter"

// Counter emits count records whose fields f1..fN hold the running count.
// A zero count never ends.
type Counter struct {
	*plugin.Base

	count  int
	fields int
	delay  time.Duration
	now    func() time.Time
}

// Registration registers i.counter.
var Registration = plugin.Registration{
	Name:        Name,
	Kind:        plugin.KindSource,
	Description: "Generate incremental numbers.",
	Usage:       Usage,
	Factory: func(args []string) (plugin.Plugin, error) {
		c, err := Parse(args)
		if err != nil {
			return nil, err
		}
		return c, nil
	},
}

// New creates a counter.
func New(count, fields int, delay time.Duration) *Counter {
	return &Counter{
		Base:   plugin.NewBase(Name, plugin.KindSource, plugin.Hooks{}),
		count:  count,
		fields: fields,
		delay:  delay,
		now:    time.Now,
	}
}

type options struct {
	count  int
	fields int
	delay  time.Duration
}

func flags(o *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet(Name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVarP(&o.count, "count", "c", 3, "count to emit, 0 for endless")
	fs.IntVarP(&o.fields, "field", "f", 1, "count of fields")
	fs.DurationVarP(&o.delay, "delay", "d", 0, "delay before the next count")
	return fs
}

// Usage describes the chain arguments.
func Usage() string { return flags(new(options)).FlagUsages() }

// Parse builds a counter from chain arguments.
func Parse(args []string) (*Counter, error) {
	var o options
	if err := flags(&o).Parse(args); err != nil {
		return nil, errors.WrapInvalid(err, "Counter", "Parse", "parse arguments")
	}
	if o.count < 0 || o.fields < 1 || o.delay < 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: count %d, field %d, delay %s",
			errors.ErrInvalidConfig, o.count, o.fields, o.delay), "Counter", "Parse", "check arguments")
	}
	return New(o.count, o.fields, o.delay), nil
}

// Read yields one single-event stream per count under the plugin's tag.
func (c *Counter) Read(ctx context.Context) iter.Seq2[string, event.Stream] {
	return func(yield func(string, event.Stream) bool) {
		var timer *time.Timer
		if c.delay > 0 {
			timer = time.NewTimer(c.delay)
			defer timer.Stop()
		}

		for n := 1; c.count == 0 || n <= c.count; n++ {
			if ctx.Err() != nil {
				return
			}

			rec := make(event.Record, c.fields)
			for f := 1; f <= c.fields; f++ {
				rec[fmt.Sprintf("f%d", f)] = n
			}
			if !yield(c.Tag(), event.NewOne(c.now(), rec)) {
				return
			}

			if timer != nil {
				timer.Reset(c.delay)
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
				}
			}
		}
	}
}
