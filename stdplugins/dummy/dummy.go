// Package dummy implements i.dummy, a source that repeats one record given
// as JSON on the command line.
package dummy

import (
	"context"
	"fmt"
	"io"
	"iter"
	"maps"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/pflag"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
	"github.com/haje01/swak/plugin"
)

// Name is the chain name of the plugin.
const Name = "i.dummy"

// Dummy emits the same record count times. A zero count never ends.
type Dummy struct {
	*plugin.Base

	record event.Record
	count  int
	delay  time.Duration
	now    func() time.Time
}

// Registration registers i.dummy.
var Registration = plugin.Registration{
	Name:        Name,
	Kind:        plugin.KindSource,
	Description: "Generate a user given record as dummy events.",
	Usage:       Usage,
	Factory: func(args []string) (plugin.Plugin, error) {
		d, err := Parse(args)
		if err != nil {
			return nil, err
		}
		return d, nil
	},
}

// New creates a dummy source.
func New(record event.Record, count int, delay time.Duration) *Dummy {
	return &Dummy{
		Base:   plugin.NewBase(Name, plugin.KindSource, plugin.Hooks{}),
		record: record,
		count:  count,
		delay:  delay,
		now:    time.Now,
	}
}

type options struct {
	count int
	delay time.Duration
}

func flags(o *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet(Name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVarP(&o.count, "count", "c", 3, "times to repeat the record, 0 for endless")
	fs.DurationVarP(&o.delay, "delay", "d", 0, "delay before the next record")
	return fs
}

// Usage describes the chain arguments.
func Usage() string {
	return "  RECORD                 JSON object to emit\n" + flags(new(options)).FlagUsages()
}

// Parse builds a dummy source from `'{"k": "v"}' [-c N] [-d DELAY]`.
func Parse(args []string) (*Dummy, error) {
	var o options
	fs := flags(&o)
	if err := fs.Parse(args); err != nil {
		return nil, errors.WrapInvalid(err, "Dummy", "Parse", "parse arguments")
	}
	if fs.NArg() != 1 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: want one JSON record, got %d arguments",
			errors.ErrInvalidConfig, fs.NArg()), "Dummy", "Parse", "check arguments")
	}
	if o.count < 0 || o.delay < 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: count %d, delay %s",
			errors.ErrInvalidConfig, o.count, o.delay), "Dummy", "Parse", "check arguments")
	}

	var rec event.Record
	if err := json.Unmarshal([]byte(fs.Arg(0)), &rec); err != nil || rec == nil {
		if err == nil {
			err = errors.ErrInvalidData
		}
		return nil, errors.WrapInvalid(err, "Dummy", "Parse", "decode record")
	}
	return New(rec, o.count, o.delay), nil
}

// Read yields a copy of the record per count, so filters never touch the
// original.
func (d *Dummy) Read(ctx context.Context) iter.Seq2[string, event.Stream] {
	return func(yield func(string, event.Stream) bool) {
		var timer *time.Timer
		if d.delay > 0 {
			timer = time.NewTimer(d.delay)
			defer timer.Stop()
		}

		for n := 1; d.count == 0 || n <= d.count; n++ {
			if ctx.Err() != nil {
				return
			}
			if !yield(d.Tag(), event.NewOne(d.now(), maps.Clone(d.record))) {
				return
			}

			if timer != nil {
				timer.Reset(d.delay)
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
				}
			}
		}
	}
}
