package plugin

import (
	"context"
	"log/slog"
	"time"

	"github.com/haje01/swak/buffer"
	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
	"github.com/haje01/swak/formatter"
	"github.com/haje01/swak/metric"
	"github.com/haje01/swak/pkg/retry"
)

// Output is the base of every concrete sink. It formats events and either
// writes them at once or appends them to a chunk buffer created on Start.
type Output struct {
	*Base

	writer    buffer.Writer
	formatter formatter.Formatter
	bufCfg    *buffer.Config
	buf       *buffer.Buffer
	retry     retry.Config
	clock     func() time.Time
	registry  *metric.MetricsRegistry
}

// NewOutput creates a sink base. w delivers formatted bytes; hooks run after
// the base's own start and shutdown work.
func NewOutput(name string, w buffer.Writer, f formatter.Formatter, hooks Hooks) *Output {
	o := &Output{
		writer:    w,
		formatter: f,
		retry:     retry.Once(),
	}
	o.Base = NewBase(name, KindSink, Hooks{
		OnStart: func(ctx context.Context) error {
			if err := o.openBuffer(); err != nil {
				return err
			}
			if hooks.OnStart != nil {
				return hooks.OnStart(ctx)
			}
			return nil
		},
		OnStop: hooks.OnStop,
		OnShutdown: func(ctx context.Context) error {
			var flushErr error
			if o.buf != nil && o.buf.Config().FlushAtShutdown {
				flushErr = o.buf.FlushAll(ctx)
			}
			if hooks.OnShutdown != nil {
				if err := hooks.OnShutdown(ctx); err != nil && flushErr == nil {
					return err
				}
			}
			return flushErr
		},
	})
	return o
}

// SetFormatter replaces the formatter. Only valid before Start.
func (o *Output) SetFormatter(f formatter.Formatter) {
	if f != nil {
		o.formatter = f
	}
}

// Formatter returns the formatter in use.
func (o *Output) Formatter() formatter.Formatter { return o.formatter }

// SetBuffer makes the sink buffered with cfg. The buffer is built on Start,
// with binary accounting following the formatter.
func (o *Output) SetBuffer(cfg buffer.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if o.State() != StateCreated {
		return errors.WrapFatal(errors.ErrAlreadyStarted, o.Name(), "SetBuffer", "buffer configuration")
	}
	o.bufCfg = &cfg
	return nil
}

// SetRetry sets the retry policy for chunk and unbuffered writes. Only
// transient write errors are retried.
func (o *Output) SetRetry(cfg retry.Config) { o.retry = cfg }

// Retry returns the retry policy in use.
func (o *Output) Retry() retry.Config { return o.retry }

// SetClock replaces the buffer clock, for tests.
func (o *Output) SetClock(now func() time.Time) { o.clock = now }

// Buffer returns the chunk buffer, or nil for an unbuffered sink.
func (o *Output) Buffer() *buffer.Buffer { return o.buf }

// Instrument sets the logger and the registry used by the buffer.
func (o *Output) Instrument(logger *slog.Logger, registry *metric.MetricsRegistry) {
	o.Base.Instrument(logger, registry)
	o.registry = registry
}

func (o *Output) openBuffer() error {
	if o.bufCfg == nil {
		return nil
	}
	cfg := *o.bufCfg
	cfg.Binary = o.formatter.Binary()

	buf, err := buffer.New(o.Name(), o.writer, cfg,
		buffer.WithLogger(o.Logger()),
		buffer.WithMetrics(o.registry),
		buffer.WithRetry(o.retry),
		buffer.WithClock(o.clock))
	if err != nil {
		return err
	}
	o.buf = buf
	return nil
}

// Append formats every event of s. A formatting or write error aborts the
// stream; it is returned with the bytes appended so far and, through
// errors.Partial, the number of events already accepted.
func (o *Output) Append(ctx context.Context, tag string, s event.Stream) (int, error) {
	if s == nil {
		return 0, nil
	}

	n, accepted := 0, 0
	for t, r := range s.All() {
		data, err := o.formatter.Format(tag, t, r)
		if err != nil {
			return n, errors.Partial(err, accepted)
		}
		if o.buf != nil {
			n += o.buf.Append(data)
			accepted++
			continue
		}
		if err := retry.Do(ctx, o.retry, func(ctx context.Context) error {
			return errors.Retryable(o.writer.Write(ctx, data))
		}); err != nil {
			if errors.IsTransient(err) {
				err = errors.WrapTransient(err, o.Name(), "Append", "unbuffered write")
			} else {
				err = errors.Wrap(err, o.Name(), "Append", "unbuffered write")
			}
			return n, errors.Partial(err, accepted)
		}
		n += len(data)
		accepted++
	}
	return n, nil
}

// Write delivers data to the destination.
func (o *Output) Write(ctx context.Context, data []byte) error {
	return o.writer.Write(ctx, data)
}

// Flush writes the head chunk, or all chunks.
func (o *Output) Flush(ctx context.Context, all bool) error {
	if o.buf == nil {
		return nil
	}
	if all {
		return o.buf.FlushAll(ctx)
	}
	_, err := o.buf.Flush(ctx)
	return err
}

// MaybeFlush runs the buffer's flush triggers.
func (o *Output) MaybeFlush(ctx context.Context) error {
	if o.buf == nil {
		return nil
	}
	_, err := o.buf.MaybeFlush(ctx)
	return err
}

// MaybeFlushWithin runs the flush triggers with an extra caller interval.
func (o *Output) MaybeFlushWithin(ctx context.Context, force time.Duration) error {
	if o.buf == nil {
		return nil
	}
	_, err := o.buf.MaybeFlushWithin(ctx, force)
	return err
}

// Buffered sinks accept a chunk buffer configuration from a "b." segment.
type Buffered interface {
	SetBuffer(cfg buffer.Config) error
}

// Formattable sinks accept a formatter from an "f." segment.
type Formattable interface {
	SetFormatter(f formatter.Formatter)
}
