// Package formatter turns events into the bytes a sink writes.
package formatter

import (
	"bytes"
	"time"

	"github.com/goccy/go-json"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
)

// Formatter renders one event.
type Formatter interface {
	Format(tag string, t time.Time, r event.Record) ([]byte, error)
	// Binary reports whether the output is byte oriented. Buffers only keep
	// byte-size accounting for binary formatters.
	Binary() bool
}

// Option configures the time rendering of a formatter.
type Option func(*timeFormat)

type timeFormat struct {
	loc    *time.Location
	layout string
}

// WithLocation renders timestamps in loc.
func WithLocation(loc *time.Location) Option {
	return func(tf *timeFormat) {
		if loc != nil {
			tf.loc = loc
		}
	}
}

// WithLayout renders timestamps with a time.Format layout.
func WithLayout(layout string) Option {
	return func(tf *timeFormat) {
		if layout != "" {
			tf.layout = layout
		}
	}
}

func newTimeFormat(opts []Option) timeFormat {
	tf := timeFormat{loc: time.Local, layout: time.RFC3339}
	for _, opt := range opts {
		opt(&tf)
	}
	return tf
}

func (tf timeFormat) render(t time.Time) string {
	return t.In(tf.loc).Format(tf.layout)
}

// Stdout renders "<time>\t<tag>\t<record as json>\n".
type Stdout struct {
	tf timeFormat
}

// NewStdout creates the line formatter used by o.stdout.
func NewStdout(opts ...Option) *Stdout {
	return &Stdout{tf: newTimeFormat(opts)}
}

func (f *Stdout) Format(tag string, t time.Time, r event.Record) ([]byte, error) {
	rec, err := json.Marshal(r)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Stdout", "Format", "encode record")
	}

	var b bytes.Buffer
	b.Grow(len(rec) + len(tag) + 32)
	b.WriteString(f.tf.render(t))
	b.WriteByte('\t')
	b.WriteString(tag)
	b.WriteByte('\t')
	b.Write(rec)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *Stdout) Binary() bool { return false }

// JSON renders one JSON object per line.
type JSON struct {
	tf timeFormat
}

// NewJSON creates the JSON lines formatter used by file and NATS sinks.
func NewJSON(opts ...Option) *JSON {
	return &JSON{tf: newTimeFormat(opts)}
}

type jsonLine struct {
	Time   string       `json:"time"`
	Tag    string       `json:"tag"`
	Record event.Record `json:"record"`
}

func (f *JSON) Format(tag string, t time.Time, r event.Record) ([]byte, error) {
	line, err := json.Marshal(jsonLine{Time: f.tf.render(t), Tag: tag, Record: r})
	if err != nil {
		return nil, errors.WrapInvalid(err, "JSON", "Format", "encode event")
	}
	return append(line, '\n'), nil
}

func (f *JSON) Binary() bool { return true }
