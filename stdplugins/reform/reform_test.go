package reform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
)

var ts = time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)

func newReform(t *testing.T, args ...string) *Reform {
	t.Helper()
	r, err := Parse(args)
	require.NoError(t, err)
	r.SetHost("web-1", "10.0.1.23")
	return r
}

func apply(t *testing.T, r *Reform, tag string, rec event.Record) event.Record {
	t.Helper()
	r.PrepareForStream(tag, event.NewOne(ts, rec))
	_, out, err := r.Apply(tag, ts, rec)
	require.NoError(t, err)
	return out
}

func TestReform_Placeholders(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"${hostname}", "web-1"},
		{"${hostaddr}", "10.0.1.23"},
		{"${hostaddr_parts[0]}", "10"},
		{"${hostaddr_parts[-1]}", "23"},
		{"${tag}", "app.web.access"},
		{"${tag_parts[1]}", "web"},
		{"${tag_parts[-1]}", "access"},
		{"${tag_prefix[0]}", "app"},
		{"${tag_prefix[1]}", "app.web"},
		{"${tag_suffix[0]}", "access"},
		{"${tag_suffix[1]}", "web.access"},
		{"${tag_suffix[-1]}", "app.web.access"},
		{"${time}", "2024-03-04T05:06:07Z"},
		{"${record.level}", "warn"},
		{"${record.code}", "404"},
		{"[${record.level}] ${hostname}", "[warn] web-1"},
		{"{literal}", "{literal}"},
	}

	for _, test := range tests {
		t.Run(test.value, func(t *testing.T) {
			r := newReform(t, "-w", "out="+test.value)
			out := apply(t, r, "app.web.access", event.Record{"level": "warn", "code": 404})
			assert.Equal(t, test.want, out["out"])
		})
	}
}

func TestReform_WriteAndDelete(t *testing.T) {
	r := newReform(t, "-w", "host=${hostname}", "-w", "tmp=x", "-d", "tmp", "-d", "secret")
	out := apply(t, r, "a", event.Record{"secret": "s", "keep": 1})
	assert.Equal(t, event.Record{"host": "web-1", "keep": 1}, out)
}

func TestReform_ApplyErrors(t *testing.T) {
	r := newReform(t, "-w", "x=${record.missing}")
	_, _, err := r.Apply("a", ts, event.Record{})
	require.ErrorIs(t, err, errors.ErrInvalidData)

	r = newReform(t, "-w", "x=${tag_parts[5]}")
	_, _, err = r.Apply("a.b", ts, event.Record{})
	require.ErrorIs(t, err, errors.ErrInvalidData)
}

func TestReform_TagChangeWithoutPrepare(t *testing.T) {
	r := newReform(t, "-w", "t=${tag_parts[0]}")
	assert.Equal(t, "a", apply(t, r, "a.x", event.Record{})["t"])

	_, out, err := r.Apply("b.y", ts, event.Record{})
	require.NoError(t, err)
	assert.Equal(t, "b", out["t"])
}

func TestReform_BadArgs(t *testing.T) {
	for _, args := range [][]string{
		{"-w", "novalue"},
		{"-w", "=v"},
		{"-w", "k=${nope}"},
		{"-w", "k=${record.}"},
		{"stray"},
	} {
		_, err := Parse(args)
		require.Error(t, err, args)
		assert.True(t, errors.IsInvalid(err))
	}
}

func TestReform_DetectHost(t *testing.T) {
	r, err := Parse([]string{"-w", "h=${hostname}"})
	require.NoError(t, err)
	out := apply(t, r, "a", event.Record{})
	assert.NotEmpty(t, r.hostaddr)
	assert.Equal(t, r.hostname, out["h"])
}
