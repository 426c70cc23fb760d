package dummy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
)

func TestDummy_Read(t *testing.T) {
	d, err := Parse([]string{`{"name": "swak", "n": 1}`, "-c", "2"})
	require.NoError(t, err)
	d.SetTag("test")

	var recs []event.Record
	for tag, s := range d.Read(context.Background()) {
		assert.Equal(t, "test", tag)
		recs = append(recs, event.Records(s)...)
	}
	require.Len(t, recs, 2)
	assert.Equal(t, event.Record{"name": "swak", "n": 1.0}, recs[0])

	recs[0]["name"] = "changed"
	assert.Equal(t, "swak", recs[1]["name"], "every event gets its own copy")
	assert.Equal(t, "swak", d.record["name"])
}

func TestDummy_Defaults(t *testing.T) {
	d, err := Parse([]string{`{}`})
	require.NoError(t, err)
	assert.Equal(t, 3, d.count)
	assert.Equal(t, time.Duration(0), d.delay)
}

func TestDummy_EndlessStopsOnCancel(t *testing.T) {
	d := New(event.Record{"k": "v"}, 0, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	n := 0
	for range d.Read(ctx) {
		n++
		if n == 4 {
			cancel()
		}
	}
	assert.Equal(t, 4, n)
}

func TestDummy_BadArgs(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{`{"a":1}`, `{"b":2}`},
		{`[1, 2]`},
		{`null`},
		{`{"a":1}`, "-c", "-1"},
		{`{"a":1}`, "-z"},
	} {
		_, err := Parse(args)
		require.Error(t, err, args)
		assert.True(t, errors.IsInvalid(err), args)
	}
}

func TestUsage(t *testing.T) {
	u := Usage()
	assert.Contains(t, u, "RECORD")
	assert.Contains(t, u, "--count")
}
