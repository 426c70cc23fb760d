package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haje01/swak/errors"
)

func TestOne(t *testing.T) {
	now := time.Now()
	s := NewOne(now, Record{"k": 1})

	assert.Equal(t, 1, s.Len())
	assert.False(t, Empty(s))

	var n int
	for ts, r := range s.All() {
		n++
		assert.Equal(t, now, ts)
		assert.Equal(t, 1, r["k"])
	}
	assert.Equal(t, 1, n)
}

func TestMulti_PreservesOrder(t *testing.T) {
	base := time.Unix(1000, 0)
	times := []time.Time{base, base.Add(time.Second), base.Add(2 * time.Second)}
	records := []Record{{"i": 0}, {"i": 1}, {"i": 2}}

	s, err := NewMulti(times, records)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	i := 0
	for ts, r := range s.All() {
		assert.Equal(t, times[i], ts)
		assert.Equal(t, i, r["i"])
		i++
	}

	assert.Equal(t, records, Records(s), "in-memory streams are replayable")
}

func TestMulti_LengthMismatch(t *testing.T) {
	_, err := NewMulti([]time.Time{time.Now()}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMulti_AddAndEarlyStop(t *testing.T) {
	s := NewMultiWithCap(2)
	assert.True(t, Empty(s))

	s.Add(time.Now(), Record{"a": 1})
	s.Add(time.Now(), Record{"b": 2})

	var seen int
	for range s.All() {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
	assert.Equal(t, 2, s.Len())
}

func TestEmpty(t *testing.T) {
	assert.True(t, Empty(nil))
	assert.Nil(t, Records(nil))
}

func TestRecord_Clone(t *testing.T) {
	r := Record{"a": 1}
	c := r.Clone()
	c["a"] = 2
	assert.Equal(t, 1, r["a"])
}
