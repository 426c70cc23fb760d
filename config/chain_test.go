package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haje01/swak/errors"
)

func TestParseChain_Quoting(t *testing.T) {
	chain, err := ParseChain(`i.counter -f "a b" | m.reform -w 'msg=x | y' -w k=a\ b | o.stdout`)
	require.NoError(t, err)
	require.Len(t, chain.Segments, 3)

	assert.Equal(t, Segment{Name: "i.counter", Args: []string{"-f", "a b"}}, chain.Segments[0])
	assert.Equal(t, Segment{Name: "m.reform", Args: []string{"-w", "msg=x | y", "-w", "k=a b"}}, chain.Segments[1])
	assert.Equal(t, Segment{Name: "o.stdout", Args: []string{}}, chain.Segments[2])
	assert.Equal(t, "m.", chain.Segments[1].Prefix())
	assert.Equal(t, "i.counter -f a b", chain.Segments[0].String())
}

func TestParseChain_Errors(t *testing.T) {
	for _, raw := range []string{
		`i.counter | | o.stdout`,
		`i.counter -f "open`,
		`i.counter -f 'open | o.stdout`,
		`i.counter \`,
		``,
	} {
		_, err := ParseChain(raw)
		require.ErrorIs(t, err, errors.ErrBadChain, raw)
	}
}

func TestParseSourceChain(t *testing.T) {
	tests := []struct {
		raw     string
		tag     string
		sink    bool
		nsegs   int
		wantErr bool
	}{
		{raw: "i.counter", tag: NoTag, nsegs: 1},
		{raw: "i.counter | tag app.web", tag: "app.web", nsegs: 1},
		{raw: "i.counter | m.reform -d k | o.stdout | b.memory -r 10 | f.json | tag t", tag: "t", sink: true, nsegs: 5},
		{raw: "i.counter | tag a b", tag: "a b", nsegs: 1},
		{raw: "m.reform | o.stdout", wantErr: true},
		{raw: "tag x", wantErr: true},
		{raw: "i.counter | tag", wantErr: true},
		{raw: "i.counter | tag x | o.stdout", wantErr: true},
		{raw: "i.counter | i.other", wantErr: true},
		{raw: "i.counter | o.a | o.b", wantErr: true},
		{raw: "i.counter | o.a | m.reform", wantErr: true},
		{raw: "i.counter | b.memory | o.a", wantErr: true},
		{raw: "i.counter | x.unknown", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.raw, func(t *testing.T) {
			chain, err := ParseSourceChain(test.raw)
			if test.wantErr {
				require.ErrorIs(t, err, errors.ErrBadChain)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.tag, chain.Tag)
			assert.Equal(t, test.sink, chain.HasSink())
			assert.Len(t, chain.Segments, test.nsegs)
		})
	}
}

func TestParseMatchChain(t *testing.T) {
	chain, err := ParseMatchChain("m.filter -x k=v | o.file -p out.log | b.memory")
	require.NoError(t, err)
	assert.True(t, chain.HasSink())
	assert.Equal(t, "", chain.Tag)

	for _, raw := range []string{
		"m.filter -x k=v",
		"i.counter | o.stdout",
		"o.stdout | tag x",
	} {
		_, err := ParseMatchChain(raw)
		require.ErrorIs(t, err, errors.ErrBadChain, raw)
	}
}
