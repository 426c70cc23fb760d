package tag

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haje01/swak/errors"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		tag     string
		want    bool
	}{
		{"a", "a", true},
		{"a", "b", false},
		{"a", "ab", false},

		{"a.*", "a.b", true},
		{"a.*", "a.b.c", false},
		{"a.*", "a", false},
		{"a.*", "ab", false},
		{"*", "anything", true},
		{"*", "a.b", false},
		{"a.*.c", "a.b.c", true},
		{"a.*.c", "a.b.d.c", false},

		{"**", "", true},
		{"**", "a.b.c", true},
		{"a.**", "a", true},
		{"a.**", "a.b", true},
		{"a.**", "a.b.c", true},
		{"a.**", "ab", false},
		{"a.**", "b.a", false},
		{"**a", "a", true},
		{"**a", "ba", true},
		{"**a", "c.ba", true},
		{"**a", "ab", false},
		{"**.b", "b", true},
		{"**.b", "x.y.b", true},
		{"**.b", "xb", false},
		{"a.**.b", "a.b", true},
		{"a.**.b", "a.x.b", true},
		{"a.**.b", "a.x.y.b", true},
		{"a.**.b", "ab", false},
		{"a.**.b", "a.xb", false},

		{"a.{b,c}", "a.b", true},
		{"a.{b,c}", "a.c", true},
		{"a.{b,c}", "a.d", false},
		{"{a,b}.*", "b.x", true},
		{"a.{b.*,c}", "a.b.x", true},
		{"a.{b.*,c}", "a.c", true},
		{"a.{b.*,c}", "a.b", false},
		{"{a,{b,c}}", "c", true},

		{"a b", "a", true},
		{"a b", "b", true},
		{"a b", "c", false},
		{"a.* b.**", "b.x.y", true},

		{`a\*`, "a*", true},
		{`a\*`, "ab", false},
		{"a+b", "a+b", true},
		{"a+b", "aab", false},
	}

	for _, tc := range tests {
		t.Run(tc.pattern+"/"+tc.tag, func(t *testing.T) {
			m, err := Compile(tc.pattern)
			require.NoError(t, err)
			assert.Equal(t, tc.want, m.Match(tc.tag))
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	for _, pattern := range []string{"", "   ", "a.{b,c", `a\`} {
		_, err := Compile(pattern)
		require.Error(t, err, pattern)
		assert.True(t, errors.IsInvalid(err))
	}
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("{") })
	assert.NotPanics(t, func() { MustCompile("a.*") })
}

func TestMatcher_String(t *testing.T) {
	assert.Equal(t, "a.*", MustCompile("a.*").String())
	assert.Equal(t, "a b", MustCompile("a b").String())
}

func TestMatcher_ConcurrentUse(t *testing.T) {
	m := MustCompile("app.** sys.*")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				assert.True(t, m.Match("app.web.access"))
				assert.False(t, m.Match("sys.a.b"))
			}
		}()
	}
	wg.Wait()
}
