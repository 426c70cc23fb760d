package stdout

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haje01/swak/buffer"
	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
	"github.com/haje01/swak/formatter"
)

func TestStdout_Append(t *testing.T) {
	var out bytes.Buffer
	s := New(&out)
	s.SetFormatter(formatter.NewStdout(formatter.WithLocation(time.UTC)))

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	n, err := s.Append(ctx, "app.web", event.NewOne(ts, event.Record{"k": 1}))
	require.NoError(t, err)

	want := "2024-01-02T03:04:05Z\tapp.web\t{\"k\":1}\n"
	assert.Equal(t, want, out.String())
	assert.Equal(t, len(want), n)
}

func TestStdout_BufferedFlushesAtShutdown(t *testing.T) {
	var out bytes.Buffer
	s := New(&out)
	s.SetFormatter(formatter.NewStdout(formatter.WithLocation(time.UTC)))
	require.NoError(t, s.SetBuffer(buffer.DefaultConfig()))

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	_, err := s.Append(ctx, "a", event.NewOne(time.Unix(0, 0), event.Record{"n": 1}))
	require.NoError(t, err)
	assert.Empty(t, out.String())

	require.NoError(t, s.Stop())
	require.NoError(t, s.Shutdown(ctx))
	assert.Contains(t, out.String(), "\ta\t{\"n\":1}\n")
}

func TestStdout_Parse(t *testing.T) {
	s, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Name, s.Name())

	_, err = Parse([]string{"-e"})
	require.NoError(t, err)

	_, err = Parse([]string{"extra"})
	assert.True(t, errors.IsInvalid(err))
}
