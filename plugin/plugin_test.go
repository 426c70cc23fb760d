package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haje01/swak/errors"
)

func TestKind(t *testing.T) {
	assert.Equal(t, "source", KindSource.String())
	assert.Equal(t, "i.", KindSource.Prefix())
	assert.Equal(t, "m.", KindFilter.Prefix())
	assert.Equal(t, "o.", KindSink.Prefix())
	assert.Equal(t, "", Kind(42).Prefix())
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestBase_Lifecycle(t *testing.T) {
	var calls []string
	b := NewBase("m.test", KindFilter, Hooks{
		OnStart:    func(context.Context) error { calls = append(calls, "start"); return nil },
		OnStop:     func() { calls = append(calls, "stop") },
		OnShutdown: func(context.Context) error { calls = append(calls, "shutdown"); return nil },
	})
	ctx := context.Background()

	assert.Equal(t, StateCreated, b.State())
	require.NoError(t, b.Start(ctx))
	assert.Equal(t, StateStarted, b.State())
	require.NoError(t, b.Stop())
	assert.Equal(t, StateStopped, b.State())
	require.NoError(t, b.Shutdown(ctx))
	assert.Equal(t, StateShutdown, b.State())
	assert.Equal(t, []string{"start", "stop", "shutdown"}, calls)
}

func TestBase_Violations(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		steps  func(b *Base) error
		target error
	}{
		{"stop before start", func(b *Base) error { return b.Stop() }, errors.ErrNotStarted},
		{"shutdown before stop", func(b *Base) error { return b.Shutdown(ctx) }, errors.ErrNotStopped},
		{"double start", func(b *Base) error {
			_ = b.Start(ctx)
			return b.Start(ctx)
		}, errors.ErrAlreadyStarted},
		{"double stop", func(b *Base) error {
			_ = b.Start(ctx)
			_ = b.Stop()
			return b.Stop()
		}, errors.ErrAlreadyStopped},
		{"double shutdown", func(b *Base) error {
			_ = b.Start(ctx)
			_ = b.Stop()
			_ = b.Shutdown(ctx)
			return b.Shutdown(ctx)
		}, errors.ErrAlreadyShutdown},
		{"restart after shutdown", func(b *Base) error {
			_ = b.Start(ctx)
			_ = b.Stop()
			_ = b.Shutdown(ctx)
			return b.Start(ctx)
		}, errors.ErrAlreadyShutdown},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.steps(NewBase("i.test", KindSource, Hooks{}))
			require.Error(t, err)
			assert.ErrorIs(t, err, test.target)
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestBase_StartHookFailureKeepsCreated(t *testing.T) {
	b := NewBase("o.test", KindSink, Hooks{
		OnStart: func(context.Context) error { return errors.ErrNoConnection },
	})

	err := b.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.Equal(t, StateCreated, b.State())
}

func TestBase_Tag(t *testing.T) {
	b := NewBase("m.test", KindFilter, Hooks{})
	b.SetTag("app.**")
	assert.Equal(t, "app.**", b.Tag())
	assert.Equal(t, "m.test", b.Name())
	assert.Equal(t, KindFilter, b.Kind())
}
