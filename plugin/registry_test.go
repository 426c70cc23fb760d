package plugin

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haje01/swak/buffer"
	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/formatter"
)

func sourceFactory(args []string) (Plugin, error) {
	if len(args) > 0 && args[0] == "bad" {
		return nil, fmt.Errorf("bad argument")
	}
	return NewBase("i.dummy", KindSource, Hooks{}), nil
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Registration{
		Name: "i.dummy", Kind: KindSource, Description: "dummy source", Factory: sourceFactory,
	}))

	p, err := r.Create("i.dummy", nil)
	require.NoError(t, err)
	assert.Equal(t, KindSource, p.Kind())

	_, err = r.Create("i.dummy", []string{"bad"})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = r.Create("i.missing", nil)
	require.ErrorIs(t, err, errors.ErrUnknownPlugin)
}

func TestRegistry_RejectsBadRegistrations(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		reg  Registration
	}{
		{"no factory", Registration{Name: "i.x", Kind: KindSource}},
		{"wrong prefix", Registration{Name: "o.x", Kind: KindSource, Factory: sourceFactory}},
		{"prefix only", Registration{Name: "i.", Kind: KindSource, Factory: sourceFactory}},
		{"unknown kind", Registration{Name: "i.x", Kind: Kind(9), Factory: sourceFactory}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := r.Register(test.reg)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	r := NewRegistry()
	reg := Registration{Name: "i.dummy", Kind: KindSource, Factory: sourceFactory}
	require.NoError(t, r.Register(reg))
	require.ErrorIs(t, r.Register(reg), errors.ErrInvalidConfig)
}

func TestRegistry_BuffersAndFormatters(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterBuffer(BufferRegistration{
		Name:        "b.memory",
		Description: "memory buffer",
		Factory:     func([]string) (buffer.Config, error) { return buffer.DefaultConfig(), nil },
	}))
	require.NoError(t, r.RegisterFormatter(FormatterRegistration{
		Name:        "f.json",
		Description: "json lines",
		Factory:     func([]string) (formatter.Formatter, error) { return formatter.NewJSON(), nil },
	}))
	require.Error(t, r.RegisterBuffer(BufferRegistration{
		Name:    "memory",
		Factory: func([]string) (buffer.Config, error) { return buffer.Config{}, nil },
	}))
	require.Error(t, r.RegisterFormatter(FormatterRegistration{
		Name:    "b.json",
		Factory: func([]string) (formatter.Formatter, error) { return nil, nil },
	}))
	require.Error(t, r.RegisterBuffer(BufferRegistration{Name: "b.disk"}))

	cfg, err := r.CreateBuffer("b.memory", nil)
	require.NoError(t, err)
	assert.Equal(t, buffer.DefaultConfig(), cfg)

	f, err := r.CreateFormatter("f.json", nil)
	require.NoError(t, err)
	assert.True(t, f.Binary())

	_, err = r.CreateBuffer("b.disk", nil)
	require.ErrorIs(t, err, errors.ErrUnknownPlugin)
	_, err = r.CreateFormatter("f.xml", nil)
	require.ErrorIs(t, err, errors.ErrUnknownPlugin)
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Registration{Name: "i.dummy", Kind: KindSource, Description: "d", Factory: sourceFactory}))
	require.NoError(t, r.RegisterFormatter(FormatterRegistration{
		Name:        "f.json",
		Description: "j",
		Factory:     func([]string) (formatter.Formatter, error) { return formatter.NewJSON(), nil },
	}))

	assert.Equal(t, []Info{{Name: "f.json", Description: "j"}, {Name: "i.dummy", Description: "d"}}, r.List())
}

func TestRegistry_Describe(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Registration{
		Name:        "i.dummy",
		Kind:        KindSource,
		Description: "d",
		Factory:     sourceFactory,
		Usage:       func() string { return "  -c, --count int\n" },
	}))
	require.NoError(t, r.RegisterBuffer(BufferRegistration{
		Name:        "b.memory",
		Description: "m",
		Factory:     func([]string) (buffer.Config, error) { return buffer.DefaultConfig(), nil },
	}))

	info, err := r.Describe("i.dummy")
	require.NoError(t, err)
	assert.Equal(t, Info{Name: "i.dummy", Description: "d", Usage: "  -c, --count int\n"}, info)

	info, err = r.Describe("b.memory")
	require.NoError(t, err)
	assert.Equal(t, Info{Name: "b.memory", Description: "m"}, info)

	_, err = r.Describe("o.nowhere")
	require.ErrorIs(t, err, errors.ErrUnknownPlugin)
}
