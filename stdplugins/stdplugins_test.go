package stdplugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/plugin"
)

func TestRegister(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	var names []string
	for _, info := range reg.List() {
		names = append(names, info.Name)
		assert.NotEmpty(t, info.Description, info.Name)
	}
	assert.Equal(t, []string{
		"b.memory", "f.json", "f.stdout", "i.counter", "i.dummy",
		"m.filter", "m.reform", "o.file", "o.nats", "o.stdout",
	}, names)

	for _, name := range names {
		info, err := reg.Describe(name)
		require.NoError(t, err)
		assert.Contains(t, info.Usage, "--", name)
	}

	assert.ErrorIs(t, Register(reg), errors.ErrInvalidConfig)
}

func TestCreate(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	p, err := reg.Create("i.counter", []string{"-c", "2"})
	require.NoError(t, err)
	assert.Equal(t, plugin.KindSource, p.Kind())

	p, err = reg.Create("o.stdout", nil)
	require.NoError(t, err)
	_, ok := p.(plugin.Buffered)
	assert.True(t, ok)

	_, err = reg.Create("m.reform", []string{"-w"})
	assert.True(t, errors.IsInvalid(err))

	cfg, err := reg.CreateBuffer("b.memory", []string{"-m", "1"})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxChunks)
}
