// Package stdplugins registers the plugins that ship with swak.
package stdplugins

import (
	"github.com/haje01/swak/plugin"
	"github.com/haje01/swak/stdplugins/counter"
	"github.com/haje01/swak/stdplugins/dummy"
	"github.com/haje01/swak/stdplugins/file"
	"github.com/haje01/swak/stdplugins/filter"
	"github.com/haje01/swak/stdplugins/format"
	"github.com/haje01/swak/stdplugins/memory"
	"github.com/haje01/swak/stdplugins/natsout"
	"github.com/haje01/swak/stdplugins/reform"
	"github.com/haje01/swak/stdplugins/stdout"
)

// Register adds every standard plugin, buffer and formatter to reg.
func Register(reg *plugin.Registry) error {
	for _, r := range []plugin.Registration{
		counter.Registration,
		dummy.Registration,
		reform.Registration,
		filter.Registration,
		stdout.Registration,
		file.Registration,
		natsout.Registration,
	} {
		if err := reg.Register(r); err != nil {
			return err
		}
	}
	if err := reg.RegisterBuffer(plugin.BufferRegistration{
		Name:        memory.Name,
		Description: memory.Description,
		Factory:     memory.Parse,
		Usage:       memory.Usage,
	}); err != nil {
		return err
	}
	if err := reg.RegisterFormatter(plugin.FormatterRegistration{
		Name:        format.StdoutName,
		Description: "Tab separated time, tag and JSON record.",
		Factory:     format.ParseStdout,
		Usage:       format.Usage,
	}); err != nil {
		return err
	}
	return reg.RegisterFormatter(plugin.FormatterRegistration{
		Name:        format.JSONName,
		Description: "One JSON object per line.",
		Factory:     format.ParseJSON,
		Usage:       format.Usage,
	})
}

// NewRegistry returns a registry holding the standard plugins.
func NewRegistry() (*plugin.Registry, error) {
	reg := plugin.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
