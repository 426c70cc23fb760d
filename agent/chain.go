// Package agent builds pods from configuration and runs them. A
// ServiceAgent runs the sources and matches of an agent config as two
// supervised groups of pods joined by proxy queues. A TestAgent runs
// single chains from the command line.
package agent

import (
	"fmt"

	"github.com/haje01/swak/config"
	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/plugin"
	"github.com/haje01/swak/pod"
)

// anyTag routes everything inside a source pod.
const anyTag = "**"

func kindOf(prefix string) plugin.Kind {
	switch prefix {
	case config.PrefixSource:
		return plugin.KindSource
	case config.PrefixFilter:
		return plugin.KindFilter
	default:
		return plugin.KindSink
	}
}

func create(reg *plugin.Registry, seg config.Segment) (plugin.Plugin, error) {
	pl, err := reg.Create(seg.Name, seg.Args)
	if err != nil {
		return nil, err
	}
	if want := kindOf(seg.Prefix()); pl.Kind() != want {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s is a %s, not a %s", errors.ErrBadChain, seg.Name, pl.Kind(), want),
			"Agent", "Build", "kind check")
	}
	return pl, nil
}

// newSource creates the leading source of a chain and registers it on p.
func newSource(reg *plugin.Registry, p *pod.Pod, seg config.Segment, tag string) error {
	pl, err := create(reg, seg)
	if err != nil {
		return err
	}
	return p.Register(pl, tag)
}

// buildChain creates the filters, sink, buffer and formatter of segs and
// registers them on p under pattern. It returns the sink, or nil when the
// chain has none.
func buildChain(reg *plugin.Registry, p *pod.Pod, segs []config.Segment, pattern string) (plugin.Sink, error) {
	var sink plugin.Sink
	for _, seg := range segs {
		switch seg.Prefix() {
		case config.PrefixBuffer:
			cfg, err := reg.CreateBuffer(seg.Name, seg.Args)
			if err != nil {
				return nil, err
			}
			b, ok := sink.(plugin.Buffered)
			if !ok {
				return nil, notFor(seg, sink, "buffer")
			}
			if err := b.SetBuffer(cfg); err != nil {
				return nil, err
			}

		case config.PrefixFormatter:
			f, err := reg.CreateFormatter(seg.Name, seg.Args)
			if err != nil {
				return nil, err
			}
			ft, ok := sink.(plugin.Formattable)
			if !ok {
				return nil, notFor(seg, sink, "formatter")
			}
			ft.SetFormatter(f)

		default:
			pl, err := create(reg, seg)
			if err != nil {
				return nil, err
			}
			if err := p.Register(pl, pattern); err != nil {
				return nil, err
			}
			if s, ok := pl.(plugin.Sink); ok {
				sink = s
			}
		}
	}
	return sink, nil
}

func notFor(seg config.Segment, sink plugin.Sink, what string) error {
	name := "nothing"
	if sink != nil {
		name = sink.Name()
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %s does not take a %s (%s)", errors.ErrBadChain, name, what, seg.Name),
		"Agent", "Build", "attach "+what)
}
