package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/haje01/swak/config"
	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/plugin"
	"github.com/haje01/swak/pod"
	"github.com/haje01/swak/stdplugins/stdout"
)

// TestAgent runs chains given on the command line, each in its own pod.
// A chain without a sink prints to standard output.
type TestAgent struct {
	registry *plugin.Registry
	opts     options
	debug    bool
	out      io.Writer
}

// NewTestAgent creates a test agent looking plugins up in reg. Errors of
// single events stop the run when debug is set.
func NewTestAgent(reg *plugin.Registry, debug bool, opts ...Option) *TestAgent {
	o := newOptions(opts)
	var out io.Writer = os.Stdout
	if o.out != nil {
		out = o.out
	}
	return &TestAgent{
		registry: reg,
		opts:     o,
		debug:    debug,
		out:      &lockedWriter{w: out},
	}
}

// Build parses raw and creates its pod.
func (a *TestAgent) Build(name, raw string) (*pod.Pod, error) {
	chain, err := config.ParseTestChain(raw)
	if err != nil {
		return nil, err
	}

	p := pod.New(name,
		pod.WithLogger(a.opts.logger),
		pod.WithMetrics(a.opts.registry),
		pod.WithDebug(a.debug),
		pod.WithDefaultSink(stdout.New(a.out)))
	if err := newSource(a.registry, p, chain.Segments[0], chain.Tag); err != nil {
		return nil, err
	}
	if _, err := buildChain(a.registry, p, chain.Segments[1:], anyTag); err != nil {
		return nil, err
	}
	return p, nil
}

// Run builds every chain, then processes them concurrently until each
// source ends or ctx is done. The first failure cancels the others.
func (a *TestAgent) Run(ctx context.Context, chains ...string) error {
	if len(chains) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "TestAgent", "Run", "chain check")
	}

	pods := make([]*pod.Pod, 0, len(chains))
	for i, raw := range chains {
		p, err := a.Build(fmt.Sprintf("test%d", i), raw)
		if err != nil {
			return err
		}
		pods = append(pods, p)
	}

	// A context that never ends needs no group.
	if len(pods) == 1 && ctx.Done() == nil {
		return pods[0].SimpleProcess()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pods {
		g.Go(func() error { return p.Process(gctx) })
	}
	return g.Wait()
}

// lockedWriter serializes writes of pods sharing one output.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
