package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/haje01/swak/config"
	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/health"
	"github.com/haje01/swak/metric"
	"github.com/haje01/swak/pkg/queue"
	"github.com/haje01/swak/plugin"
	"github.com/haje01/swak/pod"
)

// ServiceAgent runs an agent config. Every match becomes a sink pod fed by
// a proxy input. Every source becomes a source pod; one without a sink of
// its own gets a proxy output whose queue is linked to the first sink pod
// matching its tag.
type ServiceAgent struct {
	cfg      *config.Config
	registry *plugin.Registry
	opts     options
	logger   *slog.Logger
	runID    string

	built      bool
	sinkPods   []*pod.Pod
	proxies    []*plugin.ProxyInput
	sourcePods []*pod.Pod

	running atomic.Bool
}

// NewServiceAgent creates an agent for cfg. Plugins are looked up in reg.
func NewServiceAgent(cfg *config.Config, reg *plugin.Registry, opts ...Option) *ServiceAgent {
	o := newOptions(opts)
	runID := uuid.New().String()
	return &ServiceAgent{
		cfg:      cfg,
		registry: reg,
		opts:     o,
		logger:   o.logger.With("component", "agent", "run_id", runID),
		runID:    runID,
	}
}

// RunID identifies this run in logs and metrics.
func (a *ServiceAgent) RunID() string { return a.runID }

// SinkPods returns the pods built from matches, in config order.
func (a *ServiceAgent) SinkPods() []*pod.Pod { return a.sinkPods }

// SourcePods returns the pods built from sources, in config order.
func (a *ServiceAgent) SourcePods() []*pod.Pod { return a.sourcePods }

func (a *ServiceAgent) podOptions() []pod.Option {
	return []pod.Option{
		pod.WithLogger(a.logger),
		pod.WithMetrics(a.opts.registry),
		pod.WithDebug(a.cfg.Debug),
	}
}

// Build creates every pod and links the proxies. Nothing is started, so
// a built agent doubles as a dry run of the config.
func (a *ServiceAgent) Build() error {
	if a.built {
		return nil
	}

	for i, m := range a.cfg.Matches {
		if err := a.buildSinkPod(i, m); err != nil {
			return err
		}
	}
	for i, raw := range a.cfg.Sources {
		if err := a.buildSourcePod(i, raw); err != nil {
			return err
		}
	}

	a.built = true
	a.logger.Info("Topology built", "sink_pods", len(a.sinkPods), "source_pods", len(a.sourcePods))
	return nil
}

func (a *ServiceAgent) buildSinkPod(i int, m config.Match) error {
	chain, err := config.ParseMatchChain(m.Chain)
	if err != nil {
		return err
	}

	p := pod.New(fmt.Sprintf("sink%d", i), a.podOptions()...)
	in := plugin.NewProxyInput(a.cfg.Proxy.PollInterval)
	if err := p.Register(in, m.Pattern); err != nil {
		return err
	}
	if _, err := buildChain(a.registry, p, chain.Segments, m.Pattern); err != nil {
		return errors.Wrap(err, "Agent", "Build", "match "+m.Pattern)
	}

	a.sinkPods = append(a.sinkPods, p)
	a.proxies = append(a.proxies, in)
	return nil
}

func (a *ServiceAgent) buildSourcePod(i int, raw string) error {
	chain, err := config.ParseSourceChain(raw)
	if err != nil {
		return err
	}

	p := pod.New(fmt.Sprintf("source%d", i), a.podOptions()...)
	if err := newSource(a.registry, p, chain.Segments[0], chain.Tag); err != nil {
		return errors.Wrap(err, "Agent", "Build", "source "+raw)
	}
	sink, err := buildChain(a.registry, p, chain.Segments[1:], anyTag)
	if err != nil {
		return errors.Wrap(err, "Agent", "Build", "source "+raw)
	}

	if sink == nil {
		if err := a.linkProxy(p, chain.Tag); err != nil {
			return err
		}
	}
	a.sourcePods = append(a.sourcePods, p)
	return nil
}

// linkProxy gives p a proxy output and hands its queue to the first sink
// pod whose rules match tag.
func (a *ServiceAgent) linkProxy(p *pod.Pod, tag string) error {
	target := -1
	for i, sp := range a.sinkPods {
		if sp.Router().HasMatch(tag) {
			target = i
			break
		}
	}
	if target < 0 {
		return errors.WrapFatal(fmt.Errorf("%w: %q", errors.ErrNoMatchingRoute, tag), "Agent", "Build", "link proxy")
	}

	q, err := plugin.NewProxyQueue(a.cfg.Proxy.QueueSize,
		queue.WithMetrics[plugin.Item](a.opts.registry, p.Name()))
	if err != nil {
		return err
	}
	if err := p.Register(plugin.NewProxyOutput(q), anyTag); err != nil {
		return err
	}
	a.proxies[target].AddQueue(tag, q)
	a.logger.Debug("Proxy linked", "tag", tag, "from", p.Name(), "to", a.sinkPods[target].Name())
	return nil
}

func (a *ServiceAgent) newSupervisor(name string, pods []*pod.Pod) *suture.Supervisor {
	sup := suture.New(name, suture.Spec{
		EventHook: (&sutureslog.Handler{Logger: a.logger}).MustHook(),
		Timeout:   a.cfg.ShutdownTimeout,
	})
	for _, p := range pods {
		sup.Add(p)
	}
	return sup
}

// Run builds the topology when needed, starts the sink pods and then the
// source pods, and blocks until ctx is done. Shutdown cancels the source
// pods and waits for them so that proxied data reaches the sink pods,
// then cancels the sink pods and waits for their final flush. Both waits
// share the shutdown timeout.
func (a *ServiceAgent) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Agent", "Run", "run check")
	}
	if err := a.Build(); err != nil {
		return err
	}

	var server *metric.Server
	if a.opts.registry != nil {
		a.opts.registry.CoreMetrics().RecordAgentInfo(a.runID, a.opts.version)
		if a.cfg.Metrics.Enabled {
			server = metric.NewServer(a.cfg.Metrics.Port, a.cfg.Metrics.Path, a.opts.registry, a.checkHealth)
			if err := server.Start(); err != nil {
				return err
			}
			a.logger.Info("Metrics server started", "address", server.Address())
		}
	}

	base := context.WithoutCancel(ctx)
	sinkCtx, cancelSinks := context.WithCancel(base)
	defer cancelSinks()
	sourceCtx, cancelSources := context.WithCancel(base)
	defer cancelSources()

	sinkDone := a.newSupervisor("sinks", a.sinkPods).ServeBackground(sinkCtx)
	sourceDone := a.newSupervisor("sources", a.sourcePods).ServeBackground(sourceCtx)
	a.logger.Info("Agent running", "version", a.opts.version)

	<-ctx.Done()
	a.logger.Info("Agent shutting down", "timeout", a.cfg.ShutdownTimeout)

	deadline := time.NewTimer(a.cfg.ShutdownTimeout)
	defer deadline.Stop()

	cancelSources()
	err := a.wait("sources", sourceDone, deadline.C)
	cancelSinks()
	if sinkErr := a.wait("sinks", sinkDone, deadline.C); err == nil {
		err = sinkErr
	}

	if server != nil {
		stopCtx, cancel := context.WithTimeout(base, time.Second)
		defer cancel()
		if stopErr := server.Stop(stopCtx); stopErr != nil {
			a.logger.Warn("Metrics server stop failed", "error", stopErr)
		}
	}
	return err
}

// Health aggregates the status of every pod. Sink pods come first.
func (a *ServiceAgent) Health() health.Status {
	subs := make([]health.Status, 0, len(a.sinkPods)+len(a.sourcePods))
	for _, p := range a.sinkPods {
		subs = append(subs, health.FromPod(p.Name(), p.State(), p.Err()))
	}
	for _, p := range a.sourcePods {
		subs = append(subs, health.FromPod(p.Name(), p.State(), p.Err()))
	}
	return health.Aggregate("agent", subs)
}

// checkHealth backs the /health endpoint. Sources that ran to their end
// are fine; a failed pod or a sink pod that is not running is not.
func (a *ServiceAgent) checkHealth() error {
	status := a.Health()
	if status.IsUnhealthy() {
		return fmt.Errorf("%s", status.Message)
	}
	for _, p := range a.sinkPods {
		if p.State() != plugin.StateStarted {
			return fmt.Errorf("sink pod %s is %s", p.Name(), p.State())
		}
	}
	return nil
}

func (a *ServiceAgent) wait(group string, done <-chan error, deadline <-chan time.Time) error {
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Debug("Supervisor ended", "group", group, "error", err)
		}
		return nil
	case <-deadline:
		return errors.WrapFatal(context.DeadlineExceeded, "Agent", "Run", "wait for "+group)
	}
}
