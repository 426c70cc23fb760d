// Package natsout implements o.nats, a sink publishing JSON lines to a NATS
// subject. Publishing goes through a circuit breaker so a lost server fails
// fast instead of stalling the pod.
package natsout

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"
	"github.com/spf13/pflag"

	"github.com/haje01/swak/buffer"
	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/formatter"
	"github.com/haje01/swak/plugin"
)

// Name is the chain name of the plugin.
const Name = "o.nats"

// DefaultSubject is used when no subject is given.
const DefaultSubject = "swak.events"

// Config holds the connection and breaker settings.
type Config struct {
	URL     string
	Subject string
	// Timeout bounds the connect and the flush after each publish.
	Timeout       time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
	// FailureThreshold consecutive failures open the breaker for
	// BreakerTimeout.
	FailureThreshold uint32
	BreakerTimeout   time.Duration
	// Retries is how many times a failed publish is retried with backoff
	// before the chunk stays buffered for the next flush.
	Retries int
}

// DefaultConfig returns the settings used by Parse.
func DefaultConfig() Config {
	return Config{
		URL:              nats.DefaultURL,
		Subject:          DefaultSubject,
		Timeout:          5 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
		Retries:          errors.DefaultRetryConfig().MaxRetries,
	}
}

// NATS publishes every written chunk as one message.
type NATS struct {
	*plugin.Output

	cfg Config
	cb  *gobreaker.CircuitBreaker[struct{}]

	mu sync.RWMutex
	nc *nats.Conn
}

// Registration registers o.nats.
var Registration = plugin.Registration{
	Name:        Name,
	Kind:        plugin.KindSink,
	Description: "Publish events to a NATS subject.",
	Usage:       Usage,
	Factory: func(args []string) (plugin.Plugin, error) {
		n, err := Parse(args)
		if err != nil {
			return nil, err
		}
		return n, nil
	},
}

// New creates the sink. The connection is made on Start.
func New(cfg Config) (*NATS, error) {
	if cfg.URL == "" || cfg.Subject == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "NATS", "New", "check url and subject")
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.Retries < 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: retries %d", errors.ErrInvalidConfig, cfg.Retries),
			"NATS", "New", "check retries")
	}

	n := &NATS{cfg: cfg}
	n.Output = plugin.NewOutput(Name, buffer.WriterFunc(n.publish), formatter.NewJSON(), plugin.Hooks{
		OnStart:    n.connect,
		OnShutdown: func(context.Context) error { return n.drain() },
	})
	rc := errors.DefaultRetryConfig()
	rc.MaxRetries = cfg.Retries
	n.SetRetry(rc.ToRetryConfig())
	n.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    Name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			n.Logger().Warn("NATS circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return n, nil
}

// Parse builds the sink from "[-s url] [-j subject]".
func Parse(args []string) (*NATS, error) {
	cfg := DefaultConfig()
	fs := flags(&cfg)
	if err := fs.Parse(args); err != nil {
		return nil, errors.WrapInvalid(err, "NATS", "Parse", "parse arguments")
	}
	if fs.NArg() > 0 || cfg.Timeout <= 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, args), "NATS", "Parse", "check arguments")
	}
	return New(cfg)
}

func flags(cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet(Name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&cfg.URL, "server", "s", cfg.URL, "NATS server URL")
	fs.StringVarP(&cfg.Subject, "subject", "j", cfg.Subject, "subject to publish to")
	fs.DurationVarP(&cfg.Timeout, "timeout", "t", cfg.Timeout, "connect and flush timeout")
	fs.IntVarP(&cfg.Retries, "retries", "R", cfg.Retries, "publish retries after the first attempt")
	return fs
}

// Usage describes the chain arguments.
func Usage() string {
	cfg := DefaultConfig()
	return flags(&cfg).FlagUsages()
}

// Config returns the sink configuration.
func (n *NATS) Config() Config { return n.cfg }

// BreakerState returns the circuit breaker state.
func (n *NATS) BreakerState() gobreaker.State { return n.cb.State() }

func (n *NATS) connect(context.Context) error {
	logger := n.Logger()
	nc, err := nats.Connect(n.cfg.URL,
		nats.Name("swak "+Name),
		nats.Timeout(n.cfg.Timeout),
		nats.MaxReconnects(n.cfg.MaxReconnects),
		nats.ReconnectWait(n.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "url", n.cfg.URL, "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("NATS connection closed", "url", n.cfg.URL)
		}),
	)
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrNoConnection, err), "NATS", "Start", "connect "+n.cfg.URL)
	}

	n.mu.Lock()
	n.nc = nc
	n.mu.Unlock()
	return nil
}

// drain flushes pending publishes and closes the connection.
func (n *NATS) drain() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.nc == nil {
		return nil
	}
	err := n.nc.Drain()
	n.nc = nil
	if err != nil {
		return errors.WrapTransient(err, "NATS", "Shutdown", "drain connection")
	}
	return nil
}

func (n *NATS) publish(_ context.Context, data []byte) error {
	n.mu.RLock()
	nc := n.nc
	n.mu.RUnlock()
	if nc == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "NATS", "Write", "publish")
	}

	_, err := n.cb.Execute(func() (struct{}, error) {
		if err := nc.Publish(n.cfg.Subject, data); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nc.FlushTimeout(n.cfg.Timeout)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return errors.WrapTransient(errors.ErrCircuitOpen, "NATS", "Write", "publish")
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrConnectionDraining),
		errors.Is(err, nats.ErrTimeout):
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err), "NATS", "Write", "publish")
	default:
		return errors.WrapTransient(err, "NATS", "Write", "publish")
	}
}
