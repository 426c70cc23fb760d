package plugin

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
	"github.com/haje01/swak/pkg/queue"
)

// Item is one data stream in flight between pods.
type Item struct {
	Tag    string
	Stream event.Stream
}

// ProxyQueue connects one ProxyOutput to one ProxyInput.
type ProxyQueue = queue.Queue[Item]

// NewProxyQueue creates a blocking proxy queue. Full queues block the
// producer; nothing is dropped.
func NewProxyQueue(capacity int, opts ...queue.Option[Item]) (ProxyQueue, error) {
	return queue.New[Item](capacity, opts...)
}

// ProxyOutput is the terminal sink of a source pod. Append enqueues the
// stream and blocks while the queue is full.
type ProxyOutput struct {
	*Base
	q ProxyQueue
}

// NewProxyOutput creates a proxy sink writing into q. The queue is closed on
// shutdown.
func NewProxyOutput(q ProxyQueue) *ProxyOutput {
	p := &ProxyOutput{q: q}
	p.Base = NewBase("o.proxy", KindSink, Hooks{
		OnShutdown: func(context.Context) error { return q.Close() },
	})
	return p
}

// Queue returns the queue fed by this sink.
func (p *ProxyOutput) Queue() ProxyQueue { return p.q }

// Append enqueues the stream. No bytes are buffered locally, so it returns 0.
func (p *ProxyOutput) Append(ctx context.Context, tag string, s event.Stream) (int, error) {
	if s == nil || s.Len() == 0 {
		return 0, nil
	}
	if err := p.q.WriteWithContext(ctx, Item{Tag: tag, Stream: s}); err != nil {
		return 0, errors.WrapTransient(err, p.Name(), "Append", "enqueue stream")
	}
	return 0, nil
}

func (p *ProxyOutput) Flush(context.Context, bool) error { return nil }
func (p *ProxyOutput) MaybeFlush(context.Context) error { return nil }
func (p *ProxyOutput) MaybeFlushWithin(context.Context, time.Duration) error { return nil }
func (p *ProxyOutput) Write(context.Context, []byte) error { return nil }

type proxyEntry struct {
	tag string
	q   ProxyQueue
}

// ProxyInput is the first plugin of a sink pod. It polls every registered
// queue round-robin without blocking.
type ProxyInput struct {
	*Base

	mu           sync.Mutex
	entries      []proxyEntry
	pollInterval time.Duration
}

// DefaultPollInterval is how long ProxyInput waits after a round in which
// every queue was empty.
const DefaultPollInterval = 50 * time.Millisecond

// NewProxyInput creates a proxy source. A non-positive pollInterval selects
// DefaultPollInterval.
func NewProxyInput(pollInterval time.Duration) *ProxyInput {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	p := &ProxyInput{pollInterval: pollInterval}
	p.Base = NewBase("i.proxy", KindSource, Hooks{})
	return p
}

// AddQueue links a source pod's queue under the source's tag. Several
// queues may share a tag. Linking happens while the topology is built.
func (p *ProxyInput) AddQueue(tag string, q ProxyQueue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, proxyEntry{tag: tag, q: q})
}

// Queues returns the number of linked queues.
func (p *ProxyInput) Queues() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Tags returns the tags of the linked queues in link order.
func (p *ProxyInput) Tags() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	tags := make([]string, len(p.entries))
	for i, e := range p.entries {
		tags[i] = e.tag
	}
	return tags
}

func (p *ProxyInput) snapshot() []proxyEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]proxyEntry(nil), p.entries...)
}

// Read yields queued streams round-robin. An empty queue yields ("", nil).
// After a round with no data it waits for the poll interval. When ctx is
// done the remaining items of every queue are drained and the sequence
// ends.
func (p *ProxyInput) Read(ctx context.Context) iter.Seq2[string, event.Stream] {
	return func(yield func(string, event.Stream) bool) {
		timer := time.NewTimer(p.pollInterval)
		defer timer.Stop()

		for {
			entries := p.snapshot()
			if ctx.Err() != nil {
				p.drain(entries, yield)
				return
			}

			got := false
			for _, e := range entries {
				item, ok := e.q.Read()
				if !ok {
					if !yield("", nil) {
						return
					}
					continue
				}
				got = true
				if !yield(item.Tag, item.Stream) {
					return
				}
			}
			if got {
				continue
			}
			if len(entries) == 0 && !yield("", nil) {
				return
			}

			timer.Reset(p.pollInterval)
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
		}
	}
}

func (p *ProxyInput) drain(entries []proxyEntry, yield func(string, event.Stream) bool) {
	for _, e := range entries {
		for _, item := range e.q.Drain() {
			if !yield(item.Tag, item.Stream) {
				return
			}
		}
	}
}
