// Package buffer implements the chunked, per-sink buffer. Formatted events
// are appended to the active (tail) chunk; full chunks queue up behind it and
// are written to the sink head first when a flush trigger fires.
//
// A Buffer is owned by a single sink inside a single pod and is not safe for
// concurrent use.
package buffer

import (
	"context"
	"log/slog"
	"time"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/metric"
	"github.com/haje01/swak/pkg/retry"
)

// Writer receives the bytes of a flushed chunk.
type Writer interface {
	Write(ctx context.Context, data []byte) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, data []byte) error

func (f WriterFunc) Write(ctx context.Context, data []byte) error { return f(ctx, data) }

// Option configures a Buffer.
type Option func(*Buffer)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) {
		if now != nil {
			b.now = now
		}
	}
}

// WithRetry sets how chunk writes are retried. The default is a single attempt.
func WithRetry(cfg retry.Config) Option {
	return func(b *Buffer) { b.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Buffer) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records chunk activity in the registry's core metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(b *Buffer) {
		if registry != nil {
			b.metrics = registry.CoreMetrics()
		}
	}
}

// Buffer is a FIFO of chunks that is never empty.
type Buffer struct {
	name   string
	cfg    Config
	w      Writer
	chunks []*Chunk

	lastFlush time.Time
	chunking  int
	flushing  int

	now     func() time.Time
	retry   retry.Config
	logger  *slog.Logger
	metrics *metric.Metrics
}

// New creates a buffer named after its sink that flushes into w.
func New(name string, w Writer, cfg Config, opts ...Option) (*Buffer, error) {
	if w == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Buffer", "New", "writer check")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Buffer{
		name:   name,
		cfg:    cfg,
		w:      w,
		now:    time.Now,
		retry:  retry.Once(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "buffer", "sink", name)
	b.chunks = []*Chunk{newChunk(cfg.Binary)}
	b.lastFlush = b.now()
	b.recordChunks()
	return b, nil
}

// Config returns the buffer configuration.
func (b *Buffer) Config() Config { return b.cfg }

// Chunks returns the number of chunks held, including the active one.
func (b *Buffer) Chunks() int { return len(b.chunks) }

// Active returns the chunk currently accepting data.
func (b *Buffer) Active() *Chunk { return b.chunks[len(b.chunks)-1] }

// Head returns the oldest chunk, the next to be flushed.
func (b *Buffer) Head() *Chunk { return b.chunks[0] }

// ChunkingCount returns how many times a new chunk was started.
func (b *Buffer) ChunkingCount() int { return b.chunking }

// FlushingCount returns how many chunks were written.
func (b *Buffer) FlushingCount() int { return b.flushing }

// Pending returns the number of buffered events.
func (b *Buffer) Pending() int {
	n := 0
	for _, c := range b.chunks {
		n += c.records
	}
	return n
}

// Append adds one formatted event and returns the bytes appended.
func (b *Buffer) Append(data []byte) int {
	return b.MaybeChunk(len(data)).add(data)
}

// MaybeChunk returns the chunk that should receive addingSize more bytes,
// starting a new one if the active chunk would overflow. An empty active
// chunk always takes the data, so an oversized event gets a chunk of its own.
func (b *Buffer) MaybeChunk(addingSize int) *Chunk {
	active := b.Active()
	if active.Empty() {
		return active
	}

	full := b.cfg.ChunkMaxRecords > 0 && active.records+1 > b.cfg.ChunkMaxRecords
	if !full && b.cfg.Binary && b.cfg.ChunkMaxBytes > 0 {
		full = active.size+int64(addingSize) > b.cfg.ChunkMaxBytes
	}
	if !full {
		return active
	}

	active = newChunk(b.cfg.Binary)
	b.chunks = append(b.chunks, active)
	b.chunking++
	if b.metrics != nil {
		b.metrics.RecordChunkCreated(b.name)
	}
	b.recordChunks()
	return active
}

// MaybeFlush writes the head chunk if too many chunks are held or the flush
// interval elapsed. It returns the flushed chunk, or nil.
func (b *Buffer) MaybeFlush(ctx context.Context) (*Chunk, error) {
	if !b.needFlush(0, false) {
		return nil, nil
	}
	return b.Flush(ctx)
}

// MaybeFlushWithin is MaybeFlush with an extra caller interval: the head chunk
// is also flushed once force has elapsed since the last flush, whichever of
// the configured interval and force elapses first.
func (b *Buffer) MaybeFlushWithin(ctx context.Context, force time.Duration) (*Chunk, error) {
	if !b.needFlush(force, true) {
		return nil, nil
	}
	return b.Flush(ctx)
}

func (b *Buffer) needFlush(force time.Duration, hasForce bool) bool {
	if b.cfg.MaxChunks > 0 && len(b.chunks) > b.cfg.MaxChunks {
		return true
	}
	elapsed := b.now().Sub(b.lastFlush)
	if b.cfg.FlushInterval > 0 && elapsed >= b.cfg.FlushInterval {
		return true
	}
	return hasForce && elapsed >= force
}

// Flush writes the head chunk unconditionally and returns it. An empty head
// is retired without being written. On a write error the chunk stays at the
// head so the next trigger retries it.
func (b *Buffer) Flush(ctx context.Context) (*Chunk, error) {
	head := b.chunks[0]
	b.lastFlush = b.now()

	if head.Empty() {
		if len(b.chunks) > 1 {
			b.chunks = b.chunks[1:]
			b.recordChunks()
		}
		return nil, nil
	}

	if err := b.write(ctx, head); err != nil {
		return nil, err
	}

	b.chunks[0] = nil
	b.chunks = b.chunks[1:]
	if len(b.chunks) == 0 {
		b.chunks = append(b.chunks, newChunk(b.cfg.Binary))
	}
	b.recordChunks()
	return head, nil
}

// FlushAll writes every non-empty chunk in FIFO order. On error the failed
// chunk and those behind it are kept.
func (b *Buffer) FlushAll(ctx context.Context) error {
	for len(b.chunks) > 0 {
		head := b.chunks[0]
		if !head.Empty() {
			if err := b.write(ctx, head); err != nil {
				return err
			}
		}
		b.chunks[0] = nil
		b.chunks = b.chunks[1:]
	}

	b.chunks = append(b.chunks, newChunk(b.cfg.Binary))
	b.lastFlush = b.now()
	b.recordChunks()
	return nil
}

func (b *Buffer) write(ctx context.Context, c *Chunk) error {
	err := retry.Do(ctx, b.retry, func(ctx context.Context) error {
		return errors.Retryable(b.w.Write(ctx, c.Bytes()))
	})
	if err != nil {
		if b.metrics != nil {
			b.metrics.RecordFlushError(b.name)
		}
		b.logger.Warn("Chunk write failed, keeping chunk",
			"records", c.records, "bytes", len(c.data), "error", err)
		if errors.IsTransient(err) {
			return errors.WrapTransient(err, "Buffer", "Flush", "write chunk")
		}
		return errors.Wrap(err, "Buffer", "Flush", "write chunk")
	}

	b.flushing++
	if b.metrics != nil {
		b.metrics.RecordChunkFlushed(b.name)
	}
	return nil
}

func (b *Buffer) recordChunks() {
	if b.metrics != nil {
		b.metrics.RecordBufferChunks(b.name, len(b.chunks))
	}
}
