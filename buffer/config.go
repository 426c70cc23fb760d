package buffer

import (
	"fmt"
	"time"

	"github.com/haje01/swak/errors"
)

// Config holds the chunking and flushing thresholds of a Buffer. A zero
// threshold disables that trigger.
type Config struct {
	// ChunkMaxRecords starts a new chunk when the active one would exceed it.
	ChunkMaxRecords int
	// ChunkMaxBytes starts a new chunk when the active one would exceed it.
	// Only applies to binary buffers.
	ChunkMaxBytes int64
	// MaxChunks flushes the head chunk while more chunks than this are held.
	MaxChunks int
	// FlushInterval flushes the head chunk when this much time passed since
	// the last flush.
	FlushInterval time.Duration
	// Binary enables byte-size accounting.
	Binary bool
	// FlushAtShutdown writes every held chunk when the owning sink shuts down.
	FlushAtShutdown bool
}

// DefaultConfig returns 1000 records or 4 MiB per chunk, 4 chunks, no flush
// interval and flush at shutdown.
func DefaultConfig() Config {
	return Config{
		ChunkMaxRecords: 1000,
		ChunkMaxBytes:   4 << 20,
		MaxChunks:       4,
		FlushAtShutdown: true,
	}
}

// Validate rejects negative thresholds.
func (c Config) Validate() error {
	switch {
	case c.ChunkMaxRecords < 0:
		return invalid("chunk max records", c.ChunkMaxRecords)
	case c.ChunkMaxBytes < 0:
		return invalid("chunk max bytes", c.ChunkMaxBytes)
	case c.MaxChunks < 0:
		return invalid("max chunks", c.MaxChunks)
	case c.FlushInterval < 0:
		return invalid("flush interval", c.FlushInterval)
	}
	return nil
}

func invalid(what string, v any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s must not be negative, got %v", errors.ErrInvalidConfig, what, v),
		"Buffer", "Validate", "check thresholds")
}
