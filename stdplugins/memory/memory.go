// Package memory implements b.memory, the in-memory chunk buffer placed
// after a sink in a chain.
package memory

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/haje01/swak/buffer"
	"github.com/haje01/swak/errors"
)

const (
	Name        = "b.memory"
	Description = "Hold formatted events in memory chunks."
)

// Parse builds a buffer configuration from chain arguments, starting from
// buffer.DefaultConfig.
func Parse(args []string) (buffer.Config, error) {
	cfg := buffer.DefaultConfig()
	var size string
	var noFlush bool
	fs := flags(&cfg, &size, &noFlush)
	if err := fs.Parse(args); err != nil {
		return buffer.Config{}, errors.WrapInvalid(err, "Memory", "Parse", "parse arguments")
	}
	if fs.NArg() > 0 {
		return buffer.Config{}, errors.WrapInvalid(fmt.Errorf("%w: unexpected arguments %v", errors.ErrInvalidConfig, fs.Args()),
			"Memory", "Parse", "check arguments")
	}

	n, err := humanize.ParseBytes(size)
	if err != nil {
		return buffer.Config{}, errors.WrapInvalid(err, "Memory", "Parse", "parse chunk size")
	}
	cfg.ChunkMaxBytes = int64(n)
	cfg.FlushAtShutdown = !noFlush

	if err := cfg.Validate(); err != nil {
		return buffer.Config{}, err
	}
	return cfg, nil
}

func flags(cfg *buffer.Config, size *string, noFlush *bool) *pflag.FlagSet {
	fs := pflag.NewFlagSet(Name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVarP(&cfg.ChunkMaxRecords, "records", "r", cfg.ChunkMaxRecords, "max records per chunk, 0 for no limit")
	fs.StringVarP(size, "size", "s", humanize.IBytes(uint64(cfg.ChunkMaxBytes)), "max bytes per chunk, 0 for no limit")
	fs.IntVarP(&cfg.MaxChunks, "chunks", "m", cfg.MaxChunks, "max chunks held before flushing")
	fs.DurationVarP(&cfg.FlushInterval, "flush-interval", "f", time.Duration(0), "flush interval, 0 to disable")
	fs.BoolVarP(noFlush, "no-shutdown-flush", "S", false, "drop held chunks at shutdown")
	return fs
}

// Usage describes the chain arguments.
func Usage() string {
	cfg := buffer.DefaultConfig()
	return flags(&cfg, new(string), new(bool)).FlagUsages()
}
