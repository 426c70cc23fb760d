// Package file implements o.file, a sink appending JSON lines to a local
// file with optional size based rotation.
package file

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/haje01/swak/buffer"
	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/formatter"
	"github.com/haje01/swak/plugin"
)

// Name is the chain name of the plugin.
const Name = "o.file"

const megabyte = 1024 * 1024

// Config holds the destination and rotation settings.
type Config struct {
	Path string
	// RotateSize rotates the file before a write would grow it past this
	// many bytes. It is rounded up to whole mebibytes. Zero disables
	// rotation.
	RotateSize int64
	// Backups is how many rotated files are kept. Zero keeps all of them.
	Backups int
	// MaxAge removes rotated files older than this many days. Zero keeps
	// them regardless of age.
	MaxAge   int
	Compress bool
}

// File appends formatted data to Config.Path.
type File struct {
	*plugin.Output

	cfg Config
	mu  sync.Mutex
	lj  *lumberjack.Logger
}

// Registration registers o.file.
var Registration = plugin.Registration{
	Name:        Name,
	Kind:        plugin.KindSink,
	Description: "Append events to a local file.",
	Usage:       Usage,
	Factory: func(args []string) (plugin.Plugin, error) {
		f, err := Parse(args)
		if err != nil {
			return nil, err
		}
		return f, nil
	},
}

// New creates a file sink. The file is opened on Start.
func New(cfg Config) (*File, error) {
	if cfg.Path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "File", "New", "check path")
	}
	if cfg.RotateSize < 0 || cfg.Backups < 0 || cfg.MaxAge < 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: rotate size %d, backups %d, max age %d",
			errors.ErrInvalidConfig, cfg.RotateSize, cfg.Backups, cfg.MaxAge), "File", "New", "check rotation")
	}

	fs := &File{cfg: cfg}
	fs.Output = plugin.NewOutput(Name, buffer.WriterFunc(fs.write), formatter.NewJSON(), plugin.Hooks{
		OnStart:    func(context.Context) error { return fs.open() },
		OnShutdown: func(context.Context) error { return fs.close() },
	})
	fs.SetRetry(errors.DefaultRetryConfig().ToRetryConfig())
	return fs, nil
}

// Parse builds a file sink from "-p path [-r size] [-k backups] [-a days] [-z]".
func Parse(args []string) (*File, error) {
	var cfg Config
	var rotate string
	if err := flags(&cfg, &rotate).Parse(args); err != nil {
		return nil, errors.WrapInvalid(err, "File", "Parse", "parse arguments")
	}
	if rotate != "" {
		n, err := humanize.ParseBytes(rotate)
		if err != nil {
			return nil, errors.WrapInvalid(err, "File", "Parse", "parse rotate size")
		}
		cfg.RotateSize = int64(n)
	}
	return New(cfg)
}

func flags(cfg *Config, rotate *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(Name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&cfg.Path, "path", "p", "", "file path")
	fs.StringVarP(rotate, "rotate", "r", "", "rotate size, e.g. 64MB")
	fs.IntVarP(&cfg.Backups, "backups", "k", 5, "rotated files to keep, 0 keeps all")
	fs.IntVarP(&cfg.MaxAge, "max-age", "a", 0, "days to keep rotated files, 0 keeps all")
	fs.BoolVarP(&cfg.Compress, "compress", "z", false, "gzip rotated files")
	return fs
}

// Usage describes the chain arguments.
func Usage() string { return flags(new(Config), new(string)).FlagUsages() }

// Config returns the sink configuration.
func (fs *File) Config() Config { return fs.cfg }

// maxSizeMB converts the rotate size for lumberjack, where 0 means the
// 100 MB default rather than no limit.
func (fs *File) maxSizeMB() int {
	if fs.cfg.RotateSize == 0 {
		return math.MaxInt32
	}
	return int((fs.cfg.RotateSize + megabyte - 1) / megabyte)
}

func (fs *File) open() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	lj := &lumberjack.Logger{
		Filename:   fs.cfg.Path,
		MaxSize:    fs.maxSizeMB(),
		MaxBackups: fs.cfg.Backups,
		MaxAge:     fs.cfg.MaxAge,
		Compress:   fs.cfg.Compress,
		LocalTime:  true,
	}
	// An empty write creates the directory and opens the file.
	if _, err := lj.Write(nil); err != nil {
		return errors.WrapFatal(err, "File", "Start", "open "+fs.cfg.Path)
	}
	fs.lj = lj
	return nil
}

func (fs *File) close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.lj == nil {
		return nil
	}
	err := fs.lj.Close()
	fs.lj = nil
	return err
}

func (fs *File) write(_ context.Context, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	// lumberjack reopens on write, so a closed sink is checked here.
	if fs.lj == nil {
		return errors.WrapFatal(errors.ErrNotStarted, "File", "Write", "write "+fs.cfg.Path)
	}
	if _, err := fs.lj.Write(data); err != nil {
		return errors.WrapTransient(err, "File", "Write", "write "+fs.cfg.Path)
	}
	return nil
}
