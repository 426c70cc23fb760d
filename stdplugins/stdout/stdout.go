// Package stdout implements o.stdout, the sink that prints events as
// tab separated lines.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/haje01/swak/buffer"
	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/formatter"
	"github.com/haje01/swak/plugin"
)

// Name is the chain name of the plugin.
const Name = "o.stdout"

// Stdout writes formatted events to a writer, standard output by default.
type Stdout struct {
	*plugin.Output
}

// Registration registers o.stdout.
var Registration = plugin.Registration{
	Name:        Name,
	Kind:        plugin.KindSink,
	Description: "Print events to standard output.",
	Usage:       Usage,
	Factory: func(args []string) (plugin.Plugin, error) {
		s, err := Parse(args)
		if err != nil {
			return nil, err
		}
		return s, nil
	},
}

// New creates a sink writing to w.
func New(w io.Writer) *Stdout {
	write := buffer.WriterFunc(func(_ context.Context, data []byte) error {
		_, err := w.Write(data)
		return err
	})
	return &Stdout{Output: plugin.NewOutput(Name, write, formatter.NewStdout(), plugin.Hooks{})}
}

// Parse builds the sink. "-e" prints to standard error instead.
func Parse(args []string) (*Stdout, error) {
	var toStderr bool
	fs := flags(&toStderr)
	if err := fs.Parse(args); err != nil {
		return nil, errors.WrapInvalid(err, "Stdout", "Parse", "parse arguments")
	}
	if fs.NArg() > 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: unexpected arguments %v", errors.ErrInvalidConfig, fs.Args()),
			"Stdout", "Parse", "check arguments")
	}
	if toStderr {
		return New(os.Stderr), nil
	}
	return New(os.Stdout), nil
}

func flags(toStderr *bool) *pflag.FlagSet {
	fs := pflag.NewFlagSet(Name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVarP(toStderr, "stderr", "e", false, "print to standard error")
	return fs
}

// Usage describes the chain arguments.
func Usage() string { return flags(new(bool)).FlagUsages() }
