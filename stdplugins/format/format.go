// Package format provides the f.stdout and f.json formatter segments.
package format

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/formatter"
)

const (
	StdoutName = "f.stdout"
	JSONName   = "f.json"
)

// ParseStdout builds the tab separated line formatter.
func ParseStdout(args []string) (formatter.Formatter, error) {
	opts, err := parseTime(StdoutName, args)
	if err != nil {
		return nil, err
	}
	return formatter.NewStdout(opts...), nil
}

// ParseJSON builds the JSON lines formatter.
func ParseJSON(args []string) (formatter.Formatter, error) {
	opts, err := parseTime(JSONName, args)
	if err != nil {
		return nil, err
	}
	return formatter.NewJSON(opts...), nil
}

// parseTime reads "-z zone" and "-t layout".
func parseTime(name string, args []string) ([]formatter.Option, error) {
	var zone, layout string
	fs := flags(name, &zone, &layout)
	if err := fs.Parse(args); err != nil {
		return nil, errors.WrapInvalid(err, "Formatter", "Parse", "parse arguments")
	}
	if fs.NArg() > 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: unexpected arguments %v", errors.ErrInvalidConfig, fs.Args()),
			"Formatter", "Parse", "check arguments")
	}

	var opts []formatter.Option
	if zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Formatter", "Parse", "load time zone")
		}
		opts = append(opts, formatter.WithLocation(loc))
	}
	if layout != "" {
		opts = append(opts, formatter.WithLayout(layout))
	}
	return opts, nil
}

func flags(name string, zone, layout *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(zone, "timezone", "z", "", "IANA time zone, e.g. UTC or Asia/Seoul")
	fs.StringVarP(layout, "layout", "t", "", "Go time layout")
	return fs
}

// Usage describes the arguments shared by both formatters.
func Usage() string { return flags("format", new(string), new(string)).FlagUsages() }
