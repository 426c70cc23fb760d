// Package filter implements m.filter, which keeps or drops events by
// matching record fields against regular expressions.
package filter

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
	"github.com/haje01/swak/plugin"
)

// Name is the chain name of the plugin.
const Name = "m.filter"

// Rule matches one field.
type Rule struct {
	Key string
	Re  *regexp.Regexp
}

// Filter drops an event when any exclude rule matches, or when an include
// rule does not. An include on a missing field does not match. Without
// rules every event passes.
type Filter struct {
	*plugin.Base

	includes []Rule
	excludes []Rule
}

// Registration registers m.filter.
var Registration = plugin.Registration{
	Name:        Name,
	Kind:        plugin.KindFilter,
	Description: "Include or exclude events by field patterns.",
	Usage:       Usage,
	Factory: func(args []string) (plugin.Plugin, error) {
		f, err := Parse(args)
		if err != nil {
			return nil, err
		}
		return f, nil
	},
}

// New creates a filter.
func New(includes, excludes []Rule) *Filter {
	return &Filter{
		Base:     plugin.NewBase(Name, plugin.KindFilter, plugin.Hooks{}),
		includes: includes,
		excludes: excludes,
	}
}

func flags(inc, exc *[]string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(Name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringArrayVarP(inc, "include", "i", nil, "key=regex that must match, repeatable")
	fs.StringArrayVarP(exc, "exclude", "x", nil, "key=regex that must not match, repeatable")
	return fs
}

// Usage describes the chain arguments.
func Usage() string {
	var inc, exc []string
	return flags(&inc, &exc).FlagUsages()
}

// Parse builds a filter from "-i key=regex" and "-x key=regex" arguments.
func Parse(args []string) (*Filter, error) {
	var inc, exc []string
	fs := flags(&inc, &exc)
	if err := fs.Parse(args); err != nil {
		return nil, errors.WrapInvalid(err, "Filter", "Parse", "parse arguments")
	}
	if fs.NArg() > 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: unexpected arguments in %q",
			errors.ErrInvalidConfig, strings.Join(args, " ")), "Filter", "Parse", "check arguments")
	}

	includes, err := compile(inc)
	if err != nil {
		return nil, err
	}
	excludes, err := compile(exc)
	if err != nil {
		return nil, err
	}
	return New(includes, excludes), nil
}

func compile(specs []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, s := range specs {
		k, expr, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: rule %q is not key=regex", errors.ErrInvalidConfig, s),
				"Filter", "Parse", "check rule")
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Filter", "Parse", "compile "+k)
		}
		rules = append(rules, Rule{Key: k, Re: re})
	}
	return rules, nil
}

// PrepareForStream does nothing; rules do not depend on the tag.
func (f *Filter) PrepareForStream(string, event.Stream) {}

// Apply returns a nil record for dropped events.
func (f *Filter) Apply(_ string, t time.Time, r event.Record) (time.Time, event.Record, error) {
	for _, rule := range f.excludes {
		if v, ok := field(r, rule.Key); ok && rule.Re.MatchString(v) {
			return t, nil, nil
		}
	}
	for _, rule := range f.includes {
		v, ok := field(r, rule.Key)
		if !ok || !rule.Re.MatchString(v) {
			return t, nil, nil
		}
	}
	return t, r, nil
}

func field(r event.Record, key string) (string, bool) {
	v, ok := r[key]
	if !ok {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}
