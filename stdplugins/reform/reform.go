// Package reform implements m.reform, a filter that writes and deletes
// record fields. Written values may hold ${...} placeholders:
//
//	${hostname} ${hostaddr} ${hostaddr_parts[i]}
//	${tag} ${tag_parts[i]} ${tag_prefix[i]} ${tag_suffix[i]}
//	${time} ${record.key}
//
// Indices may be negative to count from the end.
package reform

import (
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
	"github.com/haje01/swak/plugin"
)

// Name is the chain name of the plugin.
const Name = "m.reform"

var (
	placeholderRe = regexp.MustCompile(`\$\{([^}]+)\}`)
	indexedRe     = regexp.MustCompile(`^(hostaddr_parts|tag_parts|tag_prefix|tag_suffix)\[(-?\d+)\]$`)
)

// Write is one field assignment.
type Write struct {
	Key   string
	Value string
}

// Reform writes then deletes fields. When a key is both written and
// deleted, the delete wins.
type Reform struct {
	*plugin.Base

	writes  []Write
	deletes []string

	hostOnce  sync.Once
	hostname  string
	hostaddr  string
	hostParts []string

	tag        string
	tagParts   []string
	tagPrefix  []string
	tagSuffix  []string
	timeLayout string
}

// Registration registers m.reform.
var Registration = plugin.Registration{
	Name:        Name,
	Kind:        plugin.KindFilter,
	Description: "Write or delete record fields.",
	Usage:       Usage,
	Factory: func(args []string) (plugin.Plugin, error) {
		r, err := Parse(args)
		if err != nil {
			return nil, err
		}
		return r, nil
	},
}

// New creates a reform filter. Every placeholder is checked here.
func New(writes []Write, deletes []string) (*Reform, error) {
	for _, w := range writes {
		if w.Key == "" {
			return nil, invalid("empty key to write")
		}
		for _, m := range placeholderRe.FindAllStringSubmatch(w.Value, -1) {
			if !known(m[1]) {
				return nil, invalid(fmt.Sprintf("unknown placeholder %q", m[0]))
			}
		}
	}
	return &Reform{
		Base:       plugin.NewBase(Name, plugin.KindFilter, plugin.Hooks{}),
		writes:     writes,
		deletes:    deletes,
		timeLayout: time.RFC3339,
	}, nil
}

// Parse builds a reform filter from "-w key=value" and "-d key" arguments.
func Parse(args []string) (*Reform, error) {
	var rawWrites, deletes []string
	fs := flags(&rawWrites, &deletes)
	if err := fs.Parse(args); err != nil {
		return nil, errors.WrapInvalid(err, "Reform", "Parse", "parse arguments")
	}
	if fs.NArg() > 0 {
		return nil, invalid("unexpected arguments " + strings.Join(fs.Args(), " "))
	}

	writes := make([]Write, 0, len(rawWrites))
	for _, kv := range rawWrites {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, invalid(fmt.Sprintf("write %q is not key=value", kv))
		}
		writes = append(writes, Write{Key: k, Value: v})
	}
	return New(writes, deletes)
}

func flags(writes, deletes *[]string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(Name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringArrayVarP(writes, "write", "w", nil, "key=value to write, value may hold ${...} placeholders")
	fs.StringArrayVarP(deletes, "delete", "d", nil, "key to delete")
	return fs
}

// Usage describes the chain arguments.
func Usage() string {
	var w, d []string
	return flags(&w, &d).FlagUsages()
}

// SetHost overrides the detected host name and address.
func (r *Reform) SetHost(hostname, hostaddr string) {
	r.hostOnce.Do(func() {})
	r.hostname = hostname
	r.hostaddr = hostaddr
	r.hostParts = strings.Split(hostaddr, ".")
}

func (r *Reform) detectHost() {
	r.hostOnce.Do(func() {
		r.hostname, _ = os.Hostname()
		r.hostaddr = "127.0.0.1"
		if addrs, err := net.LookupHost(r.hostname); err == nil {
			for _, a := range addrs {
				if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
					r.hostaddr = a
					break
				}
			}
		}
		r.hostParts = strings.Split(r.hostaddr, ".")
	})
}

// PrepareForStream computes the tag derived placeholders once per stream.
func (r *Reform) PrepareForStream(tag string, _ event.Stream) {
	r.detectHost()
	if tag == r.tag && r.tagParts != nil {
		return
	}

	parts := strings.Split(tag, ".")
	prefix := make([]string, len(parts))
	suffix := make([]string, len(parts))
	for i := range parts {
		prefix[i] = strings.Join(parts[:i+1], ".")
		suffix[i] = strings.Join(parts[len(parts)-1-i:], ".")
	}
	r.tag, r.tagParts, r.tagPrefix, r.tagSuffix = tag, parts, prefix, suffix
}

// Apply writes and deletes the configured fields.
func (r *Reform) Apply(tag string, t time.Time, rec event.Record) (time.Time, event.Record, error) {
	if r.tagParts == nil || tag != r.tag {
		r.PrepareForStream(tag, nil)
	}

	for _, w := range r.writes {
		v, err := r.expand(w.Value, t, rec)
		if err != nil {
			return t, nil, errors.WrapInvalid(err, "Reform", "Apply", "expand "+w.Key)
		}
		rec[w.Key] = v
	}
	for _, k := range r.deletes {
		delete(rec, k)
	}
	return t, rec, nil
}

func (r *Reform) expand(val string, t time.Time, rec event.Record) (string, error) {
	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(val, func(m string) string {
		v, err := r.lookup(m[2:len(m)-1], t, rec)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	})
	return out, firstErr
}

func (r *Reform) lookup(name string, t time.Time, rec event.Record) (string, error) {
	switch name {
	case "hostname":
		return r.hostname, nil
	case "hostaddr":
		return r.hostaddr, nil
	case "tag":
		return r.tag, nil
	case "time":
		return t.Format(r.timeLayout), nil
	}

	if key, ok := strings.CutPrefix(name, "record."); ok {
		v, found := rec[key]
		if !found {
			return "", fmt.Errorf("%w: record has no field %q", errors.ErrInvalidData, key)
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	}

	m := indexedRe.FindStringSubmatch(name)
	if m == nil {
		return "", fmt.Errorf("%w: unknown placeholder %q", errors.ErrInvalidData, name)
	}
	idx, _ := strconv.Atoi(m[2])
	var list []string
	switch m[1] {
	case "hostaddr_parts":
		list = r.hostParts
	case "tag_parts":
		list = r.tagParts
	case "tag_prefix":
		list = r.tagPrefix
	case "tag_suffix":
		list = r.tagSuffix
	}
	if idx < 0 {
		idx += len(list)
	}
	if idx < 0 || idx >= len(list) {
		return "", fmt.Errorf("%w: index out of range in %q", errors.ErrInvalidData, name)
	}
	return list[idx], nil
}

func known(name string) bool {
	switch name {
	case "hostname", "hostaddr", "tag", "time":
		return true
	}
	if key, ok := strings.CutPrefix(name, "record."); ok {
		return key != ""
	}
	return indexedRe.MatchString(name)
}

func invalid(msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg), "Reform", "Parse", "check arguments")
}
