package config

import (
	"fmt"
	"strings"

	"github.com/haje01/swak/errors"
)

// Chain segment prefixes.
const (
	PrefixSource    = "i."
	PrefixFilter    = "m."
	PrefixSink      = "o."
	PrefixBuffer    = "b."
	PrefixFormatter = "f."

	tagKeyword = "tag"

	// NoTag is the tag of a source chain without a "tag" segment.
	NoTag = "_notag_"
)

// Segment is one "|" separated part of a chain: a prefixed plugin name and
// its arguments.
type Segment struct {
	Name string
	Args []string
}

// Prefix returns the two character prefix of the segment name.
func (s Segment) Prefix() string {
	if len(s.Name) < 2 {
		return ""
	}
	return s.Name[:2]
}

func (s Segment) String() string {
	return strings.Join(append([]string{s.Name}, s.Args...), " ")
}

// Chain is a parsed chain string.
type Chain struct {
	Raw      string
	Segments []Segment
	// Tag is the value of a trailing "tag" segment of a source chain.
	Tag string
}

// HasSink reports whether the chain ends in a sink.
func (c Chain) HasSink() bool {
	for _, s := range c.Segments {
		if s.Prefix() == PrefixSink {
			return true
		}
	}
	return false
}

// ParseChain splits a chain into segments without checking which kinds may
// appear where. Words are split like a shell does: single and double quotes
// group words and a backslash escapes the next character.
func ParseChain(raw string) (Chain, error) {
	chain := Chain{Raw: raw}

	parts, err := splitPipes(raw)
	if err != nil {
		return chain, err
	}
	for _, part := range parts {
		words, err := splitWords(part)
		if err != nil {
			return chain, err
		}
		if len(words) == 0 {
			return chain, badChain(raw, "empty segment")
		}
		chain.Segments = append(chain.Segments, Segment{Name: words[0], Args: words[1:]})
	}
	return chain, nil
}

// ParseSourceChain parses a chain of the sources section. It must start
// with a source, may end with a "tag" segment and holds at most one sink.
func ParseSourceChain(raw string) (Chain, error) {
	chain, err := ParseChain(raw)
	if err != nil {
		return chain, err
	}

	segs := chain.Segments
	if last := segs[len(segs)-1]; last.Name == tagKeyword {
		if len(last.Args) == 0 {
			return chain, badChain(raw, "tag segment needs a value")
		}
		chain.Tag = strings.Join(last.Args, " ")
		segs = segs[:len(segs)-1]
		chain.Segments = segs
	} else {
		chain.Tag = NoTag
	}
	if len(segs) == 0 || segs[0].Prefix() != PrefixSource {
		return chain, badChain(raw, "a source chain must start with an "+PrefixSource+" plugin")
	}
	if err := checkBody(raw, segs[1:]); err != nil {
		return chain, err
	}
	return chain, nil
}

// ParseMatchChain parses a chain of the matches section: filters followed
// by exactly one sink.
func ParseMatchChain(raw string) (Chain, error) {
	chain, err := ParseChain(raw)
	if err != nil {
		return chain, err
	}
	if err := checkBody(raw, chain.Segments); err != nil {
		return chain, err
	}
	if !chain.HasSink() {
		return chain, badChain(raw, "a match chain must end with an "+PrefixSink+" plugin")
	}
	return chain, nil
}

// ParseTestChain parses a chain for a single test run: a source chain that
// may omit the sink.
func ParseTestChain(raw string) (Chain, error) {
	return ParseSourceChain(raw)
}

// checkBody validates the part of a chain after the source: filters, then
// at most one sink, each buffer or formatter segment following the sink.
func checkBody(raw string, segs []Segment) error {
	sinkSeen := false
	for _, s := range segs {
		switch s.Prefix() {
		case PrefixFilter:
			if sinkSeen {
				return badChain(raw, "filter "+s.Name+" after the sink")
			}
		case PrefixSink:
			if sinkSeen {
				return badChain(raw, "more than one sink")
			}
			sinkSeen = true
		case PrefixBuffer, PrefixFormatter:
			if !sinkSeen {
				return badChain(raw, s.Name+" must follow a sink")
			}
		case PrefixSource:
			return badChain(raw, "source "+s.Name+" not at the start")
		default:
			if s.Name == tagKeyword {
				return badChain(raw, "tag must be the last segment of a source chain")
			}
			return badChain(raw, "unknown prefix in "+s.Name)
		}
	}
	return nil
}

func badChain(raw, msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s in %q", errors.ErrBadChain, msg, raw), "Config", "ParseChain", "chain validation")
}

// splitPipes splits on "|" outside quotes.
func splitPipes(raw string) ([]string, error) {
	var (
		parts   []string
		cur     strings.Builder
		quote   byte
		escaped bool
	)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '|':
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	if quote != 0 || escaped {
		return nil, badChain(raw, "unterminated quote or escape")
	}
	return append(parts, cur.String()), nil
}

// splitWords splits one segment into words with shell quoting rules.
func splitWords(s string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		quote   byte
		escaped bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case quote == '\'':
			if c == '\'' {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case c == '\\':
			escaped, inWord = true, true
		case quote == '"':
			if c == '"' {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote, inWord = c, true
		case c == ' ' || c == '\t' || c == '\n':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteByte(c)
			inWord = true
		}
	}
	if quote != 0 || escaped {
		return nil, badChain(s, "unterminated quote or escape")
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}
