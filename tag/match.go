// Package tag matches dotted tags such as "app.web.access" against glob
// patterns used in routing rules.
//
// Pattern syntax:
//
//	*        one tag part (any run of characters without a dot)
//	**       zero or more tag parts
//	{a,b}    either alternative; alternatives may contain wildcards
//	\c       the literal character c
//
// Several patterns separated by spaces match when any of them matches.
package tag

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/haje01/swak/errors"
)

// Matcher reports whether a tag is accepted by a compiled pattern.
// A compiled Matcher is immutable and safe for concurrent use.
type Matcher interface {
	Match(tag string) bool
	String() string
}

// Compile compiles a pattern, which may hold several space separated
// alternatives.
func Compile(pattern string) (Matcher, error) {
	parts := strings.Fields(pattern)
	if len(parts) == 0 {
		return nil, errors.WrapInvalid(errors.ErrBadPattern, "tag", "Compile", "empty pattern")
	}

	globs := make([]*glob, 0, len(parts))
	for _, p := range parts {
		g, err := compileGlob(p)
		if err != nil {
			return nil, err
		}
		globs = append(globs, g)
	}

	if len(globs) == 1 {
		return globs[0], nil
	}
	return &orMatcher{pattern: pattern, globs: globs}, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(pattern string) Matcher {
	m, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

type glob struct {
	pattern string
	re      *regexp.Regexp
}

func (g *glob) Match(tag string) bool { return g.re.MatchString(tag) }
func (g *glob) String() string { return g.pattern }

type orMatcher struct {
	pattern string
	globs   []*glob
}

func (m *orMatcher) Match(tag string) bool {
	for _, g := range m.globs {
		if g.Match(tag) {
			return true
		}
	}
	return false
}

func (m *orMatcher) String() string { return m.pattern }

// Regexp fragments for "**". A dot directly before "**" may also match
// nothing, so "a.**" accepts "a" and "a.**.b" accepts "a.b".
const (
	anyParts          = `.*`
	anyPartsThenDot   = `(?:.*\.|\A)`
	dotAnyParts       = `(?:\..*)?`
	dotAnyPartsAndDot = `(?:\.(?:.*\.)?|\A)`
	onePart           = `[^.]*`
)

func compileGlob(pat string) (*glob, error) {
	// stack holds finished alternatives of each open brace; out holds the
	// fragment being built at each nesting depth.
	var stack [][]string
	out := []string{""}
	dot := false

	for i := 0; i < len(pat); {
		if strings.HasPrefix(pat[i:], "**") {
			thenDot := i+2 < len(pat) && pat[i+2] == '.'
			switch {
			case dot && thenDot:
				out[len(out)-1] += dotAnyPartsAndDot
			case dot:
				out[len(out)-1] += dotAnyParts
			case thenDot:
				out[len(out)-1] += anyPartsThenDot
			default:
				out[len(out)-1] += anyParts
			}
			dot = false
			if thenDot {
				i += 3
			} else {
				i += 2
			}
			continue
		}

		if dot {
			out[len(out)-1] += `\.`
			dot = false
		}

		c := pat[i]
		switch {
		case c == '\\':
			if i+1 >= len(pat) {
				return nil, errors.WrapInvalid(errors.ErrBadPattern, "tag", "Compile",
					fmt.Sprintf("dangling escape in %q", pat))
			}
			out[len(out)-1] += regexp.QuoteMeta(pat[i+1 : i+2])
			i += 2
			continue
		case c == '.':
			dot = true
		case c == '*':
			out[len(out)-1] += onePart
		case c == '{':
			stack = append(stack, nil)
			out = append(out, "")
		case c == ',' && len(stack) > 0:
			stack[len(stack)-1] = append(stack[len(stack)-1], out[len(out)-1])
			out[len(out)-1] = ""
		case c == '}' && len(stack) > 0:
			alts := append(stack[len(stack)-1], out[len(out)-1])
			stack = stack[:len(stack)-1]
			out = out[:len(out)-1]
			out[len(out)-1] += "(?:" + strings.Join(alts, "|") + ")"
		default:
			out[len(out)-1] += regexp.QuoteMeta(pat[i : i+1])
		}
		i++
	}

	if dot {
		out[len(out)-1] += `\.`
	}
	if len(stack) > 0 {
		return nil, errors.WrapInvalid(errors.ErrBadPattern, "tag", "Compile",
			fmt.Sprintf("unclosed brace in %q", pat))
	}

	re, err := regexp.Compile("^" + out[0] + "$")
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrBadPattern, err), "tag", "Compile", "compile regexp")
	}
	return &glob{pattern: pat, re: re}, nil
}
