package phofmit

import (
	"fmt"
	"regexp"
	"strings"
)

// regexDelimiters maps an opening delimiter to its closing counterpart.
// Any other non-alphanumeric, non-space, non-backslash character is its own
// closing delimiter.
var regexDelimiters = map[byte]byte{'{': '}', '(': ')', '[': ']', '<': '>'}

// regexFlags are the trailing modifiers accepted after a closing delimiter.
const regexFlags = "imsU"

// Pattern matches relative paths either by literal substring or by regular
// expression. A pattern written as /expr/flags (or #expr#, {expr}, ...) is a
// regular expression; anything else is a literal.
type Pattern struct {
	raw     string
	literal string
	re      *regexp.Regexp
}

// CompilePattern parses a raw pattern string.
func CompilePattern(raw string) (*Pattern, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	expr, flags, ok := splitDelimited(raw)
	if !ok {
		return &Pattern{raw: raw, literal: raw}, nil
	}
	if flags != "" {
		expr = "(?" + flags + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", raw, err)
	}
	return &Pattern{raw: raw, re: re}, nil
}

// splitDelimited recognizes delimiter-wrapped regular expressions and returns
// the inner expression and its flags.
func splitDelimited(raw string) (expr, flags string, ok bool) {
	if len(raw) < 3 {
		return "", "", false
	}
	open := raw[0]
	if isAlnum(open) || open == ' ' || open == '\\' {
		return "", "", false
	}
	closing, paired := regexDelimiters[open]
	if !paired {
		closing = open
	}
	end := strings.LastIndexByte(raw, closing)
	if end <= 0 {
		return "", "", false
	}
	flags = raw[end+1:]
	for i := 0; i < len(flags); i++ {
		if !strings.ContainsRune(regexFlags, rune(flags[i])) {
			return "", "", false
		}
	}
	return raw[1:end], flags, true
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// Match reports whether relativePath (slash-separated) matches the pattern.
func (p *Pattern) Match(relativePath string) bool {
	if p.re != nil {
		return p.re.MatchString(relativePath)
	}
	return strings.Contains(relativePath, p.literal)
}

// String returns the pattern as it was written.
func (p *Pattern) String() string { return p.raw }

// PathFilter applies include and exclude patterns to relative paths.
// A path passes when it matches at least one include pattern (or there are
// none) and no exclude pattern.
type PathFilter struct {
	include []*Pattern
	exclude []*Pattern
}

// NewPathFilter compiles include and exclude pattern lists.
func NewPathFilter(include, exclude []string) (*PathFilter, error) {
	f := &PathFilter{}
	for _, raw := range include {
		p, err := CompilePattern(raw)
		if err != nil {
			return nil, fmt.Errorf("include: %w", err)
		}
		f.include = append(f.include, p)
	}
	for _, raw := range exclude {
		p, err := CompilePattern(raw)
		if err != nil {
			return nil, fmt.Errorf("exclude: %w", err)
		}
		f.exclude = append(f.exclude, p)
	}
	return f, nil
}

// Allow reports whether relativePath survives the filter.
func (f *PathFilter) Allow(relativePath string) bool {
	if f == nil {
		return true
	}
	if len(f.include) > 0 {
		included := false
		for _, p := range f.include {
			if p.Match(relativePath) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, p := range f.exclude {
		if p.Match(relativePath) {
			return false
		}
	}
	return true
}
