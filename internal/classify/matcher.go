package classify

import (
	"regexp"
	"strings"
)

// Matcher tests a destination host against one rule pattern. Implementations
// keep the original pattern source so rules can be removed by exact string.
type Matcher interface {
	Match(host string) bool
	Source() string
}

// Compile builds a matcher for a pattern. Three dialects are recognized:
//
//	"*.example.com"  suffix match (also matches "example.com" itself)
//	"example.com"    exact match (no metacharacters)
//	anything else    compiled as a regular expression
//
// A pattern that fails to compile yields a matcher that never matches, so a
// malformed rule is skipped rather than surfaced as an error.
func Compile(pattern string) Matcher {
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok && !hasRegexpMeta(suffix) {
		return suffixMatcher{source: pattern, suffix: strings.ToLower(suffix)}
	}
	if !hasRegexpMeta(pattern) {
		return exactMatcher{source: pattern, host: strings.ToLower(pattern)}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return neverMatcher{source: pattern}
	}
	return regexMatcher{source: pattern, re: re}
}

func hasRegexpMeta(s string) bool {
	return strings.ContainsAny(s, `\^$*+?()[]{}|`)
}

type exactMatcher struct {
	source string
	host   string
}

func (m exactMatcher) Match(host string) bool { return strings.ToLower(host) == m.host }
func (m exactMatcher) Source() string         { return m.source }

type suffixMatcher struct {
	source string
	suffix string
}

func (m suffixMatcher) Match(host string) bool {
	host = strings.ToLower(host)
	return host == m.suffix || strings.HasSuffix(host, "."+m.suffix)
}
func (m suffixMatcher) Source() string { return m.source }

type regexMatcher struct {
	source string
	re     *regexp.Regexp
}

func (m regexMatcher) Match(host string) bool { return m.re.MatchString(host) }
func (m regexMatcher) Source() string         { return m.source }

type neverMatcher struct {
	source string
}

func (neverMatcher) Match(string) bool { return false }
func (m neverMatcher) Source() string { return m.source }
