package extract

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// Filter decides which leaves are dropped from a result.
type Filter interface {
	// Exclude receives the slash-separated member path of a leaf.
	Exclude(member string) bool
}

// PatternFilter excludes members matching gitignore-style patterns.
type PatternFilter struct {
	patterns []string
	ignore   *gitignore.GitIgnore
}

// NewPatternFilter compiles patterns. It returns nil when there are none,
// so the result can be passed straight to WithFilter.
func NewPatternFilter(patterns ...string) *PatternFilter {
	if len(patterns) == 0 {
		return nil
	}
	return &PatternFilter{
		patterns: patterns,
		ignore:   gitignore.CompileIgnoreLines(patterns...),
	}
}

// Exclude reports whether member matches any pattern.
func (f *PatternFilter) Exclude(member string) bool {
	if f == nil || f.ignore == nil {
		return false
	}
	return f.ignore.MatchesPath(member)
}

// Patterns returns the source patterns.
func (f *PatternFilter) Patterns() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.patterns...)
}
