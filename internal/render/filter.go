package render

import (
	"strings"
)

// FilterAST is a compiled filter expression: an OR of AND term groups.
// It is immutable once compiled.
type FilterAST struct {
	groups        [][]string
	caseSensitive bool
}

// CompileFilter splits text on '|' into alternatives and each alternative on
// whitespace into terms. Empty alternatives are dropped. Terms are case
// folded unless caseSensitive is set.
func CompileFilter(text string, caseSensitive bool) *FilterAST {
	f := &FilterAST{caseSensitive: caseSensitive}
	if !caseSensitive {
		text = strings.ToLower(text)
	}
	for _, branch := range strings.Split(text, "|") {
		terms := strings.Fields(branch)
		if len(terms) > 0 {
			f.groups = append(f.groups, terms)
		}
	}
	return f
}

// Empty reports whether the filter matches everything
func (f *FilterAST) Empty() bool {
	return f == nil || len(f.groups) == 0
}

// Groups returns the compiled term groups
func (f *FilterAST) Groups() [][]string {
	if f == nil {
		return nil
	}
	return f.groups
}

// Match reports whether every term of at least one group is contained in s
func (f *FilterAST) Match(s string) bool {
	if f.Empty() {
		return true
	}
	if !f.caseSensitive {
		s = strings.ToLower(s)
	}
	for _, group := range f.groups {
		if containsAll(s, group) {
			return true
		}
	}
	return false
}

func containsAll(s string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return true
}
