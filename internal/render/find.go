package render

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
)

// Span is a match over the backlog, as byte offsets
type Span struct {
	Start int
	End   int
}

// Finder holds a find query and its matches over the backlog
type Finder struct {
	query         string
	regex         bool
	caseSensitive bool

	re      *regexp.Regexp
	spans   []Span
	current int
}

// Set compiles a query. An empty query clears the matches. An invalid
// expression leaves the finder with no matches and returns
// ErrInvalidPattern.
func (f *Finder) Set(query string, regex, caseSensitive bool) error {
	f.query, f.regex, f.caseSensitive = query, regex, caseSensitive
	f.re = nil
	f.spans = nil
	f.current = 0

	if query == "" {
		return nil
	}
	if len(query) > constants.MaxPatternLength {
		return fmt.Errorf("%w: pattern exceeds maximum length of %d characters", domain.ErrInvalidPattern, constants.MaxPatternLength)
	}

	expr := query
	if !regex {
		expr = regexp.QuoteMeta(query)
	}
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPattern, err)
	}
	f.re = re
	return nil
}

// Active reports whether a valid query is set
func (f *Finder) Active() bool {
	return f.re != nil
}

// Query returns the current query and flags
func (f *Finder) Query() (query string, regex, caseSensitive bool) {
	return f.query, f.regex, f.caseSensitive
}

// Index recomputes the matches over text
func (f *Finder) Index(text string) {
	f.spans = nil
	f.Extend(text, 0)
	if f.current >= len(f.spans) {
		f.current = 0
	}
}

// Extend adds the matches found in chunk, which starts at backlog offset
// base. Matches overlapping the existing ones are skipped.
func (f *Finder) Extend(chunk string, base int) {
	if f.re == nil || chunk == "" {
		return
	}
	floor := base
	if n := len(f.spans); n > 0 {
		floor = max(floor, f.spans[n-1].End)
	}
	for _, loc := range f.re.FindAllStringIndex(chunk, -1) {
		start, end := base+loc[0], base+loc[1]
		if start == end || start < floor {
			continue
		}
		f.spans = append(f.spans, Span{Start: start, End: end})
	}
}

// Reset drops the matches but keeps the query
func (f *Finder) Reset() {
	f.spans = nil
	f.current = 0
}

// Count returns the number of matches
func (f *Finder) Count() int {
	return len(f.spans)
}

// CurrentIndex returns the position of the current match, -1 when there are none
func (f *Finder) CurrentIndex() int {
	if len(f.spans) == 0 {
		return -1
	}
	return f.current
}

// Current returns the current match
func (f *Finder) Current() (Span, bool) {
	if len(f.spans) == 0 {
		return Span{}, false
	}
	return f.spans[f.current], true
}

// Next moves to the following match, wrapping around
func (f *Finder) Next() (Span, bool) {
	return f.step(1)
}

// Prev moves to the preceding match, wrapping around
func (f *Finder) Prev() (Span, bool) {
	return f.step(-1)
}

func (f *Finder) step(d int) (Span, bool) {
	n := len(f.spans)
	if n == 0 {
		return Span{}, false
	}
	f.current = ((f.current+d)%n + n) % n
	return f.spans[f.current], true
}

// AlignTo makes the first match at or after offset current, wrapping to
// the first match when none follows.
func (f *Finder) AlignTo(offset int) {
	i := sort.Search(len(f.spans), func(i int) bool { return f.spans[i].Start >= offset })
	if i >= len(f.spans) {
		i = 0
	}
	f.current = i
}

// Within returns the highlights for the backlog range [start, end), as
// offsets relative to start.
func (f *Finder) Within(start, end int) []Highlight {
	i := sort.Search(len(f.spans), func(i int) bool { return f.spans[i].End > start })
	var out []Highlight
	for ; i < len(f.spans) && f.spans[i].Start < end; i++ {
		s := f.spans[i]
		out = append(out, Highlight{
			Start:   max(s.Start, start) - start,
			End:     min(s.End, end) - start,
			Current: i == f.current,
		})
	}
	return out
}
