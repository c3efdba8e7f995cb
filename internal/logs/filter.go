package logs

import (
	"strings"

	"github.com/charliek/catview/internal/domain"
)

// Filter selects entries by message kind and sequence number
type Filter struct {
	// Kinds limits entries to these kinds; empty means all
	Kinds []domain.Kind
	// After skips entries with Seq <= After
	After uint64
}

// IsEmpty reports whether the filter matches everything
func (f Filter) IsEmpty() bool {
	return len(f.Kinds) == 0 && f.After == 0
}

// ParseKinds parses a comma separated kind list
func ParseKinds(s string) ([]domain.Kind, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var kinds []domain.Kind
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := domain.ParseKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// matcher is a compiled Filter
type matcher struct {
	kinds map[domain.Kind]bool
	after uint64
}

func newMatcher(f Filter) *matcher {
	m := &matcher{after: f.After}
	if len(f.Kinds) > 0 {
		m.kinds = make(map[domain.Kind]bool, len(f.Kinds))
		for _, k := range f.Kinds {
			m.kinds[k] = true
		}
	}
	return m
}

// Matches returns true if the entry passes the filter
func (m *matcher) Matches(entry Entry) bool {
	if entry.Seq <= m.after {
		return false
	}
	if m.kinds != nil && (entry.Message == nil || !m.kinds[entry.Message.Kind()]) {
		return false
	}
	return true
}

// FilterEntries filters a slice of entries
func FilterEntries(entries []Entry, filter Filter) []Entry {
	if filter.IsEmpty() {
		return entries
	}

	m := newMatcher(filter)
	result := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if m.Matches(entry) {
			result = append(result, entry)
		}
	}
	return result
}

// FilterEntriesLimit filters entries and returns at most the last limit,
// along with the count before limiting
func FilterEntriesLimit(entries []Entry, filter Filter, limit int) ([]Entry, int) {
	filtered := FilterEntries(entries, filter)

	total := len(filtered)
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, total
}
