package tui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func lines(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strings.Repeat(string(rune('a'+i%26)), 3)
	}
	return out
}

func TestSurface_EmptyIsAtBottom(t *testing.T) {
	s := NewSurface()
	s.Resize(80, 5)

	assert.True(t, s.AtBottom())
	assert.Equal(t, 0, s.Offset())
	assert.Empty(t, s.Rows())
}

func TestSurface_ScrollToBottom(t *testing.T) {
	s := NewSurface()
	s.Resize(80, 5)
	s.SetLines(lines(12))

	assert.False(t, s.AtBottom())
	s.ScrollToBottom()
	assert.True(t, s.AtBottom())
	assert.Equal(t, 7, s.Offset())
	assert.Len(t, s.Rows(), 5)
}

func TestSurface_OffsetIsClamped(t *testing.T) {
	s := NewSurface()
	s.Resize(80, 5)
	s.SetLines(lines(12))

	s.SetOffset(100)
	assert.Equal(t, 7, s.Offset())
	s.SetOffset(-3)
	assert.Equal(t, 0, s.Offset())
	s.Scroll(2)
	assert.Equal(t, 2, s.Offset())
	s.Scroll(-10)
	assert.Equal(t, 0, s.Offset())
}

func TestSurface_AppendDoesNotScroll(t *testing.T) {
	s := NewSurface()
	s.Resize(80, 5)
	s.SetLines(lines(5))
	assert.True(t, s.AtBottom())

	s.AppendLines(lines(5))

	assert.Equal(t, 0, s.Offset())
	assert.False(t, s.AtBottom())
	assert.Equal(t, 10, s.Len())
}

func TestSurface_AtBottomWithinTolerance(t *testing.T) {
	s := NewSurface()
	s.Resize(80, 5)
	s.SetLines(lines(20))
	s.ScrollToBottom()

	s.Scroll(-1)
	assert.Equal(t, 14, s.Offset())
	assert.True(t, s.AtBottom(), "one line above the end still follows")

	s.Scroll(-1)
	assert.True(t, s.AtBottom())

	s.Scroll(-1)
	assert.False(t, s.AtBottom())
}

func TestSurface_ResizeKeepsBottom(t *testing.T) {
	s := NewSurface()
	s.Resize(80, 5)
	s.SetLines(lines(12))
	s.ScrollToBottom()

	s.Resize(80, 3)

	assert.True(t, s.AtBottom())
	assert.Equal(t, 9, s.Offset())
}

func TestSurface_TruncatesWithoutWrap(t *testing.T) {
	s := NewSurface()
	s.Resize(10, 3)
	s.SetLines([]string{strings.Repeat("x", 25)})

	rows := s.Rows()
	assert.Equal(t, []string{strings.Repeat("x", 10)}, rows)
}

func TestSurface_WrapSplitsRows(t *testing.T) {
	s := NewSurface()
	s.Resize(10, 3)
	s.SetWrap(true)
	s.SetLines([]string{"short", strings.Repeat("x", 25)})

	// the long line takes three rows, so the view cannot show both lines
	s.ScrollToBottom()
	assert.Equal(t, 1, s.Offset())
	rows := s.Rows()
	assert.Len(t, rows, 3)
	assert.Equal(t, strings.Repeat("x", 10), rows[0])
	assert.Equal(t, strings.Repeat("x", 5), rows[2])

	// scrolling one row keeps the offset on the wrapped line
	s.Scroll(-1)
	assert.Equal(t, 0, s.Offset())
	s.SetOffset(1)
	assert.Equal(t, strings.Repeat("x", 10), s.Rows()[0])
}

func TestSurface_WrapToggleKeepsTopLine(t *testing.T) {
	s := NewSurface()
	s.Resize(10, 3)
	long := strings.Repeat("y", 25)
	s.SetLines([]string{long, long, "a", "b", "c", "d"})
	s.SetOffset(2)

	s.SetWrap(true)

	assert.Equal(t, 2, s.Offset())
	assert.Equal(t, []string{"a", "b", "c"}, s.Rows())
}

func TestSurface_ViewPadsToHeight(t *testing.T) {
	s := NewSurface()
	s.Resize(20, 4)
	s.SetLines([]string{"one", "two"})

	view := s.View()
	assert.Len(t, strings.Split(view, "\n"), 4)
	assert.Contains(t, view, "two")
}

func TestSurface_NotifyClearedAtBottom(t *testing.T) {
	s := NewSurface()
	s.Notify("held")
	assert.Equal(t, "held", s.Notice())

	s.ScrollToBottom()
	assert.Empty(t, s.Notice())
}

func TestSurface_VisibleTextStripsStyling(t *testing.T) {
	s := NewSurface()
	s.Resize(80, 2)
	s.SetLines([]string{"\x1b[31mred\x1b[0m", "plain", "hidden"})

	assert.Equal(t, "red\nplain", s.VisibleText())
}

func TestSurface_PageSizeAtLeastOne(t *testing.T) {
	s := NewSurface()
	assert.Equal(t, 1, s.PageSize())
}
