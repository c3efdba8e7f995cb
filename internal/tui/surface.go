package tui

import (
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"github.com/charliek/catview/internal/constants"
)

// Surface is the scrollable terminal log view backed by a viewport.
// Offsets passed in and out count formatted lines; the viewport scrolls by
// terminal rows and starts maps one to the other.
type Surface struct {
	mu     sync.Mutex
	vp     viewport.Model
	lines  []string
	rows   []string
	starts []int
	wrap   bool
	notice string
}

// NewSurface creates an empty surface
func NewSurface() *Surface {
	return &Surface{vp: viewport.New(0, 0)}
}

// Resize sets the visible area in cells
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bottom := s.vp.AtBottom()
	top := s.topLineLocked()
	s.vp.Width = max(width, 0)
	s.vp.Height = max(height, 0)
	s.layoutLocked()
	if bottom {
		s.vp.GotoBottom()
	} else {
		s.setTopLineLocked(top)
	}
}

// AtBottom reports whether the view is within a couple of rows of the end
func (s *Surface) AtBottom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vp.YOffset >= s.maxYOffsetLocked()-constants.FollowToleranceLines
}

// ScrollToBottom shows the last rows and clears the notice
func (s *Surface) ScrollToBottom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vp.GotoBottom()
	s.notice = ""
}

// Offset returns the index of the line holding the top visible row
func (s *Surface) Offset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topLineLocked()
}

// SetOffset scrolls so that line offset starts the view, within bounds
func (s *Surface) SetOffset(offset int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTopLineLocked(offset)
}

// Scroll moves the view by delta rows
func (s *Surface) Scroll(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delta < 0 {
		s.vp.LineUp(-delta)
	} else {
		s.vp.LineDown(delta)
	}
}

// AppendLines adds lines at the end without scrolling
func (s *Surface) AppendLines(lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range lines {
		s.addLocked(line)
	}
	s.vp.SetContent(strings.Join(s.rows, "\n"))
}

// SetLines replaces every line
func (s *Surface) SetLines(lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	top := s.topLineLocked()
	s.lines = append(s.lines[:0:0], lines...)
	s.layoutLocked()
	s.setTopLineLocked(top)
}

// SetWrap switches between wrapped and truncated long lines
func (s *Surface) SetWrap(wrap bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wrap == wrap {
		return
	}
	top := s.topLineLocked()
	s.wrap = wrap
	s.layoutLocked()
	s.setTopLineLocked(top)
}

// Notify shows text until the view returns to the bottom
func (s *Surface) Notify(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = text
}

// Notice returns the pending notice, if any
func (s *Surface) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// Len returns the number of lines
func (s *Surface) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// PageSize returns the number of visible rows
func (s *Surface) PageSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return max(s.vp.Height, 1)
}

// View renders the visible rows padded to the surface size
func (s *Surface) View() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vp.View()
}

// Rows returns the terminal rows currently visible, top to bottom
func (s *Surface) Rows() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	top, bottom := s.visibleRowsLocked()
	return append([]string(nil), s.rows[top:bottom]...)
}

// VisibleText returns the lines with a visible row, without styling
func (s *Surface) VisibleText() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	top, bottom := s.visibleRowsLocked()
	var out []string
	for i := s.lineAtRowLocked(top); i < len(s.lines) && s.starts[i] < bottom; i++ {
		out = append(out, ansi.Strip(s.lines[i]))
	}
	return strings.Join(out, "\n")
}

// layoutLocked rebuilds rows and the line index from the current lines
func (s *Surface) layoutLocked() {
	s.rows = s.rows[:0]
	s.starts = s.starts[:0]
	for _, line := range s.lines {
		s.starts = append(s.starts, len(s.rows))
		s.rows = append(s.rows, s.rowsLocked(line)...)
	}
	s.vp.SetContent(strings.Join(s.rows, "\n"))
}

func (s *Surface) addLocked(line string) {
	s.lines = append(s.lines, line)
	s.starts = append(s.starts, len(s.rows))
	s.rows = append(s.rows, s.rowsLocked(line)...)
}

// rowsLocked splits a line into the rows it takes on screen
func (s *Surface) rowsLocked(line string) []string {
	width := s.vp.Width
	if width <= 0 {
		return []string{line}
	}
	if !s.wrap {
		return []string{truncate.String(line, uint(width))}
	}
	wrapped := wrap.String(wordwrap.String(line, width), width)
	return strings.Split(wrapped, "\n")
}

// visibleRowsLocked bounds the rows shown at the current offset
func (s *Surface) visibleRowsLocked() (int, int) {
	top := min(max(s.vp.YOffset, 0), len(s.rows))
	return top, min(top+s.vp.Height, len(s.rows))
}

func (s *Surface) topLineLocked() int {
	return s.lineAtRowLocked(s.vp.YOffset)
}

// lineAtRowLocked returns the line that owns row, 0 when empty
func (s *Surface) lineAtRowLocked(row int) int {
	i := sort.Search(len(s.starts), func(i int) bool { return s.starts[i] > row }) - 1
	return max(i, 0)
}

func (s *Surface) setTopLineLocked(line int) {
	if len(s.starts) == 0 {
		s.vp.GotoTop()
		return
	}
	line = min(max(line, 0), len(s.starts)-1)
	s.vp.SetYOffset(s.starts[line])
}

// maxYOffsetLocked mirrors the viewport's own bound for an unstyled view
func (s *Surface) maxYOffsetLocked() int {
	return max(s.vp.TotalLineCount()-s.vp.Height, 0)
}
