package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/charliek/catview/internal/constants"
)

// Highlight classes
const (
	ClassFindHit     = "find-hit"
	ClassFindCurrent = "find-current"
)

// Highlight is a find match inside a line, as byte offsets into Line.Raw
type Highlight struct {
	Start   int
	End     int
	Current bool
}

// Class returns the highlight class for the occurrence
func (h Highlight) Class() string {
	if h.Current {
		return ClassFindCurrent
	}
	return ClassFindHit
}

// Formatter renders a line for a surface
type Formatter interface {
	Format(line Line, highlights []Highlight) string
}

// HTMLFormatter renders lines as HTML spans with fixed-width columns
type HTMLFormatter struct{}

// Format implements Formatter
func (HTMLFormatter) Format(line Line, hl []Highlight) string {
	if !line.Structured {
		return `<span class="raw">` + htmlText(line.Raw, 0, hl) + `</span>`
	}

	var b strings.Builder
	if line.Date != "" || line.Time != "" {
		fmt.Fprintf(&b, `<span class="ts">%s</span> `, html.EscapeString(strings.TrimSpace(line.Date+" "+line.Time)))
	}
	fmt.Fprintf(&b, `<span class="pid">%s</span> `, html.EscapeString(Pad(PIDColumn(line), 11)))
	fmt.Fprintf(&b, `<span class="tag">%s</span> `, html.EscapeString(Column(line.Tag, constants.TagColumnWidth)))
	fmt.Fprintf(&b, `<span class="pkg">%s</span> `, html.EscapeString(Column(line.Package, constants.PackageColumnWidth)))
	fmt.Fprintf(&b, `<span class="lvl lvl-%s">%s</span> `, line.Priority, line.Priority)
	b.WriteString(`<span class="msg">`)
	b.WriteString(htmlText(line.Raw[line.MsgStart:], line.MsgStart, hl))
	b.WriteString(`</span>`)
	return b.String()
}

// htmlText escapes s and marks the highlighted parts
func htmlText(s string, base int, hl []Highlight) string {
	var b strings.Builder
	for _, seg := range Segments(s, base, hl) {
		if seg.Highlight == nil {
			b.WriteString(html.EscapeString(seg.Text))
			continue
		}
		fmt.Fprintf(&b, `<mark class="%s">%s</mark>`, seg.Highlight.Class(), html.EscapeString(seg.Text))
	}
	return b.String()
}

// Segment is a run of text, highlighted or not
type Segment struct {
	Text      string
	Highlight *Highlight
}

// Segments splits s at the highlights. base is the offset of s within the
// raw line; highlights outside s are ignored.
func Segments(s string, base int, hl []Highlight) []Segment {
	var segs []Segment
	pos := 0
	for i := range hl {
		start, end := hl[i].Start-base, hl[i].End-base
		if end <= pos || start >= len(s) {
			continue
		}
		start = max(start, pos)
		end = min(end, len(s))
		if start > pos {
			segs = append(segs, Segment{Text: s[pos:start]})
		}
		segs = append(segs, Segment{Text: s[start:end], Highlight: &hl[i]})
		pos = end
	}
	if pos < len(s) || len(segs) == 0 {
		segs = append(segs, Segment{Text: s[pos:]})
	}
	return segs
}

// PIDColumn formats pid-tid, blank when the format has no pid
func PIDColumn(line Line) string {
	switch {
	case line.PID == 0:
		return ""
	case line.TID == 0:
		return fmt.Sprint(line.PID)
	default:
		return fmt.Sprintf("%d-%d", line.PID, line.TID)
	}
}

// Column fits s into width cells with a middle ellipsis, padded on the right
func Column(s string, width int) string {
	return Pad(MiddleEllipsis(s, width), width)
}

// Pad right-pads s with spaces to width cells
func Pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// MiddleEllipsis shortens s to width cells by replacing its middle with "…"
func MiddleEllipsis(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	keep := width - 1
	head := (keep + 1) / 2
	tail := keep - head

	left := runewidth.Truncate(s, head, "")
	right := tailCells(s, tail)
	return left + "…" + right
}

// tailCells returns the longest suffix of s at most width cells wide
func tailCells(s string, width int) string {
	runes := []rune(s)
	w := 0
	i := len(runes)
	for i > 0 {
		rw := runewidth.RuneWidth(runes[i-1])
		if w+rw > width {
			break
		}
		w += rw
		i--
	}
	return string(runes[i:])
}
