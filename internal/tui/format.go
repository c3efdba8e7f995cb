package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/render"
)

// pidColumnWidth fits "pid-tid" for typical Android pids
const pidColumnWidth = 11

// ansiFormatter renders lines with terminal colors and fixed-width columns
type ansiFormatter struct{}

// Format implements render.Formatter
func (ansiFormatter) Format(line render.Line, hl []render.Highlight) string {
	if !line.Structured {
		return highlight(line.Raw, 0, hl, rawStyle)
	}

	var b strings.Builder
	if ts := strings.TrimSpace(line.Date + " " + line.Time); ts != "" {
		b.WriteString(timeStyle.Render(ts))
		b.WriteByte(' ')
	}
	b.WriteString(pidStyle.Render(render.Pad(render.PIDColumn(line), pidColumnWidth)))
	b.WriteByte(' ')
	b.WriteString(tagStyle.Render(render.Column(line.Tag, constants.TagColumnWidth)))
	b.WriteByte(' ')
	b.WriteString(pkgStyle.Render(render.Column(line.Package, constants.PackageColumnWidth)))
	b.WriteByte(' ')

	style := levelStyle(line.Priority)
	b.WriteString(style.Bold(true).Render(line.Priority))
	b.WriteByte(' ')
	b.WriteString(highlight(line.Raw[line.MsgStart:], line.MsgStart, hl, style))
	return b.String()
}

// highlight styles s, marking find matches. base is the offset of s in the
// raw line.
func highlight(s string, base int, hl []render.Highlight, style lipgloss.Style) string {
	var b strings.Builder
	for _, seg := range render.Segments(s, base, hl) {
		switch {
		case seg.Text == "":
		case seg.Highlight == nil:
			b.WriteString(style.Render(seg.Text))
		case seg.Highlight.Current:
			b.WriteString(findCurrentStyle.Render(seg.Text))
		default:
			b.WriteString(findHitStyle.Render(seg.Text))
		}
	}
	return b.String()
}
