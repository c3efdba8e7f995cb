package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/render"
)

// LogPrinter writes outbound messages to a terminal, coloring log lines by
// priority. Appended chunks may end mid-line; the partial line is held
// until the rest arrives.
type LogPrinter struct {
	out     io.Writer
	year    int
	pending string

	levels map[string]*color.Color
	tag    *color.Color
	dim    *color.Color
	status *color.Color
}

// NewLogPrinter creates a new LogPrinter
func NewLogPrinter(out io.Writer, noColor bool) *LogPrinter {
	lp := &LogPrinter{
		out:  out,
		year: time.Now().Year(),
		levels: map[string]*color.Color{
			"V": color.New(color.FgHiBlack),
			"D": color.New(color.FgBlue),
			"I": color.New(color.FgGreen),
			"W": color.New(color.FgYellow),
			"E": color.New(color.FgRed),
			"F": color.New(color.Bold, color.FgHiMagenta),
			"A": color.New(color.Bold, color.FgHiMagenta),
		},
		tag:    color.New(color.FgCyan),
		dim:    color.New(color.FgHiBlack),
		status: color.New(color.Bold, color.FgHiBlue),
	}
	if noColor {
		for _, c := range lp.levels {
			c.DisableColor()
		}
		lp.tag.DisableColor()
		lp.dim.DisableColor()
		lp.status.DisableColor()
	}
	return lp
}

// PrintMessage prints the parts of msg meant for a reader
func (lp *LogPrinter) PrintMessage(msg domain.Message) {
	switch m := msg.(type) {
	case domain.AppendMsg:
		lp.printChunk(m.Text)
	case domain.HistoryDumpMsg:
		lp.Flush()
		lp.printChunk(m.Text)
		lp.Flush()
	case domain.ImportDumpMsg:
		lp.Flush()
		lp.printChunk(m.Text)
		lp.Flush()
	case domain.StatusMsg:
		lp.Flush()
		lp.status.Fprintf(lp.out, "-- %s --\n", m.Text)
	case domain.DevicesMsg:
		lp.Flush()
		labels := make([]string, len(m.Devices))
		for i, d := range m.Devices {
			labels[i] = d.Label() + " [" + statusText(d.Status) + "]"
		}
		if len(labels) == 0 {
			labels = append(labels, "none")
		}
		lp.dim.Fprintf(lp.out, "-- devices: %s --\n", strings.Join(labels, ", "))
	}
}

// Flush prints a held partial line
func (lp *LogPrinter) Flush() {
	if lp.pending == "" {
		return
	}
	lp.PrintLine(lp.pending)
	lp.pending = ""
}

func (lp *LogPrinter) printChunk(text string) {
	text = lp.pending + text
	lines := strings.Split(text, "\n")
	lp.pending = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		lp.PrintLine(line)
	}
}

// PrintLine prints one raw log line
func (lp *LogPrinter) PrintLine(raw string) {
	line := render.ParseLine(raw, lp.year)
	level, ok := lp.levels[line.Priority]
	if !ok {
		level = color.New()
		level.DisableColor()
	}

	if !line.Structured {
		level.Fprintln(lp.out, line.Raw)
		return
	}

	ts := strings.TrimSpace(line.Date + " " + line.Time)
	if ts != "" {
		lp.dim.Fprint(lp.out, ts+" ")
	}
	lp.dim.Fprint(lp.out, render.PIDColumn(line)+" ")
	lp.tag.Fprint(lp.out, render.Column(line.Tag, constants.TagColumnWidth)+" ")
	level.Fprintf(lp.out, "%s %s\n", line.Priority, line.Message)
}

// statusText returns a readable device status
func statusText(s domain.DeviceStatus) string {
	if s == "" || s == domain.DeviceStatusOnline {
		return "online"
	}
	return s.String()
}

// formatDuration formats a duration nicely
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
