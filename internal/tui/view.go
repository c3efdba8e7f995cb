package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/charliek/catview/internal/domain"
)

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.mode {
	case ModeHelp:
		return m.helpView()
	case ModeDevices:
		return m.frame(m.devicesView())
	case ModeClusters:
		return m.frame(m.clustersView())
	default:
		return m.frame(m.surface.View())
	}
}

// frame wraps body between the header and the status bar
func (m Model) frame(body string) string {
	var sb strings.Builder
	sb.WriteString(m.header())
	sb.WriteString("\n")
	sb.WriteString(body)
	sb.WriteString("\n")
	sb.WriteString(m.statusBar())
	return sb.String()
}

// header renders the device and stream configuration line
func (m Model) header() string {
	items := []string{lipgloss.NewStyle().Bold(true).Render(m.title)}

	if name := m.viewer.ImportName(); name != "" {
		items = append(items, errorStyle.Render(" IMPORT ")+" "+name+dimStyle.Render(" (esc to return)"))
	} else {
		items = append(items, m.deviceLabel())
		cfg := m.viewer.Config().WithDefaults()
		pkg := cfg.Pkg
		if pkg == "" {
			pkg = "all"
		}
		items = append(items, dimStyle.Render(fmt.Sprintf("pkg:%s tag:%s level:%s buffer:%s", pkg, cfg.Tag, cfg.Level, cfg.Buffer)))
	}
	if m.paused {
		items = append(items, noticeStyle.Render(" PAUSED "))
	}
	if m.viewer.Debug() {
		items = append(items, dimStyle.Render("[debug]"))
	}

	return headerStyle.Width(m.width).MaxHeight(1).Render(strings.Join(items, "  "))
}

// deviceLabel describes the selected device
func (m Model) deviceLabel() string {
	serial := m.currentSerial()
	if serial == "" {
		return dimStyle.Render("no device")
	}
	devices, _ := m.viewer.Devices()
	for _, d := range devices {
		if d.Serial != serial {
			continue
		}
		label := d.Label()
		if !d.Status.IsOnline() {
			label += " " + errorStyle.Render(" "+d.Status.String()+" ")
		}
		return label
	}
	return serial
}

// statusBar renders the bottom status bar
func (m Model) statusBar() string {
	var left string

	switch m.mode {
	case ModeFilter:
		left = "Filter: " + m.textInput.View()
	case ModeFind:
		kind := "text"
		if m.findRegex {
			kind = "regex"
		}
		left = fmt.Sprintf("Find (%s, tab to toggle): %s", kind, m.textInput.View())
	case ModeExport:
		left = "Export to: " + m.textInput.View()
	case ModeImport:
		left = "Import: " + m.textInput.View()
	default:
		switch {
		case m.notice != "" && m.noticeErr:
			left = errorStyle.Render(" " + m.notice + " ")
		case m.notice != "":
			left = m.notice
		case m.surface.Notice() != "":
			left = noticeStyle.Render(" "+m.surface.Notice()+" ") + dimStyle.Render(" G to resume")
		default:
			left = m.viewer.Status()
			if left == "" {
				left = "? for help"
			}
		}
	}

	state := m.engine.State()
	var flags []string
	if state.Filter != "" {
		flags = append(flags, "filter:"+state.Filter)
	}
	if find := m.engine.FindStatus(); find != "" {
		flags = append(flags, "find:"+find)
	}
	if state.CaseSensitive {
		flags = append(flags, "Aa")
	}
	if state.Wrap {
		flags = append(flags, "wrap")
	}
	stats := m.engine.Stats()
	if stats.Following {
		flags = append(flags, "[FOLLOW]")
	} else {
		flags = append(flags, fmt.Sprintf("[HELD %s]", formatBytes(stats.Withheld)))
	}
	flags = append(flags, fmt.Sprintf("%d lines", stats.RenderedLines))
	right := strings.Join(flags, " ")

	// Calculate widths
	rightWidth := lipgloss.Width(right)
	leftWidth := max(m.width-rightWidth-4, 0)

	leftPart := statusStyle.Width(leftWidth).MaxHeight(1).Render(left)
	rightPart := statusStyle.Render(right)

	return lipgloss.JoinHorizontal(lipgloss.Top, leftPart, rightPart)
}

// devicesView renders the device picker
func (m Model) devicesView() string {
	devices, def := m.viewer.Devices()
	height := m.surface.PageSize()

	lines := []string{lipgloss.NewStyle().Bold(true).Render("Select a device") + dimStyle.Render("  (enter select, r refresh, esc close)"), ""}
	if len(devices) == 0 {
		lines = append(lines, dimStyle.Render("no devices attached"))
	}
	for i, d := range devices {
		marker := "  "
		if d.Serial == def {
			marker = "* "
		}
		line := fmt.Sprintf("%s%-40s %s", marker, d.Label(), statusText(d.Status))
		if i == m.deviceIndex {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return fitHeight(lines, height)
}

// statusText returns a readable device status
func statusText(s domain.DeviceStatus) string {
	switch s {
	case "", domain.DeviceStatusOnline:
		return "online"
	default:
		return s.String()
	}
}

// clustersView renders the clustered patterns, most frequent first
func (m Model) clustersView() string {
	height := m.surface.PageSize()
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d patterns", len(m.clusters))) +
			dimStyle.Render("  (enter jump to line, esc close)"),
		"",
	}

	// keep the selection visible
	first := 0
	if visible := height - len(lines); visible > 0 && m.clusterIndex >= visible {
		first = m.clusterIndex - visible + 1
	}
	patternWidth := max(m.width-10, 10)
	for i := first; i < len(m.clusters); i++ {
		c := m.clusters[i]
		line := fmt.Sprintf("%7d  %s", c.Count, runewidth.Truncate(c.Rep, patternWidth, "…"))
		if i == m.clusterIndex {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return fitHeight(lines, height)
}

// fitHeight pads or cuts lines to exactly height rows
func fitHeight(lines []string, height int) string {
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// formatBytes renders a byte count compactly
func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// helpView renders the help overlay
func (m Model) helpView() string {
	quitMsg := "Quit"
	if m.attached {
		quitMsg = "Quit (server keeps running)"
	}

	help := fmt.Sprintf(`
%s - Android log viewer

Navigation:
  j/↓ k/↑    Scroll (scrolling up holds new output)
  PgUp/PgDn  Page up/down
  g/Home     Go to top
  G/End      Go to bottom and resume follow

Filtering:
  /          Filter lines (a b = both, a | b = either)
  f          Find (tab toggles regex)
  n/N        Next/previous match
  c          Toggle case sensitivity
  w          Toggle wrap
  ESC        Clear filter and find, leave import

Stream:
  s          Start with the last configuration
  Space      Pause/resume
  x          Stop
  r          Restart
  d          Select device
  h          Load history
  C          Clear

Other:
  e          Export the backlog
  i          Import a log file
  y          Copy visible lines
  K          Group lines by pattern
  ?          Toggle help
  q/Ctrl+C   %s

Press any key to close help...
`, m.title, quitMsg)

	return helpStyle.Render(help)
}
