package tui

import (
	"strings"

	"github.com/aymanbagabas/go-osc52/v2"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
)

// mouseScrollLines is how far one wheel step scrolls
const mouseScrollLines = 3

// maxNoticeLen is the maximum length of error messages in the status bar
const maxNoticeLen = 80

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil

	case tea.WindowSizeMsg:
		m.handleWindowSize(msg)
		return m, nil

	case FrameMsg:
		m.frames.run()
		for _, req := range m.viewer.PidMisses() {
			m.out.Send(req)
		}
		return m, frameTick()

	case HostMsg:
		m.handleHostMessage(msg.Msg)
		return m, nil

	case HostClosedMsg:
		text := "connection to host closed"
		if msg.Err != nil {
			text += ": " + msg.Err.Error()
		}
		m.setNotice(text, true)
		return m, nil

	case SendErrorMsg:
		m.setNotice("error: "+msg.Err.Error(), true)
		return m, noticeClearCmd()

	case NoticeClearMsg:
		m.notice = ""
		m.noticeErr = false
		return m, nil
	}

	return m, nil
}

// handleHostMessage applies an outbound message and sends the replies
func (m *Model) handleHostMessage(msg domain.Message) {
	for _, reply := range m.viewer.Apply(msg) {
		m.out.Send(reply)
	}
	switch msg := msg.(type) {
	case domain.DevicesMsg:
		m.deviceIndex = min(m.deviceIndex, max(len(msg.Devices)-1, 0))
	case domain.StatusMsg:
		switch {
		case strings.HasPrefix(msg.Text, "paused"):
			m.paused = true
		case msg.Text == "resumed", msg.Text == "stopped", strings.HasPrefix(msg.Text, "starting:"):
			m.paused = false
		}
	}
}

// handleWindowSize handles window resize messages
func (m *Model) handleWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 1 // Device and stream line
	footerHeight := 1 // Status bar
	viewportHeight := max(msg.Height-headerHeight-footerHeight, 1)

	if !m.ready {
		m.ready = true
	}
	m.surface.Resize(msg.Width, viewportHeight)
	m.textInput.Width = max(msg.Width-30, 10)
}

// handleMouse scrolls on wheel events
func (m *Model) handleMouse(msg tea.MouseMsg) {
	if m.mode != ModeNormal || msg.Action != tea.MouseActionPress {
		return
	}
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.scroll(-mouseScrollLines)
	case tea.MouseButtonWheelDown:
		m.scroll(mouseScrollLines)
	}
}

// handleKey processes keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Handle mode-specific keys first
	switch m.mode {
	case ModeFilter:
		return m.handleFilterKey(msg)
	case ModeFind:
		return m.handleFindKey(msg)
	case ModeExport, ModeImport:
		return m.handlePathKey(msg)
	case ModeDevices:
		return m.handleDeviceKey(msg)
	case ModeClusters:
		return m.handleClusterKey(msg)
	case ModeHelp:
		m.mode = ModeNormal
		return m, nil
	}

	// Normal mode keys
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "?":
		m.mode = ModeHelp

	case "/":
		m.prevFilter = m.engine.State().Filter
		m.openInput(ModeFilter, "filter: a b | c", m.prevFilter)

	case "f":
		m.openInput(ModeFind, "find", m.findQuery)

	case "n":
		if _, total := m.engine.FindNext(); total == 0 && m.findQuery != "" {
			m.setNotice("no matches", false)
			return m, noticeClearCmd()
		}

	case "N":
		m.engine.FindPrev()

	case "c":
		state := m.engine.State()
		m.engine.SetCaseSensitive(!state.CaseSensitive)
		if m.findQuery != "" {
			_ = m.applyFind()
		}

	case "w":
		m.engine.SetWrap(!m.engine.State().Wrap)

	case " ":
		if m.paused {
			m.out.Send(m.startMsg())
		} else {
			m.out.Send(domain.PauseMsg{})
		}

	case "s":
		m.out.Send(m.startMsg())

	case "x":
		m.out.Send(domain.StopMsg{})

	case "r":
		m.out.Send(domain.RestartMsg{Serial: m.currentSerial()})

	case "d":
		m.out.Send(domain.RefreshDevicesMsg{})
		m.mode = ModeDevices

	case "h":
		m.out.Send(domain.RequestHistoryMsg{Serial: m.currentSerial()})

	case "C":
		m.engine.Clear()
		m.out.Send(domain.ClearMsg{})

	case "e":
		m.openInput(ModeExport, "file name", constants.DefaultExportFilename)

	case "i":
		m.openInput(ModeImport, "path to log file", "")

	case "y":
		return m.copyVisible()

	case "K":
		m.clusters = m.engine.Clusters()
		m.clusterIndex = 0
		m.mode = ModeClusters

	case "esc":
		if m.viewer.Importing() {
			m.viewer.ExitImport()
			m.out.Send(m.startMsg())
			return m, nil
		}
		m.findQuery = ""
		_ = m.engine.SetFind("", false, false)
		m.engine.SetFilter("")

	case "up", "k":
		m.scroll(-1)

	case "down", "j":
		m.scroll(1)

	case "pgup":
		m.scroll(-m.surface.PageSize())

	case "pgdown":
		m.scroll(m.surface.PageSize())

	case "home", "g":
		m.surface.SetOffset(0)
		m.engine.CheckFollow()

	case "end", "G":
		m.engine.ResumeFollow()
	}

	return m, nil
}

// scroll moves the view and lets the engine pick up the new position
func (m *Model) scroll(delta int) {
	m.surface.Scroll(delta)
	m.engine.CheckFollow()
}

// openInput switches to a prompt mode
func (m *Model) openInput(mode Mode, placeholder, value string) {
	m.mode = mode
	m.textInput.Placeholder = placeholder
	m.textInput.SetValue(value)
	m.textInput.CursorEnd()
	m.textInput.Focus()
}

// closeInput returns to normal mode
func (m *Model) closeInput() {
	m.mode = ModeNormal
	m.textInput.Blur()
}

// handleFilterKey handles keys in filter mode. The filter applies live.
func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.engine.SetFilter(m.prevFilter)
		m.closeInput()
		return m, nil

	case "enter":
		m.closeInput()
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	m.engine.SetFilter(m.textInput.Value())
	return m, cmd
}

// handleFindKey handles keys in find mode. Tab toggles regular expressions.
func (m Model) handleFindKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeInput()
		return m, nil

	case "tab":
		m.findRegex = !m.findRegex
		return m, nil

	case "enter":
		m.findQuery = m.textInput.Value()
		m.closeInput()
		if err := m.applyFind(); err != nil {
			m.setNotice(err.Error(), true)
			return m, noticeClearCmd()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// applyFind sends the find query to the engine
func (m *Model) applyFind() error {
	return m.engine.SetFind(m.findQuery, m.findRegex, m.engine.State().CaseSensitive)
}

// handlePathKey handles the export and import prompts
func (m Model) handlePathKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeInput()
		return m, nil

	case "enter":
		value := m.textInput.Value()
		mode := m.mode
		m.closeInput()
		if value == "" {
			return m, nil
		}
		if mode == ModeExport {
			m.out.Send(domain.ExportLogsMsg{Text: m.engine.ExportText(), Suggested: value})
		} else {
			m.out.Send(domain.ImportLogsMsg{Path: value})
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// handleDeviceKey handles keys in the device picker
func (m Model) handleDeviceKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	devices, _ := m.viewer.Devices()

	switch msg.String() {
	case "esc", "q", "d":
		m.mode = ModeNormal

	case "up", "k":
		m.deviceIndex = max(m.deviceIndex-1, 0)

	case "down", "j":
		m.deviceIndex = min(m.deviceIndex+1, max(len(devices)-1, 0))

	case "r":
		m.out.Send(domain.RefreshDevicesMsg{})

	case "enter":
		m.mode = ModeNormal
		if m.deviceIndex >= len(devices) {
			return m, nil
		}
		serial := devices[m.deviceIndex].Serial
		if serial != m.serial {
			m.serial = serial
			m.engine.SetSerial(serial)
		}
		m.out.Send(domain.SelectDeviceMsg{Serial: serial})
	}
	return m, nil
}

// handleClusterKey handles keys in the cluster view
func (m Model) handleClusterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "K":
		m.mode = ModeNormal
		m.clusters = nil

	case "up", "k":
		m.clusterIndex = max(m.clusterIndex-1, 0)

	case "down", "j":
		m.clusterIndex = min(m.clusterIndex+1, max(len(m.clusters)-1, 0))

	case "enter":
		// jump to the representative line of the pattern
		if m.clusterIndex < len(m.clusters) {
			m.findQuery = m.clusters[m.clusterIndex].Rep
			m.findRegex = false
			if err := m.applyFind(); err == nil {
				m.engine.FindNext()
			}
		}
		m.mode = ModeNormal
		m.clusters = nil
	}
	return m, nil
}

// copyVisible copies the visible lines to the terminal clipboard
func (m Model) copyVisible() (tea.Model, tea.Cmd) {
	text := m.surface.VisibleText()
	if text == "" {
		return m, nil
	}
	w := m.clipboard
	m.setNotice("copied visible lines", false)
	return m, tea.Batch(
		func() tea.Msg {
			if _, err := osc52.New(text).WriteTo(w); err != nil {
				return SendErrorMsg{Err: err}
			}
			return nil
		},
		noticeClearCmd(),
	)
}

// setNotice shows transient feedback in the status bar
func (m *Model) setNotice(text string, isErr bool) {
	if len(text) > maxNoticeLen {
		text = text[:maxNoticeLen-3] + "..."
	}
	m.notice = text
	m.noticeErr = isErr
}
