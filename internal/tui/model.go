package tui

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/render"
)

// Mode represents the current TUI mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeFilter
	ModeFind
	ModeExport
	ModeImport
	ModeDevices
	ModeClusters
	ModeHelp
)

// Options configure the terminal viewer
type Options struct {
	Host Host
	// PrefsPath stores the view state between runs
	PrefsPath string
	// Defaults apply when no preferences were saved
	Defaults domain.ViewState
	MaxChars int
	// Attached viewers leave the host running on quit
	Attached bool
	Title    string
}

// Model is the bubbletea model for the log viewer
type Model struct {
	// Dependencies
	out     *outbox
	viewer  *render.Viewer
	engine  *render.Engine
	surface *Surface
	frames  *frameQueue

	prefsPath string
	title     string
	attached  bool
	// clipboard receives OSC 52 copy sequences
	clipboard io.Writer

	// UI components
	textInput textinput.Model

	// Mode
	mode Mode

	// Filter and find
	prevFilter string
	findQuery  string
	findRegex  bool

	// Stream
	serial string
	paused bool

	// Device picker and clusters
	deviceIndex  int
	clusters     []render.Cluster
	clusterIndex int

	// Transient feedback shown in the status bar
	notice    string
	noticeErr bool

	// Dimensions
	width  int
	height int
	ready  bool
}

// NewModel creates a new TUI model
func NewModel(opts Options) Model {
	ti := textinput.New()
	ti.CharLimit = constants.MaxPatternLength
	ti.Width = 40

	surface := NewSurface()
	frames := &frameQueue{}
	engine := render.NewEngine(render.Options{
		Surface:   surface,
		Scheduler: frames,
		Formatter: ansiFormatter{},
		MaxChars:  opts.MaxChars,
	})

	title := opts.Title
	if title == "" {
		title = "catview"
	}

	return Model{
		out:       newOutbox(opts.Host),
		viewer:    render.NewViewer(engine),
		engine:    engine,
		surface:   surface,
		frames:    frames,
		prefsPath: opts.PrefsPath,
		title:     title,
		attached:  opts.Attached,
		clipboard: os.Stderr,
		textInput: ti,
		mode:      ModeNormal,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return frameTick()
}

// HostMsg carries one outbound message from the host
type HostMsg struct {
	Msg domain.Message
}

// HostClosedMsg is sent when the host subscription ends
type HostClosedMsg struct {
	Err error
}

// SendErrorMsg is sent when the host could not be reached
type SendErrorMsg struct {
	Err error
}

// FrameMsg drives render frames
type FrameMsg time.Time

// NoticeClearMsg clears transient feedback after a delay
type NoticeClearMsg struct{}

// noticeClearDelay is how long transient feedback stays visible
const noticeClearDelay = 3 * time.Second

// noticeClearCmd returns a command that clears the notice after a delay
func noticeClearCmd() tea.Cmd {
	return tea.Tick(noticeClearDelay, func(t time.Time) tea.Msg {
		return NoticeClearMsg{}
	})
}

// frameTick schedules the next render frame
func frameTick() tea.Cmd {
	return tea.Tick(constants.FrameInterval, func(t time.Time) tea.Msg {
		return FrameMsg(t)
	})
}

// currentSerial returns the device the viewer acts on
func (m Model) currentSerial() string {
	if m.serial != "" {
		return m.serial
	}
	if cfg := m.viewer.Config(); cfg.Serial != "" {
		return cfg.Serial
	}
	_, def := m.viewer.Devices()
	return def
}

// startMsg builds a start request from the last stream configuration
func (m Model) startMsg() domain.StartMsg {
	cfg := m.viewer.Config().WithDefaults()
	return domain.StartMsg{
		Serial: m.currentSerial(),
		Pkg:    cfg.Pkg,
		Tag:    cfg.Tag,
		Level:  cfg.Level,
		Buffer: cfg.Buffer,
		Save:   cfg.Save,
	}
}
