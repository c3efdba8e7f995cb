package render

import (
	"strings"
	"sync"

	"github.com/charliek/catview/internal/domain"
)

// Viewer applies outbound host messages to an Engine and keeps the viewer
// side state that travels with them.
type Viewer struct {
	engine *Engine

	mu            sync.Mutex
	status        string
	devices       []domain.DeviceRecord
	defaultSerial string
	config        domain.LastConfig
	importName    string
	debug         bool
	historyLoaded bool
}

// NewViewer wraps engine
func NewViewer(engine *Engine) *Viewer {
	return &Viewer{engine: engine}
}

// Engine returns the wrapped engine
func (v *Viewer) Engine() *Engine {
	return v.engine
}

// Apply handles one outbound message. It returns inbound messages the
// viewer wants sent back to the host.
func (v *Viewer) Apply(msg domain.Message) []domain.Message {
	var replies []domain.Message

	switch m := msg.(type) {
	case domain.StatusMsg:
		v.mu.Lock()
		if v.importName != "" && strings.HasPrefix(m.Text, "starting:") {
			v.importName = ""
		}
		if v.importName == "" && strings.Contains(m.Text, "restarted") {
			replies = append(replies, domain.RefreshDevicesMsg{})
		}
		v.status = m.Text
		v.mu.Unlock()
	case domain.AppendMsg:
		if !v.Importing() {
			v.engine.Append(m.Text)
		}
	case domain.DevicesMsg:
		v.mu.Lock()
		v.devices = append([]domain.DeviceRecord(nil), m.Devices...)
		v.defaultSerial = m.DefaultSerial
		v.mu.Unlock()
	case domain.ConfigMsg:
		v.mu.Lock()
		v.config = m.Config
		v.mu.Unlock()
		v.engine.SetPackage(m.Config.Pkg)
	case domain.DebugMsg:
		v.mu.Lock()
		v.debug = m.Enabled
		v.mu.Unlock()
	case domain.PidMapMsg:
		v.engine.MergePidMap(m.Map)
	case domain.HistoryDumpMsg:
		v.mu.Lock()
		v.historyLoaded = true
		v.mu.Unlock()
		v.engine.LoadDump(m.Text)
	case domain.ImportModeMsg:
		v.mu.Lock()
		v.importName = m.Name
		v.mu.Unlock()
		v.engine.Clear()
	case domain.ImportDumpMsg:
		v.engine.LoadDump(m.Text)
	}
	return replies
}

// PidMisses turns pids seen without a name into lookup requests
func (v *Viewer) PidMisses() []domain.Message {
	pids := v.engine.TakePidMisses()
	if len(pids) == 0 {
		return nil
	}
	out := make([]domain.Message, 0, len(pids))
	for _, pid := range pids {
		out = append(out, domain.PidMissMsg{Pid: pid})
	}
	return out
}

// Status returns the last status line
func (v *Viewer) Status() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// Devices returns the last device list and the default serial
func (v *Viewer) Devices() ([]domain.DeviceRecord, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.DeviceRecord(nil), v.devices...), v.defaultSerial
}

// Config returns the last stream configuration sent by the host
func (v *Viewer) Config() domain.LastConfig {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.config
}

// Debug reports whether the host runs with debug logging
func (v *Viewer) Debug() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.debug
}

// HistoryLoaded reports whether a history dump was received
func (v *Viewer) HistoryLoaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.historyLoaded
}

// Importing reports whether an imported file is shown instead of the
// live stream
func (v *Viewer) Importing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.importName != ""
}

// ImportName returns the name of the imported file, if any
func (v *Viewer) ImportName() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.importName
}

// ExitImport returns to the live stream
func (v *Viewer) ExitImport() {
	v.mu.Lock()
	v.importName = ""
	v.mu.Unlock()
	v.engine.Clear()
}
