// Package provider is the host side of the viewer transport. It handles
// inbound messages, drives the stream controller, device tracking and the
// pid map, and publishes outbound messages to the message hub.
package provider

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/charliek/catview/internal/clock"
	"github.com/charliek/catview/internal/config"
	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/device"
	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/logs"
	"github.com/charliek/catview/internal/pidmap"
	"github.com/charliek/catview/internal/supervisor"
)

// Bridge is the subset of the device bridge the provider needs
type Bridge interface {
	Path() string
	Devices(ctx context.Context) ([]domain.DeviceRecord, error)
	ResolvePID(ctx context.Context, serial, pkg string) (string, error)
	PS(ctx context.Context, serial string, args ...string) (string, error)
	DumpHistory(ctx context.Context, serial string, maxLines int) (string, error)
	WaitForDevice(ctx context.Context, serial string) error
}

// Options configures a Provider
type Options struct {
	Bridge   Bridge
	Hub      *logs.Manager
	Store    *config.Store
	Runner   supervisor.ProcessRunner // defaults to exec
	Build    supervisor.CommandBuilder
	Defaults domain.LastConfig
	Clock    clock.Clock

	Debug        bool
	AutoStart    bool
	ExportDir    string
	PidInterval  time.Duration
	WaitTimeouts []time.Duration
	Poller       device.PollerConfig
	FlushSize    int
}

// Provider dispatches inbound messages. Every handler reports progress to
// viewers through status messages.
type Provider struct {
	hub     *logs.Manager
	bridge  Bridge
	store   *config.Store
	ctrl    *supervisor.Controller
	exits   <-chan domain.Exited
	tracker *device.Tracker
	poller  *device.Poller
	pids    *pidmap.Service

	defaults     domain.LastConfig
	debug        bool
	autoStart    bool
	exportDir    string
	pidInterval  time.Duration
	waitTimeouts []time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	selected     string
	visible      bool
	importActive bool
	autoStarted  bool
	waitToken    uint64
	waitCancel   context.CancelFunc
}

// New wires a provider. Background work is bound to the provider's own
// context until Close.
func New(opts Options) *Provider {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Hub == nil {
		opts.Hub = logs.NewManager(logs.DefaultManagerConfig())
	}
	if opts.PidInterval <= 0 {
		opts.PidInterval = constants.PidMapRefreshInterval
	}
	if opts.WaitTimeouts == nil {
		opts.WaitTimeouts = constants.DeviceWaitTimeouts
	}
	if opts.Poller.Clock == nil {
		opts.Poller.Clock = opts.Clock
	}
	if opts.Defaults == (domain.LastConfig{}) {
		opts.Defaults = domain.DefaultLastConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		hub:          opts.Hub,
		bridge:       opts.Bridge,
		store:        opts.Store,
		tracker:      device.NewTracker(),
		defaults:     opts.Defaults.WithDefaults(),
		debug:        opts.Debug,
		autoStart:    opts.AutoStart,
		exportDir:    opts.ExportDir,
		pidInterval:  opts.PidInterval,
		waitTimeouts: opts.WaitTimeouts,
		ctx:          ctx,
		cancel:       cancel,
		visible:      true,
	}

	build := opts.Build
	if build == nil {
		build = supervisor.LogcatCommand(opts.Bridge.Path(), nil)
	}
	p.ctrl = supervisor.NewController(supervisor.ControllerConfig{
		Runner:    opts.Runner,
		Build:     build,
		Resolver:  opts.Bridge,
		Clock:     opts.Clock,
		FlushSize: opts.FlushSize,
	}, hubSink{p})
	p.exits = p.ctrl.Subscribe()
	p.poller = device.NewPoller(opts.Bridge, p.tracker, p.onDevices, opts.Poller)
	p.pids = pidmap.New(opts.Bridge, p.onPidDelta, opts.Clock)
	return p
}

// Run polls devices and watches producer exits until ctx is done
func (p *Provider) Run(ctx context.Context) error {
	p.poller.Start(p.ctx)
	defer p.poller.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Close()
			return nil
		case <-p.ctx.Done():
			return nil
		case exit, ok := <-p.exits:
			if !ok {
				return nil
			}
			p.handleExit(exit)
		}
	}
}

// Close stops the stream and all background work
func (p *Provider) Close() {
	p.cancelWait()
	p.ctrl.Stop()
	p.pids.Stop()
	p.poller.Stop()
	p.cancel()
}

// Hub returns the outbound message hub
func (p *Provider) Hub() *logs.Manager {
	return p.hub
}

// Stream returns a snapshot of the stream controller
func (p *Provider) Stream() domain.StreamInfo {
	return p.ctrl.Info()
}

// Devices returns the tracked devices in first-seen order
func (p *Provider) Devices() []domain.DeviceRecord {
	return p.tracker.Snapshot()
}

// Pids returns the current pid to process name table
func (p *Provider) Pids() map[string]string {
	return p.pids.Snapshot()
}

// Selected returns the serial of the selected device
func (p *Provider) Selected() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}

// Handle dispatches one inbound message. Failures are reported to viewers
// as status text and returned for callers that map them to error codes.
func (p *Provider) Handle(ctx context.Context, msg domain.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: empty message", domain.ErrUnknownMessage)
	}
	log.WithField("type", msg.Kind()).Debug("inbound message")

	switch m := msg.(type) {
	case domain.ReadyMsg:
		return p.handleReady(ctx)
	case domain.RequestHistoryMsg:
		return p.handleRequestHistory(ctx, m.Serial)
	case domain.ClearMsg:
		p.ctrl.ClearBuffers()
		p.status("cleared")
		return nil
	case domain.RefreshDevicesMsg:
		_, err := p.refreshDevices(ctx)
		return err
	case domain.SelectDeviceMsg:
		return p.handleSelectDevice(m.Serial)
	case domain.StartMsg:
		return p.handleStart(m)
	case domain.StopMsg:
		p.ctrl.Stop()
		return nil
	case domain.PauseMsg:
		p.ctrl.Pause()
		return nil
	case domain.RestartMsg:
		return p.handleRestart(m.Serial)
	case domain.ExportLogsMsg:
		_, err := p.handleExport(m)
		return err
	case domain.ImportLogsMsg:
		return p.handleImport(m.Path)
	case domain.PidMissMsg:
		if m.Pid > 0 {
			p.pids.Demand(p.ctx, m.Pid)
		}
		return nil
	case domain.VisibleMsg:
		return p.handleVisible(ctx)
	case domain.HiddenMsg:
		p.handleHidden()
		return nil
	case domain.StatusMsg, domain.AppendMsg, domain.DevicesMsg, domain.ConfigMsg,
		domain.DebugMsg, domain.HistoryDumpMsg, domain.PidMapMsg,
		domain.ImportModeMsg, domain.ImportDumpMsg:
		return fmt.Errorf("%w: %s is outbound only", domain.ErrUnknownMessage, msg.Kind())
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownMessage, msg.Kind())
	}
}

// Resume continues a paused stream
func (p *Provider) Resume() error {
	if p.ctrl.State() != domain.StreamStatePaused {
		return domain.ErrStreamNotRunning
	}
	p.ctrl.Resume()
	return nil
}

func (p *Provider) handleReady(ctx context.Context) error {
	p.post(domain.DebugMsg{Enabled: p.debug})
	p.status("adb: " + p.bridge.Path())
	if _, err := p.refreshDevices(ctx); err != nil {
		log.WithError(err).Debug("initial device scan failed")
	}
	p.poller.EnsureSoon()
	p.postConfig()
	p.autoStartIfPossible(ctx)
	return nil
}

func (p *Provider) handleRequestHistory(ctx context.Context, serial string) error {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		p.status("select a device first")
		return domain.ErrNoDeviceSelected
	}
	p.status("loading history...")
	text, err := p.bridge.DumpHistory(ctx, serial, constants.MaxDumpHistoryLines)
	if err != nil {
		log.WithError(err).WithField("serial", serial).Debug("history dump failed")
		p.status("failed to load history: " + err.Error())
		return err
	}
	p.post(domain.HistoryDumpMsg{Text: text})
	p.status("history loaded")
	return nil
}

func (p *Provider) handleSelectDevice(serial string) error {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		p.status("select a device first")
		return domain.ErrNoDeviceSelected
	}
	p.cancelWait()
	p.mu.Lock()
	p.selected = serial
	p.mu.Unlock()

	rec, _ := p.tracker.Get(serial)
	switch {
	case rec.Status == domain.DeviceStatusUnauthorized:
		p.status("device unauthorized, allow USB debugging on the device")
		return domain.ErrDeviceUnauthorized
	case rec.Status.IsOnline():
		return p.startForSerial(serial)
	}

	p.mu.Lock()
	p.waitToken++
	token := p.waitToken
	ctx, cancel := context.WithCancel(p.ctx)
	p.waitCancel = cancel
	p.mu.Unlock()

	p.status("device offline, waiting for it to come online...")
	go p.waitForDevice(ctx, token, serial)
	return nil
}

// waitForDevice waits through escalating windows. A newer selection, the
// viewer hiding, or Close abandons the wait.
func (p *Provider) waitForDevice(ctx context.Context, token uint64, serial string) {
	for _, timeout := range p.waitTimeouts {
		if !p.waitCurrent(ctx, token) {
			return
		}
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		err := p.bridge.WaitForDevice(waitCtx, serial)
		cancel()
		if !p.waitCurrent(ctx, token) {
			return
		}
		if err == nil {
			p.status("device online, starting...")
			if err := p.startForSerial(serial); err != nil {
				log.WithError(err).WithField("serial", serial).Debug("start after wait failed")
			}
			return
		}
		log.WithError(err).WithFields(log.Fields{"serial": serial, "timeout": timeout}).Debug("device wait window elapsed")
	}
	if p.waitCurrent(ctx, token) {
		p.status(domain.ErrReconnectTimeout.Error() + ", check the device connection and retry")
	}
}

func (p *Provider) waitCurrent(ctx context.Context, token uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ctx.Err() == nil && token == p.waitToken && p.visible
}

func (p *Provider) cancelWait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitToken++
	if p.waitCancel != nil {
		p.waitCancel()
		p.waitCancel = nil
	}
}

func (p *Provider) handleStart(m domain.StartMsg) error {
	switch p.ctrl.State() {
	case domain.StreamStatePaused:
		p.ctrl.Resume()
		return nil
	case domain.StreamStateRunning:
		p.status("already running")
		return domain.ErrStreamAlreadyRunning
	}

	serial := strings.TrimSpace(m.Serial)
	if serial == "" {
		p.status("select a device first")
		return domain.ErrNoDeviceSelected
	}
	m.Serial = serial

	p.mu.Lock()
	p.selected = serial
	p.importActive = false
	p.mu.Unlock()

	session := m.Session()
	if err := p.ctrl.Start(p.ctx, session); err != nil {
		return err
	}
	p.afterStart(session)
	return nil
}

func (p *Provider) handleRestart(serial string) error {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		serial = p.Selected()
	}
	if serial == "" {
		p.status("select a device first")
		return domain.ErrNoDeviceSelected
	}
	p.status("restarting logcat")
	if err := p.startForSerial(serial); err != nil {
		return err
	}
	p.status("restarted")
	return nil
}

func (p *Provider) handleExport(m domain.ExportLogsMsg) (string, error) {
	path := ExportPath(p.exportDir, m.Suggested)
	if err := WriteExport(path, m.Text); err != nil {
		log.WithError(err).WithField("path", path).Debug("export failed")
		p.status(err.Error())
		return "", err
	}
	p.status("exported logs: " + path)
	return path, nil
}

func (p *Provider) handleImport(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		p.status("import cancelled")
		return fmt.Errorf("%w: no file given", domain.ErrImportFailed)
	}
	text, err := ReadImport(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("import failed")
		p.status(err.Error())
		return err
	}

	p.cancelWait()
	p.ctrl.Stop()
	p.post(domain.ImportModeMsg{Name: filepath.Base(path)})
	p.post(domain.ImportDumpMsg{Text: TailLines(text, constants.MaxImportLines)})

	p.mu.Lock()
	p.importActive = true
	p.mu.Unlock()

	p.status("imported logs: " + path)
	return nil
}

func (p *Provider) handleVisible(ctx context.Context) error {
	p.mu.Lock()
	p.visible = true
	p.mu.Unlock()

	p.ctrl.SetVisible(true)
	p.postConfig()
	if _, err := p.refreshDevices(ctx); err != nil {
		log.WithError(err).Debug("device refresh on visible failed")
	}
	if p.pids.Running() {
		go p.pids.RefreshNow(p.ctx)
	} else {
		p.pids.Start(p.ctx, p.pidInterval)
	}
	return nil
}

func (p *Provider) handleHidden() {
	p.mu.Lock()
	p.visible = false
	p.mu.Unlock()

	p.cancelWait()
	p.ctrl.SetVisible(false)
	p.pids.Stop()
}

// autoStartIfPossible starts once per provider, on the last used serial
// when it is online, otherwise the first online device.
func (p *Provider) autoStartIfPossible(ctx context.Context) {
	p.mu.Lock()
	skip := !p.autoStart || p.autoStarted
	p.mu.Unlock()
	if skip || p.ctrl.State().IsActive() {
		return
	}

	list, err := p.poller.Scan(ctx)
	if err != nil {
		log.WithError(err).Debug("auto start scan failed")
	}
	var online []string
	for _, d := range list {
		if d.Status.IsOnline() {
			online = append(online, d.Serial)
		}
	}
	if len(online) == 0 {
		p.status("no device detected, auto start skipped")
		return
	}

	target := online[0]
	last := p.lastConfig()
	for _, serial := range online {
		if serial == last.Serial {
			target = serial
			break
		}
	}

	log.WithField("serial", target).Debug("auto start")
	if err := p.startForSerial(target); err != nil {
		log.WithError(err).Debug("auto start failed")
		return
	}
	p.mu.Lock()
	p.autoStarted = true
	p.mu.Unlock()
}

// startForSerial (re)starts the stream on serial with the last used
// configuration
func (p *Provider) startForSerial(serial string) error {
	p.mu.Lock()
	p.selected = serial
	p.importActive = false
	p.mu.Unlock()

	if p.ctrl.State().IsActive() {
		p.ctrl.Stop()
	}
	session := p.lastConfig().Session(serial)
	if err := p.ctrl.Start(p.ctx, session); err != nil {
		return err
	}
	p.afterStart(session)
	return nil
}

func (p *Provider) afterStart(session domain.Session) {
	if p.store != nil {
		p.store.SaveLastConfig(session.LastConfig())
	}
	p.pids.SetSerial(session.Serial)

	p.mu.Lock()
	visible := p.visible
	p.mu.Unlock()
	if visible {
		p.pids.Start(p.ctx, p.pidInterval)
	}
}

func (p *Provider) refreshDevices(ctx context.Context) ([]domain.DeviceRecord, error) {
	list, err := p.poller.Refresh(ctx)
	if err != nil {
		log.WithError(err).Debug("device refresh failed")
	}
	p.post(domain.DevicesMsg{Devices: list, DefaultSerial: p.lastConfig().Serial})
	return list, err
}

// onDevices receives debounced device list changes. A selected device that
// comes back online restarts the stream unless an import is shown.
func (p *Provider) onDevices(list []domain.DeviceRecord) {
	p.post(domain.DevicesMsg{Devices: list, DefaultSerial: p.lastConfig().Serial})

	p.mu.Lock()
	selected := p.selected
	resume := p.visible && selected != "" && !p.importActive
	p.mu.Unlock()
	if !resume || p.ctrl.State().IsActive() {
		return
	}
	for _, d := range list {
		if d.Serial == selected && d.Status.IsOnline() {
			p.status("device back online, starting...")
			if err := p.startForSerial(selected); err != nil {
				log.WithError(err).WithField("serial", selected).Debug("restart on reconnect failed")
			}
			return
		}
	}
}

// handleExit marks the selected device offline after the producer ends on
// its own and pushes the list without waiting for the next scan
func (p *Provider) handleExit(exit domain.Exited) {
	serial := p.Selected()
	if serial == "" {
		serial = exit.Serial
	}
	if serial == "" {
		return
	}
	p.post(domain.DevicesMsg{Devices: p.poller.MarkOffline(serial), DefaultSerial: serial})
}

func (p *Provider) onPidDelta(delta map[string]string) {
	p.post(domain.PidMapMsg{Map: delta})
}

func (p *Provider) lastConfig() domain.LastConfig {
	if p.store == nil {
		return p.defaults
	}
	return p.store.LastConfig(p.defaults)
}

func (p *Provider) postConfig() {
	p.post(domain.ConfigMsg{Config: p.lastConfig()})
}

func (p *Provider) status(text string) {
	p.post(domain.StatusMsg{Text: text})
}

func (p *Provider) post(msg domain.Message) {
	if msg.Kind() != domain.KindAppend {
		log.WithField("type", msg.Kind()).Debug("outbound message")
	}
	p.hub.Publish(msg)
}

// hubSink forwards controller output to the hub. It runs under the
// controller lock and never calls back into the controller.
type hubSink struct {
	p *Provider
}

func (s hubSink) Append(text string) { s.p.post(domain.AppendMsg{Text: text}) }
func (s hubSink) Status(text string) { s.p.post(domain.StatusMsg{Text: text}) }
