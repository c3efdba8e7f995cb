package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/charliek/catview/internal/clock"
	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
)

// Sink receives forwarded output and status lines. It is called with the
// controller lock held and must not call back into the controller.
type Sink interface {
	Append(text string)
	Status(text string)
}

// PidResolver looks up the pid of a package on a device
type PidResolver interface {
	ResolvePID(ctx context.Context, serial, pkg string) (string, error)
}

// ControllerConfig holds the collaborators of a Controller
type ControllerConfig struct {
	Runner        ProcessRunner
	Build         CommandBuilder
	Resolver      PidResolver // optional
	Clock         clock.Clock // defaults to the wall clock
	FlushInterval time.Duration
	FlushSize     int
	StopTimeout   time.Duration
}

// Controller owns the single active producer session and routes its output
// through pause, visibility and coalescing buffers. All routing decisions
// happen under one lock.
type Controller struct {
	mu sync.Mutex

	runner      ProcessRunner
	build       CommandBuilder
	resolver    PidResolver
	sink        Sink
	stopTimeout time.Duration

	state   domain.StreamState
	session *domain.Session
	adapter *Adapter
	cancel  context.CancelFunc
	pid     string

	// gen identifies the live session; callbacks from older sessions are dropped
	gen uint64

	requestedPause bool
	visible        bool

	paused  strings.Builder
	hidden  strings.Builder
	pending *Coalescer
	dedup   Deduper

	subsMu sync.Mutex
	subs   []chan domain.Exited
}

// NewController creates a controller in the idle state
func NewController(cfg ControllerConfig, sink Sink) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = constants.AppendFlushInterval
	}
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = constants.AppendSizeThreshold
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = constants.DefaultShutdownTimeout
	}
	if cfg.Runner == nil {
		cfg.Runner = NewExecRunner()
	}

	c := &Controller{
		runner:      cfg.Runner,
		build:       cfg.Build,
		resolver:    cfg.Resolver,
		sink:        sink,
		stopTimeout: cfg.StopTimeout,
		state:       domain.StreamStateIdle,
		visible:     true,
	}
	c.pending = NewCoalescer(cfg.Clock, cfg.FlushInterval, cfg.FlushSize, &c.mu, c.deliverLocked)
	return c
}

// Start spawns the producer for session. ctx bounds the pid lookup only;
// the process lives until Stop or exit.
func (c *Controller) Start(ctx context.Context, session domain.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.IsActive() {
		return domain.ErrStreamAlreadyRunning
	}

	session = session.WithDefaults()
	session.ID = uuid.NewString()
	session.Started = time.Now()

	cmd := c.build(session)

	c.gen++
	gen := c.gen
	c.dedup.Reset()
	c.paused.Reset()
	c.hidden.Reset()
	c.pid = ""

	adapter := NewAdapter(c.runner,
		func(chunk string) { c.handleChunk(gen, chunk) },
		func(exit domain.Exited) { c.handleExit(gen, exit) },
	)
	if err := adapter.Start(ctx, cmd); err != nil {
		c.sink.Status("process error: " + err.Error())
		return fmt.Errorf("%w: %v", domain.ErrSpawnFailed, err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	c.adapter = adapter
	c.cancel = cancel
	c.session = &session
	c.state = domain.StreamStateRunning

	// Readers block on the lock until the markers are queued
	for _, marker := range BufferMarkers(session.Buffer) {
		c.routeLocked(marker)
	}

	c.sink.Status("starting: " + cmd.String())
	log.WithFields(log.Fields{"session": session.ID, "serial": session.Serial}).Debug("stream started")

	if c.requestedPause {
		c.state = domain.StreamStatePaused
		c.sink.Status("paused on start (pause was requested)")
	}

	if session.Package != "" {
		go c.resolvePID(sessionCtx, gen, session.Serial, session.Package)
	}
	return nil
}

// Pause holds output until Resume. Calling it again has no effect. When no
// stream is running the request applies to the next Start.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestedPause = true
	switch c.state {
	case domain.StreamStateRunning:
		c.state = domain.StreamStatePaused
		c.sink.Status("paused")
	case domain.StreamStateIdle:
		c.sink.Status("not running (pause will apply at next start)")
	}
}

// Resume forwards everything held while paused as one batch
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != domain.StreamStatePaused {
		return
	}
	held := c.paused.String()
	c.paused.Reset()
	c.state = domain.StreamStateRunning
	c.requestedPause = false

	if held != "" {
		c.pending.Flush()
		c.deliverLocked(held)
	}
	c.sink.Status("resumed")
}

// Stop interrupts the producer and returns to idle. Output the producer
// writes after Stop is discarded. Safe to call in any state.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if adapter := c.adapter; adapter != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.stopTimeout)
			defer cancel()
			adapter.Stop(ctx)
		}()
	}

	c.pending.Flush()
	c.endSessionLocked()
	c.sink.Status("stopped")
}

// SetVisible switches between forwarding and accumulating output. Becoming
// visible forwards the accumulated text in one shot.
func (c *Controller) SetVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.visible = visible
	if visible {
		if c.hidden.Len() > 0 {
			text := c.hidden.String()
			c.hidden.Reset()
			c.sink.Append(text)
		}
		return
	}
	c.hidden.WriteString(c.pending.Take())
}

// ClearBuffers drops all held and queued output
func (c *Controller) ClearBuffers() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hidden.Reset()
	c.paused.Reset()
	c.pending.Take()
}

// Info returns a snapshot of the controller state
func (c *Controller) Info() domain.StreamInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := domain.StreamInfo{State: c.state, Visible: c.visible}
	if c.session != nil {
		s := *c.session
		info.Session = &s
	}
	if c.adapter != nil {
		info.PID = c.adapter.PID()
	}
	return info
}

// State returns the current state
func (c *Controller) State() domain.StreamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel receiving an event for every producer exit
// that was not requested through Stop
func (c *Controller) Subscribe() <-chan domain.Exited {
	ch := make(chan domain.Exited, 16)
	c.subsMu.Lock()
	c.subs = append(c.subs, ch)
	c.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe
func (c *Controller) Unsubscribe(ch <-chan domain.Exited) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for i, sub := range c.subs {
		if sub == ch {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

func (c *Controller) emit(exit domain.Exited) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- exit:
		default:
			log.WithField("serial", exit.Serial).Warn("exit event dropped (subscriber full)")
		}
	}
}

func (c *Controller) handleChunk(gen uint64, chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	if text := c.dedup.Push(chunk); text != "" {
		c.routeLocked(text)
	}
}

func (c *Controller) handleExit(gen uint64, exit domain.Exited) {
	c.mu.Lock()

	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	session := *c.session
	pid := c.pid

	if frag := c.dedup.Flush(); frag != "" {
		c.routeLocked(frag + "\n")
	}
	// Held output dies with the session; the end marker must not be held
	c.paused.Reset()
	c.state = domain.StreamStateRunning

	c.sink.Status(exit.String())
	if session.Package != "" {
		c.routeLocked(ProcessEndedMarker(pid, session.Package))
	}
	c.pending.Flush()
	c.endSessionLocked()
	c.mu.Unlock()

	exit.SessionID = session.ID
	exit.Serial = session.Serial
	log.WithFields(log.Fields{"serial": session.Serial, "code": exit.Code, "signal": exit.Signal}).Info("producer exited")
	c.emit(exit)
}

func (c *Controller) resolvePID(ctx context.Context, gen uint64, serial, pkg string) {
	var pid string
	if c.resolver != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, constants.DefaultCommandTimeout)
		resolved, err := c.resolver.ResolvePID(lookupCtx, serial, pkg)
		cancel()
		if err != nil {
			log.WithError(err).WithField("pkg", pkg).Debug("pid lookup failed")
		}
		pid = strings.TrimSpace(resolved)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.pid = pid
	c.routeLocked(ProcessStartedMarker(pid, pkg))
	c.dedup.Break()
}

// endSessionLocked resets per-session state, dropping any output held for
// a hidden surface
func (c *Controller) endSessionLocked() {
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	c.cancel = nil
	c.adapter = nil
	c.session = nil
	c.pid = ""
	c.state = domain.StreamStateIdle
	c.paused.Reset()
	c.hidden.Reset()
	c.dedup.Reset()
}

// routeLocked sends text to exactly one buffer based on the current mode
func (c *Controller) routeLocked(text string) {
	switch {
	case c.state == domain.StreamStatePaused:
		c.paused.WriteString(text)
	case c.visible:
		c.pending.Add(text)
	default:
		c.hidden.WriteString(text)
	}
}

// deliverLocked is the coalescer's emit target
func (c *Controller) deliverLocked(text string) {
	if c.visible {
		c.sink.Append(text)
		return
	}
	c.hidden.WriteString(text)
}
