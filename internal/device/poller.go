package device

import (
	"context"
	"reflect"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/charliek/catview/internal/clock"
	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
)

// Lister scans the attached devices
type Lister interface {
	Devices(ctx context.Context) ([]domain.DeviceRecord, error)
}

// UpdateFunc receives the merged device list
type UpdateFunc func([]domain.DeviceRecord)

// PollerConfig holds poller timings
type PollerConfig struct {
	Interval    time.Duration
	Debounce    time.Duration
	RetryDelays []time.Duration
	Clock       clock.Clock
}

// DefaultPollerConfig returns the standard timings
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:    constants.DevicePollInterval,
		Debounce:    constants.DeviceRefreshDelay,
		RetryDelays: constants.DeviceRetryDelays,
		Clock:       clock.New(),
	}
}

// Poller rescans devices on an interval and publishes debounced updates
// whenever the merged list changes.
type Poller struct {
	mu sync.Mutex

	lister   Lister
	tracker  *Tracker
	cfg      PollerConfig
	onUpdate UpdateFunc

	// pending is the list waiting for the debounce timer
	pending []domain.DeviceRecord
	timer   clock.Timer
	// published is the last list handed to onUpdate
	published []domain.DeviceRecord
	// retryGen invalidates an older EnsureSoon chain
	retryGen uint64
	// poll arms the next periodic scan
	poll clock.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPoller creates a poller. onUpdate is called from timer goroutines.
func NewPoller(lister Lister, tracker *Tracker, onUpdate UpdateFunc, cfg PollerConfig) *Poller {
	def := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.RetryDelays == nil {
		cfg.RetryDelays = def.RetryDelays
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	return &Poller{
		lister:   lister,
		tracker:  tracker,
		cfg:      cfg,
		onUpdate: onUpdate,
		ctx:      context.Background(),
	}
}

// Start launches the polling loop. It returns immediately.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	if p.poll != nil {
		p.poll.Stop()
		p.poll = nil
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	ctx = p.ctx
	p.mu.Unlock()

	go p.pollOnce(ctx)
}

// pollOnce scans and arms the next scan one interval later
func (p *Poller) pollOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := p.Scan(ctx); err != nil {
		log.Debugf("device poll failed: %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	p.poll = p.cfg.Clock.AfterFunc(p.cfg.Interval, func() { p.pollOnce(ctx) })
}

// Stop ends the polling loop and any retry chain
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.poll != nil {
		p.poll.Stop()
		p.poll = nil
	}
	p.retryGen++
}

// Scan lists devices, merges them into the tracker and schedules a
// debounced update. The merged list is returned right away.
func (p *Poller) Scan(ctx context.Context) ([]domain.DeviceRecord, error) {
	scan, err := p.lister.Devices(ctx)
	if err != nil {
		return p.tracker.Snapshot(), err
	}
	merged := p.tracker.Apply(scan)
	p.schedule(merged)
	return merged, nil
}

// Refresh scans and marks the result as published. The caller delivers it.
func (p *Poller) Refresh(ctx context.Context) ([]domain.DeviceRecord, error) {
	merged, err := p.Scan(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending = nil
	p.published = merged
	return merged, err
}

// MarkOffline records serial as offline and returns the resulting list.
// The list counts as published, so the next scan that finds the device
// attached again is delivered.
func (p *Poller) MarkOffline(serial string) []domain.DeviceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tracker.MarkOffline(serial)
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending = nil
	p.published = p.tracker.Snapshot()
	return p.published
}

// EnsureSoon rescans at increasing delays until a scan lists at least one
// device. A newer call replaces a running chain.
func (p *Poller) EnsureSoon() {
	p.mu.Lock()
	p.retryGen++
	gen := p.retryGen
	p.mu.Unlock()

	p.retry(gen, 0)
}

func (p *Poller) retry(gen uint64, attempt int) {
	if attempt >= len(p.cfg.RetryDelays) {
		return
	}
	p.cfg.Clock.AfterFunc(p.cfg.RetryDelays[attempt], func() {
		p.mu.Lock()
		ctx := p.ctx
		current := p.retryGen == gen
		p.mu.Unlock()
		if !current || ctx.Err() != nil {
			return
		}

		scan, err := p.lister.Devices(ctx)
		if err == nil && len(scan) > 0 {
			p.schedule(p.tracker.Apply(scan))
			return
		}
		p.retry(gen, attempt+1)
	})
}

// schedule queues list for delivery after the debounce window
func (p *Poller) schedule(list []domain.DeviceRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = list
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = p.cfg.Clock.AfterFunc(p.cfg.Debounce, p.deliver)
}

func (p *Poller) deliver() {
	p.mu.Lock()
	list := p.pending
	p.pending = nil
	p.timer = nil
	changed := list != nil && !reflect.DeepEqual(list, p.published)
	if changed {
		p.published = list
	}
	p.mu.Unlock()

	if changed && p.onUpdate != nil {
		p.onUpdate(list)
	}
}
