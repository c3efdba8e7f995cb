package tui

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
)

// Host is the log provider the viewer talks to, in process or over the API
type Host interface {
	// Send delivers one inbound message
	Send(ctx context.Context, msg domain.Message) error
	// Subscribe returns outbound messages until ctx is done
	Subscribe(ctx context.Context) (<-chan domain.Message, error)
}

// outboxSize bounds inbound messages waiting for delivery
const outboxSize = 256

// outbox delivers inbound messages to the host one at a time, in order
type outbox struct {
	host  Host
	queue chan domain.Message

	mu    sync.Mutex
	onErr func(error)
}

func newOutbox(host Host) *outbox {
	return &outbox{host: host, queue: make(chan domain.Message, outboxSize)}
}

// Send queues msg without blocking. Messages are dropped when the queue is
// full.
func (o *outbox) Send(msg domain.Message) {
	select {
	case o.queue <- msg:
	default:
		log.WithField("type", msg.Kind()).Warn("outbox full, dropping message")
	}
}

// OnError sets the callback for delivery failures
func (o *outbox) OnError(fn func(error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onErr = fn
}

// run delivers queued messages until ctx is done
func (o *outbox) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-o.queue:
			sendCtx, cancel := context.WithTimeout(ctx, constants.DefaultRequestTimeout)
			err := o.host.Send(sendCtx, msg)
			cancel()
			if err == nil {
				continue
			}
			// domain failures already arrive as status text from the host
			if domain.ErrorCode(err) != "INTERNAL_ERROR" {
				log.WithError(err).WithField("type", msg.Kind()).Debug("host rejected message")
				continue
			}
			o.mu.Lock()
			fn := o.onErr
			o.mu.Unlock()
			if fn != nil {
				fn(err)
			}
		}
	}
}

// frameQueue collects render callbacks until the next frame tick
type frameQueue struct {
	mu      sync.Mutex
	pending []func()
}

// RequestFrame implements render.FrameScheduler
func (f *frameQueue) RequestFrame(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, fn)
}

// run executes the callbacks queued so far and reports how many ran
func (f *frameQueue) run() int {
	f.mu.Lock()
	fns := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}
