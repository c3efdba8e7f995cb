package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/catview/internal/domain"
)

// fakeHost records inbound messages
type fakeHost struct {
	mu   sync.Mutex
	sent []domain.Message
	err  error
	ch   chan domain.Message
}

func (h *fakeHost) Send(_ context.Context, msg domain.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, msg)
	return h.err
}

func (h *fakeHost) Subscribe(context.Context) (<-chan domain.Message, error) {
	if h.ch == nil {
		h.ch = make(chan domain.Message)
	}
	return h.ch, nil
}

func (h *fakeHost) messages() []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Message(nil), h.sent...)
}

func TestOutbox_DeliversInOrder(t *testing.T) {
	host := &fakeHost{}
	out := newOutbox(host)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go out.run(ctx)

	out.Send(domain.ReadyMsg{})
	out.Send(domain.VisibleMsg{})
	out.Send(domain.PidMissMsg{Pid: 7})

	require.Eventually(t, func() bool { return len(host.messages()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.Message{domain.ReadyMsg{}, domain.VisibleMsg{}, domain.PidMissMsg{Pid: 7}}, host.messages())
}

func TestOutbox_ReportsTransportErrors(t *testing.T) {
	host := &fakeHost{err: errors.New("connection refused")}
	out := newOutbox(host)
	errs := make(chan error, 1)
	out.OnError(func(err error) { errs <- err })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go out.run(ctx)

	out.Send(domain.StopMsg{})

	select {
	case err := <-errs:
		assert.EqualError(t, err, "connection refused")
	case <-time.After(time.Second):
		t.Fatal("expected error callback")
	}
}

func TestOutbox_IgnoresDomainErrors(t *testing.T) {
	host := &fakeHost{err: domain.ErrNoDeviceSelected}
	out := newOutbox(host)
	var called bool
	var mu sync.Mutex
	out.OnError(func(error) { mu.Lock(); called = true; mu.Unlock() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go out.run(ctx)

	out.Send(domain.StartMsg{})
	require.Eventually(t, func() bool { return len(host.messages()) == 1 }, time.Second, 5*time.Millisecond)
	out.Send(domain.StopMsg{})
	require.Eventually(t, func() bool { return len(host.messages()) == 2 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, called)
}

func TestOutbox_DropsWhenFull(t *testing.T) {
	out := newOutbox(&fakeHost{})

	for i := 0; i < outboxSize+10; i++ {
		out.Send(domain.PidMissMsg{Pid: i})
	}

	assert.Len(t, out.queue, outboxSize)
}

func TestFrameQueue_RunsPendingOnce(t *testing.T) {
	var f frameQueue
	calls := 0
	f.RequestFrame(func() { calls++ })
	f.RequestFrame(func() { calls++ })

	assert.Equal(t, 2, f.run())
	assert.Equal(t, 0, f.run())
	assert.Equal(t, 2, calls)
}

func TestFrameQueue_CallbackMayRequestNextFrame(t *testing.T) {
	var f frameQueue
	f.RequestFrame(func() { f.RequestFrame(func() {}) })

	assert.Equal(t, 1, f.run())
	assert.Equal(t, 1, f.run())
}
