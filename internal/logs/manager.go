// Package logs is the outbound message hub. Messages published by the
// provider are numbered, kept in a ring buffer for replay and fanned out to
// subscribers in publish order.
package logs

import (
	"sync"
	"time"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
)

// ManagerConfig holds configuration for the hub
type ManagerConfig struct {
	BufferSize         int // Number of entries to keep in ring buffer
	SubscriptionBuffer int // Buffer size for subscription channels
}

// DefaultManagerConfig returns the default configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BufferSize:         constants.DefaultMessageBufferSize,
		SubscriptionBuffer: constants.DefaultSubscriptionBuffer,
	}
}

// Manager stores and distributes outbound messages
type Manager struct {
	// publishMu makes numbering, storing and broadcasting one step
	publishMu sync.Mutex
	seq       uint64
	now       func() time.Time

	buffer        *RingBuffer
	subscriptions *SubscriptionManager
}

// NewManager creates a new hub
func NewManager(config ManagerConfig) *Manager {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultManagerConfig().BufferSize
	}
	if config.SubscriptionBuffer <= 0 {
		config.SubscriptionBuffer = DefaultManagerConfig().SubscriptionBuffer
	}

	return &Manager{
		now:           time.Now,
		buffer:        NewRingBuffer(config.BufferSize),
		subscriptions: NewSubscriptionManager(config.SubscriptionBuffer),
	}
}

// Publish numbers the message, stores it and broadcasts it
func (m *Manager) Publish(msg domain.Message) Entry {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.seq++
	entry := Entry{Seq: m.seq, Timestamp: m.now(), Message: msg}
	m.buffer.Write(entry)
	m.subscriptions.Broadcast(entry)
	return entry
}

// Query retrieves the last limit entries matching the filter.
// Returns the entries and the total count before limiting.
func (m *Manager) Query(filter Filter, limit int) ([]Entry, int) {
	return FilterEntriesLimit(m.buffer.Read(), filter, limit)
}

// Subscribe creates a subscription for entries matching the filter
func (m *Manager) Subscribe(filter Filter) (string, <-chan Entry) {
	return m.subscriptions.Subscribe(filter)
}

// SubscribeWithReplay returns up to replay stored entries matching the
// filter together with a subscription that continues right after them.
func (m *Manager) SubscribeWithReplay(filter Filter, replay int) ([]Entry, string, <-chan Entry) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	var backlog []Entry
	if replay > 0 {
		backlog, _ = m.Query(filter, replay)
	}
	id, ch := m.subscriptions.Subscribe(filter)
	return backlog, id, ch
}

// Unsubscribe removes a subscription
func (m *Manager) Unsubscribe(id string) {
	m.subscriptions.Unsubscribe(id)
}

// Stats returns statistics about the hub
func (m *Manager) Stats() Stats {
	m.publishMu.Lock()
	seq := m.seq
	m.publishMu.Unlock()

	return Stats{
		TotalEntries: m.buffer.Count(),
		BufferSize:   m.buffer.Capacity(),
		Subscribers:  m.subscriptions.Count(),
		LastSeq:      seq,
	}
}

// Close closes the hub and all subscriptions
func (m *Manager) Close() {
	m.subscriptions.Close()
}
