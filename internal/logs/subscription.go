package logs

import (
	"strconv"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

var subscriptionIDCounter uint64

// Subscription represents a message subscriber
type Subscription struct {
	id      string
	ch      chan Entry
	matcher *matcher
	closed  atomic.Bool
	dropped atomic.Uint64
}

// newSubscription creates a new subscription
func newSubscription(filter Filter, bufferSize int) *Subscription {
	id := atomic.AddUint64(&subscriptionIDCounter, 1)

	return &Subscription{
		id:      "sub-" + strconv.FormatUint(id, 10),
		ch:      make(chan Entry, bufferSize),
		matcher: newMatcher(filter),
	}
}

// ID returns the subscription ID
func (s *Subscription) ID() string {
	return s.id
}

// Channel returns the channel for receiving entries
func (s *Subscription) Channel() <-chan Entry {
	return s.ch
}

// Dropped returns how many entries were discarded because the channel was full
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Send attempts to deliver an entry without blocking.
// Returns false if the channel is full or closed.
func (s *Subscription) Send(entry Entry) bool {
	if s.closed.Load() {
		return false
	}

	if !s.matcher.Matches(entry) {
		return true // filtered out, but not a failure
	}

	select {
	case s.ch <- entry:
		return true
	default:
		s.dropped.Add(1)
		log.WithFields(log.Fields{
			"subscription": s.id,
			"seq":          entry.Seq,
			"kind":         entry.Message.Kind(),
		}).Warn("dropped message (channel full)")
		return false
	}
}

// Close closes the subscription
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// SubscriptionManager manages multiple subscriptions
type SubscriptionManager struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	bufferSize    int
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager(bufferSize int) *SubscriptionManager {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &SubscriptionManager{
		subscriptions: make(map[string]*Subscription),
		bufferSize:    bufferSize,
	}
}

// Subscribe creates a new subscription
func (m *SubscriptionManager) Subscribe(filter Filter) (string, <-chan Entry) {
	sub := newSubscription(filter, m.bufferSize)

	m.mu.Lock()
	m.subscriptions[sub.id] = sub
	m.mu.Unlock()

	return sub.id, sub.ch
}

// Unsubscribe removes a subscription
func (m *SubscriptionManager) Unsubscribe(id string) {
	m.mu.Lock()
	sub, ok := m.subscriptions[id]
	if ok {
		delete(m.subscriptions, id)
	}
	m.mu.Unlock()

	if ok {
		sub.Close()
	}
}

// Broadcast sends an entry to all subscribers
func (m *SubscriptionManager) Broadcast(entry Entry) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscriptions {
		sub.Send(entry)
	}
}

// Count returns the number of active subscriptions
func (m *SubscriptionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes all subscriptions
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.subscriptions = make(map[string]*Subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
