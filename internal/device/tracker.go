// Package device tracks attached Android devices. Records are never
// forgotten: a device missing from a scan is kept and reported offline.
package device

import (
	"sync"

	"github.com/charliek/catview/internal/domain"
)

// Tracker merges successive device scans
type Tracker struct {
	mu sync.RWMutex

	// known holds the last record seen for every serial
	known map[string]domain.DeviceRecord
	// order keeps serials in first-seen order
	order []string
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{known: make(map[string]domain.DeviceRecord)}
}

// Apply merges a fresh scan. The result lists the scan in its own order,
// followed by every previously known device that is absent, marked offline.
// A device that loses its model keeps the one seen before.
func (t *Tracker) Apply(scan []domain.DeviceRecord) []domain.DeviceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	fresh := make(map[string]bool, len(scan))
	result := make([]domain.DeviceRecord, 0, len(scan)+len(t.order))
	for _, d := range scan {
		if d.Serial == "" || fresh[d.Serial] {
			continue
		}
		fresh[d.Serial] = true
		prev, seen := t.known[d.Serial]
		if d.Model == "" {
			d.Model = prev.Model
		}
		if !seen {
			t.order = append(t.order, d.Serial)
		}
		t.known[d.Serial] = d
		result = append(result, d)
	}

	for _, serial := range t.order {
		if fresh[serial] {
			continue
		}
		rec := t.known[serial]
		rec.Status = domain.DeviceStatusOffline
		t.known[serial] = rec
		result = append(result, rec)
	}
	return result
}

// MarkOffline records a device as offline, adding it if unknown
func (t *Tracker) MarkOffline(serial string) {
	if serial == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.known[serial]
	if !ok {
		t.order = append(t.order, serial)
		rec.Serial = serial
	}
	rec.Status = domain.DeviceStatusOffline
	t.known[serial] = rec
}

// Get returns the record for serial
func (t *Tracker) Get(serial string) (domain.DeviceRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.known[serial]
	return rec, ok
}

// Snapshot returns every known device in first-seen order
func (t *Tracker) Snapshot() []domain.DeviceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list := make([]domain.DeviceRecord, 0, len(t.order))
	for _, serial := range t.order {
		list = append(list, t.known[serial])
	}
	return list
}
