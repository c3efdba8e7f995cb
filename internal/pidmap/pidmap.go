// Package pidmap keeps a pid to process-name table for the selected device
// so log lines can be attributed to a package.
package pidmap

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/charliek/catview/internal/clock"
	"github.com/charliek/catview/internal/constants"
)

// PS runs `ps` on a device
type PS interface {
	PS(ctx context.Context, serial string, args ...string) (string, error)
}

// DeltaFunc receives entries that are new or changed since the last refresh
type DeltaFunc func(delta map[string]string)

var pidNameRe = regexp.MustCompile(`^(\d+)\s+(\S+)$`)

// Service polls the device process table
type Service struct {
	mu sync.Mutex

	ps      PS
	onDelta DeltaFunc
	clock   clock.Clock

	serial string
	table  map[int]string

	// lastDemand is when a miss last triggered a refresh
	lastDemand time.Time
	// pendingDemand collects pids reported missing
	pendingDemand map[int]struct{}

	// refreshMu serializes refreshes
	refreshMu sync.Mutex

	cancel context.CancelFunc
}

// New creates a service. onDelta is called from the refreshing goroutine.
func New(ps PS, onDelta DeltaFunc, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		ps:            ps,
		onDelta:       onDelta,
		clock:         clk,
		table:         make(map[int]string),
		pendingDemand: make(map[int]struct{}),
	}
}

// SetSerial switches the device. The table is cleared when it changes.
func (s *Service) SetSerial(serial string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if serial == s.serial {
		return
	}
	s.serial = serial
	s.table = make(map[int]string)
}

// Start polls at interval, never faster than the minimum. A running loop is
// left alone.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	if interval < constants.PidMapMinInterval {
		interval = constants.PidMapMinInterval
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			s.Refresh(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends polling
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Running reports whether the polling loop is active
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Get returns the process name for pid
func (s *Service) Get(pid int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.table[pid]
	return name, ok
}

// Snapshot returns the whole table keyed by decimal pid
func (s *Service) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.table))
	for pid, name := range s.table {
		out[strconv.Itoa(pid)] = name
	}
	return out
}

// Demand records missing pids and refreshes unless a demand refresh ran
// within the throttle window. It reports whether a refresh was started.
func (s *Service) Demand(ctx context.Context, pids ...int) bool {
	s.mu.Lock()
	for _, p := range pids {
		if p > 0 {
			s.pendingDemand[p] = struct{}{}
		}
	}
	now := s.clock.Now()
	if !s.lastDemand.IsZero() && now.Sub(s.lastDemand) < constants.PidMapDemandThrottle {
		s.mu.Unlock()
		return false
	}
	s.lastDemand = now
	s.mu.Unlock()

	go s.Refresh(ctx)
	return true
}

// Outstanding returns how many demanded pids are still unresolved
func (s *Service) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingDemand)
}

// RefreshNow refreshes synchronously
func (s *Service) RefreshNow(ctx context.Context) {
	s.Refresh(ctx)
}

// Refresh reads the process table, trying progressively simpler ps forms
// until one yields rows, and delivers the changed entries.
func (s *Service) Refresh(ctx context.Context) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.Lock()
	serial := s.serial
	s.mu.Unlock()

	rows := s.query(ctx, serial, ParsePidName, "-A", "-o", "PID,NAME")
	if len(rows) == 0 {
		rows = s.query(ctx, serial, ParseGeneric, "-A")
	}
	if len(rows) == 0 {
		rows = s.query(ctx, serial, ParseGeneric)
	}
	s.merge(serial, rows)
}

func (s *Service) query(ctx context.Context, serial string, parse func(string) map[int]string, args ...string) map[int]string {
	out, err := s.ps.PS(ctx, serial, args...)
	if err != nil {
		log.WithField("args", strings.Join(args, " ")).Debugf("pidmap: ps failed: %v", err)
	}
	return parse(out)
}

func (s *Service) merge(serial string, rows map[int]string) {
	delta := make(map[string]string)

	s.mu.Lock()
	if serial != s.serial {
		s.mu.Unlock()
		return
	}
	for pid, name := range rows {
		if s.table[pid] != name {
			s.table[pid] = name
			delta[strconv.Itoa(pid)] = name
		}
		delete(s.pendingDemand, pid)
	}
	s.mu.Unlock()

	if len(delta) > 0 && s.onDelta != nil {
		s.onDelta(delta)
	}
}

// ParsePidName parses `ps -A -o PID,NAME` output
func ParsePidName(out string) map[int]string {
	rows := make(map[int]string)
	for _, line := range strings.Split(out, "\n") {
		m := pidNameRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		addRow(rows, m[1], m[2])
	}
	return rows
}

// ParseGeneric parses full `ps` tables. When the header names a PID column
// that column is used, otherwise the last numeric token. The name is the
// last token.
func ParseGeneric(out string) map[int]string {
	rows := make(map[int]string)
	pidCol := -1
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if strings.EqualFold(fields[0], "PID") || strings.EqualFold(fields[0], "USER") {
			pidCol = -1
			for i, f := range fields {
				if strings.EqualFold(f, "PID") {
					pidCol = i
				}
			}
			continue
		}

		pid := ""
		if pidCol >= 0 && pidCol < len(fields) && isDigits(fields[pidCol]) {
			pid = fields[pidCol]
		} else {
			for _, f := range fields {
				if isDigits(f) {
					pid = f
				}
			}
		}
		addRow(rows, pid, fields[len(fields)-1])
	}
	return rows
}

func addRow(rows map[int]string, pidText, name string) {
	pid, err := strconv.Atoi(pidText)
	if err != nil || pid <= 0 {
		return
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return
	}
	rows[pid] = name
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
