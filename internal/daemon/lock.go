package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// LockRecord is what a running server publishes in its lock file: who holds
// the directory, where its API listens and which device it streams from.
type LockRecord struct {
	PID    int    `json:"pid"`
	Addr   string `json:"addr,omitempty"`
	Serial string `json:"serial,omitempty"`
}

// ServerLock is the exclusive per-directory server lock. While held, its
// file carries the current LockRecord.
type ServerLock struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	record LockRecord
}

// NewServerLock creates a lock for the given path
func NewServerLock(path string) *ServerLock {
	return &ServerLock{path: path}
}

// Acquire takes the lock and records the current process. Returns
// ErrLocked if another server holds it.
func (l *ServerLock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("opening lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return ErrLocked
		}
		return fmt.Errorf("locking %s: %w", l.path, err)
	}

	l.file = f
	l.record = LockRecord{PID: os.Getpid()}
	if err := l.writeLocked(); err != nil {
		l.closeLocked()
		return err
	}
	return nil
}

// SetAddr records the API base URL the server answers on
func (l *ServerLock) SetAddr(addr string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil || l.record.Addr == addr {
		return nil
	}
	l.record.Addr = addr
	return l.writeLocked()
}

// SetSerial records the selected device; unchanged serials are not rewritten
func (l *ServerLock) SetSerial(serial string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil || l.record.Serial == serial {
		return nil
	}
	l.record.Serial = serial
	return l.writeLocked()
}

// Record returns what the lock currently publishes
func (l *ServerLock) Record() LockRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.record
}

// Release unlocks and removes the lock file
func (l *ServerLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	l.closeLocked()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

func (l *ServerLock) writeLocked() error {
	data, err := json.Marshal(l.record)
	if err != nil {
		return fmt.Errorf("marshaling lock record: %w", err)
	}
	data = append(data, '\n')
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("truncating lock file: %w", err)
	}
	if _, err := l.file.WriteAt(data, 0); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	return l.file.Sync()
}

func (l *ServerLock) closeLocked() {
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		log.WithError(err).WithField("path", l.path).Warn("failed to unlock server lock")
	}
	if err := l.file.Close(); err != nil {
		log.WithError(err).WithField("path", l.path).Warn("failed to close server lock")
	}
	l.file = nil
}

// ReadLock reads the record published in a lock file
func ReadLock(path string) (*LockRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	var rec LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing lock file: %w", err)
	}
	return &rec, nil
}

// IsLocked reports whether another process holds the lock at path
func IsLocked(path string) bool {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB); err != nil {
		return true
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return false
}

// ProcessExists checks if a process with the given PID exists
func ProcessExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// EPERM still means the process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}
