package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/charliek/catview/internal/domain"
)

// LastConfigKey is the state file key holding the last stream configuration
const LastConfigKey = "lastConfig.v1"

// Store persists small pieces of state as a JSON object keyed by name.
// Read and write failures are logged and otherwise ignored.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by path
func NewStore(path string) *Store {
	return &Store{path: ExpandHome(path)}
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// LastConfig returns the saved configuration, or def when nothing usable
// was saved.
func (s *Store) LastConfig(def domain.LastConfig) domain.LastConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.readLocked()
	raw, ok := state[LastConfigKey]
	if !ok {
		return def
	}
	var cfg domain.LastConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		log.WithError(err).WithField("path", s.path).Debug("ignoring unreadable last config")
		return def
	}
	return cfg.WithDefaults()
}

// SaveLastConfig records cfg as the last used configuration
func (s *Store) SaveLastConfig(cfg domain.LastConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(cfg)
	if err != nil {
		log.WithError(err).Debug("encoding last config")
		return
	}
	state := s.readLocked()
	state[LastConfigKey] = raw
	s.writeLocked(state)
}

func (s *Store) readLocked() map[string]json.RawMessage {
	state := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithField("path", s.path).Debug("reading state file")
		}
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil {
		log.WithError(err).WithField("path", s.path).Debug("parsing state file")
		return make(map[string]json.RawMessage)
	}
	return state
}

func (s *Store) writeLocked(state map[string]json.RawMessage) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.WithError(err).Debug("encoding state file")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		log.WithError(err).WithField("path", s.path).Debug("creating state directory")
		return
	}
	// Atomic write
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		log.WithError(err).WithField("path", s.path).Debug("writing state file")
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		log.WithError(err).WithField("path", s.path).Debug("replacing state file")
	}
}
