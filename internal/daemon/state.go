package daemon

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// StateDirName is the name of the directory storing runtime state
	StateDirName = ".catview"
	// StateFileName is the name of the state file
	StateFileName = "catview.state"
	// LockFileName is the name of the server lock file
	LockFileName = "catview.lock"
	// LogFileName is the name of the server log file
	LogFileName = "catview.log"
	// TokenFileName holds the API bearer token
	TokenFileName = "token"
)

// State describes a running catview server so client commands can find it.
//
// State is not safe for concurrent use. The server writes it once at
// startup and clients only read it.
type State struct {
	PID         int       `json:"pid"`
	Port        int       `json:"port"`
	Host        string    `json:"host"`
	StartedAt   time.Time `json:"started_at"`
	ConfigFile  string    `json:"config_file,omitempty"`
	ADBPath     string    `json:"adb_path"`
	AuthEnabled bool      `json:"auth_enabled"`
}

// Addr returns the base URL of the server's API
func (s *State) Addr() string {
	return "http://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Write writes the state to the state file in the given directory
func (s *State) Write(dir string) error {
	if s.PID <= 0 {
		return fmt.Errorf("invalid PID: %d", s.PID)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}
	if s.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if err := EnsureStateDir(dir); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	f, err := os.OpenFile(StatePath(dir), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening state file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing state file: %w", err)
	}

	return nil
}

// LoadState reads the state from the state file in the given directory
func LoadState(dir string) (*State, error) {
	data, err := os.ReadFile(StatePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshaling state: %w", err)
	}

	return &state, nil
}

// RemoveState removes the state file from the given directory
func RemoveState(dir string) error {
	if err := os.Remove(StatePath(dir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}

// StateDir returns the path to the .catview directory in the given directory.
// If dir is empty, uses the current working directory, falling back to a
// relative path when it cannot be determined.
func StateDir(dir string) string {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return StateDirName
		}
	}
	return filepath.Join(dir, StateDirName)
}

// StatePath returns the full path to the state file
func StatePath(dir string) string {
	return filepath.Join(StateDir(dir), StateFileName)
}

// LockPath returns the full path to the server lock file
func LockPath(dir string) string {
	return filepath.Join(StateDir(dir), LockFileName)
}

// LogPath returns the full path to the server log file
func LogPath(dir string) string {
	return filepath.Join(StateDir(dir), LogFileName)
}

// TokenPath returns the full path to the token file
func TokenPath(dir string) string {
	return filepath.Join(StateDir(dir), TokenFileName)
}

// EnsureStateDir creates the .catview directory if it doesn't exist
func EnsureStateDir(dir string) error {
	if err := os.MkdirAll(StateDir(dir), 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}

// CleanupStateDir removes the state, lock and token files. The log file is
// kept.
func CleanupStateDir(dir string) error {
	for _, path := range []string{StatePath(dir), LockPath(dir), TokenPath(dir)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}
