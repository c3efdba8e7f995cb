package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/charliek/catview/internal/constants"
)

// StreamState represents the lifecycle state of the log stream.
// Streams move Idle → Running → {Paused ⇄ Running} → Idle.
type StreamState string

const (
	// StreamStateIdle indicates no producer process is running
	StreamStateIdle StreamState = "idle"
	// StreamStateRunning indicates output is being forwarded
	StreamStateRunning StreamState = "running"
	// StreamStatePaused indicates output is being held until resume
	StreamStatePaused StreamState = "paused"
)

// String returns the string representation of StreamState
func (s StreamState) String() string {
	return string(s)
}

// IsActive returns true while a producer process is alive
func (s StreamState) IsActive() bool {
	return s == StreamStateRunning || s == StreamStatePaused
}

// Session is one active capture.
type Session struct {
	ID      string    `json:"id,omitempty"`
	Serial  string    `json:"serial"`
	Package string    `json:"pkg"`
	Tag     string    `json:"tag"`
	Level   string    `json:"level"`
	Buffer  string    `json:"buffer"`
	Save    bool      `json:"save"`
	Since   string    `json:"since,omitempty"`
	Started time.Time `json:"started_at,omitempty"`
}

// WithDefaults returns a copy with blank tag, level and buffer filled in
func (s Session) WithDefaults() Session {
	out := s
	out.Serial = strings.TrimSpace(out.Serial)
	out.Package = strings.TrimSpace(out.Package)
	if strings.TrimSpace(out.Tag) == "" {
		out.Tag = constants.DefaultTag
	}
	if out.Level == "" {
		out.Level = constants.DefaultLevel
	}
	if out.Buffer == "" {
		out.Buffer = constants.DefaultBuffer
	}
	return out
}

// LastConfig converts the session into its persisted form
func (s Session) LastConfig() LastConfig {
	return LastConfig{
		Serial: s.Serial,
		Pkg:    s.Package,
		Tag:    s.Tag,
		Level:  s.Level,
		Buffer: s.Buffer,
		Save:   s.Save,
	}
}

// LastConfig is the last used stream configuration, restored on the next
// session and used for auto start.
type LastConfig struct {
	Serial string `json:"serial"`
	Pkg    string `json:"pkg"`
	Tag    string `json:"tag"`
	Level  string `json:"level"`
	Buffer string `json:"buffer"`
	Save   bool   `json:"save"`
}

// DefaultLastConfig returns the configuration used when nothing was saved
func DefaultLastConfig() LastConfig {
	return LastConfig{
		Tag:    constants.DefaultTag,
		Level:  constants.DefaultLevel,
		Buffer: constants.DefaultBuffer,
	}
}

// WithDefaults fills blank tag, level and buffer
func (c LastConfig) WithDefaults() LastConfig {
	out := c
	if out.Tag == "" {
		out.Tag = constants.DefaultTag
	}
	if out.Level == "" {
		out.Level = constants.DefaultLevel
	}
	if out.Buffer == "" {
		out.Buffer = constants.DefaultBuffer
	}
	return out
}

// Session builds a session for serial from the saved configuration
func (c LastConfig) Session(serial string) Session {
	c = c.WithDefaults()
	return Session{
		Serial:  serial,
		Package: c.Pkg,
		Tag:     c.Tag,
		Level:   c.Level,
		Buffer:  c.Buffer,
		Save:    c.Save,
	}
}

// Exited describes the end of a producer process.
// Code is negative when the process was terminated by a signal.
type Exited struct {
	SessionID string `json:"session_id"`
	Serial    string `json:"serial"`
	Code      int    `json:"code"`
	Signal    string `json:"signal,omitempty"`
	Err       error  `json:"-"`
}

// String formats the exit for status display
func (e Exited) String() string {
	return fmt.Sprintf("exited (code=%d, signal=%s)", e.Code, e.Signal)
}

// StreamInfo is a snapshot of the controller
type StreamInfo struct {
	State   StreamState `json:"state"`
	Session *Session    `json:"session,omitempty"`
	PID     int         `json:"pid,omitempty"`
	Visible bool        `json:"visible"`
}
