package daemon

import "errors"

var (
	// ErrStateNotFound is returned when no state file exists
	ErrStateNotFound = errors.New("state file not found")
	// ErrAlreadyRunning is returned when a catview server is already running
	ErrAlreadyRunning = errors.New("catview is already running")
	// ErrNotRunning is returned when no catview server is running
	ErrNotRunning = errors.New("catview is not running")
	// ErrLocked is returned when another server holds the directory lock
	ErrLocked = errors.New("another catview server holds the lock")
	// ErrNotReady is returned when a detached server exits before serving
	ErrNotReady = errors.New("catview server exited before it was ready")
)
