package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DaemonEnvVar is the environment variable used to detect daemon child process
	DaemonEnvVar = "_CATVIEW_DAEMON"

	// readyFD is the pipe a detached server reports readiness on
	readyFD = 3
)

// Ready is what a detached server reports to the command that started it
type Ready struct {
	PID    int    `json:"pid"`
	Addr   string `json:"addr,omitempty"`
	Serial string `json:"serial,omitempty"`
	Error  string `json:"error,omitempty"`
}

// String formats the startup line printed by the parent
func (r Ready) String() string {
	device := "no device selected yet"
	if r.Serial != "" {
		device = "device " + r.Serial
	}
	return fmt.Sprintf("catview server started (pid %d) at %s, %s", r.PID, r.Addr, device)
}

var readyOnce sync.Once

// IsDaemonChild returns true if this process is a daemon child process
func IsDaemonChild() bool {
	return os.Getenv(DaemonEnvVar) == "1"
}

// Daemonize re-executes the current process detached from the terminal and
// waits until the child reports that it serves the API.
//
// IMPORTANT: on success the parent calls os.Exit(0) and never returns. A
// child that fails or exits before it is ready makes Daemonize return an
// error naming the server log.
func Daemonize(dir string, timeout time.Duration) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("getting executable path: %w", err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("creating ready pipe: %w", err)
	}
	defer r.Close()

	cmd := exec.Command(executable, os.Args[1:]...)
	cmd.Env = append(os.Environ(), DaemonEnvVar+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	// fd 3 in the child
	cmd.ExtraFiles = []*os.File{w}

	if err := cmd.Start(); err != nil {
		w.Close()
		return fmt.Errorf("starting daemon process: %w", err)
	}
	// only the child may hold the write end, so its exit ends the wait
	w.Close()

	ready, err := WaitReady(r, timeout)
	if err != nil {
		return fmt.Errorf("%w (see %s)", err, LogPath(dir))
	}
	if ready.PID == 0 {
		ready.PID = cmd.Process.Pid
	}
	fmt.Println(ready.String())
	os.Exit(0)
	return nil
}

// NotifyReady reports a serving server to the waiting parent. Outside a
// detached child, and after the first report, it does nothing.
func NotifyReady(ready Ready) {
	notify(ready)
}

// NotifyFailed reports a startup failure to the waiting parent
func NotifyFailed(err error) {
	notify(Ready{PID: os.Getpid(), Error: err.Error()})
}

func notify(ready Ready) {
	if !IsDaemonChild() {
		return
	}
	readyOnce.Do(func() {
		f := os.NewFile(readyFD, "ready")
		if f == nil {
			return
		}
		defer f.Close()
		if err := WriteReady(f, ready); err != nil {
			log.WithError(err).Warn("reporting readiness")
		}
	})
}

// WriteReady encodes one readiness report
func WriteReady(w io.Writer, ready Ready) error {
	return json.NewEncoder(w).Encode(ready)
}

// WaitReady reads one readiness report. A closed pipe means the server
// exited first.
func WaitReady(r io.Reader, timeout time.Duration) (Ready, error) {
	type result struct {
		ready Ready
		err   error
	}
	done := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(r).ReadBytes('\n')
		if len(line) == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				err = ErrNotReady
			}
			done <- result{err: err}
			return
		}
		var ready Ready
		if err := json.Unmarshal(line, &ready); err != nil {
			done <- result{err: fmt.Errorf("parsing ready report: %w", err)}
			return
		}
		done <- result{ready: ready}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return Ready{}, res.err
		}
		if res.ready.Error != "" {
			return res.ready, fmt.Errorf("catview server failed to start: %s", res.ready.Error)
		}
		return res.ready, nil
	case <-time.After(timeout):
		return Ready{}, fmt.Errorf("catview server not ready after %s", timeout)
	}
}

// SetupLogging redirects stdout, stderr and the logger to the server log
// file. Should be called early in the daemon child process.
func SetupLogging(dir string) (*os.File, error) {
	if err := EnsureStateDir(dir); err != nil {
		return nil, err
	}
	logFile, err := os.OpenFile(LogPath(dir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	os.Stdout = logFile
	os.Stderr = logFile
	log.SetOutput(logFile)
	log.WithField("pid", os.Getpid()).Info("detached catview server starting")
	return logFile, nil
}

// FindAvailablePort asks the OS for a free TCP port on host
func FindAvailablePort(host string) (int, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("finding available port: %w", err)
	}
	defer listener.Close()

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected address type: %T", listener.Addr())
	}
	return tcpAddr.Port, nil
}

// IsRunning reports whether a catview server holds the given directory,
// either through the lock or a state file naming a live process.
func IsRunning(dir string) bool {
	if IsLocked(LockPath(dir)) {
		return true
	}
	state, err := LoadState(dir)
	if err != nil {
		return false
	}
	return ProcessExists(state.PID)
}

// GetRunningState returns the state of a running catview server, if any.
// Returns ErrNotRunning if no instance is running.
func GetRunningState(dir string) (*State, error) {
	if !IsRunning(dir) {
		return nil, ErrNotRunning
	}
	return LoadState(dir)
}

// Serving returns the record published by the server holding the lock.
// Returns ErrNotRunning if the lock is free.
func Serving(dir string) (*LockRecord, error) {
	path := LockPath(dir)
	if !IsLocked(path) {
		return nil, ErrNotRunning
	}
	return ReadLock(path)
}

// CleanupStaleFiles removes files left by a server that is gone
func CleanupStaleFiles(dir string) error {
	if IsLocked(LockPath(dir)) {
		return ErrAlreadyRunning
	}

	state, err := LoadState(dir)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}
	if ProcessExists(state.PID) {
		return ErrAlreadyRunning
	}
	return CleanupStateDir(dir)
}
