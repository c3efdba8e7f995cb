package supervisor

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
)

// Adapter runs one producer process. Output from stdout and stderr is
// delivered as raw chunks in read order; chunks are not aligned to lines.
// onExit is called exactly once, after both readers have drained.
type Adapter struct {
	mu sync.Mutex

	runner  ProcessRunner
	onChunk func(string)
	onExit  func(domain.Exited)

	process Process
	started time.Time

	done     chan struct{}
	doneOnce sync.Once

	// outputWg tracks completion of output reader goroutines
	outputWg sync.WaitGroup

	drainTimeout time.Duration
}

// NewAdapter creates an adapter; callbacks may be invoked concurrently
// from the reader goroutines.
func NewAdapter(runner ProcessRunner, onChunk func(string), onExit func(domain.Exited)) *Adapter {
	return &Adapter{
		runner:       runner,
		onChunk:      onChunk,
		onExit:       onExit,
		done:         make(chan struct{}),
		drainTimeout: constants.OutputDrainTimeout,
	}
}

// Start spawns the process
func (a *Adapter) Start(ctx context.Context, cmd Command) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.process != nil {
		return domain.ErrStreamAlreadyRunning
	}

	proc, err := a.runner.Start(ctx, cmd)
	if err != nil {
		a.closeDone()
		return err
	}

	a.process = proc
	a.started = time.Now()

	a.outputWg.Add(2)
	go func() {
		defer a.outputWg.Done()
		a.readOutput(proc.Stdout())
	}()
	go func() {
		defer a.outputWg.Done()
		a.readOutput(proc.Stderr())
	}()

	go a.monitor(proc)

	log.WithFields(log.Fields{"pid": proc.PID(), "cmd": cmd.String()}).Debug("producer started")
	return nil
}

// PID returns the process id, zero when not running
func (a *Adapter) PID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.process == nil {
		return 0
	}
	return a.process.PID()
}

// Done is closed once the process has exited and onExit has returned
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

// Stop interrupts the process group and waits for it to exit. When ctx
// expires first the group is killed.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	proc := a.process
	done := a.done
	a.mu.Unlock()

	if proc == nil {
		return domain.ErrStreamNotRunning
	}

	if err := proc.Signal(sigint); err != nil {
		log.WithError(err).Debug("SIGINT failed (process may have already exited)")
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	log.WithField("pid", proc.PID()).Warn("sending SIGKILL to producer (graceful stop timed out)")
	if err := proc.Signal(sigkill); err != nil {
		log.WithError(err).Debug("SIGKILL failed")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}

// monitor watches for process exit
func (a *Adapter) monitor(proc Process) {
	err := proc.Wait()

	// Grandchildren may hold the pipes open; bound the wait for readers
	outputDone := make(chan struct{})
	go func() {
		a.outputWg.Wait()
		close(outputDone)
	}()

	select {
	case <-outputDone:
	case <-time.After(a.drainTimeout):
		log.WithField("pid", proc.PID()).Warn("output capture timed out (some logs may be missing)")
	}

	code, signal := exitStatus(err)

	a.mu.Lock()
	a.process = nil
	a.mu.Unlock()

	if a.onExit != nil {
		a.onExit(domain.Exited{Code: code, Signal: signal, Err: err})
	}
	a.closeDone()
}

// readOutput forwards raw reads until EOF
func (a *Adapter) readOutput(r io.Reader) {
	if r == nil {
		return
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	buf := make([]byte, constants.ChunkReadSize)
	for {
		n, err := r.Read(buf)
		if n > 0 && a.onChunk != nil {
			a.onChunk(string(buf[:n]))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.WithError(err).Warn("output reader error")
			}
			return
		}
	}
}

// closeDone safely closes the done channel using sync.Once to prevent double-close panic
func (a *Adapter) closeDone() {
	a.doneOnce.Do(func() {
		close(a.done)
	})
}

// exitStatus extracts the exit code and signal from a Wait error.
// For signal termination the code is the negative signal number.
func exitStatus(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1, ""
	}

	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			return -int(status.Signal()), status.Signal().String()
		}
		return status.ExitStatus(), ""
	}
	return exitErr.ExitCode(), ""
}
