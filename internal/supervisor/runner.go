// Package supervisor runs the external log producer and applies the stream
// policy (pause, visibility, coalescing, dedup) to its output.
//
// # Security Model
//
// The producer is either a configured script or the device bridge itself.
// Both are executed directly without a shell; the script path comes from the
// configuration file, which has the same trust level as a Makefile.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// Command describes a process to spawn
type Command struct {
	Name string
	Args []string
	Env  map[string]string
	Dir  string
}

// String renders the command line for status output
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// ProcessRunner creates and starts processes
type ProcessRunner interface {
	Start(ctx context.Context, cmd Command) (Process, error)
}

// Process represents a running process
type Process interface {
	PID() int
	Wait() error
	Signal(sig os.Signal) error
	Stdout() io.Reader
	Stderr() io.Reader
}

// ExecRunner implements ProcessRunner using os/exec
type ExecRunner struct{}

// NewExecRunner creates a new ExecRunner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Start starts a new process. Output is read through manual pipes so the
// readers see EOF independently of Wait. Cancelling ctx after Start does not
// kill the process; callers stop it with Signal.
func (r *ExecRunner) Start(ctx context.Context, c Command) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir

	cmd.Env = os.Environ()
	for k, v := range c.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	// Set process group so we can signal all children
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	startErr := cmd.Start()
	// The child holds its own copies of the write ends
	stdoutW.Close()
	stderrW.Close()
	if startErr != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, fmt.Errorf("starting process: %w", startErr)
	}

	return &execProcess{
		cmd:    cmd,
		stdout: stdoutR,
		stderr: stderrR,
	}, nil
}

// execProcess wraps exec.Cmd to implement Process interface
type execProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Signal(sig os.Signal) error {
	return signalGroup(p.cmd.Process, sig)
}

func (p *execProcess) Stdout() io.Reader {
	return p.stdout
}

func (p *execProcess) Stderr() io.Reader {
	return p.stderr
}

func signalGroup(proc *os.Process, sig os.Signal) error {
	if proc == nil {
		return nil
	}

	pgid, err := syscall.Getpgid(proc.Pid)
	if err != nil {
		// Fall back to signalling just the process
		return proc.Signal(sig)
	}

	return syscall.Kill(-pgid, sig.(syscall.Signal))
}
