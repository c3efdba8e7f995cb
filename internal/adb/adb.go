// Package adb wraps the one-shot device bridge commands used by catview:
// device listing, pid lookup, process tables, history dumps and waiting for
// a device to come back.
package adb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
)

// Runner executes a bridge command and returns its combined output
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Output runs the command to completion. stdout comes first, stderr is
// appended after it.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := stdout.Bytes()
	if stderr.Len() > 0 {
		out = append(out, stderr.Bytes()...)
	}
	return out, err
}

// Bridge issues commands against the adb executable
type Bridge struct {
	path    string
	runner  Runner
	timeout time.Duration
}

// New creates a bridge. An empty path uses adb from PATH.
func New(path string, runner Runner) *Bridge {
	if path == "" {
		path = constants.DefaultADBPath
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Bridge{
		path:    path,
		runner:  runner,
		timeout: constants.DefaultCommandTimeout,
	}
}

// Path returns the adb executable used by the bridge
func (b *Bridge) Path() string {
	return b.path
}

// run executes one bounded command
func (b *Bridge) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := b.runner.Output(ctx, b.path, args...)
	if err != nil {
		log.WithFields(log.Fields{"args": strings.Join(args, " ")}).Debugf("adb command failed: %v", err)
		return string(out), fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// Devices lists attached devices with their status
func (b *Bridge) Devices(ctx context.Context) ([]domain.DeviceRecord, error) {
	out, err := b.run(ctx, "devices", "-l")
	if err != nil {
		return nil, err
	}
	return ParseDevices(out), nil
}

// ParseDevices parses `adb devices -l` output. The header, daemon notices
// and blank lines are skipped.
func ParseDevices(out string) []domain.DeviceRecord {
	var devices []domain.DeviceRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "List of devices") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		rec := domain.DeviceRecord{
			Serial: fields[0],
			Status: domain.ParseDeviceStatus(fields[1]),
		}
		for _, f := range fields[2:] {
			if model, ok := strings.CutPrefix(f, "model:"); ok {
				rec.Model = model
			}
		}
		devices = append(devices, rec)
	}
	return devices
}

// ResolvePID returns the pid of a running package, "" when it is not running
func (b *Bridge) ResolvePID(ctx context.Context, serial, pkg string) (string, error) {
	out, err := b.run(ctx, b.deviceArgs(serial, "shell", "pidof", pkg)...)
	if err != nil {
		// pidof exits 1 when nothing matches
		if strings.TrimSpace(out) == "" {
			return "", nil
		}
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

// PS runs `ps` on the device with the given arguments
func (b *Bridge) PS(ctx context.Context, serial string, args ...string) (string, error) {
	return b.run(ctx, b.deviceArgs(serial, append([]string{"shell", "ps"}, args...)...)...)
}

// DumpHistory returns the last maxLines lines of every log buffer
func (b *Bridge) DumpHistory(ctx context.Context, serial string, maxLines int) (string, error) {
	if maxLines <= 0 {
		maxLines = constants.MaxHistoryLines
	}
	return b.run(ctx, b.deviceArgs(serial, "logcat", "-d", "-b", "all", "-v", "time", "-t", fmt.Sprint(maxLines))...)
}

// WaitForDevice blocks until the device is online or ctx is done. It does
// not use the bridge command timeout.
func (b *Bridge) WaitForDevice(ctx context.Context, serial string) error {
	_, err := b.runner.Output(ctx, b.path, b.deviceArgs(serial, "wait-for-device")...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("adb wait-for-device: %w", err)
	}
	return nil
}

func (b *Bridge) deviceArgs(serial string, args ...string) []string {
	if serial == "" {
		return args
	}
	return append([]string{"-s", serial}, args...)
}
