package daemon

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDaemonChild(t *testing.T) {
	t.Run("returns false when env var not set", func(t *testing.T) {
		t.Setenv(DaemonEnvVar, "")
		assert.False(t, IsDaemonChild())
	})

	t.Run("returns true when env var is 1", func(t *testing.T) {
		t.Setenv(DaemonEnvVar, "1")
		assert.True(t, IsDaemonChild())
	})

	t.Run("returns false for other values", func(t *testing.T) {
		t.Setenv(DaemonEnvVar, "yes")
		assert.False(t, IsDaemonChild())
	})
}

func TestFindAvailablePort(t *testing.T) {
	port, err := FindAvailablePort("127.0.0.1")
	require.NoError(t, err)
	assert.Greater(t, port, 0)
	assert.LessOrEqual(t, port, 65535)
}

func writeTestState(t *testing.T, dir string, pid int) {
	t.Helper()
	state := &State{PID: pid, Port: 5555, Host: "127.0.0.1", ADBPath: "adb"}
	require.NoError(t, state.Write(dir))
}

func TestIsRunning(t *testing.T) {
	t.Run("not running without files", func(t *testing.T) {
		assert.False(t, IsRunning(t.TempDir()))
	})

	t.Run("running while the lock is held", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, EnsureStateDir(dir))
		l := NewServerLock(LockPath(dir))
		require.NoError(t, l.Acquire())
		defer l.Release()

		assert.True(t, IsRunning(dir))
	})

	t.Run("running when state names a live process", func(t *testing.T) {
		dir := t.TempDir()
		writeTestState(t, dir, os.Getpid())
		assert.True(t, IsRunning(dir))
	})

	t.Run("not running when state names a dead process", func(t *testing.T) {
		dir := t.TempDir()
		writeTestState(t, dir, 999999999)
		assert.False(t, IsRunning(dir))
	})
}

func TestGetRunningState(t *testing.T) {
	t.Run("returns ErrNotRunning", func(t *testing.T) {
		_, err := GetRunningState(t.TempDir())
		assert.ErrorIs(t, err, ErrNotRunning)
	})

	t.Run("returns the state of a live server", func(t *testing.T) {
		dir := t.TempDir()
		writeTestState(t, dir, os.Getpid())

		state, err := GetRunningState(dir)
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), state.PID)
		assert.Equal(t, "http://127.0.0.1:5555", state.Addr())
	})
}

func TestCleanupStaleFiles(t *testing.T) {
	t.Run("nothing to clean", func(t *testing.T) {
		assert.NoError(t, CleanupStaleFiles(t.TempDir()))
	})

	t.Run("removes files of a dead process", func(t *testing.T) {
		dir := t.TempDir()
		writeTestState(t, dir, 999999999)
		require.NoError(t, SaveToken(dir, "secret"))

		require.NoError(t, CleanupStaleFiles(dir))
		assert.NoFileExists(t, StatePath(dir))
		assert.NoFileExists(t, TokenPath(dir))
	})

	t.Run("refuses while the process lives", func(t *testing.T) {
		dir := t.TempDir()
		writeTestState(t, dir, os.Getpid())

		assert.ErrorIs(t, CleanupStaleFiles(dir), ErrAlreadyRunning)
		assert.FileExists(t, StatePath(dir))
	})

	t.Run("refuses while the lock is held", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, EnsureStateDir(dir))
		l := NewServerLock(LockPath(dir))
		require.NoError(t, l.Acquire())
		defer l.Release()

		assert.ErrorIs(t, CleanupStaleFiles(dir), ErrAlreadyRunning)
	})
}

func TestSetupLogging(t *testing.T) {
	stdout, stderr := os.Stdout, os.Stderr
	out := log.StandardLogger().Out
	t.Cleanup(func() {
		os.Stdout, os.Stderr = stdout, stderr
		log.SetOutput(out)
	})

	dir := t.TempDir()
	logFile, err := SetupLogging(dir)
	require.NoError(t, err)
	defer logFile.Close()

	info, err := os.Stat(LogPath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.Same(t, logFile, os.Stdout)
}

func TestServing(t *testing.T) {
	t.Run("free lock", func(t *testing.T) {
		_, err := Serving(t.TempDir())
		assert.ErrorIs(t, err, ErrNotRunning)
	})

	t.Run("held lock", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, EnsureStateDir(dir))
		l := NewServerLock(LockPath(dir))
		require.NoError(t, l.Acquire())
		defer l.Release()
		require.NoError(t, l.SetAddr("http://127.0.0.1:5577"))

		rec, err := Serving(dir)
		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:5577", rec.Addr)
	})
}

func TestWaitReady(t *testing.T) {
	t.Run("reports the serving address and device", func(t *testing.T) {
		r, w := io.Pipe()
		go func() {
			_ = WriteReady(w, Ready{PID: 42, Addr: "http://127.0.0.1:5577", Serial: "emulator-5554"})
		}()

		ready, err := WaitReady(r, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 42, ready.PID)
		assert.Equal(t, "catview server started (pid 42) at http://127.0.0.1:5577, device emulator-5554", ready.String())
	})

	t.Run("exit before ready", func(t *testing.T) {
		_, err := WaitReady(strings.NewReader(""), time.Second)
		assert.ErrorIs(t, err, ErrNotReady)
	})

	t.Run("startup failure", func(t *testing.T) {
		var sb strings.Builder
		require.NoError(t, WriteReady(&sb, Ready{PID: 42, Error: "another catview server holds the lock"}))

		_, err := WaitReady(strings.NewReader(sb.String()), time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "holds the lock")
	})

	t.Run("read error", func(t *testing.T) {
		r, w := io.Pipe()
		w.CloseWithError(errors.New("broken"))

		_, err := WaitReady(r, time.Second)
		assert.EqualError(t, err, "broken")
	})

	t.Run("times out", func(t *testing.T) {
		r, w := io.Pipe()
		defer w.Close()

		_, err := WaitReady(r, 20*time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not ready")
	})
}

func TestReady_StringWithoutDevice(t *testing.T) {
	r := Ready{PID: 7, Addr: "http://127.0.0.1:5577"}
	assert.Equal(t, "catview server started (pid 7) at http://127.0.0.1:5577, no device selected yet", r.String())
}

func TestNotifyReady_OutsideChildIsNoop(t *testing.T) {
	t.Setenv(DaemonEnvVar, "")
	NotifyReady(Ready{PID: 1})
	NotifyFailed(errors.New("x"))
}
