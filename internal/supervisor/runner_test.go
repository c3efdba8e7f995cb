package supervisor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shCommand(script string) Command {
	return Command{Name: "sh", Args: []string{"-c", script}}
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "adb", Command{Name: "adb"}.String())
	assert.Equal(t, "adb -s ABC logcat", Command{Name: "adb", Args: []string{"-s", "ABC", "logcat"}}.String())
}

func TestExecRunner_Start(t *testing.T) {
	runner := NewExecRunner()

	t.Run("starts simple command", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), shCommand("echo hello"))
		require.NoError(t, err)
		assert.Greater(t, proc.PID(), 0)

		output, err := io.ReadAll(proc.Stdout())
		require.NoError(t, err)
		assert.Contains(t, string(output), "hello")

		assert.NoError(t, proc.Wait())
	})

	t.Run("passes environment", func(t *testing.T) {
		cmd := shCommand("echo $TEST_VAR")
		cmd.Env = map[string]string{"TEST_VAR": "test_value"}

		proc, err := runner.Start(context.Background(), cmd)
		require.NoError(t, err)

		output, err := io.ReadAll(proc.Stdout())
		require.NoError(t, err)
		assert.Contains(t, string(output), "test_value")

		proc.Wait()
	})

	t.Run("captures stderr", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), shCommand("echo error >&2"))
		require.NoError(t, err)

		output, err := io.ReadAll(proc.Stderr())
		require.NoError(t, err)
		assert.Contains(t, string(output), "error")

		proc.Wait()
	})

	t.Run("output readable after wait", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), shCommand("echo late"))
		require.NoError(t, err)

		require.NoError(t, proc.Wait())

		output, err := io.ReadAll(proc.Stdout())
		require.NoError(t, err)
		assert.Equal(t, "late\n", string(output))
	})

	t.Run("can be interrupted", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), shCommand("sleep 30"))
		require.NoError(t, err)

		time.Sleep(100 * time.Millisecond)
		assert.NoError(t, proc.Signal(sigint))

		done := make(chan error, 1)
		go func() {
			done <- proc.Wait()
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("process did not exit after signal")
		}
	})

	t.Run("missing executable returns error", func(t *testing.T) {
		proc, err := runner.Start(context.Background(), Command{Name: "/nonexistent/command/that/does/not/exist"})
		assert.Error(t, err)
		assert.Nil(t, proc)
	})

	t.Run("cancelled context refuses to start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := runner.Start(ctx, shCommand("echo never"))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("context cancellation does not kill process", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		proc, err := runner.Start(ctx, shCommand("sleep 30"))
		require.NoError(t, err)

		time.Sleep(100 * time.Millisecond)
		cancel()

		done := make(chan error, 1)
		go func() {
			done <- proc.Wait()
		}()

		select {
		case <-done:
			t.Fatal("process should not be killed by context cancellation alone")
		case <-time.After(200 * time.Millisecond):
		}

		proc.Signal(sigterm)
		<-done
	})
}
