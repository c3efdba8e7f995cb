package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Write_Validation(t *testing.T) {
	tests := []struct {
		name  string
		state State
		err   string
	}{
		{"zero pid", State{PID: 0, Port: 5555, Host: "127.0.0.1"}, "invalid PID"},
		{"negative pid", State{PID: -1, Port: 5555, Host: "127.0.0.1"}, "invalid PID"},
		{"zero port", State{PID: 1, Port: 0, Host: "127.0.0.1"}, "invalid port"},
		{"port too large", State{PID: 1, Port: 65536, Host: "127.0.0.1"}, "invalid port"},
		{"empty host", State{PID: 1, Port: 5555}, "host cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Write(t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}

	t.Run("config file is optional", func(t *testing.T) {
		state := &State{PID: 1, Port: 5555, Host: "127.0.0.1"}
		assert.NoError(t, state.Write(t.TempDir()))
	})
}

func TestState_WriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	original := &State{
		PID:         12345,
		Port:        5555,
		Host:        "127.0.0.1",
		StartedAt:   time.Now().Truncate(time.Second),
		ConfigFile:  "catview.yaml",
		ADBPath:     "/opt/android/platform-tools/adb",
		AuthEnabled: true,
	}
	require.NoError(t, original.Write(dir))

	info, err := os.Stat(StatePath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadState(dir)
	require.NoError(t, err)
	assert.Equal(t, original.PID, loaded.PID)
	assert.Equal(t, original.Port, loaded.Port)
	assert.Equal(t, original.Host, loaded.Host)
	assert.True(t, original.StartedAt.Equal(loaded.StartedAt))
	assert.Equal(t, original.ConfigFile, loaded.ConfigFile)
	assert.Equal(t, original.ADBPath, loaded.ADBPath)
	assert.True(t, loaded.AuthEnabled)
}

func TestLoadState_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		_, err := LoadState(t.TempDir())
		assert.ErrorIs(t, err, ErrStateNotFound)
	})

	t.Run("corrupt", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, EnsureStateDir(dir))
		require.NoError(t, os.WriteFile(StatePath(dir), []byte("{"), 0600))

		_, err := LoadState(dir)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrStateNotFound)
	})
}

func TestState_Addr(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:5555", (&State{Host: "127.0.0.1", Port: 5555}).Addr())
	assert.Equal(t, "http://[::1]:8080", (&State{Host: "::1", Port: 8080}).Addr())
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "/project/.catview", StateDir("/project"))
	assert.Equal(t, "/project/.catview/catview.state", StatePath("/project"))
	assert.Equal(t, "/project/.catview/catview.lock", LockPath("/project"))
	assert.Equal(t, "/project/.catview/catview.log", LogPath("/project"))
	assert.Equal(t, "/project/.catview/token", TokenPath("/project"))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, ".catview"), StateDir(""))
}

func TestRemoveState(t *testing.T) {
	dir := t.TempDir()
	writeTestState(t, dir, 1)

	require.NoError(t, RemoveState(dir))
	assert.NoFileExists(t, StatePath(dir))

	// Removing again is not an error
	assert.NoError(t, RemoveState(dir))
}

func TestEnsureStateDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureStateDir(dir))

	info, err := os.Stat(StateDir(dir))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	assert.NoError(t, EnsureStateDir(dir))
}

func TestCleanupStateDir(t *testing.T) {
	dir := t.TempDir()
	writeTestState(t, dir, 1)
	require.NoError(t, SaveToken(dir, "secret"))
	require.NoError(t, os.WriteFile(LockPath(dir), []byte("1\n"), 0600))
	require.NoError(t, os.WriteFile(LogPath(dir), []byte("log\n"), 0600))

	require.NoError(t, CleanupStateDir(dir))

	assert.NoFileExists(t, StatePath(dir))
	assert.NoFileExists(t, LockPath(dir))
	assert.NoFileExists(t, TokenPath(dir))
	assert.FileExists(t, LogPath(dir))
	assert.DirExists(t, StateDir(dir))
}
