package cli

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/catview/internal/config"
	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/daemon"
)

// withConfigPath points the --config value at path for one test
func withConfigPath(t *testing.T, path string) {
	t.Helper()
	original := configPath
	configPath = path
	t.Cleanup(func() { configPath = original })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAPIAddrFromConfig(t *testing.T) {
	t.Run("returns address from config with custom port", func(t *testing.T) {
		withConfigPath(t, writeConfig(t, `
api:
  port: 5552
  host: 127.0.0.1
`))
		assert.Equal(t, "http://127.0.0.1:5552", loadAPIAddrFromConfig())
	})

	t.Run("returns address with default port when not specified", func(t *testing.T) {
		withConfigPath(t, writeConfig(t, `
stream:
  level: W
`))
		assert.Equal(t, fmt.Sprintf("http://%s:%d", constants.DefaultAPIHost, constants.DefaultAPIPort), loadAPIAddrFromConfig())
	})

	t.Run("returns empty string when config not found", func(t *testing.T) {
		withConfigPath(t, filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Empty(t, loadAPIAddrFromConfig())
	})

	t.Run("brackets IPv6 hosts", func(t *testing.T) {
		withConfigPath(t, writeConfig(t, `
api:
  host: "::1"
  port: 6000
`))
		assert.Equal(t, "http://[::1]:6000", loadAPIAddrFromConfig())
	})
}

func TestDiscoverAPIAddress_FallsBackToConfig(t *testing.T) {
	// The package directory has no running server state
	withConfigPath(t, writeConfig(t, "api:\n  port: 5599\n"))

	assert.Equal(t, "http://127.0.0.1:5599", discoverAPIAddress())
}

func TestDiscoverAPIAddress_Default(t *testing.T) {
	withConfigPath(t, filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Equal(t, constants.DefaultAPIAddress, discoverAPIAddress())
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing default file yields defaults", func(t *testing.T) {
		withConfigPath(t, filepath.Join(t.TempDir(), "missing.yaml"))
		cmd := &cobra.Command{}
		cmd.Flags().String("config", "", "")

		cfg, err := loadConfig(cmd)
		require.NoError(t, err)
		assert.Equal(t, constants.DefaultADBPath, cfg.ADB.Path)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "missing.yaml")
		withConfigPath(t, missing)
		cmd := &cobra.Command{}
		cmd.Flags().String("config", "", "")
		require.NoError(t, cmd.Flags().Set("config", missing))

		_, err := loadConfig(cmd)
		assert.Error(t, err)
	})

	t.Run("reads the file", func(t *testing.T) {
		withConfigPath(t, writeConfig(t, "adb:\n  path: /opt/sdk/adb\n"))
		cmd := &cobra.Command{}
		cmd.Flags().String("config", "", "")

		cfg, err := loadConfig(cmd)
		require.NoError(t, err)
		assert.Equal(t, "/opt/sdk/adb", cfg.ADB.Path)
	})
}

func TestIsConnectionError(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	assert.True(t, isConnectionError(fmt.Errorf("request failed: %w", opErr)))
	assert.False(t, isConnectionError(daemon.ErrNotRunning))
}

func TestIsAuthRequired(t *testing.T) {
	on, off := true, false
	tests := []struct {
		name string
		host string
		auth *bool
		want bool
	}{
		{"localhost defaults to no auth", "127.0.0.1", nil, false},
		{"all interfaces defaults to auth", "0.0.0.0", nil, true},
		{"explicit on", "localhost", &on, true},
		{"explicit off", "0.0.0.0", &off, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.API.Host = tt.host
			cfg.API.Auth = tt.auth
			assert.Equal(t, tt.want, isAuthRequired(cfg))
		})
	}
}
