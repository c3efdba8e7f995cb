package prefs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/catview/internal/domain"
)

func TestLoad_Missing(t *testing.T) {
	state := Load(filepath.Join(t.TempDir(), "prefs.toml"))
	assert.Equal(t, domain.ViewState{}, state)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "prefs.toml")
	want := domain.ViewState{Filter: "ActivityManager|crash", CaseSensitive: true, Wrap: true, Serial: "emulator-5554"}

	require.NoError(t, Save(path, want))
	assert.Equal(t, want, Load(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "case_sensitive = true")
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	require.NoError(t, os.WriteFile(path, []byte("filter = [broken"), 0o644))
	assert.Equal(t, domain.ViewState{}, Load(path))
}

func TestLoad_OversizedFilterDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	require.NoError(t, Save(path, domain.ViewState{Filter: strings.Repeat("x", 1000), Wrap: true}))

	state := Load(path)
	assert.Empty(t, state.Filter)
	assert.True(t, state.Wrap)
}

func TestDefaultPath(t *testing.T) {
	assert.True(t, strings.HasSuffix(DefaultPath(), "prefs.toml"))
}
