package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/catview/internal/domain"
)

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewStore(path)

	def := domain.DefaultLastConfig()
	assert.Equal(t, def, store.LastConfig(def))

	saved := domain.LastConfig{Serial: "ABC", Pkg: "com.app", Tag: "MyTag", Level: "W", Buffer: "crash", Save: true}
	store.SaveLastConfig(saved)

	assert.Equal(t, saved, NewStore(path).LastConfig(def))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"lastConfig.v1"`)
}

func TestStore_KeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"other":{"x":1}}`), 0600))

	NewStore(path).SaveLastConfig(domain.LastConfig{Serial: "ABC"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"other"`)
}

func TestStore_CorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	store := NewStore(path)
	def := domain.DefaultLastConfig()
	assert.Equal(t, def, store.LastConfig(def))

	store.SaveLastConfig(domain.LastConfig{Serial: "XYZ"})
	got := store.LastConfig(def)
	assert.Equal(t, "XYZ", got.Serial)
	assert.Equal(t, def.Tag, got.Tag)
}

func TestStore_UnwritableIsSilent(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	store := NewStore(filepath.Join(blocker, "state.json"))
	assert.NotPanics(t, func() {
		store.SaveLastConfig(domain.LastConfig{Serial: "ABC"})
	})
	assert.Equal(t, domain.DefaultLastConfig(), store.LastConfig(domain.DefaultLastConfig()))
}
