// Package prefs persists viewer preferences across restarts.
// Preferences are stored in ~/.config/catview/prefs.toml.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
)

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return constants.DefaultPrefsFile
}

// Load reads the saved view state. A missing or unreadable file yields
// the zero state.
func Load(path string) domain.ViewState {
	var state domain.ViewState

	resolved, err := resolvePath(path)
	if err != nil {
		return state
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return state // Graceful degradation
	}

	if err := toml.Unmarshal(data, &state); err != nil {
		return domain.ViewState{}
	}

	if len(state.Filter) > constants.MaxPatternLength {
		state.Filter = ""
	}
	return state
}

// Save writes the view state, creating directories as needed.
func Save(path string, state domain.ViewState) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	data, err := toml.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(constants.DefaultPrefsFile)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
