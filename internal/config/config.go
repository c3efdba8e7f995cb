package config

import (
	"fmt"
	"os"
	"time"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level catview configuration
type Config struct {
	API       APIConfig    `yaml:"api"`
	ADB       ADBConfig    `yaml:"adb"`
	Stream    StreamConfig `yaml:"stream"`
	View      ViewConfig   `yaml:"view"`
	EnvFile   string       `yaml:"env_file"`
	StateFile string       `yaml:"state_file"`
	PrefsFile string       `yaml:"prefs_file"`
	ExportDir string       `yaml:"export_dir"`
	Debug     bool         `yaml:"debug"`
}

// APIConfig defines the HTTP API configuration
type APIConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	Auth *bool  `yaml:"auth,omitempty"` // nil = auto-determine based on host
}

// ADBConfig locates the device bridge and the optional wrapper script
type ADBConfig struct {
	Path   string            `yaml:"path"`
	Script string            `yaml:"script"`
	Env    map[string]string `yaml:"env"`
}

// StreamConfig holds stream defaults used when nothing was saved
type StreamConfig struct {
	Serial    string `yaml:"serial"`
	Package   string `yaml:"pkg"`
	Tag       string `yaml:"tag"`
	Level     string `yaml:"level"`
	Buffer    string `yaml:"buffer"`
	Save      bool   `yaml:"save"`
	AutoStart *bool  `yaml:"auto_start,omitempty"`
}

// ViewConfig tunes the viewer
type ViewConfig struct {
	MaxChars      int    `yaml:"max_chars"`
	Wrap          bool   `yaml:"wrap"`
	CaseSensitive bool   `yaml:"case_sensitive"`
	PidInterval   string `yaml:"pid_interval"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	// First check if file exists
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("checking config file: %w", err)
	}

	// Check file permissions for security
	if err := CheckFilePermissions(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.API.Port == 0 {
		cfg.API.Port = constants.DefaultAPIPort
	}
	if cfg.API.Host == "" {
		cfg.API.Host = constants.DefaultAPIHost
	}
	if cfg.ADB.Path == "" {
		cfg.ADB.Path = constants.DefaultADBPath
	}
	if cfg.Stream.Tag == "" {
		cfg.Stream.Tag = constants.DefaultTag
	}
	if cfg.Stream.Level == "" {
		cfg.Stream.Level = constants.DefaultLevel
	}
	if cfg.Stream.Buffer == "" {
		cfg.Stream.Buffer = constants.DefaultBuffer
	}
	if cfg.View.MaxChars == 0 {
		cfg.View.MaxChars = constants.MaxBacklogChars
	}
	if cfg.StateFile == "" {
		cfg.StateFile = constants.DefaultStateFile
	}
	if cfg.PrefsFile == "" {
		cfg.PrefsFile = constants.DefaultPrefsFile
	}
}

// AutoStartEnabled reports whether a stream starts once the viewer is ready
func (c *Config) AutoStartEnabled() bool {
	if c.Stream.AutoStart == nil {
		return true
	}
	return *c.Stream.AutoStart
}

// PidRefreshInterval returns the pid map polling interval
func (c *Config) PidRefreshInterval() time.Duration {
	if c.View.PidInterval == "" {
		return constants.PidMapRefreshInterval
	}
	d, err := time.ParseDuration(c.View.PidInterval)
	if err != nil {
		return constants.PidMapRefreshInterval
	}
	return d
}

// DefaultLastConfig converts stream defaults into the persisted form
func (c *Config) DefaultLastConfig() domain.LastConfig {
	return domain.LastConfig{
		Serial: c.Stream.Serial,
		Pkg:    c.Stream.Package,
		Tag:    c.Stream.Tag,
		Level:  c.Stream.Level,
		Buffer: c.Stream.Buffer,
		Save:   c.Stream.Save,
	}.WithDefaults()
}
