package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validLevels = map[string]bool{
	"V": true, "D": true, "I": true, "W": true, "E": true, "F": true, "S": true,
}

var validBuffers = map[string]bool{
	"main": true, "system": true, "crash": true, "events": true, "radio": true, "all": true,
}

// Validate checks the configuration for errors
func Validate(config *Config) error {
	var errs []string

	// Validate API config
	if config.API.Port < 0 || config.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port: must be between 0 and 65535, got %d", config.API.Port))
	}

	if err := ValidateLevel(config.Stream.Level); err != nil {
		errs = append(errs, "stream."+err.Error())
	}
	if err := ValidateBuffer(config.Stream.Buffer); err != nil {
		errs = append(errs, "stream."+err.Error())
	}

	if config.View.MaxChars < 0 {
		errs = append(errs, fmt.Sprintf("view.max_chars: must be positive, got %d", config.View.MaxChars))
	}
	if config.View.PidInterval != "" {
		d, err := time.ParseDuration(config.View.PidInterval)
		if err != nil {
			errs = append(errs, fmt.Sprintf("view.pid_interval: %v", err))
		} else if d < constants.PidMapMinInterval {
			errs = append(errs, fmt.Sprintf("view.pid_interval: must be at least %s", constants.PidMapMinInterval))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// ValidateLevel checks a logcat priority letter
func ValidateLevel(level string) error {
	if !validLevels[strings.ToUpper(level)] {
		return &ValidationError{Field: "level", Message: fmt.Sprintf("unknown level %q", level)}
	}
	return nil
}

// ValidateBuffer checks a logcat buffer name
func ValidateBuffer(buffer string) error {
	if !validBuffers[strings.ToLower(buffer)] {
		return &ValidationError{Field: "buffer", Message: fmt.Sprintf("unknown buffer %q", buffer)}
	}
	return nil
}
