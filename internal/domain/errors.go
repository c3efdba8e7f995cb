package domain

import "errors"

// Domain errors
var (
	ErrStreamAlreadyRunning = errors.New("stream already running")
	ErrStreamNotRunning     = errors.New("stream not running")
	ErrNoDeviceSelected     = errors.New("no device selected")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrDeviceOffline        = errors.New("device offline")
	ErrDeviceUnauthorized   = errors.New("device unauthorized")
	ErrReconnectTimeout     = errors.New("reconnect timed out")
	ErrSpawnFailed          = errors.New("failed to start process")
	ErrInvalidPattern       = errors.New("invalid filter pattern")
	ErrUnknownMessage       = errors.New("unknown message type")
	ErrImportFailed         = errors.New("import failed")
	ErrExportFailed         = errors.New("export failed")
	ErrShutdownInProgress   = errors.New("shutdown in progress")
	ErrConfigNotFound       = errors.New("config file not found")
	ErrInvalidConfig        = errors.New("invalid configuration")
)

// Error codes for API responses
const (
	ErrCodeStreamAlreadyRunning = "STREAM_ALREADY_RUNNING"
	ErrCodeStreamNotRunning     = "STREAM_NOT_RUNNING"
	ErrCodeNoDeviceSelected     = "NO_DEVICE_SELECTED"
	ErrCodeDeviceNotFound       = "DEVICE_NOT_FOUND"
	ErrCodeDeviceOffline        = "DEVICE_OFFLINE"
	ErrCodeDeviceUnauthorized   = "DEVICE_UNAUTHORIZED"
	ErrCodeReconnectTimeout     = "RECONNECT_TIMEOUT"
	ErrCodeSpawnFailed          = "SPAWN_FAILED"
	ErrCodeInvalidPattern       = "INVALID_PATTERN"
	ErrCodeUnknownMessage       = "UNKNOWN_MESSAGE"
	ErrCodeImportFailed         = "IMPORT_FAILED"
	ErrCodeExportFailed         = "EXPORT_FAILED"
	ErrCodeShutdownInProgress   = "SHUTDOWN_IN_PROGRESS"

	// API-only codes, no sentinel errors behind them
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeStreamingNotSupported = "STREAMING_NOT_SUPPORTED"
)

// ErrorCode returns the API error code for a domain error
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrStreamAlreadyRunning):
		return ErrCodeStreamAlreadyRunning
	case errors.Is(err, ErrStreamNotRunning):
		return ErrCodeStreamNotRunning
	case errors.Is(err, ErrNoDeviceSelected):
		return ErrCodeNoDeviceSelected
	case errors.Is(err, ErrDeviceNotFound):
		return ErrCodeDeviceNotFound
	case errors.Is(err, ErrDeviceOffline):
		return ErrCodeDeviceOffline
	case errors.Is(err, ErrDeviceUnauthorized):
		return ErrCodeDeviceUnauthorized
	case errors.Is(err, ErrReconnectTimeout):
		return ErrCodeReconnectTimeout
	case errors.Is(err, ErrSpawnFailed):
		return ErrCodeSpawnFailed
	case errors.Is(err, ErrInvalidPattern):
		return ErrCodeInvalidPattern
	case errors.Is(err, ErrUnknownMessage):
		return ErrCodeUnknownMessage
	case errors.Is(err, ErrImportFailed):
		return ErrCodeImportFailed
	case errors.Is(err, ErrExportFailed):
		return ErrCodeExportFailed
	case errors.Is(err, ErrShutdownInProgress):
		return ErrCodeShutdownInProgress
	default:
		return "INTERNAL_ERROR"
	}
}

// ErrorForCode returns the domain error behind an API error code, or nil
// when the code has no sentinel error
func ErrorForCode(code string) error {
	switch code {
	case ErrCodeStreamAlreadyRunning:
		return ErrStreamAlreadyRunning
	case ErrCodeStreamNotRunning:
		return ErrStreamNotRunning
	case ErrCodeNoDeviceSelected:
		return ErrNoDeviceSelected
	case ErrCodeDeviceNotFound:
		return ErrDeviceNotFound
	case ErrCodeDeviceOffline:
		return ErrDeviceOffline
	case ErrCodeDeviceUnauthorized:
		return ErrDeviceUnauthorized
	case ErrCodeReconnectTimeout:
		return ErrReconnectTimeout
	case ErrCodeSpawnFailed:
		return ErrSpawnFailed
	case ErrCodeInvalidPattern:
		return ErrInvalidPattern
	case ErrCodeUnknownMessage:
		return ErrUnknownMessage
	case ErrCodeImportFailed:
		return ErrImportFailed
	case ErrCodeExportFailed:
		return ErrExportFailed
	case ErrCodeShutdownInProgress:
		return ErrShutdownInProgress
	default:
		return nil
	}
}
