package domain

import "strings"

// DeviceStatus is the state reported by the device bridge
type DeviceStatus string

const (
	DeviceStatusOnline       DeviceStatus = "device"
	DeviceStatusOffline      DeviceStatus = "offline"
	DeviceStatusUnauthorized DeviceStatus = "unauthorized"
	DeviceStatusUnknown      DeviceStatus = "unknown"
)

// String returns the string representation of DeviceStatus
func (s DeviceStatus) String() string {
	return string(s)
}

// ParseDeviceStatus maps bridge output to a status, unknown for anything else
func ParseDeviceStatus(s string) DeviceStatus {
	switch DeviceStatus(strings.ToLower(strings.TrimSpace(s))) {
	case DeviceStatusOnline:
		return DeviceStatusOnline
	case DeviceStatusOffline:
		return DeviceStatusOffline
	case DeviceStatusUnauthorized:
		return DeviceStatusUnauthorized
	default:
		return DeviceStatusUnknown
	}
}

// IsOnline reports whether a stream can start right away.
// An empty status counts as online.
func (s DeviceStatus) IsOnline() bool {
	return s == "" || s == DeviceStatusOnline
}

// DeviceRecord is a device seen by the tracker
type DeviceRecord struct {
	Serial string       `json:"serial"`
	Model  string       `json:"model,omitempty"`
	Status DeviceStatus `json:"status"`
}

// Label returns a display name for pickers
func (d DeviceRecord) Label() string {
	if d.Model == "" {
		return d.Serial
	}
	return d.Model + " (" + d.Serial + ")"
}
