package api

import (
	"time"

	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/logs"
)

// ErrCodeUnauthorized is returned by the auth middleware
const ErrCodeUnauthorized = "UNAUTHORIZED"

// StatusResponse represents the response for GET /status
type StatusResponse struct {
	Status        string     `json:"status"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	ADBPath       string     `json:"adb_path,omitempty"`
	Stream        string     `json:"stream"`
	Selected      string     `json:"selected,omitempty"`
	Hub           logs.Stats `json:"hub"`
	APIVersion    string     `json:"api_version"`
}

// MessagesResponse represents the response for GET /messages
type MessagesResponse struct {
	Messages      []logs.Entry `json:"messages"`
	FilteredCount int          `json:"filtered_count"`
	TotalCount    int          `json:"total_count"`
}

// DevicesResponse represents the response for GET /devices
type DevicesResponse struct {
	Devices  []DeviceResponse `json:"devices"`
	Selected string           `json:"selected,omitempty"`
}

// DeviceResponse represents a single device in responses
type DeviceResponse struct {
	Serial string `json:"serial"`
	Model  string `json:"model,omitempty"`
	Status string `json:"status"`
	Label  string `json:"label"`
	Online bool   `json:"online"`
}

// StreamResponse represents the response for GET /stream
type StreamResponse struct {
	State         string `json:"state"`
	Visible       bool   `json:"visible"`
	PID           int    `json:"pid,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	Serial        string `json:"serial,omitempty"`
	Package       string `json:"pkg,omitempty"`
	Tag           string `json:"tag,omitempty"`
	Level         string `json:"level,omitempty"`
	Buffer        string `json:"buffer,omitempty"`
	StartedAt     string `json:"started_at,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds,omitempty"`
}

// PidsResponse represents the response for GET /pids
type PidsResponse struct {
	Pids map[string]string `json:"pids"`
}

// SuccessResponse represents a simple success response
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToDeviceResponse converts domain.DeviceRecord to DeviceResponse
func ToDeviceResponse(d domain.DeviceRecord) DeviceResponse {
	status := d.Status
	if status == "" {
		status = domain.DeviceStatusOnline
	}
	return DeviceResponse{
		Serial: d.Serial,
		Model:  d.Model,
		Status: status.String(),
		Label:  d.Label(),
		Online: d.Status.IsOnline(),
	}
}

// ToStreamResponse converts domain.StreamInfo to StreamResponse
func ToStreamResponse(info domain.StreamInfo, now time.Time) StreamResponse {
	resp := StreamResponse{
		State:   info.State.String(),
		Visible: info.Visible,
		PID:     info.PID,
	}
	if s := info.Session; s != nil {
		resp.SessionID = s.ID
		resp.Serial = s.Serial
		resp.Package = s.Package
		resp.Tag = s.Tag
		resp.Level = s.Level
		resp.Buffer = s.Buffer
		if !s.Started.IsZero() {
			resp.StartedAt = s.Started.Format(time.RFC3339)
			resp.UptimeSeconds = int64(now.Sub(s.Started).Seconds())
		}
	}
	return resp
}
