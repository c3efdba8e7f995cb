package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/logs"
)

// maxBodyBytes bounds inbound message bodies; exports carry the backlog
const maxBodyBytes = 4 * constants.MaxBacklogChars

// Backend is the host side the handlers drive
type Backend interface {
	Handle(ctx context.Context, msg domain.Message) error
	Resume() error
	Hub() *logs.Manager
	Stream() domain.StreamInfo
	Devices() []domain.DeviceRecord
	Pids() map[string]string
	Selected() string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	backend    Backend
	adbPath    string
	started    time.Time
	now        func() time.Time
	shutdownFn func()
}

// NewHandlers creates new HTTP handlers
func NewHandlers(backend Backend, adbPath string, shutdownFn func()) *Handlers {
	return &Handlers{
		backend:    backend,
		adbPath:    adbPath,
		started:    time.Now(),
		now:        time.Now,
		shutdownFn: shutdownFn,
	}
}

// GetStatus handles GET /api/v1/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:        "running",
		UptimeSeconds: int64(h.now().Sub(h.started).Seconds()),
		ADBPath:       h.adbPath,
		Stream:        h.backend.Stream().State.String(),
		Selected:      h.backend.Selected(),
		Hub:           h.backend.Hub().Stats(),
		APIVersion:    "v1",
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetMessages handles GET /api/v1/messages
func (h *Handlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  domain.ErrCodeInvalidRequest,
		})
		return
	}

	// Limit (default 100, capped to prevent huge responses)
	limit := constants.DefaultLogLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 {
			limit = min(l, constants.MaxLogLines)
		}
	}

	entries, total := h.backend.Hub().Query(filter, limit)
	if entries == nil {
		entries = []logs.Entry{}
	}

	writeJSON(w, http.StatusOK, MessagesResponse{
		Messages:      entries,
		FilteredCount: len(entries),
		TotalCount:    total,
	})
}

// PostMessage handles POST /api/v1/messages with one tagged envelope
func (h *Handlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("reading body: %v", err),
			Code:  domain.ErrCodeInvalidRequest,
		})
		return
	}

	msg, err := domain.DecodeMessage(data)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownMessage) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  domain.ErrCodeInvalidRequest,
		})
		return
	}

	h.dispatch(w, r, msg)
}

// GetDevices handles GET /api/v1/devices
func (h *Handlers) GetDevices(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		if err := h.backend.Handle(r.Context(), domain.RefreshDevicesMsg{}); err != nil {
			writeError(w, err)
			return
		}
	}

	devices := h.backend.Devices()
	resp := DevicesResponse{
		Devices:  make([]DeviceResponse, len(devices)),
		Selected: h.backend.Selected(),
	}
	for i, d := range devices {
		resp.Devices[i] = ToDeviceResponse(d)
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetPids handles GET /api/v1/pids
func (h *Handlers) GetPids(w http.ResponseWriter, r *http.Request) {
	pids := h.backend.Pids()
	if pids == nil {
		pids = map[string]string{}
	}
	writeJSON(w, http.StatusOK, PidsResponse{Pids: pids})
}

// GetStream handles GET /api/v1/stream
func (h *Handlers) GetStream(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ToStreamResponse(h.backend.Stream(), h.now()))
}

// StartStream handles POST /api/v1/stream/start. The body is an optional
// start message without the type field; a blank serial uses the selected
// device.
func (h *Handlers) StartStream(w http.ResponseWriter, r *http.Request) {
	var msg domain.StartMsg
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&msg); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("invalid start request: %v", err),
				Code:  domain.ErrCodeInvalidRequest,
			})
			return
		}
	}
	if strings.TrimSpace(msg.Serial) == "" {
		msg.Serial = h.backend.Selected()
	}

	h.dispatch(w, r, msg)
}

// StopStream handles POST /api/v1/stream/stop
func (h *Handlers) StopStream(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, domain.StopMsg{})
}

// PauseStream handles POST /api/v1/stream/pause
func (h *Handlers) PauseStream(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, domain.PauseMsg{})
}

// ResumeStream handles POST /api/v1/stream/resume
func (h *Handlers) ResumeStream(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.Resume(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// RestartStream handles POST /api/v1/stream/restart
func (h *Handlers) RestartStream(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, domain.RestartMsg{Serial: r.URL.Query().Get("serial")})
}

// Shutdown handles POST /api/v1/shutdown
func (h *Handlers) Shutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})

	// Trigger shutdown asynchronously
	go func() {
		time.Sleep(100 * time.Millisecond) // Let response complete
		if h.shutdownFn != nil {
			h.shutdownFn()
		}
	}()
}

func (h *Handlers) dispatch(w http.ResponseWriter, r *http.Request, msg domain.Message) {
	if err := h.backend.Handle(r.Context(), msg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// parseFilter extracts the kinds and after parameters
func parseFilter(r *http.Request) (logs.Filter, error) {
	var filter logs.Filter

	kinds, err := logs.ParseKinds(r.URL.Query().Get("kinds"))
	if err != nil {
		return filter, err
	}
	filter.Kinds = kinds

	if s := r.URL.Query().Get("after"); s != "" {
		after, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid after: %q", s)
		}
		filter.After = after
	}

	return filter, nil
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("encoding JSON response")
	}
}

// errorStatus maps domain error codes to HTTP status codes
var errorStatus = map[string]int{
	domain.ErrCodeStreamAlreadyRunning: http.StatusConflict,
	domain.ErrCodeStreamNotRunning:     http.StatusConflict,
	domain.ErrCodeNoDeviceSelected:     http.StatusConflict,
	domain.ErrCodeDeviceNotFound:       http.StatusNotFound,
	domain.ErrCodeDeviceOffline:        http.StatusConflict,
	domain.ErrCodeDeviceUnauthorized:   http.StatusConflict,
	domain.ErrCodeReconnectTimeout:     http.StatusGatewayTimeout,
	domain.ErrCodeSpawnFailed:          http.StatusBadGateway,
	domain.ErrCodeInvalidPattern:       http.StatusBadRequest,
	domain.ErrCodeUnknownMessage:       http.StatusBadRequest,
	domain.ErrCodeImportFailed:         http.StatusUnprocessableEntity,
	domain.ErrCodeExportFailed:         http.StatusInternalServerError,
	domain.ErrCodeShutdownInProgress:   http.StatusServiceUnavailable,
}

// writeError writes an error response
func writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCode(err)
	status, ok := errorStatus[code]
	if !ok {
		// Unknown errors are logged and returned sanitized
		log.WithError(err).Error("internal error")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "an internal error occurred",
			Code:  code,
		})
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}
