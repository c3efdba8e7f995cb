package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/logs"
)

type fakeBackend struct {
	hub *logs.Manager

	mu        sync.Mutex
	handled   []domain.Message
	err       error
	resumeErr error
	resumed   int
	stream    domain.StreamInfo
	devices   []domain.DeviceRecord
	pids      map[string]string
	selected  string
}

func (b *fakeBackend) Handle(ctx context.Context, msg domain.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handled = append(b.handled, msg)
	return b.err
}

func (b *fakeBackend) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resumed++
	return b.resumeErr
}

func (b *fakeBackend) Hub() *logs.Manager             { return b.hub }
func (b *fakeBackend) Stream() domain.StreamInfo      { return b.stream }
func (b *fakeBackend) Devices() []domain.DeviceRecord { return b.devices }
func (b *fakeBackend) Pids() map[string]string        { return b.pids }
func (b *fakeBackend) Selected() string               { return b.selected }

func (b *fakeBackend) messages() []domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Message(nil), b.handled...)
}

func (b *fakeBackend) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func setupTestServer(t *testing.T, cfg ServerConfig) (*Server, *fakeBackend) {
	t.Helper()
	hub := logs.NewManager(logs.ManagerConfig{BufferSize: 100, SubscriptionBuffer: 100})
	t.Cleanup(hub.Close)

	backend := &fakeBackend{hub: hub}
	server := NewServer(cfg, NewHandlers(backend, "/usr/bin/adb", nil))
	return server, backend
}

func do(t *testing.T, server *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestGetStatus(t *testing.T) {
	server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})
	backend.stream = domain.StreamInfo{State: domain.StreamStateRunning}
	backend.selected = "emulator-5554"
	backend.hub.Publish(domain.StatusMsg{Text: "hello"})

	w := do(t, server, "GET", "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, "running", resp.Stream)
	assert.Equal(t, "emulator-5554", resp.Selected)
	assert.Equal(t, "/usr/bin/adb", resp.ADBPath)
	assert.Equal(t, "v1", resp.APIVersion)
	assert.Equal(t, uint64(1), resp.Hub.LastSeq)
}

func TestGetMessages(t *testing.T) {
	server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})
	for i := 0; i < 5; i++ {
		backend.hub.Publish(domain.AppendMsg{Text: fmt.Sprintf("line %d\n", i)})
	}
	backend.hub.Publish(domain.StatusMsg{Text: "started"})

	t.Run("all", func(t *testing.T) {
		w := do(t, server, "GET", "/api/v1/messages", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp MessagesResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 6, resp.TotalCount)
		require.Len(t, resp.Messages, 6)
		assert.Equal(t, domain.StatusMsg{Text: "started"}, resp.Messages[5].Message)
	})

	t.Run("kinds and limit", func(t *testing.T) {
		w := do(t, server, "GET", "/api/v1/messages?kinds=append&limit=2", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp MessagesResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 5, resp.TotalCount)
		assert.Equal(t, 2, resp.FilteredCount)
		require.Len(t, resp.Messages, 2)
		assert.Equal(t, domain.AppendMsg{Text: "line 4\n"}, resp.Messages[1].Message)
	})

	t.Run("after", func(t *testing.T) {
		w := do(t, server, "GET", "/api/v1/messages?after=4", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp MessagesResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Len(t, resp.Messages, 2)
		assert.Equal(t, uint64(5), resp.Messages[0].Seq)
	})

	t.Run("unknown kind", func(t *testing.T) {
		w := do(t, server, "GET", "/api/v1/messages?kinds=bogus", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, domain.ErrCodeInvalidRequest, decodeError(t, w).Code)
	})

	t.Run("invalid after", func(t *testing.T) {
		w := do(t, server, "GET", "/api/v1/messages?after=-1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPostMessage(t *testing.T) {
	t.Run("dispatches the decoded message", func(t *testing.T) {
		server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})

		w := do(t, server, "POST", "/api/v1/messages", `{"type":"start","serial":"abc","pkg":"com.example","level":"I"}`)
		require.Equal(t, http.StatusOK, w.Code)

		msgs := backend.messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, domain.StartMsg{Serial: "abc", Pkg: "com.example", Level: "I"}, msgs[0])
	})

	t.Run("unknown type", func(t *testing.T) {
		server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})

		w := do(t, server, "POST", "/api/v1/messages", `{"type":"launchRockets"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, domain.ErrCodeUnknownMessage, decodeError(t, w).Code)
		assert.Empty(t, backend.messages())
	})

	t.Run("malformed body", func(t *testing.T) {
		server, _ := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})

		w := do(t, server, "POST", "/api/v1/messages", `{"type":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, domain.ErrCodeInvalidRequest, decodeError(t, w).Code)
	})

	t.Run("domain errors map to codes", func(t *testing.T) {
		tests := []struct {
			err    error
			status int
			code   string
		}{
			{domain.ErrStreamAlreadyRunning, http.StatusConflict, domain.ErrCodeStreamAlreadyRunning},
			{domain.ErrNoDeviceSelected, http.StatusConflict, domain.ErrCodeNoDeviceSelected},
			{domain.ErrDeviceUnauthorized, http.StatusConflict, domain.ErrCodeDeviceUnauthorized},
			{fmt.Errorf("%w: exit status 1", domain.ErrSpawnFailed), http.StatusBadGateway, domain.ErrCodeSpawnFailed},
			{fmt.Errorf("%w: no such file", domain.ErrImportFailed), http.StatusUnprocessableEntity, domain.ErrCodeImportFailed},
			{fmt.Errorf("%w: store is outbound only", domain.ErrUnknownMessage), http.StatusBadRequest, domain.ErrCodeUnknownMessage},
		}

		for _, tt := range tests {
			t.Run(tt.code, func(t *testing.T) {
				server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})
				backend.setErr(tt.err)

				w := do(t, server, "POST", "/api/v1/messages", `{"type":"clear"}`)
				assert.Equal(t, tt.status, w.Code)
				resp := decodeError(t, w)
				assert.Equal(t, tt.code, resp.Code)
				assert.Equal(t, tt.err.Error(), resp.Error)
			})
		}
	})

	t.Run("internal errors are sanitized", func(t *testing.T) {
		server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})
		backend.setErr(errors.New("open /secret/path: permission denied"))

		w := do(t, server, "POST", "/api/v1/messages", `{"type":"clear"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "INTERNAL_ERROR", resp.Code)
		assert.NotContains(t, resp.Error, "secret")
	})
}

func TestGetDevices(t *testing.T) {
	server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})
	backend.devices = []domain.DeviceRecord{
		{Serial: "emulator-5554", Model: "Pixel_7", Status: domain.DeviceStatusOnline},
		{Serial: "R58M", Status: domain.DeviceStatusUnauthorized},
	}
	backend.selected = "emulator-5554"

	w := do(t, server, "GET", "/api/v1/devices", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp DevicesResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "emulator-5554", resp.Selected)
	require.Len(t, resp.Devices, 2)
	assert.Equal(t, "Pixel_7 (emulator-5554)", resp.Devices[0].Label)
	assert.True(t, resp.Devices[0].Online)
	assert.Equal(t, "unauthorized", resp.Devices[1].Status)
	assert.False(t, resp.Devices[1].Online)
	assert.Empty(t, backend.messages())

	t.Run("refresh", func(t *testing.T) {
		w := do(t, server, "GET", "/api/v1/devices?refresh=true", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []domain.Message{domain.RefreshDevicesMsg{}}, backend.messages())
	})
}

func TestGetPids(t *testing.T) {
	server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})

	w := do(t, server, "GET", "/api/v1/pids", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"pids":{}}`, w.Body.String())

	backend.pids = map[string]string{"1234": "com.example.app"}
	w = do(t, server, "GET", "/api/v1/pids", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"pids":{"1234":"com.example.app"}}`, w.Body.String())
}

func TestGetStream(t *testing.T) {
	server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})
	started := time.Now().Add(-90 * time.Second)
	backend.stream = domain.StreamInfo{
		State:   domain.StreamStatePaused,
		PID:     4242,
		Visible: true,
		Session: &domain.Session{ID: "s1", Serial: "abc", Package: "com.example", Tag: "*", Level: "D", Buffer: "main", Started: started},
	}

	w := do(t, server, "GET", "/api/v1/stream", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StreamResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "paused", resp.State)
	assert.Equal(t, 4242, resp.PID)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "com.example", resp.Package)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, int64(90))
}

func TestStreamControl(t *testing.T) {
	t.Run("start uses the selected device", func(t *testing.T) {
		server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})
		backend.selected = "abc"

		w := do(t, server, "POST", "/api/v1/stream/start", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []domain.Message{domain.StartMsg{Serial: "abc"}}, backend.messages())
	})

	t.Run("start with a body", func(t *testing.T) {
		server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})
		backend.selected = "abc"

		w := do(t, server, "POST", "/api/v1/stream/start", `{"serial":"xyz","tag":"ActivityManager","level":"W"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []domain.Message{domain.StartMsg{Serial: "xyz", Tag: "ActivityManager", Level: "W"}}, backend.messages())
	})

	t.Run("start with an invalid body", func(t *testing.T) {
		server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})

		w := do(t, server, "POST", "/api/v1/stream/start", `{"serial":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, backend.messages())
	})

	t.Run("stop pause restart", func(t *testing.T) {
		server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})

		for _, path := range []string{"stop", "pause", "restart?serial=abc"} {
			w := do(t, server, "POST", "/api/v1/stream/"+path, "")
			require.Equal(t, http.StatusOK, w.Code, path)
		}
		assert.Equal(t, []domain.Message{
			domain.StopMsg{},
			domain.PauseMsg{},
			domain.RestartMsg{Serial: "abc"},
		}, backend.messages())
	})

	t.Run("resume", func(t *testing.T) {
		server, backend := setupTestServer(t, ServerConfig{Host: "127.0.0.1"})

		w := do(t, server, "POST", "/api/v1/stream/resume", "")
		require.Equal(t, http.StatusOK, w.Code)

		backend.resumeErr = domain.ErrStreamNotRunning
		w = do(t, server, "POST", "/api/v1/stream/resume", "")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, domain.ErrCodeStreamNotRunning, decodeError(t, w).Code)
		assert.Equal(t, 2, backend.resumed)
	})
}

func TestShutdown(t *testing.T) {
	hub := logs.NewManager(logs.ManagerConfig{BufferSize: 10})
	defer hub.Close()

	called := make(chan struct{})
	handlers := NewHandlers(&fakeBackend{hub: hub}, "", func() { close(called) })
	server := NewServer(ServerConfig{Host: "127.0.0.1"}, handlers)

	w := do(t, server, "POST", "/api/v1/shutdown", "")
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown function was not called")
	}
}
