package adb

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/catview/internal/domain"
)

// fakeRunner replies to commands keyed by their joined arguments
type fakeRunner struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{replies: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name+" "+key)
	return []byte(f.replies[key]), f.errs[key]
}

func TestParseDevices(t *testing.T) {
	out := "* daemon not running; starting now at tcp:5037\n" +
		"* daemon started successfully\n" +
		"List of devices attached\n" +
		"emulator-5554          device product:sdk_gphone64 model:sdk_gphone64_arm64 device:emu64a transport_id:1\r\n" +
		"\n" +
		"R58M123ABC             unauthorized usb:1-1 transport_id:2\n" +
		"192.168.1.5:5555       offline\n" +
		"weird                  bootloader\n"

	devices := ParseDevices(out)
	require.Len(t, devices, 4)
	assert.Equal(t, domain.DeviceRecord{Serial: "emulator-5554", Model: "sdk_gphone64_arm64", Status: domain.DeviceStatusOnline}, devices[0])
	assert.Equal(t, domain.DeviceStatusUnauthorized, devices[1].Status)
	assert.Empty(t, devices[1].Model)
	assert.Equal(t, domain.DeviceStatusOffline, devices[2].Status)
	assert.Equal(t, domain.DeviceStatusUnknown, devices[3].Status)
}

func TestParseDevices_Empty(t *testing.T) {
	assert.Empty(t, ParseDevices("List of devices attached\n\n"))
	assert.Empty(t, ParseDevices(""))
}

func TestBridge_Devices(t *testing.T) {
	r := newFakeRunner()
	r.replies["devices -l"] = "List of devices attached\nABC device model:Pixel_7\n"
	b := New("/opt/adb", r)

	devices, err := b.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Pixel_7", devices[0].Model)
	assert.Equal(t, []string{"/opt/adb devices -l"}, r.calls)
}

func TestBridge_DevicesError(t *testing.T) {
	r := newFakeRunner()
	r.errs["devices -l"] = errors.New("exec: not found")
	b := New("", r)

	_, err := b.Devices(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "adb", b.Path())
}

func TestBridge_ResolvePID(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		err     error
		want    string
		wantErr bool
	}{
		{"single pid", "4242\n", nil, "4242", false},
		{"multiple pids", "4242 4243\n", nil, "4242", false},
		{"not running", "", errors.New("exit status 1"), "", false},
		{"bridge error", "error: no devices/emulators found\n", errors.New("exit status 1"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeRunner()
			r.replies["-s ABC shell pidof com.app"] = tt.reply
			r.errs["-s ABC shell pidof com.app"] = tt.err

			pid, err := New("adb", r).ResolvePID(context.Background(), "ABC", "com.app")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, pid)
		})
	}
}

func TestBridge_DumpHistory(t *testing.T) {
	r := newFakeRunner()
	r.replies["-s ABC logcat -d -b all -v time -t 10000"] = "line\n"

	out, err := New("adb", r).DumpHistory(context.Background(), "ABC", 10000)
	require.NoError(t, err)
	assert.Equal(t, "line\n", out)
}

func TestBridge_PSWithoutSerial(t *testing.T) {
	r := newFakeRunner()
	_, _ = New("adb", r).PS(context.Background(), "", "-A", "-o", "PID,NAME")
	assert.Equal(t, []string{"adb shell ps -A -o PID,NAME"}, r.calls)
}

func TestBridge_WaitForDeviceCancelled(t *testing.T) {
	r := newFakeRunner()
	r.errs["-s ABC wait-for-device"] = errors.New("signal: killed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New("adb", r).WaitForDevice(ctx, "ABC")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBridge_WaitForDevice(t *testing.T) {
	r := newFakeRunner()
	assert.NoError(t, New("adb", r).WaitForDevice(context.Background(), "ABC"))
	assert.Equal(t, []string{"adb -s ABC wait-for-device"}, r.calls)
}
