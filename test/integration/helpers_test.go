package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charliek/catview/internal/api"
	"github.com/charliek/catview/internal/domain"
)

const (
	testAPIPort = 15577
	testAPIAddr = "http://127.0.0.1:15577"
)

// fakeADB answers the adb invocations catview makes with one device,
// one app process and an endless trickle of log lines
const fakeADB = `#!/bin/sh
if [ "$1" = "-s" ]; then shift 2; fi
case "$1" in
  devices)
    printf 'List of devices attached\nFAKE123        device product:x model:Pixel_7 device:x transport_id:1\n\n'
    ;;
  wait-for-device)
    exit 0
    ;;
  shell)
    case "$2" in
      pidof) echo 4242 ;;
      ps) printf 'USER PID PPID VSZ RSS WCHAN ADDR S NAME\nu0_a1 4242 1 0 0 0 0 S com.example.app\n' ;;
    esac
    ;;
  logcat)
    for a in "$@"; do
      if [ "$a" = "-d" ]; then
        echo "06-01 12:00:00.000  4242  4242 I Hist: old line"
        exit 0
      fi
    done
    while true; do
      echo "06-01 12:00:00.123  4242  4243 I FakeTag: hello from fake"
      sleep 0.2
    done
    ;;
esac
`

// buildBinary builds the catview binary and returns its path
func buildBinary(t *testing.T) string {
	t.Helper()

	// Get project root (two directories up from test/integration)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	projectRoot := filepath.Join(wd, "..", "..")

	binary := filepath.Join(t.TempDir(), "catview")

	cmd := exec.Command("go", "build", "-o", binary, "./cmd/catview")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to build binary: %v\n%s", err, output)
	}

	return binary
}

// writeWorkspace creates a directory holding a fake adb and a config that
// points at it
func writeWorkspace(t *testing.T, port int) (dir, cfgPath string) {
	t.Helper()

	dir = t.TempDir()
	adbPath := filepath.Join(dir, "adb")
	if err := os.WriteFile(adbPath, []byte(fakeADB), 0755); err != nil {
		t.Fatalf("failed to write fake adb: %v", err)
	}

	cfgPath = filepath.Join(dir, "catview.yaml")
	cfg := fmt.Sprintf(`api:
  port: %d
  host: 127.0.0.1
adb:
  path: %s
stream:
  auto_start: false
state_file: %s
prefs_file: %s
export_dir: %s
`, port, adbPath, filepath.Join(dir, "state.json"), filepath.Join(dir, "prefs.json"), dir)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return dir, cfgPath
}

// startCatview starts the catview binary with the given arguments
func startCatview(t *testing.T, binary, dir string, args ...string) *exec.Cmd {
	t.Helper()

	cmd := exec.Command(binary, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start catview: %v", err)
	}

	return cmd
}

// waitForAPI waits for the API to be ready
func waitForAPI(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(addr + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("API did not become ready within %v", timeout)
}

// stopCatview sends shutdown request to catview via API
func stopCatview(addr string) error {
	resp, err := http.Post(addr+"/api/v1/shutdown", "application/json", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// killCatview forcefully kills the catview process
func killCatview(cmd *exec.Cmd) {
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
		cmd.Wait()
	}
}

// postJSON posts body and returns the status code, decoding the response
// into v when it is not nil
func postJSON(t *testing.T, url string, body interface{}, v interface{}) int {
	t.Helper()

	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		requireNoError(t, err, "failed to encode request")
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	requireNoError(t, err, "request failed")
	defer resp.Body.Close()

	if v != nil {
		requireNoError(t, json.NewDecoder(resp.Body).Decode(v), "failed to decode response")
	}
	return resp.StatusCode
}

// getJSON decodes a GET response into v
func getJSON(t *testing.T, url string, v interface{}) {
	t.Helper()

	resp, err := http.Get(url)
	requireNoError(t, err, "request failed")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", url, resp.StatusCode)
	}
	requireNoError(t, json.NewDecoder(resp.Body).Decode(v), "failed to decode response")
}

// waitForText polls stored messages until one of the given kind contains
// text
func waitForText(t *testing.T, addr string, kind domain.Kind, text string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var resp api.MessagesResponse
		getJSON(t, addr+"/api/v1/messages?kinds="+string(kind)+"&limit=1000", &resp)
		for _, e := range resp.Messages {
			if strings.Contains(messageText(e.Message), text) {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("no %s message containing %q within %v", kind, text, timeout)
}

func messageText(msg domain.Message) string {
	switch m := msg.(type) {
	case domain.AppendMsg:
		return m.Text
	case domain.StatusMsg:
		return m.Text
	case domain.HistoryDumpMsg:
		return m.Text
	}
	return ""
}

// waitForStateFile waits until the state file names a port
func waitForStateFile(t *testing.T, dir string, timeout time.Duration) int {
	t.Helper()

	statePath := filepath.Join(dir, ".catview", "catview.state")
	var state struct {
		Port int `json:"port"`
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		// Retry on partial writes
		if data, err := os.ReadFile(statePath); err == nil {
			if json.Unmarshal(data, &state) == nil && state.Port != 0 {
				return state.Port
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("state file %s not written within %v", statePath, timeout)
	return 0
}

// requireNoError fails the test if err is not nil
func requireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// skipShort skips the test if -short flag is provided
func skipShort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}
