package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/charliek/catview/internal/domain"
)

func TestViewer_AppendAndConfig(t *testing.T) {
	f := newEngineFixture(0)
	v := NewViewer(f.engine)

	v.Apply(domain.ConfigMsg{Config: domain.LastConfig{Serial: "ABC", Pkg: "com.session"}})
	v.Apply(domain.AppendMsg{Text: "10-01 10:00:00.000 42 42 I Tag: message\n"})
	f.frames.run()

	assert.Equal(t, "ABC", v.Config().Serial)
	assert.Contains(t, f.surface.lines[0], "<com.session>")
	assert.Equal(t, []domain.Message{domain.PidMissMsg{Pid: 42}}, v.PidMisses())
	assert.Nil(t, v.PidMisses())
}

func TestViewer_ImportModeIgnoresLiveOutput(t *testing.T) {
	f := newEngineFixture(0)
	v := NewViewer(f.engine)

	v.Apply(domain.AppendMsg{Text: "live\n"})
	f.frames.run()

	v.Apply(domain.ImportModeMsg{Name: "saved.txt"})
	v.Apply(domain.ImportDumpMsg{Text: "imported 1\nimported 2\n"})
	v.Apply(domain.AppendMsg{Text: "late live\n"})
	f.frames.run()

	assert.True(t, v.Importing())
	assert.Equal(t, "saved.txt", v.ImportName())
	assert.Equal(t, []string{"imported 1", "imported 2"}, f.surface.lines)

	v.Apply(domain.StatusMsg{Text: "starting: adb -s ABC logcat"})
	assert.False(t, v.Importing())
	v.Apply(domain.AppendMsg{Text: "live again\n"})
	f.frames.run()
	assert.Equal(t, "imported 1\nimported 2\nlive again\n", f.engine.ExportText())
}

func TestViewer_RestartRequestsDeviceRefresh(t *testing.T) {
	v := NewViewer(newEngineFixture(0).engine)

	assert.Empty(t, v.Apply(domain.StatusMsg{Text: "restarting logcat"}))
	assert.Equal(t, []domain.Message{domain.RefreshDevicesMsg{}}, v.Apply(domain.StatusMsg{Text: "restarted"}))
	assert.Equal(t, "restarted", v.Status())
}

func TestViewer_DevicesHistoryDebug(t *testing.T) {
	f := newEngineFixture(0)
	v := NewViewer(f.engine)

	v.Apply(domain.DevicesMsg{
		Devices:       []domain.DeviceRecord{{Serial: "A", Status: domain.DeviceStatusOnline}},
		DefaultSerial: "A",
	})
	devices, def := v.Devices()
	assert.Len(t, devices, 1)
	assert.Equal(t, "A", def)

	v.Apply(domain.DebugMsg{Enabled: true})
	assert.True(t, v.Debug())

	assert.False(t, v.HistoryLoaded())
	v.Apply(domain.HistoryDumpMsg{Text: "h1\nh2"})
	f.frames.run()
	assert.True(t, v.HistoryLoaded())
	assert.Equal(t, []string{"h1", "h2"}, f.surface.lines)
}
