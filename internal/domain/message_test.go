package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMessage(t *testing.T) {
	t.Run("empty message has only type", func(t *testing.T) {
		data, err := EncodeMessage(PauseMsg{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"pause"}`, string(data))
	})

	t.Run("fields follow type", func(t *testing.T) {
		data, err := EncodeMessage(StatusMsg{Text: "stopped"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"status","text":"stopped"}`, string(data))
	})

	t.Run("devices keep default serial", func(t *testing.T) {
		data, err := EncodeMessage(DevicesMsg{
			Devices:       []DeviceRecord{{Serial: "ABC", Status: DeviceStatusOffline}},
			DefaultSerial: "ABC",
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"devices","devices":[{"serial":"ABC","status":"offline"}],"defaultSerial":"ABC"}`, string(data))
	})
}

func TestDecodeMessage(t *testing.T) {
	t.Run("start message", func(t *testing.T) {
		m, err := DecodeMessage([]byte(`{"type":"start","serial":"ABC123","pkg":"com.app","save":true}`))
		require.NoError(t, err)
		start, ok := m.(StartMsg)
		require.True(t, ok)
		assert.Equal(t, "ABC123", start.Serial)
		assert.Equal(t, "com.app", start.Pkg)
		assert.True(t, start.Save)
	})

	t.Run("pid miss", func(t *testing.T) {
		m, err := DecodeMessage([]byte(`{"type":"pidMiss","pid":4242}`))
		require.NoError(t, err)
		assert.Equal(t, PidMissMsg{Pid: 4242}, m)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := DecodeMessage([]byte(`{"type":"explode"}`))
		assert.ErrorIs(t, err, ErrUnknownMessage)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := DecodeMessage([]byte(`{"type":`))
		assert.Error(t, err)
	})

	t.Run("round trip", func(t *testing.T) {
		in := ExportLogsMsg{Text: "line 1\nline 2\n", Suggested: "out.txt"}
		data, err := EncodeMessage(in)
		require.NoError(t, err)
		out, err := DecodeMessage(data)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})
}

func TestStartMsg_Session(t *testing.T) {
	s := StartMsg{Serial: " ABC ", Tag: "  "}.Session()
	assert.Equal(t, "ABC", s.Serial)
	assert.Equal(t, "*", s.Tag)
	assert.Equal(t, "D", s.Level)
	assert.Equal(t, "main", s.Buffer)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" append ")
	require.NoError(t, err)
	assert.Equal(t, KindAppend, k)

	_, err = ParseKind("nope")
	assert.ErrorIs(t, err, ErrUnknownMessage)
}
