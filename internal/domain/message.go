package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies a message on the viewer transport
type Kind string

// Message kinds. Outbound kinds travel from the host to viewers, inbound
// kinds from viewers to the host.
const (
	KindReady          Kind = "ready"
	KindStatus         Kind = "status"
	KindAppend         Kind = "append"
	KindDevices        Kind = "devices"
	KindConfig         Kind = "config"
	KindDebug          Kind = "debug"
	KindVisible        Kind = "visible"
	KindHidden         Kind = "hidden"
	KindHistoryDump    Kind = "historyDump"
	KindPidMap         Kind = "pidMap"
	KindClear          Kind = "clear"
	KindRefreshDevices Kind = "refreshDevices"
	KindSelectDevice   Kind = "selectDevice"
	KindStart          Kind = "start"
	KindPause          Kind = "pause"
	KindStop           Kind = "stop"
	KindRestart        Kind = "restart"
	KindExportLogs     Kind = "exportLogs"
	KindImportLogs     Kind = "importLogs"
	KindImportMode     Kind = "importMode"
	KindImportDump     Kind = "importDump"
	KindRequestHistory Kind = "requestHistory"
	KindPidMiss        Kind = "pidMiss"
)

// Message is implemented by every transport message
type Message interface {
	Kind() Kind
}

type (
	ReadyMsg  struct{}
	StatusMsg struct {
		Text string `json:"text"`
	}
	AppendMsg struct {
		Text string `json:"text"`
	}
	DevicesMsg struct {
		Devices       []DeviceRecord `json:"devices"`
		DefaultSerial string         `json:"defaultSerial,omitempty"`
	}
	ConfigMsg struct {
		Config LastConfig `json:"config"`
	}
	DebugMsg struct {
		Enabled bool `json:"enabled"`
	}
	VisibleMsg     struct{}
	HiddenMsg      struct{}
	HistoryDumpMsg struct {
		Text string `json:"text"`
	}
	PidMapMsg struct {
		Map map[string]string `json:"map"`
	}
	ClearMsg          struct{}
	RefreshDevicesMsg struct{}
	SelectDeviceMsg   struct {
		Serial string `json:"serial"`
	}
	StartMsg struct {
		Serial string `json:"serial"`
		Pkg    string `json:"pkg,omitempty"`
		Tag    string `json:"tag,omitempty"`
		Level  string `json:"level,omitempty"`
		Buffer string `json:"buffer,omitempty"`
		Save   bool   `json:"save,omitempty"`
		Since  string `json:"since,omitempty"`
	}
	PauseMsg   struct{}
	StopMsg    struct{}
	RestartMsg struct {
		Serial string `json:"serial,omitempty"`
	}
	ExportLogsMsg struct {
		Text      string `json:"text"`
		Suggested string `json:"suggested,omitempty"`
	}
	ImportLogsMsg struct {
		Path string `json:"path"`
	}
	ImportModeMsg struct {
		Name string `json:"name"`
	}
	ImportDumpMsg struct {
		Text string `json:"text"`
	}
	RequestHistoryMsg struct {
		Serial string `json:"serial"`
	}
	PidMissMsg struct {
		Pid int `json:"pid"`
	}
)

func (ReadyMsg) Kind() Kind          { return KindReady }
func (StatusMsg) Kind() Kind         { return KindStatus }
func (AppendMsg) Kind() Kind         { return KindAppend }
func (DevicesMsg) Kind() Kind        { return KindDevices }
func (ConfigMsg) Kind() Kind         { return KindConfig }
func (DebugMsg) Kind() Kind          { return KindDebug }
func (VisibleMsg) Kind() Kind        { return KindVisible }
func (HiddenMsg) Kind() Kind         { return KindHidden }
func (HistoryDumpMsg) Kind() Kind    { return KindHistoryDump }
func (PidMapMsg) Kind() Kind         { return KindPidMap }
func (ClearMsg) Kind() Kind          { return KindClear }
func (RefreshDevicesMsg) Kind() Kind { return KindRefreshDevices }
func (SelectDeviceMsg) Kind() Kind   { return KindSelectDevice }
func (StartMsg) Kind() Kind          { return KindStart }
func (PauseMsg) Kind() Kind          { return KindPause }
func (StopMsg) Kind() Kind           { return KindStop }
func (RestartMsg) Kind() Kind        { return KindRestart }
func (ExportLogsMsg) Kind() Kind     { return KindExportLogs }
func (ImportLogsMsg) Kind() Kind     { return KindImportLogs }
func (ImportModeMsg) Kind() Kind     { return KindImportMode }
func (ImportDumpMsg) Kind() Kind     { return KindImportDump }
func (RequestHistoryMsg) Kind() Kind { return KindRequestHistory }
func (PidMissMsg) Kind() Kind        { return KindPidMiss }

// Session converts a start request into a session with defaults applied
func (m StartMsg) Session() Session {
	return Session{
		Serial:  m.Serial,
		Package: m.Pkg,
		Tag:     m.Tag,
		Level:   m.Level,
		Buffer:  m.Buffer,
		Save:    m.Save,
		Since:   m.Since,
	}.WithDefaults()
}

var decoders = map[Kind]func([]byte) (Message, error){
	KindReady:          decodeAs[ReadyMsg],
	KindStatus:         decodeAs[StatusMsg],
	KindAppend:         decodeAs[AppendMsg],
	KindDevices:        decodeAs[DevicesMsg],
	KindConfig:         decodeAs[ConfigMsg],
	KindDebug:          decodeAs[DebugMsg],
	KindVisible:        decodeAs[VisibleMsg],
	KindHidden:         decodeAs[HiddenMsg],
	KindHistoryDump:    decodeAs[HistoryDumpMsg],
	KindPidMap:         decodeAs[PidMapMsg],
	KindClear:          decodeAs[ClearMsg],
	KindRefreshDevices: decodeAs[RefreshDevicesMsg],
	KindSelectDevice:   decodeAs[SelectDeviceMsg],
	KindStart:          decodeAs[StartMsg],
	KindPause:          decodeAs[PauseMsg],
	KindStop:           decodeAs[StopMsg],
	KindRestart:        decodeAs[RestartMsg],
	KindExportLogs:     decodeAs[ExportLogsMsg],
	KindImportLogs:     decodeAs[ImportLogsMsg],
	KindImportMode:     decodeAs[ImportModeMsg],
	KindImportDump:     decodeAs[ImportDumpMsg],
	KindRequestHistory: decodeAs[RequestHistoryMsg],
	KindPidMiss:        decodeAs[PidMissMsg],
}

func decodeAs[T Message](data []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeMessage encodes m as a JSON object with a "type" discriminator
func EncodeMessage(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	typ, err := json.Marshal(m.Kind())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if rest := bytes.TrimSpace(body[1:]); len(rest) > 1 {
		buf.WriteByte(',')
		buf.Write(rest)
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// DecodeMessage decodes a JSON envelope produced by EncodeMessage
func DecodeMessage(data []byte) (Message, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	decode, ok := decoders[head.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, head.Type)
	}
	m, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s message: %w", head.Type, err)
	}
	return m, nil
}

// ParseKind validates a kind name
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(s))
	if _, ok := decoders[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMessage, s)
	}
	return k, nil
}
