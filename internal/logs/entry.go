package logs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charliek/catview/internal/domain"
)

// Entry is an outbound message stamped with its publish order
type Entry struct {
	Seq       uint64
	Timestamp time.Time
	Message   domain.Message
}

type entryJSON struct {
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

// MarshalJSON embeds the message as its tagged envelope
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.Message == nil {
		return nil, fmt.Errorf("entry %d has no message", e.Seq)
	}
	msg, err := domain.EncodeMessage(e.Message)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entryJSON{Seq: e.Seq, Timestamp: e.Timestamp, Message: msg})
}

// UnmarshalJSON decodes an entry produced by MarshalJSON
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	msg, err := domain.DecodeMessage(raw.Message)
	if err != nil {
		return err
	}
	*e = Entry{Seq: raw.Seq, Timestamp: raw.Timestamp, Message: msg}
	return nil
}

// Stats describes the hub
type Stats struct {
	TotalEntries int    `json:"total_entries"`
	BufferSize   int    `json:"buffer_size"`
	Subscribers  int    `json:"subscribers"`
	LastSeq      uint64 `json:"last_seq"`
}
