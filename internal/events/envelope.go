package events

import (
	"encoding/json"
	"time"
)

type Envelope struct {
	EventType  string          `json:"event_type"`
	Channel    string          `json:"channel,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, channel string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventType:  eventType,
		Channel:    channel,
		OccurredAt: time.Now().UTC(),
		Payload:    data,
	}, nil
}

func (e Envelope) Encode() []byte {
	data, _ := json.Marshal(e)
	return data
}
