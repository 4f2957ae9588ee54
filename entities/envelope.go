package entities

import (
	"bytes"
	"encoding/json"
	"errors"

	"sensor-ingest/errs"
)

// Envelope is the queue message body. It lives for one delivery only.
type Envelope struct {
	SensorType string  `json:"sensor_type"`
	Data       Payload `json:"data"`
	ProducedAt string  `json:"produced_at"`
	MessageID  string  `json:"message_id"`
}

// DecodeEnvelope parses a message body. Any failure is a poison error: the
// body will never decode no matter how often it is redelivered.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errs.Poison("decode envelope", errors.New("empty body"))
	}
	if trimmed[0] != '{' {
		return nil, errs.Poison("decode envelope", errors.New("body is not a JSON object"))
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, errs.Poison("decode envelope", err)
	}
	return &env, nil
}
