package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// envelope is the JSON frame used by the envelope codec.
type envelope struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// codec converts between frames and (channel, payload) pairs.
type codec struct {
	framing        string
	defaultChannel string
}

// encode builds the outgoing frame. Payloads that are valid JSON are
// embedded as-is; anything else travels as a JSON string.
func (c codec) encode(channel string, payload []byte) ([]byte, error) {
	if c.framing == config.FramingRaw {
		return payload, nil
	}

	var raw json.RawMessage
	if len(payload) > 0 && json.Valid(payload) {
		raw = payload
	} else {
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return nil, err
		}
		raw = quoted
	}
	return json.Marshal(envelope{Channel: channel, Payload: raw})
}

// decode splits an incoming frame. A JSON string payload is unquoted so
// that encode and decode are symmetric.
func (c codec) decode(frame []byte) (string, []byte, error) {
	if c.framing == config.FramingRaw {
		return c.defaultChannel, frame, nil
	}

	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, fmt.Errorf("%w: invalid envelope: %w", ErrProtocol, err)
	}
	if env.Channel == "" {
		return "", nil, fmt.Errorf("%w: envelope without channel", ErrProtocol)
	}

	payload := bytes.TrimSpace(env.Payload)
	if len(payload) > 0 && payload[0] == '"' {
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return "", nil, fmt.Errorf("%w: invalid payload string: %w", ErrProtocol, err)
		}
		return env.Channel, []byte(s), nil
	}
	if bytes.Equal(payload, []byte("null")) {
		payload = nil
	}
	return env.Channel, payload, nil
}
