package realtime

import (
	"encoding/json"
	"fmt"
)

// Envelope discriminator values.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
	TypeError    = "error"
)

// Envelope is the single wire frame. Which fields are populated depends on
// Type: requests carry ID/Method/Path/Body, responses carry ID/OK plus Data
// or Error, events carry Topic/Payload, and standalone errors carry Error
// only (used when no request context exists, e.g. a malformed inbound frame).
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Path    string          `json:"path,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses and validates an inbound frame. A frame that fails here must
// never reach the router; the hub answers it with a standalone error event.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid JSON: %w", err)
	}
	switch env.Type {
	case TypeRequest:
		if env.Method == "" {
			return Envelope{}, fmt.Errorf("request missing method")
		}
		if env.Path == "" {
			return Envelope{}, fmt.Errorf("request missing path")
		}
	case TypeResponse:
		if env.ID == "" {
			return Envelope{}, fmt.Errorf("response missing id")
		}
	case TypeEvent:
		if env.Topic == "" {
			return Envelope{}, fmt.Errorf("event missing topic")
		}
	case TypeError:
	case "":
		return Envelope{}, fmt.Errorf("missing type discriminator")
	default:
		return Envelope{}, fmt.Errorf("unknown type %q", env.Type)
	}
	return env, nil
}

func okResponse(id string, data json.RawMessage) Envelope {
	ok := true
	return Envelope{Type: TypeResponse, ID: id, OK: &ok, Data: data}
}

func errResponse(id, message string) Envelope {
	ok := false
	return Envelope{Type: TypeResponse, ID: id, OK: &ok, Error: message}
}

func errorEvent(message string) Envelope {
	return Envelope{Type: TypeError, Error: message}
}

func newEvent(topic string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	return Envelope{Type: TypeEvent, Topic: topic, Payload: raw}, nil
}
