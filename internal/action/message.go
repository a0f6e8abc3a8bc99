package action

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Message is a parsed inbound action request. It is immutable.
type Message struct {
	connID uuid.UUID
	action string
	raw    string
}

// ParseMessage parses raw as an action request received on connID.
//
// The payload must be a JSON object whose "action" field is a non-empty
// string. Failures wrap ErrInvalidMessage.
func ParseMessage(connID uuid.UUID, raw string) (*Message, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidMessage)
	}

	root := gjson.Parse(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: payload is not an object", ErrInvalidMessage)
	}

	name := root.Get("action")
	switch {
	case !name.Exists():
		return nil, fmt.Errorf("%w: missing action", ErrInvalidMessage)
	case name.Type != gjson.String:
		return nil, fmt.Errorf("%w: action must be a string", ErrInvalidMessage)
	case name.Str == "":
		return nil, fmt.Errorf("%w: empty action", ErrInvalidMessage)
	}

	return &Message{connID: connID, action: name.Str, raw: raw}, nil
}

// ConnectionID returns the connection the message arrived on.
func (m *Message) ConnectionID() uuid.UUID { return m.connID }

// Action returns the action name.
func (m *Message) Action() string { return m.action }

// Raw returns the full inbound JSON text.
func (m *Message) Raw() string { return m.raw }

// Field returns the value at a gjson path, e.g. "speed" or "target.port".
func (m *Message) Field(path string) gjson.Result {
	return gjson.Get(m.raw, path)
}

// Has reports whether path is present in the payload.
func (m *Message) Has(path string) bool {
	return m.Field(path).Exists()
}

// String returns the field at path as a string, or "" when absent.
func (m *Message) String(path string) string {
	return m.Field(path).String()
}

// Int returns the field at path as an integer, or 0 when absent.
func (m *Message) Int(path string) int64 {
	return m.Field(path).Int()
}

// Bool returns the field at path as a boolean, or false when absent.
func (m *Message) Bool(path string) bool {
	return m.Field(path).Bool()
}
