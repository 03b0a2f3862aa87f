// Package protocol defines the application message format carried over mesh
// data channels: a JSON object whose "type" field selects the handlers.
package protocol

import (
	"encoding/json"
	"errors"
)

// ErrMalformed is returned for payloads that are not a JSON object with a
// non-empty string "type" field.
var ErrMalformed = errors.New("malformed message")

// Message is a decoded inbound application message.
type Message struct {
	From string          // remote peer id the message arrived from
	Type string          // value of the "type" field
	Body json.RawMessage // the complete JSON object, "type" included
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Body, v)
}

// header is the minimal shape every message must have.
type header struct {
	Type *string `json:"type"`
}
