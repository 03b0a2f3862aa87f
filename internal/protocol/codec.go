package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode serializes payload for data-channel transmission. Payloads that are
// already encoded ([]byte, json.RawMessage) are validated and passed through.
func Encode(payload any) ([]byte, error) {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case json.RawMessage:
		data = p
	case Message:
		data = p.Body
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	if _, err := messageType(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Decode parses a data-channel payload received from the given peer.
func Decode(from string, data []byte) (Message, error) {
	typ, err := messageType(data)
	if err != nil {
		return Message{}, err
	}

	body := make(json.RawMessage, len(data))
	copy(body, data)
	return Message{From: from, Type: typ, Body: body}, nil
}

// messageType extracts the "type" field, rejecting anything that is not an
// object with a non-empty string tag.
func messageType(data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}

	var h header
	if err := json.Unmarshal(trimmed, &h); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if h.Type == nil || *h.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return *h.Type, nil
}
