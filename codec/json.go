package codec

import (
	"encoding/json"
	"errors"
	"time"
)

// JSON implements Codec using JSON serialization.
// This is the default codec, providing human-readable output.
type JSON struct{}

// jsonEnvelope is the JSON wire format
type jsonEnvelope struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Target   string            `json:"target"`
	Payload  json.RawMessage   `json:"payload,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Time     time.Time         `json:"time"`
}

// Encode serializes an envelope to JSON bytes
func (c JSON) Encode(e *Envelope) ([]byte, error) {
	je := jsonEnvelope{
		ID:       e.ID,
		Type:     e.Type,
		Target:   e.Target,
		Metadata: copyMetadata(e.Metadata),
		Time:     e.Time,
	}
	if e.Payload != nil {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, errors.Join(ErrEncodeFailure, err)
		}
		je.Payload = payload
	}

	data, err := json.Marshal(je)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	return data, nil
}

// Decode deserializes JSON bytes to an envelope
func (c JSON) Decode(data []byte) (*Envelope, error) {
	var je jsonEnvelope
	if err := json.Unmarshal(data, &je); err != nil {
		return nil, errors.Join(ErrDecodeFailure, err)
	}

	var payload any
	if len(je.Payload) > 0 {
		if err := json.Unmarshal(je.Payload, &payload); err != nil {
			return nil, errors.Join(ErrDecodeFailure, err)
		}
	}

	return &Envelope{
		ID:       je.ID,
		Type:     je.Type,
		Target:   je.Target,
		Payload:  payload,
		Metadata: je.Metadata,
		Time:     je.Time,
	}, nil
}

// ContentType returns the MIME type for JSON
func (c JSON) ContentType() string {
	return "application/json"
}

// Name returns the codec identifier
func (c JSON) Name() string {
	return "json"
}

// Compile-time check
var _ Codec = JSON{}
