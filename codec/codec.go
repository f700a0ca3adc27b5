// Package codec serializes the envelopes exchanged by broker-backed hosts.
//
// Supported formats:
//   - JSON (default, human-readable)
//   - MessagePack (binary, compact)
//   - Protocol Buffers (binary, envelope carried as a structpb.Struct)
package codec

import (
	"errors"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Codec errors
var (
	ErrEncodeFailure = errors.New("failed to encode envelope")
	ErrDecodeFailure = errors.New("failed to decode envelope")
)

// Envelope is one UI event on the wire.
type Envelope struct {
	ID       string
	Type     string
	Target   string
	Payload  any
	Metadata map[string]string
	Time     time.Time
}

// NewEnvelope creates an envelope with a fresh ID and the current time.
func NewEnvelope(target, eventType string, payload any) *Envelope {
	return &Envelope{
		ID:      uuid.NewString(),
		Type:    eventType,
		Target:  target,
		Payload: payload,
		Time:    time.Now().UTC(),
	}
}

// WithMetadata returns a copy of e with key=value added to its metadata.
func (e *Envelope) WithMetadata(key, value string) *Envelope {
	c := *e
	c.Metadata = make(map[string]string, len(e.Metadata)+1)
	maps.Copy(c.Metadata, e.Metadata)
	c.Metadata[key] = value
	return &c
}

// Codec handles envelope serialization for broker hosts.
// Implementations must be safe for concurrent use.
type Codec interface {
	// Encode serializes an envelope to bytes.
	// Returns ErrEncodeFailure if serialization fails.
	Encode(e *Envelope) ([]byte, error)

	// Decode deserializes bytes to an envelope. Payloads come back as
	// generic values (maps, slices, strings, numbers, booleans).
	// Returns ErrDecodeFailure if deserialization fails.
	Decode(data []byte) (*Envelope, error)

	// ContentType returns the MIME type for this codec (e.g., "application/json").
	ContentType() string

	// Name returns a short identifier for this codec (e.g., "json", "msgpack", "proto").
	Name() string
}

// Default returns the default codec (JSON)
func Default() Codec {
	return JSON{}
}

// ByName returns the codec registered under name, or nil.
func ByName(name string) Codec {
	switch name {
	case "json":
		return JSON{}
	case "msgpack":
		return MsgPack{}
	case "proto":
		return Proto{}
	}
	return nil
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	maps.Copy(c, m)
	return c
}
