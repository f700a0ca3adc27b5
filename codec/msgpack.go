package codec

import (
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgPack implements Codec using MessagePack serialization.
// MessagePack is a binary format that's more compact than JSON
// while maintaining schema-less flexibility.
//
// Payload handling:
//   - Encode: marshals payload to MessagePack
//   - Decode: payload is unmarshaled into a generic value; maps decode as
//     map[string]any
type MsgPack struct{}

// msgpackEnvelope is the MessagePack wire format
type msgpackEnvelope struct {
	ID       string             `msgpack:"id"`
	Type     string             `msgpack:"type"`
	Target   string             `msgpack:"target"`
	Payload  msgpack.RawMessage `msgpack:"payload,omitempty"`
	Metadata map[string]string  `msgpack:"metadata,omitempty"`
	Time     time.Time          `msgpack:"time"`
}

// Encode serializes an envelope to MessagePack bytes
func (c MsgPack) Encode(e *Envelope) ([]byte, error) {
	me := msgpackEnvelope{
		ID:       e.ID,
		Type:     e.Type,
		Target:   e.Target,
		Metadata: copyMetadata(e.Metadata),
		Time:     e.Time,
	}
	if e.Payload != nil {
		payload, err := msgpack.Marshal(e.Payload)
		if err != nil {
			return nil, errors.Join(ErrEncodeFailure, err)
		}
		me.Payload = payload
	}

	data, err := msgpack.Marshal(me)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	return data, nil
}

// Decode deserializes MessagePack bytes to an envelope
func (c MsgPack) Decode(data []byte) (*Envelope, error) {
	var me msgpackEnvelope
	if err := msgpack.Unmarshal(data, &me); err != nil {
		return nil, errors.Join(ErrDecodeFailure, err)
	}

	var payload any
	if len(me.Payload) > 0 {
		if err := msgpack.Unmarshal(me.Payload, &payload); err != nil {
			return nil, errors.Join(ErrDecodeFailure, err)
		}
	}

	return &Envelope{
		ID:       me.ID,
		Type:     me.Type,
		Target:   me.Target,
		Payload:  payload,
		Metadata: me.Metadata,
		Time:     me.Time,
	}, nil
}

// ContentType returns the MIME type for MessagePack
func (c MsgPack) ContentType() string {
	return "application/msgpack"
}

// Name returns the codec identifier
func (c MsgPack) Name() string {
	return "msgpack"
}

// Compile-time check
var _ Codec = MsgPack{}
