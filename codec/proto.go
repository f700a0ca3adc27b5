package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Proto implements Codec using Protocol Buffers serialization. The envelope
// is carried as a google.protobuf.Struct so no generated code is needed.
//
// Payload handling:
//   - If payload implements proto.Message, it's wrapped in Any and
//     decoded back as *anypb.Any
//   - Otherwise, it's converted to structpb.Value (supports JSON-like values)
type Proto struct{}

// Struct field names
const (
	protoFieldID         = "id"
	protoFieldType       = "type"
	protoFieldTarget     = "target"
	protoFieldPayload    = "payload"
	protoFieldPayloadAny = "payload_any"
	protoFieldMetadata   = "metadata"
	protoFieldTime       = "time"
)

// Encode serializes an envelope to Protocol Buffer bytes
func (c Proto) Encode(e *Envelope) ([]byte, error) {
	fields := map[string]*structpb.Value{
		protoFieldID:     structpb.NewStringValue(e.ID),
		protoFieldType:   structpb.NewStringValue(e.Type),
		protoFieldTarget: structpb.NewStringValue(e.Target),
		protoFieldTime:   structpb.NewStringValue(e.Time.Format(time.RFC3339Nano)),
	}

	if e.Metadata != nil {
		md := make(map[string]*structpb.Value, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = structpb.NewStringValue(v)
		}
		fields[protoFieldMetadata] = structpb.NewStructValue(&structpb.Struct{Fields: md})
	}

	if e.Payload != nil {
		switch p := e.Payload.(type) {
		case proto.Message:
			anyPayload, err := anypb.New(p)
			if err != nil {
				return nil, errors.Join(ErrEncodeFailure, err)
			}
			raw, err := proto.Marshal(anyPayload)
			if err != nil {
				return nil, errors.Join(ErrEncodeFailure, err)
			}
			// bytes are carried as base64 strings by structpb
			v, err := structpb.NewValue(raw)
			if err != nil {
				return nil, errors.Join(ErrEncodeFailure, err)
			}
			fields[protoFieldPayloadAny] = v
		default:
			v, err := structpb.NewValue(p)
			if err != nil {
				return nil, errors.Join(ErrEncodeFailure, err)
			}
			fields[protoFieldPayload] = v
		}
	}

	data, err := proto.Marshal(&structpb.Struct{Fields: fields})
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	return data, nil
}

// Decode deserializes Protocol Buffer bytes to an envelope
func (c Proto) Decode(data []byte) (*Envelope, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, errors.Join(ErrDecodeFailure, err)
	}
	f := s.GetFields()

	e := &Envelope{
		ID:     f[protoFieldID].GetStringValue(),
		Type:   f[protoFieldType].GetStringValue(),
		Target: f[protoFieldTarget].GetStringValue(),
	}

	if ts := f[protoFieldTime].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, errors.Join(ErrDecodeFailure, err)
		}
		e.Time = t
	}

	if md := f[protoFieldMetadata].GetStructValue(); md != nil {
		e.Metadata = make(map[string]string, len(md.GetFields()))
		for k, v := range md.GetFields() {
			e.Metadata[k] = v.GetStringValue()
		}
	}

	switch {
	case f[protoFieldPayloadAny] != nil:
		raw, err := decodeBase64(f[protoFieldPayloadAny].GetStringValue())
		if err != nil {
			return nil, errors.Join(ErrDecodeFailure, err)
		}
		anyPayload := &anypb.Any{}
		if err := proto.Unmarshal(raw, anyPayload); err != nil {
			return nil, errors.Join(ErrDecodeFailure, err)
		}
		e.Payload = anyPayload
	case f[protoFieldPayload] != nil:
		e.Payload = f[protoFieldPayload].AsInterface()
	}
	return e, nil
}

// ContentType returns the MIME type for Protocol Buffers
func (c Proto) ContentType() string {
	return "application/x-protobuf"
}

// Name returns the codec identifier
func (c Proto) Name() string {
	return "proto"
}

func decodeBase64(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("payload_any: %w", err)
	}
	return raw, nil
}

// Compile-time check
var _ Codec = Proto{}
