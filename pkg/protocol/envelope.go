// Package protocol defines the events exchanged between chat clients and the
// server and their wire encoding.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrMissingEvent is returned when a decoded frame carries no event name.
var ErrMissingEvent = errors.New("protocol: frame has no event")

// Codec selects how envelopes are framed on a session.
type Codec int

const (
	// CodecBinary frames envelopes as protobuf-encoded google.protobuf.Struct.
	CodecBinary Codec = iota
	// CodecJSON frames envelopes as the protojson form of the same Struct.
	CodecJSON
)

// String returns the name used in the codec query parameter.
func (c Codec) String() string {
	switch c {
	case CodecJSON:
		return "json"
	default:
		return "binary"
	}
}

// ParseCodec maps a codec name to a Codec, defaulting to CodecBinary.
func ParseCodec(name string) Codec {
	if strings.EqualFold(strings.TrimSpace(name), "json") {
		return CodecJSON
	}
	return CodecBinary
}

// structFieldsTag opens every non-empty protobuf Struct frame (field 1,
// length-delimited). It is also '\n', so it must be checked before any
// whitespace is skipped.
const structFieldsTag = 0x0a

// DetectCodec peeks at a frame to determine its codec.
// Protobuf Struct frames start with structFieldsTag; JSON frames start
// with '{' after optional whitespace.
func DetectCodec(frame []byte) Codec {
	if len(frame) == 0 || frame[0] == structFieldsTag {
		return CodecBinary
	}
	if looksLikeJSON(frame) {
		return CodecJSON
	}
	return CodecBinary
}

func looksLikeJSON(frame []byte) bool {
	trimmed := bytes.TrimLeft(frame, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Envelope is one event frame: an event name plus a JSON-compatible payload.
type Envelope struct {
	Event Event
	Data  map[string]any
}

// NewEnvelope builds an envelope from a typed payload.
func NewEnvelope(event Event, payload any) (Envelope, error) {
	data, err := toMap(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to build %s envelope: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// Bind decodes the envelope payload into v.
func (e Envelope) Bind(v any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to bind %s payload: %w", e.Event, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to bind %s payload: %w", e.Event, err)
	}
	return nil
}

// CorrelationID returns the clientCorrelationId of the payload, if any.
// It reads the raw data so it works on payloads that fail to bind.
func (e Envelope) CorrelationID() string {
	id, _ := e.Data["clientCorrelationId"].(string)
	return id
}

// Encode encodes the envelope into a frame using the given codec.
func (e Envelope) Encode(codec Codec) ([]byte, error) {
	pbMsg, err := e.toProto()
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	var data []byte
	switch codec {
	case CodecJSON:
		data, err = protojson.Marshal(pbMsg)
	default:
		data, err = proto.Marshal(pbMsg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode decodes a frame in either codec into the envelope.
func (e *Envelope) Decode(data []byte) error {
	if DetectCodec(data) == CodecJSON {
		return e.decode(data, protojson.Unmarshal)
	}
	err := e.decode(data, proto.Unmarshal)
	// JSON text with a leading newline shares the protobuf tag byte.
	if err != nil && looksLikeJSON(data) {
		if jsonErr := e.decode(data, protojson.Unmarshal); jsonErr == nil {
			return nil
		}
	}
	return err
}

func (e *Envelope) decode(data []byte, unmarshal func([]byte, proto.Message) error) error {
	pbMsg := &structpb.Struct{}
	if err := unmarshal(data, pbMsg); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}
	return e.fromProto(pbMsg)
}

// toProto converts the envelope to its protobuf Struct form
// {"event": <name>, "data": {...}}.
func (e Envelope) toProto() (*structpb.Struct, error) {
	fields := map[string]any{"event": string(e.Event)}
	if e.Data != nil {
		fields["data"] = e.Data
	}
	return structpb.NewStruct(fields)
}

// fromProto populates the envelope from its protobuf Struct form.
func (e *Envelope) fromProto(pbMsg *structpb.Struct) error {
	m := pbMsg.AsMap()

	event, _ := m["event"].(string)
	if event == "" {
		return ErrMissingEvent
	}
	e.Event = Event(event)

	data, _ := m["data"].(map[string]any)
	e.Data = data
	return nil
}

// toMap flattens a payload into the generic map structpb accepts.
func toMap(payload any) (map[string]any, error) {
	if payload == nil {
		return nil, nil
	}
	if m, ok := payload.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
