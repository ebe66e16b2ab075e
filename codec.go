package pipe

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec turns envelopes into the frames carried by transports.
//
// Values come back as their JSON-like representation (map[string]any,
// []any, float64, string, bool, nil) whatever was sent; use [Decode] to
// get typed values.
type Codec interface {
	Name() string
	Marshal(Envelope) ([]byte, error)
	Unmarshal([]byte) (Envelope, error)
}

var (
	_ Codec = JSONCodec{}
	_ Codec = ProtoCodec{}
)

// JSONCodec is the default codec.
type JSONCodec struct{}

func (JSONCodec) Name() string {
	return "json"
}

func (JSONCodec) Marshal(env Envelope) ([]byte, error) {
	fields, err := env.fields()
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeEnvelope, err)
	}
	return buf, nil
}

func (JSONCodec) Unmarshal(buf []byte) (Envelope, error) {
	var fields map[string]any
	if err := json.Unmarshal(buf, &fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return classify(fields)
}

// ProtoCodec encodes envelopes as a `google.protobuf.Struct`.
type ProtoCodec struct{}

func (ProtoCodec) Name() string {
	return "proto"
}

func (ProtoCodec) Marshal(env Envelope) ([]byte, error) {
	fields, err := env.fields()
	if err != nil {
		return nil, err
	}

	// structpb only knows the JSON value space, normalise typed values first.
	normalised, err := Decode[map[string]any](fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeEnvelope, err)
	}
	msg, err := structpb.NewStruct(normalised)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeEnvelope, err)
	}
	buf, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeEnvelope, err)
	}
	return buf, nil
}

func (ProtoCodec) Unmarshal(buf []byte) (Envelope, error) {
	msg := &structpb.Struct{}
	if err := proto.Unmarshal(buf, msg); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return classify(msg.AsMap())
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "proto":
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %q", ErrInvalidCfg, name)
	}
}
