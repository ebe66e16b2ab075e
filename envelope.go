package pipe

import (
	"encoding/json"
	"fmt"
)

// Kind tells what an [Envelope] is for.
type Kind uint8

const (
	KindMalformed Kind = iota
	KindRequest
	KindResponse
	KindDebug
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindDebug:
		return "debug"
	default:
		return "malformed"
	}
}

// Envelope is the unit exchanged between contexts. On the wire it is
// exactly one of:
//
//	{"resource": string, "params": any}   request
//	{"resource": string, "results": any}  response
//	{"debug": any}                        diagnostic
type Envelope struct {
	Kind     Kind
	Resource string
	Params   any
	Results  any
	Debug    any
}

func requestEnvelope(resource string, params any) Envelope {
	return Envelope{Kind: KindRequest, Resource: resource, Params: params}
}

func responseEnvelope(resource string, results any) Envelope {
	return Envelope{Kind: KindResponse, Resource: resource, Results: results}
}

func debugEnvelope(msg any) Envelope {
	return Envelope{Kind: KindDebug, Debug: msg}
}

// fields returns the wire shape of the envelope.
func (env Envelope) fields() (map[string]any, error) {
	switch env.Kind {
	case KindRequest:
		return map[string]any{"resource": env.Resource, "params": env.Params}, nil
	case KindResponse:
		return map[string]any{"resource": env.Resource, "results": env.Results}, nil
	case KindDebug:
		return map[string]any{"debug": env.Debug}, nil
	default:
		return nil, ErrMalformedEnvelope
	}
}

// classify rebuilds an envelope from its decoded wire shape. A "results"
// key, even null, makes a response; otherwise "resource" makes a request;
// otherwise "debug" makes a diagnostic.
func classify(fields map[string]any) (Envelope, error) {
	if rawResource, ok := fields["resource"]; ok {
		resource, isString := rawResource.(string)
		if !isString || resource == "" {
			return Envelope{}, fmt.Errorf("%w: resource must be a non-empty string", ErrMalformedEnvelope)
		}
		if results, ok := fields["results"]; ok {
			return responseEnvelope(resource, results), nil
		}
		return requestEnvelope(resource, fields["params"]), nil
	}

	if msg, ok := fields["debug"]; ok {
		return debugEnvelope(msg), nil
	}

	return Envelope{}, fmt.Errorf("%w: neither resource nor debug", ErrMalformedEnvelope)
}

// Decode converts a value received over a pipe, such as a resolved
// request result, into T.
func Decode[T any](v any) (T, error) {
	var out T
	buf, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(buf, &out)
	return out, err
}
