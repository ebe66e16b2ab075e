package pipe

import (
	"errors"
)

var (
	ErrInvalidCfg        = errors.New("pipe: invalid options")
	ErrNoRuntime         = errors.New("pipe: sources require a runtime or a transport")
	ErrUnknownTransport  = errors.New("pipe: unknown transport name")
	ErrPipeClosed        = errors.New("pipe: closed")
	ErrResourceInvalid   = errors.New("pipe: resource name must not be empty")
	ErrNoHandler         = errors.New("pipe: no handler for resource")
	ErrResponder         = errors.New("pipe: responder failed")
	ErrMalformedEnvelope = errors.New("pipe: malformed envelope")
	ErrEncodeEnvelope    = errors.New("pipe: could not encode envelope")
	ErrEndpoint          = errors.New("pipe: endpoint failure")
)
