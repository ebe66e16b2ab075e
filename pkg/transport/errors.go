package transport

import "errors"

var (
	ErrScriptNotFound  = errors.New("transport: no script registered for source")
	ErrScriptPanic     = errors.New("transport: script panicked")
	ErrChannelClosed   = errors.New("transport: channel closed")
	ErrRuntimeClosed   = errors.New("transport: runtime closed")
	ErrHostnameResolve = errors.New("transport: could not resolve peer name from certificate")
	ErrNoTLSConfig     = errors.New("transport: TLS config is required")
)
