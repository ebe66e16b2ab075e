// Package flow moves byte frames between two execution contexts.
//
// A flow is unidirectional. [LocalFlow] backs in-process channels with a
// buffered Go channel while [RemoteSender] and [RemoteReceiver] frame the
// same messages on a QUIC stream. [Sender] and [Receiver] wrap either kind
// in a buffered, thread-safe and typed API.
package flow

import "errors"

var (
	ErrFlowClosed    = errors.New("flow: closed")
	ErrFrameTooLarge = errors.New("flow: frame exceeds the maximum size")
	ErrTypeMismatch  = errors.New("flow: unexpected message type")
)

// Raw is a bidirectional raw flow.
//
// Most users should not use it directly but wrap it
// in a [Sender] and [Receiver].
type Raw struct {
	RawReceiver
	RawSender
}

func (r Raw) Close() error {
	return errors.Join(r.RawReceiver.Close(), r.RawSender.Close())
}
