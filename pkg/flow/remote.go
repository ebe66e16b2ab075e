package flow

import (
	"github.com/quic-go/quic-go"
)

// QErrReceiverClosed is the code sent to the peer when we stop reading.
const QErrReceiverClosed = quic.StreamErrorCode(0xC)

type RemoteSender struct {
	quic.SendStream
}

var _ RawSender = RemoteSender{}

func (s RemoteSender) Send(enc Encoder, msg interface{}) error {
	return enc.Encode(s.SendStream, msg)
}

type RemoteReceiver struct {
	quic.ReceiveStream
}

var _ RawReceiver = RemoteReceiver{}

func (r RemoteReceiver) Recv(dec Decoder) (interface{}, error) {
	return dec.Decode(r.ReceiveStream)
}

func (r RemoteReceiver) Close() error {
	r.CancelRead(QErrReceiverClosed)
	return nil
}
