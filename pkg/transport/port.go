package transport

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/raskyld/pipe/pkg/flow"
)

// DefaultBufferSize is the number of frames each direction can buffer.
const DefaultBufferSize uint = 1024

// Channel is one end of a message channel towards another execution
// context.
type Channel interface {
	// PostMessage queues msg for delivery to the other end.
	PostMessage(msg []byte) error
	// OnMessage adds a listener invoked once per delivered frame.
	OnMessage(func(msg []byte))
	// OnError adds a listener for construction and transmission failures.
	OnError(func(err error))
	// Start begins delivery. It is idempotent.
	Start()
	// Done is closed once the channel is closed, by either end.
	Done() <-chan struct{}
	Close() error
}

var _ Channel = (*Port)(nil)

// Port is a [Channel] backed by a pair of flows. Delivery to listeners is
// serial: the next frame is only handed out once every listener returned.
type Port struct {
	id       string
	peer     *Port
	sender   *flow.Sender[[]byte]
	receiver *flow.Receiver[[]byte]

	// autoStart makes the first OnMessage start delivery.
	autoStart bool

	lk         sync.Mutex
	onMessage  []func([]byte)
	onError    []func(error)
	pendingErr []error
	onClose    []func()
	started    bool
	closed     bool
	closeCh    chan struct{}

	// closer releases what sits below the flows, e.g. a QUIC connection.
	closer io.Closer
}

func newPort(raw flow.Raw, enc flow.Encoder, dec flow.Decoder, bufferSize uint) *Port {
	return &Port{
		id:       uuid.NewString(),
		sender:   flow.NewSender[[]byte](raw.RawSender, enc, bufferSize),
		receiver: flow.NewReceiver[[]byte](raw.RawReceiver, dec, bufferSize),
		closeCh:  make(chan struct{}),
	}
}

// newPortPair returns two ports wired to each other through local flows.
func newPortPair(bufferSize uint) (*Port, *Port) {
	codec := flow.NewBytesCodec(true)
	ab := flow.NewLocalFlow(bufferSize)
	ba := flow.NewLocalFlow(bufferSize)
	a := newPort(flow.Raw{RawSender: ab, RawReceiver: ba}, codec, codec, bufferSize)
	b := newPort(flow.Raw{RawSender: ba, RawReceiver: ab}, codec, codec, bufferSize)
	a.peer, b.peer = b, a
	return a, b
}

// ID uniquely identifies the port in logs.
func (p *Port) ID() string {
	return p.id
}

func (p *Port) PostMessage(msg []byte) error {
	p.lk.Lock()
	closed := p.closed
	p.lk.Unlock()
	if closed {
		return ErrChannelClosed
	}

	if err := p.sender.Send(context.Background(), msg); err != nil {
		if errors.Is(err, flow.ErrFlowClosed) {
			return ErrChannelClosed
		}
		return err
	}
	return nil
}

func (p *Port) OnMessage(fn func([]byte)) {
	p.lk.Lock()
	p.onMessage = append(p.onMessage, fn)
	auto := p.autoStart
	p.lk.Unlock()

	if auto {
		p.Start()
	}
}

// OnError adds an error listener. Errors raised before the first listener
// was attached are replayed to it.
func (p *Port) OnError(fn func(error)) {
	p.lk.Lock()
	p.onError = append(p.onError, fn)
	replay := p.pendingErr
	p.pendingErr = nil
	p.lk.Unlock()

	for _, err := range replay {
		fn(err)
	}
}

func (p *Port) Start() {
	p.lk.Lock()
	if p.started || p.closed {
		p.lk.Unlock()
		return
	}
	p.started = true
	p.lk.Unlock()

	go p.deliver()
}

// Done is closed once the port is closed, by either end.
func (p *Port) Done() <-chan struct{} {
	return p.closeCh
}

func (p *Port) Close() error {
	p.lk.Lock()
	if p.closed {
		p.lk.Unlock()
		return nil
	}
	p.closed = true
	hooks := p.onClose
	p.onClose = nil
	close(p.closeCh)
	p.lk.Unlock()

	err := errors.Join(p.sender.Close(), p.receiver.Close())
	if p.closer != nil {
		err = errors.Join(err, p.closer.Close())
	}
	for _, hook := range hooks {
		hook()
	}
	return err
}

func (p *Port) whenClosed(fn func()) {
	p.lk.Lock()
	if !p.closed {
		p.onClose = append(p.onClose, fn)
		p.lk.Unlock()
		return
	}
	p.lk.Unlock()
	fn()
}

func (p *Port) fail(err error) {
	p.lk.Lock()
	if len(p.onError) == 0 {
		p.pendingErr = append(p.pendingErr, err)
		p.lk.Unlock()
		return
	}
	listeners := slices.Clone(p.onError)
	p.lk.Unlock()

	for _, fn := range listeners {
		fn(err)
	}
}

func (p *Port) deliver() {
	for {
		msg, err := p.receiver.Recv(context.Background())
		if err != nil {
			p.lk.Lock()
			closedLocally := p.closed
			p.lk.Unlock()
			if !closedLocally && !errors.Is(err, flow.ErrFlowClosed) && !errors.Is(err, io.EOF) {
				p.fail(err)
			}
			// The other end went away: release our half too.
			_ = p.Close()
			return
		}

		// Zero-length frames only announce a stream.
		if len(msg) == 0 {
			continue
		}

		p.lk.Lock()
		listeners := slices.Clone(p.onMessage)
		p.lk.Unlock()
		for _, fn := range listeners {
			fn(msg)
		}
	}
}
