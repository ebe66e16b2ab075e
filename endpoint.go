package pipe

import (
	"sync"

	"github.com/raskyld/pipe/pkg/transport"
)

// Variant is the shape of the transport behind an [Endpoint]. It is fixed
// when the endpoint is created.
type Variant uint8

const (
	// VariantPointToPoint links exactly two parties.
	VariantPointToPoint Variant = iota
	// VariantFanOut goes through a hub shared with other parties, whose
	// replies may reach all of them.
	VariantFanOut
)

func (v Variant) String() string {
	switch v {
	case VariantFanOut:
		return "fan-out"
	default:
		return "point-to-point"
	}
}

type State uint8

const (
	StateUnconnected State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unconnected"
	}
}

// Endpoint is a remote execution context reachable through a transport.
// Endpoints are owned by the registry of a [Pipe].
type Endpoint struct {
	source  string
	variant Variant
	ch      transport.Channel

	lk    sync.Mutex
	state State
}

// EndpointInfo describes a live endpoint.
type EndpointInfo struct {
	Source  string
	Variant Variant
	State   State
}

func newEndpoint(source string, variant Variant, ch transport.Channel) *Endpoint {
	return &Endpoint{
		source:  source,
		variant: variant,
		ch:      ch,
	}
}

func (ep *Endpoint) Source() string {
	return ep.source
}

func (ep *Endpoint) Variant() Variant {
	return ep.variant
}

func (ep *Endpoint) State() State {
	ep.lk.Lock()
	defer ep.lk.Unlock()
	return ep.state
}

func (ep *Endpoint) info() EndpointInfo {
	return EndpointInfo{Source: ep.source, Variant: ep.variant, State: ep.State()}
}

// start attaches the listeners and begins delivery.
func (ep *Endpoint) start(onMessage func([]byte), onError func(error)) {
	ep.ch.OnError(onError)
	ep.ch.OnMessage(onMessage)
	ep.ch.Start()

	ep.lk.Lock()
	if ep.state == StateUnconnected {
		ep.state = StateConnected
	}
	ep.lk.Unlock()
}

func (ep *Endpoint) send(buf []byte) error {
	ep.lk.Lock()
	closed := ep.state == StateClosed
	ep.lk.Unlock()
	if closed {
		return transport.ErrChannelClosed
	}
	return ep.ch.PostMessage(buf)
}

func (ep *Endpoint) close() error {
	ep.lk.Lock()
	if ep.state == StateClosed {
		ep.lk.Unlock()
		return nil
	}
	ep.state = StateClosed
	ep.lk.Unlock()
	return ep.ch.Close()
}
