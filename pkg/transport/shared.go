package transport

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var _ Scope = (*SharedScope)(nil)

// SharedWorker is a connection to the hub running a script for the whole
// runtime.
type SharedWorker struct {
	port *Port
	src  string
}

// NewSharedWorker connects to the hub for src, starting it on first use.
// The returned port buffers messages until [Port.Start] is called.
func NewSharedWorker(rt *Runtime, src string) (*SharedWorker, error) {
	hub, err := rt.hub(src)
	if err != nil {
		return nil, err
	}

	client, inner := newPortPair(rt.bufferSize)
	if err := hub.connect(inner); err != nil {
		_ = client.Close()
		_ = inner.Close()
		return nil, err
	}
	client.whenClosed(func() { _ = inner.Close() })

	return &SharedWorker{port: client, src: src}, nil
}

// Port returns the caller side of the connection.
func (sw *SharedWorker) Port() *Port {
	return sw.port
}

func (sw *SharedWorker) Source() string {
	return sw.src
}

func (rt *Runtime) hub(src string) (*SharedScope, error) {
	rt.lk.Lock()
	if rt.closed {
		rt.lk.Unlock()
		return nil, ErrRuntimeClosed
	}
	if hub, ok := rt.hubs[src]; ok {
		rt.lk.Unlock()
		return hub, nil
	}
	script, ok := rt.scripts[src]
	if !ok {
		rt.lk.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, src)
	}
	hub := &SharedScope{
		src:     src,
		closeCh: make(chan struct{}),
	}
	rt.hubs[src] = hub
	rt.lk.Unlock()

	go func() {
		rt.run(src, script, hub, hub.fail)
		hub.activate()
	}()
	return hub, nil
}

// SharedScope is the hub side of a fan-out transport. Every connecting
// party is handed to the connect listeners as its own [Port].
type SharedScope struct {
	src string

	lk        sync.Mutex
	ports     []*Port
	waiting   []*Port
	onConnect []func(*Port)
	ready     bool
	closed    bool
	closeCh   chan struct{}
}

func (s *SharedScope) Source() string {
	return s.src
}

func (s *SharedScope) Done() <-chan struct{} {
	return s.closeCh
}

// OnConnect adds a listener for new connections. Connections accepted
// while the script was still running are handed to the listeners once it
// returned. Ports are started once the listeners ran.
func (s *SharedScope) OnConnect(fn func(port *Port)) {
	s.lk.Lock()
	s.onConnect = append(s.onConnect, fn)
	ready := s.ready
	s.lk.Unlock()

	if ready {
		s.flush()
	}
}

func (s *SharedScope) activate() {
	s.lk.Lock()
	s.ready = true
	s.lk.Unlock()
	s.flush()
}

func (s *SharedScope) flush() {
	s.lk.Lock()
	if len(s.onConnect) == 0 {
		s.lk.Unlock()
		return
	}
	waiting := s.waiting
	s.waiting = nil
	listeners := slices.Clone(s.onConnect)
	s.lk.Unlock()

	for _, port := range waiting {
		for _, fn := range listeners {
			fn(port)
		}
		port.Start()
	}
}

// Ports returns the currently connected ports.
func (s *SharedScope) Ports() []*Port {
	s.lk.Lock()
	defer s.lk.Unlock()
	return slices.Clone(s.ports)
}

// Broadcast posts msg to every connected port.
func (s *SharedScope) Broadcast(msg []byte) error {
	var errs []error
	for _, port := range s.Ports() {
		if err := port.PostMessage(msg); err != nil && !errors.Is(err, ErrChannelClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *SharedScope) connect(port *Port) error {
	s.lk.Lock()
	if s.closed {
		s.lk.Unlock()
		return ErrRuntimeClosed
	}
	s.ports = append(s.ports, port)
	listeners := slices.Clone(s.onConnect)
	queued := !s.ready || len(listeners) == 0
	if queued {
		s.waiting = append(s.waiting, port)
	}
	s.lk.Unlock()

	port.whenClosed(func() { s.remove(port) })

	if queued {
		return nil
	}
	for _, fn := range listeners {
		fn(port)
	}
	port.Start()
	return nil
}

func (s *SharedScope) remove(port *Port) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.ports = slices.DeleteFunc(s.ports, func(p *Port) bool { return p == port })
	s.waiting = slices.DeleteFunc(s.waiting, func(p *Port) bool { return p == port })
}

// fail reports err on the connecting side of every port.
func (s *SharedScope) fail(err error) {
	for _, port := range s.Ports() {
		if port.peer != nil {
			port.peer.fail(err)
		}
	}
}

func (s *SharedScope) close() error {
	s.lk.Lock()
	if s.closed {
		s.lk.Unlock()
		return nil
	}
	s.closed = true
	ports := s.ports
	s.ports = nil
	s.waiting = nil
	close(s.closeCh)
	s.lk.Unlock()

	var errs []error
	for _, port := range ports {
		errs = append(errs, port.Close())
	}
	return errors.Join(errs...)
}
