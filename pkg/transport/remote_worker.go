package transport

import (
	"context"
	"crypto/tls"
	"slices"
	"sync"
	"time"
)

var _ Channel = (*RemoteWorker)(nil)

// RemoteWorker is a point-to-point [Channel] to a worker served by
// [ServeQUIC]. The connection is dialed in the background: messages
// posted meanwhile are queued and flushed in order once the stream is
// open. A failed dial is reported to the error listeners and closes the
// channel.
type RemoteWorker struct {
	addr   string
	cancel context.CancelFunc

	lk         sync.Mutex
	port       *Port
	queue      [][]byte
	onMessage  []func([]byte)
	onError    []func(error)
	pendingErr []error
	started    bool
	closed     bool
	closeCh    chan struct{}
}

// NewRemoteWorker starts dialing addr and returns immediately.
func NewRemoteWorker(addr string, tlsConf *tls.Config, dialTimeout time.Duration) (*RemoteWorker, error) {
	if tlsConf == nil {
		return nil, ErrNoTLSConfig
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	w := &RemoteWorker{
		addr:    addr,
		cancel:  cancel,
		closeCh: make(chan struct{}),
	}
	go w.dial(ctx, tlsConf)
	return w, nil
}

func (w *RemoteWorker) dial(ctx context.Context, tlsConf *tls.Config) {
	defer w.cancel()

	port, err := DialQUIC(ctx, w.addr, tlsConf)
	if err != nil {
		w.fail(err)
		_ = w.Close()
		return
	}

	w.lk.Lock()
	if w.closed {
		w.lk.Unlock()
		_ = port.Close()
		return
	}
	for _, fn := range w.onError {
		port.OnError(fn)
	}
	for _, fn := range w.onMessage {
		port.OnMessage(fn)
	}
	var flushErr error
	for _, msg := range w.queue {
		if flushErr = port.PostMessage(msg); flushErr != nil {
			break
		}
	}
	w.queue = nil
	w.port = port
	started := w.started
	w.lk.Unlock()

	port.whenClosed(func() { _ = w.Close() })
	if flushErr != nil {
		w.fail(flushErr)
	}
	if started {
		port.Start()
	}
}

// Addr is the address the worker is dialed at.
func (w *RemoteWorker) Addr() string {
	return w.addr
}

func (w *RemoteWorker) PostMessage(msg []byte) error {
	w.lk.Lock()
	if w.closed {
		w.lk.Unlock()
		return ErrChannelClosed
	}
	port := w.port
	if port == nil {
		w.queue = append(w.queue, slices.Clone(msg))
		w.lk.Unlock()
		return nil
	}
	w.lk.Unlock()
	return port.PostMessage(msg)
}

func (w *RemoteWorker) OnMessage(fn func([]byte)) {
	w.lk.Lock()
	w.onMessage = append(w.onMessage, fn)
	port := w.port
	w.lk.Unlock()

	if port != nil {
		port.OnMessage(fn)
	}
}

// OnError adds an error listener. Errors raised before the first listener
// was attached are replayed to it.
func (w *RemoteWorker) OnError(fn func(error)) {
	w.lk.Lock()
	w.onError = append(w.onError, fn)
	port := w.port
	replay := w.pendingErr
	w.pendingErr = nil
	w.lk.Unlock()

	if port != nil {
		port.OnError(fn)
	}
	for _, err := range replay {
		fn(err)
	}
}

func (w *RemoteWorker) Start() {
	w.lk.Lock()
	w.started = true
	port := w.port
	w.lk.Unlock()

	if port != nil {
		port.Start()
	}
}

func (w *RemoteWorker) Done() <-chan struct{} {
	return w.closeCh
}

func (w *RemoteWorker) Close() error {
	w.lk.Lock()
	if w.closed {
		w.lk.Unlock()
		return nil
	}
	w.closed = true
	w.queue = nil
	port := w.port
	close(w.closeCh)
	w.lk.Unlock()

	w.cancel()
	if port != nil {
		return port.Close()
	}
	return nil
}

func (w *RemoteWorker) fail(err error) {
	w.lk.Lock()
	if len(w.onError) == 0 {
		w.pendingErr = append(w.pendingErr, err)
		w.lk.Unlock()
		return
	}
	listeners := slices.Clone(w.onError)
	w.lk.Unlock()

	for _, fn := range listeners {
		fn(err)
	}
}
