package flow

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// RawReceiver is a non-thread safe and blocking flow which should
// only be used by power users.
//
// Methods MUST NOT be called concurrently.
type RawReceiver interface {
	Recv(Decoder) (interface{}, error)
	Close() error
}

// Decoder reads messages from a stream.
// It is supposed to return an error only when a final error is
// encountered.
type Decoder interface {
	Decode(io.Reader) (interface{}, error)
}

// Receiver is a thread-safe and typed flow reader.
type Receiver[T any] struct {
	raw RawReceiver
	dec Decoder

	readCh     chan T
	closeCh    chan struct{}
	mainLoopWg sync.WaitGroup

	// handle Close sync.
	err error
	lk  sync.Mutex
}

func NewReceiver[T any](raw RawReceiver, dec Decoder, bufferSize uint) *Receiver[T] {
	r := &Receiver[T]{
		raw: raw,
		dec: dec,

		readCh:  make(chan T, bufferSize),
		closeCh: make(chan struct{}),
	}

	r.mainLoopWg.Add(1)
	go r.run()

	return r
}

// Recv returns the next message. Messages buffered before the flow was
// closed are still returned; the closing cause comes after them.
func (r *Receiver[T]) Recv(ctx context.Context) (result T, err error) {
	select {
	case <-ctx.Done():
		return result, ctx.Err()
	case elem, ok := <-r.readCh:
		if !ok {
			return result, r.Err()
		}
		return elem, nil
	}
}

// Err returns the error which closed the receiver, if any.
func (r *Receiver[T]) Err() error {
	r.lk.Lock()
	defer r.lk.Unlock()
	return r.err
}

func (r *Receiver[T]) Close() error {
	return r.closeWith(ErrFlowClosed, true)
}

func (r *Receiver[T]) closeWith(cause error, mustWait bool) error {
	r.lk.Lock()
	if r.err != nil {
		r.lk.Unlock()
		return nil
	}
	r.err = cause
	close(r.closeCh)
	err := r.raw.Close()
	r.lk.Unlock()
	if mustWait {
		r.mainLoopWg.Wait()
	}
	close(r.readCh)
	return err
}

func (r *Receiver[T]) run() {
	defer r.mainLoopWg.Done()
	for {
		elem, err := r.raw.Recv(r.dec)
		if err != nil {
			_ = r.closeWith(err, false)
			return
		}

		msg, ok := elem.(T)
		if !ok {
			_ = r.closeWith(fmt.Errorf("%w: got %T", ErrTypeMismatch, elem), false)
			return
		}

		select {
		case <-r.closeCh:
			return
		case r.readCh <- msg:
		}
	}
}
