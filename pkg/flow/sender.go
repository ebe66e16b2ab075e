package flow

import (
	"context"
	"io"
	"sync"
)

// RawSender is a non-thread safe and blocking flow which should
// only be used by power users.
//
// Methods MUST NOT be called concurrently.
type RawSender interface {
	Send(Encoder, interface{}) error
	Close() error
}

// Encoder writes messages on a stream, or prepares them for a local flow.
// It is supposed to return an error only when a final error is
// encountered.
type Encoder interface {
	Encode(io.Writer, interface{}) error
	ProcessLocal(interface{}) (interface{}, error)
}

// Sender is a thread-safe and typed flow writer.
//
// Messages are queued and written by a single goroutine, so the order of
// successful [Sender.Send] calls is the order seen by the reader.
type Sender[T any] struct {
	raw RawSender
	enc Encoder

	writeCh    chan T
	closeCh    chan struct{}
	mainLoopWg sync.WaitGroup

	// handle Close sync.
	writer sync.WaitGroup
	err    error
	lk     sync.Mutex
}

func NewSender[T any](raw RawSender, enc Encoder, bufferSize uint) *Sender[T] {
	w := &Sender[T]{
		raw: raw,
		enc: enc,

		writeCh: make(chan T, bufferSize),
		closeCh: make(chan struct{}),
	}

	w.mainLoopWg.Add(1)
	go w.run()

	return w
}

func (w *Sender[T]) Send(ctx context.Context, msg T) error {
	w.lk.Lock()
	if w.err != nil {
		err := w.err
		w.lk.Unlock()
		return err
	}
	w.writer.Add(1)
	defer w.writer.Done()
	w.lk.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.closeCh:
		return ErrFlowClosed
	case w.writeCh <- msg:
	}

	return nil
}

// Err returns the error which closed the sender, if any.
func (w *Sender[T]) Err() error {
	w.lk.Lock()
	defer w.lk.Unlock()
	return w.err
}

// Close stops accepting messages and returns once the queued ones were
// handed to the raw flow.
func (w *Sender[T]) Close() error {
	stopped := w.stop(ErrFlowClosed)
	w.mainLoopWg.Wait()
	if !stopped {
		return nil
	}
	return w.raw.Close()
}

// stop refuses new messages and reports whether it was the first call.
func (w *Sender[T]) stop(cause error) bool {
	w.lk.Lock()
	defer w.lk.Unlock()
	if w.err != nil {
		return false
	}
	w.err = cause
	close(w.closeCh)
	w.writer.Wait()
	close(w.writeCh)
	return true
}

func (w *Sender[T]) run() {
	defer w.mainLoopWg.Done()
	for msg := range w.writeCh {
		if err := w.raw.Send(w.enc, msg); err != nil {
			if w.stop(err) {
				_ = w.raw.Close()
			}
			return
		}
	}
}
