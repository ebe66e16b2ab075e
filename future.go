package pipe

import (
	"context"
	"sync"
)

// Future is the single-assignment result of [Pipe.Request].
//
// The pipe never fails a future: it either resolves with the first
// response observed, or stays pending forever. Bound the wait with the
// context passed to [Future.Wait].
type Future struct {
	resource string
	done     chan struct{}
	once     sync.Once
	result   any
}

func newFuture(resource string) *Future {
	return &Future{
		resource: resource,
		done:     make(chan struct{}),
	}
}

// complete stores v if nothing was stored yet and reports whether it did.
func (f *Future) complete(v any) (first bool) {
	f.once.Do(func() {
		f.result = v
		close(f.done)
		first = true
	})
	return
}

func (f *Future) Resource() string {
	return f.resource
}

// Done is closed once the future resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.result, nil
	}
}
